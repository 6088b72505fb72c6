package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-polls/backend/internal/models"
	"github.com/aura-polls/backend/internal/polls"
	"github.com/aura-polls/backend/internal/realtime"
	"github.com/aura-polls/backend/pkg/queue"
)

type stubSource struct {
	results map[uuid.UUID][]models.PollResult
	err     error
}

func (s stubSource) Results(_ context.Context, id uuid.UUID) ([]models.PollResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	r, ok := s.results[id]
	if !ok {
		return nil, polls.ErrPollNotFound
	}
	return r, nil
}

type stubCache struct {
	mu          sync.Mutex
	set         map[uuid.UUID][]models.PollResult
	invalidated []uuid.UUID
}

func newStubCache() *stubCache { return &stubCache{set: make(map[uuid.UUID][]models.PollResult)} }

func (c *stubCache) Set(_ context.Context, id uuid.UUID, r []models.PollResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set[id] = r
	return nil
}

func (c *stubCache) Invalidate(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
	return nil
}

type published struct {
	pollID uuid.UUID
	event  string
}

type stubPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *stubPublisher) Publish(_ context.Context, id uuid.UUID, event string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{id, event})
	return nil
}

func (p *stubPublisher) snapshot() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

type chanQueue struct {
	jobs    chan *queue.Job
	mu      sync.Mutex
	retried []*queue.Job
}

func (q *chanQueue) Dequeue(ctx context.Context) (*queue.Job, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case j := <-q.jobs:
		return j, queue.QueueResults, nil
	}
}

func (q *chanQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	q.retried = append(q.retried, job)
	return nil
}

func refreshJob(t *testing.T, pollID uuid.UUID) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.JobTypeResultsRefresh, queue.ResultsRefreshPayload{PollID: pollID})
	require.NoError(t, err)
	return job
}

func TestResultsProcessor_Process(t *testing.T) {
	pollID := uuid.New()
	want := []models.PollResult{{OptionText: "Red", VoteCount: 1, Percentage: 100}}
	cache := newStubCache()
	pub := &stubPublisher{}
	p := NewResultsProcessor(stubSource{results: map[uuid.UUID][]models.PollResult{pollID: want}}, cache, pub, nil, nil)

	require.NoError(t, p.Process(context.Background(), refreshJob(t, pollID)))
	assert.Equal(t, want, cache.set[pollID])
	assert.Equal(t, []published{{pollID, realtime.EventResultsUpdated}}, pub.snapshot())

	require.NoError(t, p.Process(context.Background(), refreshJob(t, uuid.New())), "deleted poll is dropped")
	assert.Len(t, pub.snapshot(), 1)

	bad := refreshJob(t, pollID)
	bad.Type = "unknown"
	assert.Error(t, p.Process(context.Background(), bad))
}

func TestResultsProcessor_RunRetriesFailures(t *testing.T) {
	q := &chanQueue{jobs: make(chan *queue.Job, 1)}
	p := NewResultsProcessor(stubSource{err: errors.New("db down")}, nil, &stubPublisher{}, q, nil)
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	q.jobs <- refreshJob(t, uuid.New())

	assert.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.retried) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

type stubCloser struct {
	ids []uuid.UUID
	at  time.Time
}

func (c *stubCloser) CloseExpired(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	c.at = now
	ids := c.ids
	c.ids = nil
	return ids, nil
}

func TestExpirySweeper_Sweep(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	closer := &stubCloser{ids: []uuid.UUID{a, b}}
	cache := newStubCache()
	pub := &stubPublisher{}
	s := NewExpirySweeper(closer, cache, pub, time.Minute, nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, fixed, closer.at)
	assert.Equal(t, []uuid.UUID{a, b}, cache.invalidated)
	assert.Equal(t, []published{{a, realtime.EventPollClosed}, {b, realtime.EventPollClosed}}, pub.snapshot())

	n, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
