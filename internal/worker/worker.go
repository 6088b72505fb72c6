package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-polls/backend/internal/models"
	"github.com/aura-polls/backend/internal/polls"
	"github.com/aura-polls/backend/internal/realtime"
	"github.com/aura-polls/backend/pkg/queue"
)

// ResultsSource computes a poll's current results.
type ResultsSource interface {
	Results(ctx context.Context, pollID uuid.UUID) ([]models.PollResult, error)
}

// ResultsWriter stores computed results for the HTTP layer.
type ResultsWriter interface {
	Set(ctx context.Context, pollID uuid.UUID, results []models.PollResult) error
	Invalidate(ctx context.Context, pollID uuid.UUID) error
}

// Publisher delivers an event to every viewer of a poll.
type Publisher interface {
	Publish(ctx context.Context, pollID uuid.UUID, event string, payload interface{}) error
}

// JobQueue is the part of the job queue the processor consumes.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ResultsProcessor processes results refresh jobs: recompute, cache, broadcast.
type ResultsProcessor struct {
	source  ResultsSource
	cache   ResultsWriter
	pub     Publisher
	queue   JobQueue
	logger  *zap.Logger
	backoff time.Duration
}

// NewResultsProcessor creates a results refresh processor. cache may be nil.
func NewResultsProcessor(source ResultsSource, cache ResultsWriter, pub Publisher, q JobQueue, logger *zap.Logger) *ResultsProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultsProcessor{source: source, cache: cache, pub: pub, queue: q, logger: logger, backoff: queue.RetryBackoff}
}

// Process executes one results refresh job.
func (p *ResultsProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeResultsRefresh {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ResultsRefreshPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	results, err := p.source.Results(ctx, payload.PollID)
	if errors.Is(err, polls.ErrPollNotFound) {
		p.logger.Info("poll gone, dropping refresh", zap.String("poll_id", payload.PollID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("compute results: %w", err)
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, payload.PollID, results); err != nil {
			p.logger.Warn("results cache set", zap.String("poll_id", payload.PollID.String()), zap.Error(err))
		}
	}
	if err := p.pub.Publish(ctx, payload.PollID, realtime.EventResultsUpdated, results); err != nil {
		return fmt.Errorf("publish results: %w", err)
	}

	p.logger.Debug("results refreshed", zap.String("poll_id", payload.PollID.String()), zap.Int("options", len(results)))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ResultsProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("results worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, p.backoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			sleep(ctx, p.backoff)
		}
	}
}

// ExpiryCloser closes polls whose expiry has passed.
type ExpiryCloser interface {
	CloseExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// ExpirySweeper periodically closes expired polls and tells their viewers.
type ExpirySweeper struct {
	closer   ExpiryCloser
	cache    ResultsWriter
	pub      Publisher
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewExpirySweeper creates a sweeper running every interval. cache may be nil.
func NewExpirySweeper(closer ExpiryCloser, cache ResultsWriter, pub Publisher, interval time.Duration, logger *zap.Logger) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirySweeper{closer: closer, cache: cache, pub: pub, interval: interval, logger: logger, now: time.Now}
}

// Sweep closes expired polls once and returns how many were closed.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := s.closer.CloseExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, id); err != nil {
				s.logger.Warn("results cache invalidate", zap.String("poll_id", id.String()), zap.Error(err))
			}
		}
		if err := s.pub.Publish(ctx, id, realtime.EventPollClosed, map[string]string{"poll_id": id.String()}); err != nil {
			s.logger.Warn("publish poll closed", zap.String("poll_id", id.String()), zap.Error(err))
		}
	}
	if len(ids) > 0 {
		s.logger.Info("closed expired polls", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}

// Run sweeps on every tick until ctx is done.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopping")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
