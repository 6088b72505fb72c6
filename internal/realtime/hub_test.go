package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) PublishPollEvent(_ context.Context, pollID uuid.UUID, event string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, pollID.String()+"/"+event)
	return nil
}

func newTestClient(h *Hub, pollID uuid.UUID) *Client {
	return &Client{ID: uuid.NewString(), PollID: pollID, hub: h, send: make(chan WSMessage, 8)}
}

func drain(c *Client) []WSMessage {
	var out []WSMessage
	for {
		select {
		case m, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestHub_RoomsAreIsolated(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	pollA, pollB := uuid.New(), uuid.New()
	a1, a2, b1 := newTestClient(h, pollA), newTestClient(h, pollA), newTestClient(h, pollB)
	h.Register(a1)
	h.Register(a2)
	h.Register(b1)
	drain(a1)
	drain(a2)
	drain(b1)

	assert.Equal(t, 2, h.ViewerCount(pollA))
	require.NoError(t, h.Publish(context.Background(), pollA, EventResultsUpdated, []int{1, 2}))

	for _, c := range []*Client{a1, a2} {
		msgs := drain(c)
		require.Len(t, msgs, 1)
		assert.Equal(t, EventResultsUpdated, msgs[0].Event)
		assert.JSONEq(t, `[1,2]`, string(msgs[0].Data))
	}
	assert.Empty(t, drain(b1))
}

func TestHub_UnregisterClosesAndRecounts(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	pollID := uuid.New()
	a, b := newTestClient(h, pollID), newTestClient(h, pollID)
	h.Register(a)
	h.Register(b)
	drain(a)
	drain(b)

	h.Unregister(a)
	_, open := <-a.send
	assert.False(t, open, "send channel closed")
	assert.Equal(t, 1, h.ViewerCount(pollID))

	msgs := drain(b)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventViewerCount, msgs[0].Event)
	assert.JSONEq(t, `{"count":1}`, string(msgs[0].Data))

	h.Unregister(a) // second unregister is a no-op
	h.Unregister(b)
	assert.Zero(t, h.ViewerCount(pollID))
}

func TestHub_PublishGoesThroughRedis(t *testing.T) {
	pub := &fakePublisher{}
	h := NewHub(zap.NewNop(), pub, nil)
	pollID := uuid.New()
	c := newTestClient(h, pollID)
	h.Register(c)
	drain(c)

	require.NoError(t, h.Publish(context.Background(), pollID, EventPollClosed, map[string]string{"poll_id": pollID.String()}))
	assert.Equal(t, []string{pollID.String() + "/" + EventPollClosed}, pub.events)
	assert.Empty(t, drain(c), "delivery happens through the subscription")
}

func TestServeWs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(zap.NewNop(), nil, nil)
	known := uuid.New()
	snapshot := func(_ context.Context, id uuid.UUID) (interface{}, error) {
		if id != known {
			return nil, errors.New("not found")
		}
		return []map[string]int{{"vote_count": 3}}, nil
	}
	r := gin.New()
	r.GET("/ws", ServeWs(h, zap.NewNop(), nil, snapshot))
	srv := httptest.NewServer(r)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?poll_id=bad", nil)
	require.Error(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+"?poll_id="+uuid.NewString(), nil)
	require.Error(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"?poll_id="+known.String(), nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first, second WSMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, EventViewerCount, first.Event)
	assert.Equal(t, EventResultsUpdated, second.Event)
	var results []map[string]int
	require.NoError(t, json.Unmarshal(second.Data, &results))
	assert.Equal(t, 3, results[0]["vote_count"])

	require.NoError(t, h.Publish(context.Background(), known, EventPollClosed, map[string]bool{"closed": true}))
	var third WSMessage
	require.NoError(t, conn.ReadJSON(&third))
	assert.Equal(t, EventPollClosed, third.Event)
}
