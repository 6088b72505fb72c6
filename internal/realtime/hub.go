package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Events pushed to poll viewers.
const (
	EventResultsUpdated = "results_updated"
	EventPollClosed     = "poll_closed"
	EventViewerCount    = "viewer_count"
)

// Hub maintains poll_id -> set of connections and broadcasts messages.
// Uses Redis pub/sub for horizontal scaling: an event published by any
// instance (or the standalone worker) reaches viewers on every instance.
type Hub struct {
	// pollID -> map[clientID]*Client
	polls    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per poll
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishPollEvent(ctx context.Context, pollID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to poll channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribePoll(pollID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. Either Redis side may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		polls:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to a poll room. Starts Redis subscription for this poll if first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.polls[c.PollID] == nil {
		h.polls[c.PollID] = make(map[string]*Client)
		if h.redisSub != nil {
			pollID := c.PollID
			cancel, err := h.redisSub.SubscribePoll(pollID, func(event string, payload []byte) {
				h.Broadcast(pollID, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("redis subscribe failed", zap.String("poll_id", pollID.String()), zap.Error(err))
			} else {
				h.subs[pollID] = cancel
			}
		}
	}
	h.polls[c.PollID][c.ID] = c
	count := len(h.polls[c.PollID])
	h.mu.Unlock()

	h.Broadcast(c.PollID, EventViewerCount, map[string]int{"count": count})
	h.logger.Debug("client joined poll", zap.String("client_id", c.ID), zap.String("poll_id", c.PollID.String()))
}

// Unregister removes a client from a poll room. Cancels Redis subscription when last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var count int
	if m, ok := h.polls[c.PollID]; ok {
		if _, present := m[c.ID]; present {
			delete(m, c.ID)
			close(c.send)
		}
		count = len(m)
		if count == 0 {
			delete(h.polls, c.PollID)
			if cancel, ok := h.subs[c.PollID]; ok {
				cancel()
				delete(h.subs, c.PollID)
			}
		}
	}
	h.mu.Unlock()

	if count > 0 {
		h.Broadcast(c.PollID, EventViewerCount, map[string]int{"count": count})
	}
	h.logger.Debug("client left poll", zap.String("client_id", c.ID), zap.String("poll_id", c.PollID.String()))
}

// Broadcast sends a message to all clients watching a poll (local only).
func (h *Hub) Broadcast(pollID uuid.UUID, event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		h.logger.Warn("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.polls[pollID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish delivers an event to every viewer of a poll. With Redis configured the
// event is only published, and each instance's subscription broadcasts it once;
// without Redis it is broadcast locally.
func (h *Hub) Publish(ctx context.Context, pollID uuid.UUID, event string, payload interface{}) error {
	if h.redis == nil {
		h.Broadcast(pollID, event, payload)
		return nil
	}
	data, err := encode(payload)
	if err != nil {
		return err
	}
	return h.redis.PublishPollEvent(ctx, pollID, event, data)
}

// ViewerCount returns the number of connected clients watching a poll on this instance.
func (h *Hub) ViewerCount(pollID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.polls[pollID])
}

// sendTo queues a message for one client.
func (h *Hub) sendTo(c *Client, event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.polls[c.PollID][c.ID]; !ok {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}

func encode(payload interface{}) (json.RawMessage, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}
