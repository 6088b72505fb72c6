package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-polls/backend/internal/middleware"
	"github.com/aura-polls/backend/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // read-only stream of public results
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SnapshotFunc loads the current results for a poll, sent to a client when it joins.
type SnapshotFunc func(ctx context.Context, pollID uuid.UUID) (interface{}, error)

// Client represents a single WebSocket connection watching a poll.
type Client struct {
	ID       string
	PollID   uuid.UUID
	UserID   *uuid.UUID // nil for anonymous viewers
	JoinedAt time.Time
	hub      *Hub
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger
}

// ServeWs handles GET /ws?poll_id=...&token=... and runs the client loop.
// The token is optional; viewing results does not require an identity.
func ServeWs(hub *Hub, logger *zap.Logger, v middleware.TokenValidator, snapshot SnapshotFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		pollID, err := uuid.Parse(c.Query("poll_id"))
		if err != nil {
			response.BadRequest(c, "poll_id required")
			return
		}
		var userID *uuid.UUID
		if token := c.Query("token"); token != "" && v != nil {
			id, _, err := v.ValidateIdentity(token)
			if err != nil {
				response.Unauthorized(c, "invalid token")
				return
			}
			userID = &id
		}

		var initial interface{}
		if snapshot != nil {
			initial, err = snapshot(c.Request.Context(), pollID)
			if err != nil {
				response.NotFound(c, "Poll not found")
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			PollID:   pollID,
			UserID:   userID,
			JoinedAt: time.Now(),
			hub:      hub,
			conn:     conn,
			send:     make(chan WSMessage, 256),
			logger:   logger,
		}
		hub.Register(client)
		if initial != nil {
			hub.sendTo(client, EventResultsUpdated, initial)
		}
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "viewer_count":
			c.hub.sendTo(c, EventViewerCount, map[string]int{"count": c.hub.ViewerCount(c.PollID)})
		default:
			// viewers only listen; votes go through the HTTP API
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
