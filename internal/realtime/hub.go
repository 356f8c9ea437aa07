// Package realtime connects signage renderers to the playback engine over
// WebSocket: playback commands flow out to display rooms, renderer status
// reports flow back to the active media bridge.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are the heartbeat bounds in seconds.
	PingInterval = 30
	PongWait     = 60
)

// StatusHandler receives renderer status reports for a display (media loaded,
// play results, progress, ended).
type StatusHandler interface {
	HandleStatus(event string, data json.RawMessage)
}

// RedisPublisher publishes display events for cross-instance broadcast.
type RedisPublisher interface {
	PublishDisplayEvent(displayID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to a display channel and invokes handler for
// incoming events.
type RedisSubscriber interface {
	SubscribeDisplay(displayID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains display_id -> set of connections and routes messages both
// directions. Redis pub/sub fans commands out across instances.
type Hub struct {
	displays map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func()
	bridges  map[uuid.UUID]StatusHandler
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// NewHub creates a WebSocket hub for display connections.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		displays: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		bridges:  make(map[uuid.UUID]StatusHandler),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// AttachBridge routes subsequent renderer status reports for a display to
// handler. At most one bridge is attached per display (one active queue item).
func (h *Hub) AttachBridge(displayID uuid.UUID, handler StatusHandler) {
	h.mu.Lock()
	h.bridges[displayID] = handler
	h.mu.Unlock()
}

// DetachBridge removes the status route for a display if it still points at
// handler.
func (h *Hub) DetachBridge(displayID uuid.UUID, handler StatusHandler) {
	h.mu.Lock()
	if h.bridges[displayID] == handler {
		delete(h.bridges, displayID)
	}
	h.mu.Unlock()
}

// DispatchStatus forwards a renderer status report to the attached bridge.
func (h *Hub) DispatchStatus(displayID uuid.UUID, event string, data json.RawMessage) {
	h.mu.RLock()
	bridge := h.bridges[displayID]
	h.mu.RUnlock()
	if bridge != nil {
		bridge.HandleStatus(event, data)
	}
}

// Register adds a client to a display room, starting the Redis subscription on
// the first connection.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.displays[c.DisplayID] == nil {
		h.displays[c.DisplayID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeDisplay(c.DisplayID, func(event string, payload []byte) {
				h.BroadcastToDisplay(c.DisplayID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.DisplayID] = cancel
			}
		}
	}
	h.displays[c.DisplayID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("renderer connected", zap.String("client_id", c.ID),
		zap.String("display_id", c.DisplayID.String()))
}

// Unregister removes a client, cancelling the Redis subscription when the room
// empties.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.displays[c.DisplayID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.displays, c.DisplayID)
			if cancel, ok := h.subs[c.DisplayID]; ok {
				cancel()
				delete(h.subs, c.DisplayID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("renderer disconnected", zap.String("client_id", c.ID),
		zap.String("display_id", c.DisplayID.String()))
}

// BroadcastToDisplay sends a message to all local clients of a display.
func (h *Hub) BroadcastToDisplay(displayID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.displays[displayID]
	h.mu.RUnlock()
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastToDisplayAndPublish sends locally and publishes via Redis for other
// instances serving the same display.
func (h *Hub) BroadcastToDisplayAndPublish(displayID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.BroadcastToDisplay(displayID, event, payload)
	if h.redis != nil {
		_ = h.redis.PublishDisplayEvent(displayID, event, data)
	}
}

// PlaybackEvent implements the playback engine's event sink.
func (h *Hub) PlaybackEvent(displayID uuid.UUID, event string, payload any) {
	h.BroadcastToDisplayAndPublish(displayID, event, payload)
}

// ClientCount returns the number of connected renderers for a display.
func (h *Hub) ClientCount(displayID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.displays[displayID])
}
