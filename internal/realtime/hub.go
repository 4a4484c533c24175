// Package realtime fans gateway notifications out to WebSocket clients.
package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	// AllEvents is the room that receives the notifications of every event.
	AllEvents int64 = 0
)

// Hub maintains event_id -> set of connections and broadcasts messages.
// With Redis configured, messages go through pub/sub so every instance delivers them once.
type Hub struct {
	// eventID -> map[clientID]*Client
	rooms    map[int64]map[string]*Client
	subs     map[int64]func() // cancel Redis subscription per room
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishEvent(eventID int64, event string, payload []byte) error
}

// RedisSubscriber subscribes to event channels and invokes handler for incoming messages.
// Subscribing to AllEvents receives every event channel.
type RedisSubscriber interface {
	SubscribeEvent(eventID int64, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[int64]map[string]*Client),
		subs:     make(map[int64]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to its room. Starts the Redis subscription for the room if first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.EventID] == nil {
		h.rooms[c.EventID] = make(map[string]*Client)
		if h.redisSub != nil {
			room := c.EventID
			cancel, err := h.redisSub.SubscribeEvent(room, func(event string, payload []byte) {
				h.broadcastRoom(room, WSMessage{Event: event, Data: payload})
			})
			if err != nil {
				h.logger.Warn("redis subscribe failed", zap.Int64("event_id", room), zap.Error(err))
			} else {
				h.subs[room] = cancel
			}
		}
	}
	h.rooms[c.EventID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined", zap.String("client_id", c.ID), zap.Int64("event_id", c.EventID))
}

// Unregister removes a client from its room. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.EventID]; ok {
		if _, present := m[c.ID]; present {
			delete(m, c.ID)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.rooms, c.EventID)
			if cancel, ok := h.subs[c.EventID]; ok {
				cancel()
				delete(h.subs, c.EventID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left", zap.String("client_id", c.ID), zap.Int64("event_id", c.EventID))
}

// Broadcast sends a message to the local clients of the event room and of AllEvents.
func (h *Hub) Broadcast(eventID int64, event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		h.logger.Warn("encode realtime payload", zap.String("event", event), zap.Error(err))
		return
	}
	msg := WSMessage{Event: event, Data: data}
	h.broadcastRoom(eventID, msg)
	if eventID != AllEvents {
		h.broadcastRoom(AllEvents, msg)
	}
}

// BroadcastToEventAndPublish delivers a notification to every instance. With Redis the
// subscriber callbacks perform the local broadcast, so local clients get it exactly once.
func (h *Hub) BroadcastToEventAndPublish(eventID int64, event string, payload interface{}) {
	if h.redis == nil {
		h.Broadcast(eventID, event, payload)
		return
	}
	data, err := encode(payload)
	if err != nil {
		h.logger.Warn("encode realtime payload", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.redis.PublishEvent(eventID, event, data); err != nil {
		h.logger.Warn("redis publish failed, broadcasting locally", zap.Int64("event_id", eventID), zap.Error(err))
		h.Broadcast(eventID, event, json.RawMessage(data))
	}
}

// CloseSession disconnects every client opened with the given auth session.
func (h *Hub) CloseSession(sessionID string) int {
	h.mu.RLock()
	var victims []*Client
	for _, room := range h.rooms {
		for _, c := range room {
			if c.SessionID == sessionID {
				victims = append(victims, c)
			}
		}
	}
	h.mu.RUnlock()
	for _, c := range victims {
		_ = c.conn.Close()
	}
	return len(victims)
}

// RoomSize returns the number of connected clients in a room.
func (h *Hub) RoomSize(eventID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}

func (h *Hub) broadcastRoom(eventID int64, msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[eventID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

func encode(payload interface{}) (json.RawMessage, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}
	return json.Marshal(payload)
}
