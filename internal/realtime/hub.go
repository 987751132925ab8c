package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait (seconds) are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Event types fanned out to observers. Environment and audio-level events
// are high frequency; observers must tolerate silent gaps while disconnected.
const (
	EventSessionStarted = "session_started"
	EventSessionEnded   = "session_ended"
	EventScoreUpdated   = "score_updated"
	EventEnvironment    = "environment_update"
	EventAudioLevel     = "audio_level"
)

// Message is the typed, timestamped envelope delivered to observers.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	At    time.Time       `json:"at"`
}

// RedisPublisher publishes an envelope to Redis for cross-instance broadcast.
type RedisPublisher interface {
	PublishEvent(raw []byte) error
}

// RedisSubscriber subscribes to the shared event channel and invokes handler
// for each incoming envelope. Returns a cancel function.
type RedisSubscriber interface {
	Subscribe(handler func(raw []byte)) (cancel func(), err error)
}

// Hub maintains the set of currently-connected observers and broadcasts
// messages to them. Delivery is best effort: a message published while an
// observer's buffer is full is dropped for that observer, and an observer
// that connects after a publish never receives it. No buffering, no replay.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *zap.Logger
	redis   RedisPublisher
	cancel  func()
}

// NewHub creates a hub. When a Redis bridge is supplied, Publish goes
// through Redis so every instance (including this one) broadcasts exactly
// once; without it Publish broadcasts locally.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		redis:   redisPub,
	}
	if redisSub != nil {
		cancel, err := redisSub.Subscribe(func(raw []byte) {
			var msg Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				return
			}
			h.broadcast(msg)
		})
		if err != nil {
			logger.Warn("redis subscribe failed, falling back to local broadcast", zap.Error(err))
			h.redis = nil
		} else {
			h.cancel = cancel
		}
	}
	return h
}

// Register adds an observer to the connected set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("observer connected", zap.String("client_id", c.ID), zap.Int("observers", n))
}

// Unregister removes an observer from the connected set.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("observer disconnected", zap.String("client_id", c.ID), zap.Int("observers", n))
}

// Publish pushes a typed, timestamped message to every currently-connected
// observer. It never blocks the caller: a slow observer's message is dropped.
func (h *Hub) Publish(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := Message{Event: event, Data: data, At: time.Now()}
	if h.redis != nil {
		raw, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if err := h.redis.PublishEvent(raw); err == nil {
			return
		}
		// Redis down: deliver locally rather than losing the event entirely.
	}
	h.broadcast(msg)
}

func (h *Hub) broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// ObserverCount returns the number of connected observers.
func (h *Hub) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the Redis subscription, if any.
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
}
