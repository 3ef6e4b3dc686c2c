package relay

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"ai-chat-gateway/internal/pkg/logger"
	natsbus "ai-chat-gateway/pkg/nats"

	"github.com/redis/go-redis/v9"
)

// CancelFunc is invoked when a subscriber asks to stop generation for a
// conversation it is watching.
type CancelFunc func(ctx context.Context, conversationID, subject string)

// Hub fans protocol events out to every websocket client watching a
// conversation. Events arrive from the NATS ingest path; clients attach and
// detach as browsers open and close the stream.
type Hub struct {
	// Watching clients map: ConversationID -> List of Clients (multi-tab)
	clients map[string][]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Lock for safe map access
	mu sync.RWMutex

	// Redis connection for cross-instance fan-out
	rdb *redis.Client

	// Cancel requests coming back up from clients
	cancel CancelFunc

	// Dedicated Logger
	logger logger.ILogger
}

func NewHub(rdb *redis.Client, cancel CancelFunc, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string][]*Client),
		rdb:        rdb,
		cancel:     cancel,
		logger:     log,
	}
}

func (h *Hub) Run() {
	// Start Redis subscriber if Redis is available
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ConversationID] = append(h.clients[client.ConversationID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client attached", map[string]interface{}{"conversation_id": client.ConversationID, "subject": client.Subject})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.ConversationID]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.ConversationID] = append(clients[:i], clients[i+1:]...)
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.ConversationID]) == 0 {
					delete(h.clients, client.ConversationID)
					h.logger.Info("Hub", "Conversation has no watchers left", map[string]interface{}{"conversation_id": client.ConversationID})
				}
			}
			h.mu.Unlock()
		}
	}
}

// Relay delivers a protocol event envelope to every watcher of its
// conversation. With Redis configured the frame goes through the shared
// channel so every gateway instance (this one included) delivers it exactly
// once; without Redis it is delivered to local watchers directly.
func (h *Hub) Relay(env natsbus.Envelope) {
	data, err := json.Marshal(env.Event)
	if err != nil {
		h.logger.Error("Hub", "Failed to marshal event for relay", map[string]interface{}{"conversation_id": env.ConversationID, "error": err.Error()})
		return
	}

	if h.rdb != nil {
		payload, _ := json.Marshal(redisFrame{
			ConversationID: env.ConversationID,
			Message:        data,
		})
		h.rdb.Publish(context.Background(), "stream_events", payload)
		return
	}

	h.deliverLocal(env.ConversationID, data)
}

// WatcherCount reports how many local clients are attached to a conversation.
func (h *Hub) WatcherCount(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[conversationID])
}

func (h *Hub) deliverLocal(conversationID string, data []byte) {
	h.mu.RLock()
	clients, ok := h.clients[conversationID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			// Run owns closing Send when it processes the unregister; closing
			// here as well would close the channel twice.
			h.logger.Warn("Hub", "Client Send buffer full, dropping connection", map[string]interface{}{"conversation_id": conversationID, "subject": client.Subject})
			h.unregister <- client
		}
	}
}

// redisFrame is the cross-instance fan-out payload.
type redisFrame struct {
	ConversationID string          `json:"conversation_id"`
	Message        json.RawMessage `json:"message"`
}

func (h *Hub) subscribeToRedis() {
	// Every instance subscribes to the shared "stream_events" channel. When a
	// frame arrives we deliver it only if we have local watchers for the
	// conversation, so instances never duplicate each other's deliveries.
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, "stream_events")
	defer pubsub.Close()

	ch := pubsub.Channel()

	for msg := range ch {
		var frame redisFrame
		if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
			log.Printf("Redis msg parse error: %v", err)
			continue
		}

		h.deliverLocal(frame.ConversationID, frame.Message)
	}
}
