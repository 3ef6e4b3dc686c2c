package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ai-chat-gateway/pkg/chatstream"
	"ai-chat-gateway/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Envelope is the wire frame carried on the chat event stream. It pairs a
// protocol event with the conversation it belongs to so consumers can route
// it without decoding the payload.
type Envelope struct {
	ConversationID string           `json:"conversation_id"`
	Event          chatstream.Event `json:"event"`
}

// Publisher handles sending events to the NATS bus.
type Publisher struct {
	nc            *nats.Conn
	js            jetstream.JetStream
	subjectPrefix string
}

// NewPublisher creates a new NATS publisher. subjectPrefix is the root of the
// chat event subject space (e.g. "chat.events").
func NewPublisher(url, subjectPrefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Ensure both streams exist: chat event fan-in plus gateway lifecycle.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "CHAT_EVENTS",
		Subjects:  []string{subjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		log.Printf("Warn: Failed to ensure stream 'CHAT_EVENTS': %v", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "GATEWAY_EVENTS",
		Subjects:  []string{"gateway.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		log.Printf("Warn: Failed to ensure stream 'GATEWAY_EVENTS': %v", err)
	}

	return &Publisher{nc: nc, js: js, subjectPrefix: subjectPrefix}, nil
}

// PublishEnvelope sends a protocol event for a conversation onto the chat
// event stream.
func (p *Publisher) PublishEnvelope(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, env.ConversationID)

	_, err = p.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish envelope to subject %s: %w", subject, err)
	}

	return nil
}

// Publish sends a gateway lifecycle event to NATS.
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	subject := fmt.Sprintf("gateway.%s", event.EventType())

	_, err = p.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}

	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
