package service

import (
	"context"
	"encoding/json"
	"log"

	"ai-chat-gateway/internal/dto"
	"ai-chat-gateway/pkg/chatstream"
	natsbus "ai-chat-gateway/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IForwarderService interface {
	Consume(ctx context.Context) error
}

// forwarderService drains queued prompts and hands them to the agent over
// the NATS chat event stream.
type forwarderService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	publisher *natsbus.Publisher
}

func NewForwarderService(pubSub *gochannel.GoChannel, topicName string, publisher *natsbus.Publisher) IForwarderService {
	return &forwarderService{
		pubSub:    pubSub,
		topicName: topicName,
		publisher: publisher,
	}
}

func (fs *forwarderService) Consume(ctx context.Context) error {
	messages, err := fs.pubSub.Subscribe(ctx, fs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			fs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (fs *forwarderService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishPromptMessage
	err := json.Unmarshal(msg.Payload, &payload)
	if err != nil {
		log.Printf("[ERROR] Failed to unmarshal prompt message: %v", err)
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	log.Printf("[INFO] Forwarding prompt %s for conversation %s", payload.PromptID, payload.ConversationID)

	eventData, err := json.Marshal(map[string]interface{}{
		"prompt_id":   payload.PromptID.String(),
		"subject":     payload.Subject,
		"prompt":      payload.Prompt,
		"attachments": payload.Attachments,
	})
	if err != nil {
		log.Printf("[ERROR] Failed to marshal prompt event for %s: %v", payload.PromptID, err)
		msg.Ack()
		return
	}

	env := natsbus.Envelope{
		ConversationID: payload.ConversationID,
		Event: chatstream.Event{
			Type:      chatstream.EventUserPromptProcessed,
			Data:      eventData,
			Timestamp: payload.SubmittedAt.UnixMilli(),
		},
	}

	if err := fs.publisher.PublishEnvelope(ctx, env); err != nil {
		log.Printf("[ERROR] Failed to forward prompt %s: %v", payload.PromptID, err)
		msg.Nack() // Nack for retriable errors
		return
	}

	msg.Ack()
}
