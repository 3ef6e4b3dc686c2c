package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ai-chat-gateway/internal/dto"
	"ai-chat-gateway/internal/relay"
	"ai-chat-gateway/pkg/chatstream"
	"ai-chat-gateway/pkg/events"
	natsbus "ai-chat-gateway/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

type IPromptService interface {
	Submit(ctx context.Context, conversationID, subject string, req *dto.SendPromptRequest) (*dto.SendPromptResponse, error)
	Cancel(ctx context.Context, conversationID, subject string) error
}

type promptService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	hub       *relay.Hub
	publisher *natsbus.Publisher
}

func NewPromptService(pubSub *gochannel.GoChannel, topicName string, hub *relay.Hub, publisher *natsbus.Publisher) IPromptService {
	return &promptService{
		pubSub:    pubSub,
		topicName: topicName,
		hub:       hub,
		publisher: publisher,
	}
}

func (s *promptService) Submit(ctx context.Context, conversationID, subject string, req *dto.SendPromptRequest) (*dto.SendPromptResponse, error) {
	now := time.Now()
	promptID := uuid.New()

	queued := dto.PublishPromptMessage{
		PromptID:       promptID,
		ConversationID: conversationID,
		Subject:        subject,
		Prompt:         req.Prompt,
		Attachments:    req.Attachments,
		SubmittedAt:    now,
	}
	payload, err := json.Marshal(queued)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prompt message: %w", err)
	}

	msg := message.NewMessage(promptID.String(), payload)
	if err := s.pubSub.Publish(s.topicName, msg); err != nil {
		return nil, fmt.Errorf("failed to enqueue prompt: %w", err)
	}

	// Watchers see the user message immediately, before the agent echoes
	// anything back.
	s.relayEvent(conversationID, chatstream.EventUserPrompt, map[string]interface{}{
		"prompt_id": promptID.String(),
		"prompt":    req.Prompt,
	}, now)

	return &dto.SendPromptResponse{
		PromptID:       promptID,
		ConversationID: conversationID,
		AcceptedAt:     now,
	}, nil
}

func (s *promptService) Cancel(ctx context.Context, conversationID, subject string) error {
	if s.publisher == nil {
		return nil
	}
	event := events.BaseEvent{
		Type: events.TypeGenerationCancelled,
		Data: map[string]interface{}{
			"conversation_id": conversationID,
			"subject":         subject,
		},
		OccurredAt: time.Now(),
	}
	return s.publisher.Publish(ctx, event)
}

func (s *promptService) relayEvent(conversationID string, eventType chatstream.EventType, data map[string]interface{}, at time.Time) {
	if s.hub == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("[ERROR] Failed to marshal %s event data: %v", eventType, err)
		return
	}
	s.hub.Relay(natsbus.Envelope{
		ConversationID: conversationID,
		Event: chatstream.Event{
			Type:      eventType,
			Data:      raw,
			Timestamp: at.UnixMilli(),
		},
	})
}
