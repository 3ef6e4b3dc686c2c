package service

import (
	"context"
	"fmt"

	"ai-chat-gateway/internal/pkg/logger"
	"ai-chat-gateway/internal/relay"
	natsbus "ai-chat-gateway/pkg/nats"
)

type IIngestService interface {
	Start(ctx context.Context) error
}

// ingestService consumes protocol event envelopes produced by the agent and
// routes them to the relay hub by conversation.
type ingestService struct {
	subscriber    *natsbus.Subscriber
	hub           *relay.Hub
	subjectPrefix string
	durableName   string
	logger        logger.ILogger
}

func NewIngestService(subscriber *natsbus.Subscriber, hub *relay.Hub, subjectPrefix, durableName string, log logger.ILogger) IIngestService {
	return &ingestService{
		subscriber:    subscriber,
		hub:           hub,
		subjectPrefix: subjectPrefix,
		durableName:   durableName,
		logger:        log,
	}
}

func (s *ingestService) Start(ctx context.Context) error {
	subject := s.subjectPrefix + ".>"
	err := s.subscriber.SubscribeEnvelopes(subject, s.durableName, func(ctx context.Context, env natsbus.Envelope) error {
		if env.ConversationID == "" {
			// Unroutable; drop rather than retry forever.
			s.logger.Warn("Ingest", "Envelope without conversation id dropped", map[string]interface{}{"event_type": string(env.Event.Type)})
			return nil
		}
		s.hub.Relay(env)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to start chat event ingestion: %w", err)
	}

	s.logger.Info("Ingest", "Chat event ingestion started", map[string]interface{}{"subject": subject, "durable": s.durableName})
	return nil
}
