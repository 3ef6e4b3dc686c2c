package bootstrap

import (
	"context"
	"log"
	"os"

	"ai-chat-gateway/internal/config"
	"ai-chat-gateway/internal/controller"
	"ai-chat-gateway/internal/handler"
	"ai-chat-gateway/internal/pkg/logger"
	"ai-chat-gateway/internal/relay"
	"ai-chat-gateway/internal/service"
	natsbus "ai-chat-gateway/pkg/nats"
	"ai-chat-gateway/pkg/token"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	SessionController      controller.ISessionController
	ConversationController controller.IConversationController

	// Verifier shared by the auth middleware and the stream handshake
	Verifier *token.Verifier

	// Background services (exposed for main.go to run)
	ForwarderService service.IForwarderService
	IngestService    service.IIngestService

	// Stream relay
	StreamHandler *handler.StreamHandler
	RelayHub      *relay.Hub
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Key material
	privateKeyPEM, err := os.ReadFile(cfg.Auth.PrivateKeyPath)
	if err != nil {
		log.Fatalf("[FATAL] Failed to read signing key: %v", err)
	}
	publicKeyPEM, err := os.ReadFile(cfg.Auth.PublicKeyPath)
	if err != nil {
		log.Fatalf("[FATAL] Failed to read verification key: %v", err)
	}
	verifier := token.NewVerifier(publicKeyPEM)

	// 3. Event bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3.5 Infrastructure
	// NATS
	natsPub, err := natsbus.NewPublisher(cfg.App.NatsURL, cfg.Stream.EventSubjectPrefix)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := natsbus.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		rdb = nil
	}

	// 4. Services
	tokenService, err := service.NewTokenService(
		privateKeyPEM,
		publicKeyPEM,
		rdb,
		natsPub,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize token service: %v", err)
	}

	promptServiceRef := &promptServiceHolder{}

	// Relay hub; cancel frames from stream sockets go back through the
	// prompt service to the upstream bus.
	relayLogger := logger.NewIsolatedLogger("logs/stream.log")
	relayHub := relay.NewHub(rdb, func(ctx context.Context, conversationID, subject string) {
		if svc := promptServiceRef.get(); svc != nil {
			if err := svc.Cancel(ctx, conversationID, subject); err != nil {
				relayLogger.Warn("RelayHub", "Failed to forward cancellation", map[string]interface{}{"conversation_id": conversationID, "error": err.Error()})
			}
		}
	}, relayLogger)
	go relayHub.Run()

	promptService := service.NewPromptService(pubSub, cfg.Stream.PromptTopic, relayHub, natsPub)
	promptServiceRef.set(promptService)

	forwarderService := service.NewForwarderService(pubSub, cfg.Stream.PromptTopic, natsPub)

	ingestService := service.NewIngestService(natsSub, relayHub, cfg.Stream.EventSubjectPrefix, "gateway-relay", sysLogger)

	// 5. Handlers and controllers
	streamHandler := handler.NewStreamHandler(verifier, relayHub, relayLogger)

	return &Container{
		SessionController:      controller.NewSessionController(tokenService, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL, cfg.Auth.CookieSecure),
		ConversationController: controller.NewConversationController(promptService, cfg.Stream.MaxAttachmentBytes),
		Verifier:               verifier,
		ForwarderService:       forwarderService,
		IngestService:          ingestService,
		StreamHandler:          streamHandler,
		RelayHub:               relayHub,
	}
}

// promptServiceHolder breaks the construction cycle between the relay hub
// (needs a cancel sink) and the prompt service (needs the hub).
type promptServiceHolder struct {
	svc service.IPromptService
}

func (h *promptServiceHolder) set(svc service.IPromptService) { h.svc = svc }
func (h *promptServiceHolder) get() service.IPromptService    { return h.svc }
