package handler

import (
	"ai-chat-gateway/internal/pkg/logger"
	"ai-chat-gateway/internal/pkg/serverutils"
	"ai-chat-gateway/internal/relay"
	"ai-chat-gateway/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// StreamHandler upgrades authenticated requests to websocket connections and
// attaches them to the relay hub for their conversation.
type StreamHandler struct {
	verifier *token.Verifier
	hub      *relay.Hub
	logger   logger.ILogger
}

func NewStreamHandler(verifier *token.Verifier, hub *relay.Hub, log logger.ILogger) *StreamHandler {
	return &StreamHandler{
		verifier: verifier,
		hub:      hub,
		logger:   log,
	}
}

// ServeStream handles the websocket handshake for one conversation stream.
// The access token is checked before the upgrade so a bad credential costs a
// plain 401 instead of a torn-down socket.
func (h *StreamHandler) ServeStream(c *fiber.Ctx) error {
	conversationID := c.Params("conversationId")
	if conversationID == "" {
		return fiber.ErrBadRequest
	}

	tokenStr := serverutils.ExtractAccessToken(c)
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token (cookie, query 'token' or Header 'Authorization')"})
	}

	claims, err := h.verifier.Verify(tokenStr)
	if err != nil {
		h.logger.Warn("StreamHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if claims.TokenType != token.TokenTypeAccess {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	subject := claims.Subject

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("StreamHandler", "Starting stream session", map[string]interface{}{"conversation_id": conversationID, "subject": subject})
			relay.ServeStream(h.hub, conn, conversationID, subject)
			h.logger.Info("StreamHandler", "Stream session ended", map[string]interface{}{"conversation_id": conversationID, "subject": subject})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// Watchers reports how many sockets this instance has attached to a
// conversation.
func (h *StreamHandler) Watchers(c *fiber.Ctx) error {
	conversationID := c.Params("conversationId")
	if conversationID == "" {
		return fiber.ErrBadRequest
	}
	return c.JSON(fiber.Map{
		"success": true,
		"code":    200,
		"message": "Watcher count",
		"data": fiber.Map{
			"conversation_id": conversationID,
			"watchers":        h.hub.WatcherCount(conversationID),
		},
	})
}

// RegisterRoutes registers the stream routes.
func (h *StreamHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/chat/:conversationId/stream", h.ServeStream)
}
