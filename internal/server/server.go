package server

import (
	"log"

	"ai-chat-gateway/internal/bootstrap"
	"ai-chat-gateway/internal/config"
	"ai-chat-gateway/internal/pkg/serverutils"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	// Initialize Fiber App
	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // 1MB; prompt bodies only, attachments never transit here
	})

	// Middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CorsAllowedOrigins,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-CSRF-Token",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization",
	}))

	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware())

	app.Use(serverutils.ErrorHandlerMiddleware())

	// Routes
	registerRoutes(app, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	log.Printf("✅ Gateway is running on http://localhost:%s", s.cfg.App.Port)
	return s.app.Listen(":" + s.cfg.App.Port)
}

func registerRoutes(app *fiber.App, c *bootstrap.Container) {
	api := app.Group("/api")

	// Session endpoints: refresh and logout authenticate via the refresh
	// cookie itself, /me needs a live access token.
	c.SessionController.RegisterRoutes(api, serverutils.AuthMiddleware(c.Verifier))

	// Stream handshake does its own token check before upgrading.
	c.StreamHandler.RegisterRoutes(api)

	// Prompt intake: access token plus CSRF double-submit.
	authed := api.Group("", serverutils.AuthMiddleware(c.Verifier), serverutils.CSRFMiddleware())
	c.ConversationController.RegisterRoutes(authed)

	// Operational introspection, admins only.
	admin := api.Group("/admin", serverutils.AuthMiddleware(c.Verifier), serverutils.AdminOnly())
	admin.Get("/chat/:conversationId/watchers", c.StreamHandler.Watchers)
}
