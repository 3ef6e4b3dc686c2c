package main

import (
	"context"
	"log"

	"ai-chat-gateway/internal/bootstrap"
	"ai-chat-gateway/internal/config"
	"ai-chat-gateway/internal/server"
	"ai-chat-gateway/internal/tracer"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)

	// 3. Start Background Services
	// Note: In a larger app, we might use an errgroup or supervisor here
	go func() {
		log.Println("Background: Starting Prompt Forwarder...")
		if err := container.ForwarderService.Consume(context.Background()); err != nil {
			log.Printf("Background Forwarder Error: %v", err)
		}
	}()
	go func() {
		log.Println("Background: Starting Chat Event Ingestion...")
		if err := container.IngestService.Start(context.Background()); err != nil {
			log.Printf("Background Ingest Error: %v", err)
		}
	}()

	// 4. Initialize Server
	srv := server.New(cfg, container)

	// 5. Run Server
	log.Fatal(srv.Run())
}
