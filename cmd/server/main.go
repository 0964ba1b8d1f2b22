package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drawboard/internal/api"
	"drawboard/internal/canvas"
	"drawboard/internal/collaboration"
	"drawboard/internal/config"
	"drawboard/internal/telemetry"
)

func main() {
	log.Println("🚀 Starting drawboard server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Initialize Jaeger tracing first so all operations are traced
	jaegerShutdown, err := telemetry.InitJaeger("drawboard", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	// Room registry: rooms are created lazily on first join and live for
	// the process lifetime.
	registry := canvas.NewRegistry()

	// Session manager: the single event loop owning all room state.
	sessionManager := collaboration.NewSessionManager(registry, cfg.MaxStrokePoints)
	sessionManager.Start()

	wsHandler := collaboration.NewWebSocketHandler(sessionManager, cfg.DefaultRoom)
	handler := api.NewHandler(wsHandler, sessionManager)
	router := api.SetupRoutes(handler)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Server listening on http://%s", addr)
		log.Printf("   GET /ws?room=<name>  - join a drawing room (websocket)")
		log.Printf("   GET /api/rooms       - room stats")
		log.Printf("   GET /api/health      - health check")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	sessionManager.Shutdown()

	log.Println("✓ Server shutdown complete")
}
