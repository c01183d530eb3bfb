package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"playsync-service/internal/api/routes"
	"playsync-service/internal/config"
	"playsync-service/internal/database"
	"playsync-service/internal/events"
	"playsync-service/internal/history"
	"playsync-service/internal/session"
	"playsync-service/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	slog.Info("Starting playback sync server")

	// Initialize Redis connection
	redisClient, err := database.NewRedisConnection(&cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Session store over Redis
	store := session.NewStore(redisClient, cfg.Session.TTL)

	// Initialize WebSocket hub
	hub := websocket.NewHub(store)

	// Optional device session audit log
	var recorder *history.Recorder
	if cfg.MySQL.DSN != "" {
		db, err := database.NewMySQLConnection(cfg.MySQL.DSN)
		if err != nil {
			slog.Error("Failed to connect to MySQL", "error", err)
			os.Exit(1)
		}
		recorder, err = history.NewRecorder(db)
		if err != nil {
			slog.Error("Failed to initialize session recorder", "error", err)
			os.Exit(1)
		}
		hub.SetSessionRecorder(recorder)
	}

	// Optional Kafka event publishing
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			slog.Error("Failed to connect to Kafka", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		hub.SetEventPublisher(publisher)
	}

	go hub.Run()

	// Initialize router with all dependencies
	router := routes.NewRouter(hub, store, redisClient, recorder, cfg.JWT.Secret)
	router.SetupRoutes()

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop WebSocket hub
	hub.Stop()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped")
}
