package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/podushkina/meetscribe/internal/api"
	"github.com/podushkina/meetscribe/internal/app"
	"github.com/podushkina/meetscribe/internal/config"
	"github.com/podushkina/meetscribe/internal/handlers"
	"github.com/podushkina/meetscribe/internal/observability"
	"github.com/podushkina/meetscribe/internal/task"
	"github.com/podushkina/meetscribe/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, "meetscribe-server")
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	log.Println("Connected to Redis and database")

	pool := worker.NewPool(a.Queue, cfg.WorkerCount)
	pool.Register(task.KindTranscription, handlers.Transcription(a.Pipeline, a.Blobs))
	pool.Start(ctx)

	handler := api.NewHandler(api.Deps{
		Queue:          a.Queue,
		Pipeline:       a.Pipeline,
		Blobs:          a.Blobs,
		Meetings:       a.Meetings,
		Guard:          a.Guard,
		Metrics:        observability.Default,
		PollInterval:   cfg.PollInterval,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if cfg.JWTSecret == "" {
		log.Println("MEETSCRIBE_JWT_SECRET not set, trusting X-User-ID headers")
	}
	router := api.NewRouter(handler, []byte(cfg.JWTSecret))

	// No write timeout: uploads and the task event stream are long-lived.
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	pool.Stop()
	if err := a.Close(shutdownCtx); err != nil {
		log.Printf("Close error: %v", err)
	}
	log.Println("Server stopped")
}
