package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/relaykit/relay/internal/admin"
	"github.com/relaykit/relay/internal/broker"
	"github.com/relaykit/relay/internal/config"
	"github.com/relaykit/relay/internal/middleware"
	"github.com/relaykit/relay/internal/mirror"
	"github.com/relaykit/relay/internal/ws"
)

// drainTimeout bounds the outbound queue drain during graceful shutdown.
const drainTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Broker kernel
	registry := broker.NewRegistry(cfg.Broker())

	// Kafka mirror (optional)
	var kafkaMirror *mirror.Mirror
	if len(cfg.KafkaBrokers) > 0 {
		kafkaMirror, err = mirror.New(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
		if err != nil {
			log.Fatalf("mirror: %v", err)
		}
		kafkaMirror.Attach(registry)
		log.Printf("mirror: publishing events to kafka brokers %v", cfg.KafkaBrokers)
	}

	// Router
	r := mux.NewRouter()
	r.Use(middleware.Recovery(cfg.DevMode))
	r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	adminHandlers := admin.NewHandlers(registry)
	adminHandlers.RegisterRoutes(r)

	wsHandler := ws.NewHandler(registry, cfg.AllowedOrigins)
	wsHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:           cfg.Addr(),
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("Shutting down server...")
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		wsHandler.Shutdown(drainCtx)

		if kafkaMirror != nil {
			if err := kafkaMirror.Close(); err != nil {
				log.Printf("mirror: close: %v", err)
			}
		}

		shutdownCtx, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelSrv()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("relay listening on %s (queue=%d ring=%d policy=%s)",
		cfg.Addr(), cfg.MaxQueueSize, cfg.RingBufferSize, cfg.BackpressurePolicy)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server: %v", err)
	}
}
