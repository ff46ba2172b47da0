package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/mcdev12/loadauction/go/internal/auction/gateway"
	"github.com/mcdev12/loadauction/go/internal/auction/publisher"
	"github.com/mcdev12/loadauction/go/internal/auction/room"
	"github.com/mcdev12/loadauction/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel())

	log.Info().
		Str("addr", cfg.Addr()).
		Dur("window", cfg.Auction.Window).
		Bool("publishing", cfg.PublishingEnabled()).
		Msg("starting load auction gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()

	// Outcome publishing is optional; without NATS the rooms use a no-op publisher
	var (
		roomPublisher room.Publisher
		worker        *publisher.Worker
		jsPublisher   *publisher.JetStreamPublisher
	)
	if cfg.PublishingEnabled() {
		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		jsPublisher, err = publisher.NewJetStreamPublisher(connectCtx, cfg.JetStreamConfig())
		connectCancel()
		if err != nil {
			log.Fatal().Err(err).Str("nats_url", cfg.NATS.URL).Msg("failed to connect outcome publisher")
		}

		worker = publisher.NewWorker(jsPublisher, cfg.PublisherConfig(), clock)
		if err := worker.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start publisher worker")
		}
		roomPublisher = worker
	}

	var health http.Handler
	if worker != nil {
		health = publisher.NewHealthChecker(worker, jsPublisher)
	}

	registry := room.NewRegistry(cfg.RoomConfig(), clock, roomPublisher)
	gatewayService := gateway.NewService(cfg.GatewayConfig(), registry, health)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           gatewayService.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// stops room countdowns and disconnects websocket clients
	cancel()
	select {
	case <-serviceDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("gateway service did not stop before the shutdown timeout")
	}

	if worker != nil {
		if err := worker.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop publisher worker")
		}
	}
	if jsPublisher != nil {
		if err := jsPublisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close JetStream publisher")
		}
	}

	log.Info().Msg("load auction gateway shutdown complete")
}
