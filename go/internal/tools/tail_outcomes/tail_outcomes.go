package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/loadauction/go/clients/auction_client"
	"github.com/mcdev12/loadauction/go/internal/auction/events"
	"github.com/mcdev12/loadauction/go/internal/auction/publisher"
	"github.com/mcdev12/loadauction/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Tails auction outcomes from JetStream. For every winner it also asks the
// gateway for the load's final bids so operators can see the full field.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	zerolog.SetGlobalLevel(cfg.LogLevel())
	if !cfg.PublishingEnabled() {
		fmt.Fprintln(os.Stderr, "NATS_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumerCfg := publisher.DefaultConsumerConfig()
	consumerCfg.JetStream = cfg.JetStreamConfig()
	consumerCfg.DeliverAll = os.Getenv("TAIL_FROM_START") != ""

	consumer, err := publisher.NewOutcomeConsumer(ctx, consumerCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create consumer: %v\n", err)
		os.Exit(1)
	}
	defer consumer.Close()

	gatewayURL := os.Getenv("GATEWAY_URL")
	if gatewayURL == "" {
		gatewayURL = auction_client.DefaultBaseURL
	}
	client := auction_client.NewAuctionClient(gatewayURL)

	if err := consumer.Run(ctx, func(ctx context.Context, env publisher.Envelope) error {
		return printOutcome(ctx, client, env)
	}); err != nil {
		fmt.Fprintf(os.Stderr, "consume: %v\n", err)
		os.Exit(1)
	}
}

func printOutcome(ctx context.Context, client *auction_client.AuctionClient, env publisher.Envelope) error {
	switch env.EventType {
	case events.EventTypeBiddingStarted:
		log.Info().
			Str("load_id", env.LoadID).
			Time("at", env.Timestamp).
			Msg("bidding started")

	case events.EventTypeWinner:
		var w events.WinnerPayload
		if err := json.Unmarshal(env.Payload, &w); err != nil {
			return fmt.Errorf("decode winner: %w", err)
		}

		evt := log.Info().
			Str("load_id", w.LoadID).
			Str("winner_id", w.WinnerID).
			Float64("winning_bid", w.WinningBid).
			Time("at", env.Timestamp)

		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		state, err := client.LoadState(reqCtx, w.LoadID)
		switch {
		case err == nil:
			evt = evt.Int("bidders", len(state.Snapshot.Truckers)).Str("phase", string(state.Phase))
		case errors.Is(err, auction_client.ErrLoadNotFound):
			evt = evt.Bool("room_evicted", true)
		default:
			log.Warn().Err(err).Str("load_id", w.LoadID).Msg("could not fetch load state")
		}
		evt.Msg("auction won")

	default:
		log.Debug().Str("event_type", string(env.EventType)).Msg("ignoring outcome")
	}
	return nil
}
