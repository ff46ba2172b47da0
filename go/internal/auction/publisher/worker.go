package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/loadauction/go/internal/auction/events"
	"github.com/rs/zerolog/log"
)

type Config struct {
	BufferSize     int
	MaxRetries     int
	RetryDelay     time.Duration
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BufferSize:     1024,
		MaxRetries:     3,
		RetryDelay:     500 * time.Millisecond,
		PublishTimeout: 5 * time.Second,
	}
}

// Stats counts what the worker has done since it was created
type Stats struct {
	Published     uint64    `json:"published"`
	Failed        uint64    `json:"failed"`
	Dropped       uint64    `json:"dropped"`
	Pending       int       `json:"pending"`
	LastEventTime time.Time `json:"last_event_time"`
}

// Worker queues auction outcomes from rooms and hands them to an EventPublisher
// on its own goroutine. Rooms call Publish with their lock held, so Publish never
// blocks: a full queue drops the outcome.
type Worker struct {
	publisher EventPublisher
	config    Config
	clock     clockwork.Clock
	queue     chan Envelope

	mu            sync.Mutex
	running       bool
	stopChan      chan struct{}
	wg            sync.WaitGroup
	published     uint64
	failed        uint64
	dropped       uint64
	lastEventTime time.Time
}

func NewWorker(publisher EventPublisher, cfg Config, clock clockwork.Clock) *Worker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &Worker{
		publisher: publisher,
		config:    cfg,
		clock:     clock,
		queue:     make(chan Envelope, cfg.BufferSize),
		stopChan:  make(chan struct{}),
	}
}

// Publish wraps payload in an envelope and queues it
func (w *Worker) Publish(loadID string, eventType events.EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().
			Err(err).
			Str("load_id", loadID).
			Str("event_type", string(eventType)).
			Msg("failed to marshal auction outcome")
		return
	}

	env := Envelope{
		EventID:   uuid.New(),
		EventType: eventType,
		LoadID:    loadID,
		Timestamp: w.clock.Now().UTC(),
		Payload:   data,
	}

	select {
	case w.queue <- env:
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
		log.Warn().
			Str("load_id", loadID).
			Str("event_type", string(eventType)).
			Msg("publish queue full, dropping auction outcome")
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("publisher worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().
		Int("buffer_size", w.config.BufferSize).
		Int("max_retries", w.config.MaxRetries).
		Msg("publisher worker started")

	return nil
}

// Stop flushes what is already queued and waits for the worker to exit
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("publisher worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	log.Info().Msg("publisher worker stopped")
	return nil
}

func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Published:     w.published,
		Failed:        w.failed,
		Dropped:       w.dropped,
		Pending:       len(w.queue),
		LastEventTime: w.lastEventTime,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			w.flush()
			return
		case <-w.stopChan:
			w.flush()
			return
		case env := <-w.queue:
			w.process(ctx, env)
		}
	}
}

// flush drains the queue with a fresh context so shutdown still delivers
// outcomes that were already accepted.
func (w *Worker) flush() {
	for {
		select {
		case env := <-w.queue:
			w.process(context.Background(), env)
		default:
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, env Envelope) {
	err := w.publishWithRetry(ctx, env)

	w.mu.Lock()
	if err != nil {
		w.failed++
	} else {
		w.published++
		w.lastEventTime = w.clock.Now()
	}
	w.mu.Unlock()

	if err != nil {
		log.Error().
			Err(err).
			Str("event_id", env.EventID.String()).
			Str("event_type", string(env.EventType)).
			Str("load_id", env.LoadID).
			Msg("failed to publish auction outcome")
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, env Envelope) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.clock.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		err := w.publishOnce(ctx, env)
		if err == nil {
			return nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Str("event_id", env.EventID.String()).
			Int("attempt", attempt+1).
			Msg("failed to publish auction outcome, retrying")
	}

	return fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}

func (w *Worker) publishOnce(ctx context.Context, env Envelope) error {
	if w.config.PublishTimeout <= 0 {
		return w.publisher.Publish(ctx, env)
	}
	ctx, cancel := context.WithTimeout(ctx, w.config.PublishTimeout)
	defer cancel()
	return w.publisher.Publish(ctx, env)
}
