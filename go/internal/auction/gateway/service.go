package gateway

import (
	"context"
	"net/http"

	"github.com/mcdev12/loadauction/go/internal/auction/room"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Service is the auction gateway: websocket sessions in front of the room registry
type Service struct {
	registry          *room.Registry
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	health            http.Handler
	config            Config
}

type Config struct {
	ConnectionConfig ConnectionConfig
	AllowedOrigins   []string
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		AllowedOrigins:   []string{"*"},
	}
}

// NewService wires the gateway around registry. health serves /health; nil means a
// plain OK.
func NewService(config Config, registry *room.Registry, health http.Handler) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, registry)

	if health == nil {
		health = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("OK")); err != nil {
				log.Error().Err(err).Msg("failed to write health check response")
			}
		})
	}

	return &Service{
		registry:          registry,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(registry),
		health:            health,
		config:            config,
	}
}

// Start runs the room sweeper until ctx is cancelled, then disconnects every client
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting auction gateway service")

	s.registry.Run(ctx)

	log.Info().Msg("auction gateway service shutting down")
	return s.Stop()
}

// Stop closes every websocket connection
func (s *Service) Stop() error {
	s.connectionManager.CloseAll()
	log.Info().Msg("auction gateway service stopped")
	return nil
}

// RegisterRoutes registers the websocket and HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.Handle("GET /health", s.health)
	log.Info().Msg("auction gateway routes registered")
}

// Handler returns the full HTTP handler: routes, CORS and h2c
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.Stats()
}
