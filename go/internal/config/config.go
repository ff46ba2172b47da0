package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/loadauction/go/internal/auction/gateway"
	"github.com/mcdev12/loadauction/go/internal/auction/publisher"
	"github.com/mcdev12/loadauction/go/internal/auction/room"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		LogLevel        string        `yaml:"log_level"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	Auction struct {
		Window        time.Duration `yaml:"window"`
		TickInterval  time.Duration `yaml:"tick_interval"`
		SentinelBid   float64       `yaml:"sentinel_bid"`
		RoomTTL       time.Duration `yaml:"room_ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"auction"`

	WebSocket struct {
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		MaxMessageSize int64         `yaml:"max_message_size"`
		SendBufferSize int           `yaml:"send_buffer_size"`
	} `yaml:"websocket"`

	NATS struct {
		URL             string        `yaml:"url"`
		StreamName      string        `yaml:"stream_name"`
		SubjectPrefix   string        `yaml:"subject_prefix"`
		MaxAge          time.Duration `yaml:"max_age"`
		PublishBuffer   int           `yaml:"publish_buffer"`
		PublishRetries  int           `yaml:"publish_retries"`
		PublishTimeout  time.Duration `yaml:"publish_timeout"`
		ReconnectWait   time.Duration `yaml:"reconnect_wait"`
		DuplicateWindow time.Duration `yaml:"duplicate_window"`
	} `yaml:"nats"`
}

// Default returns the configuration used when no file or env overrides exist
func Default() *Config {
	var c Config

	c.Server.Port = "8080"
	c.Server.LogLevel = "info"
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Server.AllowedOrigins = []string{"*"}

	rc := room.DefaultConfig()
	c.Auction.Window = rc.Window
	c.Auction.TickInterval = rc.TickInterval
	c.Auction.SentinelBid = rc.SentinelBid
	c.Auction.RoomTTL = rc.RoomTTL
	c.Auction.SweepInterval = rc.SweepInterval

	cc := gateway.DefaultConnectionConfig()
	c.WebSocket.WriteTimeout = cc.WriteTimeout
	c.WebSocket.ReadTimeout = cc.ReadTimeout
	c.WebSocket.PingInterval = cc.PingInterval
	c.WebSocket.MaxMessageSize = cc.MaxMessageSize
	c.WebSocket.SendBufferSize = cc.SendBufferSize

	jc := publisher.DefaultJetStreamConfig()
	pc := publisher.DefaultConfig()
	c.NATS.URL = jc.URL
	c.NATS.StreamName = jc.StreamName
	c.NATS.SubjectPrefix = jc.SubjectPrefix
	c.NATS.MaxAge = jc.MaxAge
	c.NATS.ReconnectWait = jc.ReconnectWait
	c.NATS.DuplicateWindow = jc.DuplicateWindow
	c.NATS.PublishBuffer = pc.BufferSize
	c.NATS.PublishRetries = pc.MaxRetries
	c.NATS.PublishTimeout = pc.PublishTimeout

	return &c
}

// Load builds the configuration from defaults, then the YAML file at path, then
// environment variables. An empty path reads CONFIG_PATH, falling back to
// config.yaml; a missing default file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = getEnv("CONFIG_PATH", "")
		explicit = path != ""
	}
	if !explicit {
		path = defaultConfigPath
	}

	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	// WS_PORT wins over the generic PORT
	c.Server.Port = getEnv("WS_PORT", getEnv("PORT", c.Server.Port))
	c.Server.LogLevel = getEnv("LOG_LEVEL", c.Server.LogLevel)
	c.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	c.Auction.Window = getEnvAsDuration("AUCTION_WINDOW", c.Auction.Window)
	c.Auction.TickInterval = getEnvAsDuration("AUCTION_TICK_INTERVAL", c.Auction.TickInterval)
	c.Auction.SentinelBid = getEnvAsFloat("AUCTION_SENTINEL_BID", c.Auction.SentinelBid)
	c.Auction.RoomTTL = getEnvAsDuration("ROOM_TTL", c.Auction.RoomTTL)
	c.Auction.SweepInterval = getEnvAsDuration("ROOM_SWEEP_INTERVAL", c.Auction.SweepInterval)

	c.WebSocket.WriteTimeout = getEnvAsDuration("WS_WRITE_TIMEOUT", c.WebSocket.WriteTimeout)
	c.WebSocket.ReadTimeout = getEnvAsDuration("WS_READ_TIMEOUT", c.WebSocket.ReadTimeout)
	c.WebSocket.PingInterval = getEnvAsDuration("WS_PING_INTERVAL", c.WebSocket.PingInterval)
	c.WebSocket.MaxMessageSize = int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", int(c.WebSocket.MaxMessageSize)))
	c.WebSocket.SendBufferSize = getEnvAsInt("WS_SEND_BUFFER_SIZE", c.WebSocket.SendBufferSize)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.StreamName = getEnv("NATS_STREAM", c.NATS.StreamName)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)
	c.NATS.PublishBuffer = getEnvAsInt("NATS_PUBLISH_BUFFER", c.NATS.PublishBuffer)
	c.NATS.PublishRetries = getEnvAsInt("NATS_PUBLISH_RETRIES", c.NATS.PublishRetries)
}

// Validate rejects settings the auction cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if _, err := zerolog.ParseLevel(c.Server.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q: %w", c.Server.LogLevel, err))
	}
	if c.Auction.Window < time.Second {
		errs = append(errs, fmt.Errorf("auction window must be at least 1s, got %s", c.Auction.Window))
	}
	if c.Auction.TickInterval <= 0 {
		errs = append(errs, errors.New("auction tick interval must be positive"))
	}
	if c.Auction.RoomTTL < 0 || c.Auction.SweepInterval < 0 {
		errs = append(errs, errors.New("room ttl and sweep interval cannot be negative"))
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		errs = append(errs, errors.New("websocket timeouts and ping interval must be positive"))
	}
	if c.WebSocket.PingInterval >= c.WebSocket.ReadTimeout {
		errs = append(errs, errors.New("websocket ping interval must be shorter than the read timeout"))
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("websocket max message size must be positive"))
	}

	return errors.Join(errs...)
}

// LogLevel returns the parsed zerolog level; Validate has already checked it
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Server.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func (c *Config) Addr() string {
	return ":" + c.Server.Port
}

func (c *Config) PublishingEnabled() bool {
	return c.NATS.URL != ""
}

func (c *Config) RoomConfig() room.Config {
	return room.Config{
		Window:        c.Auction.Window,
		TickInterval:  c.Auction.TickInterval,
		SentinelBid:   c.Auction.SentinelBid,
		RoomTTL:       c.Auction.RoomTTL,
		SweepInterval: c.Auction.SweepInterval,
	}
}

func (c *Config) GatewayConfig() gateway.Config {
	gc := gateway.DefaultConfig()
	gc.ConnectionConfig.WriteTimeout = c.WebSocket.WriteTimeout
	gc.ConnectionConfig.ReadTimeout = c.WebSocket.ReadTimeout
	gc.ConnectionConfig.PingInterval = c.WebSocket.PingInterval
	gc.ConnectionConfig.MaxMessageSize = c.WebSocket.MaxMessageSize
	gc.ConnectionConfig.SendBufferSize = c.WebSocket.SendBufferSize
	gc.AllowedOrigins = c.Server.AllowedOrigins
	return gc
}

func (c *Config) JetStreamConfig() publisher.JetStreamConfig {
	jc := publisher.DefaultJetStreamConfig()
	jc.URL = c.NATS.URL
	jc.StreamName = c.NATS.StreamName
	jc.SubjectPrefix = c.NATS.SubjectPrefix
	jc.MaxAge = c.NATS.MaxAge
	jc.ReconnectWait = c.NATS.ReconnectWait
	jc.DuplicateWindow = c.NATS.DuplicateWindow
	return jc
}

func (c *Config) PublisherConfig() publisher.Config {
	pc := publisher.DefaultConfig()
	pc.BufferSize = c.NATS.PublishBuffer
	pc.MaxRetries = c.NATS.PublishRetries
	pc.PublishTimeout = c.NATS.PublishTimeout
	return pc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("45s") or a bare number of seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
