package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_PATH", "WS_PORT", "PORT", "LOG_LEVEL", "SHUTDOWN_TIMEOUT", "ALLOWED_ORIGINS",
		"AUCTION_WINDOW", "AUCTION_TICK_INTERVAL", "AUCTION_SENTINEL_BID", "ROOM_TTL",
		"ROOM_SWEEP_INTERVAL", "WS_WRITE_TIMEOUT", "WS_READ_TIMEOUT", "WS_PING_INTERVAL",
		"WS_MAX_MESSAGE_SIZE", "WS_SEND_BUFFER_SIZE", "NATS_URL", "NATS_STREAM",
		"NATS_SUBJECT_PREFIX", "NATS_PUBLISH_BUFFER", "NATS_PUBLISH_RETRIES",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
	assert.False(t, cfg.PublishingEnabled())

	rc := cfg.RoomConfig()
	assert.Equal(t, 45*time.Second, rc.Window)
	assert.Equal(t, time.Second, rc.TickInterval)
	assert.Equal(t, 1000000.0, rc.SentinelBid)
	assert.Equal(t, 30*time.Minute, rc.RoomTTL)

	assert.Equal(t, "AUCTION_EVENTS", cfg.JetStreamConfig().StreamName)
	assert.Equal(t, []string{"*"}, cfg.GatewayConfig().AllowedOrigins)
}

func TestLoad_PortPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		wsPort string
		port   string
		want   string
	}{
		{name: "default", want: ":8080"},
		{name: "port_only", port: "9000", want: ":9000"},
		{name: "ws_port_only", wsPort: "9100", want: ":9100"},
		{name: "ws_port_wins", wsPort: "9100", port: "9000", want: ":9100"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Chdir(t.TempDir())
			t.Setenv("WS_PORT", tc.wsPort)
			t.Setenv("PORT", tc.port)

			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.Addr())
		})
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: "7000"
  log_level: debug
auction:
  window: 30s
  room_ttl: 10m
websocket:
  send_buffer_size: 64
nats:
  url: nats://broker:4222
  subject_prefix: loads.auction
`)
	t.Setenv("AUCTION_WINDOW", "60")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Addr())
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel())
	assert.Equal(t, 60*time.Second, cfg.RoomConfig().Window)
	assert.Equal(t, 10*time.Minute, cfg.RoomConfig().RoomTTL)
	assert.Equal(t, 64, cfg.GatewayConfig().ConnectionConfig.SendBufferSize)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.GatewayConfig().AllowedOrigins)

	assert.True(t, cfg.PublishingEnabled())
	jc := cfg.JetStreamConfig()
	assert.Equal(t, "nats://broker:4222", jc.URL)
	assert.Equal(t, "loads.auction.winner", jc.Subject("winner"))
}

func TestLoad_ConfigPathEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", writeConfig(t, "server:\n  port: \"7100\"\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7100", cfg.Addr())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing_explicit_file", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("bad_yaml", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(writeConfig(t, "server: [unterminated"))
		require.Error(t, err)
	})

	t.Run("invalid_values", func(t *testing.T) {
		clearEnv(t)
		t.Chdir(t.TempDir())
		t.Setenv("LOG_LEVEL", "loud")
		t.Setenv("AUCTION_WINDOW", "500ms")

		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "log level")
		assert.Contains(t, err.Error(), "auction window")
	})
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{value: "", want: time.Minute},
		{value: "90s", want: 90 * time.Second},
		{value: "15", want: 15 * time.Second},
		{value: "soon", want: time.Minute},
	}

	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tc.value)
			assert.Equal(t, tc.want, getEnvAsDuration("TEST_DURATION", time.Minute))
		})
	}
}
