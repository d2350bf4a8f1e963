package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/npezzotti/bidroom/internal/ratelimit"
	"github.com/npezzotti/bidroom/internal/server"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "c29tZV9zZWNyZXQ="

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	return Load(pflag.NewFlagSet("test", pflag.ContinueOnError), args)
}

func TestLoad(t *testing.T) {
	tcases := []struct {
		name string
		args []string
		err  bool
	}{
		{
			name: "valid config",
			args: []string{"--signing-key", testKey},
		},
		{
			name: "empty address",
			args: []string{"--signing-key", testKey, "--addr", ""},
			err:  true,
		},
		{
			name: "empty DSN",
			args: []string{"--signing-key", testKey, "--dsn", ""},
			err:  true,
		},
		{
			name: "empty signing key",
			args: []string{},
			err:  true,
		},
		{
			name: "signing key not base64",
			args: []string{"--signing-key", "not base64!"},
			err:  true,
		},
		{
			name: "redis password without address",
			args: []string{"--signing-key", testKey, "--redis-password", "secret"},
			err:  true,
		},
		{
			name: "invalid handshake burst",
			args: []string{"--signing-key", testKey, "--handshake-burst", "0"},
			err:  true,
		},
		{
			name: "unknown flag",
			args: []string{"--nope"},
			err:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := load(t, tc.args...)
			if tc.err {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "localhost:8000", cfg.ServerAddr)
			assert.Equal(t, []byte("some_secret"), cfg.SigningKey)
			assert.Equal(t, server.DefaultOptions(), cfg.Chat)
		})
	}
}

func TestLoad_Flags(t *testing.T) {
	cfg, err := load(t,
		"--signing-key", testKey,
		"--addr", ":9000",
		"--allowed-origins", "https://a.example,https://b.example",
		"--redis-addr", "localhost:6379",
		"--heartbeat-interval", "30s",
		"--max-violations", "5",
	)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Chat.HeartbeatInterval)
	assert.Equal(t, 5, cfg.Chat.MaxViolations)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("BIDROOM_SIGNING_KEY", testKey)
	t.Setenv("BIDROOM_REDIS_ADDR", "redis:6379")
	t.Setenv("BIDROOM_NATS_URL", "nats://nats:4222")
	t.Setenv("BIDROOM_STALE_AFTER", "2m")

	cfg, err := load(t, "--addr", ":7000")
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.ServerAddr)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "nats://nats:4222", cfg.Nats.URL)
	assert.Equal(t, "bidroom.notifications", cfg.Nats.Subject)
	assert.Equal(t, 5*time.Minute, cfg.Chat.StaleAfter, "expected env to be keyed by config path, not flag name")
}

func TestLoad_EnvNested(t *testing.T) {
	t.Setenv("BIDROOM_SIGNING_KEY", testKey)
	t.Setenv("BIDROOM_CHAT_STALE_AFTER", "2m")

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Chat.StaleAfter)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bidroom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
signing-key: c29tZV9zZWNyZXQ=
notify-token: internal
chat:
  max-text-length: 2000
  limits:
    typing:
      window: 5s
      max: 10
`), 0o600))

	cfg, err := load(t, "--config", path)
	require.NoError(t, err)

	assert.Equal(t, "internal", cfg.NotifyToken)
	assert.Equal(t, 2000, cfg.Chat.MaxTextLength)
	assert.Equal(t, ratelimit.Rule{Window: 5 * time.Second, Max: 10}, cfg.Chat.Limits[server.ActionTyping])
	assert.Equal(t, server.DefaultOptions().Limits[server.ActionSendMessage], cfg.Chat.Limits[server.ActionSendMessage],
		"expected unspecified limits to keep their defaults")

	_, err = load(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
