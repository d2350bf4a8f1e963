package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/npezzotti/bidroom/internal/server"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "BIDROOM"

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NatsConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// HandshakeConfig throttles websocket upgrades per client IP.
type HandshakeConfig struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

type Config struct {
	ServerAddr     string          `mapstructure:"addr"`
	DatabaseDSN    string          `mapstructure:"dsn"`
	SigningSecret  string          `mapstructure:"signing-key"`
	AllowedOrigins []string        `mapstructure:"allowed-origins"`
	LogLevel       string          `mapstructure:"log-level"`
	NotifyToken    string          `mapstructure:"notify-token"`
	Redis          RedisConfig     `mapstructure:"redis"`
	Nats           NatsConfig      `mapstructure:"nats"`
	Handshake      HandshakeConfig `mapstructure:"handshake"`
	Chat           server.Options  `mapstructure:"chat"`

	SigningKey []byte `mapstructure:"-"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"addr":               "addr",
	"dsn":                "dsn",
	"signing-key":        "signing-key",
	"allowed-origins":    "allowed-origins",
	"log-level":          "log-level",
	"notify-token":       "notify-token",
	"redis-addr":         "redis.addr",
	"redis-password":     "redis.password",
	"redis-db":           "redis.db",
	"nats-url":           "nats.url",
	"nats-subject":       "nats.subject",
	"handshake-rate":     "handshake.rate",
	"handshake-burst":    "handshake.burst",
	"heartbeat-interval": "chat.heartbeat-interval",
	"stale-after":        "chat.stale-after",
	"max-violations":     "chat.max-violations",
	"max-text-length":    "chat.max-text-length",
	"max-attachments":    "chat.max-attachments",
	"check-timeout":      "chat.check-timeout",
}

func registerFlags(fs *pflag.FlagSet) {
	opts := server.DefaultOptions()

	fs.String("config", "", "path to a YAML config file")
	fs.String("addr", "localhost:8000", "server address")
	fs.String("dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	fs.String("signing-key", "", "base64 encoded signing key")
	fs.StringSlice("allowed-origins", nil, "comma-separated list of allowed origins")
	fs.String("log-level", "info", "log level")
	fs.String("notify-token", "", "shared secret for the internal notification endpoint, empty disables it")
	fs.String("redis-addr", "", "redis address for shared rate limit counters, empty keeps them in memory")
	fs.String("redis-password", "", "redis password")
	fs.Int("redis-db", 0, "redis database")
	fs.String("nats-url", "", "nats server url, empty disables the notification subscriber")
	fs.String("nats-subject", "bidroom.notifications", "nats subject carrying user notifications")
	fs.Float64("handshake-rate", 5, "websocket handshakes per second per client ip")
	fs.Int("handshake-burst", 10, "websocket handshake burst per client ip")
	fs.Duration("heartbeat-interval", opts.HeartbeatInterval, "interval between heartbeats")
	fs.Duration("stale-after", opts.StaleAfter, "inactivity after which a connection is closed")
	fs.Int("max-violations", opts.MaxViolations, "policy violations before a connection is closed")
	fs.Int("max-text-length", opts.MaxTextLength, "maximum message length in characters")
	fs.Int("max-attachments", opts.MaxAttachments, "maximum attachments per message")
	fs.Duration("check-timeout", opts.CheckTimeout, "timeout for rate limit and permission checks")
}

// Load parses args into fs and resolves the configuration. Precedence is
// flags, then BIDROOM_* environment variables, then the config file.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %q: %w", name, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{Chat: server.DefaultOptions()}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func (c *Config) validate() error {
	if c.ServerAddr == "" {
		return errors.New("server address cannot be empty")
	}
	if c.DatabaseDSN == "" {
		return errors.New("database DSN cannot be empty")
	}
	if c.SigningSecret == "" {
		return errors.New("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(c.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = signingKey

	if c.Redis.Addr == "" && c.Redis.Password != "" {
		return errors.New("redis password set without a redis address")
	}
	if c.Handshake.Rate <= 0 || c.Handshake.Burst < 1 {
		return fmt.Errorf("invalid handshake limit: %v/s burst %d", c.Handshake.Rate, c.Handshake.Burst)
	}

	return nil
}
