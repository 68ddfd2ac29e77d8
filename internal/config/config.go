package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the chat service.
type Config struct {
	AppName               string
	AppEnv                string
	AppPort               string
	DatabaseURL           string
	RedisURL              string
	RedisPrefix           string
	NATSURL               string
	AMQPURL               string
	AMQPExchange          string
	JWTSecret             string
	SyncSecret            string
	SyncTokenTTL          time.Duration
	SyncChannel           string
	SyncPullLimit         int
	RateLimitMax          int
	RateLimitWindow       time.Duration
	ParticipantActiveSpan time.Duration
	BlockedWordsCacheTTL  time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	v.SetDefault("app.name", "GEMA Live Chat")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("redis.prefix", "gema:livechat")
	v.SetDefault("amqp.exchange", "livechat.events")
	v.SetDefault("sync.token_ttl", "24h")
	v.SetDefault("sync.channel", "gema:livechat")
	v.SetDefault("sync.pull_limit", 500)
	v.SetDefault("ratelimit.max", 1)
	v.SetDefault("ratelimit.window", "1s")
	v.SetDefault("participants.active_window", "5m")
	v.SetDefault("blocked_words.cache_ttl", "10m")

	tokenTTL, err := parseDuration(v, "sync.token_ttl")
	if err != nil {
		return Config{}, err
	}
	window, err := parseDuration(v, "ratelimit.window")
	if err != nil {
		return Config{}, err
	}
	activeSpan, err := parseDuration(v, "participants.active_window")
	if err != nil {
		return Config{}, err
	}
	wordsTTL, err := parseDuration(v, "blocked_words.cache_ttl")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:               v.GetString("app.name"),
		AppEnv:                v.GetString("app.env"),
		AppPort:               v.GetString("app.port"),
		DatabaseURL:           v.GetString("database.url"),
		RedisURL:              v.GetString("redis.url"),
		RedisPrefix:           v.GetString("redis.prefix"),
		NATSURL:               v.GetString("nats.url"),
		AMQPURL:               v.GetString("amqp.url"),
		AMQPExchange:          v.GetString("amqp.exchange"),
		JWTSecret:             v.GetString("jwt.secret"),
		SyncSecret:            v.GetString("sync.secret"),
		SyncTokenTTL:          tokenTTL,
		SyncChannel:           v.GetString("sync.channel"),
		SyncPullLimit:         v.GetInt("sync.pull_limit"),
		RateLimitMax:          v.GetInt("ratelimit.max"),
		RateLimitWindow:       window,
		ParticipantActiveSpan: activeSpan,
		BlockedWordsCacheTTL:  wordsTTL,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}
	// The sync secret may be absent at boot; the token endpoint reports it.
	if cfg.SyncSecret != "" && cfg.SyncSecret == cfg.JWTSecret {
		return Config{}, fmt.Errorf("sync secret must differ from the session secret")
	}

	if cfg.SyncPullLimit <= 0 {
		cfg.SyncPullLimit = 500
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 1
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return parsed, nil
}
