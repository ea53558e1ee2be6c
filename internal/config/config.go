package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"

	"github.com/streamware/chat-relay/internal/ratelimit"
	"github.com/streamware/chat-relay/internal/scheduler"
)

// Config is the full environment surface of the relay. Only the chat
// webhook is required; leaving DATABASE_DSN, REDIS_URL or RABBITMQ_URL
// empty disables the journal, the shared history store and the broker
// ingest respectively.
type Config struct {
	ChatWebhookURL string `env:"CHAT_WEBHOOK_URL,required=true"`

	DatabaseDSN string `env:"DATABASE_DSN"`
	RedisURL    string `env:"REDIS_URL"`
	RabbitMQURL string `env:"RABBITMQ_URL"`

	MinIntervalSeconds  int `env:"MIN_INTERVAL_SECONDS,default=1"`
	WindowSeconds       int `env:"WINDOW_SECONDS,default=600"`
	MaxPerWindow        int `env:"MAX_PER_WINDOW,default=10"`
	CooldownSeconds     int `env:"COOLDOWN_SECONDS,default=5"`
	DedupeWindowSeconds int `env:"DEDUPE_WINDOW_SECONDS,default=30"`
	BurstSpanSeconds    int `env:"BURST_SPAN_SECONDS,default=0"`

	ProcessingIntervalMS int `env:"PROCESSING_INTERVAL_MS,default=100"`
	MaxQueueSize         int `env:"MAX_QUEUE_SIZE,default=100"`
	RetryAttempts        int `env:"RETRY_ATTEMPTS,default=3"`
	RetryDelayMS         int `env:"RETRY_DELAY_MS,default=1000"`

	IngestRatePerSec float64 `env:"INGEST_RATE_PER_SEC,default=20"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) LimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		MinInterval:  time.Duration(c.MinIntervalSeconds) * time.Second,
		Window:       time.Duration(c.WindowSeconds) * time.Second,
		MaxPerWindow: c.MaxPerWindow,
		Cooldown:     time.Duration(c.CooldownSeconds) * time.Second,
		DedupeWindow: time.Duration(c.DedupeWindowSeconds) * time.Second,
		BurstSpan:    time.Duration(c.BurstSpanSeconds) * time.Second,
	}
}

func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		ProcessingInterval: time.Duration(c.ProcessingIntervalMS) * time.Millisecond,
		MaxQueueSize:       c.MaxQueueSize,
		RetryAttempts:      c.RetryAttempts,
		RetryDelay:         time.Duration(c.RetryDelayMS) * time.Millisecond,
	}
}
