package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/relaykit/relay/internal/broker"
)

// Config is the process configuration, parsed once from the environment at
// startup. The kernel never reads the environment itself; it consumes the
// validated struct.
type Config struct {
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port string `env:"PORT" envDefault:"8080"`

	MaxQueueSize       int    `env:"MAX_QUEUE_SIZE" envDefault:"1000"`
	RingBufferSize     int    `env:"RING_BUFFER_SIZE" envDefault:"100"`
	BackpressurePolicy string `env:"BACKPRESSURE_POLICY" envDefault:"DROP_OLDEST"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopicPrefix string   `env:"KAFKA_TOPIC_PREFIX" envDefault:"relay."`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"100"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"200"`

	DevMode bool `env:"DEV_MODE" envDefault:"false"`
}

// Load parses and validates the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the kernel cannot run with.
func (c *Config) Validate() error {
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("MAX_QUEUE_SIZE must be positive, got %d", c.MaxQueueSize)
	}
	if c.RingBufferSize < 0 {
		return fmt.Errorf("RING_BUFFER_SIZE must not be negative, got %d", c.RingBufferSize)
	}
	if !broker.ValidPolicy(broker.Policy(c.BackpressurePolicy)) {
		return fmt.Errorf("unknown BACKPRESSURE_POLICY %q", c.BackpressurePolicy)
	}
	return nil
}

// Broker returns the kernel configuration slice of the process config.
func (c *Config) Broker() broker.Config {
	return broker.Config{
		MaxQueueSize:   c.MaxQueueSize,
		RingBufferSize: c.RingBufferSize,
		Policy:         broker.Policy(c.BackpressurePolicy),
	}
}

// Addr returns the HTTP bind address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}
