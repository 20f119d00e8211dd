package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	Subscriber SubscriberConfig `mapstructure:"subscriber"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Workers    WorkerConfig     `mapstructure:"workers"`
	Router     RouterConfig     `mapstructure:"router"`
	Tracer     TracerConfig     `mapstructure:"tracer"`
	Session    SessionConfig    `mapstructure:"session"`
	Shutdown   ShutdownConfig   `mapstructure:"shutdown"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type BrokerConfig struct {
	// Driver selects the broker implementation: "redis" or "nats".
	Driver   string   `mapstructure:"driver"`
	URL      string   `mapstructure:"url"`
	Channels []string `mapstructure:"channels"`
}

type SubscriberConfig struct {
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	// RetryCeiling is the number of consecutive connect failures after
	// which the service reports degraded mode. Retries continue at the
	// max backoff; the process never exits over broker loss.
	RetryCeiling int `mapstructure:"retry_ceiling"`
}

type QueueConfig struct {
	CriticalCapacity int `mapstructure:"critical_capacity"`
	HighCapacity     int `mapstructure:"high_capacity"`
	NormalCapacity   int `mapstructure:"normal_capacity"`
	LowCapacity      int `mapstructure:"low_capacity"`
}

type WorkerConfig struct {
	Count int `mapstructure:"count"`
}

type RouterConfig struct {
	DegradeAfter int           `mapstructure:"degrade_after"`
	FailAfter    int           `mapstructure:"fail_after"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
}

type TracerConfig struct {
	Buffer   int `mapstructure:"buffer"`
	MaxFlows int `mapstructure:"max_flows"`
}

type SessionConfig struct {
	SendBuffer   int           `mapstructure:"send_buffer"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

type ShutdownConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("broker.driver", "redis")
	v.SetDefault("broker.url", "redis://localhost:6379/0")
	v.SetDefault("broker.channels", []string{
		"tickstock.events.patterns",
		"tickstock.events.patterns.daily",
		"tickstock.events.patterns.intraday",
		"tickstock.events.patterns.combo",
		"tickstock.events.indicators",
		"tickstock.ticks",
	})
	v.SetDefault("subscriber.initial_backoff", "1s")
	v.SetDefault("subscriber.max_backoff", "60s")
	v.SetDefault("subscriber.retry_ceiling", 10)
	v.SetDefault("queue.critical_capacity", 1000)
	v.SetDefault("queue.high_capacity", 2000)
	v.SetDefault("queue.normal_capacity", 5000)
	v.SetDefault("queue.low_capacity", 10000)
	v.SetDefault("workers.count", 8)
	v.SetDefault("router.degrade_after", 3)
	v.SetDefault("router.fail_after", 5)
	v.SetDefault("router.cooldown", "30s")
	v.SetDefault("tracer.buffer", 4096)
	v.SetDefault("tracer.max_flows", 10000)
	v.SetDefault("session.send_buffer", 64)
	v.SetDefault("session.write_timeout", "10s")
	v.SetDefault("session.ping_interval", "30s")
	v.SetDefault("shutdown.grace_period", "10s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tickstream")
	}

	// Environment variables override
	v.SetEnvPrefix("TICKSTREAM")
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be positive, got %d", c.Workers.Count)
	}
	if c.Broker.Driver != "redis" && c.Broker.Driver != "nats" {
		return fmt.Errorf("broker.driver must be redis or nats, got %q", c.Broker.Driver)
	}
	if len(c.Broker.Channels) == 0 {
		return fmt.Errorf("broker.channels must not be empty")
	}
	for tier, capacity := range map[string]int{
		"queue.critical_capacity": c.Queue.CriticalCapacity,
		"queue.high_capacity":     c.Queue.HighCapacity,
		"queue.normal_capacity":   c.Queue.NormalCapacity,
		"queue.low_capacity":      c.Queue.LowCapacity,
	} {
		if capacity <= 0 {
			return fmt.Errorf("%s must be positive, got %d", tier, capacity)
		}
	}
	if c.Router.FailAfter < c.Router.DegradeAfter {
		return fmt.Errorf("router.fail_after (%d) must be >= router.degrade_after (%d)",
			c.Router.FailAfter, c.Router.DegradeAfter)
	}
	return nil
}

// TierCapacities returns the per-tier queue capacities in tier order
// (critical, high, normal, low).
func (q QueueConfig) TierCapacities() [4]int {
	return [4]int{q.CriticalCapacity, q.HighCapacity, q.NormalCapacity, q.LowCapacity}
}
