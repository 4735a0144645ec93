// Package config defines the engine's runtime configuration: store
// backend, broker backend, and observability settings, loaded from a
// file plus environment overrides via viper and merged over defaults
// the way kernel.Config does for the agent kernel.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StoreConfig selects and tunes the workflow.Store backend.
type StoreConfig struct {
	// Backend is "memory" or "redis".
	Backend string `mapstructure:"backend"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// DefaultStoreConfig returns an in-memory store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend: "memory",
		RedisDB: 0,
	}
}

// Merge applies non-zero values from source into c.
func (c *StoreConfig) Merge(source *StoreConfig) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.RedisAddr != "" {
		c.RedisAddr = source.RedisAddr
	}
	if source.RedisPassword != "" {
		c.RedisPassword = source.RedisPassword
	}
	if source.RedisDB != 0 {
		c.RedisDB = source.RedisDB
	}
}

// BrokerConfig selects and tunes the workflow.Broker backend.
type BrokerConfig struct {
	// Backend is "memory" or "nats".
	Backend string `mapstructure:"backend"`

	NATSURL         string   `mapstructure:"nats_url"`
	DefaultSubCount int      `mapstructure:"default_sub_count"`
	InboundStreams  []string `mapstructure:"inbound_streams"`
}

// DefaultBrokerConfig returns an in-memory broker configuration.
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		Backend:         "memory",
		DefaultSubCount: 4,
	}
}

// Merge applies non-zero values from source into c.
func (c *BrokerConfig) Merge(source *BrokerConfig) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.NATSURL != "" {
		c.NATSURL = source.NATSURL
	}
	if source.DefaultSubCount > 0 {
		c.DefaultSubCount = source.DefaultSubCount
	}
	if len(source.InboundStreams) > 0 {
		c.InboundStreams = source.InboundStreams
	}
}

// EngineConfig holds initialization parameters for the workflow engine
// and its collaborators, mirroring kernel.Config's per-subsystem
// section-plus-Merge shape.
type EngineConfig struct {
	Partitions int `mapstructure:"partitions"`

	TickInterval time.Duration `mapstructure:"tick_interval"`

	Store  StoreConfig  `mapstructure:"store"`
	Broker BrokerConfig `mapstructure:"broker"`

	MetricsAddr string `mapstructure:"metrics_addr"`
	LogLevel    string `mapstructure:"log_level"`
}

// DefaultEngineConfig returns an EngineConfig with sensible defaults:
// in-memory store and broker, a one-second trigger sweep, metrics
// exposed on :9090.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Partitions:   0, // 0 means runtime.NumCPU(), resolved by workflow.NewEngine
		TickInterval: time.Second,
		Store:        DefaultStoreConfig(),
		Broker:       DefaultBrokerConfig(),
		MetricsAddr:  ":9090",
		LogLevel:     "info",
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *EngineConfig) Merge(source *EngineConfig) {
	if source.Partitions > 0 {
		c.Partitions = source.Partitions
	}
	if source.TickInterval > 0 {
		c.TickInterval = source.TickInterval
	}
	if source.MetricsAddr != "" {
		c.MetricsAddr = source.MetricsAddr
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
	c.Store.Merge(&source.Store)
	c.Broker.Merge(&source.Broker)
}

// Load reads configuration from path (if non-empty), environment
// variables prefixed FLOW_, and defaults, in viper's usual precedence
// order (explicit Set > flag > env > config file > default). Grounded
// on 88lin-divinesense's cmd/divinesense/main.go viper wiring: env
// prefix binding plus a key replacer so nested keys like store.backend
// map to FLOW_STORE_BACKEND.
func Load(path string) (*EngineConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("flow")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range []string{
		"partitions", "tick_interval", "metrics_addr", "log_level",
		"store.backend", "store.redis_addr", "store.redis_password", "store.redis_db",
		"broker.backend", "broker.nats_url", "broker.default_sub_count", "broker.inbound_streams",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := DefaultEngineConfig()
	var loaded EngineConfig
	if err := v.Unmarshal(&loaded); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Merge(&loaded)
	return &cfg, nil
}
