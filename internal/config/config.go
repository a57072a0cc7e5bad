// Package config defines all configuration for the ingestion engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// any field overridable via INGESTD_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Venue   VenueConfig   `mapstructure:"venue"`
	Ring    RingConfig    `mapstructure:"ring"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// VenueConfig points at the exchange's streaming and REST endpoints and
// lists the symbols/streams to subscribe to on startup.
//
//   - StreamBaseURL:   wss://fstream.binance.com (USD-M futures streaming)
//   - RESTBaseURL:     https://fapi.binance.com (REST snapshot bootstrap)
//   - Symbols:         symbols whose depth stream should get a replica book
//   - Streams:         raw stream names (e.g. "btcusdt@aggTrade") subscribed
//     on connect, in addition to the depth streams implied by Symbols
//   - SnapshotLimit:   the `limit` query param on the REST depth snapshot
type VenueConfig struct {
	StreamBaseURL string        `mapstructure:"stream_base_url"`
	RESTBaseURL   string        `mapstructure:"rest_base_url"`
	Symbols       []string      `mapstructure:"symbols"`
	Streams       []string      `mapstructure:"streams"`
	SnapshotLimit int           `mapstructure:"snapshot_limit"`
	RESTTimeout   time.Duration `mapstructure:"rest_timeout"`
}

// RingConfig sizes the SPSC transport between the market agent and the
// dispatcher's consumer goroutine. Capacity is rounded up to a power of two.
type RingConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("INGESTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("venue.stream_base_url", "wss://fstream.binance.com")
	v.SetDefault("venue.rest_base_url", "https://fapi.binance.com")
	v.SetDefault("venue.snapshot_limit", 1000)
	v.SetDefault("venue.rest_timeout", 10*time.Second)
	v.SetDefault("ring.capacity", 4096)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Venue.StreamBaseURL == "" {
		return fmt.Errorf("venue.stream_base_url is required")
	}
	if c.Venue.RESTBaseURL == "" {
		return fmt.Errorf("venue.rest_base_url is required")
	}
	if len(c.Venue.Symbols) == 0 && len(c.Venue.Streams) == 0 {
		return fmt.Errorf("venue.symbols or venue.streams must list at least one stream")
	}
	if len(c.Venue.Symbols)+len(c.Venue.Streams) > 200 {
		return fmt.Errorf("venue: at most 200 streams per connection, got %d", len(c.Venue.Symbols)+len(c.Venue.Streams))
	}
	if c.Venue.SnapshotLimit <= 0 {
		return fmt.Errorf("venue.snapshot_limit must be > 0")
	}
	if c.Ring.Capacity <= 0 {
		return fmt.Errorf("ring.capacity must be > 0")
	}
	return nil
}
