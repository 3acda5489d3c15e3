// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every variable name.
const Prefix = "READABOOK_"

// Config holds all application configuration.
type Config struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	APIBase   string `env:"API_BASE" envDefault:"https://gutendex.com"`
	UserAgent string `env:"USER_AGENT" envDefault:"readabook/0.1.0"`

	MetaTimeout    time.Duration `env:"META_TIMEOUT" envDefault:"8s"`
	ListingTimeout time.Duration `env:"LISTING_TIMEOUT" envDefault:"15s"`
	TextTimeout    time.Duration `env:"TEXT_TIMEOUT" envDefault:"25s"`
	RetryDelay     time.Duration `env:"RETRY_DELAY" envDefault:"1.2s"`

	RequestTTL    time.Duration `env:"REQUEST_TTL" envDefault:"10m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	TextCacheSize int           `env:"TEXT_CACHE_SIZE" envDefault:"20"`
	TextTTL       time.Duration `env:"TEXT_TTL" envDefault:"24h"`
	SectionChars  int           `env:"SECTION_CHARS" envDefault:"5000"`

	// RedisAddr enables the shared back-off store when set.
	RedisAddr string `env:"REDIS_ADDR"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return load(env.Options{Prefix: Prefix})
}

// LoadFrom reads configuration from the given variables instead of the
// process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return load(env.Options{Prefix: Prefix, Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HasRedis reports whether a Redis address is configured.
func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBase)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%sAPI_BASE must be an absolute http(s) URL, got %q", Prefix, c.APIBase)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("%sUSER_AGENT must not be empty", Prefix)
	}

	positive := []struct {
		name string
		d    time.Duration
	}{
		{"META_TIMEOUT", c.MetaTimeout},
		{"LISTING_TIMEOUT", c.ListingTimeout},
		{"TEXT_TIMEOUT", c.TextTimeout},
		{"REQUEST_TTL", c.RequestTTL},
		{"SWEEP_INTERVAL", c.SweepInterval},
		{"TEXT_TTL", c.TextTTL},
		{"RETRY_DELAY", c.RetryDelay},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s%s must be positive, got %s", Prefix, p.name, p.d)
		}
	}
	if c.TextCacheSize < 1 {
		return fmt.Errorf("%sTEXT_CACHE_SIZE must be at least 1, got %d", Prefix, c.TextCacheSize)
	}
	if c.SectionChars < 1 {
		return fmt.Errorf("%sSECTION_CHARS must be at least 1, got %d", Prefix, c.SectionChars)
	}
	return nil
}
