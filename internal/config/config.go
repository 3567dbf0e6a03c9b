// Package config assembles the rmsync configuration. Sources are applied in
// increasing precedence: built-in defaults, a TOML file, RMSYNC_* environment
// variables (optionally loaded from .env files) and finally CLI flags, which
// the command layer applies on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/rickmorty-sync/pkg/client"
	"github.com/Sternrassler/rickmorty-sync/pkg/logging"
	"github.com/Sternrassler/rickmorty-sync/pkg/ratelimit"
	"github.com/Sternrassler/rickmorty-sync/pkg/record"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// DefaultBaseURL is the public Rick and Morty API.
const DefaultBaseURL = "https://rickandmortyapi.com/api"

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "RMSYNC_"

// Duration is a time.Duration written as a Go duration string in TOML,
// e.g. "1.5s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config is the complete rmsync configuration.
type Config struct {
	Output          string   `toml:"output"`
	Kinds           []string `toml:"kinds"`
	BaseURL         string   `toml:"base_url"`
	DryRun          bool     `toml:"dry_run"`
	Concurrent      bool     `toml:"concurrent"`
	ContinueOnError bool     `toml:"continue_on_error"`
	Report          bool     `toml:"report"`
	Ledger          string   `toml:"ledger"`
	MetricsAddr     string   `toml:"metrics_addr"`

	Fetch FetchConfig `toml:"fetch"`
	Redis RedisConfig `toml:"redis"`
	Log   LogConfig   `toml:"log"`
}

// FetchConfig tunes the HTTP fetcher.
type FetchConfig struct {
	UserAgent      string   `toml:"user_agent"`
	Timeout        Duration `toml:"timeout"`
	MaxAttempts    int      `toml:"max_attempts"`
	InitialBackoff Duration `toml:"initial_backoff"`
	MaxBackoff     Duration `toml:"max_backoff"`
	Rate           float64  `toml:"rate"`
	Burst          int      `toml:"burst"`
}

// RedisConfig enables the response cache when Addr is set.
type RedisConfig struct {
	Addr string `toml:"addr"`
	DB   int    `toml:"db"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// Default returns the built-in configuration.
func Default() Config {
	retry := client.DefaultRetryConfig()
	fetch := client.DefaultConfig()
	limit := ratelimit.DefaultConfig()

	kinds := make([]string, 0, 3)
	for _, k := range record.AllKinds() {
		kinds = append(kinds, k.String())
	}

	return Config{
		Output:  ".",
		Kinds:   kinds,
		BaseURL: DefaultBaseURL,
		Report:  true,
		Fetch: FetchConfig{
			UserAgent:      fetch.UserAgent,
			Timeout:        Duration{fetch.Timeout},
			MaxAttempts:    retry.MaxAttempts,
			InitialBackoff: Duration{retry.InitialBackoff},
			MaxBackoff:     Duration{retry.MaxBackoff},
			Rate:           limit.Rate,
			Burst:          limit.Burst,
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// LoadFile overlays the TOML file at path onto cfg. Keys absent from the
// file keep their current value; unknown keys are an error.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadEnvFiles loads .env style files into the process environment. Missing
// files are ignored and variables already set are not overridden.
func LoadEnvFiles(files ...string) {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// ApplyEnv overlays RMSYNC_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	duration := func(name string, dst *Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			}
		}
	}

	str("OUTPUT", &cfg.Output)
	if v, ok := os.LookupEnv(EnvPrefix + "KINDS"); ok {
		cfg.Kinds = SplitList(v)
	}
	str("BASE_URL", &cfg.BaseURL)
	boolean("DRY_RUN", &cfg.DryRun)
	boolean("CONCURRENT", &cfg.Concurrent)
	boolean("CONTINUE_ON_ERROR", &cfg.ContinueOnError)
	boolean("REPORT", &cfg.Report)
	str("LEDGER", &cfg.Ledger)
	str("METRICS_ADDR", &cfg.MetricsAddr)

	str("USER_AGENT", &cfg.Fetch.UserAgent)
	duration("TIMEOUT", &cfg.Fetch.Timeout)
	integer("MAX_ATTEMPTS", &cfg.Fetch.MaxAttempts)
	duration("INITIAL_BACKOFF", &cfg.Fetch.InitialBackoff)
	duration("MAX_BACKOFF", &cfg.Fetch.MaxBackoff)
	float("RATE", &cfg.Fetch.Rate)
	integer("BURST", &cfg.Fetch.Burst)

	str("REDIS_ADDR", &cfg.Redis.Addr)
	integer("REDIS_DB", &cfg.Redis.DB)

	str("LOG_LEVEL", &cfg.Log.Level)
	boolean("LOG_PRETTY", &cfg.Log.Pretty)

	return errors.Join(errs...)
}

// SplitList splits a comma separated list, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Output) == "" {
		return fmt.Errorf("output directory is required")
	}

	if _, err := c.RecordKinds(); err != nil {
		return err
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute http(s) URL (got %q)", c.BaseURL)
	}

	if c.Fetch.UserAgent == "" {
		return fmt.Errorf("user-agent is required")
	}
	if c.Fetch.Timeout.Duration <= 0 {
		return fmt.Errorf("timeout must be > 0 (got %s)", c.Fetch.Timeout)
	}
	if c.Fetch.Rate < 0 {
		return fmt.Errorf("rate must be >= 0 (got %g)", c.Fetch.Rate)
	}
	if err := c.RetryConfig().Validate(); err != nil {
		return err
	}

	if err := logging.ValidateLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

// RecordKinds parses Kinds.
func (c Config) RecordKinds() ([]record.Kind, error) {
	if len(c.Kinds) == 0 {
		return nil, fmt.Errorf("at least one kind is required")
	}
	return record.ParseKinds(c.Kinds)
}

// RetryConfig returns the fetcher retry policy.
func (c Config) RetryConfig() client.RetryConfig {
	retry := client.DefaultRetryConfig()
	retry.MaxAttempts = c.Fetch.MaxAttempts
	retry.InitialBackoff = c.Fetch.InitialBackoff.Duration
	retry.MaxBackoff = c.Fetch.MaxBackoff.Duration
	return retry
}

// ClientConfig returns the fetcher configuration without Redis.
func (c Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.UserAgent = c.Fetch.UserAgent
	cfg.Timeout = c.Fetch.Timeout.Duration
	cfg.Retry = c.RetryConfig()
	cfg.RateLimit = ratelimit.Config{Rate: c.Fetch.Rate, Burst: c.Fetch.Burst}
	return cfg
}

// LoggingConfig returns the logger configuration.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(strings.ToLower(c.Log.Level))
	cfg.Pretty = c.Log.Pretty
	return cfg
}
