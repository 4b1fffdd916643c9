// Package config loads service settings from the environment (optionally
// seeded from a .env file) and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Mirror backends.
const (
	MirrorNone     = "none"
	MirrorMemory   = "memory"
	MirrorPostgres = "postgres"
	MirrorNeo4j    = "neo4j"
)

// Config is the resolved service configuration.
type Config struct {
	Env        string
	Addr       string
	LogLevel   string
	LogFormat  string
	CORSOrigin string

	OpenAIKey     string
	OpenAIBaseURL string
	VisionModel   string
	ImageModel    string

	SQLitePath      string
	LocalQuotaBytes int64

	MirrorBackend string
	PostgresDSN   string
	Neo4jURL      string
	Neo4jUser     string
	Neo4jPass     string
	NATSURL       string

	Concurrency  int
	Stagger      time.Duration
	InitialBatch int
	MoreBatch    int

	RateLimitPerMinute float64
	RateLimitBurst     int
}

func defaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("cors_origin", "*")
	v.SetDefault("openai_base_url", "")
	v.SetDefault("vision_model", "gpt-4o")
	v.SetDefault("image_model", "dall-e-2")
	v.SetDefault("sqlite_path", "carart.db")
	v.SetDefault("local_quota_bytes", 5<<20)
	v.SetDefault("mirror_backend", MirrorNone)
	v.SetDefault("neo4j_user", "neo4j")
	v.SetDefault("concurrency", 2)
	v.SetDefault("stagger", 500*time.Millisecond)
	v.SetDefault("initial_batch", 4)
	v.SetDefault("more_batch", 4)
	v.SetDefault("rate_limit_per_minute", 20)
	v.SetDefault("rate_limit_burst", 5)
}

// Load resolves configuration. Outside production a .env file in the working
// directory is loaded first; a missing file is fine. Environment variables
// use the CARART_ prefix (CARART_ADDR, CARART_OPENAI_KEY, ...). A non-empty
// file is read as an additional source below the environment.
func Load(file string) (Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("CARART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if !strings.EqualFold(v.GetString("env"), "production") {
		_ = godotenv.Load()
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Env:                v.GetString("env"),
		Addr:               v.GetString("addr"),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          v.GetString("log_format"),
		CORSOrigin:         v.GetString("cors_origin"),
		OpenAIKey:          v.GetString("openai_key"),
		OpenAIBaseURL:      v.GetString("openai_base_url"),
		VisionModel:        v.GetString("vision_model"),
		ImageModel:         v.GetString("image_model"),
		SQLitePath:         v.GetString("sqlite_path"),
		LocalQuotaBytes:    v.GetInt64("local_quota_bytes"),
		MirrorBackend:      strings.ToLower(v.GetString("mirror_backend")),
		PostgresDSN:        v.GetString("postgres_dsn"),
		Neo4jURL:           v.GetString("neo4j_url"),
		Neo4jUser:          v.GetString("neo4j_user"),
		Neo4jPass:          v.GetString("neo4j_pass"),
		NATSURL:            v.GetString("nats_url"),
		Concurrency:        v.GetInt("concurrency"),
		Stagger:            v.GetDuration("stagger"),
		InitialBatch:       v.GetInt("initial_batch"),
		MoreBatch:          v.GetInt("more_batch"),
		RateLimitPerMinute: v.GetFloat64("rate_limit_per_minute"),
		RateLimitBurst:     v.GetInt("rate_limit_burst"),
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency))
	}
	if c.Stagger < 0 {
		errs = append(errs, fmt.Errorf("stagger must be >= 0, got %s", c.Stagger))
	}
	if c.InitialBatch < 1 || c.MoreBatch < 1 {
		errs = append(errs, errors.New("batch sizes must be >= 1"))
	}
	if c.LocalQuotaBytes <= 0 {
		errs = append(errs, errors.New("local_quota_bytes must be positive"))
	}
	switch c.MirrorBackend {
	case MirrorNone, MirrorMemory:
	case MirrorPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required for the postgres mirror"))
		}
	case MirrorNeo4j:
		if c.Neo4jURL == "" {
			errs = append(errs, errors.New("neo4j_url is required for the neo4j mirror"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mirror_backend %q", c.MirrorBackend))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Production reports whether the service runs in production.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}
