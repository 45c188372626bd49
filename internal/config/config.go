// Package config loads runtime settings from an optional YAML file, a .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultCategories mirrors the categories the web client ships with.
var DefaultCategories = []string{"love", "college", "mental", "funny", "secrets"}

type Config struct {
	Port            string        `yaml:"port"`
	DatabaseURL     string        `yaml:"database_url"`
	CORSOrigin      string        `yaml:"cors_origin"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Admin      AdminConfig      `yaml:"admin"`
	Moderation ModerationConfig `yaml:"moderation"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Mirror     MirrorConfig     `yaml:"mirror"`
	Log        LogConfig        `yaml:"log"`
}

type AdminConfig struct {
	Token         string `yaml:"token"`
	PasswordHash  string `yaml:"password_hash"`
	SessionSecret string `yaml:"session_secret"`
	// SessionSecure marks the session cookie Secure. Unset means secure
	// unless the log format is console (local development).
	SessionSecure *bool `yaml:"session_secure"`
}

type ModerationConfig struct {
	Categories          []string `yaml:"categories"`
	MaxConfessionLength int      `yaml:"max_confession_length"`
	MaxCommentLength    int      `yaml:"max_comment_length"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MirrorConfig struct {
	SupabaseURL     string        `yaml:"supabase_url"`
	SupabaseAnonKey string        `yaml:"supabase_anon_key"`
	DatabaseURL     string        `yaml:"database_url"`
	Timeout         time.Duration `yaml:"timeout"`
	Workers         int           `yaml:"workers"`
	Queue           int           `yaml:"queue"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Port:            "8080",
		DatabaseURL:     "sqlite://confessions.db",
		CORSOrigin:      "*",
		ShutdownTimeout: 5 * time.Second,
		Moderation: ModerationConfig{
			Categories:          append([]string(nil), DefaultCategories...),
			MaxConfessionLength: 1000,
			MaxCommentLength:    500,
		},
		RateLimit: RateLimitConfig{
			RPS:   1.0 / 3.0, // 1 request every 3 seconds
			Burst: 3,
		},
		Mirror: MirrorConfig{
			Timeout: 5 * time.Second,
			Workers: 2,
			Queue:   256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config. path may be empty, in which case only the defaults,
// .env and the environment are consulted.
func Load(path string) (Config, error) {
	// A missing .env is normal in production, where env vars are set directly.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("CORS_ORIGIN", &c.CORSOrigin)
	duration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)

	str("ADMIN_TOKEN", &c.Admin.Token)
	str("ADMIN_PASSWORD_HASH", &c.Admin.PasswordHash)
	str("SESSION_SECRET", &c.Admin.SessionSecret)
	if v, ok := lookup("SESSION_SECURE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SESSION_SECURE: %w", err))
		} else {
			c.Admin.SessionSecure = &b
		}
	}

	if v, ok := lookup("CATEGORIES"); ok {
		c.Moderation.Categories = splitList(v)
	}
	integer("MAX_CONFESSION_LENGTH", &c.Moderation.MaxConfessionLength)
	integer("MAX_COMMENT_LENGTH", &c.Moderation.MaxCommentLength)

	if v, ok := lookup("RATE_LIMIT_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS: %w", err))
		} else {
			c.RateLimit.RPS = f
		}
	}
	integer("RATE_LIMIT_BURST", &c.RateLimit.Burst)

	str("SUPABASE_URL", &c.Mirror.SupabaseURL)
	str("SUPABASE_ANON_KEY", &c.Mirror.SupabaseAnonKey)
	str("MIRROR_DATABASE_URL", &c.Mirror.DatabaseURL)
	duration("MIRROR_TIMEOUT", &c.Mirror.Timeout)
	integer("MIRROR_WORKERS", &c.Mirror.Workers)
	integer("MIRROR_QUEUE", &c.Mirror.Queue)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port must be set"))
	}
	if !strings.HasPrefix(c.DatabaseURL, "sqlite://") && !strings.HasPrefix(c.DatabaseURL, "postgres://") {
		errs = append(errs, errors.New("DATABASE_URL must start with 'postgres://' or 'sqlite://'"))
	}
	if c.CORSOrigin != "*" && !strings.HasPrefix(c.CORSOrigin, "http://") && !strings.HasPrefix(c.CORSOrigin, "https://") {
		errs = append(errs, errors.New("CORS_ORIGIN must be '*' or an http(s) origin"))
	}
	// Admin routes fail closed: at least one credential is required.
	if c.Admin.Token == "" && c.Admin.PasswordHash == "" {
		errs = append(errs, errors.New("ADMIN_TOKEN or ADMIN_PASSWORD_HASH must be set"))
	}
	if c.Admin.PasswordHash != "" && len(c.Admin.SessionSecret) < 32 {
		errs = append(errs, errors.New("SESSION_SECRET of at least 32 bytes is required for password login"))
	}
	if c.Moderation.MaxConfessionLength <= 0 || c.Moderation.MaxCommentLength <= 0 {
		errs = append(errs, errors.New("content length limits must be positive"))
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate limit rps and burst must be positive"))
	}
	if c.Mirror.Timeout <= 0 {
		errs = append(errs, errors.New("MIRROR_TIMEOUT must be positive"))
	}
	if c.Mirror.Workers <= 0 || c.Mirror.Queue <= 0 {
		errs = append(errs, errors.New("MIRROR_WORKERS and MIRROR_QUEUE must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// SecureCookies reports whether the admin session cookie is sent only over
// HTTPS.
func (c Config) SecureCookies() bool {
	if c.Admin.SessionSecure != nil {
		return *c.Admin.SessionSecure
	}
	return c.Log.Format != "console"
}

// MirrorKind names the mirror adapter the settings select.
func (c Config) MirrorKind() string {
	switch {
	case c.Mirror.DatabaseURL != "":
		return "postgres"
	case c.Mirror.SupabaseURL != "" && c.Mirror.SupabaseAnonKey != "":
		return "supabase"
	default:
		return "none"
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
