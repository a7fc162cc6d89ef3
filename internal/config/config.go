// Package config loads Kodix settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kodix/kodix/internal/voucher"
)

type EmailConfig struct {
	PostmarkToken string
	FromEmail     string
}

type Config struct {
	Port           string
	DBPath         string
	BaseURL        string
	LogLevel       string
	LogFormat      string
	Environment    string
	Timezone       *time.Location
	Email          EmailConfig
	RedemptionCap  float64
	SessionTTL     time.Duration
	OriginPatterns []string
}

func (c *Config) Production() bool {
	return c.Environment == "production"
}

// Load reads configuration from environment variables, after loading any
// of envFiles that exist. Variables already set in the environment win.
// It fails fast listing every missing required value.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	env := getEnv("KODIX_ENV", "development")
	if env != "development" && env != "staging" && env != "production" {
		return nil, fmt.Errorf("invalid KODIX_ENV value %q: must be development, staging, or production", env)
	}

	cfg := &Config{
		Port:        getEnv("KODIX_PORT", "8080"),
		DBPath:      getEnv("KODIX_DB_PATH", "kodix.db"),
		BaseURL:     strings.TrimRight(getEnv("KODIX_BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:    getEnv("KODIX_LOG_LEVEL", "info"),
		LogFormat:   getEnv("KODIX_LOG_FORMAT", "text"),
		Environment: env,
		Email: EmailConfig{
			PostmarkToken: os.Getenv("KODIX_POSTMARK_TOKEN"),
			FromEmail:     os.Getenv("KODIX_FROM_EMAIL"),
		},
	}

	if cfg.Production() {
		var missing []string
		for _, key := range []string{"KODIX_BASE_URL", "KODIX_POSTMARK_TOKEN", "KODIX_FROM_EMAIL"} {
			if os.Getenv(key) == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("missing required environment variables: %v", missing)
		}
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid KODIX_BASE_URL %q", cfg.BaseURL)
	}
	cfg.OriginPatterns = []string{u.Host}

	cfg.Timezone, err = time.LoadLocation(getEnv("KODIX_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid KODIX_TIMEZONE: %w", err)
	}

	cfg.RedemptionCap, err = getEnvFloat("KODIX_CASHBACK_REDEMPTION_CAP", voucher.DefaultCap)
	if err != nil {
		return nil, err
	}
	if err := voucher.ValidateCap(cfg.RedemptionCap); err != nil {
		return nil, fmt.Errorf("invalid KODIX_CASHBACK_REDEMPTION_CAP: %w", err)
	}

	days, err := getEnvInt("KODIX_SESSION_TTL_DAYS", 30)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, fmt.Errorf("invalid KODIX_SESSION_TTL_DAYS %d: must be positive", days)
	}
	cfg.SessionTTL = time.Duration(days) * 24 * time.Hour

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}
