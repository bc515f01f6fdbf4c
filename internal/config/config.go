// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr        string
	DBPath            string
	SecretKey         []byte
	APIURL            string
	ClientID          string
	HTTPTimeout       time.Duration
	RetryMax          int
	FlowTTL           time.Duration
	AuthCheckInterval time.Duration
	LogLevel          slog.Level
	LogFormat         string
}

// AuthMonitorEnabled reports whether stored entries should be re-validated
// periodically.
func (c *Config) AuthMonitorEnabled() bool {
	return c.AuthCheckInterval > 0
}

// Load reads configuration from environment variables and returns a validated Config.
// PETLINK_SECRET_KEY is required: every entry stores an encrypted password.
// Optional variables with defaults: PETLINK_LISTEN_ADDR (127.0.0.1:8080),
// PETLINK_DB_PATH (petlink.db), PETLINK_API_URL (Tractive production),
// PETLINK_CLIENT_ID, PETLINK_HTTP_TIMEOUT (15s), PETLINK_RETRY_MAX (3),
// PETLINK_FLOW_TTL (10m), PETLINK_AUTH_CHECK_INTERVAL (1h, 0 disables),
// PETLINK_LOG_LEVEL (info), PETLINK_LOG_FORMAT (text).
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:        "127.0.0.1:8080",
		DBPath:            "petlink.db",
		APIURL:            "https://graph.tractive.com/4/",
		HTTPTimeout:       15 * time.Second,
		RetryMax:          3,
		FlowTTL:           10 * time.Minute,
		AuthCheckInterval: time.Hour,
		LogLevel:          slog.LevelInfo,
		LogFormat:         "text",
	}

	if v, ok := os.LookupEnv("PETLINK_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("PETLINK_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("PETLINK_CLIENT_ID"); ok {
		cfg.ClientID = v
	}

	raw := os.Getenv("PETLINK_SECRET_KEY")
	if raw == "" {
		return nil, fmt.Errorf("PETLINK_SECRET_KEY is required (64 hex characters)")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("PETLINK_SECRET_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("PETLINK_SECRET_KEY must decode to 32 bytes, got %d", len(key))
	}
	cfg.SecretKey = key

	if v, ok := os.LookupEnv("PETLINK_API_URL"); ok {
		u, err := url.Parse(v)
		if err != nil || !u.IsAbs() {
			return nil, fmt.Errorf("PETLINK_API_URL must be an absolute URL, got %q", v)
		}
		if !strings.HasSuffix(v, "/") {
			v += "/"
		}
		cfg.APIURL = v
	}

	if cfg.HTTPTimeout, err = durationEnv("PETLINK_HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return nil, err
	}
	if cfg.FlowTTL, err = durationEnv("PETLINK_FLOW_TTL", cfg.FlowTTL); err != nil {
		return nil, err
	}
	if cfg.FlowTTL <= 0 {
		return nil, fmt.Errorf("PETLINK_FLOW_TTL must be positive, got %s", cfg.FlowTTL)
	}
	if cfg.AuthCheckInterval, err = durationEnv("PETLINK_AUTH_CHECK_INTERVAL", cfg.AuthCheckInterval); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("PETLINK_RETRY_MAX"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("PETLINK_RETRY_MAX must be a non-negative integer, got %q", v)
		}
		cfg.RetryMax = n
	}

	if v, ok := os.LookupEnv("PETLINK_LOG_LEVEL"); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("PETLINK_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	if v, ok := os.LookupEnv("PETLINK_LOG_FORMAT"); ok {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "text" && v != "json" {
			return nil, fmt.Errorf("PETLINK_LOG_FORMAT must be text or json, got %q", v)
		}
		cfg.LogFormat = v
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	return parsed, nil
}
