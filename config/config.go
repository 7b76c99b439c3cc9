// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Twitch credentials are optional: without them the detector serves synthetic demo data.
package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	// Twitch credential seed values. These populate the settings store on
	// first boot only; afterwards the store (written by the settings UI) wins.
	TwitchClientID     string
	TwitchClientSecret string

	// Detection
	MonitorPollInterval time.Duration
	DetectTimeout       time.Duration
	MonitorAutoStart    bool

	// Database (optional; empty DSN runs with the in-memory settings store)
	DBDsn string

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds
// are missing; the built-in identity degrades to synthetic data instead.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")

	cfg.MonitorPollInterval = 2 * time.Minute
	if v := os.Getenv("MONITOR_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid MONITOR_POLL_INTERVAL (duration): %q", v)
		}
		cfg.MonitorPollInterval = d
	}

	cfg.DetectTimeout = 10 * time.Second
	if v := os.Getenv("DETECT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid DETECT_TIMEOUT (duration): %q", v)
		}
		cfg.DetectTimeout = d
	}

	cfg.MonitorAutoStart = os.Getenv("MONITOR_AUTO_START") == "1"

	cfg.DBDsn = os.Getenv("DB_DSN")

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}
