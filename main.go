// Command clipradar is the main entrypoint for the viral-moment detection API.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres for the settings store (falls back to in-memory
//     when no DB_DSN is configured) and runs idempotent migrations.
//   - Builds the detection pipeline and optionally autostarts monitoring.
//   - Exposes the HTTP API with /healthz, /status, /metrics, and /api routes.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/clipradar/config"
	"github.com/onnwee/clipradar/db"
	"github.com/onnwee/clipradar/detector"
	"github.com/onnwee/clipradar/server"
	"github.com/onnwee/clipradar/settings"
	"github.com/onnwee/clipradar/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	shutdown, err := telemetry.InitTracing("clipradar", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Settings store: Postgres when configured, in-memory otherwise. The demo
	// path needs no persistence at all.
	var store settings.Store
	var database *sql.DB
	if cfg.DBDsn != "" {
		d, err := db.Connect()
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := d.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := db.Migrate(migrateCtx, d); err != nil {
			cancel()
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		cancel()
		store = &settings.PostgresStore{DB: d}
		database = d
		slog.Info("settings store ready", slog.String("backend", "postgres"))
	} else {
		store = settings.NewMemoryStore()
		slog.Info("settings store ready", slog.String("backend", "memory"))
	}

	seedCredentials(ctx, store, cfg)

	det := detector.New(store, cfg.DetectTimeout)
	mon := detector.NewMonitor(det, cfg.MonitorPollInterval, detector.Options{})

	if cfg.MonitorAutoStart {
		go func() {
			if err := mon.Start(ctx); err != nil {
				slog.Warn("monitor autostart failed", slog.Any("err", err))
			}
		}()
	}

	handlers := server.NewHandlers(ctx, store, det, mon, database)
	go func() {
		if err := server.Start(ctx, handlers, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()
	slog.Info("clipradar started", slog.String("addr", cfg.HTTPAddr), slog.Duration("poll_interval", cfg.MonitorPollInterval))

	// Block until shutdown signal
	<-ctx.Done()
	mon.Stop()
	slog.Info("shutting down")
}

// seedCredentials populates an empty settings store from env so a fresh deploy
// with TWITCH_CLIENT_ID/SECRET set starts in the matching user mode. A store
// the settings UI has already written to is left alone.
func seedCredentials(ctx context.Context, store settings.Store, cfg *config.Config) {
	if _, err := store.Get(ctx, settings.KeyCredentialMode); err == nil {
		return
	} else if !errors.Is(err, settings.ErrNotFound) {
		slog.Warn("settings store read failed during seed", slog.Any("err", err))
		return
	}
	if cfg.TwitchClientID == "" {
		return
	}
	mode := settings.ModeUserPublic
	if cfg.TwitchClientSecret != "" {
		mode = settings.ModeUserConfidential
	}
	for k, v := range map[string]string{
		settings.KeyCredentialMode: mode,
		settings.KeyClientID:       cfg.TwitchClientID,
		settings.KeyClientSecret:   cfg.TwitchClientSecret,
	} {
		if err := store.Set(ctx, k, v); err != nil {
			slog.Warn("settings seed write failed", slog.String("key", k), slog.Any("err", err))
			return
		}
	}
	slog.Info("seeded credentials from env", slog.String("mode", mode))
}
