package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/haasonsaas/stethoscope/pkg/config"
	"github.com/haasonsaas/stethoscope/pkg/narrative"
	"github.com/haasonsaas/stethoscope/pkg/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	configPath = flag.String("config", config.DefaultPath, "Server config file")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	dbPath     = flag.String("db", "", "Database path (overrides config)")
	Version    = "dev"
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *dbPath != "" {
		cfg.Server.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	serverLogger := configureLogging(cfg.Logging)
	serverLogger.Info().Str("version", Version).Msg("Stethoscope server starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.SetupTracing(ctx, "stethoscope-server", Version, cfg.Tracing)
	if err != nil {
		serverLogger.Fatal().Err(err).Msg("Failed to set up tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			serverLogger.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}()

	db, err := openDatabase(cfg.Server.DBPath)
	if err != nil {
		serverLogger.Fatal().Err(err).Str("db", cfg.Server.DBPath).Msg("Failed to open database")
	}

	srv := newServer(cfg, db, newNarrator(cfg.Narrative), serverLogger)
	if !srv.narrator.Configured() {
		serverLogger.Warn().Msg("Narrative provider not configured; reports will carry narrative_error")
	}
	if srv.adminToken == "" {
		serverLogger.Warn().Msg("No admin token configured; key management is disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Narrative.Timeout() + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		serverLogger.Info().Str("listen", cfg.Server.Listen).Msg("Listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal().Err(err).Msg("HTTP server failed")
		}
	case <-ctx.Done():
		serverLogger.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			serverLogger.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}
}

func openDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(migrationModels()...); err != nil {
		return nil, err
	}
	return db, nil
}

func newNarrator(cfg config.NarrativeConfig) narrative.Generator {
	if cfg.Provider == "none" {
		return narrative.Disabled{}
	}
	return narrative.New(narrative.Config{
		Endpoint:          cfg.Endpoint,
		Model:             cfg.Model,
		APIKey:            cfg.APIKey,
		Timeout:           cfg.Timeout(),
		RequestsPerMinute: cfg.RequestsPerMinute,
		RetryInitialMs:    cfg.RetryInitialMs,
		RetryMaxMs:        cfg.RetryMaxMs,
		RetryMaxAttempts:  cfg.RetryMaxAttempts,
	})
}

func configureLogging(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Millisecond

	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil && cfg.Level != "" {
		level = parsed
	}

	var l zerolog.Logger
	if cfg.JSON {
		l = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	l = l.Level(level)
	log.Logger = l
	zerolog.SetGlobalLevel(level)
	return l
}
