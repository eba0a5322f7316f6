// Command stethoscope-collector inspects the local host and prints one
// base64 line describing it. It takes no flags; see the STETHOSCOPE_*
// environment variables in pkg/config.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haasonsaas/stethoscope/pkg/codec"
	"github.com/haasonsaas/stethoscope/pkg/config"
	"github.com/haasonsaas/stethoscope/pkg/probe"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Getenv, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run performs one collection pass. Stdout receives only the encoded line;
// every diagnostic goes to stderr.
func run(ctx context.Context, getenv func(string) string, stdout, stderr io.Writer) int {
	cfg, err := config.LoadCollector(getenv)
	logger := newCollectorLogger(stderr, cfg.LogLevel)
	log.Logger = logger
	if err != nil {
		logger.Error().Err(err).Msg("Invalid collector environment")
		return 2
	}

	host := probe.NewHost(probe.Options{
		Root:         cfg.Root,
		Locale:       cfg.Locale,
		ProbeTimeout: cfg.ProbeTimeout,
		TopN:         cfg.TopN,
	})

	start := time.Now()
	pass := probe.NewCollector(host).Collect(ctx)
	for _, name := range pass.DegradedProbes() {
		logger.Warn().Str("probe", name).Str("reason", pass.Degraded[name]).Msg("Probe degraded; sentinel used")
	}
	logger.Debug().
		Str("version", Version).
		Dur("elapsed", time.Since(start)).
		Int("degraded", len(pass.Degraded)).
		Msg("Collection finished")

	line, err := codec.Encode(pass.Snapshot)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode snapshot")
		return 1
	}
	if _, err := fmt.Fprintln(stdout, line); err != nil {
		logger.Error().Err(err).Msg("Failed to write snapshot")
		return 1
	}
	return 0
}

func newCollectorLogger(w io.Writer, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Millisecond

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.WarnLevel
	}
	writer := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	return zerolog.New(writer).With().Timestamp().Logger().Level(parsed)
}
