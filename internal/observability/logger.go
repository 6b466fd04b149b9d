// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package observability provides the structured logger and Prometheus
// metrics shared by every pipeline stage.
package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/arxiv-digest/pkg/types"
)

// NewLogger creates a zerolog logger from cfg. Format "console" (or
// "pretty") writes human-readable lines; anything else writes JSON.
func NewLogger(cfg types.LoggingConfig) zerolog.Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	default:
		output = os.Stderr
	}
	return newLogger(cfg, output)
}

func newLogger(cfg types.LoggingConfig, output io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	return zerolog.New(output).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

// parseLevel converts a string log level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// WithRun tags every entry with the run identifier.
func WithRun(logger zerolog.Logger, runID string) zerolog.Logger {
	return logger.With().Str("run_id", runID).Logger()
}

// WithStage tags every entry with the pipeline stage name.
func WithStage(logger zerolog.Logger, stage string) zerolog.Logger {
	return logger.With().Str("stage", stage).Logger()
}

// WithPaper tags every entry with the record position and paper id.
func WithPaper(logger zerolog.Logger, index int, paperID string) zerolog.Logger {
	return logger.With().Int("index", index).Str("paper_id", paperID).Logger()
}
