// Package obslog configures the zerolog logger used throughout the engine:
// a console writer in development, JSON in production.
package obslog

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/ehr/eligibility/internal/config"
)

// New builds a zerolog.Logger configured from cfg.
func New(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

// WithInvocation returns a child logger tagged with the identifiers that
// scope a single evaluate/compile invocation.
func WithInvocation(logger zerolog.Logger, trialID, patientID, fingerprint string) zerolog.Logger {
	ctx := logger.With()
	if trialID != "" {
		ctx = ctx.Str("trial_id", trialID)
	}
	if patientID != "" {
		ctx = ctx.Str("patient_id", patientID)
	}
	if fingerprint != "" {
		ctx = ctx.Str("fingerprint", fingerprint)
	}
	return ctx.Logger()
}
