// Package utils holds small helpers shared across services.
package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// Slow operation thresholds
const (
	slowOperation     = 10 * time.Second
	verySlowOperation = 30 * time.Second
)

// LatencyRecorder receives measured operation durations
type LatencyRecorder interface {
	RecordLatency(op string, elapsed time.Duration)
}

// OperationTimer provides a defer-friendly way to measure operation duration.
// rec may be nil.
//
// Usage:
//
//	func (s *Service) forecast() {
//	    defer utils.OperationTimer("forecast", s.log, s.observer)()
//	}
func OperationTimer(operation string, log zerolog.Logger, rec LatencyRecorder) func() time.Duration {
	start := time.Now()

	return func() time.Duration {
		duration := time.Since(start)

		log.Debug().
			Str("operation", operation).
			Dur("duration_ms", duration).
			Msg("Operation completed")

		switch {
		case duration > verySlowOperation:
			log.Warn().
				Str("operation", operation).
				Dur("duration", duration).
				Msg("Slow operation detected (>30s)")
		case duration > slowOperation:
			log.Info().
				Str("operation", operation).
				Dur("duration", duration).
				Msg("Operation took longer than expected (>10s)")
		}

		if rec != nil {
			rec.RecordLatency(operation, duration)
		}
		return duration
	}
}
