// Package worker runs one request with the process's stdout reserved for a
// single JSON response line.
//
// While the handler runs, the stdout descriptor points at the diagnostic
// descriptor, so anything written to stdout by this process or by linked
// libraries lands in the diagnostics. The original descriptor is restored
// before the response is written.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// ErrNoSymbol is reported when the worker is invoked without an argument
var ErrNoSymbol = errors.New("No symbol provided")

// MarketSymbol selects the market overview instead of a forecast
const MarketSymbol = "MARKET"

// Handler produces the response payload
type Handler func(ctx context.Context) (interface{}, error)

// failure is the error response line
type failure struct {
	Error string `json:"error"`
}

// Worker owns the stdout and diagnostic descriptors
type Worker struct {
	stdoutFD int
	diagFD   int
	out      io.Writer
	log      zerolog.Logger
}

// New creates a worker on the process stdout and stderr
func New(log zerolog.Logger) *Worker {
	return NewWithFiles(os.Stdout, os.Stderr, log)
}

// NewWithFiles creates a worker that isolates stdout behind diag
func NewWithFiles(stdout, diag *os.File, log zerolog.Logger) *Worker {
	return &Worker{
		stdoutFD: int(stdout.Fd()),
		diagFD:   int(diag.Fd()),
		out:      stdout,
		log:      log.With().Str("component", "worker").Logger(),
	}
}

// Symbol extracts the upper-cased symbol argument
func Symbol(args []string) (string, error) {
	if len(args) == 0 {
		return "", ErrNoSymbol
	}
	symbol := strings.ToUpper(strings.TrimSpace(args[0]))
	if symbol == "" {
		return "", ErrNoSymbol
	}
	return symbol, nil
}

// Run calls h with stdout isolated and writes exactly one JSON line. Handler
// errors and panics become {"error": ...}. The returned error only reports a
// failure to write the response.
func (w *Worker) Run(ctx context.Context, h Handler) error {
	requestID := uuid.New().String()
	log := w.log.With().Str("request_id", requestID).Logger()
	ctx = log.WithContext(ctx)

	payload := w.isolated(ctx, log, h)

	line, err := encode(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		line, _ = encode(failure{Error: err.Error()})
	}
	if _, err := w.out.Write(line); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func (w *Worker) isolated(ctx context.Context, log zerolog.Logger, h Handler) (payload interface{}) {
	restore, err := w.redirect()
	if err != nil {
		log.Warn().Err(err).Msg("Stdout isolation unavailable")
	} else {
		defer restore()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Handler panicked")
			payload = failure{Error: fmt.Sprint(r)}
		}
	}()

	result, err := h(ctx)
	if err != nil {
		return failure{Error: err.Error()}
	}
	return result
}

// redirect points the stdout descriptor at the diagnostic descriptor and
// returns the function that undoes it
func (w *Worker) redirect() (func(), error) {
	saved, err := unix.Dup(w.stdoutFD)
	if err != nil {
		return nil, fmt.Errorf("dup stdout: %w", err)
	}
	if err := unix.Dup2(w.diagFD, w.stdoutFD); err != nil {
		unix.Close(saved)
		return nil, fmt.Errorf("dup2 diagnostics over stdout: %w", err)
	}
	return func() {
		if err := unix.Dup2(saved, w.stdoutFD); err != nil {
			w.log.Error().Err(err).Msg("Failed to restore stdout")
		}
		unix.Close(saved)
	}, nil
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
