// Package artifacts persists trained models and their frozen feature lists.
package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aristath/forecaster/internal/ml/boosting"
	"github.com/aristath/forecaster/internal/ml/linear"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when an artifact is absent locally and in the mirror
var ErrNotFound = errors.New("artifact not found")

// EnsembleFile is the ensemble artifact name for symbol
func EnsembleFile(symbol string) string {
	return fmt.Sprintf("model_%s_advanced.msgpack", strings.ToUpper(symbol))
}

// LinearFile is the baseline artifact name for symbol
func LinearFile(symbol string) string {
	return fmt.Sprintf("model_%s_simple.msgpack", strings.ToUpper(symbol))
}

// FeaturesFile is the frozen feature list name for symbol
func FeaturesFile(symbol string) string {
	return fmt.Sprintf("features_%s.json", strings.ToUpper(symbol))
}

// Mirror copies artifact files to and from remote storage
type Mirror interface {
	Push(ctx context.Context, name, path string) error
	Pull(ctx context.Context, name, path string) error
}

// Set is everything persisted for one symbol
type Set struct {
	Ensemble *boosting.Model
	Linear   *linear.Model
	Features []string
}

// Store keeps artifacts under one directory
type Store struct {
	dir    string
	mirror Mirror
	log    zerolog.Logger
}

// NewStore creates a store rooted at dir. mirror may be nil.
func NewStore(dir string, mirror Mirror, log zerolog.Logger) *Store {
	return &Store{
		dir:    dir,
		mirror: mirror,
		log:    log.With().Str("component", "artifacts").Logger(),
	}
}

// Path returns the local path of an artifact
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// HasMirror reports whether a remote mirror is configured
func (s *Store) HasMirror() bool {
	return s.mirror != nil
}

// Exists reports whether the ensemble and its feature list are on disk
func (s *Store) Exists(symbol string) bool {
	for _, name := range []string{EnsembleFile(symbol), FeaturesFile(symbol)} {
		if _, err := os.Stat(s.Path(name)); err != nil {
			return false
		}
	}
	return true
}

// Save writes all artifacts of symbol and pushes them to the mirror.
// Mirror failures are logged and do not fail the save.
func (s *Store) Save(ctx context.Context, symbol string, set Set) error {
	if set.Ensemble == nil || set.Linear == nil || len(set.Features) == 0 {
		return errors.New("incomplete artifact set")
	}

	ens, err := set.Ensemble.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode ensemble: %w", err)
	}
	lin, err := set.Linear.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode linear model: %w", err)
	}
	names, err := json.Marshal(set.Features)
	if err != nil {
		return fmt.Errorf("failed to encode feature list: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{EnsembleFile(symbol), ens},
		{LinearFile(symbol), lin},
		{FeaturesFile(symbol), names},
	}
	for _, f := range files {
		if err := s.write(f.name, f.data); err != nil {
			return err
		}
	}

	if s.mirror == nil {
		return nil
	}
	for _, f := range files {
		if err := s.mirror.Push(ctx, f.name, s.Path(f.name)); err != nil {
			s.log.Warn().Err(err).Str("artifact", f.name).Msg("Failed to push artifact to mirror")
		}
	}
	return nil
}

// write replaces name atomically via a temp file in the same directory
func (s *Store) write(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return nil
}

// Pull downloads all artifacts of symbol from the mirror
func (s *Store) Pull(ctx context.Context, symbol string) error {
	if s.mirror == nil {
		return ErrNotFound
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	for _, name := range []string{EnsembleFile(symbol), LinearFile(symbol), FeaturesFile(symbol)} {
		if err := s.mirror.Pull(ctx, name, s.Path(name)); err != nil {
			return fmt.Errorf("failed to pull %s: %w", name, err)
		}
	}
	s.log.Info().Str("symbol", symbol).Msg("Pulled artifacts from mirror")
	return nil
}

func (s *Store) read(name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// LoadEnsemble reads the ensemble of symbol
func (s *Store) LoadEnsemble(symbol string) (*boosting.Model, error) {
	data, err := s.read(EnsembleFile(symbol))
	if err != nil {
		return nil, err
	}
	return boosting.UnmarshalBinary(data)
}

// LoadFeatures reads the frozen feature list of symbol
func (s *Store) LoadFeatures(symbol string) ([]string, error) {
	data, err := s.read(FeaturesFile(symbol))
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("failed to decode feature list: %w", err)
	}
	if len(names) == 0 {
		return nil, errors.New("feature list is empty")
	}
	return names, nil
}
