package training

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/forecaster/internal/ml/boosting"
	"github.com/rs/zerolog"
)

// Sources a resolved parameter set can come from
const (
	SourceSymbol  = "symbol"
	SourceForeign = "foreign"
	SourceDefault = "default"
)

// tunedSeed is the seed every tuned record is trained with
const tunedSeed = 42

// ParamsRecord is one entry of the best-params file
type ParamsRecord struct {
	boosting.Params
	TunedDate string   `json:"tuned_date,omitempty"`
	CVScore   *float64 `json:"cv_score,omitempty"`
}

// tunedAt parses the record's tuning date; zero when absent or unparseable
func (r ParamsRecord) tunedAt() time.Time {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, r.TunedDate); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Resolution is the outcome of a parameter lookup
type Resolution struct {
	Params boosting.Params `json:"params"`
	Source string          `json:"source"`
	From   string          `json:"from,omitempty"` // Symbol the record belongs to
}

// ParamsResolver picks ensemble hyperparameters for a symbol
type ParamsResolver struct {
	path            string
	foreignFallback bool
	log             zerolog.Logger
}

// NewParamsResolver reads records from path. With foreignFallback a symbol
// without its own record borrows the most recently tuned record of another
// symbol.
func NewParamsResolver(path string, foreignFallback bool, log zerolog.Logger) *ParamsResolver {
	return &ParamsResolver{
		path:            path,
		foreignFallback: foreignFallback,
		log:             log.With().Str("component", "params").Logger(),
	}
}

// Load reads every record. A missing file is an empty set.
func (r *ParamsResolver) Load() (map[string]ParamsRecord, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]ParamsRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read best params: %w", err)
	}

	records := make(map[string]ParamsRecord)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode best params: %w", err)
	}
	return records, nil
}

// Resolve returns the parameters for symbol. Lookup order is the symbol's own
// record, then (if enabled) the most recently tuned foreign record with ties
// broken by symbol name, then DefaultParams.
func (r *ParamsResolver) Resolve(symbol string) Resolution {
	symbol = strings.ToUpper(symbol)

	records, err := r.Load()
	if err != nil {
		r.log.Warn().Err(err).Msg("Ignoring unreadable best params file")
		return Resolution{Params: boosting.DefaultParams(), Source: SourceDefault}
	}

	if rec, ok := records[symbol]; ok {
		return Resolution{Params: tuned(rec), Source: SourceSymbol, From: symbol}
	}

	if r.foreignFallback {
		if from, rec, ok := mostRecent(records); ok {
			r.log.Warn().
				Str("symbol", symbol).
				Str("borrowed_from", from).
				Str("tuned_date", rec.TunedDate).
				Msg("No tuned parameters for symbol, borrowing another symbol's record")
			return Resolution{Params: tuned(rec), Source: SourceForeign, From: from}
		}
	}

	return Resolution{Params: boosting.DefaultParams(), Source: SourceDefault}
}

func tuned(rec ParamsRecord) boosting.Params {
	p := rec.Params.WithDefaults()
	p.RandomState = tunedSeed
	return p
}

func mostRecent(records map[string]ParamsRecord) (string, ParamsRecord, bool) {
	symbols := make([]string, 0, len(records))
	for sym := range records {
		symbols = append(symbols, sym)
	}
	if len(symbols) == 0 {
		return "", ParamsRecord{}, false
	}
	sort.Slice(symbols, func(i, j int) bool {
		ti, tj := records[symbols[i]].tunedAt(), records[symbols[j]].tunedAt()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return symbols[i] < symbols[j]
	})
	return symbols[0], records[symbols[0]], true
}

// Save writes or replaces the record of symbol, keeping the others
func (r *ParamsResolver) Save(symbol string, params boosting.Params, cvScore float64, tunedAt time.Time) error {
	records, err := r.Load()
	if err != nil {
		r.log.Warn().Err(err).Msg("Replacing unreadable best params file")
		records = map[string]ParamsRecord{}
	}

	score := cvScore
	records[strings.ToUpper(symbol)] = ParamsRecord{
		Params:    params,
		TunedDate: tunedAt.Format("2006-01-02"),
		CVScore:   &score,
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode best params: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create best params directory: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write best params: %w", err)
	}
	return nil
}
