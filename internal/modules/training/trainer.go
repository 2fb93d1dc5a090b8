// Package training fits the per-symbol ensemble and linear baseline and
// persists them with the frozen feature list.
package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aristath/forecaster/internal/artifacts"
	"github.com/aristath/forecaster/internal/domain"
	"github.com/aristath/forecaster/internal/ml/boosting"
	"github.com/aristath/forecaster/internal/ml/linear"
	"github.com/aristath/forecaster/internal/ml/metrics"
	"github.com/aristath/forecaster/internal/modules/features"
	"github.com/rs/zerolog"
)

// ErrTooFewRows is returned when the labeled table cannot be split
var ErrTooFewRows = errors.New("not enough rows to train")

// minTrainRows is the smallest training split the trainer accepts
const minTrainRows = 20

// Config holds trainer settings
type Config struct {
	HistoryDays  int
	TestFraction float64
}

// Observer is notified when a training run finishes
type Observer interface {
	TrainingFinished(symbol string, ok bool, elapsed time.Duration)
}

// ModelScores holds the split scores of one model
type ModelScores struct {
	Train metrics.Scores `json:"train"`
	Test  metrics.Scores `json:"test"`
}

// Report summarises one training run
type Report struct {
	Symbol      string                       `json:"symbol"`
	TrainRows   int                          `json:"train_rows"`
	TestRows    int                          `json:"test_rows"`
	Features    []string                     `json:"features"`
	Params      Resolution                   `json:"params"`
	Ensemble    ModelScores                  `json:"ensemble"`
	Linear      ModelScores                  `json:"linear"`
	Importances []boosting.FeatureImportance `json:"importances"`
	Assembly    features.Report              `json:"assembly"`
}

// Trainer fits and persists models
type Trainer struct {
	quotes    domain.QuoteProvider
	assembler *features.Assembler
	store     *artifacts.Store
	params    *ParamsResolver
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
	observer  Observer
}

// NewTrainer creates a trainer
func NewTrainer(quotes domain.QuoteProvider, assembler *features.Assembler, store *artifacts.Store, params *ParamsResolver, cfg Config, log zerolog.Logger) *Trainer {
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 730
	}
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		cfg.TestFraction = 0.2
	}
	return &Trainer{
		quotes:    quotes,
		assembler: assembler,
		store:     store,
		params:    params,
		cfg:       cfg,
		log:       log.With().Str("service", "training").Logger(),
		now:       time.Now,
	}
}

// SetObserver registers a completion observer
func (t *Trainer) SetObserver(o Observer) {
	t.observer = o
}

// SetClock overrides the wall clock
func (t *Trainer) SetClock(now func() time.Time) {
	t.now = now
}

// TrainAndSave trains symbol and reports success. It never panics.
func (t *Trainer) TrainAndSave(ctx context.Context, symbol string) (ok bool) {
	symbol = strings.ToUpper(symbol)
	started := t.now()

	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Str("symbol", symbol).Interface("panic", r).Msg("Training panicked")
			ok = false
		}
		if t.observer != nil {
			t.observer.TrainingFinished(symbol, ok, t.now().Sub(started))
		}
	}()

	if _, err := t.Train(ctx, symbol); err != nil {
		t.log.Error().Err(err).Str("symbol", symbol).Msg("Training failed")
		return false
	}
	return true
}

// Train fetches history, fits both models and persists them
func (t *Trainer) Train(ctx context.Context, symbol string) (*Report, error) {
	symbol = strings.ToUpper(symbol)
	x, y, names, assembly, err := t.dataset(ctx, symbol)
	if err != nil {
		return nil, err
	}

	nTest := int(math.Ceil(float64(len(y))*t.cfg.TestFraction - 1e-9))
	nTrain := len(y) - nTest
	if nTrain < minTrainRows || nTest < 1 {
		return nil, fmt.Errorf("%s has %d labeled rows: %w", symbol, len(y), ErrTooFewRows)
	}
	xTrain, xTest := x[:nTrain], x[nTrain:]
	yTrain, yTest := y[:nTrain], y[nTrain:]

	resolution := t.params.Resolve(symbol)
	t.log.Info().
		Str("symbol", symbol).
		Str("params_source", resolution.Source).
		Str("params_from", resolution.From).
		Int("train_rows", nTrain).
		Int("test_rows", nTest).
		Msg("Training models")

	ensemble, err := boosting.Train(xTrain, yTrain, names, resolution.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to train ensemble: %w", err)
	}
	baseline, err := linear.Fit(xTrain, yTrain, names)
	if err != nil {
		return nil, fmt.Errorf("failed to fit linear baseline: %w", err)
	}

	report := &Report{
		Symbol:    symbol,
		TrainRows: nTrain,
		TestRows:  nTest,
		Features:  names,
		Params:    resolution,
		Ensemble: ModelScores{
			Train: metrics.Evaluate(ensemble.PredictBatch(xTrain), yTrain),
			Test:  metrics.Evaluate(ensemble.PredictBatch(xTest), yTest),
		},
		Linear: ModelScores{
			Train: metrics.Evaluate(baseline.PredictBatch(xTrain), yTrain),
			Test:  metrics.Evaluate(baseline.PredictBatch(xTest), yTest),
		},
		Importances: ensemble.FeatureImportances(),
		Assembly:    assembly,
	}
	t.logReport(report)

	err = t.store.Save(ctx, symbol, artifacts.Set{
		Ensemble: ensemble,
		Linear:   baseline,
		Features: names,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist models: %w", err)
	}
	return report, nil
}

// dataset fetches history and returns the labeled design matrix in
// chronological order
func (t *Trainer) dataset(ctx context.Context, symbol string) ([][]float64, []float64, []string, features.Report, error) {
	end := t.now()
	start := end.AddDate(0, 0, -t.cfg.HistoryDays)

	bars, err := t.quotes.Bars(ctx, symbol, start, end)
	if err != nil {
		return nil, nil, nil, features.Report{}, fmt.Errorf("failed to fetch %s history: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, nil, nil, features.Report{}, fmt.Errorf("%s: %w", symbol, features.ErrNoBars)
	}

	frame, assembly, err := t.assembler.Prepare(ctx, bars, symbol, start, end)
	if err != nil {
		return nil, nil, nil, assembly, fmt.Errorf("failed to assemble features: %w", err)
	}

	labeled := frame.Labeled()
	names := features.FeatureColumns(labeled)
	x, err := labeled.Matrix(names)
	if err != nil {
		return nil, nil, nil, assembly, err
	}
	return x, labeled.Target, names, assembly, nil
}

func (t *Trainer) logReport(r *Report) {
	better := "linear"
	if r.Ensemble.Test.RMSE < r.Linear.Test.RMSE {
		better = "ensemble"
	}

	top := r.Importances
	if len(top) > 5 {
		top = top[:5]
	}
	topNames := make([]string, len(top))
	for i, fi := range top {
		topNames[i] = fi.Feature
	}

	t.log.Info().
		Str("symbol", r.Symbol).
		Float64("ensemble_test_mae", r.Ensemble.Test.MAE).
		Float64("ensemble_test_rmse", r.Ensemble.Test.RMSE).
		Float64("ensemble_test_r2", r.Ensemble.Test.R2).
		Float64("linear_test_mae", r.Linear.Test.MAE).
		Float64("linear_test_rmse", r.Linear.Test.RMSE).
		Float64("linear_test_r2", r.Linear.Test.R2).
		Str("better_on_test", better).
		Strs("top_features", topNames).
		Msg("Training complete")
}
