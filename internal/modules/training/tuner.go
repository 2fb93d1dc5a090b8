package training

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"strings"

	"github.com/aristath/forecaster/internal/ml/boosting"
	"github.com/aristath/forecaster/internal/ml/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SearchSpace lists the candidate values of each hyperparameter
type SearchSpace struct {
	NEstimators     []int
	LearningRate    []float64
	MaxDepth        []int
	MinSamplesSplit []int
	MinSamplesLeaf  []int
	Subsample       []float64
	MaxFeatures     []string
}

// DefaultSearchSpace is the randomized search grid
func DefaultSearchSpace() SearchSpace {
	return SearchSpace{
		NEstimators:     []int{50, 100, 150, 200, 300},
		LearningRate:    []float64{0.01, 0.05, 0.1, 0.15, 0.2},
		MaxDepth:        []int{3, 4, 5, 6, 7},
		MinSamplesSplit: []int{2, 5, 10, 15},
		MinSamplesLeaf:  []int{1, 2, 4},
		Subsample:       []float64{0.8, 0.9, 1.0},
		MaxFeatures:     []string{"sqrt", "log2", ""},
	}
}

func (s SearchSpace) sample(rng *rand.Rand) boosting.Params {
	return boosting.Params{
		NEstimators:     s.NEstimators[rng.Intn(len(s.NEstimators))],
		LearningRate:    s.LearningRate[rng.Intn(len(s.LearningRate))],
		MaxDepth:        s.MaxDepth[rng.Intn(len(s.MaxDepth))],
		MinSamplesSplit: s.MinSamplesSplit[rng.Intn(len(s.MinSamplesSplit))],
		MinSamplesLeaf:  s.MinSamplesLeaf[rng.Intn(len(s.MinSamplesLeaf))],
		Subsample:       s.Subsample[rng.Intn(len(s.Subsample))],
		MaxFeatures:     s.MaxFeatures[rng.Intn(len(s.MaxFeatures))],
		RandomState:     tunedSeed,
	}
}

// TuneConfig holds search settings
type TuneConfig struct {
	Iterations int
	Folds      int
	Seed       int64
	Space      SearchSpace
}

func (c TuneConfig) withDefaults() TuneConfig {
	if c.Iterations <= 0 {
		c.Iterations = 50
	}
	if c.Folds < 2 {
		c.Folds = 5
	}
	if c.Space.NEstimators == nil {
		c.Space = DefaultSearchSpace()
	}
	return c
}

// TuneResult is the winning candidate
type TuneResult struct {
	Symbol     string          `json:"symbol"`
	Params     boosting.Params `json:"params"`
	CVScore    float64         `json:"cv_score"`
	Candidates int             `json:"candidates"`
}

// Tune searches hyperparameters for symbol on its full history and records
// the best candidate in the best-params file
func (t *Trainer) Tune(ctx context.Context, symbol string, cfg TuneConfig) (*TuneResult, error) {
	symbol = strings.ToUpper(symbol)
	x, y, names, _, err := t.dataset(ctx, symbol)
	if err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()
	started := t.now()
	params, score, err := Search(ctx, x, y, names, cfg, t.log)
	if err != nil {
		return nil, fmt.Errorf("search failed for %s: %w", symbol, err)
	}
	if err := t.params.Save(symbol, params, score, t.now()); err != nil {
		return nil, err
	}

	t.log.Info().
		Str("symbol", symbol).
		Float64("cv_r2", score).
		Dur("elapsed", t.now().Sub(started)).
		Interface("params", params).
		Msg("Tuning complete")

	return &TuneResult{Symbol: symbol, Params: params, CVScore: score, Candidates: cfg.Iterations}, nil
}

// Search runs a randomized search scored by mean R² over walk-forward folds.
// Each fold trains on every earlier block and validates on the next one, so
// no candidate is scored on data older than its training rows.
func Search(ctx context.Context, x [][]float64, y []float64, names []string, cfg TuneConfig, log zerolog.Logger) (boosting.Params, float64, error) {
	cfg = cfg.withDefaults()

	folds := walkForward(len(y), cfg.Folds)
	if len(folds) == 0 {
		return boosting.Params{}, 0, ErrTooFewRows
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	candidates := make([]boosting.Params, cfg.Iterations)
	for i := range candidates {
		candidates[i] = cfg.Space.sample(rng)
	}
	scores := make([]float64, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := range candidates {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			score, err := crossValidate(x, y, names, candidates[i], folds)
			if err != nil {
				return err
			}
			scores[i] = score
			log.Debug().Int("candidate", i).Float64("cv_r2", score).Msg("Candidate scored")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return boosting.Params{}, 0, err
	}

	best := -1
	for i, score := range scores {
		if math.IsNaN(score) {
			continue
		}
		if best < 0 || score > scores[best] {
			best = i
		}
	}
	if best < 0 {
		return boosting.Params{}, 0, fmt.Errorf("no candidate produced a finite score")
	}
	return candidates[best], scores[best], nil
}

type fold struct {
	trainEnd, testEnd int
}

// walkForward splits n rows into k expanding-window folds
func walkForward(n, k int) []fold {
	block := n / (k + 1)
	if block < minTrainRows/2 {
		return nil
	}
	folds := make([]fold, 0, k)
	for i := 1; i <= k; i++ {
		end := (i + 1) * block
		if i == k {
			end = n
		}
		folds = append(folds, fold{trainEnd: i * block, testEnd: end})
	}
	return folds
}

func crossValidate(x [][]float64, y []float64, names []string, p boosting.Params, folds []fold) (float64, error) {
	var total float64
	for _, f := range folds {
		m, err := boosting.Train(x[:f.trainEnd], y[:f.trainEnd], names, p)
		if err != nil {
			return 0, err
		}
		total += metrics.R2(m.PredictBatch(x[f.trainEnd:f.testEnd]), y[f.trainEnd:f.testEnd])
	}
	return total / float64(len(folds)), nil
}
