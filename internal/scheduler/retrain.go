package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/forecaster/internal/modules/prediction"
	"github.com/aristath/forecaster/internal/utils"
)

// Trainer fits and persists the models of one symbol
type Trainer interface {
	TrainAndSave(ctx context.Context, symbol string) bool
}

// CacheInvalidator drops cached payloads
type CacheInvalidator interface {
	Delete(name string) error
}

// RetrainJob refits the models of a fixed symbol list after the close
type RetrainJob struct {
	log     zerolog.Logger
	trainer Trainer
	cache   CacheInvalidator
	symbols []string
	timeout time.Duration
}

// RetrainConfig holds configuration for the retrain job
type RetrainConfig struct {
	Log     zerolog.Logger
	Trainer Trainer
	Cache   CacheInvalidator // Optional, stale forecasts are dropped after a refit
	Symbols []string
	Timeout time.Duration // Per symbol, zero means no limit
}

// NewRetrainJob creates a new retrain job
func NewRetrainJob(cfg RetrainConfig) *RetrainJob {
	symbols := utils.NormalizeSymbols(cfg.Symbols)
	return &RetrainJob{
		log:     cfg.Log.With().Str("job", "retrain").Logger(),
		trainer: cfg.Trainer,
		cache:   cfg.Cache,
		symbols: symbols,
		timeout: cfg.Timeout,
	}
}

// Name returns the job name
func (j *RetrainJob) Name() string {
	return "retrain"
}

// Run retrains every symbol. One failing symbol does not stop the others.
func (j *RetrainJob) Run() error {
	j.log.Info().Int("symbols", len(j.symbols)).Msg("Starting retrain")
	start := time.Now()

	var failed []string
	for _, symbol := range j.symbols {
		if !j.retrain(symbol) {
			failed = append(failed, symbol)
			continue
		}
		if j.cache != nil {
			if err := j.cache.Delete(prediction.CacheFile(symbol)); err != nil {
				j.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to drop cached forecast")
			}
		}
	}

	j.log.Info().
		Int("trained", len(j.symbols)-len(failed)).
		Int("failed", len(failed)).
		Dur("duration", time.Since(start)).
		Msg("Retrain finished")

	if len(failed) > 0 {
		return fmt.Errorf("retrain failed for %d of %d symbols: %s", len(failed), len(j.symbols), strings.Join(failed, ","))
	}
	return nil
}

func (j *RetrainJob) retrain(symbol string) bool {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	return j.trainer.TrainAndSave(ctx, symbol)
}
