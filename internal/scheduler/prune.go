package scheduler

import (
	"time"

	"github.com/rs/zerolog"
)

// Pruner removes cache files older than a maximum age
type Pruner interface {
	Prune(prefix string, maxAge time.Duration) (int, error)
}

// PruneRule selects cache files by name prefix
type PruneRule struct {
	Prefix string
	MaxAge time.Duration
}

// PruneJob removes expired cache entries
type PruneJob struct {
	log    zerolog.Logger
	pruner Pruner
	rules  []PruneRule
}

// NewPruneJob creates a new prune job
func NewPruneJob(log zerolog.Logger, pruner Pruner, rules ...PruneRule) *PruneJob {
	return &PruneJob{
		log:    log.With().Str("job", "prune_cache").Logger(),
		pruner: pruner,
		rules:  rules,
	}
}

// Name returns the job name
func (j *PruneJob) Name() string {
	return "prune_cache"
}

// Run applies every rule and returns the first error
func (j *PruneJob) Run() error {
	var firstErr error
	total := 0
	for _, rule := range j.rules {
		n, err := j.pruner.Prune(rule.Prefix, rule.MaxAge)
		if err != nil {
			j.log.Error().Err(err).Str("prefix", rule.Prefix).Msg("Failed to prune cache")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += n
	}

	j.log.Info().Int("removed", total).Msg("Cache pruned")
	return firstErr
}
