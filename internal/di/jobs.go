package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/forecaster/internal/config"
	"github.com/aristath/forecaster/internal/scheduler"
)

// retrainTimeout bounds the refit of a single symbol
const retrainTimeout = 10 * time.Minute

// JobInstances holds the registered background jobs
type JobInstances struct {
	Retrain *scheduler.RetrainJob
	Prune   *scheduler.PruneJob
	DBCheck *scheduler.DBCheckJob // nil when the ledger is disabled
	Backup  *scheduler.BackupJob  // nil without a backup service
}

// RegisterJobs creates the background jobs and registers them with sched
func RegisterJobs(sched *scheduler.Scheduler, c *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	jobs := &JobInstances{
		Retrain: scheduler.NewRetrainJob(scheduler.RetrainConfig{
			Log:     log,
			Trainer: c.Trainer,
			Cache:   c.Cache,
			Symbols: cfg.Training.Symbols,
			Timeout: retrainTimeout,
		}),
		Prune: scheduler.NewPruneJob(log, c.Cache,
			scheduler.PruneRule{Prefix: "prediction_", MaxAge: cfg.Cache.PredictionTTL},
			scheduler.PruneRule{Prefix: "sentiment_", MaxAge: 7 * cfg.Cache.SentimentTTL},
		),
	}

	if err := sched.AddJob(cfg.Scheduler.RetrainSchedule, jobs.Retrain); err != nil {
		return nil, fmt.Errorf("failed to register retrain job: %w", err)
	}
	if err := sched.AddJob(cfg.Scheduler.PruneSchedule, jobs.Prune); err != nil {
		return nil, fmt.Errorf("failed to register prune job: %w", err)
	}

	if c.LedgerDB != nil {
		jobs.DBCheck = scheduler.NewDBCheckJob(log, 30*time.Second, c.LedgerDB)
		if err := sched.AddJob(cfg.Scheduler.PruneSchedule, jobs.DBCheck); err != nil {
			return nil, fmt.Errorf("failed to register db check job: %w", err)
		}
	}

	if c.Backup != nil {
		jobs.Backup = scheduler.NewBackupJob(log, c.Backup, 10*time.Minute)
		if err := sched.AddJob(cfg.Scheduler.BackupSchedule, jobs.Backup); err != nil {
			return nil, fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	return jobs, nil
}
