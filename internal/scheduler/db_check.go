package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Checker runs an integrity check on a database
type Checker interface {
	Name() string
	QuickCheck(ctx context.Context) error
}

// DBCheckJob verifies database integrity
type DBCheckJob struct {
	log      zerolog.Logger
	checkers []Checker
	timeout  time.Duration
}

// NewDBCheckJob creates a new integrity check job
func NewDBCheckJob(log zerolog.Logger, timeout time.Duration, checkers ...Checker) *DBCheckJob {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DBCheckJob{
		log:      log.With().Str("job", "db_check").Logger(),
		checkers: checkers,
		timeout:  timeout,
	}
}

// Name returns the job name
func (j *DBCheckJob) Name() string {
	return "db_check"
}

// Run checks every database
func (j *DBCheckJob) Run() error {
	for _, c := range j.checkers {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		err := c.QuickCheck(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("%s integrity check failed: %w", c.Name(), err)
		}
		j.log.Debug().Str("database", c.Name()).Msg("Integrity check passed")
	}
	return nil
}
