package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Backuper creates and uploads a backup archive
type Backuper interface {
	CreateAndUpload(ctx context.Context) (string, error)
}

// BackupJob ships database backups to the artifact mirror
type BackupJob struct {
	log     zerolog.Logger
	backup  Backuper
	timeout time.Duration
}

// NewBackupJob creates a new backup job
func NewBackupJob(log zerolog.Logger, backup Backuper, timeout time.Duration) *BackupJob {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &BackupJob{
		log:     log.With().Str("job", "backup").Logger(),
		backup:  backup,
		timeout: timeout,
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run creates and uploads one backup
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	name, err := j.backup.CreateAndUpload(ctx)
	if err != nil {
		return err
	}
	j.log.Info().Str("archive", name).Msg("Backup uploaded")
	return nil
}
