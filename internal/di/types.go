// Package di wires the forecaster's dependencies.
package di

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/aristath/forecaster/internal/artifacts"
	"github.com/aristath/forecaster/internal/clientdata"
	"github.com/aristath/forecaster/internal/clients/exchangerate"
	"github.com/aristath/forecaster/internal/clients/yahoo"
	"github.com/aristath/forecaster/internal/database"
	"github.com/aristath/forecaster/internal/ledger"
	"github.com/aristath/forecaster/internal/metrics"
	"github.com/aristath/forecaster/internal/modules/features"
	"github.com/aristath/forecaster/internal/modules/prediction"
	"github.com/aristath/forecaster/internal/modules/sentiment"
	"github.com/aristath/forecaster/internal/modules/training"
	"github.com/aristath/forecaster/internal/reliability"
)

// Container holds all dependencies of one process.
// LedgerDB and Ledger are nil when the ledger is disabled.
type Container struct {
	// Storage
	Cache    *clientdata.Store
	Models   *artifacts.Store
	Mirror   artifacts.Mirror // nil unless the S3 mirror is enabled
	LedgerDB *database.DB
	Ledger   *ledger.Ledger

	// Clients
	Quotes *yahoo.Client
	Rates  *exchangerate.Client

	// Services
	Sentiment  *sentiment.Service
	Assembler  *features.Assembler
	Params     *training.ParamsResolver
	Trainer    *training.Trainer
	Prediction *prediction.Service
	Backup     *reliability.BackupService // nil without both ledger and mirror

	// Metrics
	Registry *prometheus.Registry
	Metrics  *metrics.Recorder

	log zerolog.Logger
}

// Close releases the container's resources
func (c *Container) Close() error {
	if c.LedgerDB == nil {
		return nil
	}
	if err := c.LedgerDB.Close(); err != nil {
		c.log.Error().Err(err).Msg("Failed to close ledger database")
		return err
	}
	return nil
}
