package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/forecaster/internal/config"
	"github.com/aristath/forecaster/internal/database"
	"github.com/aristath/forecaster/internal/ledger"
)

// InitializeDatabases opens the ledger database when it is enabled
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{log: log.With().Str("component", "di").Logger()}

	if !cfg.Ledger.Enabled {
		log.Debug().Msg("Ledger disabled")
		return container, nil
	}

	db, err := database.New(database.Config{
		Path:    cfg.Ledger.Path,
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	repo := ledger.New(db.Conn(), log)
	if err := repo.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate ledger database: %w", err)
	}

	container.LedgerDB = db
	container.Ledger = repo
	return container, nil
}
