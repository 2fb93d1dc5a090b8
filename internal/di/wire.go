package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/forecaster/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container
// Order of operations:
// 1. Initialize databases
// 2. Initialize clients and storage
// 3. Initialize services
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	// Step 1: Initialize databases
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	// Step 2: Initialize clients and storage
	if err := InitializeClients(ctx, container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	// Step 3: Initialize services
	InitializeServices(container, cfg, log)

	log.Debug().Msg("Dependency injection wiring completed successfully")

	return container, nil
}
