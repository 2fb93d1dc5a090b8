// Package main is the entry point of the next-day close forecaster.
//
// Commands:
//
//	run <SYMBOL|MARKET>   print one JSON forecast (or the market overview) on stdout
//	news <SYMBOL>         print the cached headline digest of a symbol
//	train [SYMBOL...]     fit and store models, defaulting to the configured symbols
//	tune <SYMBOL>         randomized hyperparameter search, saved to the best-params file
//	serve                 HTTP API with the nightly retrain schedule
//
// Logs always go to stderr; stdout carries the response.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/forecaster/internal/config"
	"github.com/aristath/forecaster/internal/di"
	"github.com/aristath/forecaster/internal/modules/training"
	"github.com/aristath/forecaster/internal/scheduler"
	"github.com/aristath/forecaster/internal/server"
	"github.com/aristath/forecaster/internal/utils"
	"github.com/aristath/forecaster/internal/version"
	"github.com/aristath/forecaster/internal/worker"
	"github.com/aristath/forecaster/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults to FORECAST_CONFIG)")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	var code int
	switch args[0] {
	case "run", "news":
		// Configuration and wiring happen inside the worker so that even a
		// broken environment is reported as a JSON line
		code = workerCommand(ctx, *configPath, args[0], args[1:])
	case "train":
		code = withEnvironment(ctx, *configPath, func(c *di.Container, cfg *config.Config, log zerolog.Logger) int {
			return trainCommand(ctx, c, cfg, log, args[1:])
		})
	case "tune":
		code = withEnvironment(ctx, *configPath, func(c *di.Container, cfg *config.Config, log zerolog.Logger) int {
			return tuneCommand(ctx, c, log, args[1:])
		})
	case "serve":
		code = withEnvironment(ctx, *configPath, func(c *di.Container, cfg *config.Config, log zerolog.Logger) int {
			return serveCommand(ctx, c, cfg, log, args[1:])
		})
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		code = 2
	}

	stop()
	os.Exit(code)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: forecaster [-config file] <command> [arguments]

Commands:
  run <SYMBOL|MARKET>   forecast the next close of SYMBOL, or the market overview
  news <SYMBOL>         headline digest and sentiment of SYMBOL
  train [SYMBOL...]     train and store models
  tune <SYMBOL>         search ensemble hyperparameters
  serve                 start the HTTP API and scheduler
`)
	flag.PrintDefaults()
}

// workerCommand answers a single request with exactly one JSON line
func workerCommand(ctx context.Context, configPath, command string, args []string) int {
	log := logger.New(logger.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Pretty: os.Getenv("LOG_PRETTY") == "true",
	})

	w := worker.New(log)
	err := w.Run(ctx, func(ctx context.Context) (interface{}, error) {
		symbol, err := worker.Symbol(args)
		if err != nil {
			return nil, err
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		c, err := di.Wire(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		defer c.Close()

		switch {
		case command == "news":
			return c.Sentiment.Digest(ctx, symbol, cfg.Cache.NewsTTL), nil
		case symbol == worker.MarketSymbol:
			return c.Prediction.MarketOverview(ctx), nil
		default:
			return c.Prediction.Predict(ctx, symbol), nil
		}
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to write response")
		return 1
	}
	return 0
}

// withEnvironment loads configuration, wires the container and runs fn
func withEnvironment(ctx context.Context, configPath string, fn func(*di.Container, *config.Config, zerolog.Logger) int) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	c, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to wire dependencies")
		return 1
	}
	defer c.Close()

	return fn(c, cfg, log)
}

// trainCommand trains every symbol and prints one report line per symbol
func trainCommand(ctx context.Context, c *di.Container, cfg *config.Config, log zerolog.Logger, args []string) int {
	symbols := utils.NormalizeSymbols(args)
	if len(symbols) == 0 {
		symbols = utils.NormalizeSymbols(cfg.Training.Symbols)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)

	failed := 0
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			log.Warn().Msg("Training interrupted")
			return 1
		}

		report, err := c.Trainer.Train(ctx, symbol)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("Training failed")
			failed++
			continue
		}
		if err := enc.Encode(report); err != nil {
			log.Error().Err(err).Msg("Failed to print report")
		}
	}

	if failed > 0 {
		log.Warn().Int("failed", failed).Int("total", len(symbols)).Msg("Some symbols failed to train")
		return 1
	}
	return 0
}

// tuneCommand runs the hyperparameter search for one symbol
func tuneCommand(ctx context.Context, c *di.Container, log zerolog.Logger, args []string) int {
	fs := flag.NewFlagSet("tune", flag.ContinueOnError)
	iterations := fs.Int("iterations", 50, "candidates to evaluate")
	folds := fs.Int("folds", 5, "walk-forward folds")
	seed := fs.Int64("seed", 42, "sampling seed")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	symbol, err := worker.Symbol(fs.Args())
	if err != nil {
		log.Error().Err(err).Msg("Usage: forecaster tune [-iterations n] [-folds k] [-seed s] <SYMBOL>")
		return 2
	}

	res, err := c.Trainer.Tune(ctx, symbol, training.TuneConfig{
		Iterations: *iterations,
		Folds:      *folds,
		Seed:       *seed,
	})
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Tuning failed")
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(res); err != nil {
		log.Error().Err(err).Msg("Failed to print result")
		return 1
	}
	return 0
}

// serveCommand runs the HTTP API until a shutdown signal arrives
func serveCommand(ctx context.Context, c *di.Container, cfg *config.Config, log zerolog.Logger, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	withScheduler := fs.Bool("scheduler", true, "run the retrain and maintenance jobs")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log.Info().Str("version", version.Version).Msg("Starting forecaster")

	var sched *scheduler.Scheduler
	if *withScheduler {
		sched = scheduler.New(log)
		if _, err := di.RegisterJobs(sched, c, cfg, log); err != nil {
			log.Error().Err(err).Msg("Failed to register jobs")
			return 1
		}
		sched.Start()
	}

	srvCfg := server.Config{
		Log:       log,
		Port:      cfg.Server.Port,
		DevMode:   cfg.Server.DevMode,
		Predictor: c.Prediction,
		News:      c.Sentiment,
		NewsTTL:   cfg.Cache.NewsTTL,
		Gatherer:  c.Registry,
		Version:   version.Version,
	}
	if c.Ledger != nil {
		srvCfg.Ledger = c.Ledger
	}
	srv := server.New(srvCfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	code := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error().Err(err).Msg("Server stopped unexpectedly")
		code = 1
	}

	log.Info().Msg("Shutting down...")

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
	return code
}
