package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/aristath/forecaster/internal/artifacts"
	"github.com/aristath/forecaster/internal/clientdata"
	"github.com/aristath/forecaster/internal/clients/exchangerate"
	"github.com/aristath/forecaster/internal/clients/yahoo"
	"github.com/aristath/forecaster/internal/config"
	"github.com/aristath/forecaster/internal/metrics"
	"github.com/aristath/forecaster/internal/modules/features"
	"github.com/aristath/forecaster/internal/modules/prediction"
	"github.com/aristath/forecaster/internal/modules/sentiment"
	"github.com/aristath/forecaster/internal/modules/training"
	"github.com/aristath/forecaster/internal/reliability"
	"github.com/aristath/forecaster/internal/version"
)

// InitializeClients creates the storage layers and external clients
func InitializeClients(ctx context.Context, c *Container, cfg *config.Config, log zerolog.Logger) error {
	c.Cache = clientdata.NewStore(cfg.CacheDir, time.Now)

	var mirror artifacts.Mirror
	if cfg.Mirror.Enabled {
		m, err := artifacts.NewS3Mirror(ctx, artifacts.S3Config{
			Bucket:          cfg.Mirror.Bucket,
			Endpoint:        cfg.Mirror.Endpoint,
			Region:          cfg.Mirror.Region,
			AccessKeyID:     cfg.Mirror.AccessKeyID,
			SecretAccessKey: cfg.Mirror.SecretAccessKey,
			Prefix:          cfg.Mirror.Prefix,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create artifact mirror: %w", err)
		}
		mirror = m
		c.Mirror = m
	}
	c.Models = artifacts.NewStore(cfg.ModelDir, mirror, log)

	c.Quotes = yahoo.NewClient(cfg.Quotes.Suffix, cfg.Quotes.Aliases, log)
	c.Rates = exchangerate.NewClient(exchangerate.Config{
		URL:      cfg.ExchangeRate.URL,
		Fallback: cfg.ExchangeRate.Fallback,
		TTL:      cfg.Cache.ExchangeRateTTL,
		Timeout:  cfg.ExchangeRate.Timeout,
	}, c.Cache, log)

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.New(c.Registry)

	return nil
}

// InitializeServices creates the sentiment, feature, training and prediction services
func InitializeServices(c *Container, cfg *config.Config, log zerolog.Logger) {
	scraper := sentiment.NewScraper(
		[]sentiment.Source{
			sentiment.CafeF(cfg.News.CafeFURL),
			sentiment.VnExpress(cfg.News.VnExpressURL),
		},
		cfg.News.UserAgent,
		cfg.News.Timeout,
		cfg.News.Pause,
		log,
	)

	var translator sentiment.Translator
	if cfg.News.TranslateURL != "" {
		translator = sentiment.NewLibreTranslate(cfg.News.TranslateURL, cfg.News.Timeout)
	}

	c.Sentiment = sentiment.NewService(c.Cache, scraper, translator, sentiment.NewLexicon(), cfg.News.MaxHeadlines, log)
	if translator != nil {
		c.Sentiment.SetEnglishAnalyzer(sentiment.NewVader())
	}

	c.Assembler = features.NewAssembler(features.Config{
		Quotes:       c.Quotes,
		Fundamentals: c.Quotes,
		Rates:        c.Rates,
		Sentiment:    c.Sentiment,
		Benchmark:    cfg.Quotes.Benchmark,
		SentimentTTL: cfg.Cache.SentimentTTL,
		RateFallback: cfg.ExchangeRate.Fallback,
	}, log)

	c.Params = training.NewParamsResolver(cfg.BestParamsPath(), cfg.Training.ForeignParamsFallback, log)
	c.Trainer = training.NewTrainer(c.Quotes, c.Assembler, c.Models, c.Params, training.Config{
		HistoryDays:  cfg.Training.HistoryDays,
		TestFraction: cfg.Training.TestFraction,
	}, log)
	c.Trainer.SetObserver(c.Metrics)

	c.Prediction = prediction.NewService(prediction.Config{
		WindowDays:       cfg.Prediction.WindowDays,
		HistoryPoints:    cfg.Prediction.HistoryPoints,
		TopFeatures:      cfg.Prediction.TopFeatures,
		CacheTTL:         cfg.Cache.PredictionTTL,
		MarketWindowDays: cfg.Prediction.MarketWindowDays,
		MarketIndices:    cfg.Prediction.MarketIndices,
		MarketStocks:     cfg.Prediction.MarketStocks,
	}, c.Quotes, c.Assembler, c.Models, c.Trainer, c.Cache, log)
	c.Prediction.SetObserver(c.Metrics)
	if c.Ledger != nil {
		c.Prediction.SetLedger(c.Ledger)
	}

	if c.LedgerDB != nil && c.Mirror != nil {
		c.Backup = reliability.NewBackupService(cfg.DataDir, c.Mirror, version.Version, log, c.LedgerDB)
	}
}
