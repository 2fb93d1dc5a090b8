// Package prediction serves next-day forecasts from persisted artifacts and
// the market overview.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aristath/forecaster/internal/artifacts"
	"github.com/aristath/forecaster/internal/clientdata"
	"github.com/aristath/forecaster/internal/domain"
	"github.com/aristath/forecaster/internal/ledger"
	"github.com/aristath/forecaster/internal/modules/features"
	"github.com/aristath/forecaster/internal/utils"
	"github.com/rs/zerolog"
)

// ErrNoData is returned when the quote provider has no recent bars
var ErrNoData = errors.New("No data available")

// Outcomes reported to the observer
const (
	OutcomeCached = "cached"
	OutcomeFresh  = "fresh"
	OutcomeFailed = "failed"
)

// CacheFile is the prediction cache name for symbol
func CacheFile(symbol string) string {
	return fmt.Sprintf("prediction_%s.json", strings.ToUpper(symbol))
}

// Trainer trains a missing model on demand
type Trainer interface {
	TrainAndSave(ctx context.Context, symbol string) bool
}

// Ledger records fresh forecasts
type Ledger interface {
	Append(ctx context.Context, e ledger.Entry) (string, error)
	Settle(ctx context.Context, symbol string, bars []domain.Bar) (int, error)
}

// Observer is told about every served prediction
type Observer interface {
	PredictionServed(symbol, outcome string)
	RecordForecast(symbol string, value float64)
	RecordLatency(op string, elapsed time.Duration)
}

// Config holds the service windows
type Config struct {
	WindowDays       int
	HistoryPoints    int
	TopFeatures      int
	CacheTTL         time.Duration
	MarketWindowDays int
	MarketIndices    []string
	MarketStocks     []string
}

// Service produces forecasts
type Service struct {
	cfg       Config
	quotes    domain.QuoteProvider
	assembler *features.Assembler
	models    *artifacts.Store
	trainer   Trainer
	cache     *clientdata.Store
	ledger    Ledger
	observer  Observer
	log       zerolog.Logger
}

// NewService creates a prediction service
func NewService(cfg Config, quotes domain.QuoteProvider, assembler *features.Assembler, models *artifacts.Store, trainer Trainer, cache *clientdata.Store, log zerolog.Logger) *Service {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 90
	}
	if cfg.HistoryPoints <= 0 {
		cfg.HistoryPoints = 30
	}
	if cfg.TopFeatures <= 0 {
		cfg.TopFeatures = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = clientdata.TTLPrediction
	}
	if cfg.MarketWindowDays <= 0 {
		cfg.MarketWindowDays = 5
	}
	if cfg.MarketIndices == nil {
		cfg.MarketIndices = []string{"VNINDEX", "HNXINDEX", "UPINDEX"}
	}
	if cfg.MarketStocks == nil {
		cfg.MarketStocks = []string{"VCB", "VHM", "VIC", "HPG", "FPT", "MSN", "MWG", "VPB", "TCB", "VNM"}
	}
	return &Service{
		cfg:       cfg,
		quotes:    quotes,
		assembler: assembler,
		models:    models,
		trainer:   trainer,
		cache:     cache,
		log:       log.With().Str("service", "prediction").Logger(),
	}
}

// SetLedger enables forecast recording
func (s *Service) SetLedger(l Ledger) {
	s.ledger = l
}

// SetObserver registers a metrics observer
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// Predict returns the forecast for symbol or a failure. It never panics.
func (s *Service) Predict(ctx context.Context, symbol string) (res Result) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("symbol", symbol).Interface("panic", r).Msg("Prediction panicked")
			res = Fail(fmt.Sprint(r))
		}
		s.observe(symbol, res)
	}()

	if cached, ok := s.cached(symbol); ok {
		return Result{Forecast: cached}
	}

	if !s.models.Exists(symbol) {
		if failure := s.provision(ctx, symbol); failure != nil {
			return Result{Failure: failure}
		}
	}

	forecast, err := s.forecast(ctx, symbol)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("Prediction failed")
		return Fail(err.Error())
	}

	if err := s.cache.Write(CacheFile(symbol), forecast); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to save prediction cache")
	}
	return Result{Forecast: forecast}
}

func (s *Service) observe(symbol string, res Result) {
	if s.observer == nil {
		return
	}
	switch {
	case res.Failure != nil:
		s.observer.PredictionServed(symbol, OutcomeFailed)
	case res.Forecast != nil && res.Forecast.Cached:
		s.observer.PredictionServed(symbol, OutcomeCached)
	case res.Forecast != nil:
		s.observer.PredictionServed(symbol, OutcomeFresh)
		s.observer.RecordForecast(symbol, res.Forecast.Prediction)
	}
}

// latency returns the observer as a latency recorder, nil when unset
func (s *Service) latency() utils.LatencyRecorder {
	if s.observer == nil {
		return nil
	}
	return s.observer
}

// cached returns a fresh stored payload. Unreadable entries are misses.
func (s *Service) cached(symbol string) (*Forecast, bool) {
	name := CacheFile(symbol)
	age, err := s.cache.Age(name)
	if err != nil || age >= s.cfg.CacheTTL {
		return nil, false
	}

	var f Forecast
	if err := s.cache.Read(name, &f); err != nil {
		return nil, false
	}

	minutes := int(age / time.Minute)
	f.Cached = true
	f.CacheAgeMinutes = &minutes
	s.log.Debug().Str("symbol", symbol).Int("age_minutes", minutes).Msg("Using cached prediction")
	return &f, true
}

// provision makes the artifacts of symbol available, pulling from the
// mirror first and training otherwise
func (s *Service) provision(ctx context.Context, symbol string) *Failure {
	if s.models.HasMirror() {
		err := s.models.Pull(ctx, symbol)
		if err == nil && s.models.Exists(symbol) {
			return nil
		}
		s.log.Info().Err(err).Str("symbol", symbol).Msg("Artifacts unavailable in mirror")
	}

	if s.trainer == nil {
		return &Failure{Error: fmt.Sprintf("Model not found for %s.", symbol), Training: true}
	}

	s.log.Warn().Str("symbol", symbol).Msg("Model not found, training on demand")
	if !s.trainer.TrainAndSave(ctx, symbol) {
		return &Failure{Error: fmt.Sprintf("Failed to train model for %s.", symbol), Training: true}
	}
	s.log.Info().Str("symbol", symbol).Msg("On-demand training completed")
	return nil
}

func (s *Service) forecast(ctx context.Context, symbol string) (*Forecast, error) {
	defer utils.OperationTimer("forecast", s.log, s.latency())()

	model, err := s.models.LoadEnsemble(symbol)
	if err != nil {
		return nil, err
	}
	names, err := s.models.LoadFeatures(symbol)
	if err != nil {
		return nil, err
	}
	if err := features.CheckOrder(names, model.FeatureNames); err != nil {
		return nil, fmt.Errorf("ensemble of %s: %w", symbol, err)
	}

	end := s.cache.Now()
	start := end.AddDate(0, 0, -s.cfg.WindowDays)
	bars, err := s.quotes.Bars(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s bars: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}

	frame, _, err := s.assembler.Prepare(ctx, bars, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if frame.Len() == 0 {
		return nil, ErrNoData
	}
	if err := features.CheckSchema(names, frame); err != nil {
		return nil, err
	}

	last := frame.Len() - 1
	row, err := frame.Row(last, names)
	if err != nil {
		return nil, err
	}
	predicted := model.Predict(row)
	latestClose := frame.Value("close", last)
	if math.IsNaN(predicted) || latestClose == 0 {
		return nil, fmt.Errorf("prediction for %s is undefined", symbol)
	}

	tail := frame.Tail(s.cfg.HistoryPoints)
	closes, _ := tail.Column("close")
	history := make([]HistoryPoint, tail.Len())
	for i := range history {
		history[i] = HistoryPoint{Date: domain.DateKey(tail.Dates[i]), Price: closes[i]}
	}

	forecast := &Forecast{
		Symbol:      symbol,
		LatestDate:  domain.DateKey(frame.Dates[last]),
		LatestClose: latestClose,
		Prediction:  predicted,
		Change:      predicted - latestClose,
		ChangePct:   (predicted - latestClose) / latestClose * 100,
		Indicators: Indicators{
			RSI:   zeroIfNaN(frame.Value("RSI", last)),
			MACD:  zeroIfNaN(frame.Value("MACD", last)),
			BBPos: zeroIfNaN(frame.Value("BB_position", last)),
		},
		History:     history,
		TopFeatures: model.TopFeatures(s.cfg.TopFeatures),
	}

	s.record(ctx, forecast, bars)
	return forecast, nil
}

func (s *Service) record(ctx context.Context, f *Forecast, bars []domain.Bar) {
	if s.ledger == nil {
		return
	}
	if _, err := s.ledger.Settle(ctx, f.Symbol, bars); err != nil {
		s.log.Warn().Err(err).Str("symbol", f.Symbol).Msg("Failed to settle ledger")
	}
	_, err := s.ledger.Append(ctx, ledger.Entry{
		Symbol:      f.Symbol,
		LatestDate:  f.LatestDate,
		LatestClose: f.LatestClose,
		Prediction:  f.Prediction,
		ChangePct:   f.ChangePct,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", f.Symbol).Msg("Failed to record forecast")
	}
}

func zeroIfNaN(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
