// Package features turns daily bars into the model's feature table: technical
// indicators, fundamental ratios, macro series, news sentiment and the
// next-day close target.
package features

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/aristath/forecaster/internal/domain"
	"github.com/aristath/forecaster/pkg/formulas"
	"github.com/rs/zerolog"
)

// ErrNoBars is returned when there is nothing to assemble
var ErrNoBars = errors.New("no bars to assemble")

// MacroColumn holds the benchmark index close
const MacroColumn = "VNINDEX"

// NeutralSentiment replaces a sentiment score that could not be obtained
const NeutralSentiment = 0.5

// Indicator windows
const (
	rsiPeriod    = 14
	macdFast     = 12
	macdSlow     = 26
	macdSignal   = 9
	bbPeriod     = 20
	bbDeviations = 2.0
	volumeWindow = 20
	vwapWindow   = 14
)

// Report summarises one assembly run
type Report struct {
	InitialRows int `json:"initial_rows"`
	Rows        int `json:"rows"`
	DroppedRows int `json:"dropped_rows"`
	Features    int `json:"features"`
}

// Config holds the assembler's collaborators. Any provider may be nil, in
// which case its columns take their fallback values.
type Config struct {
	Quotes       domain.QuoteProvider
	Fundamentals domain.FundamentalsProvider
	Rates        domain.RateSource
	Sentiment    domain.SentimentSource
	Benchmark    string        // Index whose close becomes the macro column
	SentimentTTL time.Duration // Freshness window passed to the sentiment source
	RateFallback float64       // Used when Rates is nil
}

// Assembler builds feature frames
type Assembler struct {
	cfg Config
	log zerolog.Logger
}

// NewAssembler creates a feature assembler
func NewAssembler(cfg Config, log zerolog.Logger) *Assembler {
	if cfg.Benchmark == "" {
		cfg.Benchmark = "VNINDEX"
	}
	if cfg.SentimentTTL <= 0 {
		cfg.SentimentTTL = 24 * time.Hour
	}
	if cfg.RateFallback <= 0 {
		cfg.RateFallback = 25400
	}
	return &Assembler{
		cfg: cfg,
		log: log.With().Str("component", "features").Logger(),
	}
}

// Prepare assembles the feature frame for symbol from bars covering
// [start, end]. Rows with any undefined feature are dropped; the target is
// ignored by that cleanup so the latest row survives for inference.
func (a *Assembler) Prepare(ctx context.Context, bars []domain.Bar, symbol string, start, end time.Time) (*Frame, Report, error) {
	if len(bars) == 0 {
		return nil, Report{}, ErrNoBars
	}

	sorted := append([]domain.Bar(nil), bars...)
	domain.SortBars(sorted)

	f := a.rawFrame(sorted)
	a.addTechnical(f)
	a.addFundamentals(ctx, f, symbol)
	a.addMacro(ctx, f, start, end)
	a.addSentiment(ctx, f, symbol)
	addTarget(f)

	names := FeatureColumns(f)
	clean := f.Filter(func(i int) bool {
		for _, name := range names {
			if !formulas.Finite(f.Value(name, i)) {
				return false
			}
		}
		return true
	})

	report := Report{
		InitialRows: f.Len(),
		Rows:        clean.Len(),
		DroppedRows: f.Len() - clean.Len(),
		Features:    len(names),
	}
	a.log.Info().
		Str("symbol", symbol).
		Int("initial_rows", report.InitialRows).
		Int("dropped_rows", report.DroppedRows).
		Int("features", report.Features).
		Msg("Features prepared")

	return clean, report, nil
}

func (a *Assembler) rawFrame(bars []domain.Bar) *Frame {
	n := len(bars)
	dates := make([]time.Time, n)
	open, high, low, closes, volume := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	for i, b := range bars {
		dates[i] = b.Time
		open[i], high[i], low[i], closes[i], volume[i] = b.Open, b.High, b.Low, b.Close, b.Volume
	}

	f := newFrame(dates)
	f.Set("open", open)
	f.Set("high", high)
	f.Set("low", low)
	f.Set("close", closes)
	f.Set("volume", volume)
	return f
}

func (a *Assembler) addTechnical(f *Frame) {
	closes, _ := f.Column("close")
	high, _ := f.Column("high")
	low, _ := f.Column("low")
	volume, _ := f.Column("volume")

	f.Set("RSI", formulas.RSI(closes, rsiPeriod))

	macd, signal, diff := formulas.MACD(closes, macdFast, macdSlow, macdSignal)
	f.Set("MACD", macd)
	f.Set("MACD_signal", signal)
	f.Set("MACD_diff", diff)

	upper, middle, lower := formulas.Bollinger(closes, bbPeriod, bbDeviations)
	f.Set("BB_high", upper)
	f.Set("BB_mid", middle)
	f.Set("BB_low", lower)
	f.Set("BB_width", formulas.Diff(upper, lower))
	f.Set("BB_position", formulas.BandPosition(closes, lower, upper))

	f.Set("EMA_12", formulas.EMA(closes, 12))
	f.Set("EMA_26", formulas.EMA(closes, 26))

	volumeSMA := formulas.SMA(volume, volumeWindow)
	f.Set("volume_sma", volumeSMA)
	f.Set("volume_ratio", formulas.Ratio(volume, volumeSMA))
	f.Set("VWAP", formulas.VWAP(high, low, closes, volume, vwapWindow))

	f.Set("momentum_1d", formulas.Momentum(closes, 1))
	f.Set("momentum_5d", formulas.Momentum(closes, 5))
	f.Set("momentum_10d", formulas.Momentum(closes, 10))

	f.Set("SMA5", formulas.SMA(closes, 5))
	f.Set("SMA20", formulas.SMA(closes, 20))
	f.Set("SMA50", formulas.SMA(closes, 50))
}

func (a *Assembler) addFundamentals(ctx context.Context, f *Frame, symbol string) {
	var ratios domain.Ratios
	if a.cfg.Fundamentals != nil {
		r, err := a.cfg.Fundamentals.Ratios(ctx, symbol)
		if err != nil {
			a.log.Warn().Err(err).Str("symbol", symbol).Msg("Could not fetch financial ratios, using zeros")
		} else {
			ratios = r.Sanitized()
		}
	}

	n := f.Len()
	f.Set("EPS", formulas.Constant(n, ratios.EPS))
	f.Set("PE", formulas.Constant(n, ratios.PE))
	f.Set("PB", formulas.Constant(n, ratios.PB))
	f.Set("ROE", formulas.Constant(n, ratios.ROE))
	f.Set("ROA", formulas.Constant(n, ratios.ROA))
}

// addMacro merges the benchmark close by calendar date, forward-filling then
// back-filling gaps. Without any overlapping benchmark data the column is the
// symbol's mean close.
func (a *Assembler) addMacro(ctx context.Context, f *Frame, start, end time.Time) {
	closes, _ := f.Column("close")
	benchmark := a.benchmarkSeries(ctx, f, start, end)
	if benchmark == nil {
		benchmark = formulas.Constant(f.Len(), formulas.Mean(closes))
	}
	f.Set(MacroColumn, benchmark)

	rate := a.cfg.RateFallback
	if a.cfg.Rates != nil {
		rate = a.cfg.Rates.GetRate(ctx)
	}
	f.Set("USD_VND", formulas.Constant(f.Len(), rate))
}

func (a *Assembler) benchmarkSeries(ctx context.Context, f *Frame, start, end time.Time) []float64 {
	if a.cfg.Quotes == nil {
		return nil
	}

	bars, err := a.cfg.Quotes.Bars(ctx, a.cfg.Benchmark, start, end)
	if err != nil {
		a.log.Warn().Err(err).Str("benchmark", a.cfg.Benchmark).Msg("Could not fetch benchmark, using mean close")
		return nil
	}

	byDate := make(map[string]float64, len(bars))
	for _, b := range bars {
		byDate[domain.DateKey(b.Time)] = b.Close
	}

	out := nanSlice(f.Len())
	matched := 0
	for i, d := range f.Dates {
		if v, ok := byDate[domain.DateKey(d)]; ok && formulas.Finite(v) {
			out[i] = v
			matched++
		}
	}
	if matched == 0 {
		a.log.Warn().Str("benchmark", a.cfg.Benchmark).Int("bars", len(bars)).Msg("Benchmark has no overlapping dates, using mean close")
		return nil
	}

	fillForward(out)
	fillBackward(out)
	return out
}

func (a *Assembler) addSentiment(ctx context.Context, f *Frame, symbol string) {
	f.Set("news_sentiment", formulas.Constant(f.Len(), a.sentiment(ctx, symbol)))
}

func (a *Assembler) sentiment(ctx context.Context, symbol string) (score float64) {
	if a.cfg.Sentiment == nil {
		return NeutralSentiment
	}
	defer func() {
		if r := recover(); r != nil {
			a.log.Warn().Interface("panic", r).Str("symbol", symbol).Msg("Sentiment failed, using neutral")
			score = NeutralSentiment
		}
	}()

	score = a.cfg.Sentiment.Score(ctx, symbol, a.cfg.SentimentTTL)
	if !formulas.Finite(score) || score < 0 || score > 1 {
		return NeutralSentiment
	}
	return score
}

func addTarget(f *Frame) {
	closes, _ := f.Column("close")
	for i := 0; i < len(closes)-1; i++ {
		f.Target[i] = closes[i+1]
	}
	if len(closes) > 0 {
		f.Target[len(closes)-1] = math.NaN()
	}
}

func fillForward(v []float64) {
	last := math.NaN()
	for i := range v {
		if formulas.Finite(v[i]) {
			last = v[i]
		} else if formulas.Finite(last) {
			v[i] = last
		}
	}
}

func fillBackward(v []float64) {
	next := math.NaN()
	for i := len(v) - 1; i >= 0; i-- {
		if formulas.Finite(v[i]) {
			next = v[i]
		} else if formulas.Finite(next) {
			v[i] = next
		}
	}
}
