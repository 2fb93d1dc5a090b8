package domain

import (
	"context"
	"time"
)

// QuoteProvider returns daily bars for a symbol or index over [start, end]
type QuoteProvider interface {
	Bars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}

// FundamentalsProvider returns the latest fundamental ratios for a symbol
type FundamentalsProvider interface {
	Ratios(ctx context.Context, symbol string) (Ratios, error)
}

// RateSource returns the USD/VND exchange rate. It never fails: implementations
// fall back to a configured constant.
type RateSource interface {
	GetRate(ctx context.Context) float64
}

// SentimentSource returns a news sentiment score in [0, 1] for a symbol.
// Implementations return 0.5 when nothing is known.
type SentimentSource interface {
	Score(ctx context.Context, symbol string, ttl time.Duration) float64
}
