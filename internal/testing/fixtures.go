// Package testing provides fixtures and fake collaborators shared by the
// package tests.
package testing

import (
	"math"
	"math/rand"
	"time"

	"github.com/aristath/forecaster/internal/domain"
)

// TradingDays returns n weekdays ending at end (inclusive when end is a
// weekday), oldest first
func TradingDays(end time.Time, n int) []time.Time {
	day := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	days := make([]time.Time, 0, n)
	for len(days) < n {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, day)
		}
		day = day.AddDate(0, 0, -1)
	}
	for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
		days[i], days[j] = days[j], days[i]
	}
	return days
}

// UptrendBars returns n daily bars ending at end with a steady rise and a
// small oscillation, so every indicator window is well defined
func UptrendBars(n int, end time.Time) []domain.Bar {
	days := TradingDays(end, n)
	bars := make([]domain.Bar, n)
	prev := 100.0
	for i, d := range days {
		c := 100 + 0.5*float64(i) + 0.5*math.Sin(float64(i)/3)
		bars[i] = domain.Bar{
			Time:   d,
			Open:   prev,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1_000_000 + 100_000*float64((i*7)%10),
		}
		prev = c
	}
	return bars
}

// RandomWalkBars returns n deterministic random-walk bars ending at end
func RandomWalkBars(n int, seed int64, end time.Time) []domain.Bar {
	rng := rand.New(rand.NewSource(seed))
	days := TradingDays(end, n)
	bars := make([]domain.Bar, n)
	c := 50_000.0
	for i, d := range days {
		open := c
		c *= 1 + rng.NormFloat64()*0.015
		spread := c * (0.005 + rng.Float64()*0.01)
		bars[i] = domain.Bar{
			Time:   d,
			Open:   open,
			High:   math.Max(open, c) + spread,
			Low:    math.Min(open, c) - spread,
			Close:  c,
			Volume: 500_000 + rng.Float64()*1_500_000,
		}
	}
	return bars
}
