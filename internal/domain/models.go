// Package domain holds the market data types shared by every pipeline stage.
package domain

import (
	"math"
	"sort"
	"time"
)

// Bar is one daily OHLCV observation. Prices are in local currency (VND).
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Ratios are the latest fundamental ratios of a listed company
type Ratios struct {
	EPS float64 `json:"eps"`
	PE  float64 `json:"pe"`
	PB  float64 `json:"pb"`
	ROE float64 `json:"roe"`
	ROA float64 `json:"roa"`
}

// Sanitized returns a copy with non-finite ratios replaced by zero
func (r Ratios) Sanitized() Ratios {
	clean := func(v float64) float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return v
	}
	return Ratios{
		EPS: clean(r.EPS),
		PE:  clean(r.PE),
		PB:  clean(r.PB),
		ROE: clean(r.ROE),
		ROA: clean(r.ROA),
	}
}

// DateKey formats t as the calendar date used to align series
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// SortBars orders bars by time ascending in place
func SortBars(bars []Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Time.Before(bars[j].Time)
	})
}

// Closes extracts closing prices
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
