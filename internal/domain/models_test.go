package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRatios_Sanitized(t *testing.T) {
	r := Ratios{EPS: math.NaN(), PE: 12.5, PB: math.Inf(1), ROE: 0.18, ROA: math.Inf(-1)}

	clean := r.Sanitized()

	assert.Equal(t, Ratios{EPS: 0, PE: 12.5, PB: 0, ROE: 0.18, ROA: 0}, clean)
}

func TestSortBars(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	bars := []Bar{{Time: day(3), Close: 3}, {Time: day(1), Close: 1}, {Time: day(2), Close: 2}}

	SortBars(bars)

	assert.Equal(t, []float64{1, 2, 3}, Closes(bars))
	assert.Equal(t, "2024-01-01", DateKey(bars[0].Time))
}
