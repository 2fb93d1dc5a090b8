package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestSMA(t *testing.T) {
	values := linear(10, 1, 1) // 1..10

	sma := SMA(values, 5)

	require.Len(t, sma, 10)
	for i := 0; i < 4; i++ {
		assert.True(t, math.IsNaN(sma[i]), "index %d should be warm-up", i)
	}
	assert.InDelta(t, 3.0, sma[4], 1e-9)
	assert.InDelta(t, 8.0, sma[9], 1e-9)
}

func TestShortInputsAreAllNaN(t *testing.T) {
	short := linear(3, 10, 1)

	tests := []struct {
		name string
		out  []float64
	}{
		{"rsi", RSI(short, 14)},
		{"ema", EMA(short, 12)},
		{"sma", SMA(short, 20)},
		{"momentum", Momentum(short, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Len(t, tt.out, 3)
			for _, v := range tt.out {
				assert.True(t, math.IsNaN(v))
			}
		})
	}

	line, sig, hist := MACD(short, 12, 26, 9)
	assert.True(t, math.IsNaN(line[2]) && math.IsNaN(sig[2]) && math.IsNaN(hist[2]))
}

func TestRSI_Uptrend(t *testing.T) {
	rsi := RSI(linear(40, 100, 1), 14)

	assert.True(t, math.IsNaN(rsi[13]))
	assert.InDelta(t, 100.0, rsi[39], 1e-6)
}

func TestMACD_WarmupAndHistogram(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)/6)
	}

	line, sig, hist := MACD(closes, 12, 26, 9)

	assert.True(t, math.IsNaN(line[24]))
	assert.False(t, math.IsNaN(line[25]))
	assert.True(t, math.IsNaN(sig[32]))
	assert.False(t, math.IsNaN(sig[33]))
	for i := 33; i < len(closes); i++ {
		assert.InDelta(t, line[i]-sig[i], hist[i], 1e-9)
	}
}

func TestBollinger_ConstantSeriesCollapses(t *testing.T) {
	upper, middle, lower := Bollinger(Constant(30, 50), 20, 2)

	assert.True(t, math.IsNaN(middle[18]))
	assert.InDelta(t, 50.0, middle[29], 1e-9)
	assert.InDelta(t, 50.0, upper[29], 1e-9)
	assert.InDelta(t, 50.0, lower[29], 1e-9)

	pos := BandPosition(Constant(30, 50), lower, upper)
	assert.True(t, math.IsNaN(pos[29]), "zero-width band has no position")
}

func TestMomentum(t *testing.T) {
	values := []float64{100, 110, 121, 0, 50}

	m := Momentum(values, 1)

	assert.True(t, math.IsNaN(m[0]))
	assert.InDelta(t, 0.1, m[1], 1e-9)
	assert.InDelta(t, 0.1, m[2], 1e-9)
	assert.InDelta(t, -1.0, m[3], 1e-9)
	assert.True(t, math.IsNaN(m[4]), "zero base gives NaN")
}

func TestVWAP(t *testing.T) {
	high := []float64{12, 12, 12, 24}
	low := []float64{8, 8, 8, 16}
	closes := []float64{10, 10, 10, 20}
	volume := []float64{1, 1, 1, 3}

	vwap := VWAP(high, low, closes, volume, 2)

	assert.True(t, math.IsNaN(vwap[0]))
	assert.InDelta(t, 10.0, vwap[1], 1e-9)
	assert.InDelta(t, 10.0, vwap[2], 1e-9)
	assert.InDelta(t, (10.0*1+20.0*3)/4, vwap[3], 1e-9)
}

func TestVWAP_NoVolume(t *testing.T) {
	vwap := VWAP(Constant(3, 1), Constant(3, 1), Constant(3, 1), Constant(3, 0), 2)

	for _, v := range vwap {
		assert.True(t, math.IsNaN(v))
	}
}

func TestRatioAndDiff(t *testing.T) {
	r := Ratio([]float64{4, 5, 6}, []float64{2, 0, math.NaN()})

	assert.InDelta(t, 2.0, r[0], 1e-9)
	assert.True(t, math.IsNaN(r[1]))
	assert.True(t, math.IsNaN(r[2]))
	assert.Equal(t, []float64{1, 1}, Diff([]float64{3, 4}, []float64{2, 3}))
}

func TestStats(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
	assert.True(t, Finite(1))
	assert.False(t, Finite(math.Inf(1)))
}
