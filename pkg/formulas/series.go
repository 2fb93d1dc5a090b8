// Package formulas computes indicator series over daily price data.
//
// Every function returns a slice aligned with its input. Positions inside an
// indicator's warm-up window hold NaN so callers can drop incomplete rows.
package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// NaNs returns a slice of n NaN values
func NaNs(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Constant returns a slice of n copies of v
func Constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// go-talib fills the warm-up window with zeros; replace them with NaN.
func maskWarmup(out []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// RSI returns the Relative Strength Index (Wilder smoothing)
func RSI(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return NaNs(len(closes))
	}
	return maskWarmup(talib.Rsi(closes, period), period)
}

// MACD returns the MACD line (fast EMA minus slow EMA), its signal line
// (EMA of the MACD line) and the histogram (MACD minus signal).
// The line is defined from slow-1 and the signal from slow+signal-2.
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist []float64) {
	n := len(closes)
	line, sig, hist = NaNs(n), NaNs(n), NaNs(n)
	if n < slow {
		return line, sig, hist
	}

	fastEMA := talib.Ema(closes, fast)
	slowEMA := talib.Ema(closes, slow)
	for i := slow - 1; i < n; i++ {
		line[i] = fastEMA[i] - slowEMA[i]
	}

	defined := line[slow-1:]
	if len(defined) < signal {
		return line, sig, hist
	}
	signalEMA := talib.Ema(defined, signal)
	for j := signal - 1; j < len(defined); j++ {
		i := slow - 1 + j
		sig[i] = signalEMA[j]
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}

// Bollinger returns the upper, middle and lower bands using an SMA middle
// band and population standard deviation.
func Bollinger(closes []float64, period int, k float64) (upper, middle, lower []float64) {
	if len(closes) < period {
		return NaNs(len(closes)), NaNs(len(closes)), NaNs(len(closes))
	}
	upper, middle, lower = talib.BBands(closes, period, k, k, talib.SMA)
	lookback := period - 1
	return maskWarmup(upper, lookback), maskWarmup(middle, lookback), maskWarmup(lower, lookback)
}

// EMA returns the exponential moving average
func EMA(values []float64, period int) []float64 {
	if len(values) < period {
		return NaNs(len(values))
	}
	return maskWarmup(talib.Ema(values, period), period-1)
}

// SMA returns the simple moving average
func SMA(values []float64, period int) []float64 {
	if len(values) < period {
		return NaNs(len(values))
	}
	return maskWarmup(talib.Sma(values, period), period-1)
}

// Momentum returns the fractional change over n periods:
// (v[i] - v[i-n]) / v[i-n]
func Momentum(values []float64, n int) []float64 {
	if len(values) <= n {
		return NaNs(len(values))
	}
	out := maskWarmup(talib.Rocp(values, n), n)
	for i := n; i < len(values); i++ {
		if values[i-n] == 0 {
			out[i] = math.NaN()
		}
	}
	return out
}

// VWAP returns the rolling volume-weighted average of the typical price
// (high+low+close)/3 over window bars. Windows with no volume are NaN.
func VWAP(high, low, closes, volume []float64, window int) []float64 {
	n := len(closes)
	out := NaNs(n)
	if window <= 0 || len(high) != n || len(low) != n || len(volume) != n {
		return out
	}

	var pv, vol float64
	for i := 0; i < n; i++ {
		typical := (high[i] + low[i] + closes[i]) / 3
		pv += typical * volume[i]
		vol += volume[i]
		if i >= window {
			old := (high[i-window] + low[i-window] + closes[i-window]) / 3
			pv -= old * volume[i-window]
			vol -= volume[i-window]
		}
		if i >= window-1 && vol > 0 {
			out[i] = pv / vol
		}
	}
	return out
}

// Ratio divides a by b element-wise; zero or NaN denominators give NaN
func Ratio(a, b []float64) []float64 {
	out := NaNs(len(a))
	for i := range a {
		if i < len(b) && b[i] != 0 && !isNaN(b[i]) {
			out[i] = a[i] / b[i]
		}
	}
	return out
}

// Diff returns a - b element-wise
func Diff(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

// BandPosition returns where value sits between lower and upper (0 at lower,
// 1 at upper). A zero-width band gives NaN.
func BandPosition(value, lower, upper []float64) []float64 {
	out := NaNs(len(value))
	for i := range value {
		width := upper[i] - lower[i]
		if width != 0 && !isNaN(width) {
			out[i] = (value[i] - lower[i]) / width
		}
	}
	return out
}

func isNaN(v float64) bool {
	return math.IsNaN(v)
}
