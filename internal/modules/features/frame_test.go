package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallFrame() *Frame {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	f := newFrame([]time.Time{day(1), day(2), day(3)})
	f.Set("volume", []float64{10, 20, 30})
	f.Set("close", []float64{1, 2, 3})
	f.Set("RSI", []float64{40, 50, 60})
	f.Set("news_sentiment", []float64{0.5, 0.5, 0.5})
	f.Target = []float64{2, 3, math.NaN()}
	return f
}

func TestFrame_RowFollowsRequestedOrder(t *testing.T) {
	f := smallFrame()

	row, err := f.Row(2, []string{"news_sentiment", "RSI", "close"})

	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 60, 3}, row)
}

func TestFrame_MatrixAdversarialOrder(t *testing.T) {
	f := smallFrame()
	frozen := []string{"RSI", "close", "news_sentiment"}

	m, err := f.Matrix(frozen)

	require.NoError(t, err)
	assert.Equal(t, [][]float64{{40, 1, 0.5}, {50, 2, 0.5}, {60, 3, 0.5}}, m)
}

func TestFrame_RowMissingColumn(t *testing.T) {
	_, err := smallFrame().Row(0, []string{"close", "MACD"})

	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestFrame_RowOutOfRange(t *testing.T) {
	_, err := smallFrame().Row(3, []string{"close"})

	assert.Error(t, err)
}

func TestFrame_LabeledAndTail(t *testing.T) {
	f := smallFrame()

	labeled := f.Labeled()
	assert.Equal(t, 2, labeled.Len())
	assert.Equal(t, []float64{2, 3}, labeled.Target)

	tail := f.Tail(2)
	assert.Equal(t, 2, tail.Len())
	assert.Equal(t, 2.0, tail.Value("close", 0))
	assert.Equal(t, 3, f.Tail(10).Len())
}

func TestFeatureColumns_ExcludesRawColumns(t *testing.T) {
	assert.Equal(t, []string{"close", "RSI", "news_sentiment"}, FeatureColumns(smallFrame()))
}

func TestCheckSchema(t *testing.T) {
	f := smallFrame()

	tests := []struct {
		name    string
		frozen  []string
		wantErr bool
	}{
		{"same set in another order", []string{"news_sentiment", "close", "RSI"}, false},
		{"frozen column missing from frame", []string{"close", "RSI", "news_sentiment", "MACD"}, true},
		{"frame has an extra column", []string{"close", "RSI"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSchema(tt.frozen, f)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSchemaMismatch)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckOrder(t *testing.T) {
	frozen := []string{"RSI", "MACD", "close"}

	assert.NoError(t, CheckOrder(frozen, []string{"RSI", "MACD", "close"}))
	assert.ErrorIs(t, CheckOrder(frozen, []string{"MACD", "RSI", "close"}), ErrSchemaMismatch)
	assert.ErrorIs(t, CheckOrder(frozen, []string{"RSI", "MACD"}), ErrSchemaMismatch)
	assert.ErrorIs(t, CheckOrder(frozen, nil), ErrSchemaMismatch)
}

func TestFrame_SetPanicsOnLengthMismatch(t *testing.T) {
	assert.Panics(t, func() { smallFrame().Set("bad", []float64{1}) })
}
