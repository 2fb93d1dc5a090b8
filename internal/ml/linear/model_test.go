package linear

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestFit_RecoversExactPlane(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		a, b := float64(i), float64((i*7)%5)
		x = append(x, []float64{a, b})
		y = append(y, 3+2*a-0.5*b)
	}

	m, err := Fit(x, y, []string{"a", "b"})
	require.NoError(t, err)
	assert.InDelta(t, 3, m.Intercept, 1e-8)
	assert.InDelta(t, 2, m.Coef[0], 1e-8)
	assert.InDelta(t, -0.5, m.Coef[1], 1e-8)
	assert.InDelta(t, 3+2*4-0.5*1, m.Predict([]float64{4, 1}), 1e-8)
}

func TestFit_ConstantAndDuplicateColumns(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 15; i++ {
		a := float64(i)
		x = append(x, []float64{a, a, 25400})
		y = append(y, 1+a)
	}

	m, err := Fit(x, y, []string{"a", "a_copy", "rate"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.Coef[2])
	// minimum-norm solution splits weight across identical columns
	assert.InDelta(t, 0.5, m.Coef[0], 1e-8)
	assert.InDelta(t, 0.5, m.Coef[1], 1e-8)
	assert.InDelta(t, 11, m.Predict([]float64{10, 10, 25400}), 1e-8)
}

func TestFit_RejectsBadInput(t *testing.T) {
	_, err := Fit(nil, nil, nil)
	assert.Error(t, err)

	_, err = Fit([][]float64{{1}}, []float64{1}, []string{"a", "b"})
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	m := &Model{FeatureNames: []string{"a"}, Intercept: 1.5, Coef: []float64{2}}
	blob, err := m.MarshalBinary()
	require.NoError(t, err)

	restored, err := UnmarshalBinary(blob)
	require.NoError(t, err)
	assert.Equal(t, m, restored)

	var fields map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(blob, &fields))
	assert.Equal(t, 1.5, fields["intercept"])
}
