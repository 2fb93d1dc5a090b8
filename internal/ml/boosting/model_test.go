package boosting

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func stepDataset(n int) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(7))
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a := rng.Float64() * 10
		noise := rng.Float64()
		x[i] = []float64{a, noise}
		if a > 5 {
			y[i] = 10
		} else {
			y[i] = 2
		}
	}
	return x, y
}

func TestTrain_LearnsStepFunction(t *testing.T) {
	x, y := stepDataset(200)
	m, err := Train(x, y, []string{"signal", "noise"}, DefaultParams())
	require.NoError(t, err)

	assert.InDelta(t, 10, m.Predict([]float64{8, 0.5}), 0.5)
	assert.InDelta(t, 2, m.Predict([]float64{1, 0.5}), 0.5)
}

func TestTrain_ImportancesNormalizedAndRanked(t *testing.T) {
	x, y := stepDataset(200)
	m, err := Train(x, y, []string{"signal", "noise"}, DefaultParams())
	require.NoError(t, err)

	ranked := m.FeatureImportances()
	require.Len(t, ranked, 2)
	assert.Equal(t, "signal", ranked[0].Feature)
	assert.GreaterOrEqual(t, ranked[0].Importance, ranked[1].Importance)

	var total float64
	for _, fi := range ranked {
		total += fi.Importance
	}
	assert.InDelta(t, 1.0, total, 1e-9)

	assert.Len(t, m.TopFeatures(1), 1)
	assert.Len(t, m.TopFeatures(5), 2)
}

func TestTrain_DeterministicWithSeed(t *testing.T) {
	x, y := stepDataset(120)
	p := DefaultParams()
	p.Subsample = 0.7
	p.MaxFeatures = "sqrt"

	a, err := Train(x, y, []string{"signal", "noise"}, p)
	require.NoError(t, err)
	b, err := Train(x, y, []string{"signal", "noise"}, p)
	require.NoError(t, err)

	sample := []float64{4.2, 0.3}
	assert.Equal(t, a.Predict(sample), b.Predict(sample))
}

func TestTrain_ConstantTargetHasNoSplits(t *testing.T) {
	x := make([][]float64, 30)
	y := make([]float64, 30)
	for i := range x {
		x[i] = []float64{float64(i)}
		y[i] = 3
	}
	m, err := Train(x, y, []string{"a"}, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, 3.0, m.Predict([]float64{100}))
	for _, tr := range m.Trees {
		assert.Len(t, tr.Nodes, 1)
	}
	assert.Equal(t, 0.0, m.Importances[0])
}

func TestTrain_RespectsMinSamplesLeaf(t *testing.T) {
	x, y := stepDataset(60)
	p := DefaultParams()
	p.MinSamplesLeaf = 20
	p.NEstimators = 1
	m, err := Train(x, y, []string{"signal", "noise"}, p)
	require.NoError(t, err)

	// 60 rows with 20 per leaf allows at most one level of splits
	assert.LessOrEqual(t, len(m.Trees[0].Nodes), 5)
}

func TestTrain_RejectsBadInput(t *testing.T) {
	_, err := Train(nil, nil, nil, DefaultParams())
	assert.Error(t, err)

	_, err = Train([][]float64{{1}}, []float64{1, 2}, []string{"a"}, DefaultParams())
	assert.Error(t, err)

	_, err = Train([][]float64{{1, 2}}, []float64{1}, []string{"a"}, DefaultParams())
	assert.Error(t, err)

	p := DefaultParams()
	p.MaxFeatures = "half"
	_, err = Train([][]float64{{1}}, []float64{1}, []string{"a"}, p)
	assert.Error(t, err)
}

func TestMarshalRoundTripPreservesPredictions(t *testing.T) {
	x, y := stepDataset(100)
	m, err := Train(x, y, []string{"signal", "noise"}, DefaultParams())
	require.NoError(t, err)

	blob, err := m.MarshalBinary()
	require.NoError(t, err)

	restored, err := UnmarshalBinary(blob)
	require.NoError(t, err)
	assert.Equal(t, m.FeatureNames, restored.FeatureNames)
	assert.Equal(t, m.PredictBatch(x[:10]), restored.PredictBatch(x[:10]))
}

func TestMarshalBinary_EncodesFieldMap(t *testing.T) {
	x, y := stepDataset(60)
	m, err := Train(x, y, []string{"signal", "noise"}, DefaultParams())
	require.NoError(t, err)

	// Encoding a *Model directly goes through MarshalBinary and must terminate
	blob, err := msgpack.Marshal(m)
	require.NoError(t, err)

	var inner []byte
	require.NoError(t, msgpack.Unmarshal(blob, &inner))

	var fields map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(inner, &fields))
	assert.Contains(t, fields, "feature_names")
	assert.Contains(t, fields, "trees")
}

func TestUnmarshalBinary_RejectsGarbage(t *testing.T) {
	_, err := UnmarshalBinary(nil)
	assert.Error(t, err)

	_, err = UnmarshalBinary([]byte{0xc1, 0x00})
	assert.Error(t, err)
}

func TestParams_FeaturesPerSplit(t *testing.T) {
	assert.Equal(t, 29, Params{}.featuresPerSplit(29))
	assert.Equal(t, 5, Params{MaxFeatures: "sqrt"}.featuresPerSplit(29))
	assert.Equal(t, 4, Params{MaxFeatures: "log2"}.featuresPerSplit(29))
	assert.Equal(t, 1, Params{MaxFeatures: "log2"}.featuresPerSplit(1))
}

func TestParams_WithDefaults(t *testing.T) {
	p := Params{LearningRate: 0.05}.WithDefaults()
	assert.Equal(t, 50, p.NEstimators)
	assert.Equal(t, 0.05, p.LearningRate)
	assert.Equal(t, 4, p.MaxDepth)
	assert.False(t, math.IsNaN(p.Subsample))
	assert.Equal(t, 1.0, p.Subsample)
}
