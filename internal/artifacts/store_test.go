package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/forecaster/internal/ml/boosting"
	"github.com/aristath/forecaster/internal/ml/linear"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dirMirror mirrors artifacts into a second directory
type dirMirror struct {
	dir     string
	pushErr error
	pushed  []string
}

func (m *dirMirror) Push(_ context.Context, name, path string) error {
	if m.pushErr != nil {
		return m.pushErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.pushed = append(m.pushed, name)
	return os.WriteFile(filepath.Join(m.dir, name), data, 0644)
}

func (m *dirMirror) Pull(_ context.Context, name, path string) error {
	data, err := os.ReadFile(filepath.Join(m.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func sampleSet(t *testing.T) Set {
	t.Helper()
	x := [][]float64{{1, 0}, {2, 1}, {3, 0}, {4, 1}, {5, 0}, {6, 1}, {7, 0}, {8, 1}, {9, 0}, {10, 1}}
	y := []float64{2, 4, 6, 8, 10, 12, 14, 16, 18, 20}
	names := []string{"RSI", "MACD"}

	p := boosting.DefaultParams()
	p.MinSamplesSplit = 2
	p.MinSamplesLeaf = 1
	ens, err := boosting.Train(x, y, names, p)
	require.NoError(t, err)
	lin, err := linear.Fit(x, y, names)
	require.NoError(t, err)
	return Set{Ensemble: ens, Linear: lin, Features: names}
}

func TestFileNames(t *testing.T) {
	assert.Equal(t, "model_FPT_advanced.msgpack", EnsembleFile("fpt"))
	assert.Equal(t, "model_FPT_simple.msgpack", LinearFile("FPT"))
	assert.Equal(t, "features_FPT.json", FeaturesFile("FPT"))
}

func TestSaveAndLoad(t *testing.T) {
	s := NewStore(t.TempDir(), nil, zerolog.Nop())
	set := sampleSet(t)

	assert.False(t, s.Exists("FPT"))
	require.NoError(t, s.Save(context.Background(), "FPT", set))
	assert.True(t, s.Exists("FPT"))

	ens, err := s.LoadEnsemble("FPT")
	require.NoError(t, err)
	assert.Equal(t, set.Ensemble.Predict([]float64{4, 1}), ens.Predict([]float64{4, 1}))

	data, err := s.read(LinearFile("FPT"))
	require.NoError(t, err)
	lin, err := linear.UnmarshalBinary(data)
	require.NoError(t, err)
	assert.InDelta(t, set.Linear.Predict([]float64{4, 1}), lin.Predict([]float64{4, 1}), 1e-12)

	names, err := s.LoadFeatures("FPT")
	require.NoError(t, err)
	assert.Equal(t, []string{"RSI", "MACD"}, names)

	matches, _ := filepath.Glob(filepath.Join(s.dir, "*.tmp"))
	assert.Empty(t, matches)
}

func TestLoad_MissingIsNotFound(t *testing.T) {
	s := NewStore(t.TempDir(), nil, zerolog.Nop())

	_, err := s.LoadEnsemble("VCB")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadFeatures("VCB")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Pull(context.Background(), "VCB"), ErrNotFound)
}

func TestLoad_CorruptEnsemble(t *testing.T) {
	s := NewStore(t.TempDir(), nil, zerolog.Nop())
	require.NoError(t, os.WriteFile(s.Path(EnsembleFile("VCB")), []byte("not msgpack"), 0644))

	_, err := s.LoadEnsemble("VCB")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSave_RejectsIncompleteSet(t *testing.T) {
	s := NewStore(t.TempDir(), nil, zerolog.Nop())
	assert.Error(t, s.Save(context.Background(), "FPT", Set{}))
}

func TestMirror_PushThenPull(t *testing.T) {
	mirror := &dirMirror{dir: t.TempDir()}
	trainer := NewStore(t.TempDir(), mirror, zerolog.Nop())
	require.NoError(t, trainer.Save(context.Background(), "HPG", sampleSet(t)))
	assert.Len(t, mirror.pushed, 3)

	reader := NewStore(t.TempDir(), mirror, zerolog.Nop())
	assert.True(t, reader.HasMirror())
	assert.False(t, reader.Exists("HPG"))
	require.NoError(t, reader.Pull(context.Background(), "HPG"))
	assert.True(t, reader.Exists("HPG"))

	err := reader.Pull(context.Background(), "VNM")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMirror_PushFailureDoesNotFailSave(t *testing.T) {
	mirror := &dirMirror{dir: t.TempDir(), pushErr: errors.New("offline")}
	s := NewStore(t.TempDir(), mirror, zerolog.Nop())
	require.NoError(t, s.Save(context.Background(), "HPG", sampleSet(t)))
	assert.True(t, s.Exists("HPG"))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "models/features_FPT.json", objectKey("models/", "features_FPT.json"))
	assert.Equal(t, "features_FPT.json", objectKey("", "features_FPT.json"))
	assert.Equal(t, "a/b/x", objectKey("/a/b/", "x"))
}
