package training

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/forecaster/internal/ml/boosting"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recordsJSON = `{
  "VCB": {"n_estimators": 200, "learning_rate": 0.05, "max_depth": 5, "min_samples_split": 5,
          "min_samples_leaf": 2, "subsample": 0.9, "max_features": "sqrt", "tuned_date": "2024-05-01", "cv_score": 0.91},
  "FPT": {"n_estimators": 300, "learning_rate": 0.1, "max_depth": 3, "min_samples_split": 2,
          "min_samples_leaf": 1, "subsample": 0.8, "max_features": null, "tuned_date": "2024-06-10", "cv_score": 0.88},
  "ACB": {"n_estimators": 100, "learning_rate": 0.2, "max_depth": 7, "min_samples_split": 15,
          "min_samples_leaf": 4, "subsample": 1.0, "max_features": "log2", "tuned_date": "2024-06-10", "cv_score": 0.80}
}`

func writeRecords(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "best_params.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestResolve_SymbolRecordWins(t *testing.T) {
	r := NewParamsResolver(writeRecords(t, recordsJSON), true, zerolog.Nop())

	res := r.Resolve("vcb")
	assert.Equal(t, SourceSymbol, res.Source)
	assert.Equal(t, "VCB", res.From)
	assert.Equal(t, 200, res.Params.NEstimators)
	assert.Equal(t, "sqrt", res.Params.MaxFeatures)
	assert.Equal(t, int64(42), res.Params.RandomState)
}

func TestResolve_ForeignIsMostRecentThenAlphabetical(t *testing.T) {
	r := NewParamsResolver(writeRecords(t, recordsJSON), true, zerolog.Nop())

	res := r.Resolve("HPG")
	assert.Equal(t, SourceForeign, res.Source)
	// FPT and ACB share the latest date, ACB sorts first
	assert.Equal(t, "ACB", res.From)
	assert.Equal(t, 100, res.Params.NEstimators)

	// same answer every time
	for i := 0; i < 5; i++ {
		assert.Equal(t, "ACB", r.Resolve("HPG").From)
	}
}

func TestResolve_ForeignFallbackDisabled(t *testing.T) {
	r := NewParamsResolver(writeRecords(t, recordsJSON), false, zerolog.Nop())

	res := r.Resolve("HPG")
	assert.Equal(t, SourceDefault, res.Source)
	assert.Equal(t, boosting.DefaultParams(), res.Params)
}

func TestResolve_MissingOrCorruptFile(t *testing.T) {
	missing := NewParamsResolver(filepath.Join(t.TempDir(), "none.json"), true, zerolog.Nop())
	assert.Equal(t, SourceDefault, missing.Resolve("VCB").Source)

	corrupt := NewParamsResolver(writeRecords(t, "{not json"), true, zerolog.Nop())
	res := corrupt.Resolve("VCB")
	assert.Equal(t, SourceDefault, res.Source)
	assert.Equal(t, boosting.DefaultParams(), res.Params)
}

func TestResolve_PartialRecordGetsDefaults(t *testing.T) {
	r := NewParamsResolver(writeRecords(t, `{"VNM": {"learning_rate": 0.05, "tuned_date": "2024-01-01"}}`), true, zerolog.Nop())

	res := r.Resolve("VNM")
	assert.Equal(t, 0.05, res.Params.LearningRate)
	assert.Equal(t, 50, res.Params.NEstimators)
	assert.Equal(t, 4, res.Params.MaxDepth)
}

func TestSave_KeepsOtherRecords(t *testing.T) {
	path := writeRecords(t, recordsJSON)
	r := NewParamsResolver(path, true, zerolog.Nop())

	p := boosting.DefaultParams()
	p.NEstimators = 150
	require.NoError(t, r.Save("hpg", p, 0.77, time.Date(2024, 7, 1, 15, 0, 0, 0, time.UTC)))

	records, err := r.Load()
	require.NoError(t, err)
	assert.Len(t, records, 4)
	require.Contains(t, records, "HPG")
	assert.Equal(t, "2024-07-01", records["HPG"].TunedDate)
	require.NotNil(t, records["HPG"].CVScore)
	assert.Equal(t, 0.77, *records["HPG"].CVScore)

	res := r.Resolve("HPG")
	assert.Equal(t, SourceSymbol, res.Source)
	assert.Equal(t, 150, res.Params.NEstimators)

	// the newest record is now the foreign choice
	assert.Equal(t, "HPG", r.Resolve("MWG").From)
}
