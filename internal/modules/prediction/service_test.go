package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aristath/forecaster/internal/artifacts"
	"github.com/aristath/forecaster/internal/clientdata"
	"github.com/aristath/forecaster/internal/domain"
	"github.com/aristath/forecaster/internal/ledger"
	"github.com/aristath/forecaster/internal/ml/boosting"
	"github.com/aristath/forecaster/internal/ml/linear"
	"github.com/aristath/forecaster/internal/modules/features"
	"github.com/aristath/forecaster/internal/modules/training"
	testingpkg "github.com/aristath/forecaster/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)

type countingTrainer struct {
	mu    sync.Mutex
	ok    bool
	calls int
	inner Trainer
}

func (c *countingTrainer) TrainAndSave(ctx context.Context, symbol string) bool {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.inner != nil {
		return c.inner.TrainAndSave(ctx, symbol)
	}
	return c.ok
}

type memoryLedger struct {
	entries []ledger.Entry
	settled int
}

func (m *memoryLedger) Append(_ context.Context, e ledger.Entry) (string, error) {
	m.entries = append(m.entries, e)
	return "id", nil
}

func (m *memoryLedger) Settle(_ context.Context, _ string, _ []domain.Bar) (int, error) {
	m.settled++
	return 0, nil
}

type env struct {
	quotes    *testingpkg.MockQuoteProvider
	assembler *features.Assembler
	models    *artifacts.Store
	cache     *clientdata.Store
	trainer   *countingTrainer
	svc       *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	quotes := testingpkg.NewMockQuoteProvider()
	assembler := features.NewAssembler(features.Config{
		Quotes:       quotes,
		Fundamentals: &testingpkg.MockFundamentals{Value: domain.Ratios{EPS: 3000, PE: 14, PB: 1.8, ROE: 0.15, ROA: 0.04}},
		Rates:        &testingpkg.MockRateSource{Rate: 25400},
		Sentiment:    &testingpkg.MockSentiment{Value: 0.5},
	}, zerolog.Nop())

	models := artifacts.NewStore(t.TempDir(), nil, zerolog.Nop())
	cache := clientdata.NewStore(t.TempDir(), func() time.Time { return testNow })

	real := training.NewTrainer(quotes, assembler, models,
		training.NewParamsResolver(filepath.Join(t.TempDir(), "best_params.json"), true, zerolog.Nop()),
		training.Config{HistoryDays: 730, TestFraction: 0.2}, zerolog.Nop())
	real.SetClock(func() time.Time { return testNow })
	trainer := &countingTrainer{inner: real}

	svc := NewService(Config{}, quotes, assembler, models, trainer, cache, zerolog.Nop())
	return &env{quotes: quotes, assembler: assembler, models: models, cache: cache, trainer: trainer, svc: svc}
}

func (e *env) withHistory(symbol string, n int) []domain.Bar {
	bars := testingpkg.RandomWalkBars(n, 21, testNow)
	index := make([]domain.Bar, len(bars))
	for i, b := range bars {
		index[i] = domain.Bar{Time: b.Time, Close: 1250 + float64(i%25)}
	}
	e.quotes.SetBars(symbol, bars)
	e.quotes.SetBars("VNINDEX", index)
	return bars
}

func TestPredict_TrainsOnDemandAndCaches(t *testing.T) {
	e := newEnv(t)
	e.withHistory("FPT", 400)

	res := e.svc.Predict(context.Background(), "fpt")
	require.Nil(t, res.Failure, "%+v", res.Failure)
	f := res.Forecast
	require.NotNil(t, f)

	assert.Equal(t, 1, e.trainer.calls)
	assert.True(t, e.models.Exists("FPT"))
	assert.Equal(t, "FPT", f.Symbol)
	assert.Equal(t, "2024-06-28", f.LatestDate)
	assert.False(t, f.Cached)
	assert.Nil(t, f.CacheAgeMinutes)
	assert.InDelta(t, f.Prediction-f.LatestClose, f.Change, 1e-9)
	assert.InDelta(t, f.Change/f.LatestClose*100, f.ChangePct, 1e-9)
	assert.NotEmpty(t, f.History)
	assert.LessOrEqual(t, len(f.History), 30)
	assert.Equal(t, f.LatestDate, f.History[len(f.History)-1].Date)
	assert.Equal(t, f.LatestClose, f.History[len(f.History)-1].Price)
	assert.Len(t, f.TopFeatures, 5)
	assert.GreaterOrEqual(t, f.Indicators.RSI, 0.0)
	assert.LessOrEqual(t, f.Indicators.RSI, 100.0)

	assert.FileExists(t, e.cache.Path(CacheFile("FPT")))
}

func TestPredict_CacheHitReturnsStoredPayload(t *testing.T) {
	e := newEnv(t)
	e.withHistory("FPT", 400)

	first := e.svc.Predict(context.Background(), "FPT")
	require.NotNil(t, first.Forecast)

	second := e.svc.Predict(context.Background(), "FPT")
	require.NotNil(t, second.Forecast)
	assert.True(t, second.Forecast.Cached)
	require.NotNil(t, second.Forecast.CacheAgeMinutes)
	assert.GreaterOrEqual(t, *second.Forecast.CacheAgeMinutes, 0)
	assert.Equal(t, first.Forecast.Prediction, second.Forecast.Prediction)
	assert.Equal(t, 1, e.trainer.calls)
	// one fetch for training, one for the first prediction
	assert.Equal(t, 2, e.quotes.Calls("FPT"))
}

func TestPredict_FreshForecastsAreDeterministic(t *testing.T) {
	e := newEnv(t)
	e.withHistory("FPT", 400)

	first := e.svc.Predict(context.Background(), "FPT")
	require.NotNil(t, first.Forecast)
	require.NoError(t, e.cache.Delete(CacheFile("FPT")))

	second := e.svc.Predict(context.Background(), "FPT")
	require.NotNil(t, second.Forecast)
	assert.False(t, second.Forecast.Cached)
	assert.Equal(t, first.Forecast.Prediction, second.Forecast.Prediction)
	assert.Equal(t, first.Forecast.Change, second.Forecast.Change)
	assert.Equal(t, first.Forecast.ChangePct, second.Forecast.ChangePct)
	assert.Equal(t, first.Forecast.TopFeatures, second.Forecast.TopFeatures)
	assert.Equal(t, 1, e.trainer.calls)
}

func TestPredict_CacheAgeInWholeMinutes(t *testing.T) {
	e := newEnv(t)
	stored := Forecast{Symbol: "VCB", LatestClose: 90, Prediction: 91}
	require.NoError(t, e.cache.Write(CacheFile("VCB"), stored))
	mtime := testNow.Add(-(12*time.Minute + 40*time.Second))
	require.NoError(t, os.Chtimes(e.cache.Path(CacheFile("VCB")), mtime, mtime))

	res := e.svc.Predict(context.Background(), "VCB")
	require.NotNil(t, res.Forecast)
	assert.True(t, res.Forecast.Cached)
	assert.Equal(t, 12, *res.Forecast.CacheAgeMinutes)
	assert.Equal(t, 91.0, res.Forecast.Prediction)
	assert.Equal(t, 0, e.trainer.calls)
}

func TestPredict_StaleCacheIsNotReused(t *testing.T) {
	e := newEnv(t)
	e.withHistory("HPG", 400)

	require.NoError(t, e.cache.Write(CacheFile("HPG"), Forecast{Symbol: "HPG", Prediction: -1}))
	mtime := testNow.Add(-31 * time.Minute)
	require.NoError(t, os.Chtimes(e.cache.Path(CacheFile("HPG")), mtime, mtime))

	res := e.svc.Predict(context.Background(), "HPG")
	require.NotNil(t, res.Forecast)
	assert.False(t, res.Forecast.Cached)
	assert.NotEqual(t, -1.0, res.Forecast.Prediction)
}

func TestPredict_CorruptCacheIsMiss(t *testing.T) {
	e := newEnv(t)
	e.withHistory("HPG", 400)
	require.NoError(t, os.WriteFile(e.cache.Path(CacheFile("HPG")), []byte(`{"symbol": "HP`), 0644))

	res := e.svc.Predict(context.Background(), "HPG")
	require.NotNil(t, res.Forecast)
	assert.False(t, res.Forecast.Cached)
}

func TestPredict_TrainingFailure(t *testing.T) {
	e := newEnv(t)
	e.trainer.inner = nil
	e.trainer.ok = false

	res := e.svc.Predict(context.Background(), "MWG")
	require.NotNil(t, res.Failure)
	assert.True(t, res.Failure.Training)
	assert.Contains(t, res.Failure.Error, "MWG")

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": "Failed to train model for MWG.", "training": true}`, string(data))
}

func TestPredict_NoRecentData(t *testing.T) {
	e := newEnv(t)
	e.withHistory("VNM", 400)
	require.NotNil(t, e.svc.Predict(context.Background(), "VNM").Forecast)
	require.NoError(t, e.cache.Delete(CacheFile("VNM")))

	e.quotes.SetBars("VNM", nil)
	res := e.svc.Predict(context.Background(), "VNM")
	require.NotNil(t, res.Failure)
	assert.Equal(t, "No data available", res.Failure.Error)
	assert.False(t, res.Failure.Training)
}

func TestPredict_SchemaMismatchIsFatal(t *testing.T) {
	e := newEnv(t)
	e.withHistory("TCB", 400)
	require.True(t, e.trainer.inner.TrainAndSave(context.Background(), "TCB"))

	names, err := e.models.LoadFeatures("TCB")
	require.NoError(t, err)
	data, _ := json.Marshal(append(names, "P/E_ratio_ttm"))
	require.NoError(t, os.WriteFile(e.models.Path(artifacts.FeaturesFile("TCB")), data, 0644))

	res := e.svc.Predict(context.Background(), "TCB")
	require.NotNil(t, res.Failure)
	assert.Contains(t, res.Failure.Error, features.ErrSchemaMismatch.Error())
}

func TestPredict_ModelColumnOrderMustMatchFrozenList(t *testing.T) {
	e := newEnv(t)
	e.withHistory("TCB", 400)
	require.True(t, e.trainer.inner.TrainAndSave(context.Background(), "TCB"))

	names, err := e.models.LoadFeatures("TCB")
	require.NoError(t, err)
	swapped := append([]string(nil), names...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	data, _ := json.Marshal(swapped)
	require.NoError(t, os.WriteFile(e.models.Path(artifacts.FeaturesFile("TCB")), data, 0644))

	res := e.svc.Predict(context.Background(), "TCB")
	require.NotNil(t, res.Failure)
	assert.Contains(t, res.Failure.Error, features.ErrSchemaMismatch.Error())
	assert.False(t, res.Failure.Training)
}

func TestPredict_UsesFrozenColumnOrder(t *testing.T) {
	e := newEnv(t)
	bars := e.withHistory("VPB", 400)
	ctx := context.Background()

	start := testNow.AddDate(0, 0, -730)
	frame, _, err := e.assembler.Prepare(ctx, bars, "VPB", start, testNow)
	require.NoError(t, err)
	labeled := frame.Labeled()

	names := features.FeatureColumns(labeled)
	reversed := make([]string, len(names))
	for i, n := range names {
		reversed[len(names)-1-i] = n
	}
	x, err := labeled.Matrix(reversed)
	require.NoError(t, err)
	ens, err := boosting.Train(x, labeled.Target, reversed, boosting.DefaultParams())
	require.NoError(t, err)
	lin, err := linear.Fit(x, labeled.Target, reversed)
	require.NoError(t, err)
	require.NoError(t, e.models.Save(ctx, "VPB", artifacts.Set{Ensemble: ens, Linear: lin, Features: reversed}))

	res := e.svc.Predict(ctx, "VPB")
	require.NotNil(t, res.Forecast)

	inference, _, err := e.assembler.Prepare(ctx, mustBars(t, e, "VPB", 90), "VPB", testNow.AddDate(0, 0, -90), testNow)
	require.NoError(t, err)
	row, err := inference.Row(inference.Len()-1, reversed)
	require.NoError(t, err)
	assert.Equal(t, ens.Predict(row), res.Forecast.Prediction)
	assert.Equal(t, 0, e.trainer.calls)
}

func mustBars(t *testing.T, e *env, symbol string, days int) []domain.Bar {
	t.Helper()
	bars, err := e.quotes.Bars(context.Background(), symbol, testNow.AddDate(0, 0, -days), testNow)
	require.NoError(t, err)
	return bars
}

func TestPredict_PanickingProviderBecomesFailure(t *testing.T) {
	e := newEnv(t)
	e.withHistory("SSI", 400)
	require.True(t, e.trainer.inner.TrainAndSave(context.Background(), "SSI"))
	e.quotes.SetPanic("SSI")

	var res Result
	assert.NotPanics(t, func() { res = e.svc.Predict(context.Background(), "SSI") })
	require.NotNil(t, res.Failure)
	assert.Contains(t, res.Failure.Error, "provider exploded")
}

func TestPredict_ProviderErrorBecomesFailure(t *testing.T) {
	e := newEnv(t)
	e.withHistory("SSI", 400)
	require.True(t, e.trainer.inner.TrainAndSave(context.Background(), "SSI"))
	e.quotes.SetError("SSI", errors.New("connection reset"))

	res := e.svc.Predict(context.Background(), "SSI")
	require.NotNil(t, res.Failure)
	assert.Contains(t, res.Failure.Error, "connection reset")
}

func TestPredict_RecordsFreshForecastsInLedger(t *testing.T) {
	e := newEnv(t)
	e.withHistory("FPT", 400)
	l := &memoryLedger{}
	e.svc.SetLedger(l)

	require.NotNil(t, e.svc.Predict(context.Background(), "FPT").Forecast)
	require.NotNil(t, e.svc.Predict(context.Background(), "FPT").Forecast)

	require.Len(t, l.entries, 1, "cache hits are not recorded")
	assert.Equal(t, "FPT", l.entries[0].Symbol)
	assert.Equal(t, "2024-06-28", l.entries[0].LatestDate)
	assert.Equal(t, 1, l.settled)
}

func TestPredict_MirrorPullSkipsTraining(t *testing.T) {
	e := newEnv(t)
	e.withHistory("ACB", 400)

	// train into a separate store and serve it as the mirror
	mirrorDir := t.TempDir()
	remote := artifacts.NewStore(mirrorDir, nil, zerolog.Nop())
	remoteTrainer := training.NewTrainer(e.quotes, e.assembler, remote,
		training.NewParamsResolver(filepath.Join(t.TempDir(), "p.json"), false, zerolog.Nop()),
		training.Config{}, zerolog.Nop())
	remoteTrainer.SetClock(func() time.Time { return testNow })
	require.True(t, remoteTrainer.TrainAndSave(context.Background(), "ACB"))

	e.svc.models = artifacts.NewStore(t.TempDir(), copyMirror(mirrorDir), zerolog.Nop())
	res := e.svc.Predict(context.Background(), "ACB")
	require.NotNil(t, res.Forecast)
	assert.Equal(t, 0, e.trainer.calls)
}

type copyMirror string

func (m copyMirror) Push(context.Context, string, string) error { return nil }

func (m copyMirror) Pull(_ context.Context, name, path string) error {
	data, err := os.ReadFile(filepath.Join(string(m), name))
	if err != nil {
		return artifacts.ErrNotFound
	}
	return os.WriteFile(path, data, 0644)
}

func TestResult_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Fail("boom"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": "boom"}`, string(data))

	age := 3
	data, err = json.Marshal(Result{Forecast: &Forecast{Symbol: "VCB", History: []HistoryPoint{}, Cached: true, CacheAgeMinutes: &age}})
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, true, decoded["cached"])
	assert.Equal(t, 3.0, decoded["cache_age_minutes"])
	assert.NotContains(t, decoded, "top_features")

	data, err = json.Marshal(Result{})
	require.NoError(t, err)
	assert.Contains(t, string(data), "error")
}
