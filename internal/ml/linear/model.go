// Package linear fits the ordinary least squares baseline.
package linear

import (
	"errors"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// rcond is the relative singular value cutoff for the effective rank
const rcond = 1e-10

// Model is y = Intercept + Coef·x
type Model struct {
	FeatureNames []string  `msgpack:"feature_names"`
	Intercept    float64   `msgpack:"intercept"`
	Coef         []float64 `msgpack:"coef"`
}

// Fit solves the least squares problem. Columns are standardized before the
// SVD so that the rank cutoff is scale independent; rank-deficient designs get
// the minimum-norm solution and constant columns get a zero coefficient.
func Fit(x [][]float64, y []float64, featureNames []string) (*Model, error) {
	n := len(x)
	if n == 0 || n != len(y) {
		return nil, errors.New("invalid training dataset")
	}
	p := len(x[0])
	if len(featureNames) != p {
		return nil, fmt.Errorf("got %d feature names for %d features", len(featureNames), p)
	}

	means := make([]float64, p)
	scales := make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := 0; i < n; i++ {
			col[i] = x[i][j]
		}
		means[j], scales[j] = stat.PopMeanStdDev(col, nil)
	}
	yMean := stat.Mean(y, nil)

	a := mat.NewDense(n, p, nil)
	b := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			if scales[j] > 0 {
				a.Set(i, j, (x[i][j]-means[j])/scales[j])
			}
		}
		b.Set(i, 0, y[i]-yMean)
	}

	coef := make([]float64, p)
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.New("svd factorization failed")
	}
	if rank := svd.Rank(rcond); rank > 0 {
		var beta mat.Dense
		svd.SolveTo(&beta, b, rank)
		for j := 0; j < p; j++ {
			if scales[j] > 0 {
				coef[j] = beta.At(j, 0) / scales[j]
			}
		}
	}

	intercept := yMean
	for j := 0; j < p; j++ {
		intercept -= coef[j] * means[j]
	}
	if math.IsNaN(intercept) {
		return nil, errors.New("non-finite training data")
	}

	return &Model{
		FeatureNames: append([]string(nil), featureNames...),
		Intercept:    intercept,
		Coef:         coef,
	}, nil
}

// Predict returns the prediction for one sample
func (m *Model) Predict(x []float64) float64 {
	out := m.Intercept
	for j, c := range m.Coef {
		out += c * x[j]
	}
	return out
}

// PredictBatch returns predictions for many samples
func (m *Model) PredictBatch(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = m.Predict(x[i])
	}
	return out
}

// artifact has Model's fields without its methods, so msgpack encodes the
// struct instead of calling MarshalBinary again
type artifact Model

// MarshalBinary encodes the model with msgpack
func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	return msgpack.Marshal((*artifact)(m))
}

// UnmarshalBinary decodes a model produced by MarshalBinary
func UnmarshalBinary(blob []byte) (*Model, error) {
	var m Model
	if err := msgpack.Unmarshal(blob, (*artifact)(&m)); err != nil {
		return nil, fmt.Errorf("failed to decode linear model: %w", err)
	}
	if len(m.Coef) != len(m.FeatureNames) {
		return nil, errors.New("linear artifact is inconsistent")
	}
	return &m, nil
}
