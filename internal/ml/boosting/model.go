// Package boosting implements a gradient-boosted regression tree ensemble
// with squared loss.
package boosting

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// FeatureImportance pairs a feature with its normalized importance
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Model is a fitted ensemble
type Model struct {
	FeatureNames []string  `msgpack:"feature_names"`
	Params       Params    `msgpack:"params"`
	Init         float64   `msgpack:"init"`
	Trees        []tree    `msgpack:"trees"`
	Importances  []float64 `msgpack:"importances"`
}

// Train fits an ensemble on samples x (one row per observation) and targets y
func Train(x [][]float64, y []float64, featureNames []string, params Params) (*Model, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.New("invalid training dataset")
	}
	nFeatures := len(x[0])
	if nFeatures == 0 {
		return nil, errors.New("empty feature vectors")
	}
	if len(featureNames) != nFeatures {
		return nil, fmt.Errorf("got %d feature names for %d features", len(featureNames), nFeatures)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	params = params.WithDefaults()

	n := len(y)
	var init float64
	for _, v := range y {
		init += v
	}
	init /= float64(n)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = init
	}

	rng := rand.New(rand.NewSource(params.RandomState))
	residual := make([]float64, n)
	builder := &treeBuilder{
		x:          x,
		r:          residual,
		params:     params,
		rng:        rng,
		nFeatures:  nFeatures,
		importance: make([]float64, nFeatures),
	}

	importances := make([]float64, nFeatures)
	contributing := 0
	trees := make([]tree, 0, params.NEstimators)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	for m := 0; m < params.NEstimators; m++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}

		rows := all
		if params.Subsample < 1 {
			size := int(params.Subsample * float64(n))
			if size < 1 {
				size = 1
			}
			rows = rng.Perm(n)[:size]
		}

		for i := range builder.importance {
			builder.importance[i] = 0
		}
		t := builder.build(rows)
		trees = append(trees, t)

		if total := sum(builder.importance); total > 0 {
			for i, v := range builder.importance {
				importances[i] += v / total
			}
			contributing++
		}

		for i := range pred {
			pred[i] += params.LearningRate * t.predict(x[i])
		}
	}

	if total := sum(importances); total > 0 {
		for i := range importances {
			importances[i] /= total
		}
	}

	return &Model{
		FeatureNames: append([]string(nil), featureNames...),
		Params:       params,
		Init:         init,
		Trees:        trees,
		Importances:  importances,
	}, nil
}

// Predict returns the prediction for one sample
func (m *Model) Predict(x []float64) float64 {
	out := m.Init
	for i := range m.Trees {
		out += m.Params.LearningRate * m.Trees[i].predict(x)
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

// FeatureImportances returns every feature ranked by importance, highest first
func (m *Model) FeatureImportances() []FeatureImportance {
	out := make([]FeatureImportance, len(m.FeatureNames))
	for i, name := range m.FeatureNames {
		var imp float64
		if i < len(m.Importances) {
			imp = m.Importances[i]
		}
		out[i] = FeatureImportance{Feature: name, Importance: imp}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Importance > out[j].Importance
	})
	return out
}

// TopFeatures returns the k most important features
func (m *Model) TopFeatures(k int) []FeatureImportance {
	ranked := m.FeatureImportances()
	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
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
	if len(blob) == 0 {
		return nil, errors.New("empty artifact")
	}
	var m Model
	if err := msgpack.Unmarshal(blob, (*artifact)(&m)); err != nil {
		return nil, fmt.Errorf("failed to decode ensemble: %w", err)
	}
	if len(m.FeatureNames) == 0 {
		return nil, errors.New("ensemble artifact has no feature names")
	}
	return &m, nil
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}
