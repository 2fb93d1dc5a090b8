package boosting

import (
	"fmt"
	"math"
)

// Params are the ensemble hyperparameters. JSON names follow the tuned
// parameter file.
type Params struct {
	NEstimators     int     `json:"n_estimators" msgpack:"n_estimators"`
	LearningRate    float64 `json:"learning_rate" msgpack:"learning_rate"`
	MaxDepth        int     `json:"max_depth" msgpack:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split" msgpack:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf" msgpack:"min_samples_leaf"`
	Subsample       float64 `json:"subsample" msgpack:"subsample"`
	MaxFeatures     string  `json:"max_features" msgpack:"max_features"` // "sqrt", "log2" or empty for all
	RandomState     int64   `json:"random_state" msgpack:"random_state"`
}

// DefaultParams returns the parameters used when no tuned record exists
func DefaultParams() Params {
	return Params{
		NEstimators:     50,
		LearningRate:    0.15,
		MaxDepth:        4,
		MinSamplesSplit: 10,
		MinSamplesLeaf:  4,
		Subsample:       1.0,
		RandomState:     42,
	}
}

// WithDefaults fills zero fields from DefaultParams
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.NEstimators <= 0 {
		p.NEstimators = d.NEstimators
	}
	if p.LearningRate <= 0 {
		p.LearningRate = d.LearningRate
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = d.MaxDepth
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	if p.Subsample <= 0 || p.Subsample > 1 {
		p.Subsample = d.Subsample
	}
	return p
}

// Validate rejects parameters the trainer cannot use
func (p Params) Validate() error {
	switch p.MaxFeatures {
	case "", "sqrt", "log2", "none", "None":
	default:
		return fmt.Errorf("unsupported max_features %q", p.MaxFeatures)
	}
	if p.LearningRate > 1 {
		return fmt.Errorf("learning_rate %v is above 1", p.LearningRate)
	}
	return nil
}

// featuresPerSplit returns how many features each split considers
func (p Params) featuresPerSplit(total int) int {
	var k int
	switch p.MaxFeatures {
	case "sqrt":
		k = int(math.Sqrt(float64(total)))
	case "log2":
		k = int(math.Log2(float64(total)))
	default:
		k = total
	}
	if k < 1 {
		k = 1
	}
	if k > total {
		k = total
	}
	return k
}
