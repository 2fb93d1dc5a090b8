package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aristath/forecaster/pkg/formulas"
)

// ErrSchemaMismatch is returned when a frame does not carry the expected
// feature columns
var ErrSchemaMismatch = errors.New("feature schema mismatch")

// Column names that never enter the model. The bar date and the target live
// outside the column set; the raw OHLV columns are excluded by name.
const (
	TimeColumn   = "time"
	TargetColumn = "Target"
)

// Excluded lists the column names removed from the feature set
var Excluded = []string{TimeColumn, TargetColumn, "open", "high", "low", "volume"}

// Frame is a column-oriented table of daily rows. Columns keep their
// insertion order.
type Frame struct {
	Dates  []time.Time
	Target []float64

	order  []string
	values map[string][]float64
}

func newFrame(dates []time.Time) *Frame {
	return &Frame{
		Dates:  dates,
		Target: nanSlice(len(dates)),
		values: make(map[string][]float64),
	}
}

// Len returns the number of rows
func (f *Frame) Len() int {
	return len(f.Dates)
}

// Columns returns column names in insertion order
func (f *Frame) Columns() []string {
	return append([]string(nil), f.order...)
}

// Column returns the values of a column
func (f *Frame) Column(name string) ([]float64, bool) {
	v, ok := f.values[name]
	return v, ok
}

// Set adds or replaces a column. The slice must have one value per row.
func (f *Frame) Set(name string, values []float64) {
	if len(values) != f.Len() {
		panic(fmt.Sprintf("features: column %s has %d values for %d rows", name, len(values), f.Len()))
	}
	if _, exists := f.values[name]; !exists {
		f.order = append(f.order, name)
	}
	f.values[name] = values
}

// Value returns one cell, or NaN if the column is absent
func (f *Frame) Value(name string, row int) float64 {
	v, ok := f.values[name]
	if !ok || row < 0 || row >= len(v) {
		return math.NaN()
	}
	return v[row]
}

// Row returns the values of row i for the given columns, in that order
func (f *Frame) Row(i int, names []string) ([]float64, error) {
	if i < 0 || i >= f.Len() {
		return nil, fmt.Errorf("row %d out of range [0, %d)", i, f.Len())
	}
	row := make([]float64, len(names))
	for j, name := range names {
		col, ok := f.values[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, name)
		}
		row[j] = col[i]
	}
	return row, nil
}

// Matrix returns every row restricted to names, in that column order
func (f *Frame) Matrix(names []string) ([][]float64, error) {
	out := make([][]float64, f.Len())
	for i := range out {
		row, err := f.Row(i, names)
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

// Filter returns a new frame with the rows where keep is true
func (f *Frame) Filter(keep func(i int) bool) *Frame {
	var idx []int
	for i := 0; i < f.Len(); i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}

	dates := make([]time.Time, len(idx))
	for j, i := range idx {
		dates[j] = f.Dates[i]
	}
	out := newFrame(dates)
	for j, i := range idx {
		out.Target[j] = f.Target[i]
	}
	for _, name := range f.order {
		src := f.values[name]
		col := make([]float64, len(idx))
		for j, i := range idx {
			col[j] = src[i]
		}
		out.Set(name, col)
	}
	return out
}

// Labeled returns the rows whose target is defined
func (f *Frame) Labeled() *Frame {
	return f.Filter(func(i int) bool { return formulas.Finite(f.Target[i]) })
}

// Tail returns the last n rows
func (f *Frame) Tail(n int) *Frame {
	start := f.Len() - n
	if start < 0 {
		start = 0
	}
	return f.Filter(func(i int) bool { return i >= start })
}

// FeatureColumns returns every column of f except the excluded ones, in
// frame order. The close price stays a feature.
func FeatureColumns(f *Frame) []string {
	excluded := make(map[string]bool, len(Excluded))
	for _, name := range Excluded {
		excluded[name] = true
	}

	var out []string
	for _, name := range f.order {
		if !excluded[name] {
			out = append(out, name)
		}
	}
	return out
}

// CheckSchema verifies that f carries exactly the frozen feature columns
func CheckSchema(frozen []string, f *Frame) error {
	have := make(map[string]bool)
	for _, name := range FeatureColumns(f) {
		have[name] = true
	}

	want := make(map[string]bool, len(frozen))
	for _, name := range frozen {
		want[name] = true
		if !have[name] {
			return fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, name)
		}
	}
	for name := range have {
		if !want[name] {
			return fmt.Errorf("%w: unexpected column %q", ErrSchemaMismatch, name)
		}
	}
	return nil
}

// CheckOrder reports ErrSchemaMismatch unless got lists exactly the frozen
// columns in the same order
func CheckOrder(frozen, got []string) error {
	if len(got) != len(frozen) {
		return fmt.Errorf("%w: %d columns, want %d", ErrSchemaMismatch, len(got), len(frozen))
	}
	for i, name := range frozen {
		if got[i] != name {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrSchemaMismatch, i, got[i], name)
		}
	}
	return nil
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
