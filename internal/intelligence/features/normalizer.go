// Package features holds the per-modality transforms applied between the
// feature extractors and the model: min-max range scaling fitted on training
// data only.
package features

import (
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/turtacn/potencynet/pkg/errors"
)

// RangeNormalizer scales each column to [0, 1] using the minimum and maximum
// seen during Fit.  A column whose range is zero passes through unchanged.
//
// Fit may be called once.  Transform before Fit fails with AI_006 and a
// second Fit with AI_007.  After Fit the normalizer is read-only and safe for
// concurrent use.
type RangeNormalizer struct {
	name string

	mu     sync.RWMutex
	fitted bool
	min    []float64
	max    []float64
}

// NewRangeNormalizer returns an unfitted normalizer.  name identifies the
// modality in error messages.
func NewRangeNormalizer(name string) *RangeNormalizer {
	return &RangeNormalizer{name: name}
}

// Name returns the modality name.
func (n *RangeNormalizer) Name() string { return n.name }

// Fit records per-column bounds of rows.
func (n *RangeNormalizer) Fit(rows [][]float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.fitted {
		return errors.Newf(errors.ErrCodeScalerAlreadyFitted, "%s normalizer already fitted", n.name)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return errors.InvalidParam(n.name + " normalizer: no training rows")
	}
	cols := len(rows[0])
	column := make([]float64, len(rows))
	lo := make([]float64, cols)
	hi := make([]float64, cols)
	for j := 0; j < cols; j++ {
		for i, row := range rows {
			if len(row) != cols {
				return errors.Newf(errors.ErrCodeShapeMismatch,
					"%s normalizer: row %d has %d columns, want %d", n.name, i, len(row), cols)
			}
			column[i] = row[j]
		}
		lo[j] = floats.Min(column)
		hi[j] = floats.Max(column)
	}
	n.min, n.max = lo, hi
	n.fitted = true
	return nil
}

// Transform returns scaled copies of rows.  The input is not modified.
func (n *RangeNormalizer) Transform(rows [][]float64) ([][]float64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if !n.fitted {
		return nil, errors.Newf(errors.ErrCodeScalerNotFitted, "%s normalizer used before fit", n.name)
	}
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(n.min) {
			return nil, errors.Newf(errors.ErrCodeShapeMismatch,
				"%s normalizer: row %d has %d columns, fitted on %d", n.name, i, len(row), len(n.min))
		}
		scaled := make([]float64, len(row))
		for j, x := range row {
			span := n.max[j] - n.min[j]
			if span == 0 {
				scaled[j] = x
				continue
			}
			scaled[j] = (x - n.min[j]) / span
		}
		out[i] = scaled
	}
	return out, nil
}

// FitTransform fits on rows and returns them scaled.
func (n *RangeNormalizer) FitTransform(rows [][]float64) ([][]float64, error) {
	if err := n.Fit(rows); err != nil {
		return nil, err
	}
	return n.Transform(rows)
}

// Fitted reports whether Fit has succeeded.
func (n *RangeNormalizer) Fitted() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.fitted
}

// Min returns a copy of the fitted column minima, or nil before Fit.
func (n *RangeNormalizer) Min() []float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]float64(nil), n.min...)
}

// Max returns a copy of the fitted column maxima, or nil before Fit.
func (n *RangeNormalizer) Max() []float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]float64(nil), n.max...)
}

// IntsToFloats converts encoded sequences for scaling.
func IntsToFloats(rows [][]int) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		f := make([]float64, len(row))
		for j, v := range row {
			f[j] = float64(v)
		}
		out[i] = f
	}
	return out
}
