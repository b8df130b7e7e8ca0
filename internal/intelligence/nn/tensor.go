// Package nn holds the host side of the potency model: batch-first float64
// tensors for the feature pipeline, execution strategies that pick the graph
// backend, and NumPy-compatible checkpoints of graph variables.
package nn

import (
	"fmt"

	"github.com/turtacn/potencynet/pkg/errors"
)

// Tensor is a dense row-major array.  The first axis is the batch axis for
// every activation passed between layers.
type Tensor struct {
	Shape []int
	Data  []float64
}

// NewTensor allocates a zero tensor of the given shape.
func NewTensor(shape ...int) *Tensor {
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float64, volume(shape))}
}

// FromSlice wraps data without copying.  It panics when len(data) does not
// match the shape.
func FromSlice(data []float64, shape ...int) *Tensor {
	if len(data) != volume(shape) {
		panic(fmt.Sprintf("nn: %d values for shape %v", len(data), shape))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}
}

// FromRows stacks equal-length rows into an [N, len(row)] tensor.
func FromRows(rows [][]float64) (*Tensor, error) {
	if len(rows) == 0 {
		return nil, errors.InvalidParam("no rows")
	}
	cols := len(rows[0])
	t := NewTensor(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, errors.Newf(errors.ErrCodeShapeMismatch, "row %d has %d values, want %d", i, len(r), cols)
		}
		copy(t.Data[i*cols:], r)
	}
	return t, nil
}

func volume(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Size is the number of elements.
func (t *Tensor) Size() int { return len(t.Data) }

// Batch is the length of the first axis.
func (t *Tensor) Batch() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: append([]int(nil), t.Shape...), Data: append([]float64(nil), t.Data...)}
}

// Zero sets every element to 0.
func (t *Tensor) Zero() {
	for i := range t.Data {
		t.Data[i] = 0
	}
}

// SameShape reports whether t and o have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// Rows returns the sample slices of a batch tensor.  The slices alias t.
func (t *Tensor) Rows() [][]float64 {
	n := t.Batch()
	if n == 0 {
		return nil
	}
	stride := len(t.Data) / n
	out := make([][]float64, n)
	for i := range out {
		out[i] = t.Data[i*stride : (i+1)*stride]
	}
	return out
}

// Gather copies the samples at idx into a new batch tensor.
func (t *Tensor) Gather(idx []int) *Tensor {
	stride := len(t.Data) / t.Batch()
	shape := append([]int{len(idx)}, t.Shape[1:]...)
	out := NewTensor(shape...)
	for k, i := range idx {
		copy(out.Data[k*stride:(k+1)*stride], t.Data[i*stride:(i+1)*stride])
	}
	return out
}

// Slice returns samples [from, to) as a new tensor sharing t's storage.
func (t *Tensor) Slice(from, to int) *Tensor {
	stride := len(t.Data) / t.Batch()
	shape := append([]int{to - from}, t.Shape[1:]...)
	return &Tensor{Shape: shape, Data: t.Data[from*stride : to*stride]}
}
