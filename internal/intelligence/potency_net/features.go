package potency_net

import (
	"github.com/turtacn/potencynet/internal/intelligence/nn"
	"github.com/turtacn/potencynet/pkg/errors"
)

// Features holds the three aligned input modalities of a set of molecules.
// Voxels is [N, D, H, W, 1], Descriptors [N, k] and Sequences [N, T] with
// range-scaled character codes.
type Features struct {
	Voxels      *nn.Tensor
	Descriptors *nn.Tensor
	Sequences   *nn.Tensor
}

// NewFeatures assembles Features from per-record rows.  voxels must already
// be shaped [N, D, H, W, 1].
func NewFeatures(voxels *nn.Tensor, descriptors, sequences [][]float64) (Features, error) {
	d, err := nn.FromRows(descriptors)
	if err != nil {
		return Features{}, errors.Wrap(err, errors.CodeUnknown, "descriptors")
	}
	s, err := nn.FromRows(sequences)
	if err != nil {
		return Features{}, errors.Wrap(err, errors.CodeUnknown, "sequences")
	}
	f := Features{Voxels: voxels, Descriptors: d, Sequences: s}
	if err := f.Validate(); err != nil {
		return Features{}, err
	}
	return f, nil
}

// Len is the number of molecules.
func (f Features) Len() int {
	if f.Descriptors == nil {
		return 0
	}
	return f.Descriptors.Batch()
}

// Validate checks that the modalities are present and aligned.
func (f Features) Validate() error {
	if f.Voxels == nil || f.Descriptors == nil || f.Sequences == nil {
		return errors.InvalidParam("features: every modality is required")
	}
	if len(f.Voxels.Shape) != 5 || f.Voxels.Shape[4] != 1 {
		return errors.Newf(errors.ErrCodeShapeMismatch, "voxels have shape %v, want [N, D, H, W, 1]", f.Voxels.Shape)
	}
	if len(f.Descriptors.Shape) != 2 || len(f.Sequences.Shape) != 2 {
		return errors.New(errors.ErrCodeShapeMismatch, "descriptors and sequences must be two-dimensional")
	}
	n := f.Descriptors.Batch()
	if f.Voxels.Batch() != n || f.Sequences.Batch() != n {
		return errors.Newf(errors.ErrCodeShapeMismatch, "modalities disagree on sample count: voxels %d, descriptors %d, sequences %d",
			f.Voxels.Batch(), n, f.Sequences.Batch())
	}
	return nil
}

// Subset copies the samples at idx.
func (f Features) Subset(idx []int) Features {
	return Features{
		Voxels:      f.Voxels.Gather(idx),
		Descriptors: f.Descriptors.Gather(idx),
		Sequences:   f.Sequences.Gather(idx),
	}
}

// Slice returns samples [from, to) sharing storage with f.
func (f Features) Slice(from, to int) Features {
	return Features{
		Voxels:      f.Voxels.Slice(from, to),
		Descriptors: f.Descriptors.Slice(from, to),
		Sequences:   f.Sequences.Slice(from, to),
	}
}
