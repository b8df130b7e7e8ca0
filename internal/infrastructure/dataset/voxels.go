package dataset

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/sbinet/npyio"

	"github.com/turtacn/potencynet/internal/intelligence/nn"
	"github.com/turtacn/potencynet/pkg/errors"
)

// LoadVoxels reads a .npy voxel array.
func LoadVoxels(path string) (*nn.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatasetReadFailed, "open voxel array").WithDetail(path)
	}
	defer f.Close()
	t, err := ReadVoxels(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, path)
	}
	return t, nil
}

// ReadVoxels decodes a C-ordered numeric .npy array of shape [N, D, H, W]
// or [N, D, H, W, 1] into a float64 tensor of shape [N, D, H, W, 1].
func ReadVoxels(r io.Reader) (*nn.Tensor, error) {
	npy, err := npyio.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVoxelFormat, "read npy header")
	}
	descr := npy.Header.Descr
	if descr.Fortran {
		return nil, errors.New(errors.ErrCodeVoxelFormat, "fortran-ordered arrays are not supported")
	}
	shape := append([]int(nil), descr.Shape...)
	switch {
	case len(shape) == 4:
		shape = append(shape, 1)
	case len(shape) == 5 && shape[4] == 1:
	default:
		return nil, errors.Newf(errors.ErrCodeVoxelFormat, "voxel array has shape %v, want [N, D, H, W] or [N, D, H, W, 1]", descr.Shape)
	}
	for _, d := range shape {
		if d <= 0 {
			return nil, errors.Newf(errors.ErrCodeVoxelFormat, "voxel array has empty axis in shape %v", descr.Shape)
		}
	}

	t := nn.NewTensor(shape...)
	if err := readNumeric(r, descr.Type, t.Data); err != nil {
		return nil, err
	}
	return t, nil
}

func byteOrder(dtype string) binary.ByteOrder {
	if len(dtype) > 0 && dtype[0] == '>' {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// readNumeric bulk-reads len(dst) values of the given numpy dtype and
// widens them to float64.
func readNumeric(r io.Reader, dtype string, dst []float64) error {
	order := byteOrder(dtype)
	n := len(dst)
	var err error
	switch dtype {
	case "f8", "<f8", ">f8", "|f8", "float64":
		err = binary.Read(r, order, dst)
	case "f4", "<f4", ">f4", "|f4", "float32":
		buf := make([]float32, n)
		if err = binary.Read(r, order, buf); err == nil {
			for i, v := range buf {
				dst[i] = float64(v)
			}
		}
	case "u1", "<u1", "|u1", "uint8":
		buf := make([]uint8, n)
		if err = binary.Read(r, order, buf); err == nil {
			for i, v := range buf {
				dst[i] = float64(v)
			}
		}
	case "b1", "<b1", "|b1", "bool":
		buf := make([]bool, n)
		if err = binary.Read(r, order, buf); err == nil {
			for i, v := range buf {
				if v {
					dst[i] = 1
				}
			}
		}
	case "i1", "<i1", "|i1", "int8":
		buf := make([]int8, n)
		if err = binary.Read(r, order, buf); err == nil {
			for i, v := range buf {
				dst[i] = float64(v)
			}
		}
	case "i4", "<i4", ">i4", "|i4", "int32":
		buf := make([]int32, n)
		if err = binary.Read(r, order, buf); err == nil {
			for i, v := range buf {
				dst[i] = float64(v)
			}
		}
	case "i8", "<i8", ">i8", "|i8", "int64":
		buf := make([]int64, n)
		if err = binary.Read(r, order, buf); err == nil {
			for i, v := range buf {
				dst[i] = float64(v)
			}
		}
	default:
		return errors.Newf(errors.ErrCodeVoxelFormat, "unsupported voxel dtype %q", dtype)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeVoxelFormat, "read voxel data")
	}
	return nil
}

// AlignVoxels matches a voxel array to records that survived row
// exclusion.  An array with one entry per raw table row is reduced to the
// kept rows; an array already the size of the kept set is used as is.
func AlignVoxels(vox *nn.Tensor, rawRows int, keptRows []int) (*nn.Tensor, error) {
	switch n := vox.Batch(); n {
	case len(keptRows):
		return vox, nil
	case rawRows:
		for _, r := range keptRows {
			if r < 0 || r >= n {
				return nil, errors.Newf(errors.ErrCodeDatasetMisaligned, "row %d outside voxel array of %d", r, n)
			}
		}
		return vox.Gather(keptRows), nil
	default:
		return nil, errors.Newf(errors.ErrCodeDatasetMisaligned,
			"voxel array has %d entries for %d table rows (%d kept)", n, rawRows, len(keptRows))
	}
}
