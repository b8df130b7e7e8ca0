package nn

import (
	"archive/zip"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/turtacn/potencynet/pkg/errors"
)

const npyExt = ".npy"

// Array is one named weight array of a checkpoint.
type Array struct {
	Name  string
	Value *Tensor
}

// SaveNPZ writes arrays to path as a NumPy .npz archive keyed by name.
// Two-dimensional arrays keep their shape, the rest are stored flat.  The
// file is replaced atomically.
func SaveNPZ(path string, arrays []Array) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckpointFailed, "create checkpoint dir")
	}
	tmp, err := os.CreateTemp(dir, ".ckpt-*.npz")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckpointFailed, "create temp checkpoint")
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	zw := zip.NewWriter(tmp)
	for _, p := range arrays {
		w, err := zw.Create(p.Name + npyExt)
		if err != nil {
			return errors.Wrapf(err, errors.ErrCodeCheckpointFailed, "add %s", p.Name)
		}
		var value interface{} = p.Value.Data
		if len(p.Value.Shape) == 2 {
			value = mat.NewDense(p.Value.Shape[0], p.Value.Shape[1], p.Value.Data)
		}
		if err := npyio.Write(w, value); err != nil {
			return errors.Wrapf(err, errors.ErrCodeCheckpointFailed, "encode %s", p.Name)
		}
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckpointFailed, "finish archive")
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckpointFailed, "sync checkpoint")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckpointFailed, "close checkpoint")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckpointFailed, "replace checkpoint")
	}
	return nil
}

// LoadNPZ reads the arrays saved by SaveNPZ into the values of arrays.
// Every name must be present with the same number of elements.
func LoadNPZ(path string, arrays []Array) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckpointFailed, "open checkpoint")
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	for _, p := range arrays {
		f, ok := files[p.Name+npyExt]
		if !ok {
			return errors.Newf(errors.ErrCodeCheckpointFailed, "checkpoint has no array %q", p.Name)
		}
		if err := readArray(f, p); err != nil {
			return err
		}
	}
	return nil
}

func readArray(f *zip.File, p Array) error {
	rc, err := f.Open()
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeCheckpointFailed, "open %s", f.Name)
	}
	defer rc.Close()

	r, err := npyio.NewReader(rc)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeCheckpointFailed, "read header of %s", f.Name)
	}
	n := volume(r.Header.Descr.Shape)
	if n != p.Value.Size() {
		return errors.Newf(errors.ErrCodeShapeMismatch, "%s: checkpoint has %d values, model has %d", p.Name, n, p.Value.Size())
	}
	data := make([]float64, n)
	if err := r.Read(&data); err != nil {
		return errors.Wrapf(err, errors.ErrCodeCheckpointFailed, "decode %s", f.Name)
	}
	if len(data) != p.Value.Size() {
		return errors.Newf(errors.ErrCodeCheckpointFailed, "%s: decoded %d values", p.Name, len(data))
	}
	copy(p.Value.Data, data)
	return nil
}
