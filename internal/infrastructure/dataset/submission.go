package dataset

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/turtacn/potencynet/pkg/errors"
)

// SubmissionHeader is the header row of the submission file.
var SubmissionHeader = []string{"ID", "IC50_nM"}

// WriteSubmission writes one ID,IC50_nM row per prediction in input order.
// The file is replaced atomically.
func WriteSubmission(path string, ids []string, ic50 []float64) (err error) {
	if len(ids) != len(ic50) {
		return errors.Newf(errors.ErrCodeSubmissionFailed, "%d IDs for %d predictions", len(ids), len(ic50))
	}
	for i, v := range ic50 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Newf(errors.ErrCodeSubmissionFailed, "prediction for %s is not finite", ids[i])
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeSubmissionFailed, "create output dir")
	}
	tmp, err := os.CreateTemp(dir, ".submission-*.csv")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSubmissionFailed, "create temp file")
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(SubmissionHeader); err != nil {
		return errors.Wrap(err, errors.ErrCodeSubmissionFailed, "write header")
	}
	for i, id := range ids {
		if err := w.Write([]string{id, strconv.FormatFloat(ic50[i], 'g', -1, 64)}); err != nil {
			return errors.Wrapf(err, errors.ErrCodeSubmissionFailed, "write %s", id)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSubmissionFailed, "flush")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSubmissionFailed, "close")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, errors.ErrCodeSubmissionFailed, "replace submission")
	}
	return nil
}
