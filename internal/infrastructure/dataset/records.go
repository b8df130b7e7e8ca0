// Package dataset reads the pipeline's input tables and voxel arrays and
// writes the submission file.
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/turtacn/potencynet/internal/domain/molecule"
	"github.com/turtacn/potencynet/pkg/errors"
)

// Column names of the input tables.
const (
	ColumnID     = "ID"
	ColumnSMILES = "Smiles"
	ColumnIC50   = "IC50_nM"
)

// ReadTrainCSV reads a table with ID, Smiles and IC50_nM columns.
func ReadTrainCSV(path string) ([]molecule.Record, error) {
	return readFile(path, true)
}

// ReadTestCSV reads a table with ID and Smiles columns.  Any IC50 column is
// ignored.
func ReadTestCSV(path string) ([]molecule.Record, error) {
	return readFile(path, false)
}

func readFile(path string, withTarget bool) ([]molecule.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatasetReadFailed, "open table").WithDetail(path)
	}
	defer f.Close()
	records, err := ReadRecords(f, withTarget)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, path)
	}
	return records, nil
}

// ReadRecords parses a CSV table.  Columns are located by header name and
// may appear in any order; extra columns are ignored.
func ReadRecords(r io.Reader, withTarget bool) ([]molecule.Record, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrCodeDatasetMalformed, "empty table")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatasetReadFailed, "read header")
	}
	header = lo.Map(header, func(h string, _ int) string { return strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) })

	required := []string{ColumnID, ColumnSMILES}
	if withTarget {
		required = append(required, ColumnIC50)
	}
	if missing, _ := lo.Difference(required, header); len(missing) > 0 {
		return nil, errors.Newf(errors.ErrCodeDatasetMalformed, "missing columns %v", missing)
	}
	idCol, smilesCol, ic50Col := lo.IndexOf(header, ColumnID), lo.IndexOf(header, ColumnSMILES), lo.IndexOf(header, ColumnIC50)

	var out []molecule.Record
	for row := 0; ; row++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeDatasetMalformed, "row %d", row)
		}
		rec := molecule.Record{
			ID:     strings.TrimSpace(fields[idCol]),
			SMILES: strings.TrimSpace(fields[smilesCol]),
			Row:    row,
		}
		if withTarget {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[ic50Col]), 64)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrCodeDatasetMalformed, "row %d: IC50", row)
			}
			rec.IC50 = &v
		}
		if err := rec.Validate(); err != nil {
			return nil, errors.Wrapf(err, errors.CodeUnknown, "row %d", row)
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, errors.New(errors.ErrCodeDatasetMalformed, "table has no rows")
	}
	return out, nil
}

// ExcludeRows drops the records whose source Row is listed in rows.  Every
// listed row must exist.
func ExcludeRows(records []molecule.Record, rows []int) ([]molecule.Record, error) {
	if len(rows) == 0 {
		return records, nil
	}
	drop := lo.SliceToMap(rows, func(r int) (int, struct{}) { return r, struct{}{} })
	present := lo.SliceToMap(records, func(r molecule.Record) (int, struct{}) { return r.Row, struct{}{} })
	for r := range drop {
		if _, ok := present[r]; !ok {
			return nil, errors.Newf(errors.ErrCodeDatasetMisaligned, "excluded row %d is not in the table", r)
		}
	}
	return lo.Reject(records, func(r molecule.Record, _ int) bool {
		_, ok := drop[r.Row]
		return ok
	}), nil
}

// KeepRows returns the records whose Row is listed, in table order.
func KeepRows(records []molecule.Record, rows []int) []molecule.Record {
	keep := lo.SliceToMap(rows, func(r int) (int, struct{}) { return r, struct{}{} })
	return lo.Filter(records, func(r molecule.Record, _ int) bool {
		_, ok := keep[r.Row]
		return ok
	})
}

// RowsOf returns the source rows of records in ascending order.
func RowsOf(records []molecule.Record) []int {
	rows := lo.Map(records, func(r molecule.Record, _ int) int { return r.Row })
	sort.Ints(rows)
	return rows
}
