// Package molecule holds the domain model shared by every stage of the
// potency pipeline: the molecule record read from the input tables, the
// potency unit transform and the character-level sequence encoder.
package molecule

import (
	"math"
	"strings"

	"github.com/turtacn/potencynet/pkg/errors"
)

// Record is one row of the train or test table.  Training rows carry the
// observed IC50 in nanomolar; test rows leave IC50 nil.
type Record struct {
	ID     string   `json:"id"`
	SMILES string   `json:"smiles"`
	IC50   *float64 `json:"ic50_nm,omitempty"`

	// Row is the zero-based position of the record in its source table.  It
	// survives row exclusion so voxel arrays can be re-aligned.
	Row int `json:"row"`
}

// HasTarget reports whether the record carries an observed potency.
func (r Record) HasTarget() bool {
	return r.IC50 != nil
}

// PIC50 returns the record's potency on the log scale.
func (r Record) PIC50() (float64, error) {
	if r.IC50 == nil {
		return 0, errors.New(errors.ErrCodeInvalidPotency, "record has no observed IC50").
			WithDetail("id=" + r.ID)
	}
	return ToPIC50(*r.IC50)
}

// Validate checks the fields every record must have.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.InvalidParam("record ID must not be empty")
	}
	if strings.TrimSpace(r.SMILES) == "" {
		return errors.New(errors.ErrCodeMoleculeInvalidSMILES, "SMILES must not be empty").
			WithDetail("id=" + r.ID)
	}
	if r.IC50 != nil {
		if _, err := ToPIC50(*r.IC50); err != nil {
			return errors.Wrap(err, errors.CodeUnknown, "invalid target").WithDetail("id=" + r.ID)
		}
	}
	return nil
}

// pIC50 offset: 1 M = 1e9 nM.
const nanomolarExponent = 9.0

// ToPIC50 converts an IC50 in nanomolar to pIC50 = -log10(IC50) + 9.
func ToPIC50(ic50nM float64) (float64, error) {
	if math.IsNaN(ic50nM) || math.IsInf(ic50nM, 0) || ic50nM <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidPotency, "IC50 must be positive and finite, got %v", ic50nM)
	}
	return -math.Log10(ic50nM) + nanomolarExponent, nil
}

// ToIC50 is the inverse of ToPIC50: IC50 = 10^(9 - pIC50) nanomolar.
func ToIC50(pic50 float64) float64 {
	return math.Pow(10, nanomolarExponent-pic50)
}

// SMILESOf returns the structure strings of records in order.
func SMILESOf(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.SMILES
	}
	return out
}

// Targets returns the pIC50 of every record.  It fails on the first record
// without a valid target.
func Targets(records []Record) ([]float64, error) {
	out := make([]float64, len(records))
	for i, r := range records {
		p, err := r.PIC50()
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}
