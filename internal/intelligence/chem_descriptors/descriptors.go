// Package chem_descriptors parses SMILES strings into molecular graphs and
// computes the fixed descriptor vector used as the dense input modality of
// the potency model.
package chem_descriptors

import (
	"context"
	"math"
	"time"

	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/internal/intelligence/common"
	"github.com/turtacn/potencynet/pkg/errors"
)

// Names lists the descriptors in vector order.
var Names = [...]string{
	"MolWt",
	"LogP",
	"TPSA",
	"NumHDonors",
	"NumHAcceptors",
	"NumRotatableBonds",
	"FractionCSP3",
	"MinPartialCharge",
	"MaxPartialCharge",
	"NumValenceElectrons",
	"BertzCT",
	"HallKierAlpha",
	"BalabanJ",
	"QED",
}

// Count is the descriptor vector length.
const Count = len(Names)

// Vector holds one molecule's descriptors in the order of Names.
type Vector []float64

// Get returns the descriptor with the given name.
func (v Vector) Get(name string) (float64, bool) {
	for i, n := range Names {
		if n == name && i < len(v) {
			return v[i], true
		}
	}
	return 0, false
}

// Compute returns the descriptor vector of a parsed molecule.
func Compute(m *Molecule) (Vector, error) {
	if m == nil || len(m.Atoms) == 0 {
		return nil, errors.New(errors.ErrCodeDescriptorFailed, "empty molecule")
	}
	charges, err := GasteigerCharges(m)
	if err != nil {
		return nil, err
	}
	minQ, maxQ := math.Inf(1), math.Inf(-1)
	for _, q := range charges {
		minQ = math.Min(minQ, q)
		maxQ = math.Max(maxQ, q)
	}

	props := QEDPropertiesOf(m)
	v := Vector{
		props.MW,
		props.ALogP,
		props.PSA,
		float64(props.HBD),
		float64(props.HBA),
		float64(props.ROTB),
		FractionCSP3(m),
		minQ,
		maxQ,
		float64(NumValenceElectrons(m)),
		BertzCT(m),
		HallKierAlpha(m),
		BalabanJ(m),
		QED(props),
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, errors.Newf(errors.ErrCodeDescriptorFailed, "%s is not finite", Names[i]).
				WithDetail(m.SMILES)
		}
	}
	return v, nil
}

// VectorCache stores descriptor vectors by SMILES.  A miss returns
// (nil, false, nil).
type VectorCache interface {
	GetVector(ctx context.Context, smiles string) ([]float64, bool, error)
	SetVector(ctx context.Context, smiles string, v []float64) error
}

// Failure describes one SMILES string that produced no vector.
type Failure struct {
	Index  int
	SMILES string
	Err    error
}

// Extractor computes descriptor vectors from SMILES strings, optionally
// reading through a cache.
type Extractor struct {
	cache    VectorCache
	logger   logging.Logger
	workers  int
	observer common.BatchObserver
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithCache enables read-through caching.
func WithCache(c VectorCache) ExtractorOption {
	return func(e *Extractor) { e.cache = c }
}

// WithWorkers bounds the number of molecules processed concurrently.
func WithWorkers(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the extractor's logger.
func WithLogger(l logging.Logger) ExtractorOption {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver reports each ExtractAll batch to o.
func WithObserver(o common.BatchObserver) ExtractorOption {
	return func(e *Extractor) { e.observer = o }
}

// NewExtractor returns an Extractor with the given options applied.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{logger: logging.NewNopLogger(), workers: 8}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract parses smiles and returns its descriptor vector.  Cache faults are
// logged and fall back to computation.
func (e *Extractor) Extract(ctx context.Context, smiles string) (Vector, error) {
	if e.cache != nil {
		cached, ok, err := e.cache.GetVector(ctx, smiles)
		switch {
		case err != nil:
			e.logger.Warn("descriptor cache read failed", logging.String("smiles", smiles), logging.Err(err))
		case ok && len(cached) == Count:
			return Vector(cached), nil
		}
	}

	mol, err := Parse(smiles)
	if err != nil {
		return nil, err
	}
	v, err := Compute(mol)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.SetVector(ctx, smiles, v); err != nil {
			e.logger.Warn("descriptor cache write failed", logging.String("smiles", smiles), logging.Err(err))
		}
	}
	return v, nil
}

// ExtractAll extracts every SMILES string with bounded concurrency.  The
// returned vectors are in input order; entries listed in failures are nil.
// The error is non-nil only when the batch itself could not run.
func (e *Extractor) ExtractAll(ctx context.Context, smiles []string) ([]Vector, []Failure, error) {
	bp := common.NewBatchProcessor[string, Vector](
		common.WithName("descriptors"),
		common.WithMaxConcurrency(e.workers),
		common.WithItemTimeout(time.Minute),
		common.WithBatchLogger(e.logger),
		common.WithBatchObserver(e.observer),
	)
	res, err := bp.Process(ctx, smiles, e.Extract)
	if err != nil {
		return nil, nil, err
	}
	var failures []Failure
	for _, r := range res.Failed() {
		failures = append(failures, Failure{Index: r.Index, SMILES: smiles[r.Index], Err: r.Error})
	}
	return res.Values(), failures, nil
}
