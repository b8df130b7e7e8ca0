package cli

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/turtacn/potencynet/internal/domain/molecule"
	"github.com/turtacn/potencynet/internal/infrastructure/dataset"
	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/internal/intelligence/chem_descriptors"
	"github.com/turtacn/potencynet/pkg/errors"
)

type featurizeOptions struct {
	input   string
	out     string
	refresh bool
	noCache bool
}

// NewFeaturizeCmd creates the featurize command, which prints or writes the
// descriptor table of a CSV with ID and Smiles columns.
func NewFeaturizeCmd() *cobra.Command {
	opts := &featurizeOptions{}
	cmd := &cobra.Command{
		Use:   "featurize",
		Short: "Compute the 14 chemical descriptors for every molecule of a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeaturize(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "CSV with ID and Smiles columns (required)")
	f.StringVar(&opts.out, "out", "", "write the table to this CSV instead of stdout")
	f.BoolVar(&opts.refresh, "refresh", false, "drop cached vectors of the input molecules first")
	f.BoolVar(&opts.noCache, "no-cache", false, "do not use the descriptor cache")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runFeaturize(cmd *cobra.Command, opts *featurizeOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	logger := cliCtx.Logger
	ctx, cancel := cliCtx.commandContext(cmd)
	defer cancel()

	records, err := dataset.ReadTestCSV(opts.input)
	if err != nil {
		return err
	}
	smiles := molecule.SMILESOf(records)

	extOpts := []chem_descriptors.ExtractorOption{
		chem_descriptors.WithWorkers(cliCtx.Config.Features.Workers),
		chem_descriptors.WithLogger(logger.Named("descriptors")),
	}
	cacheCfg := cliCtx.Config.Cache
	cacheCfg.Enabled = cacheCfg.Enabled && !opts.noCache
	cache, closeCache := openDescriptorCache(cacheCfg, logger)
	defer closeCache()
	if cache != nil {
		if opts.refresh {
			n, err := cache.Invalidate(ctx, lo.Uniq(smiles)...)
			if err != nil {
				return err
			}
			logger.Info("cached descriptors dropped", logging.Int64("keys", n))
		}
		extOpts = append(extOpts, chem_descriptors.WithCache(cache))
	} else if opts.refresh {
		logger.Warn("--refresh has no effect without the descriptor cache")
	}

	vecs, failures, err := chem_descriptors.NewExtractor(extOpts...).ExtractAll(ctx, smiles)
	if err != nil {
		return err
	}
	// cancelled molecules come back as failures; report the interrupt instead
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCancelled, "descriptor extraction cancelled")
	}
	report := newDescriptorReport(records, vecs, failures)
	for _, f := range failures {
		logger.Warn("descriptor extraction failed",
			logging.String("id", records[f.Index].ID),
			logging.String("smiles", f.SMILES),
			logging.Err(f.Err))
	}

	if opts.out != "" {
		if err := report.writeCSV(opts.out); err != nil {
			return err
		}
		PrintSuccess(cmd, fmt.Sprintf("%d rows written to %s (%d failed)", len(report), opts.out, len(failures)))
		return nil
	}
	return PrintResult(cmd, report)
}

type descriptorRow struct {
	ID          string             `json:"id"`
	SMILES      string             `json:"smiles"`
	Descriptors map[string]float64 `json:"descriptors,omitempty"`
	Error       string             `json:"error,omitempty"`

	values []float64
}

type descriptorReport []descriptorRow

func newDescriptorReport(records []molecule.Record, vecs []chem_descriptors.Vector, failures []chem_descriptors.Failure) descriptorReport {
	failed := lo.SliceToMap(failures, func(f chem_descriptors.Failure) (int, error) { return f.Index, f.Err })
	out := make(descriptorReport, len(records))
	for i, rec := range records {
		row := descriptorRow{ID: rec.ID, SMILES: rec.SMILES}
		if err, ok := failed[i]; ok {
			row.Error = err.Error()
		} else {
			row.values = vecs[i]
			row.Descriptors = make(map[string]float64, chem_descriptors.Count)
			for j, name := range chem_descriptors.Names {
				row.Descriptors[name] = vecs[i][j]
			}
		}
		out[i] = row
	}
	return out
}

func (r descriptorReport) TableHeaders() []string {
	return append([]string{"ID", "SMILES"}, chem_descriptors.Names[:]...)
}

func (r descriptorReport) TableRows() [][]string {
	rows := make([][]string, len(r))
	for i, row := range r {
		rows[i] = row.cells(func(v float64) string { return strconv.FormatFloat(v, 'g', 5, 64) })
	}
	return rows
}

func (row descriptorRow) cells(format func(float64) string) []string {
	cells := []string{row.ID, row.SMILES}
	if row.values == nil {
		cells = append(cells, "error: "+row.Error)
		for i := 1; i < chem_descriptors.Count; i++ {
			cells = append(cells, "")
		}
		return cells
	}
	for _, v := range row.values {
		cells = append(cells, format(v))
	}
	return cells
}

func (r descriptorReport) String() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(r.TableHeaders(), "\t"))
	for _, cells := range r.TableRows() {
		sb.WriteString("\n")
		sb.WriteString(strings.Join(cells, "\t"))
	}
	return sb.String()
}

// writeCSV writes full-precision values.  Failed molecules keep their row
// with empty descriptor cells.
func (r descriptorReport) writeCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "create descriptor table").WithDetail(path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(r.TableHeaders()); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "write descriptor table")
	}
	for _, row := range r {
		cells := row.cells(func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) })
		if row.values == nil {
			cells[2] = ""
		}
		if err := w.Write(cells); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "write descriptor table")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "write descriptor table")
	}
	return f.Close()
}
