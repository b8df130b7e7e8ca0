package pipeline

import (
	"context"
	"sort"
	"strconv"

	"github.com/samber/lo"

	"github.com/turtacn/potencynet/internal/domain/molecule"
	"github.com/turtacn/potencynet/internal/infrastructure/dataset"
	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/internal/infrastructure/storage/minio"
	"github.com/turtacn/potencynet/internal/intelligence/chem_descriptors"
	"github.com/turtacn/potencynet/internal/intelligence/features"
	"github.com/turtacn/potencynet/pkg/errors"
)

// Policies for training records whose SMILES cannot be parsed.
const (
	InvalidSMILESExclude = "exclude"
	InvalidSMILESAbort   = "abort"
)

func (p *Pipeline) load(_ context.Context, r *run) error {
	d := p.cfg.Data
	raw, err := dataset.ReadTrainCSV(d.TrainCSV)
	if err != nil {
		return err
	}
	r.rawTrain = len(raw)
	if r.train, err = dataset.ExcludeRows(raw, d.ExcludeRows); err != nil {
		return err
	}
	r.dropped = append(r.dropped, d.ExcludeRows...)
	if r.test, err = dataset.ReadTestCSV(d.TestCSV); err != nil {
		return err
	}

	trainVox, err := dataset.LoadVoxels(d.TrainVoxels)
	if err != nil {
		return err
	}
	if r.trainVoxels, err = dataset.AlignVoxels(trainVox, r.rawTrain, dataset.RowsOf(r.train)); err != nil {
		return errors.Wrap(err, errors.CodeUnknown, "training voxels")
	}
	testVox, err := dataset.LoadVoxels(d.TestVoxels)
	if err != nil {
		return err
	}
	if r.testVoxels, err = dataset.AlignVoxels(testVox, len(r.test), dataset.RowsOf(r.test)); err != nil {
		return errors.Wrap(err, errors.CodeUnknown, "test voxels")
	}

	p.logger.Info("data loaded",
		logging.Int("train_rows", r.rawTrain),
		logging.Int("train_kept", len(r.train)),
		logging.Int("test_rows", len(r.test)),
		logging.Ints("excluded_rows", d.ExcludeRows))
	return nil
}

func (p *Pipeline) featurize(ctx context.Context, r *run) error {
	ext := p.NewExtractor()

	trainVecs, failures, err := ext.ExtractAll(ctx, molecule.SMILESOf(r.train))
	if err != nil {
		return err
	}
	if err := extractionCancelled(ctx); err != nil {
		return err
	}
	if len(failures) > 0 {
		if p.cfg.Data.InvalidSMILES != InvalidSMILESExclude {
			f := failures[0]
			return errors.Wrap(f.Err, errors.CodeUnknown, "training record has an invalid SMILES").
				WithDetailf("row %d %q, %d invalid in total", r.train[f.Index].Row, f.SMILES, len(failures))
		}
		bad := lo.SliceToMap(failures, func(f chem_descriptors.Failure) (int, struct{}) { return f.Index, struct{}{} })
		for _, f := range failures {
			p.logger.Warn("excluding training record",
				logging.Int("row", r.train[f.Index].Row),
				logging.String("id", r.train[f.Index].ID),
				logging.String("smiles", f.SMILES),
				logging.Err(f.Err))
			r.dropped = append(r.dropped, r.train[f.Index].Row)
		}
		keep := lo.Filter(lo.Range(len(r.train)), func(i, _ int) bool {
			_, ok := bad[i]
			return !ok
		})
		if len(keep) == 0 {
			return errors.New(errors.ErrCodeDatasetMalformed, "no training record has a valid SMILES")
		}
		r.train = lo.Map(keep, func(i, _ int) molecule.Record { return r.train[i] })
		trainVecs = lo.Map(keep, func(i, _ int) chem_descriptors.Vector { return trainVecs[i] })
		r.trainVoxels = r.trainVoxels.Gather(keep)
	}

	testVecs, failures, err := ext.ExtractAll(ctx, molecule.SMILESOf(r.test))
	if err != nil {
		return err
	}
	if err := extractionCancelled(ctx); err != nil {
		return err
	}
	if len(failures) > 0 {
		f := failures[0]
		return errors.Wrap(f.Err, errors.CodeUnknown, "test record has an invalid SMILES").
			WithDetailf("id %s %q, %d invalid in total", r.test[f.Index].ID, f.SMILES, len(failures))
	}
	r.trainDesc = vectorRows(trainVecs)
	r.testDesc = vectorRows(testVecs)

	if err := p.encodeSequences(r); err != nil {
		return err
	}

	sort.Ints(r.dropped)
	r.result.TrainRecords, r.result.TestRecords = len(r.train), len(r.test)
	r.result.DroppedRows = r.dropped
	r.result.SequenceLength = r.seqLen
	p.logger.Info("features extracted",
		logging.Int("descriptors", chem_descriptors.Count),
		logging.Int("sequence_length", r.seqLen),
		logging.Int("train", len(r.train)),
		logging.Int("test", len(r.test)))
	return nil
}

// extractionCancelled reports a context that ended during extraction.  The
// per-molecule failures it caused say nothing about the SMILES.
func extractionCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCancelled, "descriptor extraction cancelled")
	}
	return nil
}

// encodeSequences pads every structure string to one shared length, the
// longest string across train and test unless configured.
func (p *Pipeline) encodeSequences(r *run) error {
	trainSMILES, testSMILES := molecule.SMILESOf(r.train), molecule.SMILESOf(r.test)
	r.seqLen = p.cfg.Features.SequenceLength
	if r.seqLen == 0 {
		r.seqLen = molecule.MaxLength(trainSMILES, testSMILES)
	}
	enc, err := molecule.NewEncoder(r.seqLen)
	if err != nil {
		return err
	}
	r.trainSeq = features.IntsToFloats(enc.EncodeAll(trainSMILES))
	r.testSeq = features.IntsToFloats(enc.EncodeAll(testSMILES))
	return nil
}

func vectorRows(vs []chem_descriptors.Vector) [][]float64 {
	return lo.Map(vs, func(v chem_descriptors.Vector, _ int) []float64 { return []float64(v) })
}

func (p *Pipeline) write(_ context.Context, r *run) error {
	ids := lo.Map(r.test, func(rec molecule.Record, _ int) string { return rec.ID })
	if err := dataset.WriteSubmission(p.cfg.Data.SubmissionPath, ids, r.predictions); err != nil {
		return err
	}
	p.logger.Info("submission written", logging.String("path", p.cfg.Data.SubmissionPath), logging.Int("rows", len(ids)))
	return nil
}

func (p *Pipeline) publish(ctx context.Context, r *run) error {
	if p.artifacts == nil {
		p.logger.Debug("artifact publishing disabled")
		return nil
	}
	artifacts := []minio.Artifact{
		{Path: p.cfg.Data.SubmissionPath, Kind: "submission", ContentType: "text/csv"},
	}
	if r.checkpointOK {
		artifacts = append([]minio.Artifact{
			{Path: p.cfg.Training.CheckpointPath, Kind: "checkpoint", ContentType: "application/zip"},
		}, artifacts...)
	} else {
		p.logger.Warn("no checkpoint was written, publishing the submission only")
	}
	labels := map[string]string{
		"strategy":   p.cfg.Model.Strategy,
		"epochs":     strconv.Itoa(r.result.Epochs),
		"best_epoch": strconv.Itoa(r.result.BestEpoch),
		"train_rmse": strconv.FormatFloat(r.result.TrainRMSE, 'g', 6, 64),
	}
	m, err := p.artifacts.Publish(ctx, p.runID, artifacts, labels)
	if err != nil {
		return err
	}
	r.result.Manifest = m
	p.logger.Info("artifacts published", logging.String("bucket", m.Bucket), logging.Int("objects", len(m.Objects)))
	return nil
}
