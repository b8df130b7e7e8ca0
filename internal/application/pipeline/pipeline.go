// Package pipeline runs the end-to-end potency workflow: it loads the
// tables and voxel arrays, assembles the three feature modalities, trains
// the multi-branch network and writes the submission.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/potencynet/internal/config"
	"github.com/turtacn/potencynet/internal/domain/molecule"
	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/potencynet/internal/infrastructure/storage/minio"
	"github.com/turtacn/potencynet/internal/intelligence/chem_descriptors"
	"github.com/turtacn/potencynet/internal/intelligence/features"
	"github.com/turtacn/potencynet/internal/intelligence/nn"
	"github.com/turtacn/potencynet/internal/intelligence/potency_net"
	"github.com/turtacn/potencynet/pkg/errors"
)

// Stage names one step of a run.
type Stage string

const (
	StageLoad      Stage = "load"
	StageFeaturize Stage = "featurize"
	StageNormalize Stage = "normalize"
	StageBuild     Stage = "build"
	StageTrain     Stage = "train"
	StageEvaluate  Stage = "evaluate"
	StagePredict   Stage = "predict"
	StageWrite     Stage = "write"
	StagePublish   Stage = "publish"
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StageLoad, StageFeaturize, StageNormalize, StageBuild, StageTrain,
	StageEvaluate, StagePredict, StageWrite, StagePublish,
}

// StageError reports the stage in which a run failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Result summarizes a finished run.
type Result struct {
	RunID          string           `json:"run_id"`
	TrainRecords   int              `json:"train_records"`
	TestRecords    int              `json:"test_records"`
	DroppedRows    []int            `json:"dropped_rows,omitempty"`
	SequenceLength int              `json:"sequence_length"`
	Epochs         int              `json:"epochs"`
	StoppedEpoch   int              `json:"stopped_epoch"`
	BestEpoch      int              `json:"best_epoch"`
	BestValLoss    float64          `json:"best_val_loss"`
	TrainLoss      float64          `json:"train_loss"`
	TrainRMSE      float64          `json:"train_rmse"`
	CheckpointPath string           `json:"checkpoint_path"`
	SubmissionPath string           `json:"submission_path"`
	Manifest       *minio.Manifest  `json:"manifest,omitempty"`
	Duration       time.Duration    `json:"duration"`
	Stages         map[Stage]string `json:"stages"`
}

// Pipeline holds the collaborators of a run.  A Pipeline runs once; build a
// new one for every run.
type Pipeline struct {
	cfg       *config.Config
	logger    logging.Logger
	metrics   *prometheus.TrainingMetrics
	exporter  *prometheus.Exporter
	cache     chem_descriptors.VectorCache
	artifacts minio.ArtifactRepository
	arch      potency_net.Config
	runID     string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records stage, featurization and training metrics.
func WithMetrics(m *prometheus.TrainingMetrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithExporter exports the gathered metrics after the run.
func WithExporter(e *prometheus.Exporter) Option {
	return func(p *Pipeline) { p.exporter = e }
}

// WithDescriptorCache reads descriptor vectors through c.
func WithDescriptorCache(c chem_descriptors.VectorCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithArtifactRepository publishes the checkpoint and submission to r.
func WithArtifactRepository(r minio.ArtifactRepository) Option {
	return func(p *Pipeline) { p.artifacts = r }
}

// WithArchitecture replaces the reference network.  Hyper-parameters set in
// the configuration still override it.
func WithArchitecture(c potency_net.Config) Option {
	return func(p *Pipeline) { p.arch = c }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(p *Pipeline) { p.runID = id }
}

// New validates cfg and returns a Pipeline.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.InvalidParam("pipeline: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "pipeline: invalid configuration")
	}
	p := &Pipeline{
		cfg:    cfg,
		logger: logging.NewNopLogger(),
		arch:   potency_net.DefaultConfig(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.runID == "" {
		p.runID = uuid.NewString()
	}
	p.logger = p.logger.Named("pipeline").With(logging.String("run_id", p.runID))
	return p, nil
}

// RunID returns the identifier used for checkpoints, metrics and artifacts.
func (p *Pipeline) RunID() string { return p.runID }

// run carries the intermediate data between stages.
type run struct {
	rawTrain    int
	train, test []molecule.Record
	dropped     []int

	trainVoxels, testVoxels *nn.Tensor

	trainDesc, testDesc [][]float64
	trainSeq, testSeq   [][]float64
	seqLen              int

	target       []float64
	trainFeat    potency_net.Features
	testFeat     potency_net.Features
	estimator    *potency_net.Estimator
	model        *potency_net.Model
	predictions  []float64
	checkpointOK bool

	result *Result
}

// Run executes every stage in order and stops at the first failure, which
// is returned as a *StageError.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	r := &run{result: &Result{
		RunID:          p.runID,
		CheckpointPath: p.cfg.Training.CheckpointPath,
		SubmissionPath: p.cfg.Data.SubmissionPath,
		Stages:         make(map[Stage]string, len(Stages)),
	}}

	steps := map[Stage]func(context.Context, *run) error{
		StageLoad:      p.load,
		StageFeaturize: p.featurize,
		StageNormalize: p.normalize,
		StageBuild:     p.build,
		StageTrain:     p.train,
		StageEvaluate:  p.evaluate,
		StagePredict:   p.predict,
		StageWrite:     p.write,
		StagePublish:   p.publish,
	}

	p.logger.Info("run started", logging.String("train_csv", p.cfg.Data.TrainCSV), logging.String("test_csv", p.cfg.Data.TestCSV))
	var runErr error
	for _, stage := range Stages {
		if err := ctx.Err(); err != nil {
			runErr = &StageError{Stage: stage, Err: errors.Wrap(err, errors.ErrCodeCancelled, "run cancelled")}
			break
		}
		if err := p.runStage(ctx, stage, steps[stage], r); err != nil {
			runErr = err
			break
		}
	}
	r.result.Duration = time.Since(start)

	if p.exporter != nil {
		// export failures are logged by the exporter and do not fail the run
		_ = p.exporter.Export(ctx, p.runID)
	}
	if runErr != nil {
		p.logger.Error("run failed", logging.Err(runErr), logging.Duration("duration", r.result.Duration))
		return r.result, runErr
	}
	p.logger.Info("run finished",
		logging.Float64("train_rmse", r.result.TrainRMSE),
		logging.String("submission", r.result.SubmissionPath),
		logging.Duration("duration", r.result.Duration))
	return r.result, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, fn func(context.Context, *run) error, r *run) error {
	log := p.logger.With(logging.String("stage", string(stage)))
	var timer *prometheus.Timer
	if p.metrics != nil {
		timer = p.metrics.StageTimer(string(stage))
	}
	begin := time.Now()
	log.Debug("stage started")

	err := fn(ctx, r)
	d := time.Since(begin)
	if timer != nil {
		d = timer.ObserveDuration()
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordStageError(string(stage), string(errors.GetCode(err)))
		}
		r.result.Stages[stage] = "failed"
		return &StageError{Stage: stage, Err: err}
	}
	r.result.Stages[stage] = d.Round(time.Millisecond).String()
	log.Info("stage finished", logging.Duration("duration", d))
	return nil
}

// NewExtractor returns the descriptor extractor a run uses, wired to the
// pipeline's cache and metrics.
func (p *Pipeline) NewExtractor() *chem_descriptors.Extractor {
	opts := []chem_descriptors.ExtractorOption{
		chem_descriptors.WithWorkers(p.cfg.Features.Workers),
		chem_descriptors.WithLogger(p.logger.Named("descriptors")),
	}
	if p.cache != nil {
		opts = append(opts, chem_descriptors.WithCache(newInstrumentedCache(p.cache, p.metrics)))
	}
	if p.metrics != nil {
		opts = append(opts, chem_descriptors.WithObserver(p.metrics))
	}
	return chem_descriptors.NewExtractor(opts...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Stages
// ─────────────────────────────────────────────────────────────────────────────

func (p *Pipeline) normalize(_ context.Context, r *run) error {
	descNorm := features.NewRangeNormalizer("descriptors")
	var err error
	if r.trainDesc, err = descNorm.FitTransform(r.trainDesc); err != nil {
		return err
	}
	if r.testDesc, err = descNorm.Transform(r.testDesc); err != nil {
		return err
	}

	if p.cfg.Features.RawSequences {
		p.logger.Info("sequence scaling disabled")
		return nil
	}
	seqNorm := features.NewRangeNormalizer("sequences")
	if r.trainSeq, err = seqNorm.FitTransform(r.trainSeq); err != nil {
		return err
	}
	if r.testSeq, err = seqNorm.Transform(r.testSeq); err != nil {
		return err
	}
	return nil
}

// architecture applies the configured hyper-parameters to the network.
func (p *Pipeline) architecture() potency_net.Config {
	arch := p.arch
	m := p.cfg.Model
	arch.DropoutRate = m.DropoutRate
	arch.L2 = m.L2
	arch.Seed = m.Seed
	arch.BatchSize = p.cfg.Training.BatchSize
	arch.Optimizer.LearningRate = m.LearningRate
	arch.Optimizer.WeightDecay = m.WeightDecay
	if arch.VocabularySize == 0 {
		arch.VocabularySize = molecule.VocabularySize
	}
	return arch
}

func (p *Pipeline) build(_ context.Context, r *run) error {
	var err error
	if r.target, err = molecule.Targets(r.train); err != nil {
		return err
	}
	if r.trainFeat, err = potency_net.NewFeatures(r.trainVoxels, r.trainDesc, r.trainSeq); err != nil {
		return errors.Wrap(err, errors.CodeUnknown, "training features")
	}
	if r.testFeat, err = potency_net.NewFeatures(r.testVoxels, r.testDesc, r.testSeq); err != nil {
		return errors.Wrap(err, errors.CodeUnknown, "test features")
	}

	strategy := nn.SelectStrategy(p.cfg.Model.Strategy, p.cfg.Model.Replicas, p.logger)
	opts := []potency_net.EstimatorOption{
		potency_net.WithEstimatorStrategy(strategy),
		potency_net.WithEstimatorLogger(p.logger.Named("training")),
		potency_net.WithRunID(p.runID),
	}
	if p.metrics != nil {
		opts = append(opts, potency_net.WithTrainingObservers(&metricsCallback{metrics: p.metrics}))
	}
	r.estimator = potency_net.NewEstimator(p.architecture(), p.schedule(), opts...)
	p.logger.Info("features assembled",
		logging.Int("train", r.trainFeat.Len()),
		logging.Int("test", r.testFeat.Len()),
		logging.Ints("voxel_shape", r.trainFeat.Voxels.Shape[1:4]),
		logging.String("strategy", strategy.Name()))
	return nil
}

func (p *Pipeline) train(ctx context.Context, r *run) error {
	model, err := r.estimator.Train(ctx, r.trainFeat, r.target)
	if h := r.estimator.History(); h != nil {
		r.result.Epochs = len(h.Epochs)
		r.result.StoppedEpoch = h.StoppedEpoch
		if best, ok := h.Best(); ok {
			r.result.BestEpoch = best.Epoch
			r.result.BestValLoss = best.ValLoss
			r.checkpointOK = true
		}
	}
	if err != nil {
		return err
	}
	r.model = model
	return nil
}

func (p *Pipeline) evaluate(ctx context.Context, r *run) error {
	loss, rmse, err := r.model.Evaluate(ctx, r.trainFeat, r.target)
	if err != nil {
		return err
	}
	r.result.TrainLoss, r.result.TrainRMSE = loss, rmse
	p.logger.Info("final training error", logging.Float64("loss", loss), logging.Float64("rmse", rmse))
	return nil
}

func (p *Pipeline) predict(ctx context.Context, r *run) error {
	pic50, err := r.estimator.Predict(ctx, r.model, r.testFeat)
	if err != nil {
		return err
	}
	r.predictions = make([]float64, len(pic50))
	for i, v := range pic50 {
		r.predictions[i] = molecule.ToIC50(v)
	}
	return nil
}
