package potency_net

import (
	"context"
	"fmt"
	"sort"

	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/internal/intelligence/nn"
	"github.com/turtacn/potencynet/internal/intelligence/training"
	"github.com/turtacn/potencynet/pkg/errors"
)

// Estimator adapts model construction and fitting to a train, predict and
// score interface.
type Estimator struct {
	cfg       Config
	schedule  training.Config
	strategy  nn.Strategy
	logger    logging.Logger
	observers []training.Callback
	runID     string

	history *training.History
}

// EstimatorOption configures an Estimator.
type EstimatorOption func(*Estimator)

// WithEstimatorStrategy sets the execution strategy of trained models.
func WithEstimatorStrategy(s nn.Strategy) EstimatorOption {
	return func(e *Estimator) { e.strategy = s }
}

// WithEstimatorLogger sets the logger.
func WithEstimatorLogger(l logging.Logger) EstimatorOption {
	return func(e *Estimator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTrainingObservers adds callbacks that run after the built-in policies.
func WithTrainingObservers(cbs ...training.Callback) EstimatorOption {
	return func(e *Estimator) { e.observers = append(e.observers, cbs...) }
}

// WithRunID labels training runs.
func WithRunID(id string) EstimatorOption {
	return func(e *Estimator) { e.runID = id }
}

// NewEstimator returns an Estimator for the given architecture and
// schedule.  Input dimensions left zero in cfg are taken from the data.
func NewEstimator(cfg Config, schedule training.Config, opts ...EstimatorOption) *Estimator {
	e := &Estimator{cfg: cfg, schedule: schedule, logger: logging.NewNopLogger()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// History returns the history of the last Train call.
func (e *Estimator) History() *training.History { return e.history }

// configFor fills the data-dependent dimensions from f.
func (e *Estimator) configFor(f Features) Config {
	cfg := e.cfg
	if cfg.VoxelShape == [3]int{} {
		cfg.VoxelShape = [3]int{f.Voxels.Shape[1], f.Voxels.Shape[2], f.Voxels.Shape[3]}
	}
	if cfg.DescriptorDim == 0 {
		cfg.DescriptorDim = f.Descriptors.Shape[1]
	}
	if cfg.SequenceLength == 0 {
		cfg.SequenceLength = f.Sequences.Shape[1]
	}
	return cfg
}

// Train builds, compiles and fits a new model.  The returned model holds
// the weights chosen by early stopping.
func (e *Estimator) Train(ctx context.Context, f Features, target []float64) (*Model, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	cfg := e.configFor(f)
	if cfg.VoxelShape != [3]int{f.Voxels.Shape[1], f.Voxels.Shape[2], f.Voxels.Shape[3]} ||
		cfg.DescriptorDim != f.Descriptors.Shape[1] || cfg.SequenceLength != f.Sequences.Shape[1] {
		return nil, errors.New(errors.ErrCodeShapeMismatch, "features do not match the configured input shapes")
	}

	m, err := NewModel(cfg, WithStrategy(e.strategy), WithModelLogger(e.logger.Named("model")))
	if err != nil {
		return nil, err
	}
	if err := m.Compile(cfg.Optimizer); err != nil {
		return nil, err
	}

	schedule := e.schedule
	schedule.BatchSize = cfg.BatchSize
	ctrl, err := training.NewController[Features](schedule,
		training.WithLogger(e.logger),
		training.WithObservers(e.observers...),
		training.WithRunID(e.runID))
	if err != nil {
		return nil, err
	}
	h, err := ctrl.Fit(ctx, m, f, target)
	e.history = h
	if err != nil {
		return nil, err
	}
	if err := m.MarkTrained(); err != nil {
		return nil, err
	}
	return m, nil
}

// Predict returns pIC50 predictions of a trained model.
func (e *Estimator) Predict(ctx context.Context, m *Model, f Features) ([]float64, error) {
	if m == nil {
		return nil, errors.New(errors.ErrCodeModelNotTrained, "no model")
	}
	return m.Predict(ctx, f)
}

// Score returns the negative mean squared error of the predictions, so
// higher is better.
func (e *Estimator) Score(ctx context.Context, m *Model, f Features, target []float64) (float64, error) {
	pred, err := e.Predict(ctx, m, f)
	if err != nil {
		return 0, err
	}
	if len(pred) != len(target) {
		return 0, errors.Newf(errors.ErrCodeShapeMismatch, "%d predictions for %d targets", len(pred), len(target))
	}
	rmse := nn.RMSE(pred, target)
	return -rmse * rmse, nil
}

// Params returns the tunable hyper-parameters.
func (e *Estimator) Params() map[string]any {
	return map[string]any{
		"optimizer":     "adamw",
		"learning_rate": e.cfg.Optimizer.LearningRate,
		"weight_decay":  e.cfg.Optimizer.WeightDecay,
		"dropout_rate":  e.cfg.DropoutRate,
		"batch_size":    e.cfg.BatchSize,
		"epochs":        e.schedule.Epochs,
	}
}

// SetParams updates hyper-parameters by name.  Unknown names and values of
// the wrong type are rejected and leave the estimator unchanged.
func (e *Estimator) SetParams(params map[string]any) error {
	cfg, schedule := e.cfg, e.schedule
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := params[k]
		var err error
		switch k {
		case "optimizer":
			if s, ok := v.(string); !ok || s != "adamw" {
				err = fmt.Errorf("only adamw is supported, got %v", v)
			}
		case "learning_rate":
			cfg.Optimizer.LearningRate, err = toFloat(v)
		case "weight_decay":
			cfg.Optimizer.WeightDecay, err = toFloat(v)
		case "dropout_rate":
			cfg.DropoutRate, err = toFloat(v)
		case "batch_size":
			cfg.BatchSize, err = toInt(v)
		case "epochs":
			schedule.Epochs, err = toInt(v)
		default:
			err = fmt.Errorf("unknown parameter")
		}
		if err != nil {
			return errors.InvalidParam("invalid estimator parameter").WithDetailf("%s: %v", k, err)
		}
	}
	e.cfg, e.schedule = cfg, schedule
	return nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	}
	return 0, fmt.Errorf("want a number, got %T", v)
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x == float64(int(x)) {
			return int(x), nil
		}
	}
	return 0, fmt.Errorf("want an integer, got %v", v)
}
