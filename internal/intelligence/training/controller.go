package training

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/pkg/errors"
)

// Dataset is a sample collection that can be subset by index.
type Dataset[D any] interface {
	Len() int
	Subset(idx []int) D
}

// Model is what the controller fits.
type Model[D any] interface {
	Weights
	// TrainStep updates the weights from one batch and returns the
	// regularised loss and the mean squared error.
	TrainStep(ctx context.Context, x D, y []float64) (loss, mse float64, err error)
	// Evaluate returns the regularised loss and the RMSE without updating.
	Evaluate(ctx context.Context, x D, y []float64) (loss, rmse float64, err error)
}

// Controller fits models with a fixed schedule and callback list.
type Controller[D Dataset[D]] struct {
	cfg       Config
	callbacks []Callback
	logger    logging.Logger
	runID     string
}

// ControllerOption configures a Controller.
type ControllerOption func(*controllerOptions)

type controllerOptions struct {
	logger    logging.Logger
	observers []Callback
	runID     string
}

// WithLogger sets the controller's logger.
func WithLogger(l logging.Logger) ControllerOption {
	return func(o *controllerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObservers appends callbacks that run after the built-in policies.
func WithObservers(cbs ...Callback) ControllerOption {
	return func(o *controllerOptions) { o.observers = append(o.observers, cbs...) }
}

// WithRunID labels the fit.  A random ID is used otherwise.
func WithRunID(id string) ControllerOption {
	return func(o *controllerOptions) { o.runID = id }
}

// NewController returns a controller whose callbacks are, in order,
// learning-rate decay, checkpointing (when CheckpointPath is set), early
// stopping, epoch logging and then any observers.
func NewController[D Dataset[D]](cfg Config, opts ...ControllerOption) (*Controller[D], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := controllerOptions{logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	cbs := []Callback{NewReduceLROnPlateau(cfg.ReduceLR)}
	if cfg.CheckpointPath != "" {
		cbs = append(cbs, NewModelCheckpoint(cfg.CheckpointPath))
	}
	cbs = append(cbs, NewEarlyStopping(cfg.EarlyStopping), EpochLogger{})
	cbs = append(cbs, o.observers...)
	return &Controller[D]{cfg: cfg, callbacks: cbs, logger: o.logger.Named("training"), runID: o.runID}, nil
}

// RunID identifies the fits made by this controller.
func (c *Controller[D]) RunID() string { return c.runID }

// Split returns the training and validation indices of n samples.  The
// trailing fraction is held out, after an optional seeded shuffle.
func (c *Controller[D]) Split(n int) (train, val []int) {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if c.cfg.ShuffleBeforeSplit {
		rand.New(rand.NewSource(c.cfg.Seed)).Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}
	at := int(float64(n) * (1 - c.cfg.ValidationSplit))
	return idx[:at], idx[at:]
}

// Fit trains m on x and y until the epoch cap or early stopping.
func (c *Controller[D]) Fit(ctx context.Context, m Model[D], x D, y []float64) (*History, error) {
	n := x.Len()
	if n != len(y) {
		return nil, errors.Newf(errors.ErrCodeShapeMismatch, "%d samples for %d targets", n, len(y))
	}
	trainIdx, valIdx := c.Split(n)
	if len(trainIdx) == 0 || len(valIdx) == 0 {
		return nil, errors.InvalidParam("not enough samples for a train/validation split").
			WithDetailf("samples=%d split=%.2f", n, c.cfg.ValidationSplit)
	}
	xVal, yVal := x.Subset(valIdx), gather(y, valIdx)

	run := &Run{ID: c.runID, Model: m, Logger: c.logger.With(logging.String("run_id", c.runID))}
	for _, cb := range c.callbacks {
		if err := cb.OnTrainBegin(run); err != nil {
			return nil, err
		}
	}
	run.Logger.Info("training started",
		logging.Int("train_samples", len(trainIdx)),
		logging.Int("val_samples", len(valIdx)),
		logging.Int("epochs", c.cfg.Epochs),
		logging.Int("batch_size", c.cfg.BatchSize))

	rng := rand.New(rand.NewSource(c.cfg.Seed + 1))
	history := &History{}
	order := append([]int(nil), trainIdx...)

	for epoch := 1; epoch <= c.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return history, errors.Wrap(err, errors.ErrCodeCancelled, "training cancelled")
		}
		start := time.Now()
		if c.cfg.Shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		loss, mse, err := c.runEpoch(ctx, m, x, y, order)
		if err != nil {
			return history, err
		}
		valLoss, valRMSE, err := m.Evaluate(ctx, xVal, yVal)
		if err != nil {
			return history, errors.Wrapf(err, errors.CodeUnknown, "validate epoch %d", epoch)
		}

		logs := EpochLogs{
			Epoch:    epoch,
			Loss:     loss,
			RMSE:     math.Sqrt(mse),
			ValLoss:  valLoss,
			ValRMSE:  valRMSE,
			LR:       m.LR(),
			Duration: time.Since(start),
		}
		history.Epochs = append(history.Epochs, logs)
		for _, cb := range c.callbacks {
			if err := cb.OnEpochEnd(run, logs); err != nil {
				return history, err
			}
		}
		if run.StopTraining {
			history.StoppedEpoch = epoch
			break
		}
	}

	for _, cb := range c.callbacks {
		if err := cb.OnTrainEnd(run, history); err != nil {
			return history, err
		}
	}
	return history, nil
}

// runEpoch steps through order in batches and returns the sample-weighted
// mean loss and squared error.
func (c *Controller[D]) runEpoch(ctx context.Context, m Model[D], x D, y []float64, order []int) (loss, mse float64, err error) {
	total := 0
	for from := 0; from < len(order); from += c.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return 0, 0, errors.Wrap(err, errors.ErrCodeCancelled, "training cancelled")
		}
		to := from + c.cfg.BatchSize
		if to > len(order) {
			to = len(order)
		}
		idx := order[from:to]
		l, e, err := m.TrainStep(ctx, x.Subset(idx), gather(y, idx))
		if err != nil {
			return 0, 0, errors.Wrap(err, errors.ErrCodeTrainingFailed, "train step")
		}
		k := float64(len(idx))
		loss += l * k
		mse += e * k
		total += len(idx)
	}
	return loss / float64(total), mse / float64(total), nil
}

func gather(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}
