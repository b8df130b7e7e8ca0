package training

import (
	"math"

	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/pkg/errors"
)

// Weights is the part of a model that callbacks may act on.
type Weights interface {
	LR() float64
	SetLR(lr float64)
	Snapshot() [][]float64
	Restore(snapshot [][]float64) error
	SaveCheckpoint(path string) error
}

// Run is the state shared between the controller and its callbacks for one
// fit.
type Run struct {
	ID     string
	Model  Weights
	Logger logging.Logger

	// StopTraining is set by a callback to end the fit after the current
	// epoch.
	StopTraining bool
}

// Callback observes a fit.  Callbacks run in registration order after each
// epoch; an error aborts the fit.
type Callback interface {
	OnTrainBegin(run *Run) error
	OnEpochEnd(run *Run, logs EpochLogs) error
	OnTrainEnd(run *Run, history *History) error
}

// BaseCallback provides no-op implementations for embedding.
type BaseCallback struct{}

func (BaseCallback) OnTrainBegin(*Run) error          { return nil }
func (BaseCallback) OnEpochEnd(*Run, EpochLogs) error { return nil }
func (BaseCallback) OnTrainEnd(*Run, *History) error  { return nil }

// ReduceLROnPlateau multiplies the learning rate by Factor after Patience
// epochs without the validation loss improving by more than MinDelta.  The
// wait counter restarts after each reduction and the rate never drops
// below MinLR.
type ReduceLROnPlateau struct {
	BaseCallback
	cfg ReduceLRConfig

	best     float64
	wait     int
	cooldown int
}

func NewReduceLROnPlateau(cfg ReduceLRConfig) *ReduceLROnPlateau {
	return &ReduceLROnPlateau{cfg: cfg}
}

func (r *ReduceLROnPlateau) OnTrainBegin(*Run) error {
	r.best, r.wait, r.cooldown = math.Inf(1), 0, 0
	return nil
}

func (r *ReduceLROnPlateau) OnEpochEnd(run *Run, logs EpochLogs) error {
	inCooldown := r.cooldown > 0
	if inCooldown {
		r.cooldown--
		r.wait = 0
	}
	if logs.ValLoss < r.best-r.cfg.MinDelta {
		r.best = logs.ValLoss
		r.wait = 0
		return nil
	}
	if inCooldown {
		return nil
	}
	r.wait++
	if r.wait < r.cfg.Patience {
		return nil
	}
	old := run.Model.LR()
	if old > r.cfg.MinLR {
		lr := math.Max(old*r.cfg.Factor, r.cfg.MinLR)
		run.Model.SetLR(lr)
		run.Logger.Info("reducing learning rate",
			logging.Int("epoch", logs.Epoch),
			logging.Float64("from", old),
			logging.Float64("to", lr))
		r.cooldown = r.cfg.Cooldown
	}
	r.wait = 0
	return nil
}

// ModelCheckpoint saves the weights whenever the validation loss is
// strictly below the best seen so far.
type ModelCheckpoint struct {
	BaseCallback
	path string

	best  float64
	saves int
}

func NewModelCheckpoint(path string) *ModelCheckpoint {
	return &ModelCheckpoint{path: path}
}

// Saves is the number of checkpoints written in the current fit.
func (c *ModelCheckpoint) Saves() int { return c.saves }

func (c *ModelCheckpoint) OnTrainBegin(*Run) error {
	c.best, c.saves = math.Inf(1), 0
	return nil
}

func (c *ModelCheckpoint) OnEpochEnd(run *Run, logs EpochLogs) error {
	if !(logs.ValLoss < c.best) {
		return nil
	}
	if err := run.Model.SaveCheckpoint(c.path); err != nil {
		return errors.Wrapf(err, errors.ErrCodeCheckpointFailed, "epoch %d", logs.Epoch)
	}
	run.Logger.Info("val_loss improved, checkpoint saved",
		logging.Int("epoch", logs.Epoch),
		logging.Float64("previous", c.best),
		logging.Float64("val_loss", logs.ValLoss),
		logging.String("path", c.path))
	c.best = logs.ValLoss
	c.saves++
	return nil
}

// EarlyStopping ends the fit after Patience epochs in which the validation
// loss did not drop more than MinDelta below the best value, optionally
// restoring the weights of the best epoch.
type EarlyStopping struct {
	BaseCallback
	cfg EarlyStoppingConfig

	best        float64
	bestEpoch   int
	bestWeights [][]float64
	wait        int
}

func NewEarlyStopping(cfg EarlyStoppingConfig) *EarlyStopping {
	return &EarlyStopping{cfg: cfg}
}

// BestEpoch is the epoch with the lowest validation loss so far.
func (e *EarlyStopping) BestEpoch() int { return e.bestEpoch }

func (e *EarlyStopping) OnTrainBegin(*Run) error {
	e.best, e.bestEpoch, e.bestWeights, e.wait = math.Inf(1), 0, nil, 0
	return nil
}

func (e *EarlyStopping) OnEpochEnd(run *Run, logs EpochLogs) error {
	if e.cfg.RestoreBest && e.bestWeights == nil {
		e.bestWeights = run.Model.Snapshot()
	}
	e.wait++
	if logs.ValLoss < e.best-e.cfg.MinDelta {
		e.best, e.bestEpoch, e.wait = logs.ValLoss, logs.Epoch, 0
		if e.cfg.RestoreBest {
			e.bestWeights = run.Model.Snapshot()
		}
		return nil
	}
	if e.wait < e.cfg.Patience || logs.Epoch <= 1 {
		return nil
	}
	run.StopTraining = true
	run.Logger.Info("early stopping",
		logging.Int("epoch", logs.Epoch),
		logging.Int("best_epoch", e.bestEpoch),
		logging.Float64("best_val_loss", e.best))
	if e.cfg.RestoreBest && e.bestWeights != nil {
		if err := run.Model.Restore(e.bestWeights); err != nil {
			return errors.Wrap(err, errors.ErrCodeTrainingFailed, "restore best weights")
		}
		run.Logger.Info("restored best weights", logging.Int("epoch", e.bestEpoch))
	}
	return nil
}

// EpochLogger writes one structured line per epoch.  Non-finite losses are
// logged at error level.
type EpochLogger struct {
	BaseCallback
}

func (EpochLogger) OnEpochEnd(run *Run, logs EpochLogs) error {
	fields := []logging.Field{
		logging.Int("epoch", logs.Epoch),
		logging.Float64("loss", logs.Loss),
		logging.Float64("rmse", logs.RMSE),
		logging.Float64("val_loss", logs.ValLoss),
		logging.Float64("val_rmse", logs.ValRMSE),
		logging.Float64("lr", logs.LR),
		logging.Duration("duration", logs.Duration),
	}
	if !isFinite(logs.Loss) || !isFinite(logs.ValLoss) {
		run.Logger.Error("non-finite loss", fields...)
		return nil
	}
	run.Logger.Info("epoch finished", fields...)
	return nil
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
