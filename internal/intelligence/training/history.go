package training

import (
	"math"
	"time"
)

// EpochLogs are the metrics of one finished epoch.  Epoch counts from 1.
type EpochLogs struct {
	Epoch    int           `json:"epoch"`
	Loss     float64       `json:"loss"`
	RMSE     float64       `json:"rmse"`
	ValLoss  float64       `json:"val_loss"`
	ValRMSE  float64       `json:"val_rmse"`
	LR       float64       `json:"lr"`
	Duration time.Duration `json:"duration"`
}

// History records every epoch of a fit.
type History struct {
	Epochs []EpochLogs `json:"epochs"`
	// StoppedEpoch is the epoch at which early stopping fired, 0 if it
	// did not.
	StoppedEpoch int `json:"stopped_epoch"`
}

// Best returns the epoch with the lowest finite validation loss.
func (h *History) Best() (EpochLogs, bool) {
	best, found := EpochLogs{ValLoss: math.Inf(1)}, false
	for _, e := range h.Epochs {
		if !math.IsNaN(e.ValLoss) && e.ValLoss < best.ValLoss {
			best, found = e, true
		}
	}
	return best, found
}

// Last returns the final epoch's logs.
func (h *History) Last() (EpochLogs, bool) {
	if len(h.Epochs) == 0 {
		return EpochLogs{}, false
	}
	return h.Epochs[len(h.Epochs)-1], true
}
