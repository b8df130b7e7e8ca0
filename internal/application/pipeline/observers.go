package pipeline

import (
	"context"
	"math"

	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/potencynet/internal/intelligence/chem_descriptors"
	"github.com/turtacn/potencynet/internal/intelligence/training"
)

// schedule maps the training section onto the controller configuration.
func (p *Pipeline) schedule() training.Config {
	t := p.cfg.Training
	s := training.DefaultConfig()
	s.Epochs = t.Epochs
	s.BatchSize = t.BatchSize
	s.ValidationSplit = t.ValidationSplit
	s.ShuffleBeforeSplit = t.ShuffleBeforeSplit
	s.Seed = p.cfg.Model.Seed
	s.CheckpointPath = t.CheckpointPath
	s.ReduceLR = training.ReduceLRConfig{
		Factor:   t.LRFactor,
		Patience: t.LRPatience,
		MinDelta: t.LRMinDelta,
		MinLR:    t.MinLR,
	}
	s.EarlyStopping.Patience = t.EarlyStopPatience
	s.EarlyStopping.MinDelta = t.EarlyStopMinDelta
	return s
}

// metricsCallback mirrors the epoch logs into Prometheus.
type metricsCallback struct {
	training.BaseCallback
	metrics *prometheus.TrainingMetrics
}

func (c *metricsCallback) OnEpochEnd(run *training.Run, logs training.EpochLogs) error {
	c.metrics.RecordEpoch(run.ID, logs.Loss, logs.RMSE, logs.ValLoss, logs.ValRMSE, logs.LR, logs.Duration)
	return nil
}

func (c *metricsCallback) OnTrainEnd(run *training.Run, h *training.History) error {
	if h == nil {
		return nil
	}
	bestLoss := math.NaN()
	if best, ok := h.Best(); ok {
		bestLoss = best.ValLoss
	}
	stopped := h.StoppedEpoch
	if last, ok := h.Last(); ok && stopped == 0 {
		stopped = last.Epoch
	}
	c.metrics.RecordTrainEnd(run.ID, bestLoss, stopped)
	return nil
}

// instrumentedCache counts hits, misses and faults of a descriptor cache.
type instrumentedCache struct {
	next    chem_descriptors.VectorCache
	metrics *prometheus.TrainingMetrics
}

func newInstrumentedCache(c chem_descriptors.VectorCache, m *prometheus.TrainingMetrics) chem_descriptors.VectorCache {
	if m == nil {
		return c
	}
	return &instrumentedCache{next: c, metrics: m}
}

func (c *instrumentedCache) GetVector(ctx context.Context, smiles string) ([]float64, bool, error) {
	v, ok, err := c.next.GetVector(ctx, smiles)
	c.metrics.RecordCacheAccess(ok, err)
	return v, ok, err
}

func (c *instrumentedCache) SetVector(ctx context.Context, smiles string, v []float64) error {
	return c.next.SetVector(ctx, smiles, v)
}
