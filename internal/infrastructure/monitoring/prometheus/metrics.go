package prometheus

import (
	"math"
	"time"
)

// TrainingMetrics holds the metrics of one pipeline process.
type TrainingMetrics struct {
	// Training
	EpochsTotal        CounterVec
	EpochDuration      HistogramVec
	Loss               GaugeVec
	RMSE               GaugeVec
	LearningRate       GaugeVec
	BestValLoss        GaugeVec
	StoppedEpoch       GaugeVec
	NonFiniteLossTotal CounterVec

	// Featurization
	BatchItemsTotal CounterVec
	BatchDuration   HistogramVec
	CacheRequests   CounterVec

	// Pipeline
	StageDuration HistogramVec
	StageErrors   CounterVec
}

var (
	DefaultEpochDurationBuckets = []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300}
	DefaultStageDurationBuckets = []float64{.1, 1, 5, 10, 30, 60, 300, 900, 1800, 3600, 7200}
)

// NewTrainingMetrics registers all metrics on collector.
func NewTrainingMetrics(collector MetricsCollector) *TrainingMetrics {
	m := &TrainingMetrics{}

	m.EpochsTotal = collector.RegisterCounter("epochs_total", "Finished training epochs", "run_id")
	m.EpochDuration = collector.RegisterHistogram("epoch_duration_seconds", "Wall time per epoch", DefaultEpochDurationBuckets, "run_id")
	m.Loss = collector.RegisterGauge("loss", "Loss of the last epoch", "run_id", "split")
	m.RMSE = collector.RegisterGauge("rmse", "RMSE of the last epoch", "run_id", "split")
	m.LearningRate = collector.RegisterGauge("learning_rate", "Current optimizer learning rate", "run_id")
	m.BestValLoss = collector.RegisterGauge("best_val_loss", "Lowest validation loss so far", "run_id")
	m.StoppedEpoch = collector.RegisterGauge("stopped_epoch", "Epoch at which training ended", "run_id")
	m.NonFiniteLossTotal = collector.RegisterCounter("non_finite_loss_total", "Epochs that produced a NaN or infinite loss", "run_id")

	m.BatchItemsTotal = collector.RegisterCounter("batch_items_total", "Items processed by batch stages", "batch", "status")
	m.BatchDuration = collector.RegisterHistogram("batch_duration_seconds", "Batch stage duration", DefaultStageDurationBuckets, "batch")
	m.CacheRequests = collector.RegisterCounter("descriptor_cache_requests_total", "Descriptor cache lookups", "result")

	m.StageDuration = collector.RegisterHistogram("stage_duration_seconds", "Pipeline stage duration", DefaultStageDurationBuckets, "stage")
	m.StageErrors = collector.RegisterCounter("stage_errors_total", "Pipeline stage failures", "stage", "code")

	return m
}

// Helpers

// RecordEpoch updates the per-epoch series.
func (m *TrainingMetrics) RecordEpoch(runID string, loss, rmse, valLoss, valRMSE, lr float64, d time.Duration) {
	m.EpochsTotal.WithLabelValues(runID).Inc()
	m.EpochDuration.WithLabelValues(runID).Observe(d.Seconds())
	m.Loss.WithLabelValues(runID, "train").Set(loss)
	m.RMSE.WithLabelValues(runID, "train").Set(rmse)
	m.Loss.WithLabelValues(runID, "val").Set(valLoss)
	m.RMSE.WithLabelValues(runID, "val").Set(valRMSE)
	m.LearningRate.WithLabelValues(runID).Set(lr)
	if !isFinite(loss) || !isFinite(valLoss) {
		m.NonFiniteLossTotal.WithLabelValues(runID).Inc()
	}
}

func (m *TrainingMetrics) RecordTrainEnd(runID string, bestValLoss float64, stoppedEpoch int) {
	m.BestValLoss.WithLabelValues(runID).Set(bestValLoss)
	m.StoppedEpoch.WithLabelValues(runID).Set(float64(stoppedEpoch))
}

// ObserveBatch lets TrainingMetrics serve as a batch observer.
func (m *TrainingMetrics) ObserveBatch(name string, total, failed int, d time.Duration) {
	m.BatchItemsTotal.WithLabelValues(name, "ok").Add(float64(total - failed))
	m.BatchItemsTotal.WithLabelValues(name, "failed").Add(float64(failed))
	m.BatchDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *TrainingMetrics) RecordCacheAccess(hit bool, err error) {
	switch {
	case err != nil:
		m.CacheRequests.WithLabelValues("error").Inc()
	case hit:
		m.CacheRequests.WithLabelValues("hit").Inc()
	default:
		m.CacheRequests.WithLabelValues("miss").Inc()
	}
}

func (m *TrainingMetrics) StageTimer(stage string) *Timer {
	return NewTimer(m.StageDuration.WithLabelValues(stage))
}

func (m *TrainingMetrics) RecordStageError(stage, code string) {
	m.StageErrors.WithLabelValues(stage, code).Inc()
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
