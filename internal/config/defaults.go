package config

import (
	"time"

	"github.com/spf13/viper"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultTrainCSV       = "data/train.csv"
	DefaultTestCSV        = "data/test.csv"
	DefaultTrainVoxels    = "data/train_voxel.npy"
	DefaultTestVoxels     = "data/test_voxel.npy"
	DefaultSubmissionPath = "submission_3dcnn.csv"
	DefaultInvalidSMILES  = "abort"

	DefaultFeatureWorkers = 8

	DefaultDropoutRate  = 0.15
	DefaultL2           = 1e-4
	DefaultLearningRate = 0.001
	DefaultWeightDecay  = 0.004
	DefaultSeed         = 42
	DefaultStrategy     = "default"
	DefaultReplicas     = 1

	DefaultEpochs            = 1000
	DefaultBatchSize         = 32
	DefaultValidationSplit   = 0.2
	DefaultLRFactor          = 0.7
	DefaultLRPatience        = 10
	DefaultMinLR             = 1e-6
	DefaultLRMinDelta        = 1e-4
	DefaultEarlyStopPatience = 20
	DefaultCheckpointPath    = "best_model.npz"

	DefaultCacheAddr      = "localhost:6379"
	DefaultCacheTTL       = 7 * 24 * time.Hour
	DefaultCacheKeyPrefix = "potency:desc:v1:"

	DefaultStorageEndpoint = "localhost:9000"
	DefaultStorageBucket   = "potencynet-artifacts"

	DefaultMetricsJobName = "potencynet_training"
)

// ApplyDefaults fills every zero-value field in cfg with the default.  Fields
// already set by the caller are left unchanged so explicit configuration
// always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Data ──────────────────────────────────────────────────────────────────
	if cfg.Data.TrainCSV == "" {
		cfg.Data.TrainCSV = DefaultTrainCSV
	}
	if cfg.Data.TestCSV == "" {
		cfg.Data.TestCSV = DefaultTestCSV
	}
	if cfg.Data.TrainVoxels == "" {
		cfg.Data.TrainVoxels = DefaultTrainVoxels
	}
	if cfg.Data.TestVoxels == "" {
		cfg.Data.TestVoxels = DefaultTestVoxels
	}
	if cfg.Data.SubmissionPath == "" {
		cfg.Data.SubmissionPath = DefaultSubmissionPath
	}
	if cfg.Data.InvalidSMILES == "" {
		cfg.Data.InvalidSMILES = DefaultInvalidSMILES
	}

	// ── Features ──────────────────────────────────────────────────────────────
	if cfg.Features.Workers == 0 {
		cfg.Features.Workers = DefaultFeatureWorkers
	}

	// ── Model ─────────────────────────────────────────────────────────────────
	// DropoutRate, L2 and WeightDecay accept an explicit 0, so they are only
	// defaulted through viper (see setViperDefaults).
	if cfg.Model.LearningRate == 0 {
		cfg.Model.LearningRate = DefaultLearningRate
	}
	if cfg.Model.Strategy == "" {
		cfg.Model.Strategy = DefaultStrategy
	}
	if cfg.Model.Replicas == 0 {
		cfg.Model.Replicas = DefaultReplicas
	}

	// ── Training ──────────────────────────────────────────────────────────────
	// LRMinDelta accepts an explicit 0 and is defaulted through viper only.
	if cfg.Training.Epochs == 0 {
		cfg.Training.Epochs = DefaultEpochs
	}
	if cfg.Training.BatchSize == 0 {
		cfg.Training.BatchSize = DefaultBatchSize
	}
	if cfg.Training.ValidationSplit == 0 {
		cfg.Training.ValidationSplit = DefaultValidationSplit
	}
	if cfg.Training.LRFactor == 0 {
		cfg.Training.LRFactor = DefaultLRFactor
	}
	if cfg.Training.LRPatience == 0 {
		cfg.Training.LRPatience = DefaultLRPatience
	}
	if cfg.Training.MinLR == 0 {
		cfg.Training.MinLR = DefaultMinLR
	}
	if cfg.Training.EarlyStopPatience == 0 {
		cfg.Training.EarlyStopPatience = DefaultEarlyStopPatience
	}
	if cfg.Training.CheckpointPath == "" {
		cfg.Training.CheckpointPath = DefaultCheckpointPath
	}

	// ── Cache ─────────────────────────────────────────────────────────────────
	if cfg.Cache.Addr == "" {
		cfg.Cache.Addr = DefaultCacheAddr
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = DefaultCacheKeyPrefix
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	if cfg.Storage.Endpoint == "" {
		cfg.Storage.Endpoint = DefaultStorageEndpoint
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = DefaultStorageBucket
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.JobName == "" {
		cfg.Metrics.JobName = DefaultMetricsJobName
	}
}

// setViperDefaults registers every key with viper.  Unmarshal only consults
// the environment for keys viper already knows, so this is what makes
// POTENCY_* overrides work without a config file.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.output_paths", []string{"stdout"})

	v.SetDefault("data.train_csv", DefaultTrainCSV)
	v.SetDefault("data.test_csv", DefaultTestCSV)
	v.SetDefault("data.train_voxels", DefaultTrainVoxels)
	v.SetDefault("data.test_voxels", DefaultTestVoxels)
	v.SetDefault("data.submission_path", DefaultSubmissionPath)
	v.SetDefault("data.exclude_rows", []int{})
	v.SetDefault("data.invalid_smiles", DefaultInvalidSMILES)

	v.SetDefault("features.workers", DefaultFeatureWorkers)
	v.SetDefault("features.sequence_length", 0)
	v.SetDefault("features.raw_sequences", false)

	v.SetDefault("model.dropout_rate", DefaultDropoutRate)
	v.SetDefault("model.l2", DefaultL2)
	v.SetDefault("model.learning_rate", DefaultLearningRate)
	v.SetDefault("model.weight_decay", DefaultWeightDecay)
	v.SetDefault("model.seed", DefaultSeed)
	v.SetDefault("model.strategy", DefaultStrategy)
	v.SetDefault("model.replicas", DefaultReplicas)

	v.SetDefault("training.epochs", DefaultEpochs)
	v.SetDefault("training.batch_size", DefaultBatchSize)
	v.SetDefault("training.validation_split", DefaultValidationSplit)
	v.SetDefault("training.shuffle_before_split", false)
	v.SetDefault("training.lr_factor", DefaultLRFactor)
	v.SetDefault("training.lr_patience", DefaultLRPatience)
	v.SetDefault("training.min_lr", DefaultMinLR)
	v.SetDefault("training.lr_min_delta", DefaultLRMinDelta)
	v.SetDefault("training.early_stop_patience", DefaultEarlyStopPatience)
	v.SetDefault("training.early_stop_min_delta", 0.0)
	v.SetDefault("training.checkpoint_path", DefaultCheckpointPath)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", DefaultCacheAddr)
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("cache.key_prefix", DefaultCacheKeyPrefix)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", DefaultStorageEndpoint)
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.bucket", DefaultStorageBucket)
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.retention_days", 0)
	v.SetDefault("storage.use_ssl", false)

	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job_name", DefaultMetricsJobName)
}
