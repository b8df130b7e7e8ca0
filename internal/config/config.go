// Package config defines all configuration structures for PotencyNet.  No I/O
// or parsing logic lives in this file, only plain data types and validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// DataConfig locates the input tables, the voxel arrays and the submission.
type DataConfig struct {
	TrainCSV       string `mapstructure:"train_csv"`
	TestCSV        string `mapstructure:"test_csv"`
	TrainVoxels    string `mapstructure:"train_voxels"`
	TestVoxels     string `mapstructure:"test_voxels"`
	SubmissionPath string `mapstructure:"submission_path"`

	// ExcludeRows lists zero-based training row indices dropped before any
	// feature is assembled.
	ExcludeRows []int `mapstructure:"exclude_rows"`

	// InvalidSMILES decides what happens to an unparseable training record:
	// "exclude" drops it with a warning, "abort" fails the run.
	InvalidSMILES string `mapstructure:"invalid_smiles"`
}

// FeaturesConfig tunes feature extraction.
type FeaturesConfig struct {
	// Workers bounds the number of concurrent descriptor computations.
	Workers int `mapstructure:"workers"`

	// SequenceLength overrides the padded sequence length.  Zero means the
	// longest structure string across train and test.
	SequenceLength int `mapstructure:"sequence_length"`

	// RawSequences feeds integer codes to the embedding without min-max
	// scaling them first.
	RawSequences bool `mapstructure:"raw_sequences"`
}

// ModelConfig holds network hyper-parameters and the execution strategy.
type ModelConfig struct {
	DropoutRate  float64 `mapstructure:"dropout_rate"`
	L2           float64 `mapstructure:"l2"`
	LearningRate float64 `mapstructure:"learning_rate"`
	WeightDecay  float64 `mapstructure:"weight_decay"`
	Seed         int64   `mapstructure:"seed"`
	Strategy     string  `mapstructure:"strategy"` // "default" | "mirrored" | "tpu" | "gpu"
	Replicas     int     `mapstructure:"replicas"`
}

// TrainingConfig holds the training loop and callback parameters.
type TrainingConfig struct {
	Epochs             int     `mapstructure:"epochs"`
	BatchSize          int     `mapstructure:"batch_size"`
	ValidationSplit    float64 `mapstructure:"validation_split"`
	ShuffleBeforeSplit bool    `mapstructure:"shuffle_before_split"`

	LRFactor   float64 `mapstructure:"lr_factor"`
	LRPatience int     `mapstructure:"lr_patience"`
	MinLR      float64 `mapstructure:"min_lr"`
	LRMinDelta float64 `mapstructure:"lr_min_delta"`

	EarlyStopPatience int     `mapstructure:"early_stop_patience"`
	EarlyStopMinDelta float64 `mapstructure:"early_stop_min_delta"`

	CheckpointPath string `mapstructure:"checkpoint_path"`
}

// CacheConfig holds Redis parameters for the descriptor cache.
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// StorageConfig holds MinIO / S3-compatible parameters for artifact
// publishing.
type StorageConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Prefix        string `mapstructure:"prefix"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// MetricsConfig controls Prometheus export for the batch job.
type MetricsConfig struct {
	TextfilePath   string `mapstructure:"textfile_path"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Data     DataConfig     `mapstructure:"data"`
	Features FeaturesConfig `mapstructure:"features"`
	Model    ModelConfig    `mapstructure:"model"`
	Training TrainingConfig `mapstructure:"training"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered.
func (c *Config) Validate() error {
	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	// Data
	if c.Data.TrainCSV == "" {
		return fmt.Errorf("config: data.train_csv is required")
	}
	if c.Data.TestCSV == "" {
		return fmt.Errorf("config: data.test_csv is required")
	}
	if c.Data.SubmissionPath == "" {
		return fmt.Errorf("config: data.submission_path is required")
	}
	for _, r := range c.Data.ExcludeRows {
		if r < 0 {
			return fmt.Errorf("config: data.exclude_rows contains negative index %d", r)
		}
	}
	switch c.Data.InvalidSMILES {
	case "exclude", "abort":
	default:
		return fmt.Errorf("config: data.invalid_smiles %q is invalid; expected exclude|abort", c.Data.InvalidSMILES)
	}

	// Features
	if c.Features.Workers < 1 {
		return fmt.Errorf("config: features.workers must be ≥ 1, got %d", c.Features.Workers)
	}
	if c.Features.SequenceLength < 0 {
		return fmt.Errorf("config: features.sequence_length must be ≥ 0, got %d", c.Features.SequenceLength)
	}

	// Model
	if c.Model.DropoutRate < 0 || c.Model.DropoutRate >= 1 {
		return fmt.Errorf("config: model.dropout_rate %g is out of range [0, 1)", c.Model.DropoutRate)
	}
	if c.Model.LearningRate <= 0 {
		return fmt.Errorf("config: model.learning_rate must be > 0, got %g", c.Model.LearningRate)
	}
	if c.Model.L2 < 0 || c.Model.WeightDecay < 0 {
		return fmt.Errorf("config: model.l2 and model.weight_decay must be ≥ 0")
	}
	switch c.Model.Strategy {
	case "default", "mirrored", "tpu", "gpu":
	default:
		return fmt.Errorf("config: model.strategy %q is invalid; expected default|mirrored|tpu|gpu", c.Model.Strategy)
	}
	if c.Model.Replicas < 1 {
		return fmt.Errorf("config: model.replicas must be ≥ 1, got %d", c.Model.Replicas)
	}

	// Training
	if c.Training.Epochs < 1 {
		return fmt.Errorf("config: training.epochs must be ≥ 1, got %d", c.Training.Epochs)
	}
	if c.Training.BatchSize < 1 {
		return fmt.Errorf("config: training.batch_size must be ≥ 1, got %d", c.Training.BatchSize)
	}
	if c.Training.ValidationSplit <= 0 || c.Training.ValidationSplit >= 1 {
		return fmt.Errorf("config: training.validation_split %g is out of range (0, 1)", c.Training.ValidationSplit)
	}
	if c.Training.LRFactor <= 0 || c.Training.LRFactor >= 1 {
		return fmt.Errorf("config: training.lr_factor %g is out of range (0, 1)", c.Training.LRFactor)
	}
	if c.Training.LRPatience < 1 || c.Training.EarlyStopPatience < 1 {
		return fmt.Errorf("config: training patience values must be ≥ 1")
	}
	if c.Training.CheckpointPath == "" {
		return fmt.Errorf("config: training.checkpoint_path is required")
	}

	// Cache
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("config: cache.addr is required when the cache is enabled")
	}
	if c.Cache.DB < 0 {
		return fmt.Errorf("config: cache.db must be ≥ 0, got %d", c.Cache.DB)
	}

	// Storage
	if c.Storage.Enabled {
		if c.Storage.Endpoint == "" {
			return fmt.Errorf("config: storage.endpoint is required when publishing is enabled")
		}
		if c.Storage.Bucket == "" {
			return fmt.Errorf("config: storage.bucket is required when publishing is enabled")
		}
		if c.Storage.RetentionDays < 0 {
			return fmt.Errorf("config: storage.retention_days must be ≥ 0, got %d", c.Storage.RetentionDays)
		}
	}

	return nil
}
