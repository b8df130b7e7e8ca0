// Package training drives model fitting: the train/validation split, epoch
// and batch iteration, and the callbacks that decay the learning rate,
// checkpoint the best weights and stop early.
package training

import (
	"github.com/turtacn/potencynet/pkg/errors"
)

// ReduceLRConfig configures learning-rate decay on a validation plateau.
type ReduceLRConfig struct {
	Factor   float64 `json:"factor" yaml:"factor" mapstructure:"factor"`
	Patience int     `json:"patience" yaml:"patience" mapstructure:"patience"`
	MinDelta float64 `json:"min_delta" yaml:"min_delta" mapstructure:"min_delta"`
	MinLR    float64 `json:"min_lr" yaml:"min_lr" mapstructure:"min_lr"`
	Cooldown int     `json:"cooldown" yaml:"cooldown" mapstructure:"cooldown"`
}

// EarlyStoppingConfig configures early stopping on validation loss.
type EarlyStoppingConfig struct {
	Patience    int     `json:"patience" yaml:"patience" mapstructure:"patience"`
	MinDelta    float64 `json:"min_delta" yaml:"min_delta" mapstructure:"min_delta"`
	RestoreBest bool    `json:"restore_best" yaml:"restore_best" mapstructure:"restore_best"`
}

// Config holds the fitting schedule.
type Config struct {
	Epochs             int     `json:"epochs" yaml:"epochs" mapstructure:"epochs"`
	BatchSize          int     `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
	ValidationSplit    float64 `json:"validation_split" yaml:"validation_split" mapstructure:"validation_split"`
	Shuffle            bool    `json:"shuffle" yaml:"shuffle" mapstructure:"shuffle"`
	ShuffleBeforeSplit bool    `json:"shuffle_before_split" yaml:"shuffle_before_split" mapstructure:"shuffle_before_split"`
	Seed               int64   `json:"seed" yaml:"seed" mapstructure:"seed"`
	CheckpointPath     string  `json:"checkpoint_path" yaml:"checkpoint_path" mapstructure:"checkpoint_path"`

	ReduceLR      ReduceLRConfig      `json:"reduce_lr" yaml:"reduce_lr" mapstructure:"reduce_lr"`
	EarlyStopping EarlyStoppingConfig `json:"early_stopping" yaml:"early_stopping" mapstructure:"early_stopping"`
}

// DefaultConfig returns the reference schedule: up to 1000 epochs of batch
// 32 on the leading 80% of the data, validated on the trailing 20%.
func DefaultConfig() Config {
	return Config{
		Epochs:          1000,
		BatchSize:       32,
		ValidationSplit: 0.2,
		Shuffle:         true,
		Seed:            42,
		CheckpointPath:  "best_model.npz",
		ReduceLR: ReduceLRConfig{
			Factor:   0.7,
			Patience: 10,
			MinDelta: 1e-4,
			MinLR:    1e-6,
		},
		EarlyStopping: EarlyStoppingConfig{
			Patience:    20,
			RestoreBest: true,
		},
	}
}

// Validate checks the schedule.
func (c *Config) Validate() error {
	if c.Epochs <= 0 {
		return errors.InvalidParam("epochs must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.InvalidParam("batch_size must be positive")
	}
	if c.ValidationSplit <= 0 || c.ValidationSplit >= 1 {
		return errors.InvalidParam("validation_split must be in (0, 1)")
	}
	if c.ReduceLR.Factor <= 0 || c.ReduceLR.Factor >= 1 {
		return errors.InvalidParam("reduce_lr.factor must be in (0, 1)")
	}
	if c.ReduceLR.Patience < 0 || c.EarlyStopping.Patience < 0 {
		return errors.InvalidParam("patience must not be negative")
	}
	return nil
}
