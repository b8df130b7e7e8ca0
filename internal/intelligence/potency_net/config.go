// Package potency_net implements the multi-branch pIC50 regression model:
// a volumetric convolution branch, a descriptor branch and a sequence branch
// fused into a shared dense head.
package potency_net

import (
	"github.com/turtacn/potencynet/internal/domain/molecule"
	"github.com/turtacn/potencynet/pkg/errors"
)

// AdamWConfig holds the hyper-parameters of Adam with decoupled weight
// decay.
type AdamWConfig struct {
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate" mapstructure:"learning_rate"`
	Beta1        float64 `json:"beta_1" yaml:"beta_1" mapstructure:"beta_1"`
	Beta2        float64 `json:"beta_2" yaml:"beta_2" mapstructure:"beta_2"`
	Epsilon      float64 `json:"epsilon" yaml:"epsilon" mapstructure:"epsilon"`
	WeightDecay  float64 `json:"weight_decay" yaml:"weight_decay" mapstructure:"weight_decay"`
}

// DefaultAdamWConfig returns lr 1e-3, betas 0.9/0.999, eps 1e-7 and weight
// decay 0.004.
func DefaultAdamWConfig() AdamWConfig {
	return AdamWConfig{LearningRate: 1e-3, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-7, WeightDecay: 0.004}
}

// Config describes the network shape and its optimizer.
type Config struct {
	VoxelShape      [3]int  `json:"voxel_shape" yaml:"voxel_shape" mapstructure:"voxel_shape"`
	DescriptorDim   int     `json:"descriptor_dim" yaml:"descriptor_dim" mapstructure:"descriptor_dim"`
	SequenceLength  int     `json:"sequence_length" yaml:"sequence_length" mapstructure:"sequence_length"`
	VocabularySize  int     `json:"vocabulary_size" yaml:"vocabulary_size" mapstructure:"vocabulary_size"`
	EmbeddingDim    int     `json:"embedding_dim" yaml:"embedding_dim" mapstructure:"embedding_dim"`
	LSTMUnits       int     `json:"lstm_units" yaml:"lstm_units" mapstructure:"lstm_units"`
	ConvFilters     []int   `json:"conv_filters" yaml:"conv_filters" mapstructure:"conv_filters"`
	KernelSize      int     `json:"kernel_size" yaml:"kernel_size" mapstructure:"kernel_size"`
	PoolSize        int     `json:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`
	DescriptorUnits int     `json:"descriptor_units" yaml:"descriptor_units" mapstructure:"descriptor_units"`
	HeadUnits       []int   `json:"head_units" yaml:"head_units" mapstructure:"head_units"`
	DropoutRate     float64 `json:"dropout_rate" yaml:"dropout_rate" mapstructure:"dropout_rate"`
	L2              float64 `json:"l2" yaml:"l2" mapstructure:"l2"`
	BatchSize       int     `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
	Seed            int64   `json:"seed" yaml:"seed" mapstructure:"seed"`

	Optimizer AdamWConfig `json:"optimizer" yaml:"optimizer" mapstructure:"optimizer"`
}

// DefaultConfig returns the reference architecture.  VoxelShape,
// DescriptorDim and SequenceLength come from the data and are left zero.
func DefaultConfig() Config {
	return Config{
		VocabularySize:  molecule.VocabularySize,
		EmbeddingDim:    64,
		LSTMUnits:       64,
		ConvFilters:     []int{32, 64, 128},
		KernelSize:      3,
		PoolSize:        2,
		DescriptorUnits: 64,
		HeadUnits:       []int{128, 64},
		DropoutRate:     0.15,
		L2:              1e-4,
		BatchSize:       32,
		Seed:            42,
		Optimizer:       DefaultAdamWConfig(),
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	for i, d := range c.VoxelShape {
		if d <= 0 {
			return errors.InvalidParam("voxel_shape must be positive").WithDetailf("axis %d is %d", i, d)
		}
	}
	if c.DescriptorDim <= 0 {
		return errors.InvalidParam("descriptor_dim must be positive")
	}
	if c.SequenceLength <= 0 {
		return errors.InvalidParam("sequence_length must be positive")
	}
	if c.VocabularySize <= 1 {
		return errors.InvalidParam("vocabulary_size must exceed 1")
	}
	if c.EmbeddingDim <= 0 || c.LSTMUnits <= 0 || c.DescriptorUnits <= 0 {
		return errors.InvalidParam("embedding_dim, lstm_units and descriptor_units must be positive")
	}
	if len(c.ConvFilters) == 0 {
		return errors.InvalidParam("conv_filters is required")
	}
	if c.KernelSize <= 0 || c.KernelSize%2 == 0 {
		return errors.InvalidParam("kernel_size must be a positive odd number")
	}
	if c.PoolSize <= 0 {
		return errors.InvalidParam("pool_size must be positive")
	}
	// every pooling step before the last block halves the grid
	for i, d := range c.VoxelShape {
		for range c.ConvFilters[1:] {
			d /= c.PoolSize
		}
		if d == 0 {
			return errors.InvalidParam("voxel grid too small for the pooling depth").WithDetailf("axis %d", i)
		}
	}
	if c.DropoutRate < 0 || c.DropoutRate >= 1 {
		return errors.InvalidParam("dropout_rate must be in [0, 1)")
	}
	if c.L2 < 0 {
		return errors.InvalidParam("l2 must not be negative")
	}
	if c.BatchSize <= 0 {
		return errors.InvalidParam("batch_size must be positive")
	}
	if c.Optimizer.LearningRate <= 0 {
		return errors.InvalidParam("optimizer.learning_rate must be positive")
	}
	return nil
}
