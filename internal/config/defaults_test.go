package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultEpochs, cfg.Training.Epochs)
	assert.Equal(t, DefaultBatchSize, cfg.Training.BatchSize)
	assert.Equal(t, DefaultValidationSplit, cfg.Training.ValidationSplit)
	assert.Equal(t, DefaultLRFactor, cfg.Training.LRFactor)
	assert.Equal(t, DefaultLRPatience, cfg.Training.LRPatience)
	assert.Equal(t, DefaultEarlyStopPatience, cfg.Training.EarlyStopPatience)
	assert.Equal(t, DefaultLearningRate, cfg.Model.LearningRate)
	assert.Equal(t, DefaultStrategy, cfg.Model.Strategy)
	assert.Equal(t, DefaultInvalidSMILES, cfg.Data.InvalidSMILES)
	assert.Equal(t, DefaultCacheTTL, cfg.Cache.TTL)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Training.Epochs = 5
	cfg.Model.Strategy = "mirrored"
	ApplyDefaults(cfg)

	assert.Equal(t, 5, cfg.Training.Epochs)
	assert.Equal(t, "mirrored", cfg.Model.Strategy)
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}
