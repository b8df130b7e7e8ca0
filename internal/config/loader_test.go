package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
log:
  level: debug
  format: console
data:
  train_csv: "in/train.csv"
  test_csv: "in/test.csv"
  exclude_rows: [6341]
  invalid_smiles: exclude
model:
  dropout_rate: 0.2
  strategy: mirrored
  replicas: 2
training:
  epochs: 50
  batch_size: 16
cache:
  enabled: true
  addr: "redis:6379"
  ttl: 1h
`

func createTempConfigFile(t *testing.T, content string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	cfg, err := Load(WithConfigPath(path))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "in/train.csv", cfg.Data.TrainCSV)
	assert.Equal(t, []int{6341}, cfg.Data.ExcludeRows)
	assert.Equal(t, "exclude", cfg.Data.InvalidSMILES)
	assert.Equal(t, 0.2, cfg.Model.DropoutRate)
	assert.Equal(t, "mirrored", cfg.Model.Strategy)
	assert.Equal(t, 2, cfg.Model.Replicas)
	assert.Equal(t, 50, cfg.Training.Epochs)
	assert.Equal(t, 16, cfg.Training.BatchSize)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)

	// Untouched keys fall back to defaults.
	assert.Equal(t, DefaultL2, cfg.Model.L2)
	assert.Equal(t, DefaultWeightDecay, cfg.Model.WeightDecay)
	assert.Equal(t, DefaultCheckpointPath, cfg.Training.CheckpointPath)
}

func TestLoad_FromFile_FileNotFound(t *testing.T) {
	_, err := Load(WithConfigPath("non_existent_config.yaml"))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoad_FromFile_InvalidYAML(t *testing.T) {
	path := createTempConfigFile(t, "invalid_yaml: [")
	_, err := Load(WithConfigPath(path))
	assert.ErrorIs(t, err, ErrConfigParseError)
}

func TestLoad_FromFile_ValidationFailure(t *testing.T) {
	path := createTempConfigFile(t, "training:\n  validation_split: 1.5\n")
	_, err := Load(WithConfigPath(path))
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.Contains(t, err.Error(), "training.validation_split")
}

func TestLoad_Defaults_MatchReferenceRun(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.15, cfg.Model.DropoutRate)
	assert.Equal(t, 1e-4, cfg.Model.L2)
	assert.Equal(t, 0.001, cfg.Model.LearningRate)
	assert.Equal(t, 0.004, cfg.Model.WeightDecay)
	assert.Equal(t, 1000, cfg.Training.Epochs)
	assert.Equal(t, 32, cfg.Training.BatchSize)
	assert.Equal(t, 0.7, cfg.Training.LRFactor)
	assert.Equal(t, 10, cfg.Training.LRPatience)
	assert.Equal(t, 1e-6, cfg.Training.MinLR)
	assert.Equal(t, 1e-4, cfg.Training.LRMinDelta)
	assert.Equal(t, 20, cfg.Training.EarlyStopPatience)
	assert.False(t, cfg.Features.RawSequences)
}

func TestLoad_ExplicitZeroSurvivesDefaults(t *testing.T) {
	path := createTempConfigFile(t, `
model:
  dropout_rate: 0
  l2: 0
training:
  lr_min_delta: 0
`)
	cfg, err := Load(WithConfigPath(path))
	require.NoError(t, err)
	assert.Zero(t, cfg.Training.LRMinDelta)
	assert.Zero(t, cfg.Model.DropoutRate)
	assert.Zero(t, cfg.Model.L2)

	t.Setenv("POTENCY_TRAINING_LR_MIN_DELTA", "0")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Training.LRMinDelta)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	t.Setenv("POTENCY_TRAINING_EPOCHS", "7")
	t.Setenv("POTENCY_MODEL_STRATEGY", "gpu")

	cfg, err := Load(WithConfigPath(path))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Training.Epochs)
	assert.Equal(t, "gpu", cfg.Model.Strategy)
	assert.Equal(t, 16, cfg.Training.BatchSize)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("POTENCY_DATA_TRAIN_CSV", "/data/train.csv")
	t.Setenv("POTENCY_CACHE_TTL", "30m")
	t.Setenv("POTENCY_STORAGE_ENABLED", "true")
	t.Setenv("POTENCY_STORAGE_BUCKET", "runs")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/data/train.csv", cfg.Data.TrainCSV)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.Storage.Enabled)
	assert.Equal(t, "runs", cfg.Storage.Bucket)
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() { MustLoad(WithConfigPath("missing.yaml")) })
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch("missing.yaml", func(*Config) {}, nil)
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestWatch_InvokesOnChange(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	changed := make(chan *Config, 16)
	require.NoError(t, Watch(path, func(c *Config) { changed <- c }, nil))

	updated := "log:\n  level: warn\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	// A rewrite can surface as several events; wait for the final content.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Log.Level == "warn" {
				return
			}
		case <-deadline:
			t.Fatal("watch callback not invoked with the updated level")
		}
	}
}
