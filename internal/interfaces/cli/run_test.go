package cli

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/potencynet/internal/application/pipeline"
	"github.com/turtacn/potencynet/internal/config"
	"github.com/turtacn/potencynet/internal/infrastructure/storage/minio"
	apperrors "github.com/turtacn/potencynet/pkg/errors"
)

func TestRunOptions_Apply(t *testing.T) {
	base := func() *config.Config {
		cfg := &config.Config{}
		config.ApplyDefaults(cfg)
		cfg.Storage.Enabled = true
		cfg.Cache.Enabled = true
		return cfg
	}

	t.Run("unset flags keep the config", func(t *testing.T) {
		opts := &runOptions{}
		cmd := newRunCmd(opts)
		require.NoError(t, cmd.ParseFlags(nil))
		cfg := base()
		opts.apply(cmd, cfg)
		assert.Equal(t, config.DefaultEpochs, cfg.Training.Epochs)
		assert.Equal(t, config.DefaultStrategy, cfg.Model.Strategy)
		assert.True(t, cfg.Storage.Enabled)
		assert.True(t, cfg.Cache.Enabled)
	})

	t.Run("set flags override", func(t *testing.T) {
		opts := &runOptions{}
		cmd := newRunCmd(opts)
		require.NoError(t, cmd.ParseFlags([]string{
			"--epochs", "3",
			"--submission", "out/sub.csv",
			"--checkpoint", "out/best.npz",
			"--exclude-rows", "4,7",
			"--strategy", "MIRRORED",
			"--no-publish",
			"--no-cache",
		}))
		cfg := base()
		opts.apply(cmd, cfg)

		assert.Equal(t, 3, cfg.Training.Epochs)
		assert.Equal(t, "out/sub.csv", cfg.Data.SubmissionPath)
		assert.Equal(t, "out/best.npz", cfg.Training.CheckpointPath)
		assert.Equal(t, []int{4, 7}, cfg.Data.ExcludeRows)
		assert.Equal(t, "mirrored", cfg.Model.Strategy)
		assert.False(t, cfg.Storage.Enabled)
		assert.False(t, cfg.Cache.Enabled)
	})
}

func TestRunCmd_LoadFailure(t *testing.T) {
	_, _, err := executeCommand(t, "--config", writeConfig(t, ""), "run", "--epochs", "1")
	require.Error(t, err)

	var stageErr *pipeline.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, pipeline.StageLoad, stageErr.Stage)
	assert.Equal(t, 2, apperrors.ExitCodeForCode(apperrors.GetCode(err)))
}

func TestRunView(t *testing.T) {
	v := runView{&pipeline.Result{
		RunID:          "run-42",
		TrainRecords:   8,
		TestRecords:    3,
		DroppedRows:    []int{4},
		Epochs:         12,
		BestEpoch:      9,
		BestValLoss:    0.25,
		TrainRMSE:      0.5,
		SubmissionPath: "submission.csv",
		Manifest:       &minio.Manifest{Bucket: "potencynet-artifacts", Objects: make([]minio.PublishedObject, 3)},
		Duration:       1500 * time.Millisecond,
		Stages: map[pipeline.Stage]string{
			pipeline.StageLoad:  "10ms",
			pipeline.StageTrain: "1.2s",
		},
	}}

	text := v.String()
	assert.Contains(t, text, "run-42")
	assert.Contains(t, text, "dropped rows [4]")
	assert.Contains(t, text, "best 9")
	assert.Contains(t, text, "3 objects to potencynet-artifacts")
	assert.Contains(t, text, "1.5s")

	assert.Equal(t, [][]string{
		{"load", "10ms"},
		{"train", "1.2s"},
		{"train_rmse", "0.5000"},
		{"best_epoch", "9"},
	}, v.TableRows())
}
