package potency_net

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/potencynet/internal/intelligence/nn"
	"github.com/turtacn/potencynet/internal/intelligence/training"
	"github.com/turtacn/potencynet/pkg/errors"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.VoxelShape = [3]int{4, 4, 4}
	cfg.DescriptorDim = 3
	cfg.SequenceLength = 5
	cfg.EmbeddingDim = 4
	cfg.LSTMUnits = 3
	cfg.ConvFilters = []int{2, 3, 4}
	cfg.DescriptorUnits = 4
	cfg.HeadUnits = []int{6, 4}
	cfg.BatchSize = 4
	cfg.DropoutRate = 0
	return cfg
}

func syntheticFeatures(n int, seed int64) (Features, []float64) {
	rng := rand.New(rand.NewSource(seed))
	vox := nn.NewTensor(n, 4, 4, 4, 1)
	for i := range vox.Data {
		vox.Data[i] = rng.Float64()
	}
	desc := make([][]float64, n)
	seq := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		desc[i] = []float64{rng.Float64(), rng.Float64(), rng.Float64()}
		seq[i] = make([]float64, 5)
		for j := range seq[i] {
			seq[i][j] = float64(rng.Intn(37))
		}
		y[i] = 5 + 2*desc[i][0] - desc[i][1]
	}
	f, err := NewFeatures(vox, desc, seq)
	if err != nil {
		panic(err)
	}
	return f, y
}

func TestConfig_Validate(t *testing.T) {
	cfg := smallConfig()
	require.NoError(t, cfg.Validate())

	tests := map[string]func(*Config){
		"missing voxel shape": func(c *Config) { c.VoxelShape = [3]int{} },
		"even kernel":         func(c *Config) { c.KernelSize = 2 },
		"grid too small":      func(c *Config) { c.VoxelShape = [3]int{4, 4, 3} },
		"dropout":             func(c *Config) { c.DropoutRate = 1 },
		"no filters":          func(c *Config) { c.ConvFilters = nil },
		"learning rate":       func(c *Config) { c.Optimizer.LearningRate = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := smallConfig()
			mutate(&c)
			assert.True(t, errors.IsCode(c.Validate(), errors.CodeInvalidParam))
		})
	}
}

func TestDefaultConfig_Architecture(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []int{32, 64, 128}, cfg.ConvFilters)
	assert.Equal(t, []int{128, 64}, cfg.HeadUnits)
	assert.Equal(t, 37, cfg.VocabularySize)
	assert.Equal(t, 0.15, cfg.DropoutRate)
	assert.Equal(t, 1e-4, cfg.L2)
	assert.Equal(t, 0.004, cfg.Optimizer.WeightDecay)
}

func TestFeatures_Validate(t *testing.T) {
	f, _ := syntheticFeatures(6, 1)
	require.NoError(t, f.Validate())
	assert.Equal(t, 6, f.Len())

	sub := f.Subset([]int{5, 0})
	assert.Equal(t, 2, sub.Len())
	assert.Equal(t, f.Descriptors.Data[15:18], sub.Descriptors.Data[0:3])

	bad := f
	bad.Sequences = f.Sequences.Slice(0, 5)
	assert.True(t, errors.IsCode(bad.Validate(), errors.ErrCodeShapeMismatch))

	_, err := NewFeatures(nn.NewTensor(2, 4, 4, 4, 1), [][]float64{{1}, {1, 2}}, [][]float64{{1}, {2}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeShapeMismatch))
}

func TestModel_StateMachine(t *testing.T) {
	ctx := context.Background()
	f, y := syntheticFeatures(4, 2)
	m, err := NewModel(smallConfig())
	require.NoError(t, err)
	assert.Equal(t, StateUncompiled, m.State())

	_, _, err = m.TrainStep(ctx, f, y)
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelNotCompiled))
	_, err = m.Predict(ctx, f)
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelNotTrained))
	assert.True(t, errors.IsCode(m.MarkTrained(), errors.ErrCodeModelNotCompiled))

	require.NoError(t, m.Compile(DefaultAdamWConfig()))
	assert.Equal(t, StateCompiled, m.State())
	_, err = m.Predict(ctx, f)
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelNotTrained))
	_, _, err = m.Evaluate(ctx, f, y)
	assert.NoError(t, err)

	require.NoError(t, m.MarkTrained())
	assert.Equal(t, "TRAINED", m.State().String())
	pred, err := m.Predict(ctx, f)
	require.NoError(t, err)
	assert.Len(t, pred, 4)
}

func TestModel_LoadCheckpointMarksTrained(t *testing.T) {
	ctx := context.Background()
	f, y := syntheticFeatures(8, 3)
	cfg := smallConfig()

	src, err := NewModel(cfg)
	require.NoError(t, err)
	require.NoError(t, src.Compile(cfg.Optimizer))
	_, _, err = src.TrainStep(ctx, f, y)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "best.npz")
	require.NoError(t, src.SaveCheckpoint(path))
	require.NoError(t, src.MarkTrained())

	cfg.Seed = 99
	dst, err := NewModel(cfg)
	require.NoError(t, err)
	assert.True(t, errors.IsCode(dst.LoadCheckpoint(path), errors.ErrCodeModelNotCompiled))
	require.NoError(t, dst.Compile(cfg.Optimizer))
	require.NoError(t, dst.LoadCheckpoint(path))
	assert.Equal(t, StateTrained, dst.State())

	want, err := src.Predict(ctx, f)
	require.NoError(t, err)
	got, err := dst.Predict(ctx, f)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-6)
}

func TestModel_PredictionIndependentOfBatchSize(t *testing.T) {
	ctx := context.Background()
	f, _ := syntheticFeatures(10, 4)

	predict := func(bs int) []float64 {
		cfg := smallConfig()
		cfg.BatchSize = bs
		m, err := NewModel(cfg)
		require.NoError(t, err)
		require.NoError(t, m.Compile(cfg.Optimizer))
		require.NoError(t, m.MarkTrained())
		p, err := m.Predict(ctx, f)
		require.NoError(t, err)
		return p
	}
	assert.InDeltaSlice(t, predict(10), predict(3), 1e-5)
}

func TestModel_TrainStepReducesLoss(t *testing.T) {
	ctx := context.Background()
	f, y := syntheticFeatures(16, 5)
	cfg := smallConfig()
	cfg.Optimizer.LearningRate = 0.05
	m, err := NewModel(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Compile(cfg.Optimizer))

	first, _, err := m.Evaluate(ctx, f, y)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		_, _, err := m.TrainStep(ctx, f, y)
		require.NoError(t, err)
	}
	last, _, err := m.Evaluate(ctx, f, y)
	require.NoError(t, err)
	assert.Less(t, last, first/10)
}

func TestModel_LossIncludesPenalty(t *testing.T) {
	ctx := context.Background()
	f, y := syntheticFeatures(4, 6)
	cfg := smallConfig()
	cfg.L2 = 0.5
	m, err := NewModel(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Compile(cfg.Optimizer))

	loss, rmse, err := m.Evaluate(ctx, f, y)
	require.NoError(t, err)
	assert.Greater(t, loss, rmse*rmse)

	cfg.L2 = 0
	plain, err := NewModel(cfg)
	require.NoError(t, err)
	require.NoError(t, plain.Compile(cfg.Optimizer))
	loss, rmse, err = plain.Evaluate(ctx, f, y)
	require.NoError(t, err)
	assert.InDelta(t, rmse*rmse, loss, 1e-5)
}

func TestModel_MirroredMatchesDefault(t *testing.T) {
	ctx := context.Background()
	f, y := syntheticFeatures(10, 7)
	cfg := smallConfig()

	single, err := NewModel(cfg)
	require.NoError(t, err)
	require.NoError(t, single.Compile(cfg.Optimizer))
	mirrored, err := NewModel(cfg, WithStrategy(nn.NewMirroredStrategy(3)))
	require.NoError(t, err)
	require.NoError(t, mirrored.Compile(cfg.Optimizer))

	for i := 0; i < 3; i++ {
		l1, _, err := single.TrainStep(ctx, f, y)
		require.NoError(t, err)
		l2, _, err := mirrored.TrainStep(ctx, f, y)
		require.NoError(t, err)
		assert.InDelta(t, l1, l2, 1e-4)
	}
	for i, s := range single.Snapshot() {
		assert.InDeltaSlice(t, s, mirrored.Snapshot()[i], 1e-4)
	}

	want, err := single.predictBatches(ctx, f)
	require.NoError(t, err)
	got, err := mirrored.predictBatches(ctx, f)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-4)
}

func TestModel_SnapshotRestore(t *testing.T) {
	ctx := context.Background()
	f, y := syntheticFeatures(8, 8)
	cfg := smallConfig()
	cfg.Optimizer.LearningRate = 0.05
	m, err := NewModel(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Compile(cfg.Optimizer))

	snap := m.Snapshot()
	before, _, err := m.Evaluate(ctx, f, y)
	require.NoError(t, err)
	_, _, err = m.TrainStep(ctx, f, y)
	require.NoError(t, err)
	assert.NotEqual(t, snap, m.Snapshot())

	require.NoError(t, m.Restore(snap))
	assert.Equal(t, snap, m.Snapshot())
	after, _, err := m.Evaluate(ctx, f, y)
	require.NoError(t, err)
	assert.InDelta(t, before, after, 1e-6)

	assert.True(t, errors.IsCode(m.Restore(snap[:1]), errors.ErrCodeShapeMismatch))
	bad := append([][]float64(nil), snap...)
	bad[0] = bad[0][1:]
	assert.True(t, errors.IsCode(m.Restore(bad), errors.ErrCodeShapeMismatch))
}

// TestModel_WeightsFollowArchitecture checks that every layer of the three
// branches and the head owns variables under its own scope.
func TestModel_WeightsFollowArchitecture(t *testing.T) {
	m, err := NewModel(smallConfig())
	require.NoError(t, err)

	scopes := map[string]int{}
	total := 0
	for _, w := range m.Weights() {
		scopes[strings.SplitN(w.Name, "/", 2)[0]]++
		total += w.Value.Size()
	}
	for _, s := range []string{
		"conv3d_1", "conv3d_2", "conv3d_3", "descriptor_dense",
		"embedding", "lstm", "dense_1", "dense_2", "regression_output",
	} {
		assert.Positive(t, scopes[s], s)
	}
	assert.Equal(t, total, m.ParamCount())

	for _, w := range m.Weights() {
		if strings.HasPrefix(w.Name, "embedding/") {
			assert.Equal(t, []int{37, 4}, w.Value.Shape)
		}
	}
}

func TestModel_SetLR(t *testing.T) {
	cfg := smallConfig()
	m, err := NewModel(cfg)
	require.NoError(t, err)
	m.SetLR(0.5)
	assert.Equal(t, cfg.Optimizer.LearningRate, m.LR(), "uncompiled models ignore SetLR")

	require.NoError(t, m.Compile(cfg.Optimizer))
	m.SetLR(1e-4)
	assert.Equal(t, 1e-4, m.LR())
}

func TestEstimator_TrainPredictScore(t *testing.T) {
	ctx := context.Background()
	f, y := syntheticFeatures(20, 9)
	cfg := DefaultConfig()
	cfg.ConvFilters = []int{2, 2, 2}
	cfg.EmbeddingDim, cfg.LSTMUnits, cfg.DescriptorUnits = 4, 3, 4
	cfg.HeadUnits = []int{4}
	cfg.BatchSize = 4

	schedule := training.DefaultConfig()
	schedule.Epochs = 3
	schedule.CheckpointPath = filepath.Join(t.TempDir(), "best.npz")

	est := NewEstimator(cfg, schedule)
	m, err := est.Train(ctx, f, y)
	require.NoError(t, err)
	assert.Equal(t, StateTrained, m.State())
	assert.Equal(t, [3]int{4, 4, 4}, m.Config().VoxelShape)
	assert.Len(t, est.History().Epochs, 3)
	assert.FileExists(t, schedule.CheckpointPath)

	pred, err := est.Predict(ctx, m, f)
	require.NoError(t, err)
	assert.Len(t, pred, 20)

	score, err := est.Score(ctx, m, f, y)
	require.NoError(t, err)
	assert.LessOrEqual(t, score, 0.0)
	rmse := nn.RMSE(pred, y)
	assert.InDelta(t, -rmse*rmse, score, 1e-9)

	_, err = est.Predict(ctx, nil, f)
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelNotTrained))
}

func TestEstimator_Params(t *testing.T) {
	est := NewEstimator(DefaultConfig(), training.DefaultConfig())
	p := est.Params()
	assert.Equal(t, 0.001, p["learning_rate"])
	assert.Equal(t, "adamw", p["optimizer"])

	require.NoError(t, est.SetParams(map[string]any{"learning_rate": 0.01, "epochs": 5, "dropout_rate": 0.2}))
	p = est.Params()
	assert.Equal(t, 0.01, p["learning_rate"])
	assert.Equal(t, 5, p["epochs"])
	assert.Equal(t, 0.2, p["dropout_rate"])

	err := est.SetParams(map[string]any{"learning_rate": 0.5, "momentum": 0.9})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
	assert.Equal(t, 0.01, est.Params()["learning_rate"], "failed update leaves params unchanged")

	assert.Error(t, est.SetParams(map[string]any{"epochs": 2.5}))
	assert.Error(t, est.SetParams(map[string]any{"optimizer": "sgd"}))
}
