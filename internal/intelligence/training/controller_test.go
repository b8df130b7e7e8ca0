package training

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/pkg/errors"
)

type rows []int

func (r rows) Len() int { return len(r) }

func (r rows) Subset(idx []int) rows {
	out := make(rows, len(idx))
	for i, j := range idx {
		out[i] = r[j]
	}
	return out
}

func sequence(n int) rows {
	r := make(rows, n)
	for i := range r {
		r[i] = i
	}
	return r
}

// scriptedModel replays a list of validation losses.  Its single "weight"
// is the number of the last finished epoch.
type scriptedModel struct {
	valLosses []float64
	trainErr  error

	lr         float64
	epoch      int
	weight     float64
	steps      int
	batchSizes []int
	seen       map[int]int
	valSeen    []int
	saved      []float64
	restoredTo float64
	lrByEpoch  []float64
}

func newScriptedModel(valLosses ...float64) *scriptedModel {
	return &scriptedModel{valLosses: valLosses, lr: 1e-3, seen: map[int]int{}}
}

func (m *scriptedModel) LR() float64      { return m.lr }
func (m *scriptedModel) SetLR(lr float64) { m.lr = lr }
func (m *scriptedModel) Snapshot() [][]float64 {
	return [][]float64{{m.weight}}
}

func (m *scriptedModel) Restore(s [][]float64) error {
	m.weight = s[0][0]
	m.restoredTo = s[0][0]
	return nil
}

func (m *scriptedModel) SaveCheckpoint(string) error {
	m.saved = append(m.saved, m.weight)
	return nil
}

func (m *scriptedModel) TrainStep(_ context.Context, x rows, y []float64) (float64, float64, error) {
	if m.trainErr != nil {
		return 0, 0, m.trainErr
	}
	m.steps++
	m.batchSizes = append(m.batchSizes, x.Len())
	for i, v := range x {
		m.seen[v]++
		if y[i] != float64(v) {
			return 0, 0, fmt.Errorf("target misaligned for sample %d", v)
		}
	}
	return 2, 1, nil
}

func (m *scriptedModel) Evaluate(_ context.Context, x rows, _ []float64) (float64, float64, error) {
	if m.epoch == 0 {
		m.valSeen = append([]int(nil), x...)
	}
	loss := m.valLosses[len(m.valLosses)-1]
	if m.epoch < len(m.valLosses) {
		loss = m.valLosses[m.epoch]
	}
	m.epoch++
	m.weight = float64(m.epoch)
	return loss, math.Sqrt(loss), nil
}

func targets(n int) []float64 {
	y := make([]float64, n)
	for i := range y {
		y[i] = float64(i)
	}
	return y
}

// fiveThenFlat improves for five epochs then stays flat.
func fiveThenFlat() []float64 {
	return []float64{1.0, 0.9, 0.8, 0.7, 0.6, 0.6}
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.CheckpointPath = "unused.npz"
	return cfg
}

type lrRecorder struct {
	BaseCallback
	m *scriptedModel
}

func (r lrRecorder) OnEpochEnd(_ *Run, _ EpochLogs) error {
	r.m.lrByEpoch = append(r.m.lrByEpoch, r.m.lr)
	return nil
}

func TestFit_EarlyStoppingRestoresBestEpoch(t *testing.T) {
	m := newScriptedModel(fiveThenFlat()...)
	c, err := NewController[rows](testConfig(t), WithObservers(lrRecorder{m: m}))
	require.NoError(t, err)

	h, err := c.Fit(context.Background(), m, sequence(100), targets(100))
	require.NoError(t, err)

	assert.Equal(t, 25, h.StoppedEpoch)
	assert.Len(t, h.Epochs, 25)
	assert.Equal(t, 5.0, m.restoredTo)
	assert.Equal(t, 5.0, m.weight)

	best, ok := h.Best()
	require.True(t, ok)
	assert.Equal(t, 5, best.Epoch)
}

func TestFit_CheckpointOnlyOnStrictImprovement(t *testing.T) {
	m := newScriptedModel(1.0, 0.8, 0.8, 0.9, 0.5, 0.5, 0.7)
	cfg := testConfig(t)
	cfg.Epochs = 7
	c, err := NewController[rows](cfg)
	require.NoError(t, err)

	_, err = c.Fit(context.Background(), m, sequence(50), targets(50))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 5}, m.saved)
}

func TestFit_LearningRateDecay(t *testing.T) {
	m := newScriptedModel(fiveThenFlat()...)
	_, err := mustController(t, testConfig(t), WithObservers(lrRecorder{m: m})).
		Fit(context.Background(), m, sequence(100), targets(100))
	require.NoError(t, err)

	// decay fires after 10 flat epochs (15) and again after 10 more (25)
	require.Len(t, m.lrByEpoch, 25)
	assert.InDelta(t, 1e-3, m.lrByEpoch[13], 1e-15)
	assert.InDelta(t, 7e-4, m.lrByEpoch[14], 1e-15)
	assert.InDelta(t, 7e-4, m.lrByEpoch[23], 1e-15)
	assert.InDelta(t, 4.9e-4, m.lrByEpoch[24], 1e-15)
}

func mustController(t *testing.T, cfg Config, opts ...ControllerOption) *Controller[rows] {
	t.Helper()
	c, err := NewController[rows](cfg, opts...)
	require.NoError(t, err)
	return c
}

func TestFit_SplitAndBatches(t *testing.T) {
	m := newScriptedModel(1.0)
	cfg := testConfig(t)
	cfg.Epochs = 2
	_, err := mustController(t, cfg).Fit(context.Background(), m, sequence(100), targets(100))
	require.NoError(t, err)

	// trailing 20% held out
	assert.Equal(t, []int(sequence(100)[80:]), m.valSeen)
	assert.Equal(t, []int{32, 32, 16, 32, 32, 16}, m.batchSizes)
	for i := 0; i < 80; i++ {
		assert.Equal(t, 2, m.seen[i], "sample %d", i)
	}
	for i := 80; i < 100; i++ {
		assert.Zero(t, m.seen[i], "validation sample %d trained on", i)
	}
}

func TestSplit_ShuffleBeforeSplit(t *testing.T) {
	cfg := testConfig(t)
	cfg.ShuffleBeforeSplit = true
	c := mustController(t, cfg)

	train, val := c.Split(50)
	assert.Len(t, train, 40)
	assert.Len(t, val, 10)
	assert.ElementsMatch(t, sequence(50), append(append([]int(nil), train...), val...))

	train2, val2 := c.Split(50)
	assert.Equal(t, train, train2)
	assert.Equal(t, val, val2)
}

func TestFit_Errors(t *testing.T) {
	c := mustController(t, testConfig(t))

	_, err := c.Fit(context.Background(), newScriptedModel(1), sequence(3), targets(2))
	assert.True(t, errors.IsCode(err, errors.ErrCodeShapeMismatch))

	_, err = c.Fit(context.Background(), newScriptedModel(1), sequence(1), targets(1))
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	m := newScriptedModel(1)
	m.trainErr = fmt.Errorf("boom")
	_, err = c.Fit(context.Background(), m, sequence(10), targets(10))
	assert.True(t, errors.IsCode(err, errors.ErrCodeTrainingFailed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Fit(ctx, newScriptedModel(1), sequence(10), targets(10))
	assert.True(t, errors.IsCode(err, errors.ErrCodeCancelled))
}

func TestFit_NonFiniteLossLoggedAsError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := testConfig(t)
	cfg.Epochs = 2
	c := mustController(t, cfg, WithLogger(logging.NewLoggerFromCore(core)))

	_, err := c.Fit(context.Background(), newScriptedModel(math.NaN()), sequence(10), targets(10))
	require.NoError(t, err)
	assert.Equal(t, 2, logs.FilterMessage("non-finite loss").FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := []func(*Config){
		func(c *Config) { c.Epochs = 0 },
		func(c *Config) { c.BatchSize = 0 },
		func(c *Config) { c.ValidationSplit = 1 },
		func(c *Config) { c.ReduceLR.Factor = 1 },
		func(c *Config) { c.EarlyStopping.Patience = -1 },
	}
	for i, mutate := range bad {
		c := DefaultConfig()
		mutate(&c)
		assert.Error(t, c.Validate(), "case %d", i)
	}
}
