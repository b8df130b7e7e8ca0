package potency_net

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/graph"
	mlctx "github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/internal/intelligence/nn"
	"github.com/turtacn/potencynet/pkg/errors"
)

// State is the lifecycle stage of a Model.
type State int

const (
	StateUncompiled State = iota
	StateCompiled
	StateTrained
)

func (s State) String() string {
	switch s {
	case StateUncompiled:
		return "UNCOMPILED"
	case StateCompiled:
		return "COMPILED"
	case StateTrained:
		return "TRAINED"
	default:
		return "UNKNOWN"
	}
}

// Model is the multi-branch regression network together with its optimizer
// and execution strategy.  The weights live in a graph context on the
// backend chosen by the strategy.  Training methods must not be called
// concurrently.
type Model struct {
	cfg      Config
	strategy nn.Strategy
	logger   logging.Logger

	backend  backends.Backend
	vars     *mlctx.Context
	predict  *mlctx.Exec
	evaluate *mlctx.Exec

	mu        sync.RWMutex
	state     State
	optimizer optimizers.Interface
	train     *mlctx.Exec
	lr        float64
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithStrategy sets the execution strategy.  The default runs a single
// replica on the pure Go backend.
func WithStrategy(s nn.Strategy) ModelOption {
	return func(m *Model) {
		if s != nil {
			m.strategy = s
		}
	}
}

// WithModelLogger sets the model's logger.
func WithModelLogger(l logging.Logger) ModelOption {
	return func(m *Model) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewModel builds an uncompiled model and initialises its weights from
// cfg.Seed.
func NewModel(cfg Config, opts ...ModelOption) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Model{
		cfg:      cfg,
		strategy: nn.NewDefaultStrategy(),
		logger:   logging.NewNopLogger(),
		state:    StateUncompiled,
		lr:       cfg.Optimizer.LearningRate,
	}
	for _, o := range opts {
		o(m)
	}
	backend, err := nn.NewBackend(m.strategy.Backend())
	if err != nil {
		return nil, err
	}
	m.backend = backend
	m.vars = newGraphContext(cfg)
	m.predict = mlctx.NewExec(backend, m.vars, m.predictGraph)
	m.evaluate = mlctx.NewExec(backend, m.vars, m.evaluateGraph)

	// one pass over an empty sample creates and initialises every variable
	if _, err := m.call(m.predict, m.graphInputs(emptyFeatures(cfg))...); err != nil {
		return nil, err
	}
	m.logger.Info("model built",
		logging.Int("params", m.ParamCount()),
		logging.String("strategy", m.strategy.Name()),
		logging.String("backend", backend.Name()),
		logging.Int("replicas", m.strategy.Replicas()))
	return m, nil
}

func emptyFeatures(cfg Config) Features {
	d, h, w := cfg.VoxelShape[0], cfg.VoxelShape[1], cfg.VoxelShape[2]
	return Features{
		Voxels:      nn.NewTensor(1, d, h, w, 1),
		Descriptors: nn.NewTensor(1, cfg.DescriptorDim),
		Sequences:   nn.NewTensor(1, cfg.SequenceLength),
	}
}

func (m *Model) predictGraph(ctx *mlctx.Context, in []*graph.Node) []*graph.Node {
	return []*graph.Node{forward(ctx, m.cfg, in[0], in[1], in[2])}
}

func (m *Model) evaluateGraph(ctx *mlctx.Context, in []*graph.Node) []*graph.Node {
	pred := forward(ctx, m.cfg, in[0], in[1], in[2])
	loss, mse := objective(ctx, pred, in[3], 1)
	return []*graph.Node{loss, mse}
}

// trainGraph measures the loss with dropout active and then applies one
// optimizer update.  The batch is split over the strategy's replicas.
func (m *Model) trainGraph(ctx *mlctx.Context, in []*graph.Node) []*graph.Node {
	g := in[0].Graph()
	ctx.SetTraining(g, true)
	shards := nn.Shards(in[0].Shape().Dimensions[0], m.strategy.Replicas())
	pred := shardedForward(ctx, m.cfg, shards, in[0], in[1], in[2])
	loss, mse := objective(ctx, pred, in[3], len(shards))
	m.optimizer.UpdateGraph(ctx, g, loss)
	return []*graph.Node{loss, mse}
}

// graphInputs converts a host batch into backend tensors.  Sequence values
// are truncated toward zero and clamped to the vocabulary.
func (m *Model) graphInputs(f Features) []any {
	codes := make([]int32, len(f.Sequences.Data))
	last := int32(m.cfg.VocabularySize - 1)
	for i, v := range f.Sequences.Data {
		c := int32(v)
		if c < 0 {
			c = 0
		} else if c > last {
			c = last
		}
		codes[i] = c
	}
	return []any{
		tensors.FromFlatDataAndDimensions(float32s(f.Voxels.Data), f.Voxels.Shape...),
		tensors.FromFlatDataAndDimensions(float32s(f.Descriptors.Data), f.Descriptors.Shape...),
		tensors.FromFlatDataAndDimensions(codes, f.Sequences.Shape[0], f.Sequences.Shape[1], 1),
	}
}

func targetTensor(y []float64) *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(float32s(y), len(y), 1)
}

func float32s(x []float64) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(v)
	}
	return out
}

func float64s(x []float32) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = float64(v)
	}
	return out
}

func scalar(t *tensors.Tensor) float64 {
	return float64(tensors.CopyFlatData[float32](t)[0])
}

func (m *Model) call(exec *mlctx.Exec, args ...any) ([]*tensors.Tensor, error) {
	out, err := exec.CallOrError(args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAIInferenceFailed, "execute model graph")
	}
	return out, nil
}

// Config returns the model configuration.
func (m *Model) Config() Config { return m.cfg }

// State returns the lifecycle stage.
func (m *Model) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Compile attaches a fresh AdamW optimizer and moves an uncompiled model to
// compiled.  Compiling again resets the optimizer state.
func (m *Model) Compile(opt AdamWConfig) error {
	if opt.LearningRate <= 0 {
		return errors.InvalidParam("learning rate must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.optimizer != nil {
		m.optimizer.Clear(m.vars)
	}
	m.optimizer = optimizers.Adam().
		LearningRate(opt.LearningRate).
		Betas(opt.Beta1, opt.Beta2).
		Epsilon(opt.Epsilon).
		WeightDecay(opt.WeightDecay).
		Done()
	m.train = mlctx.NewExec(m.backend, m.vars, m.trainGraph)
	m.lr = opt.LearningRate
	if m.state == StateUncompiled {
		m.state = StateCompiled
	}
	return nil
}

// MarkTrained records that fitting finished.
func (m *Model) MarkTrained() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateUncompiled {
		return errors.New(errors.ErrCodeModelNotCompiled, "model must be compiled before it can be trained")
	}
	m.state = StateTrained
	return nil
}

func (m *Model) requireCompiled() error {
	if m.State() == StateUncompiled {
		return errors.New(errors.ErrCodeModelNotCompiled, "model is not compiled")
	}
	return nil
}

func (m *Model) requireTrained() error {
	if s := m.State(); s != StateTrained {
		return errors.Newf(errors.ErrCodeModelNotTrained, "model is %s", s)
	}
	return nil
}

// variables returns the trainable variables ordered by scoped name.
// Optimizer moments and random state are not included.
func (m *Model) variables() []*mlctx.Variable {
	var vars []*mlctx.Variable
	m.vars.EnumerateVariables(func(v *mlctx.Variable) {
		if v.Trainable {
			vars = append(vars, v)
		}
	})
	sort.Slice(vars, func(i, j int) bool { return vars[i].ScopeAndName() < vars[j].ScopeAndName() })
	return vars
}

// Weights copies the trainable variables to host arrays named by scope,
// for example "dense_1/weights".
func (m *Model) Weights() []nn.Array {
	vars := m.variables()
	out := make([]nn.Array, len(vars))
	for i, v := range vars {
		data := float64s(tensors.CopyFlatData[float32](v.Value()))
		out[i] = nn.Array{
			Name:  strings.TrimPrefix(v.ScopeAndName(), "/"),
			Value: nn.FromSlice(data, v.Shape().Dimensions...),
		}
	}
	return out
}

// setWeights writes host arrays back into the variables in variables()
// order.
func (m *Model) setWeights(arrays [][]float64) error {
	vars := m.variables()
	if len(arrays) != len(vars) {
		return errors.Newf(errors.ErrCodeShapeMismatch, "%d arrays for %d variables", len(arrays), len(vars))
	}
	for i, v := range vars {
		if len(arrays[i]) != v.Shape().Size() {
			return errors.Newf(errors.ErrCodeShapeMismatch, "%s: %d values, model has %d",
				v.ScopeAndName(), len(arrays[i]), v.Shape().Size())
		}
	}
	for i, v := range vars {
		v.SetValue(tensors.FromFlatDataAndDimensions(float32s(arrays[i]), v.Shape().Dimensions...))
	}
	return nil
}

// ParamCount is the number of trainable scalars.
func (m *Model) ParamCount() int {
	n := 0
	for _, v := range m.variables() {
		n += v.Shape().Size()
	}
	return n
}

// LR returns the optimizer learning rate.
func (m *Model) LR() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lr
}

// SetLR changes the learning rate used by subsequent steps.
func (m *Model) SetLR(lr float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.optimizer == nil {
		return
	}
	m.lr = lr
	optimizers.LearningRateVar(m.vars, dtypes.Float32, lr).SetValue(tensors.FromScalar(float32(lr)))
}

// Snapshot copies the current weights.
func (m *Model) Snapshot() [][]float64 {
	weights := m.Weights()
	out := make([][]float64, len(weights))
	for i, w := range weights {
		out[i] = w.Value.Data
	}
	return out
}

// Restore writes weights taken by Snapshot back into the model.
func (m *Model) Restore(snap [][]float64) error {
	return m.setWeights(snap)
}

// SaveCheckpoint writes the weights to path as an .npz archive keyed by
// variable scope.
func (m *Model) SaveCheckpoint(path string) error {
	return nn.SaveNPZ(path, m.Weights())
}

// LoadCheckpoint reads weights saved by SaveCheckpoint.  A compiled model
// becomes trained.
func (m *Model) LoadCheckpoint(path string) error {
	if err := m.requireCompiled(); err != nil {
		return err
	}
	weights := m.Weights()
	if err := nn.LoadNPZ(path, weights); err != nil {
		return err
	}
	snap := make([][]float64, len(weights))
	for i, w := range weights {
		snap[i] = w.Value.Data
	}
	if err := m.setWeights(snap); err != nil {
		return err
	}
	m.logger.Info("checkpoint loaded", logging.String("path", path))
	return m.MarkTrained()
}

// TrainStep runs one optimizer step on a batch.  It returns the loss with
// L2 penalties included and the plain mean squared error, both measured
// before the update.
func (m *Model) TrainStep(ctx context.Context, batch Features, target []float64) (loss, mse float64, err error) {
	if err := m.requireCompiled(); err != nil {
		return 0, 0, err
	}
	n := batch.Len()
	if n == 0 || n != len(target) {
		return 0, 0, errors.Newf(errors.ErrCodeShapeMismatch, "%d samples for %d targets", n, len(target))
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, errors.Wrap(err, errors.ErrCodeCancelled, "training cancelled")
	}
	out, err := m.call(m.train, append(m.graphInputs(batch), targetTensor(target))...)
	if err != nil {
		return 0, 0, errors.Wrap(err, errors.ErrCodeTrainingFailed, "train step")
	}
	return scalar(out[0]), scalar(out[1]), nil
}

// batchRanges splits n samples into consecutive batches of the configured
// size.
func (m *Model) batchRanges(n int) []nn.Shard {
	var out []nn.Shard
	for from := 0; from < n; from += m.cfg.BatchSize {
		out = append(out, nn.Shard{From: from, To: min(from+m.cfg.BatchSize, n)})
	}
	return out
}

// predictBatches runs inference batch by batch.  Replicas of the strategy
// take batches in turn.
func (m *Model) predictBatches(ctx context.Context, f Features) ([]float64, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	out := make([]float64, f.Len())
	batches := m.batchRanges(f.Len())
	replicas := m.strategy.Replicas()
	err := m.strategy.Run(ctx, func(ctx context.Context, replica int) error {
		for b := replica; b < len(batches); b += replicas {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, errors.ErrCodeCancelled, "prediction cancelled")
			}
			r := batches[b]
			res, err := m.call(m.predict, m.graphInputs(f.Slice(r.From, r.To))...)
			if err != nil {
				return err
			}
			for i, p := range tensors.CopyFlatData[float32](res[0]) {
				out[r.From+i] = float64(p)
			}
		}
		return nil
	})
	if err != nil {
		if errors.GetCode(err) == errors.CodeUnknown && ctx.Err() != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCancelled, "prediction cancelled")
		}
		return nil, err
	}
	return out, nil
}

// Evaluate returns the loss (MSE plus L2 penalties) and the RMSE of the
// model on f without dropout.
func (m *Model) Evaluate(ctx context.Context, f Features, target []float64) (loss, rmse float64, err error) {
	if err := m.requireCompiled(); err != nil {
		return 0, 0, err
	}
	if f.Len() != len(target) || len(target) == 0 {
		return 0, 0, errors.Newf(errors.ErrCodeShapeMismatch, "%d samples for %d targets", f.Len(), len(target))
	}
	if err := f.Validate(); err != nil {
		return 0, 0, err
	}
	var sum, penalty float64
	for _, r := range m.batchRanges(f.Len()) {
		if err := ctx.Err(); err != nil {
			return 0, 0, errors.Wrap(err, errors.ErrCodeCancelled, "evaluation cancelled")
		}
		args := append(m.graphInputs(f.Slice(r.From, r.To)), targetTensor(target[r.From:r.To]))
		out, err := m.call(m.evaluate, args...)
		if err != nil {
			return 0, 0, err
		}
		l, mse := scalar(out[0]), scalar(out[1])
		sum += mse * float64(r.To-r.From)
		penalty = l - mse
	}
	mse := sum / float64(len(target))
	return mse + penalty, math.Sqrt(mse), nil
}

// Predict returns one pIC50 per sample.  The model must be trained.
func (m *Model) Predict(ctx context.Context, f Features) ([]float64, error) {
	if err := m.requireTrained(); err != nil {
		return nil, err
	}
	pred, err := m.predictBatches(ctx, f)
	if err != nil {
		return nil, err
	}
	for i, p := range pred {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			m.logger.Warn("non-finite prediction", logging.Int("index", i))
		}
	}
	return pred, nil
}
