package potency_net

import (
	"fmt"

	"github.com/gomlx/gomlx/graph"
	mlctx "github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/ml/layers/lstm"
	"github.com/gomlx/gomlx/ml/layers/regularizers"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/turtacn/potencynet/internal/intelligence/nn"
)

// newGraphContext returns the variable store of a model.  Variables are
// looked up by scope on every graph build, so the training, evaluation and
// prediction graphs and every replica of a batch share one set of weights.
func newGraphContext(cfg Config) *mlctx.Context {
	ctx := mlctx.New().Checked(false)
	ctx.SetParam(initializers.ParamInitialSeed, cfg.Seed)
	ctx.SetParam(regularizers.ParamL2, cfg.L2)
	// the embedding table and the output layer are not regularized
	ctx.In("embedding").SetParam(regularizers.ParamL2, 0.0)
	ctx.In("regression_output").SetParam(regularizers.ParamL2, 0.0)
	ctx.RngStateFromSeed(cfg.Seed)
	return ctx
}

// forward builds the three branches and the head on one batch.  vox is
// [n, D, H, W, 1], desc [n, k] and codes [n, T, 1] integer character codes.
// It returns predictions of shape [n, 1].
func forward(ctx *mlctx.Context, cfg Config, vox, desc, codes *graph.Node) *graph.Node {
	v := vox
	for i, filters := range cfg.ConvFilters {
		v = layers.Convolution(ctx.In(fmt.Sprintf("conv3d_%d", i+1)), v).
			Filters(filters).
			KernelSize(cfg.KernelSize).
			PadSame().
			Done()
		v = activations.Relu(v)
		if i < len(cfg.ConvFilters)-1 {
			v = graph.MeanPool(v).Window(cfg.PoolSize).Done()
		}
	}
	v = graph.ReduceMean(v, 1, 2, 3)

	d := activations.Relu(layers.Dense(ctx.In("descriptor_dense"), desc, true, cfg.DescriptorUnits))

	s := embed(ctx.In("embedding"), codes, cfg.VocabularySize, cfg.EmbeddingDim)
	_, s, _ = lstm.New(ctx.In("lstm"), s, cfg.LSTMUnits).Done()

	x := graph.Concatenate([]*graph.Node{v, d, s}, -1)
	for i, units := range cfg.HeadUnits {
		x = activations.Relu(layers.Dense(ctx.In(fmt.Sprintf("dense_%d", i+1)), x, true, units))
		if cfg.DropoutRate > 0 {
			rate := graph.Scalar(x.Graph(), x.DType(), cfg.DropoutRate)
			x = layers.Dropout(ctx.In(fmt.Sprintf("dropout_%d", i+1)), x, rate)
		}
	}
	return layers.Dense(ctx.In("regression_output"), x, true, 1)
}

// embed looks codes up in a [vocab, dim] table.  The trailing axis of codes
// is the gather index, so [n, T, 1] becomes [n, T, dim].
func embed(ctx *mlctx.Context, codes *graph.Node, vocab, dim int) *graph.Node {
	table := ctx.VariableWithShape("embeddings", shapes.Make(dtypes.Float32, vocab, dim))
	return graph.Gather(table.ValueGraph(codes.Graph()), codes)
}

// shardedForward runs forward once per replica range of the batch and
// concatenates the predictions in sample order.
func shardedForward(ctx *mlctx.Context, cfg Config, shards []nn.Shard, vox, desc, codes *graph.Node) *graph.Node {
	if len(shards) == 1 {
		return forward(ctx, cfg, vox, desc, codes)
	}
	preds := make([]*graph.Node, len(shards))
	for i, sh := range shards {
		part := func(x *graph.Node) *graph.Node { return graph.Slice(x, graph.AxisRange(sh.From, sh.To)) }
		preds[i] = forward(ctx, cfg, part(vox), part(desc), part(codes))
	}
	return graph.Concatenate(preds, 0)
}

// objective returns the regularized loss and the plain mean squared error
// of pred against y.  Every replica registers the weight penalties once, so
// the collected penalty is divided by the replica count.
func objective(ctx *mlctx.Context, pred, y *graph.Node, replicas int) (loss, mse *graph.Node) {
	mse = graph.ReduceAllMean(graph.Square(graph.Sub(pred, y)))
	penalty := train.GetLosses(ctx, pred.Graph())
	if penalty == nil {
		return mse, mse
	}
	if replicas > 1 {
		penalty = graph.MulScalar(penalty, 1/float64(replicas))
	}
	return graph.Add(mse, penalty), mse
}
