package nn

import (
	"context"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
)

// Strategy names accepted by SelectStrategy.
const (
	StrategyDefault  = "default"
	StrategyMirrored = "mirrored"
	StrategyTPU      = "tpu"
	StrategyGPU      = "gpu"
)

// Strategy decides which backend runs the model graph and how many replicas
// share a batch.  It is chosen once at startup and handed to the model.
type Strategy interface {
	Name() string
	// Backend is the configuration passed to NewBackend.
	Backend() string
	Replicas() int
	// Run calls fn once per replica and returns the first error.
	Run(ctx context.Context, fn func(ctx context.Context, replica int) error) error
}

type defaultStrategy struct {
	backend string
}

// NewDefaultStrategy runs a single replica on the pure Go backend.
func NewDefaultStrategy() Strategy { return defaultStrategy{backend: BackendGo} }

func (s defaultStrategy) Name() string    { return StrategyDefault }
func (s defaultStrategy) Backend() string { return s.backend }
func (defaultStrategy) Replicas() int     { return 1 }

func (defaultStrategy) Run(ctx context.Context, fn func(context.Context, int) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, 0)
}

type mirroredStrategy struct {
	replicas int
}

// NewMirroredStrategy splits every batch over n replicas with shared
// weights.  n <= 0 uses one replica per CPU.
func NewMirroredStrategy(n int) Strategy {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &mirroredStrategy{replicas: n}
}

func (s *mirroredStrategy) Name() string    { return StrategyMirrored }
func (s *mirroredStrategy) Backend() string { return BackendGo }
func (s *mirroredStrategy) Replicas() int   { return s.replicas }

func (s *mirroredStrategy) Run(ctx context.Context, fn func(context.Context, int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.replicas; i++ {
		replica := i
		g.Go(func() error { return fn(gctx, replica) })
	}
	return g.Wait()
}

// Shard is the half-open sample range [From, To) of one replica.
type Shard struct {
	From, To int
}

// Shards splits n samples into at most replicas contiguous ranges.  Every
// range is non-empty.
func Shards(n, replicas int) []Shard {
	if replicas > n {
		replicas = n
	}
	if replicas < 1 {
		replicas = 1
	}
	out := make([]Shard, replicas)
	for r := range out {
		out[r] = Shard{From: r * n / replicas, To: (r + 1) * n / replicas}
	}
	return out
}

// SelectStrategy resolves a configured strategy name.  Accelerator
// strategies are used only when their backend can be opened; otherwise they
// fall back to the default strategy with a warning, as does an unknown name.
func SelectStrategy(name string, replicas int, logger logging.Logger) Strategy {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyDefault:
		return NewDefaultStrategy()
	case StrategyMirrored:
		s := NewMirroredStrategy(replicas)
		logger.Info("using mirrored strategy", logging.Int("replicas", s.Replicas()))
		return s
	case StrategyTPU:
		return acceleratorOrDefault(StrategyTPU, BackendTPU, logger)
	case StrategyGPU:
		return acceleratorOrDefault(StrategyGPU, BackendCUDA, logger)
	default:
		logger.Warn("unknown strategy, falling back to default", logging.String("requested", name))
		return NewDefaultStrategy()
	}
}

type acceleratorStrategy struct {
	defaultStrategy
	name string
}

func (s acceleratorStrategy) Name() string { return s.name }

func acceleratorOrDefault(name, backend string, logger logging.Logger) Strategy {
	if backendAvailable(backend) {
		logger.Info("using accelerator strategy", logging.String("strategy", name), logging.String("backend", backend))
		return acceleratorStrategy{defaultStrategy: defaultStrategy{backend: backend}, name: name}
	}
	logger.Warn("accelerator not available, falling back to default strategy", logging.String("requested", name))
	return NewDefaultStrategy()
}
