// Package common holds the execution helpers shared by the intelligence
// packages: a bounded-concurrency batch processor used to fan out per-molecule
// work such as descriptor extraction.
package common

import (
	"context"
	stdliberrors "errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/pkg/errors"
)

// ---------------------------------------------------------------------------
// ItemStatus enumeration
// ---------------------------------------------------------------------------

// ItemStatus represents the outcome status of a single batch item.
type ItemStatus int

const (
	ItemStatusSuccess ItemStatus = iota
	ItemStatusFailed
	ItemStatusTimeout
	ItemStatusCancelled
)

// String returns the human-readable representation of an ItemStatus.
func (s ItemStatus) String() string {
	switch s {
	case ItemStatusSuccess:
		return "SUCCESS"
	case ItemStatusFailed:
		return "FAILED"
	case ItemStatusTimeout:
		return "TIMEOUT"
	case ItemStatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ---------------------------------------------------------------------------
// Generic types
// ---------------------------------------------------------------------------

// ProcessFunc processes a single item.
type ProcessFunc[T, R any] func(ctx context.Context, item T) (R, error)

// ItemResult holds the outcome of one item.  Index is the item's position in
// the input slice.
type ItemResult[R any] struct {
	Index      int        `json:"index"`
	Result     R          `json:"result"`
	Error      error      `json:"error,omitempty"`
	DurationMs float64    `json:"duration_ms"`
	Status     ItemStatus `json:"status"`
}

// BatchResult aggregates a batch run.  Results are in input order.
type BatchResult[R any] struct {
	Results           []*ItemResult[R] `json:"results"`
	TotalCount        int              `json:"total_count"`
	SuccessCount      int              `json:"success_count"`
	FailureCount      int              `json:"failure_count"`
	TotalDurationMs   float64          `json:"total_duration_ms"`
	AvgItemDurationMs float64          `json:"avg_item_duration_ms"`
}

// Failed returns the results that did not succeed, in input order.
func (br *BatchResult[R]) Failed() []*ItemResult[R] {
	var out []*ItemResult[R]
	for _, r := range br.Results {
		if r.Status != ItemStatusSuccess {
			out = append(out, r)
		}
	}
	return out
}

// Values returns the result values in input order.  Failed items contribute
// the zero value of R.
func (br *BatchResult[R]) Values() []R {
	out := make([]R, len(br.Results))
	for i, r := range br.Results {
		out[i] = r.Result
	}
	return out
}

// BatchObserver receives one summary per finished batch.
type BatchObserver interface {
	ObserveBatch(name string, total, failed int, duration time.Duration)
}

// ---------------------------------------------------------------------------
// BatchProcessor interface
// ---------------------------------------------------------------------------

// BatchProcessor runs fn over a slice of items with bounded concurrency.
type BatchProcessor[T, R any] interface {
	// Process executes fn for every item.  A per-item failure is reported in
	// the item's result, not as the returned error.
	Process(ctx context.Context, items []T, fn ProcessFunc[T, R]) (*BatchResult[R], error)
}

// ---------------------------------------------------------------------------
// BatchOption functional options
// ---------------------------------------------------------------------------

type batchConfig struct {
	name           string
	maxConcurrency int
	itemTimeout    time.Duration
	observer       BatchObserver
	logger         logging.Logger
}

func defaultBatchConfig() *batchConfig {
	return &batchConfig{
		name:           "batch",
		maxConcurrency: runtime.NumCPU(),
		itemTimeout:    30 * time.Second,
	}
}

// BatchOption configures a batchProcessor.
type BatchOption func(*batchConfig)

// WithName labels the batches in logs and observer callbacks.
func WithName(name string) BatchOption {
	return func(c *batchConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithMaxConcurrency sets the maximum number of items processed concurrently.
func WithMaxConcurrency(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithItemTimeout sets the per-item processing timeout.
func WithItemTimeout(d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if d > 0 {
			c.itemTimeout = d
		}
	}
}

// WithBatchObserver reports batch summaries to o.
func WithBatchObserver(o BatchObserver) BatchOption {
	return func(c *batchConfig) {
		c.observer = o
	}
}

// WithBatchLogger injects a logger.
func WithBatchLogger(l logging.Logger) BatchOption {
	return func(c *batchConfig) {
		c.logger = l
	}
}

// ---------------------------------------------------------------------------
// batchProcessor implementation
// ---------------------------------------------------------------------------

type batchProcessor[T, R any] struct {
	cfg    *batchConfig
	logger logging.Logger
}

// NewBatchProcessor creates a new BatchProcessor with the supplied options.
func NewBatchProcessor[T, R any](opts ...BatchOption) BatchProcessor[T, R] {
	cfg := defaultBatchConfig()
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NewNopLogger()
	}
	return &batchProcessor[T, R]{
		cfg:    cfg,
		logger: cfg.logger,
	}
}

func (bp *batchProcessor[T, R]) Process(
	ctx context.Context,
	items []T,
	fn ProcessFunc[T, R],
) (*BatchResult[R], error) {
	if fn == nil {
		return nil, errors.InvalidParam("process function must not be nil")
	}
	n := len(items)
	if n == 0 {
		return &BatchResult[R]{Results: []*ItemResult[R]{}}, nil
	}

	batchStart := time.Now()

	// Each goroutine owns results[idx], so no channel or sort is needed to
	// restore input order.
	results := make([]*ItemResult[R], n)
	sem := make(chan struct{}, bp.cfg.maxConcurrency)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int, item T) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = &ItemResult[R]{
					Index:  idx,
					Error:  ctx.Err(),
					Status: classifyCtxError(ctx.Err()),
				}
				return
			}

			results[idx] = bp.processOneItem(ctx, idx, item, fn)
		}(i, items[i])
	}
	wg.Wait()

	totalDuration := time.Since(batchStart)
	br := buildBatchResult(results, totalDuration)

	bp.logger.Debug("batch finished",
		logging.String("batch", bp.cfg.name),
		logging.Int("total", br.TotalCount),
		logging.Int("failed", br.FailureCount),
		logging.Duration("duration", totalDuration),
	)
	if bp.cfg.observer != nil {
		bp.cfg.observer.ObserveBatch(bp.cfg.name, br.TotalCount, br.FailureCount, totalDuration)
	}
	return br, nil
}

// processOneItem runs fn under a per-item timeout.
func (bp *batchProcessor[T, R]) processOneItem(
	ctx context.Context,
	idx int,
	item T,
	fn ProcessFunc[T, R],
) *ItemResult[R] {
	itemStart := time.Now()
	itemCtx, itemCancel := context.WithTimeout(ctx, bp.cfg.itemTimeout)
	result, err := fn(itemCtx, item)
	itemCancel()

	if err != nil {
		return &ItemResult[R]{
			Index:      idx,
			Error:      err,
			Status:     classifyError(ctx, err),
			DurationMs: msSince(itemStart),
		}
	}
	return &ItemResult[R]{
		Index:      idx,
		Result:     result,
		Status:     ItemStatusSuccess,
		DurationMs: msSince(itemStart),
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func buildBatchResult[R any](results []*ItemResult[R], totalDuration time.Duration) *BatchResult[R] {
	br := &BatchResult[R]{
		Results:         results,
		TotalCount:      len(results),
		TotalDurationMs: float64(totalDuration.Microseconds()) / 1000.0,
	}
	var sumItemMs float64
	for _, r := range results {
		if r.Status == ItemStatusSuccess {
			br.SuccessCount++
		} else {
			br.FailureCount++
		}
		sumItemMs += r.DurationMs
	}
	if br.TotalCount > 0 {
		br.AvgItemDurationMs = sumItemMs / float64(br.TotalCount)
	}
	return br
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}

func classifyCtxError(err error) ItemStatus {
	switch {
	case err == nil:
		return ItemStatusSuccess
	case stdliberrors.Is(err, context.DeadlineExceeded):
		return ItemStatusTimeout
	}
	return ItemStatusCancelled
}

func classifyError(ctx context.Context, err error) ItemStatus {
	switch {
	case err == nil:
		return ItemStatusSuccess
	case stdliberrors.Is(err, context.DeadlineExceeded):
		return ItemStatusTimeout
	case stdliberrors.Is(err, context.Canceled):
		return ItemStatusCancelled
	}
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ItemStatusTimeout
	case context.Canceled:
		return ItemStatusCancelled
	}
	return ItemStatusFailed
}
