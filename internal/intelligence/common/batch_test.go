package common

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu      sync.Mutex
	name    string
	total   int
	failed  int
	batches int
}

func (o *recordingObserver) ObserveBatch(name string, total, failed int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.name, o.total, o.failed = name, total, failed
	o.batches++
}

func TestNewBatchProcessor_Defaults(t *testing.T) {
	bp := NewBatchProcessor[string, string]()
	assert.NotNil(t, bp)
}

func TestProcess_AllSuccess(t *testing.T) {
	bp := NewBatchProcessor[string, string]()
	items := []string{"a", "b", "c"}
	fn := func(ctx context.Context, item string) (string, error) {
		return item + "_processed", nil
	}

	res, err := bp.Process(context.Background(), items, fn)
	require.NoError(t, err)
	assert.Equal(t, 3, res.SuccessCount)
	assert.Equal(t, []string{"a_processed", "b_processed", "c_processed"}, res.Values())
	assert.Empty(t, res.Failed())
}

func TestProcess_PreservesOrder(t *testing.T) {
	bp := NewBatchProcessor[int, int](WithMaxConcurrency(4))
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}
	fn := func(ctx context.Context, item int) (int, error) {
		// later items finish first
		time.Sleep(time.Duration(50-item) * 100 * time.Microsecond)
		return item * item, nil
	}

	res, err := bp.Process(context.Background(), items, fn)
	require.NoError(t, err)
	for i, r := range res.Results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, i*i, r.Result)
	}
}

func TestProcess_AllFailure(t *testing.T) {
	bp := NewBatchProcessor[string, string]()
	items := []string{"a", "b"}
	fn := func(ctx context.Context, item string) (string, error) {
		return "", errors.New("failed")
	}

	res, err := bp.Process(context.Background(), items, fn)
	require.NoError(t, err)
	assert.Equal(t, 0, res.SuccessCount)
	assert.Equal(t, 2, res.FailureCount)
	assert.Len(t, res.Failed(), 2)
	assert.Equal(t, ItemStatusFailed, res.Results[0].Status)
}

func TestProcess_ConcurrencyLimit(t *testing.T) {
	var concurrentCount int32
	var maxConcurrent int32

	bp := NewBatchProcessor[int, int](WithMaxConcurrency(2))
	items := []int{1, 2, 3, 4, 5}

	fn := func(ctx context.Context, item int) (int, error) {
		curr := atomic.AddInt32(&concurrentCount, 1)
		defer atomic.AddInt32(&concurrentCount, -1)
		for {
			max := atomic.LoadInt32(&maxConcurrent)
			if curr <= max || atomic.CompareAndSwapInt32(&maxConcurrent, max, curr) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return item * 2, nil
	}

	_, err := bp.Process(context.Background(), items, fn)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxConcurrent), int32(2))
}

func TestProcess_ItemTimeout(t *testing.T) {
	bp := NewBatchProcessor[int, int](WithItemTimeout(10 * time.Millisecond))
	fn := func(ctx context.Context, item int) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
			return item, nil
		}
	}

	res, err := bp.Process(context.Background(), []int{1}, fn)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailureCount)
	assert.Equal(t, ItemStatusTimeout, res.Results[0].Status)
}

func TestProcess_Cancelled(t *testing.T) {
	bp := NewBatchProcessor[int, int](WithMaxConcurrency(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := bp.Process(ctx, []int{1, 2, 3}, func(ctx context.Context, item int) (int, error) {
		return item, ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.FailureCount)
	for _, r := range res.Results {
		assert.Equal(t, ItemStatusCancelled, r.Status)
	}
}

func TestProcess_FailedItemRunsOnce(t *testing.T) {
	var calls int32
	bp := NewBatchProcessor[int, int]()
	res, err := bp.Process(context.Background(), []int{1}, func(ctx context.Context, item int) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, errors.New("unparsable")
	})
	require.NoError(t, err)
	assert.Equal(t, ItemStatusFailed, res.Results[0].Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestProcess_NilFunc(t *testing.T) {
	bp := NewBatchProcessor[int, int]()
	_, err := bp.Process(context.Background(), []int{1}, nil)
	assert.Error(t, err)
}

func TestProcess_Empty(t *testing.T) {
	bp := NewBatchProcessor[int, int]()
	res, err := bp.Process(context.Background(), nil, func(ctx context.Context, item int) (int, error) {
		return item, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalCount)
}

func TestProcess_Observer(t *testing.T) {
	obs := &recordingObserver{}
	bp := NewBatchProcessor[int, int](WithName("descriptors"), WithBatchObserver(obs))
	_, err := bp.Process(context.Background(), []int{1, 2, 3}, func(ctx context.Context, item int) (int, error) {
		if item == 2 {
			return 0, errors.New("bad")
		}
		return item, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "descriptors", obs.name)
	assert.Equal(t, 3, obs.total)
	assert.Equal(t, 1, obs.failed)
	assert.Equal(t, 1, obs.batches)
}

func TestItemStatus_String(t *testing.T) {
	assert.Equal(t, "SUCCESS", ItemStatusSuccess.String())
	assert.Equal(t, "TIMEOUT", ItemStatusTimeout.String())
	assert.Equal(t, "UNKNOWN(9)", ItemStatus(9).String())
}
