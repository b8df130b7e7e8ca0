package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPrefix = "potency:desc:v1:"
	DefaultTTL    = 7 * 24 * time.Hour
)

var ErrSerializationFailed = errors.New(errors.ErrCodeSerialization, "descriptor vector serialization failed")

// Serializer encodes cached descriptor vectors.
type Serializer interface {
	Marshal(v []float64) ([]byte, error)
	Unmarshal(data []byte) ([]float64, error)
}

type jsonSerializer struct{}

func (jsonSerializer) Marshal(v []float64) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonSerializer) Unmarshal(data []byte) ([]float64, error) {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DescriptorCache stores descriptor vectors keyed by a hash of the SMILES
// string.  Concurrent reads of the same key share one round trip.
type DescriptorCache struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	ttl        time.Duration
	jitter     float64
	serializer Serializer
	group      singleflight.Group
}

type CacheOption func(*DescriptorCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *DescriptorCache) { c.prefix = prefix }
}

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *DescriptorCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithTTLJitter spreads expirations by ±fraction of the TTL.  Zero disables it.
func WithTTLJitter(fraction float64) CacheOption {
	return func(c *DescriptorCache) {
		if fraction >= 0 && fraction < 1 {
			c.jitter = fraction
		}
	}
}

func WithSerializer(s Serializer) CacheOption {
	return func(c *DescriptorCache) { c.serializer = s }
}

func NewDescriptorCache(client *Client, log logging.Logger, opts ...CacheOption) *DescriptorCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &DescriptorCache{
		client:     client,
		logger:     log,
		prefix:     DefaultPrefix,
		ttl:        DefaultTTL,
		jitter:     0.1,
		serializer: jsonSerializer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the redis key holding the vector for smiles.
func (c *DescriptorCache) Key(smiles string) string {
	sum := sha256.Sum256([]byte(smiles))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *DescriptorCache) jitterTTL(ttl time.Duration) time.Duration {
	if c.jitter == 0 {
		return ttl
	}
	delta := float64(ttl) * c.jitter * (rand.Float64()*2 - 1)
	return ttl + time.Duration(delta)
}

// GetVector returns the cached vector for smiles.  A miss is (nil, false, nil).
func (c *DescriptorCache) GetVector(ctx context.Context, smiles string) ([]float64, bool, error) {
	key := c.Key(smiles)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		data, err := c.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to get descriptor vector")
		}
		v, err := c.serializer.Unmarshal(data)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt descriptor vector").
				WithDetail(key)
		}
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	v, _ := val.([]float64)
	if v == nil {
		return nil, false, nil
	}
	// callers sharing a flight must not alias one slice
	return append([]float64(nil), v...), true, nil
}

// SetVector stores v under smiles with the configured TTL.
func (c *DescriptorCache) SetVector(ctx context.Context, smiles string, v []float64) error {
	data, err := c.serializer.Marshal(v)
	if err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	if err := c.client.Set(ctx, c.Key(smiles), string(data), c.jitterTTL(c.ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set descriptor vector")
	}
	return nil
}

// Invalidate drops the cached vectors of the given SMILES strings.
func (c *DescriptorCache) Invalidate(ctx context.Context, smiles ...string) (int64, error) {
	if len(smiles) == 0 {
		return 0, nil
	}
	keys := make([]string, len(smiles))
	for i, s := range smiles {
		keys[i] = c.Key(s)
	}
	n, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeCacheError, "failed to invalidate descriptor vectors")
	}
	c.logger.Debug("descriptor vectors invalidated", logging.Int("requested", len(keys)), logging.Int64("removed", n))
	return n, nil
}
