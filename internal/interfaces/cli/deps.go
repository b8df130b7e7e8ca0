package cli

import (
	"github.com/turtacn/potencynet/internal/config"
	"github.com/turtacn/potencynet/internal/infrastructure/database/redis"
	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/internal/infrastructure/storage/minio"
	"github.com/turtacn/potencynet/pkg/errors"
)

// openDescriptorCache connects to Redis when the cache is enabled.  A
// connection failure is logged and the run continues without the cache.
func openDescriptorCache(cfg config.CacheConfig, logger logging.Logger) (*redis.DescriptorCache, func()) {
	if !cfg.Enabled {
		return nil, func() {}
	}
	client, err := redis.NewClient(&redis.RedisConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, logger.Named("redis"))
	if err != nil {
		logger.Warn("descriptor cache unavailable, computing every descriptor", logging.Err(err))
		return nil, func() {}
	}
	opts := []redis.CacheOption{redis.WithTTL(cfg.TTL)}
	if cfg.KeyPrefix != "" {
		opts = append(opts, redis.WithPrefix(cfg.KeyPrefix))
	}
	cache := redis.NewDescriptorCache(client, logger.Named("descriptor_cache"), opts...)
	return cache, func() { _ = client.Close() }
}

// openArtifactRepository connects to the object store when publishing is
// enabled.  Unlike the cache, an unreachable store is an error: the user
// asked for the artifacts to be kept.
func openArtifactRepository(cfg config.StorageConfig, logger logging.Logger) (minio.ArtifactRepository, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}
	client, err := minio.NewMinIOClient(&minio.MinIOConfig{
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKey,
		SecretAccessKey: cfg.SecretKey,
		UseSSL:          cfg.UseSSL,
		Region:          cfg.Region,
		Bucket:          cfg.Bucket,
		Prefix:          cfg.Prefix,
		RetentionDays:   cfg.RetentionDays,
	}, logger.Named("minio"))
	if err != nil {
		return nil, func() {}, errors.Wrap(err, errors.CodeUnknown, "artifact storage unavailable")
	}
	return minio.NewMinIORepository(client, logger.Named("artifacts")), func() { _ = client.Close() }, nil
}
