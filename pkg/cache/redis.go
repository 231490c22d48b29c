package cache

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// RedisGateway stores each tier under its own Redis key:
//
//	<collection>:<key>             typed tier, raw bytes
//	<collection>:<key>:image       secondary tier, PNG bytes
//	<collection>:<key>:attributes  hash of attributes
type RedisGateway struct {
	redisClient redis.UniversalClient
	logger      zerolog.Logger
	ttl         time.Duration
	closeOnce   sync.Once
	closeErr    error
}

// NewRedisGateway creates and connects a new RedisGateway.
// It pings the Redis server to ensure connectivity before returning.
func NewRedisGateway(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisGateway, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")
	return NewRedisGatewayWithClient(rdb, cfg.CacheTTL, logger), nil
}

// NewRedisGatewayWithClient wraps an existing client. The gateway takes ownership of it.
func NewRedisGatewayWithClient(client redis.UniversalClient, ttl time.Duration, logger zerolog.Logger) *RedisGateway {
	return &RedisGateway{
		redisClient: client,
		logger:      logger.With().Str("component", "RedisGateway").Logger(),
		ttl:         ttl,
	}
}

func redisKey(collection, key string) string {
	return collection + ":" + key
}

// GetTyped returns the raw bytes stored for key.
func (g *RedisGateway) GetTyped(ctx context.Context, collection, key string) (any, error) {
	stringKey := redisKey(collection, key)
	data, err := g.redisClient.Get(ctx, stringKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("key '%s': %w", stringKey, ErrNotFound)
		}
		g.logger.Error().Err(err).Str("key", stringKey).Msg("Unexpected Redis error during fetch.")
		return nil, fmt.Errorf("redis get failed for key %s: %w", stringKey, err)
	}
	g.logger.Debug().Str("key", stringKey).Msg("Redis cache hit.")
	return data, nil
}

// GetSecondary returns the decoded image stored for key.
func (g *RedisGateway) GetSecondary(ctx context.Context, collection, key string) (image.Image, error) {
	stringKey := redisKey(collection, key) + ":image"
	data, err := g.redisClient.Get(ctx, stringKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("image '%s': %w", stringKey, ErrNotFound)
		}
		return nil, fmt.Errorf("redis get failed for key %s: %w", stringKey, err)
	}
	return decodeImage(data)
}

// SetClean writes the value and replaces the attribute hash in one transaction.
func (g *RedisGateway) SetClean(ctx context.Context, collection, key string, value any, attributes map[string]any) error {
	base := redisKey(collection, key)
	dataKey := base
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case image.Image:
		encoded, err := encodePNG(v)
		if err != nil {
			return err
		}
		dataKey = base + ":image"
		data = encoded
	default:
		return fmt.Errorf("redis gateway cannot store %T: %w", value, ErrUnsupportedValue)
	}

	attrKey := base + ":attributes"
	_, err := g.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, dataKey, data, g.ttl)
		if attributes == nil {
			return nil
		}
		pipe.Del(ctx, attrKey)
		if len(attributes) > 0 {
			pipe.HSet(ctx, attrKey, stringAttributes(attributes))
			if g.ttl > 0 {
				pipe.Expire(ctx, attrKey, g.ttl)
			}
		}
		return nil
	})
	if err != nil {
		g.logger.Error().Err(err).Str("key", dataKey).Msg("Failed to set data in Redis cache.")
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	g.logger.Debug().Str("key", dataKey).Msg("Successfully stored data in Redis cache.")
	return nil
}

// Attributes returns the attribute hash stored for key.
func (g *RedisGateway) Attributes(ctx context.Context, collection, key string) (map[string]string, error) {
	return g.redisClient.HGetAll(ctx, redisKey(collection, key)+":attributes").Result()
}

// Close closes the Redis client connection.
func (g *RedisGateway) Close() error {
	g.closeOnce.Do(func() {
		if g.redisClient != nil {
			g.logger.Info().Msg("Closing Redis client connection...")
			g.closeErr = g.redisClient.Close()
		}
	})
	return g.closeErr
}
