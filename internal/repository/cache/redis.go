package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geoclash/maptiles/pkg/metrics"
)

// RedisStore is an optional shared tile byte store consulted before going
// to the upstream provider, so several game clients behind one redis can
// share fetched tiles.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) keyFor(k Key) string {
	return fmt.Sprintf("tile:%s:%s:%d:%d:%d", k.Provider, k.Style, k.Z, k.X, k.Y)
}

func (s *RedisStore) Get(ctx context.Context, k Key) ([]byte, bool, error) {
	start := time.Now()
	data, err := s.client.Get(ctx, s.keyFor(k)).Bytes()
	metrics.RedisOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())

	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		metrics.RedisErrors.WithLabelValues("get").Inc()
		return nil, false, fmt.Errorf("redis get error: %w", err)
	}

	return data, true, nil
}

func (s *RedisStore) Set(ctx context.Context, k Key, data []byte) error {
	start := time.Now()
	err := s.client.Set(ctx, s.keyFor(k), data, s.ttl).Err()
	metrics.RedisOperationDuration.WithLabelValues("set").Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RedisErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
