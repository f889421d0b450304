// cache — Redis-кэш чёрного списка access-токенов.
//
// Кэшируются только положительные ответы («токен отозван») с TTL до
// естественного истечения токена. Промах всегда уходит в БД, поэтому
// недоступность Redis не может скрыть отзыв.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BlacklistCache — минимальный контракт кэша чёрного списка.
type BlacklistCache interface {
	// IsRevoked возвращает true, если токен помечен как отозванный.
	IsRevoked(ctx context.Context, hash string) (bool, error)
	// MarkRevoked помечает токен отозванным на ttl.
	MarkRevoked(ctx context.Context, hash string, ttl time.Duration) error
	// Ping проверяет доступность Redis.
	Ping(ctx context.Context) error
	// Close закрывает клиент Redis.
	Close() error
}

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "auth:bl:".
func NewRedisCache(ctx context.Context, redisURL, prefix string) (BlacklistCache, error) {
	const op = "cache.NewRedisCache"

	if prefix == "" {
		prefix = "auth:bl:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &redisCache{rdb: rdb, prefix: prefix}, nil
}

func (c *redisCache) key(hash string) string { return c.prefix + hash }

func (c *redisCache) IsRevoked(ctx context.Context, hash string) (bool, error) {
	const op = "cache.IsRevoked"

	err := c.rdb.Get(ctx, c.key(hash)).Err()
	if err == nil {
		return true, nil
	}

	if errors.Is(err, redis.Nil) {
		return false, nil
	}

	return false, fmt.Errorf("%s: %w", op, err)
}

func (c *redisCache) MarkRevoked(ctx context.Context, hash string, ttl time.Duration) error {
	const op = "cache.MarkRevoked"

	// Истёкший токен и так будет отвергнут по exp.
	if ttl <= 0 {
		return nil
	}

	if err := c.rdb.Set(ctx, c.key(hash), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *redisCache) Close() error { return c.rdb.Close() }
