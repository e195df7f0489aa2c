package refreshtokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey holds the aggregate when no key is configured.
const DefaultRedisKey = "lexivault:refresh_store"

const redisMaxRetries = 32

// ErrConflict is returned when an optimistic backend keeps losing races.
var ErrConflict = errors.New("token store update conflict")

// RedisBackend keeps the aggregate under one Redis key and serializes updates
// with WATCH/MULTI: a concurrent write aborts the transaction and the update
// is retried on fresh data.
type RedisBackend struct {
	client *redis.Client
	key    string
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisBackend{client: client, key: key}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) Read(ctx context.Context) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", b.key, err)
	}
	return data, nil
}

func (b *RedisBackend) Write(ctx context.Context, data []byte) error {
	return b.client.Set(ctx, b.key, data, 0).Err()
}

func (b *RedisBackend) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, b.key).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return fmt.Errorf("redis get %s: %w", b.key, err)
		}

		next, err := fn(current)
		if err != nil || next == nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, b.key, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < redisMaxRetries; attempt++ {
		err := b.client.Watch(ctx, txf, b.key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * time.Millisecond):
		}
	}
	return ErrConflict
}

func (b *RedisBackend) Preserve(ctx context.Context, data []byte) (string, error) {
	key := fmt.Sprintf("%s:corrupt:%d", b.key, time.Now().UnixNano())
	if err := b.client.Set(ctx, key, data, 0).Err(); err != nil {
		return "", err
	}
	return key, nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
