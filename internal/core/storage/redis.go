package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/solatis/microproto/internal/types"
)

// RedisStore keeps property values as fields of the hash <namespace>:props.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{client: client, key: namespace + ":props"}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	return hget(ctx, r.client, r.key, key)
}

func (r *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := r.client.HSet(ctx, r.key, key, value).Err(); err != nil {
		return fmt.Errorf("hset %s %s: %w", r.key, key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, r.key, key).Err(); err != nil {
		return fmt.Errorf("hdel %s %s: %w", r.key, key, err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", r.key, err)
	}
	return nil
}

// RedisBlobStore keeps resource bodies as fields of the hash <namespace>:res.
type RedisBlobStore struct {
	client *redis.Client
	key    string
}

func NewRedisBlobStore(client *redis.Client, namespace string) *RedisBlobStore {
	return &RedisBlobStore{client: client, key: namespace + ":res"}
}

func (r *RedisBlobStore) PutBody(ctx context.Context, key string, body []byte) error {
	if err := r.client.HSet(ctx, r.key, key, body).Err(); err != nil {
		return fmt.Errorf("hset %s %s: %w", r.key, key, err)
	}
	return nil
}

func (r *RedisBlobStore) GetBody(ctx context.Context, key string) ([]byte, error) {
	return hget(ctx, r.client, r.key, key)
}

func (r *RedisBlobStore) DeleteBody(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, r.key, key).Err(); err != nil {
		return fmt.Errorf("hdel %s %s: %w", r.key, key, err)
	}
	return nil
}

func hget(ctx context.Context, client *redis.Client, hash, field string) ([]byte, error) {
	b, err := client.HGet(ctx, hash, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", field, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("hget %s %s: %w", hash, field, err)
	}
	return b, nil
}
