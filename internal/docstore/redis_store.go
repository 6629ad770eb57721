package docstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps documents in Redis hashes and appends every write to a
// change stream.
type RedisStore struct {
	client    RedisClient
	stream    string
	keyPrefix string
	ttl       time.Duration
	maxLen    int64
}

// RedisPipelineClient is the minimal write surface used by RedisStore.
type RedisPipelineClient interface {
	Pipeline() RedisPipeliner
}

// RedisPipeliner is the subset of commands used within a pipeline.
type RedisPipeliner interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Exec(ctx context.Context) ([]redis.Cmder, error)
}

// RedisReader is the read surface used by RedisStore.
type RedisReader interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
}

// RedisClient combines the read and pipelined write surfaces.
type RedisClient interface {
	RedisPipelineClient
	RedisReader
}

// NewRedisStore constructs a Redis-backed document store.
func NewRedisStore(client RedisClient, stream string, ttl time.Duration, maxLen int64) *RedisStore {
	if stream == "" {
		stream = "document_events"
	}
	return &RedisStore{
		client:    client,
		stream:    stream,
		keyPrefix: "doc:",
		ttl:       ttl,
		maxLen:    maxLen,
	}
}

func (r *RedisStore) key(collection, id string) string {
	return r.keyPrefix + collection + ":" + id
}

func (r *RedisStore) Get(ctx context.Context, collection, id string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if collection == "" || id == "" {
		return nil, false, ErrEmptyKey
	}

	doc, err := r.client.HGet(ctx, r.key(collection, id), "doc").Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(doc), true, nil
}

// Put writes the document hash and appends a change event in one pipeline.
func (r *RedisStore) Put(ctx context.Context, collection, id string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if collection == "" || id == "" {
		return ErrEmptyKey
	}

	key := r.key(collection, id)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"collection": collection,
		"id":         id,
		"doc":        string(doc),
	})
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	pipe.XAdd(ctx, r.changeEvent("put", collection, id))

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if collection == "" || id == "" {
		return ErrEmptyKey
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.key(collection, id))
	pipe.XAdd(ctx, r.changeEvent("delete", collection, id))

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Keys(ctx context.Context, collection string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := r.keyPrefix + collection + ":"
	raw, err := r.client.Keys(ctx, prefix+"*").Result()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, prefix))
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RedisStore) changeEvent(op, collection, id string) *redis.XAddArgs {
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"op":         op,
			"collection": collection,
			"id":         id,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	return args
}
