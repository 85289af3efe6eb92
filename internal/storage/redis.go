package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tokenomics-indexer/internal/config"
)

const redisIndexSuffix = ":index"

// RedisBlobStore keeps blob content in string keys and a lexicographic sorted
// set of all keys for ordered prefix listing.
type RedisBlobStore struct {
	rdb       *redis.Client
	namespace string
	baseURL   string
}

// NewRedisBlobStore connects to Redis and verifies the connection.
func NewRedisBlobStore(ctx context.Context, cfg config.RedisConfig, baseURL string) (*RedisBlobStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", opts.Addr, err)
	}

	return NewRedisBlobStoreFromClient(rdb, cfg.Namespace, baseURL), nil
}

// NewRedisBlobStoreFromClient wraps an existing client.
func NewRedisBlobStoreFromClient(rdb *redis.Client, namespace, baseURL string) *RedisBlobStore {
	if namespace == "" {
		namespace = "tokenomics"
	}
	return &RedisBlobStore{rdb: rdb, namespace: namespace, baseURL: baseURL}
}

// Close shuts down the Redis connection.
func (s *RedisBlobStore) Close() error {
	return s.rdb.Close()
}

// Ping checks Redis connectivity.
func (s *RedisBlobStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisBlobStore) redisKey(key string) string {
	return s.namespace + ":blob:" + key
}

func (s *RedisBlobStore) indexKey() string {
	return s.namespace + redisIndexSuffix
}

func (s *RedisBlobStore) Put(ctx context.Context, key string, content []byte) (string, error) {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.redisKey(key), content, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: 0, Member: key})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("put blob %s: %w", key, err)
	}
	return publicURL(s.baseURL, key), nil
}

// putIfAbsentScript writes the blob and indexes it in one step, so a stored
// blob is always listed.
var putIfAbsentScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 1 then
  redis.call('ZADD', KEYS[2], 0, ARGV[2])
  return 1
end
return 0
`)

func (s *RedisBlobStore) PutIfAbsent(ctx context.Context, key string, content []byte) (string, bool, error) {
	created, err := putIfAbsentScript.Run(ctx, s.rdb, []string{s.redisKey(key), s.indexKey()}, content, key).Int()
	if err != nil {
		return "", false, fmt.Errorf("put blob %s: %w", key, err)
	}
	return publicURL(s.baseURL, key), created == 1, nil
}

func (s *RedisBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	content, err := s.rdb.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get blob %s: %w", key, err)
	}
	return content, nil
}

func (s *RedisBlobStore) Head(ctx context.Context, key string) (Object, error) {
	exists, err := s.rdb.Exists(ctx, s.redisKey(key)).Result()
	if err != nil {
		return Object{}, fmt.Errorf("head blob %s: %w", key, err)
	}
	if exists == 0 {
		return Object{}, ErrNotFound
	}
	size, err := s.rdb.StrLen(ctx, s.redisKey(key)).Result()
	if err != nil {
		return Object{}, fmt.Errorf("head blob %s: %w", key, err)
	}
	return Object{Key: key, URL: publicURL(s.baseURL, key), Size: size}, nil
}

func (s *RedisBlobStore) List(ctx context.Context, prefix, cursor string, limit int) (ListPage, error) {
	if limit <= 0 {
		limit = 1000
	}
	min := "[" + prefix
	if cursor != "" {
		min = "(" + cursor
	}
	keys, err := s.rdb.ZRangeByLex(ctx, s.indexKey(), &redis.ZRangeBy{
		Min:   min,
		Max:   "[" + prefix + "\xff",
		Count: int64(limit + 1),
	}).Result()
	if err != nil {
		return ListPage{}, fmt.Errorf("list blobs: %w", err)
	}

	var page ListPage
	if len(keys) > limit {
		keys = keys[:limit]
		page.Cursor = keys[limit-1]
	}
	for _, key := range keys {
		page.Objects = append(page.Objects, Object{Key: key, URL: publicURL(s.baseURL, key)})
	}
	return page, nil
}

var _ BlobStore = (*RedisBlobStore)(nil)
var _ Pinger = (*RedisBlobStore)(nil)
