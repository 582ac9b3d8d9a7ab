// Package redisstore keeps serialized scorers in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hed1ad/anomalyscore/pkg/cache"
)

// DefaultPrefix is the key prefix used when none is given.
const DefaultPrefix = "anomalyscore:scorer"

type redisStore struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration
}

// New builds a cache.Store backed by a redis DB. Blobs are kept under
// prefix:id and expire after ttl, or never when ttl is zero.
func New(rc *redis.Client, prefix string, ttl time.Duration) cache.Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &redisStore{rc: rc, prefix: prefix, ttl: ttl}
}

func (rs *redisStore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	data, err := rs.rc.Get(ctx, rs.keyFor(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("retrieving scorer %q from redis: %w", id, err)
	}
	return data, true, nil
}

func (rs *redisStore) Put(ctx context.Context, id string, blob []byte) error {
	if err := rs.rc.Set(ctx, rs.keyFor(id), blob, rs.ttl).Err(); err != nil {
		return fmt.Errorf("storing scorer %q in redis: %w", id, err)
	}
	return nil
}

func (rs *redisStore) keyFor(id string) string {
	return fmt.Sprintf("%s:%s", rs.prefix, id)
}
