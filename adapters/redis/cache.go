// Package redis provides an adapter to redis client
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrConflict is returned by Update when the key kept changing under the transaction
	ErrConflict = errors.New("concurrent update")
)

const maxUpdateAttempts = 5

// JSONCache stores JSON documents under a fixed key prefix.
// Identifiers are lower-cased so lookups are case-insensitive.
type JSONCache struct {
	client    *redis.Client
	keyPrefix string
}

func NewJSONCache(client *redis.Client, keyPrefix string) *JSONCache {
	return &JSONCache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (c *JSONCache) Key(id string) string {
	return c.keyPrefix + strings.ToLower(id)
}

func (c *JSONCache) Get(ctx context.Context, id string, dest any) error {
	data, err := c.client.Get(ctx, c.Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, dest)
}

func (c *JSONCache) Set(ctx context.Context, id string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.Key(id), data, ttl).Err()
}

// UpdateFunc receives the current document and returns the replacement.
// Returning nil data leaves the key untouched.
type UpdateFunc func(current []byte) (updated []byte, err error)

// Update runs a compare-and-swap on the key using WATCH/MULTI.
// ErrCacheMiss is returned if the key does not exist; the write re-arms the ttl.
func (c *JSONCache) Update(ctx context.Context, id string, ttl time.Duration, fn UpdateFunc) error {
	key := c.Key(id)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrCacheMiss
			}
			return err
		}
		updated, err := fn(current)
		if err != nil || updated == nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateAttempts; i++ {
		err := c.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

// DeleteAll deletes all the keys in the cache. It can be very slow and should only be used for testing.
func (c *JSONCache) DeleteAll(ctx context.Context) error {
	keys, err := c.client.Keys(ctx, c.keyPrefix+"*").Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
