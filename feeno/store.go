package feeno

import (
	"context"
	"encoding/json"
	"errors"

	redisadapter "github.com/bogdanuch/feeno-api/adapters/redis"
	"github.com/redis/go-redis/v9"
)

// Store is the ttl bound cache shared with the submission service.
// It is the only source of truth for quotes and bundle state.
type Store interface {
	PutQuote(ctx context.Context, quote *Quote) error
	GetQuote(ctx context.Context, id string) (*Quote, error)
	GetBundle(ctx context.Context, id string) (BundleRecord, error)
	// UpdateBundle applies fn to the stored record, fn returns false to skip the write
	UpdateBundle(ctx context.Context, id string, fn func(*BundleRecord) (bool, error)) (BundleRecord, error)
}

type RedisStore struct {
	quotes  *redisadapter.JSONCache
	bundles *redisadapter.JSONCache
}

// NewRedisStore keeps quotes under their bare id and bundles under BundleKeyPrefix
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		quotes:  redisadapter.NewJSONCache(client, ""),
		bundles: redisadapter.NewJSONCache(client, BundleKeyPrefix),
	}
}

func (s *RedisStore) PutQuote(ctx context.Context, quote *Quote) error {
	return s.quotes.Set(ctx, quote.ID, quote, QuoteTTL)
}

func (s *RedisStore) GetQuote(ctx context.Context, id string) (*Quote, error) {
	var quote Quote
	err := s.quotes.Get(ctx, id, &quote)
	if errors.Is(err, redisadapter.ErrCacheMiss) {
		return nil, ErrQuoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (s *RedisStore) GetBundle(ctx context.Context, id string) (BundleRecord, error) {
	var bundle BundleRecord
	err := s.bundles.Get(ctx, id, &bundle)
	if errors.Is(err, redisadapter.ErrCacheMiss) {
		return BundleRecord{}, ErrBundleNotFound
	}
	return bundle, err
}

func (s *RedisStore) UpdateBundle(ctx context.Context, id string, fn func(*BundleRecord) (bool, error)) (BundleRecord, error) {
	var result BundleRecord
	err := s.bundles.Update(ctx, id, BundleTTL, func(current []byte) ([]byte, error) {
		var bundle BundleRecord
		if err := json.Unmarshal(current, &bundle); err != nil {
			return nil, err
		}
		changed, err := fn(&bundle)
		if err != nil {
			return nil, err
		}
		result = bundle
		if !changed {
			return nil, nil
		}
		return json.Marshal(bundle)
	})
	if errors.Is(err, redisadapter.ErrCacheMiss) {
		return BundleRecord{}, ErrBundleNotFound
	}
	return result, err
}
