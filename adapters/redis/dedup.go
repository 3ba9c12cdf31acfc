package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeliveryDeduplicator remembers event keys for a while so redelivered bus messages are seen once
type DeliveryDeduplicator struct {
	client         *redis.Client
	expireDuration time.Duration
	keyPrefix      string
}

func NewDeliveryDeduplicator(client *redis.Client, expireDuration time.Duration, keyPrefix string) *DeliveryDeduplicator {
	return &DeliveryDeduplicator{
		client:         client,
		expireDuration: expireDuration,
		keyPrefix:      keyPrefix,
	}
}

// FirstSeen reports whether the key is seen for the first time within the expire window
func (d *DeliveryDeduplicator) FirstSeen(ctx context.Context, key string) (bool, error) {
	count, err := d.client.Incr(ctx, d.keyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		// a key without expiry would suppress the event forever
		if err := d.client.Expire(ctx, d.keyPrefix+key, d.expireDuration).Err(); err != nil {
			return true, err
		}
	}
	return count == 1, nil
}
