package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/core/domain"
)

const catalogKey = "catalog:products"

// claimScript swaps in a new digest unless the key already holds it.
var claimScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return 0
end
if tonumber(ARGV[2]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// releaseScript deletes a key only while it still carries the digest the
// caller claimed, so a newer delivery's claim is left alone.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) GetCatalog(ctx context.Context) ([]domain.Product, bool, error) {
	data, err := r.client.Get(ctx, catalogKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, false, fmt.Errorf("decode cached catalog: %w", err)
	}
	return products, true, nil
}

func (r *RedisAdapter) SetCatalog(ctx context.Context, products []domain.Product, ttl time.Duration) error {
	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return r.client.Set(ctx, catalogKey, data, ttl).Err()
}

func (r *RedisAdapter) ClaimDelivery(ctx context.Context, key, digest string, ttl time.Duration) (bool, error) {
	n, err := claimScript.Run(ctx, r.client, []string{key}, digest, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (r *RedisAdapter) ReleaseDelivery(ctx context.Context, key, digest string) error {
	return releaseScript.Run(ctx, r.client, []string{key}, digest).Err()
}
