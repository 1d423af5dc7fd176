package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/database"
)

const cartKeyPrefix = "cart:"

// CartCache implements repository.CartCache using Redis. Only the lines are
// stored; totals are recomputed on read.
type CartCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartCache creates a Redis-backed cart mirror. Each load and save
// refreshes ttl.
func NewCartCache(client *redis.Client, ttl time.Duration) *CartCache {
	return &CartCache{client: client, ttl: ttl}
}

// Load returns the mirrored cart, or an empty cart if the key is absent.
func (c *CartCache) Load(ctx context.Context, shopperSessionID string) (snap domain.CartSnapshot, err error) {
	ctx, end := database.TraceOp(ctx, "redis", "LoadCart")
	defer func() { end(err) }()

	data, err := c.client.GetEx(ctx, cartKeyPrefix+shopperSessionID, c.ttl).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.CartSnapshot{Lines: []domain.CartLine{}}, nil
		}
		return domain.CartSnapshot{}, fmt.Errorf("redis get cart: %w", err)
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.CartSnapshot{}, fmt.Errorf("unmarshal cart: %w", err)
	}
	if snap.Lines == nil {
		snap.Lines = []domain.CartLine{}
	}
	return snap, nil
}

// Save overwrites the mirrored cart.
func (c *CartCache) Save(ctx context.Context, shopperSessionID string, snap domain.CartSnapshot) (err error) {
	ctx, end := database.TraceOp(ctx, "redis", "SaveCart")
	defer func() { end(err) }()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := c.client.Set(ctx, cartKeyPrefix+shopperSessionID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

// Delete removes the mirrored cart.
func (c *CartCache) Delete(ctx context.Context, shopperSessionID string) (err error) {
	ctx, end := database.TraceOp(ctx, "redis", "DeleteCart")
	defer func() { end(err) }()

	if err := c.client.Del(ctx, cartKeyPrefix+shopperSessionID).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}
	return nil
}
