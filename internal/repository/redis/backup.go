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

const (
	backupKeyPrefix = "cart_backup:"

	// DefaultBackupTTL bounds how long a shopper can stay on the provider's
	// page and still have their order recorded on return.
	DefaultBackupTTL = 7 * 24 * time.Hour
)

// BackupCache implements repository.BackupCache using Redis. A session has at
// most one backup; starting another checkout overwrites it.
type BackupCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBackupCache creates a Redis-backed cart backup store.
func NewBackupCache(client *redis.Client, ttl time.Duration) *BackupCache {
	if ttl <= 0 {
		ttl = DefaultBackupTTL
	}
	return &BackupCache{client: client, ttl: ttl}
}

// Get returns the backup, or (nil, nil) if none exists.
func (c *BackupCache) Get(ctx context.Context, shopperSessionID string) (backup *domain.CartBackup, err error) {
	ctx, end := database.TraceOp(ctx, "redis", "GetCartBackup")
	defer func() { end(err) }()

	data, err := c.client.Get(ctx, backupKeyPrefix+shopperSessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get cart backup: %w", err)
	}

	var b domain.CartBackup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal cart backup: %w", err)
	}
	if b.Snapshot.Lines == nil {
		b.Snapshot.Lines = []domain.CartLine{}
	}
	return &b, nil
}

// Put overwrites the backup for the session.
func (c *BackupCache) Put(ctx context.Context, shopperSessionID string, backup *domain.CartBackup) (err error) {
	ctx, end := database.TraceOp(ctx, "redis", "PutCartBackup")
	defer func() { end(err) }()

	data, err := json.Marshal(backup)
	if err != nil {
		return fmt.Errorf("marshal cart backup: %w", err)
	}
	if err := c.client.Set(ctx, backupKeyPrefix+shopperSessionID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart backup: %w", err)
	}
	return nil
}

// Delete removes the backup. A missing key is not an error.
func (c *BackupCache) Delete(ctx context.Context, shopperSessionID string) (err error) {
	ctx, end := database.TraceOp(ctx, "redis", "DeleteCartBackup")
	defer func() { end(err) }()

	if err := c.client.Del(ctx, backupKeyPrefix+shopperSessionID).Err(); err != nil {
		return fmt.Errorf("redis del cart backup: %w", err)
	}
	return nil
}
