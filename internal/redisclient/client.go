package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"canteen-service/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

const (
	catalogKey   = "catalog:products"
	lockPrefix   = "lock:"
	releaseAfter = 2 * time.Second
)

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb), nil
}

func newClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// Ping checks that Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetProducts returns the cached catalog listing. ok is false on a cache miss.
func (c *Client) GetProducts(ctx context.Context) ([]models.Product, bool, error) {
	raw, err := c.rdb.Get(ctx, catalogKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("catalog cache get failed: %w", err)
	}

	products, err := decodeProducts(raw)
	if err != nil {
		// A corrupt entry is treated as a miss and overwritten by the next SetProducts.
		return nil, false, nil
	}
	return products, true, nil
}

// SetProducts caches the catalog listing for ttl
func (c *Client) SetProducts(ctx context.Context, products []models.Product, ttl time.Duration) error {
	raw, err := encodeProducts(products)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, catalogKey, raw, ttl).Err(); err != nil {
		return fmt.Errorf("catalog cache set failed: %w", err)
	}
	return nil
}

// Invalidate drops the cached catalog listing
func (c *Client) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, catalogKey).Err()
}

// Acquire takes the lock on key for at most ttl. The returned release func
// only deletes the lock while this caller still owns it.
func (c *Client) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lockKey := lockPrefix + key
	token := uuid.New().String()

	ok, err := c.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock failed: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The request context may already be done; release on a fresh one.
		rctx, cancel := context.WithTimeout(context.Background(), releaseAfter)
		defer cancel()
		_ = c.ReleaseLock(rctx, key, token)
	}
	return release, true, nil
}

// ReleaseLock deletes the lock on key if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, key, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{lockPrefix + key}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

func encodeProducts(products []models.Product) ([]byte, error) {
	if products == nil {
		products = []models.Product{}
	}
	raw, err := json.Marshal(products)
	if err != nil {
		return nil, fmt.Errorf("failed to encode catalog: %w", err)
	}
	return raw, nil
}

func decodeProducts(raw []byte) ([]models.Product, error) {
	var products []models.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return products, nil
}
