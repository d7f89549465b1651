package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"storefront-service/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

//go:embed scripts/commit_stock.lua
var commitStockScript string

const gatewayTokenKey = "gateway:token"

type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
	commitScript  *redis.Script
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

	return &Client{
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
		commitScript:  redis.NewScript(commitStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func guestCartKey(guestID string) string {
	return fmt.Sprintf("guestcart:%s", guestID)
}

// GetGuestItem retrieves one guest cart entry, or nil when absent
func (c *Client) GetGuestItem(ctx context.Context, guestID string, productID int64) (*models.GuestCartItem, error) {
	raw, err := c.rdb.HGet(ctx, guestCartKey(guestID), strconv.FormatInt(productID, 10)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read guest cart item: %w", err)
	}

	var item models.GuestCartItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("failed to decode guest cart item: %w", err)
	}
	return &item, nil
}

// PutGuestItem writes one guest cart entry and refreshes the cart TTL
func (c *Client) PutGuestItem(ctx context.Context, guestID string, item *models.GuestCartItem, ttl time.Duration) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode guest cart item: %w", err)
	}

	key := guestCartKey(guestID)
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, strconv.FormatInt(item.ProductID, 10), raw)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write guest cart item: %w", err)
	}
	return nil
}

// RemoveGuestItem deletes one guest cart entry.
// Returns false when the entry did not exist.
func (c *Client) RemoveGuestItem(ctx context.Context, guestID string, productID int64) (bool, error) {
	removed, err := c.rdb.HDel(ctx, guestCartKey(guestID), strconv.FormatInt(productID, 10)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to remove guest cart item: %w", err)
	}
	return removed > 0, nil
}

// GetGuestCart retrieves every entry in a guest cart
func (c *Client) GetGuestCart(ctx context.Context, guestID string) ([]models.GuestCartItem, error) {
	raw, err := c.rdb.HGetAll(ctx, guestCartKey(guestID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read guest cart: %w", err)
	}

	items := make([]models.GuestCartItem, 0, len(raw))
	for _, v := range raw {
		var item models.GuestCartItem
		if err := json.Unmarshal([]byte(v), &item); err != nil {
			return nil, fmt.Errorf("failed to decode guest cart item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// ClearGuestCart drops the whole guest cart
func (c *Client) ClearGuestCart(ctx context.Context, guestID string) error {
	return c.rdb.Del(ctx, guestCartKey(guestID)).Err()
}

// GetGatewayToken reads the shared gateway token fast path.
// Returns empty string when the cache entry is absent or expired.
func (c *Client) GetGatewayToken(ctx context.Context) (string, error) {
	token, err := c.rdb.Get(ctx, gatewayTokenKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// SetGatewayToken caches the gateway token with its remaining lifetime
func (c *Client) SetGatewayToken(ctx context.Context, token string, ttl time.Duration) error {
	return c.rdb.Set(ctx, gatewayTokenKey, token, ttl).Err()
}

// ReserveStock atomically reserves stock using Lua script
// Returns true if reservation successful, false if insufficient stock
func (c *Client) ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	key := fmt.Sprintf("inventory:%d", productID)

	result, err := c.reserveScript.Run(ctx, c.rdb, []string{key}, quantity).Result()
	if err != nil {
		return false, fmt.Errorf("reserve stock script failed: %w", err)
	}

	success, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return success == 1, nil
}

// ReleaseStock atomically releases reserved stock (compensation)
func (c *Client) ReleaseStock(ctx context.Context, productID int64, quantity int) error {
	key := fmt.Sprintf("inventory:%d", productID)

	_, err := c.releaseScript.Run(ctx, c.rdb, []string{key}, quantity).Result()
	if err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}

	return nil
}

// CommitStock atomically commits reserved stock (final deduction)
func (c *Client) CommitStock(ctx context.Context, productID int64, quantity int) error {
	key := fmt.Sprintf("inventory:%d", productID)

	_, err := c.commitScript.Run(ctx, c.rdb, []string{key}, quantity).Result()
	if err != nil {
		return fmt.Errorf("commit stock script failed: %w", err)
	}

	return nil
}

// InitInventory initializes inventory count in Redis
func (c *Client) InitInventory(ctx context.Context, productID int64, available, reserved int) error {
	key := fmt.Sprintf("inventory:%d", productID)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "available", available)
	pipe.HSet(ctx, key, "reserved", reserved)

	_, err := pipe.Exec(ctx)
	return err
}
