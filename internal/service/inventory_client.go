package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/redisclient"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// InventoryClient handles stock reservation with a Redis fast path and
// a transactional database fallback.
type InventoryClient struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client
func NewInventoryClient(store *store.Store, redis *redisclient.Client) *InventoryClient {
	return &InventoryClient{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// ReserveStock reserves stock for a product (fast path via Redis)
func (ic *InventoryClient) ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	ctx, span := util.StartSpan(ctx, "InventoryClient.ReserveStock")
	defer span.End()

	success, err := ic.redis.ReserveStock(ctx, productID, quantity)
	if err != nil {
		ic.logger.Warn("Redis reservation failed, falling back to DB",
			zap.Int64("product_id", productID),
			zap.Error(err))

		return ic.reserveStockDB(ctx, productID, quantity)
	}

	if !success {
		return false, nil
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := ic.store.ReserveStockTx(ctx, productID, quantity); err != nil {
			ic.logger.Error("Failed to sync reservation to DB",
				zap.Int64("product_id", productID),
				zap.Error(err))
		}
	}()

	return true, nil
}

// reserveStockDB reserves stock using database transaction (fallback)
func (ic *InventoryClient) reserveStockDB(ctx context.Context, productID int64, quantity int) (bool, error) {
	err := ic.store.ReserveStockTx(ctx, productID, quantity)
	if err != nil {
		if strings.Contains(err.Error(), "insufficient stock") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReleaseStock releases reserved stock (compensation)
func (ic *InventoryClient) ReleaseStock(ctx context.Context, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "InventoryClient.ReleaseStock")
	defer span.End()

	if err := ic.redis.ReleaseStock(ctx, productID, quantity); err != nil {
		ic.logger.Error("Failed to release stock in Redis",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}

	return ic.store.ReleaseStock(ctx, productID, quantity)
}

// CommitStock commits reserved stock (final deduction after payment)
func (ic *InventoryClient) CommitStock(ctx context.Context, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "InventoryClient.CommitStock")
	defer span.End()

	if err := ic.redis.CommitStock(ctx, productID, quantity); err != nil {
		ic.logger.Error("Failed to commit stock in Redis",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}

	return ic.store.CommitStock(ctx, productID, quantity)
}

// SyncInventoryToRedis seeds the Redis fast path from the database
func (ic *InventoryClient) SyncInventoryToRedis(ctx context.Context) error {
	ic.logger.Info("Starting inventory sync to Redis")

	rows, err := ic.store.ListInventory(ctx)
	if err != nil {
		return fmt.Errorf("failed to list inventory: %w", err)
	}

	for _, inv := range rows {
		if err := ic.redis.InitInventory(ctx, inv.ProductID, inv.Available, inv.Reserved); err != nil {
			ic.logger.Error("Failed to init Redis inventory",
				zap.Int64("product_id", inv.ProductID),
				zap.Error(err))
		}
	}

	ic.logger.Info("Inventory sync completed", zap.Int("count", len(rows)))
	return nil
}
