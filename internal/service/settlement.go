package service

import (
	"context"
	"fmt"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// EventLedger records which broker events have been acted on
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// StockSettler finalizes reservations in both inventory layers
type StockSettler interface {
	CommitStock(ctx context.Context, productID int64, quantity int) error
	ReleaseStock(ctx context.Context, productID int64, quantity int) error
}

// SettlementHandler settles reserved stock once a payment reaches a
// terminal state: committed on success, released on failure. Events
// arrive at least once from the broker, so each is checked against the
// processed-events table before acting.
type SettlementHandler struct {
	ledger    EventLedger
	inventory StockSettler
	logger    *zap.Logger
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(ledger EventLedger, inventory StockSettler) *SettlementHandler {
	return &SettlementHandler{
		ledger:    ledger,
		inventory: inventory,
		logger:    util.GetLogger(),
	}
}

// HandlePaymentCompleted commits the reserved stock for a paid order
func (sh *SettlementHandler) HandlePaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	ctx, span := util.StartSpan(ctx, "SettlementHandler.HandlePaymentCompleted")
	defer span.End()

	processed, err := sh.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		sh.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	sh.logger.Info("Settling paid order",
		zap.Int64("order_id", event.OrderID),
		zap.String("gateway_trx_id", event.GatewayTxID))

	for _, item := range event.Items {
		if err := sh.inventory.CommitStock(ctx, item.ProductID, item.Quantity); err != nil {
			sh.logger.Error("Failed to commit stock",
				zap.Int64("order_id", event.OrderID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
	}

	if err := sh.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		sh.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	return nil
}

// HandlePaymentFailed releases the reserved stock of a failed payment
func (sh *SettlementHandler) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "SettlementHandler.HandlePaymentFailed")
	defer span.End()

	processed, err := sh.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		sh.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	sh.logger.Warn("Releasing stock for failed payment",
		zap.Int64("order_id", event.OrderID),
		zap.String("reason", event.Reason))

	for _, item := range event.Items {
		if err := sh.inventory.ReleaseStock(ctx, item.ProductID, item.Quantity); err != nil {
			sh.logger.Error("Failed to release stock",
				zap.Int64("order_id", event.OrderID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
	}

	if err := sh.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		sh.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	return nil
}
