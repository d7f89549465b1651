package service

import (
	"context"
	"testing"

	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEventLedger struct {
	processed map[string]string
}

func newFakeEventLedger() *fakeEventLedger {
	return &fakeEventLedger{processed: make(map[string]string)}
}

func (f *fakeEventLedger) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	_, ok := f.processed[eventID]
	return ok, nil
}

func (f *fakeEventLedger) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	f.processed[eventID] = eventType
	return nil
}

type fakeStockSettler struct {
	committed map[int64]int
	released  map[int64]int
}

func newFakeStockSettler() *fakeStockSettler {
	return &fakeStockSettler{committed: make(map[int64]int), released: make(map[int64]int)}
}

func (f *fakeStockSettler) CommitStock(_ context.Context, productID int64, quantity int) error {
	f.committed[productID] += quantity
	return nil
}

func (f *fakeStockSettler) ReleaseStock(_ context.Context, productID int64, quantity int) error {
	f.released[productID] += quantity
	return nil
}

func TestHandlePaymentCompletedCommitsStockOnce(t *testing.T) {
	ledger := newFakeEventLedger()
	settler := newFakeStockSettler()
	sh := NewSettlementHandler(ledger, settler)

	event := &models.PaymentCompletedEvent{
		BaseEvent: models.BaseEvent{EventID: "ev-1", EventType: models.EventTypePaymentCompleted},
		OrderID:   1,
		Items: models.OrderItemList{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
	}

	require.NoError(t, sh.HandlePaymentCompleted(context.Background(), event))
	assert.Equal(t, 2, settler.committed[1])
	assert.Equal(t, 1, settler.committed[2])

	// a redelivered event is absorbed by the ledger
	require.NoError(t, sh.HandlePaymentCompleted(context.Background(), event))
	assert.Equal(t, 2, settler.committed[1])
}

func TestHandlePaymentFailedReleasesStockOnce(t *testing.T) {
	ledger := newFakeEventLedger()
	settler := newFakeStockSettler()
	sh := NewSettlementHandler(ledger, settler)

	event := &models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{EventID: "ev-2", EventType: models.EventTypePaymentFailed},
		OrderID:   1,
		Reason:    "insufficient balance",
		Items:     models.OrderItemList{{ProductID: 1, Quantity: 3}},
	}

	require.NoError(t, sh.HandlePaymentFailed(context.Background(), event))
	require.NoError(t, sh.HandlePaymentFailed(context.Background(), event))

	assert.Equal(t, 3, settler.released[1])
	assert.Empty(t, settler.committed)
}
