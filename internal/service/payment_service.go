package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/gateway"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentOrderStore is the order surface the orchestrator mutates
type PaymentOrderStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByTransactionID(ctx context.Context, transactionID string) (*models.Order, error)
	AttachPaymentSession(ctx context.Context, orderID int64, transactionID, gatewayID, redirectURL, channel string, amount int64) error
	MarkPaymentPaid(ctx context.Context, orderID int64) (bool, error)
	MarkPaymentFailed(ctx context.Context, orderID int64) (bool, error)
}

// GatewayAPI is the payment gateway surface the orchestrator calls
type GatewayAPI interface {
	CreatePayment(ctx context.Context, token string, amount int64, currency, merchantInvoiceNumber, callbackURL, payerReference string) (*gateway.CreatePaymentResult, error)
	ExecutePayment(ctx context.Context, token, paymentID string) (*gateway.ExecutePaymentResult, error)
}

// TokenSource serves valid gateway auth tokens
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// PaymentConfig carries the merchant-side session parameters
type PaymentConfig struct {
	Currency    string
	CallbackURL string
	Channel     string
}

// PaymentService bridges orders to the payment gateway and reconciles
// asynchronous callback outcomes.
type PaymentService struct {
	orders    PaymentOrderStore
	gateway   GatewayAPI
	tokens    TokenSource
	publisher EventPublisher
	cfg       PaymentConfig
	logger    *zap.Logger
}

// NewPaymentService creates a new payment orchestrator
func NewPaymentService(orders PaymentOrderStore, gw GatewayAPI, tokens TokenSource, publisher EventPublisher, cfg PaymentConfig) *PaymentService {
	return &PaymentService{
		orders:    orders,
		gateway:   gw,
		tokens:    tokens,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// InitiatePaymentRequest asks for a gateway session
type InitiatePaymentRequest struct {
	UserID  string `json:"user_id,omitempty"`
	OrderID *int64 `json:"order_id,omitempty"`
	Amount  int64  `json:"amount"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Purpose string `json:"purpose,omitempty"`
}

// InitiatePaymentResponse carries the redirect and correlation id
type InitiatePaymentResponse struct {
	RedirectURL   string `json:"redirect_url"`
	TransactionID string `json:"correlation_id"`
}

// CallbackRequest is the gateway's server-to-server notification
type CallbackRequest struct {
	PaymentID             string `json:"paymentID"`
	Status                string `json:"status"`
	TransactionStatus     string `json:"transactionStatus"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
}

// CallbackResult is what the callback handler reports back to the
// gateway (never shown to the end user).
type CallbackResult struct {
	OrderID       int64  `json:"order_id"`
	PaymentStatus string `json:"payment_status"`
	Duplicate     bool   `json:"duplicate,omitempty"`
	Message       string `json:"message,omitempty"`
}

// InitiatePayment opens a gateway session for an order. The submitted
// amount must equal the order's stored total exactly; a tampered or
// stale client is rejected before any gateway traffic happens.
func (ps *PaymentService) InitiatePayment(ctx context.Context, req *InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.InitiatePayment")
	defer span.End()

	if req.Amount <= 0 {
		return nil, &ValidationError{Field: "amount"}
	}
	if req.Phone == "" {
		return nil, &ValidationError{Field: "phone"}
	}

	var order *models.Order
	if req.OrderID != nil {
		var err error
		order, err = ps.orders.GetOrderByID(ctx, *req.OrderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrOrderNotFound
			}
			return nil, err
		}
		if order.Total != req.Amount {
			return nil, fmt.Errorf("order %d: expected %d, got %d: %w",
				order.ID, order.Total, req.Amount, ErrAmountMismatch)
		}
		if order.PaymentStatus != models.PaymentStatusPending {
			return nil, ErrOrderNotPayable
		}
	}

	token, err := ps.tokens.Token(ctx)
	if err != nil {
		// No session exists yet; the order stays pending and the
		// customer may retry.
		return nil, fmt.Errorf("payment initiation failed: %w", err)
	}

	transactionID := newTransactionID(req.OrderID)

	start := time.Now()
	result, err := ps.gateway.CreatePayment(ctx, token, req.Amount, ps.cfg.Currency, transactionID, ps.cfg.CallbackURL, req.Phone)
	util.GatewayRequestLatency.WithLabelValues("create").Observe(time.Since(start).Seconds())
	if err != nil {
		var gErr *gateway.Error
		if errors.As(err, &gErr) && order != nil {
			// The gateway rejected the session outright; surface its
			// message and park the order as failed.
			if _, markErr := ps.orders.MarkPaymentFailed(ctx, order.ID); markErr != nil {
				ps.logger.Error("Failed to mark payment failed", zap.Int64("order_id", order.ID), zap.Error(markErr))
			}
			util.PaymentsFailedTotal.WithLabelValues("create").Inc()
			ps.publishFailed(ctx, order, transactionID, gErr.Message)
			return nil, gErr
		}
		// Transport failure: no session was created, the order stays
		// pending and initiation may be retried.
		return nil, fmt.Errorf("payment initiation failed: %w", err)
	}

	if order != nil {
		if err := ps.orders.AttachPaymentSession(ctx, order.ID, transactionID, result.PaymentID, result.RedirectURL, ps.cfg.Channel, req.Amount); err != nil {
			ps.logger.Error("Failed to record payment session",
				zap.Int64("order_id", order.ID),
				zap.String("transaction_id", transactionID),
				zap.String("gateway_payment_id", result.PaymentID),
				zap.Error(err))
			return nil, fmt.Errorf("failed to record payment session: %w", err)
		}
	}

	util.PaymentsInitiatedTotal.Inc()
	ps.logger.Info("Payment session created",
		zap.String("transaction_id", transactionID),
		zap.String("gateway_payment_id", result.PaymentID),
		zap.Int64("amount", req.Amount))

	return &InitiatePaymentResponse{
		RedirectURL:   result.RedirectURL,
		TransactionID: transactionID,
	}, nil
}

// HandleCallback reconciles a gateway notification with the order it
// belongs to. The order is located strictly by the merchant
// transaction id; an unknown id mutates nothing. The terminal
// transition only fires while the payment is still pending, so
// redelivered callbacks are acknowledged without re-executing the
// gateway confirm.
func (ps *PaymentService) HandleCallback(ctx context.Context, req *CallbackRequest) (*CallbackResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleCallback")
	defer span.End()

	if req.MerchantInvoiceNumber == "" {
		return nil, &ValidationError{Field: "merchantInvoiceNumber"}
	}

	order, err := ps.orders.GetOrderByTransactionID(ctx, req.MerchantInvoiceNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if order.PaymentStatus != models.PaymentStatusPending {
		util.PaymentCallbackDuplicatesTotal.Inc()
		ps.logger.Info("Duplicate payment callback absorbed",
			zap.Int64("order_id", order.ID),
			zap.String("payment_status", order.PaymentStatus))
		return &CallbackResult{
			OrderID:       order.ID,
			PaymentStatus: order.PaymentStatus,
			Duplicate:     true,
		}, nil
	}

	if req.Status != "" && req.Status != "success" {
		return ps.failPayment(ctx, order, fmt.Sprintf("gateway reported status %q", req.Status))
	}

	token, err := ps.tokens.Token(ctx)
	if err != nil {
		// Leave the order pending; the gateway retries the callback.
		return nil, fmt.Errorf("callback processing failed: %w", err)
	}

	paymentID := order.PaymentGatewayID
	if paymentID == "" {
		paymentID = req.PaymentID
	}

	start := time.Now()
	result, err := ps.gateway.ExecutePayment(ctx, token, paymentID)
	util.GatewayRequestLatency.WithLabelValues("execute").Observe(time.Since(start).Seconds())
	if err != nil {
		var gErr *gateway.Error
		if errors.As(err, &gErr) {
			return ps.failPayment(ctx, order, gErr.Message)
		}
		return nil, fmt.Errorf("callback processing failed: %w", err)
	}

	applied, err := ps.orders.MarkPaymentPaid(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}
	if !applied {
		// A concurrent delivery won the race after our earlier check.
		util.PaymentCallbackDuplicatesTotal.Inc()
		return &CallbackResult{OrderID: order.ID, PaymentStatus: models.PaymentStatusPaid, Duplicate: true}, nil
	}

	util.PaymentsCompletedTotal.Inc()
	ps.logger.Info("Payment confirmed",
		zap.Int64("order_id", order.ID),
		zap.String("transaction_id", order.PaymentTransactionID),
		zap.String("gateway_trx_id", result.TrxID))

	event := &models.PaymentCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentCompleted,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		TransactionID: order.PaymentTransactionID,
		GatewayTxID:   result.TrxID,
		Amount:        order.PaymentAmount,
		Items:         order.CartItems,
	}
	if err := ps.publisher.PublishPaymentCompleted(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentCompleted event", zap.Error(err))
	}

	return &CallbackResult{OrderID: order.ID, PaymentStatus: models.PaymentStatusPaid}, nil
}

func (ps *PaymentService) failPayment(ctx context.Context, order *models.Order, reason string) (*CallbackResult, error) {
	applied, err := ps.orders.MarkPaymentFailed(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to record payment failure: %w", err)
	}
	if !applied {
		util.PaymentCallbackDuplicatesTotal.Inc()
		return &CallbackResult{OrderID: order.ID, PaymentStatus: order.PaymentStatus, Duplicate: true}, nil
	}

	util.PaymentsFailedTotal.WithLabelValues("execute").Inc()
	ps.logger.Warn("Payment failed",
		zap.Int64("order_id", order.ID),
		zap.String("reason", reason))

	ps.publishFailed(ctx, order, order.PaymentTransactionID, reason)
	return &CallbackResult{OrderID: order.ID, PaymentStatus: models.PaymentStatusFailed, Message: reason}, nil
}

func (ps *PaymentService) publishFailed(ctx context.Context, order *models.Order, transactionID, reason string) {
	event := &models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentFailed,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		TransactionID: transactionID,
		Reason:        reason,
		Items:         order.CartItems,
	}
	if err := ps.publisher.PublishPaymentFailed(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
	}
}

func newTransactionID(orderID *int64) string {
	suffix := uuid.New().String()[:8]
	if orderID != nil {
		return fmt.Sprintf("INV-%d-%s", *orderID, suffix)
	}
	return fmt.Sprintf("INV-%s", suffix)
}
