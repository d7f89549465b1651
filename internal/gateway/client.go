package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusCodeOK is the gateway's documented success code. Every other
// code is a failure.
const StatusCodeOK = "0000"

// Error is a definite rejection from the gateway, carrying its status
// code and human-readable message. Transport failures (timeouts,
// connection errors) are returned as plain wrapped errors instead, so
// callers can tell "gateway said no" from "gateway unreachable".
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

// Config carries credentials and endpoints for the payment gateway
type Config struct {
	BaseURL   string
	AppKey    string
	AppSecret string
	Username  string
	Password  string
	Timeout   time.Duration
}

// Client talks to the mobile payment gateway over HTTPS
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a gateway client with a bounded request timeout
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// TokenResult is the gateway's answer to a token grant
type TokenResult struct {
	Token     string `json:"id_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

// CreatePaymentResult is the gateway's answer to a session creation
type CreatePaymentResult struct {
	PaymentID   string `json:"payment_id"`
	RedirectURL string `json:"redirect_url"`
}

// ExecutePaymentResult is the gateway's answer to a payment confirm
type ExecutePaymentResult struct {
	PaymentID         string `json:"payment_id"`
	TrxID             string `json:"trx_id"`
	TransactionStatus string `json:"transaction_status"`
}

type statusEnvelope struct {
	StatusCode    string `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

// GrantToken requests a fresh authentication token. The token expires
// after roughly one hour on the gateway side.
func (c *Client) GrantToken(ctx context.Context) (*TokenResult, error) {
	body := map[string]string{
		"app_key":    c.cfg.AppKey,
		"app_secret": c.cfg.AppSecret,
	}

	headers := map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	}

	var result struct {
		statusEnvelope
		TokenResult
	}
	if err := c.post(ctx, "/checkout/token/grant", headers, body, &result); err != nil {
		return nil, err
	}
	if result.StatusCode != StatusCodeOK {
		return nil, &Error{Code: result.StatusCode, Message: result.StatusMessage}
	}
	if result.Token == "" {
		return nil, fmt.Errorf("gateway returned empty token")
	}
	return &result.TokenResult, nil
}

// CreatePayment opens a payment session. On success the returned
// redirect URL is where the customer completes the payment, and the
// payment ID is the gateway's handle for the later execute call.
func (c *Client) CreatePayment(ctx context.Context, token string, amount int64, currency, merchantInvoiceNumber, callbackURL, payerReference string) (*CreatePaymentResult, error) {
	body := map[string]string{
		"amount":                  formatAmount(amount),
		"currency":                currency,
		"intent":                  "sale",
		"merchant_invoice_number": merchantInvoiceNumber,
		"callback_url":            callbackURL,
		"payer_reference":         payerReference,
	}

	var result struct {
		statusEnvelope
		CreatePaymentResult
	}
	if err := c.post(ctx, "/checkout/payment/create", c.authHeaders(token), body, &result); err != nil {
		return nil, err
	}
	if result.StatusCode != StatusCodeOK {
		return nil, &Error{Code: result.StatusCode, Message: result.StatusMessage}
	}
	if result.RedirectURL == "" {
		return nil, fmt.Errorf("gateway returned empty redirect URL")
	}
	return &result.CreatePaymentResult, nil
}

// ExecutePayment confirms a session after the customer authorized it
func (c *Client) ExecutePayment(ctx context.Context, token, paymentID string) (*ExecutePaymentResult, error) {
	body := map[string]string{
		"payment_id": paymentID,
	}

	var result struct {
		statusEnvelope
		ExecutePaymentResult
	}
	if err := c.post(ctx, "/checkout/payment/execute", c.authHeaders(token), body, &result); err != nil {
		return nil, err
	}
	if result.StatusCode != StatusCodeOK {
		return nil, &Error{Code: result.StatusCode, Message: result.StatusMessage}
	}
	return &result.ExecutePaymentResult, nil
}

func (c *Client) authHeaders(token string) map[string]string {
	return map[string]string{
		"authorization": token,
		"x-app-key":     c.cfg.AppKey,
	}
}

func (c *Client) post(ctx context.Context, path string, headers map[string]string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway HTTP %d: %s", resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse gateway response: %w", err)
	}
	return nil
}

// formatAmount renders minor units as the decimal string the gateway
// expects, e.g. 25050 -> "250.50".
func formatAmount(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}
