package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:   srv.URL,
		AppKey:    "app-key",
		AppSecret: "app-secret",
		Username:  "merchant",
		Password:  "hunter2",
		Timeout:   2 * time.Second,
	})
}

func TestGrantToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/token/grant", r.URL.Path)
		assert.Equal(t, "merchant", r.Header.Get("username"))
		assert.Equal(t, "hunter2", r.Header.Get("password"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "app-key", body["app_key"])
		assert.Equal(t, "app-secret", body["app_secret"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status_code": "0000",
			"id_token":    "tok-abc",
			"token_type":  "Bearer",
			"expires_in":  3600,
		})
	})

	result, err := client.GrantToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", result.Token)
	assert.Equal(t, 3600, result.ExpiresIn)
}

func TestCreatePaymentSendsDecimalAmount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/payment/create", r.URL.Path)
		assert.Equal(t, "tok-abc", r.Header.Get("authorization"))
		assert.Equal(t, "app-key", r.Header.Get("x-app-key"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "250.50", body["amount"])
		assert.Equal(t, "sale", body["intent"])
		assert.Equal(t, "INV-1-abcd1234", body["merchant_invoice_number"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status_code":  "0000",
			"payment_id":   "TR001",
			"redirect_url": "https://gateway.example.com/pay/TR001",
		})
	})

	result, err := client.CreatePayment(context.Background(), "tok-abc", 25050, "BDT",
		"INV-1-abcd1234", "http://localhost/callback", "01711111111")
	require.NoError(t, err)
	assert.Equal(t, "TR001", result.PaymentID)
	assert.Equal(t, "https://gateway.example.com/pay/TR001", result.RedirectURL)
}

func TestCreatePaymentRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status_code":    "2023",
			"status_message": "insufficient balance",
		})
	})

	_, err := client.CreatePayment(context.Background(), "tok-abc", 100, "BDT",
		"INV-x", "http://localhost/callback", "01711111111")
	var gErr *Error
	require.ErrorAs(t, err, &gErr)
	assert.Equal(t, "2023", gErr.Code)
	assert.Equal(t, "insufficient balance", gErr.Message)
}

func TestExecutePayment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/payment/execute", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "TR001", body["payment_id"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status_code":        "0000",
			"payment_id":         "TR001",
			"trx_id":             "9HX",
			"transaction_status": "Completed",
		})
	})

	result, err := client.ExecutePayment(context.Background(), "tok-abc", "TR001")
	require.NoError(t, err)
	assert.Equal(t, "9HX", result.TrxID)
	assert.Equal(t, "Completed", result.TransactionStatus)
}

func TestHTTPErrorIsNotGatewayError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.ExecutePayment(context.Background(), "tok-abc", "TR001")
	require.Error(t, err)
	var gErr *Error
	assert.False(t, errors.As(err, &gErr))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "250.50", formatAmount(25050))
	assert.Equal(t, "0.05", formatAmount(5))
	assert.Equal(t, "100.00", formatAmount(10000))
}
