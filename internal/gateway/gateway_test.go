package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureSucceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "2000", r.PostFormValue("amount"))
		assert.Equal(t, "eur", r.PostFormValue("currency"))
		assert.Equal(t, "pm_card_visa", r.PostFormValue("payment_method"))
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "pi_123",
			"status": "succeeded",
			"amount": 2000,
			"charges": {"data": [{"receipt_url": "https://pay.example.com/receipts/r1"}]}
		}`))
	}))
	defer srv.Close()

	gw := NewStripeGateway(srv.URL, "sk_test_123", time.Second)
	result, err := gw.Capture(context.Background(), &CaptureRequest{
		Amount:          2000,
		Currency:        "eur",
		PaymentMethodID: "pm_card_visa",
		IdempotencyKey:  "key-1",
	})
	require.NoError(t, err)

	assert.True(t, result.Succeeded())
	assert.Equal(t, "pi_123", result.TransactionID)
	assert.Equal(t, int64(2000), result.Amount)
	assert.Equal(t, "https://pay.example.com/receipts/r1", result.ReceiptURL)
}

func TestCaptureDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"id": "pi_456", "error": {"message": "Your card was declined."}}`))
	}))
	defer srv.Close()

	gw := NewStripeGateway(srv.URL, "sk_test_123", time.Second)
	result, err := gw.Capture(context.Background(), &CaptureRequest{
		Amount:          500,
		Currency:        "eur",
		PaymentMethodID: "pm_card_declined",
	})
	require.NoError(t, err)

	assert.False(t, result.Succeeded())
	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, "Your card was declined.", result.FailureMessage)
}

func TestCaptureNonSuccessStatusInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "pi_789", "status": "requires_action", "amount": 500}`))
	}))
	defer srv.Close()

	gw := NewStripeGateway(srv.URL, "sk_test_123", time.Second)
	result, err := gw.Capture(context.Background(), &CaptureRequest{
		Amount:          500,
		Currency:        "eur",
		PaymentMethodID: "pm_card_3ds",
	})
	require.NoError(t, err)
	assert.False(t, result.Succeeded())
}

func TestCaptureProviderErrorIsIndeterminate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gw := NewStripeGateway(srv.URL, "sk_test_123", time.Second)
	_, err := gw.Capture(context.Background(), &CaptureRequest{
		Amount:          500,
		Currency:        "eur",
		PaymentMethodID: "pm_card_visa",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIndeterminate))
}

func TestCaptureTimeoutIsIndeterminate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	gw := NewStripeGateway(srv.URL, "sk_test_123", 20*time.Millisecond)
	_, err := gw.Capture(context.Background(), &CaptureRequest{
		Amount:          500,
		Currency:        "eur",
		PaymentMethodID: "pm_card_visa",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIndeterminate))
}
