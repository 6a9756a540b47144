// Package gateway wraps the external payment provider's charge API behind a
// small interface the checkout orchestrator owns. A declined capture is a
// normal result; only transport faults and unknown outcomes are errors.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrIndeterminate marks a capture whose outcome is unknown: the request may
// have reached the provider, so the charge cannot be assumed failed. Callers
// must surface it for reconciliation rather than retry blindly.
var ErrIndeterminate = errors.New("capture outcome unknown")

// StatusSucceeded is the provider status for a successful capture.
const StatusSucceeded = "succeeded"

// CaptureRequest describes one charge attempt.
type CaptureRequest struct {
	Amount          int64  // minor currency units
	Currency        string
	PaymentMethodID string
	IdempotencyKey  string
}

// CaptureResult is the provider's answer for a completed call, success or not.
type CaptureResult struct {
	Status         string
	TransactionID  string
	Amount         int64
	ReceiptURL     string
	FailureMessage string
}

// Succeeded reports whether the capture went through.
func (r *CaptureResult) Succeeded() bool { return r.Status == StatusSucceeded }

// PaymentGateway is the boundary the checkout orchestrator calls.
type PaymentGateway interface {
	Capture(ctx context.Context, req *CaptureRequest) (*CaptureResult, error)
}

// StripeGateway talks to the Stripe-shaped payment intents API over HTTP.
type StripeGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewStripeGateway creates a gateway client with an explicit per-call timeout.
func NewStripeGateway(baseURL, secretKey string, timeout time.Duration) *StripeGateway {
	return &StripeGateway{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
	}
}

type paymentIntentResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
	Charges struct {
		Data []struct {
			ReceiptURL string `json:"receipt_url"`
		} `json:"data"`
	} `json:"charges"`
	LastPaymentError struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Capture confirms a payment intent for the given amount and method.
func (g *StripeGateway) Capture(ctx context.Context, req *CaptureRequest) (*CaptureResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", req.Currency)
	form.Set("payment_method", req.PaymentMethodID)
	form.Set("confirm", "true")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build capture request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		// The request may have reached the provider before the fault.
		return nil, errors.Wrap(ErrIndeterminate, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(ErrIndeterminate, "failed to read capture response")
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, errors.Wrapf(ErrIndeterminate, "provider returned %d", resp.StatusCode)
	}

	var intent paymentIntentResponse
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, errors.Wrap(err, "failed to decode capture response")
	}

	if resp.StatusCode == http.StatusPaymentRequired {
		// Declined: a definitive non-success outcome, not an error.
		msg := intent.Error.Message
		if msg == "" {
			msg = intent.LastPaymentError.Message
		}
		return &CaptureResult{
			Status:         "failed",
			TransactionID:  intent.ID,
			Amount:         req.Amount,
			FailureMessage: msg,
		}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected provider response %d: %s", resp.StatusCode, intent.Error.Message)
	}

	result := &CaptureResult{
		Status:         intent.Status,
		TransactionID:  intent.ID,
		Amount:         intent.Amount,
		FailureMessage: intent.LastPaymentError.Message,
	}
	if len(intent.Charges.Data) > 0 {
		result.ReceiptURL = intent.Charges.Data[0].ReceiptURL
	}
	return result, nil
}
