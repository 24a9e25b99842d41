// Package payment fronts the two external card processors behind one
// Gateway interface. Callers never branch on the provider name; the concrete
// backend is chosen once from configuration.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fernway/config"
)

// Typed charge failures. ErrUnavailable is transient: the caller may retry
// with the same idempotency key. Everything else needs a new token or a
// corrected request.
var (
	ErrInvalidToken = errors.New("payment token invalid or expired")
	ErrDeclined     = errors.New("card declined")
	ErrBelowMinimum = errors.New("amount below processor minimum")
	ErrUnavailable  = errors.New("payment processor unavailable")
)

// ChargeRequest enumerates every field a charge can carry; nothing else is
// forwarded to the processor.
type ChargeRequest struct {
	SourceToken    string
	AmountCents    int64
	Currency       string
	BuyerEmail     string
	IdempotencyKey string
	ReferenceID    string
	Note           string
}

// Confirmation is the provider-neutral result of a captured payment.
type Confirmation struct {
	PaymentID   string    `json:"paymentId"`
	Status      string    `json:"status"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
	ReceiptURL  string    `json:"receiptUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

type RefundRequest struct {
	PaymentID      string
	AmountCents    int64 // 0 means full refund
	Reason         string
	IdempotencyKey string
}

type Refund struct {
	RefundID    string `json:"refundId"`
	PaymentID   string `json:"paymentId"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amountCents"`
}

// Gateway is the single capability surface for both processors. Funds are
// captured immediately on a successful Charge; there is no separate
// authorize/capture step.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*Confirmation, error)
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
	GetPayment(ctx context.Context, paymentID string) (*Confirmation, error)
	Provider() string
}

// New selects the configured backend.
func New(cfg *config.Config) (Gateway, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	switch cfg.PaymentProvider {
	case "square":
		return NewSquare(cfg.SquareBaseURL, cfg.SquareToken, client), nil
	case "stripe":
		return NewStripe(cfg.StripeBaseURL, cfg.StripeKey, client), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
	}
}

func validateCharge(req ChargeRequest) error {
	if req.SourceToken == "" {
		return fmt.Errorf("%w: missing source token", ErrInvalidToken)
	}
	if req.AmountCents <= 0 {
		return fmt.Errorf("charge amount must be a positive number of cents, got %d", req.AmountCents)
	}
	if req.IdempotencyKey == "" {
		return errors.New("idempotency key is required")
	}
	return nil
}
