package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Stripe backend: form-encoded API, idempotency key carried as a header
// rather than in the body.
type Stripe struct {
	baseURL string
	key     string
	client  *http.Client
}

func NewStripe(baseURL, key string, client *http.Client) *Stripe {
	return &Stripe{baseURL: baseURL, key: key, client: client}
}

func (s *Stripe) Provider() string { return "stripe" }

type stripeCharge struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	ReceiptURL string `json:"receipt_url"`
	Created    int64  `json:"created"`
}

type stripeRefund struct {
	ID     string `json:"id"`
	Charge string `json:"charge"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type stripeAPIError struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

type stripeErrorBody struct {
	Error *stripeAPIError `json:"error"`
}

func (s *Stripe) Charge(ctx context.Context, req ChargeRequest) (*Confirmation, error) {
	if err := validateCharge(req); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("source", req.SourceToken)
	if req.BuyerEmail != "" {
		form.Set("receipt_email", req.BuyerEmail)
	}
	if req.Note != "" {
		form.Set("description", req.Note)
	}
	if req.ReferenceID != "" {
		form.Set("metadata[reference_id]", req.ReferenceID)
	}

	var ch stripeCharge
	if err := s.do(ctx, http.MethodPost, "/v1/charges", form, req.IdempotencyKey, &ch); err != nil {
		return nil, err
	}
	return confirmationFromStripe(&ch), nil
}

func (s *Stripe) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	form := url.Values{}
	form.Set("charge", req.PaymentID)
	if req.AmountCents > 0 {
		form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	}
	if req.Reason != "" {
		form.Set("reason", req.Reason)
	}

	var rf stripeRefund
	if err := s.do(ctx, http.MethodPost, "/v1/refunds", form, req.IdempotencyKey, &rf); err != nil {
		return nil, err
	}
	return &Refund{
		RefundID:    rf.ID,
		PaymentID:   rf.Charge,
		Status:      rf.Status,
		AmountCents: rf.Amount,
	}, nil
}

func (s *Stripe) GetPayment(ctx context.Context, paymentID string) (*Confirmation, error) {
	var ch stripeCharge
	if err := s.do(ctx, http.MethodGet, "/v1/charges/"+paymentID, nil, "", &ch); err != nil {
		return nil, err
	}
	return confirmationFromStripe(&ch), nil
}

func confirmationFromStripe(ch *stripeCharge) *Confirmation {
	return &Confirmation{
		PaymentID:   ch.ID,
		Status:      ch.Status,
		AmountCents: ch.Amount,
		Currency:    strings.ToUpper(ch.Currency),
		ReceiptURL:  ch.ReceiptURL,
		CreatedAt:   time.Unix(ch.Created, 0).UTC(),
	}
}

func (s *Stripe) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out interface{}) error {
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.key)
	if form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d", ErrUnavailable, httpResp.StatusCode)
	}

	if httpResp.StatusCode >= 400 {
		var eb stripeErrorBody
		if err := json.Unmarshal(data, &eb); err == nil && eb.Error != nil {
			return stripeErrorToTyped(eb.Error)
		}
		return fmt.Errorf("stripe error: status %d", httpResp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding stripe response: %w", err)
	}
	return nil
}

func stripeErrorToTyped(e *stripeAPIError) error {
	switch e.Code {
	case "card_declined", "expired_card", "incorrect_cvc", "processing_error":
		return fmt.Errorf("%w: %s", ErrDeclined, e.Message)
	case "amount_too_small":
		return fmt.Errorf("%w: %s", ErrBelowMinimum, e.Message)
	case "missing", "invalid_source", "token_already_used", "invalid_request_error":
		return fmt.Errorf("%w: %s", ErrInvalidToken, e.Message)
	}
	if e.Type == "invalid_request_error" {
		return fmt.Errorf("%w: %s", ErrInvalidToken, e.Message)
	}
	return fmt.Errorf("stripe error %s: %s", e.Code, e.Message)
}
