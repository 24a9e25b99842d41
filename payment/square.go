package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Square backend: JSON API, amounts as integer cents, idempotency key in the
// request body.
type Square struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewSquare(baseURL, token string, client *http.Client) *Square {
	return &Square{baseURL: baseURL, token: token, client: client}
}

func (s *Square) Provider() string { return "square" }

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squarePayment struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	AmountMoney squareMoney `json:"amount_money"`
	ReceiptURL  string      `json:"receipt_url"`
	CreatedAt   time.Time   `json:"created_at"`
}

type squareError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

type squareResponse struct {
	Payment *squarePayment `json:"payment"`
	Refund  *squareRefund  `json:"refund"`
	Errors  []squareError  `json:"errors"`
}

type squareRefund struct {
	ID          string      `json:"id"`
	PaymentID   string      `json:"payment_id"`
	Status      string      `json:"status"`
	AmountMoney squareMoney `json:"amount_money"`
}

func (s *Square) Charge(ctx context.Context, req ChargeRequest) (*Confirmation, error) {
	if err := validateCharge(req); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	body := map[string]interface{}{
		"idempotency_key": req.IdempotencyKey,
		"source_id":       req.SourceToken,
		"amount_money":    squareMoney{Amount: req.AmountCents, Currency: currency},
		"autocomplete":    true,
	}
	if req.BuyerEmail != "" {
		body["buyer_email_address"] = req.BuyerEmail
	}
	if req.ReferenceID != "" {
		body["reference_id"] = req.ReferenceID
	}
	if req.Note != "" {
		body["note"] = req.Note
	}

	var resp squareResponse
	if err := s.do(ctx, http.MethodPost, "/v2/payments", body, &resp); err != nil {
		return nil, err
	}
	if resp.Payment == nil {
		return nil, fmt.Errorf("square returned no payment")
	}
	return confirmationFromSquare(resp.Payment), nil
}

func (s *Square) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	body := map[string]interface{}{
		"idempotency_key": req.IdempotencyKey,
		"payment_id":      req.PaymentID,
		"reason":          req.Reason,
	}
	if req.AmountCents > 0 {
		body["amount_money"] = squareMoney{Amount: req.AmountCents, Currency: "USD"}
	}

	var resp squareResponse
	if err := s.do(ctx, http.MethodPost, "/v2/refunds", body, &resp); err != nil {
		return nil, err
	}
	if resp.Refund == nil {
		return nil, fmt.Errorf("square returned no refund")
	}
	return &Refund{
		RefundID:    resp.Refund.ID,
		PaymentID:   resp.Refund.PaymentID,
		Status:      resp.Refund.Status,
		AmountCents: resp.Refund.AmountMoney.Amount,
	}, nil
}

func (s *Square) GetPayment(ctx context.Context, paymentID string) (*Confirmation, error) {
	var resp squareResponse
	if err := s.do(ctx, http.MethodGet, "/v2/payments/"+paymentID, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Payment == nil {
		return nil, fmt.Errorf("square returned no payment")
	}
	return confirmationFromSquare(resp.Payment), nil
}

func confirmationFromSquare(p *squarePayment) *Confirmation {
	return &Confirmation{
		PaymentID:   p.ID,
		Status:      p.Status,
		AmountCents: p.AmountMoney.Amount,
		Currency:    p.AmountMoney.Currency,
		ReceiptURL:  p.ReceiptURL,
		CreatedAt:   p.CreatedAt,
	}
}

func (s *Square) do(ctx context.Context, method, path string, body interface{}, out *squareResponse) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.token)
	httpReq.Header.Set("Content-Type", "application/json")

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

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding square response: %w", err)
	}

	if httpResp.StatusCode >= 400 || len(out.Errors) > 0 {
		return squareErrorToTyped(out.Errors, httpResp.StatusCode)
	}
	return nil
}

func squareErrorToTyped(errs []squareError, status int) error {
	for _, e := range errs {
		switch e.Code {
		case "GENERIC_DECLINE", "CVV_FAILURE", "ADDRESS_VERIFICATION_FAILURE",
			"INSUFFICIENT_FUNDS", "CARD_EXPIRED", "TRANSACTION_LIMIT":
			return fmt.Errorf("%w: %s", ErrDeclined, e.Detail)
		case "INVALID_CARD", "CARD_TOKEN_EXPIRED", "CARD_TOKEN_USED", "INVALID_CARD_DATA":
			return fmt.Errorf("%w: %s", ErrInvalidToken, e.Detail)
		case "AMOUNT_TOO_LOW":
			return fmt.Errorf("%w: %s", ErrBelowMinimum, e.Detail)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("square error %s: %s", errs[0].Code, errs[0].Detail)
	}
	return fmt.Errorf("square error: status %d", status)
}
