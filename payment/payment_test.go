package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquareChargeSuccess(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/payments", r.URL.Path)
		require.Equal(t, "Bearer sq-test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotKey, _ = body["idempotency_key"].(string)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"payment": map[string]interface{}{
				"id":           "pay_123",
				"status":       "COMPLETED",
				"amount_money": map[string]interface{}{"amount": 3694, "currency": "USD"},
				"receipt_url":  "https://squareup.com/receipt/pay_123",
			},
		})
	}))
	defer srv.Close()

	gw := NewSquare(srv.URL, "sq-test", srv.Client())
	conf, err := gw.Charge(context.Background(), ChargeRequest{
		SourceToken:    "cnon:ok",
		AmountCents:    3694,
		IdempotencyKey: "order-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay_123", conf.PaymentID)
	assert.Equal(t, int64(3694), conf.AmountCents)
	assert.Equal(t, "order-abc", gotKey)
}

func TestSquareChargeDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]string{{
				"category": "PAYMENT_METHOD_ERROR",
				"code":     "GENERIC_DECLINE",
				"detail":   "card declined",
			}},
		})
	}))
	defer srv.Close()

	gw := NewSquare(srv.URL, "sq-test", srv.Client())
	_, err := gw.Charge(context.Background(), ChargeRequest{
		SourceToken: "cnon:bad", AmountCents: 500, IdempotencyKey: "k1",
	})
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestSquareErrorMapping(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{"INVALID_CARD", ErrInvalidToken},
		{"CARD_TOKEN_USED", ErrInvalidToken},
		{"AMOUNT_TOO_LOW", ErrBelowMinimum},
		{"INSUFFICIENT_FUNDS", ErrDeclined},
	}
	for _, tc := range cases {
		err := squareErrorToTyped([]squareError{{Code: tc.code}}, 400)
		assert.ErrorIs(t, err, tc.want, tc.code)
	}
}

func TestSquareServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gw := NewSquare(srv.URL, "sq-test", srv.Client())
	_, err := gw.Charge(context.Background(), ChargeRequest{
		SourceToken: "cnon:ok", AmountCents: 500, IdempotencyKey: "k1",
	})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestStripeChargeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/charges", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.Equal(t, "order-abc", r.Header.Get("Idempotency-Key"))

		require.NoError(t, r.ParseForm())
		require.Equal(t, "3694", r.PostForm.Get("amount"))
		require.Equal(t, "usd", r.PostForm.Get("currency"))
		require.Equal(t, "tok_visa", r.PostForm.Get("source"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":       "ch_123",
			"status":   "succeeded",
			"amount":   3694,
			"currency": "usd",
			"created":  1700000000,
		})
	}))
	defer srv.Close()

	gw := NewStripe(srv.URL, "sk_test", srv.Client())
	conf, err := gw.Charge(context.Background(), ChargeRequest{
		SourceToken:    "tok_visa",
		AmountCents:    3694,
		IdempotencyKey: "order-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "ch_123", conf.PaymentID)
	assert.Equal(t, "USD", conf.Currency)
	assert.Equal(t, int64(3694), conf.AmountCents)
}

func TestStripeDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"type":    "card_error",
				"code":    "card_declined",
				"message": "Your card was declined.",
			},
		})
	}))
	defer srv.Close()

	gw := NewStripe(srv.URL, "sk_test", srv.Client())
	_, err := gw.Charge(context.Background(), ChargeRequest{
		SourceToken: "tok_chargeDeclined", AmountCents: 500, IdempotencyKey: "k1",
	})
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestStripeErrorMapping(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{"amount_too_small", ErrBelowMinimum},
		{"token_already_used", ErrInvalidToken},
		{"expired_card", ErrDeclined},
	}
	for _, tc := range cases {
		err := stripeErrorToTyped(&stripeAPIError{Code: tc.code})
		assert.ErrorIs(t, err, tc.want, tc.code)
	}
}

// A retry with the same idempotency key must send the same key to the
// processor each time, so the processor can dedupe the charge.
func TestRetrySendsSameIdempotencyKey(t *testing.T) {
	var keys []string
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "ch_1", "status": "succeeded", "amount": 500, "currency": "usd",
		})
	}))
	defer srv.Close()

	gw := NewStripe(srv.URL, "sk_test", srv.Client())
	req := ChargeRequest{SourceToken: "tok_visa", AmountCents: 500, IdempotencyKey: "stable-key"}

	_, err := gw.Charge(context.Background(), req)
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = gw.Charge(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1])
}

func TestValidateCharge(t *testing.T) {
	cases := []struct {
		name string
		req  ChargeRequest
		ok   bool
	}{
		{"valid", ChargeRequest{SourceToken: "t", AmountCents: 100, IdempotencyKey: "k"}, true},
		{"missing token", ChargeRequest{AmountCents: 100, IdempotencyKey: "k"}, false},
		{"zero amount", ChargeRequest{SourceToken: "t", IdempotencyKey: "k"}, false},
		{"negative amount", ChargeRequest{SourceToken: "t", AmountCents: -5, IdempotencyKey: "k"}, false},
		{"missing key", ChargeRequest{SourceToken: "t", AmountCents: 100}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateCharge(tc.req)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
