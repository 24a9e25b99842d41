package checkout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"strings"
	"testing"

	"fernway/models"
	"fernway/payment"
	"fernway/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOpts = pricing.Options{
	TaxRate:               0.0775,
	FreeShippingThreshold: 100,
	ShippingFee:           10,
	MinChargeCents:        100,
}

func TestBuildOrderTotalsEquation(t *testing.T) {
	cart := &models.Cart{ID: "crt1", CustomerID: "cus1", DiscountCode: "WELCOME10"}
	items := []models.CartItem{{ProductID: "p1", Price: 25, Quantity: 1}}
	totals := pricing.Quote([]pricing.Line{{Price: 25, Quantity: 1}}, 2.50, 5, testOpts)
	conf := &payment.Confirmation{PaymentID: "pay_1", Status: "COMPLETED"}

	order := BuildOrder(cart, items, totals, conf, "square", "a@b.com", models.Address{}, "")

	assert.Equal(t, "crt1", order.CartID)
	assert.Equal(t, "cus1", order.CustomerID)
	assert.Equal(t, "pay_1", order.PaymentID)
	assert.Equal(t, models.OrderPending, order.Status)

	// total = subtotal + tax + shipping - discount - giftCardUsed, in cents
	sum := pricing.Cents(order.Subtotal) + pricing.Cents(order.Tax) + pricing.Cents(order.Shipping) -
		pricing.Cents(order.DiscountAmount) - pricing.Cents(order.GiftCardUsed)
	assert.Equal(t, pricing.Cents(order.Total), sum)
}

func TestBuildOrderWithoutConfirmation(t *testing.T) {
	cart := &models.Cart{ID: "crt2"}
	totals := pricing.Quote([]pricing.Line{{Price: 10, Quantity: 1}}, 0, 25, testOpts)
	require.Equal(t, int64(0), totals.TotalCents)

	order := BuildOrder(cart, nil, totals, nil, "giftcard", "", models.Address{}, "")
	assert.Empty(t, order.PaymentID)
	assert.Equal(t, "giftcard", order.PaymentMethod)
	assert.Equal(t, 0.0, order.Total)
}

func sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("whsec_test")
	body := []byte(`{"type":"payment.completed"}`)

	assert.True(t, VerifySignature(secret, body, sign(secret, body)))
	assert.False(t, VerifySignature(secret, body, sign([]byte("wrong"), body)))
	assert.False(t, VerifySignature(secret, []byte(`{"tampered":1}`), sign(secret, body)))
	assert.False(t, VerifySignature(secret, body, ""))
	assert.False(t, VerifySignature(nil, body, sign(secret, body)))
}

func TestChargeRequestsGetFreshKeys(t *testing.T) {
	cart := &models.Cart{ID: "crt1"}
	totals := pricing.Quote([]pricing.Line{{Price: 25, Quantity: 1}}, 0, 0, testOpts)

	first := newChargeRequest(cart, "tok_a", "a@b.com", "order", totals, testOpts)
	second := newChargeRequest(cart, "tok_b", "a@b.com", "order", totals, testOpts)

	// A declined attempt must be retryable: same cart, new key every time.
	assert.NotEqual(t, first.IdempotencyKey, second.IdempotencyKey)
	assert.NotEmpty(t, first.IdempotencyKey)
	assert.Equal(t, "crt1", first.ReferenceID)
	assert.Equal(t, "crt1", second.ReferenceID)
	assert.Equal(t, totals.TotalCents, first.AmountCents)
}

func TestValidateItemRejectsBadQuantity(t *testing.T) {
	product := &models.Product{ID: "p1", Name: "Tee"}

	// A negative line folded into an honest one would lower the quoted total
	// while the honest line still reserves stock.
	require.Error(t, validateItem(&models.CartItem{ProductID: "p1", Quantity: -1}, product))
	require.Error(t, validateItem(&models.CartItem{ProductID: "p1", Quantity: 0}, product))
	require.NoError(t, validateItem(&models.CartItem{ProductID: "p1", Quantity: 2}, product))
}

func TestValidateItemChecksVariant(t *testing.T) {
	product := &models.Product{
		ID:     "p1",
		Sizes:  []models.ProductSize{{Size: "M"}},
		Colors: []string{"black"},
	}

	assert.NoError(t, validateItem(&models.CartItem{ProductID: "p1", Quantity: 1, Size: "M", Color: "black"}, product))
	assert.Error(t, validateItem(&models.CartItem{ProductID: "p1", Quantity: 1, Size: "XL"}, product))
	assert.Error(t, validateItem(&models.CartItem{ProductID: "p1", Quantity: 1, Color: "red"}, product))
}

func TestReplayableStatus(t *testing.T) {
	for _, status := range []int{200, 201, 400, 402, 409} {
		assert.True(t, replayable(status), "status %d", status)
	}
	// 5xx outcomes are transient; pinning them would block the retry.
	for _, status := range []int{500, 502, 503} {
		assert.False(t, replayable(status), "status %d", status)
	}
}

func TestCapturedAmountMatches(t *testing.T) {
	// 25.00 at 7.75% tax plus flat shipping.
	totals := pricing.Quote([]pricing.Line{{Price: 25, Quantity: 1}}, 0, 0, testOpts)
	captured := pricing.ClampMinimum(totals.TotalCents, testOpts.MinChargeCents)

	assert.True(t, capturedAmountMatches(captured, totals.TotalCents, testOpts.MinChargeCents))
	assert.True(t, capturedAmountMatches(0, totals.TotalCents, testOpts.MinChargeCents))

	// Price edited between charge and webhook delivery.
	repriced := pricing.Quote([]pricing.Line{{Price: 30, Quantity: 1}}, 0, 0, testOpts)
	assert.False(t, capturedAmountMatches(captured, repriced.TotalCents, testOpts.MinChargeCents))
}

func TestComputeRequestHash(t *testing.T) {
	r1 := httptest.NewRequest("POST", "/api/checkout", strings.NewReader(""))
	body := []byte(`{"cartId":"crt1"}`)

	h1 := computeRequestHash(r1, body, "cus1")
	h2 := computeRequestHash(r1, body, "cus1")
	assert.Equal(t, h1, h2)

	// any change to body or user produces a different hash
	assert.NotEqual(t, h1, computeRequestHash(r1, []byte(`{"cartId":"crt2"}`), "cus1"))
	assert.NotEqual(t, h1, computeRequestHash(r1, body, "cus2"))

	r2 := httptest.NewRequest("POST", "/api/checkout/direct", strings.NewReader(""))
	assert.NotEqual(t, h1, computeRequestHash(r2, body, "cus1"))
}
