package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var opts = Options{
	TaxRate:               0.0775,
	FreeShippingThreshold: 100,
	ShippingFee:           10,
	MinChargeCents:        100,
}

func TestQuoteRoundsTaxAtCentBoundary(t *testing.T) {
	lines := []Line{
		{Price: 10.00, Quantity: 2},
		{Price: 5.00, Quantity: 1},
	}

	got := Quote(lines, 0, 0, opts)

	assert.Equal(t, int64(2500), got.SubtotalCents)
	// 25.00 * 0.0775 = 1.9375, rounds up to 1.94
	assert.Equal(t, int64(194), got.TaxCents)
	assert.Equal(t, int64(1000), got.ShippingCents, "subtotal at or below threshold pays flat shipping")
	assert.Equal(t, int64(3694), got.TotalCents)
}

func TestQuoteFreeShippingAboveThreshold(t *testing.T) {
	got := Quote([]Line{{Price: 100.01, Quantity: 1}}, 0, 0, opts)
	assert.Equal(t, int64(0), got.ShippingCents)

	// exactly at the threshold still ships for the flat fee
	got = Quote([]Line{{Price: 100.00, Quantity: 1}}, 0, 0, opts)
	assert.Equal(t, int64(1000), got.ShippingCents)
}

func TestQuoteIsIdempotent(t *testing.T) {
	lines := []Line{{Price: 39.99, Quantity: 3}, {Price: 12.50, Quantity: 1}}
	first := Quote(lines, 5, 10, opts)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Quote(lines, 5, 10, opts))
	}
}

func TestQuoteSubtractsDiscountAndGiftCard(t *testing.T) {
	lines := []Line{{Price: 50.00, Quantity: 2}} // subtotal 100, shipping 10
	got := Quote(lines, 10, 25, opts)

	assert.Equal(t, int64(10000), got.SubtotalCents)
	assert.Equal(t, int64(775), got.TaxCents)
	assert.Equal(t, int64(1000), got.DiscountCents)
	assert.Equal(t, int64(2500), got.GiftCardCents)
	// total = subtotal + tax + shipping - discount - giftCard
	assert.Equal(t, int64(10000+775+1000-1000-2500), got.TotalCents)
}

func TestQuoteNeverNegative(t *testing.T) {
	got := Quote([]Line{{Price: 1.00, Quantity: 1}}, 0, 500, opts)
	assert.Equal(t, int64(0), got.TotalCents)
}

func TestClampMinimum(t *testing.T) {
	assert.Equal(t, int64(100), ClampMinimum(0, 100))
	assert.Equal(t, int64(100), ClampMinimum(99, 100))
	assert.Equal(t, int64(100), ClampMinimum(100, 100))
	assert.Equal(t, int64(101), ClampMinimum(101, 100))
}

func TestCentsRoundsHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, int64(194), Cents(1.935))
	assert.Equal(t, int64(193), Cents(1.9349))
	assert.Equal(t, int64(2), Cents(0.015))
	assert.Equal(t, int64(0), Cents(0))
}
