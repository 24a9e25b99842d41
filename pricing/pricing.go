// Package pricing computes authoritative order totals. All arithmetic that
// crosses the payment boundary happens in whole minor units (cents); dollar
// amounts are rounded to cents exactly once, at that boundary.
package pricing

import "math"

// Options carries the jurisdiction and shipping constants. One instance is
// built from config and shared by preview, checkout and webhook paths so the
// same rate and threshold apply everywhere.
type Options struct {
	TaxRate               float64
	FreeShippingThreshold float64
	ShippingFee           float64
	MinChargeCents        int64
}

// Line is a priced order line: unit price times quantity.
type Line struct {
	Price    float64
	Quantity int
}

// Totals holds every money component in cents.
type Totals struct {
	SubtotalCents int64 `json:"subtotalCents"`
	TaxCents      int64 `json:"taxCents"`
	ShippingCents int64 `json:"shippingCents"`
	DiscountCents int64 `json:"discountCents"`
	GiftCardCents int64 `json:"giftCardCents"`
	TotalCents    int64 `json:"totalCents"`
}

// Cents converts a dollar amount to whole cents, rounding half away from
// zero. This is the single rounding point in the pipeline.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Dollars converts cents back for presentation and storage.
func Dollars(cents int64) float64 {
	return float64(cents) / 100
}

// Quote computes totals for a set of lines. Identical input always yields
// identical output. Discount and gift-card amounts are subtracted after tax
// and shipping; the result never goes negative.
func Quote(lines []Line, discount, giftCard float64, opts Options) Totals {
	var subtotal float64
	for _, l := range lines {
		subtotal += l.Price * float64(l.Quantity)
	}

	shipping := opts.ShippingFee
	if subtotal > opts.FreeShippingThreshold {
		shipping = 0
	}

	t := Totals{
		SubtotalCents: Cents(subtotal),
		TaxCents:      Cents(subtotal * opts.TaxRate),
		ShippingCents: Cents(shipping),
		DiscountCents: Cents(discount),
		GiftCardCents: Cents(giftCard),
	}
	t.TotalCents = t.SubtotalCents + t.TaxCents + t.ShippingCents - t.DiscountCents - t.GiftCardCents
	if t.TotalCents < 0 {
		t.TotalCents = 0
	}
	return t
}

// ClampMinimum raises a chargeable total to the processor minimum. Amounts
// below the minimum are submitted at exactly the minimum, never below.
func ClampMinimum(totalCents, minCents int64) int64 {
	if totalCents < minCents {
		return minCents
	}
	return totalCents
}
