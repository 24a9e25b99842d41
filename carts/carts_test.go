package carts

import (
	"testing"

	"fernway/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeItemFoldsMatchingVariant(t *testing.T) {
	items := []models.CartItem{
		{ProductID: "p1", Size: "M", Color: "black", Quantity: 1, Price: 25},
	}

	items = MergeItem(items, models.CartItem{ProductID: "p1", Size: "M", Color: "black", Quantity: 2, Price: 25})
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestMergeItemKeepsDistinctVariants(t *testing.T) {
	items := []models.CartItem{
		{ProductID: "p1", Size: "M", Color: "black", Quantity: 1},
	}

	items = MergeItem(items, models.CartItem{ProductID: "p1", Size: "L", Color: "black", Quantity: 1})
	items = MergeItem(items, models.CartItem{ProductID: "p1", Size: "M", Color: "white", Quantity: 1})
	items = MergeItem(items, models.CartItem{ProductID: "p2", Size: "M", Color: "black", Quantity: 1})
	assert.Len(t, items, 4)
}

func TestSubtotal(t *testing.T) {
	items := []models.CartItem{
		{Price: 25.00, Quantity: 1},
		{Price: 19.99, Quantity: 2},
	}
	assert.Equal(t, 64.98, Subtotal(items))
	assert.Equal(t, 0.0, Subtotal(nil))
}

func TestValidateVariant(t *testing.T) {
	p := &models.Product{
		Sizes:  []models.ProductSize{{Size: "S"}, {Size: "M"}},
		Colors: []string{"black", "ivory"},
	}

	assert.Empty(t, ValidateVariant(p, "M", "black"))
	assert.Empty(t, ValidateVariant(p, "", ""))
	assert.NotEmpty(t, ValidateVariant(p, "XL", "black"))
	assert.NotEmpty(t, ValidateVariant(p, "M", "red"))

	// products without declared variants accept anything
	assert.Empty(t, ValidateVariant(&models.Product{}, "M", "red"))
}

func TestDiscountCodes(t *testing.T) {
	assert.Equal(t, 0.10, discountCodes["WELCOME10"])
	assert.Equal(t, 0.20, discountCodes["SALE20"])
	_, ok := discountCodes["BOGUS"]
	assert.False(t, ok)
}
