package products

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFilterEmpty(t *testing.T) {
	filter := ListFilter(map[string]string{})
	assert.Empty(t, filter)
}

func TestListFilterCategoryAndVariant(t *testing.T) {
	filter := ListFilter(map[string]string{
		"category": "dresses",
		"color":    "ivory",
		"size":     "M",
	})

	assert.Equal(t, "dresses", filter["category"])
	assert.Equal(t, "ivory", filter["colors"])
	assert.Equal(t, "M", filter["sizes.size"])
}

func TestListFilterPriceRange(t *testing.T) {
	filter := ListFilter(map[string]string{"minPrice": "25", "maxPrice": "75"})

	price, ok := filter["price"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, 25.0, price["$gte"])
	assert.Equal(t, 75.0, price["$lte"])
}

func TestListFilterIgnoresBadPrices(t *testing.T) {
	filter := ListFilter(map[string]string{"minPrice": "abc"})
	_, ok := filter["price"]
	assert.False(t, ok)
}

func TestListFilterSearch(t *testing.T) {
	filter := ListFilter(map[string]string{"search": "linen"})
	or, ok := filter["$or"].(bson.A)
	require.True(t, ok)
	assert.Len(t, or, 2)
}

func TestSortSpec(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "price", Value: 1}}, SortSpec("price_asc"))
	assert.Equal(t, bson.D{{Key: "price", Value: -1}}, SortSpec("price_desc"))
	assert.Equal(t, bson.D{{Key: "rating", Value: -1}}, SortSpec("rating"))
	assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}}, SortSpec(""))
	assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}}, SortSpec("bogus"))
}
