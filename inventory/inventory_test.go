package inventory

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/stretchr/testify/assert"
)

// The filter must require the current quantity to cover the decrement, so a
// concurrent checkout that drains the row makes this update match nothing
// rather than drive quantity negative.
func TestReserveFilterGuardsQuantity(t *testing.T) {
	filter := ReserveFilter("p1-M-black", 3)

	assert.Equal(t, "p1-M-black", filter["sku"])
	assert.Equal(t, bson.M{"$gte": 3}, filter["quantity"])
}

func TestReserveUpdateMovesStockToReserved(t *testing.T) {
	update := ReserveUpdate(3, time.Now())

	inc := update["$inc"].(bson.M)
	assert.Equal(t, -3, inc["quantity"])
	assert.Equal(t, 3, inc["reserved"])
}

func TestReleaseUpdateIsInverse(t *testing.T) {
	update := ReleaseUpdate(2, time.Now())

	inc := update["$inc"].(bson.M)
	assert.Equal(t, 2, inc["quantity"])
	assert.Equal(t, -2, inc["reserved"])
}

func TestSKUFor(t *testing.T) {
	assert.Equal(t, "p1-M-black", SKUFor("p1", "M", "black"))
	assert.Equal(t, "p1-M", SKUFor("p1", "M", ""))
	assert.Equal(t, "p1-black", SKUFor("p1", "", "black"))
	assert.Equal(t, "p1", SKUFor("p1", "", ""))
}
