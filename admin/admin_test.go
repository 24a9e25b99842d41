package admin

import (
	"testing"
	"time"

	"fernway/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// statusMatches mirrors how the $in filter evaluates against an order.
func statusMatches(filter bson.M, status string) bool {
	in := filter["status"].(bson.M)["$in"].(bson.A)
	for _, s := range in {
		if s == status {
			return true
		}
	}
	return false
}

func TestCancelGateIsOneShot(t *testing.T) {
	filter := CancelFilter("ord1")
	require.Equal(t, "ord1", filter["_id"])

	assert.True(t, statusMatches(filter, models.OrderPending))
	assert.True(t, statusMatches(filter, models.OrderProcessing))

	// Once CancelUpdate lands, the order's status is cancelled and the same
	// filter matches nothing, so the refund and the stock release run once.
	update := CancelUpdate(time.Unix(1693526400, 0))
	next := update["$set"].(bson.M)["status"].(string)
	assert.Equal(t, models.OrderCancelled, next)
	assert.False(t, statusMatches(filter, next))

	assert.False(t, statusMatches(filter, models.OrderShipped))
	assert.False(t, statusMatches(filter, models.OrderDelivered))
}

func TestValidStatuses(t *testing.T) {
	assert.True(t, validStatuses[models.OrderProcessing])
	assert.True(t, validStatuses[models.OrderShipped])
	assert.False(t, validStatuses["teleported"])
}
