package giftcards

import (
	"strings"
	"testing"
	"time"

	"fernway/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestApplyRedemptionPartial(t *testing.T) {
	card := &models.GiftCard{Code: "FW-1-ABC", Amount: 50, Balance: 50, Status: models.GiftCardActive}

	res, err := ApplyRedemption(card, 20)
	require.NoError(t, err)
	assert.Equal(t, 20.0, res.Deducted)
	assert.Equal(t, 30.0, res.NewBalance)
	assert.Equal(t, models.GiftCardActive, res.NewStatus)
}

func TestApplyRedemptionToZeroFlipsStatus(t *testing.T) {
	card := &models.GiftCard{Balance: 25, Status: models.GiftCardActive}

	res, err := ApplyRedemption(card, 25)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.NewBalance)
	assert.Equal(t, models.GiftCardRedeemed, res.NewStatus)
}

func TestApplyRedemptionRejectsOverBalance(t *testing.T) {
	card := &models.GiftCard{Balance: 10, Status: models.GiftCardActive}

	_, err := ApplyRedemption(card, 10.01)
	assert.Error(t, err)
	// no state change on rejection
	assert.Equal(t, 10.0, card.Balance)
	assert.Equal(t, models.GiftCardActive, card.Status)
}

func TestApplyRedemptionRejectsInactive(t *testing.T) {
	for _, status := range []string{models.GiftCardRedeemed, models.GiftCardExpired} {
		card := &models.GiftCard{Balance: 10, Status: status}
		_, err := ApplyRedemption(card, 5)
		assert.Error(t, err, status)
	}
}

func TestApplyRedemptionRejectsBadAmount(t *testing.T) {
	card := &models.GiftCard{Balance: 10, Status: models.GiftCardActive}
	_, err := ApplyRedemption(card, 0)
	assert.Error(t, err)
	_, err = ApplyRedemption(card, -3)
	assert.Error(t, err)
}

func TestSettleIsKeyedOnCart(t *testing.T) {
	card := &models.GiftCard{Code: "FW-1-ABC", Balance: 30, Status: models.GiftCardActive}

	// First settle for this cart goes through.
	assert.False(t, SettledForCart(card, "crt1"))
	filter := SettleFilter(card, "crt1")
	assert.Equal(t, bson.M{"$ne": "crt1"}, filter["settledCarts"])
	assert.Equal(t, 30.0, filter["balance"])

	res, err := ApplyRedemption(card, 30)
	require.NoError(t, err)
	update := SettleUpdate(res, "crt1", time.Unix(1693526400, 0))
	assert.Equal(t, bson.M{"settledCarts": "crt1"}, update["$addToSet"])
	assert.Equal(t, models.GiftCardRedeemed, update["$set"].(bson.M)["status"])

	// After the update lands, a replayed settle for the same cart is a no-op:
	// the card records the cart and the filter excludes it.
	card.SettledCarts = append(card.SettledCarts, "crt1")
	assert.True(t, SettledForCart(card, "crt1"))
	assert.False(t, SettledForCart(card, "crt2"))
}

func TestSettleUpdateKeepsActiveOnPartial(t *testing.T) {
	card := &models.GiftCard{Code: "FW-1-DEF", Balance: 50, Status: models.GiftCardActive}

	res, err := ApplyRedemption(card, 20)
	require.NoError(t, err)
	update := SettleUpdate(res, "crt9", time.Now())

	set := update["$set"].(bson.M)
	assert.Equal(t, 30.0, set["balance"])
	assert.Equal(t, models.GiftCardActive, set["status"])
	_, hasRedeemedAt := set["redeemedAt"]
	assert.False(t, hasRedeemedAt)
}

func TestNewCodeFormat(t *testing.T) {
	now := time.Unix(1693526400, 0)
	code := NewCode(now)

	assert.True(t, strings.HasPrefix(code, "FW-1693526400-"), code)
	parts := strings.Split(code, "-")
	require.Len(t, parts, 3)
	assert.Len(t, parts[2], 6)
}

func TestQRPayloadRoundTrip(t *testing.T) {
	s := &Service{Secret: []byte("test-secret")}
	card := &models.GiftCard{Code: "FW-1-ABC", Balance: 25.50}

	payload := s.QRPayload(card, time.Unix(1693526400, 0))
	assert.True(t, s.VerifyPayload(payload))

	// tamper with the balance
	tampered := strings.Replace(payload, "2550", "9999", 1)
	assert.False(t, s.VerifyPayload(tampered))

	// wrong secret
	other := &Service{Secret: []byte("other-secret")}
	assert.False(t, other.VerifyPayload(payload))
}
