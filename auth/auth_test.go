package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestResetRequestValidate(t *testing.T) {
	ok := resetRequest{Email: "a@b.com", OldPassword: "oldsecret", NewPassword: "newsecret"}
	assert.Empty(t, ok.validate())

	short := resetRequest{Email: "a@b.com", NewPassword: "short"}
	assert.NotEmpty(t, short.validate())

	badEmail := resetRequest{Email: "not-an-email", NewPassword: "longenough"}
	assert.NotEmpty(t, badEmail.validate())
}

func TestResetUpdateRecordsTimestamp(t *testing.T) {
	at := time.Unix(1693526400, 0)
	update := resetUpdate("$2a$10$hash", at)

	set, ok := update["$set"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, "$2a$10$hash", set["passwordHash"])
	assert.Equal(t, at, set["lastPasswordReset"])
}
