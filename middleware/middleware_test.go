package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"fernway/globals"
	"fernway/models"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	a := &Auth{Secret: []byte("test-secret")}
	customer := &models.Customer{ID: "cus1", Email: "a@b.com", Role: "customer"}

	token, err := a.IssueJWT(customer)
	require.NoError(t, err)

	claims, err := a.validate(token)
	require.NoError(t, err)
	assert.Equal(t, "cus1", claims.UserID)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, "customer", claims.Role)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	a := &Auth{Secret: []byte("test-secret")}
	token, err := a.IssueJWT(&models.Customer{ID: "cus1"})
	require.NoError(t, err)

	other := &Auth{Secret: []byte("other-secret")}
	_, err = other.validate(token)
	assert.Error(t, err)
}

func TestAuthenticateSetsContext(t *testing.T) {
	a := &Auth{Secret: []byte("test-secret")}
	token, err := a.IssueJWT(&models.Customer{ID: "cus1", Role: "admin"})
	require.NoError(t, err)

	var gotUser, gotRole string
	handler := a.Authenticate(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gotUser, _ = r.Context().Value(globals.UserIDKey).(string)
		gotRole, _ = r.Context().Value(globals.RoleKey).(string)
	})

	r := httptest.NewRequest("GET", "/api/me", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler(w, r, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cus1", gotUser)
	assert.Equal(t, "admin", gotRole)
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	a := &Auth{Secret: []byte("test-secret")}
	handler := a.Authenticate(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		t.Fatal("handler should not run")
	})

	r := httptest.NewRequest("GET", "/api/me", nil)
	w := httptest.NewRecorder()
	handler(w, r, nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdminBlocksCustomers(t *testing.T) {
	a := &Auth{Secret: []byte("test-secret")}
	token, err := a.IssueJWT(&models.Customer{ID: "cus1", Role: "customer"})
	require.NoError(t, err)

	handler := a.RequireAdmin(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		t.Fatal("handler should not run")
	})

	r := httptest.NewRequest("GET", "/api/admin/orders", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler(w, r, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOptionalAuthPassesThrough(t *testing.T) {
	a := &Auth{Secret: []byte("test-secret")}

	called := false
	handler := a.OptionalAuth(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		called = true
		userID, _ := r.Context().Value(globals.UserIDKey).(string)
		assert.Empty(t, userID)
	})

	r := httptest.NewRequest("GET", "/api/products", nil)
	w := httptest.NewRecorder()
	handler(w, r, nil)
	assert.True(t, called)
}
