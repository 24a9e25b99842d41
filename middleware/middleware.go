package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fernway/globals"
	"fernway/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// JWT claims
type Claims struct {
	Email  string `json:"email"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Auth validates requests on two surfaces: a Bearer JWT in Authorization, or
// a database-backed session token in X-Session-Token. Either one is
// sufficient; the JWT is checked first because it needs no database hit.
type Auth struct {
	Secret    []byte
	Customers *mongo.Collection
}

func New(secret []byte, customers *mongo.Collection) *Auth {
	return &Auth{Secret: secret, Customers: customers}
}

// Authenticate requires a valid credential and stores the user ID and role in
// the request context.
func (a *Auth) Authenticate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if websocket.IsWebSocketUpgrade(r) {
			// Websocket clients pass the token as a query parameter.
			if claims, err := a.validate(r.URL.Query().Get("token")); err == nil {
				r = r.WithContext(withIdentity(r.Context(), claims.UserID, claims.Role))
				next(w, r, ps)
				return
			}
		}

		if claims, ok := a.fromBearer(r); ok {
			next(w, r.WithContext(withIdentity(r.Context(), claims.UserID, claims.Role)), ps)
			return
		}

		if customer, ok := a.fromSessionToken(r); ok {
			next(w, r.WithContext(withIdentity(r.Context(), customer.ID, customer.Role)), ps)
			return
		}

		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
}

// OptionalAuth attaches identity when a valid credential is present and
// passes through otherwise.
func (a *Auth) OptionalAuth(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if claims, ok := a.fromBearer(r); ok {
			r = r.WithContext(withIdentity(r.Context(), claims.UserID, claims.Role))
		} else if customer, ok := a.fromSessionToken(r); ok {
			r = r.WithContext(withIdentity(r.Context(), customer.ID, customer.Role))
		}
		next(w, r, ps)
	}
}

// RequireAdmin gates a handler on the admin role. Stacks on Authenticate.
func (a *Auth) RequireAdmin(next httprouter.Handle) httprouter.Handle {
	return a.Authenticate(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		role, _ := r.Context().Value(globals.RoleKey).(string)
		if role != "admin" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r, ps)
	})
}

func (a *Auth) fromBearer(r *http.Request) (*Claims, bool) {
	tokenString := r.Header.Get("Authorization")
	if len(tokenString) < 8 || tokenString[:7] != "Bearer " {
		return nil, false
	}
	claims, err := a.validate(tokenString[7:])
	if err != nil {
		return nil, false
	}
	return claims, true
}

func (a *Auth) fromSessionToken(r *http.Request) (*models.Customer, bool) {
	token := r.Header.Get("X-Session-Token")
	if token == "" {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var customer models.Customer
	err := a.Customers.FindOne(ctx, bson.M{
		"sessionToken":  token,
		"sessionExpiry": bson.M{"$gt": time.Now()},
	}).Decode(&customer)
	if err != nil {
		return nil, false
	}
	return &customer, true
}

func (a *Auth) validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("missing token")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return a.Secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// IssueJWT mints a signed token for a customer, valid for 72 hours.
func (a *Auth) IssueJWT(customer *models.Customer) (string, error) {
	claims := &Claims{
		Email:  customer.Email,
		UserID: customer.ID,
		Role:   customer.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(72 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   customer.ID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.Secret)
}

func withIdentity(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, globals.UserIDKey, userID)
	return context.WithValue(ctx, globals.RoleKey, role)
}
