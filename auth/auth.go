// Package auth covers signup, login and session management. Two credentials
// coexist: a stateless JWT and a database-backed session token that can be
// revoked server-side.
package auth

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"fernway/db"
	"fernway/middleware"
	"fernway/models"
	"fernway/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

const sessionTTL = 30 * 24 * time.Hour

type Service struct {
	Customers *mongo.Collection
	Auth      *middleware.Auth
}

func NewService(store *db.Store, auth *middleware.Auth) *Service {
	return &Service{Customers: store.Customers, Auth: auth}
}

type credentials struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Signup creates a customer account. Email uniqueness is enforced by the
// case-insensitive unique index; a duplicate insert maps to 409.
func (s *Service) Signup(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	creds.Email = strings.TrimSpace(strings.ToLower(creds.Email))
	if !utils.IsValidEmail(creds.Email) {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid email address")
		return
	}
	if len(creds.Password) < 8 {
		utils.RespondWithError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	now := time.Now()
	customer := models.Customer{
		ID:           utils.NewID("cus"),
		Email:        creds.Email,
		Role:         "customer",
		FirstName:    creds.FirstName,
		LastName:     creds.LastName,
		PasswordHash: string(hash),
		Orders:       []string{},
		Favorites:    []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.Customers.InsertOne(ctx, customer); err != nil {
		if db.IsDuplicateKey(err) {
			utils.RespondWithError(w, http.StatusConflict, "An account with this email already exists")
			return
		}
		log.Println("signup insert error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	s.issueSession(ctx, w, &customer, http.StatusCreated)
}

// Login verifies the password and issues both credentials.
func (s *Service) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	creds.Email = strings.TrimSpace(strings.ToLower(creds.Email))

	var customer models.Customer
	if err := s.Customers.FindOne(ctx, bson.M{"email": creds.Email}).Decode(&customer); err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(customer.PasswordHash), []byte(creds.Password)) != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	s.issueSession(ctx, w, &customer, http.StatusOK)
}

// Refresh rotates the session token and mints a fresh JWT for the caller.
func (s *Service) Refresh(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var customer models.Customer
	if err := s.Customers.FindOne(ctx, bson.M{"_id": userID}).Decode(&customer); err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	s.issueSession(ctx, w, &customer, http.StatusOK)
}

// Logout revokes the session token. Outstanding JWTs expire on their own.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if _, err := s.Customers.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$unset": bson.M{"sessionToken": "", "sessionExpiry": ""},
	}); err != nil {
		log.Println("logout error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to log out")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"status": "logged out"})
}

type resetRequest struct {
	Email       string `json:"email"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (req *resetRequest) validate() string {
	if !utils.IsValidEmail(req.Email) {
		return "Invalid email address"
	}
	if len(req.NewPassword) < 8 {
		return "Password must be at least 8 characters"
	}
	return ""
}

// resetUpdate is shared by the self-service and admin reset paths. The reset
// timestamp is always recorded alongside the new hash.
func resetUpdate(hash string, at time.Time) bson.M {
	return bson.M{"$set": bson.M{"passwordHash": hash, "lastPasswordReset": at}}
}

// ResetPassword changes a customer's password after verifying the old one.
// Unknown email and wrong password answer identically.
func (s *Service) ResetPassword(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if msg := req.validate(); msg != "" {
		utils.RespondWithError(w, http.StatusBadRequest, msg)
		return
	}

	var customer models.Customer
	if err := s.Customers.FindOne(ctx, bson.M{"email": req.Email}).Decode(&customer); err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(customer.PasswordHash), []byte(req.OldPassword)) != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}

	resetAt := time.Now()
	if _, err := s.Customers.UpdateOne(ctx, bson.M{"email": req.Email}, resetUpdate(string(hash), resetAt)); err != nil {
		log.Println("password reset error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"message":           "Password reset successful",
		"lastPasswordReset": resetAt,
	})
}

// AdminResetPassword sets a customer's password without the old one. The
// route is admin-gated.
func (s *Service) AdminResetPassword(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if msg := req.validate(); msg != "" {
		utils.RespondWithError(w, http.StatusBadRequest, msg)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}

	res, err := s.Customers.UpdateOne(ctx, bson.M{"email": req.Email}, resetUpdate(string(hash), time.Now()))
	if err != nil {
		log.Println("admin password reset error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}
	if res.MatchedCount == 0 {
		utils.RespondWithError(w, http.StatusNotFound, "Account not found")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"message": "Admin password reset successful"})
}

// Me returns the caller's own profile.
func (s *Service) Me(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := utils.GetUserIDFromRequest(r)
	var customer models.Customer
	if err := s.Customers.FindOne(ctx, bson.M{"_id": userID}).Decode(&customer); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Account not found")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, customer)
}

func (s *Service) issueSession(ctx context.Context, w http.ResponseWriter, customer *models.Customer, status int) {
	sessionToken := utils.GenerateRandomString(48)
	expiry := time.Now().Add(sessionTTL)

	if _, err := s.Customers.UpdateOne(ctx, bson.M{"_id": customer.ID}, bson.M{
		"$set": bson.M{"sessionToken": sessionToken, "sessionExpiry": expiry},
	}); err != nil {
		log.Println("session issue error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	jwtToken, err := s.Auth.IssueJWT(customer)
	if err != nil {
		log.Println("jwt issue error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	utils.RespondWithJSON(w, status, utils.M{
		"token":        jwtToken,
		"sessionToken": sessionToken,
		"expiresAt":    expiry,
		"customer":     customer,
	})
}
