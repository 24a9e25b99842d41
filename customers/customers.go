// Package customers manages profiles, favorites and marketing preferences.
// Callers can only act on their own record; the admin surface reads customers
// through its own role-gated routes.
package customers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"fernway/db"
	"fernway/models"
	"fernway/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type Service struct {
	Customers *mongo.Collection
	Orders    *mongo.Collection
}

func NewService(store *db.Store) *Service {
	return &Service{Customers: store.Customers, Orders: store.Orders}
}

// Get returns the caller's profile.
func (s *Service) Get(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var customer models.Customer
	if err := s.Customers.FindOne(ctx, bson.M{"_id": utils.GetUserIDFromRequest(r)}).Decode(&customer); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Customer not found")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, customer)
}

// Update patches profile fields. Email, role and balances are not editable
// through this endpoint.
func (s *Service) Update(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var payload struct {
		FirstName   *string         `json:"firstName"`
		LastName    *string         `json:"lastName"`
		PhoneNumber *string         `json:"phoneNumber"`
		Address     *models.Address `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	set := bson.M{"updatedAt": time.Now()}
	if payload.FirstName != nil {
		set["firstName"] = *payload.FirstName
	}
	if payload.LastName != nil {
		set["lastName"] = *payload.LastName
	}
	if payload.PhoneNumber != nil {
		set["phoneNumber"] = *payload.PhoneNumber
	}
	if payload.Address != nil {
		set["address"] = *payload.Address
	}

	userID := utils.GetUserIDFromRequest(r)
	if _, err := s.Customers.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": set}); err != nil {
		log.Println("customer update error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	var customer models.Customer
	if err := s.Customers.FindOne(ctx, bson.M{"_id": userID}).Decode(&customer); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Customer not found")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, customer)
}

// ListOrders returns the caller's orders.
func (s *Service) ListOrders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	cursor, err := s.Orders.Find(ctx, bson.M{"customerId": utils.GetUserIDFromRequest(r)})
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Could not retrieve orders")
		return
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error reading order data")
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	utils.RespondWithJSON(w, http.StatusOK, orders)
}

// AddFavorite records a product on the favorites list, at most once.
func (s *Service) AddFavorite(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	productID := ps.ByName("productId")
	if _, err := s.Customers.UpdateOne(ctx,
		bson.M{"_id": utils.GetUserIDFromRequest(r)},
		bson.M{"$addToSet": bson.M{"favorites": productID}}); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to add favorite")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"status": "added", "productId": productID})
}

// RemoveFavorite takes a product off the favorites list.
func (s *Service) RemoveFavorite(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	productID := ps.ByName("productId")
	if _, err := s.Customers.UpdateOne(ctx,
		bson.M{"_id": utils.GetUserIDFromRequest(r)},
		bson.M{"$pull": bson.M{"favorites": productID}}); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to remove favorite")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"status": "removed", "productId": productID})
}

// ClearFavorites empties the favorites list.
func (s *Service) ClearFavorites(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if _, err := s.Customers.UpdateOne(ctx,
		bson.M{"_id": utils.GetUserIDFromRequest(r)},
		bson.M{"$set": bson.M{"favorites": []string{}}}); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to clear favorites")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"status": "cleared"})
}

// UpdatePreferences replaces the stored size and color preferences.
func (s *Service) UpdatePreferences(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var prefs models.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if _, err := s.Customers.UpdateOne(ctx,
		bson.M{"_id": utils.GetUserIDFromRequest(r)},
		bson.M{"$set": bson.M{"preferences": prefs, "updatedAt": time.Now()}}); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update preferences")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, prefs)
}

// UpdateSubscriptions sets the newsletter and sales opt-ins.
func (s *Service) UpdateSubscriptions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var payload struct {
		Newsletter *bool `json:"subscribedToNewsletter"`
		Sales      *bool `json:"subscribedToSales"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	set := bson.M{"updatedAt": time.Now()}
	if payload.Newsletter != nil {
		set["subscribedToNewsletter"] = *payload.Newsletter
	}
	if payload.Sales != nil {
		set["subscribedToSales"] = *payload.Sales
	}

	if _, err := s.Customers.UpdateOne(ctx,
		bson.M{"_id": utils.GetUserIDFromRequest(r)},
		bson.M{"$set": set}); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update subscriptions")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"status": "updated"})
}
