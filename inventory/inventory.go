// Package inventory tracks stock per (product, size, color) row. All
// decrements are single-document conditional updates so stock can never go
// negative, under any interleaving of concurrent checkouts.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

var ErrInsufficientStock = errors.New("insufficient stock")

type Service struct {
	Inventory *mongo.Collection
}

func NewService(store *db.Store) *Service {
	return &Service{Inventory: store.Inventory}
}

// ReserveFilter is the guard for a stock decrement: the row must exist and
// still hold at least qty units at the moment the update applies.
func ReserveFilter(sku string, qty int) bson.M {
	return bson.M{
		"sku":      sku,
		"quantity": bson.M{"$gte": qty},
	}
}

// ReserveUpdate moves qty units from quantity to reserved.
func ReserveUpdate(qty int, now time.Time) bson.M {
	return bson.M{
		"$inc": bson.M{"quantity": -qty, "reserved": qty},
		"$set": bson.M{"updatedAt": now},
	}
}

// ReleaseUpdate returns qty units from reserved back to quantity.
func ReleaseUpdate(qty int, now time.Time) bson.M {
	return bson.M{
		"$inc": bson.M{"quantity": qty, "reserved": -qty},
		"$set": bson.M{"updatedAt": now},
	}
}

// Reserve atomically decrements stock for one SKU. Returns
// ErrInsufficientStock when fewer than qty units remain; the row is left
// untouched in that case.
func (s *Service) Reserve(ctx context.Context, sku string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve quantity must be positive, got %d", qty)
	}
	res, err := s.Inventory.UpdateOne(ctx, ReserveFilter(sku, qty), ReserveUpdate(qty, time.Now()))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: sku %s qty %d", ErrInsufficientStock, sku, qty)
	}
	return nil
}

// Release undoes a reservation, e.g. when an order is cancelled.
func (s *Service) Release(ctx context.Context, sku string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("release quantity must be positive, got %d", qty)
	}
	res, err := s.Inventory.UpdateOne(ctx,
		bson.M{"sku": sku, "reserved": bson.M{"$gte": qty}},
		ReleaseUpdate(qty, time.Now()))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("release: no reservation of %d units on sku %s", qty, sku)
	}
	return nil
}

// ReserveItems reserves stock for every order line. Failures are collected,
// not fatal: by the time this runs the payment has already been captured, so
// shortfalls are logged for manual reconciliation instead of failing the order.
func (s *Service) ReserveItems(ctx context.Context, items []models.CartItem) []error {
	var errs []error
	for _, item := range items {
		sku := SKUFor(item.ProductID, item.Size, item.Color)
		if err := s.Reserve(ctx, sku, item.Quantity); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ReleaseItems returns reserved stock for every order line.
func (s *Service) ReleaseItems(ctx context.Context, items []models.CartItem) {
	for _, item := range items {
		sku := SKUFor(item.ProductID, item.Size, item.Color)
		if err := s.Release(ctx, sku, item.Quantity); err != nil {
			log.Println("inventory release:", err)
		}
	}
}

// SKUFor derives the stock-row key for a product variant. Sizeless and
// colorless products map to the bare product ID.
func SKUFor(productID, size, color string) string {
	sku := productID
	if size != "" {
		sku += "-" + size
	}
	if color != "" {
		sku += "-" + color
	}
	return sku
}

// SeedProduct creates one zeroed stock row per variant of a new product.
// Existing rows are left alone.
func (s *Service) SeedProduct(ctx context.Context, p *models.Product) error {
	now := time.Now()
	sizes := []string{""}
	if len(p.Sizes) > 0 {
		sizes = sizes[:0]
		for _, sz := range p.Sizes {
			sizes = append(sizes, sz.Size)
		}
	}
	colors := []string{""}
	if len(p.Colors) > 0 {
		colors = p.Colors
	}

	for _, size := range sizes {
		for _, color := range colors {
			record := models.InventoryRecord{
				ID:               utils.NewID("inv"),
				ProductID:        p.ID,
				SKU:              SKUFor(p.ID, size, color),
				Size:             size,
				Color:            color,
				RestockThreshold: 5,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if _, err := s.Inventory.InsertOne(ctx, record); err != nil {
				if db.IsDuplicateKey(err) {
					continue
				}
				return err
			}
		}
	}
	return nil
}

// List returns stock rows, optionally filtered by product.
func (s *Service) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filter := bson.M{}
	if pid := r.URL.Query().Get("productId"); pid != "" {
		filter["productId"] = pid
	}

	cursor, err := s.Inventory.Find(ctx, filter)
	if err != nil {
		log.Println("inventory list error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Could not retrieve inventory")
		return
	}
	defer cursor.Close(ctx)

	var records []models.InventoryRecord
	if err := cursor.All(ctx, &records); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error reading inventory data")
		return
	}
	if records == nil {
		records = []models.InventoryRecord{}
	}
	utils.RespondWithJSON(w, http.StatusOK, records)
}

// Restock adds units to one SKU and stamps lastRestocked.
func (s *Service) Restock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Quantity <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "A positive quantity is required")
		return
	}

	sku := ps.ByName("sku")
	now := time.Now()
	res, err := s.Inventory.UpdateOne(ctx, bson.M{"sku": sku}, bson.M{
		"$inc": bson.M{"quantity": payload.Quantity},
		"$set": bson.M{"lastRestocked": now, "updatedAt": now},
	})
	if err != nil {
		log.Println("restock error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to restock")
		return
	}
	if res.MatchedCount == 0 {
		utils.RespondWithError(w, http.StatusNotFound, "SKU not found")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"sku": sku, "added": payload.Quantity})
}

// UpdateThreshold sets the restock alert threshold for one SKU.
func (s *Service) UpdateThreshold(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var payload struct {
		RestockThreshold int `json:"restockThreshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.RestockThreshold < 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "A non-negative restockThreshold is required")
		return
	}

	res, err := s.Inventory.UpdateOne(ctx, bson.M{"sku": ps.ByName("sku")}, bson.M{
		"$set": bson.M{"restockThreshold": payload.RestockThreshold, "updatedAt": time.Now()},
	})
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update threshold")
		return
	}
	if res.MatchedCount == 0 {
		utils.RespondWithError(w, http.StatusNotFound, "SKU not found")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"status": "updated"})
}
