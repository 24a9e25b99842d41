// Package products serves the public catalog and its admin CRUD. Listing is
// read-heavy and unauthenticated; writes are role-gated in the routes.
package products

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"fernway/db"
	"fernway/inventory"
	"fernway/models"
	"fernway/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Service struct {
	Products  *mongo.Collection
	Inventory *inventory.Service
	UploadDir string
}

func NewService(store *db.Store, inv *inventory.Service, uploadDir string) *Service {
	return &Service{Products: store.Products, Inventory: inv, UploadDir: uploadDir}
}

// ListFilter builds the Mongo filter for catalog queries from URL parameters.
func ListFilter(q map[string]string) bson.M {
	filter := bson.M{}
	if category := q["category"]; category != "" {
		filter["category"] = category
	}
	if color := q["color"]; color != "" {
		filter["colors"] = color
	}
	if size := q["size"]; size != "" {
		filter["sizes.size"] = size
	}

	price := bson.M{}
	if min := q["minPrice"]; min != "" {
		if v, err := strconv.ParseFloat(min, 64); err == nil {
			price["$gte"] = v
		}
	}
	if max := q["maxPrice"]; max != "" {
		if v, err := strconv.ParseFloat(max, 64); err == nil {
			price["$lte"] = v
		}
	}
	if len(price) > 0 {
		filter["price"] = price
	}

	if search := q["search"]; search != "" {
		filter["$or"] = bson.A{
			bson.M{"name": primitive.Regex{Pattern: search, Options: "i"}},
			bson.M{"description": primitive.Regex{Pattern: search, Options: "i"}},
		}
	}
	return filter
}

// SortSpec maps a sort key to a Mongo sort document. Unknown keys fall back
// to newest first.
func SortSpec(key string) bson.D {
	switch key {
	case "price_asc":
		return bson.D{{Key: "price", Value: 1}}
	case "price_desc":
		return bson.D{{Key: "price", Value: -1}}
	case "rating":
		return bson.D{{Key: "rating", Value: -1}}
	case "name":
		return bson.D{{Key: "name", Value: 1}}
	default:
		return bson.D{{Key: "createdAt", Value: -1}}
	}
}

// List returns catalog products with filtering, sorting and pagination.
func (s *Service) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q := map[string]string{}
	for _, k := range []string{"category", "color", "size", "minPrice", "maxPrice", "search"} {
		q[k] = r.URL.Query().Get(k)
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 24
	}

	filter := ListFilter(q)
	opts := options.Find().
		SetSort(SortSpec(r.URL.Query().Get("sort"))).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	total, err := s.Products.CountDocuments(ctx, filter)
	if err != nil {
		log.Println("product count error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Could not retrieve products")
		return
	}

	cursor, err := s.Products.Find(ctx, filter, opts)
	if err != nil {
		log.Println("product list error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Could not retrieve products")
		return
	}
	defer cursor.Close(ctx)

	var products []models.Product
	if err := cursor.All(ctx, &products); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error reading product data")
		return
	}
	if products == nil {
		products = []models.Product{}
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"products": products,
		"total":    total,
		"page":     page,
		"pages":    (total + int64(limit) - 1) / int64(limit),
	})
}

// Get returns one product.
func (s *Service) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var product models.Product
	if err := s.Products.FindOne(ctx, bson.M{"_id": ps.ByName("id")}).Decode(&product); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, product)
}

// NewArrivals returns the current new-arrival set, newest first.
func (s *Service) NewArrivals(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.listFlagged(w, r, bson.M{"isNewArrival": true})
}

// SaleItems returns everything currently on sale.
func (s *Service) SaleItems(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.listFlagged(w, r, bson.M{"isSale": true})
}

func (s *Service) listFlagged(w http.ResponseWriter, r *http.Request, filter bson.M) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(50)
	cursor, err := s.Products.Find(ctx, filter, opts)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Could not retrieve products")
		return
	}
	defer cursor.Close(ctx)

	var products []models.Product
	if err := cursor.All(ctx, &products); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error reading product data")
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	utils.RespondWithJSON(w, http.StatusOK, products)
}

// Suggest returns up to eight product names matching a prefix, for the
// storefront search box.
func (s *Service) Suggest(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	prefix := r.URL.Query().Get("q")
	if prefix == "" {
		utils.RespondWithJSON(w, http.StatusOK, []string{})
		return
	}

	cursor, err := s.Products.Find(ctx,
		bson.M{"name": primitive.Regex{Pattern: "^" + prefix, Options: "i"}},
		options.Find().SetLimit(8).SetProjection(bson.M{"name": 1}))
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Search unavailable")
		return
	}
	defer cursor.Close(ctx)

	var names []string
	for cursor.Next(ctx) {
		var doc struct {
			Name string `bson:"name"`
		}
		if err := cursor.Decode(&doc); err == nil {
			names = append(names, doc.Name)
		}
	}
	if names == nil {
		names = []string{}
	}
	utils.RespondWithJSON(w, http.StatusOK, names)
}

// Create inserts a product and seeds a zeroed inventory row for each of its
// size and color variants.
func (s *Service) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var product models.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if product.Name == "" || product.Price <= 0 || product.Category == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "name, category and a positive price are required")
		return
	}

	now := time.Now()
	product.ID = utils.NewID("prd")
	product.CreatedAt = now
	product.UpdatedAt = now
	if product.Images == nil {
		product.Images = []models.ProductImage{}
	}

	if _, err := s.Products.InsertOne(ctx, product); err != nil {
		log.Println("product insert error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create product")
		return
	}

	if err := s.Inventory.SeedProduct(ctx, &product); err != nil {
		log.Println("inventory seed error:", err)
	}

	utils.RespondWithJSON(w, http.StatusCreated, product)
}

// Update patches a product document.
func (s *Service) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var patch bson.M
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	delete(patch, "_id")
	delete(patch, "productId")
	delete(patch, "createdAt")
	patch["updatedAt"] = time.Now()

	res, err := s.Products.UpdateOne(ctx, bson.M{"_id": ps.ByName("id")}, bson.M{"$set": patch})
	if err != nil {
		log.Println("product update error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update product")
		return
	}
	if res.MatchedCount == 0 {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"status": "updated"})
}

// Delete removes a product from the catalog. Inventory rows are kept for
// reporting on past orders.
func (s *Service) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := s.Products.DeleteOne(ctx, bson.M{"_id": ps.ByName("id")})
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete product")
		return
	}
	if res.DeletedCount == 0 {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"status": "deleted"})
}

// DeleteAll wipes the catalog. Admin only, intended for seeding resets.
func (s *Service) DeleteAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := s.Products.DeleteMany(ctx, bson.M{})
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete products")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"deleted": res.DeletedCount})
}
