// Package carts owns the mutable pre-checkout state. A cart stores item
// snapshots and a client-facing subtotal; nothing in here is authoritative
// for billing, checkout re-prices every line from the product records.
package carts

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fernway/db"
	"fernway/models"
	"fernway/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Discount codes honored at apply time. Percentages, not fixed amounts.
var discountCodes = map[string]float64{
	"WELCOME10": 0.10,
	"SALE20":    0.20,
}

type Service struct {
	Carts     *mongo.Collection
	Products  *mongo.Collection
	GiftCards *mongo.Collection
}

func NewService(store *db.Store) *Service {
	return &Service{
		Carts:     store.Carts,
		Products:  store.Products,
		GiftCards: store.GiftCards,
	}
}

// CreateCart starts an empty cart bound to the caller's customer ID when
// authenticated, or to a client-supplied session ID for guests.
func (s *Service) CreateCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var payload struct {
		SessionID string `json:"sessionId"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	now := time.Now()
	cart := models.Cart{
		ID:         utils.NewID("crt"),
		CustomerID: utils.GetUserIDFromRequest(r),
		SessionID:  payload.SessionID,
		Items:      []models.CartItem{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if cart.CustomerID == "" && cart.SessionID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "A session ID is required for guest carts")
		return
	}

	if _, err := s.Carts.InsertOne(ctx, cart); err != nil {
		log.Println("CreateCart insert error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create cart")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, cart)
}

// GetCart returns the cart with each line enriched with the product's
// current price and availability, so the client can warn about drift
// before checkout.
func (s *Service) GetCart(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	cart, err := s.load(ctx, ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Cart not found")
		return
	}

	type enrichedItem struct {
		models.CartItem
		CurrentPrice float64 `json:"currentPrice"`
		Available    bool    `json:"available"`
	}

	enriched := make([]enrichedItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		e := enrichedItem{CartItem: item, CurrentPrice: item.Price}
		var product models.Product
		if err := s.Products.FindOne(ctx, bson.M{"_id": item.ProductID}).Decode(&product); err == nil {
			e.CurrentPrice = product.CheckoutPrice()
			e.Available = true
		}
		enriched = append(enriched, e)
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"cartId":         cart.ID,
		"items":          enriched,
		"subtotal":       cart.Subtotal,
		"discountCode":   cart.DiscountCode,
		"discountAmount": cart.DiscountAmount,
		"giftCardCode":   cart.GiftCardCode,
		"giftCardAmount": cart.GiftCardAmount,
	})
}

// AddItem appends a line, or merges into an existing line when the same
// product, size and color is already present.
func (s *Service) AddItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var payload struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
		Size      string `json:"size"`
		Color     string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if payload.ProductID == "" || payload.Quantity <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "productId and a positive quantity are required")
		return
	}

	var product models.Product
	if err := s.Products.FindOne(ctx, bson.M{"_id": payload.ProductID}).Decode(&product); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}
	if err := ValidateVariant(&product, payload.Size, payload.Color); err != "" {
		utils.RespondWithError(w, http.StatusBadRequest, err)
		return
	}

	cart, err := s.load(ctx, ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Cart not found")
		return
	}

	image := ""
	if len(product.Images) > 0 {
		image = product.Images[0].URL
	}
	cart.Items = MergeItem(cart.Items, models.CartItem{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.CheckoutPrice(),
		Quantity:  payload.Quantity,
		Size:      payload.Size,
		Color:     payload.Color,
		Image:     image,
	})

	s.save(ctx, w, cart)
}

// UpdateItem sets the quantity, size or color of the line at the given index.
// Quantity zero removes the line.
func (s *Service) UpdateItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	index, err := strconv.Atoi(ps.ByName("index"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid item index")
		return
	}

	var payload struct {
		Quantity *int    `json:"quantity"`
		Size     *string `json:"size"`
		Color    *string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	cart, err := s.load(ctx, ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Cart not found")
		return
	}
	if index < 0 || index >= len(cart.Items) {
		utils.RespondWithError(w, http.StatusBadRequest, "Item index out of range")
		return
	}

	item := &cart.Items[index]
	if payload.Size != nil || payload.Color != nil {
		var product models.Product
		if err := s.Products.FindOne(ctx, bson.M{"_id": item.ProductID}).Decode(&product); err != nil {
			utils.RespondWithError(w, http.StatusNotFound, "Product no longer exists")
			return
		}
		size, color := item.Size, item.Color
		if payload.Size != nil {
			size = *payload.Size
		}
		if payload.Color != nil {
			color = *payload.Color
		}
		if msg := ValidateVariant(&product, size, color); msg != "" {
			utils.RespondWithError(w, http.StatusBadRequest, msg)
			return
		}
		item.Size, item.Color = size, color
	}
	if payload.Quantity != nil {
		if *payload.Quantity < 0 {
			utils.RespondWithError(w, http.StatusBadRequest, "Quantity cannot be negative")
			return
		}
		if *payload.Quantity == 0 {
			cart.Items = append(cart.Items[:index], cart.Items[index+1:]...)
		} else {
			item.Quantity = *payload.Quantity
		}
	}

	s.save(ctx, w, cart)
}

// RemoveItem deletes the line at the given index.
func (s *Service) RemoveItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	index, err := strconv.Atoi(ps.ByName("index"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid item index")
		return
	}

	cart, err := s.load(ctx, ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Cart not found")
		return
	}
	if index < 0 || index >= len(cart.Items) {
		utils.RespondWithError(w, http.StatusBadRequest, "Item index out of range")
		return
	}
	cart.Items = append(cart.Items[:index], cart.Items[index+1:]...)

	s.save(ctx, w, cart)
}

// ApplyDiscount validates a promotion code and records the resulting
// percentage discount on the cart.
func (s *Service) ApplyDiscount(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var payload struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	code := strings.ToUpper(strings.TrimSpace(payload.Code))
	rate, ok := discountCodes[code]
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid discount code")
		return
	}

	cart, err := s.load(ctx, ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Cart not found")
		return
	}

	cart.DiscountCode = code
	cart.DiscountAmount = round2(Subtotal(cart.Items) * rate)

	s.save(ctx, w, cart)
}

// ApplyGiftCard attaches an active gift card to the cart. The applied amount
// is the lesser of the card balance and the cart subtotal; the card itself is
// only decremented at checkout.
func (s *Service) ApplyGiftCard(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var payload struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	var card models.GiftCard
	if err := s.GiftCards.FindOne(ctx, bson.M{"code": payload.Code}).Decode(&card); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Gift card not found")
		return
	}
	if card.Status != models.GiftCardActive || card.Balance <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Gift card is not active or has no balance")
		return
	}

	cart, err := s.load(ctx, ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Cart not found")
		return
	}

	cart.GiftCardCode = card.Code
	cart.GiftCardAmount = math.Min(card.Balance, Subtotal(cart.Items))

	s.save(ctx, w, cart)
}

func (s *Service) load(ctx context.Context, cartID string) (*models.Cart, error) {
	var cart models.Cart
	err := s.Carts.FindOne(ctx, bson.M{"_id": cartID}).Decode(&cart)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// save recomputes the subtotal, re-clamps any applied discount or gift card,
// and persists the cart.
func (s *Service) save(ctx context.Context, w http.ResponseWriter, cart *models.Cart) {
	cart.Subtotal = Subtotal(cart.Items)
	if cart.DiscountCode != "" {
		cart.DiscountAmount = round2(cart.Subtotal * discountCodes[cart.DiscountCode])
	}
	if cart.GiftCardAmount > cart.Subtotal {
		cart.GiftCardAmount = cart.Subtotal
	}
	cart.UpdatedAt = time.Now()

	if _, err := s.Carts.ReplaceOne(ctx, bson.M{"_id": cart.ID}, cart); err != nil {
		log.Println("cart save error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to save cart")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, cart)
}

// MergeItem adds item to the line list, folding the quantity into an existing
// line when product, size and color all match.
func MergeItem(items []models.CartItem, item models.CartItem) []models.CartItem {
	for i := range items {
		if items[i].ProductID == item.ProductID &&
			items[i].Size == item.Size &&
			items[i].Color == item.Color {
			items[i].Quantity += item.Quantity
			return items
		}
	}
	return append(items, item)
}

// Subtotal sums price*quantity over the lines, rounded to cents.
func Subtotal(items []models.CartItem) float64 {
	var sum float64
	for _, item := range items {
		sum += item.Price * float64(item.Quantity)
	}
	return round2(sum)
}

// ValidateVariant returns an error message when the requested size or color
// is not offered by the product, empty string otherwise.
func ValidateVariant(p *models.Product, size, color string) string {
	if size != "" && len(p.Sizes) > 0 {
		found := false
		for _, s := range p.Sizes {
			if s.Size == size {
				found = true
				break
			}
		}
		if !found {
			return "Size not available for this product"
		}
	}
	if color != "" && len(p.Colors) > 0 {
		found := false
		for _, c := range p.Colors {
			if c == color {
				found = true
				break
			}
		}
		if !found {
			return "Color not available for this product"
		}
	}
	return ""
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
