// Package checkout is the money path: it re-prices the cart from the product
// records, charges the configured processor, and materializes the paid cart
// into an order exactly once.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"fernway/carts"
	"fernway/config"
	"fernway/db"
	"fernway/giftcards"
	"fernway/inventory"
	"fernway/models"
	"fernway/payment"
	"fernway/pricing"
	"fernway/rdx"
	"fernway/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
)

// claimTTL bounds how long a cart stays claimed if the process dies
// mid-checkout.
const claimTTL = 2 * time.Minute

// priceMismatchToleranceCents allows for client-side float drift on direct
// purchases before the request is rejected.
const priceMismatchToleranceCents = 2

type Service struct {
	Store   *db.Store
	Cache   *rdx.Client
	Gateway payment.Gateway
	Opts    pricing.Options

	materializer  *Materializer
	webhookSecret []byte
}

func NewService(store *db.Store, cache *rdx.Client, gateway payment.Gateway, cfg *config.Config, mailer Notifier, inv *inventory.Service) *Service {
	return &Service{
		Store:   store,
		Cache:   cache,
		Gateway: gateway,
		Opts: pricing.Options{
			TaxRate:               cfg.TaxRate,
			FreeShippingThreshold: cfg.FreeShippingThreshold,
			ShippingFee:           cfg.ShippingFee,
			MinChargeCents:        cfg.MinChargeCents,
		},
		materializer:  &Materializer{Store: store, Inventory: inv, Cache: cache, Mailer: mailer},
		webhookSecret: []byte(cfg.WebhookSecret),
	}
}

type checkoutRequest struct {
	CartID       string         `json:"cartId"`
	SourceToken  string         `json:"sourceToken"`
	Email        string         `json:"email"`
	ShippingAddr models.Address `json:"shippingAddress"`
	Notes        string         `json:"notes"`
}

// Checkout charges the cart and creates the order. The per-cart claim lock
// rejects a second concurrent attempt up front; the unique cartId index on
// orders catches anything that slips past it.
func (s *Service) Checkout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.CartID == "" || req.SourceToken == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "cartId and sourceToken are required")
		return
	}
	if req.Email != "" && !utils.IsValidEmail(req.Email) {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid email address")
		return
	}

	var cart models.Cart
	if err := s.Store.Carts.FindOne(ctx, bson.M{"_id": req.CartID}).Decode(&cart); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Cart not found")
		return
	}
	if len(cart.Items) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Cart is empty")
		return
	}

	claimKey := "checkout:cart:" + cart.ID
	claimed, err := s.Cache.SetNX(ctx, claimKey, "1", claimTTL)
	if err != nil {
		log.Println("checkout claim error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Checkout temporarily unavailable")
		return
	}
	if !claimed {
		utils.RespondWithError(w, http.StatusConflict, "Checkout already in progress for this cart")
		return
	}
	defer func() {
		if err := s.Cache.Del(context.Background(), claimKey); err != nil {
			log.Println("checkout claim release error:", err)
		}
	}()

	items, lines, err := s.repriceCart(ctx, &cart)
	if err != nil {
		utils.RespondWithError(w, http.StatusConflict, err.Error())
		return
	}

	totals := pricing.Quote(lines, cart.DiscountAmount, cart.GiftCardAmount, s.Opts)

	var conf *payment.Confirmation
	provider := s.Gateway.Provider()
	if totals.TotalCents > 0 {
		conf, err = s.Gateway.Charge(ctx, newChargeRequest(&cart, req.SourceToken, req.Email, "Fernway order", totals, s.Opts))
		if err != nil {
			s.respondChargeError(w, err)
			return
		}
	} else {
		// Fully covered by the gift card, nothing to charge.
		provider = "giftcard"
	}

	if cart.GiftCardCode != "" && totals.GiftCardCents > 0 {
		s.settleGiftCard(ctx, &cart, pricing.Dollars(totals.GiftCardCents))
	}

	order := BuildOrder(&cart, items, totals, conf, provider, req.Email, req.ShippingAddr, req.Notes)
	created, err := s.materializer.Materialize(ctx, order)
	if err != nil {
		// The charge succeeded but the order insert failed. Surface the
		// payment ID so support can reconcile.
		log.Printf("checkout: order materialization failed after payment %s: %v", order.PaymentID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Payment captured but order creation failed, contact support")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, created)
}

// Preview computes what checkout would charge right now, without locking,
// charging, or mutating anything. It uses the same Quote the final path uses.
func (s *Service) Preview(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var cart models.Cart
	if err := s.Store.Carts.FindOne(ctx, bson.M{"_id": ps.ByName("id")}).Decode(&cart); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Cart not found")
		return
	}

	_, lines, err := s.repriceCart(ctx, &cart)
	if err != nil {
		utils.RespondWithError(w, http.StatusConflict, err.Error())
		return
	}

	totals := pricing.Quote(lines, cart.DiscountAmount, cart.GiftCardAmount, s.Opts)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"subtotal": pricing.Dollars(totals.SubtotalCents),
		"tax":      pricing.Dollars(totals.TaxCents),
		"shipping": pricing.Dollars(totals.ShippingCents),
		"discount": pricing.Dollars(totals.DiscountCents),
		"giftCard": pricing.Dollars(totals.GiftCardCents),
		"total":    pricing.Dollars(totals.TotalCents),
	})
}

type directRequest struct {
	Items          []models.CartItem `json:"items"`
	ExpectedTotal  float64           `json:"expectedTotal"`
	SourceToken    string            `json:"sourceToken"`
	Email          string            `json:"email"`
	ShippingAddr   models.Address    `json:"shippingAddress"`
	IdempotencyKey string            `json:"idempotencyKey"`
}

// Direct charges a one-shot purchase without a stored cart. The client sends
// the total it displayed; a mismatch beyond two cents against the re-priced
// total rejects the request with the authoritative numbers.
func (s *Service) Direct(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req directRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if len(req.Items) == 0 || req.SourceToken == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "items and sourceToken are required")
		return
	}
	for i := range req.Items {
		if req.Items[i].Quantity < 1 {
			utils.RespondWithError(w, http.StatusBadRequest, "Item quantity must be at least 1")
			return
		}
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = utils.GetUUID()
	}

	cart := models.Cart{ID: "", CustomerID: utils.GetUserIDFromRequest(r), Items: req.Items}
	items, lines, err := s.repriceCart(ctx, &cart)
	if err != nil {
		utils.RespondWithError(w, http.StatusConflict, err.Error())
		return
	}

	totals := pricing.Quote(lines, 0, 0, s.Opts)
	if diff := totals.TotalCents - pricing.Cents(req.ExpectedTotal); diff > priceMismatchToleranceCents || diff < -priceMismatchToleranceCents {
		utils.RespondWithJSON(w, http.StatusBadRequest, utils.M{
			"error": "Price has changed since the page was loaded",
			"total": pricing.Dollars(totals.TotalCents),
		})
		return
	}

	conf, err := s.Gateway.Charge(ctx, payment.ChargeRequest{
		SourceToken:    req.SourceToken,
		AmountCents:    pricing.ClampMinimum(totals.TotalCents, s.Opts.MinChargeCents),
		BuyerEmail:     req.Email,
		IdempotencyKey: req.IdempotencyKey,
		Note:           "Fernway direct purchase",
	})
	if err != nil {
		s.respondChargeError(w, err)
		return
	}

	order := BuildOrder(&cart, items, totals, conf, s.Gateway.Provider(), req.Email, req.ShippingAddr, "")
	created, err := s.materializer.Materialize(ctx, order)
	if err != nil {
		log.Printf("direct checkout: order materialization failed after payment %s: %v", order.PaymentID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Payment captured but order creation failed, contact support")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, created)
}

// GetPayment proxies a payment status lookup to the processor.
func (s *Service) GetPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	conf, err := s.Gateway.GetPayment(ctx, ps.ByName("id"))
	if err != nil {
		if errors.Is(err, payment.ErrUnavailable) {
			utils.RespondWithError(w, http.StatusServiceUnavailable, "Payment processor unavailable")
			return
		}
		utils.RespondWithError(w, http.StatusNotFound, "Payment not found")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, conf)
}

// newChargeRequest mints a fresh idempotency key for every attempt, so a
// declined cart can be retried with a new token. Double-charge protection
// comes from the claim lock and the unique cartId index, not from key reuse.
func newChargeRequest(cart *models.Cart, token, email, note string, totals pricing.Totals, opts pricing.Options) payment.ChargeRequest {
	return payment.ChargeRequest{
		SourceToken:    token,
		AmountCents:    pricing.ClampMinimum(totals.TotalCents, opts.MinChargeCents),
		BuyerEmail:     email,
		IdempotencyKey: utils.GetUUID(),
		ReferenceID:    cart.ID,
		Note:           note,
	}
}

// validateItem re-checks a line at the checkout boundary. Direct purchases
// never went through the cart handlers, so quantity and variant rules are
// enforced here for every path.
func validateItem(item *models.CartItem, product *models.Product) error {
	if item.Quantity < 1 {
		return fmt.Errorf("invalid quantity %d for product %s", item.Quantity, item.ProductID)
	}
	if msg := carts.ValidateVariant(product, item.Size, item.Color); msg != "" {
		return errors.New(msg)
	}
	return nil
}

// repriceCart rebuilds every line from the current product records. Snapshot
// prices in the cart are advisory only; a missing product fails the checkout.
func (s *Service) repriceCart(ctx context.Context, cart *models.Cart) ([]models.CartItem, []pricing.Line, error) {
	items := make([]models.CartItem, 0, len(cart.Items))
	lines := make([]pricing.Line, 0, len(cart.Items))
	for _, item := range cart.Items {
		var product models.Product
		if err := s.Store.Products.FindOne(ctx, bson.M{"_id": item.ProductID}).Decode(&product); err != nil {
			return nil, nil, fmt.Errorf("product %s is no longer available", item.ProductID)
		}
		if err := validateItem(&item, &product); err != nil {
			return nil, nil, err
		}
		item.Name = product.Name
		item.Price = product.CheckoutPrice()
		items = append(items, item)
		lines = append(lines, pricing.Line{Price: item.Price, Quantity: item.Quantity})
	}
	return items, lines, nil
}

// settleGiftCard deducts the applied amount from the card at the moment the
// charge succeeds. The settle is keyed on the cart, so the synchronous path
// and a webhook replay for the same cart deduct at most once. A failure here
// is logged for reconciliation; the order still stands.
func (s *Service) settleGiftCard(ctx context.Context, cart *models.Cart, amount float64) {
	var card models.GiftCard
	if err := s.Store.GiftCards.FindOne(ctx, bson.M{"code": cart.GiftCardCode}).Decode(&card); err != nil {
		log.Println("checkout: gift card lookup:", err)
		return
	}
	if giftcards.SettledForCart(&card, cart.ID) {
		return
	}
	if amount > card.Balance {
		// The balance shrank since the card was applied. The charge already
		// happened against the applied amount; deduct what remains and log
		// the gap for reconciliation.
		log.Printf("checkout: gift card %s balance %.2f below applied amount %.2f", card.Code, card.Balance, amount)
		amount = card.Balance
	}
	result, err := giftcards.ApplyRedemption(&card, amount)
	if err != nil {
		log.Println("checkout: gift card redemption:", err)
		return
	}
	res, err := s.Store.GiftCards.UpdateOne(ctx,
		giftcards.SettleFilter(&card, cart.ID),
		giftcards.SettleUpdate(result, cart.ID, time.Now()))
	if err != nil {
		log.Println("checkout: gift card settle:", err)
		return
	}
	if res.MatchedCount == 0 {
		log.Printf("checkout: gift card %s already settled for cart %s", card.Code, cart.ID)
	}
}

func (s *Service) respondChargeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payment.ErrInvalidToken):
		utils.RespondWithError(w, http.StatusBadRequest, "Payment token invalid or expired")
	case errors.Is(err, payment.ErrDeclined):
		utils.RespondWithError(w, http.StatusPaymentRequired, "Card declined")
	case errors.Is(err, payment.ErrBelowMinimum):
		utils.RespondWithError(w, http.StatusBadRequest, "Amount below processor minimum")
	case errors.Is(err, payment.ErrUnavailable):
		utils.RespondWithError(w, http.StatusServiceUnavailable, "Payment processor unavailable, try again")
	default:
		log.Println("charge error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Payment failed")
	}
}
