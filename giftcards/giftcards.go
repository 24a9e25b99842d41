// Package giftcards issues and redeems store gift cards. A card carries a
// face amount and a running balance; the status flips to redeemed only when
// the balance hits exactly zero.
package giftcards

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"fernway/db"
	"fernway/models"
	"fernway/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Notifier mails a digital card to its recipient. Must not block the request.
type Notifier interface {
	GiftCardIssued(card *models.GiftCard)
}

type Service struct {
	GiftCards *mongo.Collection
	Customers *mongo.Collection
	Secret    []byte
	Mailer    Notifier
}

func NewService(store *db.Store, secret []byte, mailer Notifier) *Service {
	return &Service{GiftCards: store.GiftCards, Customers: store.Customers, Secret: secret, Mailer: mailer}
}

// NewCode builds a card code like FW-1693526400-X7K2P9.
func NewCode(now time.Time) string {
	return fmt.Sprintf("FW-%d-%s", now.Unix(), utils.GenerateRandomString(6))
}

// Create issues a new card with balance equal to the face amount. The code is
// retried on the unlikely collision with an existing one.
func (s *Service) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var payload struct {
		Amount    float64              `json:"amount"`
		Type      string               `json:"type"`
		Recipient models.GiftCardParty `json:"recipient"`
		Sender    models.GiftCardParty `json:"sender"`
		Message   string               `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if payload.Amount <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Amount must be positive")
		return
	}
	if payload.Type == "" {
		payload.Type = "digital"
	}

	now := time.Now()
	card := models.GiftCard{
		ID:        utils.NewID("gc"),
		Amount:    payload.Amount,
		Balance:   payload.Amount,
		Type:      payload.Type,
		Recipient: payload.Recipient,
		Sender:    payload.Sender,
		Message:   payload.Message,
		Status:    models.GiftCardActive,
		ExpiresAt: now.AddDate(1, 0, 0),
		CreatedAt: now,
	}

	for attempt := 0; attempt < 3; attempt++ {
		card.Code = NewCode(now)
		_, err := s.GiftCards.InsertOne(ctx, card)
		if err == nil {
			if s.Mailer != nil {
				s.Mailer.GiftCardIssued(&card)
			}
			utils.RespondWithJSON(w, http.StatusCreated, card)
			return
		}
		if !db.IsDuplicateKey(err) {
			log.Println("gift card insert error:", err)
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create gift card")
			return
		}
	}
	utils.RespondWithError(w, http.StatusInternalServerError, "Failed to allocate a gift card code")
}

// Get looks a card up by code.
func (s *Service) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var card models.GiftCard
	if err := s.GiftCards.FindOne(ctx, bson.M{"code": ps.ByName("code")}).Decode(&card); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Gift card not found")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, card)
}

// List returns cards, optionally filtered by status.
func (s *Service) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filter := bson.M{}
	if status := r.URL.Query().Get("status"); status != "" {
		filter["status"] = status
	}

	cursor, err := s.GiftCards.Find(ctx, filter)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Could not retrieve gift cards")
		return
	}
	defer cursor.Close(ctx)

	var cards []models.GiftCard
	if err := cursor.All(ctx, &cards); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error reading gift card data")
		return
	}
	if cards == nil {
		cards = []models.GiftCard{}
	}
	utils.RespondWithJSON(w, http.StatusOK, cards)
}

// RedeemResult describes the outcome of applying an amount to a card.
type RedeemResult struct {
	Deducted   float64
	NewBalance float64
	NewStatus  string
}

// ApplyRedemption computes the deduction for redeeming amount against a card.
// Redeeming more than the balance is rejected outright; the card becomes
// redeemed only when the new balance is exactly zero.
func ApplyRedemption(card *models.GiftCard, amount float64) (*RedeemResult, error) {
	if card.Status != models.GiftCardActive {
		return nil, fmt.Errorf("gift card is %s", card.Status)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("redemption amount must be positive, got %.2f", amount)
	}
	if amount > card.Balance {
		return nil, fmt.Errorf("redemption of %.2f exceeds remaining balance %.2f", amount, card.Balance)
	}

	deducted := amount
	newBalance := math.Round((card.Balance-deducted)*100) / 100

	status := models.GiftCardActive
	if newBalance == 0 {
		status = models.GiftCardRedeemed
	}
	return &RedeemResult{Deducted: deducted, NewBalance: newBalance, NewStatus: status}, nil
}

// SettledForCart reports whether the card has already paid for this cart.
func SettledForCart(card *models.GiftCard, cartID string) bool {
	for _, id := range card.SettledCarts {
		if id == cartID {
			return true
		}
	}
	return false
}

// SettleFilter matches the card only while it is active, still holds the
// balance the caller read, and has not settled this cart yet. A replay for
// the same cart matches nothing.
func SettleFilter(card *models.GiftCard, cartID string) bson.M {
	return bson.M{
		"code":         card.Code,
		"status":       models.GiftCardActive,
		"balance":      card.Balance,
		"settledCarts": bson.M{"$ne": cartID},
	}
}

// SettleUpdate applies a redemption result and records the cart it paid for.
func SettleUpdate(result *RedeemResult, cartID string, now time.Time) bson.M {
	set := bson.M{"balance": result.NewBalance, "status": result.NewStatus}
	if result.NewStatus == models.GiftCardRedeemed {
		set["redeemedAt"] = now
	}
	return bson.M{"$set": set, "$addToSet": bson.M{"settledCarts": cartID}}
}

// Redeem deducts an amount from a card and credits it to the caller's store
// balance. The card update is conditional on the balance it was read with, so
// two concurrent redemptions cannot both spend the same funds.
func (s *Service) Redeem(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload struct {
		Code   string  `json:"code"`
		Amount float64 `json:"amount"`
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

	amount := payload.Amount
	if amount == 0 {
		amount = card.Balance
	}

	result, err := ApplyRedemption(&card, amount)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	update := bson.M{"$set": bson.M{"balance": result.NewBalance, "status": result.NewStatus}}
	if result.NewStatus == models.GiftCardRedeemed {
		update["$set"].(bson.M)["redeemedAt"] = time.Now()
	}

	res, err := s.GiftCards.UpdateOne(ctx,
		bson.M{"code": card.Code, "status": models.GiftCardActive, "balance": card.Balance},
		update)
	if err != nil {
		log.Println("gift card redeem error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to redeem gift card")
		return
	}
	if res.MatchedCount == 0 {
		utils.RespondWithError(w, http.StatusConflict, "Gift card changed concurrently, retry")
		return
	}

	if _, err := s.Customers.UpdateOne(ctx, bson.M{"_id": userID},
		bson.M{"$inc": bson.M{"giftCardBalance": result.Deducted}}); err != nil {
		log.Println("gift card credit error:", err)
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"code":       card.Code,
		"deducted":   result.Deducted,
		"newBalance": result.NewBalance,
		"status":     result.NewStatus,
	})
}
