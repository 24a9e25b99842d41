package checkout

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"fernway/models"
	"fernway/payment"
	"fernway/pricing"
	"fernway/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Webhook-Signature"

// VerifySignature checks the webhook HMAC over the raw body bytes. Constant
// time compare; an empty secret rejects everything.
func VerifySignature(secret, body []byte, signature string) bool {
	if len(secret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}

// capturedAmountMatches reports whether the processor-captured amount equals
// what the cart reprices to today, after the minimum-charge clamp the charge
// itself went through. Events that omit the amount pass.
func capturedAmountMatches(capturedCents, totalCents, minCents int64) bool {
	if capturedCents == 0 {
		return true
	}
	return capturedCents == pricing.ClampMinimum(totalCents, minCents)
}

type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		PaymentID   string `json:"paymentId"`
		CartID      string `json:"cartId"`
		AmountCents int64  `json:"amountCents"`
		Status      string `json:"status"`
		Email       string `json:"email"`
	} `json:"data"`
}

// Webhook receives asynchronous payment completion events from the processor
// and materializes the order for the referenced cart. Because both this path
// and the synchronous checkout insert against the unique cartId index, a cart
// paid through either path produces exactly one order, and redelivered events
// are absorbed.
func (s *Service) Webhook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if !VerifySignature(s.webhookSecret, body, r.Header.Get(SignatureHeader)) {
		utils.RespondWithError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid event payload")
		return
	}

	switch event.Type {
	case "payment.completed":
		s.handlePaymentCompleted(r.Context(), w, &event)
	default:
		// Unhandled event types are acknowledged so the processor stops
		// redelivering them.
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"received": true})
	}
}

func (s *Service) handlePaymentCompleted(ctx context.Context, w http.ResponseWriter, event *webhookEvent) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if event.Data.CartID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "event has no cartId")
		return
	}

	// Already materialized: acknowledge the redelivery.
	var existing models.Order
	if err := s.Store.Orders.FindOne(ctx, bson.M{"cartId": event.Data.CartID}).Decode(&existing); err == nil {
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"orderId": existing.ID, "duplicate": true})
		return
	}

	var cart models.Cart
	if err := s.Store.Carts.FindOne(ctx, bson.M{"_id": event.Data.CartID}).Decode(&cart); err != nil {
		// Cart gone and no order exists: nothing to materialize. Acknowledge
		// so the event is not redelivered forever, but log it.
		log.Printf("webhook: cart %s not found for payment %s", event.Data.CartID, event.Data.PaymentID)
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"received": true})
		return
	}

	items, lines, err := s.repriceCart(ctx, &cart)
	if err != nil {
		log.Println("webhook: repricing:", err)
		utils.RespondWithError(w, http.StatusConflict, err.Error())
		return
	}
	totals := pricing.Quote(lines, cart.DiscountAmount, cart.GiftCardAmount, s.Opts)
	if !capturedAmountMatches(event.Data.AmountCents, totals.TotalCents, s.Opts.MinChargeCents) {
		// A price edit between charge and delivery makes these diverge. The
		// captured amount stands; the gap goes to reconciliation.
		log.Printf("webhook: payment %s captured %d cents but cart %s reprices to %d cents",
			event.Data.PaymentID, event.Data.AmountCents, cart.ID, totals.TotalCents)
	}

	if cart.GiftCardCode != "" && totals.GiftCardCents > 0 {
		s.settleGiftCard(ctx, &cart, pricing.Dollars(totals.GiftCardCents))
	}

	conf := &payment.Confirmation{
		PaymentID:   event.Data.PaymentID,
		Status:      event.Data.Status,
		AmountCents: event.Data.AmountCents,
	}
	order := BuildOrder(&cart, items, totals, conf, s.Gateway.Provider(), event.Data.Email, models.Address{}, "")
	created, err := s.materializer.Materialize(ctx, order)
	if err != nil {
		log.Println("webhook: materialization:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to create order")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"orderId": created.ID})
}
