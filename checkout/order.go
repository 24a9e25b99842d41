package checkout

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"fernway/db"
	"fernway/inventory"
	"fernway/models"
	"fernway/payment"
	"fernway/pricing"
	"fernway/rdx"
	"fernway/utils"

	"go.mongodb.org/mongo-driver/bson"
)

// OrdersChannel is the Redis channel order lifecycle events are published on.
const OrdersChannel = "orders"

// Notifier sends customer-facing mail. Implementations must not block the
// checkout path.
type Notifier interface {
	OrderConfirmation(order *models.Order)
}

// BuildOrder assembles an order snapshot from re-priced lines and verified
// totals. Totals are stored in dollars but derived from the cent amounts that
// were actually charged, so order.Total always equals what the processor saw.
func BuildOrder(cart *models.Cart, items []models.CartItem, totals pricing.Totals, conf *payment.Confirmation, provider, email string, addr models.Address, notes string) *models.Order {
	now := time.Now()
	order := &models.Order{
		ID:             utils.NewID("ord"),
		CartID:         cart.ID,
		CustomerID:     cart.CustomerID,
		Email:          email,
		Items:          items,
		Subtotal:       pricing.Dollars(totals.SubtotalCents),
		Tax:            pricing.Dollars(totals.TaxCents),
		Shipping:       pricing.Dollars(totals.ShippingCents),
		Total:          pricing.Dollars(totals.TotalCents),
		DiscountCode:   cart.DiscountCode,
		DiscountAmount: pricing.Dollars(totals.DiscountCents),
		GiftCardUsed:   pricing.Dollars(totals.GiftCardCents),
		PaymentMethod:  provider,
		Status:         models.OrderPending,
		ShippingAddr:   addr,
		Notes:          notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if conf != nil {
		order.PaymentID = conf.PaymentID
		order.PaymentStatus = conf.Status
	}
	return order
}

// Materializer turns a paid cart into an order exactly once. The unique
// sparse index on orders.cartId is the arbiter: whichever path (synchronous
// checkout or webhook) inserts first wins, and the loser reads back the
// winner's order.
type Materializer struct {
	Store     *db.Store
	Inventory *inventory.Service
	Cache     *rdx.Client
	Mailer    Notifier
}

// Materialize inserts the order, then performs the follow-on effects: link
// the order to the customer, delete the cart, reserve stock, notify, publish.
// Effects after the insert are best-effort; the payment is already captured
// and the order record is the source of truth.
func (m *Materializer) Materialize(ctx context.Context, order *models.Order) (*models.Order, error) {
	if _, err := m.Store.Orders.InsertOne(ctx, order); err != nil {
		if db.IsDuplicateKey(err) {
			var existing models.Order
			if ferr := m.Store.Orders.FindOne(ctx, bson.M{"cartId": order.CartID}).Decode(&existing); ferr == nil {
				return &existing, nil
			}
		}
		return nil, err
	}

	if order.CustomerID != "" {
		if _, err := m.Store.Customers.UpdateOne(ctx,
			bson.M{"_id": order.CustomerID},
			bson.M{"$push": bson.M{"orders": order.ID}}); err != nil {
			log.Println("materialize: linking order to customer:", err)
		}
	}

	if order.CartID != "" {
		if _, err := m.Store.Carts.DeleteOne(ctx, bson.M{"_id": order.CartID}); err != nil {
			log.Println("materialize: deleting cart:", err)
		}
	}

	// Shortfalls here are logged, not fatal: the payment is captured, so the
	// order stands and the discrepancy goes to manual reconciliation.
	for _, err := range m.Inventory.ReserveItems(ctx, order.Items) {
		log.Printf("materialize: reservation shortfall on order %s: %v", order.ID, err)
	}

	if m.Mailer != nil {
		m.Mailer.OrderConfirmation(order)
	}
	m.publish(ctx, models.OrderEvent{
		Type:       "order_created",
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Status:     order.Status,
		Total:      order.Total,
		At:         time.Now(),
	})

	return order, nil
}

func (m *Materializer) publish(ctx context.Context, event models.OrderEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := m.Cache.Publish(ctx, OrdersChannel, payload); err != nil {
		log.Println("materialize: publishing order event:", err)
	}
}
