// Package admin is the role-gated back office: order management, customer
// lookup, and a live order event stream for the dashboard.
package admin

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"fernway/checkout"
	"fernway/db"
	"fernway/inventory"
	"fernway/models"
	"fernway/payment"
	"fernway/rdx"
	"fernway/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var validStatuses = map[string]bool{
	models.OrderPending:    true,
	models.OrderProcessing: true,
	models.OrderShipped:    true,
	models.OrderDelivered:  true,
	models.OrderCancelled:  true,
}

// StatusNotifier sends order status mail to the customer.
type StatusNotifier interface {
	OrderStatus(order *models.Order)
}

type Service struct {
	Store     *db.Store
	Inventory *inventory.Service
	Gateway   payment.Gateway
	Cache     *rdx.Client
	Mailer    StatusNotifier
}

func NewService(store *db.Store, inv *inventory.Service, gateway payment.Gateway, cache *rdx.Client, mailer StatusNotifier) *Service {
	return &Service{Store: store, Inventory: inv, Gateway: gateway, Cache: cache, Mailer: mailer}
}

// ListOrders returns orders newest first, optionally filtered by status or
// customer, with pagination.
func (s *Service) ListOrders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filter := bson.M{}
	if status := r.URL.Query().Get("status"); status != "" {
		filter["status"] = status
	}
	if customerID := r.URL.Query().Get("customerId"); customerID != "" {
		filter["customerId"] = customerID
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 25
	}

	total, err := s.Store.Orders.CountDocuments(ctx, filter)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Could not retrieve orders")
		return
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cursor, err := s.Store.Orders.Find(ctx, filter, opts)
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

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"orders": orders,
		"total":  total,
		"page":   page,
	})
}

// GetOrder returns one order.
func (s *Service) GetOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var order models.Order
	if err := s.Store.Orders.FindOne(ctx, bson.M{"_id": ps.ByName("id")}).Decode(&order); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Order not found")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, order)
}

// UpdateStatus moves an order to a new status. Cancellation goes through
// CancelOrder, which also refunds and releases stock.
func (s *Service) UpdateStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var payload struct {
		Status         string `json:"status"`
		TrackingNumber string `json:"trackingNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if !validStatuses[payload.Status] || payload.Status == models.OrderCancelled {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	set := bson.M{"status": payload.Status, "updatedAt": time.Now()}
	if payload.TrackingNumber != "" {
		set["trackingNumber"] = payload.TrackingNumber
	}

	after := options.After
	var order models.Order
	err := s.Store.Orders.FindOneAndUpdate(ctx,
		bson.M{"_id": ps.ByName("id"), "status": bson.M{"$ne": models.OrderCancelled}},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(after),
	).Decode(&order)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Order not found or cancelled")
		return
	}

	if s.Mailer != nil {
		s.Mailer.OrderStatus(&order)
	}
	s.publish(ctx, models.OrderEvent{
		Type:       "order_status",
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Status:     order.Status,
		At:         time.Now(),
	})

	utils.RespondWithJSON(w, http.StatusOK, order)
}

// CancelFilter matches an order only while it can still be cancelled. An
// order that already left pending or processing, including one a concurrent
// request just cancelled, matches nothing.
func CancelFilter(orderID string) bson.M {
	return bson.M{
		"_id":    orderID,
		"status": bson.M{"$in": bson.A{models.OrderPending, models.OrderProcessing}},
	}
}

// CancelUpdate flips the order to cancelled.
func CancelUpdate(now time.Time) bson.M {
	return bson.M{"$set": bson.M{"status": models.OrderCancelled, "updatedAt": now}}
}

// CancelOrder cancels an order that has not shipped. The conditional update
// is the gate: only the request that actually flips the status runs the
// refund and the stock release, so a double-click cancels once.
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	after := options.After
	var order models.Order
	err := s.Store.Orders.FindOneAndUpdate(ctx,
		CancelFilter(ps.ByName("id")),
		CancelUpdate(time.Now()),
		options.FindOneAndUpdate().SetReturnDocument(after),
	).Decode(&order)
	if err != nil {
		utils.RespondWithError(w, http.StatusConflict, "Order cannot be cancelled")
		return
	}

	s.Inventory.ReleaseItems(ctx, order.Items)

	if order.PaymentID != "" {
		_, err := s.Gateway.Refund(ctx, payment.RefundRequest{
			PaymentID:      order.PaymentID,
			Reason:         "order cancelled",
			IdempotencyKey: "refund-" + order.ID,
		})
		if err != nil {
			// The order stays cancelled; the refund goes to reconciliation.
			log.Printf("cancel: refund of payment %s for order %s failed: %v", order.PaymentID, order.ID, err)
		} else {
			if _, uerr := s.Store.Orders.UpdateOne(ctx, bson.M{"_id": order.ID},
				bson.M{"$set": bson.M{"paymentStatus": "refunded"}}); uerr != nil {
				log.Println("cancel: recording refund:", uerr)
			}
			order.PaymentStatus = "refunded"
		}
	}

	if s.Mailer != nil {
		s.Mailer.OrderStatus(&order)
	}
	s.publish(ctx, models.OrderEvent{
		Type:       "order_status",
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Status:     models.OrderCancelled,
		At:         time.Now(),
	})

	utils.RespondWithJSON(w, http.StatusOK, order)
}

// ListCustomers returns customer accounts for the back office.
func (s *Service) ListCustomers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(200)
	cursor, err := s.Store.Customers.Find(ctx, bson.M{}, opts)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Could not retrieve customers")
		return
	}
	defer cursor.Close(ctx)

	var customers []models.Customer
	if err := cursor.All(ctx, &customers); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error reading customer data")
		return
	}
	if customers == nil {
		customers = []models.Customer{}
	}
	utils.RespondWithJSON(w, http.StatusOK, customers)
}

func (s *Service) publish(ctx context.Context, event models.OrderEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.Cache.Publish(ctx, checkout.OrdersChannel, payload); err != nil {
		log.Println("admin: publishing order event:", err)
	}
}
