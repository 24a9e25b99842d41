package notify

import (
	"context"
	"log"
	"time"

	"fernway/db"
	"fernway/models"

	"go.mongodb.org/mongo-driver/bson"
)

// abandonedAfter is how long a cart must sit untouched before it counts as
// abandoned.
const abandonedAfter = 2 * time.Hour

// Sweeper periodically finds carts that went quiet and sends one reminder
// each. The notificationSent flag makes every cart eligible at most once.
type Sweeper struct {
	Store    *db.Store
	Mailer   *Mailer
	Interval time.Duration
}

// Run sweeps on a ticker until ctx is cancelled. Call it in a goroutine from
// main.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
			s.sweepStaleOrders(ctx)
		}
	}
}

// staleAfter is how long an order may sit in pending before the sweep flags
// it for manual review.
const staleAfter = 24 * time.Hour

func (s *Sweeper) sweepStaleOrders(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-staleAfter)
	cursor, err := s.Store.Orders.Find(ctx, bson.M{
		"status":    "pending",
		"createdAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		log.Println("stale order sweep:", err)
		return
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var order models.Order
		if err := cursor.Decode(&order); err != nil {
			log.Println("stale order decode:", err)
			continue
		}
		log.Printf("order %s pending since %s (payment %s), needs review",
			order.ID, order.CreatedAt.Format(time.RFC3339), order.PaymentID)
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-abandonedAfter)
	cursor, err := s.Store.Carts.Find(ctx, bson.M{
		"updatedAt":        bson.M{"$lt": cutoff},
		"notificationSent": false,
		"items.0":          bson.M{"$exists": true},
	})
	if err != nil {
		log.Println("abandoned cart sweep:", err)
		return
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var cart models.Cart
		if err := cursor.Decode(&cart); err != nil {
			log.Println("abandoned cart decode:", err)
			continue
		}
		// One bad cart must not stop the rest of the sweep.
		if err := s.notifyCart(ctx, &cart); err != nil {
			log.Printf("abandoned cart %s: %v", cart.ID, err)
		}
	}
}

func (s *Sweeper) notifyCart(ctx context.Context, cart *models.Cart) error {
	email := ""
	if cart.CustomerID != "" {
		var customer models.Customer
		if err := s.Store.Customers.FindOne(ctx, bson.M{"_id": cart.CustomerID}).Decode(&customer); err == nil {
			email = customer.Email
		}
	}

	// Mark first: a crash between mail and mark sends nothing rather than
	// sending twice on the next sweep.
	now := time.Now()
	res, err := s.Store.Carts.UpdateOne(ctx,
		bson.M{"_id": cart.ID, "notificationSent": false},
		bson.M{"$set": bson.M{"notificationSent": true, "abandonedAt": now}})
	if err != nil {
		return err
	}
	if res.ModifiedCount == 0 {
		// Another instance got there first.
		return nil
	}

	if email != "" {
		s.Mailer.AbandonedCart(email, cart)
	}
	return nil
}
