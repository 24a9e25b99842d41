package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store holds the collection handles for the whole application. It is
// constructed once in main and injected into each component; there are no
// package-level connections.
type Store struct {
	Client *mongo.Client

	Products    *mongo.Collection
	Carts       *mongo.Collection
	Orders      *mongo.Collection
	Customers   *mongo.Collection
	Inventory   *mongo.Collection
	GiftCards   *mongo.Collection
	Idempotency *mongo.Collection
}

func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	database := client.Database(dbName)
	return &Store{
		Client:      client,
		Products:    database.Collection("products"),
		Carts:       database.Collection("carts"),
		Orders:      database.Collection("orders"),
		Customers:   database.Collection("customers"),
		Inventory:   database.Collection("inventory"),
		GiftCards:   database.Collection("giftcards"),
		Idempotency: database.Collection("idempotency"),
	}, nil
}

// EnsureIndexes creates the uniqueness and TTL indexes the invariants rely on.
// orders.cartId is unique+sparse so a cart can be materialized into an order
// at most once, no matter which path (sync checkout or webhook) gets there.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	caseInsensitive := options.Collation{Locale: "en", Strength: 2}

	if _, err := s.Customers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.M{"email": 1},
		Options: options.Index().
			SetUnique(true).
			SetCollation(&caseInsensitive).
			SetName("unique_email"),
	}); err != nil {
		return err
	}

	if _, err := s.Orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"cartId": 1},
		Options: options.Index().SetUnique(true).SetSparse(true).SetName("unique_cart"),
	}); err != nil {
		return err
	}

	if _, err := s.Inventory.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"sku": 1},
		Options: options.Index().SetUnique(true).SetName("unique_sku"),
	}); err != nil {
		return err
	}

	if _, err := s.GiftCards.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"code": 1},
		Options: options.Index().SetUnique(true).SetName("unique_code"),
	}); err != nil {
		return err
	}

	_, err := s.Idempotency.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.M{"key": 1},
			Options: options.Index().SetUnique(true).SetName("unique_key"),
		},
		{
			Keys:    bson.M{"expires_at": 1},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("ttl_expires_at"),
		},
	})
	return err
}

func (s *Store) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.Client.Disconnect(ctx)
}

// IsDuplicateKey reports whether err is a Mongo unique-index violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if we, ok := err.(mongo.WriteException); ok {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return mongo.IsDuplicateKeyError(err)
}
