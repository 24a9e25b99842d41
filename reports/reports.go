// Package reports aggregates orders and inventory for the back office. All
// heavy lifting runs inside Mongo aggregation pipelines; cancelled orders are
// excluded from revenue everywhere.
package reports

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fernway/db"
	"fernway/models"
	"fernway/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type Service struct {
	Orders    *mongo.Collection
	Inventory *mongo.Collection
}

func NewService(store *db.Store) *Service {
	return &Service{Orders: store.Orders, Inventory: store.Inventory}
}

// PeriodRange resolves a named period to [start, end) plus the preceding
// window of equal length, used for the comparison figures.
func PeriodRange(period string, now time.Time) (start, end, prevStart, prevEnd time.Time, err error) {
	end = now
	switch period {
	case "today":
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case "week":
		start = now.AddDate(0, 0, -7)
	case "month":
		start = now.AddDate(0, -1, 0)
	case "year":
		start = now.AddDate(-1, 0, 0)
	default:
		err = fmt.Errorf("unknown period %q", period)
		return
	}
	window := end.Sub(start)
	prevEnd = start
	prevStart = start.Add(-window)
	return
}

// SalesPipeline sums revenue and order counts over a window.
func SalesPipeline(start, end time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"createdAt": bson.M{"$gte": start, "$lt": end},
			"status":    bson.M{"$ne": models.OrderCancelled},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":      nil,
			"revenue":  bson.M{"$sum": "$total"},
			"orders":   bson.M{"$sum": 1},
			"avgOrder": bson.M{"$avg": "$total"},
		}}},
	}
}

// DailySeriesPipeline buckets revenue per calendar day over a window.
func DailySeriesPipeline(start, end time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"createdAt": bson.M{"$gte": start, "$lt": end},
			"status":    bson.M{"$ne": models.OrderCancelled},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":     bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$createdAt"}},
			"revenue": bson.M{"$sum": "$total"},
			"orders":  bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
}

// CategoryPipeline attributes line revenue to product categories by joining
// order items back to the products collection.
func CategoryPipeline(start, end time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"createdAt": bson.M{"$gte": start, "$lt": end},
			"status":    bson.M{"$ne": models.OrderCancelled},
		}}},
		{{Key: "$unwind", Value: "$items"}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "products",
			"localField":   "items.productId",
			"foreignField": "_id",
			"as":           "product",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$product", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$group", Value: bson.M{
			"_id":     bson.M{"$ifNull": bson.A{"$product.category", "unknown"}},
			"revenue": bson.M{"$sum": bson.M{"$multiply": bson.A{"$items.price", "$items.quantity"}}},
			"units":   bson.M{"$sum": "$items.quantity"},
		}}},
		{{Key: "$sort", Value: bson.M{"revenue": -1}}},
	}
}

type salesSummary struct {
	Revenue  float64 `bson:"revenue" json:"revenue"`
	Orders   int     `bson:"orders" json:"orders"`
	AvgOrder float64 `bson:"avgOrder" json:"avgOrder"`
}

// Sales reports revenue for a named period or explicit from/to dates, with
// the previous window for comparison, a per-day series, and revenue per
// category.
func (s *Service) Sales(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	now := time.Now()
	var start, end, prevStart, prevEnd time.Time

	if from := r.URL.Query().Get("from"); from != "" {
		var err error
		start, err = time.Parse("2006-01-02", from)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid from date, expected YYYY-MM-DD")
			return
		}
		end = now
		if to := r.URL.Query().Get("to"); to != "" {
			end, err = time.Parse("2006-01-02", to)
			if err != nil {
				utils.RespondWithError(w, http.StatusBadRequest, "Invalid to date, expected YYYY-MM-DD")
				return
			}
			end = end.AddDate(0, 0, 1) // inclusive end date
		}
		window := end.Sub(start)
		prevEnd = start
		prevStart = start.Add(-window)
	} else {
		period := r.URL.Query().Get("period")
		if period == "" {
			period = "month"
		}
		var err error
		start, end, prevStart, prevEnd, err = PeriodRange(period, now)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	current, err := s.summarize(ctx, start, end)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to compute sales report")
		return
	}
	previous, err := s.summarize(ctx, prevStart, prevEnd)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to compute sales report")
		return
	}

	var daily []bson.M
	cursor, err := s.Orders.Aggregate(ctx, DailySeriesPipeline(start, end))
	if err == nil {
		_ = cursor.All(ctx, &daily)
		cursor.Close(ctx)
	}
	if daily == nil {
		daily = []bson.M{}
	}

	var categories []bson.M
	cursor, err = s.Orders.Aggregate(ctx, CategoryPipeline(start, end))
	if err == nil {
		_ = cursor.All(ctx, &categories)
		cursor.Close(ctx)
	}
	if categories == nil {
		categories = []bson.M{}
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"from":       start,
		"to":         end,
		"current":    current,
		"previous":   previous,
		"daily":      daily,
		"categories": categories,
	})
}

func (s *Service) summarize(ctx context.Context, start, end time.Time) (*salesSummary, error) {
	cursor, err := s.Orders.Aggregate(ctx, SalesPipeline(start, end))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []salesSummary
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &salesSummary{}, nil
	}
	return &results[0], nil
}

// InventoryReport lists SKUs that are out of stock or below their restock
// threshold.
func (s *Service) InventoryReport(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	outCursor, err := s.Inventory.Find(ctx, bson.M{"quantity": 0})
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to compute inventory report")
		return
	}
	var outOfStock []models.InventoryRecord
	_ = outCursor.All(ctx, &outOfStock)
	outCursor.Close(ctx)

	lowCursor, err := s.Inventory.Find(ctx, bson.M{
		"quantity": bson.M{"$gt": 0},
		"$expr":    bson.M{"$lte": bson.A{"$quantity", "$restockThreshold"}},
	})
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to compute inventory report")
		return
	}
	var lowStock []models.InventoryRecord
	_ = lowCursor.All(ctx, &lowStock)
	lowCursor.Close(ctx)

	if outOfStock == nil {
		outOfStock = []models.InventoryRecord{}
	}
	if lowStock == nil {
		lowStock = []models.InventoryRecord{}
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"outOfStock": outOfStock,
		"lowStock":   lowStock,
	})
}
