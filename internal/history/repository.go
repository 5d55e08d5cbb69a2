// Package history archives finalized orders to MongoDB. The activity view
// merges this server-side history with the local activity feed.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yinnstore/otpmarket/internal/models"
)

type Repository struct {
	collection *mongo.Collection
	logger     *logrus.Logger
}

func NewRepository(db *mongo.Database, logger *logrus.Logger) *Repository {
	return &Repository{
		collection: db.Collection("order_history"),
		logger:     logger,
	}
}

func (r *Repository) Archive(ctx context.Context, rec *models.ArchivedOrder) error {
	rec.ArchivedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to archive order: %w", err)
	}

	rec.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string, limit int64) ([]*models.ArchivedOrder, error) {
	filter := bson.M{"user_id": userID}
	opts := options.Find().SetSort(bson.D{{Key: "archived_at", Value: -1}}).SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find archived orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []*models.ArchivedOrder
	for cursor.Next(ctx) {
		var rec models.ArchivedOrder
		if err := cursor.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode archived order: %w", err)
		}
		orders = append(orders, &rec)
	}

	return orders, nil
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "archived_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "order_id", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
