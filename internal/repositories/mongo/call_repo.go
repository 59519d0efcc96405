package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yoockh/callbridge/internal/models"
)

type CallRepository interface {
	Insert(ctx context.Context, rec *models.CallRecord) error
	ListByCallID(ctx context.Context, callID string, limit int64) ([]models.CallRecord, error)
}

type callRepo struct {
	col *mongo.Collection
}

func NewCallRepo(db *mongo.Database, collection string) CallRepository {
	return &callRepo{col: db.Collection(collection)}
}

func (r *callRepo) Insert(ctx context.Context, rec *models.CallRecord) error {
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, rec)
	return err
}

// ListByCallID returns the records for callID, newest first.
func (r *callRepo) ListByCallID(ctx context.Context, callID string, limit int64) ([]models.CallRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.col.Find(ctx, bson.M{"call_id": callID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.CallRecord{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
