package config

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CallsCollection holds one CallRecord per finished call.
const CallsCollection = "calls"

func EnsureMongoIndexes(dbName string) error {
	if MongoClient == nil {
		return errors.New("MongoClient is nil; call InitMongo() first")
	}
	db := MongoClient.Database(dbName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := db.Collection(CallsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		// a call id may be reused; history is read newest first
		{
			Keys:    bson.D{{Key: "call_id", Value: 1}, {Key: "started_at", Value: -1}},
			Options: options.Index().SetName("by_call_started"),
		},
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "ended_at", Value: -1}},
			Options: options.Index().SetName("by_tenant_ended"),
		},
	})
	return err
}
