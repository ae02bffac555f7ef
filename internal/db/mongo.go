package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/carlink/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	carsCollection        = "cars"
	buyRequestsCollection = "buy_requests"
	usersCollection       = "users"
)

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// Store groups the marketplace collections of one database.
type Store struct {
	Cars        *MongoCarCollection
	BuyRequests *MongoBuyRequestCollection
	Users       *MongoUserCollection
	database    *mongo.Database
}

// NewStore binds the collections of the named database.
func NewStore(client *mongo.Client, dbName string) *Store {
	database := client.Database(dbName)
	return &Store{
		Cars:        &MongoCarCollection{Collection: database.Collection(carsCollection)},
		BuyRequests: &MongoBuyRequestCollection{Collection: database.Collection(buyRequestsCollection)},
		Users:       &MongoUserCollection{Collection: database.Collection(usersCollection)},
		database:    database,
	}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.database.Client().Ping(ctx, nil)
}

// EnsureIndexes creates the indexes the queries and invariants rely on.
// The partial unique index on buy_requests keeps at most one pending
// request per (car, buyer).
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		carsCollection: {
			{Keys: bson.D{{Key: "brand", Value: 1}, {Key: "model", Value: 1}}},
			{Keys: bson.D{{Key: "price", Value: 1}}},
			{Keys: bson.D{{Key: "year", Value: 1}}},
			{Keys: bson.D{{Key: "is_sold", Value: 1}}},
			{Keys: bson.D{{Key: "seller", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		buyRequestsCollection: {
			{Keys: bson.D{{Key: "seller", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "buyer", Value: 1}}},
			{Keys: bson.D{{Key: "car", Value: 1}}},
			{
				Keys: bson.D{{Key: "car", Value: 1}, {Key: "buyer", Value: 1}},
				Options: options.Index().
					SetName("one_pending_per_buyer").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": string(models.StatusPending)}),
			},
		},
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}

	for name, idx := range indexes {
		if _, err := s.database.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return oid, nil
}

func notFound(err error) error {
	if err == mongo.ErrNoDocuments {
		return ErrNotFound
	}
	return err
}
