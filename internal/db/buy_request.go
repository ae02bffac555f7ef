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

// MongoBuyRequestCollection implements BuyRequestCollection for MongoDB.
type MongoBuyRequestCollection struct {
	Collection *mongo.Collection
}

// InsertBuyRequest inserts a new pending request.
func (c *MongoBuyRequestCollection) InsertBuyRequest(ctx context.Context, req *models.BuyRequest) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	now := time.Now().UTC()
	req.ID = primitive.NewObjectID()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = models.StatusPending
	}
	if _, err := c.Collection.InsertOne(ctx, req); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// FindBuyRequestByID finds a buy request by its ID.
func (c *MongoBuyRequestCollection) FindBuyRequestByID(ctx context.Context, id string) (*models.BuyRequest, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var req models.BuyRequest
	if err := c.Collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&req); err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// FindPendingBuyRequest finds the buyer's pending request for a car.
func (c *MongoBuyRequestCollection) FindPendingBuyRequest(ctx context.Context, carID, buyerID string) (*models.BuyRequest, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	carOID, err := objectID(carID)
	if err != nil {
		return nil, err
	}
	buyerOID, err := objectID(buyerID)
	if err != nil {
		return nil, err
	}
	var req models.BuyRequest
	err = c.Collection.FindOne(ctx, bson.M{
		"car":    carOID,
		"buyer":  buyerOID,
		"status": models.StatusPending,
	}).Decode(&req)
	if err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// FindBuyRequests lists requests for a seller or buyer, newest first.
func (c *MongoBuyRequestCollection) FindBuyRequests(ctx context.Context, q models.BuyRequestQuery) ([]models.BuyRequest, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	filter, err := buyRequestFilter(q)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := c.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	requests := []models.BuyRequest{}
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// TransitionBuyRequest atomically changes status when it still equals from.
func (c *MongoBuyRequestCollection) TransitionBuyRequest(ctx context.Context, id string, from, to models.BuyRequestStatus, at time.Time) (bool, error) {
	if c.Collection == nil {
		return false, fmt.Errorf("mongo collection is nil")
	}
	oid, err := objectID(id)
	if err != nil {
		return false, err
	}
	result, err := c.Collection.UpdateOne(
		ctx,
		bson.M{"_id": oid, "status": from},
		bson.M{"$set": bson.M{"status": to, "responded_at": at, "updated_at": at}},
	)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

// DeclinePendingForCar declines the remaining pending requests of a car.
func (c *MongoBuyRequestCollection) DeclinePendingForCar(ctx context.Context, carID, exceptID string, at time.Time) (int64, error) {
	if c.Collection == nil {
		return 0, fmt.Errorf("mongo collection is nil")
	}
	carOID, err := objectID(carID)
	if err != nil {
		return 0, err
	}
	filter := bson.M{"car": carOID, "status": models.StatusPending}
	if exceptID != "" {
		exceptOID, err := objectID(exceptID)
		if err != nil {
			return 0, err
		}
		filter["_id"] = bson.M{"$ne": exceptOID}
	}
	result, err := c.Collection.UpdateMany(
		ctx,
		filter,
		bson.M{"$set": bson.M{"status": models.StatusDeclined, "responded_at": at, "updated_at": at}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// DeleteBuyRequest deletes a buy request by its ID.
func (c *MongoBuyRequestCollection) DeleteBuyRequest(ctx context.Context, id string) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	_, err = c.Collection.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}

func buyRequestFilter(q models.BuyRequestQuery) (bson.M, error) {
	filter := bson.M{}
	if q.SellerID != "" {
		oid, err := objectID(q.SellerID)
		if err != nil {
			return nil, err
		}
		filter["seller"] = oid
	}
	if q.BuyerID != "" {
		oid, err := objectID(q.BuyerID)
		if err != nil {
			return nil, err
		}
		filter["buyer"] = oid
	}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	return filter, nil
}
