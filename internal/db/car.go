package db

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ukydev/carlink/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCarCollection implements CarCollection for MongoDB.
type MongoCarCollection struct {
	Collection *mongo.Collection
}

// InsertCar inserts a new listing and sets its ID and timestamps.
func (c *MongoCarCollection) InsertCar(ctx context.Context, car *models.Car) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	now := time.Now().UTC()
	car.ID = primitive.NewObjectID()
	car.CreatedAt = now
	car.UpdatedAt = now
	if car.Images == nil {
		car.Images = []string{}
	}
	_, err := c.Collection.InsertOne(ctx, car)
	return err
}

// FindCarByID finds a car by its ID.
func (c *MongoCarCollection) FindCarByID(ctx context.Context, id string) (*models.Car, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var car models.Car
	if err := c.Collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&car); err != nil {
		return nil, notFound(err)
	}
	return &car, nil
}

// FindCars runs the public listing search and returns one page plus the
// total number of matches.
func (c *MongoCarCollection) FindCars(ctx context.Context, q models.CarQuery) ([]models.Car, int64, error) {
	if c.Collection == nil {
		return nil, 0, fmt.Errorf("mongo collection is nil")
	}
	filter := carFilter(q)
	opts := options.Find().
		SetSort(carSort(q.Sort)).
		SetSkip(q.Skip()).
		SetLimit(int64(q.Limit))

	cursor, err := c.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	cars := []models.Car{}
	if err := cursor.All(ctx, &cars); err != nil {
		return nil, 0, err
	}
	total, err := c.Collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return cars, total, nil
}

// FindCarsBySeller lists a seller's cars, newest first.
func (c *MongoCarCollection) FindCarsBySeller(ctx context.Context, sellerID string, includeSold bool) ([]models.Car, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	oid, err := objectID(sellerID)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"seller": oid}
	if !includeSold {
		filter["is_sold"] = false
	}
	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	cars := []models.Car{}
	if err := cursor.All(ctx, &cars); err != nil {
		return nil, err
	}
	return cars, nil
}

// UpdateUnsoldCar applies the update only if the car is still unsold.
func (c *MongoCarCollection) UpdateUnsoldCar(ctx context.Context, id string, update models.CarUpdate) (*models.Car, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := carUpdateSet(update)
	set["updated_at"] = time.Now().UTC()

	var car models.Car
	err = c.Collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": oid, "is_sold": false},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&car)
	if err == nil {
		return &car, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}

	// Nothing matched: either the car is gone or it has been sold.
	if _, ferr := c.FindCarByID(ctx, id); ferr != nil {
		return nil, ferr
	}
	return nil, ErrCarSold
}

// DeleteCar deletes a car by its ID.
func (c *MongoCarCollection) DeleteCar(ctx context.Context, id string) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCarSold claims the car for a sale with a single conditional update.
func (c *MongoCarCollection) MarkCarSold(ctx context.Context, id string, at time.Time) (bool, error) {
	if c.Collection == nil {
		return false, fmt.Errorf("mongo collection is nil")
	}
	oid, err := objectID(id)
	if err != nil {
		return false, err
	}
	result, err := c.Collection.UpdateOne(
		ctx,
		bson.M{"_id": oid, "is_sold": false},
		bson.M{"$set": bson.M{"is_sold": true, "sold_at": at, "updated_at": at}},
	)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

// ReleaseCar reverts a claim made by MarkCarSold at soldAt. A claim made
// by anyone else is left alone.
func (c *MongoCarCollection) ReleaseCar(ctx context.Context, id string, soldAt time.Time) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	_, err = c.Collection.UpdateOne(
		ctx,
		bson.M{"_id": oid, "is_sold": true, "sold_at": soldAt},
		bson.M{
			"$set":   bson.M{"is_sold": false, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"sold_at": ""},
		},
	)
	return err
}

// SampleUnsoldCars returns up to size random unsold cars.
func (c *MongoCarCollection) SampleUnsoldCars(ctx context.Context, size int) ([]models.Car, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "is_sold", Value: false}}}},
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: size}}}},
	}
	cursor, err := c.Collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	cars := []models.Car{}
	if err := cursor.All(ctx, &cars); err != nil {
		return nil, err
	}
	return cars, nil
}

// PopularBrands counts unsold cars per brand, most listed first.
func (c *MongoCarCollection) PopularBrands(ctx context.Context, limit int) ([]models.BrandCount, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "is_sold", Value: false}}}},
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$brand"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}
	cursor, err := c.Collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	brands := []models.BrandCount{}
	if err := cursor.All(ctx, &brands); err != nil {
		return nil, err
	}
	return brands, nil
}

// carFilter translates a listing query into a MongoDB filter. Text
// filters are case-insensitive substring matches on the literal input.
func carFilter(q models.CarQuery) bson.M {
	filter := bson.M{"is_sold": false}

	for field, value := range map[string]string{"brand": q.Brand, "model": q.Model, "location": q.Location} {
		if value != "" {
			filter[field] = primitive.Regex{Pattern: regexp.QuoteMeta(value), Options: "i"}
		}
	}

	if r := rangeFilter(q.MinYear, q.MaxYear); r != nil {
		filter["year"] = r
	}
	if r := rangeFilter(q.MinPrice, q.MaxPrice); r != nil {
		filter["price"] = r
	}

	if q.Transmission != "" {
		filter["transmission"] = q.Transmission
	}
	if q.FuelType != "" {
		filter["fuel_type"] = q.FuelType
	}
	if q.Condition != "" {
		filter["condition"] = q.Condition
	}
	return filter
}

func rangeFilter[T int | float64](lo, hi *T) bson.M {
	if lo == nil && hi == nil {
		return nil
	}
	r := bson.M{}
	if lo != nil {
		r["$gte"] = *lo
	}
	if hi != nil {
		r["$lte"] = *hi
	}
	return r
}

func carSort(s models.CarSort) bson.D {
	switch s {
	case models.SortOldest:
		return bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	case models.SortLowestPrice:
		return bson.D{{Key: "price", Value: 1}, {Key: "_id", Value: 1}}
	case models.SortHighestPrice:
		return bson.D{{Key: "price", Value: -1}, {Key: "_id", Value: -1}}
	default:
		return bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	}
}

func carUpdateSet(u models.CarUpdate) bson.M {
	set := bson.M{}
	if u.Brand != nil {
		set["brand"] = *u.Brand
	}
	if u.Model != nil {
		set["model"] = *u.Model
	}
	if u.Year != nil {
		set["year"] = *u.Year
	}
	if u.Price != nil {
		set["price"] = *u.Price
	}
	if u.Mileage != nil {
		set["mileage"] = *u.Mileage
	}
	if u.Transmission != nil {
		set["transmission"] = *u.Transmission
	}
	if u.FuelType != nil {
		set["fuel_type"] = *u.FuelType
	}
	if u.Condition != nil {
		set["condition"] = *u.Condition
	}
	if u.Location != nil {
		set["location"] = *u.Location
	}
	if u.Description != nil {
		set["description"] = *u.Description
	}
	if u.Images != nil {
		set["images"] = *u.Images
	}
	return set
}
