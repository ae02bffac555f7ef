package db

import (
	"context"
	"errors"
	"time"

	"github.com/ukydev/carlink/internal/models"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidID is returned for identifiers that are not valid ObjectIDs.
	ErrInvalidID = errors.New("invalid id")
	// ErrDuplicate is returned when a unique index rejects a write.
	ErrDuplicate = errors.New("duplicate document")
	// ErrCarSold is returned when a guarded write finds the car already sold.
	ErrCarSold = errors.New("car already sold")
)

// CarCollection defines the interface for car listing storage.
type CarCollection interface {
	InsertCar(ctx context.Context, car *models.Car) error
	FindCarByID(ctx context.Context, id string) (*models.Car, error)
	FindCars(ctx context.Context, query models.CarQuery) ([]models.Car, int64, error)
	FindCarsBySeller(ctx context.Context, sellerID string, includeSold bool) ([]models.Car, error)
	// UpdateUnsoldCar applies update only while the car is unsold and
	// returns the updated document, or ErrCarSold.
	UpdateUnsoldCar(ctx context.Context, id string, update models.CarUpdate) (*models.Car, error)
	DeleteCar(ctx context.Context, id string) error
	// MarkCarSold flips is_sold from false to true. It reports false when
	// the car was already sold.
	MarkCarSold(ctx context.Context, id string, at time.Time) (bool, error)
	// ReleaseCar undoes a MarkCarSold made at the given time.
	ReleaseCar(ctx context.Context, id string, soldAt time.Time) error
	SampleUnsoldCars(ctx context.Context, size int) ([]models.Car, error)
	PopularBrands(ctx context.Context, limit int) ([]models.BrandCount, error)
}

// BuyRequestCollection defines the interface for buy request storage.
type BuyRequestCollection interface {
	// InsertBuyRequest returns ErrDuplicate when the buyer already has a
	// pending request for the car.
	InsertBuyRequest(ctx context.Context, req *models.BuyRequest) error
	FindBuyRequestByID(ctx context.Context, id string) (*models.BuyRequest, error)
	FindPendingBuyRequest(ctx context.Context, carID, buyerID string) (*models.BuyRequest, error)
	FindBuyRequests(ctx context.Context, query models.BuyRequestQuery) ([]models.BuyRequest, error)
	// TransitionBuyRequest moves a request from one status to another and
	// reports false if it was not in the expected status.
	TransitionBuyRequest(ctx context.Context, id string, from, to models.BuyRequestStatus, at time.Time) (bool, error)
	// DeclinePendingForCar declines every pending request for the car
	// except exceptID (which may be empty) and returns how many changed.
	DeclinePendingForCar(ctx context.Context, carID, exceptID string, at time.Time) (int64, error)
	DeleteBuyRequest(ctx context.Context, id string) error
}

// UserCollection defines the interface for user database operations
type UserCollection interface {
	InsertUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string) error
}
