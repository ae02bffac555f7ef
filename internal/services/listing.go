package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/carlink/internal/apperr"
	"github.com/ukydev/carlink/internal/db"
	"github.com/ukydev/carlink/internal/models"
)

const (
	DefaultFeaturedLimit = 10
	MaxFeaturedLimit     = 50
	DefaultBrandsLimit   = 10
	MaxBrandsLimit       = 50
)

// ListingService manages car listings.
type ListingService struct {
	cars     db.CarCollection
	requests db.BuyRequestCollection
	log      log.FieldLogger
	now      func() time.Time
}

// NewListingService creates a listing service over the given stores.
func NewListingService(cars db.CarCollection, requests db.BuyRequestCollection, logger log.FieldLogger) *ListingService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &ListingService{
		cars:     cars,
		requests: requests,
		log:      logger.WithField("component", "listing"),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Create validates the input and stores a new unsold listing owned by sellerID.
func (s *ListingService) Create(ctx context.Context, sellerID string, in models.CarInput) (*models.Car, error) {
	seller, err := parseUserID(sellerID)
	if err != nil {
		return nil, err
	}

	in.Brand = strings.TrimSpace(in.Brand)
	in.Model = strings.TrimSpace(in.Model)
	in.Location = strings.TrimSpace(in.Location)
	in.Description = strings.TrimSpace(in.Description)
	if err := models.Validate(in); err != nil {
		return nil, apperr.Validation(err.Error())
	}

	car := &models.Car{
		Seller:       seller,
		Brand:        in.Brand,
		Model:        in.Model,
		Year:         *in.Year,
		Price:        *in.Price,
		Mileage:      *in.Mileage,
		Transmission: in.Transmission,
		FuelType:     in.FuelType,
		Condition:    in.Condition,
		Location:     in.Location,
		Description:  in.Description,
		Images:       in.Images,
	}
	if car.Images == nil {
		car.Images = []string{}
	}
	if err := s.cars.InsertCar(ctx, car); err != nil {
		return nil, fmt.Errorf("insert car: %w", err)
	}

	s.log.WithFields(log.Fields{"car_id": car.ID.Hex(), "seller_id": sellerID}).Info("Car listed")
	return car, nil
}

// List returns one page of unsold cars matching q.
func (s *ListingService) List(ctx context.Context, q models.CarQuery) (*models.CarPage, error) {
	q.Normalize()
	if err := checkRange(q.MinYear, q.MaxYear, "minYear", "maxYear"); err != nil {
		return nil, err
	}
	if err := checkRange(q.MinPrice, q.MaxPrice, "minPrice", "maxPrice"); err != nil {
		return nil, err
	}

	cars, total, err := s.cars.FindCars(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find cars: %w", err)
	}
	return &models.CarPage{
		Cars:       cars,
		Pagination: models.NewPagination(q, len(cars), total),
	}, nil
}

func checkRange[T int | float64](lo, hi *T, loName, hiName string) error {
	if lo != nil && hi != nil && *lo > *hi {
		return apperr.Validation(loName + " must not be greater than " + hiName)
	}
	return nil
}

// GetByID returns a single listing, sold or not.
func (s *ListingService) GetByID(ctx context.Context, id string) (*models.Car, error) {
	car, err := s.cars.FindCarByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "find car", msgInvalidCarID, msgCarNotFound)
	}
	return car, nil
}

// ListForSeller returns the seller's own listings, newest first.
func (s *ListingService) ListForSeller(ctx context.Context, sellerID string, includeSold bool) ([]models.Car, error) {
	if _, err := parseUserID(sellerID); err != nil {
		return nil, err
	}
	cars, err := s.cars.FindCarsBySeller(ctx, sellerID, includeSold)
	if err != nil {
		return nil, fmt.Errorf("find seller cars: %w", err)
	}
	return cars, nil
}

// Update applies the provided fields to an unsold listing owned by callerID.
func (s *ListingService) Update(ctx context.Context, id, callerID string, upd models.CarUpdate) (*models.Car, error) {
	trimPtr(upd.Brand)
	trimPtr(upd.Model)
	trimPtr(upd.Location)
	trimPtr(upd.Description)

	car, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if car.Seller.Hex() != callerID {
		return nil, apperr.Forbidden(msgUpdateNotOwner)
	}
	if car.IsSold {
		return nil, apperr.InvalidState(msgUpdateSold)
	}
	if err := models.Validate(upd); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if upd.Empty() {
		return car, nil
	}

	updated, err := s.cars.UpdateUnsoldCar(ctx, id, upd)
	switch {
	case errors.Is(err, db.ErrCarSold):
		return nil, apperr.InvalidState(msgUpdateSold)
	case err != nil:
		return nil, lookupErr(err, "update car", msgInvalidCarID, msgCarNotFound)
	}

	s.log.WithField("car_id", id).Info("Car updated")
	return updated, nil
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

// Delete removes a listing owned by callerID. Buyers still waiting on the
// car have their pending requests declined.
func (s *ListingService) Delete(ctx context.Context, id, callerID string) error {
	car, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if car.Seller.Hex() != callerID {
		return apperr.Forbidden(msgDeleteNotOwner)
	}
	if err := s.cars.DeleteCar(ctx, id); err != nil {
		return lookupErr(err, "delete car", msgInvalidCarID, msgCarNotFound)
	}

	n, err := s.requests.DeclinePendingForCar(context.WithoutCancel(ctx), id, "", s.now())
	if err != nil {
		s.log.WithError(err).WithField("car_id", id).Error("Failed to decline requests for deleted car")
	}
	s.log.WithFields(log.Fields{"car_id": id, "declined": n}).Info("Car deleted")
	return nil
}

// Featured returns a random sample of unsold cars.
func (s *ListingService) Featured(ctx context.Context, n int) ([]models.Car, error) {
	n = clampLimit(n, DefaultFeaturedLimit, MaxFeaturedLimit)
	cars, err := s.cars.SampleUnsoldCars(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("sample cars: %w", err)
	}
	return cars, nil
}

// PopularBrands returns the brands with the most unsold listings.
func (s *ListingService) PopularBrands(ctx context.Context, limit int) ([]models.BrandCount, error) {
	limit = clampLimit(limit, DefaultBrandsLimit, MaxBrandsLimit)
	brands, err := s.cars.PopularBrands(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("popular brands: %w", err)
	}
	return brands, nil
}

func clampLimit(n, def, hi int) int {
	if n <= 0 {
		return def
	}
	if n > hi {
		return hi
	}
	return n
}
