package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/ukydev/carlink/internal/db"
	"github.com/ukydev/carlink/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memStore is an in-memory stand-in for the Mongo collections. Every
// conditional write is checked and applied under one lock so it behaves
// like a single-document atomic update.
type memStore struct {
	mu       sync.Mutex
	cars     map[primitive.ObjectID]models.Car
	requests map[primitive.ObjectID]models.BuyRequest
	order    []primitive.ObjectID
	users    map[string]*models.User

	sampleSize int
	// hooks for simulating interleavings
	afterInsertRequest func()
	afterMarkSold      func()
	afterDeleteCar     func()
	beforeCarUpdate    func()
	failTransition     bool
	failDecline        error
	failRelease        error
}

func newMemStore() *memStore {
	return &memStore{
		cars:     map[primitive.ObjectID]models.Car{},
		requests: map[primitive.ObjectID]models.BuyRequest{},
		users:    map[string]*models.User{},
	}
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, db.ErrInvalidID
	}
	return oid, nil
}

func (m *memStore) addUser(name, email string) *models.User {
	u := &models.User{ID: primitive.NewObjectID(), Name: name, Email: email}
	m.users[u.ID.Hex()] = u
	return u
}

func (m *memStore) car(id primitive.ObjectID) models.Car {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cars[id]
}

func (m *memStore) request(id primitive.ObjectID) models.BuyRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[id]
}

func (m *memStore) markSold(id primitive.ObjectID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cars[id]
	now := time.Now().UTC()
	c.IsSold = true
	c.SoldAt = &now
	m.cars[id] = c
}

// CarCollection

func (m *memStore) InsertCar(ctx context.Context, car *models.Car) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	car.ID = primitive.NewObjectID()
	car.CreatedAt, car.UpdatedAt = now, now
	m.cars[car.ID] = *car
	return nil
}

func (m *memStore) FindCarByID(ctx context.Context, id string) (*models.Car, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cars[oid]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &c, nil
}

func (m *memStore) FindCars(ctx context.Context, q models.CarQuery) ([]models.Car, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	var matched []models.Car
	for _, c := range m.cars {
		if c.IsSold {
			continue
		}
		if q.Brand != "" && !strings.Contains(strings.ToLower(c.Brand), strings.ToLower(q.Brand)) {
			continue
		}
		if q.MinYear != nil && c.Year < *q.MinYear {
			continue
		}
		if q.MaxYear != nil && c.Year > *q.MaxYear {
			continue
		}
		matched = append(matched, c)
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		switch q.Sort {
		case models.SortLowestPrice:
			return matched[i].Price < matched[j].Price
		case models.SortHighestPrice:
			return matched[i].Price > matched[j].Price
		default:
			return matched[i].ID.Hex() > matched[j].ID.Hex()
		}
	})

	total := int64(len(matched))
	start := int(q.Skip())
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return append([]models.Car{}, matched[start:end]...), total, nil
}

func (m *memStore) FindCarsBySeller(ctx context.Context, sellerID string, includeSold bool) ([]models.Car, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	oid, err := parseID(sellerID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cars := []models.Car{}
	for _, c := range m.cars {
		if c.Seller == oid && (includeSold || !c.IsSold) {
			cars = append(cars, c)
		}
	}
	return cars, nil
}

func (m *memStore) UpdateUnsoldCar(ctx context.Context, id string, update models.CarUpdate) (*models.Car, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.beforeCarUpdate != nil {
		m.beforeCarUpdate()
	}
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cars[oid]
	if !ok {
		return nil, db.ErrNotFound
	}
	if c.IsSold {
		return nil, db.ErrCarSold
	}
	applyUpdate(update, &c)
	c.UpdatedAt = time.Now().UTC()
	m.cars[oid] = c
	return &c, nil
}

func (m *memStore) DeleteCar(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.cars[oid]; !ok {
		m.mu.Unlock()
		return db.ErrNotFound
	}
	delete(m.cars, oid)
	m.mu.Unlock()

	if m.afterDeleteCar != nil {
		m.afterDeleteCar()
	}
	return nil
}

func (m *memStore) MarkCarSold(ctx context.Context, id string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	oid, err := parseID(id)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	c, ok := m.cars[oid]
	if !ok || c.IsSold {
		m.mu.Unlock()
		return false, nil
	}
	c.IsSold = true
	c.SoldAt = &at
	m.cars[oid] = c
	m.mu.Unlock()

	if m.afterMarkSold != nil {
		m.afterMarkSold()
	}
	return true, nil
}

func (m *memStore) ReleaseCar(ctx context.Context, id string, soldAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.failRelease != nil {
		return m.failRelease
	}
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cars[oid]
	if ok && c.IsSold && c.SoldAt != nil && c.SoldAt.Equal(soldAt) {
		c.IsSold = false
		c.SoldAt = nil
		m.cars[oid] = c
	}
	return nil
}

func (m *memStore) SampleUnsoldCars(ctx context.Context, size int) ([]models.Car, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sampleSize = size
	cars := []models.Car{}
	for _, c := range m.cars {
		if len(cars) == size {
			break
		}
		if !c.IsSold {
			cars = append(cars, c)
		}
	}
	return cars, nil
}

func (m *memStore) PopularBrands(ctx context.Context, limit int) ([]models.BrandCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	counts := map[string]int64{}
	for _, c := range m.cars {
		if !c.IsSold {
			counts[c.Brand]++
		}
	}
	m.mu.Unlock()

	brands := []models.BrandCount{}
	for b, n := range counts {
		brands = append(brands, models.BrandCount{Brand: b, Count: n})
	}
	sort.Slice(brands, func(i, j int) bool {
		if brands[i].Count != brands[j].Count {
			return brands[i].Count > brands[j].Count
		}
		return brands[i].Brand < brands[j].Brand
	})
	if len(brands) > limit {
		brands = brands[:limit]
	}
	return brands, nil
}

func applyUpdate(u models.CarUpdate, car *models.Car) {
	if u.Brand != nil {
		car.Brand = *u.Brand
	}
	if u.Model != nil {
		car.Model = *u.Model
	}
	if u.Year != nil {
		car.Year = *u.Year
	}
	if u.Price != nil {
		car.Price = *u.Price
	}
	if u.Mileage != nil {
		car.Mileage = *u.Mileage
	}
	if u.Transmission != nil {
		car.Transmission = *u.Transmission
	}
	if u.FuelType != nil {
		car.FuelType = *u.FuelType
	}
	if u.Condition != nil {
		car.Condition = *u.Condition
	}
	if u.Location != nil {
		car.Location = *u.Location
	}
	if u.Description != nil {
		car.Description = *u.Description
	}
	if u.Images != nil {
		car.Images = *u.Images
	}
}

// BuyRequestCollection

func (m *memStore) InsertBuyRequest(ctx context.Context, req *models.BuyRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	for _, r := range m.requests {
		if r.Car == req.Car && r.Buyer == req.Buyer && r.Status == models.StatusPending {
			m.mu.Unlock()
			return db.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	req.ID = primitive.NewObjectID()
	req.CreatedAt, req.UpdatedAt = now, now
	if req.Status == "" {
		req.Status = models.StatusPending
	}
	m.requests[req.ID] = *req
	m.order = append(m.order, req.ID)
	m.mu.Unlock()

	if m.afterInsertRequest != nil {
		m.afterInsertRequest()
	}
	return nil
}

func (m *memStore) FindBuyRequestByID(ctx context.Context, id string) (*models.BuyRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[oid]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) FindPendingBuyRequest(ctx context.Context, carID, buyerID string) (*models.BuyRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.Car.Hex() == carID && r.Buyer.Hex() == buyerID && r.Status == models.StatusPending {
			return &r, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) FindBuyRequests(ctx context.Context, q models.BuyRequestQuery) ([]models.BuyRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.BuyRequest{}
	for i := len(m.order) - 1; i >= 0; i-- {
		r, ok := m.requests[m.order[i]]
		if !ok {
			continue
		}
		if q.SellerID != "" && r.Seller.Hex() != q.SellerID {
			continue
		}
		if q.BuyerID != "" && r.Buyer.Hex() != q.BuyerID {
			continue
		}
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) TransitionBuyRequest(ctx context.Context, id string, from, to models.BuyRequestStatus, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	oid, err := parseID(id)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[oid]
	if !ok || r.Status != from || m.failTransition {
		return false, nil
	}
	r.Status = to
	r.RespondedAt = &at
	r.UpdatedAt = at
	m.requests[oid] = r
	return true, nil
}

func (m *memStore) DeclinePendingForCar(ctx context.Context, carID, exceptID string, at time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.failDecline != nil {
		return 0, m.failDecline
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.requests {
		if r.Car.Hex() != carID || id.Hex() == exceptID || r.Status != models.StatusPending {
			continue
		}
		r.Status = models.StatusDeclined
		r.RespondedAt = &at
		m.requests[id] = r
		n++
	}
	return n, nil
}

func (m *memStore) DeleteBuyRequest(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, oid)
	return nil
}

// UserLookup

func (m *memStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return u, nil
}

// MockNotifier is a mock implementation of notify.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyBuyRequestCreated(ctx context.Context, sellerEmail, buyerName, carBrand, carModel string) error {
	args := m.Called(ctx, sellerEmail, buyerName, carBrand, carModel)
	return args.Error(0)
}

func (m *MockNotifier) NotifyBuyRequestAccepted(ctx context.Context, buyerEmail, buyerName, carBrand, carModel string) error {
	args := m.Called(ctx, buyerEmail, buyerName, carBrand, carModel)
	return args.Error(0)
}

func (m *MockNotifier) NotifyBuyRequestDeclined(ctx context.Context, buyerEmail, buyerName, carBrand, carModel string) error {
	args := m.Called(ctx, buyerEmail, buyerName, carBrand, carModel)
	return args.Error(0)
}
