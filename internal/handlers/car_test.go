package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/bmizerany/pat"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/carlink/internal/apperr"
	"github.com/ukydev/carlink/internal/middleware"
	"github.com/ukydev/carlink/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockListingService is a mock implementation of ListingService
type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) Create(ctx context.Context, sellerID string, in models.CarInput) (*models.Car, error) {
	args := m.Called(ctx, sellerID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Car), args.Error(1)
}

func (m *MockListingService) List(ctx context.Context, q models.CarQuery) (*models.CarPage, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CarPage), args.Error(1)
}

func (m *MockListingService) GetByID(ctx context.Context, id string) (*models.Car, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Car), args.Error(1)
}

func (m *MockListingService) ListForSeller(ctx context.Context, sellerID string, includeSold bool) ([]models.Car, error) {
	args := m.Called(ctx, sellerID, includeSold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Car), args.Error(1)
}

func (m *MockListingService) Update(ctx context.Context, id, callerID string, upd models.CarUpdate) (*models.Car, error) {
	args := m.Called(ctx, id, callerID, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Car), args.Error(1)
}

func (m *MockListingService) Delete(ctx context.Context, id, callerID string) error {
	args := m.Called(ctx, id, callerID)
	return args.Error(0)
}

func (m *MockListingService) Featured(ctx context.Context, n int) ([]models.Car, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Car), args.Error(1)
}

func (m *MockListingService) PopularBrands(ctx context.Context, limit int) ([]models.BrandCount, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BrandCount), args.Error(1)
}

// carRouter mounts the handler the same way the server does so that
// path parameters are populated by pat.
func carRouter(h *CarHandler) http.Handler {
	mux := pat.New()
	mux.Get("/api/cars/featured", http.HandlerFunc(h.Featured))
	mux.Get("/api/cars/popular-brands", http.HandlerFunc(h.PopularBrands))
	mux.Get("/api/cars/user/my-cars", http.HandlerFunc(h.MyCars))
	mux.Get("/api/cars/:id", http.HandlerFunc(h.Get))
	mux.Put("/api/cars/:id", http.HandlerFunc(h.Update))
	mux.Del("/api/cars/:id", http.HandlerFunc(h.Delete))
	mux.Post("/api/cars", http.HandlerFunc(h.Create))
	mux.Get("/api/cars", http.HandlerFunc(h.List))
	return mux
}

func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.WithUser(r.Context(), &models.Claims{UserID: userID}))
}

func TestCarHandler_List(t *testing.T) {
	logger, _ := test.NewNullLogger()
	listings := new(MockListingService)
	router := carRouter(NewCarHandler(listings, logger))

	minYear, maxPrice := 2015, 20000.0
	want := models.CarQuery{
		Brand:    "toyota",
		MinYear:  &minYear,
		MaxPrice: &maxPrice,
		FuelType: models.FuelHybrid,
		Sort:     models.SortLowestPrice,
		Page:     2,
		Limit:    5,
	}
	page := &models.CarPage{
		Cars:       []models.Car{{ID: primitive.NewObjectID(), Brand: "Toyota"}},
		Pagination: models.Pagination{CurrentPage: 2, TotalPages: 3, TotalCars: 11, HasNext: true, HasPrev: true},
	}
	listings.On("List", mock.Anything, want).Return(page, nil)

	q := url.Values{}
	q.Set("brand", "toyota")
	q.Set("minYear", "2015")
	q.Set("maxPrice", "20000")
	q.Set("fuelType", "Hybrid")
	q.Set("sortBy", "lowestPrice")
	q.Set("page", "2")
	q.Set("limit", "5")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/cars?"+q.Encode(), nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["cars"], 1)
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, 11.0, pagination["totalCars"])
	assert.Equal(t, true, pagination["hasNext"])
	listings.AssertExpectations(t)
}

func TestCarHandler_ListBadParam(t *testing.T) {
	logger, _ := test.NewNullLogger()
	listings := new(MockListingService)
	router := carRouter(NewCarHandler(listings, logger))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/cars?minPrice=cheap", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "minPrice must be a number", decodeBody(t, w)["message"])
	listings.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestCarHandler_Get(t *testing.T) {
	logger, _ := test.NewNullLogger()
	listings := new(MockListingService)
	router := carRouter(NewCarHandler(listings, logger))

	car := &models.Car{ID: primitive.NewObjectID(), Brand: "Audi"}
	missing := primitive.NewObjectID().Hex()
	listings.On("GetByID", mock.Anything, car.ID.Hex()).Return(car, nil)
	listings.On("GetByID", mock.Anything, missing).Return(nil, apperr.NotFound("Car not found"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/cars/"+car.ID.Hex(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Audi", decodeBody(t, w)["car"].(map[string]interface{})["brand"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/cars/"+missing, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Car not found", body["message"])
}

func TestCarHandler_StaticRoutesWinOverID(t *testing.T) {
	logger, _ := test.NewNullLogger()
	listings := new(MockListingService)
	router := carRouter(NewCarHandler(listings, logger))

	listings.On("Featured", mock.Anything, 3).Return([]models.Car{}, nil)
	listings.On("PopularBrands", mock.Anything, 0).Return([]models.BrandCount{{Brand: "Kia", Count: 2}}, nil)
	listings.On("ListForSeller", mock.Anything, "seller-1", true).Return([]models.Car{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/cars/featured?limit=3", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/cars/popular-brands", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["brands"], 1)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, asUser(httptest.NewRequest("GET", "/api/cars/user/my-cars?includeSold=true", nil), "seller-1"))
	assert.Equal(t, http.StatusOK, w.Code)

	listings.AssertExpectations(t)
	listings.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestCarHandler_Create(t *testing.T) {
	logger, _ := test.NewNullLogger()
	listings := new(MockListingService)
	router := carRouter(NewCarHandler(listings, logger))

	created := &models.Car{ID: primitive.NewObjectID(), Brand: "Mazda"}
	listings.On("Create", mock.Anything, "seller-1", mock.MatchedBy(func(in models.CarInput) bool {
		return in.Brand == "Mazda" && in.Year != nil && *in.Year == 2021
	})).Return(created, nil)

	payload := `{"brand":"Mazda","model":"3","year":2021,"price":21000,"mileage":100,"transmission":"Manual","fuelType":"Petrol","condition":"New","location":"Reno"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, asUser(httptest.NewRequest("POST", "/api/cars", bytes.NewBufferString(payload)), "seller-1"))

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Car listing created successfully", body["message"])

	// Without an authenticated caller the handler refuses.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/cars", bytes.NewBufferString(payload)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCarHandler_UpdateAndDelete(t *testing.T) {
	logger, _ := test.NewNullLogger()
	listings := new(MockListingService)
	router := carRouter(NewCarHandler(listings, logger))
	id := primitive.NewObjectID().Hex()

	listings.On("Update", mock.Anything, id, "intruder", mock.Anything).Return(nil, apperr.Forbidden("You can only update your own listings"))
	listings.On("Update", mock.Anything, id, "owner", mock.Anything).Return(nil, apperr.InvalidState("Cannot update a sold car"))
	listings.On("Delete", mock.Anything, id, "owner").Return(nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, asUser(httptest.NewRequest("PUT", "/api/cars/"+id, bytes.NewBufferString(`{"price":1}`)), "intruder"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, asUser(httptest.NewRequest("PUT", "/api/cars/"+id, bytes.NewBufferString(`{"price":1}`)), "owner"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Cannot update a sold car", decodeBody(t, w)["message"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, asUser(httptest.NewRequest("DELETE", "/api/cars/"+id, nil), "owner"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Car listing deleted successfully", decodeBody(t, w)["message"])
}

func TestParseCarQuery(t *testing.T) {
	q, err := parseCarQuery(url.Values{"sortBy": {"sideways"}, "maxYear": {"2020"}})
	require.NoError(t, err)
	assert.Equal(t, models.SortNewest, q.Sort)
	require.NotNil(t, q.MaxYear)
	assert.Equal(t, 2020, *q.MaxYear)
	assert.Nil(t, q.MinYear)

	_, err = parseCarQuery(url.Values{"page": {"two"}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = parseBool(url.Values{"includeSold": {"maybe"}}, "includeSold")
	assert.Error(t, err)
}
