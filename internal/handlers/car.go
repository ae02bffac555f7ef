package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/carlink/internal/models"
)

// ListingService is the car listing use case consumed by CarHandler.
type ListingService interface {
	Create(ctx context.Context, sellerID string, in models.CarInput) (*models.Car, error)
	List(ctx context.Context, q models.CarQuery) (*models.CarPage, error)
	GetByID(ctx context.Context, id string) (*models.Car, error)
	ListForSeller(ctx context.Context, sellerID string, includeSold bool) ([]models.Car, error)
	Update(ctx context.Context, id, callerID string, upd models.CarUpdate) (*models.Car, error)
	Delete(ctx context.Context, id, callerID string) error
	Featured(ctx context.Context, n int) ([]models.Car, error)
	PopularBrands(ctx context.Context, limit int) ([]models.BrandCount, error)
}

// CarHandler serves /api/cars.
type CarHandler struct {
	listings ListingService
	log      log.FieldLogger
}

func NewCarHandler(listings ListingService, logger log.FieldLogger) *CarHandler {
	return &CarHandler{listings: listings, log: logger}
}

func (h *CarHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in models.CarInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	car, err := h.listings.Create(r.Context(), claims.UserID, in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		"message": "Car listing created successfully",
		"car":     car,
	})
}

func (h *CarHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := parseCarQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	page, err := h.listings.List(r.Context(), q)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"cars":       page.Cars,
		"pagination": page.Pagination,
	})
}

func (h *CarHandler) Get(w http.ResponseWriter, r *http.Request) {
	car, err := h.listings.GetByID(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"car": car})
}

func (h *CarHandler) MyCars(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	includeSold, err := parseBool(r.URL.Query(), "includeSold")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	cars, err := h.listings.ListForSeller(r.Context(), claims.UserID, includeSold)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"cars": cars})
}

func (h *CarHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var upd models.CarUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	car, err := h.listings.Update(r.Context(), pathParam(r, "id"), claims.UserID, upd)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"message": "Car listing updated successfully",
		"car":     car,
	})
}

func (h *CarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.listings.Delete(r.Context(), pathParam(r, "id"), claims.UserID); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeMessage(w, http.StatusOK, "Car listing deleted successfully")
}

func (h *CarHandler) Featured(w http.ResponseWriter, r *http.Request) {
	limit, err := parseInt(r.URL.Query(), "limit")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	cars, err := h.listings.Featured(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"cars": cars})
}

func (h *CarHandler) PopularBrands(w http.ResponseWriter, r *http.Request) {
	limit, err := parseInt(r.URL.Query(), "limit")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	brands, err := h.listings.PopularBrands(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"brands": brands})
}

// parseCarQuery maps listing query parameters onto a CarQuery. Paging is
// normalized later by the service.
func parseCarQuery(v url.Values) (models.CarQuery, error) {
	q := models.CarQuery{
		Brand:        strings.TrimSpace(v.Get("brand")),
		Model:        strings.TrimSpace(v.Get("model")),
		Location:     strings.TrimSpace(v.Get("location")),
		Transmission: models.Transmission(v.Get("transmission")),
		FuelType:     models.FuelType(v.Get("fuelType")),
		Condition:    models.Condition(v.Get("condition")),
		Sort:         models.ParseCarSort(v.Get("sortBy")),
	}

	var err error
	if q.Page, err = parseInt(v, "page"); err != nil {
		return q, err
	}
	if q.Limit, err = parseInt(v, "limit"); err != nil {
		return q, err
	}
	if q.MinYear, err = optionalInt(v, "minYear"); err != nil {
		return q, err
	}
	if q.MaxYear, err = optionalInt(v, "maxYear"); err != nil {
		return q, err
	}
	if q.MinPrice, err = optionalFloat(v, "minPrice"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = optionalFloat(v, "maxPrice"); err != nil {
		return q, err
	}
	return q, nil
}

// parseInt returns 0 when the parameter is absent.
func parseInt(v url.Values, name string) (int, error) {
	s := strings.TrimSpace(v.Get(name))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, invalidParam(name, "an integer")
	}
	return n, nil
}

func optionalInt(v url.Values, name string) (*int, error) {
	s := strings.TrimSpace(v.Get(name))
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, invalidParam(name, "an integer")
	}
	return &n, nil
}

func optionalFloat(v url.Values, name string) (*float64, error) {
	s := strings.TrimSpace(v.Get(name))
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, invalidParam(name, "a number")
	}
	return &f, nil
}

func parseBool(v url.Values, name string) (bool, error) {
	s := strings.TrimSpace(v.Get(name))
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, invalidParam(name, "true or false")
	}
	return b, nil
}
