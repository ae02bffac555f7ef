package handlers

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/carlink/internal/models"
)

// BuyRequestService is the buy request workflow consumed by BuyRequestHandler.
type BuyRequestService interface {
	Create(ctx context.Context, buyerID string, in models.CreateBuyRequest) (*models.BuyRequest, error)
	Accept(ctx context.Context, sellerID, requestID string) (*models.BuyRequest, error)
	Decline(ctx context.Context, sellerID, requestID string) (*models.BuyRequest, error)
	ListForSeller(ctx context.Context, sellerID, status string) ([]models.BuyRequest, error)
	ListForBuyer(ctx context.Context, buyerID, status string) ([]models.BuyRequest, error)
}

// BuyRequestHandler serves /api/buy-requests.
type BuyRequestHandler struct {
	requests BuyRequestService
	log      log.FieldLogger
}

func NewBuyRequestHandler(requests BuyRequestService, logger log.FieldLogger) *BuyRequestHandler {
	return &BuyRequestHandler{requests: requests, log: logger}
}

func (h *BuyRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in models.CreateBuyRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	req, err := h.requests.Create(r.Context(), claims.UserID, in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		"message":    "Buy request sent successfully",
		"buyRequest": req,
	})
}

func (h *BuyRequestHandler) Seller(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.requests.ListForSeller)
}

func (h *BuyRequestHandler) Buyer(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.requests.ListForBuyer)
}

func (h *BuyRequestHandler) list(w http.ResponseWriter, r *http.Request, find func(context.Context, string, string) ([]models.BuyRequest, error)) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	requests, err := find(r.Context(), claims.UserID, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"requests": requests})
}

func (h *BuyRequestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	req, err := h.requests.Accept(r.Context(), claims.UserID, pathParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"message":    "Buy request accepted. Car marked as sold.",
		"buyRequest": req,
	})
}

func (h *BuyRequestHandler) Decline(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	req, err := h.requests.Decline(r.Context(), claims.UserID, pathParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"message":    "Buy request declined",
		"buyRequest": req,
	})
}
