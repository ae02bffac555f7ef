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
	"github.com/ukydev/carlink/internal/notify"
)

// UserLookup resolves the contact details used in notifications.
type UserLookup interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// BuyRequestService drives the buy request state machine:
// pending -> accepted | declined, with no way out of a terminal state.
type BuyRequestService struct {
	cars     db.CarCollection
	requests db.BuyRequestCollection
	users    UserLookup
	notifier notify.Notifier
	log      log.FieldLogger
	now      func() time.Time
}

// NewBuyRequestService creates the service. A nil notifier disables
// notifications.
func NewBuyRequestService(cars db.CarCollection, requests db.BuyRequestCollection, users UserLookup, notifier notify.Notifier, logger log.FieldLogger) *BuyRequestService {
	if notifier == nil {
		notifier = notify.NewDispatcher()
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &BuyRequestService{
		cars:     cars,
		requests: requests,
		users:    users,
		notifier: notifier,
		log:      logger.WithField("component", "buy_requests"),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Create records a pending request from buyerID for the car in the payload
// and notifies the seller.
func (s *BuyRequestService) Create(ctx context.Context, buyerID string, in models.CreateBuyRequest) (*models.BuyRequest, error) {
	buyer, err := parseUserID(buyerID)
	if err != nil {
		return nil, err
	}
	carID := strings.TrimSpace(in.CarID)
	if carID == "" {
		return nil, apperr.Validation(msgCarIDRequired)
	}

	car, err := s.cars.FindCarByID(ctx, carID)
	if err != nil {
		return nil, lookupErr(err, "find car", msgInvalidCarID, msgCarNotFound)
	}
	if car.IsSold {
		return nil, apperr.InvalidState(msgCarSold)
	}
	if car.Seller == buyer {
		return nil, apperr.Forbidden(msgOwnCar)
	}

	_, err = s.requests.FindPendingBuyRequest(ctx, carID, buyerID)
	switch {
	case err == nil:
		return nil, apperr.Conflict(msgDuplicateRequest)
	case !errors.Is(err, db.ErrNotFound):
		return nil, fmt.Errorf("find pending request: %w", err)
	}

	req := &models.BuyRequest{
		Car:     car.ID,
		Buyer:   buyer,
		Seller:  car.Seller,
		Status:  models.StatusPending,
		Message: strings.TrimSpace(in.Message),
	}
	if err := s.requests.InsertBuyRequest(ctx, req); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, apperr.Conflict(msgDuplicateRequest)
		}
		return nil, fmt.Errorf("insert buy request: %w", err)
	}

	// The car may have been sold or removed between the first read and
	// the insert; in that case the request is withdrawn.
	if err := s.recheckCar(ctx, req); err != nil {
		return nil, err
	}

	logger := s.log.WithFields(log.Fields{"request_id": req.ID.Hex(), "car_id": carID, "buyer_id": buyerID})
	logger.Info("Buy request created")

	seller := s.user(ctx, car.Seller.Hex())
	buyerUser := s.user(ctx, buyerID)
	if seller != nil && buyerUser != nil {
		s.deliver(logger, notify.EventBuyRequestCreated, s.notifier.NotifyBuyRequestCreated(ctx, seller.Email, buyerUser.Name, car.Brand, car.Model))
	}
	return req, nil
}

// recheckCar runs after the insert has committed, so it ignores caller
// cancellation.
func (s *BuyRequestService) recheckCar(ctx context.Context, req *models.BuyRequest) error {
	ctx = context.WithoutCancel(ctx)
	current, err := s.cars.FindCarByID(ctx, req.Car.Hex())
	var withdraw error
	switch {
	case errors.Is(err, db.ErrNotFound):
		withdraw = apperr.NotFound(msgCarNotFound)
	case err != nil:
		s.log.WithError(err).WithField("request_id", req.ID.Hex()).Warn("Could not recheck car after creating buy request")
		return nil
	case current.IsSold:
		withdraw = apperr.InvalidState(msgCarSold)
	default:
		return nil
	}

	if err := s.requests.DeleteBuyRequest(ctx, req.ID.Hex()); err != nil {
		s.log.WithError(err).WithField("request_id", req.ID.Hex()).Error("Failed to withdraw buy request")
	}
	return withdraw
}

// Accept sells the car to the request's buyer. The car claim and the
// request transition are both conditional writes, so of two concurrent
// accepts for the same car only one can succeed.
func (s *BuyRequestService) Accept(ctx context.Context, sellerID, requestID string) (*models.BuyRequest, error) {
	req, car, err := s.respondable(ctx, sellerID, requestID, msgAcceptNotOwner)
	if err != nil {
		return nil, err
	}
	if car == nil {
		return nil, apperr.NotFound(msgCarNotFound)
	}
	if car.IsSold {
		return nil, apperr.InvalidState(msgCarSold)
	}

	carID := car.ID.Hex()
	at := s.now()
	claimed, err := s.cars.MarkCarSold(ctx, carID, at)
	if err != nil {
		return nil, fmt.Errorf("mark car sold: %w", err)
	}
	if !claimed {
		return nil, apperr.InvalidState(msgCarSold)
	}

	// Once the car is claimed the remaining writes must not be abandoned
	// with the caller's request, or the car stays sold with nothing accepted.
	wctx := context.WithoutCancel(ctx)

	moved, err := s.requests.TransitionBuyRequest(wctx, requestID, models.StatusPending, models.StatusAccepted, at)
	if err != nil || !moved {
		if rerr := s.cars.ReleaseCar(wctx, carID, at); rerr != nil {
			s.log.WithError(rerr).WithField("car_id", carID).Error("Failed to release car claim")
			return nil, fmt.Errorf("release car claim: %w", errors.Join(err, rerr))
		}
		if err != nil {
			return nil, fmt.Errorf("accept buy request: %w", err)
		}
		return nil, apperr.InvalidState(msgAlreadyResponded)
	}

	logger := s.log.WithFields(log.Fields{"request_id": requestID, "car_id": carID})
	declined, err := s.requests.DeclinePendingForCar(wctx, carID, requestID, at)
	if err != nil {
		logger.WithError(err).Error("Failed to decline competing buy requests")
	}
	logger.WithField("declined", declined).Info("Buy request accepted")

	req.Status = models.StatusAccepted
	req.RespondedAt = &at
	req.UpdatedAt = at

	if buyer := s.user(wctx, req.Buyer.Hex()); buyer != nil {
		s.deliver(logger, notify.EventBuyRequestAccepted, s.notifier.NotifyBuyRequestAccepted(wctx, buyer.Email, buyer.Name, car.Brand, car.Model))
	}
	return req, nil
}

// Decline rejects a pending request and notifies the buyer.
func (s *BuyRequestService) Decline(ctx context.Context, sellerID, requestID string) (*models.BuyRequest, error) {
	req, car, err := s.respondable(ctx, sellerID, requestID, msgDeclineNotOwner)
	if err != nil {
		return nil, err
	}

	at := s.now()
	moved, err := s.requests.TransitionBuyRequest(ctx, requestID, models.StatusPending, models.StatusDeclined, at)
	if err != nil {
		return nil, fmt.Errorf("decline buy request: %w", err)
	}
	if !moved {
		return nil, apperr.InvalidState(msgAlreadyResponded)
	}

	req.Status = models.StatusDeclined
	req.RespondedAt = &at
	req.UpdatedAt = at

	logger := s.log.WithFields(log.Fields{"request_id": requestID, "car_id": req.Car.Hex()})
	logger.Info("Buy request declined")

	if car != nil {
		if buyer := s.user(ctx, req.Buyer.Hex()); buyer != nil {
			s.deliver(logger, notify.EventBuyRequestDeclined, s.notifier.NotifyBuyRequestDeclined(ctx, buyer.Email, buyer.Name, car.Brand, car.Model))
		}
	}
	return req, nil
}

// respondable loads a request the seller may still respond to, along with
// its car. The car is nil when the listing no longer exists.
func (s *BuyRequestService) respondable(ctx context.Context, sellerID, requestID, notOwnerMsg string) (*models.BuyRequest, *models.Car, error) {
	req, err := s.requests.FindBuyRequestByID(ctx, requestID)
	if err != nil {
		return nil, nil, lookupErr(err, "find buy request", msgInvalidRequestID, msgRequestNotFound)
	}
	if req.Seller.Hex() != sellerID {
		return nil, nil, apperr.Forbidden(notOwnerMsg)
	}
	if req.Status != models.StatusPending {
		return nil, nil, apperr.InvalidState(msgAlreadyResponded)
	}

	car, err := s.cars.FindCarByID(ctx, req.Car.Hex())
	switch {
	case errors.Is(err, db.ErrNotFound):
		return req, nil, nil
	case err != nil:
		return nil, nil, fmt.Errorf("find car: %w", err)
	}
	return req, car, nil
}

// ListForSeller returns requests received by sellerID, newest first.
func (s *BuyRequestService) ListForSeller(ctx context.Context, sellerID, status string) ([]models.BuyRequest, error) {
	return s.list(ctx, sellerID, status, func(q *models.BuyRequestQuery) { q.SellerID = sellerID })
}

// ListForBuyer returns requests sent by buyerID, newest first.
func (s *BuyRequestService) ListForBuyer(ctx context.Context, buyerID, status string) ([]models.BuyRequest, error) {
	return s.list(ctx, buyerID, status, func(q *models.BuyRequestQuery) { q.BuyerID = buyerID })
}

func (s *BuyRequestService) list(ctx context.Context, userID, status string, scope func(*models.BuyRequestQuery)) ([]models.BuyRequest, error) {
	if _, err := parseUserID(userID); err != nil {
		return nil, err
	}
	q := models.BuyRequestQuery{Status: models.BuyRequestStatus(strings.TrimSpace(status))}
	if q.Status != "" && !models.IsValidStatus(q.Status) {
		return nil, apperr.Validation(msgUnknownStatus)
	}
	scope(&q)

	requests, err := s.requests.FindBuyRequests(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find buy requests: %w", err)
	}
	return requests, nil
}

// user loads a notification recipient; failures only skip the notification.
func (s *BuyRequestService) user(ctx context.Context, id string) *models.User {
	if s.users == nil {
		return nil
	}
	u, err := s.users.FindUserByID(ctx, id)
	if err != nil {
		s.log.WithError(err).WithField("user_id", id).Warn("Could not load user for notification")
		return nil
	}
	return u
}

func (s *BuyRequestService) deliver(logger log.FieldLogger, event string, err error) {
	if err != nil {
		logger.WithError(err).WithField("event", event).Warn("Notification failed")
	}
}
