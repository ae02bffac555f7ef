package services

import (
	"errors"
	"fmt"

	"github.com/ukydev/carlink/internal/apperr"
	"github.com/ukydev/carlink/internal/db"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	msgCarNotFound      = "Car not found"
	msgRequestNotFound  = "Buy request not found"
	msgInvalidCarID     = "Invalid car id"
	msgInvalidRequestID = "Invalid buy request id"
	msgInvalidUserID    = "Invalid user id"
	msgCarSold          = "This car has already been sold"
	msgAlreadyResponded = "This request has already been responded to"
	msgDuplicateRequest = "You already have a pending request for this car"
	msgOwnCar           = "You cannot buy your own car"
	msgCarIDRequired    = "Car ID is required"
	msgUpdateSold       = "Cannot update a sold car"
	msgUpdateNotOwner   = "You can only update your own listings"
	msgDeleteNotOwner   = "You can only delete your own listings"
	msgAcceptNotOwner   = "You can only accept requests for your own cars"
	msgDeclineNotOwner  = "You can only decline requests for your own cars"
	msgUnknownStatus    = "Status must be one of pending, accepted, declined"
)

// lookupErr translates a storage error from a single-document read or
// write into the domain taxonomy. Anything unexpected is wrapped as an
// infrastructure failure.
func lookupErr(err error, op, invalidMsg, notFoundMsg string) error {
	switch {
	case errors.Is(err, db.ErrInvalidID):
		return apperr.Validation(invalidMsg).Wrap(err)
	case errors.Is(err, db.ErrNotFound):
		return apperr.NotFound(notFoundMsg)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func parseUserID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperr.Validation(msgInvalidUserID).Wrap(err)
	}
	return oid, nil
}
