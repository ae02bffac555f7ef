package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BuyRequestStatus is the state of a buy request. Pending is the only
// non-terminal state.
type BuyRequestStatus string

const (
	StatusPending  BuyRequestStatus = "pending"
	StatusAccepted BuyRequestStatus = "accepted"
	StatusDeclined BuyRequestStatus = "declined"
)

// IsValidStatus checks if a status is one of the known values.
func IsValidStatus(s BuyRequestStatus) bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDeclined:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed.
func (s BuyRequestStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined
}

// BuyRequest is a buyer's offer to purchase a listed car.
// Seller is copied from the car when the request is created.
type BuyRequest struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Car         primitive.ObjectID `bson:"car" json:"car"`
	Buyer       primitive.ObjectID `bson:"buyer" json:"buyer"`
	Seller      primitive.ObjectID `bson:"seller" json:"seller"`
	Status      BuyRequestStatus   `bson:"status" json:"status"`
	Message     string             `bson:"message,omitempty" json:"message,omitempty"`
	RespondedAt *time.Time         `bson:"responded_at,omitempty" json:"respondedAt,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updatedAt"`
}

// CreateBuyRequest is the payload a buyer posts.
type CreateBuyRequest struct {
	CarID   string `json:"carId"`
	Message string `json:"message"`
}

// BuyRequestQuery selects requests for one party, optionally by status.
// Exactly one of SellerID and BuyerID is expected to be set.
type BuyRequestQuery struct {
	SellerID string
	BuyerID  string
	Status   BuyRequestStatus
}
