package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/carlink/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMongoBuyRequestCollection_Lifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	requests := store.BuyRequests

	car, seller := primitive.NewObjectID(), primitive.NewObjectID()
	buyerA, buyerB, buyerC := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()

	insert := func(buyer primitive.ObjectID) *models.BuyRequest {
		req := &models.BuyRequest{Car: car, Buyer: buyer, Seller: seller}
		require.NoError(t, requests.InsertBuyRequest(ctx, req))
		assert.Equal(t, models.StatusPending, req.Status)
		return req
	}
	a, b, c := insert(buyerA), insert(buyerB), insert(buyerC)

	// A second pending request from the same buyer hits the partial index.
	err := requests.InsertBuyRequest(ctx, &models.BuyRequest{Car: car, Buyer: buyerA, Seller: seller})
	assert.ErrorIs(t, err, ErrDuplicate)

	pending, err := requests.FindPendingBuyRequest(ctx, car.Hex(), buyerB.Hex())
	require.NoError(t, err)
	assert.Equal(t, b.ID, pending.ID)

	now := time.Now().UTC()
	ok, err := requests.TransitionBuyRequest(ctx, c.ID.Hex(), models.StatusPending, models.StatusDeclined, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = requests.TransitionBuyRequest(ctx, a.ID.Hex(), models.StatusPending, models.StatusAccepted, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = requests.TransitionBuyRequest(ctx, a.ID.Hex(), models.StatusPending, models.StatusDeclined, now)
	require.NoError(t, err)
	assert.False(t, ok, "terminal request must not move again")

	n, err := requests.DeclinePendingForCar(ctx, car.Hex(), a.ID.Hex(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := requests.FindBuyRequests(ctx, models.BuyRequestQuery{SellerID: seller.Hex()})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	declined, err := requests.FindBuyRequests(ctx, models.BuyRequestQuery{SellerID: seller.Hex(), Status: models.StatusDeclined})
	require.NoError(t, err)
	assert.Len(t, declined, 2)

	accepted, err := requests.FindBuyRequestByID(ctx, a.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, accepted.Status)
	assert.NotNil(t, accepted.RespondedAt)

	// A declined buyer may ask again.
	require.NoError(t, requests.InsertBuyRequest(ctx, &models.BuyRequest{Car: car, Buyer: buyerC, Seller: seller}))

	mine, err := requests.FindBuyRequests(ctx, models.BuyRequestQuery{BuyerID: buyerC.Hex()})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, models.StatusPending, mine[0].Status)

	require.NoError(t, requests.DeleteBuyRequest(ctx, mine[0].ID.Hex()))
	_, err = requests.FindBuyRequestByID(ctx, mine[0].ID.Hex())
	assert.ErrorIs(t, err, ErrNotFound)
}
