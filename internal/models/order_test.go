package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderStatusPending, OrderStatusAwaitingUpload, true},
		{OrderStatusPending, OrderStatusCompleted, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusDelivered, false},
		{OrderStatusAwaitingUpload, OrderStatusInProgress, true},
		{OrderStatusAwaitingUpload, OrderStatusCancelled, true},
		{OrderStatusAwaitingUpload, OrderStatusDelivered, false},
		{OrderStatusInProgress, OrderStatusAwaitingDelivery, true},
		{OrderStatusInProgress, OrderStatusCompleted, false},
		{OrderStatusAwaitingDelivery, OrderStatusDelivered, true},
		{OrderStatusDelivered, OrderStatusCompleted, true},
		{OrderStatusDelivered, OrderStatusDisputed, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusDisputed, OrderStatusCompleted, true},
		{OrderStatusDisputed, OrderStatusRefunded, true},
		{OrderStatusDisputed, OrderStatusCancelled, false},
		{OrderStatusCompleted, OrderStatusRefunded, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusRefunded, OrderStatusCompleted, false},
	}

	for _, tc := range cases {
		assert.Equalf(t, tc.allowed, tc.from.CanTransitionTo(tc.to),
			"переход %s -> %s", tc.from, tc.to)
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.True(t, OrderStatusCompleted.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.True(t, OrderStatusRefunded.IsTerminal())

	assert.False(t, OrderStatusPending.IsTerminal())
	assert.False(t, OrderStatusDelivered.IsTerminal())
	assert.False(t, OrderStatusDisputed.IsTerminal())
}

func TestOrderStatus_IsValid(t *testing.T) {
	assert.True(t, OrderStatusAwaitingUpload.IsValid())
	assert.False(t, OrderStatus("shipped").IsValid())
}

func TestIllegalTransitionError_Message(t *testing.T) {
	err := &IllegalTransitionError{From: OrderStatusCompleted, To: OrderStatusDisputed}
	assert.Contains(t, err.Error(), "completed")
	assert.Contains(t, err.Error(), "disputed")
}

func TestOrder_IsParticipant(t *testing.T) {
	buyer := uuid.New()
	seller := uuid.New()
	order := &Order{BuyerID: buyer, SellerID: seller}

	assert.True(t, order.IsParticipant(buyer))
	assert.True(t, order.IsParticipant(seller))
	assert.False(t, order.IsParticipant(uuid.New()))
}

func TestListing_RequiresEscrow(t *testing.T) {
	instant := &Listing{ListingType: ListingTypeInstant}
	collab := &Listing{ListingType: ListingTypeCollaboration}

	assert.False(t, instant.RequiresEscrow())
	assert.True(t, collab.RequiresEscrow())
}

func TestDispute_IsActive(t *testing.T) {
	assert.True(t, (&Dispute{Status: DisputeStatusOpen}).IsActive())
	assert.True(t, (&Dispute{Status: DisputeStatusUnderReview}).IsActive())
	assert.False(t, (&Dispute{Status: DisputeStatusResolved}).IsActive())
	assert.False(t, (&Dispute{Status: DisputeStatusClosed}).IsActive())
}
