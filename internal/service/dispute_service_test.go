package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/gigmarket-backend/internal/models"
	"github.com/ignatzorin/gigmarket-backend/internal/repository"
)

type mockDisputeStore struct {
	mock.Mock
}

func (m *mockDisputeStore) Create(ctx context.Context, d *models.Dispute) error {
	return m.Called(ctx, d).Error(0)
}

func (m *mockDisputeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeStore) GetActiveByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeStore) ClaimResolution(ctx context.Context, id uuid.UUID, resolution string, adminID uuid.UUID, adminNotes string) (*models.Dispute, error) {
	args := m.Called(ctx, id, resolution, adminID, adminNotes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeStore) ReopenAfterFailedResolution(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockDisputeStore) MarkUnderReview(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockDisputeStore) Close(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockDisputeStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.Dispute), args.Error(1)
}

func (m *mockDisputeStore) ListActive(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.Dispute), args.Error(1)
}

type mockEscrowArbiter struct {
	mock.Mock
}

func (m *mockEscrowArbiter) ReleaseEscrow(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, orderID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockEscrowArbiter) RefundFromDispute(ctx context.Context, orderID uuid.UUID, amountCents int64, adminID uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, orderID, amountCents, adminID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func deliveredOrder(buyerID uuid.UUID) *models.Order {
	return &models.Order{
		ID:           uuid.New(),
		BuyerID:      buyerID,
		SellerID:     uuid.New(),
		Status:       models.OrderStatusDelivered,
		EscrowStatus: models.EscrowStatusHeld,
	}
}

func TestDisputeService_CreateDispute_Success(t *testing.T) {
	disputes := new(mockDisputeStore)
	orders := new(mockOrderStore)
	svc := NewDisputeService(disputes, orders, nil, nil, nil)

	buyerID := uuid.New()
	order := deliveredOrder(buyerID)

	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	disputes.On("Create", mock.Anything, mock.MatchedBy(func(d *models.Dispute) bool {
		return d.OrderID == order.ID && d.RaisedBy == buyerID && d.Status == models.DisputeStatusOpen
	})).Return(nil)
	orders.On("Transition", mock.Anything, order.ID, mock.MatchedBy(func(p repository.TransitionParams) bool {
		return p.Target == models.OrderStatusDisputed
	})).Return(&models.Order{ID: order.ID, Status: models.OrderStatusDisputed}, nil)

	dispute, err := svc.CreateDispute(context.Background(), order.ID, buyerID, "результат не соответствует описанию", nil)
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusOpen, dispute.Status)
	disputes.AssertExpectations(t)
	orders.AssertExpectations(t)
}

func TestDisputeService_CreateDispute_NotDelivered(t *testing.T) {
	disputes := new(mockDisputeStore)
	orders := new(mockOrderStore)
	svc := NewDisputeService(disputes, orders, nil, nil, nil)

	buyerID := uuid.New()
	order := deliveredOrder(buyerID)
	order.Status = models.OrderStatusInProgress
	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	_, err := svc.CreateDispute(context.Background(), order.ID, buyerID, "причина", nil)
	assert.ErrorIs(t, err, ErrDisputeNotAllowed)
	disputes.AssertNotCalled(t, "Create")
}

func TestDisputeService_CreateDispute_NotParticipant(t *testing.T) {
	disputes := new(mockDisputeStore)
	orders := new(mockOrderStore)
	svc := NewDisputeService(disputes, orders, nil, nil, nil)

	order := deliveredOrder(uuid.New())
	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	_, err := svc.CreateDispute(context.Background(), order.ID, uuid.New(), "причина", nil)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestDisputeService_CreateDispute_TransitionFails_Compensates(t *testing.T) {
	disputes := new(mockDisputeStore)
	orders := new(mockOrderStore)
	svc := NewDisputeService(disputes, orders, nil, nil, nil)

	buyerID := uuid.New()
	order := deliveredOrder(buyerID)

	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	disputes.On("Create", mock.Anything, mock.Anything).Return(nil)
	orders.On("Transition", mock.Anything, order.ID, mock.Anything).
		Return(nil, &models.IllegalTransitionError{From: models.OrderStatusCompleted, To: models.OrderStatusDisputed})
	disputes.On("Close", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.CreateDispute(context.Background(), order.ID, buyerID, "причина", nil)
	assert.Error(t, err)
	disputes.AssertCalled(t, "Close", mock.Anything, mock.Anything)
}

func TestDisputeService_ResolveDispute_ReleaseToSeller(t *testing.T) {
	disputes := new(mockDisputeStore)
	orders := new(mockOrderStore)
	escrow := new(mockEscrowArbiter)
	svc := NewDisputeService(disputes, orders, escrow, nil, nil)

	adminID := uuid.New()
	orderID := uuid.New()
	disputeID := uuid.New()
	resolved := &models.Dispute{ID: disputeID, OrderID: orderID, Status: models.DisputeStatusResolved}
	completed := &models.Order{ID: orderID, Status: models.OrderStatusCompleted, BuyerID: uuid.New(), SellerID: uuid.New()}

	disputes.On("ClaimResolution", mock.Anything, disputeID, models.ResolutionReleaseToSeller, adminID, "работа выполнена").
		Return(resolved, nil)
	escrow.On("ReleaseEscrow", mock.Anything, orderID, adminID).Return(completed, nil)

	dispute, order, err := svc.ResolveDispute(context.Background(), disputeID, models.ResolutionReleaseToSeller, 0, adminID, "работа выполнена")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, dispute.Status)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	escrow.AssertExpectations(t)
}

func TestDisputeService_ResolveDispute_PartialRefund(t *testing.T) {
	disputes := new(mockDisputeStore)
	orders := new(mockOrderStore)
	escrow := new(mockEscrowArbiter)
	svc := NewDisputeService(disputes, orders, escrow, nil, nil)

	adminID := uuid.New()
	orderID := uuid.New()
	disputeID := uuid.New()
	resolved := &models.Dispute{ID: disputeID, OrderID: orderID, Status: models.DisputeStatusResolved}
	refunded := &models.Order{ID: orderID, Status: models.OrderStatusRefunded, BuyerID: uuid.New(), SellerID: uuid.New()}

	disputes.On("ClaimResolution", mock.Anything, disputeID, models.ResolutionPartialRefund, adminID, "").
		Return(resolved, nil)
	escrow.On("RefundFromDispute", mock.Anything, orderID, int64(5000), adminID).Return(refunded, nil)

	_, order, err := svc.ResolveDispute(context.Background(), disputeID, models.ResolutionPartialRefund, 5000, adminID, "")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusRefunded, order.Status)
}

func TestDisputeService_ResolveDispute_AlreadyResolved(t *testing.T) {
	disputes := new(mockDisputeStore)
	orders := new(mockOrderStore)
	escrow := new(mockEscrowArbiter)
	svc := NewDisputeService(disputes, orders, escrow, nil, nil)

	disputeID := uuid.New()
	disputes.On("ClaimResolution", mock.Anything, disputeID, models.ResolutionRefundBuyer, mock.Anything, mock.Anything).
		Return(nil, repository.ErrDisputeAlreadyResolved)

	_, _, err := svc.ResolveDispute(context.Background(), disputeID, models.ResolutionRefundBuyer, 0, uuid.New(), "")
	assert.ErrorIs(t, err, repository.ErrDisputeAlreadyResolved)
	escrow.AssertNotCalled(t, "RefundFromDispute")
	escrow.AssertNotCalled(t, "ReleaseEscrow")
}

func TestDisputeService_ResolveDispute_InvalidResolution(t *testing.T) {
	svc := NewDisputeService(new(mockDisputeStore), new(mockOrderStore), new(mockEscrowArbiter), nil, nil)

	_, _, err := svc.ResolveDispute(context.Background(), uuid.New(), "split_the_difference", 0, uuid.New(), "")
	assert.ErrorIs(t, err, ErrInvalidResolution)
}

func TestDisputeService_ResolveDispute_PartialNeedsAmount(t *testing.T) {
	svc := NewDisputeService(new(mockDisputeStore), new(mockOrderStore), new(mockEscrowArbiter), nil, nil)

	_, _, err := svc.ResolveDispute(context.Background(), uuid.New(), models.ResolutionPartialRefund, 0, uuid.New(), "")
	assert.ErrorIs(t, err, ErrRefundAmountNeeded)
}

func TestDisputeService_ResolveDispute_MoneyFails_Reopens(t *testing.T) {
	disputes := new(mockDisputeStore)
	orders := new(mockOrderStore)
	escrow := new(mockEscrowArbiter)
	svc := NewDisputeService(disputes, orders, escrow, nil, nil)

	adminID := uuid.New()
	orderID := uuid.New()
	disputeID := uuid.New()
	resolved := &models.Dispute{ID: disputeID, OrderID: orderID, Status: models.DisputeStatusResolved}

	disputes.On("ClaimResolution", mock.Anything, disputeID, models.ResolutionRefundBuyer, adminID, "").
		Return(resolved, nil)
	escrow.On("RefundFromDispute", mock.Anything, orderID, int64(0), adminID).
		Return(nil, errors.New("провайдер недоступен"))
	disputes.On("ReopenAfterFailedResolution", mock.Anything, disputeID).Return(nil)

	_, _, err := svc.ResolveDispute(context.Background(), disputeID, models.ResolutionRefundBuyer, 0, adminID, "")
	assert.Error(t, err)
	disputes.AssertCalled(t, "ReopenAfterFailedResolution", mock.Anything, disputeID)
}
