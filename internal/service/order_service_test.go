package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/gigmarket-backend/internal/models"
	"github.com/ignatzorin/gigmarket-backend/internal/repository"
)

type mockEscrowReleaser struct {
	mock.Mock
}

func (m *mockEscrowReleaser) ReleaseEscrow(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, orderID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func newTestOrderService(orders *mockOrderStore, escrow *mockEscrowReleaser, provider *mockProvider) *OrderService {
	return NewOrderService(orders, escrow, provider, nil, nil, 5*time.Second)
}

func escrowOrder(status models.OrderStatus) *models.Order {
	return &models.Order{
		ID:               uuid.New(),
		BuyerID:          uuid.New(),
		SellerID:         uuid.New(),
		AmountCents:      20000,
		Currency:         "usd",
		Status:           status,
		EscrowStatus:     models.EscrowStatusHeld,
		PaymentReference: "pi_ord",
	}
}

func TestOrderService_GetOrder_AccessControl(t *testing.T) {
	orders := new(mockOrderStore)
	svc := newTestOrderService(orders, nil, nil)

	order := escrowOrder(models.OrderStatusInProgress)
	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	_, err := svc.GetOrder(context.Background(), order.ID, order.BuyerID, false)
	assert.NoError(t, err)

	_, err = svc.GetOrder(context.Background(), order.ID, uuid.New(), false)
	assert.ErrorIs(t, err, ErrNotParticipant)

	// Администратор видит любой заказ.
	_, err = svc.GetOrder(context.Background(), order.ID, uuid.New(), true)
	assert.NoError(t, err)
}

func TestOrderService_AttachRequirements_OnlyBuyer(t *testing.T) {
	orders := new(mockOrderStore)
	svc := newTestOrderService(orders, nil, nil)

	order := escrowOrder(models.OrderStatusAwaitingUpload)
	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	_, err := svc.AttachRequirements(context.Background(), order.ID, order.SellerID, []string{"brief.pdf"})
	assert.ErrorIs(t, err, ErrNotOrderBuyer)
	orders.AssertNotCalled(t, "Transition")
}

func TestOrderService_AttachRequirements_Success(t *testing.T) {
	orders := new(mockOrderStore)
	svc := newTestOrderService(orders, nil, nil)

	order := escrowOrder(models.OrderStatusAwaitingUpload)
	files := []string{"brief.pdf", "logo.png"}

	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	orders.On("Transition", mock.Anything, order.ID, mock.MatchedBy(func(p repository.TransitionParams) bool {
		return p.Target == models.OrderStatusInProgress && len(p.BuyerFiles) == 2
	})).Return(&models.Order{ID: order.ID, Status: models.OrderStatusInProgress}, nil)

	updated, err := svc.AttachRequirements(context.Background(), order.ID, order.BuyerID, files)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusInProgress, updated.Status)
}

func TestOrderService_Deliver_RequiresFiles(t *testing.T) {
	orders := new(mockOrderStore)
	svc := newTestOrderService(orders, nil, nil)

	order := escrowOrder(models.OrderStatusAwaitingDelivery)
	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	_, err := svc.Deliver(context.Background(), order.ID, order.SellerID, nil)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestOrderService_Deliver_OnlySeller(t *testing.T) {
	orders := new(mockOrderStore)
	svc := newTestOrderService(orders, nil, nil)

	order := escrowOrder(models.OrderStatusAwaitingDelivery)
	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	_, err := svc.Deliver(context.Background(), order.ID, order.BuyerID, []string{"result.zip"})
	assert.ErrorIs(t, err, ErrNotOrderSeller)
}

func TestOrderService_AcceptDelivery_DelegatesToEscrow(t *testing.T) {
	orders := new(mockOrderStore)
	escrow := new(mockEscrowReleaser)
	svc := newTestOrderService(orders, escrow, nil)

	order := escrowOrder(models.OrderStatusDelivered)
	completed := &models.Order{ID: order.ID, Status: models.OrderStatusCompleted}

	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	escrow.On("ReleaseEscrow", mock.Anything, order.ID, order.BuyerID).Return(completed, nil)

	updated, err := svc.AcceptDelivery(context.Background(), order.ID, order.BuyerID)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, updated.Status)
	escrow.AssertExpectations(t)
}

func TestOrderService_AcceptDelivery_OnlyBuyer(t *testing.T) {
	orders := new(mockOrderStore)
	escrow := new(mockEscrowReleaser)
	svc := newTestOrderService(orders, escrow, nil)

	order := escrowOrder(models.OrderStatusDelivered)
	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	_, err := svc.AcceptDelivery(context.Background(), order.ID, order.SellerID)
	assert.ErrorIs(t, err, ErrNotOrderBuyer)
	escrow.AssertNotCalled(t, "ReleaseEscrow")
}

func TestOrderService_ReleaseEscrow_AdminOverridesBuyerCheck(t *testing.T) {
	orders := new(mockOrderStore)
	escrow := new(mockEscrowReleaser)
	svc := newTestOrderService(orders, escrow, nil)

	order := escrowOrder(models.OrderStatusDelivered)
	adminID := uuid.New()
	completed := &models.Order{ID: order.ID, Status: models.OrderStatusCompleted}

	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	escrow.On("ReleaseEscrow", mock.Anything, order.ID, adminID).Return(completed, nil)

	updated, err := svc.ReleaseEscrow(context.Background(), order.ID, adminID, true)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, updated.Status)

	_, err = svc.ReleaseEscrow(context.Background(), order.ID, adminID, false)
	assert.ErrorIs(t, err, ErrNotOrderBuyer)
}

func TestOrderService_ReleaseEscrow_DisputedOrderRejected(t *testing.T) {
	orders := new(mockOrderStore)
	escrow := new(mockEscrowReleaser)
	svc := newTestOrderService(orders, escrow, nil)

	order := escrowOrder(models.OrderStatusDisputed)
	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	// Пока спор открыт, выплату покупателем не провести: иначе заказ
	// завершится, а спор навсегда останется активным.
	_, err := svc.ReleaseEscrow(context.Background(), order.ID, order.BuyerID, false)
	assert.ErrorIs(t, err, ErrOrderDisputed)

	_, err = svc.AcceptDelivery(context.Background(), order.ID, order.BuyerID)
	assert.ErrorIs(t, err, ErrOrderDisputed)

	_, err = svc.ReleaseEscrow(context.Background(), order.ID, uuid.New(), true)
	assert.ErrorIs(t, err, ErrOrderDisputed)

	escrow.AssertNotCalled(t, "ReleaseEscrow")
}

func TestOrderService_Cancel_HeldEscrowRefundsBuyer(t *testing.T) {
	orders := new(mockOrderStore)
	provider := new(mockProvider)
	svc := newTestOrderService(orders, nil, provider)

	order := escrowOrder(models.OrderStatusInProgress)
	cancelled := &models.Order{ID: order.ID, Status: models.OrderStatusCancelled, BuyerID: order.BuyerID, SellerID: order.SellerID}

	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	provider.On("Cancel", mock.Anything, "pi_ord").Return(nil)
	orders.On("Transition", mock.Anything, order.ID, mock.MatchedBy(func(p repository.TransitionParams) bool {
		return p.Target == models.OrderStatusCancelled &&
			p.EscrowStatus != nil && *p.EscrowStatus == models.EscrowStatusRefunded &&
			len(p.Ledger) == 1 &&
			p.Ledger[0].Type == models.TransactionTypeRefund &&
			p.Ledger[0].AmountCents == 20000 &&
			p.Ledger[0].UserID == order.BuyerID
	})).Return(cancelled, nil)

	updated, err := svc.Cancel(context.Background(), order.ID, order.BuyerID)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, updated.Status)
	provider.AssertExpectations(t)
}

func TestOrderService_Cancel_TerminalOrderRejected(t *testing.T) {
	orders := new(mockOrderStore)
	provider := new(mockProvider)
	svc := newTestOrderService(orders, nil, provider)

	order := escrowOrder(models.OrderStatusCompleted)
	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	_, err := svc.Cancel(context.Background(), order.ID, order.BuyerID)
	var illegal *models.IllegalTransitionError
	assert.ErrorAs(t, err, &illegal)
	provider.AssertNotCalled(t, "Cancel")
}

func TestOrderService_Cancel_NotParticipant(t *testing.T) {
	orders := new(mockOrderStore)
	svc := newTestOrderService(orders, nil, nil)

	order := escrowOrder(models.OrderStatusInProgress)
	orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	_, err := svc.Cancel(context.Background(), order.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestOrderService_ListOrders_Defaults(t *testing.T) {
	orders := new(mockOrderStore)
	svc := newTestOrderService(orders, nil, nil)

	userID := uuid.New()
	orders.On("ListByUser", mock.Anything, userID, 20, 0).Return([]models.Order{}, nil)

	_, err := svc.ListOrders(context.Background(), userID, 0, -5)
	assert.NoError(t, err)
	orders.AssertExpectations(t)
}
