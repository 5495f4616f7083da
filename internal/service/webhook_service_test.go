package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/gigmarket-backend/internal/models"
	"github.com/ignatzorin/gigmarket-backend/internal/payments"
	"github.com/ignatzorin/gigmarket-backend/internal/repository"
)

type mockEscrowProcessor struct {
	mock.Mock
}

func (m *mockEscrowProcessor) ConfirmPayment(ctx context.Context, paymentRef string, listingID, buyerID uuid.UUID) (*models.Order, bool, error) {
	args := m.Called(ctx, paymentRef, listingID, buyerID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Order), args.Bool(1), args.Error(2)
}

func (m *mockEscrowProcessor) CancelAfterPaymentFailure(ctx context.Context, paymentRef string) (*models.Order, error) {
	args := m.Called(ctx, paymentRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockEscrowProcessor) ApplyProviderRefund(ctx context.Context, paymentRef string, amountCents int64) (*models.Order, error) {
	args := m.Called(ctx, paymentRef, amountCents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func TestWebhookService_BadSignature(t *testing.T) {
	provider := new(mockProvider)
	escrow := new(mockEscrowProcessor)
	svc := NewWebhookService(provider, escrow, nil)

	provider.On("VerifyWebhook", []byte("payload"), "bad").Return(nil, payments.ErrBadSignature)

	err := svc.HandleEvent(context.Background(), []byte("payload"), "bad")
	assert.ErrorIs(t, err, payments.ErrBadSignature)
	escrow.AssertNotCalled(t, "ConfirmPayment")
}

func TestWebhookService_PaymentSucceeded_CreatesOrder(t *testing.T) {
	provider := new(mockProvider)
	escrow := new(mockEscrowProcessor)
	svc := NewWebhookService(provider, escrow, nil)

	listingID := uuid.New()
	buyerID := uuid.New()
	provider.On("VerifyWebhook", mock.Anything, "sig").Return(&payments.Event{
		ID:               "evt_1",
		Type:             payments.EventPaymentSucceeded,
		PaymentReference: "pi_1",
		Metadata: map[string]string{
			"listing_id": listingID.String(),
			"buyer_id":   buyerID.String(),
		},
	}, nil)
	escrow.On("ConfirmPayment", mock.Anything, "pi_1", listingID, buyerID).
		Return(&models.Order{ID: uuid.New()}, false, nil)

	err := svc.HandleEvent(context.Background(), []byte("{}"), "sig")
	assert.NoError(t, err)
	escrow.AssertExpectations(t)
}

func TestWebhookService_PaymentSucceeded_DuplicateDelivery(t *testing.T) {
	provider := new(mockProvider)
	escrow := new(mockEscrowProcessor)
	svc := NewWebhookService(provider, escrow, nil)

	listingID := uuid.New()
	buyerID := uuid.New()
	provider.On("VerifyWebhook", mock.Anything, "sig").Return(&payments.Event{
		Type:             payments.EventPaymentSucceeded,
		PaymentReference: "pi_1",
		Metadata: map[string]string{
			"listing_id": listingID.String(),
			"buyer_id":   buyerID.String(),
		},
	}, nil)
	// Повторная доставка: заказ уже существует, событие подтверждается.
	escrow.On("ConfirmPayment", mock.Anything, "pi_1", listingID, buyerID).
		Return(&models.Order{ID: uuid.New()}, true, nil)

	err := svc.HandleEvent(context.Background(), []byte("{}"), "sig")
	assert.NoError(t, err)
}

func TestWebhookService_PaymentSucceeded_ForeignIntent(t *testing.T) {
	provider := new(mockProvider)
	escrow := new(mockEscrowProcessor)
	svc := NewWebhookService(provider, escrow, nil)

	provider.On("VerifyWebhook", mock.Anything, "sig").Return(&payments.Event{
		Type:             payments.EventPaymentSucceeded,
		PaymentReference: "pi_other",
		Metadata:         map[string]string{},
	}, nil)

	err := svc.HandleEvent(context.Background(), []byte("{}"), "sig")
	assert.NoError(t, err)
	escrow.AssertNotCalled(t, "ConfirmPayment")
}

func TestWebhookService_PaymentFailed_NoOrderYet(t *testing.T) {
	provider := new(mockProvider)
	escrow := new(mockEscrowProcessor)
	svc := NewWebhookService(provider, escrow, nil)

	provider.On("VerifyWebhook", mock.Anything, "sig").Return(&payments.Event{
		Type:             payments.EventPaymentFailed,
		PaymentReference: "pi_f",
	}, nil)
	escrow.On("CancelAfterPaymentFailure", mock.Anything, "pi_f").
		Return(nil, repository.ErrOrderNotFound)

	err := svc.HandleEvent(context.Background(), []byte("{}"), "sig")
	assert.NoError(t, err)
}

func TestWebhookService_ChargeRefunded(t *testing.T) {
	provider := new(mockProvider)
	escrow := new(mockEscrowProcessor)
	svc := NewWebhookService(provider, escrow, nil)

	provider.On("VerifyWebhook", mock.Anything, "sig").Return(&payments.Event{
		Type:             payments.EventChargeRefunded,
		PaymentReference: "pi_r",
		AmountCents:      5000,
	}, nil)
	escrow.On("ApplyProviderRefund", mock.Anything, "pi_r", int64(5000)).
		Return(&models.Order{Status: models.OrderStatusRefunded}, nil)

	err := svc.HandleEvent(context.Background(), []byte("{}"), "sig")
	assert.NoError(t, err)
	escrow.AssertExpectations(t)
}

func TestWebhookService_IgnoredEvent(t *testing.T) {
	provider := new(mockProvider)
	escrow := new(mockEscrowProcessor)
	svc := NewWebhookService(provider, escrow, nil)

	provider.On("VerifyWebhook", mock.Anything, "sig").
		Return(&payments.Event{Type: payments.EventIgnored}, nil)

	err := svc.HandleEvent(context.Background(), []byte("{}"), "sig")
	assert.NoError(t, err)
	escrow.AssertNotCalled(t, "ConfirmPayment")
	escrow.AssertNotCalled(t, "ApplyProviderRefund")
}
