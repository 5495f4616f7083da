package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/gigmarket-backend/internal/models"
	"github.com/ignatzorin/gigmarket-backend/internal/payments"
	"github.com/ignatzorin/gigmarket-backend/internal/repository"
)

var (
	ErrNotParticipant = errors.New("доступ к заказу имеют только его стороны")
	ErrNotOrderSeller = errors.New("операция доступна только продавцу заказа")
	ErrNoFiles        = errors.New("не переданы файлы")
	ErrOrderDisputed  = errors.New("по заказу открыт спор, выплата возможна только его решением")
)

// EscrowReleaser выплачивает удержанные средства продавцу. Приёмка
// покупателем использует тот же путь, что и решение спора в его пользу.
type EscrowReleaser interface {
	ReleaseEscrow(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error)
}

// OrderStatusStore — доступ заказного сервиса к журналу и денежным записям.
type OrderStatusStore interface {
	OrderStore
	ListTransactions(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
}

// OrderService ведёт заказ по жизненному циклу: материалы покупателя,
// работа продавца, сдача результата, приёмка и отмена.
type OrderService struct {
	orders          OrderStatusStore
	escrow          EscrowReleaser
	provider        payments.Provider
	notifier        Notifier
	audit           AuditSink
	providerTimeout time.Duration
}

func NewOrderService(
	orders OrderStatusStore,
	escrow EscrowReleaser,
	provider payments.Provider,
	notifier Notifier,
	audit AuditSink,
	providerTimeout time.Duration,
) *OrderService {
	if audit == nil {
		audit = NopAuditSink{}
	}
	return &OrderService{
		orders:          orders,
		escrow:          escrow,
		provider:        provider,
		notifier:        notifier,
		audit:           audit,
		providerTimeout: providerTimeout,
	}
}

// GetOrder возвращает заказ, проверяя право доступа.
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID uuid.UUID, asAdmin bool) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !asAdmin && !order.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return order, nil
}

// ListOrders возвращает заказы пользователя как покупателя и как продавца.
func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.orders.ListByUser(ctx, userID, limit, offset)
}

// History возвращает журнал переходов статуса заказа.
func (s *OrderService) History(ctx context.Context, orderID, userID uuid.UUID, asAdmin bool) ([]models.OrderStatusHistory, error) {
	if _, err := s.GetOrder(ctx, orderID, userID, asAdmin); err != nil {
		return nil, err
	}
	return s.orders.History(ctx, orderID)
}

// Transactions возвращает денежные записи по заказу.
func (s *OrderService) Transactions(ctx context.Context, orderID, userID uuid.UUID, asAdmin bool) ([]models.Transaction, error) {
	if _, err := s.GetOrder(ctx, orderID, userID, asAdmin); err != nil {
		return nil, err
	}
	return s.orders.ListTransactions(ctx, orderID)
}

// AttachRequirements прикрепляет материалы покупателя и запускает работу.
func (s *OrderService) AttachRequirements(ctx context.Context, orderID, buyerID uuid.UUID, files []string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, ErrNotOrderBuyer
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	updated, err := s.orders.Transition(ctx, orderID, repository.TransitionParams{
		Target:     models.OrderStatusInProgress,
		ActorID:    &buyerID,
		Note:       "покупатель передал исходные материалы",
		BuyerFiles: files,
	})
	if err != nil {
		return nil, err
	}

	s.notify(updated.SellerID, "order.requirements_attached", updated)
	return updated, nil
}

// StartDelivery переводит заказ в ожидание сдачи: продавец подтвердил,
// что приступил к работе и готовит результат.
func (s *OrderService) StartDelivery(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != sellerID {
		return nil, ErrNotOrderSeller
	}

	updated, err := s.orders.Transition(ctx, orderID, repository.TransitionParams{
		Target:  models.OrderStatusAwaitingDelivery,
		ActorID: &sellerID,
		Note:    "продавец приступил к выполнению",
	})
	if err != nil {
		return nil, err
	}

	s.notify(updated.BuyerID, "order.in_delivery", updated)
	return updated, nil
}

// Deliver прикрепляет файлы результата и передаёт заказ на приёмку.
func (s *OrderService) Deliver(ctx context.Context, orderID, sellerID uuid.UUID, files []string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != sellerID {
		return nil, ErrNotOrderSeller
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	updated, err := s.orders.Transition(ctx, orderID, repository.TransitionParams{
		Target:      models.OrderStatusDelivered,
		ActorID:     &sellerID,
		Note:        "продавец сдал результат",
		SellerFiles: files,
	})
	if err != nil {
		return nil, err
	}

	s.notify(updated.BuyerID, "order.delivered", updated)
	return updated, nil
}

// AcceptDelivery — приёмка результата покупателем. Единственное действие,
// которое выплачивает удержанные средства продавцу вне спора.
func (s *OrderService) AcceptDelivery(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error) {
	return s.ReleaseEscrow(ctx, orderID, buyerID, false)
}

// ReleaseEscrow выплачивает удержанные средства продавцу. Доступно
// покупателю заказа и администратору, но только до открытия спора:
// по спорному заказу деньгами распоряжается исключительно его решение.
func (s *OrderService) ReleaseEscrow(ctx context.Context, orderID, userID uuid.UUID, asAdmin bool) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !asAdmin && order.BuyerID != userID {
		return nil, ErrNotOrderBuyer
	}
	if order.Status == models.OrderStatusDisputed {
		return nil, ErrOrderDisputed
	}
	return s.escrow.ReleaseEscrow(ctx, orderID, userID)
}

// Cancel отменяет незавершённый заказ по инициативе одной из сторон.
// Удержанные средства возвращаются покупателю отменой авторизации.
func (s *OrderService) Cancel(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(actorID) {
		return nil, ErrNotParticipant
	}
	if !order.Status.CanTransitionTo(models.OrderStatusCancelled) {
		return nil, &models.IllegalTransitionError{From: order.Status, To: models.OrderStatusCancelled}
	}

	params := repository.TransitionParams{
		Target:  models.OrderStatusCancelled,
		ActorID: &actorID,
		Note:    "заказ отменён стороной сделки",
	}

	if order.EscrowStatus == models.EscrowStatusHeld {
		providerCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
		err = s.provider.Cancel(providerCtx, order.PaymentReference)
		cancel()
		if err != nil {
			return nil, err
		}

		held := models.EscrowStatusHeld
		refunded := models.EscrowStatusRefunded
		description := "Возврат при отмене заказа " + order.OrderNumber
		params.EscrowStatus = &refunded
		params.RequireEscrowStatus = &held
		params.Ledger = []models.Transaction{{
			UserID:      order.BuyerID,
			Type:        models.TransactionTypeRefund,
			AmountCents: order.AmountCents,
			Currency:    order.Currency,
			Description: &description,
		}}
	}

	updated, err := s.orders.Transition(ctx, orderID, params)
	if err != nil {
		return nil, err
	}

	s.audit.Event(ctx, "order.cancelled", map[string]interface{}{
		"order_id": orderID,
		"actor_id": actorID,
	})
	s.notify(updated.BuyerID, "order.cancelled", updated)
	s.notify(updated.SellerID, "order.cancelled", updated)
	return updated, nil
}

func (s *OrderService) notify(userID uuid.UUID, event string, payload interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyUser(userID, event, payload)
}
