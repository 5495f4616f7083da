package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/gigmarket-backend/internal/metrics"
	"github.com/ignatzorin/gigmarket-backend/internal/models"
	"github.com/ignatzorin/gigmarket-backend/internal/repository"
)

var (
	ErrDisputeNotAllowed  = errors.New("спор можно открыть только по сданному заказу")
	ErrInvalidResolution  = errors.New("неизвестное решение по спору")
	ErrRefundAmountNeeded = errors.New("для частичного возврата требуется сумма")
)

// DisputeStore — контракт хранилища споров со стороны сервиса.
type DisputeStore interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetActiveByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error)
	ClaimResolution(ctx context.Context, id uuid.UUID, resolution string, adminID uuid.UUID, adminNotes string) (*models.Dispute, error)
	ReopenAfterFailedResolution(ctx context.Context, id uuid.UUID) error
	MarkUnderReview(ctx context.Context, id uuid.UUID) error
	Close(ctx context.Context, id uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	ListActive(ctx context.Context, limit, offset int) ([]models.Dispute, error)
}

// EscrowArbiter — денежные операции, доступные решению спора.
type EscrowArbiter interface {
	ReleaseEscrow(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error)
	RefundFromDispute(ctx context.Context, orderID uuid.UUID, amountCents int64, adminID uuid.UUID) (*models.Order, error)
}

// DisputeService управляет спорами: открытие стороной сделки и решение
// администратором, которое переводит и спор, и деньги заказа.
type DisputeService struct {
	disputes DisputeStore
	orders   OrderStore
	escrow   EscrowArbiter
	notifier Notifier
	audit    AuditSink
}

func NewDisputeService(disputes DisputeStore, orders OrderStore, escrow EscrowArbiter, notifier Notifier, audit AuditSink) *DisputeService {
	if audit == nil {
		audit = NopAuditSink{}
	}
	return &DisputeService{
		disputes: disputes,
		orders:   orders,
		escrow:   escrow,
		notifier: notifier,
		audit:    audit,
	}
}

// CreateDispute открывает спор по сданному заказу. Создание строки спора и
// перевод заказа в disputed не объединены одной транзакцией: частичный
// уникальный индекс гарантирует единственность активного спора, а при
// провале перехода строка спора закрывается компенсирующим вызовом.
func (s *DisputeService) CreateDispute(ctx context.Context, orderID, userID uuid.UUID, reason string, description *string) (*models.Dispute, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	if order.Status != models.OrderStatusDelivered {
		return nil, ErrDisputeNotAllowed
	}

	dispute := &models.Dispute{
		OrderID:     orderID,
		RaisedBy:    userID,
		Reason:      reason,
		Description: description,
		Status:      models.DisputeStatusOpen,
	}
	if err := s.disputes.Create(ctx, dispute); err != nil {
		return nil, err
	}

	if _, err := s.orders.Transition(ctx, orderID, repository.TransitionParams{
		Target:  models.OrderStatusDisputed,
		ActorID: &userID,
		Note:    "открыт спор: " + reason,
	}); err != nil {
		if closeErr := s.disputes.Close(ctx, dispute.ID); closeErr != nil {
			s.audit.Event(ctx, "dispute.compensation_failed", map[string]interface{}{
				"dispute_id": dispute.ID,
				"error":      closeErr.Error(),
			})
		}
		return nil, err
	}

	metrics.DisputeOpened()
	s.audit.Event(ctx, "dispute.opened", map[string]interface{}{
		"dispute_id": dispute.ID,
		"order_id":   orderID,
		"raised_by":  userID,
		"reason":     reason,
	})
	s.notify(order.BuyerID, "dispute.opened", dispute)
	s.notify(order.SellerID, "dispute.opened", dispute)

	return dispute, nil
}

// TakeUnderReview помечает спор взятым в рассмотрение администратором.
func (s *DisputeService) TakeUnderReview(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error) {
	if err := s.disputes.MarkUnderReview(ctx, disputeID); err != nil {
		return nil, err
	}
	return s.disputes.GetByID(ctx, disputeID)
}

// ResolveDispute применяет решение администратора. Спор сначала атомарно
// помечается решённым, и только затем выполняется денежное движение:
// повторное решение того же спора не находит активной строки и не движет
// деньги второй раз. Если денежная операция не удалась, спор возвращается
// в рассмотрение.
func (s *DisputeService) ResolveDispute(ctx context.Context, disputeID uuid.UUID, resolution string, refundCents int64, adminID uuid.UUID, adminNotes string) (*models.Dispute, *models.Order, error) {
	if !models.ValidResolutions[resolution] {
		return nil, nil, ErrInvalidResolution
	}
	if resolution == models.ResolutionPartialRefund && refundCents <= 0 {
		return nil, nil, ErrRefundAmountNeeded
	}

	dispute, err := s.disputes.ClaimResolution(ctx, disputeID, resolution, adminID, adminNotes)
	if err != nil {
		return nil, nil, err
	}

	var order *models.Order
	switch resolution {
	case models.ResolutionReleaseToSeller:
		order, err = s.escrow.ReleaseEscrow(ctx, dispute.OrderID, adminID)
	case models.ResolutionRefundBuyer:
		order, err = s.escrow.RefundFromDispute(ctx, dispute.OrderID, 0, adminID)
	case models.ResolutionPartialRefund:
		order, err = s.escrow.RefundFromDispute(ctx, dispute.OrderID, refundCents, adminID)
	}
	if err != nil {
		if reopenErr := s.disputes.ReopenAfterFailedResolution(ctx, disputeID); reopenErr != nil {
			s.audit.Event(ctx, "dispute.reopen_failed", map[string]interface{}{
				"dispute_id": disputeID,
				"error":      reopenErr.Error(),
			})
		}
		return nil, nil, fmt.Errorf("dispute service: не удалось применить решение: %w", err)
	}

	metrics.DisputeResolved(resolution)
	s.audit.Event(ctx, "dispute.resolved", map[string]interface{}{
		"dispute_id": disputeID,
		"order_id":   dispute.OrderID,
		"resolution": resolution,
		"admin_id":   adminID,
	})
	s.notify(order.BuyerID, "dispute.resolved", dispute)
	s.notify(order.SellerID, "dispute.resolved", dispute)

	return dispute, order, nil
}

// GetDispute возвращает спор с проверкой доступа.
func (s *DisputeService) GetDispute(ctx context.Context, disputeID, userID uuid.UUID, asAdmin bool) (*models.Dispute, error) {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if asAdmin {
		return dispute, nil
	}
	order, err := s.orders.GetByID(ctx, dispute.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return dispute, nil
}

// ListUserDisputes возвращает споры по заказам пользователя.
func (s *DisputeService) ListUserDisputes(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.disputes.ListByUser(ctx, userID, limit, offset)
}

// ListActiveDisputes возвращает очередь активных споров для администратора.
func (s *DisputeService) ListActiveDisputes(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.disputes.ListActive(ctx, limit, offset)
}

func (s *DisputeService) notify(userID uuid.UUID, event string, payload interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyUser(userID, event, payload)
}
