package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/gigmarket-backend/internal/metrics"
	"github.com/ignatzorin/gigmarket-backend/internal/models"
	"github.com/ignatzorin/gigmarket-backend/internal/payments"
	"github.com/ignatzorin/gigmarket-backend/internal/repository"
)

// EscrowProcessor — операции платёжного сервиса, которыми управляют
// события провайдера.
type EscrowProcessor interface {
	ConfirmPayment(ctx context.Context, paymentRef string, listingID, buyerID uuid.UUID) (*models.Order, bool, error)
	CancelAfterPaymentFailure(ctx context.Context, paymentRef string) (*models.Order, error)
	ApplyProviderRefund(ctx context.Context, paymentRef string, amountCents int64) (*models.Order, error)
}

// WebhookService обрабатывает события платёжного провайдера. Провайдер
// повторяет доставку до подтверждения, поэтому каждая ветка обязана быть
// идемпотентной: повторное событие не создаёт второй заказ и не движет
// деньги второй раз.
type WebhookService struct {
	provider payments.Provider
	escrow   EscrowProcessor
	audit    AuditSink
}

func NewWebhookService(provider payments.Provider, escrow EscrowProcessor, audit AuditSink) *WebhookService {
	if audit == nil {
		audit = NopAuditSink{}
	}
	return &WebhookService{provider: provider, escrow: escrow, audit: audit}
}

// HandleEvent проверяет подпись по сырому телу и применяет событие.
// Ошибка подписи означает отказ; прочие ошибки обработки транспортный
// слой логирует, но доставку провайдеру всё равно подтверждает.
func (s *WebhookService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := s.provider.VerifyWebhook(payload, signature)
	if err != nil {
		metrics.WebhookEvent("unknown", "bad_signature")
		return err
	}

	switch event.Type {
	case payments.EventPaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, event)
	case payments.EventPaymentFailed:
		return s.handlePaymentFailed(ctx, event)
	case payments.EventChargeRefunded:
		return s.handleChargeRefunded(ctx, event)
	default:
		metrics.WebhookEvent(string(event.Type), "ignored")
		return nil
	}
}

// handlePaymentSucceeded создаёт заказ по оплаченному намерению. Если заказ
// уже создан клиентским подтверждением, событие подтверждается без действий.
func (s *WebhookService) handlePaymentSucceeded(ctx context.Context, event *payments.Event) error {
	listingID, buyerID, ok := parseIntentMetadata(event.Metadata)
	if !ok {
		// Намерение создано не нашим бэкендом: подтверждаем, чтобы провайдер
		// не повторял доставку, и фиксируем в аудите.
		s.audit.Event(ctx, "webhook.metadata_missing", map[string]interface{}{
			"event_id":          event.ID,
			"payment_reference": event.PaymentReference,
		})
		metrics.WebhookEvent(string(event.Type), "skipped")
		return nil
	}

	_, replayed, err := s.escrow.ConfirmPayment(ctx, event.PaymentReference, listingID, buyerID)
	if err != nil {
		metrics.WebhookEvent(string(event.Type), "error")
		return err
	}
	if replayed {
		metrics.WebhookEvent(string(event.Type), "duplicate")
	} else {
		metrics.WebhookEvent(string(event.Type), "applied")
	}
	return nil
}

// handlePaymentFailed отменяет заказ по отклонённому платежу. Отсутствие
// заказа не ошибка: он мог и не быть создан до провала платежа.
func (s *WebhookService) handlePaymentFailed(ctx context.Context, event *payments.Event) error {
	_, err := s.escrow.CancelAfterPaymentFailure(ctx, event.PaymentReference)
	if errors.Is(err, repository.ErrOrderNotFound) {
		metrics.WebhookEvent(string(event.Type), "skipped")
		return nil
	}
	if err != nil {
		metrics.WebhookEvent(string(event.Type), "error")
		return err
	}
	metrics.WebhookEvent(string(event.Type), "applied")
	return nil
}

// handleChargeRefunded отражает возврат, проведённый провайдером.
func (s *WebhookService) handleChargeRefunded(ctx context.Context, event *payments.Event) error {
	order, err := s.escrow.ApplyProviderRefund(ctx, event.PaymentReference, event.AmountCents)
	if errors.Is(err, repository.ErrOrderNotFound) {
		s.audit.Event(ctx, "webhook.refund_without_order", map[string]interface{}{
			"event_id":          event.ID,
			"payment_reference": event.PaymentReference,
		})
		metrics.WebhookEvent(string(event.Type), "skipped")
		return nil
	}
	if err != nil {
		metrics.WebhookEvent(string(event.Type), "error")
		return err
	}
	if order.Status == models.OrderStatusRefunded {
		metrics.WebhookEvent(string(event.Type), "applied")
	}
	return nil
}

// parseIntentMetadata извлекает идентификаторы услуги и покупателя из
// метаданных намерения, проставленных при его создании.
func parseIntentMetadata(metadata map[string]string) (listingID, buyerID uuid.UUID, ok bool) {
	listingID, err := uuid.Parse(metadata["listing_id"])
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	buyerID, err = uuid.Parse(metadata["buyer_id"])
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	return listingID, buyerID, true
}
