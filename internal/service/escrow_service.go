package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/gigmarket-backend/internal/metrics"
	"github.com/ignatzorin/gigmarket-backend/internal/models"
	"github.com/ignatzorin/gigmarket-backend/internal/payments"
	"github.com/ignatzorin/gigmarket-backend/internal/repository"
)

var (
	ErrListingUnavailable = errors.New("услуга недоступна для покупки")
	ErrAmountMismatch     = errors.New("сумма платежа не совпадает с ценой услуги")
	ErrIntentMismatch     = errors.New("платёж создан для другой услуги или другого покупателя")
	ErrNotOrderBuyer      = errors.New("операция доступна только покупателю заказа")
)

// OrderStore описывает взаимодействие платёжного контура с хранилищем заказов.
type OrderStore interface {
	CreateWithPurchase(ctx context.Context, order *models.Order, purchase *models.Transaction) error
	Transition(ctx context.Context, orderID uuid.UUID, p repository.TransitionParams) (*models.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByPaymentReference(ctx context.Context, ref string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
}

// ListingStore описывает узкий контракт каталога услуг.
type ListingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
}

// ContractGenerator запускает генерацию договора после фиксации заказа.
// Ошибка генерации не влияет на судьбу заказа, поэтому вызов асинхронный.
type ContractGenerator interface {
	GenerateAsync(order *models.Order)
}

// IntentInfo — результат создания платёжного намерения для клиента.
type IntentInfo struct {
	ClientSecret      string `json:"client_secret"`
	PaymentIntentID   string `json:"payment_intent_id"`
	AmountCents       int64  `json:"amount_cents"`
	PlatformFeeCents  int64  `json:"platform_fee_cents"`
	SellerAmountCents int64  `json:"seller_amount_cents"`
	IsEscrow          bool   `json:"is_escrow"`
}

// EscrowService управляет деньгами заказа: создание намерения, подтверждение
// оплаты, списание удержанных средств продавцу и возвраты.
type EscrowService struct {
	orders          OrderStore
	listings        ListingStore
	provider        payments.Provider
	contracts       ContractGenerator
	events          EventPublisher
	notifier        Notifier
	audit           AuditSink
	feePercent      float64
	currency        string
	providerTimeout time.Duration
}

// NewEscrowService создаёт платёжный сервис. contracts, events и notifier
// могут быть nil — соответствующие побочные эффекты просто не выполняются.
func NewEscrowService(
	orders OrderStore,
	listings ListingStore,
	provider payments.Provider,
	contracts ContractGenerator,
	events EventPublisher,
	notifier Notifier,
	audit AuditSink,
	feePercent float64,
	currency string,
	providerTimeout time.Duration,
) *EscrowService {
	if audit == nil {
		audit = NopAuditSink{}
	}
	return &EscrowService{
		orders:          orders,
		listings:        listings,
		provider:        provider,
		contracts:       contracts,
		events:          events,
		notifier:        notifier,
		audit:           audit,
		feePercent:      feePercent,
		currency:        currency,
		providerTimeout: providerTimeout,
	}
}

// SplitAmount делит сумму на комиссию площадки и долю продавца.
// Инвариант fee + seller == amount выполняется точно: суммы считаются
// в минорных единицах валюты.
func SplitAmount(amountCents int64, feePercent float64) (feeCents, sellerCents int64) {
	feeCents = int64(math.Round(float64(amountCents) * feePercent / 100))
	return feeCents, amountCents - feeCents
}

// CreateIntent создаёт платёжное намерение по услуге. Для услуг совместной
// работы используется ручное списание: средства удерживаются до приёмки.
func (s *EscrowService) CreateIntent(ctx context.Context, listingID, buyerID uuid.UUID, idempotencyKey string) (*IntentInfo, error) {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !listing.IsActive {
		return nil, ErrListingUnavailable
	}
	if listing.SellerID == buyerID {
		return nil, fmt.Errorf("escrow service: нельзя купить собственную услугу")
	}

	feeCents, sellerCents := SplitAmount(listing.PriceCents, s.feePercent)

	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	intent, err := s.provider.CreateIntent(ctx, payments.CreateIntentParams{
		AmountCents:    listing.PriceCents,
		Currency:       listing.Currency,
		ManualCapture:  listing.RequiresEscrow(),
		IdempotencyKey: idempotencyKey,
		Metadata: map[string]string{
			"listing_id": listing.ID.String(),
			"buyer_id":   buyerID.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("escrow service: не удалось создать платёжное намерение: %w", err)
	}

	return &IntentInfo{
		ClientSecret:      intent.ClientSecret,
		PaymentIntentID:   intent.ID,
		AmountCents:       listing.PriceCents,
		PlatformFeeCents:  feeCents,
		SellerAmountCents: sellerCents,
		IsEscrow:          listing.RequiresEscrow(),
	}, nil
}

// ConfirmPayment подтверждает оплату и создаёт заказ. Вызов идемпотентен:
// по одному платежу создаётся ровно один заказ независимо от того, кто
// успел первым — клиентское подтверждение или вебхук провайдера. Второй
// вызов возвращает уже созданный заказ с признаком повтора.
func (s *EscrowService) ConfirmPayment(ctx context.Context, paymentRef string, listingID, buyerID uuid.UUID) (*models.Order, bool, error) {
	if existing, err := s.orders.GetByPaymentReference(ctx, paymentRef); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, repository.ErrOrderNotFound) {
		return nil, false, err
	}

	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, false, err
	}

	providerCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	intent, err := s.provider.GetIntent(providerCtx, paymentRef)
	cancel()
	if err != nil {
		return nil, false, fmt.Errorf("escrow service: не удалось проверить платёж: %w", err)
	}
	if !intent.IsSettled() {
		return nil, false, payments.ErrPaymentNotSettled
	}
	if mismatchKey, expected := intentBindingMismatch(intent.Metadata, listingID, buyerID); mismatchKey != "" {
		// Нарушение инварианта: намерение оплачивало другую услугу или
		// другого покупателя. Режим списания и продавец у чужого намерения
		// свои, создавать по нему заказ нельзя.
		s.audit.Event(ctx, "payment.intent_mismatch", map[string]interface{}{
			"payment_reference": paymentRef,
			"mismatch":          mismatchKey,
			"intent_value":      intent.Metadata[mismatchKey],
			"expected":          expected,
		})
		return nil, false, ErrIntentMismatch
	}
	if intent.AmountCents != listing.PriceCents {
		// Нарушение инварианта: деньги движутся не той суммой, что в карточке.
		s.audit.Event(ctx, "payment.amount_mismatch", map[string]interface{}{
			"payment_reference": paymentRef,
			"intent_amount":     intent.AmountCents,
			"listing_price":     listing.PriceCents,
		})
		return nil, false, ErrAmountMismatch
	}

	feeCents, sellerCents := SplitAmount(listing.PriceCents, s.feePercent)

	order := &models.Order{
		OrderNumber:       newOrderNumber(),
		BuyerID:           buyerID,
		SellerID:          listing.SellerID,
		ListingID:         listing.ID,
		AmountCents:       listing.PriceCents,
		PlatformFeeCents:  feeCents,
		SellerAmountCents: sellerCents,
		Currency:          listing.Currency,
		PaymentReference:  paymentRef,
	}

	if listing.RequiresEscrow() {
		order.Status = models.OrderStatusAwaitingUpload
		order.EscrowStatus = models.EscrowStatusHeld
		deadline := time.Now().AddDate(0, 0, listing.DeliveryDays)
		order.DeliveryDeadline = &deadline
	} else {
		// Мгновенный цифровой товар: оплата уже списана, заказ создаётся
		// сразу завершённым, удержания средств нет.
		order.Status = models.OrderStatusCompleted
		order.EscrowStatus = models.EscrowStatusNone
		now := time.Now()
		order.CompletedAt = &now
	}

	description := fmt.Sprintf("Покупка услуги «%s»", listing.Title)
	purchase := &models.Transaction{
		UserID:      buyerID,
		Type:        models.TransactionTypePurchase,
		AmountCents: listing.PriceCents,
		Currency:    listing.Currency,
		Description: &description,
	}

	if err := s.orders.CreateWithPurchase(ctx, order, purchase); err != nil {
		if errors.Is(err, repository.ErrDuplicatePaymentReference) {
			// Проиграли гонку второму создателю: возвращаем его заказ.
			existing, getErr := s.orders.GetByPaymentReference(ctx, paymentRef)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, true, nil
		}
		return nil, false, err
	}

	metrics.OrderCreated(listing.ListingType)
	s.publishOrderEvent(ctx, "order.created", order)
	s.notifyParties(order, "order.created")

	if listing.RequiresEscrow() && s.contracts != nil {
		s.contracts.GenerateAsync(order)
	}

	return order, false, nil
}

// intentBindingMismatch сверяет метаданные намерения с услугой и покупателем
// подтверждения. Метаданные проставляются при создании намерения; намерение
// без них (создано не нашим бэкендом) проверяется только по сумме.
func intentBindingMismatch(metadata map[string]string, listingID, buyerID uuid.UUID) (key, expected string) {
	if v, ok := metadata["listing_id"]; ok && v != listingID.String() {
		return "listing_id", listingID.String()
	}
	if v, ok := metadata["buyer_id"]; ok && v != buyerID.String() {
		return "buyer_id", buyerID.String()
	}
	return "", ""
}

// ReleaseEscrow списывает удержанные средства и переводит заказ
// в completed. Единственный путь передачи денег продавцу по escrow-заказу.
// Допускается из delivered (приёмка покупателем) и из disputed (решение
// администратора).
func (s *EscrowService) ReleaseEscrow(ctx context.Context, orderID uuid.UUID, actorID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.EscrowStatus != models.EscrowStatusHeld {
		return nil, repository.ErrInvalidEscrowState
	}
	if order.Status != models.OrderStatusDelivered && order.Status != models.OrderStatusDisputed {
		return nil, repository.ErrInvalidEscrowState
	}

	if err := s.captureWithReconcile(ctx, order.PaymentReference, 0); err != nil {
		return nil, err
	}

	held := models.EscrowStatusHeld
	released := models.EscrowStatusReleased
	description := "Выплата продавцу за заказ " + order.OrderNumber
	updated, err := s.orders.Transition(ctx, orderID, repository.TransitionParams{
		Target:              models.OrderStatusCompleted,
		ActorID:             &actorID,
		Note:                "средства выплачены продавцу",
		EscrowStatus:        &released,
		RequireEscrowStatus: &held,
		Ledger: []models.Transaction{{
			UserID:      order.SellerID,
			Type:        models.TransactionTypePayout,
			AmountCents: order.SellerAmountCents,
			Currency:    order.Currency,
			Description: &description,
		}},
	})
	if err != nil {
		return nil, err
	}

	metrics.EscrowReleased()
	s.audit.Event(ctx, "escrow.released", map[string]interface{}{
		"order_id":     orderID,
		"seller_cents": order.SellerAmountCents,
	})
	s.publishOrderEvent(ctx, "escrow.released", updated)
	s.notifyParties(updated, "order.completed")

	return updated, nil
}

// RefundFromDispute выполняет возврат по решению администратора. При
// amountCents = 0 возвращается вся сумма; частичный возврат отдаёт
// покупателю указанную часть, остаток списывается продавцу.
func (s *EscrowService) RefundFromDispute(ctx context.Context, orderID uuid.UUID, amountCents int64, adminID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != models.OrderStatusDisputed || order.EscrowStatus != models.EscrowStatusHeld {
		return nil, repository.ErrInvalidEscrowState
	}
	if amountCents < 0 || amountCents > order.AmountCents {
		return nil, fmt.Errorf("escrow service: некорректная сумма возврата")
	}

	refundCents := amountCents
	if refundCents == 0 {
		refundCents = order.AmountCents
	}

	ledger := make([]models.Transaction, 0, 2)
	refundDescription := "Возврат покупателю по спору, заказ " + order.OrderNumber
	ledger = append(ledger, models.Transaction{
		UserID:      order.BuyerID,
		Type:        models.TransactionTypeRefund,
		AmountCents: refundCents,
		Currency:    order.Currency,
		Description: &refundDescription,
	})

	providerCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	if refundCents == order.AmountCents {
		// Полный возврат: авторизация не списывалась, достаточно отмены.
		if err := s.provider.Cancel(providerCtx, order.PaymentReference); err != nil {
			return nil, err
		}
	} else {
		// Частичный возврат: списываем продавцу остаток, несписанная часть
		// авторизации возвращается покупателю на стороне провайдера.
		capturedCents := order.AmountCents - refundCents
		if _, err := s.provider.Capture(providerCtx, order.PaymentReference, capturedCents); err != nil {
			return nil, err
		}
		_, sellerCents := SplitAmount(capturedCents, s.feePercent)
		payoutDescription := "Частичная выплата продавцу по спору, заказ " + order.OrderNumber
		ledger = append(ledger, models.Transaction{
			UserID:      order.SellerID,
			Type:        models.TransactionTypePayout,
			AmountCents: sellerCents,
			Currency:    order.Currency,
			Description: &payoutDescription,
		})
	}

	held := models.EscrowStatusHeld
	refunded := models.EscrowStatusRefunded
	updated, err := s.orders.Transition(ctx, orderID, repository.TransitionParams{
		Target:              models.OrderStatusRefunded,
		ActorID:             &adminID,
		Note:                "возврат по решению администратора",
		EscrowStatus:        &refunded,
		RequireEscrowStatus: &held,
		Ledger:              ledger,
	})
	if err != nil {
		return nil, err
	}

	metrics.RefundProcessed("dispute")
	s.audit.Event(ctx, "escrow.refunded", map[string]interface{}{
		"order_id":     orderID,
		"refund_cents": refundCents,
		"admin_id":     adminID,
	})
	s.publishOrderEvent(ctx, "order.refunded", updated)
	s.notifyParties(updated, "order.refunded")

	return updated, nil
}

// ApplyProviderRefund отражает возврат, который провёл сам провайдер
// (событие вебхука). Денежных вызовов к провайдеру нет: деньги уже
// вернулись, локальный учёт обязан сойтись с фактом. Повторная доставка
// события — no-op.
func (s *EscrowService) ApplyProviderRefund(ctx context.Context, paymentRef string, amountCents int64) (*models.Order, error) {
	order, err := s.orders.GetByPaymentReference(ctx, paymentRef)
	if err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusRefunded {
		return order, nil
	}

	refundCents := amountCents
	if refundCents <= 0 || refundCents > order.AmountCents {
		refundCents = order.AmountCents
	}

	refunded := models.EscrowStatusRefunded
	description := "Возврат средств провайдером, заказ " + order.OrderNumber
	updated, err := s.orders.Transition(ctx, order.ID, repository.TransitionParams{
		Target:            models.OrderStatusRefunded,
		Note:              "возврат инициирован платёжным провайдером",
		EscrowStatus:      &refunded,
		ViaProviderRefund: true,
		Ledger: []models.Transaction{{
			UserID:      order.BuyerID,
			Type:        models.TransactionTypeRefund,
			AmountCents: refundCents,
			Currency:    order.Currency,
			Description: &description,
		}},
	})
	if err != nil {
		return nil, err
	}

	metrics.RefundProcessed("provider")
	s.audit.Event(ctx, "escrow.provider_refund", map[string]interface{}{
		"order_id":     order.ID,
		"refund_cents": refundCents,
	})
	s.publishOrderEvent(ctx, "order.refunded", updated)
	s.notifyParties(updated, "order.refunded")

	return updated, nil
}

// CancelAfterPaymentFailure отменяет заказ после провала платежа на стороне
// провайдера. Если средства удерживались, удержание считается снятым.
func (s *EscrowService) CancelAfterPaymentFailure(ctx context.Context, paymentRef string) (*models.Order, error) {
	order, err := s.orders.GetByPaymentReference(ctx, paymentRef)
	if err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusCancelled {
		return order, nil
	}

	params := repository.TransitionParams{
		Target: models.OrderStatusCancelled,
		Note:   "платёж отклонён провайдером",
	}
	if order.EscrowStatus == models.EscrowStatusHeld {
		refunded := models.EscrowStatusRefunded
		params.EscrowStatus = &refunded
	}

	updated, err := s.orders.Transition(ctx, order.ID, params)
	if err != nil {
		return nil, err
	}

	metrics.PaymentFailed()
	s.publishOrderEvent(ctx, "order.cancelled", updated)
	s.notifyParties(updated, "order.cancelled")

	return updated, nil
}

// captureWithReconcile списывает удержанные средства с выверкой: ошибка
// списания не означает, что списания не было. Предыдущая попытка могла
// пройти у провайдера и оборваться до записи перехода, повтор тогда падает
// с "already captured", а таймаут мог прервать уже выполненный вызов.
// Перед отказом сверяемся с фактическим состоянием намерения.
func (s *EscrowService) captureWithReconcile(ctx context.Context, paymentRef string, amountCents int64) error {
	captureCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	_, err := s.provider.Capture(captureCtx, paymentRef, amountCents)
	cancel()
	if err == nil {
		return nil
	}

	reconcileCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	intent, getErr := s.provider.GetIntent(reconcileCtx, paymentRef)
	if getErr != nil {
		return fmt.Errorf("escrow service: не удалось списать средства: %w, выверка не удалась: %v", err, getErr)
	}
	if intent.Status == payments.IntentStatusSucceeded {
		// Списание уже прошло, фиксируем переход.
		return nil
	}
	return fmt.Errorf("escrow service: не удалось списать средства: %w", err)
}

// publishOrderEvent отправляет событие жизненного цикла заказа в шину.
func (s *EscrowService) publishOrderEvent(ctx context.Context, routingKey string, order *models.Order) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, routingKey, order); err != nil {
		s.audit.Event(ctx, "events.publish_failed", map[string]interface{}{
			"routing_key": routingKey,
			"order_id":    order.ID,
			"error":       err.Error(),
		})
	}
}

// notifyParties отправляет уведомление обеим сторонам заказа.
func (s *EscrowService) notifyParties(order *models.Order, event string) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyUser(order.BuyerID, event, order)
	s.notifier.NotifyUser(order.SellerID, event, order)
}

// newOrderNumber формирует внешний номер заказа.
func newOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("GM-%s-%s", time.Now().Format("20060102"), suffix)
}
