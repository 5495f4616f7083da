package payments

import (
	"context"
	"errors"
)

var (
	ErrIntentNotFound    = errors.New("payment intent not found")
	ErrBadSignature      = errors.New("webhook signature verification failed")
	ErrPaymentNotSettled = errors.New("payment is not settled")
)

// Статусы платёжного намерения в нормализованном виде.
const (
	IntentStatusSucceeded       = "succeeded"
	IntentStatusRequiresCapture = "requires_capture"
	IntentStatusCanceled        = "canceled"
)

// Intent — платёжное намерение провайдера в нормализованном виде.
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	AmountCents  int64             `json:"amount_cents"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// IsSettled сообщает, что деньги списаны либо авторизованы и удерживаются.
func (i *Intent) IsSettled() bool {
	return i.Status == IntentStatusSucceeded || i.Status == IntentStatusRequiresCapture
}

// CreateIntentParams — параметры создания намерения.
type CreateIntentParams struct {
	AmountCents int64
	Currency    string
	// ManualCapture включает ручное списание: средства авторизуются,
	// но не списываются до явного Capture. Используется для escrow.
	ManualCapture  bool
	IdempotencyKey string
	Metadata       map[string]string
}

// Типы событий вебхука в нормализованном виде.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment.succeeded"
	EventPaymentFailed    EventType = "payment.failed"
	EventChargeRefunded   EventType = "charge.refunded"
	// EventIgnored — событие валидно подписано, но для обработки не интересно.
	EventIgnored EventType = "ignored"
)

// Event — событие провайдера после проверки подписи.
type Event struct {
	ID               string
	Type             EventType
	PaymentReference string
	// AmountCents для возврата содержит возвращённую сумму.
	AmountCents int64
	Metadata    map[string]string
}

// Provider — контракт интеграции с платёжным провайдером. Реализация
// обязана проверять подпись вебхука по сырому, неразобранному телу запроса.
type Provider interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	// Capture списывает удержанные средства. amountCents = 0 означает всю
	// авторизованную сумму; меньшее значение списывает часть, остаток
	// возвращается покупателю провайдером.
	Capture(ctx context.Context, id string, amountCents int64) (*Intent, error)
	// Refund возвращает списанные средства. amountCents = 0 означает
	// полный возврат. Для ещё не списанной авторизации используется Cancel.
	Refund(ctx context.Context, intentID string, amountCents int64) error
	// Cancel отменяет намерение и снимает удержание средств.
	Cancel(ctx context.Context, intentID string) error
	VerifyWebhook(payload []byte, signature string) (*Event, error)
}
