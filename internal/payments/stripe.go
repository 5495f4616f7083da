package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

// StripeProvider — реализация платёжного провайдера поверх Stripe API.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider создаёт клиента Stripe с заданными ключами.
func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{api: api, webhookSecret: webhookSecret}
}

// CreateIntent создаёт платёжное намерение. Для escrow-платежей включается
// ручное списание: деньги авторизуются, но остаются удержанными до Capture.
func (p *StripeProvider) CreateIntent(ctx context.Context, in CreateIntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.AmountCents),
		Currency: stripe.String(in.Currency),
	}
	params.Context = ctx
	if in.ManualCapture {
		params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: не удалось создать платёжное намерение: %w", err)
	}
	return normalizeIntent(pi), nil
}

// GetIntent возвращает намерение по идентификатору.
func (p *StripeProvider) GetIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Get(id, params)
	if err != nil {
		if isStripeNotFound(err) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("stripe: не удалось получить платёжное намерение: %w", err)
	}
	return normalizeIntent(pi), nil
}

// Capture списывает удержанные средства полностью или частично.
func (p *StripeProvider) Capture(ctx context.Context, id string, amountCents int64) (*Intent, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if amountCents > 0 {
		params.AmountToCapture = stripe.Int64(amountCents)
	}

	pi, err := p.api.PaymentIntents.Capture(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: не удалось списать удержанные средства: %w", err)
	}
	return normalizeIntent(pi), nil
}

// Refund возвращает средства по платежу.
func (p *StripeProvider) Refund(ctx context.Context, intentID string, amountCents int64) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.Context = ctx
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}

	if _, err := p.api.Refunds.New(params); err != nil {
		return fmt.Errorf("stripe: не удалось выполнить возврат: %w", err)
	}
	return nil
}

// Cancel отменяет намерение: для ручного списания это снимает удержание
// и возвращает авторизованные средства покупателю.
func (p *StripeProvider) Cancel(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := p.api.PaymentIntents.Cancel(intentID, params); err != nil {
		return fmt.Errorf("stripe: не удалось отменить платёжное намерение: %w", err)
	}
	return nil
}

// VerifyWebhook проверяет подпись события по сырому телу запроса и
// нормализует его. Подпись считается только от исходных байт: событие,
// пересобранное из разобранного JSON, проверку не пройдёт.
func (p *StripeProvider) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	switch string(event.Type) {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("stripe: не удалось разобрать payment_intent из события: %w", err)
		}
		evType := EventPaymentSucceeded
		if string(event.Type) == "payment_intent.payment_failed" {
			evType = EventPaymentFailed
		}
		return &Event{
			ID:               event.ID,
			Type:             evType,
			PaymentReference: pi.ID,
			AmountCents:      pi.Amount,
			Metadata:         pi.Metadata,
		}, nil
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("stripe: не удалось разобрать charge из события: %w", err)
		}
		ev := &Event{
			ID:          event.ID,
			Type:        EventChargeRefunded,
			AmountCents: ch.AmountRefunded,
			Metadata:    ch.Metadata,
		}
		if ch.PaymentIntent != nil {
			ev.PaymentReference = ch.PaymentIntent.ID
		}
		return ev, nil
	default:
		return &Event{ID: event.ID, Type: EventIgnored}, nil
	}
}

// normalizeIntent переводит объект Stripe в провайдеро-независимый вид.
func normalizeIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		Metadata:     pi.Metadata,
	}
}

// isStripeNotFound распознаёт ответ Stripe "ресурс не найден".
func isStripeNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == 404 || stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}
