package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v81"
)

const testWebhookSecret = "whsec_test_secret"

// signPayload строит заголовок Stripe-Signature так же, как его строит
// провайдер: HMAC-SHA256 от "<timestamp>.<payload>".
func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

// eventJSON оборачивает тип и data.object в конверт события с версией API,
// которую ожидает SDK.
func eventJSON(id, eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"api_version": %q,
		"type": %q,
		"data": {"object": %s}
	}`, id, stripe.APIVersion, eventType, object))
}

func TestStripeProvider_VerifyWebhook_PaymentSucceeded(t *testing.T) {
	p := NewStripeProvider("sk_test_123", testWebhookSecret)

	payload := eventJSON("evt_1", "payment_intent.succeeded", `{
		"id": "pi_123",
		"amount": 20000,
		"metadata": {"listing_id": "l1", "buyer_id": "b1"}
	}`)

	event, err := p.VerifyWebhook(payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, EventPaymentSucceeded, event.Type)
	assert.Equal(t, "pi_123", event.PaymentReference)
	assert.Equal(t, int64(20000), event.AmountCents)
	assert.Equal(t, "l1", event.Metadata["listing_id"])
}

func TestStripeProvider_VerifyWebhook_ChargeRefunded(t *testing.T) {
	p := NewStripeProvider("sk_test_123", testWebhookSecret)

	payload := eventJSON("evt_2", "charge.refunded", `{
		"id": "ch_1",
		"amount_refunded": 5000,
		"payment_intent": {"id": "pi_123"}
	}`)

	event, err := p.VerifyWebhook(payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, EventChargeRefunded, event.Type)
	assert.Equal(t, "pi_123", event.PaymentReference)
	assert.Equal(t, int64(5000), event.AmountCents)
}

func TestStripeProvider_VerifyWebhook_BadSignature(t *testing.T) {
	p := NewStripeProvider("sk_test_123", testWebhookSecret)

	payload := eventJSON("evt_3", "payment_intent.succeeded", `{"id": "pi_3"}`)

	_, err := p.VerifyWebhook(payload, signPayload(payload, "whsec_wrong", time.Now()))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestStripeProvider_VerifyWebhook_TamperedPayload(t *testing.T) {
	p := NewStripeProvider("sk_test_123", testWebhookSecret)

	payload := eventJSON("evt_4", "payment_intent.succeeded", `{"id": "pi_4", "amount": 100}`)
	signature := signPayload(payload, testWebhookSecret, time.Now())

	// Подпись считается от исходных байт: изменённое тело её не проходит.
	tampered := eventJSON("evt_4", "payment_intent.succeeded", `{"id": "pi_4", "amount": 999}`)
	_, err := p.VerifyWebhook(tampered, signature)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestStripeProvider_VerifyWebhook_UnknownEventIgnored(t *testing.T) {
	p := NewStripeProvider("sk_test_123", testWebhookSecret)

	payload := eventJSON("evt_5", "customer.created", `{}`)

	event, err := p.VerifyWebhook(payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, EventIgnored, event.Type)
}

func TestIntent_IsSettled(t *testing.T) {
	assert.True(t, (&Intent{Status: IntentStatusSucceeded}).IsSettled())
	assert.True(t, (&Intent{Status: IntentStatusRequiresCapture}).IsSettled())
	assert.False(t, (&Intent{Status: "requires_payment_method"}).IsSettled())
	assert.False(t, (&Intent{Status: IntentStatusCanceled}).IsSettled())
}
