package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigmarket_orders_created_total",
		Help: "Количество созданных заказов по типу услуги.",
	}, []string{"listing_type"})

	escrowReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gigmarket_escrow_released_total",
		Help: "Количество выплат продавцам из удержанных средств.",
	})

	refundsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigmarket_refunds_total",
		Help: "Количество возвратов по источнику (dispute, provider).",
	}, []string{"source"})

	paymentsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gigmarket_payments_failed_total",
		Help: "Количество платежей, отклонённых провайдером.",
	})

	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigmarket_webhook_events_total",
		Help: "Количество обработанных событий вебхука по типу и результату.",
	}, []string{"type", "result"})

	disputesOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gigmarket_disputes_opened_total",
		Help: "Количество открытых споров.",
	})

	disputesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigmarket_disputes_resolved_total",
		Help: "Количество решённых споров по исходу.",
	}, []string{"resolution"})
)

func OrderCreated(listingType string) { ordersCreated.WithLabelValues(listingType).Inc() }

func EscrowReleased() { escrowReleased.Inc() }

func RefundProcessed(source string) { refundsProcessed.WithLabelValues(source).Inc() }

func PaymentFailed() { paymentsFailed.Inc() }

func WebhookEvent(eventType, result string) { webhookEvents.WithLabelValues(eventType, result).Inc() }

func DisputeOpened() { disputesOpened.Inc() }

func DisputeResolved(resolution string) { disputesResolved.WithLabelValues(resolution).Inc() }
