package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/gigmarket-backend/internal/payments"
	"github.com/ignatzorin/gigmarket-backend/internal/service"
)

type WebhookHandler struct {
	webhooks *service.WebhookService
	log      *logrus.Logger
}

func NewWebhookHandler(webhooks *service.WebhookService, log *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, log: log}
}

// HandleStripe POST /webhooks/stripe
// Тело читается сырыми байтами до любого разбора: подпись провайдера
// считается от исходного payload. Событие с валидной подписью всегда
// подтверждается статусом 200, даже если обработка не удалась — факт
// провала фиксируется в логе, а не в ответе провайдеру.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "не удалось прочитать тело запроса"})
		return
	}

	err = h.webhooks.HandleEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrBadSignature) {
			h.log.WithError(err).Warn("webhook: событие с невалидной подписью отклонено")
			c.JSON(http.StatusBadRequest, gin.H{"error": "подпись невалидна"})
			return
		}
		h.log.WithError(err).Error("webhook: событие принято, но не обработано")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
