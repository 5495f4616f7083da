package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/gigmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/gigmarket-backend/internal/service"
)

type PaymentHandler struct {
	escrow *service.EscrowService
	orders *service.OrderService
}

func NewPaymentHandler(escrow *service.EscrowService, orders *service.OrderService) *PaymentHandler {
	return &PaymentHandler{escrow: escrow, orders: orders}
}

// CreateIntent POST /payments/create-intent
// Создаёт платёжное намерение по услуге. Повторный запрос с тем же
// Idempotency-Key не создаёт второго намерения у провайдера.
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		ListingID string `json:"listing_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		common.RespondBadRequest(c, "неверный listing_id")
		return
	}

	intent, err := h.escrow.CreateIntent(c.Request.Context(), listingID, userID, c.GetHeader("Idempotency-Key"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, intent)
}

// ConfirmPayment POST /payments/confirm
// Клиентское подтверждение оплаты: создаёт заказ по оплаченному намерению.
// Вызов идемпотентен, вебхук провайдера может успеть первым.
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		PaymentIntentID string `json:"payment_intent_id" binding:"required"`
		ListingID       string `json:"listing_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		common.RespondBadRequest(c, "неверный listing_id")
		return
	}

	order, replayed, err := h.escrow.ConfirmPayment(c.Request.Context(), req.PaymentIntentID, listingID, userID)
	if err != nil {
		c.Error(err)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"order": order, "is_idempotent_response": replayed})
}

// ReleaseEscrow POST /payments/release-escrow
// Выплата удержанных средств продавцу по запросу покупателя или
// администратора.
func (h *PaymentHandler) ReleaseEscrow(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		OrderID string `json:"order_id" binding:"required,uuid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		common.RespondBadRequest(c, "неверный order_id")
		return
	}

	order, err := h.orders.ReleaseEscrow(c.Request.Context(), orderID, userID, common.IsAdmin(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}
