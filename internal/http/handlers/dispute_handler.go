package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/gigmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/gigmarket-backend/internal/service"
)

type DisputeHandler struct {
	disputes *service.DisputeService
}

func NewDisputeHandler(disputes *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{disputes: disputes}
}

// CreateDispute POST /disputes
func (h *DisputeHandler) CreateDispute(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		OrderID     string  `json:"order_id" binding:"required,uuid"`
		Reason      string  `json:"reason" binding:"required,min=3,max=200"`
		Description *string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	orderID, err := parseUUID(req.OrderID)
	if err != nil {
		common.RespondBadRequest(c, "неверный order_id")
		return
	}

	dispute, err := h.disputes.CreateDispute(c.Request.Context(), orderID, userID, req.Reason, req.Description)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, dispute)
}

// GetDispute GET /disputes/:id
func (h *DisputeHandler) GetDispute(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.disputes.GetDispute(c.Request.Context(), disputeID, userID, common.IsAdmin(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}

// ListDisputes GET /disputes
func (h *DisputeHandler) ListDisputes(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	limit, offset := common.GetPagination(c)

	disputes, err := h.disputes.ListUserDisputes(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": disputes})
}

// ListActive GET /admin/disputes
// Очередь активных споров для администратора.
func (h *DisputeHandler) ListActive(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	disputes, err := h.disputes.ListActiveDisputes(c.Request.Context(), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": disputes})
}

// TakeUnderReview POST /admin/disputes/:id/review
func (h *DisputeHandler) TakeUnderReview(c *gin.Context) {
	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.disputes.TakeUnderReview(c.Request.Context(), disputeID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}

// Resolve POST /admin/disputes/:id/resolve
// Решение по спору движет деньги ровно один раз: повторный запрос
// получает конфликт.
func (h *DisputeHandler) Resolve(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Resolution  string `json:"resolution" binding:"required"`
		RefundCents int64  `json:"refund_cents"`
		AdminNotes  string `json:"admin_notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, order, err := h.disputes.ResolveDispute(c.Request.Context(), disputeID, req.Resolution, req.RefundCents, adminID, req.AdminNotes)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": dispute, "order": order})
}
