package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/gigmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/gigmarket-backend/internal/service"
)

type ContractHandler struct {
	contracts *service.ContractService
	orders    *service.OrderService
}

func NewContractHandler(contracts *service.ContractService, orders *service.OrderService) *ContractHandler {
	return &ContractHandler{contracts: contracts, orders: orders}
}

// GetContract GET /orders/:id/contract
func (h *ContractHandler) GetContract(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID, userID, common.IsAdmin(c))
	if err != nil {
		c.Error(err)
		return
	}

	contract, err := h.contracts.GetContract(c.Request.Context(), order, userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// GetDocument GET /orders/:id/contract/document
func (h *ContractHandler) GetDocument(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID, userID, common.IsAdmin(c))
	if err != nil {
		c.Error(err)
		return
	}

	contract, err := h.contracts.GetContract(c.Request.Context(), order, userID)
	if err != nil {
		c.Error(err)
		return
	}

	document, err := h.contracts.ReadDocument(c.Request.Context(), contract)
	if err != nil {
		c.Error(err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", document)
}

// Agree POST /orders/:id/contract/agree
func (h *ContractHandler) Agree(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID, userID, false)
	if err != nil {
		c.Error(err)
		return
	}

	contract, err := h.contracts.Agree(c.Request.Context(), order, userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, contract)
}
