package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/gigmarket-backend/internal/models"
	"github.com/ignatzorin/gigmarket-backend/internal/payments"
	"github.com/ignatzorin/gigmarket-backend/internal/repository"
	"github.com/ignatzorin/gigmarket-backend/internal/service"
)

// ErrorHandler обрабатывает ошибки централизованно: известные ошибки
// домена переводятся в статус и сообщение, всё остальное маскируется
// как внутренняя ошибка.
func ErrorHandler(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		log.WithFields(logrus.Fields{
			"error":  err.Error(),
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).Error("ошибка обработки запроса")

		status, message := mapError(err)
		c.JSON(status, gin.H{"error": message})
	}
}

// mapError переводит доменную ошибку в HTTP статус и сообщение клиенту.
func mapError(err error) (int, string) {
	var illegal *models.IllegalTransitionError
	if errors.As(err, &illegal) {
		return http.StatusConflict, illegal.Error()
	}

	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return http.StatusNotFound, "заказ не найден"
	case errors.Is(err, repository.ErrListingNotFound):
		return http.StatusNotFound, "услуга не найдена"
	case errors.Is(err, repository.ErrDisputeNotFound):
		return http.StatusNotFound, "спор не найден"
	case errors.Is(err, repository.ErrContractNotFound):
		return http.StatusNotFound, "договор не найден"
	case errors.Is(err, payments.ErrIntentNotFound):
		return http.StatusNotFound, "платёж не найден"

	case errors.Is(err, repository.ErrDuplicatePaymentReference):
		return http.StatusConflict, "заказ по этому платежу уже создан"
	case errors.Is(err, repository.ErrInvalidEscrowState):
		return http.StatusConflict, "недопустимое состояние удержанных средств"
	case errors.Is(err, repository.ErrDisputeAlreadyOpen):
		return http.StatusConflict, "по заказу уже открыт спор"
	case errors.Is(err, repository.ErrDisputeAlreadyResolved):
		return http.StatusConflict, "спор уже решён"
	case errors.Is(err, repository.ErrContractImmutable):
		return http.StatusConflict, "подписанный договор нельзя изменить"
	case errors.Is(err, service.ErrOrderDisputed):
		return http.StatusConflict, err.Error()

	case errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, service.ErrNotOrderBuyer),
		errors.Is(err, service.ErrNotOrderSeller):
		return http.StatusForbidden, err.Error()

	case errors.Is(err, service.ErrListingUnavailable),
		errors.Is(err, service.ErrAmountMismatch),
		errors.Is(err, service.ErrIntentMismatch),
		errors.Is(err, service.ErrNoFiles),
		errors.Is(err, service.ErrDisputeNotAllowed),
		errors.Is(err, service.ErrInvalidResolution),
		errors.Is(err, service.ErrRefundAmountNeeded):
		return http.StatusBadRequest, err.Error()

	case errors.Is(err, payments.ErrPaymentNotSettled):
		return http.StatusPaymentRequired, "платёж не завершён"
	case errors.Is(err, payments.ErrBadSignature):
		return http.StatusBadRequest, "подпись вебхука невалидна"
	}

	return http.StatusInternalServerError, "внутренняя ошибка сервера"
}
