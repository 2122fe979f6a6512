package rest

import (
	"net/http"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindInvalidState, model.KindValidation:
		return http.StatusBadRequest
	case model.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, RequestID: GetRequestID(c)})
}

// respondError переводит доменную ошибку в HTTP ответ.
// Текст инфраструктурных ошибок клиенту не отдаётся.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := model.KindOf(err)
	status := statusForKind(kind)
	if model.IsRetryable(err) {
		c.Set(retryableKey, true)
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		abortWithError(c, status, "internal server error")
		return
	}

	abortWithError(c, status, model.MessageOf(err))
}
