package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/potter-repository/framework/core"
)

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details []ValidationError `json:"details,omitempty"`
}

// StatusFromError сопоставляет код ошибки фреймворка HTTP статусу
func StatusFromError(err error) int {
	switch core.CodeOf(err) {
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithError завершает запрос ответом с ошибкой.
// Детали внутренних ошибок клиенту не отдаются.
func AbortWithError(c *gin.Context, err error) {
	status := StatusFromError(err)
	code := core.CodeOf(err)
	if code == "" {
		code = "INTERNAL_ERROR"
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: message})
}

// AbortWithBadRequest завершает запрос ошибкой разбора запроса
func AbortWithBadRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: core.ErrValidation, Message: err.Error()})
}
