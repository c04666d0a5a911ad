package http

import (
	"log/slog"
	"net/http"

	"bindery-orders/internal/apperror"

	"github.com/gin-gonic/gin"
)

// statusFor maps a typed failure to its HTTP status. Anything untyped is a 500.
func statusFor(e *apperror.Error) int {
	switch e.Kind {
	case apperror.KindValidation, apperror.KindInvariant:
		return http.StatusBadRequest
	case apperror.KindAuthorization:
		return http.StatusForbidden
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindGateway:
		switch {
		case e.Is(apperror.ErrGatewayCancelFailed):
			return http.StatusInternalServerError
		case e.Retryable:
			return http.StatusBadGateway
		default:
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	e, ok := apperror.As(err)
	if !ok {
		slog.ErrorContext(c.Request.Context(), "unhandled error", "path", c.FullPath(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	status := statusFor(e)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "code", e.Code, "err", err)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: e.Message, Code: e.Code, Retryable: e.Retryable})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: "BAD_REQUEST"})
}
