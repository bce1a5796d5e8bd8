package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"taskify/backend/internal/apperrors"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the JSON envelope of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindInvalidInput:
		return http.StatusBadRequest
	case apperrors.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithError writes err in the error envelope and stops the chain.
// Internal and storage errors are logged and their cause is not exposed.
func AbortWithError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal(err)
	}

	status := StatusFor(appErr.Kind)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"code", appErr.Code,
			"error", err,
		)
	}
	_ = c.Error(err)

	c.AbortWithStatusJSON(status, ErrorBody{Error: ErrorDetail{Code: appErr.Code, Message: appErr.Message}})
}
