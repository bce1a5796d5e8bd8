package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"taskify/backend/internal/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

// RequestID reuses an incoming X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.Must(uuid.NewV4()).String()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// RequestLogger writes one structured line per request.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(requestIDKey),
		}
		if identity, ok := IdentityFrom(c); ok {
			attrs = append(attrs, "user_id", identity.UserID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.ErrorContext(c.Request.Context(), "request", attrs...)
		case status >= http.StatusBadRequest:
			logger.WarnContext(c.Request.Context(), "request", attrs...)
		default:
			logger.InfoContext(c.Request.Context(), "request", attrs...)
		}
	}
}

// RecoveryWithLog turns a panic into a 500 and logs the stack.
func RecoveryWithLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(c.Request.Context(), "panic recovered",
					"panic", fmt.Sprint(r),
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				AbortWithError(c, apperrors.Internal(fmt.Errorf("panic: %v", r)).WithMessage("internal server error"))
			}
		}()
		c.Next()
	}
}

// TransferDeadline replaces the server-wide read and write deadlines with
// one of d for routes that stream file bodies. A non-positive d clears them.
func TransferDeadline(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var deadline time.Time
		if d > 0 {
			deadline = time.Now().Add(d)
		}
		rc := http.NewResponseController(c.Writer)
		if err := rc.SetReadDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			slog.WarnContext(c.Request.Context(), "transfer read deadline not applied", "error", err)
		}
		if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			slog.WarnContext(c.Request.Context(), "transfer write deadline not applied", "error", err)
		}
		c.Next()
	}
}
