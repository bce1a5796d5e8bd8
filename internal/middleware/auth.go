package middleware

import (
	"context"
	"strings"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/models"
	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	identityKey  = "identity"
	requestIDKey = "request_id"
)

// IdentityResolver turns a bearer token into the caller's identity.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, bearer string) (services.Identity, error)
}

// Authenticate requires a valid bearer token and stores the caller's
// identity on the context. Request metadata for the audit log rides along on
// the request context.
func Authenticate(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			AbortWithError(c, apperrors.ErrUnauthenticated.WithMessage("Authorization header is required"))
			return
		}

		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(tokenStr) == "" {
			AbortWithError(c, apperrors.ErrUnauthenticated.WithMessage("Authorization header must use Bearer token"))
			return
		}

		identity, err := resolver.ResolveIdentity(c.Request.Context(), strings.TrimSpace(tokenStr))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Set("user_id", identity.UserID)
		c.Set("user_role", identity.Role)

		c.Request = c.Request.WithContext(services.WithRequestInfo(c.Request.Context(), services.RequestInfo{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
			RequestID: c.GetString(requestIDKey),
		}))

		c.Next()
	}
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c *gin.Context) (services.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return services.Identity{}, false
	}
	identity, ok := v.(services.Identity)
	return identity, ok
}

// RequireRole lets through callers holding one of roles. It must run after
// Authenticate.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			AbortWithError(c, apperrors.ErrUnauthenticated)
			return
		}

		for _, role := range roles {
			if identity.Role == role {
				c.Next()
				return
			}
		}
		AbortWithError(c, apperrors.ErrForbidden.WithMessage("insufficient role"))
	}
}

func RequireAdmin() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin)
}
