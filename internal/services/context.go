package services

import (
	"context"

	"taskify/backend/internal/models"

	"github.com/gofrs/uuid"
)

// Identity is the resolved caller of a request.
type Identity struct {
	UserID uuid.UUID
	Role   models.Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

// RequestInfo describes where a request came from, for the audit log.
type RequestInfo struct {
	IPAddress string
	UserAgent string
	RequestID string
}

type requestInfoKey struct{}

func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func requestInfoFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}
