// Package handlers is the gin boundary: it binds requests, resolves the
// caller and maps service errors to HTTP responses.
package handlers

import (
	"strconv"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/middleware"
	"taskify/backend/internal/repositories"
	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

const maxPageSize = 100

func respondError(c *gin.Context, err error) {
	middleware.AbortWithError(c, err)
}

func currentIdentity(c *gin.Context) (services.Identity, bool) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		respondError(c, apperrors.ErrUnauthenticated)
	}
	return identity, ok
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param(name))
	if err != nil || id.IsNil() {
		respondError(c, apperrors.InvalidInput("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// queryID parses an optional uuid query parameter.
func queryID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		respondError(c, apperrors.InvalidInput("invalid "+name))
		return nil, false
	}
	return &id, true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperrors.InvalidInput("invalid request body").Wrap(err))
		return false
	}
	return true
}

// pageFromQuery reads sortBy, order, page and pageSize.
func pageFromQuery(c *gin.Context) repositories.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	if size <= 0 {
		size = 20
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return repositories.Page{
		Number: page,
		Size:   size,
		SortBy: c.DefaultQuery("sortBy", "created_at"),
		Order:  c.DefaultQuery("order", "desc"),
	}
}

type listResponse struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

type assigneeRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (r assigneeRequest) id() (uuid.UUID, error) {
	id, err := uuid.FromString(r.UserID)
	if err != nil || id.IsNil() {
		return uuid.Nil, apperrors.InvalidInput("invalid user_id")
	}
	return id, nil
}
