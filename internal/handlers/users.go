package handlers

import (
	"net/http"
	"strconv"

	"taskify/backend/internal/repositories"
	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func (h *UserHandler) GetUserProfile(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	user, err := h.userService.Me(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) GetMyProjects(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	projects, err := h.userService.Projects(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *UserHandler) GetMyTasks(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	tasks, err := h.userService.Tasks(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *UserHandler) GetMySubTasks(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	subTasks, err := h.userService.SubTasks(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, subTasks)
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	users, err := h.userService.List(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.userService.Delete(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAuditLogs returns recent authorization decisions, optionally filtered
// by user_id and decision.
func (h *UserHandler) ListAuditLogs(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	logs, err := h.userService.AuditLogs(c.Request.Context(), actor, repositories.AuditFilter{
		UserID:   userID,
		Decision: c.Query("decision"),
		Limit:    limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
