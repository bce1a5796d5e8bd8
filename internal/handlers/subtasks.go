package handlers

import (
	"net/http"

	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type SubTaskHandler struct {
	subTaskService services.SubTaskService
}

func NewSubTaskHandler(subTaskService services.SubTaskService) *SubTaskHandler {
	return &SubTaskHandler{subTaskService: subTaskService}
}

func (h *SubTaskHandler) GetSubTask(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	subTask, err := h.subTaskService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, subTask)
}

func (h *SubTaskHandler) UpdateSubTask(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input services.UpdateSubTaskInput
	if !bindJSON(c, &input) {
		return
	}

	subTask, err := h.subTaskService.Update(c.Request.Context(), actor, id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, subTask)
}

func (h *SubTaskHandler) DeleteSubTask(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.subTaskService.Delete(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SubTaskHandler) AssignSubTask(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assigneeRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, err := req.id()
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.subTaskService.Assign(c.Request.Context(), actor, id, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SubTaskHandler) UnassignSubTask(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	if err := h.subTaskService.Unassign(c.Request.Context(), actor, id, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SubTaskHandler) ListAssignees(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	users, err := h.subTaskService.Assignees(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}
