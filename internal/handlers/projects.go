package handlers

import (
	"net/http"

	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type ProjectHandler struct {
	projectService services.ProjectService
	taskService    services.TaskService
}

func NewProjectHandler(projectService services.ProjectService, taskService services.TaskService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService, taskService: taskService}
}

type addMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role"`
}

func (h *ProjectHandler) CreateProject(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	var input services.CreateProjectInput
	if !bindJSON(c, &input) {
		return
	}

	project, err := h.projectService.Create(c.Request.Context(), actor, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (h *ProjectHandler) ListProjects(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)

	projects, total, err := h.projectService.List(c.Request.Context(), actor, services.ProjectListOptions{
		Mine:            c.Query("mine") == "true",
		IncludeArchived: c.Query("archived") == "true",
		Page:            page,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: projects, Total: total, Page: page.Number, PageSize: page.Size})
}

func (h *ProjectHandler) GetProject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	project, err := h.projectService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input services.UpdateProjectInput
	if !bindJSON(c, &input) {
		return
	}

	project, err := h.projectService.Update(c.Request.Context(), actor, id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.projectService.Delete(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProjectHandler) ToggleArchive(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	project, err := h.projectService.ToggleArchive(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *ProjectHandler) AddMember(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req addMemberRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, err := assigneeRequest{UserID: req.UserID}.id()
	if err != nil {
		respondError(c, err)
		return
	}

	membership, err := h.projectService.AddMember(c.Request.Context(), actor, id, userID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, membership)
}

func (h *ProjectHandler) RemoveMember(c *gin.Context) {
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
	if err := h.projectService.RemoveMember(c.Request.Context(), actor, id, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProjectHandler) ListMembers(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	members, err := h.projectService.Members(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

func (h *ProjectHandler) ListProjectTasks(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	page := pageFromQuery(c)

	tasks, total, err := h.taskService.List(c.Request.Context(), services.TaskListOptions{
		ProjectID: &id,
		Status:    c.Query("status"),
		Priority:  c.Query("priority"),
		Page:      page,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: tasks, Total: total, Page: page.Number, PageSize: page.Size})
}
