package handlers

import (
	"net/http"

	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	taskService    services.TaskService
	subTaskService services.SubTaskService
	commentService services.CommentService
}

func NewTaskHandler(taskService services.TaskService, subTaskService services.SubTaskService, commentService services.CommentService) *TaskHandler {
	return &TaskHandler{taskService: taskService, subTaskService: subTaskService, commentService: commentService}
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input services.CreateTaskInput
	if !bindJSON(c, &input) {
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), actor, projectID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// GetTasks lists tasks filtered by project_id, assignee_id, status and
// priority, paginated with sortBy, order, page and pageSize.
func (h *TaskHandler) GetTasks(c *gin.Context) {
	opts := services.TaskListOptions{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Page:     pageFromQuery(c),
	}
	var ok bool
	if opts.ProjectID, ok = queryID(c, "project_id"); !ok {
		return
	}
	if c.Query("assignee_id") == "me" {
		actor, ok := currentIdentity(c)
		if !ok {
			return
		}
		opts.AssigneeID = &actor.UserID
	} else if opts.AssigneeID, ok = queryID(c, "assignee_id"); !ok {
		return
	}

	tasks, total, err := h.taskService.List(c.Request.Context(), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: tasks, Total: total, Page: opts.Page.Number, PageSize: opts.Page.Size})
}

func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	task, err := h.taskService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input services.UpdateTaskInput
	if !bindJSON(c, &input) {
		return
	}

	task, err := h.taskService.Update(c.Request.Context(), actor, id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.taskService.Delete(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) AssignTask(c *gin.Context) {
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

	if err := h.taskService.Assign(c.Request.Context(), actor, id, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) UnassignTask(c *gin.Context) {
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
	if err := h.taskService.Unassign(c.Request.Context(), actor, id, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) ListAssignees(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	users, err := h.taskService.Assignees(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *TaskHandler) CreateSubTask(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input services.CreateSubTaskInput
	if !bindJSON(c, &input) {
		return
	}

	subTask, err := h.subTaskService.Create(c.Request.Context(), actor, id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, subTask)
}

func (h *TaskHandler) ListSubTasks(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	subTasks, err := h.subTaskService.List(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, subTasks)
}

func (h *TaskHandler) CreateComment(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input services.CommentInput
	if !bindJSON(c, &input) {
		return
	}

	comment, err := h.commentService.Create(c.Request.Context(), actor, id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *TaskHandler) ListComments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	comments, err := h.commentService.List(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}
