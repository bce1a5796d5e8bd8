package handlers

import (
	"taskify/backend/internal/middleware"
	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
)

// Services is everything the HTTP layer calls into.
type Services struct {
	Auth        services.AuthService
	Register    services.RegisterService
	Projects    services.ProjectService
	Tasks       services.TaskService
	SubTasks    services.SubTaskService
	Comments    services.CommentService
	Attachments services.AttachmentService
	Users       services.UserService
}

type Handlers struct {
	Auth        *AuthHandler
	Projects    *ProjectHandler
	Tasks       *TaskHandler
	SubTasks    *SubTaskHandler
	Comments    *CommentHandler
	Attachments *AttachmentHandler
	Users       *UserHandler

	// Transfer, when set, runs before the upload and download handlers.
	Transfer gin.HandlerFunc
}

func New(s Services) Handlers {
	return Handlers{
		Auth:        NewAuthHandler(s.Auth, s.Register),
		Projects:    NewProjectHandler(s.Projects, s.Tasks),
		Tasks:       NewTaskHandler(s.Tasks, s.SubTasks, s.Comments),
		SubTasks:    NewSubTaskHandler(s.SubTasks),
		Comments:    NewCommentHandler(s.Comments),
		Attachments: NewAttachmentHandler(s.Attachments),
		Users:       NewUserHandler(s.Users),
	}
}

// RegisterRoutes mounts the API under /api/v1. authLimit, when non-nil,
// guards the unauthenticated auth endpoints.
func RegisterRoutes(r gin.IRouter, h Handlers, resolver middleware.IdentityResolver, authLimit gin.HandlerFunc) {
	api := r.Group("/api/v1")

	auth := api.Group("/auth")
	if authLimit != nil {
		auth.Use(authLimit)
	}
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/logout", h.Auth.Logout)

	protected := api.Group("")
	protected.Use(middleware.Authenticate(resolver))

	projects := protected.Group("/projects")
	projects.POST("", h.Projects.CreateProject)
	projects.GET("", h.Projects.ListProjects)
	projects.GET("/:id", h.Projects.GetProject)
	projects.PUT("/:id", h.Projects.UpdateProject)
	projects.DELETE("/:id", h.Projects.DeleteProject)
	projects.POST("/:id/archive", h.Projects.ToggleArchive)
	projects.POST("/:id/members", h.Projects.AddMember)
	projects.GET("/:id/members", h.Projects.ListMembers)
	projects.DELETE("/:id/members/:user_id", h.Projects.RemoveMember)
	projects.GET("/:id/tasks", h.Projects.ListProjectTasks)
	projects.POST("/:id/tasks", h.Tasks.CreateTask)

	tasks := protected.Group("/tasks")
	tasks.GET("", h.Tasks.GetTasks)
	tasks.GET("/:id", h.Tasks.GetTaskByID)
	tasks.PUT("/:id", h.Tasks.UpdateTask)
	tasks.DELETE("/:id", h.Tasks.DeleteTask)
	tasks.POST("/:id/assignees", h.Tasks.AssignTask)
	tasks.GET("/:id/assignees", h.Tasks.ListAssignees)
	tasks.DELETE("/:id/assignees/:user_id", h.Tasks.UnassignTask)
	tasks.POST("/:id/subtasks", h.Tasks.CreateSubTask)
	tasks.GET("/:id/subtasks", h.Tasks.ListSubTasks)
	tasks.POST("/:id/comments", h.Tasks.CreateComment)
	tasks.GET("/:id/comments", h.Tasks.ListComments)
	tasks.POST("/:id/attachments", h.transfer(h.Attachments.UploadToTask)...)
	tasks.GET("/:id/attachments", h.Attachments.ListForTask)

	subTasks := protected.Group("/subtasks")
	subTasks.GET("/:id", h.SubTasks.GetSubTask)
	subTasks.PUT("/:id", h.SubTasks.UpdateSubTask)
	subTasks.DELETE("/:id", h.SubTasks.DeleteSubTask)
	subTasks.POST("/:id/assignees", h.SubTasks.AssignSubTask)
	subTasks.GET("/:id/assignees", h.SubTasks.ListAssignees)
	subTasks.DELETE("/:id/assignees/:user_id", h.SubTasks.UnassignSubTask)
	subTasks.POST("/:id/attachments", h.transfer(h.Attachments.UploadToSubTask)...)
	subTasks.GET("/:id/attachments", h.Attachments.ListForSubTask)

	comments := protected.Group("/comments")
	comments.PUT("/:id", h.Comments.UpdateComment)
	comments.DELETE("/:id", h.Comments.DeleteComment)

	attachments := protected.Group("/attachments")
	attachments.GET("", middleware.RequireAdmin(), h.Attachments.ListAll)
	attachments.GET("/:id/download", h.transfer(h.Attachments.Download)...)
	attachments.DELETE("/:id", h.Attachments.Delete)

	users := protected.Group("/users")
	users.GET("/me", h.Users.GetUserProfile)
	users.GET("/me/projects", h.Users.GetMyProjects)
	users.GET("/me/tasks", h.Users.GetMyTasks)
	users.GET("/me/subtasks", h.Users.GetMySubTasks)
	users.GET("", middleware.RequireAdmin(), h.Users.ListUsers)
	users.DELETE("/:id", middleware.RequireAdmin(), h.Users.DeleteUser)

	protected.GET("/audit-logs", middleware.RequireAdmin(), h.Users.ListAuditLogs)
}

func (h Handlers) transfer(handler gin.HandlerFunc) []gin.HandlerFunc {
	if h.Transfer == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{h.Transfer, handler}
}
