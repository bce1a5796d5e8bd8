package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskify/backend/internal/database"
	"taskify/backend/internal/handlers"
	"taskify/backend/internal/middleware"
	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"
	"taskify/backend/internal/services"
	"taskify/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
)

type APITestSuite struct {
	suite.Suite
	router    *gin.Engine
	store     *repositories.Store
	blobs     *storage.LocalStore
	transfers int
}

func (s *APITestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	db, err := database.NewMemoryDB()
	s.Require().NoError(err)
	s.store = repositories.NewStore(db)
	s.blobs, err = storage.NewLocalStore(s.T().TempDir())
	s.Require().NoError(err)

	auth := services.NewAuthService(s.store, services.AuthConfig{
		Secret: "test-secret", Issuer: "taskify-backend", Audience: "taskify-api",
	})
	authz := services.NewAuthorizationService(s.store, nil, nil)
	attachments := services.NewAttachmentService(s.store, s.blobs, authz, services.AttachmentPolicy{
		MaxUploadBytes:    5 << 20,
		AllowedExtensions: []string{"pdf", "png", "txt"},
	}, nil)

	h := handlers.New(handlers.Services{
		Auth:        auth,
		Register:    services.NewRegisterService(s.store, bcrypt.MinCost),
		Projects:    services.NewProjectService(s.store, authz, attachments, nil),
		Tasks:       services.NewTaskService(s.store, authz, attachments, nil),
		SubTasks:    services.NewSubTaskService(s.store, authz, attachments, nil),
		Comments:    services.NewCommentService(s.store, authz),
		Attachments: attachments,
		Users:       services.NewUserService(s.store, nil),
	})

	s.transfers = 0
	deadline := middleware.TransferDeadline(time.Minute)
	h.Transfer = func(c *gin.Context) {
		s.transfers++
		deadline(c)
	}

	s.router = gin.New()
	s.router.Use(middleware.RequestID(), middleware.RecoveryWithLog())
	handlers.RegisterRoutes(s.router, h, auth, nil)
}

func (s *APITestSuite) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, path, reader)
	s.Require().NoError(err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *APITestSuite) upload(path, token, fileName string, content []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	s.Require().NoError(mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile("file", fileName)
	s.Require().NoError(err)
	_, err = fw.Write(content)
	s.Require().NoError(err)
	s.Require().NoError(mw.Close())

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *APITestSuite) decode(w *httptest.ResponseRecorder, dst interface{}) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func (s *APITestSuite) errorCode(w *httptest.ResponseRecorder) string {
	var body middleware.ErrorBody
	s.decode(w, &body)
	return body.Error.Code
}

// signup registers and logs in, returning the access token and user id.
func (s *APITestSuite) signup(name string) (string, string) {
	w := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": name, "email": name + "@example.com", "password": "password123",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": name + "@example.com", "password": "password123"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		AccessToken string      `json:"access_token"`
		User        models.User `json:"user"`
	}
	s.decode(w, &resp)
	return resp.AccessToken, resp.User.ID.String()
}

func (s *APITestSuite) createProject(token string) string {
	w := s.do(http.MethodPost, "/api/v1/projects", token, gin.H{
		"name": "Apollo", "start_date": time.Now().UTC().Format(time.RFC3339),
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var p models.Project
	s.decode(w, &p)
	return p.ID.String()
}

func (s *APITestSuite) createTask(token, projectID string) string {
	w := s.do(http.MethodPost, "/api/v1/projects/"+projectID+"/tasks", token, gin.H{"title": "Launch"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var t models.Task
	s.decode(w, &t)
	return t.ID.String()
}

func (s *APITestSuite) TestRegister_DuplicateEmail() {
	s.signup("alice")

	w := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice2", "email": "alice@example.com", "password": "password123",
	})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("email_already_exists", s.errorCode(w))
}

func (s *APITestSuite) TestLogin_InvalidCredentials() {
	s.signup("alice")

	w := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "wrong-pass"})
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("invalid_credentials", s.errorCode(w))

	w = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "not-an-email"})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *APITestSuite) TestRequiresAuthentication() {
	w := s.do(http.MethodGet, "/api/v1/projects", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/v1/projects", "garbage", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *APITestSuite) TestRefreshAndLogout() {
	s.signup("alice")
	w := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "password123"})
	s.Require().Equal(http.StatusOK, w.Code)
	var login struct {
		RefreshToken string `json:"refresh_token"`
	}
	s.decode(w, &login)

	w = s.do(http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": login.RefreshToken})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var pair services.TokenPair
	s.decode(w, &pair)

	w = s.do(http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": login.RefreshToken})
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/v1/auth/logout", "", gin.H{"refresh_token": pair.RefreshToken})
	s.Equal(http.StatusOK, w.Code)
}

// Alice owns the project and assigns Bob; Bob may complete but not delete.
func (s *APITestSuite) TestOwnerAndAssigneeScenario() {
	alice, _ := s.signup("alice")
	bob, bobID := s.signup("bob")
	projectID := s.createProject(alice)

	w := s.do(http.MethodPost, "/api/v1/projects/"+projectID+"/members", alice, gin.H{"user_id": bobID})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/v1/projects/"+projectID+"/members", alice, gin.H{"user_id": bobID})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("duplicate_membership", s.errorCode(w))

	taskID := s.createTask(alice, projectID)
	w = s.do(http.MethodPost, "/api/v1/tasks/"+taskID+"/assignees", alice, gin.H{"user_id": bobID})
	s.Require().Equal(http.StatusNoContent, w.Code, w.Body.String())

	w = s.do(http.MethodPut, "/api/v1/tasks/"+taskID, bob, gin.H{"status": "Done"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var task models.Task
	s.decode(w, &task)
	s.Equal(models.StatusDone, task.Status)
	s.NotNil(task.CompletedAt)

	w = s.do(http.MethodDelete, "/api/v1/tasks/"+taskID, bob, nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodDelete, "/api/v1/projects/"+projectID, bob, nil)
	s.Equal(http.StatusForbidden, w.Code)
	w = s.do(http.MethodGet, "/api/v1/projects/"+projectID, bob, nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/v1/users/me/tasks", bob, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var mine []models.Task
	s.decode(w, &mine)
	s.Len(mine, 1)

	w = s.do(http.MethodDelete, "/api/v1/projects/"+projectID, alice, nil)
	s.Equal(http.StatusNoContent, w.Code)
	w = s.do(http.MethodGet, "/api/v1/tasks/"+taskID, alice, nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("task_not_found", s.errorCode(w))
}

func (s *APITestSuite) TestCreateTask_MissingProject() {
	alice, _ := s.signup("alice")

	w := s.do(http.MethodPost, "/api/v1/projects/6f1c1e0e-7d55-4a8e-9a53-0a7f0f3f3b11/tasks", alice, gin.H{"title": "Lost"})
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("parent_not_found", s.errorCode(w))

	w = s.do(http.MethodPost, "/api/v1/projects/not-a-uuid/tasks", alice, gin.H{"title": "Lost"})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *APITestSuite) TestUploadDownloadAndDelete() {
	alice, _ := s.signup("alice")
	projectID := s.createProject(alice)
	taskID := s.createTask(alice, projectID)
	content := bytes.Repeat([]byte("%PDF"), (2<<20)/4)

	w := s.upload("/api/v1/tasks/"+taskID+"/attachments", alice, "report.pdf", content)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var a models.Attachment
	s.decode(w, &a)
	s.EqualValues(len(content), a.Size)

	w = s.do(http.MethodGet, "/api/v1/tasks/"+taskID+"/attachments", alice, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var views []repositories.AttachmentView
	s.decode(w, &views)
	s.Require().Len(views, 1)
	s.Equal("alice", views[0].UploaderName)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/v1/attachments/%s/download", a.ID), alice, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(content, w.Body.Bytes())
	s.Contains(w.Header().Get("Content-Disposition"), "report.pdf")

	w = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/attachments/%s", a.ID), alice, nil)
	s.Equal(http.StatusNoContent, w.Code)
	s.Equal(2, s.transfers, "only upload and download run under the transfer deadline")

	blobs, err := s.blobs.List(s.T().Context())
	s.Require().NoError(err)
	s.Empty(blobs)
}

func (s *APITestSuite) TestUpload_MissingParent() {
	alice, _ := s.signup("alice")

	w := s.upload("/api/v1/tasks/"+uuid.Must(uuid.NewV4()).String()+"/attachments", alice, "notes.txt", []byte("hi"))
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("parent_not_found", s.errorCode(w))

	w = s.upload("/api/v1/subtasks/"+uuid.Must(uuid.NewV4()).String()+"/attachments", alice, "notes.txt", []byte("hi"))
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("parent_not_found", s.errorCode(w))
}

func (s *APITestSuite) TestUpload_Rejections() {
	alice, _ := s.signup("alice")
	projectID := s.createProject(alice)
	taskID := s.createTask(alice, projectID)

	w := s.upload("/api/v1/tasks/"+taskID+"/attachments", alice, "setup.exe", []byte("MZ"))
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("unsupported_type", s.errorCode(w))

	w = s.upload("/api/v1/tasks/"+taskID+"/attachments", alice, "empty.txt", nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("empty_file", s.errorCode(w))

	w = s.do(http.MethodPost, "/api/v1/tasks/"+taskID+"/attachments", alice, gin.H{"file": "nope"})
	s.Equal(http.StatusBadRequest, w.Code)

	blobs, err := s.blobs.List(s.T().Context())
	s.Require().NoError(err)
	s.Empty(blobs)
}

func (s *APITestSuite) TestAdminRoutes() {
	alice, _ := s.signup("alice")

	w := s.do(http.MethodGet, "/api/v1/users", alice, nil)
	s.Equal(http.StatusForbidden, w.Code)
	w = s.do(http.MethodGet, "/api/v1/attachments", alice, nil)
	s.Equal(http.StatusForbidden, w.Code)

	admin := &models.User{Username: "root", Email: "root@example.com", Password: "x", Role: models.RoleAdmin, IsActive: true}
	s.Require().NoError(s.store.CreateUser(s.T().Context(), admin))
	token, err := services.NewAuthService(s.store, services.AuthConfig{
		Secret: "test-secret", Issuer: "taskify-backend", Audience: "taskify-api",
	}).GenerateAccessToken(admin)
	s.Require().NoError(err)

	w = s.do(http.MethodGet, "/api/v1/users", token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var users []models.User
	s.decode(w, &users)
	s.Len(users, 2)

	w = s.do(http.MethodGet, "/api/v1/audit-logs?decision=allowed", token, nil)
	s.Equal(http.StatusOK, w.Code)
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
