package repositories_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/database"
	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *repositories.Store

	owner   *models.User
	member  *models.User
	project *models.Project
}

func (s *StoreTestSuite) SetupTest() {
	db, err := database.NewMemoryDB()
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.store = repositories.NewStore(db)

	s.owner = s.createUser("owner")
	s.member = s.createUser("member")

	s.project = &models.Project{Name: "Apollo", StartDate: time.Now(), CreatorID: s.owner.ID}
	s.Require().NoError(s.store.CreateProject(s.ctx, s.project))
	_, err = s.store.AddMember(s.ctx, s.project.ID, s.owner.ID, models.ProjectRolePM)
	s.Require().NoError(err)
}

func (s *StoreTestSuite) createUser(name string) *models.User {
	u := &models.User{Username: name, Email: name + "@example.com", Password: "hash"}
	s.Require().NoError(s.store.CreateUser(s.ctx, u))
	return u
}

func (s *StoreTestSuite) createTask(title string) *models.Task {
	t := &models.Task{ProjectID: s.project.ID, Title: title}
	s.Require().NoError(s.store.CreateTask(s.ctx, t))
	return t
}

func (s *StoreTestSuite) TestCreateUser_DuplicateEmail() {
	err := s.store.CreateUser(s.ctx, &models.User{Username: "other", Email: "owner@example.com", Password: "x"})
	s.True(errors.Is(err, apperrors.ErrEmailAlreadyExists))
}

func (s *StoreTestSuite) TestCreateUser_DuplicateUsername() {
	err := s.store.CreateUser(s.ctx, &models.User{Username: "owner", Email: "someone@example.com", Password: "x"})
	s.True(errors.Is(err, apperrors.ErrUsernameTaken))

	err = s.store.Transaction(s.ctx, func(tx *repositories.Store) error {
		return tx.CreateUser(s.ctx, &models.User{Username: "owner", Email: "again@example.com", Password: "x"})
	})
	s.True(errors.Is(err, apperrors.ErrUsernameTaken))

	err = s.store.CreateUser(s.ctx, &models.User{Username: "owner", Email: "owner@example.com", Password: "x"})
	s.True(errors.Is(err, apperrors.ErrEmailAlreadyExists))
}

func (s *StoreTestSuite) TestAddMember_Duplicate() {
	_, err := s.store.AddMember(s.ctx, s.project.ID, s.member.ID, models.ProjectRoleContributor)
	s.Require().NoError(err)

	_, err = s.store.AddMember(s.ctx, s.project.ID, s.member.ID, models.ProjectRoleContributor)
	s.True(errors.Is(err, apperrors.ErrDuplicateMembership))

	members, err := s.store.MembersOf(s.ctx, s.project.ID)
	s.Require().NoError(err)
	s.Len(members, 2)
}

func (s *StoreTestSuite) TestRemoveMember_NotAMember() {
	err := s.store.RemoveMember(s.ctx, s.project.ID, s.member.ID)
	s.True(errors.Is(err, apperrors.ErrNotAMember))
}

func (s *StoreTestSuite) TestProjectsOf() {
	projects, err := s.store.ProjectsOf(s.ctx, s.owner.ID)
	s.Require().NoError(err)
	s.Len(projects, 1)

	projects, err = s.store.ProjectsOf(s.ctx, s.member.ID)
	s.Require().NoError(err)
	s.Empty(projects)
}

func (s *StoreTestSuite) TestAssignments_Idempotent() {
	task := s.createTask("Design")

	s.Require().NoError(s.store.AssignToTask(s.ctx, task.ID, s.member.ID))
	s.Require().NoError(s.store.AssignToTask(s.ctx, task.ID, s.member.ID))

	assignees, err := s.store.AssigneesOfTask(s.ctx, task.ID)
	s.Require().NoError(err)
	s.Len(assignees, 1)

	tasks, err := s.store.TasksOf(s.ctx, s.member.ID)
	s.Require().NoError(err)
	s.Len(tasks, 1)

	s.Require().NoError(s.store.UnassignFromTask(s.ctx, task.ID, s.member.ID))
	s.Require().NoError(s.store.UnassignFromTask(s.ctx, task.ID, s.member.ID))

	assigned, err := s.store.IsAssignedToTask(s.ctx, task.ID, s.member.ID)
	s.Require().NoError(err)
	s.False(assigned)
}

func (s *StoreTestSuite) TestIsAssignedInProject() {
	task := s.createTask("Build")
	sub := &models.SubTask{TaskID: task.ID, Title: "Wire"}
	s.Require().NoError(s.store.CreateSubTask(s.ctx, sub))
	s.Require().NoError(s.store.AssignToSubTask(s.ctx, sub.ID, s.member.ID))

	assigned, err := s.store.IsAssignedInProject(s.ctx, s.project.ID, s.member.ID)
	s.Require().NoError(err)
	s.True(assigned)

	subs, err := s.store.SubTasksOf(s.ctx, s.member.ID)
	s.Require().NoError(err)
	s.Len(subs, 1)

	s.Require().NoError(s.store.RemoveProjectAssignments(s.ctx, s.project.ID, s.member.ID))
	assigned, err = s.store.IsAssignedInProject(s.ctx, s.project.ID, s.member.ID)
	s.Require().NoError(err)
	s.False(assigned)
}

func (s *StoreTestSuite) TestDeleteProject_Cascades() {
	task := s.createTask("Cascade")
	sub := &models.SubTask{TaskID: task.ID, Title: "Child"}
	s.Require().NoError(s.store.CreateSubTask(s.ctx, sub))
	s.Require().NoError(s.store.AssignToTask(s.ctx, task.ID, s.member.ID))
	s.Require().NoError(s.store.AssignToSubTask(s.ctx, sub.ID, s.member.ID))
	s.Require().NoError(s.store.CreateComment(s.ctx, &models.Comment{TaskID: task.ID, AuthorID: &s.member.ID, Text: "hi"}))
	s.Require().NoError(s.store.CreateAttachment(s.ctx, &models.Attachment{
		FileName: "a.pdf", StorageKey: "key-task.pdf", Size: 10, TaskID: &task.ID, UploaderID: &s.member.ID, UploadedAt: time.Now(),
	}))
	s.Require().NoError(s.store.CreateAttachment(s.ctx, &models.Attachment{
		FileName: "b.png", StorageKey: "key-sub.png", Size: 10, SubTaskID: &sub.ID, UploaderID: &s.member.ID, UploadedAt: time.Now(),
	}))

	var keys []string
	err := s.store.Transaction(s.ctx, func(tx *repositories.Store) error {
		var err error
		keys, err = tx.DeleteProject(s.ctx, s.project.ID)
		return err
	})
	s.Require().NoError(err)
	s.ElementsMatch([]string{"key-task.pdf", "key-sub.png"}, keys)

	_, err = s.store.GetTask(s.ctx, task.ID)
	s.True(errors.Is(err, apperrors.ErrTaskNotFound))
	_, err = s.store.GetSubTask(s.ctx, sub.ID)
	s.True(errors.Is(err, apperrors.ErrSubTaskNotFound))

	for _, m := range []interface{}{&models.ProjectMembership{}, &models.TaskAssignment{}, &models.SubTaskAssignment{}, &models.Comment{}, &models.Attachment{}} {
		var count int64
		s.Require().NoError(s.store.DB().Model(m).Count(&count).Error)
		s.Zero(count)
	}

	exists, err := s.store.UserExists(s.ctx, s.member.ID)
	s.Require().NoError(err)
	s.True(exists)
}

func (s *StoreTestSuite) TestUpdateTask_AfterDelete() {
	task := s.createTask("Racy")
	_, err := s.store.DeleteTask(s.ctx, task.ID)
	s.Require().NoError(err)

	task.Title = "Renamed"
	err = s.store.UpdateTask(s.ctx, task, "title")
	s.True(errors.Is(err, apperrors.ErrTaskNotFound))

	_, err = s.store.DeleteTask(s.ctx, task.ID)
	s.True(errors.Is(err, apperrors.ErrTaskNotFound))
}

func (s *StoreTestSuite) TestListTasks_Filters() {
	a := s.createTask("A")
	b := s.createTask("B")
	b.Status = models.StatusDone
	s.Require().NoError(s.store.UpdateTask(s.ctx, b, "status"))
	s.Require().NoError(s.store.AssignToTask(s.ctx, a.ID, s.member.ID))

	tasks, total, err := s.store.ListTasks(s.ctx, repositories.TaskFilter{ProjectID: &s.project.ID, Status: models.StatusDone})
	s.Require().NoError(err)
	s.EqualValues(1, total)
	s.Equal(b.ID, tasks[0].ID)

	tasks, _, err = s.store.ListTasks(s.ctx, repositories.TaskFilter{AssigneeID: &s.member.ID})
	s.Require().NoError(err)
	s.Len(tasks, 1)
	s.Equal(a.ID, tasks[0].ID)

	tasks, total, err = s.store.ListTasks(s.ctx, repositories.TaskFilter{Page: repositories.Page{Number: 1, Size: 1, SortBy: "title", Order: "asc"}})
	s.Require().NoError(err)
	s.EqualValues(2, total)
	s.Len(tasks, 1)
	s.Equal("A", tasks[0].Title)
}

func (s *StoreTestSuite) TestDeleteUser_OrphansContent() {
	task := s.createTask("Orphan")
	s.Require().NoError(s.store.CreateComment(s.ctx, &models.Comment{TaskID: task.ID, AuthorID: &s.member.ID, Text: "bye"}))
	s.Require().NoError(s.store.CreateAttachment(s.ctx, &models.Attachment{
		FileName: "c.txt", StorageKey: "key-c.txt", Size: 3, TaskID: &task.ID, UploaderID: &s.member.ID, UploadedAt: time.Now(),
	}))
	_, err := s.store.AddMember(s.ctx, s.project.ID, s.member.ID, models.ProjectRoleContributor)
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeleteUser(s.ctx, s.member.ID))

	comments, err := s.store.ListComments(s.ctx, task.ID)
	s.Require().NoError(err)
	s.Require().Len(comments, 1)
	s.Nil(comments[0].AuthorID)
	s.Equal(repositories.UnknownUser, comments[0].AuthorName)

	attachments, err := s.store.ListTaskAttachments(s.ctx, task.ID)
	s.Require().NoError(err)
	s.Require().Len(attachments, 1)
	s.Nil(attachments[0].UploaderID)
	s.Equal(repositories.UnknownUser, attachments[0].UploaderName)

	member, err := s.store.IsMember(s.ctx, s.project.ID, s.member.ID)
	s.Require().NoError(err)
	s.False(member)
}

func (s *StoreTestSuite) TestDeleteUser_OwnsProjects() {
	err := s.store.DeleteUser(s.ctx, s.owner.ID)
	s.True(errors.Is(err, apperrors.ErrUserOwnsProjects))
}

func (s *StoreTestSuite) TestCreateAttachment_RequiresSingleParent() {
	task := s.createTask("Files")
	sub := &models.SubTask{TaskID: task.ID, Title: "Sub"}
	s.Require().NoError(s.store.CreateSubTask(s.ctx, sub))

	err := s.store.CreateAttachment(s.ctx, &models.Attachment{FileName: "x.pdf", StorageKey: "k1", TaskID: &task.ID, SubTaskID: &sub.ID})
	s.True(errors.Is(err, apperrors.ErrAmbiguousParent))

	err = s.store.CreateAttachment(s.ctx, &models.Attachment{FileName: "x.pdf", StorageKey: "k2"})
	s.True(errors.Is(err, apperrors.ErrAmbiguousParent))
}

func (s *StoreTestSuite) TestRefreshTokenConsumedOnce() {
	token := &models.Token{UserID: s.owner.ID, RefreshToken: uuid.Must(uuid.NewV4()).String(), ExpiresAt: time.Now().Add(time.Hour)}
	s.Require().NoError(s.store.CreateToken(s.ctx, token))

	got, err := s.store.ConsumeRefreshToken(s.ctx, token.RefreshToken, time.Now())
	s.Require().NoError(err)
	s.Equal(s.owner.ID, got.UserID)

	_, err = s.store.ConsumeRefreshToken(s.ctx, token.RefreshToken, time.Now())
	s.True(errors.Is(err, apperrors.ErrInvalidToken))
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
