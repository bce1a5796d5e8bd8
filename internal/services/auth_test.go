package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/database"
	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuthFixture(t *testing.T) (*repositories.Store, *RegisterServiceImpl, *AuthServiceImpl) {
	t.Helper()
	db, err := database.NewMemoryDB()
	require.NoError(t, err)
	store := repositories.NewStore(db)

	register := NewRegisterService(store, bcrypt.MinCost)
	auth := NewAuthService(store, AuthConfig{
		Secret:   "test-secret",
		Issuer:   "taskify-backend",
		Audience: "taskify-api",
	})
	return store, register, auth
}

func registerAlice(t *testing.T, register *RegisterServiceImpl) *models.User {
	t.Helper()
	user, err := register.RegisterUser(context.Background(), RegistrationRequest{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	return user
}

func TestRegisterUser(t *testing.T) {
	_, register, _ := newAuthFixture(t)
	ctx := context.Background()

	user := registerAlice(t, register)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.NotEqual(t, "correct-horse", user.Password)

	_, err := register.RegisterUser(ctx, RegistrationRequest{Username: "alice2", Email: "alice@example.com", Password: "correct-horse"})
	assert.True(t, errors.Is(err, apperrors.ErrEmailAlreadyExists))

	_, err = register.RegisterUser(ctx, RegistrationRequest{Username: "alice", Email: "other@example.com", Password: "correct-horse"})
	assert.True(t, errors.Is(err, apperrors.ErrUsernameTaken))

	_, err = register.RegisterUser(ctx, RegistrationRequest{Username: "bob", Email: "not-an-email", Password: "correct-horse"})
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))

	_, err = register.RegisterUser(ctx, RegistrationRequest{Username: "bob", Email: "bob@example.com", Password: "short"})
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))
}

func TestLogin(t *testing.T) {
	_, register, auth := newAuthFixture(t)
	ctx := context.Background()
	user := registerAlice(t, register)

	result, err := auth.Login(ctx, " ALICE@example.com ", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)
	assert.Equal(t, "Bearer", result.Tokens.TokenType)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
	assert.NotNil(t, result.User.LastLogin)

	identity, err := auth.ResolveIdentity(ctx, result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, identity.UserID)
	assert.Equal(t, models.RoleUser, identity.Role)

	_, err = auth.Login(ctx, "alice@example.com", "wrong-password")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidCredentials))

	_, err = auth.Login(ctx, "nobody@example.com", "correct-horse")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidCredentials))
}

func TestResolveIdentity_Rejections(t *testing.T) {
	store, register, auth := newAuthFixture(t)
	ctx := context.Background()
	user := registerAlice(t, register)

	_, err := auth.ResolveIdentity(ctx, "")
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthenticated))

	_, err = auth.ResolveIdentity(ctx, "not-a-jwt")
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthenticated))

	otherAudience := NewAuthService(store, AuthConfig{Secret: "test-secret", Issuer: "taskify-backend", Audience: "someone-else"})
	token, err := otherAudience.GenerateAccessToken(user)
	require.NoError(t, err)
	_, err = auth.ResolveIdentity(ctx, token)
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthenticated))

	otherIssuer := NewAuthService(store, AuthConfig{Secret: "test-secret", Issuer: "elsewhere", Audience: "taskify-api"})
	token, err = otherIssuer.GenerateAccessToken(user)
	require.NoError(t, err)
	_, err = auth.ResolveIdentity(ctx, token)
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthenticated))

	otherSecret := NewAuthService(store, AuthConfig{Secret: "other-secret", Issuer: "taskify-backend", Audience: "taskify-api"})
	token, err = otherSecret.GenerateAccessToken(user)
	require.NoError(t, err)
	_, err = auth.ResolveIdentity(ctx, token)
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthenticated))

	expired := NewAuthService(store, AuthConfig{Secret: "test-secret", Issuer: "taskify-backend", Audience: "taskify-api"})
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err = expired.GenerateAccessToken(user)
	require.NoError(t, err)
	_, err = auth.ResolveIdentity(ctx, token)
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthenticated))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   user.ID.String(),
		Issuer:    "taskify-backend",
		Audience:  jwt.ClaimStrings{"taskify-api"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token, err = none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ResolveIdentity(ctx, token)
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthenticated))
}

func TestResolveIdentity_AdminRole(t *testing.T) {
	store, _, auth := newAuthFixture(t)
	admin := &models.User{Username: "root", Email: "root@example.com", Password: "x", Role: models.RoleAdmin, IsActive: true}
	require.NoError(t, store.CreateUser(context.Background(), admin))

	token, err := auth.GenerateAccessToken(admin)
	require.NoError(t, err)

	identity, err := auth.ResolveIdentity(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, identity.IsAdmin())
}

func TestRefreshRotatesToken(t *testing.T) {
	_, register, auth := newAuthFixture(t)
	ctx := context.Background()
	registerAlice(t, register)

	result, err := auth.Login(ctx, "alice@example.com", "correct-horse")
	require.NoError(t, err)

	pair, err := auth.Refresh(ctx, result.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, result.Tokens.RefreshToken, pair.RefreshToken)

	_, err = auth.Refresh(ctx, result.Tokens.RefreshToken)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidToken))

	require.NoError(t, auth.Logout(ctx, pair.RefreshToken))
	_, err = auth.Refresh(ctx, pair.RefreshToken)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidToken))

	err = auth.Logout(ctx, "")
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))
}

func TestApplyStatusTransition(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	task := &models.Task{Status: models.StatusToDo}

	ApplyStatusTransition(task, models.StatusInProgress, now)
	assert.Nil(t, task.CompletedAt)

	ApplyStatusTransition(task, models.StatusDone, now)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, task.CompletedAt.Equal(now))

	ApplyStatusTransition(task, models.StatusDone, now.Add(time.Hour))
	assert.True(t, task.CompletedAt.Equal(now))

	ApplyStatusTransition(task, models.StatusToDo, now)
	assert.Nil(t, task.CompletedAt)
}
