package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type AuthService interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	ResolveIdentity(ctx context.Context, bearer string) (Identity, error)
}

type AuthConfig struct {
	Secret          string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BCryptCost      int
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type LoginResult struct {
	Tokens TokenPair    `json:"tokens"`
	User   *models.User `json:"user"`
}

type accessClaims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

type AuthServiceImpl struct {
	store  *repositories.Store
	config AuthConfig
	now    func() time.Time
}

func NewAuthService(store *repositories.Store, config AuthConfig) *AuthServiceImpl {
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = 15 * time.Minute
	}
	if config.RefreshTokenTTL <= 0 {
		config.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	return &AuthServiceImpl{store: store, config: config, now: time.Now}
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword)) == nil
}

func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, apperrors.ErrUserNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive || !VerifyPassword(user.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.store.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Tokens: *tokens, User: user}, nil
}

// Refresh rotates a refresh token: the presented token is consumed and a
// new pair is issued.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, apperrors.ErrInvalidToken
	}

	var tokens *TokenPair
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		token, err := tx.ConsumeRefreshToken(ctx, refreshToken, s.now())
		if err != nil {
			return err
		}
		user, err := tx.GetUser(ctx, token.UserID)
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return apperrors.ErrInvalidToken
		}
		if err != nil {
			return err
		}
		if !user.IsActive {
			return apperrors.ErrInvalidToken
		}
		tokens, err = (&AuthServiceImpl{store: tx, config: s.config, now: s.now}).issueTokens(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func (s *AuthServiceImpl) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return apperrors.InvalidInput("refresh_token is required")
	}
	return s.store.RevokeRefreshToken(ctx, refreshToken)
}

// ResolveIdentity verifies an access token. Any failure, including a token
// minted for another issuer or audience, is ErrUnauthenticated.
func (s *AuthServiceImpl) ResolveIdentity(ctx context.Context, bearer string) (Identity, error) {
	if bearer == "" {
		return Identity{}, apperrors.ErrUnauthenticated
	}

	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(bearer, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithAudience(s.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Identity{}, apperrors.ErrUnauthenticated.Wrap(err)
	}

	userID, err := uuid.FromString(claims.Subject)
	if err != nil || userID.IsNil() {
		return Identity{}, apperrors.ErrUnauthenticated.WithMessage("token subject is invalid")
	}

	role := models.RoleUser
	if claims.Role == models.RoleAdmin {
		role = models.RoleAdmin
	}
	return Identity{UserID: userID, Role: role}, nil
}

// GenerateAccessToken signs an access token for user.
func (s *AuthServiceImpl) GenerateAccessToken(user *models.User) (string, error) {
	now := s.now()
	claims := accessClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.config.Issuer,
			Audience:  jwt.ClaimStrings{s.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
}

func (s *AuthServiceImpl) issueTokens(ctx context.Context, user *models.User) (*TokenPair, error) {
	accessToken, err := s.GenerateAccessToken(user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	refreshToken, err := uuid.NewV4()
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	token := &models.Token{
		UserID:       user.ID,
		RefreshToken: refreshToken.String(),
		ExpiresAt:    s.now().Add(s.config.RefreshTokenTTL),
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.config.AccessTokenTTL.Seconds()),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
