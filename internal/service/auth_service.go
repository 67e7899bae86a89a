package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yourorg/biblioteca/internal/domain"
	"github.com/yourorg/biblioteca/internal/security/auth"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for any login failure. Deliberately
// indistinct so member emails cannot be enumerated.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService authenticates members and issues their tokens. Membership
// records themselves are administered out of band; there is no register
// path here.
type AuthService struct {
	users        domain.UserRepository
	tokenManager *auth.TokenManager
	tokenTTL     time.Duration
	logger       *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(users domain.UserRepository, tm *auth.TokenManager, tokenTTL time.Duration, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}

	return &AuthService{
		users:        users,
		tokenManager: tm,
		tokenTTL:     tokenTTL,
		logger:       logger,
	}
}

// LoginResult contains the issued token
type LoginResult struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login verifies a member's credentials and returns a JWT
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Info("login attempt with unknown email", slog.String("email", email))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed with wrong password", slog.String("email", email))
		return nil, ErrInvalidCredentials
	}

	// The token carries the role stored on the membership record so
	// librarian tokens exist without a separate staff login path.
	role := user.Role
	if role == "" {
		role = auth.RoleMember
	}
	token, err := s.tokenManager.GenerateToken(user.ID, user.Email, role, s.tokenTTL)
	if err != nil {
		s.logger.Error("failed to generate token",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, errors.New("token generation failed")
	}

	s.logger.Info("member logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return &LoginResult{
		UserID:    user.ID,
		Name:      user.Name,
		Token:     token,
		ExpiresAt: time.Now().Add(s.tokenTTL),
	}, nil
}

// HashPassword produces the stored bcrypt hash for a member password.
// Used by seeding and membership administration tooling.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
