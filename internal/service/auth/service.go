package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/propath-ai/api/internal/domain"
	"github.com/propath-ai/api/internal/repository"
	"github.com/propath-ai/api/pkg/config"
	"github.com/propath-ai/api/pkg/crypto"
	jwtpkg "github.com/propath-ai/api/pkg/jwt"
)

var (
	// ErrEmailTaken reports a signup against an existing email.
	ErrEmailTaken = errors.New("user already exists")
	// ErrInvalidCredentials covers both unknown email and password
	// mismatch so the two cases stay indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMissingField reports an absent signup/login field.
	ErrMissingField = errors.New("name, email and password are required")
	// ErrTokenInvalid reports a bearer token that failed validation or
	// whose subject no longer exists. Any other Authorize error is an
	// infrastructure failure, not a rejection.
	ErrTokenInvalid = errors.New("invalid token")
)

// Service handles authentication workflows.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	cfg    config.Config
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.Config) Service {
	return Service{users: users, logger: logger, cfg: cfg}
}

// Signup registers a new user and issues a bearer token.
func (s Service) Signup(ctx context.Context, name, email, password string) (*domain.User, string, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, "", ErrMissingField
	}
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", err
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, "", err
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// The existence check above is racy; the unique index settles it.
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", err
	}
	token, err := jwtpkg.GenerateToken(user.ID, s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, token, nil
}

// Login authenticates a user and returns a bearer token.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	email = normalizeEmail(email)
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := jwtpkg.GenerateToken(user.ID, s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, token, nil
}

// Authorize validates a bearer token and resolves its subject.
// Rejections wrap ErrTokenInvalid; storage failures pass through.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, *jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil, fmt.Errorf("%w: token required", ErrTokenInvalid)
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
		}
		return nil, nil, err
	}
	return user, claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
