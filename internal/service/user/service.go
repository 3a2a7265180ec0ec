package user

import (
	"context"

	"log/slog"

	"github.com/propath-ai/api/internal/domain"
	"github.com/propath-ai/api/internal/repository"
)

// Service exposes read access to dashboard accounts.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// New returns a user service.
func New(users repository.UserRepository, logger *slog.Logger) Service {
	return Service{users: users, logger: logger}
}

// List returns all accounts as public views, newest first.
func (s Service) List(ctx context.Context) ([]domain.PublicUser, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.PublicUser, 0, len(users))
	for _, u := range users {
		views = append(views, u.Public())
	}
	return views, nil
}
