package repository

import (
	"context"
	"time"

	"github.com/propath-ai/api/internal/domain"
)

// UserRepository persists dashboard accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	CountUsers(ctx context.Context) (int, error)
}

// ScholarshipRepository persists scholarship listings.
type ScholarshipRepository interface {
	CreateScholarship(ctx context.Context, scholarship *domain.Scholarship) error
	GetScholarshipByID(ctx context.Context, id string) (*domain.Scholarship, error)
	ListScholarships(ctx context.Context) ([]domain.Scholarship, error)
	UpdateScholarship(ctx context.Context, scholarship *domain.Scholarship) error
	DeleteScholarship(ctx context.Context, id string) error
	CountScholarships(ctx context.Context) (int, error)
	CountScholarshipsWithDeadlineAfter(ctx context.Context, after time.Time) (int, error)
	CountScholarshipsCreatedSince(ctx context.Context, since time.Time) (int, error)
}

// PushTokenRepository stores sealed device notification tokens.
type PushTokenRepository interface {
	UpsertPushToken(ctx context.Context, token *domain.PushToken) error
}
