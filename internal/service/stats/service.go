package stats

import (
	"context"
	"time"

	"log/slog"

	"github.com/propath-ai/api/internal/domain"
	"github.com/propath-ai/api/internal/repository"
)

// Service aggregates dashboard counters from persistence.
type Service struct {
	users        repository.UserRepository
	scholarships repository.ScholarshipRepository
	logger       *slog.Logger
	now          func() time.Time
}

// New returns a stats service.
func New(users repository.UserRepository, scholarships repository.ScholarshipRepository, logger *slog.Logger) Service {
	return Service{users: users, scholarships: scholarships, logger: logger, now: time.Now}
}

// Collect gathers the dashboard counters as of now.
func (s Service) Collect(ctx context.Context) (*domain.DashboardStats, error) {
	now := s.now().UTC()
	totalUsers, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	totalScholarships, err := s.scholarships.CountScholarships(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.scholarships.CountScholarshipsWithDeadlineAfter(ctx, now)
	if err != nil {
		return nil, err
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	thisMonth, err := s.scholarships.CountScholarshipsCreatedSince(ctx, monthStart)
	if err != nil {
		return nil, err
	}
	return &domain.DashboardStats{
		TotalUsers:         totalUsers,
		TotalScholarships:  totalScholarships,
		ActiveScholarships: active,
		CreatedThisMonth:   thisMonth,
	}, nil
}
