package scholarship

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/propath-ai/api/internal/domain"
	"github.com/propath-ai/api/internal/repository"
)

// ErrValidation tags rejected input. Callers can match it with
// errors.Is to separate bad requests from storage failures.
var ErrValidation = errors.New("invalid scholarship input")

type validationError string

func (e validationError) Error() string        { return string(e) }
func (e validationError) Is(target error) bool { return target == ErrValidation }

var (
	errMissingTitle       = validationError("title is required")
	errMissingDescription = validationError("description is required")
	errMissingAmount      = validationError("amount is required")
	errMissingDeadline    = validationError("deadline is required")
	errMissingID          = validationError("scholarship id required")
	errNegativeAmount     = validationError("amount must not be negative")
)

// CreateInput encapsulates scholarship creation attributes.
type CreateInput struct {
	Title       string
	Description string
	Amount      *int64
	Deadline    *time.Time
}

// UpdateInput carries a partial update; nil fields are left untouched.
type UpdateInput struct {
	Title       *string
	Description *string
	Amount      *int64
	Deadline    *time.Time
}

// Service orchestrates scholarship management.
type Service struct {
	scholarships repository.ScholarshipRepository
	logger       *slog.Logger
}

// New returns a scholarship service.
func New(scholarships repository.ScholarshipRepository, logger *slog.Logger) Service {
	return Service{scholarships: scholarships, logger: logger}
}

// Create validates presence of all business fields and persists a listing.
func (s Service) Create(ctx context.Context, input CreateInput) (*domain.Scholarship, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, errMissingTitle
	}
	if strings.TrimSpace(input.Description) == "" {
		return nil, errMissingDescription
	}
	if input.Amount == nil {
		return nil, errMissingAmount
	}
	if *input.Amount < 0 {
		return nil, errNegativeAmount
	}
	if input.Deadline == nil {
		return nil, errMissingDeadline
	}
	now := time.Now().UTC()
	scholarship := &domain.Scholarship{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Amount:      *input.Amount,
		Deadline:    input.Deadline.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.scholarships.CreateScholarship(ctx, scholarship); err != nil {
		return nil, err
	}
	s.logger.Info("scholarship created", "scholarship_id", scholarship.ID)
	return scholarship, nil
}

// List returns all listings, newest first.
func (s Service) List(ctx context.Context) ([]domain.Scholarship, error) {
	return s.scholarships.ListScholarships(ctx)
}

// Get returns a listing by identifier.
func (s Service) Get(ctx context.Context, id string) (*domain.Scholarship, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errMissingID
	}
	return s.scholarships.GetScholarshipByID(ctx, id)
}

// Update merges supplied fields into an existing listing. Concurrent
// updates are last write wins.
func (s Service) Update(ctx context.Context, id string, input UpdateInput) (*domain.Scholarship, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errMissingID
	}
	scholarship, err := s.scholarships.GetScholarshipByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, errMissingTitle
		}
		scholarship.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		if strings.TrimSpace(*input.Description) == "" {
			return nil, errMissingDescription
		}
		scholarship.Description = strings.TrimSpace(*input.Description)
	}
	if input.Amount != nil {
		if *input.Amount < 0 {
			return nil, errNegativeAmount
		}
		scholarship.Amount = *input.Amount
	}
	if input.Deadline != nil {
		scholarship.Deadline = input.Deadline.UTC()
	}
	scholarship.UpdatedAt = time.Now().UTC()
	if err := s.scholarships.UpdateScholarship(ctx, scholarship); err != nil {
		return nil, err
	}
	s.logger.Info("scholarship updated", "scholarship_id", scholarship.ID)
	return scholarship, nil
}

// Delete removes a listing by identifier.
func (s Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errMissingID
	}
	if err := s.scholarships.DeleteScholarship(ctx, id); err != nil {
		return err
	}
	s.logger.Info("scholarship deleted", "scholarship_id", id)
	return nil
}
