package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propath-ai/api/internal/domain"
	"github.com/propath-ai/api/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository        = (*Repository)(nil)
	_ repository.ScholarshipRepository = (*Repository)(nil)
	_ repository.PushTokenRepository   = (*Repository)(nil)
)

const uniqueViolation = "23505"

// CreateUser inserts a user, reporting ErrDuplicate on email collision.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicate
	}
	return err
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, name, email, password_hash, created_at FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, name, email, password_hash, created_at FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *Repository) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all users, newest first.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	const query = `SELECT id, name, email, password_hash, created_at
		FROM users ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers counts registered accounts.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(1) FROM users`)
}

// CreateScholarship inserts a scholarship.
func (r *Repository) CreateScholarship(ctx context.Context, scholarship *domain.Scholarship) error {
	const query = `INSERT INTO scholarships (id, title, description, amount, deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, scholarship.ID, scholarship.Title, scholarship.Description,
		scholarship.Amount, scholarship.Deadline, scholarship.CreatedAt, scholarship.UpdatedAt)
	return err
}

// GetScholarshipByID fetches a scholarship by identifier.
func (r *Repository) GetScholarshipByID(ctx context.Context, id string) (*domain.Scholarship, error) {
	const query = `SELECT id, title, description, amount, deadline, created_at, updated_at
		FROM scholarships WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	var s domain.Scholarship
	if err := row.Scan(&s.ID, &s.Title, &s.Description, &s.Amount, &s.Deadline, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListScholarships returns all scholarships, newest first.
func (r *Repository) ListScholarships(ctx context.Context) ([]domain.Scholarship, error) {
	const query = `SELECT id, title, description, amount, deadline, created_at, updated_at
		FROM scholarships ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scholarships := make([]domain.Scholarship, 0)
	for rows.Next() {
		var s domain.Scholarship
		if err := rows.Scan(&s.ID, &s.Title, &s.Description, &s.Amount, &s.Deadline, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		scholarships = append(scholarships, s)
	}
	return scholarships, rows.Err()
}

// UpdateScholarship overwrites a scholarship row.
func (r *Repository) UpdateScholarship(ctx context.Context, scholarship *domain.Scholarship) error {
	const query = `UPDATE scholarships
		SET title = $2, description = $3, amount = $4, deadline = $5, updated_at = $6
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, scholarship.ID, scholarship.Title, scholarship.Description,
		scholarship.Amount, scholarship.Deadline, scholarship.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteScholarship removes a scholarship by identifier.
func (r *Repository) DeleteScholarship(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM scholarships WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CountScholarships counts all scholarship listings.
func (r *Repository) CountScholarships(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(1) FROM scholarships`)
}

// CountScholarshipsWithDeadlineAfter counts listings still open at the given time.
func (r *Repository) CountScholarshipsWithDeadlineAfter(ctx context.Context, after time.Time) (int, error) {
	return r.count(ctx, `SELECT COUNT(1) FROM scholarships WHERE deadline > $1`, after)
}

// CountScholarshipsCreatedSince counts listings created at or after the given time.
func (r *Repository) CountScholarshipsCreatedSince(ctx context.Context, since time.Time) (int, error) {
	return r.count(ctx, `SELECT COUNT(1) FROM scholarships WHERE created_at >= $1`, since)
}

// UpsertPushToken stores a sealed push token, replacing prior saves.
func (r *Repository) UpsertPushToken(ctx context.Context, token *domain.PushToken) error {
	const query = `INSERT INTO push_tokens (fingerprint, ciphertext, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (fingerprint) DO UPDATE SET ciphertext = EXCLUDED.ciphertext`
	_, err := r.pool.Exec(ctx, query, token.Fingerprint, token.Ciphertext, token.CreatedAt)
	return err
}

func (r *Repository) count(ctx context.Context, query string, args ...any) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
