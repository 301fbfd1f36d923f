package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kkkkikiki/blooddrive/internal/model"
)

// UserRepository reads the users projection owned by the identity service
type UserRepository struct {
	db DBExecutor
}

// NewUserRepository creates a new user repository
func NewUserRepository(db DBExecutor) *UserRepository {
	return &UserRepository{db: db}
}

// GetUser retrieves a user by ID
func (r *UserRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	query := `
		SELECT id, role, donation_count, created_at
		FROM users
		WHERE id = $1
	`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// IncrementDonationCount adds one completed donation to the user's total
func (r *UserRepository) IncrementDonationCount(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET donation_count = donation_count + 1
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment donation count: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListDonorsByDonationCount returns one page of donors, most donations first
func (r *UserRepository) ListDonorsByDonationCount(ctx context.Context, limit, page int) ([]model.User, int, error) {
	limit, offset := PageBounds(limit, page)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users WHERE role = $1`, model.RoleDonor); err != nil {
		return nil, 0, fmt.Errorf("failed to count donors: %w", err)
	}

	query := `
		SELECT id, role, donation_count, created_at
		FROM users
		WHERE role = $1
		ORDER BY donation_count DESC, id ASC
		LIMIT $2 OFFSET $3
	`

	users := []model.User{}
	if err := r.db.SelectContext(ctx, &users, query, model.RoleDonor, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list donors: %w", err)
	}
	return users, total, nil
}

// EnsureUser inserts the user if it does not exist yet. Existing rows are left
// untouched. Used to seed fixtures for load runs and integration tests.
func (r *UserRepository) EnsureUser(ctx context.Context, id string, role model.Role) error {
	query := `
		INSERT INTO users (id, role)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, id, role); err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}
