package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kkkkikiki/blooddrive/internal/model"
)

const enrollmentColumns = `id, donor_id, campaign_id, status, preferred_time, notes, created_at, updated_at`

// EnrollmentRepository handles enrollment data operations
type EnrollmentRepository struct {
	db DBExecutor
}

// NewEnrollmentRepository creates a new enrollment repository
func NewEnrollmentRepository(db DBExecutor) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CreateEnrollment inserts an enrollment. A second non-cancelled enrollment for
// the same donor and campaign violates a partial unique index and yields ErrDuplicate.
func (r *EnrollmentRepository) CreateEnrollment(ctx context.Context, enrollment *model.Enrollment) error {
	query := `
		INSERT INTO enrollments (` + enrollmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		enrollment.ID, enrollment.DonorID, enrollment.CampaignID, enrollment.Status,
		enrollment.PreferredTime, enrollment.Notes, enrollment.CreatedAt, enrollment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("enrollment for donor %s: %w", enrollment.DonorID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create enrollment: %w", err)
	}

	return nil
}

// GetEnrollment retrieves an enrollment by ID
func (r *EnrollmentRepository) GetEnrollment(ctx context.Context, id string) (*model.Enrollment, error) {
	return r.getEnrollment(ctx, id, "")
}

// GetEnrollmentForUpdate retrieves an enrollment and locks its row
func (r *EnrollmentRepository) GetEnrollmentForUpdate(ctx context.Context, id string) (*model.Enrollment, error) {
	return r.getEnrollment(ctx, id, "FOR UPDATE")
}

func (r *EnrollmentRepository) getEnrollment(ctx context.Context, id, lock string) (*model.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1 ` + lock

	var enrollment model.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("enrollment %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	return &enrollment, nil
}

// FindActiveEnrollment returns the donor's non-cancelled enrollment in a campaign
func (r *EnrollmentRepository) FindActiveEnrollment(ctx context.Context, donorID, campaignID string) (*model.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE donor_id = $1 AND campaign_id = $2 AND status <> 'CANCELLED'
		LIMIT 1
	`

	var enrollment model.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, donorID, campaignID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find enrollment: %w", err)
	}

	return &enrollment, nil
}

// UpdateEnrollment persists status, preferred time and notes
func (r *EnrollmentRepository) UpdateEnrollment(ctx context.Context, enrollment *model.Enrollment) error {
	query := `
		UPDATE enrollments
		SET status = $2, preferred_time = $3, notes = $4, updated_at = $5
		WHERE id = $1
	`

	enrollment.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, query,
		enrollment.ID, enrollment.Status, enrollment.PreferredTime, enrollment.Notes, enrollment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update enrollment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("enrollment %s: %w", enrollment.ID, ErrNotFound)
	}

	return nil
}

// ListEnrollments returns one page of enrollments, newest first, and the total match count
func (r *EnrollmentRepository) ListEnrollments(ctx context.Context, f model.EnrollmentFilter) ([]model.Enrollment, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		conds = append(conds, "status = "+arg(f.Status))
	}
	if f.CampaignID != "" {
		conds = append(conds, "campaign_id = "+arg(f.CampaignID))
	}
	if f.DonorID != "" {
		conds = append(conds, "donor_id = "+arg(f.DonorID))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM enrollments `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count enrollments: %w", err)
	}

	limit, offset := PageBounds(f.Limit, f.Page)
	query := fmt.Sprintf(`SELECT %s FROM enrollments %s ORDER BY created_at DESC LIMIT %s OFFSET %s`,
		enrollmentColumns, where, arg(limit), arg(offset))

	enrollments := []model.Enrollment{}
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list enrollments: %w", err)
	}

	return enrollments, total, nil
}
