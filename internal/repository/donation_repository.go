package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kkkkikiki/blooddrive/internal/model"
)

const donationColumns = `
	id, donor_id, campaign_id, enrollment_id, scheduled_date, scheduled_time, status,
	actual_date, quantity_ml, certificate_id, notes, created_at, updated_at`

// DonationRepository handles donation data operations
type DonationRepository struct {
	db DBExecutor
}

// NewDonationRepository creates a new donation repository
func NewDonationRepository(db DBExecutor) *DonationRepository {
	return &DonationRepository{db: db}
}

// CreateDonation inserts a scheduled donation. Only one non-cancelled donation
// may exist per enrollment; a second one yields ErrDuplicate.
func (r *DonationRepository) CreateDonation(ctx context.Context, d *model.Donation) error {
	query := `
		INSERT INTO donations (` + donationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.DonorID, d.CampaignID, d.EnrollmentID, d.ScheduledDate, d.ScheduledTime, d.Status,
		d.ActualDate, d.QuantityML, d.CertificateID, d.Notes, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("donation for enrollment %s: %w", d.EnrollmentID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create donation: %w", err)
	}
	return nil
}

// GetDonation retrieves a donation by ID
func (r *DonationRepository) GetDonation(ctx context.Context, id string) (*model.Donation, error) {
	return r.getDonation(ctx, id, "")
}

// GetDonationForUpdate retrieves a donation and locks its row
func (r *DonationRepository) GetDonationForUpdate(ctx context.Context, id string) (*model.Donation, error) {
	return r.getDonation(ctx, id, "FOR UPDATE")
}

func (r *DonationRepository) getDonation(ctx context.Context, id, lock string) (*model.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE id = $1 ` + lock

	var d model.Donation
	if err := r.db.GetContext(ctx, &d, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("donation %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}
	return &d, nil
}

// UpdateDonation persists status and completion fields
func (r *DonationRepository) UpdateDonation(ctx context.Context, d *model.Donation) error {
	query := `
		UPDATE donations
		SET status = $2, actual_date = $3, quantity_ml = $4, certificate_id = $5, notes = $6, updated_at = $7
		WHERE id = $1
	`

	d.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, query,
		d.ID, d.Status, d.ActualDate, d.QuantityML, d.CertificateID, d.Notes, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update donation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("donation %s: %w", d.ID, ErrNotFound)
	}
	return nil
}

// FindActiveDonation returns the non-cancelled donation attached to an enrollment
func (r *DonationRepository) FindActiveDonation(ctx context.Context, enrollmentID string) (*model.Donation, error) {
	query := `SELECT ` + donationColumns + `
		FROM donations
		WHERE enrollment_id = $1 AND status <> 'CANCELLED'
		LIMIT 1
	`

	var d model.Donation
	if err := r.db.GetContext(ctx, &d, query, enrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find donation: %w", err)
	}
	return &d, nil
}

// ListDonationsByDonor returns the donor's donations, latest scheduled first
func (r *DonationRepository) ListDonationsByDonor(ctx context.Context, donorID string) ([]model.Donation, error) {
	query := `SELECT ` + donationColumns + `
		FROM donations
		WHERE donor_id = $1
		ORDER BY scheduled_date DESC, scheduled_time DESC
	`

	donations := []model.Donation{}
	if err := r.db.SelectContext(ctx, &donations, query, donorID); err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}
	return donations, nil
}

// LastCompletedDonationDate returns the most recent actual_date of a completed
// donation, or nil when the donor has none
func (r *DonationRepository) LastCompletedDonationDate(ctx context.Context, donorID string) (*time.Time, error) {
	query := `
		SELECT MAX(actual_date)
		FROM donations
		WHERE donor_id = $1 AND status = 'COMPLETED'
	`

	var last *time.Time
	if err := r.db.GetContext(ctx, &last, query, donorID); err != nil {
		return nil, fmt.Errorf("failed to get last donation date: %w", err)
	}
	return last, nil
}
