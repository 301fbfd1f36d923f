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

const campaignColumns = `
	id, name, location, address, campaign_date, start_time, end_time,
	max_donors, current_donors, is_featured, status, organizer_id, proposed_by,
	rejection_reason, created_at, updated_at`

// CampaignRepository handles campaign data operations
type CampaignRepository struct {
	db DBExecutor
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db DBExecutor) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// CreateCampaign creates a new campaign
func (r *CampaignRepository) CreateCampaign(ctx context.Context, campaign *model.Campaign) error {
	query := `
		INSERT INTO campaigns (
			id, name, location, address, campaign_date, start_time, end_time,
			max_donors, current_donors, is_featured, status, organizer_id, proposed_by,
			rejection_reason, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	if campaign.ID == "" {
		campaign.ID = uuid.NewString()
	}
	now := time.Now()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		campaign.ID, campaign.Name, campaign.Location, campaign.Address, campaign.CampaignDate,
		campaign.StartTime, campaign.EndTime, campaign.MaxDonors, campaign.CurrentDonors,
		campaign.IsFeatured, campaign.Status, campaign.OrganizerID, campaign.ProposedBy,
		campaign.RejectionReason, campaign.CreatedAt, campaign.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetCampaign retrieves a campaign by ID
func (r *CampaignRepository) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return r.getCampaign(ctx, id, "")
}

// GetCampaignForUpdate retrieves a campaign and locks its row until the
// surrounding transaction ends
func (r *CampaignRepository) GetCampaignForUpdate(ctx context.Context, id string) (*model.Campaign, error) {
	return r.getCampaign(ctx, id, "FOR UPDATE")
}

func (r *CampaignRepository) getCampaign(ctx context.Context, id, lock string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1 ` + lock

	var campaign model.Campaign
	if err := r.db.GetContext(ctx, &campaign, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("campaign %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &campaign, nil
}

// UpdateCampaign persists every mutable campaign field except current_donors,
// which only IncrementSeats and DecrementSeats write.
func (r *CampaignRepository) UpdateCampaign(ctx context.Context, campaign *model.Campaign) error {
	query := `
		UPDATE campaigns
		SET name = $2, location = $3, address = $4, campaign_date = $5, start_time = $6,
			end_time = $7, max_donors = $8, is_featured = $9, status = $10,
			organizer_id = $11, rejection_reason = $12, updated_at = $13
		WHERE id = $1
	`

	campaign.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, query,
		campaign.ID, campaign.Name, campaign.Location, campaign.Address, campaign.CampaignDate,
		campaign.StartTime, campaign.EndTime, campaign.MaxDonors, campaign.IsFeatured,
		campaign.Status, campaign.OrganizerID, campaign.RejectionReason, campaign.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("campaign %s: %w", campaign.ID, ErrNotFound)
	}

	return nil
}

// ListCampaigns returns one page of campaigns matching the filter and the total match count
func (r *CampaignRepository) ListCampaigns(ctx context.Context, f model.CampaignFilter) ([]model.Campaign, int, error) {
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
	if f.DateFrom != nil {
		conds = append(conds, "campaign_date >= "+arg(*f.DateFrom))
	}
	if f.DateTo != nil {
		conds = append(conds, "campaign_date <= "+arg(*f.DateTo))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, fmt.Sprintf("(name ILIKE %s OR location ILIKE %s)", p, p))
	}
	if f.FeaturedOnly {
		conds = append(conds, "is_featured = TRUE")
	}
	if f.AvailableOnly {
		conds = append(conds, "current_donors < max_donors")
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM campaigns `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	order := "ASC"
	if f.Descending {
		order = "DESC"
	}
	limit, offset := PageBounds(f.Limit, f.Page)
	query := fmt.Sprintf(`SELECT %s FROM campaigns %s ORDER BY campaign_date %s, start_time ASC LIMIT %s OFFSET %s`,
		campaignColumns, where, order, arg(limit), arg(offset))

	campaigns := []model.Campaign{}
	if err := r.db.SelectContext(ctx, &campaigns, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}

	return campaigns, total, nil
}

// LockSchedule takes a transaction-scoped advisory lock on (location, date) so
// concurrent creates and edits for the same slot run their overlap check in turn.
func (r *CampaignRepository) LockSchedule(ctx context.Context, location string, date time.Time) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, scheduleKey(location, date)); err != nil {
		return fmt.Errorf("failed to lock schedule: %w", err)
	}
	return nil
}

func scheduleKey(location string, date time.Time) string {
	return location + "|" + date.Format(time.DateOnly)
}

// FindOverlapping returns ACTIVE campaigns at location on date whose window
// intersects [start, end). excludeID, when set, is left out of the result.
func (r *CampaignRepository) FindOverlapping(ctx context.Context, location string, date time.Time, start, end model.Clock, excludeID string) ([]model.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE campaign_date = $1
		  AND location = $2
		  AND status = 'ACTIVE'
		  AND start_time < $3
		  AND end_time > $4
		  AND ($5::text = '' OR id::text <> $5::text)
		ORDER BY start_time ASC
	`

	overlapping := []model.Campaign{}
	if err := r.db.SelectContext(ctx, &overlapping, query, date, location, end, start, excludeID); err != nil {
		return nil, fmt.Errorf("failed to find overlapping campaigns: %w", err)
	}

	return overlapping, nil
}

// IncrementSeats occupies one seat with a single conditional update
func (r *CampaignRepository) IncrementSeats(ctx context.Context, campaignID string) (int, error) {
	query := `
		UPDATE campaigns
		SET current_donors = current_donors + 1, updated_at = $2
		WHERE id = $1 AND current_donors < max_donors
		RETURNING current_donors
	`

	var current int
	err := r.db.GetContext(ctx, &current, query, campaignID, time.Now())
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to increment seats: %w", err)
	}

	// No row updated: either the campaign is gone or it is full
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, campaignID); err != nil {
		return 0, fmt.Errorf("failed to check campaign existence: %w", err)
	}
	if !exists {
		return 0, fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
	}
	return 0, fmt.Errorf("campaign %s: %w", campaignID, ErrCampaignFull)
}

// DecrementSeats releases one seat, clamped at zero
func (r *CampaignRepository) DecrementSeats(ctx context.Context, campaignID string) (int, error) {
	query := `
		UPDATE campaigns
		SET current_donors = GREATEST(current_donors - 1, 0), updated_at = $2
		WHERE id = $1
		RETURNING current_donors
	`

	var current int
	if err := r.db.GetContext(ctx, &current, query, campaignID, time.Now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to decrement seats: %w", err)
	}

	return current, nil
}

// CountSeatHolders counts enrollments that occupy a seat. Used for audits only.
func (r *CampaignRepository) CountSeatHolders(ctx context.Context, campaignID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM enrollments
		WHERE campaign_id = $1 AND status IN ('PENDING', 'CONFIRMED')
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, campaignID); err != nil {
		return 0, fmt.Errorf("failed to count seat holders: %w", err)
	}

	return count, nil
}
