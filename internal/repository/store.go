package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/kkkkikiki/blooddrive/internal/model"
)

// Sentinel facts returned by stores (optionally wrapped). Services translate
// them into business errors.
var (
	ErrNotFound     = errors.New("record not found")
	ErrCampaignFull = errors.New("campaign has no free seats")
	ErrDuplicate    = errors.New("duplicate record")
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// DBExecutor interface for database operations (can be *sqlx.DB or *sqlx.Tx)
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Queries is everything the engine reads and writes. Implementations bound to a
// transaction see their own uncommitted writes.
type Queries interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	IncrementDonationCount(ctx context.Context, id string) error
	// ListDonorsByDonationCount pages DONOR users by donation_count desc, id asc.
	ListDonorsByDonationCount(ctx context.Context, limit, page int) ([]model.User, int, error)

	CreateCampaign(ctx context.Context, c *model.Campaign) error
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	GetCampaignForUpdate(ctx context.Context, id string) (*model.Campaign, error)
	UpdateCampaign(ctx context.Context, c *model.Campaign) error
	ListCampaigns(ctx context.Context, f model.CampaignFilter) ([]model.Campaign, int, error)
	// LockSchedule serializes schedule changes for one location and date until
	// the transaction ends.
	LockSchedule(ctx context.Context, location string, date time.Time) error
	FindOverlapping(ctx context.Context, location string, date time.Time, start, end model.Clock, excludeID string) ([]model.Campaign, error)
	// IncrementSeats occupies one seat iff current_donors < max_donors and
	// returns the new counter, or ErrCampaignFull.
	IncrementSeats(ctx context.Context, campaignID string) (int, error)
	// DecrementSeats releases one seat, never going below zero.
	DecrementSeats(ctx context.Context, campaignID string) (int, error)
	CountSeatHolders(ctx context.Context, campaignID string) (int, error)

	CreateEnrollment(ctx context.Context, e *model.Enrollment) error
	GetEnrollment(ctx context.Context, id string) (*model.Enrollment, error)
	GetEnrollmentForUpdate(ctx context.Context, id string) (*model.Enrollment, error)
	FindActiveEnrollment(ctx context.Context, donorID, campaignID string) (*model.Enrollment, error)
	UpdateEnrollment(ctx context.Context, e *model.Enrollment) error
	ListEnrollments(ctx context.Context, f model.EnrollmentFilter) ([]model.Enrollment, int, error)

	CreateQuestionnaire(ctx context.Context, q *model.HealthQuestionnaire) error
	GetQuestionnaire(ctx context.Context, id string) (*model.HealthQuestionnaire, error)
	UpdateQuestionnaire(ctx context.Context, q *model.HealthQuestionnaire) error
	LatestQuestionnaire(ctx context.Context, donorID string) (*model.HealthQuestionnaire, error)
	ListQuestionnairesByDonor(ctx context.Context, donorID string) ([]model.HealthQuestionnaire, error)

	CreateDonation(ctx context.Context, d *model.Donation) error
	GetDonation(ctx context.Context, id string) (*model.Donation, error)
	GetDonationForUpdate(ctx context.Context, id string) (*model.Donation, error)
	UpdateDonation(ctx context.Context, d *model.Donation) error
	FindActiveDonation(ctx context.Context, enrollmentID string) (*model.Donation, error)
	ListDonationsByDonor(ctx context.Context, donorID string) ([]model.Donation, error)
	LastCompletedDonationDate(ctx context.Context, donorID string) (*time.Time, error)
}

// Store provides Queries plus a transactional boundary. Any error returned from
// fn discards every write made through the Queries it was given.
type Store interface {
	Queries
	RunInTx(ctx context.Context, fn func(q Queries) error) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// PageBounds clamps a page request and returns the effective limit and offset.
// Pages are zero-based.
func PageBounds(limit, page int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page < 0 {
		page = 0
	}
	return limit, page * limit
}
