package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// queries binds every repository to one executor.
type queries struct {
	*UserRepository
	*CampaignRepository
	*EnrollmentRepository
	*QuestionnaireRepository
	*DonationRepository
}

func newQueries(db DBExecutor) *queries {
	return &queries{
		UserRepository:          NewUserRepository(db),
		CampaignRepository:      NewCampaignRepository(db),
		EnrollmentRepository:    NewEnrollmentRepository(db),
		QuestionnaireRepository: NewQuestionnaireRepository(db),
		DonationRepository:      NewDonationRepository(db),
	}
}

// PostgresStore is the PostgreSQL-backed Store.
type PostgresStore struct {
	*queries
	db *sqlx.DB
}

// NewPostgresStore creates a store over an open connection pool
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{queries: newQueries(db), db: db}
}

// RunInTx runs fn inside a database transaction. The transaction is committed
// only if fn returns nil.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newQueries(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
