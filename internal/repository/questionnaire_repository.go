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

const questionnaireColumns = `
	id, donor_id, weight_kg, height_cm, blood_type, rh_factor, last_donation_date,
	has_donated_before, has_chronic_disease, is_taking_medication, had_recent_surgery,
	had_recent_tattoo_piercing, is_pregnant_or_breastfeeding, had_recent_travel_to_endemic_areas,
	has_risky_behavior, had_covid_recently, received_vaccine_recently, additional_notes,
	eligibility_status, ineligibility_reasons, next_eligible_date, created_at, updated_at`

// QuestionnaireRepository handles health questionnaire data operations
type QuestionnaireRepository struct {
	db DBExecutor
}

// NewQuestionnaireRepository creates a new questionnaire repository
func NewQuestionnaireRepository(db DBExecutor) *QuestionnaireRepository {
	return &QuestionnaireRepository{db: db}
}

// CreateQuestionnaire inserts a questionnaire together with its verdict
func (r *QuestionnaireRepository) CreateQuestionnaire(ctx context.Context, q *model.HealthQuestionnaire) error {
	query := `
		INSERT INTO health_questionnaires (` + questionnaireColumns + `)
		VALUES (
			:id, :donor_id, :weight_kg, :height_cm, :blood_type, :rh_factor, :last_donation_date,
			:has_donated_before, :has_chronic_disease, :is_taking_medication, :had_recent_surgery,
			:had_recent_tattoo_piercing, :is_pregnant_or_breastfeeding, :had_recent_travel_to_endemic_areas,
			:has_risky_behavior, :had_covid_recently, :received_vaccine_recently, :additional_notes,
			:eligibility_status, :ineligibility_reasons, :next_eligible_date, :created_at, :updated_at
		)
	`

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	now := time.Now()
	q.CreatedAt = now
	q.UpdatedAt = now

	if _, err := r.db.NamedExecContext(ctx, query, q); err != nil {
		return fmt.Errorf("failed to create questionnaire: %w", err)
	}
	return nil
}

// GetQuestionnaire retrieves a questionnaire by ID
func (r *QuestionnaireRepository) GetQuestionnaire(ctx context.Context, id string) (*model.HealthQuestionnaire, error) {
	query := `SELECT ` + questionnaireColumns + ` FROM health_questionnaires WHERE id = $1`

	var q model.HealthQuestionnaire
	if err := r.db.GetContext(ctx, &q, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("questionnaire %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get questionnaire: %w", err)
	}
	return &q, nil
}

// UpdateQuestionnaire overwrites answers and verdict
func (r *QuestionnaireRepository) UpdateQuestionnaire(ctx context.Context, q *model.HealthQuestionnaire) error {
	query := `
		UPDATE health_questionnaires
		SET weight_kg = :weight_kg, height_cm = :height_cm, blood_type = :blood_type,
			rh_factor = :rh_factor, last_donation_date = :last_donation_date,
			has_donated_before = :has_donated_before, has_chronic_disease = :has_chronic_disease,
			is_taking_medication = :is_taking_medication, had_recent_surgery = :had_recent_surgery,
			had_recent_tattoo_piercing = :had_recent_tattoo_piercing,
			is_pregnant_or_breastfeeding = :is_pregnant_or_breastfeeding,
			had_recent_travel_to_endemic_areas = :had_recent_travel_to_endemic_areas,
			has_risky_behavior = :has_risky_behavior, had_covid_recently = :had_covid_recently,
			received_vaccine_recently = :received_vaccine_recently, additional_notes = :additional_notes,
			eligibility_status = :eligibility_status, ineligibility_reasons = :ineligibility_reasons,
			next_eligible_date = :next_eligible_date, updated_at = :updated_at
		WHERE id = :id
	`

	q.UpdatedAt = time.Now()
	result, err := r.db.NamedExecContext(ctx, query, q)
	if err != nil {
		return fmt.Errorf("failed to update questionnaire: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("questionnaire %s: %w", q.ID, ErrNotFound)
	}
	return nil
}

// LatestQuestionnaire returns the donor's most recent questionnaire by creation time
func (r *QuestionnaireRepository) LatestQuestionnaire(ctx context.Context, donorID string) (*model.HealthQuestionnaire, error) {
	query := `SELECT ` + questionnaireColumns + `
		FROM health_questionnaires
		WHERE donor_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var q model.HealthQuestionnaire
	if err := r.db.GetContext(ctx, &q, query, donorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest questionnaire: %w", err)
	}
	return &q, nil
}

// ListQuestionnairesByDonor returns the donor's questionnaire history, newest first
func (r *QuestionnaireRepository) ListQuestionnairesByDonor(ctx context.Context, donorID string) ([]model.HealthQuestionnaire, error) {
	query := `SELECT ` + questionnaireColumns + `
		FROM health_questionnaires
		WHERE donor_id = $1
		ORDER BY created_at DESC
	`

	questionnaires := []model.HealthQuestionnaire{}
	if err := r.db.SelectContext(ctx, &questionnaires, query, donorID); err != nil {
		return nil, fmt.Errorf("failed to list questionnaires: %w", err)
	}
	return questionnaires, nil
}
