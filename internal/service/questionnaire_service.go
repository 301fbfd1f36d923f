package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kkkkikiki/blooddrive/internal/apperr"
	"github.com/kkkkikiki/blooddrive/internal/eligibility"
	"github.com/kkkkikiki/blooddrive/internal/metrics"
	"github.com/kkkkikiki/blooddrive/internal/model"
	"github.com/kkkkikiki/blooddrive/internal/repository"
)

// QuestionnaireService stores health questionnaires and their verdicts
type QuestionnaireService struct {
	store repository.Store
	options
}

// NewQuestionnaireService creates a new questionnaire service
func NewQuestionnaireService(store repository.Store, opts ...Option) *QuestionnaireService {
	return &QuestionnaireService{store: store, options: buildOptions(opts)}
}

// Submit evaluates the donor's answers and stores them with the verdict
func (s *QuestionnaireService) Submit(ctx context.Context, donorID string, answers model.HealthAnswers) (questionnaire *model.HealthQuestionnaire, err error) {
	defer observe("questionnaire_submit", time.Now(), &err)

	if err := s.validateAnswers(answers); err != nil {
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		if _, err := q.GetUser(ctx, donorID); err != nil {
			return lookupErr(err, "donor", donorID, "donor lookup")
		}
		effective, err := s.withRecordedDonation(ctx, q, donorID, answers)
		if err != nil {
			return err
		}

		hq := &model.HealthQuestionnaire{DonorID: donorID, HealthAnswers: effective}
		s.applyVerdict(hq)
		if err := q.CreateQuestionnaire(ctx, hq); err != nil {
			return apperr.Infrastructure(err, "questionnaire create")
		}
		questionnaire = hq
		return nil
	})
	if err != nil {
		return nil, txErr(err, "questionnaire submit")
	}

	s.logger.Info("questionnaire evaluated",
		zap.String("questionnaire_id", questionnaire.ID),
		zap.String("donor_id", donorID),
		zap.String("status", string(questionnaire.EligibilityStatus)))
	return questionnaire, nil
}

// Update replaces the answers of an existing questionnaire and re-evaluates it
// from scratch
func (s *QuestionnaireService) Update(ctx context.Context, questionnaireID string, answers model.HealthAnswers) (questionnaire *model.HealthQuestionnaire, err error) {
	defer observe("questionnaire_update", time.Now(), &err)

	if err := s.validateAnswers(answers); err != nil {
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		hq, err := q.GetQuestionnaire(ctx, questionnaireID)
		if err != nil {
			return lookupErr(err, "questionnaire", questionnaireID, "questionnaire lookup")
		}
		effective, err := s.withRecordedDonation(ctx, q, hq.DonorID, answers)
		if err != nil {
			return err
		}

		hq.HealthAnswers = effective
		s.applyVerdict(hq)
		if err := q.UpdateQuestionnaire(ctx, hq); err != nil {
			return apperr.Infrastructure(err, "questionnaire update")
		}
		questionnaire = hq
		return nil
	})
	if err != nil {
		return nil, txErr(err, "questionnaire update")
	}
	return questionnaire, nil
}

// withRecordedDonation supplies the feedback edge: a completed donation on
// record that is later than the submitted date replaces it.
func (s *QuestionnaireService) withRecordedDonation(ctx context.Context, q repository.Queries, donorID string, a model.HealthAnswers) (model.HealthAnswers, error) {
	recorded, err := q.LastCompletedDonationDate(ctx, donorID)
	if err != nil {
		return a, apperr.Infrastructure(err, "last donation lookup")
	}
	if recorded == nil {
		return a, nil
	}
	if a.LastDonationDate == nil || recorded.After(*a.LastDonationDate) {
		last := model.DateOf(*recorded)
		a.LastDonationDate = &last
		a.HasDonatedBefore = true
	}
	return a, nil
}

// applyVerdict writes the derived fields from a fresh evaluation.
func (s *QuestionnaireService) applyVerdict(hq *model.HealthQuestionnaire) {
	verdict := eligibility.Evaluate(hq.HealthAnswers, s.today())
	hq.EligibilityStatus = verdict.Status
	hq.IneligibilityReasons = verdict.JoinedReasons()
	hq.NextEligibleDate = verdict.NextEligibleDate
	metrics.RecordEligibilityRules(verdict.Triggered)
}

func (s *QuestionnaireService) validateAnswers(a model.HealthAnswers) error {
	if err := validateInput(a); err != nil {
		return err
	}
	if a.LastDonationDate != nil && model.DateOf(*a.LastDonationDate).After(s.today()) {
		return apperr.New(apperr.CodeInvalidInput, "last donation date cannot be in the future")
	}
	return nil
}

// Get returns one questionnaire
func (s *QuestionnaireService) Get(ctx context.Context, questionnaireID string) (*model.HealthQuestionnaire, error) {
	hq, err := s.store.GetQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, lookupErr(err, "questionnaire", questionnaireID, "questionnaire lookup")
	}
	return hq, nil
}

// ListByDonor returns the donor's questionnaires, newest first
func (s *QuestionnaireService) ListByDonor(ctx context.Context, donorID string) ([]model.HealthQuestionnaire, error) {
	list, err := s.store.ListQuestionnairesByDonor(ctx, donorID)
	if err != nil {
		return nil, apperr.Infrastructure(err, "questionnaire list")
	}
	return list, nil
}

// Latest returns the donor's most recent questionnaire
func (s *QuestionnaireService) Latest(ctx context.Context, donorID string) (*model.HealthQuestionnaire, error) {
	hq, err := s.store.LatestQuestionnaire(ctx, donorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Wrap(err, apperr.CodeNotFound, "donor %s has no questionnaire", donorID)
		}
		return nil, apperr.Infrastructure(err, "questionnaire lookup")
	}
	return hq, nil
}

// NextEligibleDate is the latest questionnaire's last donation date plus the
// cooldown, or nil when the donor has no recorded donation.
func (s *QuestionnaireService) NextEligibleDate(ctx context.Context, donorID string) (*time.Time, error) {
	hq, err := s.Latest(ctx, donorID)
	if err != nil {
		return nil, err
	}
	if hq.LastDonationDate == nil {
		return nil, nil
	}
	next := eligibility.NextEligibleDate(*hq.LastDonationDate)
	return &next, nil
}
