package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kkkkikiki/blooddrive/internal/apperr"
	"github.com/kkkkikiki/blooddrive/internal/metrics"
	"github.com/kkkkikiki/blooddrive/internal/model"
	"github.com/kkkkikiki/blooddrive/internal/repository"
)

// Preferences are the optional details a donor attaches to an enrollment
type Preferences struct {
	PreferredTime *model.Clock
	Notes         *string `validate:"omitempty,max=1000"`
}

// EnrollmentService moves donors in and out of campaign seats. It is the only
// caller of the seat counter primitives.
type EnrollmentService struct {
	store repository.Store
	options
}

// NewEnrollmentService creates a new enrollment service
func NewEnrollmentService(store repository.Store, opts ...Option) *EnrollmentService {
	return &EnrollmentService{store: store, options: buildOptions(opts)}
}

// Enroll creates a PENDING enrollment holding a seat, or a WAITLIST enrollment
// when the campaign is full. Preconditions are checked in order: donor role,
// campaign existence, campaign ACTIVE, no active enrollment, ELIGIBLE verdict.
func (s *EnrollmentService) Enroll(ctx context.Context, donorID, campaignID string, prefs Preferences) (enrollment *model.Enrollment, err error) {
	defer observe("enroll", time.Now(), &err)
	defer func() {
		if err != nil {
			metrics.RecordEnrollmentOutcome(string(apperr.CodeOf(err)))
			logOutcome(s.logger, "enrollment rejected", err,
				zap.String("donor_id", donorID), zap.String("campaign_id", campaignID))
			return
		}
		metrics.RecordEnrollmentOutcome(string(enrollment.Status))
	}()

	if err := validateInput(prefs); err != nil {
		return nil, err
	}
	if _, err := requireRole(ctx, s.store, donorID, model.RoleDonor); err != nil {
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		campaign, err := q.GetCampaignForUpdate(ctx, campaignID)
		if err != nil {
			return lookupErr(err, "campaign", campaignID, "campaign lookup")
		}
		if campaign.Status != model.CampaignActive {
			return apperr.New(apperr.CodeInvalidState, "campaign is %s and does not accept enrollments", campaign.Status)
		}

		if _, err := q.FindActiveEnrollment(ctx, donorID, campaignID); err == nil {
			return apperr.New(apperr.CodeAlreadyEnrolled, "you are already enrolled in this campaign")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return apperr.Infrastructure(err, "enrollment lookup")
		}

		if err := checkEligible(ctx, q, donorID); err != nil {
			return err
		}

		status := model.EnrollmentPending
		if _, err := q.IncrementSeats(ctx, campaignID); err != nil {
			if !errors.Is(err, repository.ErrCampaignFull) {
				return apperr.Infrastructure(err, "seat reservation")
			}
			status = model.EnrollmentWaitlist
		}

		e := &model.Enrollment{
			DonorID:       donorID,
			CampaignID:    campaignID,
			Status:        status,
			PreferredTime: prefs.PreferredTime,
			Notes:         prefs.Notes,
		}
		if err := q.CreateEnrollment(ctx, e); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.Wrap(err, apperr.CodeAlreadyEnrolled, "you are already enrolled in this campaign")
			}
			return apperr.Infrastructure(err, "enrollment create")
		}
		enrollment = e
		return nil
	})
	if err != nil {
		return nil, txErr(err, "enroll")
	}

	s.logger.Info("donor enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("donor_id", donorID),
		zap.String("campaign_id", campaignID),
		zap.String("status", string(enrollment.Status)))
	return enrollment, nil
}

// checkEligible requires the donor's most recent questionnaire to be ELIGIBLE.
func checkEligible(ctx context.Context, q repository.Queries, donorID string) error {
	latest, err := q.LatestQuestionnaire(ctx, donorID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Infrastructure(err, "questionnaire lookup")
	}
	if latest == nil || latest.EligibilityStatus != model.Eligible {
		return apperr.New(apperr.CodeNotEligible,
			"you are not cleared to donate yet: complete your health questionnaire and make sure it is approved")
	}
	return nil
}

// Cancel cancels the donor's own enrollment, releasing its seat if it held one.
// Cancelling an already cancelled enrollment is a no-op.
func (s *EnrollmentService) Cancel(ctx context.Context, enrollmentID, donorID string) (enrollment *model.Enrollment, err error) {
	defer observe("enrollment_cancel", time.Now(), &err)

	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		e, err := q.GetEnrollmentForUpdate(ctx, enrollmentID)
		if err != nil {
			return lookupErr(err, "enrollment", enrollmentID, "enrollment lookup")
		}
		if e.DonorID != donorID {
			return apperr.New(apperr.CodeForbidden, "you can only cancel your own enrollment")
		}
		enrollment = e
		if e.Status == model.EnrollmentCancelled {
			return nil
		}

		if e.Status.HoldsSeat() {
			if _, err := q.DecrementSeats(ctx, e.CampaignID); err != nil {
				return apperr.Infrastructure(err, "seat release")
			}
		}
		e.Status = model.EnrollmentCancelled
		if err := q.UpdateEnrollment(ctx, e); err != nil {
			return apperr.Infrastructure(err, "enrollment update")
		}
		return nil
	})
	if err != nil {
		return nil, txErr(err, "enrollment cancel")
	}

	s.logger.Info("enrollment cancelled",
		zap.String("enrollment_id", enrollmentID),
		zap.String("donor_id", donorID))
	return enrollment, nil
}

// Confirm confirms an enrollment on behalf of the campaign organizer. A WAITLIST
// enrollment takes a seat first and fails with NoSeatsAvailable when none is free.
func (s *EnrollmentService) Confirm(ctx context.Context, enrollmentID, organizerID string) (enrollment *model.Enrollment, err error) {
	defer observe("enrollment_confirm", time.Now(), &err)

	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		e, err := q.GetEnrollmentForUpdate(ctx, enrollmentID)
		if err != nil {
			return lookupErr(err, "enrollment", enrollmentID, "enrollment lookup")
		}
		campaign, err := q.GetCampaignForUpdate(ctx, e.CampaignID)
		if err != nil {
			return lookupErr(err, "campaign", e.CampaignID, "campaign lookup")
		}
		if campaign.OrganizerID == nil {
			return apperr.New(apperr.CodeForbidden, "campaign has no organizer")
		}
		if !campaign.IsOrganizedBy(organizerID) {
			return apperr.New(apperr.CodeForbidden, "only the campaign organizer can confirm enrollments")
		}
		if campaign.Status.IsTerminal() {
			return apperr.New(apperr.CodeInvalidState, "campaign is %s and accepts no further confirmations", campaign.Status)
		}

		switch e.Status {
		case model.EnrollmentConfirmed:
			return apperr.New(apperr.CodeAlreadyConfirmed, "enrollment is already confirmed")
		case model.EnrollmentCancelled:
			return apperr.New(apperr.CodeInvalidState, "a cancelled enrollment cannot be confirmed")
		case model.EnrollmentWaitlist:
			if _, err := q.IncrementSeats(ctx, e.CampaignID); err != nil {
				if errors.Is(err, repository.ErrCampaignFull) {
					return apperr.Wrap(err, apperr.CodeNoSeatsAvailable, "no seats available to confirm this enrollment")
				}
				return apperr.Infrastructure(err, "seat reservation")
			}
		}

		e.Status = model.EnrollmentConfirmed
		if err := q.UpdateEnrollment(ctx, e); err != nil {
			return apperr.Infrastructure(err, "enrollment update")
		}
		enrollment = e
		return nil
	})
	if err != nil {
		logOutcome(s.logger, "enrollment confirm rejected", err, zap.String("enrollment_id", enrollmentID))
		return nil, txErr(err, "enrollment confirm")
	}

	s.logger.Info("enrollment confirmed",
		zap.String("enrollment_id", enrollmentID),
		zap.String("organizer_id", organizerID))
	return enrollment, nil
}

// UpdatePending changes the preferences of the donor's own PENDING enrollment
func (s *EnrollmentService) UpdatePending(ctx context.Context, enrollmentID, donorID string, prefs Preferences) (enrollment *model.Enrollment, err error) {
	defer observe("enrollment_update", time.Now(), &err)

	if err := validateInput(prefs); err != nil {
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		e, err := q.GetEnrollmentForUpdate(ctx, enrollmentID)
		if err != nil {
			return lookupErr(err, "enrollment", enrollmentID, "enrollment lookup")
		}
		if e.DonorID != donorID {
			return apperr.New(apperr.CodeForbidden, "you can only edit your own enrollment")
		}
		if e.Status != model.EnrollmentPending {
			return apperr.New(apperr.CodeInvalidState, "only pending enrollments can be edited")
		}
		if prefs.PreferredTime != nil {
			e.PreferredTime = prefs.PreferredTime
		}
		if prefs.Notes != nil {
			e.Notes = prefs.Notes
		}
		if err := q.UpdateEnrollment(ctx, e); err != nil {
			return apperr.Infrastructure(err, "enrollment update")
		}
		enrollment = e
		return nil
	})
	if err != nil {
		return nil, txErr(err, "enrollment update")
	}
	return enrollment, nil
}

// Get returns one enrollment
func (s *EnrollmentService) Get(ctx context.Context, enrollmentID string) (*model.Enrollment, error) {
	e, err := s.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, lookupErr(err, "enrollment", enrollmentID, "enrollment lookup")
	}
	return e, nil
}

// List returns one page of enrollments, newest first, and the total match count
func (s *EnrollmentService) List(ctx context.Context, filter model.EnrollmentFilter) ([]model.Enrollment, int, error) {
	list, total, err := s.store.ListEnrollments(ctx, filter)
	if err != nil {
		return nil, 0, apperr.Infrastructure(err, "enrollment list")
	}
	return list, total, nil
}
