package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kkkkikiki/blooddrive/internal/apperr"
	"github.com/kkkkikiki/blooddrive/internal/events"
	"github.com/kkkkikiki/blooddrive/internal/metrics"
	"github.com/kkkkikiki/blooddrive/internal/model"
	"github.com/kkkkikiki/blooddrive/internal/repository"
)

// ScheduleInput describes a donation appointment
type ScheduleInput struct {
	Date  time.Time `validate:"required"`
	Notes *string   `validate:"omitempty,max=1000"`

	Time model.Clock
}

// DonationService records donations and their completion
type DonationService struct {
	store repository.Store
	options
}

// NewDonationService creates a new donation service
func NewDonationService(store repository.Store, opts ...Option) *DonationService {
	return &DonationService{store: store, options: buildOptions(opts)}
}

// Schedule books a donation for a donor holding a CONFIRMED enrollment in an
// ACTIVE campaign. Seats are not touched: the enrollment already holds one.
func (s *DonationService) Schedule(ctx context.Context, donorID, campaignID string, in ScheduleInput) (donation *model.Donation, err error) {
	defer observe("donation_schedule", time.Now(), &err)
	defer func() {
		logOutcome(s.logger, "donation schedule rejected", err,
			zap.String("donor_id", donorID), zap.String("campaign_id", campaignID))
	}()

	if err := validateInput(in); err != nil {
		return nil, err
	}
	if _, err := requireRole(ctx, s.store, donorID, model.RoleDonor); err != nil {
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		campaign, err := q.GetCampaign(ctx, campaignID)
		if err != nil {
			return lookupErr(err, "campaign", campaignID, "campaign lookup")
		}
		if campaign.Status != model.CampaignActive {
			return apperr.New(apperr.CodeInvalidState, "campaign is %s and does not accept donations", campaign.Status)
		}

		enrollment, err := q.FindActiveEnrollment(ctx, donorID, campaignID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apperr.Infrastructure(err, "enrollment lookup")
		}
		if enrollment == nil || enrollment.Status != model.EnrollmentConfirmed {
			return apperr.New(apperr.CodeNotEnrolled, "a confirmed enrollment in this campaign is required to schedule a donation")
		}

		if _, err := q.FindActiveDonation(ctx, enrollment.ID); err == nil {
			return apperr.New(apperr.CodeAlreadyScheduled, "a donation is already scheduled for this enrollment")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return apperr.Infrastructure(err, "donation lookup")
		}

		d := &model.Donation{
			DonorID:       donorID,
			CampaignID:    campaignID,
			EnrollmentID:  enrollment.ID,
			ScheduledDate: model.DateOf(in.Date),
			ScheduledTime: in.Time,
			Status:        model.DonationScheduled,
			Notes:         in.Notes,
		}
		if err := q.CreateDonation(ctx, d); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.Wrap(err, apperr.CodeAlreadyScheduled, "a donation is already scheduled for this enrollment")
			}
			return apperr.Infrastructure(err, "donation create")
		}
		donation = d
		return nil
	})
	if err != nil {
		return nil, txErr(err, "donation schedule")
	}

	s.logger.Info("donation scheduled",
		zap.String("donation_id", donation.ID),
		zap.String("donor_id", donorID),
		zap.String("campaign_id", campaignID))
	return donation, nil
}

// Complete marks a SCHEDULED donation COMPLETED exactly once: it stamps today's
// date, a fresh certificate id and the collected volume, and credits the donor.
// The DonationCompleted event is published after commit.
func (s *DonationService) Complete(ctx context.Context, donationID string, quantityML int) (donation *model.Donation, err error) {
	defer observe("donation_complete", time.Now(), &err)

	var donationCount int
	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		d, err := q.GetDonationForUpdate(ctx, donationID)
		if err != nil {
			return lookupErr(err, "donation", donationID, "donation lookup")
		}
		switch d.Status {
		case model.DonationCompleted:
			return apperr.New(apperr.CodeAlreadyCompleted, "donation %s is already completed", donationID)
		case model.DonationCancelled:
			return apperr.New(apperr.CodeInvalidState, "a cancelled donation cannot be completed")
		}
		if quantityML <= 0 {
			return apperr.New(apperr.CodeInvalidQuantity, "quantity must be a positive number of millilitres, got %d", quantityML)
		}

		today := s.today()
		certificate := uuid.NewString()
		d.Status = model.DonationCompleted
		d.ActualDate = &today
		d.QuantityML = &quantityML
		d.CertificateID = &certificate
		if err := q.UpdateDonation(ctx, d); err != nil {
			return apperr.Infrastructure(err, "donation update")
		}

		if err := q.IncrementDonationCount(ctx, d.DonorID); err != nil {
			return lookupErr(err, "donor", d.DonorID, "donation count update")
		}
		donor, err := q.GetUser(ctx, d.DonorID)
		if err != nil {
			return lookupErr(err, "donor", d.DonorID, "donor lookup")
		}
		donationCount = donor.DonationCount
		donation = d
		return nil
	})
	if err != nil {
		logOutcome(s.logger, "donation complete rejected", err, zap.String("donation_id", donationID))
		return nil, txErr(err, "donation complete")
	}

	metrics.RecordDonationCompleted(quantityML)
	s.logger.Info("donation completed",
		zap.String("donation_id", donation.ID),
		zap.String("donor_id", donation.DonorID),
		zap.Int("quantity_ml", quantityML),
		zap.Int("donation_count", donationCount))

	s.publishCompleted(ctx, donation, donationCount)
	return donation, nil
}

// publishCompleted emits the event for a committed completion. A failure is
// logged and counted: the donation row stays the source of truth.
func (s *DonationService) publishCompleted(ctx context.Context, d *model.Donation, donationCount int) {
	event := events.DonationCompleted{
		DonationID:    d.ID,
		DonorID:       d.DonorID,
		CampaignID:    d.CampaignID,
		EnrollmentID:  d.EnrollmentID,
		QuantityML:    *d.QuantityML,
		ActualDate:    *d.ActualDate,
		CertificateID: *d.CertificateID,
		DonationCount: donationCount,
	}
	if err := s.publisher.PublishDonationCompleted(ctx, event); err != nil {
		metrics.RecordEventPublishFailure()
		s.logger.Error("failed to publish donation completed event",
			zap.String("donation_id", d.ID),
			zap.Error(err))
	}
}

// Cancel cancels the donor's own SCHEDULED donation
func (s *DonationService) Cancel(ctx context.Context, donationID, donorID string) (donation *model.Donation, err error) {
	defer observe("donation_cancel", time.Now(), &err)

	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		d, err := q.GetDonationForUpdate(ctx, donationID)
		if err != nil {
			return lookupErr(err, "donation", donationID, "donation lookup")
		}
		if d.DonorID != donorID {
			return apperr.New(apperr.CodeForbidden, "you can only cancel your own donation")
		}
		if d.Status != model.DonationScheduled {
			return apperr.New(apperr.CodeInvalidState, "donation is %s, only scheduled donations can be cancelled", d.Status)
		}
		d.Status = model.DonationCancelled
		if err := q.UpdateDonation(ctx, d); err != nil {
			return apperr.Infrastructure(err, "donation update")
		}
		donation = d
		return nil
	})
	if err != nil {
		return nil, txErr(err, "donation cancel")
	}
	return donation, nil
}

// Get returns one donation
func (s *DonationService) Get(ctx context.Context, donationID string) (*model.Donation, error) {
	d, err := s.store.GetDonation(ctx, donationID)
	if err != nil {
		return nil, lookupErr(err, "donation", donationID, "donation lookup")
	}
	return d, nil
}

// ListByDonor returns the donor's donations, latest first
func (s *DonationService) ListByDonor(ctx context.Context, donorID string) ([]model.Donation, error) {
	list, err := s.store.ListDonationsByDonor(ctx, donorID)
	if err != nil {
		return nil, apperr.Infrastructure(err, "donation list")
	}
	return list, nil
}
