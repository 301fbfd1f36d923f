package service

import (
	"errors"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kkkkikiki/blooddrive/internal/apperr"
	"github.com/kkkkikiki/blooddrive/internal/events"
	"github.com/kkkkikiki/blooddrive/internal/model"
)

func (s *EngineSuite) scheduled(c *model.Campaign) *model.Donation {
	s.confirmedEnrollment(c)
	d, err := s.donations.Schedule(s.ctx, donorID, c.ID, ScheduleInput{Date: campaignDay, Time: model.MustClock("10:00")})
	s.Require().NoError(err)
	return d
}

func (s *EngineSuite) TestSchedule_RequiresConfirmedEnrollment() {
	c := s.activeCampaign(3)

	_, err := s.donations.Schedule(s.ctx, donorID, c.ID, ScheduleInput{Date: campaignDay, Time: model.MustClock("10:00")})
	s.ErrorIs(err, apperr.ErrNotEnrolled, "no enrollment at all")

	s.makeEligible(donorID)
	e, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})
	s.Require().NoError(err)
	_, err = s.donations.Schedule(s.ctx, donorID, c.ID, ScheduleInput{Date: campaignDay, Time: model.MustClock("10:00")})
	s.ErrorIs(err, apperr.ErrNotEnrolled, "a pending enrollment is not enough")

	_, err = s.enrollments.Confirm(s.ctx, e.ID, organizerID)
	s.Require().NoError(err)
	d, err := s.donations.Schedule(s.ctx, donorID, c.ID, ScheduleInput{Date: campaignDay, Time: model.MustClock("10:00")})
	s.Require().NoError(err)
	s.Equal(model.DonationScheduled, d.Status)
	s.Equal(e.ID, d.EnrollmentID)
	s.Equal(1, s.seats(c.ID), "scheduling never touches seats")
}

func (s *EngineSuite) TestSchedule_Guards() {
	c := s.activeCampaign(3)
	s.scheduled(c)

	s.Run("second schedule for the same enrollment", func() {
		_, err := s.donations.Schedule(s.ctx, donorID, c.ID, ScheduleInput{Date: campaignDay, Time: model.MustClock("11:00")})
		s.ErrorIs(err, apperr.ErrAlreadyScheduled)
	})

	s.Run("organizer cannot schedule", func() {
		_, err := s.donations.Schedule(s.ctx, organizerID, c.ID, ScheduleInput{Date: campaignDay})
		s.ErrorIs(err, apperr.ErrForbidden)
	})

	s.Run("date is required", func() {
		_, err := s.donations.Schedule(s.ctx, donorID, c.ID, ScheduleInput{})
		s.ErrorIs(err, apperr.ErrInvalidInput)
	})

	s.Run("unknown campaign", func() {
		_, err := s.donations.Schedule(s.ctx, donorID, "missing", ScheduleInput{Date: campaignDay})
		s.ErrorIs(err, apperr.ErrNotFound)
	})
}

func (s *EngineSuite) TestComplete_RejectsNonPositiveQuantity() {
	c := s.activeCampaign(3)
	d := s.scheduled(c)

	for _, qty := range []int{0, -450} {
		_, err := s.donations.Complete(s.ctx, d.ID, qty)
		s.ErrorIs(err, apperr.ErrInvalidQuantity)
	}

	stored, err := s.donations.Get(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(model.DonationScheduled, stored.Status)
}

func (s *EngineSuite) TestComplete_FailureOrder() {
	c := s.activeCampaign(3)
	d := s.scheduled(c)

	_, err := s.donations.Complete(s.ctx, "missing", 0)
	s.ErrorIs(err, apperr.ErrNotFound, "an unknown donation is reported before the quantity")

	_, err = s.donations.Complete(s.ctx, d.ID, 450)
	s.Require().NoError(err)

	_, err = s.donations.Complete(s.ctx, d.ID, 0)
	s.ErrorIs(err, apperr.ErrAlreadyCompleted, "a completed donation is reported before the quantity")
}

func (s *EngineSuite) TestComplete_ExactlyOnce() {
	c := s.activeCampaign(3)
	d := s.scheduled(c)

	first, err := s.donations.Complete(s.ctx, d.ID, 450)
	s.Require().NoError(err)
	s.Require().NotNil(first.ActualDate)
	s.Equal(model.DateOf(fixedNow), *first.ActualDate)

	_, err = s.donations.Complete(s.ctx, d.ID, 300)
	s.ErrorIs(err, apperr.ErrAlreadyCompleted)

	stored, err := s.donations.Get(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(450, *stored.QuantityML)
	s.Equal(*first.CertificateID, *stored.CertificateID)

	donor, err := s.store.GetUser(s.ctx, donorID)
	s.Require().NoError(err)
	s.Equal(1, donor.DonationCount, "credited once")
}

func (s *EngineSuite) TestComplete_PublishesEvent() {
	c := s.activeCampaign(3)
	d := s.scheduled(c)

	publisher := &mockPublisher{}
	publisher.On("PublishDonationCompleted", mock.Anything, mock.MatchedBy(func(e events.DonationCompleted) bool {
		return e.DonationID == d.ID && e.DonorID == donorID && e.QuantityML == 470 && e.DonationCount == 1
	})).Return(nil).Once()
	s.publisher = publisher
	s.wire(s.store)

	_, err := s.donations.Complete(s.ctx, d.ID, 470)

	s.Require().NoError(err)
	publisher.AssertExpectations(s.T())
}

func (s *EngineSuite) TestComplete_PublishFailureIsNotReturned() {
	c := s.activeCampaign(3)
	d := s.scheduled(c)

	publisher := &mockPublisher{}
	publisher.On("PublishDonationCompleted", mock.Anything, mock.Anything).Return(errors.New("stream unavailable")).Once()
	s.publisher = publisher
	s.wire(s.store)

	completed, err := s.donations.Complete(s.ctx, d.ID, 450)

	s.Require().NoError(err)
	s.Equal(model.DonationCompleted, completed.Status)
	publisher.AssertExpectations(s.T())
}

func (s *EngineSuite) TestDonationCancel() {
	c := s.activeCampaign(3)
	d := s.scheduled(c)

	_, err := s.donations.Cancel(s.ctx, d.ID, otherDonor)
	s.ErrorIs(err, apperr.ErrForbidden)

	cancelled, err := s.donations.Cancel(s.ctx, d.ID, donorID)
	s.Require().NoError(err)
	s.Equal(model.DonationCancelled, cancelled.Status)

	_, err = s.donations.Complete(s.ctx, d.ID, 450)
	s.ErrorIs(err, apperr.ErrInvalidState)

	_, err = s.donations.Cancel(s.ctx, d.ID, donorID)
	s.ErrorIs(err, apperr.ErrInvalidState)

	again, err := s.donations.Schedule(s.ctx, donorID, c.ID, ScheduleInput{Date: campaignDay, Time: model.MustClock("11:30")})
	s.Require().NoError(err, "a cancelled donation frees the enrollment")
	s.NotEqual(d.ID, again.ID)
}

func (s *EngineSuite) TestListByDonor() {
	c := s.activeCampaign(3)
	d := s.scheduled(c)
	_, err := s.donations.Complete(s.ctx, d.ID, 450)
	s.Require().NoError(err)

	list, err := s.donations.ListByDonor(s.ctx, donorID)
	s.Require().NoError(err)
	s.Len(list, 1)

	none, err := s.donations.ListByDonor(s.ctx, otherDonor)
	s.Require().NoError(err)
	s.Empty(none)

	last, err := s.store.LastCompletedDonationDate(s.ctx, donorID)
	s.Require().NoError(err)
	s.Require().NotNil(last)
	s.True(last.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
}
