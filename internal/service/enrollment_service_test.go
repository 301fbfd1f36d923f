package service

import (
	"context"
	"errors"
	"sync"

	"github.com/kkkkikiki/blooddrive/internal/apperr"
	"github.com/kkkkikiki/blooddrive/internal/model"
	"github.com/kkkkikiki/blooddrive/internal/repository"
)

func (s *EngineSuite) TestEnroll_FreeSeatGivesPending() {
	c := s.activeCampaign(2)
	s.fillCampaign(c, 1)
	s.makeEligible(donorID)
	preferred := model.MustClock("10:15")

	e, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{PreferredTime: &preferred})

	s.Require().NoError(err)
	s.Equal(model.EnrollmentPending, e.Status)
	s.Equal(&preferred, e.PreferredTime)
	s.Equal(2, s.seats(c.ID), "exactly one seat taken")
}

func (s *EngineSuite) TestEnroll_FullCampaignGivesWaitlist() {
	c := s.activeCampaign(2)
	s.fillCampaign(c, 2)
	s.makeEligible(donorID)

	e, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})

	s.Require().NoError(err)
	s.Equal(model.EnrollmentWaitlist, e.Status)
	s.Equal(2, s.seats(c.ID), "counter untouched")
}

func (s *EngineSuite) TestEnroll_PreconditionOrder() {
	c := s.activeCampaign(5)

	s.Run("non-donor is forbidden before anything else", func() {
		_, err := s.enrollments.Enroll(s.ctx, organizerID, "missing", Preferences{})
		s.ErrorIs(err, apperr.ErrForbidden)
	})

	s.Run("unknown donor is forbidden", func() {
		_, err := s.enrollments.Enroll(s.ctx, "ghost", c.ID, Preferences{})
		s.ErrorIs(err, apperr.ErrForbidden)
	})

	s.Run("missing campaign", func() {
		_, err := s.enrollments.Enroll(s.ctx, donorID, "missing", Preferences{})
		s.ErrorIs(err, apperr.ErrNotFound)
	})

	s.Run("no questionnaire", func() {
		_, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})
		s.ErrorIs(err, apperr.ErrNotEligible)
		s.Contains(err.Error(), "complete your health questionnaire")
	})

	s.Run("latest questionnaire not eligible", func() {
		s.makeEligible(donorID)
		heavyless := healthyInput
		heavyless.WeightKg = 45
		_, err := s.questionnaires.Submit(s.ctx, donorID, heavyless)
		s.Require().NoError(err)

		_, err = s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})
		s.ErrorIs(err, apperr.ErrNotEligible)
		s.Equal(0, s.seats(c.ID))
	})

	s.Run("already enrolled beats eligibility", func() {
		s.makeEligible(donorID)
		_, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})
		s.Require().NoError(err)

		_, err = s.questionnaires.Submit(s.ctx, donorID, model.HealthAnswers{
			WeightKg: 40, HeightCm: 160, BloodType: model.BloodTypeA, RhFactor: model.RhNegative,
		})
		s.Require().NoError(err)

		_, err = s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})
		s.ErrorIs(err, apperr.ErrAlreadyEnrolled)
		s.Equal(1, s.seats(c.ID))
	})
}

func (s *EngineSuite) TestEnroll_InactiveCampaign() {
	c := s.activeCampaign(5)
	_, err := s.campaigns.Cancel(s.ctx, c.ID, organizerID)
	s.Require().NoError(err)
	s.makeEligible(donorID)

	_, err = s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})

	s.ErrorIs(err, apperr.ErrInvalidState)
}

func (s *EngineSuite) TestEnroll_AfterCancelDonorMayEnrollAgain() {
	c := s.activeCampaign(5)
	s.makeEligible(donorID)
	first, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})
	s.Require().NoError(err)
	_, err = s.enrollments.Cancel(s.ctx, first.ID, donorID)
	s.Require().NoError(err)

	second, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})

	s.Require().NoError(err)
	s.NotEqual(first.ID, second.ID)
	s.Equal(1, s.seats(c.ID))
}

func (s *EngineSuite) TestEnroll_ConcurrentDonorsNeverOverbook() {
	c := s.activeCampaign(3)
	donors := make([]string, 20)
	for i := range donors {
		donors[i] = "load-donor-" + string(rune('a'+i))
		s.store.PutUser(model.User{ID: donors[i], Role: model.RoleDonor})
		s.makeEligible(donors[i])
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[model.EnrollmentStatus]int{}
	)
	for _, id := range donors {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			e, err := s.enrollments.Enroll(context.Background(), id, c.ID, Preferences{})
			if err != nil {
				return
			}
			mu.Lock()
			statuses[e.Status]++
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	s.Equal(3, statuses[model.EnrollmentPending])
	s.Equal(17, statuses[model.EnrollmentWaitlist])
	s.Equal(3, s.seats(c.ID))
}

func (s *EngineSuite) TestCancel_ReleasesSeatOnlyWhenHeld() {
	c := s.activeCampaign(1)

	s.makeEligible(donorID)
	held, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})
	s.Require().NoError(err)
	s.makeEligible(otherDonor)
	waiting, err := s.enrollments.Enroll(s.ctx, otherDonor, c.ID, Preferences{})
	s.Require().NoError(err)
	s.Require().Equal(model.EnrollmentWaitlist, waiting.Status)

	_, err = s.enrollments.Cancel(s.ctx, waiting.ID, otherDonor)
	s.Require().NoError(err)
	s.Equal(1, s.seats(c.ID), "waitlist cancel leaves the counter")

	_, err = s.enrollments.Confirm(s.ctx, held.ID, organizerID)
	s.Require().NoError(err)
	cancelled, err := s.enrollments.Cancel(s.ctx, held.ID, donorID)
	s.Require().NoError(err)
	s.Equal(model.EnrollmentCancelled, cancelled.Status)
	s.Equal(0, s.seats(c.ID), "confirmed cancel releases the seat")

	again, err := s.enrollments.Cancel(s.ctx, held.ID, donorID)
	s.Require().NoError(err, "cancelling twice is a no-op")
	s.Equal(model.EnrollmentCancelled, again.Status)
	s.Equal(0, s.seats(c.ID))
}

func (s *EngineSuite) TestCancel_FloorsCounterAtZero() {
	c := s.activeCampaign(2)
	s.makeEligible(donorID)
	e, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})
	s.Require().NoError(err)
	s.fillCampaign(c, 0)

	_, err = s.enrollments.Cancel(s.ctx, e.ID, donorID)

	s.Require().NoError(err)
	s.Equal(0, s.seats(c.ID))
}

func (s *EngineSuite) TestCancel_OnlyOwner() {
	c := s.activeCampaign(2)
	s.makeEligible(donorID)
	e, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})
	s.Require().NoError(err)

	_, err = s.enrollments.Cancel(s.ctx, e.ID, otherDonor)

	s.ErrorIs(err, apperr.ErrForbidden)
	s.Equal(1, s.seats(c.ID))
}

func (s *EngineSuite) TestConfirm_WaitlistPromotion() {
	c := s.activeCampaign(1)
	s.fillCampaign(c, 1)
	s.makeEligible(donorID)
	e, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})
	s.Require().NoError(err)
	s.Require().Equal(model.EnrollmentWaitlist, e.Status)

	_, err = s.enrollments.Confirm(s.ctx, e.ID, organizerID)
	s.ErrorIs(err, apperr.ErrNoSeatsAvailable)
	s.Equal(apperr.KindCapacity, apperr.KindOf(err))
	unchanged, err := s.enrollments.Get(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(model.EnrollmentWaitlist, unchanged.Status)
	s.Equal(1, s.seats(c.ID))

	s.fillCampaign(c, 0)
	confirmed, err := s.enrollments.Confirm(s.ctx, e.ID, organizerID)
	s.Require().NoError(err)
	s.Equal(model.EnrollmentConfirmed, confirmed.Status)
	s.Equal(1, s.seats(c.ID), "promotion takes a seat")

	_, err = s.enrollments.Confirm(s.ctx, e.ID, organizerID)
	s.ErrorIs(err, apperr.ErrAlreadyConfirmed)
}

func (s *EngineSuite) TestConfirm_Guards() {
	c := s.activeCampaign(3)
	s.makeEligible(donorID)
	e, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})
	s.Require().NoError(err)

	_, err = s.enrollments.Confirm(s.ctx, e.ID, otherOrg)
	s.ErrorIs(err, apperr.ErrForbidden)

	_, err = s.enrollments.Cancel(s.ctx, e.ID, donorID)
	s.Require().NoError(err)
	_, err = s.enrollments.Confirm(s.ctx, e.ID, organizerID)
	s.ErrorIs(err, apperr.ErrInvalidState)

	_, err = s.enrollments.Confirm(s.ctx, "missing", organizerID)
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *EngineSuite) TestConfirm_TerminalCampaignKeepsWaitlist() {
	for _, finish := range []struct {
		name string
		fn   func(cs *CampaignService, ctx context.Context, campaignID, organizerID string) (*model.Campaign, error)
	}{
		{"completed", (*CampaignService).Complete},
		{"cancelled", (*CampaignService).Cancel},
	} {
		s.Run(finish.name, func() {
			c := s.activeCampaign(1)
			s.fillCampaign(c, 1)
			s.makeEligible(donorID)
			e, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})
			s.Require().NoError(err)
			s.Require().Equal(model.EnrollmentWaitlist, e.Status)
			s.fillCampaign(c, 0)

			_, err = finish.fn(s.campaigns, s.ctx, c.ID, organizerID)
			s.Require().NoError(err)

			_, err = s.enrollments.Confirm(s.ctx, e.ID, organizerID)
			s.ErrorIs(err, apperr.ErrInvalidState)
			s.Equal(0, s.seats(c.ID), "a finished campaign's counter is untouched")

			stored, err := s.enrollments.Get(s.ctx, e.ID)
			s.Require().NoError(err)
			s.Equal(model.EnrollmentWaitlist, stored.Status)
		})
	}
}

func (s *EngineSuite) TestConfirm_CampaignWithoutOrganizer() {
	proposed, err := s.campaigns.Propose(s.ctx, beneficiary, campaignInput("hall-p", "09:00", "12:00", 3))
	s.Require().NoError(err)
	// Force an orphan ACTIVE campaign.
	proposed.Status = model.CampaignActive
	s.store.PutCampaign(*proposed)
	s.makeEligible(donorID)
	e, err := s.enrollments.Enroll(s.ctx, donorID, proposed.ID, Preferences{})
	s.Require().NoError(err)

	_, err = s.enrollments.Confirm(s.ctx, e.ID, organizerID)

	s.ErrorIs(err, apperr.ErrForbidden)
}

func (s *EngineSuite) TestUpdatePending() {
	c := s.activeCampaign(3)
	s.makeEligible(donorID)
	e, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})
	s.Require().NoError(err)
	notes := "arriving by bus"

	updated, err := s.enrollments.UpdatePending(s.ctx, e.ID, donorID, Preferences{Notes: &notes})
	s.Require().NoError(err)
	s.Equal(&notes, updated.Notes)

	_, err = s.enrollments.UpdatePending(s.ctx, e.ID, otherDonor, Preferences{Notes: &notes})
	s.ErrorIs(err, apperr.ErrForbidden)

	_, err = s.enrollments.Confirm(s.ctx, e.ID, organizerID)
	s.Require().NoError(err)
	_, err = s.enrollments.UpdatePending(s.ctx, e.ID, donorID, Preferences{Notes: &notes})
	s.ErrorIs(err, apperr.ErrInvalidState)
}

func (s *EngineSuite) TestList_ByCampaign() {
	c := s.activeCampaign(3)
	s.makeEligible(donorID)
	s.makeEligible(otherDonor)
	_, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})
	s.Require().NoError(err)
	latest, err := s.enrollments.Enroll(s.ctx, otherDonor, c.ID, Preferences{})
	s.Require().NoError(err)

	list, total, err := s.enrollments.List(s.ctx, model.EnrollmentFilter{CampaignID: c.ID})

	s.Require().NoError(err)
	s.Equal(2, total)
	s.Equal(latest.ID, list[0].ID, "newest first")
}

// seatFailureStore makes IncrementSeats fail the way a dropped connection would.
type seatFailureStore struct {
	repository.Store
	err error
}

type seatFailureQueries struct {
	repository.Queries
	err error
}

func (q seatFailureQueries) IncrementSeats(context.Context, string) (int, error) {
	return 0, q.err
}

func (s *seatFailureStore) RunInTx(ctx context.Context, fn func(q repository.Queries) error) error {
	return s.Store.RunInTx(ctx, func(q repository.Queries) error {
		return fn(seatFailureQueries{Queries: q, err: s.err})
	})
}

func (s *EngineSuite) TestEnroll_InfrastructureFailureRollsBack() {
	c := s.activeCampaign(3)
	s.makeEligible(donorID)
	s.wire(&seatFailureStore{Store: s.store, err: errors.New("connection reset by peer")})

	_, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})

	s.ErrorIs(err, apperr.ErrInfrastructure)
	s.Equal(apperr.KindInfrastructure, apperr.KindOf(err))
	_, err = s.store.FindActiveEnrollment(s.ctx, donorID, c.ID)
	s.ErrorIs(err, repository.ErrNotFound)
}
