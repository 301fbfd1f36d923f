package service

import (
	"context"
	"time"

	"github.com/kkkkikiki/blooddrive/internal/apperr"
	"github.com/kkkkikiki/blooddrive/internal/model"
	"github.com/kkkkikiki/blooddrive/internal/repository"
)

func (s *EngineSuite) TestValidateWindow() {
	tests := []struct {
		name       string
		date       time.Time
		start, end string
		want       error
	}{
		{"valid", campaignDay, "09:00", "12:00", nil},
		{"today is allowed", fixedNow, "09:00", "12:00", nil},
		{"inverted", campaignDay, "12:00", "09:00", apperr.ErrInvalidSchedule},
		{"empty", campaignDay, "09:00", "09:00", apperr.ErrInvalidSchedule},
		{"yesterday", fixedNow.AddDate(0, 0, -1), "09:00", "12:00", apperr.ErrPastDate},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := s.campaigns.ValidateWindow(tt.date, model.MustClock(tt.start), model.MustClock(tt.end))
			if tt.want == nil {
				s.NoError(err)
				return
			}
			s.ErrorIs(err, tt.want)
			s.Equal(apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func (s *EngineSuite) TestValidateNoOverlap() {
	_, err := s.campaigns.Create(s.ctx, organizerID, campaignInput("hall-a", "10:00", "11:00", 5))
	s.Require().NoError(err)

	tests := []struct {
		name       string
		location   string
		start, end string
		conflict   bool
	}{
		{"contains existing", "hall-a", "09:00", "12:00", true},
		{"touching boundary", "hall-a", "09:00", "10:00", false},
		{"starts at existing end", "hall-a", "11:00", "12:00", false},
		{"partial overlap", "hall-a", "10:30", "13:00", true},
		{"other location", "hall-b", "09:00", "12:00", false},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := s.campaigns.ValidateNoOverlap(s.ctx, campaignDay,
				model.MustClock(tt.start), model.MustClock(tt.end), tt.location, "")
			if tt.conflict {
				s.ErrorIs(err, apperr.ErrScheduleConflict)
				s.Equal(apperr.KindConflict, apperr.KindOf(err))
			} else {
				s.NoError(err)
			}
		})
	}
}

func (s *EngineSuite) TestValidateNoOverlap_CancelledCampaignDoesNotBlock() {
	c, err := s.campaigns.Create(s.ctx, organizerID, campaignInput("hall-a", "10:00", "11:00", 5))
	s.Require().NoError(err)
	_, err = s.campaigns.Cancel(s.ctx, c.ID, organizerID)
	s.Require().NoError(err)

	err = s.campaigns.ValidateNoOverlap(s.ctx, campaignDay, model.MustClock("09:00"), model.MustClock("12:00"), "hall-a", "")

	s.NoError(err)
}

func (s *EngineSuite) TestCreate() {
	s.Run("organizer creates ACTIVE campaign", func() {
		c, err := s.campaigns.Create(s.ctx, organizerID, campaignInput("hall-c", "09:00", "12:00", 10))
		s.Require().NoError(err)
		s.Equal(model.CampaignActive, c.Status)
		s.Zero(c.CurrentDonors)
		s.True(c.IsOrganizedBy(organizerID))
	})

	s.Run("donor is forbidden", func() {
		_, err := s.campaigns.Create(s.ctx, donorID, campaignInput("hall-d", "09:00", "12:00", 10))
		s.ErrorIs(err, apperr.ErrForbidden)
	})

	s.Run("unknown user is forbidden", func() {
		_, err := s.campaigns.Create(s.ctx, "ghost", campaignInput("hall-d", "09:00", "12:00", 10))
		s.ErrorIs(err, apperr.ErrForbidden)
	})

	s.Run("capacity must be positive", func() {
		_, err := s.campaigns.Create(s.ctx, organizerID, campaignInput("hall-d", "09:00", "12:00", 0))
		s.ErrorIs(err, apperr.ErrInvalidInput)
	})

	s.Run("overlap is rejected", func() {
		_, err := s.campaigns.Create(s.ctx, otherOrg, campaignInput("hall-c", "11:00", "13:00", 10))
		s.ErrorIs(err, apperr.ErrScheduleConflict)
	})
}

func (s *EngineSuite) TestProposeAndReview() {
	proposed, err := s.campaigns.Propose(s.ctx, beneficiary, campaignInput("hall-a", "09:00", "12:00", 20))
	s.Require().NoError(err)
	s.Equal(model.CampaignProposed, proposed.Status)
	s.Nil(proposed.OrganizerID)
	s.Require().NotNil(proposed.ProposedBy)
	s.Equal(beneficiary, *proposed.ProposedBy)

	// A proposal never blocks an organizer.
	active := s.activeCampaign(5)

	_, err = s.campaigns.ReviewProposal(s.ctx, proposed.ID, organizerID, true, "")
	s.ErrorIs(err, apperr.ErrScheduleConflict, "approval runs the overlap check")

	_, err = s.campaigns.Cancel(s.ctx, active.ID, organizerID)
	s.Require().NoError(err)

	approved, err := s.campaigns.ReviewProposal(s.ctx, proposed.ID, organizerID, true, "")
	s.Require().NoError(err)
	s.Equal(model.CampaignActive, approved.Status)
	s.True(approved.IsOrganizedBy(organizerID))

	_, err = s.campaigns.ReviewProposal(s.ctx, proposed.ID, organizerID, false, "")
	s.ErrorIs(err, apperr.ErrInvalidState)
}

func (s *EngineSuite) TestReviewProposal_RejectDefaultsReason() {
	proposed, err := s.campaigns.Propose(s.ctx, donorID, campaignInput("hall-z", "09:00", "12:00", 20))
	s.Require().NoError(err)

	rejected, err := s.campaigns.ReviewProposal(s.ctx, proposed.ID, organizerID, false, "")

	s.Require().NoError(err)
	s.Equal(model.CampaignCancelled, rejected.Status)
	s.Require().NotNil(rejected.RejectionReason)
	s.Equal("Not specified", *rejected.RejectionReason)
}

func (s *EngineSuite) TestPropose_OrganizerIsForbidden() {
	_, err := s.campaigns.Propose(s.ctx, organizerID, campaignInput("hall-z", "09:00", "12:00", 20))
	s.ErrorIs(err, apperr.ErrForbidden)
}

func (s *EngineSuite) TestUpdate() {
	c := s.activeCampaign(3)

	s.Run("other organizer is forbidden", func() {
		name := "Hijacked"
		_, err := s.campaigns.Update(s.ctx, c.ID, otherOrg, CampaignPatch{Name: &name})
		s.ErrorIs(err, apperr.ErrForbidden)
	})

	s.Run("max donors cannot drop below taken seats", func() {
		s.fillCampaign(c, 2)
		max := 1
		_, err := s.campaigns.Update(s.ctx, c.ID, organizerID, CampaignPatch{MaxDonors: &max})
		s.ErrorIs(err, apperr.ErrInvalidInput)
	})

	s.Run("moving the window into the past fails", func() {
		past := fixedNow.AddDate(0, 0, -3)
		_, err := s.campaigns.Update(s.ctx, c.ID, organizerID, CampaignPatch{Date: &past})
		s.ErrorIs(err, apperr.ErrPastDate)
	})

	s.Run("editing its own window is not an overlap", func() {
		end := model.MustClock("13:00")
		updated, err := s.campaigns.Update(s.ctx, c.ID, organizerID, CampaignPatch{EndTime: &end})
		s.Require().NoError(err)
		s.Equal(end, updated.EndTime)
		s.Equal(2, updated.CurrentDonors, "counter is preserved")
	})

	s.Run("terminal campaign cannot be edited", func() {
		_, err := s.campaigns.Complete(s.ctx, c.ID, organizerID)
		s.Require().NoError(err)
		name := "Late edit"
		_, err = s.campaigns.Update(s.ctx, c.ID, organizerID, CampaignPatch{Name: &name})
		s.ErrorIs(err, apperr.ErrInvalidState)
	})
}

func (s *EngineSuite) TestUpdate_ActiveCampaignInThePastRejectsAnyEdit() {
	c := s.activeCampaign(3)
	stored, err := s.store.GetCampaign(s.ctx, c.ID)
	s.Require().NoError(err)
	stored.CampaignDate = fixedNow.AddDate(0, 0, -1)
	s.store.PutCampaign(*stored)

	name := "Renamed"
	_, err = s.campaigns.Update(s.ctx, c.ID, organizerID, CampaignPatch{Name: &name})
	s.ErrorIs(err, apperr.ErrPastDate)

	max := 10
	_, err = s.campaigns.Update(s.ctx, c.ID, organizerID, CampaignPatch{MaxDonors: &max})
	s.ErrorIs(err, apperr.ErrPastDate)

	unchanged, err := s.store.GetCampaign(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal("Spring drive", unchanged.Name)
	s.Equal(3, unchanged.MaxDonors)
}

// slotRecordingStore logs schedule locks and overlap reads in call order.
type slotRecordingStore struct {
	repository.Store
	calls *[]string
}

type slotRecordingQueries struct {
	repository.Queries
	calls *[]string
}

func (q slotRecordingQueries) LockSchedule(ctx context.Context, location string, date time.Time) error {
	*q.calls = append(*q.calls, "lock "+location+" "+date.Format(time.DateOnly))
	return q.Queries.LockSchedule(ctx, location, date)
}

func (q slotRecordingQueries) FindOverlapping(ctx context.Context, location string, date time.Time, start, end model.Clock, excludeID string) ([]model.Campaign, error) {
	*q.calls = append(*q.calls, "overlap "+location)
	return q.Queries.FindOverlapping(ctx, location, date, start, end, excludeID)
}

func (s *slotRecordingStore) RunInTx(ctx context.Context, fn func(q repository.Queries) error) error {
	return s.Store.RunInTx(ctx, func(q repository.Queries) error {
		return fn(slotRecordingQueries{Queries: q, calls: s.calls})
	})
}

func (s *EngineSuite) TestScheduleWrites_LockSlotBeforeOverlapCheck() {
	var calls []string
	s.wire(&slotRecordingStore{Store: s.store, calls: &calls})

	c, err := s.campaigns.Create(s.ctx, organizerID, campaignInput("hall-a", "09:00", "12:00", 3))
	s.Require().NoError(err)
	s.Equal([]string{"lock hall-a 2026-04-01", "overlap hall-a"}, calls)

	calls = calls[:0]
	end := model.MustClock("13:00")
	_, err = s.campaigns.Update(s.ctx, c.ID, organizerID, CampaignPatch{EndTime: &end})
	s.Require().NoError(err)
	s.Equal([]string{"lock hall-a 2026-04-01", "overlap hall-a"}, calls)

	calls = calls[:0]
	name := "Renamed"
	_, err = s.campaigns.Update(s.ctx, c.ID, organizerID, CampaignPatch{Name: &name})
	s.Require().NoError(err)
	s.Empty(calls, "a rename does not touch the schedule")

	calls = calls[:0]
	proposal, err := s.campaigns.Propose(s.ctx, beneficiary, campaignInput("hall-b", "14:00", "16:00", 3))
	s.Require().NoError(err)
	_, err = s.campaigns.ReviewProposal(s.ctx, proposal.ID, organizerID, true, "")
	s.Require().NoError(err)
	s.Equal([]string{"lock hall-b 2026-04-01", "overlap hall-b"}, calls)
}

func (s *EngineSuite) TestCompleteAndCancel_RequireActive() {
	c := s.activeCampaign(3)

	_, err := s.campaigns.Complete(s.ctx, c.ID, otherOrg)
	s.ErrorIs(err, apperr.ErrForbidden)

	done, err := s.campaigns.Complete(s.ctx, c.ID, organizerID)
	s.Require().NoError(err)
	s.Equal(model.CampaignCompleted, done.Status)

	_, err = s.campaigns.Cancel(s.ctx, c.ID, organizerID)
	s.ErrorIs(err, apperr.ErrInvalidState)

	_, err = s.campaigns.Complete(s.ctx, "missing", organizerID)
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *EngineSuite) TestReconcileSeats_ReportsDriftWithoutFixingIt() {
	c := s.activeCampaign(5)
	s.makeEligible(donorID)
	_, err := s.enrollments.Enroll(s.ctx, donorID, c.ID, Preferences{})
	s.Require().NoError(err)

	report, err := s.campaigns.ReconcileSeats(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(SeatReport{CampaignID: c.ID, MaxDonors: 5, Counter: 1, SeatHolders: 1}, report)

	s.fillCampaign(c, 4)
	report, err = s.campaigns.ReconcileSeats(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(3, report.Drift)
	s.Equal(4, s.seats(c.ID), "reconciliation is read-only")
}

func (s *EngineSuite) TestList_FiltersByStatusAndSearch() {
	s.activeCampaign(5)
	_, err := s.campaigns.Propose(s.ctx, beneficiary, campaignInput("library", "09:00", "12:00", 5))
	s.Require().NoError(err)

	active, total, err := s.campaigns.List(s.ctx, model.CampaignFilter{Status: model.CampaignActive})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Len(active, 1)

	found, total, err := s.campaigns.List(s.ctx, model.CampaignFilter{Search: "LIB"})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("library", found[0].Location)
}
