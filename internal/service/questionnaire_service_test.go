package service

import (
	"strings"
	"time"

	"github.com/kkkkikiki/blooddrive/internal/apperr"
	"github.com/kkkkikiki/blooddrive/internal/model"
)

func daysBefore(t time.Time, n int) *time.Time {
	d := model.DateOf(t).AddDate(0, 0, -n)
	return &d
}

func (s *EngineSuite) TestSubmit_Verdicts() {
	tests := []struct {
		name        string
		mutate      func(a *model.HealthAnswers)
		wantStatus  model.EligibilityStatus
		wantReasons []string
		wantNext    *time.Time
	}{
		{
			name:       "healthy",
			mutate:     func(a *model.HealthAnswers) {},
			wantStatus: model.Eligible,
		},
		{
			name:       "medication alone is not a reason",
			mutate:     func(a *model.HealthAnswers) { a.IsTakingMedication = true },
			wantStatus: model.Eligible,
		},
		{
			name: "chronic disease and low weight need review",
			mutate: func(a *model.HealthAnswers) {
				a.WeightKg = 40
				a.HasChronicDisease = true
			},
			wantStatus:  model.RequiresReview,
			wantReasons: []string{"Body weight below 50 kg", "Has chronic disease - requires medical review"},
		},
		{
			name: "recent donation",
			mutate: func(a *model.HealthAnswers) {
				a.HasDonatedBefore = true
				a.LastDonationDate = daysBefore(fixedNow, 10)
			},
			wantStatus:  model.NotEligible,
			wantReasons: []string{"Must wait 46 more days since last donation"},
			wantNext:    func() *time.Time { t := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC); return &t }(),
		},
		{
			name: "cooldown boundary",
			mutate: func(a *model.HealthAnswers) {
				a.LastDonationDate = daysBefore(fixedNow, 56)
			},
			wantStatus: model.Eligible,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			answers := healthyInput
			tt.mutate(&answers)

			hq, err := s.questionnaires.Submit(s.ctx, donorID, answers)

			s.Require().NoError(err)
			s.Equal(tt.wantStatus, hq.EligibilityStatus)
			if tt.wantReasons == nil {
				s.Nil(hq.IneligibilityReasons)
			} else {
				s.Require().NotNil(hq.IneligibilityReasons)
				s.Equal(strings.Join(tt.wantReasons, "; "), *hq.IneligibilityReasons)
			}
			s.Equal(tt.wantNext, hq.NextEligibleDate)
		})
	}
}

func (s *EngineSuite) TestSubmit_InvalidAnswers() {
	tests := []struct {
		name   string
		mutate func(a *model.HealthAnswers)
	}{
		{"future last donation", func(a *model.HealthAnswers) { a.LastDonationDate = daysBefore(fixedNow, -1) }},
		{"height too low", func(a *model.HealthAnswers) { a.HeightCm = 90 }},
		{"height too high", func(a *model.HealthAnswers) { a.HeightCm = 260 }},
		{"zero weight", func(a *model.HealthAnswers) { a.WeightKg = 0 }},
		{"unknown blood type", func(a *model.HealthAnswers) { a.BloodType = "C" }},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			answers := healthyInput
			tt.mutate(&answers)

			_, err := s.questionnaires.Submit(s.ctx, donorID, answers)

			s.ErrorIs(err, apperr.ErrInvalidInput)
		})
	}

	_, err := s.questionnaires.Latest(s.ctx, donorID)
	s.ErrorIs(err, apperr.ErrNotFound, "nothing was stored")
}

func (s *EngineSuite) TestSubmit_UnknownDonor() {
	_, err := s.questionnaires.Submit(s.ctx, "ghost", healthyInput)
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *EngineSuite) TestUpdate_ReevaluatesFromScratch() {
	answers := healthyInput
	answers.HadCovidRecently = true
	hq, err := s.questionnaires.Submit(s.ctx, donorID, answers)
	s.Require().NoError(err)
	s.Require().Equal(model.NotEligible, hq.EligibilityStatus)

	updated, err := s.questionnaires.Update(s.ctx, hq.ID, healthyInput)
	s.Require().NoError(err)
	s.Equal(hq.ID, updated.ID)
	s.Equal(model.Eligible, updated.EligibilityStatus)
	s.Nil(updated.IneligibilityReasons)

	stored, err := s.questionnaires.Get(s.ctx, hq.ID)
	s.Require().NoError(err)
	s.Equal(model.Eligible, stored.EligibilityStatus)

	_, err = s.questionnaires.Update(s.ctx, "missing", healthyInput)
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *EngineSuite) TestNextEligibleDate() {
	_, err := s.questionnaires.NextEligibleDate(s.ctx, donorID)
	s.ErrorIs(err, apperr.ErrNotFound)

	s.makeEligible(donorID)
	next, err := s.questionnaires.NextEligibleDate(s.ctx, donorID)
	s.Require().NoError(err)
	s.Nil(next, "never donated")

	answers := healthyInput
	answers.LastDonationDate = daysBefore(fixedNow, 100)
	_, err = s.questionnaires.Submit(s.ctx, donorID, answers)
	s.Require().NoError(err)

	next, err = s.questionnaires.NextEligibleDate(s.ctx, donorID)
	s.Require().NoError(err)
	s.Require().NotNil(next)
	s.Equal(daysBefore(fixedNow, 44), next)
}

func (s *EngineSuite) TestSubmit_RecordedDonationOverridesOlderAnswer() {
	c := s.activeCampaign(3)
	d := s.scheduled(c)
	_, err := s.donations.Complete(s.ctx, d.ID, 450)
	s.Require().NoError(err)

	answers := healthyInput
	answers.LastDonationDate = daysBefore(fixedNow, 200)
	hq, err := s.questionnaires.Submit(s.ctx, donorID, answers)

	s.Require().NoError(err)
	s.Equal(model.NotEligible, hq.EligibilityStatus)
	s.True(hq.HasDonatedBefore)
	s.Require().NotNil(hq.LastDonationDate)
	s.Equal(model.DateOf(fixedNow), *hq.LastDonationDate)

	_, err = s.enrollments.Enroll(s.ctx, donorID, s.activeCampaignAt("hall-b").ID, Preferences{})
	s.ErrorIs(err, apperr.ErrNotEligible, "the stored verdict gates enrollment")
}

func (s *EngineSuite) TestListQuestionnairesByDonor() {
	s.makeEligible(donorID)
	answers := healthyInput
	answers.HadRecentSurgery = true
	latest, err := s.questionnaires.Submit(s.ctx, donorID, answers)
	s.Require().NoError(err)

	list, err := s.questionnaires.ListByDonor(s.ctx, donorID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(latest.ID, list[0].ID)

	got, err := s.questionnaires.Latest(s.ctx, donorID)
	s.Require().NoError(err)
	s.Equal(latest.ID, got.ID)
}
