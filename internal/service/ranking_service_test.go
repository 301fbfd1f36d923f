package service

import (
	"github.com/kkkkikiki/blooddrive/internal/apperr"
	"github.com/kkkkikiki/blooddrive/internal/model"
)

func (s *EngineSuite) TestRanking_CompletedDonationEarnsPoints() {
	before, err := s.rankings.Get(s.ctx, donorID)
	s.Require().NoError(err)
	s.Equal(0, before.Points)
	s.Equal(model.LevelBronze, before.Level)

	c := s.activeCampaign(3)
	d := s.scheduled(c)
	_, err = s.donations.Complete(s.ctx, d.ID, 450)
	s.Require().NoError(err)

	after, err := s.rankings.Get(s.ctx, donorID)
	s.Require().NoError(err)
	s.Equal(1, after.DonationCount)
	s.Equal(model.PointsPerDonation, after.Points)
	s.Equal(model.LevelBronze, after.Level)
}

func (s *EngineSuite) TestRanking_UnknownUser() {
	_, err := s.rankings.Get(s.ctx, "nobody")
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *EngineSuite) TestRanking_ListOrdersDonorsByDonations() {
	for id, count := range map[string]int{
		donorID:    4,
		otherDonor: 10,
		"donor-3":  5,
		"donor-4":  9,
	} {
		s.store.PutUser(model.User{ID: id, Role: model.RoleDonor, DonationCount: count})
	}
	// Organizers never appear on the leaderboard.
	s.store.PutUser(model.User{ID: organizerID, Role: model.RoleOrganizer, DonationCount: 50})

	all, total, err := s.rankings.List(s.ctx, 10, 0)
	s.Require().NoError(err)
	s.Equal(4, total)
	s.Require().Len(all, 4)

	want := []struct {
		id    string
		level model.RankingLevel
	}{
		{otherDonor, model.LevelGold},
		{"donor-4", model.LevelSilver},
		{"donor-3", model.LevelSilver},
		{donorID, model.LevelBronze},
	}
	for i, w := range want {
		s.Equal(w.id, all[i].UserID)
		s.Equal(w.level, all[i].Level, w.id)
		s.Equal(i+1, all[i].Position)
	}

	second, total, err := s.rankings.List(s.ctx, 2, 1)
	s.Require().NoError(err)
	s.Equal(4, total)
	s.Require().Len(second, 2)
	s.Equal("donor-3", second[0].UserID)
	s.Equal(3, second[0].Position)
	s.Equal(4, second[1].Position)
}
