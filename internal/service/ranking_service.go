package service

import (
	"context"
	"time"

	"github.com/kkkkikiki/blooddrive/internal/apperr"
	"github.com/kkkkikiki/blooddrive/internal/model"
	"github.com/kkkkikiki/blooddrive/internal/repository"
)

// RankingService derives donor points and levels from completed donations.
// It only reads: donation_count is advanced by DonationService.Complete.
type RankingService struct {
	store repository.Store
	options
}

// NewRankingService creates a new ranking service
func NewRankingService(store repository.Store, opts ...Option) *RankingService {
	return &RankingService{store: store, options: buildOptions(opts)}
}

// Get returns the ranking of one user
func (s *RankingService) Get(ctx context.Context, userID string) (ranking *model.Ranking, err error) {
	defer observe("ranking_get", time.Now(), &err)

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, "user", userID, "user lookup")
	}
	r := model.RankingFor(*user)
	return &r, nil
}

// List returns one page of the donor leaderboard, most donations first, and
// the total number of donors.
func (s *RankingService) List(ctx context.Context, limit, page int) (rankings []model.Ranking, total int, err error) {
	defer observe("ranking_list", time.Now(), &err)

	donors, total, err := s.store.ListDonorsByDonationCount(ctx, limit, page)
	if err != nil {
		return nil, 0, apperr.Infrastructure(err, "ranking list")
	}

	_, offset := repository.PageBounds(limit, page)
	rankings = make([]model.Ranking, len(donors))
	for i, u := range donors {
		rankings[i] = model.RankingFor(u)
		rankings[i].Position = offset + i + 1
	}
	return rankings, total, nil
}
