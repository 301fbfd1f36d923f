package model

// RankingLevel is a donor's tier derived from ranking points.
type RankingLevel string

const (
	LevelBronze RankingLevel = "BRONZE"
	LevelSilver RankingLevel = "SILVER"
	LevelGold   RankingLevel = "GOLD"
)

// PointsPerDonation is what each completed donation is worth.
const PointsPerDonation = 10

const (
	silverPoints = 50
	goldPoints   = 100
)

// LevelFor maps points to a tier: GOLD from 100, SILVER from 50, BRONZE below.
func LevelFor(points int) RankingLevel {
	switch {
	case points >= goldPoints:
		return LevelGold
	case points >= silverPoints:
		return LevelSilver
	default:
		return LevelBronze
	}
}

// Ranking is computed from users.donation_count on every read; it is never stored.
type Ranking struct {
	UserID        string       `json:"user_id"`
	DonationCount int          `json:"donation_count"`
	Points        int          `json:"points"`
	Level         RankingLevel `json:"level"`
	// Position is 1-based within the donor leaderboard; zero on single lookups.
	Position int `json:"position,omitempty"`
}

// RankingFor builds the ranking of u.
func RankingFor(u User) Ranking {
	points := u.DonationCount * PointsPerDonation
	return Ranking{
		UserID:        u.ID,
		DonationCount: u.DonationCount,
		Points:        points,
		Level:         LevelFor(points),
	}
}
