// Package memory is an in-process repository.Store for tests and local runs.
//
// Transactions are serialized and all-or-nothing: RunInTx snapshots the data
// set and restores it when fn fails. Reads made outside a transaction may
// observe writes of a transaction that has not finished yet.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kkkkikiki/blooddrive/internal/model"
	"github.com/kkkkikiki/blooddrive/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Store keeps every aggregate in maps.
type Store struct {
	txMu sync.Mutex // one transaction at a time
	*state
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// PutUser inserts or replaces a user. Users are owned by another service, so
// this is the only way to seed them.
func (s *Store) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users[u.ID] = u
}

// PutCampaign inserts or replaces a campaign as-is, counter included.
func (s *Store) PutCampaign(c model.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = c
}

// RunInTx runs fn against the store. Any error from fn rolls every write back.
func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Queries) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	s.mu.Lock()
	saved := s.state.clone()
	s.mu.Unlock()

	if err := fn(s.state); err != nil {
		s.mu.Lock()
		s.state.restore(saved)
		s.mu.Unlock()
		return err
	}
	return nil
}

type snapshot struct {
	users          map[string]model.User
	campaigns      map[string]model.Campaign
	enrollments    map[string]model.Enrollment
	questionnaires map[string]model.HealthQuestionnaire
	donations      map[string]model.Donation
	seq            map[string]int64
	next           int64
}

// state implements repository.Queries. Each method holds mu for its own duration.
type state struct {
	mu sync.Mutex
	snapshot
}

func newState() *state {
	return &state{snapshot: snapshot{
		users:          map[string]model.User{},
		campaigns:      map[string]model.Campaign{},
		enrollments:    map[string]model.Enrollment{},
		questionnaires: map[string]model.HealthQuestionnaire{},
		donations:      map[string]model.Donation{},
		seq:            map[string]int64{},
	}}
}

func (s *state) clone() snapshot {
	return snapshot{
		users:          copyMap(s.users),
		campaigns:      copyMap(s.campaigns),
		enrollments:    copyMap(s.enrollments),
		questionnaires: copyMap(s.questionnaires),
		donations:      copyMap(s.donations),
		seq:            copyMap(s.seq),
		next:           s.next,
	}
}

func (s *state) restore(saved snapshot) {
	s.snapshot = saved
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// stamp records insertion order so "latest" never depends on clock resolution.
func (s *state) stamp(id string) {
	s.next++
	s.seq[id] = s.next
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, repository.ErrNotFound)
}

// Users

func (s *state) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return &u, nil
}

func (s *state) IncrementDonationCount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return notFound("user", id)
	}
	u.DonationCount++
	s.users[id] = u
	return nil
}

func (s *state) ListDonorsByDonationCount(_ context.Context, limit, pageNo int) ([]model.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	donors := []model.User{}
	for _, u := range s.users {
		if u.Role == model.RoleDonor {
			donors = append(donors, u)
		}
	}
	sort.Slice(donors, func(i, j int) bool {
		if donors[i].DonationCount != donors[j].DonationCount {
			return donors[i].DonationCount > donors[j].DonationCount
		}
		return donors[i].ID < donors[j].ID
	})
	return page(donors, limit, pageNo), len(donors), nil
}

// Campaigns

// LockSchedule is a no-op: transactions already run one at a time.
func (s *state) LockSchedule(context.Context, string, time.Time) error { return nil }

func (s *state) CreateCampaign(_ context.Context, c *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := s.campaigns[c.ID]; ok {
		return fmt.Errorf("campaign %s: %w", c.ID, repository.ErrDuplicate)
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.campaigns[c.ID] = *c
	return nil
}

func (s *state) GetCampaign(_ context.Context, id string) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, notFound("campaign", id)
	}
	return &c, nil
}

// GetCampaignForUpdate needs no row lock: the transaction already holds the store.
func (s *state) GetCampaignForUpdate(ctx context.Context, id string) (*model.Campaign, error) {
	return s.GetCampaign(ctx, id)
}

func (s *state) UpdateCampaign(_ context.Context, c *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.campaigns[c.ID]
	if !ok {
		return notFound("campaign", c.ID)
	}
	c.UpdatedAt = time.Now()
	updated := *c
	updated.CurrentDonors = existing.CurrentDonors
	updated.ProposedBy = existing.ProposedBy
	updated.CreatedAt = existing.CreatedAt
	s.campaigns[c.ID] = updated
	return nil
}

func (s *state) ListCampaigns(_ context.Context, f model.CampaignFilter) ([]model.Campaign, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(f.Search)
	matched := []model.Campaign{}
	for _, c := range s.campaigns {
		switch {
		case f.Status != "" && c.Status != f.Status:
			continue
		case f.DateFrom != nil && c.CampaignDate.Before(*f.DateFrom):
			continue
		case f.DateTo != nil && c.CampaignDate.After(*f.DateTo):
			continue
		case search != "" && !strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.Location), search):
			continue
		case f.FeaturedOnly && !c.IsFeatured:
			continue
		case f.AvailableOnly && !c.HasFreeSeat():
			continue
		}
		matched = append(matched, c)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CampaignDate.Equal(b.CampaignDate) {
			if f.Descending {
				return a.CampaignDate.After(b.CampaignDate)
			}
			return a.CampaignDate.Before(b.CampaignDate)
		}
		return a.StartTime.Before(b.StartTime)
	})

	return page(matched, f.Limit, f.Page), len(matched), nil
}

func (s *state) FindOverlapping(_ context.Context, location string, date time.Time, start, end model.Clock, excludeID string) ([]model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := model.DateOf(date)
	overlapping := []model.Campaign{}
	for _, c := range s.campaigns {
		if c.ID == excludeID || c.Status != model.CampaignActive || c.Location != location {
			continue
		}
		if !model.DateOf(c.CampaignDate).Equal(day) {
			continue
		}
		if c.StartTime.Before(end) && c.EndTime.After(start) {
			overlapping = append(overlapping, c)
		}
	}
	sort.Slice(overlapping, func(i, j int) bool {
		return overlapping[i].StartTime.Before(overlapping[j].StartTime)
	})
	return overlapping, nil
}

func (s *state) IncrementSeats(_ context.Context, campaignID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return 0, notFound("campaign", campaignID)
	}
	if !c.HasFreeSeat() {
		return 0, fmt.Errorf("campaign %s: %w", campaignID, repository.ErrCampaignFull)
	}
	c.CurrentDonors++
	c.UpdatedAt = time.Now()
	s.campaigns[campaignID] = c
	return c.CurrentDonors, nil
}

func (s *state) DecrementSeats(_ context.Context, campaignID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return 0, notFound("campaign", campaignID)
	}
	if c.CurrentDonors > 0 {
		c.CurrentDonors--
	}
	c.UpdatedAt = time.Now()
	s.campaigns[campaignID] = c
	return c.CurrentDonors, nil
}

func (s *state) CountSeatHolders(_ context.Context, campaignID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.enrollments {
		if e.CampaignID == campaignID && e.Status.HoldsSeat() {
			count++
		}
	}
	return count, nil
}

// Enrollments

func (s *state) CreateEnrollment(_ context.Context, e *model.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, ok := s.enrollments[e.ID]; ok {
		return fmt.Errorf("enrollment %s: %w", e.ID, repository.ErrDuplicate)
	}
	if e.Status != model.EnrollmentCancelled {
		for _, other := range s.enrollments {
			if other.DonorID == e.DonorID && other.CampaignID == e.CampaignID &&
				other.Status != model.EnrollmentCancelled {
				return fmt.Errorf("enrollment for donor %s: %w", e.DonorID, repository.ErrDuplicate)
			}
		}
	}
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	s.enrollments[e.ID] = *e
	s.stamp(e.ID)
	return nil
}

func (s *state) GetEnrollment(_ context.Context, id string) (*model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[id]
	if !ok {
		return nil, notFound("enrollment", id)
	}
	return &e, nil
}

func (s *state) GetEnrollmentForUpdate(ctx context.Context, id string) (*model.Enrollment, error) {
	return s.GetEnrollment(ctx, id)
}

func (s *state) FindActiveEnrollment(_ context.Context, donorID, campaignID string) (*model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.enrollments {
		if e.DonorID == donorID && e.CampaignID == campaignID && e.Status != model.EnrollmentCancelled {
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *state) UpdateEnrollment(_ context.Context, e *model.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.enrollments[e.ID]
	if !ok {
		return notFound("enrollment", e.ID)
	}
	existing.Status = e.Status
	existing.PreferredTime = e.PreferredTime
	existing.Notes = e.Notes
	existing.UpdatedAt = time.Now()
	e.UpdatedAt = existing.UpdatedAt
	s.enrollments[e.ID] = existing
	return nil
}

func (s *state) ListEnrollments(_ context.Context, f model.EnrollmentFilter) ([]model.Enrollment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := []model.Enrollment{}
	for _, e := range s.enrollments {
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.CampaignID != "" && e.CampaignID != f.CampaignID {
			continue
		}
		if f.DonorID != "" && e.DonorID != f.DonorID {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		return s.seq[matched[i].ID] > s.seq[matched[j].ID]
	})
	return page(matched, f.Limit, f.Page), len(matched), nil
}

// Questionnaires

func (s *state) CreateQuestionnaire(_ context.Context, q *model.HealthQuestionnaire) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if _, ok := s.questionnaires[q.ID]; ok {
		return fmt.Errorf("questionnaire %s: %w", q.ID, repository.ErrDuplicate)
	}
	now := time.Now()
	q.CreatedAt = now
	q.UpdatedAt = now
	s.questionnaires[q.ID] = *q
	s.stamp(q.ID)
	return nil
}

func (s *state) GetQuestionnaire(_ context.Context, id string) (*model.HealthQuestionnaire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questionnaires[id]
	if !ok {
		return nil, notFound("questionnaire", id)
	}
	return &q, nil
}

func (s *state) UpdateQuestionnaire(_ context.Context, q *model.HealthQuestionnaire) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.questionnaires[q.ID]
	if !ok {
		return notFound("questionnaire", q.ID)
	}
	q.DonorID = existing.DonorID
	q.CreatedAt = existing.CreatedAt
	q.UpdatedAt = time.Now()
	s.questionnaires[q.ID] = *q
	return nil
}

func (s *state) LatestQuestionnaire(_ context.Context, donorID string) (*model.HealthQuestionnaire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.questionnairesOf(donorID)
	if len(history) == 0 {
		return nil, repository.ErrNotFound
	}
	return &history[0], nil
}

func (s *state) ListQuestionnairesByDonor(_ context.Context, donorID string) ([]model.HealthQuestionnaire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questionnairesOf(donorID), nil
}

// questionnairesOf returns the donor's questionnaires, newest first. Caller holds mu.
func (s *state) questionnairesOf(donorID string) []model.HealthQuestionnaire {
	history := []model.HealthQuestionnaire{}
	for _, q := range s.questionnaires {
		if q.DonorID == donorID {
			history = append(history, q)
		}
	}
	sort.Slice(history, func(i, j int) bool {
		return s.seq[history[i].ID] > s.seq[history[j].ID]
	})
	return history
}

// Donations

func (s *state) CreateDonation(_ context.Context, d *model.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if _, ok := s.donations[d.ID]; ok {
		return fmt.Errorf("donation %s: %w", d.ID, repository.ErrDuplicate)
	}
	if d.Status != model.DonationCancelled {
		for _, other := range s.donations {
			if other.EnrollmentID == d.EnrollmentID && other.Status != model.DonationCancelled {
				return fmt.Errorf("donation for enrollment %s: %w", d.EnrollmentID, repository.ErrDuplicate)
			}
		}
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	s.donations[d.ID] = *d
	s.stamp(d.ID)
	return nil
}

func (s *state) GetDonation(_ context.Context, id string) (*model.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok {
		return nil, notFound("donation", id)
	}
	return &d, nil
}

func (s *state) GetDonationForUpdate(ctx context.Context, id string) (*model.Donation, error) {
	return s.GetDonation(ctx, id)
}

func (s *state) UpdateDonation(_ context.Context, d *model.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.donations[d.ID]
	if !ok {
		return notFound("donation", d.ID)
	}
	existing.Status = d.Status
	existing.ActualDate = d.ActualDate
	existing.QuantityML = d.QuantityML
	existing.CertificateID = d.CertificateID
	existing.Notes = d.Notes
	existing.UpdatedAt = time.Now()
	d.UpdatedAt = existing.UpdatedAt
	s.donations[d.ID] = existing
	return nil
}

func (s *state) FindActiveDonation(_ context.Context, enrollmentID string) (*model.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.donations {
		if d.EnrollmentID == enrollmentID && d.Status != model.DonationCancelled {
			return &d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *state) ListDonationsByDonor(_ context.Context, donorID string) ([]model.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	donations := []model.Donation{}
	for _, d := range s.donations {
		if d.DonorID == donorID {
			donations = append(donations, d)
		}
	}
	sort.Slice(donations, func(i, j int) bool {
		a, b := donations[i], donations[j]
		if !a.ScheduledDate.Equal(b.ScheduledDate) {
			return a.ScheduledDate.After(b.ScheduledDate)
		}
		return a.ScheduledTime.After(b.ScheduledTime)
	})
	return donations, nil
}

func (s *state) LastCompletedDonationDate(_ context.Context, donorID string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *time.Time
	for _, d := range s.donations {
		if d.DonorID != donorID || d.Status != model.DonationCompleted || d.ActualDate == nil {
			continue
		}
		if last == nil || d.ActualDate.After(*last) {
			actual := *d.ActualDate
			last = &actual
		}
	}
	return last, nil
}

func page[T any](items []T, limit, pageNo int) []T {
	limit, offset := repository.PageBounds(limit, pageNo)
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
