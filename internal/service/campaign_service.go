package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kkkkikiki/blooddrive/internal/apperr"
	"github.com/kkkkikiki/blooddrive/internal/model"
	"github.com/kkkkikiki/blooddrive/internal/repository"
)

const defaultRejectionReason = "Not specified"

// CampaignInput describes a campaign to create or propose
type CampaignInput struct {
	Name      string    `validate:"required,max=200"`
	Location  string    `validate:"required,max=200"`
	Address   string    `validate:"max=500"`
	Date      time.Time `validate:"required"`
	MaxDonors int       `validate:"gt=0"`

	StartTime  model.Clock
	EndTime    model.Clock
	IsFeatured bool
}

// CampaignPatch holds the fields an organizer may edit. Nil fields are kept.
type CampaignPatch struct {
	Name      *string `validate:"omitempty,min=1,max=200"`
	Location  *string `validate:"omitempty,min=1,max=200"`
	Address   *string `validate:"omitempty,max=500"`
	MaxDonors *int    `validate:"omitempty,gt=0"`

	Date       *time.Time
	StartTime  *model.Clock
	EndTime    *model.Clock
	IsFeatured *bool
}

// SeatReport compares the seat counter with the enrollments that hold a seat.
type SeatReport struct {
	CampaignID  string `json:"campaign_id"`
	MaxDonors   int    `json:"max_donors"`
	Counter     int    `json:"counter"`
	SeatHolders int    `json:"seat_holders"`
	Drift       int    `json:"drift"` // Counter - SeatHolders
}

// CampaignService schedules campaigns and owns their lifecycle
type CampaignService struct {
	store repository.Store
	options
}

// NewCampaignService creates a new campaign service
func NewCampaignService(store repository.Store, opts ...Option) *CampaignService {
	return &CampaignService{store: store, options: buildOptions(opts)}
}

// ValidateWindow rejects empty or inverted windows and past dates
func (s *CampaignService) ValidateWindow(date time.Time, start, end model.Clock) error {
	if !start.Before(end) {
		return apperr.New(apperr.CodeInvalidSchedule, "start time %s must be before end time %s", start, end)
	}
	if model.DateOf(date).Before(s.today()) {
		return apperr.New(apperr.CodePastDate, "campaign date %s is in the past", date.Format(time.DateOnly))
	}
	return nil
}

// ValidateNoOverlap rejects a window that intersects an ACTIVE campaign at the
// same location and date. excludeID skips the campaign being edited.
func (s *CampaignService) ValidateNoOverlap(ctx context.Context, date time.Time, start, end model.Clock, location, excludeID string) error {
	return checkOverlap(ctx, s.store, date, start, end, location, excludeID)
}

func checkOverlap(ctx context.Context, q repository.Queries, date time.Time, start, end model.Clock, location, excludeID string) error {
	overlapping, err := q.FindOverlapping(ctx, location, model.DateOf(date), start, end, excludeID)
	if err != nil {
		return apperr.Infrastructure(err, "overlap check")
	}
	if len(overlapping) > 0 {
		other := overlapping[0]
		return apperr.New(apperr.CodeScheduleConflict,
			"campaign %q already runs at %s on %s from %s to %s",
			other.Name, location, date.Format(time.DateOnly), other.StartTime, other.EndTime)
	}
	return nil
}

// checkSlot serializes writers on (location, date) for the rest of the
// transaction, then runs the overlap check.
func checkSlot(ctx context.Context, q repository.Queries, date time.Time, start, end model.Clock, location, excludeID string) error {
	if err := q.LockSchedule(ctx, location, model.DateOf(date)); err != nil {
		return apperr.Infrastructure(err, "schedule lock")
	}
	return checkOverlap(ctx, q, date, start, end, location, excludeID)
}

// requireRole loads the actor and checks its role. Unknown actors are Forbidden.
func requireRole(ctx context.Context, q repository.Queries, userID string, roles ...model.Role) (*model.User, error) {
	user, err := q.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeForbidden, "user %s is not allowed to do this", userID)
		}
		return nil, apperr.Infrastructure(err, "user lookup")
	}
	for _, r := range roles {
		if user.Role == r {
			return user, nil
		}
	}
	return nil, apperr.New(apperr.CodeForbidden, "role %s is not allowed to do this", user.Role)
}

// Create schedules an ACTIVE campaign owned by organizerID
func (s *CampaignService) Create(ctx context.Context, organizerID string, in CampaignInput) (campaign *model.Campaign, err error) {
	defer observe("campaign_create", time.Now(), &err)
	defer func() { logOutcome(s.logger, "campaign create rejected", err, zap.String("organizer_id", organizerID)) }()

	if _, err := requireRole(ctx, s.store, organizerID, model.RoleOrganizer); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := s.ValidateWindow(in.Date, in.StartTime, in.EndTime); err != nil {
		return nil, err
	}

	campaign = newCampaign(in)
	campaign.Status = model.CampaignActive
	campaign.OrganizerID = &organizerID

	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		if err := checkSlot(ctx, q, in.Date, in.StartTime, in.EndTime, in.Location, ""); err != nil {
			return err
		}
		if err := q.CreateCampaign(ctx, campaign); err != nil {
			return apperr.Infrastructure(err, "campaign create")
		}
		return nil
	})
	if err != nil {
		return nil, txErr(err, "campaign create")
	}

	s.logger.Info("campaign created",
		zap.String("campaign_id", campaign.ID),
		zap.String("location", campaign.Location),
		zap.Int("max_donors", campaign.MaxDonors))
	return campaign, nil
}

// Propose records a PROPOSED campaign suggested by a beneficiary or donor.
// Proposals do not block other campaigns until approved.
func (s *CampaignService) Propose(ctx context.Context, proposerID string, in CampaignInput) (campaign *model.Campaign, err error) {
	defer observe("campaign_propose", time.Now(), &err)

	if _, err := requireRole(ctx, s.store, proposerID, model.RoleBeneficiary, model.RoleDonor); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := s.ValidateWindow(in.Date, in.StartTime, in.EndTime); err != nil {
		return nil, err
	}

	campaign = newCampaign(in)
	campaign.Status = model.CampaignProposed
	campaign.ProposedBy = &proposerID

	if err := s.store.CreateCampaign(ctx, campaign); err != nil {
		return nil, apperr.Infrastructure(err, "campaign propose")
	}
	return campaign, nil
}

// ReviewProposal approves (ACTIVE, organizer assigned) or rejects (CANCELLED)
// a PROPOSED campaign
func (s *CampaignService) ReviewProposal(ctx context.Context, campaignID, organizerID string, approve bool, reason string) (campaign *model.Campaign, err error) {
	defer observe("campaign_review", time.Now(), &err)

	if _, err := requireRole(ctx, s.store, organizerID, model.RoleOrganizer); err != nil {
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		c, err := q.GetCampaignForUpdate(ctx, campaignID)
		if err != nil {
			return lookupErr(err, "campaign", campaignID, "campaign lookup")
		}
		if c.Status != model.CampaignProposed {
			return apperr.New(apperr.CodeInvalidState, "campaign is %s, only PROPOSED campaigns can be reviewed", c.Status)
		}

		if approve {
			if err := s.ValidateWindow(c.CampaignDate, c.StartTime, c.EndTime); err != nil {
				return err
			}
			if err := checkSlot(ctx, q, c.CampaignDate, c.StartTime, c.EndTime, c.Location, c.ID); err != nil {
				return err
			}
			c.Status = model.CampaignActive
			c.OrganizerID = &organizerID
		} else {
			if reason == "" {
				reason = defaultRejectionReason
			}
			c.Status = model.CampaignCancelled
			c.RejectionReason = &reason
		}

		if err := q.UpdateCampaign(ctx, c); err != nil {
			return apperr.Infrastructure(err, "campaign update")
		}
		campaign = c
		return nil
	})
	if err != nil {
		return nil, txErr(err, "campaign review")
	}

	s.logger.Info("campaign proposal reviewed",
		zap.String("campaign_id", campaign.ID),
		zap.Bool("approved", approve))
	return campaign, nil
}

// Update edits a non-terminal campaign owned by organizerID
func (s *CampaignService) Update(ctx context.Context, campaignID, organizerID string, patch CampaignPatch) (campaign *model.Campaign, err error) {
	defer observe("campaign_update", time.Now(), &err)

	if err := validateInput(patch); err != nil {
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		c, err := q.GetCampaignForUpdate(ctx, campaignID)
		if err != nil {
			return lookupErr(err, "campaign", campaignID, "campaign lookup")
		}
		if c.Status.IsTerminal() {
			return apperr.New(apperr.CodeInvalidState, "campaign is %s and can no longer be edited", c.Status)
		}
		if !c.IsOrganizedBy(organizerID) {
			return apperr.New(apperr.CodeForbidden, "only the campaign organizer can edit it")
		}

		windowChanged := applyPatch(c, patch)

		if c.MaxDonors < c.CurrentDonors {
			return apperr.New(apperr.CodeInvalidInput,
				"max donors %d is below the %d seats already taken", c.MaxDonors, c.CurrentDonors)
		}
		// ACTIVE campaigns must not be in the past at edit time.
		if windowChanged || c.Status == model.CampaignActive {
			if err := s.ValidateWindow(c.CampaignDate, c.StartTime, c.EndTime); err != nil {
				return err
			}
		}
		if windowChanged && c.Status == model.CampaignActive {
			if err := checkSlot(ctx, q, c.CampaignDate, c.StartTime, c.EndTime, c.Location, c.ID); err != nil {
				return err
			}
		}

		if err := q.UpdateCampaign(ctx, c); err != nil {
			return apperr.Infrastructure(err, "campaign update")
		}
		campaign = c
		return nil
	})
	if err != nil {
		return nil, txErr(err, "campaign update")
	}
	return campaign, nil
}

// Complete moves an ACTIVE campaign to COMPLETED
func (s *CampaignService) Complete(ctx context.Context, campaignID, organizerID string) (*model.Campaign, error) {
	return s.finish(ctx, "campaign_complete", campaignID, organizerID, model.CampaignCompleted)
}

// Cancel moves an ACTIVE campaign to CANCELLED
func (s *CampaignService) Cancel(ctx context.Context, campaignID, organizerID string) (*model.Campaign, error) {
	return s.finish(ctx, "campaign_cancel", campaignID, organizerID, model.CampaignCancelled)
}

func (s *CampaignService) finish(ctx context.Context, op, campaignID, organizerID string, to model.CampaignStatus) (campaign *model.Campaign, err error) {
	defer observe(op, time.Now(), &err)

	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		c, err := q.GetCampaignForUpdate(ctx, campaignID)
		if err != nil {
			return lookupErr(err, "campaign", campaignID, "campaign lookup")
		}
		if !c.IsOrganizedBy(organizerID) {
			return apperr.New(apperr.CodeForbidden, "only the campaign organizer can change its status")
		}
		if c.Status != model.CampaignActive {
			return apperr.New(apperr.CodeInvalidState, "campaign is %s, expected ACTIVE", c.Status)
		}
		c.Status = to
		if err := q.UpdateCampaign(ctx, c); err != nil {
			return apperr.Infrastructure(err, "campaign update")
		}
		campaign = c
		return nil
	})
	if err != nil {
		return nil, txErr(err, op)
	}

	s.logger.Info("campaign status changed",
		zap.String("campaign_id", campaign.ID),
		zap.String("status", string(to)))
	return campaign, nil
}

// Get returns one campaign
func (s *CampaignService) Get(ctx context.Context, campaignID string) (*model.Campaign, error) {
	c, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, lookupErr(err, "campaign", campaignID, "campaign lookup")
	}
	return c, nil
}

// List returns one page of campaigns and the total match count
func (s *CampaignService) List(ctx context.Context, filter model.CampaignFilter) ([]model.Campaign, int, error) {
	campaigns, total, err := s.store.ListCampaigns(ctx, filter)
	if err != nil {
		return nil, 0, apperr.Infrastructure(err, "campaign list")
	}
	return campaigns, total, nil
}

// ReconcileSeats reports drift between current_donors and the enrollments
// holding a seat. It never rewrites the counter.
func (s *CampaignService) ReconcileSeats(ctx context.Context, campaignID string) (SeatReport, error) {
	var report SeatReport
	err := s.store.RunInTx(ctx, func(q repository.Queries) error {
		c, err := q.GetCampaign(ctx, campaignID)
		if err != nil {
			return lookupErr(err, "campaign", campaignID, "campaign lookup")
		}
		holders, err := q.CountSeatHolders(ctx, campaignID)
		if err != nil {
			return apperr.Infrastructure(err, "seat count")
		}
		report = SeatReport{
			CampaignID:  c.ID,
			MaxDonors:   c.MaxDonors,
			Counter:     c.CurrentDonors,
			SeatHolders: holders,
			Drift:       c.CurrentDonors - holders,
		}
		return nil
	})
	if err != nil {
		return SeatReport{}, txErr(err, "seat reconciliation")
	}

	if report.Drift != 0 {
		s.logger.Warn("seat counter drift detected",
			zap.String("campaign_id", campaignID),
			zap.Int("counter", report.Counter),
			zap.Int("seat_holders", report.SeatHolders))
	}
	return report, nil
}

func newCampaign(in CampaignInput) *model.Campaign {
	return &model.Campaign{
		Name:         in.Name,
		Location:     in.Location,
		Address:      in.Address,
		CampaignDate: model.DateOf(in.Date),
		StartTime:    in.StartTime,
		EndTime:      in.EndTime,
		MaxDonors:    in.MaxDonors,
		IsFeatured:   in.IsFeatured,
	}
}

// applyPatch copies set fields into c and reports whether the date, window or
// location changed.
func applyPatch(c *model.Campaign, p CampaignPatch) bool {
	changed := false
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Address != nil {
		c.Address = *p.Address
	}
	if p.MaxDonors != nil {
		c.MaxDonors = *p.MaxDonors
	}
	if p.IsFeatured != nil {
		c.IsFeatured = *p.IsFeatured
	}
	if p.Location != nil && *p.Location != c.Location {
		c.Location = *p.Location
		changed = true
	}
	if p.Date != nil {
		c.CampaignDate = model.DateOf(*p.Date)
		changed = true
	}
	if p.StartTime != nil {
		c.StartTime = *p.StartTime
		changed = true
	}
	if p.EndTime != nil {
		c.EndTime = *p.EndTime
		changed = true
	}
	return changed
}
