package model

import (
	"time"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignProposed  CampaignStatus = "PROPOSED"
	CampaignActive    CampaignStatus = "ACTIVE"
	CampaignCompleted CampaignStatus = "COMPLETED"
	CampaignCancelled CampaignStatus = "CANCELLED"
)

// IsTerminal reports whether the campaign can no longer change.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignCompleted || s == CampaignCancelled
}

// Campaign represents a blood drive in the database
type Campaign struct {
	ID              string         `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	Location        string         `db:"location" json:"location"`
	Address         string         `db:"address" json:"address"`
	CampaignDate    time.Time      `db:"campaign_date" json:"campaign_date"`
	StartTime       Clock          `db:"start_time" json:"start_time"`
	EndTime         Clock          `db:"end_time" json:"end_time"`
	MaxDonors       int            `db:"max_donors" json:"max_donors"`
	CurrentDonors   int            `db:"current_donors" json:"current_donors"`
	IsFeatured      bool           `db:"is_featured" json:"is_featured"`
	Status          CampaignStatus `db:"status" json:"status"`
	OrganizerID     *string        `db:"organizer_id" json:"organizer_id,omitempty"`
	ProposedBy      *string        `db:"proposed_by" json:"proposed_by,omitempty"`
	RejectionReason *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// HasFreeSeat reports whether the advisory counter is below capacity.
func (c *Campaign) HasFreeSeat() bool {
	return c.CurrentDonors < c.MaxDonors
}

// IsOrganizedBy reports whether userID is the campaign's organizer.
func (c *Campaign) IsOrganizedBy(userID string) bool {
	return c.OrganizerID != nil && *c.OrganizerID == userID
}

// CampaignFilter narrows a campaign listing.
type CampaignFilter struct {
	Status        CampaignStatus
	DateFrom      *time.Time
	DateTo        *time.Time
	Search        string
	FeaturedOnly  bool
	AvailableOnly bool
	Descending    bool
	Limit         int
	Page          int
}
