package model

import "time"

// EnrollmentStatus is the lifecycle state of an enrollment.
//   - PENDING: holds a seat, awaiting the organizer.
//   - WAITLIST: campaign was full at creation; holds no seat.
//   - CONFIRMED: holds a seat, confirmed by the organizer.
//   - CANCELLED: released by the donor.
type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "PENDING"
	EnrollmentConfirmed EnrollmentStatus = "CONFIRMED"
	EnrollmentCancelled EnrollmentStatus = "CANCELLED"
	EnrollmentWaitlist  EnrollmentStatus = "WAITLIST"
)

// HoldsSeat reports whether an enrollment in this status occupies a campaign seat.
func (s EnrollmentStatus) HoldsSeat() bool {
	return s == EnrollmentPending || s == EnrollmentConfirmed
}

// Enrollment represents a donor's claim on a campaign seat
type Enrollment struct {
	ID            string           `db:"id" json:"id"`
	DonorID       string           `db:"donor_id" json:"donor_id"`
	CampaignID    string           `db:"campaign_id" json:"campaign_id"`
	Status        EnrollmentStatus `db:"status" json:"status"`
	PreferredTime *Clock           `db:"preferred_time" json:"preferred_time,omitempty"`
	Notes         *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentFilter narrows an enrollment listing.
type EnrollmentFilter struct {
	Status     EnrollmentStatus
	CampaignID string
	DonorID    string
	Limit      int
	Page       int
}
