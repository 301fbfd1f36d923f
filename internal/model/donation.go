package model

import "time"

// DonationStatus is the lifecycle state of a donation.
type DonationStatus string

const (
	DonationScheduled DonationStatus = "SCHEDULED"
	DonationCompleted DonationStatus = "COMPLETED"
	DonationCancelled DonationStatus = "CANCELLED"
)

// Donation represents an attendance record tied to one donor and one campaign
type Donation struct {
	ID            string         `db:"id" json:"id"`
	DonorID       string         `db:"donor_id" json:"donor_id"`
	CampaignID    string         `db:"campaign_id" json:"campaign_id"`
	EnrollmentID  string         `db:"enrollment_id" json:"enrollment_id"`
	ScheduledDate time.Time      `db:"scheduled_date" json:"scheduled_date"`
	ScheduledTime Clock          `db:"scheduled_time" json:"scheduled_time"`
	Status        DonationStatus `db:"status" json:"status"`
	ActualDate    *time.Time     `db:"actual_date" json:"actual_date,omitempty"`
	QuantityML    *int           `db:"quantity_ml" json:"quantity_ml,omitempty"`
	CertificateID *string        `db:"certificate_id" json:"certificate_id,omitempty"`
	Notes         *string        `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}
