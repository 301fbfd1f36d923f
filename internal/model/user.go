package model

import "time"

// Role is a user's role in the platform. Users are owned by the identity service;
// this is the projection the engine needs.
type Role string

const (
	RoleDonor       Role = "DONOR"
	RoleOrganizer   Role = "ORGANIZER"
	RoleBeneficiary Role = "BENEFICIARY"
	RoleAdmin       Role = "ADMIN"
)

// User represents a platform user in the database
type User struct {
	ID            string    `db:"id" json:"id"`
	Role          Role      `db:"role" json:"role"`
	DonationCount int       `db:"donation_count" json:"donation_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
