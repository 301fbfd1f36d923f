package model

import "time"

type BloodType string

const (
	BloodTypeA  BloodType = "A"
	BloodTypeB  BloodType = "B"
	BloodTypeAB BloodType = "AB"
	BloodTypeO  BloodType = "O"
)

type RhFactor string

const (
	RhPositive RhFactor = "POSITIVE"
	RhNegative RhFactor = "NEGATIVE"
)

// EligibilityStatus is the verdict of a questionnaire evaluation.
type EligibilityStatus string

const (
	Eligible       EligibilityStatus = "ELIGIBLE"
	NotEligible    EligibilityStatus = "NOT_ELIGIBLE"
	RequiresReview EligibilityStatus = "REQUIRES_REVIEW"
)

// HealthAnswers are the raw answers a donor submits.
type HealthAnswers struct {
	WeightKg                      float64    `db:"weight_kg" json:"weight_kg" validate:"gt=0"`
	HeightCm                      float64    `db:"height_cm" json:"height_cm" validate:"min=100,max=250"`
	BloodType                     BloodType  `db:"blood_type" json:"blood_type" validate:"oneof=A B AB O"`
	RhFactor                      RhFactor   `db:"rh_factor" json:"rh_factor" validate:"oneof=POSITIVE NEGATIVE"`
	LastDonationDate              *time.Time `db:"last_donation_date" json:"last_donation_date,omitempty"`
	HasDonatedBefore              bool       `db:"has_donated_before" json:"has_donated_before"`
	HasChronicDisease             bool       `db:"has_chronic_disease" json:"has_chronic_disease"`
	IsTakingMedication            bool       `db:"is_taking_medication" json:"is_taking_medication"`
	HadRecentSurgery              bool       `db:"had_recent_surgery" json:"had_recent_surgery"`
	HadRecentTattooPiercing       bool       `db:"had_recent_tattoo_piercing" json:"had_recent_tattoo_piercing"`
	IsPregnantOrBreastfeeding     bool       `db:"is_pregnant_or_breastfeeding" json:"is_pregnant_or_breastfeeding"`
	HadRecentTravelToEndemicAreas bool       `db:"had_recent_travel_to_endemic_areas" json:"had_recent_travel_to_endemic_areas"`
	HasRiskyBehavior              bool       `db:"has_risky_behavior" json:"has_risky_behavior"`
	HadCovidRecently              bool       `db:"had_covid_recently" json:"had_covid_recently"`
	ReceivedVaccineRecently       bool       `db:"received_vaccine_recently" json:"received_vaccine_recently"`
	AdditionalNotes               *string    `db:"additional_notes" json:"additional_notes,omitempty"`
}

// HealthQuestionnaire is one questionnaire submission with its derived verdict.
// EligibilityStatus, IneligibilityReasons and NextEligibleDate are only ever
// written from an evaluation of the embedded answers.
type HealthQuestionnaire struct {
	ID      string `db:"id" json:"id"`
	DonorID string `db:"donor_id" json:"donor_id"`
	HealthAnswers

	EligibilityStatus    EligibilityStatus `db:"eligibility_status" json:"eligibility_status"`
	IneligibilityReasons *string           `db:"ineligibility_reasons" json:"ineligibility_reasons"`
	NextEligibleDate     *time.Time        `db:"next_eligible_date" json:"next_eligible_date"`
	CreatedAt            time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time         `db:"updated_at" json:"updated_at"`
}
