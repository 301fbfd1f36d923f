package api

import (
	"time"

	"github.com/kkkkikiki/blooddrive/internal/model"
	"github.com/kkkkikiki/blooddrive/internal/service"
)

// Dates travel as "2006-01-02" and times of day as "15:04".

// CampaignFields are the campaign attributes shared by create and propose.
type CampaignFields struct {
	Name       string `json:"name" validate:"required,max=200"`
	Location   string `json:"location" validate:"required,max=200"`
	Address    string `json:"address" validate:"max=500"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime    string `json:"end_time" validate:"required,datetime=15:04"`
	MaxDonors  int    `json:"max_donors" validate:"gt=0"`
	IsFeatured bool   `json:"is_featured"`
}

func (f CampaignFields) input() (service.CampaignInput, error) {
	date, err := model.ParseDate(f.Date)
	if err != nil {
		return service.CampaignInput{}, err
	}
	start, err := model.ParseClock(f.StartTime)
	if err != nil {
		return service.CampaignInput{}, err
	}
	end, err := model.ParseClock(f.EndTime)
	if err != nil {
		return service.CampaignInput{}, err
	}
	return service.CampaignInput{
		Name:       f.Name,
		Location:   f.Location,
		Address:    f.Address,
		Date:       date,
		StartTime:  start,
		EndTime:    end,
		MaxDonors:  f.MaxDonors,
		IsFeatured: f.IsFeatured,
	}, nil
}

type CreateCampaignRequest struct {
	CampaignFields
}

type ProposeCampaignRequest struct {
	CampaignFields
}

type ReviewProposalRequest struct {
	CampaignID string `json:"campaign_id" validate:"required"`
	Approve    bool   `json:"approve"`
	Reason     string `json:"reason" validate:"max=1000"`
}

type UpdateCampaignRequest struct {
	CampaignID string  `json:"campaign_id" validate:"required"`
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Location   *string `json:"location,omitempty" validate:"omitempty,min=1,max=200"`
	Address    *string `json:"address,omitempty" validate:"omitempty,max=500"`
	Date       *string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StartTime  *string `json:"start_time,omitempty" validate:"omitempty,datetime=15:04"`
	EndTime    *string `json:"end_time,omitempty" validate:"omitempty,datetime=15:04"`
	MaxDonors  *int    `json:"max_donors,omitempty" validate:"omitempty,gt=0"`
	IsFeatured *bool   `json:"is_featured,omitempty"`
}

func (r *UpdateCampaignRequest) patch() (service.CampaignPatch, error) {
	p := service.CampaignPatch{
		Name:       r.Name,
		Location:   r.Location,
		Address:    r.Address,
		MaxDonors:  r.MaxDonors,
		IsFeatured: r.IsFeatured,
	}
	if r.Date != nil {
		d, err := model.ParseDate(*r.Date)
		if err != nil {
			return p, err
		}
		p.Date = &d
	}
	if r.StartTime != nil {
		c, err := model.ParseClock(*r.StartTime)
		if err != nil {
			return p, err
		}
		p.StartTime = &c
	}
	if r.EndTime != nil {
		c, err := model.ParseClock(*r.EndTime)
		if err != nil {
			return p, err
		}
		p.EndTime = &c
	}
	return p, nil
}

type CampaignIDRequest struct {
	CampaignID string `json:"campaign_id" validate:"required"`
}

type ListCampaignsRequest struct {
	Status        string `json:"status,omitempty" validate:"omitempty,oneof=PROPOSED ACTIVE COMPLETED CANCELLED"`
	DateFrom      string `json:"date_from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DateTo        string `json:"date_to,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Search        string `json:"search,omitempty" validate:"max=200"`
	FeaturedOnly  bool   `json:"featured_only,omitempty"`
	AvailableOnly bool   `json:"available_only,omitempty"`
	Descending    bool   `json:"descending,omitempty"`
	Limit         int    `json:"limit,omitempty" validate:"min=0,max=100"`
	Page          int    `json:"page,omitempty" validate:"min=0"`
}

func (r *ListCampaignsRequest) filter() (model.CampaignFilter, error) {
	f := model.CampaignFilter{
		Status:        model.CampaignStatus(r.Status),
		Search:        r.Search,
		FeaturedOnly:  r.FeaturedOnly,
		AvailableOnly: r.AvailableOnly,
		Descending:    r.Descending,
		Limit:         r.Limit,
		Page:          r.Page,
	}
	var err error
	if f.DateFrom, err = optionalDate(r.DateFrom); err != nil {
		return f, err
	}
	if f.DateTo, err = optionalDate(r.DateTo); err != nil {
		return f, err
	}
	return f, nil
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

type CampaignResponse struct {
	Campaign *model.Campaign `json:"campaign"`
}

type ListCampaignsResponse struct {
	Campaigns []model.Campaign `json:"campaigns"`
	Total     int              `json:"total"`
}

type SeatReportResponse struct {
	Report service.SeatReport `json:"report"`
}

type EnrollRequest struct {
	CampaignID    string  `json:"campaign_id" validate:"required"`
	PreferredTime *string `json:"preferred_time,omitempty" validate:"omitempty,datetime=15:04"`
	Notes         *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type UpdateEnrollmentRequest struct {
	EnrollmentID  string  `json:"enrollment_id" validate:"required"`
	PreferredTime *string `json:"preferred_time,omitempty" validate:"omitempty,datetime=15:04"`
	Notes         *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

func preferences(preferredTime, notes *string) (service.Preferences, error) {
	prefs := service.Preferences{Notes: notes}
	if preferredTime != nil {
		c, err := model.ParseClock(*preferredTime)
		if err != nil {
			return prefs, err
		}
		prefs.PreferredTime = &c
	}
	return prefs, nil
}

type EnrollmentIDRequest struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
}

type ListEnrollmentsRequest struct {
	CampaignID string `json:"campaign_id,omitempty"`
	DonorID    string `json:"donor_id,omitempty"`
	Status     string `json:"status,omitempty" validate:"omitempty,oneof=PENDING CONFIRMED CANCELLED WAITLIST"`
	Limit      int    `json:"limit,omitempty" validate:"min=0,max=100"`
	Page       int    `json:"page,omitempty" validate:"min=0"`
}

type EnrollmentResponse struct {
	Enrollment *model.Enrollment `json:"enrollment"`
}

type ListEnrollmentsResponse struct {
	Enrollments []model.Enrollment `json:"enrollments"`
	Total       int                `json:"total"`
}

type ScheduleDonationRequest struct {
	CampaignID string  `json:"campaign_id" validate:"required"`
	Date       string  `json:"date" validate:"required,datetime=2006-01-02"`
	Time       string  `json:"time" validate:"required,datetime=15:04"`
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

func scheduleInput(date time.Time, at model.Clock, notes *string) service.ScheduleInput {
	return service.ScheduleInput{Date: date, Time: at, Notes: notes}
}

type CompleteDonationRequest struct {
	DonationID string `json:"donation_id" validate:"required"`
	QuantityML int    `json:"quantity_ml"`
}

type DonationIDRequest struct {
	DonationID string `json:"donation_id" validate:"required"`
}

// ListDonationsRequest lists the caller's donations.
type ListDonationsRequest struct{}

type DonationResponse struct {
	Donation *model.Donation `json:"donation"`
}

type ListDonationsResponse struct {
	Donations []model.Donation `json:"donations"`
}

type SubmitQuestionnaireRequest struct {
	Answers model.HealthAnswers `json:"answers"`
}

type UpdateQuestionnaireRequest struct {
	QuestionnaireID string              `json:"questionnaire_id" validate:"required"`
	Answers         model.HealthAnswers `json:"answers"`
}

type QuestionnaireIDRequest struct {
	QuestionnaireID string `json:"questionnaire_id" validate:"required"`
}

// DonorRequest targets the caller when DonorID is empty.
type DonorRequest struct {
	DonorID string `json:"donor_id,omitempty"`
}

type QuestionnaireResponse struct {
	Questionnaire *model.HealthQuestionnaire `json:"questionnaire"`
}

type ListQuestionnairesResponse struct {
	Questionnaires []model.HealthQuestionnaire `json:"questionnaires"`
}

type NextEligibleDateResponse struct {
	// NextEligibleDate is empty when the donor has never donated.
	NextEligibleDate string `json:"next_eligible_date,omitempty"`
}

type ListRankingsRequest struct {
	Limit int `json:"limit,omitempty" validate:"min=0,max=100"`
	Page  int `json:"page,omitempty" validate:"min=0"`
}

type RankingResponse struct {
	Ranking *model.Ranking `json:"ranking"`
}

type ListRankingsResponse struct {
	Rankings []model.Ranking `json:"rankings"`
	Total    int             `json:"total"`
}
