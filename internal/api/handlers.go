package api

import (
	"context"
	"time"

	"github.com/kkkkikiki/blooddrive/internal/model"
)

func (s *Server) createCampaign(ctx context.Context, actor string, req *CreateCampaignRequest) (*CampaignResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	in, err := req.input()
	if err != nil {
		return nil, invalidArgument(err)
	}
	c, err := s.svc.Campaigns.Create(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	return &CampaignResponse{Campaign: c}, nil
}

func (s *Server) proposeCampaign(ctx context.Context, actor string, req *ProposeCampaignRequest) (*CampaignResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	in, err := req.input()
	if err != nil {
		return nil, invalidArgument(err)
	}
	c, err := s.svc.Campaigns.Propose(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	return &CampaignResponse{Campaign: c}, nil
}

func (s *Server) reviewProposal(ctx context.Context, actor string, req *ReviewProposalRequest) (*CampaignResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	c, err := s.svc.Campaigns.ReviewProposal(ctx, req.CampaignID, actor, req.Approve, req.Reason)
	if err != nil {
		return nil, err
	}
	return &CampaignResponse{Campaign: c}, nil
}

func (s *Server) updateCampaign(ctx context.Context, actor string, req *UpdateCampaignRequest) (*CampaignResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	patch, err := req.patch()
	if err != nil {
		return nil, invalidArgument(err)
	}
	c, err := s.svc.Campaigns.Update(ctx, req.CampaignID, actor, patch)
	if err != nil {
		return nil, err
	}
	return &CampaignResponse{Campaign: c}, nil
}

func (s *Server) completeCampaign(ctx context.Context, actor string, req *CampaignIDRequest) (*CampaignResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	c, err := s.svc.Campaigns.Complete(ctx, req.CampaignID, actor)
	if err != nil {
		return nil, err
	}
	return &CampaignResponse{Campaign: c}, nil
}

func (s *Server) cancelCampaign(ctx context.Context, actor string, req *CampaignIDRequest) (*CampaignResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	c, err := s.svc.Campaigns.Cancel(ctx, req.CampaignID, actor)
	if err != nil {
		return nil, err
	}
	return &CampaignResponse{Campaign: c}, nil
}

func (s *Server) getCampaign(ctx context.Context, _ string, req *CampaignIDRequest) (*CampaignResponse, error) {
	c, err := s.svc.Campaigns.Get(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	return &CampaignResponse{Campaign: c}, nil
}

func (s *Server) listCampaigns(ctx context.Context, _ string, req *ListCampaignsRequest) (*ListCampaignsResponse, error) {
	filter, err := req.filter()
	if err != nil {
		return nil, invalidArgument(err)
	}
	list, total, err := s.svc.Campaigns.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ListCampaignsResponse{Campaigns: list, Total: total}, nil
}

func (s *Server) reconcileSeats(ctx context.Context, _ string, req *CampaignIDRequest) (*SeatReportResponse, error) {
	report, err := s.svc.Campaigns.ReconcileSeats(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	return &SeatReportResponse{Report: report}, nil
}

func (s *Server) enroll(ctx context.Context, actor string, req *EnrollRequest) (*EnrollmentResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	prefs, err := preferences(req.PreferredTime, req.Notes)
	if err != nil {
		return nil, invalidArgument(err)
	}
	e, err := s.svc.Enrollments.Enroll(ctx, actor, req.CampaignID, prefs)
	if err != nil {
		return nil, err
	}
	return &EnrollmentResponse{Enrollment: e}, nil
}

func (s *Server) cancelEnrollment(ctx context.Context, actor string, req *EnrollmentIDRequest) (*EnrollmentResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	e, err := s.svc.Enrollments.Cancel(ctx, req.EnrollmentID, actor)
	if err != nil {
		return nil, err
	}
	return &EnrollmentResponse{Enrollment: e}, nil
}

func (s *Server) confirmEnrollment(ctx context.Context, actor string, req *EnrollmentIDRequest) (*EnrollmentResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	e, err := s.svc.Enrollments.Confirm(ctx, req.EnrollmentID, actor)
	if err != nil {
		return nil, err
	}
	return &EnrollmentResponse{Enrollment: e}, nil
}

func (s *Server) updateEnrollment(ctx context.Context, actor string, req *UpdateEnrollmentRequest) (*EnrollmentResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	prefs, err := preferences(req.PreferredTime, req.Notes)
	if err != nil {
		return nil, invalidArgument(err)
	}
	e, err := s.svc.Enrollments.UpdatePending(ctx, req.EnrollmentID, actor, prefs)
	if err != nil {
		return nil, err
	}
	return &EnrollmentResponse{Enrollment: e}, nil
}

func (s *Server) getEnrollment(ctx context.Context, _ string, req *EnrollmentIDRequest) (*EnrollmentResponse, error) {
	e, err := s.svc.Enrollments.Get(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}
	return &EnrollmentResponse{Enrollment: e}, nil
}

func (s *Server) listEnrollments(ctx context.Context, _ string, req *ListEnrollmentsRequest) (*ListEnrollmentsResponse, error) {
	list, total, err := s.svc.Enrollments.List(ctx, model.EnrollmentFilter{
		CampaignID: req.CampaignID,
		DonorID:    req.DonorID,
		Status:     model.EnrollmentStatus(req.Status),
		Limit:      req.Limit,
		Page:       req.Page,
	})
	if err != nil {
		return nil, err
	}
	return &ListEnrollmentsResponse{Enrollments: list, Total: total}, nil
}

func (s *Server) scheduleDonation(ctx context.Context, actor string, req *ScheduleDonationRequest) (*DonationResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return nil, invalidArgument(err)
	}
	at, err := model.ParseClock(req.Time)
	if err != nil {
		return nil, invalidArgument(err)
	}
	d, err := s.svc.Donations.Schedule(ctx, actor, req.CampaignID, scheduleInput(date, at, req.Notes))
	if err != nil {
		return nil, err
	}
	return &DonationResponse{Donation: d}, nil
}

func (s *Server) completeDonation(ctx context.Context, actor string, req *CompleteDonationRequest) (*DonationResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	d, err := s.svc.Donations.Complete(ctx, req.DonationID, req.QuantityML)
	if err != nil {
		return nil, err
	}
	return &DonationResponse{Donation: d}, nil
}

func (s *Server) cancelDonation(ctx context.Context, actor string, req *DonationIDRequest) (*DonationResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	d, err := s.svc.Donations.Cancel(ctx, req.DonationID, actor)
	if err != nil {
		return nil, err
	}
	return &DonationResponse{Donation: d}, nil
}

func (s *Server) getDonation(ctx context.Context, _ string, req *DonationIDRequest) (*DonationResponse, error) {
	d, err := s.svc.Donations.Get(ctx, req.DonationID)
	if err != nil {
		return nil, err
	}
	return &DonationResponse{Donation: d}, nil
}

func (s *Server) listDonations(ctx context.Context, actor string, _ *ListDonationsRequest) (*ListDonationsResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	list, err := s.svc.Donations.ListByDonor(ctx, actor)
	if err != nil {
		return nil, err
	}
	return &ListDonationsResponse{Donations: list}, nil
}

func (s *Server) submitQuestionnaire(ctx context.Context, actor string, req *SubmitQuestionnaireRequest) (*QuestionnaireResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	hq, err := s.svc.Questionnaires.Submit(ctx, actor, req.Answers)
	if err != nil {
		return nil, err
	}
	return &QuestionnaireResponse{Questionnaire: hq}, nil
}

func (s *Server) updateQuestionnaire(ctx context.Context, actor string, req *UpdateQuestionnaireRequest) (*QuestionnaireResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	hq, err := s.svc.Questionnaires.Update(ctx, req.QuestionnaireID, req.Answers)
	if err != nil {
		return nil, err
	}
	return &QuestionnaireResponse{Questionnaire: hq}, nil
}

func (s *Server) getQuestionnaire(ctx context.Context, _ string, req *QuestionnaireIDRequest) (*QuestionnaireResponse, error) {
	hq, err := s.svc.Questionnaires.Get(ctx, req.QuestionnaireID)
	if err != nil {
		return nil, err
	}
	return &QuestionnaireResponse{Questionnaire: hq}, nil
}

func (s *Server) listQuestionnaires(ctx context.Context, actor string, req *DonorRequest) (*ListQuestionnairesResponse, error) {
	donorID, err := donorOrActor(actor, req)
	if err != nil {
		return nil, err
	}
	list, err := s.svc.Questionnaires.ListByDonor(ctx, donorID)
	if err != nil {
		return nil, err
	}
	return &ListQuestionnairesResponse{Questionnaires: list}, nil
}

func (s *Server) latestQuestionnaire(ctx context.Context, actor string, req *DonorRequest) (*QuestionnaireResponse, error) {
	donorID, err := donorOrActor(actor, req)
	if err != nil {
		return nil, err
	}
	hq, err := s.svc.Questionnaires.Latest(ctx, donorID)
	if err != nil {
		return nil, err
	}
	return &QuestionnaireResponse{Questionnaire: hq}, nil
}

func (s *Server) nextEligibleDate(ctx context.Context, actor string, req *DonorRequest) (*NextEligibleDateResponse, error) {
	donorID, err := donorOrActor(actor, req)
	if err != nil {
		return nil, err
	}
	next, err := s.svc.Questionnaires.NextEligibleDate(ctx, donorID)
	if err != nil {
		return nil, err
	}
	res := &NextEligibleDateResponse{}
	if next != nil {
		res.NextEligibleDate = next.Format(time.DateOnly)
	}
	return res, nil
}

func (s *Server) getRanking(ctx context.Context, actor string, req *DonorRequest) (*RankingResponse, error) {
	userID, err := donorOrActor(actor, req)
	if err != nil {
		return nil, err
	}
	r, err := s.svc.Rankings.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &RankingResponse{Ranking: r}, nil
}

func (s *Server) listRankings(ctx context.Context, _ string, req *ListRankingsRequest) (*ListRankingsResponse, error) {
	list, total, err := s.svc.Rankings.List(ctx, req.Limit, req.Page)
	if err != nil {
		return nil, err
	}
	return &ListRankingsResponse{Rankings: list, Total: total}, nil
}

func donorOrActor(actor string, req *DonorRequest) (string, error) {
	if req.DonorID != "" {
		return req.DonorID, nil
	}
	if err := requireActor(actor); err != nil {
		return "", err
	}
	return actor, nil
}
