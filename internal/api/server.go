// Package api exposes the engine as Connect unary procedures with a JSON codec.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kkkkikiki/blooddrive/internal/service"
)

// ActorHeader identifies the authenticated caller. It is set by the gateway in
// front of this service.
const ActorHeader = "X-Actor-Id"

const (
	CampaignServiceName      = "blooddrive.v1.CampaignService"
	EnrollmentServiceName    = "blooddrive.v1.EnrollmentService"
	DonationServiceName      = "blooddrive.v1.DonationService"
	QuestionnaireServiceName = "blooddrive.v1.QuestionnaireService"
	RankingServiceName       = "blooddrive.v1.RankingService"
)

// Procedure paths.
const (
	CreateCampaignProcedure   = "/" + CampaignServiceName + "/CreateCampaign"
	ProposeCampaignProcedure  = "/" + CampaignServiceName + "/ProposeCampaign"
	ReviewProposalProcedure   = "/" + CampaignServiceName + "/ReviewProposal"
	UpdateCampaignProcedure   = "/" + CampaignServiceName + "/UpdateCampaign"
	CompleteCampaignProcedure = "/" + CampaignServiceName + "/CompleteCampaign"
	CancelCampaignProcedure   = "/" + CampaignServiceName + "/CancelCampaign"
	GetCampaignProcedure      = "/" + CampaignServiceName + "/GetCampaign"
	ListCampaignsProcedure    = "/" + CampaignServiceName + "/ListCampaigns"
	ReconcileSeatsProcedure   = "/" + CampaignServiceName + "/ReconcileSeats"

	EnrollProcedure            = "/" + EnrollmentServiceName + "/Enroll"
	CancelEnrollmentProcedure  = "/" + EnrollmentServiceName + "/CancelEnrollment"
	ConfirmEnrollmentProcedure = "/" + EnrollmentServiceName + "/ConfirmEnrollment"
	UpdateEnrollmentProcedure  = "/" + EnrollmentServiceName + "/UpdateEnrollment"
	GetEnrollmentProcedure     = "/" + EnrollmentServiceName + "/GetEnrollment"
	ListEnrollmentsProcedure   = "/" + EnrollmentServiceName + "/ListEnrollments"

	ScheduleDonationProcedure = "/" + DonationServiceName + "/ScheduleDonation"
	CompleteDonationProcedure = "/" + DonationServiceName + "/CompleteDonation"
	CancelDonationProcedure   = "/" + DonationServiceName + "/CancelDonation"
	GetDonationProcedure      = "/" + DonationServiceName + "/GetDonation"
	ListDonationsProcedure    = "/" + DonationServiceName + "/ListDonations"

	SubmitQuestionnaireProcedure = "/" + QuestionnaireServiceName + "/SubmitQuestionnaire"
	UpdateQuestionnaireProcedure = "/" + QuestionnaireServiceName + "/UpdateQuestionnaire"
	GetQuestionnaireProcedure    = "/" + QuestionnaireServiceName + "/GetQuestionnaire"
	ListQuestionnairesProcedure  = "/" + QuestionnaireServiceName + "/ListQuestionnaires"
	LatestQuestionnaireProcedure = "/" + QuestionnaireServiceName + "/GetLatestQuestionnaire"
	NextEligibleDateProcedure    = "/" + QuestionnaireServiceName + "/GetNextEligibleDate"

	GetRankingProcedure   = "/" + RankingServiceName + "/GetRanking"
	ListRankingsProcedure = "/" + RankingServiceName + "/ListRankings"
)

// Services bundles the engine services served over RPC.
type Services struct {
	Campaigns      *service.CampaignService
	Enrollments    *service.EnrollmentService
	Donations      *service.DonationService
	Questionnaires *service.QuestionnaireService
	Rankings       *service.RankingService
}

// Server serves the engine procedures
type Server struct {
	svc    Services
	logger *zap.Logger
	opts   []connect.HandlerOption
}

var validate = validator.New()

// NewServer creates a new Server instance
func NewServer(svc Services, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, logger: logger}
	s.opts = []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(s.logRejections()),
	}
	return s
}

// Mount registers every procedure on r.
func (s *Server) Mount(r chi.Router) {
	for path, h := range s.handlers() {
		r.Handle(path, h)
	}
}

func (s *Server) handlers() map[string]http.Handler {
	return map[string]http.Handler{
		CreateCampaignProcedure:   unary(s, CreateCampaignProcedure, s.createCampaign),
		ProposeCampaignProcedure:  unary(s, ProposeCampaignProcedure, s.proposeCampaign),
		ReviewProposalProcedure:   unary(s, ReviewProposalProcedure, s.reviewProposal),
		UpdateCampaignProcedure:   unary(s, UpdateCampaignProcedure, s.updateCampaign),
		CompleteCampaignProcedure: unary(s, CompleteCampaignProcedure, s.completeCampaign),
		CancelCampaignProcedure:   unary(s, CancelCampaignProcedure, s.cancelCampaign),
		GetCampaignProcedure:      unary(s, GetCampaignProcedure, s.getCampaign),
		ListCampaignsProcedure:    unary(s, ListCampaignsProcedure, s.listCampaigns),
		ReconcileSeatsProcedure:   unary(s, ReconcileSeatsProcedure, s.reconcileSeats),

		EnrollProcedure:            unary(s, EnrollProcedure, s.enroll),
		CancelEnrollmentProcedure:  unary(s, CancelEnrollmentProcedure, s.cancelEnrollment),
		ConfirmEnrollmentProcedure: unary(s, ConfirmEnrollmentProcedure, s.confirmEnrollment),
		UpdateEnrollmentProcedure:  unary(s, UpdateEnrollmentProcedure, s.updateEnrollment),
		GetEnrollmentProcedure:     unary(s, GetEnrollmentProcedure, s.getEnrollment),
		ListEnrollmentsProcedure:   unary(s, ListEnrollmentsProcedure, s.listEnrollments),

		ScheduleDonationProcedure: unary(s, ScheduleDonationProcedure, s.scheduleDonation),
		CompleteDonationProcedure: unary(s, CompleteDonationProcedure, s.completeDonation),
		CancelDonationProcedure:   unary(s, CancelDonationProcedure, s.cancelDonation),
		GetDonationProcedure:      unary(s, GetDonationProcedure, s.getDonation),
		ListDonationsProcedure:    unary(s, ListDonationsProcedure, s.listDonations),

		SubmitQuestionnaireProcedure: unary(s, SubmitQuestionnaireProcedure, s.submitQuestionnaire),
		UpdateQuestionnaireProcedure: unary(s, UpdateQuestionnaireProcedure, s.updateQuestionnaire),
		GetQuestionnaireProcedure:    unary(s, GetQuestionnaireProcedure, s.getQuestionnaire),
		ListQuestionnairesProcedure:  unary(s, ListQuestionnairesProcedure, s.listQuestionnaires),
		LatestQuestionnaireProcedure: unary(s, LatestQuestionnaireProcedure, s.latestQuestionnaire),
		NextEligibleDateProcedure:    unary(s, NextEligibleDateProcedure, s.nextEligibleDate),

		GetRankingProcedure:   unary(s, GetRankingProcedure, s.getRanking),
		ListRankingsProcedure: unary(s, ListRankingsProcedure, s.listRankings),
	}
}

// unary validates the request, runs fn and maps its error. fn receives the
// ActorHeader value, possibly empty.
func unary[Req, Res any](s *Server, procedure string, fn func(ctx context.Context, actor string, req *Req) (*Res, error)) http.Handler {
	return connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			if err := validate.Struct(req.Msg); err != nil {
				return nil, invalidArgument(err)
			}
			res, err := fn(ctx, req.Header().Get(ActorHeader), req.Msg)
			if err != nil {
				return nil, toConnectError(err)
			}
			return connect.NewResponse(res), nil
		},
		s.opts...,
	)
}

// logRejections logs every failed call with its code and latency.
func (s *Server) logRejections() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)
			if err == nil {
				return res, nil
			}
			fields := []zap.Field{
				zap.String("procedure", req.Spec().Procedure),
				zap.String("actor", req.Header().Get(ActorHeader)),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			}
			var ce *connect.Error
			if errors.As(err, &ce) {
				fields = append(fields,
					zap.String("connect_code", ce.Code().String()),
					zap.String("error_code", ce.Meta().Get(ErrorCodeHeader)))
				if ce.Code() == connect.CodeUnavailable || ce.Code() == connect.CodeInternal {
					s.logger.Error("rpc failed", fields...)
					return res, err
				}
			}
			s.logger.Debug("rpc rejected", fields...)
			return res, err
		}
	}
}

// requireActor rejects calls without a caller identity.
func requireActor(actor string) error {
	if actor == "" {
		return connect.NewError(connect.CodeUnauthenticated, errors.New(ActorHeader+" header is required"))
	}
	return nil
}
