package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	jobsrepo "github.com/workhub/escrow-backend/internal/data/repos/jobs"
	types "github.com/workhub/escrow-backend/internal/domain"
	domainagg "github.com/workhub/escrow-backend/internal/domain/aggregates"
	jobsdom "github.com/workhub/escrow-backend/internal/domain/jobs"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type CreateJobInput struct {
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Budget         float64     `json:"budget"`
	PlatformFeeBps int         `json:"platform_fee_bps"`
	Currency       string      `json:"currency"`
	Terms          []TermInput `json:"terms"`
}

type TermInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// JobDetail is the read model for one job page.
type JobDetail struct {
	Job          *types.Job              `json:"job"`
	Contract     *types.JobContract      `json:"contract,omitempty"`
	Terms        []*types.ContractTerm   `json:"terms,omitempty"`
	Applications []*types.JobApplication `json:"applications,omitempty"`
	Submission   *types.WorkSubmission   `json:"submission,omitempty"`
	History      []*types.JobHistory     `json:"history,omitempty"`
}

type EscrowService interface {
	CreateJob(ctx context.Context, employerID uuid.UUID, in CreateJobInput) (*types.Job, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*JobDetail, error)
	ListByEmployer(ctx context.Context, employerID uuid.UUID, limit int) ([]*types.Job, error)
	Apply(ctx context.Context, jobID, applicantID uuid.UUID, coverLetter string) (*types.JobApplication, error)

	Fund(ctx context.Context, jobID, actorID uuid.UUID) (domainagg.FundEscrowResult, error)
	SelectApplicant(ctx context.Context, jobID, applicationID, actorID uuid.UUID) (domainagg.SelectApplicantResult, error)
	SignContract(ctx context.Context, jobID, freelancerID uuid.UUID, contractHash, signTxRef string) (domainagg.SignContractResult, error)
	RejectContract(ctx context.Context, jobID, freelancerID uuid.UUID, reason string) (domainagg.RejectContractResult, error)
	Cancel(ctx context.Context, jobID, actorID uuid.UUID, reason string) (domainagg.CancelJobResult, error)
	Withdraw(ctx context.Context, jobID, freelancerID uuid.UUID) (domainagg.WithdrawResult, error)
}

type escrowService struct {
	db  *gorm.DB
	log *logger.Logger

	jobs         jobsrepo.JobRepo
	applications jobsrepo.ApplicationRepo
	terms        jobsrepo.ContractTermRepo
	contracts    jobsrepo.JobContractRepo
	submissions  jobsrepo.SubmissionRepo
	history      jobsrepo.HistoryRepo

	jobAgg domainagg.JobAggregate
	bus    EventBus
}

func NewEscrowService(
	db *gorm.DB,
	log *logger.Logger,
	jobs jobsrepo.JobRepo,
	applications jobsrepo.ApplicationRepo,
	terms jobsrepo.ContractTermRepo,
	contracts jobsrepo.JobContractRepo,
	submissions jobsrepo.SubmissionRepo,
	history jobsrepo.HistoryRepo,
	jobAgg domainagg.JobAggregate,
	bus EventBus,
) EscrowService {
	return &escrowService{
		db:           db,
		log:          log.With("service", "EscrowService"),
		jobs:         jobs,
		applications: applications,
		terms:        terms,
		contracts:    contracts,
		submissions:  submissions,
		history:      history,
		jobAgg:       jobAgg,
		bus:          bus,
	}
}

func (s *escrowService) CreateJob(ctx context.Context, employerID uuid.UUID, in CreateJobInput) (*types.Job, error) {
	if employerID == uuid.Nil {
		return nil, fmt.Errorf("employerID is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if in.Budget <= 0 {
		return nil, fmt.Errorf("budget must be positive")
	}
	if in.PlatformFeeBps < 0 || in.PlatformFeeBps > 10000 {
		return nil, fmt.Errorf("platform fee must be between 0 and 10000 bps")
	}
	currency := strings.TrimSpace(in.Currency)
	if currency == "" {
		currency = "APT"
	}

	job := &types.Job{
		EmployerID:     employerID,
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		Budget:         in.Budget,
		PlatformFeeBps: in.PlatformFeeBps,
		Currency:       currency,
		Status:         jobsdom.JobStatusDraft,
		WorkStatus:     jobsdom.WorkStatusNotStarted,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		created, err := s.jobs.Create(dbc, []*types.Job{job})
		if err != nil {
			return err
		}
		job = created[0]

		if len(in.Terms) == 0 {
			return nil
		}
		rows := make([]*types.ContractTerm, 0, len(in.Terms))
		for i, t := range in.Terms {
			tt := strings.TrimSpace(t.Title)
			tc := strings.TrimSpace(t.Content)
			if tt == "" || tc == "" {
				return fmt.Errorf("term %d is missing title or content", i+1)
			}
			rows = append(rows, &types.ContractTerm{
				JobID:   job.ID,
				Pos:     i + 1,
				Title:   tt,
				Content: tc,
			})
		}
		_, err = s.terms.CreateMany(dbc, rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (s *escrowService) GetJob(ctx context.Context, jobID uuid.UUID) (*JobDetail, error) {
	dbc := dbctx.Context{Ctx: ctx}
	job, err := s.jobs.GetByID(dbc, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("job not found")
	}

	detail := &JobDetail{Job: job}
	if detail.Contract, err = s.contracts.GetByJob(dbc, jobID); err != nil {
		return nil, fmt.Errorf("load contract: %w", err)
	}
	if detail.Terms, err = s.terms.ListByJob(dbc, jobID); err != nil {
		return nil, fmt.Errorf("load terms: %w", err)
	}
	if detail.Applications, err = s.applications.ListByJob(dbc, jobID); err != nil {
		return nil, fmt.Errorf("load applications: %w", err)
	}
	if detail.Submission, err = s.submissions.GetLiveByJob(dbc, jobID); err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}
	if detail.History, err = s.history.ListByJob(dbc, jobID, 100); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return detail, nil
}

func (s *escrowService) ListByEmployer(ctx context.Context, employerID uuid.UUID, limit int) ([]*types.Job, error) {
	return s.jobs.ListByEmployer(dbctx.Context{Ctx: ctx}, employerID, limit)
}

func (s *escrowService) Apply(ctx context.Context, jobID, applicantID uuid.UUID, coverLetter string) (*types.JobApplication, error) {
	dbc := dbctx.Context{Ctx: ctx}
	job, err := s.jobs.GetByID(dbc, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("job not found")
	}
	if job.Status != jobsdom.JobStatusOpen {
		return nil, fmt.Errorf("job is not open for applications")
	}
	if job.EmployerID == applicantID {
		return nil, fmt.Errorf("employer cannot apply to their own job")
	}

	var app *types.JobApplication
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.applications.Create(dbctx.Context{Ctx: ctx, Tx: tx}, []*types.JobApplication{{
			JobID:       jobID,
			ApplicantID: applicantID,
			CoverLetter: strings.TrimSpace(coverLetter),
			Status:      jobsdom.ApplicationStatusPending,
		}})
		if err != nil {
			return err
		}
		app = created[0]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}
	return app, nil
}

func (s *escrowService) Fund(ctx context.Context, jobID, actorID uuid.UUID) (domainagg.FundEscrowResult, error) {
	res, err := s.jobAgg.FundEscrow(ctx, domainagg.FundEscrowInput{JobID: jobID, ActorID: actorID})
	if err != nil {
		return res, err
	}
	s.publish(ctx, Event{Type: EventJobFunded, JobID: jobID, ActorID: actorID, TxRef: res.EscrowRef})
	return res, nil
}

func (s *escrowService) SelectApplicant(ctx context.Context, jobID, applicationID, actorID uuid.UUID) (domainagg.SelectApplicantResult, error) {
	res, err := s.jobAgg.SelectApplicant(ctx, domainagg.SelectApplicantInput{
		JobID:         jobID,
		ApplicationID: applicationID,
		ActorID:       actorID,
	})
	if err != nil {
		return res, err
	}
	s.publish(ctx, Event{Type: EventJobAssigned, JobID: jobID, ActorID: actorID, Payload: map[string]any{
		"freelancer_id": res.FreelancerID,
		"sign_deadline": res.SignDeadline,
	}})
	return res, nil
}

func (s *escrowService) SignContract(ctx context.Context, jobID, freelancerID uuid.UUID, contractHash, signTxRef string) (domainagg.SignContractResult, error) {
	res, err := s.jobAgg.SignContract(ctx, domainagg.SignContractInput{
		JobID:        jobID,
		FreelancerID: freelancerID,
		ContractHash: contractHash,
		SignTxRef:    signTxRef,
	})
	if err != nil {
		return res, err
	}
	s.publish(ctx, Event{Type: EventJobSigned, JobID: jobID, ActorID: freelancerID, TxRef: signTxRef})
	return res, nil
}

func (s *escrowService) RejectContract(ctx context.Context, jobID, freelancerID uuid.UUID, reason string) (domainagg.RejectContractResult, error) {
	res, err := s.jobAgg.RejectContract(ctx, domainagg.RejectContractInput{
		JobID:        jobID,
		FreelancerID: freelancerID,
		Reason:       reason,
	})
	if err != nil {
		return res, err
	}
	s.publish(ctx, Event{Type: EventJobReopened, JobID: jobID, ActorID: freelancerID})
	return res, nil
}

// Cancel routes to the pre- or post-assignment path from the current
// status; the aggregate re-validates under the row lock either way.
func (s *escrowService) Cancel(ctx context.Context, jobID, actorID uuid.UUID, reason string) (domainagg.CancelJobResult, error) {
	job, err := s.jobs.GetByID(dbctx.Context{Ctx: ctx}, jobID)
	if err != nil {
		return domainagg.CancelJobResult{}, fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return domainagg.CancelJobResult{}, fmt.Errorf("job not found")
	}

	in := domainagg.CancelJobInput{JobID: jobID, ActorID: actorID, Reason: reason}
	var res domainagg.CancelJobResult
	switch job.Status {
	case jobsdom.JobStatusDraft, jobsdom.JobStatusOpen:
		res, err = s.jobAgg.CancelBeforeAssignment(ctx, in)
	case jobsdom.JobStatusPendingSignature:
		res, err = s.jobAgg.CancelAfterAssignment(ctx, in)
	default:
		return domainagg.CancelJobResult{}, fmt.Errorf("job in status %s cannot be cancelled", job.Status)
	}
	if err != nil {
		return res, err
	}
	s.publish(ctx, Event{Type: EventJobCancelled, JobID: jobID, ActorID: actorID, TxRef: res.TxRef})
	return res, nil
}

func (s *escrowService) Withdraw(ctx context.Context, jobID, freelancerID uuid.UUID) (domainagg.WithdrawResult, error) {
	res, err := s.jobAgg.WithdrawFreelancer(ctx, domainagg.WithdrawInput{
		JobID:        jobID,
		FreelancerID: freelancerID,
	})
	if err != nil {
		return res, err
	}
	s.publish(ctx, Event{Type: EventJobReopened, JobID: jobID, ActorID: freelancerID, TxRef: res.TxRef})
	return res, nil
}

func (s *escrowService) publish(ctx context.Context, evt Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.log.Warn("lifecycle event publish failed", "type", evt.Type, "job_id", evt.JobID.String(), "error", err)
	}
}
