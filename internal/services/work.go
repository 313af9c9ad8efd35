package services

import (
	"context"

	"github.com/google/uuid"

	jobsrepo "github.com/workhub/escrow-backend/internal/data/repos/jobs"
	types "github.com/workhub/escrow-backend/internal/domain"
	domainagg "github.com/workhub/escrow-backend/internal/domain/aggregates"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type WorkService interface {
	Submit(ctx context.Context, jobID, freelancerID uuid.UUID, url, note string) (domainagg.SubmitWorkResult, error)
	Approve(ctx context.Context, jobID, actorID uuid.UUID) (domainagg.ApproveWorkResult, error)
	RequestRevision(ctx context.Context, jobID, actorID uuid.UUID, note string) (domainagg.RequestRevisionResult, error)
	ListSubmissions(ctx context.Context, jobID uuid.UUID) ([]*types.WorkSubmission, error)
}

type workService struct {
	log         *logger.Logger
	submissions jobsrepo.SubmissionRepo
	jobAgg      domainagg.JobAggregate
	bus         EventBus
}

func NewWorkService(log *logger.Logger, submissions jobsrepo.SubmissionRepo, jobAgg domainagg.JobAggregate, bus EventBus) WorkService {
	return &workService{
		log:         log.With("service", "WorkService"),
		submissions: submissions,
		jobAgg:      jobAgg,
		bus:         bus,
	}
}

func (s *workService) Submit(ctx context.Context, jobID, freelancerID uuid.UUID, url, note string) (domainagg.SubmitWorkResult, error) {
	res, err := s.jobAgg.SubmitWork(ctx, domainagg.SubmitWorkInput{
		JobID:        jobID,
		FreelancerID: freelancerID,
		URL:          url,
		Note:         note,
	})
	if err != nil {
		return res, err
	}
	s.publish(ctx, Event{Type: EventWorkSubmitted, JobID: jobID, ActorID: freelancerID, Payload: map[string]any{
		"submission_id":   res.SubmissionID,
		"review_deadline": res.ReviewDeadline,
	}})
	return res, nil
}

func (s *workService) Approve(ctx context.Context, jobID, actorID uuid.UUID) (domainagg.ApproveWorkResult, error) {
	res, err := s.jobAgg.ApproveWork(ctx, domainagg.ApproveWorkInput{JobID: jobID, ActorID: actorID})
	if err != nil {
		return res, err
	}
	s.publish(ctx, Event{Type: EventJobCompleted, JobID: jobID, ActorID: actorID, TxRef: res.TxRef})
	return res, nil
}

func (s *workService) RequestRevision(ctx context.Context, jobID, actorID uuid.UUID, note string) (domainagg.RequestRevisionResult, error) {
	res, err := s.jobAgg.RequestRevision(ctx, domainagg.RequestRevisionInput{
		JobID:   jobID,
		ActorID: actorID,
		Note:    note,
	})
	if err != nil {
		return res, err
	}
	s.publish(ctx, Event{Type: EventWorkRevision, JobID: jobID, ActorID: actorID, Payload: map[string]any{
		"submission_deadline": res.SubmissionDeadline,
	}})
	return res, nil
}

func (s *workService) ListSubmissions(ctx context.Context, jobID uuid.UUID) ([]*types.WorkSubmission, error) {
	return s.submissions.ListByJob(dbctx.Context{Ctx: ctx}, jobID)
}

func (s *workService) publish(ctx context.Context, evt Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.log.Warn("lifecycle event publish failed", "type", evt.Type, "job_id", evt.JobID.String(), "error", err)
	}
}
