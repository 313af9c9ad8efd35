package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	disputesrepo "github.com/workhub/escrow-backend/internal/data/repos/disputes"
	jobsrepo "github.com/workhub/escrow-backend/internal/data/repos/jobs"
	ledgerrepo "github.com/workhub/escrow-backend/internal/data/repos/ledger"
	domainagg "github.com/workhub/escrow-backend/internal/domain/aggregates"
	jobsdom "github.com/workhub/escrow-backend/internal/domain/jobs"
	"github.com/workhub/escrow-backend/internal/observability"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
	"github.com/workhub/escrow-backend/internal/utils"
)

// DeadlineScheduler sweeps elapsed deadlines and fires the matching
// timeout transition. Every transition is idempotent on the aggregate
// side, so running more than one replica of the sweep is safe; losers of
// the race just observe Applied=false.
type DeadlineScheduler struct {
	log *logger.Logger

	interval   time.Duration
	batch      int
	staleAfter time.Duration

	jobs     jobsrepo.JobRepo
	disputes disputesrepo.DisputeRepo
	rounds   disputesrepo.RoundRepo
	intents  ledgerrepo.IntentRepo

	jobAgg     domainagg.JobAggregate
	disputeSvc DisputeService

	metrics *observability.Metrics

	cancel context.CancelFunc
	done   chan struct{}
}

func NewDeadlineScheduler(
	log *logger.Logger,
	jobs jobsrepo.JobRepo,
	disputes disputesrepo.DisputeRepo,
	rounds disputesrepo.RoundRepo,
	intents ledgerrepo.IntentRepo,
	jobAgg domainagg.JobAggregate,
	disputeSvc DisputeService,
	metrics *observability.Metrics,
) *DeadlineScheduler {
	slog := log.With("service", "DeadlineScheduler")
	return &DeadlineScheduler{
		log:        slog,
		interval:   utils.GetEnvAsDuration("SWEEP_INTERVAL", 30*time.Second, slog),
		batch:      utils.GetEnvAsInt("SWEEP_BATCH_SIZE", 100, slog),
		staleAfter: utils.GetEnvAsDuration("SWEEP_STALE_INTENT_AFTER", 10*time.Minute, slog),
		jobs:       jobs,
		disputes:   disputes,
		rounds:     rounds,
		intents:    intents,
		jobAgg:     jobAgg,
		disputeSvc: disputeSvc,
		metrics:    metrics,
		done:       make(chan struct{}),
	}
}

func (s *DeadlineScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.log.Info("deadline sweep starting", "interval", s.interval.String(), "batch", s.batch)
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info("deadline sweep stopped")
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

func (s *DeadlineScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

// Sweep runs one full pass. Exported so a test or an ops endpoint can
// force a pass without waiting for the ticker.
func (s *DeadlineScheduler) Sweep(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.IncSweepRun()
	}
	now := time.Now().UTC()

	s.sweepJobs(ctx, now, "sign_timeout",
		jobsdom.JobStatusPendingSignature, "sign_deadline", nil,
		func(ctx context.Context, jobID uuid.UUID) (bool, error) {
			res, err := s.jobAgg.ExpireSignDeadline(ctx, domainagg.ExpireDeadlineInput{JobID: jobID})
			return res.Applied, err
		})

	s.sweepJobs(ctx, now, "application_timeout",
		jobsdom.JobStatusOpen, "application_deadline", nil,
		func(ctx context.Context, jobID uuid.UUID) (bool, error) {
			res, err := s.jobAgg.ExpireApplicationDeadline(ctx, domainagg.ExpireDeadlineInput{JobID: jobID})
			return res.Applied, err
		})

	s.sweepJobs(ctx, now, "submission_timeout",
		jobsdom.JobStatusInProgress, "work_submission_deadline",
		[]string{jobsdom.WorkStatusInProgress, jobsdom.WorkStatusRevisionRequested},
		func(ctx context.Context, jobID uuid.UUID) (bool, error) {
			res, err := s.jobAgg.ExpireSubmissionDeadline(ctx, domainagg.ExpireDeadlineInput{JobID: jobID})
			return res.Applied, err
		})

	s.sweepJobs(ctx, now, "review_timeout",
		jobsdom.JobStatusInProgress, "work_review_deadline",
		[]string{jobsdom.WorkStatusSubmitted},
		func(ctx context.Context, jobID uuid.UUID) (bool, error) {
			res, err := s.jobAgg.ExpireReviewDeadline(ctx, domainagg.ExpireDeadlineInput{JobID: jobID})
			return res.Applied, err
		})

	s.sweepEvidence(ctx, now)
	s.sweepRounds(ctx, now)
	s.sweepConvening(ctx)
	s.sweepStaleIntents(ctx, now)
}

func (s *DeadlineScheduler) sweepJobs(
	ctx context.Context,
	now time.Time,
	kind string,
	status, deadlineColumn string,
	workStatuses []string,
	apply func(ctx context.Context, jobID uuid.UUID) (bool, error),
) {
	rows, err := s.jobs.ListDeadlineElapsed(dbctx.Context{Ctx: ctx}, status, deadlineColumn, workStatuses, now, s.batch)
	if err != nil {
		s.log.Error("deadline sweep query failed", "kind", kind, "error", err)
		return
	}
	for _, job := range rows {
		applied, err := apply(ctx, job.ID)
		s.record(kind, applied, err)
		if err != nil {
			s.log.Warn("deadline transition failed", "kind", kind, "job_id", job.ID.String(), "error", err)
		}
	}
}

func (s *DeadlineScheduler) sweepEvidence(ctx context.Context, now time.Time) {
	rows, err := s.disputes.ListEvidenceElapsed(dbctx.Context{Ctx: ctx}, now, s.batch)
	if err != nil {
		s.log.Error("deadline sweep query failed", "kind", "evidence_timeout", "error", err)
		return
	}
	for _, d := range rows {
		res, err := s.disputeSvc.ExpireEvidenceDeadline(ctx, d.ID)
		s.record("evidence_timeout", res.Applied, err)
		if err != nil {
			s.log.Warn("deadline transition failed", "kind", "evidence_timeout", "dispute_id", d.ID.String(), "error", err)
		}
	}
}

func (s *DeadlineScheduler) sweepRounds(ctx context.Context, now time.Time) {
	rows, err := s.rounds.ListVoteElapsed(dbctx.Context{Ctx: ctx}, now, s.batch)
	if err != nil {
		s.log.Error("deadline sweep query failed", "kind", "round_timeout", "error", err)
		return
	}
	for _, r := range rows {
		res, err := s.disputeSvc.ExpireRoundDeadline(ctx, r.DisputeID, r.ID)
		s.record("round_timeout", res.Applied, err)
		if err != nil {
			s.log.Warn("deadline transition failed", "kind", "round_timeout", "round_id", r.ID.String(), "error", err)
		}
	}
}

// sweepConvening retries disputes stuck without an open round, the state
// left behind when the inline convening after a rebuttal or a decided
// round failed (empty arbiter pool, crash between writes).
func (s *DeadlineScheduler) sweepConvening(ctx context.Context) {
	rows, err := s.disputes.ListAwaitingRound(dbctx.Context{Ctx: ctx}, s.batch)
	if err != nil {
		s.log.Error("deadline sweep query failed", "kind", "convene_retry", "error", err)
		return
	}
	for _, d := range rows {
		err := s.disputeSvc.RetryConvene(ctx, d.ID)
		s.record("convene_retry", err == nil, err)
		if err != nil {
			s.log.Warn("round convening retry failed", "kind", "convene_retry", "dispute_id", d.ID.String(), "error", err)
		}
	}
}

// sweepStaleIntents only observes. A pending intent past the cutoff means
// a gateway call whose outcome was never learned; resolving it needs the
// gateway's view, so the sweep surfaces it and leaves the row alone.
func (s *DeadlineScheduler) sweepStaleIntents(ctx context.Context, now time.Time) {
	rows, err := s.intents.ListStalePending(dbctx.Context{Ctx: ctx}, now.Add(-s.staleAfter), s.batch)
	if err != nil {
		s.log.Error("stale intent sweep query failed", "error", err)
		return
	}
	for _, in := range rows {
		if s.metrics != nil {
			s.metrics.IncSweepTransition("stale_intent", "observed")
		}
		s.log.Warn("settlement intent stuck pending",
			"intent_id", in.ID.String(),
			"job_id", in.JobID.String(),
			"kind", in.Kind,
			"op", in.Op,
			"age", now.Sub(in.CreatedAt).String(),
		)
	}
}

func (s *DeadlineScheduler) record(kind string, applied bool, err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err != nil:
		s.metrics.IncSweepTransition(kind, "error")
	case applied:
		s.metrics.IncSweepTransition(kind, "applied")
	default:
		s.metrics.IncSweepTransition(kind, "noop")
	}
}
