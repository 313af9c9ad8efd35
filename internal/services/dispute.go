package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	disputesrepo "github.com/workhub/escrow-backend/internal/data/repos/disputes"
	userrepo "github.com/workhub/escrow-backend/internal/data/repos/user"
	types "github.com/workhub/escrow-backend/internal/domain"
	domainagg "github.com/workhub/escrow-backend/internal/domain/aggregates"
	disputesdom "github.com/workhub/escrow-backend/internal/domain/disputes"
	userdom "github.com/workhub/escrow-backend/internal/domain/user"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

// RoundView pairs a round with its recorded votes.
type RoundView struct {
	Round *types.DisputeRound  `json:"round"`
	Votes []*types.DisputeVote `json:"votes"`
}

type DisputeDetail struct {
	Dispute *types.Dispute `json:"dispute"`
	Rounds  []RoundView    `json:"rounds"`
}

type DisputeService interface {
	Open(ctx context.Context, jobID, openerID uuid.UUID, evidence string) (domainagg.OpenDisputeResult, error)
	SubmitRebuttal(ctx context.Context, disputeID, partyID uuid.UUID, evidence string) (domainagg.SubmitRebuttalResult, error)
	CastVote(ctx context.Context, disputeID, roundID, arbiterID uuid.UUID, employerWins bool, txRef string) (domainagg.CastVoteResult, error)
	Settle(ctx context.Context, disputeID uuid.UUID) (domainagg.SettleDisputeResult, error)
	GetDispute(ctx context.Context, disputeID uuid.UUID) (*DisputeDetail, error)
	GetByJob(ctx context.Context, jobID uuid.UUID) (*DisputeDetail, error)

	// Scheduler entrypoints. Both run their follow-ups (convening the
	// replacement round, settling a finished dispute) before returning.
	ExpireEvidenceDeadline(ctx context.Context, disputeID uuid.UUID) (domainagg.ExpireEvidenceResult, error)
	ExpireRoundDeadline(ctx context.Context, disputeID, roundID uuid.UUID) (domainagg.ExpireRoundResult, error)

	// RetryConvene re-attempts the convening of a dispute's next round.
	// The sweep calls it for unresolved disputes with no open round, the
	// state a failed inline convening leaves behind.
	RetryConvene(ctx context.Context, disputeID uuid.UUID) error
}

type disputeService struct {
	log *logger.Logger

	disputes disputesrepo.DisputeRepo
	rounds   disputesrepo.RoundRepo
	votes    disputesrepo.VoteRepo
	users    userrepo.UserRepo

	disputeAgg domainagg.DisputeAggregate
	bus        EventBus

	// beacon feeds the deterministic committee draw so independent
	// replicas convening the same round pick the same arbiters.
	beacon string
}

func NewDisputeService(
	log *logger.Logger,
	disputes disputesrepo.DisputeRepo,
	rounds disputesrepo.RoundRepo,
	votes disputesrepo.VoteRepo,
	users userrepo.UserRepo,
	disputeAgg domainagg.DisputeAggregate,
	bus EventBus,
	beacon string,
) DisputeService {
	return &disputeService{
		log:        log.With("service", "DisputeService"),
		disputes:   disputes,
		rounds:     rounds,
		votes:      votes,
		users:      users,
		disputeAgg: disputeAgg,
		bus:        bus,
		beacon:     beacon,
	}
}

func (s *disputeService) Open(ctx context.Context, jobID, openerID uuid.UUID, evidence string) (domainagg.OpenDisputeResult, error) {
	res, err := s.disputeAgg.Open(ctx, domainagg.OpenDisputeInput{
		JobID:    jobID,
		OpenerID: openerID,
		Evidence: evidence,
	})
	if err != nil {
		return res, err
	}
	s.publish(ctx, Event{Type: EventDisputeOpened, JobID: jobID, DisputeID: res.DisputeID, ActorID: openerID, Payload: map[string]any{
		"opened_by":         res.OpenedBy,
		"evidence_deadline": res.EvidenceDeadline,
	}})
	return res, nil
}

// SubmitRebuttal records the counterparty's evidence and immediately
// convenes round one; a convening failure (empty arbiter pool, usually)
// leaves the dispute in awaiting_evidence for a later retry.
func (s *disputeService) SubmitRebuttal(ctx context.Context, disputeID, partyID uuid.UUID, evidence string) (domainagg.SubmitRebuttalResult, error) {
	res, err := s.disputeAgg.SubmitRebuttal(ctx, domainagg.SubmitRebuttalInput{
		DisputeID: disputeID,
		PartyID:   partyID,
		Evidence:  evidence,
	})
	if err != nil {
		return res, err
	}
	s.publish(ctx, Event{Type: EventDisputeRebuttal, DisputeID: disputeID, ActorID: partyID})

	if err := s.convene(ctx, disputeID, res.NextRound); err != nil {
		s.log.Warn("round convening after rebuttal failed", "dispute_id", disputeID.String(), "round", res.NextRound, "error", err)
	}
	return res, nil
}

func (s *disputeService) CastVote(ctx context.Context, disputeID, roundID, arbiterID uuid.UUID, employerWins bool, txRef string) (domainagg.CastVoteResult, error) {
	res, err := s.disputeAgg.CastVote(ctx, domainagg.CastVoteInput{
		DisputeID:    disputeID,
		RoundID:      roundID,
		ArbiterID:    arbiterID,
		EmployerWins: employerWins,
		TxRef:        txRef,
	})
	if err != nil {
		return res, err
	}
	if !res.Accepted {
		return res, nil
	}
	s.publish(ctx, Event{Type: EventDisputeVote, DisputeID: disputeID, ActorID: arbiterID, TxRef: txRef, Payload: map[string]any{
		"round_id":      roundID,
		"employer_wins": employerWins,
	}})
	s.followUp(ctx, disputeID, res.NextRound, res.FinalWinner)
	return res, nil
}

func (s *disputeService) ExpireEvidenceDeadline(ctx context.Context, disputeID uuid.UUID) (domainagg.ExpireEvidenceResult, error) {
	res, err := s.disputeAgg.ExpireEvidenceDeadline(ctx, domainagg.ExpireEvidenceInput{DisputeID: disputeID})
	if err != nil || !res.Applied {
		return res, err
	}
	s.publish(ctx, Event{Type: EventDisputeResolved, DisputeID: disputeID, Payload: map[string]any{
		"final_winner": res.FinalWinner,
		"reason":       "evidence_timeout",
	}})
	s.settleAsync(ctx, disputeID)
	return res, nil
}

func (s *disputeService) ExpireRoundDeadline(ctx context.Context, disputeID, roundID uuid.UUID) (domainagg.ExpireRoundResult, error) {
	res, err := s.disputeAgg.ExpireRoundDeadline(ctx, domainagg.ExpireRoundInput{DisputeID: disputeID, RoundID: roundID})
	if err != nil || !res.Applied {
		return res, err
	}
	s.followUp(ctx, disputeID, res.NextRound, res.FinalWinner)
	return res, nil
}

// RetryConvene picks up disputes whose inline convening failed, either
// after a rebuttal or after a decided round. The aggregate's round
// sequence check turns a lost race with another convener into a
// conflict, which callers treat as settled elsewhere.
func (s *disputeService) RetryConvene(ctx context.Context, disputeID uuid.UUID) error {
	d, err := s.disputes.GetByID(dbctx.Context{Ctx: ctx}, disputeID)
	if err != nil {
		return fmt.Errorf("load dispute: %w", err)
	}
	if d == nil || d.FinalWinner != nil {
		return nil
	}
	next := d.CurrentRound + 1
	if next > disputesdom.MaxRounds {
		return nil
	}
	return s.convene(ctx, disputeID, next)
}

func (s *disputeService) Settle(ctx context.Context, disputeID uuid.UUID) (domainagg.SettleDisputeResult, error) {
	res, err := s.disputeAgg.Settle(ctx, domainagg.SettleDisputeInput{DisputeID: disputeID})
	if err != nil {
		return res, err
	}
	s.publish(ctx, Event{Type: EventDisputeSettled, JobID: res.JobID, DisputeID: disputeID, TxRef: res.TxRef, Payload: map[string]any{
		"final_winner": res.FinalWinner,
		"winner_id":    res.WinnerID,
	}})
	return res, nil
}

func (s *disputeService) GetDispute(ctx context.Context, disputeID uuid.UUID) (*DisputeDetail, error) {
	d, err := s.disputes.GetByID(dbctx.Context{Ctx: ctx}, disputeID)
	if err != nil {
		return nil, fmt.Errorf("load dispute: %w", err)
	}
	if d == nil {
		return nil, fmt.Errorf("dispute not found")
	}
	return s.detail(ctx, d)
}

func (s *disputeService) GetByJob(ctx context.Context, jobID uuid.UUID) (*DisputeDetail, error) {
	d, err := s.disputes.GetByJob(dbctx.Context{Ctx: ctx}, jobID)
	if err != nil {
		return nil, fmt.Errorf("load dispute: %w", err)
	}
	if d == nil {
		return nil, fmt.Errorf("dispute not found")
	}
	return s.detail(ctx, d)
}

func (s *disputeService) detail(ctx context.Context, d *types.Dispute) (*DisputeDetail, error) {
	dbc := dbctx.Context{Ctx: ctx}
	rounds, err := s.rounds.ListByDispute(dbc, d.ID)
	if err != nil {
		return nil, fmt.Errorf("load rounds: %w", err)
	}
	out := &DisputeDetail{Dispute: d, Rounds: make([]RoundView, 0, len(rounds))}
	for _, r := range rounds {
		votes, err := s.votes.ListByRound(dbc, r.ID)
		if err != nil {
			return nil, fmt.Errorf("load votes for round %d: %w", r.RoundNo, err)
		}
		out.Rounds = append(out.Rounds, RoundView{Round: r, Votes: votes})
	}
	return out, nil
}

// followUp runs whatever a resolved step left behind. Failures here are
// logged, not returned: the triggering write already committed and both
// paths are retried by the deadline sweep or an explicit settle call.
func (s *disputeService) followUp(ctx context.Context, disputeID uuid.UUID, nextRound int, finalWinner string) {
	if finalWinner != "" {
		s.publish(ctx, Event{Type: EventDisputeResolved, DisputeID: disputeID, Payload: map[string]any{
			"final_winner": finalWinner,
		}})
		s.settleAsync(ctx, disputeID)
		return
	}
	if nextRound > 0 {
		if err := s.convene(ctx, disputeID, nextRound); err != nil {
			s.log.Warn("round convening failed", "dispute_id", disputeID.String(), "round", nextRound, "error", err)
		}
	}
}

func (s *disputeService) settleAsync(ctx context.Context, disputeID uuid.UUID) {
	if _, err := s.Settle(ctx, disputeID); err != nil {
		s.log.Warn("dispute settlement deferred", "dispute_id", disputeID.String(), "error", err)
	}
}

// convene draws the committee for roundNo and opens it. The draw hashes
// job id, round number and the configured beacon, so every caller that
// races to convene the same round proposes the same three arbiters.
func (s *disputeService) convene(ctx context.Context, disputeID uuid.UUID, roundNo int) error {
	dbc := dbctx.Context{Ctx: ctx}
	d, err := s.disputes.GetByID(dbc, disputeID)
	if err != nil {
		return fmt.Errorf("load dispute: %w", err)
	}
	if d == nil {
		return fmt.Errorf("dispute not found")
	}

	arbiters, err := s.users.ListActiveByRole(dbc, userdom.RoleArbiter)
	if err != nil {
		return fmt.Errorf("load arbiter pool: %w", err)
	}
	pool := make([]uuid.UUID, 0, len(arbiters))
	for _, a := range arbiters {
		pool = append(pool, a.ID)
	}
	exclude := map[uuid.UUID]struct{}{
		d.EmployerID:   {},
		d.FreelancerID: {},
	}
	committee, err := PickCommittee(pool, exclude, d.JobID, roundNo, s.beacon)
	if err != nil {
		return err
	}

	res, err := s.disputeAgg.ConveneRound(ctx, domainagg.ConveneRoundInput{
		DisputeID: disputeID,
		RoundNo:   roundNo,
		Committee: committee,
	})
	if err != nil {
		return err
	}
	s.publish(ctx, Event{Type: EventDisputeRound, JobID: d.JobID, DisputeID: disputeID, Payload: map[string]any{
		"round_id":      res.RoundID,
		"round_no":      res.RoundNo,
		"committee":     committee,
		"vote_deadline": res.VoteDeadline,
	}})
	return nil
}

func (s *disputeService) publish(ctx context.Context, evt Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.log.Warn("lifecycle event publish failed", "type", evt.Type, "dispute_id", evt.DisputeID.String(), "error", err)
	}
}
