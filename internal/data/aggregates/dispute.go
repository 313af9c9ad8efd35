package aggregates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	disputesrepo "github.com/workhub/escrow-backend/internal/data/repos/disputes"
	jobsrepo "github.com/workhub/escrow-backend/internal/data/repos/jobs"
	ledgerrepo "github.com/workhub/escrow-backend/internal/data/repos/ledger"
	reputationrepo "github.com/workhub/escrow-backend/internal/data/repos/reputation"
	userrepo "github.com/workhub/escrow-backend/internal/data/repos/user"
	types "github.com/workhub/escrow-backend/internal/domain"
	domainagg "github.com/workhub/escrow-backend/internal/domain/aggregates"
	disputesdom "github.com/workhub/escrow-backend/internal/domain/disputes"
	jobsdom "github.com/workhub/escrow-backend/internal/domain/jobs"
	ledgerdom "github.com/workhub/escrow-backend/internal/domain/ledger"
	"github.com/workhub/escrow-backend/internal/domain/reputation"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/platform/ledger"
)

// DisputeWindows holds the arbitration deadlines. Zero values fall back
// to the defaults below.
type DisputeWindows struct {
	Evidence time.Duration
	Vote     time.Duration
}

func (w DisputeWindows) withDefaults() DisputeWindows {
	if w.Evidence <= 0 {
		w.Evidence = 3 * time.Minute
	}
	if w.Vote <= 0 {
		w.Vote = 3 * time.Minute
	}
	return w
}

type DisputeAggregateDeps struct {
	Base BaseDeps

	Disputes disputesrepo.DisputeRepo
	Rounds   disputesrepo.RoundRepo
	Votes    disputesrepo.VoteRepo

	Jobs       jobsrepo.JobRepo
	History    jobsrepo.HistoryRepo
	Reputation reputationrepo.ScoreRepo
	Users      userrepo.UserRepo

	Intents   ledgerrepo.IntentRepo
	Incidents ledgerrepo.IncidentRepo
	Gateway   ledger.Gateway

	Windows DisputeWindows
}

type disputeAggregate struct {
	deps DisputeAggregateDeps
}

func NewDisputeAggregate(deps DisputeAggregateDeps) domainagg.DisputeAggregate {
	deps.Base = deps.Base.withDefaults()
	deps.Windows = deps.Windows.withDefaults()
	return &disputeAggregate{deps: deps}
}

func (a *disputeAggregate) Contract() domainagg.Contract {
	return domainagg.DisputeAggregateContract
}

func (a *disputeAggregate) Open(ctx context.Context, in domainagg.OpenDisputeInput) (domainagg.OpenDisputeResult, error) {
	const op = "Escrow.Dispute.Open"
	out := domainagg.OpenDisputeResult{JobID: in.JobID}
	if in.JobID == uuid.Nil || in.OpenerID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "jobID and openerID are required", nil)
	}
	if strings.TrimSpace(in.Evidence) == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "opening evidence is required", nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		// Job row first, dispute rows second. Every dispute write that
		// touches the job keeps this order.
		job, err := a.deps.Jobs.LockByID(dbc, in.JobID)
		if err != nil {
			return err
		}
		if job == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
		}
		if err := RequireStatusAllowed(job.Status, jobsdom.JobStatusInProgress); err != nil {
			return err
		}
		if job.FreelancerID == nil {
			return InvariantError("job has no assigned freelancer")
		}

		var opener string
		switch in.OpenerID {
		case job.EmployerID:
			opener = disputesdom.PartyEmployer
		case *job.FreelancerID:
			opener = disputesdom.PartyFreelancer
		default:
			return ValidationError("dispute opener must be a party to the job")
		}

		existing, err := a.deps.Disputes.GetByJob(dbc, job.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ConflictError("a dispute already exists for this job")
		}

		deadline := at.Add(a.deps.Windows.Evidence)
		row := &types.Dispute{
			JobID:            job.ID,
			EmployerID:       job.EmployerID,
			FreelancerID:     *job.FreelancerID,
			OpenedBy:         opener,
			EvidenceDeadline: &deadline,
			Status:           disputesdom.StatusAwaitingEvidence,
		}
		if opener == disputesdom.PartyEmployer {
			row.EmployerEvidence = in.Evidence
		} else {
			row.FreelancerEvidence = in.Evidence
		}
		d, err := a.deps.Disputes.Create(dbc, row)
		if err != nil {
			return err
		}

		// Arbitration supersedes the work clocks.
		ok, err := a.deps.Jobs.UpdateFieldsIfStatus(dbc, job.ID, []string{jobsdom.JobStatusInProgress}, map[string]interface{}{
			"status":                   jobsdom.JobStatusDisputed,
			"work_submission_deadline": nil,
			"work_review_deadline":     nil,
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "job left in_progress while opening dispute"); err != nil {
			return err
		}
		if err := appendJobHistory(a.deps.History, dbc, job.ID, uuidPtr(in.OpenerID), jobsdom.HistoryDisputeOpened, opener, ""); err != nil {
			return err
		}

		out.DisputeID = d.ID
		out.OpenedBy = opener
		out.Status = disputesdom.StatusAwaitingEvidence
		out.EvidenceDeadline = deadline
		return nil
	})
	return out, err
}

func (a *disputeAggregate) SubmitRebuttal(ctx context.Context, in domainagg.SubmitRebuttalInput) (domainagg.SubmitRebuttalResult, error) {
	const op = "Escrow.Dispute.SubmitRebuttal"
	out := domainagg.SubmitRebuttalResult{DisputeID: in.DisputeID}
	if in.DisputeID == uuid.Nil || in.PartyID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "disputeID and partyID are required", nil)
	}
	if strings.TrimSpace(in.Evidence) == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "rebuttal evidence is required", nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		d, err := a.deps.Disputes.LockByID(dbc, in.DisputeID)
		if err != nil {
			return err
		}
		if d == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "dispute not found", nil)
		}
		if d.Status != disputesdom.StatusAwaitingEvidence {
			return ConflictError("dispute is not awaiting evidence")
		}
		if d.EvidenceDeadline == nil {
			return ConflictError("rebuttal already submitted")
		}
		if at.After(*d.EvidenceDeadline) {
			return ConflictError("evidence window has closed")
		}
		responder := disputesdom.Counterparty(d.OpenedBy)
		if d.PartyID(responder) != in.PartyID {
			return ValidationError("rebuttal must come from the counterparty")
		}

		col := "freelancer_evidence"
		if responder == disputesdom.PartyEmployer {
			col = "employer_evidence"
		}
		ok, err := a.deps.Disputes.UpdateFieldsIfStatus(dbc, d.ID, disputesdom.StatusAwaitingEvidence, map[string]interface{}{
			col:                 in.Evidence,
			"evidence_deadline": nil,
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "dispute left awaiting_evidence during rebuttal"); err != nil {
			return err
		}

		out.Status = disputesdom.StatusAwaitingEvidence
		out.NextRound = 1
		return nil
	})
	return out, err
}

func (a *disputeAggregate) ExpireEvidenceDeadline(ctx context.Context, in domainagg.ExpireEvidenceInput) (domainagg.ExpireEvidenceResult, error) {
	const op = "Escrow.Dispute.ExpireEvidenceDeadline"
	out := domainagg.ExpireEvidenceResult{DisputeID: in.DisputeID}
	if in.DisputeID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "disputeID is required", nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		d, err := a.deps.Disputes.LockByID(dbc, in.DisputeID)
		if err != nil {
			return err
		}
		if d == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "dispute not found", nil)
		}
		if d.Status != disputesdom.StatusAwaitingEvidence || d.EvidenceDeadline == nil {
			// Rebuttal arrived or the dispute moved on. Not an error.
			out.Applied = false
			out.Status = d.Status
			out.FinalWinner = derefStr(d.FinalWinner)
			return nil
		}
		if err := RequireDeadlineElapsed(d.EvidenceDeadline, at); err != nil {
			return err
		}

		winner := d.OpenedBy
		ok, err := a.deps.Disputes.UpdateFieldsIfStatus(dbc, d.ID, disputesdom.StatusAwaitingEvidence, map[string]interface{}{
			"status":            disputesdom.StatusEvidenceTimeout,
			"final_winner":      winner,
			"evidence_deadline": nil,
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "dispute left awaiting_evidence during evidence timeout"); err != nil {
			return err
		}

		out.Applied = true
		out.Status = disputesdom.StatusEvidenceTimeout
		out.FinalWinner = winner
		return nil
	})
	return out, err
}

func (a *disputeAggregate) ConveneRound(ctx context.Context, in domainagg.ConveneRoundInput) (domainagg.ConveneRoundResult, error) {
	const op = "Escrow.Dispute.ConveneRound"
	out := domainagg.ConveneRoundResult{DisputeID: in.DisputeID, RoundNo: in.RoundNo}
	if in.DisputeID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "disputeID is required", nil)
	}
	if in.RoundNo < 1 || in.RoundNo > disputesdom.MaxRounds {
		return out, domainagg.NewError(domainagg.CodeValidation, op,
			fmt.Sprintf("roundNo must be between 1 and %d", disputesdom.MaxRounds), nil)
	}
	if len(in.Committee) != disputesdom.CommitteeSize {
		return out, domainagg.NewError(domainagg.CodeValidation, op,
			fmt.Sprintf("committee must hold exactly %d arbiters", disputesdom.CommitteeSize), nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		d, err := a.deps.Disputes.LockByID(dbc, in.DisputeID)
		if err != nil {
			return err
		}
		if d == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "dispute not found", nil)
		}
		if d.FinalWinner != nil {
			return ConflictError("dispute already has a final winner")
		}
		switch d.Status {
		case disputesdom.StatusAwaitingEvidence:
			if in.RoundNo != 1 {
				return ConflictError("only round one can follow the evidence phase")
			}
			if d.EvidenceDeadline != nil {
				return ConflictError("rebuttal has not been submitted")
			}
		case disputesdom.StatusVotingRound1, disputesdom.StatusVotingRound2, disputesdom.StatusVotingRound3:
		default:
			return ConflictError("dispute is not open for voting rounds")
		}
		if in.RoundNo != d.CurrentRound+1 {
			return ConflictError("rounds must be convened in sequence")
		}

		seen := make(map[uuid.UUID]struct{}, disputesdom.CommitteeSize)
		for _, id := range in.Committee {
			if id == uuid.Nil {
				return ValidationError("committee contains an empty arbiter id")
			}
			if id == d.EmployerID || id == d.FreelancerID {
				return ValidationError("a party to the job cannot arbitrate it")
			}
			if _, dup := seen[id]; dup {
				return ValidationError("committee arbiters must be distinct")
			}
			seen[id] = struct{}{}
		}

		// The previous round must be closed before the next one opens.
		if d.CurrentRound > 0 {
			prev, err := a.deps.Rounds.GetByDisputeAndNo(dbc, d.ID, d.CurrentRound)
			if err != nil {
				return err
			}
			if prev != nil && prev.Status == disputesdom.RoundStatusOpen {
				return ConflictError("previous round is still open")
			}
		}

		deadline := at.Add(a.deps.Windows.Vote)
		round, err := a.deps.Rounds.Create(dbc, &types.DisputeRound{
			DisputeID:    d.ID,
			RoundNo:      in.RoundNo,
			Arbiter1ID:   in.Committee[0],
			Arbiter2ID:   in.Committee[1],
			Arbiter3ID:   in.Committee[2],
			VoteDeadline: deadline,
			Status:       disputesdom.RoundStatusOpen,
		})
		if err != nil {
			return err
		}

		status := disputesdom.VotingStatusForRound(in.RoundNo)
		ok, err := a.deps.Disputes.UpdateFieldsIfStatus(dbc, d.ID, d.Status, map[string]interface{}{
			"status":        status,
			"current_round": in.RoundNo,
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "dispute state moved while convening round"); err != nil {
			return err
		}

		out.RoundID = round.ID
		out.Status = status
		out.VoteDeadline = deadline
		return nil
	})
	return out, err
}

func (a *disputeAggregate) CastVote(ctx context.Context, in domainagg.CastVoteInput) (domainagg.CastVoteResult, error) {
	const op = "Escrow.Dispute.CastVote"
	out := domainagg.CastVoteResult{DisputeID: in.DisputeID, RoundID: in.RoundID}
	if in.DisputeID == uuid.Nil || in.RoundID == uuid.Nil || in.ArbiterID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "disputeID, roundID and arbiterID are required", nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		d, err := a.deps.Disputes.LockByID(dbc, in.DisputeID)
		if err != nil {
			return err
		}
		if d == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "dispute not found", nil)
		}
		round, err := a.deps.Rounds.GetByID(dbc, in.RoundID)
		if err != nil {
			return err
		}
		if round == nil || round.DisputeID != d.ID {
			return domainagg.NewError(domainagg.CodeNotFound, op, "round not found", nil)
		}
		if round.Status != disputesdom.RoundStatusOpen {
			return ConflictError("round is closed")
		}
		if at.After(round.VoteDeadline) {
			return ConflictError("vote window has closed")
		}
		if !round.HasArbiter(in.ArbiterID) {
			return ValidationError("voter is not on the round committee")
		}

		inserted, err := a.deps.Votes.CreateOnce(dbc, &types.DisputeVote{
			RoundID:      round.ID,
			ArbiterID:    in.ArbiterID,
			EmployerWins: in.EmployerWins,
			TxRef:        in.TxRef,
		})
		if err != nil {
			return err
		}
		out.Status = d.Status
		if !inserted {
			out.Accepted = false
			return nil
		}
		out.Accepted = true

		votes, err := a.deps.Votes.ListByRound(dbc, round.ID)
		if err != nil {
			return err
		}
		employer, freelancer := tallyVotes(votes)

		var winner string
		switch {
		case employer >= disputesdom.QuorumVotes:
			winner = disputesdom.PartyEmployer
		case freelancer >= disputesdom.QuorumVotes:
			winner = disputesdom.PartyFreelancer
		default:
			// Round continues until quorum or the deadline.
			return nil
		}

		res, err := a.resolveRound(dbc, d, round, winner)
		if err != nil {
			return err
		}
		out.RoundWinner = winner
		out.FinalWinner = res.finalWinner
		out.NextRound = res.nextRound
		out.Status = res.status
		return nil
	})
	return out, err
}

func (a *disputeAggregate) ExpireRoundDeadline(ctx context.Context, in domainagg.ExpireRoundInput) (domainagg.ExpireRoundResult, error) {
	const op = "Escrow.Dispute.ExpireRoundDeadline"
	out := domainagg.ExpireRoundResult{DisputeID: in.DisputeID, RoundID: in.RoundID}
	if in.DisputeID == uuid.Nil || in.RoundID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "disputeID and roundID are required", nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		d, err := a.deps.Disputes.LockByID(dbc, in.DisputeID)
		if err != nil {
			return err
		}
		if d == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "dispute not found", nil)
		}
		round, err := a.deps.Rounds.GetByID(dbc, in.RoundID)
		if err != nil {
			return err
		}
		if round == nil || round.DisputeID != d.ID {
			return domainagg.NewError(domainagg.CodeNotFound, op, "round not found", nil)
		}
		if round.Status != disputesdom.RoundStatusOpen {
			out.Applied = false
			out.Status = d.Status
			out.RoundWinner = derefStr(round.Winner)
			out.FinalWinner = derefStr(d.FinalWinner)
			return nil
		}
		if err := RequireDeadlineElapsed(&round.VoteDeadline, at); err != nil {
			return err
		}

		votes, err := a.deps.Votes.ListByRound(dbc, round.ID)
		if err != nil {
			return err
		}
		employer, freelancer := tallyVotes(votes)

		// A vote majority decides the round even short of quorum; a tie
		// (including zero votes) voids it.
		if employer != freelancer {
			winner := disputesdom.PartyEmployer
			if freelancer > employer {
				winner = disputesdom.PartyFreelancer
			}
			res, err := a.resolveRound(dbc, d, round, winner)
			if err != nil {
				return err
			}
			out.Applied = true
			out.RoundWinner = winner
			out.FinalWinner = res.finalWinner
			out.NextRound = res.nextRound
			out.Status = res.status
			return nil
		}

		ok, err := a.deps.Rounds.UpdateFieldsIfStatus(dbc, round.ID, disputesdom.RoundStatusOpen, map[string]interface{}{
			"status": disputesdom.RoundStatusTied,
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "round already closed"); err != nil {
			return err
		}

		out.Applied = true
		if round.RoundNo < disputesdom.MaxRounds {
			// Void round: a fresh committee takes the next slot.
			out.NextRound = round.RoundNo + 1
			out.Status = d.Status
			return nil
		}

		// No capacity left; the tie resolves by round wins, then in the
		// opener's favor.
		empWins, freWins := d.RoundWins()
		final := d.OpenedBy
		switch {
		case empWins > freWins:
			final = disputesdom.PartyEmployer
		case freWins > empWins:
			final = disputesdom.PartyFreelancer
		}
		okd, err := a.deps.Disputes.UpdateFieldsIfStatus(dbc, d.ID, d.Status, map[string]interface{}{
			"status":       disputesdom.StatusResolved,
			"final_winner": final,
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(okd, "dispute state moved while closing final round"); err != nil {
			return err
		}
		out.FinalWinner = final
		out.Status = disputesdom.StatusResolved
		return nil
	})
	return out, err
}

func (a *disputeAggregate) Settle(ctx context.Context, in domainagg.SettleDisputeInput) (domainagg.SettleDisputeResult, error) {
	const op = "Escrow.Dispute.Settle"
	out := domainagg.SettleDisputeResult{DisputeID: in.DisputeID}
	if in.DisputeID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "disputeID is required", nil)
	}
	if err := a.readyForSettlement(op); err != nil {
		return out, err
	}

	seed, err := a.deps.Disputes.GetByID(dbctx.Context{Ctx: ctx}, in.DisputeID)
	if err != nil {
		return out, MapError(op, err)
	}
	if seed == nil {
		return out, domainagg.NewError(domainagg.CodeNotFound, op, "dispute not found", nil)
	}
	out.JobID = seed.JobID

	// A settled dispute replays as a success with the recorded reference.
	if seed.Status == disputesdom.StatusSettled {
		winner := derefStr(seed.FinalWinner)
		out.FinalWinner = winner
		out.WinnerID = seed.PartyID(winner)
		out.TxRef = seed.SettleTxRef
		out.Status = disputesdom.StatusSettled
		out.JobStatus = jobsdom.JobStatusCompleted
		return out, nil
	}
	if seed.Status != disputesdom.StatusResolved && seed.Status != disputesdom.StatusEvidenceTimeout {
		return out, domainagg.NewError(domainagg.CodePreconditionFailed, op, "dispute has no final winner yet", nil)
	}
	if seed.FinalWinner == nil {
		return out, domainagg.NewError(domainagg.CodeInvariantViolation, op, "resolved dispute has no final winner", nil)
	}
	finalWinner := *seed.FinalWinner
	winnerID := seed.PartyID(finalWinner)
	loserID := seed.PartyID(disputesdom.Counterparty(finalWinner))

	job, err := a.deps.Jobs.GetByID(dbctx.Context{Ctx: ctx}, seed.JobID)
	if err != nil {
		return out, MapError(op, err)
	}
	if job == nil {
		return out, domainagg.NewError(domainagg.CodeNotFound, op, "disputed job not found", nil)
	}
	if !job.HasEscrow() {
		return out, domainagg.NewError(domainagg.CodeInvariantViolation, op, "disputed job has no escrow", nil)
	}
	recipient, err := lookupWallet(ctx, a.deps.Users, winnerID)
	if err != nil {
		return out, MapError(op, err)
	}
	resolvedStatus := seed.Status

	st, err := runSettlement(ctx, a.settlement(), settlementRun{
		Op:     op,
		JobID:  seed.JobID,
		Kind:   ledgerdom.IntentPayout,
		Amount: job.EscrowAmount,
		Prepare: func(dbc dbctx.Context) error {
			j, err := a.deps.Jobs.LockByID(dbc, seed.JobID)
			if err != nil {
				return err
			}
			if j == nil {
				return domainagg.NewError(domainagg.CodeNotFound, op, "disputed job not found", nil)
			}
			if err := RequireStatusAllowed(j.Status, jobsdom.JobStatusDisputed); err != nil {
				return err
			}
			d, err := a.deps.Disputes.LockByID(dbc, seed.ID)
			if err != nil {
				return err
			}
			if d == nil {
				return domainagg.NewError(domainagg.CodeNotFound, op, "dispute not found", nil)
			}
			if d.Status != resolvedStatus {
				return ConflictError("dispute state moved before settlement")
			}
			if d.FinalWinner == nil || *d.FinalWinner != finalWinner {
				return ConflictError("final winner changed before settlement")
			}
			return nil
		},
		Call: func(ctx context.Context, intentID uuid.UUID) (*ledger.Settlement, error) {
			return a.deps.Gateway.Payout(ctx, ledger.PayoutRequest{
				IntentID:  intentID,
				EscrowRef: *job.EscrowRef,
				Recipient: recipient,
			})
		},
		Persist: func(dbc dbctx.Context, st *ledger.Settlement) error {
			j, err := a.deps.Jobs.LockByID(dbc, seed.JobID)
			if err != nil {
				return err
			}
			if j == nil {
				return domainagg.NewError(domainagg.CodeNotFound, op, "disputed job not found", nil)
			}
			if _, err := a.deps.Reputation.ApplyEvent(dbc, winnerID, seed.JobID, reputation.EventDisputeWon); err != nil {
				return err
			}
			if _, err := a.deps.Reputation.ApplyEvent(dbc, loserID, seed.JobID, reputation.EventDisputeLost); err != nil {
				return err
			}
			ok, err := a.deps.Disputes.UpdateFieldsIfStatus(dbc, seed.ID, resolvedStatus, map[string]interface{}{
				"status":        disputesdom.StatusSettled,
				"settle_tx_ref": st.TxRef,
			})
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, "dispute left resolved during settlement"); err != nil {
				return err
			}
			okj, err := a.deps.Jobs.UpdateFieldsIfStatus(dbc, seed.JobID, []string{jobsdom.JobStatusDisputed}, map[string]interface{}{
				"status": jobsdom.JobStatusCompleted,
			})
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(okj, "job left disputed during settlement"); err != nil {
				return err
			}
			return appendJobHistory(a.deps.History, dbc, seed.JobID, nil, jobsdom.HistoryDisputeSettled, finalWinner, st.TxRef)
		},
	})
	if err != nil {
		return out, err
	}

	out.FinalWinner = finalWinner
	out.WinnerID = winnerID
	out.TxRef = st.TxRef
	out.Status = disputesdom.StatusSettled
	out.JobStatus = jobsdom.JobStatusCompleted
	return out, nil
}

// roundResolution is the tally consequence of closing one round.
type roundResolution struct {
	finalWinner string
	nextRound   int
	status      string
}

// resolveRound closes an open round with a winner, records the win on the
// dispute and re-evaluates the best-of-three tally.
func (a *disputeAggregate) resolveRound(dbc dbctx.Context, d *types.Dispute, round *types.DisputeRound, winner string) (roundResolution, error) {
	res := roundResolution{status: d.Status}

	ok, err := a.deps.Rounds.UpdateFieldsIfStatus(dbc, round.ID, disputesdom.RoundStatusOpen, map[string]interface{}{
		"status": disputesdom.RoundStatusDecided,
		"winner": winner,
	})
	if err != nil {
		return res, err
	}
	if err := RequireCASSuccess(ok, "round already closed"); err != nil {
		return res, err
	}

	empWins, freWins := d.RoundWins()
	if winner == disputesdom.PartyEmployer {
		empWins++
	} else {
		freWins++
	}

	updates := map[string]interface{}{
		fmt.Sprintf("round%d_winner", round.RoundNo): winner,
	}
	switch {
	case empWins >= disputesdom.WinsNeeded:
		res.finalWinner = disputesdom.PartyEmployer
	case freWins >= disputesdom.WinsNeeded:
		res.finalWinner = disputesdom.PartyFreelancer
	case round.RoundNo >= disputesdom.MaxRounds:
		// Capacity exhausted without two wins (a void round in between).
		// The leading party takes it; a dead heat goes to the opener.
		switch {
		case empWins > freWins:
			res.finalWinner = disputesdom.PartyEmployer
		case freWins > empWins:
			res.finalWinner = disputesdom.PartyFreelancer
		default:
			res.finalWinner = d.OpenedBy
		}
	default:
		res.nextRound = round.RoundNo + 1
	}
	if res.finalWinner != "" {
		updates["final_winner"] = res.finalWinner
		updates["status"] = disputesdom.StatusResolved
		res.status = disputesdom.StatusResolved
	}

	okd, err := a.deps.Disputes.UpdateFieldsIfStatus(dbc, d.ID, d.Status, updates)
	if err != nil {
		return res, err
	}
	if err := RequireCASSuccess(okd, "dispute state moved while resolving round"); err != nil {
		return res, err
	}
	return res, nil
}

func (a *disputeAggregate) settlement() settlementDeps {
	return settlementDeps{
		Base:      a.deps.Base,
		Intents:   a.deps.Intents,
		Incidents: a.deps.Incidents,
		Gateway:   a.deps.Gateway,
	}
}

func (a *disputeAggregate) ready(op string) error {
	if a.deps.Disputes == nil || a.deps.Rounds == nil || a.deps.Votes == nil ||
		a.deps.Jobs == nil || a.deps.History == nil || a.deps.Reputation == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "dispute aggregate repos not configured", nil)
	}
	return nil
}

func (a *disputeAggregate) readyForSettlement(op string) error {
	if err := a.ready(op); err != nil {
		return err
	}
	if a.deps.Intents == nil || a.deps.Gateway == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "settlement deps not configured", nil)
	}
	return nil
}

func tallyVotes(votes []*types.DisputeVote) (employer, freelancer int) {
	for _, v := range votes {
		if v.EmployerWins {
			employer++
		} else {
			freelancer++
		}
	}
	return employer, freelancer
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
