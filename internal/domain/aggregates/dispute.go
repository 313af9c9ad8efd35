package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DisputeAggregate owns the arbitration lifecycle nested under a disputed
// job: evidence collection, committee rounds, vote tallying and the final
// settlement. Rounds run strictly one at a time; the 2-of-3 threshold is
// re-checked after every vote insert so resolution does not depend on
// arrival order.
type DisputeAggregate interface {
	Aggregate

	// Open moves the job to disputed and records the opener's evidence,
	// starting the counterparty's rebuttal window.
	Open(ctx context.Context, in OpenDisputeInput) (OpenDisputeResult, error)

	// SubmitRebuttal attaches the counterparty's evidence before the
	// deadline, clearing the way for round one.
	SubmitRebuttal(ctx context.Context, in SubmitRebuttalInput) (SubmitRebuttalResult, error)

	// ExpireEvidenceDeadline short-circuits a dispute with no rebuttal:
	// the opener wins without a committee.
	ExpireEvidenceDeadline(ctx context.Context, in ExpireEvidenceInput) (ExpireEvidenceResult, error)

	// ConveneRound opens the next voting round with an immutable
	// committee of three distinct arbiters.
	ConveneRound(ctx context.Context, in ConveneRoundInput) (ConveneRoundResult, error)

	// CastVote records one arbiter's vote and re-evaluates the round and
	// the best-of-three tally.
	CastVote(ctx context.Context, in CastVoteInput) (CastVoteResult, error)

	// ExpireRoundDeadline closes a round whose deadline elapsed without
	// two concordant votes, resolving it from whatever votes exist.
	ExpireRoundDeadline(ctx context.Context, in ExpireRoundInput) (ExpireRoundResult, error)

	// Settle pays the whole escrow to the final winner, applies the
	// reputation consequences and completes the job.
	Settle(ctx context.Context, in SettleDisputeInput) (SettleDisputeResult, error)
}

type OpenDisputeInput struct {
	JobID    uuid.UUID
	OpenerID uuid.UUID
	Evidence string
	At       time.Time
}

type OpenDisputeResult struct {
	DisputeID        uuid.UUID
	JobID            uuid.UUID
	OpenedBy         string
	Status           string
	EvidenceDeadline time.Time
}

type SubmitRebuttalInput struct {
	DisputeID uuid.UUID
	PartyID   uuid.UUID
	Evidence  string
	At        time.Time
}

// SubmitRebuttalResult.NextRound is always 1: a rebuttal clears the
// evidence phase and round one must be convened.
type SubmitRebuttalResult struct {
	DisputeID uuid.UUID
	Status    string
	NextRound int
}

type ExpireEvidenceInput struct {
	DisputeID uuid.UUID
	At        time.Time
}

type ExpireEvidenceResult struct {
	DisputeID   uuid.UUID
	Applied     bool
	Status      string
	FinalWinner string
}

type ConveneRoundInput struct {
	DisputeID uuid.UUID
	RoundNo   int
	// Committee is the selector's draw: exactly three distinct arbiter
	// ids, none of them a party to the job.
	Committee []uuid.UUID
	At        time.Time
}

type ConveneRoundResult struct {
	DisputeID    uuid.UUID
	RoundID      uuid.UUID
	RoundNo      int
	Status       string
	VoteDeadline time.Time
}

type CastVoteInput struct {
	DisputeID    uuid.UUID
	RoundID      uuid.UUID
	ArbiterID    uuid.UUID
	EmployerWins bool
	TxRef        string
	At           time.Time
}

// CastVoteResult reports the tally consequences of one vote. Accepted is
// false for a duplicate vote by the same arbiter. When the round reaches
// two concordant votes RoundWinner is set; when that win is a party's
// second, FinalWinner is set and no further round is convened, otherwise
// NextRound names the round the caller should convene.
type CastVoteResult struct {
	DisputeID   uuid.UUID
	RoundID     uuid.UUID
	Accepted    bool
	RoundWinner string
	FinalWinner string
	NextRound   int
	Status      string
}

type ExpireRoundInput struct {
	DisputeID uuid.UUID
	RoundID   uuid.UUID
	At        time.Time
}

// ExpireRoundResult mirrors CastVoteResult for the deadline path. A round
// with a vote majority resolves to that party; a tie or an empty round
// yields a fresh round while capacity remains, else the opener wins.
type ExpireRoundResult struct {
	DisputeID   uuid.UUID
	RoundID     uuid.UUID
	Applied     bool
	RoundWinner string
	FinalWinner string
	NextRound   int
	Status      string
}

type SettleDisputeInput struct {
	DisputeID uuid.UUID
	At        time.Time
}

type SettleDisputeResult struct {
	DisputeID   uuid.UUID
	JobID       uuid.UUID
	FinalWinner string
	WinnerID    uuid.UUID
	TxRef       string
	Status      string
	JobStatus   string
}
