package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobAggregate owns the job lifecycle invariants: status and work-status
// transitions, escrow linkage, deadlines and the reputation consequences
// of terminal events.
//
// Write method failures return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeConflict, CodeInvariantViolation,
// CodePreconditionFailed, CodeRetryable, CodeCompensationFailed,
// CodeInternal.
//
// Deadline-driven methods are idempotent: when the guarded state has
// already moved on, they report Applied=false instead of failing, so any
// caller (a party or the scheduler sweep) can fire them safely.
type JobAggregate interface {
	Aggregate

	// FundEscrow locks budget plus the platform fee on the ledger and
	// opens the job for applications. The escrow reference is set exactly
	// once, from the confirmed settlement.
	FundEscrow(ctx context.Context, in FundEscrowInput) (FundEscrowResult, error)

	// SelectApplicant accepts one pending application, rejects the rest
	// and starts the signing window.
	SelectApplicant(ctx context.Context, in SelectApplicantInput) (SelectApplicantResult, error)

	// SignContract records the freelancer's co-signature over the fixed
	// contract hash and starts work.
	SignContract(ctx context.Context, in SignContractInput) (SignContractResult, error)

	// RejectContract is the freelancer's explicit decline. The job
	// reopens; no reputation penalty applies.
	RejectContract(ctx context.Context, in RejectContractInput) (RejectContractResult, error)

	// ExpireSignDeadline reopens an unsigned job past its sign deadline
	// and penalizes the selected applicant.
	ExpireSignDeadline(ctx context.Context, in ExpireDeadlineInput) (ExpireDeadlineResult, error)

	// CancelBeforeAssignment cancels a draft or open job, refunding the
	// full budget. The platform fee is retained.
	CancelBeforeAssignment(ctx context.Context, in CancelJobInput) (CancelJobResult, error)

	// CancelAfterAssignment cancels a job awaiting signature: 60% of the
	// budget refunds to the employer, 40% is retained as penalty.
	CancelAfterAssignment(ctx context.Context, in CancelJobInput) (CancelJobResult, error)

	// ExpireApplicationDeadline expires an open job with no accepted
	// application, refunding the budget minus the platform fee.
	ExpireApplicationDeadline(ctx context.Context, in ExpireDeadlineInput) (ExpireDeadlineResult, error)

	// SubmitWork records a delivery and starts the review window. Any
	// previous live submission is superseded, never deleted.
	SubmitWork(ctx context.Context, in SubmitWorkInput) (SubmitWorkResult, error)

	// ApproveWork settles the escrow to the freelancer and completes the
	// job. Both parties earn trust.
	ApproveWork(ctx context.Context, in ApproveWorkInput) (ApproveWorkResult, error)

	// RequestRevision sends a submission back with a note and restarts
	// the submission window. Revision count is unbounded.
	RequestRevision(ctx context.Context, in RequestRevisionInput) (RequestRevisionResult, error)

	// ExpireReviewDeadline auto-approves an unactioned submission past
	// the review deadline. Callable by any party; the employer is
	// penalized for the timeout.
	ExpireReviewDeadline(ctx context.Context, in ExpireDeadlineInput) (ExpireDeadlineResult, error)

	// ExpireSubmissionDeadline removes a freelancer who never delivered
	// and reopens the job, penalizing the freelancer.
	ExpireSubmissionDeadline(ctx context.Context, in ExpireDeadlineInput) (ExpireDeadlineResult, error)

	// WithdrawFreelancer is the freelancer's voluntary exit before
	// approval: a withdrawal penalty is retained on the ledger, the job
	// reopens and the freelancer is penalized.
	WithdrawFreelancer(ctx context.Context, in WithdrawInput) (WithdrawResult, error)
}

type FundEscrowInput struct {
	JobID   uuid.UUID
	ActorID uuid.UUID
	At      time.Time
}

type FundEscrowResult struct {
	JobID        uuid.UUID
	EscrowRef    string
	Amount       float64
	ContractHash string
	Status       string
}

type SelectApplicantInput struct {
	JobID         uuid.UUID
	ApplicationID uuid.UUID
	ActorID       uuid.UUID
	At            time.Time
}

type SelectApplicantResult struct {
	JobID        uuid.UUID
	FreelancerID uuid.UUID
	ContractHash string
	SignDeadline time.Time
	Status       string
}

type SignContractInput struct {
	JobID        uuid.UUID
	FreelancerID uuid.UUID
	ContractHash string
	SignTxRef    string
	At           time.Time
}

type SignContractResult struct {
	JobID              uuid.UUID
	Status             string
	WorkStatus         string
	SubmissionDeadline time.Time
}

type RejectContractInput struct {
	JobID        uuid.UUID
	FreelancerID uuid.UUID
	Reason       string
	At           time.Time
}

type RejectContractResult struct {
	JobID  uuid.UUID
	Status string
}

// ExpireDeadlineInput drives every deadline transition. At is the server
// clock reading; zero means now.
type ExpireDeadlineInput struct {
	JobID uuid.UUID
	At    time.Time
}

// ExpireDeadlineResult reports Applied=false when the race was already
// won by another trigger.
type ExpireDeadlineResult struct {
	JobID      uuid.UUID
	Applied    bool
	Status     string
	WorkStatus string
	TxRef      string
}

type CancelJobInput struct {
	JobID   uuid.UUID
	ActorID uuid.UUID
	Reason  string
	At      time.Time
}

type CancelJobResult struct {
	JobID     uuid.UUID
	Status    string
	TxRef     string
	RefundBps int
}

type SubmitWorkInput struct {
	JobID        uuid.UUID
	FreelancerID uuid.UUID
	URL          string
	Note         string
	At           time.Time
}

type SubmitWorkResult struct {
	JobID          uuid.UUID
	SubmissionID   uuid.UUID
	WorkStatus     string
	ReviewDeadline time.Time
}

type ApproveWorkInput struct {
	JobID   uuid.UUID
	ActorID uuid.UUID
	At      time.Time
}

type ApproveWorkResult struct {
	JobID      uuid.UUID
	Status     string
	WorkStatus string
	TxRef      string
}

type RequestRevisionInput struct {
	JobID   uuid.UUID
	ActorID uuid.UUID
	Note    string
	At      time.Time
}

type RequestRevisionResult struct {
	JobID              uuid.UUID
	WorkStatus         string
	SubmissionDeadline time.Time
}

type WithdrawInput struct {
	JobID        uuid.UUID
	FreelancerID uuid.UUID
	At           time.Time
}

type WithdrawResult struct {
	JobID      uuid.UUID
	Status     string
	TxRef      string
	PenaltyBps int
}
