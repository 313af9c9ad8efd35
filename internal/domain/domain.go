package domain

import (
	"github.com/workhub/escrow-backend/internal/domain/disputes"
	"github.com/workhub/escrow-backend/internal/domain/jobs"
	"github.com/workhub/escrow-backend/internal/domain/ledger"
	"github.com/workhub/escrow-backend/internal/domain/reputation"
	"github.com/workhub/escrow-backend/internal/domain/user"
)

// Aliases so data-layer code can keep a single `types` import, matching
// how the repos address the model set.

type Job = jobs.Job
type JobApplication = jobs.JobApplication
type ContractTerm = jobs.ContractTerm
type JobContract = jobs.JobContract
type WorkSubmission = jobs.WorkSubmission
type JobHistory = jobs.JobHistory

type Dispute = disputes.Dispute
type DisputeRound = disputes.DisputeRound
type DisputeVote = disputes.DisputeVote

type ReputationScore = reputation.ReputationScore
type ReputationEvent = reputation.ReputationEvent

type SettlementIntent = ledger.SettlementIntent
type Incident = ledger.Incident

type User = user.User

// Status values the data layer guards on directly.
const (
	DisputeStatusAwaitingEvidence = disputes.StatusAwaitingEvidence
	DisputeStatusVotingRound1     = disputes.StatusVotingRound1
	DisputeStatusVotingRound2     = disputes.StatusVotingRound2
	DisputeStatusVotingRound3     = disputes.StatusVotingRound3
	RoundStatusOpen               = disputes.RoundStatusOpen
)

// AllModels is the auto-migration set, in FK-friendly order.
func AllModels() []any {
	return []any{
		&user.User{},
		&jobs.Job{},
		&jobs.JobApplication{},
		&jobs.ContractTerm{},
		&jobs.JobContract{},
		&jobs.WorkSubmission{},
		&jobs.JobHistory{},
		&disputes.Dispute{},
		&disputes.DisputeRound{},
		&disputes.DisputeVote{},
		&reputation.ReputationScore{},
		&reputation.ReputationEvent{},
		&ledger.SettlementIntent{},
		&ledger.Incident{},
	}
}
