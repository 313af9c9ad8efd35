package disputes

import (
	"time"

	"github.com/google/uuid"
)

// Dispute status values.
const (
	StatusAwaitingEvidence = "awaiting_evidence"
	StatusVotingRound1     = "voting_round_1"
	StatusVotingRound2     = "voting_round_2"
	StatusVotingRound3     = "voting_round_3"
	StatusEvidenceTimeout  = "evidence_timeout"
	StatusResolved         = "resolved"
	StatusSettled          = "settled"
)

// Party references used for opener, round winners and the final winner.
const (
	PartyEmployer   = "employer"
	PartyFreelancer = "freelancer"
)

// MaxRounds caps how many committee rounds a dispute may convene,
// including replacement rounds after an inconclusive deadline.
const MaxRounds = 3

// WinsNeeded is the best-of-three threshold on round wins.
const WinsNeeded = 2

var ValidStatuses = map[string]struct{}{
	StatusAwaitingEvidence: {},
	StatusVotingRound1:     {},
	StatusVotingRound2:     {},
	StatusVotingRound3:     {},
	StatusEvidenceTimeout:  {},
	StatusResolved:         {},
	StatusSettled:          {},
}

// Dispute is the nested aggregate scoped to a job in the disputed status.
// It back-references the job by id only.
type Dispute struct {
	ID    uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"job_id"`

	EmployerID   uuid.UUID `gorm:"type:uuid;not null;index" json:"employer_id"`
	FreelancerID uuid.UUID `gorm:"type:uuid;not null;index" json:"freelancer_id"`

	// OpenedBy records which party created the dispute; evidence-deadline
	// lapses resolve in the opener's favor.
	OpenedBy string `gorm:"column:opened_by;not null" json:"opened_by"`

	EmployerEvidence   string `gorm:"type:text;column:employer_evidence" json:"employer_evidence,omitempty"`
	FreelancerEvidence string `gorm:"type:text;column:freelancer_evidence" json:"freelancer_evidence,omitempty"`

	EvidenceDeadline *time.Time `gorm:"column:evidence_deadline;index" json:"evidence_deadline,omitempty"`

	Status       string `gorm:"column:status;not null;index" json:"status"`
	CurrentRound int    `gorm:"column:current_round;not null;default:0" json:"current_round"`

	Round1Winner *string `gorm:"column:round1_winner" json:"round1_winner,omitempty"`
	Round2Winner *string `gorm:"column:round2_winner" json:"round2_winner,omitempty"`
	Round3Winner *string `gorm:"column:round3_winner" json:"round3_winner,omitempty"`

	// FinalWinner is set at most once, when one party reaches two round
	// wins or a timeout short-circuit fires.
	FinalWinner *string `gorm:"column:final_winner" json:"final_winner,omitempty"`

	SettleTxRef string `gorm:"column:settle_tx_ref" json:"settle_tx_ref,omitempty"`

	Version   int       `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Dispute) TableName() string { return "disputes" }

// RoundWins tallies how many rounds each party has won so far.
func (d *Dispute) RoundWins() (employer, freelancer int) {
	for _, w := range []*string{d.Round1Winner, d.Round2Winner, d.Round3Winner} {
		if w == nil {
			continue
		}
		switch *w {
		case PartyEmployer:
			employer++
		case PartyFreelancer:
			freelancer++
		}
	}
	return employer, freelancer
}

// PartyID maps a party reference to the concrete user id.
func (d *Dispute) PartyID(party string) uuid.UUID {
	if party == PartyEmployer {
		return d.EmployerID
	}
	return d.FreelancerID
}

// Counterparty returns the opposing party reference.
func Counterparty(party string) string {
	if party == PartyEmployer {
		return PartyFreelancer
	}
	return PartyEmployer
}

func VotingStatusForRound(round int) string {
	switch round {
	case 1:
		return StatusVotingRound1
	case 2:
		return StatusVotingRound2
	default:
		return StatusVotingRound3
	}
}
