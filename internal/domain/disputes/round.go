package disputes

import (
	"time"

	"github.com/google/uuid"
)

// Round status values.
const (
	RoundStatusOpen    = "open"
	RoundStatusDecided = "decided"
	RoundStatusTied    = "tied"
)

// CommitteeSize is the number of arbiters drawn per round.
const CommitteeSize = 3

// QuorumVotes is the agreement threshold that decides a round.
const QuorumVotes = 2

// DisputeRound is one committee voting round. The committee is immutable
// once assigned.
type DisputeRound struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DisputeID uuid.UUID `gorm:"type:uuid;not null;index:idx_dispute_round_no,unique,priority:1" json:"dispute_id"`
	RoundNo   int       `gorm:"column:round_no;not null;index:idx_dispute_round_no,unique,priority:2" json:"round_no"`

	Arbiter1ID uuid.UUID `gorm:"type:uuid;column:arbiter1_id;not null" json:"arbiter1_id"`
	Arbiter2ID uuid.UUID `gorm:"type:uuid;column:arbiter2_id;not null" json:"arbiter2_id"`
	Arbiter3ID uuid.UUID `gorm:"type:uuid;column:arbiter3_id;not null" json:"arbiter3_id"`

	VoteDeadline time.Time `gorm:"column:vote_deadline;not null;index" json:"vote_deadline"`

	Status string  `gorm:"column:status;not null;index" json:"status"`
	Winner *string `gorm:"column:winner" json:"winner,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (DisputeRound) TableName() string { return "dispute_rounds" }

// Committee returns the round's arbiter ids.
func (r *DisputeRound) Committee() [CommitteeSize]uuid.UUID {
	return [CommitteeSize]uuid.UUID{r.Arbiter1ID, r.Arbiter2ID, r.Arbiter3ID}
}

// HasArbiter reports committee membership.
func (r *DisputeRound) HasArbiter(id uuid.UUID) bool {
	return id == r.Arbiter1ID || id == r.Arbiter2ID || id == r.Arbiter3ID
}

// DisputeVote is one arbiter's vote within a round. The unique index
// enforces at most one vote per arbiter per round.
type DisputeVote struct {
	ID      uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RoundID uuid.UUID `gorm:"type:uuid;not null;index:idx_vote_round_arbiter,unique,priority:1" json:"round_id"`

	ArbiterID    uuid.UUID `gorm:"type:uuid;not null;index:idx_vote_round_arbiter,unique,priority:2" json:"arbiter_id"`
	EmployerWins bool      `gorm:"column:employer_wins;not null" json:"employer_wins"`

	// TxRef is present when the vote itself was recorded on the ledger.
	TxRef string `gorm:"column:tx_ref" json:"tx_ref,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (DisputeVote) TableName() string { return "dispute_votes" }
