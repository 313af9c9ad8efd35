package reputation

import (
	"time"

	"github.com/google/uuid"
)

// Reputation events, applied at most once per subject per job.
const (
	EventSignTimeout       = "sign_timeout"
	EventSubmissionTimeout = "submission_timeout"
	EventReviewTimeout     = "review_timeout"
	EventWithdrawal        = "withdrawal"
	EventWorkApproved      = "work_approved"
	EventDisputeWon        = "dispute_won"
	EventDisputeLost       = "dispute_lost"
)

// Delta is the trust/untrust adjustment attached to an event.
type Delta struct {
	Trust   int
	Untrust int
}

// Deltas are the observed business rules: timeouts and withdrawal carry
// the standard penalty, dispute loss is harsher, wins and approvals earn
// trust.
var Deltas = map[string]Delta{
	EventSignTimeout:       {Trust: -5, Untrust: 10},
	EventSubmissionTimeout: {Trust: -5, Untrust: 10},
	EventReviewTimeout:     {Trust: -5, Untrust: 10},
	EventWithdrawal:        {Trust: -5, Untrust: 10},
	EventWorkApproved:      {Trust: 1, Untrust: 0},
	EventDisputeWon:        {Trust: 5, Untrust: 0},
	EventDisputeLost:       {Trust: -10, Untrust: 20},
}

// ReputationScore holds the two independent counters per subject.
// Trust never drops below zero.
type ReputationScore struct {
	SubjectID uuid.UUID `gorm:"type:uuid;primaryKey" json:"subject_id"`

	Trust   int `gorm:"column:trust;not null;default:0" json:"trust"`
	Untrust int `gorm:"column:untrust;not null;default:0" json:"untrust"`

	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ReputationScore) TableName() string { return "reputation_scores" }

// ReputationEvent is the applied-event ledger: the unique index over
// (subject, job, event) makes every terminal delta exactly-once.
type ReputationEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SubjectID uuid.UUID `gorm:"type:uuid;not null;index:idx_reputation_event,unique,priority:1" json:"subject_id"`
	JobID     uuid.UUID `gorm:"type:uuid;not null;index:idx_reputation_event,unique,priority:2" json:"job_id"`
	Event     string    `gorm:"column:event;not null;index:idx_reputation_event,unique,priority:3" json:"event"`

	TrustDelta   int `gorm:"column:trust_delta;not null" json:"trust_delta"`
	UntrustDelta int `gorm:"column:untrust_delta;not null" json:"untrust_delta"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (ReputationEvent) TableName() string { return "reputation_events" }
