package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Job history actions, one row appended per lifecycle transition.
const (
	HistoryEscrowFunded        = "escrow_funded"
	HistoryApplicantSelected   = "applicant_selected"
	HistoryContractSigned      = "contract_signed"
	HistoryContractRejected    = "contract_rejected"
	HistorySigningTimeout      = "signing_timeout"
	HistoryWorkSubmitted       = "work_submitted"
	HistoryWorkApproved        = "work_approved"
	HistoryRevisionRequested   = "revision_requested"
	HistoryReviewTimeout       = "review_timeout"
	HistorySubmissionTimeout   = "submission_timeout"
	HistoryFreelancerWithdrew  = "freelancer_withdrew"
	HistoryJobCancelled        = "job_cancelled"
	HistoryJobExpired          = "job_expired"
	HistoryDisputeOpened       = "dispute_opened"
	HistoryDisputeSettled      = "dispute_settled"
)

// JobHistory is the append-only audit trail of a job.
type JobHistory struct {
	ID    uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`

	ActorID *uuid.UUID `gorm:"type:uuid;column:actor_id;index" json:"actor_id,omitempty"`
	Action  string     `gorm:"column:action;not null;index" json:"action"`
	Detail  string     `gorm:"type:text" json:"detail,omitempty"`

	// TxRef links the entry to a ledger settlement when the transition
	// moved funds.
	TxRef   string         `gorm:"column:tx_ref" json:"tx_ref,omitempty"`
	Payload datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (JobHistory) TableName() string { return "job_history" }
