package jobs

import (
	"time"

	"github.com/google/uuid"
)

// Job status values. A job is the unit of locking and consistency: every
// state-mutating operation row-locks the job first.
const (
	JobStatusDraft            = "draft"
	JobStatusOpen             = "open"
	JobStatusPendingSignature = "pending_signature"
	JobStatusInProgress       = "in_progress"
	JobStatusDisputed         = "disputed"
	JobStatusCompleted        = "completed"
	JobStatusCancelled        = "cancelled"
	JobStatusExpired          = "expired"
)

// Work review cycle status values, tracked on the job while it is
// in_progress or disputed.
const (
	WorkStatusNotStarted        = "not_started"
	WorkStatusInProgress        = "in_progress"
	WorkStatusSubmitted         = "submitted"
	WorkStatusRevisionRequested = "revision_requested"
	WorkStatusApproved          = "approved"
)

var ValidJobStatuses = map[string]struct{}{
	JobStatusDraft:            {},
	JobStatusOpen:             {},
	JobStatusPendingSignature: {},
	JobStatusInProgress:       {},
	JobStatusDisputed:         {},
	JobStatusCompleted:        {},
	JobStatusCancelled:        {},
	JobStatusExpired:          {},
}

var ValidWorkStatuses = map[string]struct{}{
	WorkStatusNotStarted:        {},
	WorkStatusInProgress:        {},
	WorkStatusSubmitted:         {},
	WorkStatusRevisionRequested: {},
	WorkStatusApproved:          {},
}

type Job struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EmployerID uuid.UUID `gorm:"type:uuid;not null;index" json:"employer_id"`

	Title       string `gorm:"not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	Budget         float64 `gorm:"not null" json:"budget"`
	PlatformFeeBps int     `gorm:"column:platform_fee_bps;not null;default:0" json:"platform_fee_bps"`
	Currency       string  `gorm:"not null;default:'APT'" json:"currency"`

	// EscrowRef is the opaque ledger handle, set exactly once by a confirmed
	// fund settlement and never mutated afterwards.
	EscrowRef    *string `gorm:"column:escrow_ref;uniqueIndex" json:"escrow_ref,omitempty"`
	EscrowAmount float64 `gorm:"column:escrow_amount;not null;default:0" json:"escrow_amount"`

	Status     string `gorm:"column:status;not null;index" json:"status"`
	WorkStatus string `gorm:"column:work_status;not null;index" json:"work_status"`

	SelectedApplicantID *uuid.UUID `gorm:"type:uuid;column:selected_applicant_id;index" json:"selected_applicant_id,omitempty"`
	FreelancerID        *uuid.UUID `gorm:"type:uuid;column:freelancer_id;index" json:"freelancer_id,omitempty"`

	// Deadlines are hard wall-clock values; timeout transitions are valid for
	// any caller once now >= deadline and the prior state still matches.
	ApplicationDeadline    *time.Time `gorm:"column:application_deadline;index" json:"application_deadline,omitempty"`
	SignDeadline           *time.Time `gorm:"column:sign_deadline;index" json:"sign_deadline,omitempty"`
	WorkSubmissionDeadline *time.Time `gorm:"column:work_submission_deadline;index" json:"work_submission_deadline,omitempty"`
	WorkReviewDeadline     *time.Time `gorm:"column:work_review_deadline;index" json:"work_review_deadline,omitempty"`

	Version   int       `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (Job) TableName() string { return "jobs" }

func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusCancelled, JobStatusExpired:
		return true
	default:
		return false
	}
}

func (j *Job) HasEscrow() bool {
	return j.EscrowRef != nil && *j.EscrowRef != ""
}

// EscrowCharge is the amount requested from the employer at funding time:
// budget plus the platform fee.
func (j *Job) EscrowCharge() float64 {
	return j.Budget * (1 + float64(j.PlatformFeeBps)/10000)
}
