package jobs

import (
	"time"

	"github.com/google/uuid"
)

const (
	ApplicationStatusPending   = "pending"
	ApplicationStatusAccepted  = "accepted"
	ApplicationStatusRejected  = "rejected"
	ApplicationStatusWithdrawn = "withdrawn"
)

var ValidApplicationStatuses = map[string]struct{}{
	ApplicationStatusPending:   {},
	ApplicationStatusAccepted:  {},
	ApplicationStatusRejected:  {},
	ApplicationStatusWithdrawn: {},
}

// JobApplication is a freelancer's bid on an open job. At most one
// application per job is accepted at any time.
type JobApplication struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID       uuid.UUID `gorm:"type:uuid;not null;index:idx_application_job_applicant,unique,priority:1" json:"job_id"`
	ApplicantID uuid.UUID `gorm:"type:uuid;not null;index:idx_application_job_applicant,unique,priority:2" json:"applicant_id"`

	CoverLetter string `gorm:"type:text" json:"cover_letter,omitempty"`
	Status      string `gorm:"column:status;not null;index" json:"status"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (JobApplication) TableName() string { return "job_applications" }
