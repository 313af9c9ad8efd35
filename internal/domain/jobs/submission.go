package jobs

import (
	"time"

	"github.com/google/uuid"
)

// WorkSubmission is one delivery of work. A job has at most one live
// submission; a resubmission supersedes the previous row, it never deletes
// it.
type WorkSubmission struct {
	ID    uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`

	SubmitterID uuid.UUID `gorm:"type:uuid;not null;index" json:"submitter_id"`

	URL          string `gorm:"column:url" json:"url,omitempty"`
	FileRef      string `gorm:"column:file_ref" json:"file_ref,omitempty"`
	Note         string `gorm:"type:text" json:"note,omitempty"`
	RevisionNote *string `gorm:"type:text;column:revision_note" json:"revision_note,omitempty"`

	Superseded bool `gorm:"column:superseded;not null;default:false;index" json:"superseded"`

	SubmittedAt    time.Time  `gorm:"column:submitted_at;not null;default:now();index" json:"submitted_at"`
	ReviewDeadline *time.Time `gorm:"column:review_deadline" json:"review_deadline,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (WorkSubmission) TableName() string { return "work_submissions" }
