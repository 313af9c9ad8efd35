package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ContractTerm is one ordered (title, content) clause of the job contract.
// Terms are immutable once the employer has funded escrow: the funded
// contract hash is the value both parties commit to.
type ContractTerm struct {
	ID    uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID uuid.UUID `gorm:"type:uuid;not null;index:idx_contract_term_job_pos,unique,priority:1" json:"job_id"`
	Pos   int       `gorm:"column:pos;not null;index:idx_contract_term_job_pos,unique,priority:2" json:"pos"`

	Title   string `gorm:"not null" json:"title"`
	Content string `gorm:"type:text;not null" json:"content"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ContractTerm) TableName() string { return "contract_terms" }

// JobContract records the two-party commitment over the contract hash.
// The employer side is fixed at escrow funding; the freelancer either
// co-signs the same hash before the sign deadline or rejects.
type JobContract struct {
	ID    uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"job_id"`

	ContractHash string `gorm:"column:contract_hash;not null" json:"contract_hash"`

	EmployerSignedAt     *time.Time `gorm:"column:employer_signed_at" json:"employer_signed_at,omitempty"`
	FreelancerSignedAt   *time.Time `gorm:"column:freelancer_signed_at" json:"freelancer_signed_at,omitempty"`
	FreelancerSignTxRef  string     `gorm:"column:freelancer_sign_tx_ref" json:"freelancer_sign_tx_ref,omitempty"`
	SubmissionWindowSecs int        `gorm:"column:submission_window_secs;not null" json:"submission_window_secs"`
	ReviewWindowSecs     int        `gorm:"column:review_window_secs;not null" json:"review_window_secs"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (JobContract) TableName() string { return "job_contracts" }

type contractDigest struct {
	Terms                []contractDigestTerm `json:"terms"`
	Budget               float64              `json:"budget"`
	PlatformFeeBps       int                  `json:"platform_fee_bps"`
	Currency             string               `json:"currency"`
	SubmissionWindowSecs int                  `json:"submission_window_secs"`
	ReviewWindowSecs     int                  `json:"review_window_secs"`
}

type contractDigestTerm struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// HashContract derives the contract hash both parties sign: sha256 over a
// canonical JSON encoding of the ordered terms plus budget and timing
// fields. Term order is significant.
func HashContract(terms []ContractTerm, job *Job, submissionWindowSecs, reviewWindowSecs int) string {
	digest := contractDigest{
		Terms:                make([]contractDigestTerm, 0, len(terms)),
		Budget:               job.Budget,
		PlatformFeeBps:       job.PlatformFeeBps,
		Currency:             job.Currency,
		SubmissionWindowSecs: submissionWindowSecs,
		ReviewWindowSecs:     reviewWindowSecs,
	}
	for _, t := range terms {
		digest.Terms = append(digest.Terms, contractDigestTerm{Title: t.Title, Content: t.Content})
	}
	raw, _ := json.Marshal(digest)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
