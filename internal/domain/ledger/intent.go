package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Settlement intent kinds, one per fund-moving ledger operation.
const (
	IntentFund    = "fund"
	IntentPayout  = "payout"
	IntentRefund  = "refund"
	IntentCancel  = "cancel"
	IntentPenalty = "penalty_split"
)

// Settlement intent statuses. An intent is written before the ledger call
// and confirmed in the same transaction that persists the state change,
// so the two-phase history of every fund movement is durable.
const (
	IntentStatusPending     = "pending"
	IntentStatusConfirmed   = "confirmed"
	IntentStatusRejected    = "rejected"
	IntentStatusCompensated = "compensated"
)

// SettlementIntent is the durable saga record for one ledger-moving
// operation. The intent id is the idempotency key handed to the ledger.
type SettlementIntent struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobID uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`

	Kind   string  `gorm:"column:kind;not null;index" json:"kind"`
	Amount float64 `gorm:"column:amount;not null;default:0" json:"amount"`
	Bps    int     `gorm:"column:bps;not null;default:0" json:"bps"`

	// Op names the aggregate operation that opened the intent.
	Op string `gorm:"column:op;not null" json:"op"`

	Status string `gorm:"column:status;not null;index" json:"status"`
	TxRef  string `gorm:"column:tx_ref;index" json:"tx_ref,omitempty"`

	Payload datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (SettlementIntent) TableName() string { return "settlement_intents" }

// Incident statuses.
const (
	IncidentStatusOpen     = "open"
	IncidentStatusResolved = "resolved"
)

// Incident is the operator-actionable record of a compensation failure:
// a confirmed ledger movement the system could not reflect nor reverse.
// It always carries the ledger reference.
type Incident struct {
	ID    uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`

	IntentID uuid.UUID `gorm:"type:uuid;not null;index" json:"intent_id"`
	TxRef    string    `gorm:"column:tx_ref;not null" json:"tx_ref"`

	Op     string `gorm:"column:op;not null" json:"op"`
	Detail string `gorm:"type:text" json:"detail"`
	Status string `gorm:"column:status;not null;index" json:"status"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Incident) TableName() string { return "settlement_incidents" }
