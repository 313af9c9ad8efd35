package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Gateway is the only door to fund-moving operations. Every call is
// idempotent on the client-supplied intent id: replaying a confirmed
// intent returns the original settlement instead of moving funds twice.
//
// Outcomes are tri-state. A returned Settlement is confirmed proof. A
// RejectedError is a definitive no: nothing moved and the caller may fix
// and retry with a fresh intent. An UnknownError means the call was
// inconclusive; the caller must not assume success and may replay the
// same intent id until the outcome is definitive.
type Gateway interface {
	Fund(ctx context.Context, req FundRequest) (*Settlement, error)
	Payout(ctx context.Context, req PayoutRequest) (*Settlement, error)
	Refund(ctx context.Context, req RefundRequest) (*Settlement, error)
	Cancel(ctx context.Context, req CancelRequest) (*Settlement, error)
	Penalize(ctx context.Context, req PenaltyRequest) (*Settlement, error)
}

// Settlement is the confirmed proof of a ledger movement.
type Settlement struct {
	TxRef string
	// Duplicate is true when the intent had already been settled and the
	// ledger returned the original reference.
	Duplicate bool
}

type FundRequest struct {
	IntentID uuid.UUID
	JobID    uuid.UUID
	Payer    string
	Amount   float64
}

type PayoutRequest struct {
	IntentID  uuid.UUID
	EscrowRef string
	Recipient string
}

// RefundRequest returns Bps of the escrow to the employer; the remainder
// is retained by the ledger.
type RefundRequest struct {
	IntentID  uuid.UUID
	EscrowRef string
	Recipient string
	Bps       int
}

type CancelRequest struct {
	IntentID  uuid.UUID
	EscrowRef string
}

// PenaltyRequest charges Bps of the job budget to Payer without touching
// the escrow balance.
type PenaltyRequest struct {
	IntentID uuid.UUID
	JobID    uuid.UUID
	Payer    string
	Bps      int
}

// RejectedError is a definitive decline: no funds moved.
type RejectedError struct {
	Code   string
	Reason string
}

func (e *RejectedError) Error() string {
	if e == nil {
		return "ledger: <nil rejection>"
	}
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		reason = "rejected"
	}
	if strings.TrimSpace(e.Code) != "" {
		return fmt.Sprintf("ledger rejected (%s): %s", e.Code, reason)
	}
	return "ledger rejected: " + reason
}

// UnknownError marks an inconclusive call. The intent may or may not
// have settled; only a replay can tell.
type UnknownError struct {
	IntentID uuid.UUID
	Cause    error
}

func (e *UnknownError) Error() string {
	if e == nil {
		return "ledger: <nil unknown>"
	}
	return fmt.Sprintf("ledger outcome unknown for intent %s: %v", e.IntentID, e.Cause)
}

func (e *UnknownError) Unwrap() error { return e.Cause }

// IsRejected reports whether err is a definitive ledger decline.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// IsUnknown reports whether err left the intent outcome inconclusive.
func IsUnknown(err error) bool {
	var ue *UnknownError
	return errors.As(err, &ue)
}
