package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestFakeDedupesOnIntentID(t *testing.T) {
	f := NewFake()
	intentID := uuid.New()

	first, err := f.Fund(context.Background(), FundRequest{IntentID: intentID, Payer: "0xEMP", Amount: 110})
	if err != nil {
		t.Fatalf("first fund: %v", err)
	}
	if first.Duplicate || first.TxRef == "" {
		t.Fatalf("first settlement = %+v", first)
	}

	second, err := f.Fund(context.Background(), FundRequest{IntentID: intentID, Payer: "0xEMP", Amount: 110})
	if err != nil {
		t.Fatalf("replay fund: %v", err)
	}
	if !second.Duplicate || second.TxRef != first.TxRef {
		t.Fatalf("replay = %+v, want duplicate of %q", second, first.TxRef)
	}
	if got := len(f.CallsFor("fund")); got != 2 {
		t.Fatalf("fund calls = %d, want both recorded", got)
	}
}

func TestFakeFreshIntentsGetFreshRefs(t *testing.T) {
	f := NewFake()

	a, err := f.Payout(context.Background(), PayoutRequest{IntentID: uuid.New(), EscrowRef: "esc-1", Recipient: "0xA"})
	if err != nil {
		t.Fatalf("payout a: %v", err)
	}
	b, err := f.Payout(context.Background(), PayoutRequest{IntentID: uuid.New(), EscrowRef: "esc-1", Recipient: "0xB"})
	if err != nil {
		t.Fatalf("payout b: %v", err)
	}
	if a.TxRef == b.TxRef {
		t.Fatalf("distinct intents shared ref %q", a.TxRef)
	}
}

func TestFakeScriptedFailurePersistsUntilCleared(t *testing.T) {
	f := NewFake()
	f.FailNext("refund", &RejectedError{Code: "ESCROW_EMPTY", Reason: "nothing to refund"})
	req := RefundRequest{IntentID: uuid.New(), EscrowRef: "esc-1", Recipient: "0xEMP", Bps: 9091}

	for i := 0; i < 2; i++ {
		_, err := f.Refund(context.Background(), req)
		if !IsRejected(err) {
			t.Fatalf("attempt %d: err = %v, want rejection", i+1, err)
		}
	}

	f.ClearFailures()
	st, err := f.Refund(context.Background(), req)
	if err != nil {
		t.Fatalf("refund after clear: %v", err)
	}
	if st.Duplicate {
		t.Fatal("failed attempts must not mark the intent settled")
	}
}

func TestFakeDedupeWinsOverScriptedFailure(t *testing.T) {
	f := NewFake()
	intentID := uuid.New()

	first, err := f.Penalize(context.Background(), PenaltyRequest{IntentID: intentID, Payer: "0xALICE", Bps: 1200})
	if err != nil {
		t.Fatalf("penalize: %v", err)
	}
	f.FailNext("penalize", &UnknownError{Cause: errors.New("gone dark")})

	replay, err := f.Penalize(context.Background(), PenaltyRequest{IntentID: intentID, Payer: "0xALICE", Bps: 1200})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Duplicate || replay.TxRef != first.TxRef {
		t.Fatalf("replay = %+v, want settled ref %q", replay, first.TxRef)
	}
}

func TestOutcomePredicates(t *testing.T) {
	rejected := &RejectedError{Code: "NO_FUNDS", Reason: "empty wallet"}
	unknown := &UnknownError{Cause: errors.New("timeout")}

	if !IsRejected(rejected) || IsRejected(unknown) {
		t.Fatal("IsRejected misclassified")
	}
	if !IsUnknown(unknown) || IsUnknown(rejected) {
		t.Fatal("IsUnknown misclassified")
	}
	if !IsUnknown(errors.Join(errors.New("wrap"), unknown)) {
		t.Fatal("IsUnknown should see through wrapping")
	}
}
