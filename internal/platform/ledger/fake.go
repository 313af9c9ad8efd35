package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Call records one gateway invocation for assertions.
type Call struct {
	Op        string
	IntentID  uuid.UUID
	EscrowRef string
	Amount    float64
	Bps       int
	Recipient string
	Payer     string
}

// Fake is an in-memory Gateway for tests. It settles every request,
// dedupes on intent id like the real ledger, and can be scripted to
// decline or go dark per operation.
type Fake struct {
	mu      sync.Mutex
	calls   []Call
	settled map[uuid.UUID]string
	seq     int

	// Fail maps op name (fund, payout, refund, cancel, penalize) to the
	// error returned instead of settling. Dedupe still wins: an intent
	// that already settled replays its original reference.
	Fail map[string]error
}

func NewFake() *Fake {
	return &Fake{settled: map[uuid.UUID]string{}, Fail: map[string]error{}}
}

// FailNext scripts op to fail with err until cleared.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fail[op] = err
}

// ClearFailures removes all scripted failures.
func (f *Fake) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fail = map[string]error{}
}

// Calls returns a copy of all recorded invocations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor filters recorded invocations by op name.
func (f *Fake) CallsFor(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) settle(c Call) (*Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)

	if ref, ok := f.settled[c.IntentID]; ok {
		return &Settlement{TxRef: ref, Duplicate: true}, nil
	}
	if err, ok := f.Fail[c.Op]; ok && err != nil {
		return nil, err
	}
	f.seq++
	ref := fmt.Sprintf("tx-%s-%04d", c.Op, f.seq)
	f.settled[c.IntentID] = ref
	return &Settlement{TxRef: ref}, nil
}

func (f *Fake) Fund(_ context.Context, req FundRequest) (*Settlement, error) {
	return f.settle(Call{Op: "fund", IntentID: req.IntentID, Amount: req.Amount, Payer: req.Payer})
}

func (f *Fake) Payout(_ context.Context, req PayoutRequest) (*Settlement, error) {
	return f.settle(Call{Op: "payout", IntentID: req.IntentID, EscrowRef: req.EscrowRef, Recipient: req.Recipient})
}

func (f *Fake) Refund(_ context.Context, req RefundRequest) (*Settlement, error) {
	return f.settle(Call{Op: "refund", IntentID: req.IntentID, EscrowRef: req.EscrowRef, Recipient: req.Recipient, Bps: req.Bps})
}

func (f *Fake) Cancel(_ context.Context, req CancelRequest) (*Settlement, error) {
	return f.settle(Call{Op: "cancel", IntentID: req.IntentID, EscrowRef: req.EscrowRef})
}

func (f *Fake) Penalize(_ context.Context, req PenaltyRequest) (*Settlement, error) {
	return f.settle(Call{Op: "penalize", IntentID: req.IntentID, Payer: req.Payer, Bps: req.Bps})
}
