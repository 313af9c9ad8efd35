package aggregates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ledgerrepo "github.com/workhub/escrow-backend/internal/data/repos/ledger"
	types "github.com/workhub/escrow-backend/internal/domain"
	domainagg "github.com/workhub/escrow-backend/internal/domain/aggregates"
	ledgerdom "github.com/workhub/escrow-backend/internal/domain/ledger"
	"github.com/workhub/escrow-backend/internal/observability"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/platform/ledger"
)

// settlementDeps is what the two-phase money path needs beyond the base:
// the durable intent/incident records and the gateway itself.
type settlementDeps struct {
	Base      BaseDeps
	Intents   ledgerrepo.IntentRepo
	Incidents ledgerrepo.IncidentRepo
	Gateway   ledger.Gateway
}

// settlementRun describes one fund-moving aggregate operation.
//
// The phases run in order: Prepare (tx, row lock + validation + pending
// intent), Call (the ledger, outside any tx), Persist (tx, CAS state
// transition + intent confirm). A Persist failure after a confirmed
// settlement triggers Compensate; if that also fails, or the movement is
// irreversible (Compensate nil), an incident row is written and the
// error carries CodeCompensationFailed.
type settlementRun struct {
	Op     string
	JobID  uuid.UUID
	Kind   string
	Amount float64
	Bps    int

	Prepare    func(dbc dbctx.Context) error
	Call       func(ctx context.Context, intentID uuid.UUID) (*ledger.Settlement, error)
	Persist    func(dbc dbctx.Context, st *ledger.Settlement) error
	Compensate func(ctx context.Context, compIntentID uuid.UUID, st *ledger.Settlement) (*ledger.Settlement, error)
}

// errSettlementNoop aborts a settlement inside Prepare, before any money
// moves. Deadline-driven callers translate it into an Applied=false
// result instead of an error.
var errSettlementNoop = errors.New("settlement no longer applicable")

func isSettlementNoop(err error) bool {
	return errors.Is(err, errSettlementNoop)
}

// runSettlement executes the ledger-first, persist-second discipline.
// The confirmed settlement is returned to the caller only when its
// consequences are durably recorded.
func runSettlement(ctx context.Context, deps settlementDeps, run settlementRun) (*ledger.Settlement, error) {
	start := time.Now()
	deps.Base = deps.Base.withDefaults()
	op := strings.TrimSpace(run.Op)
	if op == "" {
		op = "aggregate.settlement"
	}

	ctx, span := observability.Tracer().Start(ctx, op, trace.WithAttributes(
		attribute.String("job.id", run.JobID.String()),
		attribute.String("settlement.kind", run.Kind),
	))
	defer span.End()

	st, err := runSettlementPhases(ctx, deps, op, run)
	if errors.Is(err, errSettlementNoop) {
		deps.Base.Hooks.ObserveOperation(op, "noop", time.Since(start))
		return nil, errSettlementNoop
	}
	mapped := MapError(op, err)

	status := "success"
	if mapped != nil {
		span.RecordError(mapped)
		span.SetStatus(codes.Error, string(domainagg.CodeOf(mapped)))
		status = aggregateErrorStatus(mapped)
		if domainagg.IsCode(mapped, domainagg.CodeConflict) {
			deps.Base.Hooks.IncConflict(op)
		}
		if domainagg.IsCode(mapped, domainagg.CodeRetryable) {
			deps.Base.Hooks.IncRetry(op)
		}
	}
	deps.Base.Hooks.ObserveOperation(op, status, time.Since(start))
	return st, mapped
}

func runSettlementPhases(ctx context.Context, deps settlementDeps, op string, run settlementRun) (*ledger.Settlement, error) {
	if deps.Intents == nil || deps.Gateway == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "settlement deps not configured", nil)
	}
	if run.Call == nil || run.Persist == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "settlement run incomplete", nil)
	}

	intentID := uuid.New()

	// Phase 1: validate under the row lock and durably record the intent
	// before any money moves.
	prepCtx, prepSpan := observability.Tracer().Start(ctx, "settlement.prepare")
	err := deps.Base.Runner.InTx(prepCtx, func(dbc dbctx.Context) error {
		if run.Prepare != nil {
			if err := run.Prepare(dbc); err != nil {
				return err
			}
		}
		_, err := deps.Intents.Create(dbc, &types.SettlementIntent{
			ID:     intentID,
			JobID:  run.JobID,
			Kind:   run.Kind,
			Amount: run.Amount,
			Bps:    run.Bps,
			Op:     op,
			Status: ledgerdom.IntentStatusPending,
		})
		return err
	})
	prepSpan.End()
	if err != nil {
		return nil, err
	}

	// Phase 2: the irreversible step. The intent id is the idempotency
	// key, so a retry after an unknown outcome replays safely.
	callCtx, callSpan := observability.Tracer().Start(ctx, "settlement.call", trace.WithAttributes(
		attribute.String("intent.id", intentID.String()),
	))
	st, err := run.Call(callCtx, intentID)
	callSpan.End()
	if err != nil {
		if ledger.IsRejected(err) {
			// Definitive no: close the intent.
			_ = deps.Base.Runner.InTx(ctx, func(dbc dbctx.Context) error {
				_, uerr := deps.Intents.UpdateFieldsIfStatus(dbc, intentID, ledgerdom.IntentStatusPending, map[string]interface{}{
					"status": ledgerdom.IntentStatusRejected,
				})
				return uerr
			})
		}
		// Unknown outcomes leave the intent pending for reconciliation.
		return nil, err
	}
	if st == nil || strings.TrimSpace(st.TxRef) == "" {
		return nil, RetryableError("ledger returned confirmed settlement without tx_ref")
	}

	// Phase 3: reflect the confirmed movement and close the intent in
	// one transaction.
	persCtx, persSpan := observability.Tracer().Start(ctx, "settlement.persist")
	err = deps.Base.Runner.InTx(persCtx, func(dbc dbctx.Context) error {
		if err := run.Persist(dbc, st); err != nil {
			return err
		}
		ok, uerr := deps.Intents.UpdateFieldsIfStatus(dbc, intentID, ledgerdom.IntentStatusPending, map[string]interface{}{
			"status": ledgerdom.IntentStatusConfirmed,
			"tx_ref": st.TxRef,
		})
		if uerr != nil {
			return uerr
		}
		return RequireCASSuccess(ok, "settlement intent already closed")
	})
	persSpan.End()
	if err == nil {
		return st, nil
	}

	// Confirmed money movement the record does not reflect: reverse it
	// before surfacing anything.
	return nil, compensateSettlement(ctx, deps, op, run, intentID, st, err)
}

func compensateSettlement(ctx context.Context, deps settlementDeps, op string, run settlementRun, intentID uuid.UUID, st *ledger.Settlement, persistErr error) error {
	ctx, span := observability.Tracer().Start(ctx, "settlement.compensate", trace.WithAttributes(
		attribute.String("intent.id", intentID.String()),
	))
	defer span.End()

	log := deps.Base.Log
	if log != nil {
		log.Error("settlement persist failed, compensating",
			"op", op,
			"job_id", run.JobID.String(),
			"intent_id", intentID.String(),
			"tx_ref", st.TxRef,
			"error", persistErr.Error(),
		)
	}

	if run.Compensate != nil {
		compIntentID := uuid.New()
		_ = deps.Base.Runner.InTx(ctx, func(dbc dbctx.Context) error {
			_, err := deps.Intents.Create(dbc, &types.SettlementIntent{
				ID:     compIntentID,
				JobID:  run.JobID,
				Kind:   ledgerdom.IntentCancel,
				Amount: run.Amount,
				Op:     op + ".compensate",
				Status: ledgerdom.IntentStatusPending,
			})
			return err
		})

		compSt, compErr := run.Compensate(ctx, compIntentID, st)
		if compErr == nil && compSt != nil {
			_ = deps.Base.Runner.InTx(ctx, func(dbc dbctx.Context) error {
				if _, err := deps.Intents.UpdateFieldsIfStatus(dbc, compIntentID, ledgerdom.IntentStatusPending, map[string]interface{}{
					"status": ledgerdom.IntentStatusConfirmed,
					"tx_ref": compSt.TxRef,
				}); err != nil {
					return err
				}
				_, err := deps.Intents.UpdateFieldsIfStatus(dbc, intentID, ledgerdom.IntentStatusPending, map[string]interface{}{
					"status": ledgerdom.IntentStatusCompensated,
					"tx_ref": st.TxRef,
				})
				return err
			})
			if log != nil {
				log.Warn("settlement compensated",
					"op", op,
					"job_id", run.JobID.String(),
					"intent_id", intentID.String(),
					"compensation_tx_ref", compSt.TxRef,
				)
			}
			return persistErr
		}
		if log != nil && compErr != nil {
			log.Error("settlement compensation failed",
				"op", op,
				"job_id", run.JobID.String(),
				"intent_id", intentID.String(),
				"tx_ref", st.TxRef,
				"error", compErr.Error(),
			)
		}
	}

	// No reversal possible. Escalate with the ledger reference attached;
	// this must never be silently dropped.
	detail := fmt.Sprintf("persist failed after confirmed %s: %v", run.Kind, persistErr)
	if deps.Incidents != nil {
		_ = deps.Base.Runner.InTx(ctx, func(dbc dbctx.Context) error {
			_, err := deps.Incidents.Create(dbc, &types.Incident{
				JobID:    run.JobID,
				IntentID: intentID,
				TxRef:    st.TxRef,
				Op:       op,
				Detail:   detail,
				Status:   ledgerdom.IncidentStatusOpen,
			})
			return err
		})
	}
	return domainagg.NewError(domainagg.CodeCompensationFailed, op,
		fmt.Sprintf("confirmed settlement %s could not be recorded or reversed", st.TxRef), persistErr)
}
