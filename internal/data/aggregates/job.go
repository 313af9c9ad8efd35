package aggregates

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	jobsrepo "github.com/workhub/escrow-backend/internal/data/repos/jobs"
	ledgerrepo "github.com/workhub/escrow-backend/internal/data/repos/ledger"
	reputationrepo "github.com/workhub/escrow-backend/internal/data/repos/reputation"
	userrepo "github.com/workhub/escrow-backend/internal/data/repos/user"
	types "github.com/workhub/escrow-backend/internal/domain"
	domainagg "github.com/workhub/escrow-backend/internal/domain/aggregates"
	jobsdom "github.com/workhub/escrow-backend/internal/domain/jobs"
	ledgerdom "github.com/workhub/escrow-backend/internal/domain/ledger"
	"github.com/workhub/escrow-backend/internal/domain/reputation"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/platform/ledger"
)

// LifecycleWindows holds the deadline windows and retention fractions the
// job lifecycle runs on. Zero values fall back to the defaults below.
type LifecycleWindows struct {
	Application time.Duration
	Sign        time.Duration
	Submission  time.Duration
	Review      time.Duration

	// CancelAfterRefundBps is the budget share refunded when the employer
	// cancels after selecting an applicant; the rest is retained.
	CancelAfterRefundBps int
	// WithdrawPenaltyBps is the budget share charged to a freelancer who
	// withdraws from signed work.
	WithdrawPenaltyBps int
}

func (w LifecycleWindows) withDefaults() LifecycleWindows {
	if w.Application <= 0 {
		w.Application = 10 * time.Minute
	}
	if w.Sign <= 0 {
		w.Sign = 90 * time.Second
	}
	if w.Submission <= 0 {
		w.Submission = 10 * time.Minute
	}
	if w.Review <= 0 {
		w.Review = 5 * time.Minute
	}
	if w.CancelAfterRefundBps <= 0 {
		w.CancelAfterRefundBps = 6000
	}
	if w.WithdrawPenaltyBps <= 0 {
		w.WithdrawPenaltyBps = 1200
	}
	return w
}

type JobAggregateDeps struct {
	Base BaseDeps

	Jobs         jobsrepo.JobRepo
	Applications jobsrepo.ApplicationRepo
	Terms        jobsrepo.ContractTermRepo
	Contracts    jobsrepo.JobContractRepo
	Submissions  jobsrepo.SubmissionRepo
	History      jobsrepo.HistoryRepo
	Reputation   reputationrepo.ScoreRepo
	Users        userrepo.UserRepo

	Intents   ledgerrepo.IntentRepo
	Incidents ledgerrepo.IncidentRepo
	Gateway   ledger.Gateway

	Windows LifecycleWindows
}

type jobAggregate struct {
	deps JobAggregateDeps
}

func NewJobAggregate(deps JobAggregateDeps) domainagg.JobAggregate {
	deps.Base = deps.Base.withDefaults()
	deps.Windows = deps.Windows.withDefaults()
	return &jobAggregate{deps: deps}
}

func (a *jobAggregate) Contract() domainagg.Contract {
	return domainagg.JobAggregateContract
}

func (a *jobAggregate) FundEscrow(ctx context.Context, in domainagg.FundEscrowInput) (domainagg.FundEscrowResult, error) {
	const op = "Escrow.Job.FundEscrow"
	out := domainagg.FundEscrowResult{JobID: in.JobID}
	if in.JobID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "jobID is required", nil)
	}
	if err := a.readyForSettlement(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	// Pre-read fixes the charge before the intent row is written; Prepare
	// re-validates everything under the row lock.
	seed, err := a.deps.Jobs.GetByID(dbctx.Context{Ctx: ctx}, in.JobID)
	if err != nil {
		return out, MapError(op, err)
	}
	if seed == nil {
		return out, domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
	}
	if in.ActorID != uuid.Nil && in.ActorID != seed.EmployerID {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "only the employer can fund escrow", nil)
	}
	amount := seed.EscrowCharge()
	payer, err := lookupWallet(ctx, a.deps.Users, seed.EmployerID)
	if err != nil {
		return out, MapError(op, err)
	}

	var contractHash string
	st, err := runSettlement(ctx, a.settlement(), settlementRun{
		Op:     op,
		JobID:  in.JobID,
		Kind:   ledgerdom.IntentFund,
		Amount: amount,
		Prepare: func(dbc dbctx.Context) error {
			job, err := a.deps.Jobs.LockByID(dbc, in.JobID)
			if err != nil {
				return err
			}
			if job == nil {
				return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
			}
			if err := RequireStatusAllowed(job.Status, jobsdom.JobStatusDraft); err != nil {
				return err
			}
			if job.HasEscrow() {
				return InvariantError("escrow already funded")
			}
			if job.EscrowCharge() != amount {
				return ConflictError("job terms changed during funding")
			}

			// Freeze the contract hash both parties will sign.
			contract, err := a.deps.Contracts.GetByJob(dbc, job.ID)
			if err != nil {
				return err
			}
			if contract == nil {
				subSecs := int(a.deps.Windows.Submission / time.Second)
				revSecs := int(a.deps.Windows.Review / time.Second)
				termRows, err := a.deps.Terms.ListByJob(dbc, job.ID)
				if err != nil {
					return err
				}
				terms := make([]types.ContractTerm, len(termRows))
				for i, tm := range termRows {
					terms[i] = *tm
				}
				contract, err = a.deps.Contracts.Create(dbc, &types.JobContract{
					JobID:                job.ID,
					ContractHash:         jobsdom.HashContract(terms, job, subSecs, revSecs),
					EmployerSignedAt:     &at,
					SubmissionWindowSecs: subSecs,
					ReviewWindowSecs:     revSecs,
				})
				if err != nil {
					return err
				}
			}
			contractHash = contract.ContractHash
			return nil
		},
		Call: func(ctx context.Context, intentID uuid.UUID) (*ledger.Settlement, error) {
			return a.deps.Gateway.Fund(ctx, ledger.FundRequest{
				IntentID: intentID,
				JobID:    in.JobID,
				Payer:    payer,
				Amount:   amount,
			})
		},
		Persist: func(dbc dbctx.Context, st *ledger.Settlement) error {
			ok, err := a.deps.Jobs.UpdateFieldsIfStatus(dbc, in.JobID, []string{jobsdom.JobStatusDraft}, map[string]interface{}{
				"status":               jobsdom.JobStatusOpen,
				"escrow_ref":           st.TxRef,
				"escrow_amount":        amount,
				"work_status":          jobsdom.WorkStatusNotStarted,
				"application_deadline": at.Add(a.deps.Windows.Application),
			})
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, "job left draft during funding"); err != nil {
				return err
			}
			return appendJobHistory(a.deps.History, dbc, in.JobID, uuidPtr(seed.EmployerID), jobsdom.HistoryEscrowFunded, "", st.TxRef)
		},
		Compensate: func(ctx context.Context, compIntentID uuid.UUID, st *ledger.Settlement) (*ledger.Settlement, error) {
			// The fund tx_ref doubles as the escrow reference, so the
			// reversal targets exactly what was locked.
			return a.deps.Gateway.Cancel(ctx, ledger.CancelRequest{
				IntentID:  compIntentID,
				EscrowRef: st.TxRef,
			})
		},
	})
	if err != nil {
		return out, err
	}

	out.EscrowRef = st.TxRef
	out.Amount = amount
	out.ContractHash = contractHash
	out.Status = jobsdom.JobStatusOpen
	return out, nil
}

func (a *jobAggregate) SelectApplicant(ctx context.Context, in domainagg.SelectApplicantInput) (domainagg.SelectApplicantResult, error) {
	const op = "Escrow.Job.SelectApplicant"
	out := domainagg.SelectApplicantResult{JobID: in.JobID}
	if in.JobID == uuid.Nil || in.ApplicationID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "jobID and applicationID are required", nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		job, err := a.deps.Jobs.LockByID(dbc, in.JobID)
		if err != nil {
			return err
		}
		if job == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
		}
		if err := RequireStatusAllowed(job.Status, jobsdom.JobStatusOpen); err != nil {
			return err
		}
		if !job.HasEscrow() {
			return InvariantError("cannot assign before escrow is funded")
		}
		if in.ActorID != uuid.Nil && in.ActorID != job.EmployerID {
			return ValidationError("only the employer can select an applicant")
		}

		app, err := a.deps.Applications.GetByID(dbc, in.ApplicationID)
		if err != nil {
			return err
		}
		if app == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "application not found", nil)
		}
		if app.JobID != job.ID {
			return ValidationError("application belongs to another job")
		}
		if app.Status != jobsdom.ApplicationStatusPending {
			return ConflictError("application is not pending")
		}
		if app.ApplicantID == job.EmployerID {
			return ValidationError("employer cannot be assigned to their own job")
		}

		ok, err := a.deps.Applications.AcceptOne(dbc, job.ID, app.ID)
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "application already decided"); err != nil {
			return err
		}

		contract, err := a.deps.Contracts.GetByJob(dbc, job.ID)
		if err != nil {
			return err
		}
		if contract == nil {
			return InvariantError("funded job has no contract record")
		}

		signDeadline := at.Add(a.deps.Windows.Sign)
		ok, err = a.deps.Jobs.UpdateFieldsIfStatus(dbc, job.ID, []string{jobsdom.JobStatusOpen}, map[string]interface{}{
			"status":                jobsdom.JobStatusPendingSignature,
			"selected_applicant_id": app.ApplicantID,
			"sign_deadline":         signDeadline,
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "job left open during selection"); err != nil {
			return err
		}
		if err := appendJobHistory(a.deps.History, dbc, job.ID, uuidPtr(job.EmployerID), jobsdom.HistoryApplicantSelected, app.ApplicantID.String(), ""); err != nil {
			return err
		}

		out.FreelancerID = app.ApplicantID
		out.ContractHash = contract.ContractHash
		out.SignDeadline = signDeadline
		out.Status = jobsdom.JobStatusPendingSignature
		return nil
	})
	return out, err
}

func (a *jobAggregate) SignContract(ctx context.Context, in domainagg.SignContractInput) (domainagg.SignContractResult, error) {
	const op = "Escrow.Job.SignContract"
	out := domainagg.SignContractResult{JobID: in.JobID}
	if in.JobID == uuid.Nil || in.FreelancerID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "jobID and freelancerID are required", nil)
	}
	if strings.TrimSpace(in.SignTxRef) == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "signTxRef is required", nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		job, err := a.deps.Jobs.LockByID(dbc, in.JobID)
		if err != nil {
			return err
		}
		if job == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
		}
		if err := RequireStatusAllowed(job.Status, jobsdom.JobStatusPendingSignature); err != nil {
			return err
		}
		if job.SelectedApplicantID == nil || *job.SelectedApplicantID != in.FreelancerID {
			return ValidationError("signature must come from the selected applicant")
		}
		if job.SignDeadline != nil && at.After(*job.SignDeadline) {
			return ConflictError("sign window has closed")
		}

		contract, err := a.deps.Contracts.GetByJob(dbc, job.ID)
		if err != nil {
			return err
		}
		if contract == nil {
			return InvariantError("funded job has no contract record")
		}
		if in.ContractHash != contract.ContractHash {
			return InvariantError("contract hash mismatch")
		}

		if err := a.deps.Contracts.UpdateFields(dbc, contract.ID, map[string]interface{}{
			"freelancer_signed_at":   at,
			"freelancer_sign_tx_ref": in.SignTxRef,
		}); err != nil {
			return err
		}

		submissionDeadline := at.Add(time.Duration(contract.SubmissionWindowSecs) * time.Second)
		ok, err := a.deps.Jobs.UpdateFieldsIfStatus(dbc, job.ID, []string{jobsdom.JobStatusPendingSignature}, map[string]interface{}{
			"status":                   jobsdom.JobStatusInProgress,
			"work_status":              jobsdom.WorkStatusInProgress,
			"freelancer_id":            in.FreelancerID,
			"sign_deadline":            nil,
			"application_deadline":     nil,
			"work_submission_deadline": submissionDeadline,
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "job left pending_signature during signing"); err != nil {
			return err
		}
		if err := appendJobHistory(a.deps.History, dbc, job.ID, uuidPtr(in.FreelancerID), jobsdom.HistoryContractSigned, "", in.SignTxRef); err != nil {
			return err
		}

		out.Status = jobsdom.JobStatusInProgress
		out.WorkStatus = jobsdom.WorkStatusInProgress
		out.SubmissionDeadline = submissionDeadline
		return nil
	})
	return out, err
}

func (a *jobAggregate) RejectContract(ctx context.Context, in domainagg.RejectContractInput) (domainagg.RejectContractResult, error) {
	const op = "Escrow.Job.RejectContract"
	out := domainagg.RejectContractResult{JobID: in.JobID}
	if in.JobID == uuid.Nil || in.FreelancerID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "jobID and freelancerID are required", nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		job, err := a.deps.Jobs.LockByID(dbc, in.JobID)
		if err != nil {
			return err
		}
		if job == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
		}
		if err := RequireStatusAllowed(job.Status, jobsdom.JobStatusPendingSignature); err != nil {
			return err
		}
		if job.SelectedApplicantID == nil || *job.SelectedApplicantID != in.FreelancerID {
			return ValidationError("rejection must come from the selected applicant")
		}

		if err := a.rejectAcceptedApplication(dbc, job.ID, jobsdom.ApplicationStatusRejected); err != nil {
			return err
		}

		ok, err := a.deps.Jobs.UpdateFieldsIfStatus(dbc, job.ID, []string{jobsdom.JobStatusPendingSignature}, map[string]interface{}{
			"status":                jobsdom.JobStatusOpen,
			"selected_applicant_id": nil,
			"sign_deadline":         nil,
			"application_deadline":  at.Add(a.deps.Windows.Application),
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "job left pending_signature during rejection"); err != nil {
			return err
		}
		if err := appendJobHistory(a.deps.History, dbc, job.ID, uuidPtr(in.FreelancerID), jobsdom.HistoryContractRejected, in.Reason, ""); err != nil {
			return err
		}

		out.Status = jobsdom.JobStatusOpen
		return nil
	})
	return out, err
}

func (a *jobAggregate) ExpireSignDeadline(ctx context.Context, in domainagg.ExpireDeadlineInput) (domainagg.ExpireDeadlineResult, error) {
	const op = "Escrow.Job.ExpireSignDeadline"
	out := domainagg.ExpireDeadlineResult{JobID: in.JobID}
	if in.JobID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "jobID is required", nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		job, err := a.deps.Jobs.LockByID(dbc, in.JobID)
		if err != nil {
			return err
		}
		if job == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
		}
		if job.Status != jobsdom.JobStatusPendingSignature {
			// Signed, rejected or cancelled first. Not an error.
			out.Applied = false
			out.Status = job.Status
			out.WorkStatus = job.WorkStatus
			return nil
		}
		if err := RequireDeadlineElapsed(job.SignDeadline, at); err != nil {
			return err
		}
		if job.SelectedApplicantID == nil {
			return InvariantError("pending_signature job has no selected applicant")
		}
		applicant := *job.SelectedApplicantID

		if err := a.rejectAcceptedApplication(dbc, job.ID, jobsdom.ApplicationStatusRejected); err != nil {
			return err
		}
		if _, err := a.deps.Reputation.ApplyEvent(dbc, applicant, job.ID, reputation.EventSignTimeout); err != nil {
			return err
		}

		ok, err := a.deps.Jobs.UpdateFieldsIfStatus(dbc, job.ID, []string{jobsdom.JobStatusPendingSignature}, map[string]interface{}{
			"status":                jobsdom.JobStatusOpen,
			"selected_applicant_id": nil,
			"sign_deadline":         nil,
			"application_deadline":  at.Add(a.deps.Windows.Application),
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "job left pending_signature during sign timeout"); err != nil {
			return err
		}
		if err := appendJobHistory(a.deps.History, dbc, job.ID, nil, jobsdom.HistorySigningTimeout, applicant.String(), ""); err != nil {
			return err
		}

		out.Applied = true
		out.Status = jobsdom.JobStatusOpen
		out.WorkStatus = job.WorkStatus
		return nil
	})
	return out, err
}

func (a *jobAggregate) CancelBeforeAssignment(ctx context.Context, in domainagg.CancelJobInput) (domainagg.CancelJobResult, error) {
	const op = "Escrow.Job.CancelBeforeAssignment"
	out := domainagg.CancelJobResult{JobID: in.JobID}
	if in.JobID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "jobID is required", nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}

	seed, err := a.deps.Jobs.GetByID(dbctx.Context{Ctx: ctx}, in.JobID)
	if err != nil {
		return out, MapError(op, err)
	}
	if seed == nil {
		return out, domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
	}
	if in.ActorID != uuid.Nil && in.ActorID != seed.EmployerID {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "only the employer can cancel", nil)
	}

	// An unfunded draft cancels without any ledger movement.
	if !seed.HasEscrow() {
		err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
			job, err := a.deps.Jobs.LockByID(dbc, in.JobID)
			if err != nil {
				return err
			}
			if job == nil {
				return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
			}
			if err := RequireStatusAllowed(job.Status, jobsdom.JobStatusDraft); err != nil {
				return err
			}
			ok, err := a.deps.Jobs.UpdateFieldsIfStatus(dbc, job.ID, []string{jobsdom.JobStatusDraft}, map[string]interface{}{
				"status": jobsdom.JobStatusCancelled,
			})
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, "job left draft during cancellation"); err != nil {
				return err
			}
			return appendJobHistory(a.deps.History, dbc, job.ID, uuidPtr(seed.EmployerID), jobsdom.HistoryJobCancelled, in.Reason, "")
		})
		if err != nil {
			return out, err
		}
		out.Status = jobsdom.JobStatusCancelled
		return out, nil
	}

	if err := a.readyForSettlement(op); err != nil {
		return out, err
	}
	recipient, err := lookupWallet(ctx, a.deps.Users, seed.EmployerID)
	if err != nil {
		return out, MapError(op, err)
	}
	bps := refundShareBps(seed, 10000)

	st, err := runSettlement(ctx, a.settlement(), settlementRun{
		Op:     op,
		JobID:  in.JobID,
		Kind:   ledgerdom.IntentRefund,
		Amount: seed.Budget,
		Bps:    bps,
		Prepare: func(dbc dbctx.Context) error {
			job, err := a.deps.Jobs.LockByID(dbc, in.JobID)
			if err != nil {
				return err
			}
			if job == nil {
				return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
			}
			if err := RequireStatusAllowed(job.Status, jobsdom.JobStatusOpen); err != nil {
				return err
			}
			if !job.HasEscrow() {
				return InvariantError("open job has no escrow")
			}
			return nil
		},
		Call: func(ctx context.Context, intentID uuid.UUID) (*ledger.Settlement, error) {
			return a.deps.Gateway.Refund(ctx, ledger.RefundRequest{
				IntentID:  intentID,
				EscrowRef: *seed.EscrowRef,
				Recipient: recipient,
				Bps:       bps,
			})
		},
		Persist: func(dbc dbctx.Context, st *ledger.Settlement) error {
			ok, err := a.deps.Jobs.UpdateFieldsIfStatus(dbc, in.JobID, []string{jobsdom.JobStatusOpen}, map[string]interface{}{
				"status":               jobsdom.JobStatusCancelled,
				"application_deadline": nil,
			})
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, "job left open during cancellation"); err != nil {
				return err
			}
			return appendJobHistory(a.deps.History, dbc, in.JobID, uuidPtr(seed.EmployerID), jobsdom.HistoryJobCancelled, in.Reason, st.TxRef)
		},
	})
	if err != nil {
		return out, err
	}

	out.Status = jobsdom.JobStatusCancelled
	out.TxRef = st.TxRef
	out.RefundBps = bps
	return out, nil
}

func (a *jobAggregate) CancelAfterAssignment(ctx context.Context, in domainagg.CancelJobInput) (domainagg.CancelJobResult, error) {
	const op = "Escrow.Job.CancelAfterAssignment"
	out := domainagg.CancelJobResult{JobID: in.JobID}
	if in.JobID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "jobID is required", nil)
	}
	if err := a.readyForSettlement(op); err != nil {
		return out, err
	}

	seed, err := a.deps.Jobs.GetByID(dbctx.Context{Ctx: ctx}, in.JobID)
	if err != nil {
		return out, MapError(op, err)
	}
	if seed == nil {
		return out, domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
	}
	if in.ActorID != uuid.Nil && in.ActorID != seed.EmployerID {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "only the employer can cancel", nil)
	}
	if !seed.HasEscrow() {
		return out, domainagg.NewError(domainagg.CodeInvariantViolation, op, "assigned job has no escrow", nil)
	}
	recipient, err := lookupWallet(ctx, a.deps.Users, seed.EmployerID)
	if err != nil {
		return out, MapError(op, err)
	}
	bps := refundShareBps(seed, a.deps.Windows.CancelAfterRefundBps)

	st, err := runSettlement(ctx, a.settlement(), settlementRun{
		Op:     op,
		JobID:  in.JobID,
		Kind:   ledgerdom.IntentRefund,
		Amount: seed.Budget * float64(a.deps.Windows.CancelAfterRefundBps) / 10000,
		Bps:    bps,
		Prepare: func(dbc dbctx.Context) error {
			job, err := a.deps.Jobs.LockByID(dbc, in.JobID)
			if err != nil {
				return err
			}
			if job == nil {
				return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
			}
			return RequireStatusAllowed(job.Status, jobsdom.JobStatusPendingSignature)
		},
		Call: func(ctx context.Context, intentID uuid.UUID) (*ledger.Settlement, error) {
			return a.deps.Gateway.Refund(ctx, ledger.RefundRequest{
				IntentID:  intentID,
				EscrowRef: *seed.EscrowRef,
				Recipient: recipient,
				Bps:       bps,
			})
		},
		Persist: func(dbc dbctx.Context, st *ledger.Settlement) error {
			if err := a.rejectAcceptedApplication(dbc, in.JobID, jobsdom.ApplicationStatusRejected); err != nil {
				return err
			}
			ok, err := a.deps.Jobs.UpdateFieldsIfStatus(dbc, in.JobID, []string{jobsdom.JobStatusPendingSignature}, map[string]interface{}{
				"status":                jobsdom.JobStatusCancelled,
				"selected_applicant_id": nil,
				"sign_deadline":         nil,
				"application_deadline":  nil,
			})
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, "job left pending_signature during cancellation"); err != nil {
				return err
			}
			return appendJobHistory(a.deps.History, dbc, in.JobID, uuidPtr(seed.EmployerID), jobsdom.HistoryJobCancelled, in.Reason, st.TxRef)
		},
	})
	if err != nil {
		return out, err
	}

	out.Status = jobsdom.JobStatusCancelled
	out.TxRef = st.TxRef
	out.RefundBps = bps
	return out, nil
}

func (a *jobAggregate) ExpireApplicationDeadline(ctx context.Context, in domainagg.ExpireDeadlineInput) (domainagg.ExpireDeadlineResult, error) {
	const op = "Escrow.Job.ExpireApplicationDeadline"
	out := domainagg.ExpireDeadlineResult{JobID: in.JobID}
	if in.JobID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "jobID is required", nil)
	}
	if err := a.readyForSettlement(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	seed, err := a.deps.Jobs.GetByID(dbctx.Context{Ctx: ctx}, in.JobID)
	if err != nil {
		return out, MapError(op, err)
	}
	if seed == nil {
		return out, domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
	}
	if seed.Status != jobsdom.JobStatusOpen {
		out.Status = seed.Status
		out.WorkStatus = seed.WorkStatus
		return out, nil
	}
	if !seed.HasEscrow() {
		return out, domainagg.NewError(domainagg.CodeInvariantViolation, op, "open job has no escrow", nil)
	}
	recipient, err := lookupWallet(ctx, a.deps.Users, seed.EmployerID)
	if err != nil {
		return out, MapError(op, err)
	}
	bps := refundShareBps(seed, 10000)

	st, err := runSettlement(ctx, a.settlement(), settlementRun{
		Op:     op,
		JobID:  in.JobID,
		Kind:   ledgerdom.IntentRefund,
		Amount: seed.Budget,
		Bps:    bps,
		Prepare: func(dbc dbctx.Context) error {
			job, err := a.deps.Jobs.LockByID(dbc, in.JobID)
			if err != nil {
				return err
			}
			if job == nil {
				return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
			}
			if job.Status != jobsdom.JobStatusOpen {
				return errSettlementNoop
			}
			return RequireDeadlineElapsed(job.ApplicationDeadline, at)
		},
		Call: func(ctx context.Context, intentID uuid.UUID) (*ledger.Settlement, error) {
			return a.deps.Gateway.Refund(ctx, ledger.RefundRequest{
				IntentID:  intentID,
				EscrowRef: *seed.EscrowRef,
				Recipient: recipient,
				Bps:       bps,
			})
		},
		Persist: func(dbc dbctx.Context, st *ledger.Settlement) error {
			ok, err := a.deps.Jobs.UpdateFieldsIfStatus(dbc, in.JobID, []string{jobsdom.JobStatusOpen}, map[string]interface{}{
				"status":               jobsdom.JobStatusExpired,
				"application_deadline": nil,
			})
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, "job left open during expiry"); err != nil {
				return err
			}
			return appendJobHistory(a.deps.History, dbc, in.JobID, nil, jobsdom.HistoryJobExpired, "", st.TxRef)
		},
	})
	if isSettlementNoop(err) {
		out.Status = seed.Status
		out.WorkStatus = seed.WorkStatus
		return out, nil
	}
	if err != nil {
		return out, err
	}

	out.Applied = true
	out.Status = jobsdom.JobStatusExpired
	out.TxRef = st.TxRef
	return out, nil
}

func (a *jobAggregate) SubmitWork(ctx context.Context, in domainagg.SubmitWorkInput) (domainagg.SubmitWorkResult, error) {
	const op = "Escrow.Job.SubmitWork"
	out := domainagg.SubmitWorkResult{JobID: in.JobID}
	if in.JobID == uuid.Nil || in.FreelancerID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "jobID and freelancerID are required", nil)
	}
	if strings.TrimSpace(in.URL) == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "submission url is required", nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		job, err := a.deps.Jobs.LockByID(dbc, in.JobID)
		if err != nil {
			return err
		}
		if job == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
		}
		if err := RequireStatusAllowed(job.Status, jobsdom.JobStatusInProgress); err != nil {
			return err
		}
		if job.FreelancerID == nil || *job.FreelancerID != in.FreelancerID {
			return ValidationError("only the assigned freelancer can submit work")
		}
		switch job.WorkStatus {
		case jobsdom.WorkStatusInProgress, jobsdom.WorkStatusRevisionRequested:
		default:
			return ConflictError("work is not open for submission")
		}

		if err := a.deps.Submissions.SupersedeLive(dbc, job.ID); err != nil {
			return err
		}

		reviewWindow := a.deps.Windows.Review
		contract, err := a.deps.Contracts.GetByJob(dbc, job.ID)
		if err != nil {
			return err
		}
		if contract != nil && contract.ReviewWindowSecs > 0 {
			reviewWindow = time.Duration(contract.ReviewWindowSecs) * time.Second
		}
		reviewDeadline := at.Add(reviewWindow)

		sub, err := a.deps.Submissions.Create(dbc, &types.WorkSubmission{
			JobID:          job.ID,
			SubmitterID:    in.FreelancerID,
			URL:            in.URL,
			Note:           in.Note,
			SubmittedAt:    at,
			ReviewDeadline: &reviewDeadline,
		})
		if err != nil {
			return err
		}

		ok, err := a.deps.Jobs.UpdateFieldsIfStatus(dbc, job.ID, []string{jobsdom.JobStatusInProgress}, map[string]interface{}{
			"work_status":              jobsdom.WorkStatusSubmitted,
			"work_review_deadline":     reviewDeadline,
			"work_submission_deadline": nil,
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "job left in_progress during submission"); err != nil {
			return err
		}
		if err := appendJobHistory(a.deps.History, dbc, job.ID, uuidPtr(in.FreelancerID), jobsdom.HistoryWorkSubmitted, in.URL, ""); err != nil {
			return err
		}

		out.SubmissionID = sub.ID
		out.WorkStatus = jobsdom.WorkStatusSubmitted
		out.ReviewDeadline = reviewDeadline
		return nil
	})
	return out, err
}

func (a *jobAggregate) ApproveWork(ctx context.Context, in domainagg.ApproveWorkInput) (domainagg.ApproveWorkResult, error) {
	const op = "Escrow.Job.ApproveWork"
	out := domainagg.ApproveWorkResult{JobID: in.JobID}
	if in.JobID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "jobID is required", nil)
	}
	if err := a.readyForSettlement(op); err != nil {
		return out, err
	}

	seed, err := a.deps.Jobs.GetByID(dbctx.Context{Ctx: ctx}, in.JobID)
	if err != nil {
		return out, MapError(op, err)
	}
	if seed == nil {
		return out, domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
	}
	if in.ActorID != uuid.Nil && in.ActorID != seed.EmployerID {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "only the employer can approve work", nil)
	}
	if seed.FreelancerID == nil {
		return out, domainagg.NewError(domainagg.CodeInvariantViolation, op, "job has no assigned freelancer", nil)
	}
	freelancerID := *seed.FreelancerID

	st, err := a.payoutToFreelancer(ctx, op, seed, freelancerID, payoutFinish{
		historyAction:   jobsdom.HistoryWorkApproved,
		historyActor:    uuidPtr(seed.EmployerID),
		employerEvent:   reputation.EventWorkApproved,
		freelancerEvent: reputation.EventWorkApproved,
		requireDeadline: false,
	})
	if err != nil {
		return out, err
	}

	out.Status = jobsdom.JobStatusCompleted
	out.WorkStatus = jobsdom.WorkStatusApproved
	out.TxRef = st.TxRef
	return out, nil
}

func (a *jobAggregate) RequestRevision(ctx context.Context, in domainagg.RequestRevisionInput) (domainagg.RequestRevisionResult, error) {
	const op = "Escrow.Job.RequestRevision"
	out := domainagg.RequestRevisionResult{JobID: in.JobID}
	if in.JobID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "jobID is required", nil)
	}
	if strings.TrimSpace(in.Note) == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "revision note is required", nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		job, err := a.deps.Jobs.LockByID(dbc, in.JobID)
		if err != nil {
			return err
		}
		if job == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
		}
		if err := RequireStatusAllowed(job.Status, jobsdom.JobStatusInProgress); err != nil {
			return err
		}
		if in.ActorID != uuid.Nil && in.ActorID != job.EmployerID {
			return ValidationError("only the employer can request a revision")
		}
		if job.WorkStatus != jobsdom.WorkStatusSubmitted {
			return ConflictError("no submission awaiting review")
		}

		live, err := a.deps.Submissions.GetLiveByJob(dbc, job.ID)
		if err != nil {
			return err
		}
		if live != nil {
			if err := a.deps.Submissions.UpdateFields(dbc, live.ID, map[string]interface{}{
				"revision_note": in.Note,
			}); err != nil {
				return err
			}
		}

		submissionWindow := a.deps.Windows.Submission
		contract, err := a.deps.Contracts.GetByJob(dbc, job.ID)
		if err != nil {
			return err
		}
		if contract != nil && contract.SubmissionWindowSecs > 0 {
			submissionWindow = time.Duration(contract.SubmissionWindowSecs) * time.Second
		}
		submissionDeadline := at.Add(submissionWindow)

		ok, err := a.deps.Jobs.UpdateFieldsIfStatus(dbc, job.ID, []string{jobsdom.JobStatusInProgress}, map[string]interface{}{
			"work_status":              jobsdom.WorkStatusRevisionRequested,
			"work_submission_deadline": submissionDeadline,
			"work_review_deadline":     nil,
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "job left in_progress during revision request"); err != nil {
			return err
		}
		if err := appendJobHistory(a.deps.History, dbc, job.ID, uuidPtr(job.EmployerID), jobsdom.HistoryRevisionRequested, in.Note, ""); err != nil {
			return err
		}

		out.WorkStatus = jobsdom.WorkStatusRevisionRequested
		out.SubmissionDeadline = submissionDeadline
		return nil
	})
	return out, err
}

func (a *jobAggregate) ExpireReviewDeadline(ctx context.Context, in domainagg.ExpireDeadlineInput) (domainagg.ExpireDeadlineResult, error) {
	const op = "Escrow.Job.ExpireReviewDeadline"
	out := domainagg.ExpireDeadlineResult{JobID: in.JobID}
	if in.JobID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "jobID is required", nil)
	}
	if err := a.readyForSettlement(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	seed, err := a.deps.Jobs.GetByID(dbctx.Context{Ctx: ctx}, in.JobID)
	if err != nil {
		return out, MapError(op, err)
	}
	if seed == nil {
		return out, domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
	}
	if seed.Status != jobsdom.JobStatusInProgress || seed.WorkStatus != jobsdom.WorkStatusSubmitted {
		out.Status = seed.Status
		out.WorkStatus = seed.WorkStatus
		return out, nil
	}
	if seed.FreelancerID == nil {
		return out, domainagg.NewError(domainagg.CodeInvariantViolation, op, "job has no assigned freelancer", nil)
	}
	freelancerID := *seed.FreelancerID

	st, err := a.payoutToFreelancer(ctx, op, seed, freelancerID, payoutFinish{
		historyAction:   jobsdom.HistoryReviewTimeout,
		historyActor:    nil,
		employerEvent:   reputation.EventReviewTimeout,
		freelancerEvent: reputation.EventWorkApproved,
		requireDeadline: true,
		deadlineAt:      at,
	})
	if isSettlementNoop(err) {
		out.Status = seed.Status
		out.WorkStatus = seed.WorkStatus
		return out, nil
	}
	if err != nil {
		return out, err
	}

	out.Applied = true
	out.Status = jobsdom.JobStatusCompleted
	out.WorkStatus = jobsdom.WorkStatusApproved
	out.TxRef = st.TxRef
	return out, nil
}

func (a *jobAggregate) ExpireSubmissionDeadline(ctx context.Context, in domainagg.ExpireDeadlineInput) (domainagg.ExpireDeadlineResult, error) {
	const op = "Escrow.Job.ExpireSubmissionDeadline"
	out := domainagg.ExpireDeadlineResult{JobID: in.JobID}
	if in.JobID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "jobID is required", nil)
	}
	if err := a.ready(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		job, err := a.deps.Jobs.LockByID(dbc, in.JobID)
		if err != nil {
			return err
		}
		if job == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
		}
		waiting := job.WorkStatus == jobsdom.WorkStatusInProgress || job.WorkStatus == jobsdom.WorkStatusRevisionRequested
		if job.Status != jobsdom.JobStatusInProgress || !waiting {
			out.Applied = false
			out.Status = job.Status
			out.WorkStatus = job.WorkStatus
			return nil
		}
		if err := RequireDeadlineElapsed(job.WorkSubmissionDeadline, at); err != nil {
			return err
		}
		if job.FreelancerID == nil {
			return InvariantError("in_progress job has no assigned freelancer")
		}
		freelancerID := *job.FreelancerID

		if err := a.rejectAcceptedApplication(dbc, job.ID, jobsdom.ApplicationStatusRejected); err != nil {
			return err
		}
		if _, err := a.deps.Reputation.ApplyEvent(dbc, freelancerID, job.ID, reputation.EventSubmissionTimeout); err != nil {
			return err
		}

		ok, err := a.deps.Jobs.UpdateFieldsIfStatus(dbc, job.ID, []string{jobsdom.JobStatusInProgress}, map[string]interface{}{
			"status":                   jobsdom.JobStatusOpen,
			"work_status":              jobsdom.WorkStatusNotStarted,
			"freelancer_id":            nil,
			"selected_applicant_id":    nil,
			"work_submission_deadline": nil,
			"application_deadline":     at.Add(a.deps.Windows.Application),
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "job left in_progress during submission timeout"); err != nil {
			return err
		}
		if err := appendJobHistory(a.deps.History, dbc, job.ID, nil, jobsdom.HistorySubmissionTimeout, freelancerID.String(), ""); err != nil {
			return err
		}

		out.Applied = true
		out.Status = jobsdom.JobStatusOpen
		out.WorkStatus = jobsdom.WorkStatusNotStarted
		return nil
	})
	return out, err
}

func (a *jobAggregate) WithdrawFreelancer(ctx context.Context, in domainagg.WithdrawInput) (domainagg.WithdrawResult, error) {
	const op = "Escrow.Job.WithdrawFreelancer"
	out := domainagg.WithdrawResult{JobID: in.JobID}
	if in.JobID == uuid.Nil || in.FreelancerID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "jobID and freelancerID are required", nil)
	}
	if err := a.readyForSettlement(op); err != nil {
		return out, err
	}
	at := atOrNow(in.At)

	seed, err := a.deps.Jobs.GetByID(dbctx.Context{Ctx: ctx}, in.JobID)
	if err != nil {
		return out, MapError(op, err)
	}
	if seed == nil {
		return out, domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
	}
	payer, err := lookupWallet(ctx, a.deps.Users, in.FreelancerID)
	if err != nil {
		return out, MapError(op, err)
	}
	penaltyBps := a.deps.Windows.WithdrawPenaltyBps

	st, err := runSettlement(ctx, a.settlement(), settlementRun{
		Op:     op,
		JobID:  in.JobID,
		Kind:   ledgerdom.IntentPenalty,
		Amount: seed.Budget * float64(penaltyBps) / 10000,
		Bps:    penaltyBps,
		Prepare: func(dbc dbctx.Context) error {
			job, err := a.deps.Jobs.LockByID(dbc, in.JobID)
			if err != nil {
				return err
			}
			if job == nil {
				return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
			}
			if err := RequireStatusAllowed(job.Status, jobsdom.JobStatusInProgress); err != nil {
				return err
			}
			if job.FreelancerID == nil || *job.FreelancerID != in.FreelancerID {
				return ValidationError("withdrawal must come from the assigned freelancer")
			}
			if job.WorkStatus == jobsdom.WorkStatusApproved {
				return ConflictError("approved work cannot be withdrawn")
			}
			if job.WorkStatus == jobsdom.WorkStatusSubmitted {
				return ConflictError("a submission is under review; withdrawal is closed")
			}
			return nil
		},
		Call: func(ctx context.Context, intentID uuid.UUID) (*ledger.Settlement, error) {
			return a.deps.Gateway.Penalize(ctx, ledger.PenaltyRequest{
				IntentID: intentID,
				JobID:    in.JobID,
				Payer:    payer,
				Bps:      penaltyBps,
			})
		},
		Persist: func(dbc dbctx.Context, st *ledger.Settlement) error {
			if err := a.rejectAcceptedApplication(dbc, in.JobID, jobsdom.ApplicationStatusWithdrawn); err != nil {
				return err
			}
			if _, err := a.deps.Reputation.ApplyEvent(dbc, in.FreelancerID, in.JobID, reputation.EventWithdrawal); err != nil {
				return err
			}
			ok, err := a.deps.Jobs.UpdateFieldsIfStatus(dbc, in.JobID, []string{jobsdom.JobStatusInProgress}, map[string]interface{}{
				"status":                   jobsdom.JobStatusOpen,
				"work_status":              jobsdom.WorkStatusNotStarted,
				"freelancer_id":            nil,
				"selected_applicant_id":    nil,
				"work_submission_deadline": nil,
				"work_review_deadline":     nil,
				"application_deadline":     at.Add(a.deps.Windows.Application),
			})
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, "job left in_progress during withdrawal"); err != nil {
				return err
			}
			return appendJobHistory(a.deps.History, dbc, in.JobID, uuidPtr(in.FreelancerID), jobsdom.HistoryFreelancerWithdrew, "", st.TxRef)
		},
	})
	if err != nil {
		return out, err
	}

	out.Status = jobsdom.JobStatusOpen
	out.TxRef = st.TxRef
	out.PenaltyBps = penaltyBps
	return out, nil
}

// payoutFinish parameterizes the two paths that pay the escrow out to the
// freelancer and complete the job: explicit approval and the review
// timeout auto-approval.
type payoutFinish struct {
	historyAction   string
	historyActor    *uuid.UUID
	employerEvent   string
	freelancerEvent string
	requireDeadline bool
	deadlineAt      time.Time
}

func (a *jobAggregate) payoutToFreelancer(ctx context.Context, op string, seed *types.Job, freelancerID uuid.UUID, fin payoutFinish) (*ledger.Settlement, error) {
	if !seed.HasEscrow() {
		return nil, domainagg.NewError(domainagg.CodeInvariantViolation, op, "job has no escrow to pay out", nil)
	}
	recipient, err := lookupWallet(ctx, a.deps.Users, freelancerID)
	if err != nil {
		return nil, MapError(op, err)
	}

	return runSettlement(ctx, a.settlement(), settlementRun{
		Op:     op,
		JobID:  seed.ID,
		Kind:   ledgerdom.IntentPayout,
		Amount: seed.EscrowAmount,
		Prepare: func(dbc dbctx.Context) error {
			job, err := a.deps.Jobs.LockByID(dbc, seed.ID)
			if err != nil {
				return err
			}
			if job == nil {
				return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
			}
			if fin.requireDeadline {
				if job.Status != jobsdom.JobStatusInProgress || job.WorkStatus != jobsdom.WorkStatusSubmitted {
					return errSettlementNoop
				}
				return RequireDeadlineElapsed(job.WorkReviewDeadline, fin.deadlineAt)
			}
			if err := RequireStatusAllowed(job.Status, jobsdom.JobStatusInProgress); err != nil {
				return err
			}
			if job.WorkStatus != jobsdom.WorkStatusSubmitted {
				return ConflictError("no submission awaiting review")
			}
			return nil
		},
		Call: func(ctx context.Context, intentID uuid.UUID) (*ledger.Settlement, error) {
			return a.deps.Gateway.Payout(ctx, ledger.PayoutRequest{
				IntentID:  intentID,
				EscrowRef: *seed.EscrowRef,
				Recipient: recipient,
			})
		},
		Persist: func(dbc dbctx.Context, st *ledger.Settlement) error {
			// Re-check the work state under the lock before completing:
			// the lock from Prepare was released between phases.
			job, err := a.deps.Jobs.LockByID(dbc, seed.ID)
			if err != nil {
				return err
			}
			if job == nil {
				return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
			}
			if job.WorkStatus != jobsdom.WorkStatusSubmitted {
				return ConflictError("work state moved after payout")
			}
			if _, err := a.deps.Reputation.ApplyEvent(dbc, job.EmployerID, job.ID, fin.employerEvent); err != nil {
				return err
			}
			if _, err := a.deps.Reputation.ApplyEvent(dbc, freelancerID, job.ID, fin.freelancerEvent); err != nil {
				return err
			}
			ok, err := a.deps.Jobs.UpdateFieldsIfStatus(dbc, job.ID, []string{jobsdom.JobStatusInProgress}, map[string]interface{}{
				"status":               jobsdom.JobStatusCompleted,
				"work_status":          jobsdom.WorkStatusApproved,
				"work_review_deadline": nil,
			})
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, "job left in_progress during payout"); err != nil {
				return err
			}
			return appendJobHistory(a.deps.History, dbc, job.ID, fin.historyActor, fin.historyAction, "", st.TxRef)
		},
	})
}

func (a *jobAggregate) settlement() settlementDeps {
	return settlementDeps{
		Base:      a.deps.Base,
		Intents:   a.deps.Intents,
		Incidents: a.deps.Incidents,
		Gateway:   a.deps.Gateway,
	}
}

func (a *jobAggregate) ready(op string) error {
	if a.deps.Jobs == nil || a.deps.Applications == nil || a.deps.Terms == nil ||
		a.deps.Contracts == nil || a.deps.Submissions == nil || a.deps.History == nil ||
		a.deps.Reputation == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "job aggregate repos not configured", nil)
	}
	return nil
}

func (a *jobAggregate) readyForSettlement(op string) error {
	if err := a.ready(op); err != nil {
		return err
	}
	if a.deps.Intents == nil || a.deps.Gateway == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "settlement deps not configured", nil)
	}
	return nil
}

func appendJobHistory(repo jobsrepo.HistoryRepo, dbc dbctx.Context, jobID uuid.UUID, actorID *uuid.UUID, action, detail, txRef string) error {
	_, err := repo.Create(dbc, &types.JobHistory{
		JobID:   jobID,
		ActorID: actorID,
		Action:  action,
		Detail:  detail,
		TxRef:   txRef,
	})
	return err
}

// rejectAcceptedApplication closes out the currently accepted application
// when the assignment unwinds.
func (a *jobAggregate) rejectAcceptedApplication(dbc dbctx.Context, jobID uuid.UUID, status string) error {
	app, err := a.deps.Applications.GetAcceptedByJob(dbc, jobID)
	if err != nil {
		return err
	}
	if app == nil {
		return nil
	}
	return a.deps.Applications.UpdateFields(dbc, app.ID, map[string]interface{}{
		"status": status,
	})
}

func lookupWallet(ctx context.Context, users userrepo.UserRepo, id uuid.UUID) (string, error) {
	if users == nil || id == uuid.Nil {
		return "", nil
	}
	u, err := users.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", nil
	}
	return u.WalletAddress, nil
}

// refundShareBps converts a share of the budget into basis points of the
// escrow balance, which is what the ledger refunds against. The escrow
// holds budget plus fee, so a full budget refund is less than 10000 bps
// of the escrow and the fee stays retained.
func refundShareBps(job *types.Job, budgetShareBps int) int {
	if job.EscrowAmount <= 0 {
		return budgetShareBps
	}
	bps := int(math.Round(float64(budgetShareBps) * job.Budget / job.EscrowAmount))
	if bps > 10000 {
		bps = 10000
	}
	if bps < 0 {
		bps = 0
	}
	return bps
}

func atOrNow(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at
}

func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }
