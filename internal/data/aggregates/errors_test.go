package aggregates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/workhub/escrow-backend/internal/domain/aggregates"
	"github.com/workhub/escrow-backend/internal/platform/ledger"
)

func TestMapErrorNil(t *testing.T) {
	if got := MapError("op", nil); got != nil {
		t.Fatalf("MapError(nil) = %v", got)
	}
}

func TestMapErrorPassesAggregateErrorsThrough(t *testing.T) {
	orig := domainagg.NewError(domainagg.CodeNotFound, "Escrow.Job.FundEscrow", "job not found", nil)
	if got := MapError("other", orig); got != orig {
		t.Fatalf("MapError rewrapped an aggregate error: %v", got)
	}
}

func TestMapErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domainagg.ErrorCode
	}{
		{"validation sentinel", ValidationError("bad input"), domainagg.CodeValidation},
		{"invariant sentinel", InvariantError("broken rule"), domainagg.CodeInvariantViolation},
		{"conflict sentinel", ConflictError("lost the race"), domainagg.CodeConflict},
		{"retryable sentinel", RetryableError("try again"), domainagg.CodeRetryable},
		{"ledger rejection", &ledger.RejectedError{Code: "NO_FUNDS", Reason: "empty wallet"}, domainagg.CodePreconditionFailed},
		{"ledger unknown", &ledger.UnknownError{Cause: errors.New("503")}, domainagg.CodeRetryable},
		{"record not found", gorm.ErrRecordNotFound, domainagg.CodeNotFound},
		{"context canceled", context.Canceled, domainagg.CodeRetryable},
		{"context deadline", context.DeadlineExceeded, domainagg.CodeRetryable},
		{"unique violation", &pgconn.PgError{Code: "23505"}, domainagg.CodeConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, domainagg.CodePreconditionFailed},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, domainagg.CodeRetryable},
		{"deadlock detected", &pgconn.PgError{Code: "40P01"}, domainagg.CodeRetryable},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, domainagg.CodeRetryable},
		{"duplicate key text", errors.New("ERROR: duplicate key value violates unique constraint"), domainagg.CodeConflict},
		{"deadlock text", errors.New("deadlock detected while locking jobs"), domainagg.CodeRetryable},
		{"timeout text", errors.New("dial tcp: i/o timeout"), domainagg.CodeRetryable},
		{"unclassified", errors.New("something odd happened"), domainagg.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MapError("Escrow.Test", tc.err)
			if !domainagg.IsCode(got, tc.want) {
				t.Fatalf("MapError(%v) = %v (code %s), want %s", tc.err, got, domainagg.CodeOf(got), tc.want)
			}
		})
	}
}

func TestMapErrorWrappedPgError(t *testing.T) {
	err := errors.Join(errors.New("insert intent"), &pgconn.PgError{Code: "23505"})
	if got := MapError("Escrow.Test", err); !domainagg.IsCode(got, domainagg.CodeConflict) {
		t.Fatalf("wrapped pg error mapped to %s", domainagg.CodeOf(got))
	}
}

func TestRequireCASSuccess(t *testing.T) {
	if err := RequireCASSuccess(true, "ignored"); err != nil {
		t.Fatalf("RequireCASSuccess(true) = %v", err)
	}
	err := RequireCASSuccess(false, "job moved")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("RequireCASSuccess(false) = %v, want conflict", err)
	}
}

func TestRequireStatusAllowed(t *testing.T) {
	if err := RequireStatusAllowed("open", "draft", "open"); err != nil {
		t.Fatalf("allowed status rejected: %v", err)
	}
	if err := RequireStatusAllowed("OPEN", "open"); err != nil {
		t.Fatalf("status match should be case insensitive: %v", err)
	}
	if err := RequireStatusAllowed("completed", "draft", "open"); !errors.Is(err, ErrConflict) {
		t.Fatalf("disallowed status = %v, want conflict", err)
	}
}

func TestRequireDeadlineElapsed(t *testing.T) {
	now := time.Now().UTC()

	if err := RequireDeadlineElapsed(nil, now); !errors.Is(err, ErrInvariant) {
		t.Fatalf("nil deadline = %v, want invariant", err)
	}
	future := now.Add(time.Minute)
	if err := RequireDeadlineElapsed(&future, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("future deadline = %v, want validation", err)
	}
	past := now.Add(-time.Minute)
	if err := RequireDeadlineElapsed(&past, now); err != nil {
		t.Fatalf("elapsed deadline = %v", err)
	}
	if err := RequireDeadlineElapsed(&now, now); err != nil {
		t.Fatalf("deadline boundary = %v, want elapsed", err)
	}
}

func TestRequireVersionMatch(t *testing.T) {
	if err := RequireVersionMatch(3, 3); err != nil {
		t.Fatalf("matching versions = %v", err)
	}
	if err := RequireVersionMatch(3, 2); !errors.Is(err, ErrConflict) {
		t.Fatalf("mismatch = %v, want conflict", err)
	}
	if err := RequireVersionMatch(3, -1); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative expectation = %v, want validation", err)
	}
}
