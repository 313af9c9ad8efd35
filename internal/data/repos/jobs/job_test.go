package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/workhub/escrow-backend/internal/data/repos/testutil"
	types "github.com/workhub/escrow-backend/internal/domain"
	jobsdom "github.com/workhub/escrow-backend/internal/domain/jobs"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
)

func seedJob(t *testing.T, dbc dbctx.Context, repo JobRepo, status string) *types.Job {
	t.Helper()
	rows, err := repo.Create(dbc, []*types.Job{{
		EmployerID:     uuid.New(),
		Title:          "integration fixture",
		Budget:         100,
		PlatformFeeBps: 1000,
		Currency:       "APT",
		Status:         status,
		WorkStatus:     jobsdom.WorkStatusNotStarted,
	}})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return rows[0]
}

func TestJobRepoRoundtrip(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRepo(db, testutil.Logger(t))

	created := seedJob(t, dbc, repo, jobsdom.JobStatusDraft)
	got, err := repo.GetByID(dbc, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.Title != created.Title || got.Status != jobsdom.JobStatusDraft {
		t.Fatalf("roundtrip = %+v", got)
	}

	missing, err := repo.GetByID(dbc, uuid.New())
	if err != nil {
		t.Fatalf("GetByID missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing id returned %+v", missing)
	}
}

func TestJobRepoUpdateFieldsIfStatus(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRepo(db, testutil.Logger(t))

	job := seedJob(t, dbc, repo, jobsdom.JobStatusDraft)

	ok, err := repo.UpdateFieldsIfStatus(dbc, job.ID,
		[]string{jobsdom.JobStatusDraft},
		map[string]interface{}{"status": jobsdom.JobStatusOpen})
	if err != nil {
		t.Fatalf("first CAS: %v", err)
	}
	if !ok {
		t.Fatal("first CAS should win")
	}

	// The guard status no longer holds; the same update must lose.
	ok, err = repo.UpdateFieldsIfStatus(dbc, job.ID,
		[]string{jobsdom.JobStatusDraft},
		map[string]interface{}{"status": jobsdom.JobStatusCancelled})
	if err != nil {
		t.Fatalf("second CAS: %v", err)
	}
	if ok {
		t.Fatal("stale CAS should report no rows")
	}

	got, err := repo.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != jobsdom.JobStatusOpen {
		t.Fatalf("status = %q, want open", got.Status)
	}
}

func TestJobRepoListDeadlineElapsed(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	elapsed := seedJob(t, dbc, repo, jobsdom.JobStatusPendingSignature)
	pending := seedJob(t, dbc, repo, jobsdom.JobStatusPendingSignature)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	if err := repo.UpdateFields(dbc, elapsed.ID, map[string]interface{}{"sign_deadline": past}); err != nil {
		t.Fatalf("set elapsed deadline: %v", err)
	}
	if err := repo.UpdateFields(dbc, pending.ID, map[string]interface{}{"sign_deadline": future}); err != nil {
		t.Fatalf("set future deadline: %v", err)
	}

	rows, err := repo.ListDeadlineElapsed(dbc, jobsdom.JobStatusPendingSignature, "sign_deadline", nil, now, 50)
	if err != nil {
		t.Fatalf("ListDeadlineElapsed: %v", err)
	}
	var sawElapsed, sawPending bool
	for _, j := range rows {
		if j.ID == elapsed.ID {
			sawElapsed = true
		}
		if j.ID == pending.ID {
			sawPending = true
		}
	}
	if !sawElapsed {
		t.Fatal("elapsed job missing from sweep")
	}
	if sawPending {
		t.Fatal("future deadline swept up")
	}
}

func TestApplicationRepoAcceptOne(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	jobRepo := NewJobRepo(db, testutil.Logger(t))
	appRepo := NewApplicationRepo(db, testutil.Logger(t))

	job := seedJob(t, dbc, jobRepo, jobsdom.JobStatusOpen)
	apps, err := appRepo.Create(dbc, []*types.JobApplication{
		{JobID: job.ID, ApplicantID: uuid.New(), Status: jobsdom.ApplicationStatusPending},
		{JobID: job.ID, ApplicantID: uuid.New(), Status: jobsdom.ApplicationStatusPending},
		{JobID: job.ID, ApplicantID: uuid.New(), Status: jobsdom.ApplicationStatusPending},
	})
	if err != nil {
		t.Fatalf("create applications: %v", err)
	}

	ok, err := appRepo.AcceptOne(dbc, job.ID, apps[1].ID)
	if err != nil {
		t.Fatalf("AcceptOne: %v", err)
	}
	if !ok {
		t.Fatal("AcceptOne should flip a pending application")
	}

	all, err := appRepo.ListByJob(dbc, job.ID)
	if err != nil {
		t.Fatalf("ListByJob: %v", err)
	}
	for _, a := range all {
		want := jobsdom.ApplicationStatusRejected
		if a.ID == apps[1].ID {
			want = jobsdom.ApplicationStatusAccepted
		}
		if a.Status != want {
			t.Fatalf("application %s = %q, want %q", a.ID, a.Status, want)
		}
	}

	// Replaying against a decided application loses.
	ok, err = appRepo.AcceptOne(dbc, job.ID, apps[0].ID)
	if err != nil {
		t.Fatalf("replay AcceptOne: %v", err)
	}
	if ok {
		t.Fatal("a rejected application must not be acceptable")
	}
}
