package aggregates

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	types "github.com/workhub/escrow-backend/internal/domain"
	jobsdom "github.com/workhub/escrow-backend/internal/domain/jobs"
	ledgerdom "github.com/workhub/escrow-backend/internal/domain/ledger"
	"github.com/workhub/escrow-backend/internal/domain/reputation"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
)

// In-memory repo doubles for the aggregate tests. They apply the same
// column update maps the gorm repos translate into SQL, so the full
// transition logic runs against plain maps. Reads hand back copies the
// way a fresh query would, so a snapshot loaded earlier in an operation
// does not see later writes.

type memStore struct {
	users        map[uuid.UUID]*types.User
	jobs         map[uuid.UUID]*types.Job
	applications map[uuid.UUID]*types.JobApplication
	terms        []*types.ContractTerm
	contracts    map[uuid.UUID]*types.JobContract
	submissions  []*types.WorkSubmission
	history      []*types.JobHistory
	disputes     map[uuid.UUID]*types.Dispute
	rounds       map[uuid.UUID]*types.DisputeRound
	votes        []*types.DisputeVote
	scores       map[uuid.UUID]*types.ReputationScore
	events       []*types.ReputationEvent
	intents      map[uuid.UUID]*types.SettlementIntent
	incidents    []*types.Incident
}

func newMemStore() *memStore {
	return &memStore{
		users:        map[uuid.UUID]*types.User{},
		jobs:         map[uuid.UUID]*types.Job{},
		applications: map[uuid.UUID]*types.JobApplication{},
		contracts:    map[uuid.UUID]*types.JobContract{},
		disputes:     map[uuid.UUID]*types.Dispute{},
		rounds:       map[uuid.UUID]*types.DisputeRound{},
		scores:       map[uuid.UUID]*types.ReputationScore{},
		intents:      map[uuid.UUID]*types.SettlementIntent{},
	}
}

// memRunner executes the transaction body directly. The fakes have no
// rollback, which the tests account for: assertions after a failed write
// stick to rows the operation is specified to leave behind.
type memRunner struct {
	calls int
}

func (r *memRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.calls++
	return fn(dbctx.Context{Ctx: ctx})
}

func ensureID(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}

func timePtrVal(v interface{}) *time.Time {
	if v == nil {
		return nil
	}
	t := v.(time.Time)
	return &t
}

func uuidPtrVal(v interface{}) *uuid.UUID {
	if v == nil {
		return nil
	}
	id := v.(uuid.UUID)
	return &id
}

func strPtrVal(v interface{}) *string {
	if v == nil {
		return nil
	}
	s := v.(string)
	return &s
}

func copyJob(j *types.Job) *types.Job {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}

func copyDispute(d *types.Dispute) *types.Dispute {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func copyRound(r *types.DisputeRound) *types.DisputeRound {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// --- jobs ---

type fakeJobRepo struct {
	store *memStore
}

func applyJobUpdates(j *types.Job, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			j.Status = v.(string)
		case "work_status":
			j.WorkStatus = v.(string)
		case "escrow_ref":
			j.EscrowRef = strPtrVal(v)
		case "escrow_amount":
			j.EscrowAmount = v.(float64)
		case "application_deadline":
			j.ApplicationDeadline = timePtrVal(v)
		case "sign_deadline":
			j.SignDeadline = timePtrVal(v)
		case "work_submission_deadline":
			j.WorkSubmissionDeadline = timePtrVal(v)
		case "work_review_deadline":
			j.WorkReviewDeadline = timePtrVal(v)
		case "selected_applicant_id":
			j.SelectedApplicantID = uuidPtrVal(v)
		case "freelancer_id":
			j.FreelancerID = uuidPtrVal(v)
		default:
			panic(fmt.Sprintf("fakeJobRepo: unhandled column %q", k))
		}
	}
}

func (r *fakeJobRepo) Create(_ dbctx.Context, rows []*types.Job) ([]*types.Job, error) {
	for _, row := range rows {
		row.ID = ensureID(row.ID)
		r.store.jobs[row.ID] = copyJob(row)
	}
	return rows, nil
}

func (r *fakeJobRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Job, error) {
	return copyJob(r.store.jobs[id]), nil
}

func (r *fakeJobRepo) GetByIDs(_ dbctx.Context, ids []uuid.UUID) ([]*types.Job, error) {
	out := make([]*types.Job, 0, len(ids))
	for _, id := range ids {
		if j, ok := r.store.jobs[id]; ok {
			out = append(out, copyJob(j))
		}
	}
	return out, nil
}

func (r *fakeJobRepo) ListByEmployer(_ dbctx.Context, employerID uuid.UUID, limit int) ([]*types.Job, error) {
	var out []*types.Job
	for _, j := range r.store.jobs {
		if j.EmployerID == employerID {
			out = append(out, copyJob(j))
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeJobRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Job, error) {
	return r.GetByID(dbc, id)
}

func (r *fakeJobRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if j, ok := r.store.jobs[id]; ok {
		applyJobUpdates(j, updates)
	}
	return nil
}

func (r *fakeJobRepo) UpdateFieldsIfStatus(_ dbctx.Context, id uuid.UUID, allowedStatuses []string, updates map[string]interface{}) (bool, error) {
	j, ok := r.store.jobs[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, s := range allowedStatuses {
		if j.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	applyJobUpdates(j, updates)
	return true, nil
}

func (r *fakeJobRepo) ListDeadlineElapsed(_ dbctx.Context, status, deadlineColumn string, workStatuses []string, before time.Time, limit int) ([]*types.Job, error) {
	var out []*types.Job
	for _, j := range r.store.jobs {
		if j.Status != status {
			continue
		}
		if len(workStatuses) > 0 {
			match := false
			for _, ws := range workStatuses {
				if j.WorkStatus == ws {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		var deadline *time.Time
		switch deadlineColumn {
		case "application_deadline":
			deadline = j.ApplicationDeadline
		case "sign_deadline":
			deadline = j.SignDeadline
		case "work_submission_deadline":
			deadline = j.WorkSubmissionDeadline
		case "work_review_deadline":
			deadline = j.WorkReviewDeadline
		default:
			panic(fmt.Sprintf("fakeJobRepo: unhandled deadline column %q", deadlineColumn))
		}
		if deadline == nil || deadline.After(before) {
			continue
		}
		out = append(out, copyJob(j))
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeApplicationRepo struct {
	store *memStore
}

func (r *fakeApplicationRepo) Create(_ dbctx.Context, rows []*types.JobApplication) ([]*types.JobApplication, error) {
	for _, row := range rows {
		row.ID = ensureID(row.ID)
		c := *row
		r.store.applications[row.ID] = &c
	}
	return rows, nil
}

func (r *fakeApplicationRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.JobApplication, error) {
	if a, ok := r.store.applications[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (r *fakeApplicationRepo) GetAcceptedByJob(_ dbctx.Context, jobID uuid.UUID) (*types.JobApplication, error) {
	for _, a := range r.store.applications {
		if a.JobID == jobID && a.Status == jobsdom.ApplicationStatusAccepted {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeApplicationRepo) ListByJob(_ dbctx.Context, jobID uuid.UUID) ([]*types.JobApplication, error) {
	var out []*types.JobApplication
	for _, a := range r.store.applications {
		if a.JobID == jobID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeApplicationRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	a, ok := r.store.applications[id]
	if !ok {
		return nil
	}
	for k, v := range updates {
		switch k {
		case "status":
			a.Status = v.(string)
		default:
			panic(fmt.Sprintf("fakeApplicationRepo: unhandled column %q", k))
		}
	}
	return nil
}

func (r *fakeApplicationRepo) AcceptOne(_ dbctx.Context, jobID, applicationID uuid.UUID) (bool, error) {
	target, ok := r.store.applications[applicationID]
	if !ok || target.JobID != jobID || target.Status != jobsdom.ApplicationStatusPending {
		return false, nil
	}
	for _, a := range r.store.applications {
		if a.JobID != jobID {
			continue
		}
		if a.ID == applicationID {
			a.Status = jobsdom.ApplicationStatusAccepted
		} else if a.Status == jobsdom.ApplicationStatusPending {
			a.Status = jobsdom.ApplicationStatusRejected
		}
	}
	return true, nil
}

type fakeTermRepo struct {
	store *memStore
}

func (r *fakeTermRepo) CreateMany(_ dbctx.Context, rows []*types.ContractTerm) ([]*types.ContractTerm, error) {
	for _, row := range rows {
		row.ID = ensureID(row.ID)
		c := *row
		r.store.terms = append(r.store.terms, &c)
	}
	return rows, nil
}

func (r *fakeTermRepo) ListByJob(_ dbctx.Context, jobID uuid.UUID) ([]*types.ContractTerm, error) {
	var out []*types.ContractTerm
	for _, t := range r.store.terms {
		if t.JobID == jobID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pos < out[j].Pos })
	return out, nil
}

type fakeContractRepo struct {
	store *memStore
}

func (r *fakeContractRepo) Create(_ dbctx.Context, row *types.JobContract) (*types.JobContract, error) {
	if row == nil {
		return nil, nil
	}
	row.ID = ensureID(row.ID)
	c := *row
	r.store.contracts[row.ID] = &c
	return row, nil
}

func (r *fakeContractRepo) GetByJob(_ dbctx.Context, jobID uuid.UUID) (*types.JobContract, error) {
	for _, c := range r.store.contracts {
		if c.JobID == jobID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeContractRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	c, ok := r.store.contracts[id]
	if !ok {
		return nil
	}
	for k, v := range updates {
		switch k {
		case "freelancer_signed_at":
			c.FreelancerSignedAt = timePtrVal(v)
		case "freelancer_sign_tx_ref":
			c.FreelancerSignTxRef = v.(string)
		default:
			panic(fmt.Sprintf("fakeContractRepo: unhandled column %q", k))
		}
	}
	return nil
}

type fakeSubmissionRepo struct {
	store *memStore
}

func (r *fakeSubmissionRepo) Create(_ dbctx.Context, row *types.WorkSubmission) (*types.WorkSubmission, error) {
	if row == nil {
		return nil, nil
	}
	row.ID = ensureID(row.ID)
	c := *row
	r.store.submissions = append(r.store.submissions, &c)
	return row, nil
}

func (r *fakeSubmissionRepo) GetLiveByJob(_ dbctx.Context, jobID uuid.UUID) (*types.WorkSubmission, error) {
	for i := len(r.store.submissions) - 1; i >= 0; i-- {
		s := r.store.submissions[i]
		if s.JobID == jobID && !s.Superseded {
			c := *s
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeSubmissionRepo) ListByJob(_ dbctx.Context, jobID uuid.UUID) ([]*types.WorkSubmission, error) {
	var out []*types.WorkSubmission
	for _, s := range r.store.submissions {
		if s.JobID == jobID {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeSubmissionRepo) SupersedeLive(_ dbctx.Context, jobID uuid.UUID) error {
	for _, s := range r.store.submissions {
		if s.JobID == jobID && !s.Superseded {
			s.Superseded = true
		}
	}
	return nil
}

func (r *fakeSubmissionRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	for _, s := range r.store.submissions {
		if s.ID != id {
			continue
		}
		for k, v := range updates {
			switch k {
			case "revision_note":
				s.RevisionNote = strPtrVal(v)
			default:
				panic(fmt.Sprintf("fakeSubmissionRepo: unhandled column %q", k))
			}
		}
	}
	return nil
}

type fakeHistoryRepo struct {
	store   *memStore
	failErr error
}

func (r *fakeHistoryRepo) Create(_ dbctx.Context, row *types.JobHistory) (*types.JobHistory, error) {
	if r.failErr != nil {
		return nil, r.failErr
	}
	if row == nil {
		return nil, nil
	}
	row.ID = ensureID(row.ID)
	c := *row
	r.store.history = append(r.store.history, &c)
	return row, nil
}

func (r *fakeHistoryRepo) ListByJob(_ dbctx.Context, jobID uuid.UUID, limit int) ([]*types.JobHistory, error) {
	var out []*types.JobHistory
	for _, h := range r.store.history {
		if h.JobID == jobID {
			c := *h
			out = append(out, &c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- reputation ---

type fakeScoreRepo struct {
	store *memStore
}

func (r *fakeScoreRepo) GetByID(_ dbctx.Context, subjectID uuid.UUID) (*types.ReputationScore, error) {
	if s, ok := r.store.scores[subjectID]; ok {
		c := *s
		return &c, nil
	}
	return nil, nil
}

func (r *fakeScoreRepo) GetByIDs(_ dbctx.Context, subjectIDs []uuid.UUID) ([]*types.ReputationScore, error) {
	var out []*types.ReputationScore
	for _, id := range subjectIDs {
		if s, ok := r.store.scores[id]; ok {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeScoreRepo) ApplyEvent(_ dbctx.Context, subjectID, jobID uuid.UUID, event string) (bool, error) {
	delta, ok := reputation.Deltas[event]
	if !ok {
		return false, fmt.Errorf("unknown reputation event %q", event)
	}
	for _, e := range r.store.events {
		if e.SubjectID == subjectID && e.JobID == jobID && e.Event == event {
			return false, nil
		}
	}
	r.store.events = append(r.store.events, &types.ReputationEvent{
		ID:           uuid.New(),
		SubjectID:    subjectID,
		JobID:        jobID,
		Event:        event,
		TrustDelta:   delta.Trust,
		UntrustDelta: delta.Untrust,
	})
	s, ok := r.store.scores[subjectID]
	if !ok {
		s = &types.ReputationScore{SubjectID: subjectID}
		r.store.scores[subjectID] = s
	}
	s.Trust += delta.Trust
	s.Untrust += delta.Untrust
	return true, nil
}

func (r *fakeScoreRepo) ListEventsByJob(_ dbctx.Context, jobID uuid.UUID) ([]*types.ReputationEvent, error) {
	var out []*types.ReputationEvent
	for _, e := range r.store.events {
		if e.JobID == jobID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// --- users ---

type fakeUserRepo struct {
	store *memStore
}

func (r *fakeUserRepo) Create(_ dbctx.Context, row *types.User) (*types.User, error) {
	if row == nil {
		return nil, nil
	}
	row.ID = ensureID(row.ID)
	c := *row
	r.store.users[row.ID] = &c
	return row, nil
}

func (r *fakeUserRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.User, error) {
	if u, ok := r.store.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByIDs(_ dbctx.Context, ids []uuid.UUID) ([]*types.User, error) {
	var out []*types.User
	for _, id := range ids {
		if u, ok := r.store.users[id]; ok {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) GetByEmail(_ dbctx.Context, email string) (*types.User, error) {
	for _, u := range r.store.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) ListActiveByRole(_ dbctx.Context, role string) ([]*types.User, error) {
	var out []*types.User
	for _, u := range r.store.users {
		if u.Active && u.Role == role {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	u, ok := r.store.users[id]
	if !ok {
		return nil
	}
	for k, v := range updates {
		switch k {
		case "active":
			u.Active = v.(bool)
		case "wallet_address":
			u.WalletAddress = v.(string)
		default:
			panic(fmt.Sprintf("fakeUserRepo: unhandled column %q", k))
		}
	}
	return nil
}

// --- ledger ---

type fakeIntentRepo struct {
	store *memStore
	order []uuid.UUID
}

func (r *fakeIntentRepo) Create(_ dbctx.Context, row *types.SettlementIntent) (*types.SettlementIntent, error) {
	if row == nil {
		return nil, nil
	}
	row.ID = ensureID(row.ID)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	c := *row
	r.store.intents[row.ID] = &c
	r.order = append(r.order, row.ID)
	return row, nil
}

func (r *fakeIntentRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.SettlementIntent, error) {
	if i, ok := r.store.intents[id]; ok {
		c := *i
		return &c, nil
	}
	return nil, nil
}

func (r *fakeIntentRepo) ListByJob(_ dbctx.Context, jobID uuid.UUID) ([]*types.SettlementIntent, error) {
	var out []*types.SettlementIntent
	for _, id := range r.order {
		if i := r.store.intents[id]; i != nil && i.JobID == jobID {
			c := *i
			out = append(out, &c)
		}
	}
	return out, nil
}

func applyIntentUpdates(i *types.SettlementIntent, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			i.Status = v.(string)
		case "tx_ref":
			i.TxRef = v.(string)
		default:
			panic(fmt.Sprintf("fakeIntentRepo: unhandled column %q", k))
		}
	}
}

func (r *fakeIntentRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if i, ok := r.store.intents[id]; ok {
		applyIntentUpdates(i, updates)
	}
	return nil
}

func (r *fakeIntentRepo) UpdateFieldsIfStatus(_ dbctx.Context, id uuid.UUID, expectedStatus string, updates map[string]interface{}) (bool, error) {
	i, ok := r.store.intents[id]
	if !ok || i.Status != expectedStatus {
		return false, nil
	}
	applyIntentUpdates(i, updates)
	return true, nil
}

func (r *fakeIntentRepo) ListStalePending(_ dbctx.Context, before time.Time, limit int) ([]*types.SettlementIntent, error) {
	var out []*types.SettlementIntent
	for _, id := range r.order {
		i := r.store.intents[id]
		if i == nil || i.Status != ledgerdom.IntentStatusPending || i.CreatedAt.After(before) {
			continue
		}
		c := *i
		out = append(out, &c)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeIncidentRepo struct {
	store *memStore
}

func (r *fakeIncidentRepo) Create(_ dbctx.Context, row *types.Incident) (*types.Incident, error) {
	if row == nil {
		return nil, nil
	}
	row.ID = ensureID(row.ID)
	c := *row
	r.store.incidents = append(r.store.incidents, &c)
	return row, nil
}

func (r *fakeIncidentRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Incident, error) {
	for _, in := range r.store.incidents {
		if in.ID == id {
			c := *in
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeIncidentRepo) ListOpen(_ dbctx.Context, limit int) ([]*types.Incident, error) {
	var out []*types.Incident
	for _, in := range r.store.incidents {
		if in.Status == ledgerdom.IncidentStatusOpen {
			c := *in
			out = append(out, &c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeIncidentRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	for _, in := range r.store.incidents {
		if in.ID != id {
			continue
		}
		for k, v := range updates {
			switch k {
			case "status":
				in.Status = v.(string)
			case "detail":
				in.Detail = v.(string)
			default:
				panic(fmt.Sprintf("fakeIncidentRepo: unhandled column %q", k))
			}
		}
	}
	return nil
}

// --- disputes ---

type fakeDisputeRepo struct {
	store *memStore
}

func applyDisputeUpdates(d *types.Dispute, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			d.Status = v.(string)
		case "current_round":
			d.CurrentRound = v.(int)
		case "employer_evidence":
			d.EmployerEvidence = v.(string)
		case "freelancer_evidence":
			d.FreelancerEvidence = v.(string)
		case "evidence_deadline":
			d.EvidenceDeadline = timePtrVal(v)
		case "final_winner":
			d.FinalWinner = strPtrVal(v)
		case "settle_tx_ref":
			d.SettleTxRef = v.(string)
		case "round1_winner":
			d.Round1Winner = strPtrVal(v)
		case "round2_winner":
			d.Round2Winner = strPtrVal(v)
		case "round3_winner":
			d.Round3Winner = strPtrVal(v)
		default:
			panic(fmt.Sprintf("fakeDisputeRepo: unhandled column %q", k))
		}
	}
}

func (r *fakeDisputeRepo) Create(_ dbctx.Context, row *types.Dispute) (*types.Dispute, error) {
	if row == nil {
		return nil, nil
	}
	row.ID = ensureID(row.ID)
	r.store.disputes[row.ID] = copyDispute(row)
	return row, nil
}

func (r *fakeDisputeRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Dispute, error) {
	return copyDispute(r.store.disputes[id]), nil
}

func (r *fakeDisputeRepo) GetByJob(_ dbctx.Context, jobID uuid.UUID) (*types.Dispute, error) {
	for _, d := range r.store.disputes {
		if d.JobID == jobID {
			return copyDispute(d), nil
		}
	}
	return nil, nil
}

func (r *fakeDisputeRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Dispute, error) {
	return r.GetByID(dbc, id)
}

func (r *fakeDisputeRepo) LockByJob(dbc dbctx.Context, jobID uuid.UUID) (*types.Dispute, error) {
	return r.GetByJob(dbc, jobID)
}

func (r *fakeDisputeRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if d, ok := r.store.disputes[id]; ok {
		applyDisputeUpdates(d, updates)
	}
	return nil
}

func (r *fakeDisputeRepo) UpdateFieldsIfStatus(_ dbctx.Context, id uuid.UUID, expectedStatus string, updates map[string]interface{}) (bool, error) {
	d, ok := r.store.disputes[id]
	if !ok || d.Status != expectedStatus {
		return false, nil
	}
	applyDisputeUpdates(d, updates)
	return true, nil
}

func (r *fakeDisputeRepo) ListEvidenceElapsed(_ dbctx.Context, before time.Time, limit int) ([]*types.Dispute, error) {
	var out []*types.Dispute
	for _, d := range r.store.disputes {
		if d.Status != types.DisputeStatusAwaitingEvidence || d.EvidenceDeadline == nil || d.EvidenceDeadline.After(before) {
			continue
		}
		out = append(out, copyDispute(d))
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeDisputeRepo) ListAwaitingRound(_ dbctx.Context, limit int) ([]*types.Dispute, error) {
	openRound := make(map[uuid.UUID]bool)
	for _, rd := range r.store.rounds {
		if rd.Status == types.RoundStatusOpen {
			openRound[rd.DisputeID] = true
		}
	}
	var out []*types.Dispute
	for _, d := range r.store.disputes {
		if d.FinalWinner != nil || openRound[d.ID] {
			continue
		}
		rebutted := d.Status == types.DisputeStatusAwaitingEvidence && d.EvidenceDeadline == nil
		voting := d.Status == types.DisputeStatusVotingRound1 ||
			d.Status == types.DisputeStatusVotingRound2 ||
			d.Status == types.DisputeStatusVotingRound3
		if !rebutted && !voting {
			continue
		}
		out = append(out, copyDispute(d))
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeRoundRepo struct {
	store *memStore
}

func applyRoundUpdates(rd *types.DisputeRound, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			rd.Status = v.(string)
		case "winner":
			rd.Winner = strPtrVal(v)
		default:
			panic(fmt.Sprintf("fakeRoundRepo: unhandled column %q", k))
		}
	}
}

func (r *fakeRoundRepo) Create(_ dbctx.Context, row *types.DisputeRound) (*types.DisputeRound, error) {
	if row == nil {
		return nil, nil
	}
	row.ID = ensureID(row.ID)
	r.store.rounds[row.ID] = copyRound(row)
	return row, nil
}

func (r *fakeRoundRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.DisputeRound, error) {
	return copyRound(r.store.rounds[id]), nil
}

func (r *fakeRoundRepo) GetByDisputeAndNo(_ dbctx.Context, disputeID uuid.UUID, roundNo int) (*types.DisputeRound, error) {
	for _, rd := range r.store.rounds {
		if rd.DisputeID == disputeID && rd.RoundNo == roundNo {
			return copyRound(rd), nil
		}
	}
	return nil, nil
}

func (r *fakeRoundRepo) ListByDispute(_ dbctx.Context, disputeID uuid.UUID) ([]*types.DisputeRound, error) {
	var out []*types.DisputeRound
	for _, rd := range r.store.rounds {
		if rd.DisputeID == disputeID {
			out = append(out, copyRound(rd))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNo < out[j].RoundNo })
	return out, nil
}

func (r *fakeRoundRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if rd, ok := r.store.rounds[id]; ok {
		applyRoundUpdates(rd, updates)
	}
	return nil
}

func (r *fakeRoundRepo) UpdateFieldsIfStatus(_ dbctx.Context, id uuid.UUID, expectedStatus string, updates map[string]interface{}) (bool, error) {
	rd, ok := r.store.rounds[id]
	if !ok || rd.Status != expectedStatus {
		return false, nil
	}
	applyRoundUpdates(rd, updates)
	return true, nil
}

func (r *fakeRoundRepo) ListVoteElapsed(_ dbctx.Context, before time.Time, limit int) ([]*types.DisputeRound, error) {
	var out []*types.DisputeRound
	for _, rd := range r.store.rounds {
		if rd.Status != types.RoundStatusOpen || rd.VoteDeadline.After(before) {
			continue
		}
		out = append(out, copyRound(rd))
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeVoteRepo struct {
	store *memStore
}

func (r *fakeVoteRepo) CreateOnce(_ dbctx.Context, row *types.DisputeVote) (bool, error) {
	for _, v := range r.store.votes {
		if v.RoundID == row.RoundID && v.ArbiterID == row.ArbiterID {
			return false, nil
		}
	}
	row.ID = ensureID(row.ID)
	c := *row
	r.store.votes = append(r.store.votes, &c)
	return true, nil
}

func (r *fakeVoteRepo) ListByRound(_ dbctx.Context, roundID uuid.UUID) ([]*types.DisputeVote, error) {
	var out []*types.DisputeVote
	for _, v := range r.store.votes {
		if v.RoundID == roundID {
			c := *v
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeVoteRepo) CountByRound(dbc dbctx.Context, roundID uuid.UUID) (int64, error) {
	votes, _ := r.ListByRound(dbc, roundID)
	return int64(len(votes)), nil
}
