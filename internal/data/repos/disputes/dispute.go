package disputes

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/workhub/escrow-backend/internal/domain"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type DisputeRepo interface {
	Create(dbc dbctx.Context, row *types.Dispute) (*types.Dispute, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Dispute, error)
	GetByJob(dbc dbctx.Context, jobID uuid.UUID) (*types.Dispute, error)
	// LockByID takes a row lock so all mutations of one dispute serialize.
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Dispute, error)
	LockByJob(dbc dbctx.Context, jobID uuid.UUID) (*types.Dispute, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsIfStatus applies updates only when the row still carries
	// the expected status, bumping version. Returns whether a row changed.
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, expectedStatus string, updates map[string]interface{}) (bool, error)
	// ListEvidenceElapsed finds awaiting_evidence disputes whose evidence
	// deadline has passed.
	ListEvidenceElapsed(dbc dbctx.Context, before time.Time, limit int) ([]*types.Dispute, error)
	// ListAwaitingRound finds unresolved disputes with no open round: a
	// rebutted dispute whose round was never convened (evidence_deadline
	// cleared, round creation failed or crashed) or a decided round whose
	// successor is missing. The sweep retries the convening for these.
	ListAwaitingRound(dbc dbctx.Context, limit int) ([]*types.Dispute, error)
}

type disputeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDisputeRepo(db *gorm.DB, baseLog *logger.Logger) DisputeRepo {
	return &disputeRepo{db: db, log: baseLog.With("repo", "DisputeRepo")}
}

func (r *disputeRepo) Create(dbc dbctx.Context, row *types.Dispute) (*types.Dispute, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *disputeRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Dispute, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Dispute
	err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *disputeRepo) GetByJob(dbc dbctx.Context, jobID uuid.UUID) (*types.Dispute, error) {
	if jobID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Dispute
	err := t.WithContext(dbc.Ctx).Where("job_id = ?", jobID).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *disputeRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Dispute, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Dispute
	err := t.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *disputeRepo) LockByJob(dbc dbctx.Context, jobID uuid.UUID) (*types.Dispute, error) {
	if jobID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Dispute
	err := t.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("job_id = ?", jobID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *disputeRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.Dispute{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *disputeRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, expectedStatus string, updates map[string]interface{}) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	if _, ok := updates["version"]; !ok {
		updates["version"] = gorm.Expr("version + 1")
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.Dispute{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *disputeRepo) ListEvidenceElapsed(dbc dbctx.Context, before time.Time, limit int) ([]*types.Dispute, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Dispute
	q := t.WithContext(dbc.Ctx).
		Where("status = ? AND evidence_deadline IS NOT NULL AND evidence_deadline <= ?", types.DisputeStatusAwaitingEvidence, before).
		Order("evidence_deadline ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *disputeRepo) ListAwaitingRound(dbc dbctx.Context, limit int) ([]*types.Dispute, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Dispute
	q := t.WithContext(dbc.Ctx).
		Where("final_winner IS NULL").
		Where("((status = ? AND evidence_deadline IS NULL) OR status IN ?)",
			types.DisputeStatusAwaitingEvidence,
			[]string{types.DisputeStatusVotingRound1, types.DisputeStatusVotingRound2, types.DisputeStatusVotingRound3}).
		Where("NOT EXISTS (SELECT 1 FROM dispute_rounds r WHERE r.dispute_id = disputes.id AND r.status = ?)", types.RoundStatusOpen).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
