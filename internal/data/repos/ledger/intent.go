package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/workhub/escrow-backend/internal/domain"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type IntentRepo interface {
	Create(dbc dbctx.Context, row *types.SettlementIntent) (*types.SettlementIntent, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SettlementIntent, error)
	ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.SettlementIntent, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsIfStatus transitions an intent only from the expected
	// status. Returns whether a row changed.
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, expectedStatus string, updates map[string]interface{}) (bool, error)
	// ListStalePending finds pending intents older than the cutoff, for
	// the reconciliation sweep.
	ListStalePending(dbc dbctx.Context, before time.Time, limit int) ([]*types.SettlementIntent, error)
}

type intentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIntentRepo(db *gorm.DB, baseLog *logger.Logger) IntentRepo {
	return &intentRepo{db: db, log: baseLog.With("repo", "IntentRepo")}
}

func (r *intentRepo) Create(dbc dbctx.Context, row *types.SettlementIntent) (*types.SettlementIntent, error) {
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

func (r *intentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SettlementIntent, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.SettlementIntent
	err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *intentRepo) ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.SettlementIntent, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.SettlementIntent
	if jobID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("job_id = ?", jobID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *intentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.SettlementIntent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *intentRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, expectedStatus string, updates map[string]interface{}) (bool, error) {
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
	res := t.WithContext(dbc.Ctx).
		Model(&types.SettlementIntent{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *intentRepo) ListStalePending(dbc dbctx.Context, before time.Time, limit int) ([]*types.SettlementIntent, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.SettlementIntent
	q := t.WithContext(dbc.Ctx).
		Where("status = ? AND created_at <= ?", "pending", before).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
