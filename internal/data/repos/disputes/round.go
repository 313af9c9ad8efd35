package disputes

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/workhub/escrow-backend/internal/domain"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type RoundRepo interface {
	Create(dbc dbctx.Context, row *types.DisputeRound) (*types.DisputeRound, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DisputeRound, error)
	GetByDisputeAndNo(dbc dbctx.Context, disputeID uuid.UUID, roundNo int) (*types.DisputeRound, error)
	ListByDispute(dbc dbctx.Context, disputeID uuid.UUID) ([]*types.DisputeRound, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsIfStatus applies updates only when the round still carries
	// the expected status. Returns whether a row changed.
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, expectedStatus string, updates map[string]interface{}) (bool, error)
	// ListVoteElapsed finds open rounds whose vote deadline has passed.
	ListVoteElapsed(dbc dbctx.Context, before time.Time, limit int) ([]*types.DisputeRound, error)
}

type roundRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRoundRepo(db *gorm.DB, baseLog *logger.Logger) RoundRepo {
	return &roundRepo{db: db, log: baseLog.With("repo", "RoundRepo")}
}

func (r *roundRepo) Create(dbc dbctx.Context, row *types.DisputeRound) (*types.DisputeRound, error) {
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

func (r *roundRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DisputeRound, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.DisputeRound
	err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *roundRepo) GetByDisputeAndNo(dbc dbctx.Context, disputeID uuid.UUID, roundNo int) (*types.DisputeRound, error) {
	if disputeID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.DisputeRound
	err := t.WithContext(dbc.Ctx).
		Where("dispute_id = ? AND round_no = ?", disputeID, roundNo).
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

func (r *roundRepo) ListByDispute(dbc dbctx.Context, disputeID uuid.UUID) ([]*types.DisputeRound, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.DisputeRound
	if disputeID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("dispute_id = ?", disputeID).Order("round_no ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *roundRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.DisputeRound{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *roundRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, expectedStatus string, updates map[string]interface{}) (bool, error) {
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
		Model(&types.DisputeRound{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *roundRepo) ListVoteElapsed(dbc dbctx.Context, before time.Time, limit int) ([]*types.DisputeRound, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.DisputeRound
	q := t.WithContext(dbc.Ctx).
		Where("status = ? AND vote_deadline <= ?", types.RoundStatusOpen, before).
		Order("vote_deadline ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
