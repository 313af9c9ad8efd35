package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/workhub/escrow-backend/internal/domain"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type IncidentRepo interface {
	Create(dbc dbctx.Context, row *types.Incident) (*types.Incident, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Incident, error)
	ListOpen(dbc dbctx.Context, limit int) ([]*types.Incident, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type incidentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIncidentRepo(db *gorm.DB, baseLog *logger.Logger) IncidentRepo {
	return &incidentRepo{db: db, log: baseLog.With("repo", "IncidentRepo")}
}

func (r *incidentRepo) Create(dbc dbctx.Context, row *types.Incident) (*types.Incident, error) {
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

func (r *incidentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Incident, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Incident
	err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *incidentRepo) ListOpen(dbc dbctx.Context, limit int) ([]*types.Incident, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Incident
	q := t.WithContext(dbc.Ctx).Where("status = ?", "open").Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *incidentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Incident{}).
		Where("id = ?", id).
		Updates(updates).Error
}
