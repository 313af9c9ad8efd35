package jobs

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/workhub/escrow-backend/internal/domain"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type HistoryRepo interface {
	Create(dbc dbctx.Context, row *types.JobHistory) (*types.JobHistory, error)
	ListByJob(dbc dbctx.Context, jobID uuid.UUID, limit int) ([]*types.JobHistory, error)
}

type historyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHistoryRepo(db *gorm.DB, baseLog *logger.Logger) HistoryRepo {
	return &historyRepo{db: db, log: baseLog.With("repo", "HistoryRepo")}
}

func (r *historyRepo) Create(dbc dbctx.Context, row *types.JobHistory) (*types.JobHistory, error) {
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

func (r *historyRepo) ListByJob(dbc dbctx.Context, jobID uuid.UUID, limit int) ([]*types.JobHistory, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.JobHistory
	if jobID == uuid.Nil {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).Where("job_id = ?", jobID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
