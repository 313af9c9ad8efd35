package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/workhub/escrow-backend/internal/domain"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type SubmissionRepo interface {
	Create(dbc dbctx.Context, row *types.WorkSubmission) (*types.WorkSubmission, error)
	GetLiveByJob(dbc dbctx.Context, jobID uuid.UUID) (*types.WorkSubmission, error)
	ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.WorkSubmission, error)
	// SupersedeLive marks the current live submission superseded, if any.
	SupersedeLive(dbc dbctx.Context, jobID uuid.UUID) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type submissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) SubmissionRepo {
	return &submissionRepo{db: db, log: baseLog.With("repo", "SubmissionRepo")}
}

func (r *submissionRepo) Create(dbc dbctx.Context, row *types.WorkSubmission) (*types.WorkSubmission, error) {
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

func (r *submissionRepo) GetLiveByJob(dbc dbctx.Context, jobID uuid.UUID) (*types.WorkSubmission, error) {
	if jobID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.WorkSubmission
	err := t.WithContext(dbc.Ctx).
		Where("job_id = ? AND superseded = ?", jobID, false).
		Order("submitted_at DESC").
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

func (r *submissionRepo) ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.WorkSubmission, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.WorkSubmission
	if jobID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("job_id = ?", jobID).Order("submitted_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *submissionRepo) SupersedeLive(dbc dbctx.Context, jobID uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if jobID == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.WorkSubmission{}).
		Where("job_id = ? AND superseded = ?", jobID, false).
		Updates(map[string]interface{}{
			"superseded": true,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *submissionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.WorkSubmission{}).
		Where("id = ?", id).
		Updates(updates).Error
}
