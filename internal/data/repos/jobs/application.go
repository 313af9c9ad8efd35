package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/workhub/escrow-backend/internal/domain"
	domjobs "github.com/workhub/escrow-backend/internal/domain/jobs"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type ApplicationRepo interface {
	Create(dbc dbctx.Context, rows []*types.JobApplication) ([]*types.JobApplication, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobApplication, error)
	GetAcceptedByJob(dbc dbctx.Context, jobID uuid.UUID) (*types.JobApplication, error)
	ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobApplication, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error

	// AcceptOne flips the chosen application to accepted and every other
	// pending application on the job to rejected, in the same statement pair.
	AcceptOne(dbc dbctx.Context, jobID, applicationID uuid.UUID) (bool, error)
}

type applicationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewApplicationRepo(db *gorm.DB, baseLog *logger.Logger) ApplicationRepo {
	return &applicationRepo{db: db, log: baseLog.With("repo", "ApplicationRepo")}
}

func (r *applicationRepo) Create(dbc dbctx.Context, rows []*types.JobApplication) ([]*types.JobApplication, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.JobApplication{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *applicationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobApplication, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.JobApplication
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *applicationRepo) GetAcceptedByJob(dbc dbctx.Context, jobID uuid.UUID) (*types.JobApplication, error) {
	if jobID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.JobApplication
	err := t.WithContext(dbc.Ctx).
		Where("job_id = ? AND status = ?", jobID, domjobs.ApplicationStatusAccepted).
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

func (r *applicationRepo) ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobApplication, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.JobApplication
	if jobID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("job_id = ?", jobID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *applicationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.JobApplication{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *applicationRepo) AcceptOne(dbc dbctx.Context, jobID, applicationID uuid.UUID) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if jobID == uuid.Nil || applicationID == uuid.Nil {
		return false, nil
	}
	now := time.Now().UTC()

	res := t.WithContext(dbc.Ctx).
		Model(&types.JobApplication{}).
		Where("id = ? AND job_id = ? AND status = ?", applicationID, jobID, domjobs.ApplicationStatusPending).
		Updates(map[string]interface{}{
			"status":     domjobs.ApplicationStatusAccepted,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	err := t.WithContext(dbc.Ctx).
		Model(&types.JobApplication{}).
		Where("job_id = ? AND id <> ? AND status = ?", jobID, applicationID, domjobs.ApplicationStatusPending).
		Updates(map[string]interface{}{
			"status":     domjobs.ApplicationStatusRejected,
			"updated_at": now,
		}).Error
	if err != nil {
		return false, err
	}
	return true, nil
}
