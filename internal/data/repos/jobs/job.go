package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/workhub/escrow-backend/internal/domain"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type JobRepo interface {
	Create(dbc dbctx.Context, rows []*types.Job) ([]*types.Job, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Job, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Job, error)
	ListByEmployer(dbc dbctx.Context, employerID uuid.UUID, limit int) ([]*types.Job, error)

	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Job, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsIfStatus applies updates only while the job still holds one
	// of the allowed statuses. A false return means the caller lost the race.
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowedStatuses []string, updates map[string]interface{}) (bool, error)

	// Scheduler sweeps: jobs whose named deadline column elapsed while still
	// in the given status (and optionally a work status subset).
	ListDeadlineElapsed(dbc dbctx.Context, status string, deadlineColumn string, workStatuses []string, before time.Time, limit int) ([]*types.Job, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{db: db, log: baseLog.With("repo", "JobRepo")}
}

func (r *jobRepo) Create(dbc dbctx.Context, rows []*types.Job) ([]*types.Job, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Job{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *jobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Job, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *jobRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Job, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Job
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) ListByEmployer(dbc dbctx.Context, employerID uuid.UUID, limit int) ([]*types.Job, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Job
	if employerID == uuid.Nil {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).Where("employer_id = ?", employerID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Job, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Job
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

func (r *jobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Job{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *jobRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowedStatuses []string, updates map[string]interface{}) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil || len(allowedStatuses) == 0 {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	updates["version"] = gorm.Expr("version + 1")

	res := t.WithContext(dbc.Ctx).
		Model(&types.Job{}).
		Where("id = ? AND status IN ?", id, allowedStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRepo) ListDeadlineElapsed(dbc dbctx.Context, status string, deadlineColumn string, workStatuses []string, before time.Time, limit int) ([]*types.Job, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Job
	if status == "" {
		return out, nil
	}
	col, ok := deadlineColumns[deadlineColumn]
	if !ok {
		return nil, gorm.ErrInvalidField
	}
	q := t.WithContext(dbc.Ctx).
		Where("status = ? AND "+col+" IS NOT NULL AND "+col+" < ?", status, before).
		Order(col + " ASC")
	if len(workStatuses) > 0 {
		q = q.Where("work_status IN ?", workStatuses)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Deadline column whitelist. Keeps the sweep queries off raw caller input.
var deadlineColumns = map[string]string{
	"application_deadline":     "application_deadline",
	"sign_deadline":            "sign_deadline",
	"work_submission_deadline": "work_submission_deadline",
	"work_review_deadline":     "work_review_deadline",
}
