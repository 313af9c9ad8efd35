package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/workhub/escrow-backend/internal/domain"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type ContractTermRepo interface {
	CreateMany(dbc dbctx.Context, rows []*types.ContractTerm) ([]*types.ContractTerm, error)
	ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.ContractTerm, error)
}

type contractTermRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContractTermRepo(db *gorm.DB, baseLog *logger.Logger) ContractTermRepo {
	return &contractTermRepo{db: db, log: baseLog.With("repo", "ContractTermRepo")}
}

func (r *contractTermRepo) CreateMany(dbc dbctx.Context, rows []*types.ContractTerm) ([]*types.ContractTerm, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.ContractTerm{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *contractTermRepo) ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.ContractTerm, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ContractTerm
	if jobID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("job_id = ?", jobID).Order("pos ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type JobContractRepo interface {
	Create(dbc dbctx.Context, row *types.JobContract) (*types.JobContract, error)
	GetByJob(dbc dbctx.Context, jobID uuid.UUID) (*types.JobContract, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type jobContractRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobContractRepo(db *gorm.DB, baseLog *logger.Logger) JobContractRepo {
	return &jobContractRepo{db: db, log: baseLog.With("repo", "JobContractRepo")}
}

func (r *jobContractRepo) Create(dbc dbctx.Context, row *types.JobContract) (*types.JobContract, error) {
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

func (r *jobContractRepo) GetByJob(dbc dbctx.Context, jobID uuid.UUID) (*types.JobContract, error) {
	if jobID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.JobContract
	if err := t.WithContext(dbc.Ctx).Where("job_id = ?", jobID).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *jobContractRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.JobContract{}).
		Where("id = ?", id).
		Updates(updates).Error
}
