package reputation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/workhub/escrow-backend/internal/domain"
	"github.com/workhub/escrow-backend/internal/domain/reputation"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type ScoreRepo interface {
	GetByID(dbc dbctx.Context, subjectID uuid.UUID) (*types.ReputationScore, error)
	GetByIDs(dbc dbctx.Context, subjectIDs []uuid.UUID) ([]*types.ReputationScore, error)
	// ApplyEvent records the event and adjusts the subject's counters.
	// The event insert is the dedupe gate: a replay hits the unique index,
	// inserts nothing and leaves the counters alone. Returns whether the
	// delta was applied.
	ApplyEvent(dbc dbctx.Context, subjectID, jobID uuid.UUID, event string) (bool, error)
	ListEventsByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.ReputationEvent, error)
}

type scoreRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScoreRepo(db *gorm.DB, baseLog *logger.Logger) ScoreRepo {
	return &scoreRepo{db: db, log: baseLog.With("repo", "ScoreRepo")}
}

func (r *scoreRepo) GetByID(dbc dbctx.Context, subjectID uuid.UUID) (*types.ReputationScore, error) {
	if subjectID == uuid.Nil {
		return nil, nil
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.ReputationScore
	err := t.WithContext(dbc.Ctx).Where("subject_id = ?", subjectID).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.SubjectID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *scoreRepo) GetByIDs(dbc dbctx.Context, subjectIDs []uuid.UUID) ([]*types.ReputationScore, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ReputationScore
	if len(subjectIDs) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("subject_id IN ?", subjectIDs).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *scoreRepo) ApplyEvent(dbc dbctx.Context, subjectID, jobID uuid.UUID, event string) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if subjectID == uuid.Nil || jobID == uuid.Nil {
		return false, nil
	}
	delta, ok := reputation.Deltas[event]
	if !ok {
		return false, nil
	}
	row := &types.ReputationEvent{
		SubjectID:    subjectID,
		JobID:        jobID,
		Event:        event,
		TrustDelta:   delta.Trust,
		UntrustDelta: delta.Untrust,
	}
	res := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_id"}, {Name: "job_id"}, {Name: "event"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	// Upsert the counters, clamping trust at zero.
	err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "subject_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"trust":      gorm.Expr("GREATEST(reputation_scores.trust + ?, 0)", delta.Trust),
				"untrust":    gorm.Expr("reputation_scores.untrust + ?", delta.Untrust),
				"updated_at": time.Now().UTC(),
			}),
		}).
		Create(&types.ReputationScore{
			SubjectID: subjectID,
			Trust:     maxInt(delta.Trust, 0),
			Untrust:   delta.Untrust,
		}).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *scoreRepo) ListEventsByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.ReputationEvent, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.ReputationEvent
	if jobID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("job_id = ?", jobID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
