package disputes

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/workhub/escrow-backend/internal/domain"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type VoteRepo interface {
	// CreateOnce inserts the vote unless the arbiter already voted in the
	// round. Returns whether the row was inserted.
	CreateOnce(dbc dbctx.Context, row *types.DisputeVote) (bool, error)
	ListByRound(dbc dbctx.Context, roundID uuid.UUID) ([]*types.DisputeVote, error)
	CountByRound(dbc dbctx.Context, roundID uuid.UUID) (int64, error)
}

type voteRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVoteRepo(db *gorm.DB, baseLog *logger.Logger) VoteRepo {
	return &voteRepo{db: db, log: baseLog.With("repo", "VoteRepo")}
}

func (r *voteRepo) CreateOnce(dbc dbctx.Context, row *types.DisputeVote) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return false, nil
	}
	res := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "round_id"}, {Name: "arbiter_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *voteRepo) ListByRound(dbc dbctx.Context, roundID uuid.UUID) ([]*types.DisputeVote, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.DisputeVote
	if roundID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("round_id = ?", roundID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *voteRepo) CountByRound(dbc dbctx.Context, roundID uuid.UUID) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if roundID == uuid.Nil {
		return 0, nil
	}
	var n int64
	if err := t.WithContext(dbc.Ctx).Model(&types.DisputeVote{}).Where("round_id = ?", roundID).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
