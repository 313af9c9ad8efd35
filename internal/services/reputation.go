package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	reputationrepo "github.com/workhub/escrow-backend/internal/data/repos/reputation"
	types "github.com/workhub/escrow-backend/internal/domain"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type ReputationService interface {
	GetScore(ctx context.Context, subjectID uuid.UUID) (*types.ReputationScore, error)
	GetScores(ctx context.Context, subjectIDs []uuid.UUID) ([]*types.ReputationScore, error)
	ListEventsByJob(ctx context.Context, jobID uuid.UUID) ([]*types.ReputationEvent, error)
}

type reputationService struct {
	log    *logger.Logger
	scores reputationrepo.ScoreRepo
}

func NewReputationService(log *logger.Logger, scores reputationrepo.ScoreRepo) ReputationService {
	return &reputationService{
		log:    log.With("service", "ReputationService"),
		scores: scores,
	}
}

// GetScore returns a zero-valued score for subjects with no recorded
// events, so callers never need a null branch.
func (s *reputationService) GetScore(ctx context.Context, subjectID uuid.UUID) (*types.ReputationScore, error) {
	sc, err := s.scores.GetByID(dbctx.Context{Ctx: ctx}, subjectID)
	if err != nil {
		return nil, fmt.Errorf("load reputation score: %w", err)
	}
	if sc == nil {
		return &types.ReputationScore{SubjectID: subjectID}, nil
	}
	return sc, nil
}

func (s *reputationService) GetScores(ctx context.Context, subjectIDs []uuid.UUID) ([]*types.ReputationScore, error) {
	return s.scores.GetByIDs(dbctx.Context{Ctx: ctx}, subjectIDs)
}

func (s *reputationService) ListEventsByJob(ctx context.Context, jobID uuid.UUID) ([]*types.ReputationEvent, error) {
	return s.scores.ListEventsByJob(dbctx.Context{Ctx: ctx}, jobID)
}
