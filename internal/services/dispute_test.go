package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	disputesrepo "github.com/workhub/escrow-backend/internal/data/repos/disputes"
	"github.com/workhub/escrow-backend/internal/data/repos/testutil"
	userrepo "github.com/workhub/escrow-backend/internal/data/repos/user"
	types "github.com/workhub/escrow-backend/internal/domain"
	domainagg "github.com/workhub/escrow-backend/internal/domain/aggregates"
	disputesdom "github.com/workhub/escrow-backend/internal/domain/disputes"
	userdom "github.com/workhub/escrow-backend/internal/domain/user"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
)

type stubDisputeLookup struct {
	disputesrepo.DisputeRepo
	byID map[uuid.UUID]*types.Dispute
}

func (s *stubDisputeLookup) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Dispute, error) {
	return s.byID[id], nil
}

type stubArbiterPool struct {
	userrepo.UserRepo
	arbiters []*types.User
}

func (s *stubArbiterPool) ListActiveByRole(_ dbctx.Context, role string) ([]*types.User, error) {
	if role != userdom.RoleArbiter {
		return nil, nil
	}
	return s.arbiters, nil
}

type stubDisputeAggregate struct {
	domainagg.DisputeAggregate
	convened []domainagg.ConveneRoundInput
}

func (s *stubDisputeAggregate) ConveneRound(_ context.Context, in domainagg.ConveneRoundInput) (domainagg.ConveneRoundResult, error) {
	s.convened = append(s.convened, in)
	return domainagg.ConveneRoundResult{DisputeID: in.DisputeID, RoundID: uuid.New(), RoundNo: in.RoundNo}, nil
}

type retryHarness struct {
	disputes *stubDisputeLookup
	agg      *stubDisputeAggregate
	svc      DisputeService
}

func newRetryHarness(t *testing.T, arbiterCount int) *retryHarness {
	t.Helper()
	pool := make([]*types.User, arbiterCount)
	for i := range pool {
		pool[i] = &types.User{ID: uuid.New(), Role: userdom.RoleArbiter, Active: true}
	}
	h := &retryHarness{
		disputes: &stubDisputeLookup{byID: map[uuid.UUID]*types.Dispute{}},
		agg:      &stubDisputeAggregate{},
	}
	h.svc = NewDisputeService(testutil.Logger(t), h.disputes, nil, nil,
		&stubArbiterPool{arbiters: pool}, h.agg, nil, "beacon-test")
	return h
}

func (h *retryHarness) seed(d *types.Dispute) *types.Dispute {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.EmployerID == uuid.Nil {
		d.EmployerID = uuid.New()
	}
	if d.FreelancerID == uuid.Nil {
		d.FreelancerID = uuid.New()
	}
	d.JobID = uuid.New()
	h.disputes.byID[d.ID] = d
	return d
}

func TestRetryConveneOpensFirstRoundAfterRebuttal(t *testing.T) {
	h := newRetryHarness(t, 5)
	d := h.seed(&types.Dispute{
		Status:       disputesdom.StatusAwaitingEvidence,
		CurrentRound: 0,
	})

	if err := h.svc.RetryConvene(context.Background(), d.ID); err != nil {
		t.Fatalf("RetryConvene: %v", err)
	}
	if len(h.agg.convened) != 1 {
		t.Fatalf("convene calls = %d, want 1", len(h.agg.convened))
	}
	in := h.agg.convened[0]
	if in.DisputeID != d.ID || in.RoundNo != 1 {
		t.Fatalf("convened dispute %s round %d, want %s round 1", in.DisputeID, in.RoundNo, d.ID)
	}
	if len(in.Committee) != disputesdom.CommitteeSize {
		t.Fatalf("committee size = %d, want %d", len(in.Committee), disputesdom.CommitteeSize)
	}
	for _, m := range in.Committee {
		if m == d.EmployerID || m == d.FreelancerID {
			t.Fatalf("party %s drawn into committee", m)
		}
	}
}

func TestRetryConveneOpensSuccessorRound(t *testing.T) {
	h := newRetryHarness(t, 5)
	d := h.seed(&types.Dispute{
		Status:       disputesdom.StatusVotingRound1,
		CurrentRound: 1,
	})

	if err := h.svc.RetryConvene(context.Background(), d.ID); err != nil {
		t.Fatalf("RetryConvene: %v", err)
	}
	if len(h.agg.convened) != 1 || h.agg.convened[0].RoundNo != 2 {
		t.Fatalf("convened = %+v, want one round-2 convening", h.agg.convened)
	}
}

func TestRetryConveneSkipsResolvedDispute(t *testing.T) {
	h := newRetryHarness(t, 5)
	winner := disputesdom.PartyEmployer
	d := h.seed(&types.Dispute{
		Status:       disputesdom.StatusResolved,
		CurrentRound: 2,
		FinalWinner:  &winner,
	})

	if err := h.svc.RetryConvene(context.Background(), d.ID); err != nil {
		t.Fatalf("RetryConvene: %v", err)
	}
	if len(h.agg.convened) != 0 {
		t.Fatalf("resolved dispute convened: %+v", h.agg.convened)
	}
}

func TestRetryConveneStopsAtRoundCapacity(t *testing.T) {
	h := newRetryHarness(t, 5)
	d := h.seed(&types.Dispute{
		Status:       disputesdom.StatusVotingRound3,
		CurrentRound: disputesdom.MaxRounds,
	})

	if err := h.svc.RetryConvene(context.Background(), d.ID); err != nil {
		t.Fatalf("RetryConvene: %v", err)
	}
	if len(h.agg.convened) != 0 {
		t.Fatalf("round capacity exceeded: %+v", h.agg.convened)
	}
}

func TestRetryConveneIgnoresMissingDispute(t *testing.T) {
	h := newRetryHarness(t, 5)
	if err := h.svc.RetryConvene(context.Background(), uuid.New()); err != nil {
		t.Fatalf("RetryConvene on missing dispute: %v", err)
	}
	if len(h.agg.convened) != 0 {
		t.Fatalf("missing dispute convened: %+v", h.agg.convened)
	}
}
