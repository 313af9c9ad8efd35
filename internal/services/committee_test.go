package services

import (
	"testing"

	"github.com/google/uuid"
)

func arbiterPool(n int) []uuid.UUID {
	pool := make([]uuid.UUID, n)
	for i := range pool {
		pool[i] = uuid.New()
	}
	return pool
}

func TestPickCommitteeIsDeterministic(t *testing.T) {
	pool := arbiterPool(10)
	jobID := uuid.New()

	first, err := PickCommittee(pool, nil, jobID, 1, "beacon-42")
	if err != nil {
		t.Fatalf("PickCommittee: %v", err)
	}
	second, err := PickCommittee(pool, nil, jobID, 1, "beacon-42")
	if err != nil {
		t.Fatalf("PickCommittee: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("committee size = %d, want 3", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("draws differ at %d: %s vs %s", i, first[i], second[i])
		}
	}

	// Pool order must not matter.
	reversed := make([]uuid.UUID, len(pool))
	for i, id := range pool {
		reversed[len(pool)-1-i] = id
	}
	third, err := PickCommittee(reversed, nil, jobID, 1, "beacon-42")
	if err != nil {
		t.Fatalf("PickCommittee: %v", err)
	}
	for i := range first {
		if first[i] != third[i] {
			t.Fatalf("reordered pool changed the draw at %d", i)
		}
	}
}

func TestPickCommitteeReshufflesPerRound(t *testing.T) {
	pool := arbiterPool(30)
	jobID := uuid.New()

	r1, err := PickCommittee(pool, nil, jobID, 1, "beacon")
	if err != nil {
		t.Fatalf("round 1: %v", err)
	}
	r2, err := PickCommittee(pool, nil, jobID, 2, "beacon")
	if err != nil {
		t.Fatalf("round 2: %v", err)
	}
	same := true
	for i := range r1 {
		if r1[i] != r2[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("round number did not reshuffle the draw")
	}
}

func TestPickCommitteeExcludesParties(t *testing.T) {
	pool := arbiterPool(6)
	employer := pool[0]
	freelancer := pool[1]
	exclude := map[uuid.UUID]struct{}{employer: {}, freelancer: {}}

	committee, err := PickCommittee(pool, exclude, uuid.New(), 1, "beacon")
	if err != nil {
		t.Fatalf("PickCommittee: %v", err)
	}
	for _, id := range committee {
		if id == employer || id == freelancer {
			t.Fatalf("party %s drawn onto the committee", id)
		}
	}
}

func TestPickCommitteeMembersAreDistinct(t *testing.T) {
	pool := arbiterPool(4)
	// Duplicates and nils in the pool must not survive the draw.
	pool = append(pool, pool[0], pool[1], uuid.Nil)

	committee, err := PickCommittee(pool, nil, uuid.New(), 1, "beacon")
	if err != nil {
		t.Fatalf("PickCommittee: %v", err)
	}
	seen := map[uuid.UUID]struct{}{}
	for _, id := range committee {
		if id == uuid.Nil {
			t.Fatal("nil id drawn")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate member %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestPickCommitteePoolTooSmall(t *testing.T) {
	pool := arbiterPool(4)
	exclude := map[uuid.UUID]struct{}{pool[0]: {}, pool[1]: {}}

	if _, err := PickCommittee(pool, exclude, uuid.New(), 1, "beacon"); err == nil {
		t.Fatal("expected error for a pool below committee size")
	}
}
