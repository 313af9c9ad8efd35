package jobs

import "testing"

func digestFixture() ([]ContractTerm, *Job) {
	terms := []ContractTerm{
		{Pos: 1, Title: "scope", Content: "one widget"},
		{Pos: 2, Title: "delivery", Content: "as a zip"},
	}
	job := &Job{Budget: 100, PlatformFeeBps: 1000, Currency: "APT"}
	return terms, job
}

func TestHashContractIsStable(t *testing.T) {
	terms, job := digestFixture()

	a := HashContract(terms, job, 600, 300)
	b := HashContract(terms, job, 600, 300)
	if a == "" || a != b {
		t.Fatalf("hash unstable: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d, want sha256 hex", len(a))
	}
}

func TestHashContractTermOrderMatters(t *testing.T) {
	terms, job := digestFixture()
	base := HashContract(terms, job, 600, 300)

	swapped := []ContractTerm{terms[1], terms[0]}
	if got := HashContract(swapped, job, 600, 300); got == base {
		t.Fatal("reordered terms should change the hash")
	}
}

func TestHashContractCoversMoneyAndTiming(t *testing.T) {
	terms, job := digestFixture()
	base := HashContract(terms, job, 600, 300)

	bumped := *job
	bumped.Budget = 101
	if HashContract(terms, &bumped, 600, 300) == base {
		t.Fatal("budget change should change the hash")
	}
	if HashContract(terms, job, 601, 300) == base {
		t.Fatal("submission window change should change the hash")
	}
	if HashContract(terms, job, 600, 301) == base {
		t.Fatal("review window change should change the hash")
	}
}

func TestHashContractIgnoresTermMetadata(t *testing.T) {
	terms, job := digestFixture()
	base := HashContract(terms, job, 600, 300)

	// Position and row ids are storage detail; only title and content sign.
	renumbered := []ContractTerm{
		{Pos: 7, Title: "scope", Content: "one widget"},
		{Pos: 9, Title: "delivery", Content: "as a zip"},
	}
	if got := HashContract(renumbered, job, 600, 300); got != base {
		t.Fatalf("renumbered terms changed the hash: %q vs %q", got, base)
	}
}

func TestEscrowCharge(t *testing.T) {
	cases := []struct {
		budget float64
		feeBps int
		want   float64
	}{
		{100, 0, 100},
		{100, 1000, 110},
		{250, 500, 262.5},
	}
	for _, tc := range cases {
		j := &Job{Budget: tc.budget, PlatformFeeBps: tc.feeBps}
		if got := j.EscrowCharge(); got < tc.want-1e-9 || got > tc.want+1e-9 {
			t.Fatalf("EscrowCharge(%v, %d) = %v, want %v", tc.budget, tc.feeBps, got, tc.want)
		}
	}
}

func TestHasEscrow(t *testing.T) {
	j := &Job{}
	if j.HasEscrow() {
		t.Fatal("empty job should have no escrow")
	}
	empty := ""
	j.EscrowRef = &empty
	if j.HasEscrow() {
		t.Fatal("blank ref should not count as escrow")
	}
	ref := "esc-1"
	j.EscrowRef = &ref
	if !j.HasEscrow() {
		t.Fatal("ref set, HasEscrow should be true")
	}
}
