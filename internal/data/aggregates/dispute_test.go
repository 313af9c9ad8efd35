package aggregates

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/workhub/escrow-backend/internal/data/repos/testutil"
	types "github.com/workhub/escrow-backend/internal/domain"
	domainagg "github.com/workhub/escrow-backend/internal/domain/aggregates"
	disputesdom "github.com/workhub/escrow-backend/internal/domain/disputes"
	jobsdom "github.com/workhub/escrow-backend/internal/domain/jobs"
	ledgerdom "github.com/workhub/escrow-backend/internal/domain/ledger"
)

type disputeHarness struct {
	jobHarness
	disputes domainagg.DisputeAggregate

	employer   uuid.UUID
	freelancer uuid.UUID
	arbiters   []uuid.UUID
	job        *types.Job
}

func newDisputeHarness(t *testing.T) *disputeHarness {
	t.Helper()
	jh := newJobHarness(t)
	h := &disputeHarness{jobHarness: *jh}
	h.disputes = NewDisputeAggregate(DisputeAggregateDeps{
		Base:       BaseDeps{Log: testutil.Logger(t), Runner: h.runner},
		Disputes:   &fakeDisputeRepo{store: h.store},
		Rounds:     &fakeRoundRepo{store: h.store},
		Votes:      &fakeVoteRepo{store: h.store},
		Jobs:       &fakeJobRepo{store: h.store},
		History:    h.history,
		Reputation: &fakeScoreRepo{store: h.store},
		Users:      &fakeUserRepo{store: h.store},
		Intents:    h.intents,
		Incidents:  &fakeIncidentRepo{store: h.store},
		Gateway:    h.gateway,
	})

	h.employer = h.seedUser("employer", "0xEMP")
	h.freelancer = h.seedUser("freelancer", "0xALICE")
	for i := 0; i < 5; i++ {
		h.arbiters = append(h.arbiters, h.seedUser("arbiter", "0xARB"))
	}
	h.job, _ = h.seedInProgress(h.employer, h.freelancer, jobsdom.WorkStatusSubmitted)
	return h
}

func (h *disputeHarness) committee() []uuid.UUID {
	return h.arbiters[:3]
}

// openDispute runs Open plus an optional rebuttal and returns the stored row.
func (h *disputeHarness) openDispute(t *testing.T, rebut bool) *types.Dispute {
	t.Helper()
	now := time.Now().UTC()
	res, err := h.disputes.Open(context.Background(), domainagg.OpenDisputeInput{
		JobID: h.job.ID, OpenerID: h.employer, Evidence: "work does not match terms", At: now,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if rebut {
		_, err = h.disputes.SubmitRebuttal(context.Background(), domainagg.SubmitRebuttalInput{
			DisputeID: res.DisputeID, PartyID: h.freelancer, Evidence: "terms were met", At: now,
		})
		if err != nil {
			t.Fatalf("SubmitRebuttal: %v", err)
		}
	}
	return h.store.disputes[res.DisputeID]
}

func (h *disputeHarness) conveneRound(t *testing.T, disputeID uuid.UUID, roundNo int) uuid.UUID {
	t.Helper()
	res, err := h.disputes.ConveneRound(context.Background(), domainagg.ConveneRoundInput{
		DisputeID: disputeID, RoundNo: roundNo, Committee: h.committee(), At: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("ConveneRound %d: %v", roundNo, err)
	}
	return res.RoundID
}

func (h *disputeHarness) castVote(t *testing.T, disputeID, roundID, arbiterID uuid.UUID, employerWins bool) domainagg.CastVoteResult {
	t.Helper()
	res, err := h.disputes.CastVote(context.Background(), domainagg.CastVoteInput{
		DisputeID: disputeID, RoundID: roundID, ArbiterID: arbiterID,
		EmployerWins: employerWins, TxRef: "vote-" + arbiterID.String()[:8], At: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	return res
}

// winRound drives a quorum of two concordant votes.
func (h *disputeHarness) winRound(t *testing.T, disputeID, roundID uuid.UUID, employerWins bool) domainagg.CastVoteResult {
	t.Helper()
	h.castVote(t, disputeID, roundID, h.arbiters[0], employerWins)
	return h.castVote(t, disputeID, roundID, h.arbiters[1], employerWins)
}

func TestOpenDispute(t *testing.T) {
	h := newDisputeHarness(t)
	now := time.Now().UTC()

	res, err := h.disputes.Open(context.Background(), domainagg.OpenDisputeInput{
		JobID: h.job.ID, OpenerID: h.employer, Evidence: "work does not match terms", At: now,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if res.OpenedBy != disputesdom.PartyEmployer || res.Status != disputesdom.StatusAwaitingEvidence {
		t.Fatalf("res = %+v", res)
	}
	if !res.EvidenceDeadline.Equal(now.Add(3 * time.Minute)) {
		t.Fatalf("evidence deadline = %v, want %v", res.EvidenceDeadline, now.Add(3*time.Minute))
	}

	job := h.store.jobs[h.job.ID]
	if job.Status != jobsdom.JobStatusDisputed {
		t.Fatalf("job status = %q, want disputed", job.Status)
	}
	if job.WorkSubmissionDeadline != nil || job.WorkReviewDeadline != nil {
		t.Fatal("work clocks should stop while disputed")
	}
	d := h.store.disputes[res.DisputeID]
	if d.EmployerEvidence != "work does not match terms" || d.FreelancerEvidence != "" {
		t.Fatalf("dispute evidence = %+v", d)
	}
	if last := h.lastHistory(h.job.ID); last == nil || last.Action != jobsdom.HistoryDisputeOpened {
		t.Fatalf("history = %+v, want dispute_opened", last)
	}
}

func TestOpenDisputeByStranger(t *testing.T) {
	h := newDisputeHarness(t)
	stranger := h.seedUser("freelancer", "0xMAL")

	_, err := h.disputes.Open(context.Background(), domainagg.OpenDisputeInput{
		JobID: h.job.ID, OpenerID: stranger, Evidence: "I disagree",
	})
	wantCode(t, err, domainagg.CodeValidation)
}

func TestOpenDisputeTwice(t *testing.T) {
	h := newDisputeHarness(t)
	h.openDispute(t, false)

	// The first open moved the job off in_progress.
	_, err := h.disputes.Open(context.Background(), domainagg.OpenDisputeInput{
		JobID: h.job.ID, OpenerID: h.freelancer, Evidence: "counter claim",
	})
	wantCode(t, err, domainagg.CodeConflict)
}

func TestSubmitRebuttal(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, false)
	now := time.Now().UTC()

	res, err := h.disputes.SubmitRebuttal(context.Background(), domainagg.SubmitRebuttalInput{
		DisputeID: d.ID, PartyID: h.freelancer, Evidence: "terms were met", At: now,
	})
	if err != nil {
		t.Fatalf("SubmitRebuttal: %v", err)
	}
	if res.NextRound != 1 {
		t.Fatalf("next round = %d, want 1", res.NextRound)
	}
	stored := h.store.disputes[d.ID]
	if stored.FreelancerEvidence != "terms were met" || stored.EvidenceDeadline != nil {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestSubmitRebuttalByOpener(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, false)

	_, err := h.disputes.SubmitRebuttal(context.Background(), domainagg.SubmitRebuttalInput{
		DisputeID: d.ID, PartyID: h.employer, Evidence: "more of the same",
	})
	wantCode(t, err, domainagg.CodeValidation)
}

func TestSubmitRebuttalAfterDeadline(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, false)
	late := d.EvidenceDeadline.Add(time.Second)

	_, err := h.disputes.SubmitRebuttal(context.Background(), domainagg.SubmitRebuttalInput{
		DisputeID: d.ID, PartyID: h.freelancer, Evidence: "terms were met", At: late,
	})
	wantCode(t, err, domainagg.CodeConflict)
}

func TestExpireEvidenceDeadlineDefaultsToOpener(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, false)
	after := d.EvidenceDeadline.Add(time.Second)

	res, err := h.disputes.ExpireEvidenceDeadline(context.Background(), domainagg.ExpireEvidenceInput{
		DisputeID: d.ID, At: after,
	})
	if err != nil {
		t.Fatalf("ExpireEvidenceDeadline: %v", err)
	}
	if !res.Applied || res.Status != disputesdom.StatusEvidenceTimeout || res.FinalWinner != disputesdom.PartyEmployer {
		t.Fatalf("res = %+v, want opener win by default", res)
	}

	// Replay is a noop.
	res, err = h.disputes.ExpireEvidenceDeadline(context.Background(), domainagg.ExpireEvidenceInput{
		DisputeID: d.ID, At: after,
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Applied {
		t.Fatal("replay should be a noop")
	}
}

func TestExpireEvidenceDeadlineNoopAfterRebuttal(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)

	res, err := h.disputes.ExpireEvidenceDeadline(context.Background(), domainagg.ExpireEvidenceInput{
		DisputeID: d.ID, At: time.Now().UTC().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("ExpireEvidenceDeadline: %v", err)
	}
	if res.Applied {
		t.Fatal("rebutted dispute should not time out")
	}
}

func TestConveneRoundOne(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)
	now := time.Now().UTC()

	res, err := h.disputes.ConveneRound(context.Background(), domainagg.ConveneRoundInput{
		DisputeID: d.ID, RoundNo: 1, Committee: h.committee(), At: now,
	})
	if err != nil {
		t.Fatalf("ConveneRound: %v", err)
	}
	if res.Status != disputesdom.StatusVotingRound1 || res.RoundNo != 1 {
		t.Fatalf("res = %+v", res)
	}
	if !res.VoteDeadline.Equal(now.Add(3 * time.Minute)) {
		t.Fatalf("vote deadline = %v", res.VoteDeadline)
	}
	stored := h.store.disputes[d.ID]
	if stored.CurrentRound != 1 || stored.Status != disputesdom.StatusVotingRound1 {
		t.Fatalf("stored = %+v", stored)
	}
	round := h.store.rounds[res.RoundID]
	if round == nil || round.Status != disputesdom.RoundStatusOpen {
		t.Fatalf("round = %+v", round)
	}
}

func TestConveneRoundBeforeRebuttal(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, false)

	_, err := h.disputes.ConveneRound(context.Background(), domainagg.ConveneRoundInput{
		DisputeID: d.ID, RoundNo: 1, Committee: h.committee(),
	})
	wantCode(t, err, domainagg.CodeConflict)
}

func TestConveneRoundCommitteeValidation(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)

	cases := []struct {
		name      string
		committee []uuid.UUID
	}{
		{"too small", h.arbiters[:2]},
		{"party member", []uuid.UUID{h.arbiters[0], h.arbiters[1], h.freelancer}},
		{"duplicate arbiter", []uuid.UUID{h.arbiters[0], h.arbiters[1], h.arbiters[0]}},
		{"nil arbiter", []uuid.UUID{h.arbiters[0], h.arbiters[1], uuid.Nil}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.disputes.ConveneRound(context.Background(), domainagg.ConveneRoundInput{
				DisputeID: d.ID, RoundNo: 1, Committee: tc.committee,
			})
			wantCode(t, err, domainagg.CodeValidation)
		})
	}
}

func TestConveneRoundOutOfSequence(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)

	_, err := h.disputes.ConveneRound(context.Background(), domainagg.ConveneRoundInput{
		DisputeID: d.ID, RoundNo: 2, Committee: h.committee(),
	})
	wantCode(t, err, domainagg.CodeConflict)
}

func TestCastVoteBelowQuorum(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)
	roundID := h.conveneRound(t, d.ID, 1)

	res := h.castVote(t, d.ID, roundID, h.arbiters[0], true)
	if !res.Accepted || res.RoundWinner != "" || res.FinalWinner != "" {
		t.Fatalf("res = %+v, want accepted undecided vote", res)
	}
	if got := h.store.rounds[roundID].Status; got != disputesdom.RoundStatusOpen {
		t.Fatalf("round status = %q, want open", got)
	}
}

func TestCastVoteQuorumDecidesRound(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)
	roundID := h.conveneRound(t, d.ID, 1)

	res := h.winRound(t, d.ID, roundID, true)
	if res.RoundWinner != disputesdom.PartyEmployer || res.FinalWinner != "" || res.NextRound != 2 {
		t.Fatalf("res = %+v, want employer round win and round two", res)
	}
	round := h.store.rounds[roundID]
	if round.Status != disputesdom.RoundStatusDecided || round.Winner == nil || *round.Winner != disputesdom.PartyEmployer {
		t.Fatalf("round = %+v", round)
	}
	stored := h.store.disputes[d.ID]
	if stored.Round1Winner == nil || *stored.Round1Winner != disputesdom.PartyEmployer {
		t.Fatalf("dispute round record = %+v", stored)
	}
	if stored.FinalWinner != nil {
		t.Fatal("one round win must not resolve the dispute")
	}
}

func TestCastVoteDuplicateIgnored(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)
	roundID := h.conveneRound(t, d.ID, 1)

	h.castVote(t, d.ID, roundID, h.arbiters[0], true)
	res := h.castVote(t, d.ID, roundID, h.arbiters[0], false)
	if res.Accepted {
		t.Fatal("second vote by the same arbiter must not count")
	}
	if got := len(h.store.votes); got != 1 {
		t.Fatalf("votes = %d, want 1", got)
	}
}

func TestCastVoteOutsideCommittee(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)
	roundID := h.conveneRound(t, d.ID, 1)

	_, err := h.disputes.CastVote(context.Background(), domainagg.CastVoteInput{
		DisputeID: d.ID, RoundID: roundID, ArbiterID: h.arbiters[4], EmployerWins: true,
	})
	wantCode(t, err, domainagg.CodeValidation)
}

func TestCastVoteAfterDeadline(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)
	roundID := h.conveneRound(t, d.ID, 1)
	late := h.store.rounds[roundID].VoteDeadline.Add(time.Second)

	_, err := h.disputes.CastVote(context.Background(), domainagg.CastVoteInput{
		DisputeID: d.ID, RoundID: roundID, ArbiterID: h.arbiters[0], EmployerWins: true, At: late,
	})
	wantCode(t, err, domainagg.CodeConflict)
}

func TestBestOfThreeResolves(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)

	r1 := h.conveneRound(t, d.ID, 1)
	if res := h.winRound(t, d.ID, r1, true); res.NextRound != 2 {
		t.Fatalf("after round one: %+v", res)
	}
	r2 := h.conveneRound(t, d.ID, 2)
	if res := h.winRound(t, d.ID, r2, false); res.NextRound != 3 {
		t.Fatalf("after round two: %+v", res)
	}
	r3 := h.conveneRound(t, d.ID, 3)
	res := h.winRound(t, d.ID, r3, false)
	if res.FinalWinner != disputesdom.PartyFreelancer || res.NextRound != 0 {
		t.Fatalf("after round three: %+v", res)
	}

	stored := h.store.disputes[d.ID]
	if stored.Status != disputesdom.StatusResolved || stored.FinalWinner == nil || *stored.FinalWinner != disputesdom.PartyFreelancer {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestSecondStraightWinResolvesEarly(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)

	r1 := h.conveneRound(t, d.ID, 1)
	h.winRound(t, d.ID, r1, true)
	r2 := h.conveneRound(t, d.ID, 2)
	res := h.winRound(t, d.ID, r2, true)
	if res.FinalWinner != disputesdom.PartyEmployer {
		t.Fatalf("res = %+v, want early resolution", res)
	}

	// No round three after resolution.
	_, err := h.disputes.ConveneRound(context.Background(), domainagg.ConveneRoundInput{
		DisputeID: d.ID, RoundNo: 3, Committee: h.committee(),
	})
	wantCode(t, err, domainagg.CodeConflict)
}

func TestExpireRoundDeadlineMajorityResolves(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)
	roundID := h.conveneRound(t, d.ID, 1)
	h.castVote(t, d.ID, roundID, h.arbiters[0], true)
	late := h.store.rounds[roundID].VoteDeadline.Add(time.Second)

	res, err := h.disputes.ExpireRoundDeadline(context.Background(), domainagg.ExpireRoundInput{
		DisputeID: d.ID, RoundID: roundID, At: late,
	})
	if err != nil {
		t.Fatalf("ExpireRoundDeadline: %v", err)
	}
	// A lone vote is still a majority once the window closes.
	if !res.Applied || res.RoundWinner != disputesdom.PartyEmployer || res.NextRound != 2 {
		t.Fatalf("res = %+v", res)
	}
	if got := h.store.rounds[roundID].Status; got != disputesdom.RoundStatusDecided {
		t.Fatalf("round status = %q, want decided", got)
	}
}

func TestExpireRoundDeadlineTie(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)
	roundID := h.conveneRound(t, d.ID, 1)
	h.castVote(t, d.ID, roundID, h.arbiters[0], true)
	h.castVote(t, d.ID, roundID, h.arbiters[1], false)
	late := h.store.rounds[roundID].VoteDeadline.Add(time.Second)

	res, err := h.disputes.ExpireRoundDeadline(context.Background(), domainagg.ExpireRoundInput{
		DisputeID: d.ID, RoundID: roundID, At: late,
	})
	if err != nil {
		t.Fatalf("ExpireRoundDeadline: %v", err)
	}
	if !res.Applied || res.RoundWinner != "" || res.NextRound != 2 || res.FinalWinner != "" {
		t.Fatalf("res = %+v, want tie and a fresh round", res)
	}
	if got := h.store.rounds[roundID].Status; got != disputesdom.RoundStatusTied {
		t.Fatalf("round status = %q, want tied", got)
	}
}

func TestExpireRoundThreeTieFallsToOpener(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)

	r1 := h.conveneRound(t, d.ID, 1)
	h.winRound(t, d.ID, r1, true)
	r2 := h.conveneRound(t, d.ID, 2)
	h.winRound(t, d.ID, r2, false)
	r3 := h.conveneRound(t, d.ID, 3)
	late := h.store.rounds[r3].VoteDeadline.Add(time.Second)

	res, err := h.disputes.ExpireRoundDeadline(context.Background(), domainagg.ExpireRoundInput{
		DisputeID: d.ID, RoundID: r3, At: late,
	})
	if err != nil {
		t.Fatalf("ExpireRoundDeadline: %v", err)
	}
	// One round win each and a dead round three: the opener prevails.
	if !res.Applied || res.FinalWinner != disputesdom.PartyEmployer {
		t.Fatalf("res = %+v, want opener as final winner", res)
	}
	if got := h.store.disputes[d.ID].Status; got != disputesdom.StatusResolved {
		t.Fatalf("dispute status = %q, want resolved", got)
	}
}

func TestSettlePaysWinner(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)
	r1 := h.conveneRound(t, d.ID, 1)
	h.winRound(t, d.ID, r1, false)
	r2 := h.conveneRound(t, d.ID, 2)
	h.winRound(t, d.ID, r2, false)

	res, err := h.disputes.Settle(context.Background(), domainagg.SettleDisputeInput{DisputeID: d.ID})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if res.FinalWinner != disputesdom.PartyFreelancer || res.WinnerID != h.freelancer {
		t.Fatalf("res = %+v", res)
	}
	if res.Status != disputesdom.StatusSettled || res.JobStatus != jobsdom.JobStatusCompleted || res.TxRef == "" {
		t.Fatalf("res = %+v", res)
	}

	payouts := h.gateway.CallsFor("payout")
	if len(payouts) != 1 || payouts[0].Recipient != "0xALICE" || payouts[0].EscrowRef != *h.job.EscrowRef {
		t.Fatalf("payout calls = %+v", payouts)
	}
	if s := h.scoreFor(h.freelancer); s.Trust != 5 || s.Untrust != 0 {
		t.Fatalf("winner score = %+v", s)
	}
	if s := h.scoreFor(h.employer); s.Trust != -10 || s.Untrust != 20 {
		t.Fatalf("loser score = %+v", s)
	}
	intents := h.intentsFor(t, h.job.ID)
	if len(intents) != 1 || intents[0].Kind != ledgerdom.IntentPayout || intents[0].Status != ledgerdom.IntentStatusConfirmed {
		t.Fatalf("intents = %+v", intents)
	}
	if last := h.lastHistory(h.job.ID); last == nil || last.Action != jobsdom.HistoryDisputeSettled {
		t.Fatalf("history = %+v, want dispute_settled", last)
	}
}

func TestSettleReplayReturnsSameTxRef(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)
	r1 := h.conveneRound(t, d.ID, 1)
	h.winRound(t, d.ID, r1, true)
	r2 := h.conveneRound(t, d.ID, 2)
	h.winRound(t, d.ID, r2, true)

	first, err := h.disputes.Settle(context.Background(), domainagg.SettleDisputeInput{DisputeID: d.ID})
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}
	second, err := h.disputes.Settle(context.Background(), domainagg.SettleDisputeInput{DisputeID: d.ID})
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if second.TxRef != first.TxRef || second.Status != disputesdom.StatusSettled {
		t.Fatalf("replay = %+v, want %+v", second, first)
	}
	if got := len(h.gateway.CallsFor("payout")); got != 1 {
		t.Fatalf("payout calls = %d, want 1", got)
	}
}

func TestSettleBeforeResolution(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)

	_, err := h.disputes.Settle(context.Background(), domainagg.SettleDisputeInput{DisputeID: d.ID})
	wantCode(t, err, domainagg.CodePreconditionFailed)
}

func TestSettleAfterEvidenceTimeout(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, false)
	after := d.EvidenceDeadline.Add(time.Second)

	if _, err := h.disputes.ExpireEvidenceDeadline(context.Background(), domainagg.ExpireEvidenceInput{
		DisputeID: d.ID, At: after,
	}); err != nil {
		t.Fatalf("ExpireEvidenceDeadline: %v", err)
	}

	res, err := h.disputes.Settle(context.Background(), domainagg.SettleDisputeInput{DisputeID: d.ID})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if res.WinnerID != h.employer || res.JobStatus != jobsdom.JobStatusCompleted {
		t.Fatalf("res = %+v, want payout to the opener", res)
	}
	payouts := h.gateway.CallsFor("payout")
	if len(payouts) != 1 || payouts[0].Recipient != "0xEMP" {
		t.Fatalf("payout calls = %+v", payouts)
	}
}

func TestVoteRecordsKeepArbiterChoice(t *testing.T) {
	h := newDisputeHarness(t)
	d := h.openDispute(t, true)
	roundID := h.conveneRound(t, d.ID, 1)
	h.castVote(t, d.ID, roundID, h.arbiters[0], true)
	h.castVote(t, d.ID, roundID, h.arbiters[1], false)

	var employer, freelancer int
	for _, v := range h.store.votes {
		if v.RoundID != roundID {
			continue
		}
		if v.EmployerWins {
			employer++
		} else {
			freelancer++
		}
	}
	if employer != 1 || freelancer != 1 {
		t.Fatalf("tally = %d/%d, want 1/1", employer, freelancer)
	}
}
