package services

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/google/uuid"

	disputesdom "github.com/workhub/escrow-backend/internal/domain/disputes"
)

// PickCommittee draws a committee of three distinct arbiters from the
// eligibility pool, excluding the dispute's parties. The draw is a
// deterministic function of (jobID, roundNo, beacon): every node that
// sees the same inputs selects the same committee, and a replacement
// round (a different roundNo) reshuffles the whole pool.
func PickCommittee(pool []uuid.UUID, exclude map[uuid.UUID]struct{}, jobID uuid.UUID, roundNo int, beacon string) ([]uuid.UUID, error) {
	type scored struct {
		id    uuid.UUID
		score [32]byte
	}

	eligible := make([]scored, 0, len(pool))
	seen := make(map[uuid.UUID]struct{}, len(pool))
	for _, id := range pool {
		if id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, skip := exclude[id]; skip {
			continue
		}
		eligible = append(eligible, scored{id: id, score: committeeScore(jobID, roundNo, beacon, id)})
	}
	if len(eligible) < disputesdom.CommitteeSize {
		return nil, fmt.Errorf("arbiter pool has %d eligible members, need %d", len(eligible), disputesdom.CommitteeSize)
	}

	sort.Slice(eligible, func(i, j int) bool {
		c := bytesCompare(eligible[i].score, eligible[j].score)
		if c != 0 {
			return c < 0
		}
		return eligible[i].id.String() < eligible[j].id.String()
	})

	out := make([]uuid.UUID, disputesdom.CommitteeSize)
	for i := range out {
		out[i] = eligible[i].id
	}
	return out, nil
}

func committeeScore(jobID uuid.UUID, roundNo int, beacon string, candidate uuid.UUID) [32]byte {
	h := sha256.New()
	h.Write(jobID[:])
	var rn [8]byte
	binary.BigEndian.PutUint64(rn[:], uint64(roundNo))
	h.Write(rn[:])
	h.Write([]byte(beacon))
	h.Write(candidate[:])
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func bytesCompare(a, b [32]byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
