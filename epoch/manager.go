package epoch

// StakeOracle is the read-only external collaborator supplying stake
// per peer id (spec.md §4.4 "staked ... from an external stake
// oracle").
type StakeOracle interface {
	Stake(peerID string) uint64
}

// NominationSet is the output of applying the epoch's shuffle to its
// block sequence: nominated (top 27 deduplicated), staked (up to 13 by
// descending stake) and alternates (next 13 distinct), plus the derived
// active set (spec.md §3 SequencerSet/ValidatorSet, §4.4).
type NominationSet struct {
	Epoch        uint64   `json:"epoch"`
	MiningEpoch  uint64   `json:"mining_epoch"`
	Nominated    []string `json:"nominated"`
	Staked       []string `json:"staked"`
	Alternates   []string `json:"alternates"`
	Active       []string `json:"active"`
	CreatedAt    int64    `json:"created_at"`
}

const (
	nominatedCap  = 27
	stakedCap     = 13
	alternatesCap = 13
	activeCap     = 40
)

// DeriveNominationSet applies shuffle order to nominations (peer ids in
// block order for the closed epoch) and an external stake oracle to
// build nominated/staked/alternates/active (spec.md §4.4).
//
// active_set = nominated[:27] ∪ (staked \ nominated), capped at 40. Per
// the Open Question resolution in SPEC_FULL.md §C.2, heavy overlap
// between nominated and staked can leave the active set below 40 — this
// is accepted as correct, not a bug.
func DeriveNominationSet(epochNumber, miningEpoch uint64, shuffled []int, nominations []string, oracle StakeOracle, createdAt int64) NominationSet {
	shuffledPeers := make([]string, 0, len(shuffled))
	for _, idx := range shuffled {
		if idx >= 0 && idx < len(nominations) {
			shuffledPeers = append(shuffledPeers, nominations[idx])
		}
	}

	nominated := dedupTake(shuffledPeers, nominatedCap)
	nominatedSet := toSet(nominated)

	staked := topStaked(shuffledPeers, oracle, nominatedSet, stakedCap)
	stakedSet := toSet(staked)

	alternates := make([]string, 0, alternatesCap)
	seen := map[string]bool{}
	for k := range nominatedSet {
		seen[k] = true
	}
	for k := range stakedSet {
		seen[k] = true
	}
	for _, peer := range shuffledPeers {
		if len(alternates) >= alternatesCap {
			break
		}
		if seen[peer] {
			continue
		}
		seen[peer] = true
		alternates = append(alternates, peer)
	}

	active := make([]string, 0, activeCap)
	activeSeen := map[string]bool{}
	for _, peer := range nominated {
		if len(active) >= activeCap {
			break
		}
		if activeSeen[peer] {
			continue
		}
		activeSeen[peer] = true
		active = append(active, peer)
	}
	for _, peer := range staked {
		if len(active) >= activeCap {
			break
		}
		if activeSeen[peer] {
			continue
		}
		activeSeen[peer] = true
		active = append(active, peer)
	}

	return NominationSet{
		Epoch:       epochNumber,
		MiningEpoch: miningEpoch,
		Nominated:   nominated,
		Staked:      staked,
		Alternates:  alternates,
		Active:      active,
		CreatedAt:   createdAt,
	}
}

func dedupTake(peers []string, cap int) []string {
	out := make([]string, 0, cap)
	seen := map[string]bool{}
	for _, p := range peers {
		if len(out) >= cap {
			break
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func toSet(peers []string) map[string]bool {
	s := make(map[string]bool, len(peers))
	for _, p := range peers {
		s[p] = true
	}
	return s
}

// topStaked selects up to cap distinct peers from candidates by
// descending stake, skipping any already in exclude.
func topStaked(candidates []string, oracle StakeOracle, exclude map[string]bool, cap int) []string {
	type scored struct {
		peer  string
		stake uint64
	}
	seen := map[string]bool{}
	scoredPeers := make([]scored, 0, len(candidates))
	for _, p := range candidates {
		if exclude[p] || seen[p] {
			continue
		}
		seen[p] = true
		var stake uint64
		if oracle != nil {
			stake = oracle.Stake(p)
		}
		scoredPeers = append(scoredPeers, scored{peer: p, stake: stake})
	}
	// Stable selection sort by descending stake, preserving shuffle
	// order among equal stakes (deterministic across nodes).
	for i := 0; i < len(scoredPeers) && i < cap; i++ {
		best := i
		for j := i + 1; j < len(scoredPeers); j++ {
			if scoredPeers[j].stake > scoredPeers[best].stake {
				best = j
			}
		}
		picked := scoredPeers[best]
		copy(scoredPeers[i+1:best+1], scoredPeers[i:best])
		scoredPeers[i] = picked
	}
	if len(scoredPeers) > cap {
		scoredPeers = scoredPeers[:cap]
	}
	out := make([]string, len(scoredPeers))
	for i, s := range scoredPeers {
		out[i] = s.peer
	}
	return out
}

// IsActive reports whether peerID is in the nomination set's active
// set.
func (n NominationSet) IsActive(peerID string) bool {
	for _, p := range n.Active {
		if p == peerID {
			return true
		}
	}
	return false
}

// IsAlternate reports whether peerID is in the nomination set's
// alternates.
func (n NominationSet) IsAlternate(peerID string) bool {
	for _, p := range n.Alternates {
		if p == peerID {
			return true
		}
	}
	return false
}

// LookbackMiningEpoch returns which mining epoch's NominationSet governs
// consensus for validatorEpoch, given lookback (1 or 2, spec.md §4.4 /
// config.Features.LookbackEpochs).
func LookbackMiningEpoch(validatorEpoch, lookback uint64) uint64 {
	if validatorEpoch < lookback {
		return 0
	}
	return validatorEpoch - lookback
}
