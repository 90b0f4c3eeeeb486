package epoch_test

import (
	"testing"

	"github.com/modality-network/node/epoch"
	"github.com/stretchr/testify/require"
)

type stakeMap map[string]uint64

func (m stakeMap) Stake(peerID string) uint64 {
	return m[peerID]
}

func TestDeriveNominationSetCapsAndDedup(t *testing.T) {
	nominations := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		nominations = append(nominations, peerName(i))
	}
	// Duplicate the first ten peers later in the list to exercise dedup.
	nominations = append(nominations, nominations[:10]...)

	shuffled := epoch.FisherYatesShuffle(7, len(nominations))
	stakes := stakeMap{}
	for i := 0; i < 20; i++ {
		stakes[peerName(i)] = uint64(100 - i)
	}

	set := epoch.DeriveNominationSet(5, 3, shuffled, nominations, stakes, 1000)

	require.LessOrEqual(t, len(set.Nominated), 27)
	require.LessOrEqual(t, len(set.Staked), 13)
	require.LessOrEqual(t, len(set.Alternates), 13)
	require.LessOrEqual(t, len(set.Active), 40)
	require.Equal(t, uint64(5), set.Epoch)
	require.Equal(t, uint64(3), set.MiningEpoch)

	seen := map[string]bool{}
	for _, p := range set.Nominated {
		require.False(t, seen[p], "nominated must be deduplicated")
		seen[p] = true
	}
}

func TestDeriveNominationSetActiveIsUnionOfNominatedAndStaked(t *testing.T) {
	nominations := []string{"a", "b", "c", "d", "e"}
	shuffled := []int{0, 1, 2, 3, 4}
	stakes := stakeMap{"c": 10, "d": 5}

	set := epoch.DeriveNominationSet(1, 0, shuffled, nominations, stakes, 0)

	for _, p := range set.Nominated {
		require.True(t, set.IsActive(p))
	}
	for _, p := range set.Staked {
		require.True(t, set.IsActive(p))
	}
}

func TestDeriveNominationSetAlternatesExcludeActive(t *testing.T) {
	nominations := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		nominations = append(nominations, peerName(i))
	}
	shuffled := epoch.FisherYatesShuffle(3, len(nominations))
	set := epoch.DeriveNominationSet(1, 0, shuffled, nominations, stakeMap{}, 0)

	for _, p := range set.Alternates {
		require.False(t, set.IsActive(p))
		require.True(t, set.IsAlternate(p))
	}
}

func TestLookbackMiningEpoch(t *testing.T) {
	require.Equal(t, uint64(0), epoch.LookbackMiningEpoch(0, 1))
	require.Equal(t, uint64(0), epoch.LookbackMiningEpoch(1, 1))
	require.Equal(t, uint64(1), epoch.LookbackMiningEpoch(2, 1))
	require.Equal(t, uint64(0), epoch.LookbackMiningEpoch(2, 2))
	require.Equal(t, uint64(3), epoch.LookbackMiningEpoch(5, 2))
}

func peerName(i int) string {
	return string(rune('a'+i%26)) + string(rune('0'+i/26))
}
