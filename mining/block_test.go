package mining_test

import (
	"math/big"
	"testing"

	"github.com/modality-network/node/mining"
	"github.com/modality-network/node/mining/hashfn"
	"github.com/stretchr/testify/require"
)

func TestDefaultGenesisDeterministic(t *testing.T) {
	g1, err := mining.DefaultGenesis(big.NewInt(1), hashfn.SHA256)
	require.NoError(t, err)
	g2, err := mining.DefaultGenesis(big.NewInt(1), hashfn.SHA256)
	require.NoError(t, err)

	require.Equal(t, g1.Header.Hash, g2.Header.Hash)
	require.Equal(t, g1.Header.DataHash, g2.Header.DataHash)
	require.Equal(t, int64(0), g1.Header.Timestamp)
	require.Equal(t, "0", g1.Header.PreviousHash)
	require.Equal(t, "", g1.Data.NominatedPeerID)
	require.Equal(t, uint64(0), g1.Data.MinerNumber)
	require.True(t, g1.IsGenesis())
}

func TestVerifyDataHash(t *testing.T) {
	data := mining.BlockData{NominatedPeerID: "peer_id_abc", MinerNumber: 42}
	block := mining.NewBlock(1, 0, "prev", data, big.NewInt(1), 1000, hashfn.SHA256)
	require.True(t, block.VerifyDataHash())
}

func TestCalculateHashDeterministic(t *testing.T) {
	data := mining.BlockData{NominatedPeerID: "peer_id_test", MinerNumber: 100}
	block := mining.NewBlock(1, 0, "prev", data, big.NewInt(1), 1000, hashfn.SHA256)

	hash1, err := block.Header.CalculateHash(0)
	require.NoError(t, err)
	hash2, err := block.Header.CalculateHash(0)
	require.NoError(t, err)
	hash3, err := block.Header.CalculateHash(1)
	require.NoError(t, err)

	require.Equal(t, hash1, hash2)
	require.NotEqual(t, hash1, hash3)
}

func TestVerifyRejectsBadGenesisParent(t *testing.T) {
	data := mining.BlockData{NominatedPeerID: "", MinerNumber: 0}
	block := mining.NewBlock(0, 0, "not-zero", data, big.NewInt(1), 0, hashfn.SHA256)
	block.Header.Hash, _ = block.Header.CalculateHash(0)
	require.Error(t, block.Verify())
}

func TestTargetDecreasesWithDifficulty(t *testing.T) {
	low := mining.Target(big.NewInt(1))
	high := mining.Target(big.NewInt(1000))
	require.Equal(t, 1, low.Cmp(high))
}
