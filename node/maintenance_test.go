package node_test

import (
	"math/big"
	"testing"

	"github.com/modality-network/node/config"
	"github.com/modality-network/node/datastore"
	"github.com/modality-network/node/mining"
	"github.com/modality-network/node/mining/hashfn"
	"github.com/modality-network/node/node"
	"github.com/stretchr/testify/require"
)

func chainOfCanonical(t *testing.T, n int) []*mining.Block {
	t.Helper()
	genesis, err := mining.DefaultGenesis(big.NewInt(1), hashfn.SHA256)
	require.NoError(t, err)
	genesis.Header.IsCanonical = true

	blocks := []*mining.Block{genesis}
	for i := 1; i < n; i++ {
		parent := blocks[i-1]
		data := mining.BlockData{NominatedPeerID: "peer", MinerNumber: uint64(i)}
		block := mining.NewBlock(uint64(i), uint64(i)/10, parent.Header.Hash, data, big.NewInt(1), int64(i), hashfn.SHA256)
		hash, err := block.Header.CalculateHash(0)
		require.NoError(t, err)
		block.Header.Hash = hash
		block.Header.IsCanonical = true
		blocks = append(blocks, block)
	}
	return blocks
}

func TestMaintenanceServicePromotesClosedEpochs(t *testing.T) {
	manager, err := datastore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	devnet, ok := config.Get("devnet")
	require.True(t, ok)
	network := &config.NetworkConfig{
		Name:            "maintenance-test",
		EpochLength:     10,
		PurgeKeepEpochs: devnet.PurgeKeepEpochs,
	}

	repo := datastore.NewChainRepo(manager)
	active := manager.MinerActiveStore()
	for _, block := range chainOfCanonical(t, 15) {
		require.NoError(t, repo.Save(active, block))
	}

	service := node.NewMaintenanceService(manager, network)
	service.RunOnce()

	final := manager.MinerFinalStore()
	movedBlocks, err := repo.FindCanonicalByIndex(final, 5)
	require.NoError(t, err)
	require.Len(t, movedBlocks, 1)

	stillActive, err := repo.FindCanonicalByIndex(active, 12)
	require.NoError(t, err)
	require.Len(t, stillActive, 1)
}
