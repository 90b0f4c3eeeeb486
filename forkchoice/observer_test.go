package forkchoice_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/modality-network/node/config"
	"github.com/modality-network/node/datastore"
	"github.com/modality-network/node/forkchoice"
	"github.com/modality-network/node/mining"
	"github.com/modality-network/node/mining/hashfn"
	"github.com/modality-network/node/errs"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context { return context.Background() }

func TestObserverAcceptsGenesisThenChild(t *testing.T) {
	m, err := datastore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	observer := forkchoice.NewObserver(m, nil)

	genesis, err := mining.DefaultGenesis(big.NewInt(1), hashfn.SHA256)
	require.NoError(t, err)
	accepted, err := observer.AcceptBlock(genesis)
	require.NoError(t, err)
	require.True(t, accepted)

	tip, err := observer.ChainTip()
	require.NoError(t, err)
	require.Equal(t, uint64(0), tip)

	child := mineLinked(t, 1, genesis.Header.Hash)
	child.Header.IsCanonical = false
	accepted, err = observer.AcceptBlock(child)
	require.NoError(t, err)
	require.True(t, accepted)

	tip, err = observer.ChainTip()
	require.NoError(t, err)
	require.Equal(t, uint64(1), tip)
}

func TestObserverRejectsOrphanParent(t *testing.T) {
	m, err := datastore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	observer := forkchoice.NewObserver(m, nil)
	orphan := mineLinked(t, 5, "unknown_parent_hash")
	_, err = observer.AcceptBlock(orphan)
	require.True(t, errs.Is(err, errs.ErrOrphanParent))
}

func TestObserverForcedForkRejectsMismatch(t *testing.T) {
	m, err := datastore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	network := &config.NetworkConfig{ForcedBlocks: map[uint64]string{0: "required_hash"}}
	observer := forkchoice.NewObserver(m, network)

	genesis, err := mining.DefaultGenesis(big.NewInt(1), hashfn.SHA256)
	require.NoError(t, err)
	_, err = observer.AcceptBlock(genesis)
	require.True(t, errs.Is(err, errs.ErrInvalidBlock))
}

func TestObserverHigherDifficultyWinsReorg(t *testing.T) {
	m, err := datastore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	observer := forkchoice.NewObserver(m, nil)
	genesis, err := mining.DefaultGenesis(big.NewInt(1), hashfn.SHA256)
	require.NoError(t, err)
	_, err = observer.AcceptBlock(genesis)
	require.NoError(t, err)

	low := mining.NewBlock(1, 0, genesis.Header.Hash, mining.BlockData{NominatedPeerID: "a", MinerNumber: 1}, big.NewInt(1), 1001, hashfn.SHA256)
	require.NoError(t, (&mining.Miner{MaxNonces: 300000}).Mine(testContext(), low))
	_, err = observer.AcceptBlock(low)
	require.NoError(t, err)

	high := mining.NewBlock(1, 0, genesis.Header.Hash, mining.BlockData{NominatedPeerID: "b", MinerNumber: 2}, big.NewInt(2), 1002, hashfn.SHA256)
	require.NoError(t, (&mining.Miner{MaxNonces: 300000}).Mine(testContext(), high))

	accepted, err := observer.AcceptBlock(high)
	require.NoError(t, err)
	require.True(t, accepted)

	tipBlock, ok, err := observer.CanonicalBlockAt(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, high.Header.Hash, tipBlock.Header.Hash)

	lowStored, ok, err := m.MinerActiveStore().Get("/miner_blocks/hash/" + low.Header.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	_ = lowStored
}
