package datastore_test

import (
	"testing"

	"github.com/modality-network/node/datastore"
	"github.com/stretchr/testify/require"
)

func openTestManager(t *testing.T) *datastore.Manager {
	t.Helper()
	m, err := datastore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestPutGetDelete(t *testing.T) {
	m := openTestManager(t)
	store := m.MinerActiveStore()

	_, ok, err := store.Get("/miner_blocks/hash/abc")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Put("/miner_blocks/hash/abc", []byte("data")))
	value, ok, err := store.Get("/miner_blocks/hash/abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("data"), value)

	require.NoError(t, store.Delete("/miner_blocks/hash/abc"))
	_, ok, err = store.Get("/miner_blocks/hash/abc")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteAbsentKeyIsNoOp(t *testing.T) {
	m := openTestManager(t)
	require.NoError(t, m.MinerActiveStore().Delete("/does/not/exist"))
}

func TestIteratePrefixOrder(t *testing.T) {
	m := openTestManager(t)
	store := m.MinerActiveStore()

	keys := []string{
		"/miner_blocks/index/1/hash/c",
		"/miner_blocks/index/1/hash/a",
		"/miner_blocks/index/1/hash/b",
		"/miner_blocks/index/2/hash/z",
	}
	for _, k := range keys {
		require.NoError(t, store.Put(k, []byte("v")))
	}

	results, err := store.Iterate("/miner_blocks/index/1/hash")
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "/miner_blocks/index/1/hash/a", results[0].Key)
	require.Equal(t, "/miner_blocks/index/1/hash/b", results[1].Key)
	require.Equal(t, "/miner_blocks/index/1/hash/c", results[2].Key)
}

func TestStoresAreIsolated(t *testing.T) {
	m := openTestManager(t)
	require.NoError(t, m.MinerActiveStore().Put("/k", []byte("miner")))

	_, ok, err := m.ValidatorActiveStore().Get("/k")
	require.NoError(t, err)
	require.False(t, ok, "stores must not share keys")
}

func TestCurrentRoundLifecycle(t *testing.T) {
	m := openTestManager(t)

	round, err := m.CurrentRound()
	require.NoError(t, err)
	require.Equal(t, uint64(0), round)

	next, err := m.BumpCurrentRound()
	require.NoError(t, err)
	require.Equal(t, uint64(1), next)

	require.NoError(t, m.SetCurrentRound(42))
	round, err = m.CurrentRound()
	require.NoError(t, err)
	require.Equal(t, uint64(42), round)
}

func TestCurrentEpochLifecycle(t *testing.T) {
	m := openTestManager(t)
	require.NoError(t, m.SetCurrentEpoch(7))
	epoch, err := m.CurrentEpoch()
	require.NoError(t, err)
	require.Equal(t, uint64(7), epoch)
}
