package node_test

import (
	"context"
	"testing"
	"time"

	"github.com/modality-network/node/config"
	"github.com/modality-network/node/datastore"
	"github.com/modality-network/node/node"
	"github.com/modality-network/node/p2p"
	"github.com/stretchr/testify/require"
)

func freshConfig(t *testing.T) (*config.Config, *config.NetworkConfig, *datastore.Manager) {
	t.Helper()
	network, ok := config.Get("devnet")
	require.True(t, ok)

	manager, err := datastore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	cfg := &config.Config{
		DataDir: "",
		Network: network.Name,
		Features: config.Features{
			PersistBackendMemory: true,
		},
	}
	return cfg, network, manager
}

func TestNewConstructsNodeWithoutTransport(t *testing.T) {
	cfg, network, manager := freshConfig(t)

	n, err := node.New(cfg, network, manager, "peer-local", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, n)
}

func TestNodeDispatchInspectBasic(t *testing.T) {
	cfg, network, manager := freshConfig(t)

	n, err := node.New(cfg, network, manager, "peer-local", nil, nil)
	require.NoError(t, err)

	resp := n.Dispatch(context.Background(), "", p2p.Request{Path: p2p.PathInspect})
	require.True(t, resp.OK)
}

func TestNodeDispatchUnknownPath(t *testing.T) {
	cfg, network, manager := freshConfig(t)

	n, err := node.New(cfg, network, manager, "peer-local", nil, nil)
	require.NoError(t, err)

	resp := n.Dispatch(context.Background(), "", p2p.Request{Path: "/nope"})
	require.False(t, resp.OK)
}

func TestNodeStartAndCloseIsClean(t *testing.T) {
	cfg, network, manager := freshConfig(t)

	n, err := node.New(cfg, network, manager, "peer-local", nil, nil)
	require.NoError(t, err)

	n.Start()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, n.Close())
}
