package node_test

import (
	"testing"

	"github.com/modality-network/node/node"
	"github.com/stretchr/testify/require"
)

func TestIsAuthorizedNoWhitelist(t *testing.T) {
	const self = "12D3KooWNode"
	require.True(t, node.IsAuthorized(self, self, nil, true))
	require.False(t, node.IsAuthorized("12D3KooWOther", self, nil, true))
	require.True(t, node.IsAuthorized("", self, nil, false))
}

func TestIsAuthorizedEmptyWhitelist(t *testing.T) {
	const self = "12D3KooWNode"
	whitelist := []string{}
	require.False(t, node.IsAuthorized(self, self, whitelist, true))
	require.False(t, node.IsAuthorized("12D3KooWOther", self, whitelist, true))
	require.True(t, node.IsAuthorized("", self, whitelist, false))
}

func TestIsAuthorizedWithWhitelist(t *testing.T) {
	const self = "12D3KooWNode"
	whitelist := []string{"12D3KooWAllowed1", "12D3KooWAllowed2"}
	require.True(t, node.IsAuthorized(self, self, whitelist, true))
	require.True(t, node.IsAuthorized("12D3KooWAllowed1", self, whitelist, true))
	require.False(t, node.IsAuthorized("12D3KooWOther", self, whitelist, true))
	require.True(t, node.IsAuthorized("", self, whitelist, false))
}
