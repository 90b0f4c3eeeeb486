package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func testContext(t *testing.T, datadir, network string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("datadir", datadir, "")
	set.String("network", network, "")
	set.Bool("hybrid-lookback-one", false, "")
	set.Bool("hybrid-lookback-two", false, "")
	app := &cli.App{Name: "modnode"}
	return cli.NewContext(app, set, nil)
}

func TestLoadConfigAndNodeBuildsInMemoryNode(t *testing.T) {
	c := testContext(t, "", "devnet")
	n, manager, err := loadConfigAndNode(c)
	require.NoError(t, err)
	require.NotNil(t, n)
	require.NoError(t, manager.Close())
}

func TestLoadConfigAndNodeRejectsUnknownNetwork(t *testing.T) {
	c := testContext(t, "", "no-such-network")
	_, _, err := loadConfigAndNode(c)
	require.Error(t, err)
}

func TestCmdNodeInspectReturnsBasicLevel(t *testing.T) {
	c := testContext(t, "", "devnet")
	err := cmdNodeInspect(c)
	require.NoError(t, err)
}
