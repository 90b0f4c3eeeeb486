package config

import "github.com/urfave/cli/v2"

// Flags is the CLI flag surface for cmd/modnode, mirroring the teacher's
// cmd/beacon-chain flag package: urfave/cli/v2 flags read into a
// Config struct rather than consulted ad hoc.
var Flags = []cli.Flag{
	&cli.StringFlag{
		Name:  "datadir",
		Usage: "node directory holding config.json, node.pid, logs/ and storage/",
		Value: "./modnode-data",
	},
	&cli.StringFlag{
		Name:  "network",
		Usage: "active network name: mainnet, testnet, devnet",
		Value: "mainnet",
	},
	&cli.BoolFlag{
		Name:  "hybrid-lookback-one",
		Usage: "derive the active validator set from mining epoch N-1 (default)",
	},
	&cli.BoolFlag{
		Name:  "hybrid-lookback-two",
		Usage: "derive the active validator set from mining epoch N-2",
	},
	&cli.StringSliceFlag{
		Name:  "inspect-whitelist",
		Usage: "peer ids authorized to call /inspect in addition to local and self",
	},
}

// Config is populated from a cli.Context by FromCLIContext.
type Config struct {
	DataDir           string
	Network           string
	Features          Features
	InspectWhitelist  []string
}

// FromCLIContext builds a Config from parsed CLI flags, the way the
// teacher's beacon-chain node construction reads cli.Context values
// (beacon-chain/node/node_test.go's *cli.Context-driven setup).
func FromCLIContext(c *cli.Context) (*Config, error) {
	cfg := &Config{
		DataDir: c.String("datadir"),
		Network: c.String("network"),
		Features: Features{
			HybridLookbackOne: c.Bool("hybrid-lookback-one"),
			HybridLookbackTwo: c.Bool("hybrid-lookback-two"),
		},
		InspectWhitelist: c.StringSlice("inspect-whitelist"),
	}
	if err := cfg.Features.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
