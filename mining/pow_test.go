package mining_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/modality-network/node/errs"
	"github.com/modality-network/node/mining"
	"github.com/modality-network/node/mining/hashfn"
	"github.com/stretchr/testify/require"
)

func TestMineFindsSatisfyingNonce(t *testing.T) {
	data := mining.BlockData{NominatedPeerID: "peer1", MinerNumber: 1}
	block := mining.NewBlock(1, 0, "0", data, big.NewInt(1), 1000, hashfn.SHA256)

	miner := &mining.Miner{MaxNonces: 200000}
	err := miner.Mine(context.Background(), block)
	require.NoError(t, err)
	require.True(t, block.VerifyPOW())
}

func TestMineCancellation(t *testing.T) {
	data := mining.BlockData{NominatedPeerID: "peer1", MinerNumber: 1}
	// An unreasonably high difficulty ensures the search runs long
	// enough for cancellation to land before a nonce is found.
	hugeDifficulty := new(big.Int).Lsh(big.NewInt(1), 250)
	block := mining.NewBlock(1, 0, "0", data, hugeDifficulty, 1000, hashfn.SHA256)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	miner := &mining.Miner{MaxNonces: mining.DefaultMaxNonces}
	err := miner.Mine(ctx, block)
	require.True(t, errs.Is(err, errs.ErrCancelled))
}
