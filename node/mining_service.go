package node

import (
	"context"
	"math/big"
	"time"

	"github.com/modality-network/node/async/event"
	"github.com/modality-network/node/config"
	"github.com/modality-network/node/forkchoice"
	"github.com/modality-network/node/mining"
	"github.com/modality-network/node/mining/hashfn"
)

// miningRetryPause is how long the mining loop waits after a failed
// attempt before retargeting against the latest canonical tip,
// grounded on modal-node/src/actions/miner/mining_loop.rs's
// MINING_RETRY_PAUSE_MS.
const miningRetryPause = 200 * time.Millisecond

// MiningService continuously mines the next block on top of the
// current canonical tip and submits it to the shared Observer, one of
// the node's small fixed set of long-lived tasks (spec.md §5 "mining
// loop"). Grounded on modal-node/src/actions/miner/mining_loop.rs's
// start_mining_loop: check shutdown, pull the latest tip, mine, submit,
// retry on failure against a refreshed tip.
type MiningService struct {
	observer   *forkchoice.Observer
	network    *config.NetworkConfig
	miner      mining.Miner
	peerID     string
	minerNum   uint64
	variant    hashfn.Variant
	tipUpdates event.Feed

	cancel context.CancelFunc
	done   chan struct{}
}

func NewMiningService(observer *forkchoice.Observer, network *config.NetworkConfig, peerID string, minerNum uint64, variant hashfn.Variant) *MiningService {
	return &MiningService{observer: observer, network: network, peerID: peerID, minerNum: minerNum, variant: variant}
}

// SetMaxNonces overrides the underlying Miner's search bound, letting
// tests keep proof-of-work search bounded the way mining/block_test.go
// does for the Miner type directly.
func (s *MiningService) SetMaxNonces(max uint64) {
	s.miner.MaxNonces = max
}

// TipUpdates broadcasts the index of every block this service mines
// and successfully submits, feeding the node event loop's
// mining-update channel (spec.md §4.12).
func (s *MiningService) TipUpdates() *event.Feed { return &s.tipUpdates }

func (s *MiningService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

func (s *MiningService) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

func (s *MiningService) Status() error {
	return nil
}

func (s *MiningService) run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		index, err := s.nextIndex()
		if err != nil {
			if s.sleepOrShutdown(ctx) {
				return
			}
			continue
		}

		if err := s.mineOnce(ctx, index); err != nil {
			if ctx.Err() != nil {
				return
			}
			if s.sleepOrShutdown(ctx) {
				return
			}
		}
	}
}

// sleepOrShutdown waits out miningRetryPause, returning true early if
// ctx is cancelled first, so shutdown is observed within one retry
// interval rather than blocking on a plain time.Sleep.
func (s *MiningService) sleepOrShutdown(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(miningRetryPause):
		return false
	}
}

func (s *MiningService) nextIndex() (uint64, error) {
	tip, err := s.observer.ChainTip()
	if err != nil {
		return 0, err
	}
	return tip + 1, nil
}

func (s *MiningService) mineOnce(ctx context.Context, index uint64) error {
	parent, ok, err := s.observer.CanonicalBlockAt(index - 1)
	if err != nil {
		return err
	}
	if !ok {
		return forkchoiceParentMissing
	}

	data := mining.BlockData{NominatedPeerID: s.peerID, MinerNumber: s.minerNum}
	block := mining.NewBlock(index, parent.Header.Epoch, parent.Header.Hash, data, s.targetDifficulty(), time.Now().Unix(), s.variant)

	if err := s.miner.Mine(ctx, block); err != nil {
		return err
	}

	accepted, err := s.observer.AcceptBlock(block)
	if err != nil {
		return err
	}
	if accepted {
		s.tipUpdates.Send(index)
	}
	return nil
}

func (s *MiningService) targetDifficulty() *big.Int {
	if s.network.InitialDifficulty == 0 {
		return big.NewInt(1)
	}
	return new(big.Int).SetUint64(s.network.InitialDifficulty)
}

var forkchoiceParentMissing = forkchoiceErr("mining: parent block not found")

type forkchoiceErr string

func (e forkchoiceErr) Error() string { return string(e) }
