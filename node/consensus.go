// Package node binds every other package (mining, forkchoice, bridge,
// sync, p2p, shoal, narwhal) into the single running process spec.md
// §4.12 describes: a small fixed set of long-lived tasks cooperating
// over channels rather than a monolithic loop. Grounded on the
// teacher's beacon-chain/node package shape (construction via
// cli.Context, a runtime.ServiceRegistry, Start/Close) and on
// modal-node/src/actions/* for the tasks themselves.
package node

import (
	"context"
	"sync"
	"time"

	"github.com/modality-network/node/bridge/persistence"
	"github.com/modality-network/node/narwhal"
	"github.com/modality-network/node/shoal"
	"github.com/sirupsen/logrus"
)

// consensusRoundInterval paces how often the consensus service advances
// a round and attempts a commit while running, mirroring spec.md §5's
// "consensus round timeout: 2s per phase" resource budget.
const consensusRoundInterval = 2 * time.Second

// ConsensusService runs the DAG primary's round loop and the Shoal
// commit/checkpoint machinery while active, and stands completely idle
// otherwise. It implements bridge.ConsensusController, so EpochBridge
// starts and stops it as the active validator set dictates (spec.md
// §4.9). Grounded on modal-sequencer-consensus/src/narwhal/primary.rs's
// round-advance loop and shoal/checkpoint.go's retention contract.
type ConsensusService struct {
	primary      *narwhal.Primary
	reputer      *shoal.ReputationManager
	commitEngine *shoal.CommitEngine
	checkpointer *shoal.Checkpointer
	persist      *persistence.Bridge

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

func NewConsensusService(primary *narwhal.Primary, reputer *shoal.ReputationManager, commitEngine *shoal.CommitEngine, checkpointer *shoal.Checkpointer, persist *persistence.Bridge) *ConsensusService {
	return &ConsensusService{primary: primary, reputer: reputer, commitEngine: commitEngine, checkpointer: checkpointer, persist: persist}
}

// Start begins the round-advance loop for miningEpoch with activeSet as
// the validator committee members expected to participate. It is a
// no-op if already running (EpochBridge.reconcileConsensus may call
// Start repeatedly across epochs with the same governing set).
func (s *ConsensusService) Start(miningEpoch uint64, activeSet []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	go s.run(ctx, miningEpoch)
	return nil
}

// Stop halts the round-advance loop. Idempotent.
func (s *ConsensusService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.cancel()
	s.running = false
	return nil
}

func (s *ConsensusService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *ConsensusService) run(ctx context.Context, miningEpoch uint64) {
	ticker := time.NewTicker(consensusRoundInterval)
	defer ticker.Stop()

	log.WithField("mining_epoch", miningEpoch).Info("consensus service started")
	for {
		select {
		case <-ctx.Done():
			log.Info("consensus service stopped")
			return
		case <-ticker.C:
			round := s.primary.GetCurrentRound()
			committed := s.commitEngine.TryCommit(round)
			for _, cert := range committed {
				if s.persist != nil {
					if err := s.persist.SaveCertificate(cert, time.Now().Unix()); err != nil {
						log.WithError(err).Warn("persisting committed certificate failed")
					}
				}
				s.reputer.UpdateScores()
			}
			if err := s.checkpointer.Save(round, s.primary.DAG, s.reputer); err != nil {
				log.WithError(err).Warn("checkpoint save failed")
			}
			s.primary.AdvanceRound()
		}
	}
}

var log = logrus.WithField("prefix", "node")
