package node

import (
	"context"
	"time"

	"github.com/modality-network/node/config"
	"github.com/modality-network/node/datastore"
	"github.com/modality-network/node/sync"
)

// maintenanceInterval is how often the chain-integrity/promotion/purge
// task runs, grounded on modal-node/src/actions/observer/chain_maintenance.rs's
// PROMOTION_CHECK_INTERVAL_SECS.
const maintenanceInterval = 30 * time.Second

// MaintenanceService repairs chain continuity and promotes/purges
// blocks between the active, final and canonical stores on a timer. It
// is one of the node's small fixed set of long-lived tasks (spec.md
// §5), grounded on
// modal-node/src/actions/observer/chain_maintenance.rs's
// start_promotion_task.
type MaintenanceService struct {
	manager *datastore.Manager
	network *config.NetworkConfig

	cancel  context.CancelFunc
	done    chan struct{}
}

func NewMaintenanceService(manager *datastore.Manager, network *config.NetworkConfig) *MaintenanceService {
	return &MaintenanceService{manager: manager, network: network}
}

func (s *MaintenanceService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

func (s *MaintenanceService) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

func (s *MaintenanceService) Status() error {
	return nil
}

func (s *MaintenanceService) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// RunOnce executes a single maintenance pass outside the timer, for
// callers (tests, manual `node` CLI invocations) that want a
// synchronous pass rather than waiting on maintenanceInterval.
func (s *MaintenanceService) RunOnce() {
	s.tick()
}

func (s *MaintenanceService) tick() {
	active := s.manager.MinerActiveStore()

	if _, err := sync.RepairChainIntegrity(s.manager, active, ^uint64(0)); err != nil {
		log.WithError(err).Warn("chain integrity repair failed")
	}

	if err := s.promoteAndPurge(); err != nil {
		log.WithError(err).Warn("block promotion/purge failed")
	}
}

// promoteAndPurge moves canonical blocks whose epoch has closed from
// the active store into the final store, and deletes final-store
// blocks older than the network's PurgeKeepEpochs retention window
// (spec.md §4.4 "promotion" and §4.5 "purge"; modal-node's
// run_promotion/run_purge).
func (s *MaintenanceService) promoteAndPurge() error {
	repo := datastore.NewChainRepo(s.manager)
	active := s.manager.MinerActiveStore()
	final := s.manager.MinerFinalStore()

	tip, found, err := repo.MaxIndex(active)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	epochLength := s.network.EpochLength
	if epochLength == 0 {
		return nil
	}
	currentEpoch := tip / epochLength
	if currentEpoch == 0 {
		return nil
	}
	closedUpThroughEpoch := currentEpoch - 1

	for epoch := uint64(0); epoch <= closedUpThroughEpoch; epoch++ {
		start := epoch * epochLength
		end := start + epochLength
		for index := start; index < end; index++ {
			blocks, err := repo.FindCanonicalByIndex(active, index)
			if err != nil {
				return err
			}
			for _, block := range blocks {
				if err := repo.MoveBetweenStores(active, final, block); err != nil {
					return err
				}
			}
		}
	}

	if s.network.PurgeKeepEpochs == 0 || currentEpoch < s.network.PurgeKeepEpochs {
		return nil
	}
	purgeBeforeEpoch := currentEpoch - s.network.PurgeKeepEpochs
	for index := uint64(0); index < purgeBeforeEpoch*epochLength; index++ {
		blocks, err := repo.FindAllByIndex(final, index)
		if err != nil {
			return err
		}
		for _, block := range blocks {
			if err := repo.Delete(final, block); err != nil {
				return err
			}
		}
	}
	return nil
}
