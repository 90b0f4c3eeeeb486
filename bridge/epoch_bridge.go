// Package bridge implements the epoch-close orchestration that ties
// the mining chain to Shoal consensus: deriving and persisting
// SequencerSet/ValidatorSet from a closed mining epoch's canonical
// blocks, and starting or stopping the local consensus instance
// accordingly (spec.md §4.9). Grounded on spec.md §4.9 directly and on
// modal-datastore/src/models/sequencer_set.rs for the persisted-set
// shape; no Rust source performs the start/stop decision itself, which
// is built from spec.md §4.9's three numbered steps.
package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/modality-network/node/async/event"
	"github.com/modality-network/node/config"
	"github.com/modality-network/node/datastore"
	"github.com/modality-network/node/epoch"
	"github.com/modality-network/node/mining"
	"github.com/pkg/errors"
)

const nominationSetPrefix = "/epoch/nomination/mining_epoch/"

func nominationSetKey(miningEpoch uint64) string {
	return fmt.Sprintf("%s%d", nominationSetPrefix, miningEpoch)
}

// ConsensusController starts and stops the local validator consensus
// instance for a mining epoch, given the active set it must run with
// (spec.md §4.9 step 3). The bridge owns the decision of whether to run;
// a concrete node wires its own primary/committee lifecycle behind this
// interface.
type ConsensusController interface {
	Start(miningEpoch uint64, activeSet []string) error
	Stop() error
	IsRunning() bool
}

// EpochBridge closes mining epochs into validator consensus transitions.
type EpochBridge struct {
	store       *datastore.Store
	localPeerID string
	consensus   ConsensusController
	transitions event.Feed
}

func NewEpochBridge(manager *datastore.Manager, localPeerID string, consensus ConsensusController) *EpochBridge {
	return &EpochBridge{
		store:       manager.NodeStateStore(),
		localPeerID: localPeerID,
		consensus:   consensus,
	}
}

// Transitions returns the broadcast feed epoch-close events are sent
// on, keyed by the mining epoch consensus now governs (spec.md §4.9
// "announced ... via a broadcast channel keyed on mining epoch").
func (b *EpochBridge) Transitions() *event.Feed { return &b.transitions }

// CloseEpoch runs spec.md §4.9's three steps for closedEpoch: derive and
// persist the nomination set from canonicalBlocks, then start or stop
// the local consensus instance for mining epoch closedEpoch+1 depending
// on whether the local peer belongs to the governing validator set.
func (b *EpochBridge) CloseEpoch(closedEpoch uint64, canonicalBlocks []*mining.Block, oracle epoch.StakeOracle, createdAt int64) (epoch.NominationSet, error) {
	nonces := make([]uint64, len(canonicalBlocks))
	nominations := make([]string, len(canonicalBlocks))
	for i, blk := range canonicalBlocks {
		nonces[i] = blk.Header.Nonce
		nominations[i] = blk.Data.NominatedPeerID
	}

	seed := epoch.SeedFromNonces(nonces)
	shuffled := epoch.FisherYatesShuffle(seed, len(nominations))
	set := epoch.DeriveNominationSet(closedEpoch, closedEpoch, shuffled, nominations, oracle, createdAt)

	if err := b.persist(set); err != nil {
		return set, err
	}

	nextMiningEpoch := closedEpoch + 1
	if err := b.reconcileConsensus(nextMiningEpoch); err != nil {
		return set, err
	}

	b.transitions.Send(nextMiningEpoch)
	return set, nil
}

// reconcileConsensus starts or stops the local consensus instance for
// nextMiningEpoch per spec.md §4.9 step 3.
func (b *EpochBridge) reconcileConsensus(nextMiningEpoch uint64) error {
	if b.consensus == nil {
		return nil
	}

	features := config.ActiveFeatures()
	hybridEnabled := features.HybridLookbackOne || features.HybridLookbackTwo

	var governingSet *epoch.NominationSet
	if hybridEnabled {
		governingEpoch := epoch.LookbackMiningEpoch(nextMiningEpoch, features.LookbackEpochs())
		loaded, ok, err := b.Load(governingEpoch)
		if err != nil {
			return err
		}
		if ok {
			governingSet = loaded
		}
	}

	shouldRun := governingSet != nil && governingSet.IsActive(b.localPeerID)

	switch {
	case shouldRun && !b.consensus.IsRunning():
		return b.consensus.Start(nextMiningEpoch, governingSet.Active)
	case !shouldRun && b.consensus.IsRunning():
		return b.consensus.Stop()
	default:
		return nil
	}
}

func (b *EpochBridge) persist(set epoch.NominationSet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return errors.Wrap(err, "bridge: marshal nomination set")
	}
	return b.store.Put(nominationSetKey(set.MiningEpoch), payload)
}

// Load returns the persisted nomination set for miningEpoch, or
// (nil, false) if none was ever closed into.
func (b *EpochBridge) Load(miningEpoch uint64) (*epoch.NominationSet, bool, error) {
	raw, ok, err := b.store.Get(nominationSetKey(miningEpoch))
	if err != nil || !ok {
		return nil, ok, err
	}
	var set epoch.NominationSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, false, errors.Wrap(err, "bridge: unmarshal nomination set")
	}
	return &set, true, nil
}
