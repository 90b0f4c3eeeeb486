package forkchoice

import (
	"math/big"
	"time"

	"github.com/modality-network/node/config"
	"github.com/modality-network/node/datastore"
	"github.com/modality-network/node/errs"
	"github.com/modality-network/node/mining"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "forkchoice")

// rejectedHashTTL bounds how long AcceptBlock remembers a hash it has
// already rejected as losing fork choice, so a flapping gossip re-send
// of the same loser doesn't re-walk both chains' cumulative difficulty.
const rejectedHashTTL = 10 * time.Minute

// Observer applies spec.md §4.3's fork choice rule across a single
// store (typically MinerActive): canonical head is the block with the
// greatest cumulative difficulty; ties break by earliest SeenAt, then
// lexicographically smallest hash. Grounded on modal-miner/src/
// fork_choice.rs's MinerForkChoice façade, generalized from its
// process_gossiped_block contract to the concrete rule spec.md §4.3
// spells out in full (the original delegates to an unexported
// modal_observer::ChainObserver not present in the retrieved sources).
type Observer struct {
	repo    *datastore.ChainRepo
	store   *datastore.Store
	network *config.NetworkConfig
	seen    *gocache.Cache
}

func NewObserver(manager *datastore.Manager, network *config.NetworkConfig) *Observer {
	return &Observer{
		repo:    datastore.NewChainRepo(manager),
		store:   manager.MinerActiveStore(),
		network: network,
		seen:    gocache.New(rejectedHashTTL, rejectedHashTTL/2),
	}
}

// ChainTip returns the greatest canonical index currently stored, or 0
// for an empty chain (grounded on MinerForkChoice::get_chain_tip).
func (o *Observer) ChainTip() (uint64, error) {
	max, found, err := o.repo.MaxIndex(o.store)
	if err != nil || !found {
		return 0, err
	}
	for index := max; ; index-- {
		_, ok, err := o.CanonicalBlockAt(index)
		if err != nil {
			return 0, err
		}
		if ok || index == 0 {
			return index, nil
		}
	}
}

// CanonicalBlockAt returns the canonical block at index, if any.
func (o *Observer) CanonicalBlockAt(index uint64) (*mining.Block, bool, error) {
	candidates, err := o.repo.FindCanonicalByIndex(o.store, index)
	if err != nil || len(candidates) == 0 {
		return nil, false, err
	}
	return candidates[0], true, nil
}

// AcceptBlock applies spec.md §4.3's four-step rule to a newly seen
// block (mined locally or received via gossip/sync). It returns
// (accepted, error): accepted is false (with nil error) when the block
// is structurally sound but loses fork choice; err carries
// errs.ErrInvalidBlock for forced-fork/POW violations and
// errs.ErrOrphanParent when the parent is unknown, not canonical or
// orphaned.
func (o *Observer) AcceptBlock(block *mining.Block) (bool, error) {
	if _, rejected := o.seen.Get(block.Header.Hash); rejected {
		return false, nil
	}

	if err := block.Verify(); err != nil {
		return false, err
	}
	if violation := o.checkForcedFork(block); violation != nil {
		return false, violation
	}

	if !block.IsGenesis() {
		parent, ok, err := o.findByHash(block.Header.PreviousHash)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, errs.ErrOrphanParent
		}
		if parent != nil && (!parent.Header.IsCanonical || parent.Header.IsOrphaned) {
			return false, errs.ErrOrphanParent
		}
	}

	existing, ok, err := o.CanonicalBlockAt(block.Header.Index)
	if err != nil {
		return false, err
	}
	if !ok {
		block.Header.IsCanonical = true
		if err := o.repo.Save(o.store, block); err != nil {
			return false, err
		}
		return true, nil
	}

	winner, loser, err := o.resolveByCumulativeDifficulty(existing, block)
	if err != nil {
		return false, err
	}
	if winner == existing {
		// The incoming block loses; persist it as an immediately
		// orphaned entry pointing at the winner.
		block.Header.IsCanonical = false
		block.Header.IsOrphaned = true
		block.Header.OrphanReason = "lost fork choice to existing canonical block"
		block.Header.CompetingHash = winner.Header.Hash
		if err := o.repo.Save(o.store, block); err != nil {
			return false, err
		}
		o.seen.SetDefault(block.Header.Hash, struct{}{})
		return false, nil
	}

	// The incoming block wins: save it canonical, then orphan the
	// loser and everything built on it.
	winner.Header.IsCanonical = true
	if err := o.repo.Save(o.store, winner); err != nil {
		return false, err
	}
	if err := o.repo.MarkCanonical(o.store, winner, true); err != nil {
		return false, err
	}
	maxIndex, _, err := o.repo.MaxIndex(o.store)
	if err != nil {
		return false, err
	}
	cascaded, err := OrphanBlockWithCascade(o.repo, o.store, loser, "lost fork choice", winner.Header.Hash, maxIndex)
	if err != nil {
		return false, errors.Wrap(err, "forkchoice: cascade orphan loser")
	}
	log.WithFields(logrus.Fields{
		"index":    winner.Header.Index,
		"winner":   winner.Header.Hash,
		"loser":    loser.Header.Hash,
		"cascaded": cascaded,
	}).Warn("reorganized chain via fork choice")
	return true, nil
}

func (o *Observer) findByHash(hash string) (*mining.Block, bool, error) {
	if hash == "0" {
		return nil, true, nil
	}
	return o.repo.FindByHash(o.store, hash)
}

// checkForcedFork enforces config.NetworkConfig's forced_blocks map and
// minimum_block_timestamp (spec.md §4.3 item 4).
func (o *Observer) checkForcedFork(block *mining.Block) error {
	if o.network == nil {
		return nil
	}
	if required, ok := o.network.ForcedBlocks[block.Header.Index]; ok && required != block.Header.Hash {
		return errors.Wrapf(errs.ErrInvalidBlock, "block at index %d violates forced fork (expected %s)", block.Header.Index, required)
	}
	if o.network.MinimumBlockTimestamp > 0 && block.Header.Timestamp < o.network.MinimumBlockTimestamp {
		return errors.Wrapf(errs.ErrInvalidBlock, "block at index %d predates minimum_block_timestamp", block.Header.Index)
	}
	return nil
}

// resolveByCumulativeDifficulty sums each candidate chain's target
// difficulty back to genesis (see cumulativeDifficulty), returning
// (winner, loser) per spec.md §4.3's tie-break
// order: cumulative difficulty, then earliest SeenAt, then
// lexicographically smallest hash.
func (o *Observer) resolveByCumulativeDifficulty(a, b *mining.Block) (winner, loser *mining.Block, err error) {
	diffA, err := o.cumulativeDifficulty(a)
	if err != nil {
		return nil, nil, err
	}
	diffB, err := o.cumulativeDifficulty(b)
	if err != nil {
		return nil, nil, err
	}

	switch diffA.Cmp(diffB) {
	case 1:
		return a, b, nil
	case -1:
		return b, a, nil
	}

	if a.Header.SeenAt != b.Header.SeenAt {
		if a.Header.SeenAt < b.Header.SeenAt {
			return a, b, nil
		}
		return b, a, nil
	}

	if a.Header.Hash < b.Header.Hash {
		return a, b, nil
	}
	return b, a, nil
}

// cumulativeDifficulty sums TargetDifficulty along block's ancestry
// back to genesis. The chains being compared share a common ancestor
// by construction (both occupy the same index against the same store),
// so summing from genesis is equivalent to summing from the common
// ancestor forward for tie-breaking purposes.
func (o *Observer) cumulativeDifficulty(block *mining.Block) (*big.Int, error) {
	total := new(big.Int)
	current := block
	for {
		total.Add(total, current.Header.TargetDifficulty)
		if current.IsGenesis() {
			break
		}
		parent, ok, err := o.findByHash(current.Header.PreviousHash)
		if err != nil {
			return nil, err
		}
		if !ok || parent == nil {
			break
		}
		current = parent
	}
	return total, nil
}
