// Package forkchoice implements cumulative-difficulty fork choice,
// cascade orphaning, forced-fork overrides and the continuity-repair
// pass over a mining chain (spec.md §4.3, §6 "Chain integrity
// repair"). Grounded on modal-node/src/chain/reorg.rs.
package forkchoice

import (
	"fmt"

	"github.com/modality-network/node/datastore"
	"github.com/modality-network/node/mining"
	"github.com/pkg/errors"
)

// OrphanResult reports the outcome of an orphaning pass (mirrors
// reorg.rs's OrphanResult).
type OrphanResult struct {
	OrphanedCount  int
	OrphanedHashes []string
	StartIndex     uint64
}

// orphanBlock marks block orphaned with reason/competingHash and
// persists it to store.
func orphanBlock(repo *datastore.ChainRepo, store *datastore.Store, block *mining.Block, reason, competingHash string) error {
	block.Header.IsOrphaned = true
	block.Header.IsCanonical = false
	block.Header.OrphanReason = reason
	block.Header.CompetingHash = competingHash
	return repo.MarkCanonical(store, block, false)
}

// OrphanBlocksAfter orphans every canonical block with index >
// afterIndex (spec.md §4.3 "the loser ... marked orphan", grounded on
// reorg.rs's orphan_blocks_after).
func OrphanBlocksAfter(repo *datastore.ChainRepo, store *datastore.Store, afterIndex uint64, reason string, maxIndex uint64) (*OrphanResult, error) {
	result := &OrphanResult{StartIndex: afterIndex + 1}
	for i := afterIndex + 1; i <= maxIndex; i++ {
		candidates, err := repo.FindCanonicalByIndex(store, i)
		if err != nil {
			return nil, err
		}
		for _, block := range candidates {
			if block.Header.IsOrphaned {
				continue
			}
			if err := orphanBlock(repo, store, block, reason, ""); err != nil {
				return nil, errors.Wrapf(err, "forkchoice: orphan block at index %d", i)
			}
			result.OrphanedCount++
			result.OrphanedHashes = append(result.OrphanedHashes, block.Header.Hash)
		}
	}
	return result, nil
}

// CascadeOrphan orphans every canonical block, at any index above
// orphanedIndex, whose previous_hash transitively traces to
// orphanedHash. This is the only mechanism by which orphan status
// propagates (spec.md §4.3 "Cascade orphaning"; grounded on
// reorg.rs's cascade_orphan).
func CascadeOrphan(repo *datastore.ChainRepo, store *datastore.Store, orphanedHash string, orphanedIndex uint64, reasonPrefix string, maxIndex uint64) (int, error) {
	orphanedHashes := map[string]bool{orphanedHash: true}
	count := 0

	for i := orphanedIndex + 1; i <= maxIndex; i++ {
		candidates, err := repo.FindCanonicalByIndex(store, i)
		if err != nil {
			return 0, err
		}
		for _, block := range candidates {
			if block.Header.IsOrphaned {
				continue
			}
			if !orphanedHashes[block.Header.PreviousHash] {
				continue
			}
			reason := fmt.Sprintf("%s: built on orphaned block %s at index %d", reasonPrefix, shortHash(orphanedHash), orphanedIndex)
			if err := orphanBlock(repo, store, block, reason, ""); err != nil {
				return 0, errors.Wrapf(err, "forkchoice: cascade orphan at index %d", i)
			}
			orphanedHashes[block.Header.Hash] = true
			count++
		}
	}
	return count, nil
}

// OrphanBlockWithCascade orphans block itself, then cascades to every
// block built on it, returning the total number of blocks orphaned
// (grounded on reorg.rs's orphan_block_with_cascade).
func OrphanBlockWithCascade(repo *datastore.ChainRepo, store *datastore.Store, block *mining.Block, reason, competingHash string, maxIndex uint64) (int, error) {
	if err := orphanBlock(repo, store, block, reason, competingHash); err != nil {
		return 0, err
	}
	cascaded, err := CascadeOrphan(repo, store, block.Header.Hash, block.Header.Index, "Cascade from fork choice", maxIndex)
	if err != nil {
		return 0, err
	}
	return 1 + cascaded, nil
}

// FindCommonAncestorByHash returns the index of the highest block in
// localBlocks whose hash is also present in remoteHashes (grounded on
// reorg.rs's find_common_ancestor_by_hash).
func FindCommonAncestorByHash(localBlocks []*mining.Block, remoteHashes map[string]bool) (uint64, bool) {
	best := uint64(0)
	found := false
	for _, block := range localBlocks {
		if remoteHashes[block.Header.Hash] && (!found || block.Header.Index > best) {
			best = block.Header.Index
			found = true
		}
	}
	return best, found
}

// ValidateBlockChain checks that blocks (assumed sorted by ascending
// index) form an unbroken, hash-linked sequence (grounded on
// reorg.rs's validate_block_chain).
func ValidateBlockChain(blocks []*mining.Block) error {
	for i := 1; i < len(blocks); i++ {
		if blocks[i].Header.Index != blocks[i-1].Header.Index+1 {
			return errors.Errorf("blocks not consecutive: gap between %d and %d", blocks[i-1].Header.Index, blocks[i].Header.Index)
		}
		if blocks[i].Header.PreviousHash != blocks[i-1].Header.Hash {
			return errors.Errorf("invalid chain: block %d previous_hash doesn't match block %d hash", blocks[i].Header.Index, blocks[i-1].Header.Index)
		}
	}
	return nil
}

// RepairContinuity scans canonical blocks from 0 upward; on the first
// hash-link break, every later canonical block is orphaned with reason
// "continuity repair" (spec.md §6 "Chain integrity repair").
func RepairContinuity(repo *datastore.ChainRepo, store *datastore.Store, maxIndex uint64) (*OrphanResult, error) {
	var prev *mining.Block
	for i := uint64(0); i <= maxIndex; i++ {
		candidates, err := repo.FindCanonicalByIndex(store, i)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			continue
		}
		current := candidates[0]
		if prev != nil && current.Header.PreviousHash != prev.Header.Hash {
			return OrphanBlocksAfter(repo, store, i-1, "continuity repair", maxIndex)
		}
		prev = current
	}
	return &OrphanResult{StartIndex: maxIndex + 1}, nil
}

func shortHash(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}
