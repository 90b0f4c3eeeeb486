package datastore

import (
	"encoding/json"
	"fmt"

	"github.com/modality-network/node/mining"
	"github.com/pkg/errors"
)

// ChainRepo wraps Manager with the mining-chain key shapes spec.md §3
// names: `/miner_blocks/hash/<hex>` for the block body and
// `/miner_blocks/index/<u64>/hash/<hex>` for the canonical-height index
// (grounded on miner_block_height.rs). Active, Final and Canon are
// otherwise identical key shapes against different stores, reflecting
// the lifecycle a block moves through (spec.md §4.1 "Lifecycle").
type ChainRepo struct {
	manager *Manager
}

func NewChainRepo(manager *Manager) *ChainRepo {
	return &ChainRepo{manager: manager}
}

func blockHashKey(hash string) string {
	return fmt.Sprintf("/miner_blocks/hash/%s", hash)
}

func blockIndexKey(index uint64, hash string) string {
	return fmt.Sprintf("/miner_blocks/index/%d/hash/%s", index, hash)
}

func blockIndexPrefix(index uint64) string {
	return fmt.Sprintf("/miner_blocks/index/%d/hash", index)
}

// heightEntry is the on-disk form of miner_block_height.rs's
// MinerBlockHeight: an index-to-hash pointer recording canonicity.
type heightEntry struct {
	Index       uint64 `json:"index"`
	BlockHash   string `json:"block_hash"`
	IsCanonical bool   `json:"is_canonical"`
}

// Save writes block to store (by hash) and records its height index
// entry. Saving an already-stored block by hash is a no-op (spec.md §8
// "Saving an already-stored block by hash is a no-op").
func (r *ChainRepo) Save(store *Store, block *mining.Block) error {
	hashKey := blockHashKey(block.Header.Hash)
	if _, ok, err := store.Get(hashKey); err != nil {
		return err
	} else if ok {
		return nil
	}

	payload, err := json.Marshal(block)
	if err != nil {
		return errors.Wrap(err, "datastore: marshal block")
	}
	if err := store.Put(hashKey, payload); err != nil {
		return err
	}

	entry := heightEntry{Index: block.Header.Index, BlockHash: block.Header.Hash, IsCanonical: block.Header.IsCanonical}
	entryPayload, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "datastore: marshal height entry")
	}
	return store.Put(blockIndexKey(block.Header.Index, block.Header.Hash), entryPayload)
}

// FindByHash returns the block at hash, or (nil, false) if absent.
func (r *ChainRepo) FindByHash(store *Store, hash string) (*mining.Block, bool, error) {
	raw, ok, err := store.Get(blockHashKey(hash))
	if err != nil || !ok {
		return nil, ok, err
	}
	var block mining.Block
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, false, errors.Wrap(err, "datastore: unmarshal block")
	}
	return &block, true, nil
}

// FindAllByIndex returns every height entry at index, canonical and
// non-canonical (mirrors MinerBlockHeight::find_all_by_index).
func (r *ChainRepo) FindAllByIndex(store *Store, index uint64) ([]*mining.Block, error) {
	kvs, err := store.Iterate(blockIndexPrefix(index))
	if err != nil {
		return nil, err
	}
	blocks := make([]*mining.Block, 0, len(kvs))
	for _, kv := range kvs {
		var entry heightEntry
		if err := json.Unmarshal(kv.Value, &entry); err != nil {
			return nil, errors.Wrap(err, "datastore: unmarshal height entry")
		}
		block, ok, err := r.FindByHash(store, entry.BlockHash)
		if err != nil {
			return nil, err
		}
		if ok {
			blocks = append(blocks, block)
		}
	}
	return blocks, nil
}

// FindCanonicalByIndex returns every height entry at index marked
// canonical. Under normal operation this has length 1; length > 1
// indicates a fork-choice integrity violation the forkchoice package
// must heal (mirrors MinerBlockHeight::find_canonical_by_index).
func (r *ChainRepo) FindCanonicalByIndex(store *Store, index uint64) ([]*mining.Block, error) {
	all, err := r.FindAllByIndex(store, index)
	if err != nil {
		return nil, err
	}
	out := make([]*mining.Block, 0, len(all))
	for _, b := range all {
		if b.Header.IsCanonical {
			out = append(out, b)
		}
	}
	return out, nil
}

// MarkCanonical flips IsCanonical on the stored block and its height
// index entry, persisting the update.
func (r *ChainRepo) MarkCanonical(store *Store, block *mining.Block, canonical bool) error {
	block.Header.IsCanonical = canonical
	payload, err := json.Marshal(block)
	if err != nil {
		return errors.Wrap(err, "datastore: marshal block")
	}
	if err := store.Put(blockHashKey(block.Header.Hash), payload); err != nil {
		return err
	}
	entry := heightEntry{Index: block.Header.Index, BlockHash: block.Header.Hash, IsCanonical: canonical}
	entryPayload, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "datastore: marshal height entry")
	}
	return store.Put(blockIndexKey(block.Header.Index, block.Header.Hash), entryPayload)
}

// MoveBetweenStores copies block from src to dst and deletes it from
// src, implementing the active→final and final→canon promotions
// spec.md §4.1's Lifecycle describes.
func (r *ChainRepo) MoveBetweenStores(src, dst *Store, block *mining.Block) error {
	if err := r.Save(dst, block); err != nil {
		return err
	}
	if err := src.Delete(blockHashKey(block.Header.Hash)); err != nil {
		return err
	}
	if err := src.Delete(blockIndexKey(block.Header.Index, block.Header.Hash)); err != nil {
		return err
	}
	return nil
}

// Delete removes block from store entirely (both its body and height
// index entry), used by the purge task to drop blocks older than the
// network's retention window (spec.md §4.5).
func (r *ChainRepo) Delete(store *Store, block *mining.Block) error {
	if err := store.Delete(blockHashKey(block.Header.Hash)); err != nil {
		return err
	}
	return store.Delete(blockIndexKey(block.Header.Index, block.Header.Hash))
}

// MaxIndex scans store for the greatest index with at least one
// entry, or (0, false) if the store is empty.
func (r *ChainRepo) MaxIndex(store *Store) (uint64, bool, error) {
	kvs, err := store.Iterate("/miner_blocks/index/")
	if err != nil {
		return 0, false, err
	}
	var max uint64
	found := false
	for _, kv := range kvs {
		var entry heightEntry
		if err := json.Unmarshal(kv.Value, &entry); err != nil {
			return 0, false, errors.Wrap(err, "datastore: unmarshal height entry")
		}
		if !found || entry.Index > max {
			max = entry.Index
			found = true
		}
	}
	return max, found, nil
}
