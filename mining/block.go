// Package mining implements the MinerBlock data model, the
// proof-of-work hash contract and target-difficulty arithmetic (spec.md
// §3, §4.2). The block model follows modal-miner (not modal-mining) per
// the Open Question resolution in SPEC_FULL.md §C.2: deterministic
// genesis timestamp convention and the RandomX hasher.
package mining

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"

	"github.com/modality-network/node/errs"
	"github.com/modality-network/node/mining/hashfn"
	"github.com/pkg/errors"
)

// GenesisPeerID is the nominated_peer_id used by default_genesis
// (spec.md §4.2).
const GenesisPeerID = ""

// GenesisTimestamp is the fixed Unix-epoch timestamp every node's
// default genesis block carries, so all nodes produce identical
// genesis hashes under the same initial difficulty (spec.md §4.2).
const GenesisTimestamp int64 = 0

// BlockData is the nominated peer id and arbitrary miner number chosen
// by whoever mines the block (spec.md §3).
type BlockData struct {
	NominatedPeerID string `json:"nominated_peer_id"`
	MinerNumber     uint64 `json:"miner_number"`
}

// HashString is the exact byte sequence hashed to produce DataHash:
// `nominated_peer_id ‖ miner_number` (modal-miner/src/block.rs
// to_hash_string).
func (d BlockData) HashString() string {
	return d.NominatedPeerID + strconv.FormatUint(d.MinerNumber, 10)
}

// DataHash computes H(nominated_peer_id ‖ miner_number) with plain
// SHA-256, matching modal-miner's calculate_data_hash (spec.md §3:
// `data_hash = H(nominated_peer_id ‖ miner_number)`).
func (d BlockData) DataHash() string {
	sum := sha256.Sum256([]byte(d.HashString()))
	return hex.EncodeToString(sum[:])
}

// BlockHeader carries everything the proof-of-work hash commits to,
// plus the resulting hash and the chosen hash variant (spec.md §3).
type BlockHeader struct {
	Index            uint64         `json:"index"`
	Epoch            uint64         `json:"epoch"`
	Timestamp        int64          `json:"timestamp"`
	PreviousHash     string         `json:"previous_hash"`
	DataHash         string         `json:"data_hash"`
	Nonce            uint64         `json:"nonce"`
	TargetDifficulty *big.Int       `json:"target_difficulty"`
	Hash             string         `json:"hash"`
	HashVariant      hashfn.Variant `json:"hash_variant"`

	IsCanonical   bool   `json:"is_canonical"`
	IsOrphaned    bool   `json:"is_orphaned"`
	OrphanReason  string `json:"orphan_reason,omitempty"`
	CompetingHash string `json:"competing_hash,omitempty"`
	SeenAt        int64  `json:"seen_at"`
}

// MiningPreimage builds `ascii(index) ‖ ascii(timestamp) ‖ previous_hash
// ‖ data_hash ‖ ascii(target_difficulty)` (spec.md §4.2).
func (h *BlockHeader) MiningPreimage() []byte {
	return []byte(
		strconv.FormatUint(h.Index, 10) +
			strconv.FormatInt(h.Timestamp, 10) +
			h.PreviousHash +
			h.DataHash +
			h.TargetDifficulty.String(),
	)
}

// CalculateHash computes HashFunc(mining_preimage ‖ ascii(nonce)) for
// the given nonce under the header's chosen variant (spec.md §4.2).
func (h *BlockHeader) CalculateHash(nonce uint64) (string, error) {
	variant := h.HashVariant
	if variant == "" {
		variant = hashfn.SHA256
	}
	return hashfn.Hash(variant, h.MiningPreimage(), nonce)
}

// Block pairs a header with its data (spec.md §3).
type Block struct {
	Header *BlockHeader `json:"header"`
	Data   BlockData    `json:"data"`
}

// NewBlock constructs an unmined block at index with the given parent
// hash, data and target difficulty. The caller mines it via
// mining/pow.go before treating Header.Hash as valid.
func NewBlock(index, epoch uint64, previousHash string, data BlockData, targetDifficulty *big.Int, timestamp int64, variant hashfn.Variant) *Block {
	header := &BlockHeader{
		Index:            index,
		Epoch:            epoch,
		Timestamp:        timestamp,
		PreviousHash:     previousHash,
		DataHash:         data.DataHash(),
		Nonce:            0,
		TargetDifficulty: targetDifficulty,
		HashVariant:      variant,
	}
	return &Block{Header: header, Data: data}
}

// DefaultGenesis builds the shared genesis block every node produces
// identically: timestamp=0, previous_hash="0", empty nominated_peer_id,
// miner_number=0, nonce=0 (spec.md §4.2).
func DefaultGenesis(targetDifficulty *big.Int, variant hashfn.Variant) (*Block, error) {
	data := BlockData{NominatedPeerID: GenesisPeerID, MinerNumber: 0}
	header := &BlockHeader{
		Index:            0,
		Epoch:            0,
		Timestamp:        GenesisTimestamp,
		PreviousHash:     "0",
		DataHash:         data.DataHash(),
		Nonce:            0,
		TargetDifficulty: targetDifficulty,
		HashVariant:      variant,
		IsCanonical:      true,
	}
	hash, err := header.CalculateHash(0)
	if err != nil {
		return nil, errors.Wrap(err, "mining: genesis hash")
	}
	header.Hash = hash
	return &Block{Header: header, Data: data}, nil
}

// IsGenesis reports whether b is index 0 with the pinned genesis parent
// hash (spec.md §4.2).
func (b *Block) IsGenesis() bool {
	return b.Header.Index == 0 && b.Header.PreviousHash == "0"
}

// VerifyDataHash reports whether Header.DataHash matches Data's
// computed hash (spec.md §8 testable property).
func (b *Block) VerifyDataHash() bool {
	return b.Header.DataHash == b.Data.DataHash()
}

// VerifyPOW reports whether Header.Hash matches the recomputed hash for
// Header.Nonce, and whether it satisfies the target implied by
// TargetDifficulty (spec.md §8: `verify_data_hash(B) ∧ verify_pow(B)`).
func (b *Block) VerifyPOW() bool {
	calculated, err := b.Header.CalculateHash(b.Header.Nonce)
	if err != nil || calculated != b.Header.Hash {
		return false
	}
	return SatisfiesDifficulty(calculated, b.Header.TargetDifficulty)
}

// Verify runs both structural checks §8 requires of every accepted
// block, returning ErrInvalidBlock on failure.
func (b *Block) Verify() error {
	if b.Header.Index == 0 {
		if b.Header.PreviousHash != "0" {
			return errors.Wrap(errs.ErrInvalidBlock, "genesis block must have previous_hash \"0\"")
		}
	}
	if !b.VerifyDataHash() {
		return errors.Wrap(errs.ErrInvalidBlock, "data_hash mismatch")
	}
	if !b.VerifyPOW() {
		return errors.Wrap(errs.ErrInvalidBlock, "proof-of-work invalid")
	}
	return nil
}

// Target computes ⌊(0xffff · 2^(0x1d·8)) / difficulty⌋ (spec.md §4.2).
func Target(difficulty *big.Int) *big.Int {
	base := new(big.Int).SetUint64(0xffff)
	shift := uint(0x1d * 8)
	base.Lsh(base, shift)
	if difficulty == nil || difficulty.Sign() <= 0 {
		return base
	}
	return new(big.Int).Div(base, difficulty)
}

// SatisfiesDifficulty reports whether hexHash, parsed as a big integer,
// is strictly less than the target implied by difficulty.
func SatisfiesDifficulty(hexHash string, difficulty *big.Int) bool {
	value, ok := new(big.Int).SetString(hexHash, 16)
	if !ok {
		return false
	}
	return value.Cmp(Target(difficulty)) < 0
}

// String renders a block for structured log fields.
func (b *Block) String() string {
	return fmt.Sprintf("Block{index=%d hash=%s}", b.Header.Index, b.Header.Hash)
}
