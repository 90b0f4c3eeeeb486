// Package narwhal implements the mempool half of the DAG-based BFT
// consensus engine: workers batch transactions, primaries propose
// round headers referencing quorum parents, and certificates are
// assembled from collected votes (spec.md §3, §4.5-4.7). Grounded on
// modal-sequencer-consensus/src/narwhal/{worker,primary}.rs and
// modal-validator-consensus/src/narwhal/certificate.rs. The pack's
// retrieved sources omit the core type definitions (Committee,
// Header, Certificate, DAG) that those files import from a sibling
// module never present in original_source/ — those types are built
// here directly from spec.md §3/§4.6-§4.7's field lists instead.
package narwhal

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/prysmaticlabs/go-bitfield"
)

// Digest is a 32-byte content hash, used for both certificate and
// batch identity (spec.md §3).
type Digest [32]byte

func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

func (d Digest) String() string { return d.Hex() }

// Transaction is an opaque unit of submitted work (spec.md §3 "Batch
// ... transactions (ordered list)"). The core does not define
// execution semantics (spec.md §4.8 "The spec does not define
// execution semantics").
type Transaction struct {
	Data      []byte `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// Batch is a worker's drained transaction queue (spec.md §3).
type Batch struct {
	Transactions []Transaction `json:"transactions"`
	WorkerID     uint32        `json:"worker_id"`
	Author       string        `json:"author"`
	Timestamp    int64         `json:"timestamp"`
}

// Digest computes Batch's content digest: SHA-256 over worker id,
// author, every transaction's bytes and timestamp, in order, and the
// batch's own timestamp.
func (b Batch) Digest() Digest {
	h := sha256.New()
	var workerIDBuf [4]byte
	binary.LittleEndian.PutUint32(workerIDBuf[:], b.WorkerID)
	h.Write(workerIDBuf[:])
	h.Write([]byte(b.Author))
	for _, tx := range b.Transactions {
		h.Write(tx.Data)
		var tsBuf [8]byte
		binary.LittleEndian.PutUint64(tsBuf[:], uint64(tx.Timestamp))
		h.Write(tsBuf[:])
	}
	var batchTSBuf [8]byte
	binary.LittleEndian.PutUint64(batchTSBuf[:], uint64(b.Timestamp))
	h.Write(batchTSBuf[:])
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// SizeBytes approximates the batch's wire size for max_batch_bytes
// bounding (spec.md §4.5).
func (b Batch) SizeBytes() int {
	total := 0
	for _, tx := range b.Transactions {
		total += len(tx.Data)
	}
	return total
}

// Header is a primary's round proposal (spec.md §4.6).
type Header struct {
	Author      string    `json:"author"`
	Round       uint64    `json:"round"`
	BatchDigest Digest    `json:"batch_digest"`
	Parents     []Digest  `json:"parents"`
	Timestamp   int64     `json:"timestamp"`
}

// Digest computes Header's content digest, used as a Certificate's
// identity once assembled.
func (h Header) Digest() Digest {
	hasher := sha256.New()
	hasher.Write([]byte(h.Author))
	var roundBuf [8]byte
	binary.LittleEndian.PutUint64(roundBuf[:], h.Round)
	hasher.Write(roundBuf[:])
	hasher.Write(h.BatchDigest[:])
	for _, p := range h.Parents {
		hasher.Write(p[:])
	}
	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], uint64(h.Timestamp))
	hasher.Write(tsBuf[:])
	var out Digest
	copy(out[:], hasher.Sum(nil))
	return out
}

// Vote is a single validator's signature over a header's digest
// (spec.md §4.6 "Vote collection").
type Vote struct {
	HeaderDigest Digest `json:"header_digest"`
	Round        uint64 `json:"round"`
	Voter        string `json:"voter"`
	Signature    []byte `json:"signature"`
}

// AggregatedSignature stands in for the committee's combined vote
// signature (spec.md §4.6 "aggregated signature valid
// (implementation-defined scheme; the spec treats it as a verified
// predicate)").
type AggregatedSignature struct {
	Signature []byte `json:"signature"`
}

// Certificate is a quorum-witnessed header (spec.md §3). Signers is a
// committee-indexed bitvec recording who voted.
type Certificate struct {
	Header              Header              `json:"header"`
	AggregatedSignature AggregatedSignature `json:"aggregated_signature"`
	Signers             bitfield.Bitlist    `json:"signers"`
	Committed           bool                `json:"committed"`
	CommittedAtRound    *uint64             `json:"committed_at_round,omitempty"`
}

// Digest is the certificate's identity, taken from its header.
func (c Certificate) Digest() Digest { return c.Header.Digest() }

// HasQuorum reports whether Signers carries at least quorumThreshold
// set bits (spec.md §4.6 verify_certificate precondition (a)).
func (c Certificate) HasQuorum(quorumThreshold int) bool {
	if c.Signers == nil {
		return false
	}
	return int(c.Signers.Count()) >= quorumThreshold
}

// Validator is one committee member (spec.md §3 "Committee").
type Validator struct {
	PeerID         string `json:"peer_id"`
	Stake          uint64 `json:"stake"`
	NetworkAddress string `json:"network_address"`
}

// Committee is the ordered validator set a round's quorum is computed
// against (spec.md §3 "Committee").
type Committee struct {
	validators []Validator
	indexOf    map[string]int
}

// NewCommittee builds a Committee, fixing member order as given (order
// matters: it is the indexing basis for Certificate.Signers).
func NewCommittee(validators []Validator) Committee {
	indexOf := make(map[string]int, len(validators))
	for i, v := range validators {
		indexOf[v.PeerID] = i
	}
	return Committee{validators: validators, indexOf: indexOf}
}

func (c Committee) Size() int { return len(c.validators) }

func (c Committee) Validators() []Validator { return c.validators }

func (c Committee) Contains(peerID string) bool {
	_, ok := c.indexOf[peerID]
	return ok
}

func (c Committee) IndexOf(peerID string) (int, bool) {
	idx, ok := c.indexOf[peerID]
	return idx, ok
}

// QuorumThreshold is ⌊2·size/3⌋ + 1 (spec.md §3).
func (c Committee) QuorumThreshold() int {
	return (2*c.Size())/3 + 1
}

// MaxByzantine is ⌊(size-1)/3⌋ (spec.md §3).
func (c Committee) MaxByzantine() int {
	if c.Size() == 0 {
		return 0
	}
	return (c.Size() - 1) / 3
}

// leaderRankKey returns the hex SHA-256(round_le ‖ peer_id_bytes) key;
// ordering peers by it ascending is the tie-break Shoal uses after
// reputation (spec.md §4.8 step 2). Defined here since it operates
// purely over Committee.
func leaderRankKey(round uint64, peerID string) string {
	h := sha256.New()
	var roundBuf [8]byte
	binary.LittleEndian.PutUint64(roundBuf[:], round)
	h.Write(roundBuf[:])
	h.Write([]byte(peerID))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// LeaderTiebreakKey exposes leaderRankKey for callers (Shoal's
// reputation-ranked leader selection) that need to interleave this
// tie-break with another sort key rather than sorting peerIDs alone.
func LeaderTiebreakKey(round uint64, peerID string) string {
	return leaderRankKey(round, peerID)
}

// SortByLeaderTiebreak returns peerIDs sorted by ascending
// SHA-256(round‖peer_id), the deterministic tie-break order spec.md
// §4.8 names.
func SortByLeaderTiebreak(round uint64, peerIDs []string) []string {
	out := append([]string(nil), peerIDs...)
	sort.Slice(out, func(i, j int) bool {
		return leaderRankKey(round, out[i]) < leaderRankKey(round, out[j])
	})
	return out
}
