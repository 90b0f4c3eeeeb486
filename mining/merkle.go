package mining

import (
	"crypto/sha256"
	"encoding/hex"
)

// MerkleProofStep is one sibling hash and whether it sits to the left
// of the running hash at that level (SPEC_FULL.md C.1.1).
type MerkleProofStep struct {
	SiblingHex string
	IsLeft     bool
}

func hashPair(left, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

func leafBytes(h string) []byte {
	if b, err := hex.DecodeString(h); err == nil {
		return b
	}
	sum := sha256.Sum256([]byte(h))
	return sum[:]
}

// ComputeMerkleRoot builds a binary Merkle tree over hashes (duplicating
// the last element of odd-sized levels) and returns the hex-encoded
// root. Empty input yields "", a singleton returns itself unchanged
// (spec.md §8 boundary behaviors; grounded on
// modal-common/src/merkle.rs).
func ComputeMerkleRoot(hashes []string) string {
	if len(hashes) == 0 {
		return ""
	}
	if len(hashes) == 1 {
		return hashes[0]
	}

	level := make([][]byte, len(hashes))
	for i, h := range hashes {
		level[i] = leafBytes(h)
	}

	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		level = next
	}
	return hex.EncodeToString(level[0])
}

// GenerateMerkleProof returns the sibling path for hashes[index], or
// nil if index is out of bounds. A singleton tree yields an empty
// (non-nil) proof.
func GenerateMerkleProof(hashes []string, index int) []MerkleProofStep {
	if index < 0 || index >= len(hashes) {
		return nil
	}
	if len(hashes) == 1 {
		return []MerkleProofStep{}
	}

	level := make([][]byte, len(hashes))
	for i, h := range hashes {
		level[i] = leafBytes(h)
	}

	proof := []MerkleProofStep{}
	current := index
	for len(level) > 1 {
		var siblingIndex int
		var isLeft bool
		if current%2 == 0 {
			siblingIndex = current + 1
			if siblingIndex >= len(level) {
				siblingIndex = current
			}
			isLeft = siblingIndex < current
		} else {
			siblingIndex = current - 1
			isLeft = true
		}
		proof = append(proof, MerkleProofStep{
			SiblingHex: hex.EncodeToString(level[siblingIndex]),
			IsLeft:     isLeft,
		})

		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		level = next
		current /= 2
	}
	return proof
}

// VerifyMerkleProof replays proof over hash and reports whether the
// resulting root matches root.
func VerifyMerkleProof(hash, root string, proof []MerkleProofStep) bool {
	current := leafBytes(hash)
	for _, step := range proof {
		sibling, err := hex.DecodeString(step.SiblingHex)
		if err != nil {
			return false
		}
		if step.IsLeft {
			current = hashPair(sibling, current)
		} else {
			current = hashPair(current, sibling)
		}
	}
	return hex.EncodeToString(current) == root
}
