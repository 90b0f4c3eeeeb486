// Package epoch implements the deterministic Fisher-Yates shuffle over
// mining-block nominations and the epoch rollover / validator-set
// derivation logic that bridges the mining chain to Shoal consensus
// (spec.md §4.4, §4.9).
package epoch

import (
	"encoding/binary"

	sha256simd "github.com/minio/sha256-simd"
)

// FisherYatesShuffle returns a deterministic permutation of [0, size)
// seeded by seed. The pseudo-random stream is iterated SHA-256 over an
// 8-byte little-endian state: each draw's next state is the digest's
// first 8 bytes, and the drawn index is (next 8 bytes as u64) mod range
// (spec.md §4.4; grounded on modal-common/src/shuffle.rs).
func FisherYatesShuffle(seed uint64, size int) []int {
	if size <= 0 {
		return []int{}
	}
	array := make([]int, size)
	for i := range array {
		array[i] = i
	}

	state := seed
	for i := size - 1; i >= 1; i-- {
		j := deterministicRandom(&state, i+1)
		array[i], array[j] = array[j], array[i]
	}
	return array
}

// deterministicRandom draws a value in [0, max) from state, advancing
// state for the next call.
func deterministicRandom(state *uint64, max int) int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], *state)

	h := sha256simd.New()
	h.Write(buf[:])
	sum := h.Sum(nil)

	*state = binary.LittleEndian.Uint64(sum[0:8])
	value := binary.LittleEndian.Uint64(sum[8:16])
	return int(value % uint64(max))
}

// SeedFromNonces computes seed_u64 as the XOR of the low 64 bits of
// every nonce in a closed epoch, in block order (spec.md §4.4).
func SeedFromNonces(nonces []uint64) uint64 {
	var seed uint64
	for _, n := range nonces {
		seed ^= n
	}
	return seed
}
