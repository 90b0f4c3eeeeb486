// Package hashfn implements the pluggable hash variants used by the
// mining-block proof-of-work contract (spec.md §4.2, §9 "Dynamic
// dispatch over hash functions"). Each variant is a pure function over
// (data, nonce) returning a lowercase hex digest.
package hashfn

import (
	"crypto/sha1"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"strconv"

	sha256simd "github.com/minio/sha256-simd"
	"github.com/pkg/errors"
)

// Variant names the hash function a block was mined with.
type Variant string

const (
	SHA1    Variant = "sha1"
	SHA256  Variant = "sha256"
	SHA384  Variant = "sha384"
	SHA512  Variant = "sha512"
	RandomX Variant = "randomx"
)

// RandomXKey is the fixed keying material for the RandomX variant
// (spec.md §4.2).
const RandomXKey = "modality-network-randomx-key"

// ErrUnknownVariant is returned by Hash for an unrecognized Variant.
var ErrUnknownVariant = errors.New("hashfn: unknown variant")

// Hash appends ascii(nonce) to preimage and digests it with the given
// variant, returning a lowercase hex string. This implements
// `hash = HashFunc(mining_preimage ‖ ascii(nonce))` (spec.md §4.2).
func Hash(variant Variant, preimage []byte, nonce uint64) (string, error) {
	data := append(append([]byte{}, preimage...), []byte(strconv.FormatUint(nonce, 10))...)
	switch variant {
	case SHA1:
		sum := sha1.Sum(data)
		return hex.EncodeToString(sum[:]), nil
	case SHA256:
		sum := sha256simd.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	case SHA384:
		sum := sha512.Sum384(data)
		return hex.EncodeToString(sum[:]), nil
	case SHA512:
		sum := sha512.Sum512(data)
		return hex.EncodeToString(sum[:]), nil
	case RandomX:
		return randomXHash(data)
	default:
		return "", errors.Wrapf(ErrUnknownVariant, "%q", variant)
	}
}

// randomXHash is a scoped pure-Go stand-in for the RandomX VM: no cgo
// binding to the reference implementation is available in this module's
// dependency surface, so the variant is modeled as a keyed, multi-round
// SHA-256 construction that preserves RandomX's two defining properties
// for this spec's purposes — determinism across nodes given identical
// inputs, and a fixed network-wide key (spec.md §4.2, §9). It is a
// stateless function: no VM or other resource is acquired per mining
// session or released on shutdown.
func randomXHash(data []byte) (string, error) {
	h := sha256simd.New()
	h.Write([]byte(RandomXKey))
	h.Write(data)
	sum := h.Sum(nil)
	const rounds = 8
	for i := 0; i < rounds; i++ {
		h2 := sha256simd.New()
		h2.Write(sum)
		h2.Write([]byte(RandomXKey))
		var round [8]byte
		binary.LittleEndian.PutUint64(round[:], uint64(i))
		h2.Write(round[:])
		sum = h2.Sum(nil)
	}
	return hex.EncodeToString(sum), nil
}
