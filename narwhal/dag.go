package narwhal

import (
	"sync"

	"github.com/modality-network/node/errs"
)

// DAG is the round-indexed certificate store every primary maintains
// locally (spec.md §4.7). No Rust dag.rs exists anywhere in the
// retrieved sources for either narwhal crate; this type and its method
// set are built directly from spec.md §4.7's contract (insert,
// detect_equivocation, get, get_round, highest_round,
// parents_available).
type DAG struct {
	mu            sync.RWMutex
	byRound       map[uint64]map[Digest]*Certificate
	byAuthorRound map[uint64]map[string]Digest
	highestRound  uint64
}

func NewDAG() *DAG {
	return &DAG{
		byRound:       make(map[uint64]map[Digest]*Certificate),
		byAuthorRound: make(map[uint64]map[string]Digest),
	}
}

// Insert adds cert to the DAG, rejecting a second certificate from the
// same author at the same round as equivocation (spec.md §4.7
// "detect_equivocation: a second certificate from the same author at
// the same round is rejected").
func (d *DAG) Insert(cert *Certificate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	round := cert.Header.Round
	author := cert.Header.Author
	digest := cert.Digest()

	if authors, ok := d.byAuthorRound[round]; ok {
		if existing, seen := authors[author]; seen && existing != digest {
			return errs.ErrEquivocation
		}
	}

	if d.byRound[round] == nil {
		d.byRound[round] = make(map[Digest]*Certificate)
	}
	if d.byAuthorRound[round] == nil {
		d.byAuthorRound[round] = make(map[string]Digest)
	}
	d.byRound[round][digest] = cert
	d.byAuthorRound[round][author] = digest
	if round > d.highestRound {
		d.highestRound = round
	}
	return nil
}

// DetectEquivocation reports whether inserting cert would conflict
// with an existing (author, round) entry, without mutating the DAG.
func (d *DAG) DetectEquivocation(cert *Certificate) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	authors, ok := d.byAuthorRound[cert.Header.Round]
	if !ok {
		return false
	}
	existing, seen := authors[cert.Header.Author]
	return seen && existing != cert.Digest()
}

// Get returns the certificate for digest at any round, if present.
func (d *DAG) Get(digest Digest) (*Certificate, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, certs := range d.byRound {
		if cert, ok := certs[digest]; ok {
			return cert, true
		}
	}
	return nil, false
}

// GetRound returns every certificate inserted at round, in no
// particular order.
func (d *DAG) GetRound(round uint64) []*Certificate {
	d.mu.RLock()
	defer d.mu.RUnlock()

	certs := d.byRound[round]
	out := make([]*Certificate, 0, len(certs))
	for _, c := range certs {
		out = append(out, c)
	}
	return out
}

// HighestRound returns the greatest round with at least one inserted
// certificate.
func (d *DAG) HighestRound() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.highestRound
}

// ParentsAvailable reports whether every digest cert's header cites as
// a parent is already present in the DAG (spec.md §4.7
// "parents_available: true iff every parent digest the header cites
// resolves to a stored certificate").
func (d *DAG) ParentsAvailable(cert *Certificate) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, parentDigest := range cert.Header.Parents {
		found := false
		for _, certs := range d.byRound {
			if _, ok := certs[parentDigest]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
