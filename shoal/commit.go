package shoal

import (
	"sort"

	"github.com/modality-network/node/narwhal"
)

// CommitEngine applies spec.md §4.8's two-round-wave commit rule over
// a DAG: a round-r leader certificate is committed once quorum_threshold
// round-(r+1) certificates reference it as a parent, and committing it
// transitively commits every uncommitted ancestor. No Rust source
// defines this rule directly (reputation.rs only selects leaders); it
// is built from spec.md §4.8's commit-rule paragraph.
type CommitEngine struct {
	dag       *narwhal.DAG
	committee narwhal.Committee
	reputer   *ReputationManager
}

func NewCommitEngine(dag *narwhal.DAG, committee narwhal.Committee, reputer *ReputationManager) *CommitEngine {
	return &CommitEngine{dag: dag, committee: committee, reputer: reputer}
}

// TryCommit evaluates round r's leader certificate for commit. It
// returns the full set of certificates newly marked committed by this
// call (the leader certificate plus any ancestor it transitively
// commits), in the deterministic order spec.md §4.8 specifies:
// topological by round, then by (author index, digest) within a round.
func (e *CommitEngine) TryCommit(round uint64) []*narwhal.Certificate {
	leader := e.reputer.SelectLeader(round)

	var leaderCert *narwhal.Certificate
	for _, cert := range e.dag.GetRound(round) {
		if cert.Header.Author == leader {
			leaderCert = cert
			break
		}
	}
	if leaderCert == nil {
		return nil
	}
	if leaderCert.Committed {
		return nil
	}

	leaderDigest := leaderCert.Digest()
	references := 0
	for _, cert := range e.dag.GetRound(round + 1) {
		for _, parent := range cert.Header.Parents {
			if parent == leaderDigest {
				references++
				break
			}
		}
	}
	if references < e.committee.QuorumThreshold() {
		return nil
	}

	committedAt := round + 1
	newlyCommitted := e.collectUncommittedAncestors(leaderCert)
	e.sortCommitOrder(newlyCommitted)
	for _, cert := range newlyCommitted {
		cert.Committed = true
		r := committedAt
		cert.CommittedAtRound = &r
	}
	return newlyCommitted
}

// collectUncommittedAncestors walks leaderCert's parent references
// back through the DAG, gathering every not-yet-committed certificate
// reachable from it (leaderCert included).
func (e *CommitEngine) collectUncommittedAncestors(leaderCert *narwhal.Certificate) []*narwhal.Certificate {
	seen := make(map[narwhal.Digest]bool)
	var out []*narwhal.Certificate

	var visit func(cert *narwhal.Certificate)
	visit = func(cert *narwhal.Certificate) {
		digest := cert.Digest()
		if seen[digest] {
			return
		}
		seen[digest] = true
		if cert.Committed {
			return
		}
		out = append(out, cert)
		for _, parentDigest := range cert.Header.Parents {
			if parent, ok := e.dag.Get(parentDigest); ok {
				visit(parent)
			}
		}
	}
	visit(leaderCert)
	return out
}

// sortCommitOrder orders certs topologically by round ascending, then
// by (author index, digest) within a round (spec.md §4.8).
func (e *CommitEngine) sortCommitOrder(certs []*narwhal.Certificate) {
	authorIndex := func(author string) int {
		if idx, ok := e.committee.IndexOf(author); ok {
			return idx
		}
		return len(e.committee.Validators())
	}

	sort.Slice(certs, func(i, j int) bool {
		if certs[i].Header.Round != certs[j].Header.Round {
			return certs[i].Header.Round < certs[j].Header.Round
		}
		ai, aj := authorIndex(certs[i].Header.Author), authorIndex(certs[j].Header.Author)
		if ai != aj {
			return ai < aj
		}
		return certs[i].Digest().Hex() < certs[j].Digest().Hex()
	})
}
