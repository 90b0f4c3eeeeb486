package narwhal

import (
	"github.com/modality-network/node/errs"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/go-bitfield"
)

// CertificateBuilder collects votes for a proposed header until quorum
// is reached, then assembles a Certificate (spec.md §4.6). Grounded on
// modal-validator-consensus/src/narwhal/certificate.rs.
type CertificateBuilder struct {
	header    Header
	committee Committee
	votes     map[string][]byte
}

func NewCertificateBuilder(header Header, committee Committee) *CertificateBuilder {
	return &CertificateBuilder{
		header:    header,
		committee: committee,
		votes:     make(map[string][]byte),
	}
}

// AddVote records a vote signature from voter, rejecting voters
// outside the committee and duplicate votes from the same voter.
func (b *CertificateBuilder) AddVote(voter string, signature []byte) error {
	if !b.committee.Contains(voter) {
		return errors.Errorf("voter %s not in committee", voter)
	}
	if _, exists := b.votes[voter]; exists {
		return errors.Errorf("duplicate vote from %s", voter)
	}
	b.votes[voter] = signature
	return nil
}

// HasQuorum reports whether collected votes meet the committee's
// quorum threshold.
func (b *CertificateBuilder) HasQuorum() bool {
	return len(b.votes) >= b.committee.QuorumThreshold()
}

// VoteCount returns the number of votes collected so far.
func (b *CertificateBuilder) VoteCount() int {
	return len(b.votes)
}

// Build assembles a Certificate from collected votes, failing with
// errs.ErrQuorumNotReached if quorum has not been reached. The
// aggregated signature is a placeholder: this module has no BLS
// aggregation scheme wired in, matching certificate.rs's own
// "TODO: Aggregate signatures" placeholder.
func (b *CertificateBuilder) Build() (*Certificate, error) {
	if !b.HasQuorum() {
		return nil, errs.Wrapf(errs.ErrQuorumNotReached, "insufficient votes: %d < %d", len(b.votes), b.committee.QuorumThreshold())
	}

	signers := bitfield.NewBitlist(uint64(b.committee.Size()))
	for voter := range b.votes {
		if idx, ok := b.committee.IndexOf(voter); ok {
			signers.SetBitAt(uint64(idx), true)
		}
	}

	return &Certificate{
		Header:              b.header,
		AggregatedSignature: AggregatedSignature{},
		Signers:             signers,
	}, nil
}

// VerifyCertificate checks that cert carries committee quorum and that
// every signer index is in range (spec.md §4.6 verify_certificate).
// Aggregated signature verification is out of scope, matching
// certificate.rs's own placeholder.
func VerifyCertificate(cert *Certificate, committee Committee) error {
	if !cert.HasQuorum(committee.QuorumThreshold()) {
		return errs.Wrap(errs.ErrQuorumNotReached, "certificate does not have quorum")
	}
	if int(cert.Signers.Len()) > committee.Size() {
		return errs.Wrap(errs.ErrInvalidBlock, "signer bitmap exceeds committee size")
	}
	return nil
}

// CreateVote builds a Vote over header's digest on behalf of voter.
// Signing is out of scope (no private-key material flows through this
// module); the signature field is a placeholder, matching
// certificate.rs's own create_vote.
func CreateVote(header Header, voter string) *Vote {
	return &Vote{
		HeaderDigest: header.Digest(),
		Round:        header.Round,
		Voter:        voter,
	}
}
