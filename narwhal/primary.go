package narwhal

import (
	"github.com/modality-network/node/errs"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "narwhal")

// Primary proposes round headers and folds certificates into its DAG
// (spec.md §4.6). Grounded on
// modal-sequencer-consensus/src/narwhal/primary.rs, generalized from
// its tokio::RwLock-guarded DAG to this module's plain *DAG (the DAG
// type itself carries its own internal locking, see dag.go).
type Primary struct {
	Validator string
	Committee Committee
	DAG       *DAG

	currentRound uint64
}

func NewPrimary(validator string, committee Committee, dag *DAG) *Primary {
	return &Primary{Validator: validator, Committee: committee, DAG: dag}
}

// Propose builds a Header for the current round citing batchDigest,
// with parents taken from every certificate in the previous round. A
// genesis (round 0) header has no parents. A non-genesis header whose
// available parents fall short of the committee's quorum threshold
// fails with errs.ErrInsufficientParents (spec.md §4.6 "propose fails
// if round>0 and available parent count < quorum_threshold").
func (p *Primary) Propose(batchDigest Digest, timestamp int64) (*Header, error) {
	var parents []Digest
	if p.currentRound > 0 {
		prevRound := p.currentRound - 1
		for _, cert := range p.DAG.GetRound(prevRound) {
			parents = append(parents, cert.Digest())
		}

		quorum := p.Committee.QuorumThreshold()
		if len(parents) < quorum {
			return nil, errs.Wrapf(errs.ErrInsufficientParents, "round %d: %d parents < quorum %d", p.currentRound, len(parents), quorum)
		}
	}

	header := &Header{
		Author:      p.Validator,
		Round:       p.currentRound,
		BatchDigest: batchDigest,
		Parents:     parents,
		Timestamp:   timestamp,
	}
	return header, nil
}

// CreateCertificateBuilder starts vote collection for header.
func (p *Primary) CreateCertificateBuilder(header Header) *CertificateBuilder {
	return NewCertificateBuilder(header, p.Committee)
}

// ProcessCertificate inserts cert into the DAG, surfacing
// errs.ErrEquivocation when a same-author same-round conflict exists.
func (p *Primary) ProcessCertificate(cert *Certificate) error {
	return p.DAG.Insert(cert)
}

// AdvanceRound moves the primary to the next round.
func (p *Primary) AdvanceRound() {
	p.currentRound++
	log.WithField("round", p.currentRound).Info("primary advanced round")
}

func (p *Primary) GetCurrentRound() uint64 { return p.currentRound }
