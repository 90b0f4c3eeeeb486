package sync

import (
	"github.com/modality-network/node/narwhal"
	"github.com/pkg/errors"
)

// SyncRequestKind discriminates a DagSyncRequest's variant, mirroring
// the Rust enum's case names (modal-validator-consensus/src/narwhal/
// sync.rs).
type SyncRequestKind string

const (
	GetCertificates        SyncRequestKind = "get_certificates"
	GetCertificatesInRound  SyncRequestKind = "get_certificates_in_round"
	GetCertificatesInRange  SyncRequestKind = "get_certificates_in_range"
	GetBatch                SyncRequestKind = "get_batch"
	GetBatches              SyncRequestKind = "get_batches"
	GetHighestRound         SyncRequestKind = "get_highest_round"
	GetMissingCertificates  SyncRequestKind = "get_missing_certificates"
)

// DagSyncRequest is the DAG layer's sync request surface: beyond the
// mining-block range protocol, peers exchange certificate/batch
// backfill requests to recover rounds a checkpoint doesn't cover
// (spec.md §4.10's replay invariant; SPEC_FULL.md §C.1.4).
type DagSyncRequest struct {
	Kind            SyncRequestKind    `json:"kind"`
	Digests         []narwhal.Digest   `json:"digests,omitempty"`
	Round           uint64             `json:"round,omitempty"`
	StartRound      uint64             `json:"start_round,omitempty"`
	EndRound        uint64             `json:"end_round,omitempty"`
	KnownDigests    []narwhal.Digest   `json:"known_digests,omitempty"`
	UpToRound       uint64             `json:"up_to_round,omitempty"`
}

func RequestCertificates(digests []narwhal.Digest) DagSyncRequest {
	return DagSyncRequest{Kind: GetCertificates, Digests: digests}
}

func RequestCertificatesInRound(round uint64) DagSyncRequest {
	return DagSyncRequest{Kind: GetCertificatesInRound, Round: round}
}

func RequestCertificatesInRange(start, end uint64) DagSyncRequest {
	return DagSyncRequest{Kind: GetCertificatesInRange, StartRound: start, EndRound: end}
}

func RequestBatch(digest narwhal.Digest) DagSyncRequest {
	return DagSyncRequest{Kind: GetBatch, Digests: []narwhal.Digest{digest}}
}

func RequestBatches(digests []narwhal.Digest) DagSyncRequest {
	return DagSyncRequest{Kind: GetBatches, Digests: digests}
}

func RequestHighestRound() DagSyncRequest {
	return DagSyncRequest{Kind: GetHighestRound}
}

func RequestMissingCertificates(knownDigests []narwhal.Digest, upToRound uint64) DagSyncRequest {
	return DagSyncRequest{Kind: GetMissingCertificates, KnownDigests: knownDigests, UpToRound: upToRound}
}

// DagSyncResponse is the DAG sync reply, carrying exactly one of its
// payload fields per Kind, or Message when Kind is "error".
type DagSyncResponse struct {
	Kind         string                 `json:"kind"`
	Certificates []*narwhal.Certificate `json:"certificates,omitempty"`
	HasMore      bool                   `json:"has_more,omitempty"`
	Batches      []*narwhal.Batch       `json:"batches,omitempty"`
	Round        uint64                 `json:"round,omitempty"`
	Message      string                 `json:"message,omitempty"`
}

func CertificatesResponse(certs []*narwhal.Certificate, hasMore bool) DagSyncResponse {
	return DagSyncResponse{Kind: "certificates", Certificates: certs, HasMore: hasMore}
}

func BatchesResponse(batches []*narwhal.Batch) DagSyncResponse {
	return DagSyncResponse{Kind: "batches", Batches: batches}
}

func HighestRoundResponse(round uint64) DagSyncResponse {
	return DagSyncResponse{Kind: "highest_round", Round: round}
}

func ErrorResponse(message string) DagSyncResponse {
	return DagSyncResponse{Kind: "error", Message: message}
}

func EmptyResponse() DagSyncResponse {
	return DagSyncResponse{Kind: "empty"}
}

func (r DagSyncResponse) IsError() bool { return r.Kind == "error" }
func (r DagSyncResponse) IsEmpty() bool { return r.Kind == "empty" }

// DagSyncServer answers DagSyncRequests against an in-memory DAG and a
// persistence bridge for batch lookups.
type DagSyncServer struct {
	dag          *narwhal.DAG
	batchLookup  func(narwhal.Digest) (*narwhal.Batch, bool, error)
}

func NewDagSyncServer(dag *narwhal.DAG, batchLookup func(narwhal.Digest) (*narwhal.Batch, bool, error)) *DagSyncServer {
	return &DagSyncServer{dag: dag, batchLookup: batchLookup}
}

// Handle dispatches req to the matching DAG lookup.
func (s *DagSyncServer) Handle(req DagSyncRequest) DagSyncResponse {
	switch req.Kind {
	case GetCertificates:
		var certs []*narwhal.Certificate
		for _, digest := range req.Digests {
			if cert, ok := s.dag.Get(digest); ok {
				certs = append(certs, cert)
			}
		}
		if len(certs) == 0 {
			return EmptyResponse()
		}
		return CertificatesResponse(certs, false)

	case GetCertificatesInRound:
		certs := s.dag.GetRound(req.Round)
		if len(certs) == 0 {
			return EmptyResponse()
		}
		return CertificatesResponse(certs, false)

	case GetCertificatesInRange:
		var certs []*narwhal.Certificate
		for r := req.StartRound; r <= req.EndRound; r++ {
			certs = append(certs, s.dag.GetRound(r)...)
		}
		if len(certs) == 0 {
			return EmptyResponse()
		}
		return CertificatesResponse(certs, req.EndRound < s.dag.HighestRound())

	case GetBatch, GetBatches:
		if s.batchLookup == nil {
			return ErrorResponse("batch lookup unavailable")
		}
		var batches []*narwhal.Batch
		for _, digest := range req.Digests {
			batch, ok, err := s.batchLookup(digest)
			if err != nil {
				return ErrorResponse(err.Error())
			}
			if ok {
				batches = append(batches, batch)
			}
		}
		if len(batches) == 0 {
			return EmptyResponse()
		}
		return BatchesResponse(batches)

	case GetHighestRound:
		return HighestRoundResponse(s.dag.HighestRound())

	case GetMissingCertificates:
		known := make(map[narwhal.Digest]bool, len(req.KnownDigests))
		for _, d := range req.KnownDigests {
			known[d] = true
		}
		var missing []*narwhal.Certificate
		for r := uint64(0); r <= req.UpToRound; r++ {
			for _, cert := range s.dag.GetRound(r) {
				if !known[cert.Digest()] {
					missing = append(missing, cert)
				}
			}
		}
		if len(missing) == 0 {
			return EmptyResponse()
		}
		return CertificatesResponse(missing, false)

	default:
		return ErrorResponse("unknown sync request kind")
	}
}

// ValidateRequest rejects a malformed request before dispatch (empty
// digest lists for digest-keyed kinds, inverted round ranges).
func ValidateRequest(req DagSyncRequest) error {
	switch req.Kind {
	case GetCertificates, GetBatch, GetBatches:
		if len(req.Digests) == 0 {
			return errors.Errorf("sync: %s requires at least one digest", req.Kind)
		}
	case GetCertificatesInRange:
		if req.StartRound > req.EndRound {
			return errors.Errorf("sync: start_round %d exceeds end_round %d", req.StartRound, req.EndRound)
		}
	}
	return nil
}
