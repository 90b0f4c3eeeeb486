// Package persistence implements the Certificate/Batch round-trip
// encodings the validator datastore bridge needs (spec.md §4.10).
// Grounded on modal-sequencer-consensus/src/persistence/mod.rs and
// modal-miner/src/persistence.rs for the digest/peer-id string
// conversions and the ToPersistenceModel/FromPersistenceModel shape;
// the DAGCertificate/DAGBatch field lists are spec.md §4.10's own.
package persistence

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/modality-network/node/datastore"
	"github.com/modality-network/node/narwhal"
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/go-bitfield"
)

const (
	certificatePrefix = "/dag/certificates/round/"
	batchPrefix       = "/dag/batches/digest/"
)

func certificateKey(round uint64, digest string) string {
	return fmt.Sprintf("%s%d/digest/%s", certificatePrefix, round, digest)
}

func certificateRoundPrefix(round uint64) string {
	return fmt.Sprintf("%s%d/digest/", certificatePrefix, round)
}

func batchKey(digest string) string {
	return batchPrefix + digest
}

// DAGCertificate is the on-disk form of narwhal.Certificate (spec.md
// §4.10).
type DAGCertificate struct {
	Digest                  string  `json:"digest"`
	Author                  string  `json:"author"`
	Round                   uint64  `json:"round"`
	HeaderJSON              string  `json:"header_json"`
	AggregatedSignatureJSON string  `json:"aggregated_signature_json"`
	SignersBitvec           string  `json:"signers_bitvec"`
	BatchDigest             string  `json:"batch_digest"`
	Parents                 []string `json:"parents"`
	Timestamp               int64   `json:"timestamp"`
	Committed               bool    `json:"committed"`
	CommittedAtRound        *uint64 `json:"committed_at_round,omitempty"`
	CreatedAt               int64   `json:"created_at"`
}

// EncodeCertificate converts an in-memory certificate to its
// persistence model.
func EncodeCertificate(cert *narwhal.Certificate, createdAt int64) (*DAGCertificate, error) {
	headerJSON, err := json.Marshal(cert.Header)
	if err != nil {
		return nil, errors.Wrap(err, "persistence: marshal header")
	}
	sigJSON, err := json.Marshal(cert.AggregatedSignature)
	if err != nil {
		return nil, errors.Wrap(err, "persistence: marshal aggregated signature")
	}

	parents := make([]string, len(cert.Header.Parents))
	for i, p := range cert.Header.Parents {
		parents[i] = p.Hex()
	}

	return &DAGCertificate{
		Digest:                  cert.Digest().Hex(),
		Author:                  cert.Header.Author,
		Round:                   cert.Header.Round,
		HeaderJSON:              string(headerJSON),
		AggregatedSignatureJSON: string(sigJSON),
		SignersBitvec:           hex.EncodeToString([]byte(cert.Signers)),
		BatchDigest:             cert.Header.BatchDigest.Hex(),
		Parents:                 parents,
		Timestamp:               cert.Header.Timestamp,
		Committed:               cert.Committed,
		CommittedAtRound:        cert.CommittedAtRound,
		CreatedAt:               createdAt,
	}, nil
}

// DecodeCertificate reconstructs an in-memory certificate from its
// persistence model.
func DecodeCertificate(rec *DAGCertificate) (*narwhal.Certificate, error) {
	var header narwhal.Header
	if err := json.Unmarshal([]byte(rec.HeaderJSON), &header); err != nil {
		return nil, errors.Wrap(err, "persistence: unmarshal header")
	}
	var sig narwhal.AggregatedSignature
	if err := json.Unmarshal([]byte(rec.AggregatedSignatureJSON), &sig); err != nil {
		return nil, errors.Wrap(err, "persistence: unmarshal aggregated signature")
	}
	signersRaw, err := hex.DecodeString(rec.SignersBitvec)
	if err != nil {
		return nil, errors.Wrap(err, "persistence: decode signers bitvec")
	}

	return &narwhal.Certificate{
		Header:              header,
		AggregatedSignature: sig,
		Signers:             bitfield.Bitlist(signersRaw),
		Committed:           rec.Committed,
		CommittedAtRound:    rec.CommittedAtRound,
	}, nil
}

// DAGBatch is the on-disk form of narwhal.Batch (spec.md §4.10).
type DAGBatch struct {
	Digest           string  `json:"digest"`
	WorkerID         uint32  `json:"worker_id"`
	Author           string  `json:"author"`
	TransactionsJSON string  `json:"transactions_json"`
	Timestamp        int64   `json:"timestamp"`
	SizeBytes        int     `json:"size_bytes"`
	ReferencedByCert *string `json:"referenced_by_cert,omitempty"`
	CreatedAt        int64   `json:"created_at"`
}

// EncodeBatch converts an in-memory batch to its persistence model.
// referencedByCert is nil until a certificate's header cites this
// batch's digest.
func EncodeBatch(digest narwhal.Digest, batch *narwhal.Batch, referencedByCert *narwhal.Digest, createdAt int64) (*DAGBatch, error) {
	txJSON, err := json.Marshal(batch.Transactions)
	if err != nil {
		return nil, errors.Wrap(err, "persistence: marshal transactions")
	}

	rec := &DAGBatch{
		Digest:           digest.Hex(),
		WorkerID:         batch.WorkerID,
		Author:           batch.Author,
		TransactionsJSON: string(txJSON),
		Timestamp:        batch.Timestamp,
		SizeBytes:        batch.SizeBytes(),
		CreatedAt:        createdAt,
	}
	if referencedByCert != nil {
		hex := referencedByCert.Hex()
		rec.ReferencedByCert = &hex
	}
	return rec, nil
}

// DecodeBatch reconstructs an in-memory batch from its persistence
// model.
func DecodeBatch(rec *DAGBatch) (*narwhal.Batch, error) {
	var txs []narwhal.Transaction
	if err := json.Unmarshal([]byte(rec.TransactionsJSON), &txs); err != nil {
		return nil, errors.Wrap(err, "persistence: unmarshal transactions")
	}
	return &narwhal.Batch{
		Transactions: txs,
		WorkerID:     rec.WorkerID,
		Author:       rec.Author,
		Timestamp:    rec.Timestamp,
	}, nil
}

// Bridge persists certificates and batches to the ValidatorActive and
// ValidatorFinal stores, implementing the invariant that every
// in-memory certificate is reachable from the latest checkpoint or
// persisted in ValidatorFinal (committed) or ValidatorActive
// (otherwise), and that restart replays the most recent checkpoint
// then ValidatorFinal in ascending round order (spec.md §4.10).
type Bridge struct {
	active *datastore.Store
	final  *datastore.Store
}

func NewBridge(manager *datastore.Manager) *Bridge {
	return &Bridge{active: manager.ValidatorActiveStore(), final: manager.ValidatorFinalStore()}
}

// SaveCertificate persists cert under ValidatorFinal if committed,
// ValidatorActive otherwise, removing it from the other store so a
// certificate never lives in both at once.
func (b *Bridge) SaveCertificate(cert *narwhal.Certificate, createdAt int64) error {
	rec, err := EncodeCertificate(cert, createdAt)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "persistence: marshal certificate record")
	}

	key := certificateKey(cert.Header.Round, rec.Digest)
	if cert.Committed {
		if err := b.final.Put(key, payload); err != nil {
			return err
		}
		return b.active.Delete(key)
	}
	if err := b.active.Put(key, payload); err != nil {
		return err
	}
	return b.final.Delete(key)
}

// SaveBatch persists a batch under ValidatorActive. Nothing in this
// package deletes stored batches.
func (b *Bridge) SaveBatch(digest narwhal.Digest, batch *narwhal.Batch, referencedByCert *narwhal.Digest, createdAt int64) error {
	rec, err := EncodeBatch(digest, batch, referencedByCert, createdAt)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "persistence: marshal batch record")
	}
	return b.active.Put(batchKey(digest.Hex()), payload)
}

// LoadBatch returns the batch at digest, or (nil, false) if absent.
func (b *Bridge) LoadBatch(digest narwhal.Digest) (*narwhal.Batch, bool, error) {
	raw, ok, err := b.active.Get(batchKey(digest.Hex()))
	if err != nil || !ok {
		return nil, ok, err
	}
	var rec DAGBatch
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, errors.Wrap(err, "persistence: unmarshal batch record")
	}
	batch, err := DecodeBatch(&rec)
	if err != nil {
		return nil, false, err
	}
	return batch, true, nil
}

// ReplayFinal loads every committed certificate persisted in
// ValidatorFinal for round, in no particular order within the round
// (callers sort by round ascending across repeated calls, per the
// restart invariant).
func (b *Bridge) ReplayFinal(round uint64) ([]*narwhal.Certificate, error) {
	kvs, err := b.final.Iterate(certificateRoundPrefix(round))
	if err != nil {
		return nil, err
	}
	certs := make([]*narwhal.Certificate, 0, len(kvs))
	for _, kv := range kvs {
		var rec DAGCertificate
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			return nil, errors.Wrap(err, "persistence: unmarshal certificate record")
		}
		cert, err := DecodeCertificate(&rec)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// ReplayFinalSince replays every committed certificate in ValidatorFinal
// from fromRound up to and including toRound, in ascending round order
// (spec.md §4.10 "replays ValidatorFinal in ascending round order").
func (b *Bridge) ReplayFinalSince(fromRound, toRound uint64) ([]*narwhal.Certificate, error) {
	var all []*narwhal.Certificate
	for r := fromRound; r <= toRound; r++ {
		certs, err := b.ReplayFinal(r)
		if err != nil {
			return nil, err
		}
		all = append(all, certs...)
	}
	return all, nil
}
