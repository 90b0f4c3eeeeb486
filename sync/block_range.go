// Package sync implements the mining-block range request/response
// protocol and the DAG certificate/batch backfill surface that
// together let a node catch up to its peers (spec.md §4.11). Grounded
// on modal-node/src/reqres/data/miner_block/range.rs (server handler)
// and modal-node/src/sync/block_range.rs (client pagination and
// fork-choice-applying save), with common-ancestor discovery and
// continuity repair built directly from spec.md §4.11's prose since no
// Rust source implements the exponential-offset probe.
package sync

import (
	"github.com/modality-network/node/async/event"
	"github.com/modality-network/node/datastore"
	"github.com/modality-network/node/errs"
	"github.com/modality-network/node/forkchoice"
	"github.com/modality-network/node/mining"
	"github.com/pkg/errors"
)

// MaxChunkSize is the hard cap a server enforces on max_chunk_size
// regardless of what the client requests (spec.md §4.11).
const MaxChunkSize = 1000

// DefaultChunkSize is used when a request omits max_chunk_size
// (modal-node/src/reqres/data/miner_block/range.rs's default of 50).
const DefaultChunkSize = 50

// RangeRequest is the `/data/miner_block/range` request body.
type RangeRequest struct {
	FromIndex    uint64 `json:"from_index"`
	ToIndex      uint64 `json:"to_index"`
	MaxChunkSize uint64 `json:"max_chunk_size,omitempty"`
}

// RangeResponse is the `/data/miner_block/range` reply payload.
type RangeResponse struct {
	FromIndex   uint64          `json:"from_index"`
	ToIndex     uint64          `json:"to_index"`
	RequestedTo uint64          `json:"requested_to"`
	Blocks      []*mining.Block `json:"blocks"`
	Count       int             `json:"count"`
	HasMore     bool            `json:"has_more"`
	ChunkSize   uint64          `json:"chunk_size"`
}

// NextFromIndex is the index a client should request next to continue
// pagination, valid only when HasMore is true.
func (r *RangeResponse) NextFromIndex() uint64 {
	return r.FromIndex + uint64(len(r.Blocks))
}

// Server answers RangeRequests against a chain repo's canonical blocks.
type Server struct {
	repo  *datastore.ChainRepo
	store *datastore.Store
}

func NewServer(manager *datastore.Manager, store *datastore.Store) *Server {
	return &Server{repo: datastore.NewChainRepo(manager), store: store}
}

// HandleRange serves req, capping chunk size at MaxChunkSize and
// filling in however many canonical blocks are actually on hand
// (spec.md §4.11; grounded on range.rs's handler).
func (s *Server) HandleRange(req RangeRequest) (*RangeResponse, error) {
	if req.FromIndex > req.ToIndex {
		return nil, errors.New("sync: from_index must be <= to_index")
	}

	chunkSize := req.MaxChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize > MaxChunkSize {
		chunkSize = MaxChunkSize
	}

	actualTo := req.ToIndex
	if capped := req.FromIndex + chunkSize - 1; capped < actualTo {
		actualTo = capped
	}

	var blocks []*mining.Block
	for i := req.FromIndex; i <= actualTo; i++ {
		candidates, err := s.repo.FindCanonicalByIndex(s.store, i)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			break
		}
		blocks = append(blocks, candidates[0])
	}

	return &RangeResponse{
		FromIndex:   req.FromIndex,
		ToIndex:     actualTo,
		RequestedTo: req.ToIndex,
		Blocks:      blocks,
		Count:       len(blocks),
		HasMore:     actualTo < req.ToIndex && len(blocks) > 0,
		ChunkSize:   chunkSize,
	}, nil
}

// Client applies incoming range responses to the local chain via fork
// choice and emits mining-update events after a successful save batch.
type Client struct {
	observer *forkchoice.Observer
	updates  event.Feed
}

func NewClient(observer *forkchoice.Observer) *Client {
	return &Client{observer: observer}
}

// Updates returns the feed a mining-update event (new chain tip index)
// is sent on after ApplyRangeResponse saves at least one block.
func (c *Client) Updates() *event.Feed { return &c.updates }

// ApplyRangeResponse saves every block in resp in order, applying
// spec.md §4.3 fork choice through the shared Observer. Blocks whose
// parent is unknown and not canonical are skipped rather than
// aborting the whole batch (spec.md §4.11).
func (c *Client) ApplyRangeResponse(resp *RangeResponse) (saved int, err error) {
	for _, block := range resp.Blocks {
		accepted, err := c.observer.AcceptBlock(block)
		if err != nil {
			if errs.Is(err, errs.ErrOrphanParent) {
				continue
			}
			return saved, err
		}
		if accepted {
			saved++
		}
	}

	if saved > 0 {
		tip, err := c.observer.ChainTip()
		if err != nil {
			return saved, err
		}
		c.updates.Send(tip)
	}
	return saved, nil
}

// HashAt looks up the canonical hash at index, used by
// FindCommonAncestor's probe callbacks.
type HashAt func(index uint64) (hash string, ok bool, err error)

// FindCommonAncestor probes exponentially larger offsets back from
// localTip, comparing localHashAt against remoteHashAt at each probed
// index until the first match, which defines the ancestor (spec.md
// §4.11 "probe exponentially larger offsets from local tip; first hash
// match defines the ancestor"). Index 0 (genesis) always matches by
// construction if reached, since every node shares the same genesis.
func FindCommonAncestor(localTip uint64, localHashAt, remoteHashAt HashAt) (uint64, error) {
	offset := uint64(1)
	for {
		var probe uint64
		if offset >= localTip {
			probe = 0
		} else {
			probe = localTip - offset
		}

		localHash, ok, err := localHashAt(probe)
		if err != nil {
			return 0, err
		}
		if ok {
			remoteHash, rok, err := remoteHashAt(probe)
			if err != nil {
				return 0, err
			}
			if rok && remoteHash == localHash {
				return probe, nil
			}
		}

		if probe == 0 {
			return 0, nil
		}
		offset *= 2
	}
}

// RepairChainIntegrity scans canonical blocks from 0 upward and orphans
// everything after the first hash-link break (spec.md §4.11, §6
// "Chain integrity repair"; delegates entirely to
// forkchoice.RepairContinuity).
func RepairChainIntegrity(manager *datastore.Manager, store *datastore.Store, maxIndex uint64) (*forkchoice.OrphanResult, error) {
	repo := datastore.NewChainRepo(manager)
	return forkchoice.RepairContinuity(repo, store, maxIndex)
}
