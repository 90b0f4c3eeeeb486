package node

import (
	"context"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/modality-network/node/datastore"
	"github.com/modality-network/node/p2p"
)

// InspectLevel selects how much of the node's state /inspect returns
// (spec.md §6 "basic|full|network|datastore|mining"). Grounded on
// modal-node/src/reqres/inspect.rs's InspectionLevel.
type InspectLevel string

const (
	InspectBasic     InspectLevel = "basic"
	InspectFull      InspectLevel = "full"
	InspectNetwork   InspectLevel = "network"
	InspectDatastore InspectLevel = "datastore"
	InspectMining    InspectLevel = "mining"
)

func (l InspectLevel) includesNetwork() bool {
	return l == InspectFull || l == InspectNetwork
}

func (l InspectLevel) includesDatastore() bool {
	return l == InspectFull || l == InspectDatastore
}

func (l InspectLevel) includesMining() bool {
	return l == InspectFull || l == InspectMining
}

// InspectRequest is the `/inspect` request payload.
type InspectRequest struct {
	Level InspectLevel `json:"level"`
}

// DatastoreInfo mirrors modal-node/src/reqres/inspect.rs's
// DatastoreInfo: a census of the canonical chain's shape.
type DatastoreInfo struct {
	TotalBlocks     int     `json:"total_blocks"`
	ChainTipHeight  *uint64 `json:"chain_tip_height,omitempty"`
	ChainTipHash    string  `json:"chain_tip_hash,omitempty"`
	UniqueEpochs    int     `json:"epochs"`
	UniqueMiners    int     `json:"unique_miners"`
}

// NetworkInfo mirrors modal-node's NetworkInfo: connection census, with
// the peer list only populated for the full/network level (not a
// lesser-privileged requester — spec.md §6's authorization rule gates
// the whole response, not individual fields, so this just mirrors the
// teacher's level gating).
type NetworkInfo struct {
	ConnectedPeers int      `json:"connected_peers"`
	PeerList       []string `json:"peer_list,omitempty"`
}

// MiningInfo mirrors modal-node's MiningInfo.
type MiningInfo struct {
	IsMining bool `json:"is_mining"`
}

// InspectionData is the full /inspect response shape.
type InspectionData struct {
	PeerID     string         `json:"peer_id"`
	Status     string         `json:"status"`
	Network    *NetworkInfo   `json:"network,omitempty"`
	Datastore  *DatastoreInfo `json:"datastore,omitempty"`
	Mining     *MiningInfo    `json:"mining,omitempty"`
}

// IsAuthorized implements spec.md §6's /inspect authorization rule:
// requester equals the node's own identity, or is present in an
// explicit whitelist, or the request has no peer id (local origin).
// Grounded verbatim on modal-node/src/reqres/inspect.rs's
// is_authorized: nil requester is always allowed (direct local access);
// an empty (but non-nil) whitelist rejects every remote requester,
// including self by id, but the self-by-identity exemption restores
// access once the whitelist is non-empty.
func IsAuthorized(requester, nodePeerID string, whitelist []string, hasRequester bool) bool {
	if !hasRequester {
		return true
	}
	if whitelist == nil {
		return requester == nodePeerID
	}
	if len(whitelist) == 0 {
		return false
	}
	if requester == nodePeerID {
		return true
	}
	for _, w := range whitelist {
		if w == requester {
			return true
		}
	}
	return false
}

// handleInspect answers the `/inspect` request/response path (spec.md
// §6). from is the empty peer.ID for a locally originated request.
func (n *Node) handleInspect(ctx context.Context, from peer.ID, req p2p.Request) p2p.Response {
	hasRequester := from != ""
	if !IsAuthorized(from.String(), n.peerID, n.cfg.InspectWhitelist, hasRequester) {
		return p2p.ErrorResponse("unauthorized")
	}

	var inspectReq InspectRequest
	if err := decodeInto(req.Data, &inspectReq); err != nil {
		return p2p.ErrorResponse(err.Error())
	}
	if inspectReq.Level == "" {
		inspectReq.Level = InspectBasic
	}

	data := InspectionData{PeerID: n.peerID, Status: "running"}

	if inspectReq.Level.includesNetwork() && n.demuxer != nil {
		data.Network = &NetworkInfo{}
	}

	if inspectReq.Level.includesDatastore() {
		info, err := n.datastoreInspection()
		if err != nil {
			return p2p.ErrorResponse(err.Error())
		}
		data.Datastore = info
	}

	if inspectReq.Level.includesMining() {
		data.Mining = &MiningInfo{IsMining: n.services != nil}
	}

	resp, err := p2p.OKResponse(data)
	if err != nil {
		return p2p.ErrorResponse(err.Error())
	}
	return resp
}

func (n *Node) datastoreInspection() (*DatastoreInfo, error) {
	repo := datastore.NewChainRepo(n.manager)
	active := n.manager.MinerActiveStore()

	tip, found, err := repo.MaxIndex(active)
	if err != nil {
		return nil, err
	}

	info := &DatastoreInfo{}
	if !found {
		return info, nil
	}

	epochsSeen := make(map[uint64]struct{})
	minersSeen := make(map[string]struct{})
	total := 0
	var tipHash string
	for index := uint64(0); index <= tip; index++ {
		blocks, err := repo.FindCanonicalByIndex(active, index)
		if err != nil {
			return nil, err
		}
		for _, block := range blocks {
			total++
			epochsSeen[block.Header.Epoch] = struct{}{}
			minersSeen[block.Data.NominatedPeerID] = struct{}{}
			if index == tip {
				tipHash = block.Header.Hash
			}
		}
	}

	info.TotalBlocks = total
	info.ChainTipHeight = &tip
	info.ChainTipHash = tipHash
	info.UniqueEpochs = len(epochsSeen)
	info.UniqueMiners = len(minersSeen)
	return info, nil
}
