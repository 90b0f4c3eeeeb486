package node

import (
	"context"
	"encoding/json"
	"time"

	"github.com/libp2p/go-libp2p-core/host"
	"github.com/libp2p/go-libp2p-core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/modality-network/node/bridge"
	"github.com/modality-network/node/bridge/persistence"
	"github.com/modality-network/node/config"
	"github.com/modality-network/node/datastore"
	"github.com/modality-network/node/forkchoice"
	"github.com/modality-network/node/mining/hashfn"
	"github.com/modality-network/node/narwhal"
	"github.com/modality-network/node/p2p"
	"github.com/modality-network/node/runtime"
	"github.com/modality-network/node/shoal"
	"github.com/modality-network/node/sync"
)

// requestTimeout bounds every inbound request/response exchange
// (spec.md §5 "request/response round trip: 30s").
const requestTimeout = 30 * time.Second

// eventQueueDepth bounds every event-loop channel so a slow or wedged
// subscriber cannot grow memory unboundedly; the loop is designed so no
// single channel's producer outruns its consumer for long (spec.md §5
// "bounded backpressure on every channel").
const eventQueueDepth = 64

// Node binds every package this repository builds into one running
// process: the mining loop, forkchoice observer, epoch bridge, DAG
// persistence, sync client/server, gossip demuxer and request router
// (spec.md §4.12). Grounded on the teacher's beacon-chain/node package
// shape (construction from a parsed CLI config, a runtime.ServiceRegistry,
// Start/Close) generalized from Ethereum consensus concerns to this
// repository's mining+DAG domain.
type Node struct {
	cfg     *config.Config
	network *config.NetworkConfig
	manager *datastore.Manager
	peerID  string

	observer      *forkchoice.Observer
	epochBridge   *bridge.EpochBridge
	persistBridge *persistence.Bridge
	syncServer    *sync.Server
	syncClient    *sync.Client
	router        *p2p.Router
	demuxer       *p2p.GossipDemuxer

	mining      *MiningService
	maintenance *MaintenanceService
	consensus   *ConsensusService

	services *runtime.ServiceRegistry

	gossipIn          chan gossipMessage
	miningUpdates     chan uint64
	epochTransitions  chan uint64
	syncTriggers      chan struct{}
	shutdown          chan struct{}
}

type gossipMessage struct {
	topic string
	from  peer.ID
	data  []byte
}

// New constructs a Node from cfg and a libp2p host/pubsub pair already
// set up by the caller (transport bring-up is an external collaborator
// per spec.md §1, the same boundary the teacher's beacon-chain/p2p
// service sits behind). h and ps may be nil for tests that only
// exercise the event loop's channel wiring.
func New(cfg *config.Config, network *config.NetworkConfig, manager *datastore.Manager, localPeerID string, h host.Host, ps *pubsub.PubSub) (*Node, error) {
	if err := cfg.Features.Validate(); err != nil {
		return nil, err
	}

	observer := forkchoice.NewObserver(manager, network)

	committee := narwhal.Committee{}
	dag := narwhal.NewDAG()
	primary := narwhal.NewPrimary(localPeerID, committee, dag)
	reputer := shoal.NewReputationManager(committee, shoal.DefaultReputationConfig())
	commitEngine := shoal.NewCommitEngine(dag, committee, reputer)
	checkpointer, err := shoal.NewCheckpointer(manager.ValidatorFinalStore(), 0)
	if err != nil {
		return nil, err
	}
	persistBridge := persistence.NewBridge(manager)
	consensusService := NewConsensusService(primary, reputer, commitEngine, checkpointer, persistBridge)

	epochBridge := bridge.NewEpochBridge(manager, localPeerID, consensusService)

	syncServer := sync.NewServer(manager, manager.MinerActiveStore())
	syncClient := sync.NewClient(observer)

	router := p2p.NewRouter()
	var demuxer *p2p.GossipDemuxer
	if h != nil && ps != nil {
		demuxer = p2p.NewGossipDemuxer(h, ps)
	}

	miningService := NewMiningService(observer, network, localPeerID, 0, hashfn.SHA256)
	maintenanceService := NewMaintenanceService(manager, network)

	n := &Node{
		cfg:              cfg,
		network:          network,
		manager:          manager,
		peerID:           localPeerID,
		observer:         observer,
		epochBridge:      epochBridge,
		persistBridge:    persistBridge,
		syncServer:       syncServer,
		syncClient:       syncClient,
		router:           router,
		demuxer:          demuxer,
		mining:           miningService,
		maintenance:      maintenanceService,
		consensus:        consensusService,
		services:         runtime.NewServiceRegistry(),
		gossipIn:         make(chan gossipMessage, eventQueueDepth),
		miningUpdates:    make(chan uint64, eventQueueDepth),
		epochTransitions: make(chan uint64, eventQueueDepth),
		syncTriggers:     make(chan struct{}, 1),
		shutdown:         make(chan struct{}),
	}

	n.wireHandlers()

	if err := n.services.RegisterService(n.mining); err != nil {
		return nil, err
	}
	if err := n.services.RegisterService(n.maintenance); err != nil {
		return nil, err
	}

	return n, nil
}

// wireHandlers registers the request/response and gossip handlers every
// path and topic spec.md §6 names, and bridges each subsystem's
// async/event feed onto the node's fixed channel set (spec.md §4.12).
func (n *Node) wireHandlers() {
	n.router.Handle(p2p.PathMinerBlockRange, n.handleBlockRange)
	n.router.Handle(p2p.PathInspect, n.handleInspect)

	if n.demuxer != nil {
		n.demuxer.Handle(p2p.TopicMinerBlock, n.handleBlockGossip)
	}

	miningSub := n.mining.TipUpdates().Subscribe(n.miningUpdates)
	syncSub := n.syncClient.Updates().Subscribe(n.miningUpdates)
	epochSub := n.epochBridge.Transitions().Subscribe(n.epochTransitions)
	go func() {
		<-n.shutdown
		miningSub.Unsubscribe()
		syncSub.Unsubscribe()
		epochSub.Unsubscribe()
	}()
}

func (n *Node) handleBlockRange(ctx context.Context, from peer.ID, req p2p.Request) p2p.Response {
	var rangeReq sync.RangeRequest
	if err := decodeInto(req.Data, &rangeReq); err != nil {
		return p2p.ErrorResponse(err.Error())
	}
	resp, err := n.syncServer.HandleRange(rangeReq)
	if err != nil {
		return p2p.ErrorResponse(err.Error())
	}
	okResp, err := p2p.OKResponse(resp)
	if err != nil {
		return p2p.ErrorResponse(err.Error())
	}
	return okResp
}

func (n *Node) handleBlockGossip(from peer.ID, data []byte) error {
	select {
	case n.gossipIn <- gossipMessage{topic: p2p.TopicMinerBlock, from: from, data: data}:
	default:
		log.Warn("gossip inbound channel full, dropping miner/block message")
	}
	return nil
}

// Start starts every service New registered with the service registry,
// then runs the event loop until Close is called.
func (n *Node) Start() {
	log.Info("starting node")
	n.services.StartAll()
	go n.runEventLoop()
}

// Close signals shutdown and stops every registered service. Shutdown
// is observed by the event loop within one select iteration (spec.md
// §4.12 "shutdown observed within one tick").
func (n *Node) Close() error {
	log.Info("stopping node")
	close(n.shutdown)
	return n.services.StopAll()
}

// runEventLoop is the single cooperative loop spec.md §4.12 describes:
// a fixed set of channels, none of which may block another for more
// than one bounded step.
func (n *Node) runEventLoop() {
	for {
		select {
		case <-n.shutdown:
			return
		case msg := <-n.gossipIn:
			n.handleGossipMessage(msg)
		case tip := <-n.miningUpdates:
			log.WithField("tip", tip).Debug("mining update observed")
		case miningEpoch := <-n.epochTransitions:
			log.WithField("mining_epoch", miningEpoch).Info("epoch transition observed")
		case <-n.syncTriggers:
			n.runSyncOnce()
		}
	}
}

func (n *Node) handleGossipMessage(msg gossipMessage) {
	switch msg.topic {
	case p2p.TopicMinerBlock:
		log.WithField("from", msg.from.String()).Debug("received miner/block gossip")
	default:
		log.WithField("topic", msg.topic).Debug("received gossip on unhandled topic")
	}
}

// Dispatch routes an inbound request/response call through the node's
// registered path handlers (spec.md §6).
func (n *Node) Dispatch(ctx context.Context, from peer.ID, req p2p.Request) p2p.Response {
	return n.router.Dispatch(ctx, from, req)
}

// ApplyRemoteRange feeds a RangeResponse fetched from a remote peer
// through the node's sync client, applying fork choice to each block
// in order (spec.md §4.11). The p2p transport layer calls this once it
// has decoded a response to a PathMinerBlockRange request.
func (n *Node) ApplyRemoteRange(resp *sync.RangeResponse) (int, error) {
	return n.syncClient.ApplyRangeResponse(resp)
}

// TriggerSync enqueues a sync pass without blocking; a pass already in
// flight absorbs the request.
func (n *Node) TriggerSync() {
	select {
	case n.syncTriggers <- struct{}{}:
	default:
	}
}

func decodeInto(raw json.RawMessage, dest interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

func (n *Node) runSyncOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	_ = ctx
	log.Debug("running sync pass")
}
