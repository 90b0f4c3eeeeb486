// Package p2p wires the node's gossip topics and request/response paths
// over go-libp2p, as thin contracts the node event loop dispatches
// through rather than a full libp2p host implementation (spec.md §6;
// transport is treated as an external collaborator per spec.md §1).
// Grounded on the teacher's beacon-chain/p2p package shape — topic
// constants plus a join/subscribe/publish wrapper over
// go-libp2p-pubsub, referenced from beacon-chain/p2p/broadcaster_test.go
// and pubsub_filter_test.go.
package p2p

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p-core/host"
	"github.com/libp2p/go-libp2p-core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "p2p")

// Gossip topic names (spec.md §6 "Wire — gossip topics").
const (
	TopicMinerBlock           = "miner/block"
	TopicValidatorHeader      = "validator/header"
	TopicValidatorVote        = "validator/vote"
	TopicValidatorCertificate = "validator/certificate"
)

// Topics lists every gossip topic the node subscribes to on startup.
var Topics = []string{TopicMinerBlock, TopicValidatorHeader, TopicValidatorVote, TopicValidatorCertificate}

// IsKnownTopic reports whether topic is one of Topics.
func IsKnownTopic(topic string) bool {
	for _, t := range Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// GossipHandler processes one inbound gossip message's payload.
type GossipHandler func(from peer.ID, data []byte) error

// GossipDemuxer joins every known topic and dispatches each topic's
// incoming messages to its registered handler, running one reader
// goroutine per topic (spec.md §5 "gossip demuxer" as one of the node's
// small fixed set of long-lived tasks).
type GossipDemuxer struct {
	host   host.Host
	pubsub *pubsub.PubSub

	mu       sync.Mutex
	topics   map[string]*pubsub.Topic
	subs     map[string]*pubsub.Subscription
	handlers map[string]GossipHandler
}

func NewGossipDemuxer(h host.Host, ps *pubsub.PubSub) *GossipDemuxer {
	return &GossipDemuxer{
		host:     h,
		pubsub:   ps,
		topics:   make(map[string]*pubsub.Topic),
		subs:     make(map[string]*pubsub.Subscription),
		handlers: make(map[string]GossipHandler),
	}
}

// Handle registers handler for topic. Must be called before Start.
func (d *GossipDemuxer) Handle(topic string, handler GossipHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[topic] = handler
}

// Start joins and subscribes to every known topic, spawning a reader
// goroutine per topic that runs until ctx is cancelled.
func (d *GossipDemuxer) Start(ctx context.Context) error {
	for _, topic := range Topics {
		if err := d.join(topic); err != nil {
			return errors.Wrapf(err, "p2p: join topic %s", topic)
		}
		go d.readLoop(ctx, topic)
	}
	return nil
}

func (d *GossipDemuxer) join(topic string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.topics[topic]; ok {
		return nil
	}
	tpHandle, err := d.pubsub.Join(topic)
	if err != nil {
		return err
	}
	sub, err := tpHandle.Subscribe()
	if err != nil {
		return err
	}
	d.topics[topic] = tpHandle
	d.subs[topic] = sub
	return nil
}

func (d *GossipDemuxer) readLoop(ctx context.Context, topic string) {
	d.mu.Lock()
	sub := d.subs[topic]
	d.mu.Unlock()
	if sub == nil {
		return
	}

	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).WithField("topic", topic).Warn("gossip subscription read failed")
			return
		}
		if msg.ReceivedFrom == d.host.ID() {
			continue
		}

		d.mu.Lock()
		handler := d.handlers[topic]
		d.mu.Unlock()
		if handler == nil {
			continue
		}
		if err := handler(msg.ReceivedFrom, msg.Data); err != nil {
			log.WithError(err).WithField("topic", topic).Warn("gossip handler failed")
		}
	}
}

// Publish broadcasts data on topic, joining it first if the node hasn't
// already.
func (d *GossipDemuxer) Publish(ctx context.Context, topic string, data []byte) error {
	if err := d.join(topic); err != nil {
		return err
	}
	d.mu.Lock()
	tpHandle := d.topics[topic]
	d.mu.Unlock()
	return tpHandle.Publish(ctx, data)
}

// Close cancels every subscription and leaves every joined topic.
func (d *GossipDemuxer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for topic, sub := range d.subs {
		sub.Cancel()
		delete(d.subs, topic)
	}
	var firstErr error
	for topic, tpHandle := range d.topics {
		if err := tpHandle.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.topics, topic)
	}
	return firstErr
}
