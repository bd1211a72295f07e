package networking

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"

	"github.com/duskengine/rusk/codec"
	"github.com/duskengine/rusk/consensus"
	"github.com/duskengine/rusk/types"
)

// inboundBufferSize is the capacity of each per-kind inbound channel.
// The channels are shared by all rounds: when one is full, a newly
// arriving message is dropped, whatever its round.
const inboundBufferSize = 256

// maxPeerOffenses is the per-peer budget of structurally invalid
// messages tolerated before the peer is disconnected (spec.md §7, "peer
// offense budget").
const maxPeerOffenses = 16

// Service is the gossip transport for the consensus engine: it
// publishes outbound messages (consensus.Network) and demultiplexes
// inbound ones onto per-kind channels (consensus.Inbox).
type Service struct {
	host   host.Host
	pubsub *pubsub.PubSub
	logger *logrus.Entry

	candidateTopic   *pubsub.Topic
	candidateSub     *pubsub.Subscription
	validationTopic  *pubsub.Topic
	validationSub    *pubsub.Subscription
	ratificationTopic *pubsub.Topic
	ratificationSub  *pubsub.Subscription
	quorumTopic      *pubsub.Topic
	quorumSub        *pubsub.Subscription

	inboundCandidates    chan consensus.InboundCandidate
	inboundValidation    chan consensus.InboundVote
	inboundRatification  chan consensus.InboundVote
	inboundQuorums       chan QuorumEvent

	offenses *lru.Cache[peer.ID, int]

	failedBootnodes []peer.AddrInfo

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServiceConfig holds configuration for the networking service.
type ServiceConfig struct {
	Host      host.Host
	Bootnodes []peer.AddrInfo
	Logger    *logrus.Entry
}

// NewService creates and joins every consensus gossip topic.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	ps, err := NewGossipSub(ctx, cfg.Host)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("networking: create gossipsub: %w", err)
	}

	offenses, err := lru.New[peer.ID, int](4096)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("networking: create offense cache: %w", err)
	}

	svc := &Service{
		host:                cfg.Host,
		pubsub:              ps,
		logger:              logger,
		inboundCandidates:   make(chan consensus.InboundCandidate, inboundBufferSize),
		inboundValidation:   make(chan consensus.InboundVote, inboundBufferSize),
		inboundRatification: make(chan consensus.InboundVote, inboundBufferSize),
		inboundQuorums:      make(chan QuorumEvent, inboundBufferSize),
		offenses:            offenses,
		ctx:                 ctx,
		cancel:              cancel,
	}

	topics := []struct {
		name  string
		topic **pubsub.Topic
		sub   **pubsub.Subscription
	}{
		{CandidateTopic, &svc.candidateTopic, &svc.candidateSub},
		{ValidationVoteTopic, &svc.validationTopic, &svc.validationSub},
		{RatificationVoteTopic, &svc.ratificationTopic, &svc.ratificationSub},
		{QuorumTopic, &svc.quorumTopic, &svc.quorumSub},
	}
	for _, t := range topics {
		topic, err := ps.Join(t.name)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("networking: join topic %s: %w", t.name, err)
		}
		sub, err := topic.Subscribe()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("networking: subscribe topic %s: %w", t.name, err)
		}
		*t.topic, *t.sub = topic, sub
	}

	for _, pi := range cfg.Bootnodes {
		if err := cfg.Host.Connect(ctx, pi); err != nil {
			logger.WithField("peer", pi.ID).WithError(err).Warn("failed to connect to bootnode")
			svc.failedBootnodes = append(svc.failedBootnodes, pi)
		} else {
			logger.WithField("peer", pi.ID).Info("connected to bootnode")
		}
	}

	return svc, nil
}

// Start launches the per-topic gossip readers.
func (s *Service) Start() {
	s.wg.Add(4)
	go s.readLoop(s.candidateSub, s.handleCandidateMessage)
	go s.readLoop(s.validationSub, s.handleValidationMessage)
	go s.readLoop(s.ratificationSub, s.handleRatificationMessage)
	go s.readLoop(s.quorumSub, s.handleQuorumMessage)

	if len(s.failedBootnodes) > 0 {
		s.wg.Add(1)
		go s.retryBootnodes()
	}

	s.logger.WithFields(logrus.Fields{
		"peer_id": s.host.ID(),
		"addrs":   s.host.Addrs(),
	}).Info("networking service started")
}

// Stop cancels every reader and closes the host.
func (s *Service) Stop() {
	s.cancel()
	s.candidateSub.Cancel()
	s.validationSub.Cancel()
	s.ratificationSub.Cancel()
	s.quorumSub.Cancel()
	s.wg.Wait()
	s.host.Close()
	s.logger.Info("networking service stopped")
}

// PeerCount returns the number of connected peers.
func (s *Service) PeerCount() int {
	return len(s.host.Network().Peers())
}

// Peers returns the currently connected peer set, for recovery sync to
// pick candidates from.
func (s *Service) Peers() []peer.ID {
	return s.host.Network().Peers()
}

// QuorumEvent is an inbound Quorum message paired with the peer it
// arrived from, so a lagging node can recover the range straight from
// the peer that already has it (spec.md §4.9).
type QuorumEvent struct {
	Header  types.Header
	Message types.QuorumMessage
	From    peer.ID
}

// Quorums delivers decoded inbound Quorum messages: a node that has
// fallen behind uses the round number they carry to short-circuit
// straight to gap recovery instead of waiting out its own iteration
// timeouts (spec.md §4.9).
func (s *Service) Quorums() <-chan QuorumEvent {
	return s.inboundQuorums
}

const bootnodeRetryInterval = 30 * time.Second

func (s *Service) retryBootnodes() {
	defer s.wg.Done()
	ticker := time.NewTicker(bootnodeRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			var remaining []peer.AddrInfo
			for _, pi := range s.failedBootnodes {
				if err := s.host.Connect(s.ctx, pi); err != nil {
					remaining = append(remaining, pi)
				} else {
					s.logger.WithField("peer", pi.ID).Info("reconnected to bootnode")
				}
			}
			s.failedBootnodes = remaining
			if len(s.failedBootnodes) == 0 {
				return
			}
		}
	}
}

func (s *Service) publishOrLog(topic *pubsub.Topic, payload []byte, kind string) {
	if err := topic.Publish(s.ctx, CompressMessage(payload)); err != nil {
		s.logger.WithError(err).Warnf("publish %s failed", kind)
	}
}

func (s *Service) voteTopic(kind types.MessageKind) *pubsub.Topic {
	switch kind {
	case types.KindValidationVote:
		return s.validationTopic
	case types.KindRatificationVote:
		return s.ratificationTopic
	default:
		return nil
	}
}

// readLoop drains a subscription, skipping self-published messages and
// handing everything else to handle.
func (s *Service) readLoop(sub *pubsub.Subscription, handle func(data []byte, from peer.ID)) {
	defer s.wg.Done()
	for {
		msg, err := sub.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.WithError(err).Warn("subscription read error")
			continue
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}
		handle(msg.Data, msg.ReceivedFrom)
	}
}

// recordOffense increments a peer's offense count and disconnects it
// once the budget is exceeded (spec.md §7).
func (s *Service) recordOffense(from peer.ID, reason error) {
	count, _ := s.offenses.Get(from)
	count++
	s.offenses.Add(from, count)
	s.logger.WithFields(logrus.Fields{"peer": from, "count": count}).WithError(reason).Debug("peer offense recorded")
	if count >= maxPeerOffenses {
		s.logger.WithField("peer", from).Warn("peer exceeded offense budget, disconnecting")
		_ = s.host.Network().ClosePeer(from)
	}
}

func (s *Service) handleCandidateMessage(data []byte, from peer.ID) {
	decoded, err := DecompressMessage(data)
	if err != nil {
		s.recordOffense(from, err)
		return
	}
	header, candidate, err := codec.DecodeCandidate(decoded)
	if err != nil {
		s.recordOffense(from, err)
		return
	}
	select {
	case s.inboundCandidates <- consensus.InboundCandidate{Header: header, Candidate: candidate}:
	default:
		s.logger.Warn("candidate inbox full, dropping message")
	}
}

func (s *Service) handleValidationMessage(data []byte, from peer.ID) {
	s.handleVoteMessage(data, from, types.KindValidationVote, s.inboundValidation)
}

func (s *Service) handleRatificationMessage(data []byte, from peer.ID) {
	s.handleVoteMessage(data, from, types.KindRatificationVote, s.inboundRatification)
}

func (s *Service) handleVoteMessage(data []byte, from peer.ID, want types.MessageKind, sink chan consensus.InboundVote) {
	decoded, err := DecompressMessage(data)
	if err != nil {
		s.recordOffense(from, err)
		return
	}
	kind, _, vote, err := codec.DecodeVote(decoded)
	if err != nil {
		s.recordOffense(from, err)
		return
	}
	if kind != want {
		s.recordOffense(from, fmt.Errorf("networking: vote kind mismatch on topic"))
		return
	}
	select {
	case sink <- consensus.InboundVote{Kind: kind, Vote: vote}:
	default:
		s.logger.Warn("vote inbox full, dropping message")
	}
}

func (s *Service) handleQuorumMessage(data []byte, from peer.ID) {
	decoded, err := DecompressMessage(data)
	if err != nil {
		s.recordOffense(from, err)
		return
	}
	header, msg, err := codec.DecodeQuorum(decoded)
	if err != nil {
		s.recordOffense(from, err)
		return
	}
	// Quorum messages announce that round has a ratified result; a node
	// that is behind uses this to short-circuit straight to gap recovery
	// against from, instead of waiting out its own iteration timeouts
	// (spec.md §4.9). node.Node consumes Quorums() to drive that.
	select {
	case s.inboundQuorums <- QuorumEvent{Header: header, Message: msg, From: from}:
	default:
		s.logger.Warn("quorum inbox full, dropping message")
	}
}
