package networking

import (
	"github.com/duskengine/rusk/codec"
	"github.com/duskengine/rusk/consensus"
	"github.com/duskengine/rusk/types"
)

var (
	_ consensus.Network = (*Service)(nil)
	_ consensus.Inbox   = (*Service)(nil)
)

// BroadcastCandidate publishes a signed candidate on the candidate
// gossip topic (spec.md §4.4.1).
func (s *Service) BroadcastCandidate(h types.Header, c types.Candidate) {
	s.publishOrLog(s.candidateTopic, codec.EncodeCandidate(h, c), "candidate")
}

// BroadcastVote publishes a Validation or Ratification vote on its
// matching gossip topic (spec.md §4.4.2, §4.4.3).
func (s *Service) BroadcastVote(kind types.MessageKind, h types.Header, v types.VoteMessage) {
	topic := s.voteTopic(kind)
	if topic == nil {
		s.logger.Warnf("broadcast vote: unexpected kind %d", kind)
		return
	}
	s.publishOrLog(topic, codec.EncodeVote(kind, h, v), "vote")
}

// BroadcastQuorum publishes an aggregated quorum attestation (spec.md
// §4.4.2 "broadcast as an aggregated attestation").
func (s *Service) BroadcastQuorum(h types.Header, q types.QuorumMessage) {
	s.publishOrLog(s.quorumTopic, codec.EncodeQuorum(h, q), "quorum")
}

// Candidates implements consensus.Inbox.
func (s *Service) Candidates() <-chan consensus.InboundCandidate { return s.inboundCandidates }

// ValidationVotes implements consensus.Inbox.
func (s *Service) ValidationVotes() <-chan consensus.InboundVote { return s.inboundValidation }

// RatificationVotes implements consensus.Inbox.
func (s *Service) RatificationVotes() <-chan consensus.InboundVote { return s.inboundRatification }
