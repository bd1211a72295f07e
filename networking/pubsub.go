package networking

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/golang/snappy"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/host"
)

// NetworkName identifies the gossip network; all interop clients use
// this regardless of protocol version (spec.md §6 "kadcast_id").
const NetworkName = "rusk-sa-0"

// Topic format: /rusk/<network>/<kind>/wire_snappy (spec.md §4.8: gossip
// topics for Candidate, ValidationVote, RatificationVote and Quorum).
var (
	CandidateTopic        = "/rusk/" + NetworkName + "/candidate/wire_snappy"
	ValidationVoteTopic   = "/rusk/" + NetworkName + "/validation_vote/wire_snappy"
	RatificationVoteTopic = "/rusk/" + NetworkName + "/ratification_vote/wire_snappy"
	QuorumTopic           = "/rusk/" + NetworkName + "/quorum/wire_snappy"
)

// seenMessagesTTL bounds gossipsub's message-id cache; it must outlive
// the longest plausible per-step timeout so retransmissions of the same
// message within one iteration are deduplicated (spec.md §4.2 adaptive
// timeouts, capped at T_max).
const seenMessagesTTL = 2 * time.Minute

// Message domains for gossipsub message ID computation.
var (
	messageDomainInvalidSnappy = [4]byte{0x00, 0x00, 0x00, 0x00}
	messageDomainValidSnappy   = [4]byte{0x01, 0x00, 0x00, 0x00}
)

// NewGossipSub creates a gossipsub instance tuned for a small validator
// set exchanging latency-sensitive consensus messages.
func NewGossipSub(ctx context.Context, h host.Host) (*pubsub.PubSub, error) {
	gsParams := pubsub.DefaultGossipSubParams()
	gsParams.D = 8
	gsParams.Dlo = 6
	gsParams.Dhi = 12
	gsParams.Dlazy = 6
	gsParams.HeartbeatInterval = 700 * time.Millisecond
	gsParams.FanoutTTL = 60 * time.Second
	gsParams.HistoryLength = 6
	gsParams.HistoryGossip = 3

	opts := []pubsub.Option{
		pubsub.WithMessageIdFn(computePubsubMessageID),
		pubsub.WithGossipSubParams(gsParams),
		pubsub.WithSeenMessagesTTL(seenMessagesTTL),
		pubsub.WithMessageSignaturePolicy(pubsub.StrictNoSign),
		pubsub.WithFloodPublish(false),
	}

	return pubsub.NewGossipSub(ctx, h, opts...)
}

// computePubsubMessageID computes the 20-byte message ID for gossipsub
// deduplication: ID = SHA256(domain ∥ len(topic) ∥ topic ∥ data)[:20].
func computePubsubMessageID(msg *pb.Message) string {
	var domain [4]byte
	var data []byte

	decoded, err := snappy.Decode(nil, msg.Data)
	if err == nil {
		domain = messageDomainValidSnappy
		data = decoded
	} else {
		domain = messageDomainInvalidSnappy
		data = msg.Data
	}

	topicBytes := []byte(msg.GetTopic())
	topicLen := make([]byte, 8)
	binary.LittleEndian.PutUint64(topicLen, uint64(len(topicBytes)))

	h := sha256.New()
	h.Write(domain[:])
	h.Write(topicLen)
	h.Write(topicBytes)
	h.Write(data)

	return string(h.Sum(nil)[:20])
}

// CompressMessage compresses data using snappy for gossip publication.
func CompressMessage(data []byte) []byte {
	return snappy.Encode(nil, data)
}

// DecompressMessage decompresses snappy-compressed gossip data.
func DecompressMessage(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}
