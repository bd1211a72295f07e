package networking

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/duskengine/rusk/types"
)

func newTestPair(t *testing.T) (a, b *Service) {
	t.Helper()
	ctx := context.Background()

	hostA, err := NewHost(ctx, HostConfig{ListenAddrs: []string{"/ip4/127.0.0.1/udp/0/quic-v1"}})
	if err != nil {
		t.Fatalf("new host a: %v", err)
	}
	hostB, err := NewHost(ctx, HostConfig{ListenAddrs: []string{"/ip4/127.0.0.1/udp/0/quic-v1"}})
	if err != nil {
		t.Fatalf("new host b: %v", err)
	}

	svcA, err := NewService(ctx, ServiceConfig{Host: hostA})
	if err != nil {
		t.Fatalf("new service a: %v", err)
	}
	svcB, err := NewService(ctx, ServiceConfig{Host: hostB})
	if err != nil {
		t.Fatalf("new service b: %v", err)
	}

	addrInfo := peer.AddrInfo{ID: hostB.ID(), Addrs: hostB.Addrs()}
	if err := hostA.Connect(ctx, addrInfo); err != nil {
		t.Fatalf("connect: %v", err)
	}

	svcA.Start()
	svcB.Start()

	t.Cleanup(func() {
		svcA.Stop()
		svcB.Stop()
	})

	// Gossipsub meshes take a moment to form after dialing.
	time.Sleep(200 * time.Millisecond)

	return svcA, svcB
}

func TestBroadcastCandidateDeliversToPeer(t *testing.T) {
	a, b := newTestPair(t)

	header := types.Header{Round: 1, Iteration: 0, Step: types.StepProposal}
	candidate := types.Candidate{Block: types.Block{Header: types.BlockHeader{Height: 1}}}

	a.BroadcastCandidate(header, candidate)

	select {
	case got := <-b.Candidates():
		if got.Header.Round != header.Round {
			t.Fatalf("round mismatch: want %d got %d", header.Round, got.Header.Round)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for candidate")
	}
}

func TestBroadcastVoteRoutesToMatchingTopic(t *testing.T) {
	a, b := newTestPair(t)

	header := types.Header{Round: 2, Iteration: 0, Step: types.StepValidation}
	vote := types.VoteMessage{Header: header, Vote: types.NoCandidateVote()}

	a.BroadcastVote(types.KindValidationVote, header, vote)

	select {
	case got := <-b.ValidationVotes():
		if got.Kind != types.KindValidationVote {
			t.Fatalf("expected validation vote, got kind %d", got.Kind)
		}
	case <-b.RatificationVotes():
		t.Fatal("validation vote delivered on ratification channel")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for vote")
	}
}

func TestBroadcastQuorumDeliversToPeer(t *testing.T) {
	a, b := newTestPair(t)

	header := types.Header{Round: 3, Iteration: 0, Step: types.StepRatification}
	msg := types.QuorumMessage{Header: header, Vote: types.ValidVote(types.Hash{7})}

	a.BroadcastQuorum(header, msg)

	select {
	case got := <-b.Quorums():
		if got.Header.Round != header.Round {
			t.Fatalf("round mismatch: want %d got %d", header.Round, got.Header.Round)
		}
		if got.Message.Vote.BlockHash != msg.Vote.BlockHash {
			t.Fatal("quorum vote payload mismatch")
		}
		if got.From != a.host.ID() {
			t.Fatalf("expected quorum event from sender, got %v", got.From)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for quorum message")
	}
}

func TestPairConnectsPeer(t *testing.T) {
	a, _ := newTestPair(t)
	if a.PeerCount() == 0 {
		t.Fatal("expected at least one connected peer")
	}
}
