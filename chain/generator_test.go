package chain

import (
	"context"
	"testing"
	"time"

	"github.com/duskengine/rusk/bls"
	"github.com/duskengine/rusk/stf"
	"github.com/duskengine/rusk/types"
)

func genesisHeader(t *testing.T) types.BlockHeader {
	t.Helper()
	h := types.BlockHeader{Height: 0, Timestamp: 1000}
	return h
}

func TestGenerateCandidateExtendsParent(t *testing.T) {
	sk, err := bls.KeyGen([]byte("01234567890123456789012345678901"))
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	pool := NewFIFOPool()
	pool.Submit([]byte("tx-1"))
	gen := NewGenerator(sk, stf.NoOp{}, pool, 1_000_000)
	gen.Now = func() time.Time { return time.Unix(2000, 0) }

	prev := genesisHeader(t)
	candidate, err := gen.GenerateCandidate(context.Background(), prev, 1, 0, types.Certificate{}, nil)
	if err != nil {
		t.Fatalf("generate candidate: %v", err)
	}

	if candidate.Block.Header.Height != 1 {
		t.Fatalf("expected height 1, got %d", candidate.Block.Header.Height)
	}
	if candidate.Block.Header.PrevBlockHash != prev.Hash {
		t.Fatal("prev_block_hash must match parent hash")
	}
	if candidate.Block.Header.Timestamp != 2000 {
		t.Fatalf("expected timestamp 2000, got %d", candidate.Block.Header.Timestamp)
	}
	if len(candidate.Block.Txs) != 1 {
		t.Fatalf("expected 1 tx selected, got %d", len(candidate.Block.Txs))
	}
	if !bls.Verify(gen.Pubkey, candidate.Block.Header.Hash[:], candidate.GeneratorSignature) {
		t.Fatal("generator signature must verify over the header hash")
	}
}

func TestGenerateCandidateTimestampNeverGoesBackward(t *testing.T) {
	sk, _ := bls.KeyGen([]byte("01234567890123456789012345678901"))
	gen := NewGenerator(sk, stf.NoOp{}, NewFIFOPool(), 1_000_000)
	gen.Now = func() time.Time { return time.Unix(500, 0) }

	prev := genesisHeader(t)
	prev.Timestamp = 1000

	candidate, err := gen.GenerateCandidate(context.Background(), prev, 1, 0, types.Certificate{}, nil)
	if err != nil {
		t.Fatalf("generate candidate: %v", err)
	}
	if candidate.Block.Header.Timestamp != 1001 {
		t.Fatalf("expected clamped timestamp 1001, got %d", candidate.Block.Header.Timestamp)
	}
}

func TestFIFOPoolRespectsGasLimit(t *testing.T) {
	pool := NewFIFOPool()
	pool.Submit([]byte("aaaa"))
	pool.Submit([]byte("bbbb"))
	pool.Submit([]byte("cccc"))

	selected := pool.SelectTransactions(8)
	if len(selected) != 2 {
		t.Fatalf("expected 2 txs within budget, got %d", len(selected))
	}
	remaining := pool.SelectTransactions(4)
	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining tx, got %d", len(remaining))
	}
}
