package reqresp

import (
	"testing"

	"github.com/duskengine/rusk/chain"
	"github.com/duskengine/rusk/storage/memory"
	"github.com/duskengine/rusk/types"
)

func sampleHash(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	return h
}

func seedBlocks(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		block := types.Block{Header: types.BlockHeader{Height: types.Round(i), Hash: sampleHash(byte(i))}}
		if err := store.PutBlock(block); err != nil {
			t.Fatalf("put block %d: %v", i, err)
		}
		cert := types.Certificate{Result: types.ValidVote(block.Header.Hash)}
		if err := store.PutCertificate(block.Header.Hash, cert); err != nil {
			t.Fatalf("put certificate %d: %v", i, err)
		}
	}
}

func TestHandleGetBlocksReturnsRange(t *testing.T) {
	store := memory.New()
	seedBlocks(t, store, 3)

	h := NewHandler(store, chain.NewFIFOPool())
	resp, err := h.HandleGetBlocks(types.GetBlocksMessage{RequestID: 7, From: 1, To: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.RequestID != 7 {
		t.Fatalf("request id mismatch: got %d", resp.RequestID)
	}
	if len(resp.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(resp.Blocks))
	}
	for i, cb := range resp.Blocks {
		if cb.Block.Header.Height != types.Round(i+1) {
			t.Fatalf("block %d: expected height %d, got %d", i, i+1, cb.Block.Header.Height)
		}
	}
}

func TestHandleGetBlocksStopsAtGap(t *testing.T) {
	store := memory.New()
	seedBlocks(t, store, 2)

	h := NewHandler(store, chain.NewFIFOPool())
	resp, err := h.HandleGetBlocks(types.GetBlocksMessage{RequestID: 1, From: 1, To: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Blocks) != 2 {
		t.Fatalf("expected 2 blocks (stopping at the gap), got %d", len(resp.Blocks))
	}
}

func TestHandleGetBlocksRejectsOversizedRange(t *testing.T) {
	store := memory.New()
	h := NewHandler(store, chain.NewFIFOPool())

	_, err := h.HandleGetBlocks(types.GetBlocksMessage{RequestID: 1, From: 0, To: MaxBlocksPerRequest + 10})
	if err != ErrRangeTooLarge {
		t.Fatalf("expected ErrRangeTooLarge, got %v", err)
	}
}

func TestHandleGetMempoolRespectsQuota(t *testing.T) {
	pool := chain.NewFIFOPool()
	pool.Submit(types.Tx("tx-one"))
	pool.Submit(types.Tx("tx-two"))
	pool.Submit(types.Tx("tx-three"))

	h := NewHandler(memory.New(), pool)
	resp := h.HandleGetMempool(types.GetMempoolMessage{RequestID: 3, Quota: 2})
	if resp.RequestID != 3 {
		t.Fatalf("request id mismatch: got %d", resp.RequestID)
	}
	if len(resp.Txs) != 2 {
		t.Fatalf("expected quota of 2 txs, got %d", len(resp.Txs))
	}
}
