// Package reqresp implements the request/response protocols used for gap
// recovery and mempool relay (spec.md §4.9, §6): GetBlocks/Blocks and
// GetMempool/Mempool.
package reqresp

import (
	"fmt"

	"github.com/duskengine/rusk/types"
)

const (
	GetBlocksProtocolV1  = "/rusk/sa/0/req/get_blocks/1"
	GetMempoolProtocolV1 = "/rusk/sa/0/req/get_mempool/1"
)

// BlockStore is the read surface a GetBlocks handler needs. Satisfied by
// storage.Store without modification.
type BlockStore interface {
	GetBlockByHeight(height types.Round) (types.Block, bool, error)
	GetCertificate(hash types.Hash) (types.Certificate, bool, error)
}

// MempoolSource is the read surface a GetMempool handler needs.
// Satisfied by chain.FIFOPool without modification.
type MempoolSource interface {
	SelectTransactions(gasLimit uint64) []types.Tx
}

// mempoolGasBudget is a generous per-request byte budget; it only bounds
// how much of the pool one request can drain, not protocol gas.
const mempoolGasBudget = 4 << 20

// Handler answers GetBlocks and GetMempool requests.
type Handler struct {
	store   BlockStore
	mempool MempoolSource
}

// NewHandler creates a request/response handler.
func NewHandler(store BlockStore, mempool MempoolSource) *Handler {
	return &Handler{store: store, mempool: mempool}
}

// HandleGetBlocks serves a contiguous range of confirmed blocks, each
// paired with its certificate (spec.md §4.9). A range longer than
// MaxBlocksPerRequest is rejected with ErrRangeTooLarge.
func (h *Handler) HandleGetBlocks(req types.GetBlocksMessage) (types.BlocksMessage, error) {
	if req.To < req.From {
		return types.BlocksMessage{}, fmt.Errorf("reqresp: get blocks: to %d before from %d", req.To, req.From)
	}
	if uint64(req.To-req.From)+1 > MaxBlocksPerRequest {
		return types.BlocksMessage{}, ErrRangeTooLarge
	}

	resp := types.BlocksMessage{RequestID: req.RequestID}
	for height := req.From; height <= req.To; height++ {
		block, ok, err := h.store.GetBlockByHeight(height)
		if err != nil {
			return types.BlocksMessage{}, fmt.Errorf("reqresp: get blocks: height %d: %w", height, err)
		}
		if !ok {
			break
		}
		cert, ok, err := h.store.GetCertificate(block.Header.Hash)
		if err != nil {
			return types.BlocksMessage{}, fmt.Errorf("reqresp: get blocks: certificate for %d: %w", height, err)
		}
		if !ok {
			break
		}
		resp.Blocks = append(resp.Blocks, types.ConfirmedBlock{Block: block, Certificate: cert})
	}
	return resp, nil
}

// HandleGetMempool serves up to Quota pending transactions from the
// local mempool (spec.md §6 "GetMempool/Mempool").
func (h *Handler) HandleGetMempool(req types.GetMempoolMessage) types.MempoolMessage {
	txs := h.mempool.SelectTransactions(mempoolGasBudget)
	if uint32(len(txs)) > req.Quota {
		txs = txs[:req.Quota]
	}
	return types.MempoolMessage{RequestID: req.RequestID, Txs: txs}
}
