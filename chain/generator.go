// Package chain implements the consensus engine's external-facing
// pieces over a confirmed block: candidate generation (the Proposal
// sub-step's generator role, spec.md §4.4.1) and the chain executor
// that turns a ratified candidate into a persisted, fork-choice-visible
// block (spec.md §4.6).
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/duskengine/rusk/bls"
	"github.com/duskengine/rusk/codec"
	"github.com/duskengine/rusk/stf"
	"github.com/duskengine/rusk/types"
)

// TxSource selects transactions for a new candidate block up to
// gasLimit. The real mempool and its admission/ordering policy are an
// external collaborator (spec.md §1); this is the narrow seam the
// engine depends on.
type TxSource interface {
	SelectTransactions(gasLimit uint64) []types.Tx
}

// FIFOPool is a trivial in-memory TxSource used for single-node
// development and tests: transactions are served in submission order
// until gasLimit bytes of payload have been selected.
type FIFOPool struct {
	queue []types.Tx
}

// NewFIFOPool creates an empty pool.
func NewFIFOPool() *FIFOPool { return &FIFOPool{} }

// Submit appends a transaction to the back of the queue.
func (p *FIFOPool) Submit(tx types.Tx) { p.queue = append(p.queue, tx) }

// SelectTransactions drains the queue, treating gasLimit as a byte
// budget over the raw transaction payloads (gas accounting itself is
// the VM's concern, out of scope per spec.md §1).
func (p *FIFOPool) SelectTransactions(gasLimit uint64) []types.Tx {
	var selected []types.Tx
	var used uint64
	i := 0
	for ; i < len(p.queue); i++ {
		cost := uint64(len(p.queue[i]))
		if used+cost > gasLimit {
			break
		}
		selected = append(selected, p.queue[i])
		used += cost
	}
	p.queue = p.queue[i:]
	return selected
}

// Generator produces candidate blocks when this node wins the
// generator draw for an iteration, implementing consensus.Generator
// (spec.md §4.4.1).
type Generator struct {
	SecretKey *bls.SecretKey
	Pubkey    types.BLSPubkey
	STF       stf.STF
	Txs       TxSource
	GasLimit  uint64
	Now       func() time.Time
}

// NewGenerator builds a Generator bound to the local signing key.
func NewGenerator(sk *bls.SecretKey, stfImpl stf.STF, txs TxSource, gasLimit uint64) *Generator {
	return &Generator{
		SecretKey: sk,
		Pubkey:    sk.PublicKey(),
		STF:       stfImpl,
		Txs:       txs,
		GasLimit:  gasLimit,
		Now:       time.Now,
	}
}

// GenerateCandidate builds, executes and signs a candidate block for
// (round, iteration) extending prev (spec.md §4.4.1).
func (g *Generator) GenerateCandidate(ctx context.Context, prev types.BlockHeader, round types.Round, iteration types.Iteration, prevCert types.Certificate, failed []types.Attestation) (types.Candidate, error) {
	seed := bls.Sign(g.SecretKey, prev.Seed[:])

	timestamp := g.Now().Unix()
	if timestamp <= prev.Timestamp {
		timestamp = prev.Timestamp + 1
	}

	txs := g.Txs.SelectTransactions(g.GasLimit)

	result, err := g.STF.Execute(ctx, prev.StateRoot, txs)
	if err != nil {
		return types.Candidate{}, fmt.Errorf("chain: generate candidate: stf execute: %w", err)
	}

	header := types.BlockHeader{
		Height:           round,
		PrevBlockHash:    prev.Hash,
		Seed:             seed,
		StateRoot:        result.StateRoot,
		EventRoot:        result.EventRoot,
		Timestamp:        timestamp,
		GeneratorPubkey:  g.Pubkey,
		TxRoot:           types.TxRoot(txs),
		FaultRoot:        types.FaultRoot(nil),
		GasLimit:         g.GasLimit,
		Iteration:        iteration,
		PrevBlockCert:    prevCert,
		FailedIterations: failed,
	}
	header.Hash = codec.HashBlockHeader(header)

	signature := bls.Sign(g.SecretKey, header.Hash[:])

	return types.Candidate{
		Block:              types.Block{Header: header, Txs: txs},
		GeneratorSignature: signature,
	}, nil
}
