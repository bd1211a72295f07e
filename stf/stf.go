// Package stf defines the narrow boundary between the consensus engine
// and the external state transition function: given a pre-state root
// and an ordered transaction list, it returns the post-state root and
// event root (spec.md §4.6, "integration with an out-of-process STF").
// The VM that actually interprets transactions is out of scope (spec.md
// §1); this package only pins the interface and a trivial in-process
// implementation used for single-node development and tests.
package stf

import (
	"context"

	"github.com/duskengine/rusk/types"
)

// Result is the outcome of executing a transaction list against a
// pre-state.
type Result struct {
	StateRoot types.Hash
	EventRoot types.Hash
}

// STF executes txs against preState and must be deterministic: running
// it twice on the same (preState, txs) yields an identical Result
// (spec.md §8, "Running STF on the same pre-state and transaction list
// twice yields identical state_root, event_root, tx_root").
type STF interface {
	Execute(ctx context.Context, preState types.Hash, txs []types.Tx) (Result, error)
}

// NoOp is a trivial STF for single-node development and tests: the
// post-state root folds in the pre-state and the transaction root, and
// the event root is always empty. It performs no real execution — the
// production VM is an external collaborator per spec.md §1.
type NoOp struct{}

func (NoOp) Execute(_ context.Context, preState types.Hash, txs []types.Tx) (Result, error) {
	txRoot := types.TxRoot(txs)
	stateRoot := types.Hash32(types.DomainStateRoot, preState[:], txRoot[:])
	return Result{StateRoot: stateRoot, EventRoot: types.Hash{}}, nil
}
