package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/duskengine/rusk/codec"
	"github.com/duskengine/rusk/consensus"
	"github.com/duskengine/rusk/forkchoice"
	"github.com/duskengine/rusk/provisioners"
	"github.com/duskengine/rusk/stf"
	"github.com/duskengine/rusk/storage"
	"github.com/duskengine/rusk/types"
)

// ErrStructuralInvariant flags a candidate that fails the fixed-shape
// checks of spec.md §3 before it ever reaches the STF.
var ErrStructuralInvariant = errors.New("chain: candidate fails structural invariants")

// EventSink receives the network-visible notifications the chain
// executor emits on block acceptance (spec.md §4.6 step 4).
type EventSink interface {
	BlockAccepted(block types.Block, cert types.Certificate)
	StateChange(hash types.Hash, label types.FinalityLabel)
}

// NoopEventSink discards every event; used where no observer is wired.
type NoopEventSink struct{}

func (NoopEventSink) BlockAccepted(types.Block, types.Certificate) {}
func (NoopEventSink) StateChange(types.Hash, types.FinalityLabel)  {}

// Executor glues the round coordinator to the external STF and to
// storage (spec.md §4.6). It implements consensus.Executor for the
// Validation sub-step's re-execution and separately owns the
// ConfirmedBlock commit path.
type Executor struct {
	STF        stf.STF
	Store      storage.Store
	ForkChoice *forkchoice.Store
	Faults     FaultDrainer
	// Registry is the live provisioner registry handle. It may be nil in
	// tests that do not exercise registry snapshotting or rollback.
	Registry *provisioners.Handle
	Events   EventSink
}

// FaultDrainer hands back pending fault-log entries to fold into the
// next accepted block (spec.md §4.5, §9).
type FaultDrainer interface {
	Drain() []types.Fault
}

var _ consensus.Executor = (*Executor)(nil)

// NewExecutor builds an Executor with the given collaborators. Events
// defaults to NoopEventSink if nil. registry may be nil, in which case
// registry snapshotting and restoration on rollback are skipped.
func NewExecutor(stfImpl stf.STF, store storage.Store, fc *forkchoice.Store, faults FaultDrainer, registry *provisioners.Handle, events EventSink) *Executor {
	if events == nil {
		events = NoopEventSink{}
	}
	return &Executor{STF: stfImpl, Store: store, ForkChoice: fc, Faults: faults, Registry: registry, Events: events}
}

// ValidateCandidate re-executes a candidate's transactions against prev
// and checks the claimed roots match (spec.md §4.4.2 step 3).
func (e *Executor) ValidateCandidate(ctx context.Context, prev types.BlockHeader, candidate types.Candidate) error {
	block := candidate.Block
	if err := checkStructural(prev, block); err != nil {
		return err
	}

	result, err := e.STF.Execute(ctx, prev.StateRoot, block.Txs)
	if err != nil {
		return fmt.Errorf("chain: validate candidate: stf execute: %w", err)
	}
	if result.StateRoot != block.Header.StateRoot {
		return fmt.Errorf("%w: state root mismatch", consensus.ErrStateMismatch)
	}
	if result.EventRoot != block.Header.EventRoot {
		return fmt.Errorf("%w: event root mismatch", consensus.ErrStateMismatch)
	}
	wantTxRoot := types.TxRoot(block.Txs)
	if wantTxRoot != block.Header.TxRoot {
		return fmt.Errorf("%w: tx root mismatch", consensus.ErrStateMismatch)
	}
	wantHash := codec.HashBlockHeader(block.Header)
	if wantHash != block.Header.Hash {
		return fmt.Errorf("%w: header hash mismatch", ErrStructuralInvariant)
	}
	return nil
}

// checkStructural enforces the fixed-shape invariants of spec.md §3
// that do not require invoking the STF: height/parent linkage and a
// timestamp that advances past the parent's. The iteration number is not
// checked here.
func checkStructural(prev types.BlockHeader, block types.Block) error {
	if block.Header.Height != prev.Height+1 {
		return fmt.Errorf("%w: height %d does not extend parent height %d", ErrStructuralInvariant, block.Header.Height, prev.Height)
	}
	if block.Header.PrevBlockHash != prev.Hash {
		return fmt.Errorf("%w: prev_block_hash does not match parent", ErrStructuralInvariant)
	}
	if block.Header.Timestamp <= prev.Timestamp {
		return fmt.Errorf("%w: timestamp does not advance", ErrStructuralInvariant)
	}
	return nil
}

// Commit implements spec.md §4.6: cheap self-skippable re-verification,
// an atomic write batch of block + certificate + fault log, fork-choice
// notification, and event emission. skipReexecution is set for
// self-produced blocks, which were already executed during generation.
func (e *Executor) Commit(ctx context.Context, prev types.BlockHeader, block types.Block, cert types.Certificate, skipReexecution bool) error {
	if !skipReexecution {
		if err := e.ValidateCandidate(ctx, prev, types.Candidate{Block: block}); err != nil {
			return err
		}
	}

	pending := e.Faults.Drain()

	batch := e.Store.NewBatch()
	batch.PutBlock(block)
	batch.PutCertificate(block.Header.Hash, cert)
	if len(pending) > 0 {
		batch.PutFaults(block.Header.Height, pending)
	}
	if e.Registry != nil {
		snapshot := codec.EncodeProvisioners(e.Registry.Current().All())
		batch.PutRegistrySnapshot(block.Header.Height, snapshot)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("%w: %v", consensus.ErrStorageFatal, err)
	}

	reorg, err := e.ForkChoice.AcceptBlock(block, cert)
	if err != nil {
		if errors.Is(err, forkchoice.ErrFinalConflict) {
			return fmt.Errorf("%w: %v", consensus.ErrFinalConflict, err)
		}
		return fmt.Errorf("chain: commit: fork choice: %w", err)
	}
	if reorg != nil {
		if err := e.applyReorg(reorg); err != nil {
			return fmt.Errorf("%w: %v", consensus.ErrStorageFatal, err)
		}
	}

	e.Events.BlockAccepted(block, cert)
	if entry, ok := e.ForkChoice.Get(block.Header.Hash); ok {
		e.Events.StateChange(block.Header.Hash, entry.Label)
	}
	return nil
}

// applyReorg reverts the storage state left behind by an abandoned
// branch and restores the provisioner registry recorded at the new
// head's height, implementing spec.md §4.7 Rollback: "reverts blocks
// above the divergence point ... restoring the state snapshots." The new
// branch's own blocks below the new head were already written by the
// Commit calls that produced them, so only the old branch's tail above
// the new head needs purging.
func (e *Executor) applyReorg(reorg *forkchoice.Reorg) error {
	if err := e.Store.DeleteAbove(reorg.NewHeadHeight); err != nil {
		return fmt.Errorf("chain: rollback: delete above %d: %w", reorg.NewHeadHeight, err)
	}
	if e.Registry == nil {
		return nil
	}

	snapshot, ok, err := e.Store.GetRegistrySnapshot(reorg.NewHeadHeight)
	if err != nil {
		return fmt.Errorf("chain: rollback: read registry snapshot at %d: %w", reorg.NewHeadHeight, err)
	}
	if !ok {
		return nil
	}
	members, err := codec.DecodeProvisioners(snapshot)
	if err != nil {
		return fmt.Errorf("chain: rollback: decode registry snapshot at %d: %w", reorg.NewHeadHeight, err)
	}
	e.Registry.Set(provisioners.New(members))
	return nil
}
