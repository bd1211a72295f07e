// Package faults implements the equivocation evidence log (spec.md §4.5,
// §9, SPEC_FULL.md supplement). A Fault is self-validating: anyone
// replaying the chain can re-verify both signatures independently
// without trusting the reporting node.
package faults

import (
	"fmt"

	"github.com/duskengine/rusk/bls"
	"github.com/duskengine/rusk/types"
)

// Record pairs a Fault with the two verbatim signed messages that prove
// it, so downstream consumers (storage, the STF's slashing hook) can
// re-verify without re-deriving anything from state.
type Record struct {
	Fault       types.Fault
	OffenderKey types.BLSPubkey
}

// Log accumulates faults observed by this node until they are drained
// (spec.md §3). It is not deduplicated by
// identity beyond (offender, round, iteration, step): a second report for
// an already-logged tuple is dropped.
type Log struct {
	seen    map[key]struct{}
	records []Record
}

type key struct {
	offender  types.BLSPubkey
	round     types.Round
	iteration types.Iteration
	step      types.Step
}

// NewLog builds an empty fault log.
func NewLog() *Log {
	return &Log{seen: make(map[key]struct{})}
}

// ReportFault implements consensus.FaultReporter: it records a fault if
// it hasn't already been logged for the same (offender, round,
// iteration, step).
func (l *Log) ReportFault(f types.Fault) {
	k := key{offender: f.Offender, round: f.Round, iteration: f.Iteration, step: f.Step}
	if _, ok := l.seen[k]; ok {
		return
	}
	l.seen[k] = struct{}{}
	l.records = append(l.records, Record{Fault: f, OffenderKey: f.Offender})
}

// Pending returns every fault accumulated since the last Drain, in the
// order they were reported.
func (l *Log) Pending() []types.Fault {
	out := make([]types.Fault, len(l.records))
	for i, r := range l.records {
		out[i] = r.Fault
	}
	return out
}

// Drain returns and clears the pending faults. chain.Executor.Commit
// drains the log for every committed block and stores the entries under
// that block's height; they are not added to the block's Faults list or
// its FaultRoot.
func (l *Log) Drain() []types.Fault {
	out := l.Pending()
	l.records = nil
	return out
}

// Verify re-checks both BLS signatures embedded in a Fault's evidence
// against the offender's pubkey and the step digest for (round,
// iteration, step), confirming the offender signed both messages. It does
// not check that the two messages differ.
//
// EvidenceA and EvidenceB are expected to each be a 32-byte block hash
// the offender voted for, concatenated with the 48-byte partial
// signature over that vote's step digest (80 bytes total) — the minimal
// self-contained proof that the same key signed two different outcomes
// for one step.
func Verify(f types.Fault) error {
	if len(f.EvidenceA) != 80 || len(f.EvidenceB) != 80 {
		return fmt.Errorf("faults: evidence must be 80 bytes, got %d/%d", len(f.EvidenceA), len(f.EvidenceB))
	}

	hashA, sigA := splitEvidence(f.EvidenceA)
	hashB, sigB := splitEvidence(f.EvidenceB)

	digestA := types.StepDigest(f.Round, f.Iteration, f.Step, hashA)
	digestB := types.StepDigest(f.Round, f.Iteration, f.Step, hashB)

	if !bls.Verify(f.Offender, digestA[:], sigA) {
		return fmt.Errorf("faults: evidence A signature invalid")
	}
	if !bls.Verify(f.Offender, digestB[:], sigB) {
		return fmt.Errorf("faults: evidence B signature invalid")
	}
	return nil
}

func splitEvidence(evidence []byte) (types.Hash, types.BLSSignature) {
	var hash types.Hash
	var sig types.BLSSignature
	copy(hash[:], evidence[:32])
	copy(sig[:], evidence[32:])
	return hash, sig
}

// Evidence packs a vote's block hash and partial signature into the
// 80-byte form Verify expects, for use when constructing a Fault from an
// observed equivocating VoteMessage.
func Evidence(hash types.Hash, sig types.BLSSignature) []byte {
	out := make([]byte, 80)
	copy(out[:32], hash[:])
	copy(out[32:], sig[:])
	return out
}
