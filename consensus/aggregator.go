// Package consensus implements the per-iteration Proposal/Validation/
// Ratification state machine, the quorum aggregator, and the round
// coordinator that drives them (spec.md §4.4, §4.4.4, §4.5).
package consensus

import (
	"fmt"

	"github.com/duskengine/rusk/bls"
	"github.com/duskengine/rusk/types"
)

// InsertResult reports the outcome of feeding one vote into an Aggregator
// (spec.md §4.4.4).
type InsertResult uint8

const (
	ResultPending InsertResult = iota
	ResultQuorum
	ResultDuplicate
	ResultNotInCommittee
	ResultWrongStep
	ResultEquivocation
)

func (r InsertResult) String() string {
	switch r {
	case ResultPending:
		return "pending"
	case ResultQuorum:
		return "quorum"
	case ResultDuplicate:
		return "duplicate"
	case ResultNotInCommittee:
		return "not_in_committee"
	case ResultWrongStep:
		return "wrong_step"
	case ResultEquivocation:
		return "equivocation"
	default:
		return "unknown"
	}
}

type voteBucket struct {
	bitset  uint64
	sigs    []types.BLSSignature
	credits uint32
}

// EquivocationEvidence carries the first vote+signature a provisioner
// cast for this (round, iteration, step), returned alongside
// ResultEquivocation so the caller can pair it with the conflicting
// second vote to build a faults.Record.
type EquivocationEvidence struct {
	PriorVote types.Vote
	PriorSig  types.BLSSignature
}

// Aggregator accumulates partial signatures toward quorum for exactly one
// (round, iteration, step). It groups contributions by the distinct Vote
// value cast, since quorum is reached on agreement about one outcome, not
// merely on participation (spec.md §4.4.4).
type Aggregator struct {
	header    types.Header
	committee types.Committee
	threshold uint32

	buckets map[types.Vote]*voteBucket
	voted   map[types.BLSPubkey]types.Vote
	voteSig map[types.BLSPubkey]types.BLSSignature
}

// NewAggregator builds an Aggregator scoped to header and committee. The
// quorum threshold is a 2/3-of-credits supermajority, rounded up
// (spec.md §4.4.4).
func NewAggregator(header types.Header, committee types.Committee) *Aggregator {
	total := committee.TotalCredits()
	threshold := uint32((uint64(total)*2 + 2) / 3)
	return &Aggregator{
		header:    header,
		committee: committee,
		threshold: threshold,
		buckets:   make(map[types.Vote]*voteBucket),
		voted:     make(map[types.BLSPubkey]types.Vote),
		voteSig:   make(map[types.BLSPubkey]types.BLSSignature),
	}
}

// Insert feeds one committee member's partial signature over vote into
// the aggregator. The caller must have already verified the signature
// with bls.Verify against the step digest; Insert only tracks
// bookkeeping (membership, duplication, quorum), per spec.md §4.4.4's
// Insert contract.
func (a *Aggregator) Insert(header types.Header, voter types.BLSPubkey, vote types.Vote, partialSig types.BLSSignature) (InsertResult, *types.StepVotes, *EquivocationEvidence) {
	if header != a.header {
		return ResultWrongStep, nil, nil
	}

	credits := a.committee.CreditsOf(voter)
	if credits == 0 {
		return ResultNotInCommittee, nil, nil
	}

	if prior, seen := a.voted[voter]; seen {
		if prior.Equal(vote) {
			return ResultDuplicate, nil, nil
		}
		return ResultEquivocation, nil, &EquivocationEvidence{PriorVote: prior, PriorSig: a.voteSig[voter]}
	}
	a.voted[voter] = vote
	a.voteSig[voter] = partialSig

	bucket, ok := a.buckets[vote]
	if !ok {
		bucket = &voteBucket{}
		a.buckets[vote] = bucket
	}

	idx := a.committee.IndexOf(voter)
	if idx >= 0 && idx < 64 {
		bucket.bitset |= 1 << uint(idx)
	}
	bucket.sigs = append(bucket.sigs, partialSig)
	bucket.credits += credits

	if bucket.credits < a.threshold {
		return ResultPending, nil, nil
	}

	agg, err := bls.Aggregate(bucket.sigs)
	if err != nil {
		return ResultPending, nil, nil
	}
	return ResultQuorum, &types.StepVotes{Bitset: bucket.bitset, Aggregate: agg}, nil
}

// Threshold returns the credit total required to reach quorum.
func (a *Aggregator) Threshold() uint32 {
	return a.threshold
}

// BestVote returns the Vote currently holding the most accumulated
// credits and how many it holds, useful for diagnostics and logging.
func (a *Aggregator) BestVote() (types.Vote, uint32) {
	var best types.Vote
	var bestCredits uint32
	for vote, bucket := range a.buckets {
		if bucket.credits > bestCredits {
			best = vote
			bestCredits = bucket.credits
		}
	}
	return best, bestCredits
}

func (a *Aggregator) String() string {
	return fmt.Sprintf("aggregator(round=%d iteration=%d step=%s threshold=%d)", a.header.Round, a.header.Iteration, a.header.Step, a.threshold)
}
