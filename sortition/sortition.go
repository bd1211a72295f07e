// Package sortition implements deterministic stake-weighted committee
// extraction (spec.md §4.3). ExtractCommittee is a pure function: the
// same (seed, round, iteration, step, eligible set, credit target)
// always yields byte-identical output on every conforming node
// (spec.md §8, scenario 6).
package sortition

import (
	"encoding/binary"

	"github.com/duskengine/rusk/types"
)

// ExtractCommittee draws creditTarget credits without replacement from
// eligible, weighted by stake, and returns the resulting Committee whose
// member credits sum to creditTarget (spec.md §4.3).
//
// eligible must already be in canonical (ascending BLSPubkey) order —
// provisioners.Registry.EligibleAt returns exactly that order.
func ExtractCommittee(seed types.BLSSignature, r types.Round, i types.Iteration, step types.Step, eligible []types.Provisioner, creditTarget uint32) types.Committee {
	if len(eligible) == 0 || creditTarget == 0 {
		return types.Committee{}
	}

	stakes := make([]uint64, len(eligible))
	var total uint64
	for idx, p := range eligible {
		stakes[idx] = p.StakeAmount
		total += p.StakeAmount
	}
	if total == 0 {
		return types.Committee{}
	}

	// One credit-worth of stake: deducting this from the winner's working
	// interval after each draw keeps any single provisioner from
	// winning unboundedly while preserving stake-weighted probability
	// (spec.md §4.3).
	creditWeight := total / uint64(creditTarget)
	if creditWeight == 0 {
		creditWeight = 1
	}

	credits := make([]uint32, len(eligible))

	for k := uint32(0); k < creditTarget; k++ {
		var winner int
		if total == 0 {
			// Stake exhausted before the target was reached (possible
			// only when creditTarget exceeds total stake expressed in
			// creditWeight units): fall back to the lowest-pubkey
			// eligible provisioner, still deterministic.
			winner = 0
		} else {
			score := drawScore(seed, r, i, step, k) % total
			winner = locate(stakes, score)
		}

		credits[winner]++

		deduction := creditWeight
		if deduction > stakes[winner] {
			deduction = stakes[winner]
		}
		stakes[winner] -= deduction
		total -= deduction
	}

	committee := types.Committee{Members: make([]types.CommitteeMember, 0, len(eligible))}
	for idx, c := range credits {
		if c == 0 {
			continue
		}
		committee.Members = append(committee.Members, types.CommitteeMember{
			Pubkey:  eligible[idx].BLSPubkey,
			Credits: c,
		})
	}
	return committee
}

// Generator returns the unique provisioner selected by a credit-1 draw
// on step_tag = Proposal for iteration i (spec.md §4.3 "The block
// generator for iteration I ...").
func Generator(seed types.BLSSignature, r types.Round, i types.Iteration, eligible []types.Provisioner) (types.BLSPubkey, bool) {
	committee := ExtractCommittee(seed, r, i, types.StepProposal, eligible, 1)
	if len(committee.Members) == 0 {
		return types.BLSPubkey{}, false
	}
	return committee.Members[0].Pubkey, true
}

// locate returns the index of the provisioner whose cumulative stake
// interval contains score. Ties on equal cumulative boundaries favor the
// lower pubkey, which canonical ascending order already guarantees by
// construction (spec.md §4.3).
func locate(stakes []uint64, score uint64) int {
	var cumulative uint64
	for idx, s := range stakes {
		cumulative += s
		if score < cumulative {
			return idx
		}
	}
	// Rounding can leave score sitting exactly on the exhausted total;
	// fall back to the last nonzero entry.
	for idx := len(stakes) - 1; idx >= 0; idx-- {
		if stakes[idx] > 0 {
			return idx
		}
	}
	return len(stakes) - 1
}

// drawScore derives the k-th pseudo-random 64-bit score for (seed, r, i,
// step): hash32(seed ∥ R ∥ I ∥ step_tag ∥ k), taking the first 8 bytes
// as a big-endian uint64 (spec.md §4.3).
func drawScore(seed types.BLSSignature, r types.Round, i types.Iteration, step types.Step, k uint32) uint64 {
	var buf [48 + 8 + 1 + 1 + 4]byte
	off := 0
	copy(buf[off:], seed[:])
	off += 48
	binary.BigEndian.PutUint64(buf[off:], uint64(r))
	off += 8
	buf[off] = byte(i)
	off++
	buf[off] = byte(step)
	off++
	binary.BigEndian.PutUint32(buf[off:], k)

	digest := types.Hash32(types.DomainStepDigest, buf[:])
	return binary.BigEndian.Uint64(digest[:8])
}
