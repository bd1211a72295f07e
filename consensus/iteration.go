package consensus

import (
	"context"
	"fmt"

	"github.com/duskengine/rusk/bls"
	"github.com/duskengine/rusk/faults"
	"github.com/duskengine/rusk/types"
)

// Generator produces a candidate block when this node wins the
// generator draw for an iteration (spec.md §4.4.1).
type Generator interface {
	GenerateCandidate(ctx context.Context, prev types.BlockHeader, round types.Round, iteration types.Iteration, prevCert types.Certificate, failed []types.Attestation) (types.Candidate, error)
}

// Executor dry-runs a candidate against the external state transition
// function to decide Valid vs Invalid (spec.md §4.1, §4.6). It does not
// commit anything; committing happens only after ratification quorum.
type Executor interface {
	ValidateCandidate(ctx context.Context, prev types.BlockHeader, candidate types.Candidate) error
}

// Network is the outbound boundary the iteration runner sends messages
// through (spec.md §4.8 covers the gossip mechanics; this interface is
// the seam consensus depends on, not the transport itself).
type Network interface {
	BroadcastCandidate(h types.Header, c types.Candidate)
	BroadcastVote(kind types.MessageKind, h types.Header, v types.VoteMessage)
	BroadcastQuorum(h types.Header, q types.QuorumMessage)
}

// InboundCandidate is a Candidate received from the network, paired with
// its wire header.
type InboundCandidate struct {
	Header    types.Header
	Candidate types.Candidate
}

// InboundVote is a ValidationVote or RatificationVote received from the
// network.
type InboundVote struct {
	Kind types.MessageKind
	Vote types.VoteMessage
}

// Inbox delivers network input to exactly one iteration runner at a
// time; the round coordinator owns draining stale messages between
// iterations.
type Inbox interface {
	Candidates() <-chan InboundCandidate
	ValidationVotes() <-chan InboundVote
	RatificationVotes() <-chan InboundVote
}

// FaultReporter receives equivocation evidence observed while running an
// iteration (spec.md §4.5, §9).
type FaultReporter interface {
	ReportFault(types.Fault)
}

// IterationOutcome is the result of running one iteration to completion.
type IterationOutcome struct {
	Succeeded   bool
	Block       types.Block
	Certificate types.Certificate
	// FailedAttestation is populated when the iteration concluded with a
	// quorum-backed negative result (Invalid, NoCandidate, or
	// NoQuorum): it is folded into the next accepted block's
	// FailedIterations list (spec.md §3).
	FailedAttestation *types.Attestation
}

// Params bundles the protocol constants an iteration run needs.
type Params struct {
	MaxIterations uint8
	CreditTarget  uint32
	MinimumStake  uint64
}

// Runner drives one iteration's Proposal/Validation/Ratification steps.
type Runner struct {
	Params    Params
	Generator Generator
	Executor  Executor
	Network   Network
	Inbox     Inbox
	Faults    FaultReporter
	SecretKey *bls.SecretKey
	Pubkey    types.BLSPubkey
}

// Run executes iteration i of round for the chain whose tip is prev,
// given the sortition seed and eligible provisioner set for this round.
func (r *Runner) Run(ctx context.Context, round types.Round, iteration types.Iteration, prev types.BlockHeader, prevCert types.Certificate, failed []types.Attestation, deadlines StepDeadlines, generatorPubkey types.BLSPubkey, isGenerator bool, validationCommittee, ratificationCommittee types.Committee) (IterationOutcome, error) {
	proposalHeader := types.Header{Round: round, Iteration: iteration, Step: types.StepProposal}

	var candidate types.Candidate
	haveCandidate := false

	if isGenerator {
		c, err := r.Generator.GenerateCandidate(ctx, prev, round, iteration, prevCert, failed)
		if err != nil {
			return IterationOutcome{}, fmt.Errorf("generate candidate: %w", err)
		}
		candidate = c
		haveCandidate = true
		r.Network.BroadcastCandidate(proposalHeader, candidate)
	} else {
		candidate, haveCandidate = r.awaitCandidate(ctx, proposalHeader, generatorPubkey, deadlines.Proposal)
	}

	validationHeader := types.Header{Round: round, Iteration: iteration, Step: types.StepValidation}
	validationVote := r.castValidationVote(ctx, validationHeader, prev, candidate, haveCandidate)
	validationAtt, winningValidationVote, valQuorum := r.runAggregation(ctx, validationHeader, validationCommittee, validationVote, deadlines.Validation, types.KindValidationVote, r.Inbox.ValidationVotes())

	ratificationHeader := types.Header{Round: round, Iteration: iteration, Step: types.StepRatification}
	ratificationVote := winningValidationVote
	if !valQuorum {
		ratificationVote = types.NoQuorumVote()
	}
	ratificationStepVotes, _, ratQuorum := r.runAggregation(ctx, ratificationHeader, ratificationCommittee, ratificationVote, deadlines.Ratification, types.KindRatificationVote, r.Inbox.RatificationVotes())

	att := types.Attestation{
		Result:       ratificationVote,
		Validation:   validationAtt,
		Ratification: ratificationStepVotes,
	}

	if ratQuorum && ratificationVote.Kind == types.VoteValid {
		r.Network.BroadcastQuorum(ratificationHeader, types.QuorumMessage{
			Vote:         ratificationVote,
			Validation:   validationAtt,
			Ratification: ratificationStepVotes,
		})
		return IterationOutcome{Succeeded: true, Block: candidate.Block, Certificate: att}, nil
	}

	if ratQuorum {
		return IterationOutcome{Succeeded: false, FailedAttestation: &att}, nil
	}
	return IterationOutcome{Succeeded: false}, nil
}

// StepDeadlines bundles the three per-step context.Context deadlines the
// round coordinator computed from its adaptive timers.
type StepDeadlines struct {
	Proposal     context.Context
	Validation   context.Context
	Ratification context.Context
}

func (r *Runner) awaitCandidate(ctx context.Context, header types.Header, generatorPubkey types.BLSPubkey, deadline context.Context) (types.Candidate, bool) {
	for {
		select {
		case <-deadline.Done():
			return types.Candidate{}, false
		case <-ctx.Done():
			return types.Candidate{}, false
		case in := <-r.Inbox.Candidates():
			if in.Header != header {
				continue
			}
			if in.Candidate.Block.Header.GeneratorPubkey != generatorPubkey {
				continue
			}
			if second, equivocated := r.drainEquivocatingCandidate(header, generatorPubkey, in.Candidate); equivocated {
				r.reportCandidateEquivocation(header, generatorPubkey, in.Candidate, second)
				return types.Candidate{}, false
			}
			return in.Candidate, true
		}
	}
}

// drainEquivocatingCandidate checks whatever candidates are already
// queued for this (round, iteration) from the same generator, looking
// for one whose block hash differs from first's (spec.md §4.5: "two
// distinct candidates from the same generator at (R,I): recorded as a
// fault, both dropped"). It never blocks: messages that have not
// arrived yet by the time first is read are a separate broadcast, not
// evidence of equivocation.
func (r *Runner) drainEquivocatingCandidate(header types.Header, generatorPubkey types.BLSPubkey, first types.Candidate) (types.Candidate, bool) {
	for {
		select {
		case in := <-r.Inbox.Candidates():
			if in.Header != header || in.Candidate.Block.Header.GeneratorPubkey != generatorPubkey {
				continue
			}
			if in.Candidate.Block.Header.Hash == first.Block.Header.Hash {
				continue
			}
			return in.Candidate, true
		default:
			return types.Candidate{}, false
		}
	}
}

func (r *Runner) reportCandidateEquivocation(header types.Header, generatorPubkey types.BLSPubkey, first, second types.Candidate) {
	if r.Faults == nil {
		return
	}
	r.Faults.ReportFault(types.Fault{
		Offender:  generatorPubkey,
		Round:     header.Round,
		Iteration: header.Iteration,
		Step:      header.Step,
		EvidenceA: faults.Evidence(first.Block.Header.Hash, first.GeneratorSignature),
		EvidenceB: faults.Evidence(second.Block.Header.Hash, second.GeneratorSignature),
	})
}

func (r *Runner) castValidationVote(ctx context.Context, header types.Header, prev types.BlockHeader, candidate types.Candidate, haveCandidate bool) types.Vote {
	if !haveCandidate {
		return types.NoCandidateVote()
	}
	if err := r.Executor.ValidateCandidate(ctx, prev, candidate); err != nil {
		return types.InvalidVote(candidate.Block.Header.Hash)
	}
	return types.ValidVote(candidate.Block.Header.Hash)
}

// runAggregation signs and broadcasts this node's vote (if it holds
// committee credits), then collects incoming votes until quorum or the
// step's deadline, returning the quorum-reaching StepVotes, the Vote
// variant that reached it, and whether quorum was reached at all.
func (r *Runner) runAggregation(ctx context.Context, header types.Header, committee types.Committee, vote types.Vote, deadline context.Context, kind types.MessageKind, votes <-chan InboundVote) (types.StepVotes, types.Vote, bool) {
	agg := NewAggregator(header, committee)

	if credits := committee.CreditsOf(r.Pubkey); credits > 0 {
		digest := types.StepDigest(header.Round, header.Iteration, header.Step, vote.BlockHash)
		sig := bls.Sign(r.SecretKey, digest[:])
		msg := types.VoteMessage{Header: header, Vote: vote, VoterPubkey: r.Pubkey, PartialSig: sig}
		r.Network.BroadcastVote(kind, header, msg)
		if result, sv, _ := agg.Insert(header, r.Pubkey, vote, sig); result == ResultQuorum {
			return *sv, vote, true
		}
	}

	for {
		select {
		case <-deadline.Done():
			return types.StepVotes{}, types.Vote{}, false
		case <-ctx.Done():
			return types.StepVotes{}, types.Vote{}, false
		case in := <-votes:
			if in.Kind != kind || in.Vote.Header != header {
				continue
			}
			digest := types.StepDigest(header.Round, header.Iteration, header.Step, in.Vote.Vote.BlockHash)
			if !bls.Verify(in.Vote.VoterPubkey, digest[:], in.Vote.PartialSig) {
				continue
			}
			result, sv, evidence := agg.Insert(header, in.Vote.VoterPubkey, in.Vote.Vote, in.Vote.PartialSig)
			switch result {
			case ResultQuorum:
				return *sv, in.Vote.Vote, true
			case ResultEquivocation:
				if r.Faults != nil && evidence != nil {
					r.Faults.ReportFault(types.Fault{
						Offender:  in.Vote.VoterPubkey,
						Round:     header.Round,
						Iteration: header.Iteration,
						Step:      header.Step,
						EvidenceA: faults.Evidence(evidence.PriorVote.BlockHash, evidence.PriorSig),
						EvidenceB: faults.Evidence(in.Vote.Vote.BlockHash, in.Vote.PartialSig),
					})
				}
			}
		}
	}
}
