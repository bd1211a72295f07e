package consensus

import (
	"context"
	"time"

	"github.com/duskengine/rusk/clock"
	"github.com/duskengine/rusk/provisioners"
	"github.com/duskengine/rusk/sortition"
	"github.com/duskengine/rusk/types"
)

// TimeoutConfig holds the base durations and growth ratio for the three
// per-step adaptive timers (spec.md §4.2, §6).
type TimeoutConfig struct {
	BaseProposal     time.Duration
	BaseValidation   time.Duration
	BaseRatification time.Duration
	GrowthNumerator  uint64
	GrowthDenominator uint64
	MaxTimeout       time.Duration
}

// Coordinator drives a round's iterations from 0 up to MaxIterations-1
// until one produces a Valid ratification quorum or the round is
// abandoned (spec.md §4.5).
type Coordinator struct {
	Params  Params
	Timeout TimeoutConfig
	Runner  *Runner

	proposalTimer     *clock.StepTimer
	validationTimer   *clock.StepTimer
	ratificationTimer *clock.StepTimer
}

// NewCoordinator builds a Coordinator with fresh per-step timers.
func NewCoordinator(params Params, timeout TimeoutConfig, runner *Runner) *Coordinator {
	return &Coordinator{
		Params:  params,
		Timeout: timeout,
		Runner:  runner,

		proposalTimer:     clock.NewStepTimer(timeout.BaseProposal, timeout.GrowthNumerator, timeout.GrowthDenominator, timeout.MaxTimeout),
		validationTimer:   clock.NewStepTimer(timeout.BaseValidation, timeout.GrowthNumerator, timeout.GrowthDenominator, timeout.MaxTimeout),
		ratificationTimer: clock.NewStepTimer(timeout.BaseRatification, timeout.GrowthNumerator, timeout.GrowthDenominator, timeout.MaxTimeout),
	}
}

// RoundResult is the terminal outcome of running a whole round.
type RoundResult struct {
	// Produced is true when some iteration reached ratification quorum
	// on a Valid outcome.
	Produced bool
	Block    types.Block
	Cert     types.Certificate
	// FailedIterations accumulates the quorum-backed negative
	// attestations seen before a successful iteration (or all of them,
	// if the round exhausted MaxIterations without success).
	FailedIterations []types.Attestation
}

// RunRound drives round to completion: it iterates 0..MaxIterations-1,
// re-drawing the generator and committees from seed each time, until an
// iteration succeeds or iterations are exhausted.
func (c *Coordinator) RunRound(ctx context.Context, round types.Round, prev types.BlockHeader, registry *provisioners.Registry, seed types.BLSSignature, selfPubkey types.BLSPubkey) (RoundResult, error) {
	eligible := registry.EligibleAt(round, c.Params.MinimumStake)
	var failed []types.Attestation
	var prevCert types.Certificate

	for iteration := types.Iteration(0); iteration < types.Iteration(c.Params.MaxIterations); iteration++ {
		generatorPubkey, ok := sortition.Generator(seed, round, iteration, eligible)
		if !ok {
			break
		}
		validationCommittee := sortition.ExtractCommittee(seed, round, iteration, types.StepValidation, eligible, c.Params.CreditTarget)
		ratificationCommittee := sortition.ExtractCommittee(seed, round, iteration, types.StepRatification, eligible, c.Params.CreditTarget)

		deadlines := StepDeadlines{}
		var cancelP, cancelV, cancelR context.CancelFunc
		deadlines.Proposal, cancelP = context.WithDeadline(ctx, c.proposalTimer.Deadline())
		deadlines.Validation, cancelV = context.WithDeadline(ctx, c.validationTimer.Deadline())
		deadlines.Ratification, cancelR = context.WithDeadline(ctx, c.ratificationTimer.Deadline())

		outcome, err := c.Runner.Run(ctx, round, iteration, prev, prevCert, failed, deadlines, generatorPubkey, generatorPubkey == selfPubkey, validationCommittee, ratificationCommittee)
		cancelP()
		cancelV()
		cancelR()
		if err != nil {
			return RoundResult{}, err
		}

		if outcome.Succeeded {
			c.resetTimers()
			return RoundResult{Produced: true, Block: outcome.Block, Cert: outcome.Certificate, FailedIterations: failed}, nil
		}

		if outcome.FailedAttestation != nil {
			failed = append(failed, *outcome.FailedAttestation)
			prevCert = *outcome.FailedAttestation
		}

		if ctx.Err() != nil {
			return RoundResult{}, ctx.Err()
		}
		c.growTimers()
	}

	return RoundResult{Produced: false, FailedIterations: failed}, nil
}

func (c *Coordinator) growTimers() {
	c.proposalTimer.Grow()
	c.validationTimer.Grow()
	c.ratificationTimer.Grow()
}

func (c *Coordinator) resetTimers() {
	c.proposalTimer.Reset()
	c.validationTimer.Reset()
	c.ratificationTimer.Reset()
}
