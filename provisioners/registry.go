// Package provisioners implements the deterministic provisioner registry
// (spec.md §4.2): a total order over BLS public keys, with eligibility
// and total-stake queries used by sortition.
package provisioners

import (
	"sort"
	"sync"

	"github.com/duskengine/rusk/types"
)

// Registry is a snapshot of the stake distribution at a given height. It
// is immutable once built by New or Apply, so a round that reads it at
// entry never observes later changes (spec.md §3 "Lifecycle", §5
// "Shared resources").
type Registry struct {
	// members is kept sorted by BLSPubkey ascending: the registry's
	// canonical iteration order (spec.md §4.2).
	members []types.Provisioner
}

// New builds a Registry from an unordered provisioner set, establishing
// canonical order.
func New(members []types.Provisioner) *Registry {
	cp := make([]types.Provisioner, len(members))
	copy(cp, members)
	sort.Slice(cp, func(i, j int) bool {
		return cp[i].BLSPubkey.Compare(cp[j].BLSPubkey) < 0
	})
	return &Registry{members: cp}
}

// Len returns the number of provisioners in the registry.
func (r *Registry) Len() int { return len(r.members) }

// All returns every provisioner in canonical (lexicographic pubkey)
// order. The returned slice must not be mutated by the caller.
func (r *Registry) All() []types.Provisioner { return r.members }

// Get returns the provisioner with the given pubkey, if present.
func (r *Registry) Get(pubkey types.BLSPubkey) (types.Provisioner, bool) {
	i := sort.Search(len(r.members), func(i int) bool {
		return r.members[i].BLSPubkey.Compare(pubkey) >= 0
	})
	if i < len(r.members) && r.members[i].BLSPubkey == pubkey {
		return r.members[i], true
	}
	return types.Provisioner{}, false
}

// EligibleAt returns the subset of provisioners with
// eligibility_height <= height and stake_amount >= minimumStake,
// preserving canonical order (spec.md §4.2).
func (r *Registry) EligibleAt(height types.Round, minimumStake uint64) []types.Provisioner {
	out := make([]types.Provisioner, 0, len(r.members))
	for _, p := range r.members {
		if p.EligibilityHeight <= height && p.StakeAmount >= minimumStake {
			out = append(out, p)
		}
	}
	return out
}

// TotalStake sums the stake of every eligible provisioner at height.
func (r *Registry) TotalStake(height types.Round, minimumStake uint64) uint64 {
	var total uint64
	for _, p := range r.members {
		if p.EligibilityHeight <= height && p.StakeAmount >= minimumStake {
			total += p.StakeAmount
		}
	}
	return total
}

// Apply returns a new Registry reflecting staking-contract events
// (deposits, withdrawals, slashes) applied atomically on block
// acceptance (spec.md §3 "Lifecycle"). Reads from an in-progress round
// always use the snapshot taken at round entry, never this mutated copy.
func (r *Registry) Apply(events []StakeEvent) *Registry {
	byKey := make(map[types.BLSPubkey]types.Provisioner, len(r.members))
	for _, p := range r.members {
		byKey[p.BLSPubkey] = p
	}
	for _, ev := range events {
		switch ev.Kind {
		case StakeDeposit:
			p := byKey[ev.Pubkey]
			p.BLSPubkey = ev.Pubkey
			p.StakeAmount += ev.Amount
			if p.EligibilityHeight == 0 {
				p.EligibilityHeight = ev.EligibilityHeight
			}
			p.OwnerAddress = ev.OwnerAddress
			byKey[ev.Pubkey] = p
		case StakeWithdraw, StakeSlash:
			p := byKey[ev.Pubkey]
			if ev.Amount >= p.StakeAmount {
				delete(byKey, ev.Pubkey)
				continue
			}
			p.StakeAmount -= ev.Amount
			byKey[ev.Pubkey] = p
		}
	}
	out := make([]types.Provisioner, 0, len(byKey))
	for _, p := range byKey {
		out = append(out, p)
	}
	return New(out)
}

// Handle is a concurrency-safe, swappable holder for the live
// provisioner registry. The round coordinator reads Current() once at
// round entry; fork-choice rollback (chain.Executor) calls Set to restore
// the registry recorded at the new canonical head (spec.md §3
// "Lifecycle", §4.7 Rollback). Block commitment does not call Set:
// staking events are not folded into the live registry.
type Handle struct {
	mu      sync.RWMutex
	current *Registry
}

// NewHandle wraps an initial registry in a Handle.
func NewHandle(r *Registry) *Handle {
	return &Handle{current: r}
}

// Current returns the registry presently in effect.
func (h *Handle) Current() *Registry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Set replaces the registry in effect.
func (h *Handle) Set(r *Registry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = r
}

// StakeEventKind discriminates StakeEvent variants.
type StakeEventKind uint8

const (
	StakeDeposit StakeEventKind = iota
	StakeWithdraw
	StakeSlash
)

// StakeEvent is a staking-contract event produced by the STF on block
// acceptance (spec.md §3 "Lifecycle": "Provisioner registry is updated
// atomically on block acceptance as a function of staking contract
// events").
type StakeEvent struct {
	Kind              StakeEventKind
	Pubkey            types.BLSPubkey
	Amount            uint64
	EligibilityHeight types.Round
	OwnerAddress      string
}
