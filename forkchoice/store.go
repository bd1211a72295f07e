// Package forkchoice implements canonical-chain selection and finality
// labeling for the succinct-attestation consensus engine (spec.md §4.7).
//
// Unlike weighted-descendant fork choice, selection here is simple:
// among known chain tips, prefer the lowest cumulative sum of per-block
// Iteration numbers from genesis, breaking ties by the lower block hash.
// A lower cumulative-iteration-sum means the chain spent less time
// retrying failed iterations, which is the signal of a healthier,
// faster-converging chain.
package forkchoice

import (
	"sync"

	"github.com/duskengine/rusk/types"
)

// Entry is one block's bookkeeping inside the store.
type Entry struct {
	Block       types.Block
	Cert        types.Certificate
	Label       types.FinalityLabel
	CumulativeIteration uint64
}

// Store tracks every block accepted locally, the canonical head, and
// each block's finality label. All exported methods are safe for
// concurrent use; unexported *Locked helpers assume the caller holds mu.
type Store struct {
	mu sync.RWMutex

	blocks   map[types.Hash]*Entry
	children map[types.Hash][]types.Hash
	heights  map[types.Round][]types.Hash

	genesis types.Hash
	head    types.Hash
}

// NewStore seeds the store with the genesis block, labeled Final
// immediately since it has no alternative by construction.
func NewStore(genesis types.Block, genesisCert types.Certificate) *Store {
	hash := genesis.Header.Hash
	s := &Store{
		blocks:   make(map[types.Hash]*Entry),
		children: make(map[types.Hash][]types.Hash),
		heights:  make(map[types.Round][]types.Hash),
		genesis:  hash,
		head:     hash,
	}
	s.blocks[hash] = &Entry{Block: genesis, Cert: genesisCert, Label: types.LabelFinal, CumulativeIteration: 0}
	s.heights[genesis.Header.Height] = []types.Hash{hash}
	return s
}

// HasBlock reports whether hash is already accepted.
func (s *Store) HasBlock(hash types.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[hash]
	return ok
}

// Get returns the stored entry for hash.
func (s *Store) Get(hash types.Hash) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.blocks[hash]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Head returns the current canonical tip's hash.
func (s *Store) Head() types.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head
}

// HeadEntry returns the current canonical tip's full entry.
func (s *Store) HeadEntry() Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.blocks[s.head]
}

// Reorg describes a canonical-head change that abandons one or more
// previously-canonical blocks in favor of a heavier sibling branch
// (spec.md §4.7 Rollback, §8 scenario 4 "Fork reconciliation"). Callers
// must revert any storage state recorded above DivergenceHeight and
// replay forward from there.
type Reorg struct {
	DivergenceHeight types.Round
	NewHeadHeight    types.Round
	// Reverted lists the abandoned chain's blocks from the old head down
	// to (but not including) the divergence point, highest first.
	Reverted []types.Hash
}

// AcceptBlock adds a new block with its certificate to the store,
// reselects the canonical head, and recomputes finality labels along
// the new canonical chain. cert is not verified here, and neither
// chain.Executor.Commit nor the node's startup replay checks its
// aggregate signatures before passing it in; it may be the empty
// Attestation if this block is being tracked before its certificate is
// known.
//
// A non-nil Reorg is returned whenever the reselected head is not a
// descendant of the previous head: the caller (chain.Executor) must
// revert and replay storage state above the divergence point (spec.md
// §4.7).
func (s *Store) AcceptBlock(block types.Block, cert types.Certificate) (*Reorg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := block.Header.Hash
	if _, exists := s.blocks[hash]; exists {
		return nil, ErrAlreadyKnown
	}

	parent, ok := s.blocks[block.Header.PrevBlockHash]
	if !ok {
		return nil, ErrUnknownParent
	}
	if block.Header.Height != parent.Block.Header.Height+1 {
		return nil, ErrHeightMismatch
	}

	label := types.LabelAccepted
	if !cert.IsEmpty() {
		label = types.LabelAttested
	}

	entry := &Entry{
		Block:               block,
		Cert:                cert,
		Label:               label,
		CumulativeIteration: parent.CumulativeIteration + uint64(block.Header.Iteration),
	}
	s.blocks[hash] = entry
	s.children[block.Header.PrevBlockHash] = append(s.children[block.Header.PrevBlockHash], hash)
	s.heights[block.Header.Height] = append(s.heights[block.Header.Height], hash)

	return s.recomputeHeadLocked()
}

// tips returns every block hash with no recorded children.
func (s *Store) tipsLocked() []types.Hash {
	var tips []types.Hash
	for hash := range s.blocks {
		if len(s.children[hash]) == 0 {
			tips = append(tips, hash)
		}
	}
	return tips
}

// recomputeHeadLocked reselects the canonical tip, relabels the chain
// from genesis to it, and reports a Reorg if the new tip abandons the
// previous head's branch (spec.md §4.7).
func (s *Store) recomputeHeadLocked() (*Reorg, error) {
	tips := s.tipsLocked()
	if len(tips) == 0 {
		return nil, nil
	}

	best := tips[0]
	bestEntry := s.blocks[best]
	for _, hash := range tips[1:] {
		entry := s.blocks[hash]
		if isBetterTip(entry, hash, bestEntry, best) {
			best, bestEntry = hash, entry
		}
	}

	var reorg *Reorg
	if best != s.head {
		if err := s.checkNoFinalConflictLocked(best); err != nil {
			return nil, err
		}
		reorg = s.buildReorgLocked(s.head, best)
		s.head = best
	}

	s.relabelChainLocked()
	return reorg, nil
}

// buildReorgLocked reports how the canonical chain changed from oldHead
// to newHead, or nil if newHead simply extends oldHead's branch.
func (s *Store) buildReorgLocked(oldHead, newHead types.Hash) *Reorg {
	if oldHead == newHead {
		return nil
	}

	onNewChain := make(map[types.Hash]struct{})
	for h := newHead; ; {
		onNewChain[h] = struct{}{}
		if h == s.genesis {
			break
		}
		h = s.blocks[h].Block.Header.PrevBlockHash
	}

	if _, ok := onNewChain[oldHead]; ok {
		// oldHead is an ancestor of newHead: a plain extension, not a reorg.
		return nil
	}

	var reverted []types.Hash
	h := oldHead
	for {
		if _, ok := onNewChain[h]; ok {
			break
		}
		reverted = append(reverted, h)
		if h == s.genesis {
			break
		}
		h = s.blocks[h].Block.Header.PrevBlockHash
	}

	return &Reorg{
		DivergenceHeight: s.blocks[h].Block.Header.Height,
		NewHeadHeight:    s.blocks[newHead].Block.Header.Height,
		Reverted:         reverted,
	}
}

// isBetterTip implements the tip-selection rule: lower cumulative
// iteration sum wins; ties break toward the lower block hash.
func isBetterTip(candidate *Entry, candidateHash types.Hash, current *Entry, currentHash types.Hash) bool {
	if candidate.CumulativeIteration != current.CumulativeIteration {
		return candidate.CumulativeIteration < current.CumulativeIteration
	}
	return candidateHash.Compare(currentHash) < 0
}

// checkNoFinalConflictLocked refuses a head change that would exclude an
// already-Final block from the canonical chain (spec.md §7,
// ErrFinalConflict is fatal).
func (s *Store) checkNoFinalConflictLocked(newHead types.Hash) error {
	onNewChain := make(map[types.Hash]struct{})
	for h := newHead; ; {
		onNewChain[h] = struct{}{}
		if h == s.genesis {
			break
		}
		h = s.blocks[h].Block.Header.PrevBlockHash
	}

	for h := s.head; ; {
		entry := s.blocks[h]
		if entry.Label == types.LabelFinal {
			if _, ok := onNewChain[h]; !ok {
				return ErrFinalConflict
			}
		}
		if h == s.genesis {
			break
		}
		h = entry.Block.Header.PrevBlockHash
	}
	return nil
}

// relabelChainLocked walks the canonical chain from head back to
// genesis, assigning labels by confirmation depth: the head is Attested
// once it carries a valid certificate, its parent becomes Confirmed, and
// every ancestor two or more blocks back becomes Final (spec.md §3's
// two-block confirmation depth).
func (s *Store) relabelChainLocked() {
	depth := 0
	for h := s.head; ; {
		entry := s.blocks[h]
		switch {
		case depth == 0:
			if !entry.Cert.IsEmpty() {
				entry.Label = types.LabelAttested
			}
		case depth == 1:
			if entry.Label != types.LabelFinal {
				entry.Label = types.LabelConfirmed
			}
		default:
			entry.Label = types.LabelFinal
		}
		if h == s.genesis {
			break
		}
		h = entry.Block.Header.PrevBlockHash
		depth++
	}
}
