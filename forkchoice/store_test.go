package forkchoice

import (
	"testing"

	"github.com/duskengine/rusk/types"
)

func block(height types.Round, iteration types.Iteration, parent types.Hash, salt byte) types.Block {
	h := types.BlockHeader{
		Height:        height,
		PrevBlockHash: parent,
		Iteration:     iteration,
	}
	h.Hash = hashFor(height, parent, salt)
	return types.Block{Header: h}
}

func hashFor(height types.Round, parent types.Hash, salt byte) types.Hash {
	var out types.Hash
	out[0] = byte(height)
	out[1] = salt
	copy(out[2:], parent[:30])
	return out
}

func validCert() types.Certificate {
	return types.Attestation{
		Result:     types.ValidVote(types.Hash{1}),
		Validation: types.StepVotes{Bitset: 0b111},
	}
}

func TestGenesisIsFinal(t *testing.T) {
	genesis := block(0, 0, types.Hash{}, 0)
	s := NewStore(genesis, validCert())
	entry, ok := s.Get(genesis.Header.Hash)
	if !ok || entry.Label != types.LabelFinal {
		t.Fatalf("expected genesis to be Final, got %+v", entry)
	}
}

func TestAcceptBlockExtendsHead(t *testing.T) {
	genesis := block(0, 0, types.Hash{}, 0)
	s := NewStore(genesis, validCert())

	b1 := block(1, 0, genesis.Header.Hash, 1)
	if _, err := s.AcceptBlock(b1, validCert()); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if s.Head() != b1.Header.Hash {
		t.Fatalf("expected head to advance to b1, got %x", s.Head())
	}
}

func TestLowerCumulativeIterationWins(t *testing.T) {
	genesis := block(0, 0, types.Hash{}, 0)
	s := NewStore(genesis, validCert())

	heavy := block(1, 3, genesis.Header.Hash, 1) // took 3 failed iterations
	if _, err := s.AcceptBlock(heavy, validCert()); err != nil {
		t.Fatalf("accept heavy: %v", err)
	}
	light := block(1, 0, genesis.Header.Hash, 2) // succeeded on iteration 0
	reorg, err := s.AcceptBlock(light, validCert())
	if err != nil {
		t.Fatalf("accept light: %v", err)
	}

	if s.Head() != light.Header.Hash {
		t.Fatalf("expected lower cumulative iteration chain to win, head=%x", s.Head())
	}
	if reorg == nil {
		t.Fatal("expected a reorg report when the canonical tip switches sibling branches")
	}
	if reorg.DivergenceHeight != genesis.Header.Height {
		t.Fatalf("DivergenceHeight = %d, want genesis height %d", reorg.DivergenceHeight, genesis.Header.Height)
	}
	if reorg.NewHeadHeight != light.Header.Height {
		t.Fatalf("NewHeadHeight = %d, want %d", reorg.NewHeadHeight, light.Header.Height)
	}
	if len(reorg.Reverted) != 1 || reorg.Reverted[0] != heavy.Header.Hash {
		t.Fatalf("Reverted = %v, want [heavy]", reorg.Reverted)
	}
}

func TestConfirmationDepthLabels(t *testing.T) {
	genesis := block(0, 0, types.Hash{}, 0)
	s := NewStore(genesis, validCert())

	b1 := block(1, 0, genesis.Header.Hash, 1)
	if _, err := s.AcceptBlock(b1, validCert()); err != nil {
		t.Fatalf("accept b1: %v", err)
	}
	b2 := block(2, 0, b1.Header.Hash, 1)
	if _, err := s.AcceptBlock(b2, validCert()); err != nil {
		t.Fatalf("accept b2: %v", err)
	}
	b3 := block(3, 0, b2.Header.Hash, 1)
	if _, err := s.AcceptBlock(b3, validCert()); err != nil {
		t.Fatalf("accept b3: %v", err)
	}

	e1, _ := s.Get(b1.Header.Hash)
	e2, _ := s.Get(b2.Header.Hash)
	e3, _ := s.Get(b3.Header.Hash)

	if e3.Label != types.LabelAttested {
		t.Fatalf("expected head (b3) Attested, got %v", e3.Label)
	}
	if e2.Label != types.LabelConfirmed {
		t.Fatalf("expected b2 Confirmed, got %v", e2.Label)
	}
	if e1.Label != types.LabelFinal {
		t.Fatalf("expected b1 Final, got %v", e1.Label)
	}
}

func TestFinalConflictRejected(t *testing.T) {
	genesis := block(0, 0, types.Hash{}, 0)
	s := NewStore(genesis, validCert())

	b1 := block(1, 0, genesis.Header.Hash, 1)
	s.AcceptBlock(b1, validCert())
	b2 := block(2, 0, b1.Header.Hash, 1)
	s.AcceptBlock(b2, validCert())
	b3 := block(3, 0, b2.Header.Hash, 1)
	s.AcceptBlock(b3, validCert())
	// b1 is now Final. A competing chain forking below b1 must be rejected.

	// rival ties b3's cumulative iteration sum and has a lower hash, so
	// the tiebreak rule alone would prefer it as the new tip — but
	// doing so would exclude the already-Final b1, which must be
	// rejected (spec.md §7, ErrFinalConflict).
	rival := block(1, 0, genesis.Header.Hash, 99)
	_, err := s.AcceptBlock(rival, validCert())
	if err != ErrFinalConflict {
		t.Fatalf("expected ErrFinalConflict, got %v", err)
	}
	if s.Head() != b3.Header.Hash {
		t.Fatalf("expected head to remain on the final chain, got %x", s.Head())
	}
}

// TestForkReconciliationReverts models spec.md §8 scenario 4: a peer
// branch diverges below the unfinalized head, accumulates a lower
// cumulative-iteration sum, and must win with a reported Reorg whose
// Reverted list names every block the old head's branch contributed
// above the divergence point.
func TestForkReconciliationReverts(t *testing.T) {
	genesis := block(0, 0, types.Hash{}, 0)
	s := NewStore(genesis, validCert())

	a1 := block(1, 1, genesis.Header.Hash, 1)
	s.AcceptBlock(a1, validCert())
	a2 := block(2, 1, a1.Header.Hash, 1)
	if _, err := s.AcceptBlock(a2, validCert()); err != nil {
		t.Fatalf("accept a2: %v", err)
	}
	if s.Head() != a2.Header.Hash {
		t.Fatalf("expected head on branch a, got %x", s.Head())
	}

	// b1 alone already has a lower cumulative sum (0) than a2 (2), so the
	// head switches, and the reorg is reported, as soon as b1 arrives.
	b1 := block(1, 0, genesis.Header.Hash, 2)
	reorg, err := s.AcceptBlock(b1, validCert())
	if err != nil {
		t.Fatalf("accept b1: %v", err)
	}
	b2 := block(2, 0, b1.Header.Hash, 2)
	if _, err := s.AcceptBlock(b2, validCert()); err != nil {
		t.Fatalf("accept b2: %v", err)
	}

	if s.Head() != b2.Header.Hash {
		t.Fatalf("expected head to switch to the lighter branch b, got %x", s.Head())
	}
	if reorg == nil {
		t.Fatal("expected a reorg report")
	}
	if reorg.DivergenceHeight != genesis.Header.Height {
		t.Fatalf("DivergenceHeight = %d, want %d", reorg.DivergenceHeight, genesis.Header.Height)
	}
	if reorg.NewHeadHeight != b1.Header.Height {
		t.Fatalf("NewHeadHeight = %d, want %d", reorg.NewHeadHeight, b1.Header.Height)
	}
	wantReverted := []types.Hash{a2.Header.Hash, a1.Header.Hash}
	if len(reorg.Reverted) != len(wantReverted) || reorg.Reverted[0] != wantReverted[0] || reorg.Reverted[1] != wantReverted[1] {
		t.Fatalf("Reverted = %v, want %v", reorg.Reverted, wantReverted)
	}
}
