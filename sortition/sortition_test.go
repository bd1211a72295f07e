package sortition

import (
	"testing"

	"github.com/duskengine/rusk/types"
)

func prov(pk byte, stake uint64) types.Provisioner {
	var pubkey types.BLSPubkey
	pubkey[0] = pk
	return types.Provisioner{BLSPubkey: pubkey, StakeAmount: stake}
}

func testSeed() types.BLSSignature {
	var s types.BLSSignature
	for i := range s {
		s[i] = byte(i * 7)
	}
	return s
}

func TestCreditSumEqualsTarget(t *testing.T) {
	eligible := []types.Provisioner{prov(1, 500), prov(2, 300), prov(3, 200)}
	committee := ExtractCommittee(testSeed(), 42, 7, types.StepValidation, eligible, 64)
	if got := committee.TotalCredits(); got != 64 {
		t.Fatalf("expected total credits 64, got %d", got)
	}
}

func TestDeterministic(t *testing.T) {
	eligible := []types.Provisioner{prov(1, 500), prov(2, 300), prov(3, 200)}
	a := ExtractCommittee(testSeed(), 42, 7, types.StepValidation, eligible, 64)
	b := ExtractCommittee(testSeed(), 42, 7, types.StepValidation, eligible, 64)

	if len(a.Members) != len(b.Members) {
		t.Fatalf("member count differs: %d vs %d", len(a.Members), len(b.Members))
	}
	for i := range a.Members {
		if a.Members[i] != b.Members[i] {
			t.Fatalf("member %d differs: %+v vs %+v", i, a.Members[i], b.Members[i])
		}
	}
}

func TestMonopolyCase(t *testing.T) {
	eligible := []types.Provisioner{prov(1, 1_000_000)}
	committee := ExtractCommittee(testSeed(), 1, 0, types.StepRatification, eligible, 64)
	if len(committee.Members) != 1 {
		t.Fatalf("expected a single committee member, got %d", len(committee.Members))
	}
	if committee.Members[0].Credits != 64 {
		t.Fatalf("expected the sole provisioner to hold all 64 credits, got %d", committee.Members[0].Credits)
	}
}

func TestBoundaryIterations(t *testing.T) {
	eligible := []types.Provisioner{prov(1, 500), prov(2, 300), prov(3, 200)}
	for _, it := range []types.Iteration{0, 49} {
		committee := ExtractCommittee(testSeed(), 10, it, types.StepProposal, eligible, 64)
		if committee.TotalCredits() != 64 {
			t.Fatalf("iteration %d: expected 64 credits, got %d", it, committee.TotalCredits())
		}
	}
}

func TestGeneratorIsSingleCredit(t *testing.T) {
	eligible := []types.Provisioner{prov(1, 500), prov(2, 300), prov(3, 200)}
	pk, ok := Generator(testSeed(), 5, 0, eligible)
	if !ok {
		t.Fatal("expected a generator to be selected")
	}
	found := false
	for _, p := range eligible {
		if p.BLSPubkey == pk {
			found = true
		}
	}
	if !found {
		t.Fatal("generator pubkey not among eligible provisioners")
	}
}

func TestEmptyEligibleYieldsEmptyCommittee(t *testing.T) {
	committee := ExtractCommittee(testSeed(), 1, 0, types.StepValidation, nil, 64)
	if len(committee.Members) != 0 {
		t.Fatal("expected empty committee for empty eligible set")
	}
}
