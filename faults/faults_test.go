package faults

import (
	"testing"

	"github.com/duskengine/rusk/bls"
	"github.com/duskengine/rusk/types"
)

func TestLogDeduplicates(t *testing.T) {
	log := NewLog()
	f := types.Fault{Offender: types.BLSPubkey{1}, Round: 1, Iteration: 0, Step: types.StepValidation}
	log.ReportFault(f)
	log.ReportFault(f)
	if len(log.Pending()) != 1 {
		t.Fatalf("expected deduplication, got %d records", len(log.Pending()))
	}
}

func TestLogDrainClears(t *testing.T) {
	log := NewLog()
	log.ReportFault(types.Fault{Offender: types.BLSPubkey{1}, Round: 1})
	drained := log.Drain()
	if len(drained) != 1 {
		t.Fatalf("expected 1 drained fault, got %d", len(drained))
	}
	if len(log.Pending()) != 0 {
		t.Fatal("expected log to be empty after drain")
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	sk, err := bls.KeyGen(make([]byte, 32))
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	pk := sk.PublicKey()

	var hashA, hashB types.Hash
	hashA[0] = 1
	hashB[0] = 2

	digestA := types.StepDigest(10, 2, types.StepValidation, hashA)
	digestB := types.StepDigest(10, 2, types.StepValidation, hashB)

	f := types.Fault{
		Offender:  pk,
		Round:     10,
		Iteration: 2,
		Step:      types.StepValidation,
		EvidenceA: Evidence(hashA, bls.Sign(sk, digestA[:])),
		EvidenceB: Evidence(hashB, bls.Sign(sk, digestB[:])),
	}

	if err := Verify(f); err != nil {
		t.Fatalf("expected valid equivocation evidence, got %v", err)
	}
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	sk, err := bls.KeyGen(make([]byte, 32))
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	other, err := bls.KeyGen(append(make([]byte, 31), 1))
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}

	var hashA, hashB types.Hash
	hashA[0] = 1
	hashB[0] = 2
	digestA := types.StepDigest(10, 2, types.StepValidation, hashA)
	digestB := types.StepDigest(10, 2, types.StepValidation, hashB)

	f := types.Fault{
		Offender:  sk.PublicKey(),
		Round:     10,
		Iteration: 2,
		Step:      types.StepValidation,
		EvidenceA: Evidence(hashA, bls.Sign(other, digestA[:])),
		EvidenceB: Evidence(hashB, bls.Sign(sk, digestB[:])),
	}

	if err := Verify(f); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}
}
