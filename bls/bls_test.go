package bls

import (
	"bytes"
	"testing"

	"github.com/duskengine/rusk/types"
)

func mustKey(t *testing.T, seed byte) *SecretKey {
	t.Helper()
	ikm := bytes.Repeat([]byte{seed}, 32)
	sk, err := KeyGen(ikm)
	if err != nil {
		t.Fatalf("KeyGen: %v", err)
	}
	return sk
}

func TestSignVerifyRoundTrip(t *testing.T) {
	sk := mustKey(t, 1)
	msg := []byte("round=1 iteration=0 step=validation")

	sig := Sign(sk, msg)
	if !Verify(sk.PublicKey(), msg, sig) {
		t.Fatal("expected signature to verify")
	}
	if Verify(sk.PublicKey(), []byte("different message"), sig) {
		t.Fatal("signature verified against wrong message")
	}
}

func TestAggregateAndVerifyAggregate(t *testing.T) {
	msg := []byte("step digest")

	n := 5
	keys := make([]*SecretKey, n)
	pks := make([]types.BLSPubkey, n)
	sigs := make([]types.BLSSignature, n)
	for i := 0; i < n; i++ {
		keys[i] = mustKey(t, byte(i+10))
		pks[i] = keys[i].PublicKey()
		sigs[i] = Sign(keys[i], msg)
	}

	agg, err := Aggregate(sigs)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !VerifyAggregate(pks, msg, agg) {
		t.Fatal("expected aggregate signature to verify")
	}

	if VerifyAggregate(pks[:n-1], msg, agg) {
		t.Fatal("aggregate verified against an incomplete pubkey set")
	}
}

func TestAggregateEmpty(t *testing.T) {
	if _, err := Aggregate(nil); err != ErrEmptyAggregate {
		t.Fatalf("expected ErrEmptyAggregate, got %v", err)
	}
}
