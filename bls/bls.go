// Package bls wraps github.com/supranational/blst for the consensus
// engine's partial-signature scheme (spec.md §4.1). It fixes the
// "min-sig" BLS12-381 variant: public keys live in G2 (96 bytes
// compressed), signatures in G1 (48 bytes compressed) — the sizes
// spec.md §3 pins down for BLSPubkey/BLSSignature.
package bls

import (
	"errors"

	blst "github.com/supranational/blst/bindings/go"

	"github.com/duskengine/rusk/types"
)

// domainSeparationTag binds every signature to this protocol so a
// partial signature can never be replayed against a different chain.
var domainSeparationTag = []byte("RUSK-SA-BLS12381G1_XMD:SHA-256_SSWU_RO_POP_")

var (
	ErrInvalidSecretKey = errors.New("bls: invalid secret key material")
	ErrInvalidPoint     = errors.New("bls: invalid compressed point")
	ErrEmptyAggregate   = errors.New("bls: aggregate of zero signatures")
)

// SecretKey is a provisioner's consensus signing key.
type SecretKey struct {
	inner blst.SecretKey
}

// KeyGen derives a SecretKey deterministically from ikm (>= 32 bytes of
// key material), as loaded from consensus_keys_path (spec.md §6).
func KeyGen(ikm []byte) (*SecretKey, error) {
	if len(ikm) < 32 {
		return nil, ErrInvalidSecretKey
	}
	sk := &SecretKey{}
	sk.inner = *blst.KeyGen(ikm)
	return sk, nil
}

// PublicKey derives the 96-byte compressed public key for sk.
func (sk *SecretKey) PublicKey() types.BLSPubkey {
	pk := new(blst.P2Affine).From(&sk.inner)
	var out types.BLSPubkey
	copy(out[:], pk.Compress())
	return out
}

// Sign produces a deterministic 48-byte partial signature over msg
// (spec.md §4.1: sign(sk, msg) → sig48).
func Sign(sk *SecretKey, msg []byte) types.BLSSignature {
	sig := new(blst.P1Affine).Sign(&sk.inner, msg, domainSeparationTag)
	var out types.BLSSignature
	copy(out[:], sig.Compress())
	return out
}

// Verify checks a single partial signature against pk (spec.md §4.1:
// verify(pk, msg, sig) → bool).
func Verify(pk types.BLSPubkey, msg []byte, sig types.BLSSignature) bool {
	p := new(blst.P2Affine).Uncompress(pk[:])
	s := new(blst.P1Affine).Uncompress(sig[:])
	if p == nil || s == nil {
		return false
	}
	if !p.KeyValidate() {
		return false
	}
	return s.Verify(true, p, true, msg, domainSeparationTag)
}

// Aggregate combines partial signatures into one aggregate signature.
// Aggregation is associative and commutative (spec.md §4.1).
func Aggregate(sigs []types.BLSSignature) (types.BLSSignature, error) {
	if len(sigs) == 0 {
		return types.BLSSignature{}, ErrEmptyAggregate
	}
	points := make([]*blst.P1Affine, 0, len(sigs))
	for _, s := range sigs {
		p := new(blst.P1Affine).Uncompress(s[:])
		if p == nil {
			return types.BLSSignature{}, ErrInvalidPoint
		}
		points = append(points, p)
	}
	var agg blst.P1Aggregate
	if !agg.Aggregate(points, true) {
		return types.BLSSignature{}, ErrInvalidPoint
	}
	affine := agg.ToAffine()
	var out types.BLSSignature
	copy(out[:], affine.Compress())
	return out, nil
}

// VerifyAggregate checks that aggSig is the aggregate of a partial
// signature from every pubkey in pks, all over the same msg (spec.md
// §4.1: "the same msg is signed by every member").
func VerifyAggregate(pks []types.BLSPubkey, msg []byte, aggSig types.BLSSignature) bool {
	if len(pks) == 0 {
		return false
	}
	points := make([]*blst.P2Affine, 0, len(pks))
	for _, pk := range pks {
		p := new(blst.P2Affine).Uncompress(pk[:])
		if p == nil {
			return false
		}
		points = append(points, p)
	}
	var aggPk blst.P2Aggregate
	if !aggPk.Aggregate(points, true) {
		return false
	}
	pkAffine := aggPk.ToAffine()

	sig := new(blst.P1Affine).Uncompress(aggSig[:])
	if sig == nil {
		return false
	}
	return sig.Verify(true, pkAffine, true, msg, domainSeparationTag)
}
