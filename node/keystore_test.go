package node

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestSaveLoadConsensusKeyRoundTrip(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 32)
	path := filepath.Join(t.TempDir(), "consensus.keys")

	if err := SaveConsensusKey(path, seed, "correct horse"); err != nil {
		t.Fatalf("save: %v", err)
	}

	sk, err := LoadConsensusKey(path, "correct horse")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	pk := sk.PublicKey()
	if pk.IsZero() {
		t.Fatal("expected non-zero derived public key")
	}
}

func TestLoadConsensusKeyWrongPassword(t *testing.T) {
	seed := bytes.Repeat([]byte{0x01}, 32)
	path := filepath.Join(t.TempDir(), "consensus.keys")

	if err := SaveConsensusKey(path, seed, "correct"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := LoadConsensusKey(path, "incorrect"); err == nil {
		t.Fatal("expected error when unlocking with the wrong password")
	}
}
