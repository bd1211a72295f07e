package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadGenesisProvisioners(t *testing.T) {
	pubkeyHex := strings.Repeat("ab", 96)
	content := "- pubkey: \"" + pubkeyHex + "\"\n  stake: 1000000000\n  owner: alice\n"
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	provisioners, err := LoadGenesisProvisioners(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(provisioners) != 1 {
		t.Fatalf("expected 1 provisioner, got %d", len(provisioners))
	}
	if provisioners[0].StakeAmount != 1_000_000_000 {
		t.Fatalf("unexpected stake: %d", provisioners[0].StakeAmount)
	}
	if provisioners[0].OwnerAddress != "alice" {
		t.Fatalf("unexpected owner: %s", provisioners[0].OwnerAddress)
	}
}

func TestLoadGenesisProvisionersRejectsBadPubkeyLength(t *testing.T) {
	content := "- pubkey: \"abcd\"\n  stake: 1\n  owner: bob\n"
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadGenesisProvisioners(path); err == nil {
		t.Fatal("expected error for short pubkey")
	}
}
