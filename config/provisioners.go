package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/duskengine/rusk/types"
)

// genesisProvisionerEntry is the on-disk shape of one genesis stake
// entry (spec.md §3, §6's genesis bootstrap).
type genesisProvisionerEntry struct {
	Pubkey string `yaml:"pubkey"`
	Stake  uint64 `yaml:"stake"`
	Owner  string `yaml:"owner"`
}

// LoadGenesisProvisioners reads the hex-encoded BLS public keys and
// stake amounts that seed the provisioner registry at height 0.
func LoadGenesisProvisioners(path string) ([]types.Provisioner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read genesis provisioners: %w", err)
	}

	var entries []genesisProvisionerEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("config: parse genesis provisioners: %w", err)
	}

	out := make([]types.Provisioner, 0, len(entries))
	for _, e := range entries {
		raw, err := hex.DecodeString(e.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("config: decode pubkey %q: %w", e.Pubkey, err)
		}
		if len(raw) != len(types.BLSPubkey{}) {
			return nil, fmt.Errorf("config: pubkey %q has wrong length %d, want %d", e.Pubkey, len(raw), len(types.BLSPubkey{}))
		}
		var pk types.BLSPubkey
		copy(pk[:], raw)
		out = append(out, types.Provisioner{
			BLSPubkey:    pk,
			StakeAmount:  e.Stake,
			OwnerAddress: e.Owner,
		})
	}
	return out, nil
}
