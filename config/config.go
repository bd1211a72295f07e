// Package config loads node configuration from a YAML file, with
// environment variable overrides for the three documented secrets-
// adjacent paths (spec.md §6).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of §6 operator-facing options.
type Config struct {
	MinPeers     uint16 `yaml:"min_peers"`
	MaxIterations uint8 `yaml:"max_iterations"`
	CreditTarget uint32 `yaml:"credit_target"`

	BaseTimeoutProposalMs     uint64 `yaml:"base_timeout_proposal_ms"`
	BaseTimeoutValidationMs   uint64 `yaml:"base_timeout_validation_ms"`
	BaseTimeoutRatificationMs uint64 `yaml:"base_timeout_ratification_ms"`
	TimeoutGrowthNumerator    uint64 `yaml:"timeout_growth_numer"`
	TimeoutGrowthDenominator  uint64 `yaml:"timeout_growth_denom"`
	MaxTimeoutMs              uint64 `yaml:"max_timeout_ms"`

	MinimumStake       uint64 `yaml:"minimum_stake"`
	EpochLengthBlocks  uint32 `yaml:"epoch_length_blocks"`

	DBPath             string `yaml:"db_path"`
	ConsensusKeysPath  string `yaml:"consensus_keys_path"`
	StatePath          string `yaml:"state_path"`

	KadcastID          uint8    `yaml:"kadcast_id"`
	PublicAddress      string   `yaml:"public_address"`
	ListenAddress      string   `yaml:"listen_address"`
	BootstrappingNodes []string `yaml:"bootstrapping_nodes"`

	HTTPListenAddress string `yaml:"http_listen_address"`

	GenesisTimestamp time.Time `yaml:"genesis_timestamp"`

	Archive bool `yaml:"archive"`
	Prover  bool `yaml:"prover"`
}

// The three documented environment variable overrides (spec.md §6).
// DUSK_CONSENSUS_KEYS_PASS is read directly by node.Bootstrap, not here:
// it is a secret, not a path, and never belongs on Config.
const (
	// EnvProfilePath points at a directory holding this node's working
	// state (chain database, consensus keystore, recovery state); when
	// set it overrides DBPath, ConsensusKeysPath and StatePath, including
	// values from the config file, each joined under it.
	EnvProfilePath = "RUSK_PROFILE_PATH"
	EnvStatePath   = "RUSK_STATE_PATH"
)

// Default returns the single-node development defaults named in spec.md
// §6 (credit_target=64, max_iterations=50, base_timeout_ms={20000,10000,10000}).
func Default() Config {
	return Config{
		MinPeers:                  0,
		MaxIterations:             50,
		CreditTarget:              64,
		BaseTimeoutProposalMs:     20_000,
		BaseTimeoutValidationMs:   10_000,
		BaseTimeoutRatificationMs: 10_000,
		TimeoutGrowthNumerator:    3,
		TimeoutGrowthDenominator:  2,
		MaxTimeoutMs:              60_000,
		MinimumStake:              1_000_000_000,
		EpochLengthBlocks:         2160,
		DBPath:                    "./chain.db",
		ConsensusKeysPath:         "./consensus.keys",
		StatePath:                 "./state.db",
		KadcastID:                 0,
		ListenAddress:             "/ip4/0.0.0.0/udp/9000/quic-v1",
	}
}

// Load reads a YAML config file over the defaults, then applies
// documented environment variable overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvProfilePath); v != "" {
		c.DBPath = filepath.Join(v, "chain.db")
		c.ConsensusKeysPath = filepath.Join(v, "consensus.keys")
		c.StatePath = filepath.Join(v, "state.db")
	}
	if v := os.Getenv(EnvStatePath); v != "" {
		c.StatePath = v
	}
}
