package chain

import (
	"github.com/duskengine/rusk/codec"
	"github.com/duskengine/rusk/types"
)

// GenesisConfig pins the values needed to construct the anchor block
// every node derives independently and must agree on byte-for-byte
// (spec.md §6 "genesis_timestamp").
type GenesisConfig struct {
	Timestamp   int64
	StateRoot   types.Hash
	GasLimit    uint64
	InitialSeed types.BLSSignature
}

// Genesis builds the anchor block and its (empty) certificate. Height 0
// has no generator, no transactions and no predecessor; fork-choice
// seeds itself directly from this block labeled Final (spec.md §4.7,
// "genesis ... labeled Final immediately").
func Genesis(cfg GenesisConfig) (types.Block, types.Certificate) {
	header := types.BlockHeader{
		Height:    0,
		Seed:      cfg.InitialSeed,
		StateRoot: cfg.StateRoot,
		Timestamp: cfg.Timestamp,
		TxRoot:    types.TxRoot(nil),
		FaultRoot: types.FaultRoot(nil),
		GasLimit:  cfg.GasLimit,
	}
	header.Hash = codec.HashBlockHeader(header)

	block := types.Block{Header: header}
	cert := types.Certificate{Result: types.ValidVote(header.Hash)}
	return block, cert
}
