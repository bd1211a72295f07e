// Package storage defines the narrow persistence boundary the chain
// executor depends on: confirmed blocks, their certificates, and the
// per-round bookkeeping (provisioner registry snapshots, fault logs)
// needed for recovery after a restart (spec.md §4.9, §9).
package storage

import "github.com/duskengine/rusk/types"

// Store is the storage contract. Every write outside of a Batch commits
// immediately; Batch groups multiple writes into one atomic unit so a
// crash mid-round never leaves a block recorded without its certificate
// (spec.md §9, "no partial write batches on shutdown").
type Store interface {
	PutBlock(block types.Block) error
	GetBlock(hash types.Hash) (types.Block, bool, error)
	GetBlockByHeight(height types.Round) (types.Block, bool, error)

	PutCertificate(hash types.Hash, cert types.Certificate) error
	GetCertificate(hash types.Hash) (types.Certificate, bool, error)

	PutRegistrySnapshot(height types.Round, snapshot []byte) error
	GetRegistrySnapshot(height types.Round) ([]byte, bool, error)

	PutFaults(round types.Round, faults []types.Fault) error
	GetFaults(round types.Round) ([]types.Fault, bool, error)

	// DeleteAbove removes every block, certificate, registry snapshot and
	// fault log recorded above height. It is the Rollback primitive
	// fork-choice reorgs use to purge an abandoned branch's tail before
	// the new canonical branch is replayed forward (spec.md §4.7, §9's
	// snapshot(at) design note).
	DeleteAbove(height types.Round) error

	// NewBatch opens an atomic write batch; nothing written through it
	// is visible to readers until Commit succeeds.
	NewBatch() Batch

	Close() error
}

// Batch groups writes so they commit atomically.
type Batch interface {
	PutBlock(block types.Block)
	PutCertificate(hash types.Hash, cert types.Certificate)
	PutRegistrySnapshot(height types.Round, snapshot []byte)
	PutFaults(round types.Round, faults []types.Fault)
	Commit() error
}
