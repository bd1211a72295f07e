// Package memory implements storage.Store in process memory, used for
// tests and single-process development (spec.md §9).
package memory

import (
	"sync"

	"github.com/duskengine/rusk/storage"
	"github.com/duskengine/rusk/types"
)

// Store is an in-memory storage.Store backed by maps guarded by an
// RWMutex.
type Store struct {
	mu sync.RWMutex

	blocks      map[types.Hash]types.Block
	byHeight    map[types.Round]types.Hash
	certs       map[types.Hash]types.Certificate
	registries  map[types.Round][]byte
	faultsByRnd map[types.Round][]types.Fault
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		blocks:      make(map[types.Hash]types.Block),
		byHeight:    make(map[types.Round]types.Hash),
		certs:       make(map[types.Hash]types.Certificate),
		registries:  make(map[types.Round][]byte),
		faultsByRnd: make(map[types.Round][]types.Fault),
	}
}

func (s *Store) PutBlock(block types.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[block.Header.Hash] = block
	s.byHeight[block.Header.Height] = block.Header.Hash
	return nil
}

func (s *Store) GetBlock(hash types.Hash) (types.Block, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[hash]
	return b, ok, nil
}

func (s *Store) GetBlockByHeight(height types.Round) (types.Block, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.byHeight[height]
	if !ok {
		return types.Block{}, false, nil
	}
	return s.blocks[hash], true, nil
}

func (s *Store) PutCertificate(hash types.Hash, cert types.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certs[hash] = cert
	return nil
}

func (s *Store) GetCertificate(hash types.Hash) (types.Certificate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.certs[hash]
	return c, ok, nil
}

func (s *Store) PutRegistrySnapshot(height types.Round, snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registries[height] = snapshot
	return nil
}

func (s *Store) GetRegistrySnapshot(height types.Round) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.registries[height]
	return snap, ok, nil
}

func (s *Store) PutFaults(round types.Round, faults []types.Fault) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faultsByRnd[round] = faults
	return nil
}

func (s *Store) GetFaults(round types.Round) ([]types.Fault, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.faultsByRnd[round]
	return f, ok, nil
}

// DeleteAbove removes every block, certificate, registry snapshot and
// fault log recorded above height (spec.md §4.7 Rollback).
func (s *Store) DeleteAbove(height types.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, hash := range s.byHeight {
		if h > height {
			delete(s.byHeight, h)
			delete(s.blocks, hash)
			delete(s.certs, hash)
		}
	}
	for h := range s.registries {
		if h > height {
			delete(s.registries, h)
		}
	}
	for h := range s.faultsByRnd {
		if h > height {
			delete(s.faultsByRnd, h)
		}
	}
	return nil
}

func (s *Store) NewBatch() storage.Batch {
	return &batch{store: s}
}

func (s *Store) Close() error { return nil }

type batchOp func(*Store)

type batch struct {
	store *Store
	ops   []batchOp
}

func (b *batch) PutBlock(block types.Block) {
	b.ops = append(b.ops, func(s *Store) {
		s.blocks[block.Header.Hash] = block
		s.byHeight[block.Header.Height] = block.Header.Hash
	})
}

func (b *batch) PutCertificate(hash types.Hash, cert types.Certificate) {
	b.ops = append(b.ops, func(s *Store) { s.certs[hash] = cert })
}

func (b *batch) PutRegistrySnapshot(height types.Round, snapshot []byte) {
	b.ops = append(b.ops, func(s *Store) { s.registries[height] = snapshot })
}

func (b *batch) PutFaults(round types.Round, faults []types.Fault) {
	b.ops = append(b.ops, func(s *Store) { s.faultsByRnd[round] = faults })
}

// Commit applies every queued operation under a single lock acquisition,
// so readers never observe a partially-applied batch (spec.md §9).
func (b *batch) Commit() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, op := range b.ops {
		op(b.store)
	}
	return nil
}
