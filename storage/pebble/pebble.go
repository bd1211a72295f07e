// Package pebble implements storage.Store on top of
// github.com/cockroachdb/pebble, the durable on-disk backend for
// production nodes (spec.md §6 db_path, §9).
package pebble

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/duskengine/rusk/codec"
	"github.com/duskengine/rusk/storage"
	"github.com/duskengine/rusk/types"
)

const (
	prefixBlockByHash   = 'b'
	prefixBlockByHeight = 'h'
	prefixCertificate   = 'c'
	prefixRegistry      = 'r'
	prefixFaults        = 'f'
)

// Store wraps a pebble.DB behind storage.Store.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if absent) a pebble database at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func blockKey(hash types.Hash) []byte {
	return append([]byte{prefixBlockByHash}, hash[:]...)
}

func heightKey(height types.Round) []byte {
	var b [9]byte
	b[0] = prefixBlockByHeight
	binary.BigEndian.PutUint64(b[1:], uint64(height))
	return b[:]
}

func certKey(hash types.Hash) []byte {
	return append([]byte{prefixCertificate}, hash[:]...)
}

func registryKey(height types.Round) []byte {
	var b [9]byte
	b[0] = prefixRegistry
	binary.BigEndian.PutUint64(b[1:], uint64(height))
	return b[:]
}

func faultsKey(round types.Round) []byte {
	var b [9]byte
	b[0] = prefixFaults
	binary.BigEndian.PutUint64(b[1:], uint64(round))
	return b[:]
}

func (s *Store) PutBlock(block types.Block) error {
	w := s.db.NewBatch()
	defer w.Close()
	if err := putBlockInto(w, block); err != nil {
		return err
	}
	return w.Commit(pebble.Sync)
}

func putBlockInto(w *pebble.Batch, block types.Block) error {
	data := codec.EncodeBlock(block)
	if err := w.Set(blockKey(block.Header.Hash), data, nil); err != nil {
		return err
	}
	return w.Set(heightKey(block.Header.Height), block.Header.Hash[:], nil)
}

func (s *Store) GetBlock(hash types.Hash) (types.Block, bool, error) {
	value, closer, err := s.db.Get(blockKey(hash))
	if errors.Is(err, pebble.ErrNotFound) {
		return types.Block{}, false, nil
	}
	if err != nil {
		return types.Block{}, false, fmt.Errorf("pebble: get block: %w", err)
	}
	defer closer.Close()
	block, err := codec.DecodeBlock(value)
	if err != nil {
		return types.Block{}, false, fmt.Errorf("pebble: decode block: %w", err)
	}
	block.Header.Hash = codec.HashBlockHeader(block.Header)
	return block, true, nil
}

func (s *Store) GetBlockByHeight(height types.Round) (types.Block, bool, error) {
	value, closer, err := s.db.Get(heightKey(height))
	if errors.Is(err, pebble.ErrNotFound) {
		return types.Block{}, false, nil
	}
	if err != nil {
		return types.Block{}, false, fmt.Errorf("pebble: get height index: %w", err)
	}
	var hash types.Hash
	copy(hash[:], value)
	closer.Close()
	return s.GetBlock(hash)
}

func (s *Store) PutCertificate(hash types.Hash, cert types.Certificate) error {
	return s.db.Set(certKey(hash), codec.EncodeCertificate(cert), pebble.Sync)
}

func (s *Store) GetCertificate(hash types.Hash) (types.Certificate, bool, error) {
	value, closer, err := s.db.Get(certKey(hash))
	if errors.Is(err, pebble.ErrNotFound) {
		return types.Certificate{}, false, nil
	}
	if err != nil {
		return types.Certificate{}, false, fmt.Errorf("pebble: get certificate: %w", err)
	}
	defer closer.Close()
	cert, err := codec.DecodeCertificate(value)
	if err != nil {
		return types.Certificate{}, false, fmt.Errorf("pebble: decode certificate: %w", err)
	}
	return cert, true, nil
}

func (s *Store) PutRegistrySnapshot(height types.Round, snapshot []byte) error {
	return s.db.Set(registryKey(height), snapshot, pebble.Sync)
}

func (s *Store) GetRegistrySnapshot(height types.Round) ([]byte, bool, error) {
	value, closer, err := s.db.Get(registryKey(height))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pebble: get registry snapshot: %w", err)
	}
	defer closer.Close()
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (s *Store) PutFaults(round types.Round, faults []types.Fault) error {
	var buf []byte
	for _, f := range faults {
		buf = append(buf, codec.EncodeBlock(types.Block{Faults: []types.Fault{f}})...)
	}
	return s.db.Set(faultsKey(round), buf, pebble.Sync)
}

func (s *Store) GetFaults(round types.Round) ([]types.Fault, bool, error) {
	value, closer, err := s.db.Get(faultsKey(round))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pebble: get faults: %w", err)
	}
	defer closer.Close()
	block, err := codec.DecodeBlock(value)
	if err != nil {
		return nil, false, fmt.Errorf("pebble: decode faults: %w", err)
	}
	return block.Faults, true, nil
}

// DeleteAbove removes every block, certificate, registry snapshot and
// fault log recorded above height, as one atomic batch (spec.md §4.7
// Rollback).
func (s *Store) DeleteAbove(height types.Round) error {
	w := s.db.NewBatch()
	defer w.Close()

	if err := s.deleteBlocksAboveInto(w, height); err != nil {
		return err
	}
	if err := s.deleteKeyRangeInto(w, prefixRegistry, height); err != nil {
		return err
	}
	if err := s.deleteKeyRangeInto(w, prefixFaults, height); err != nil {
		return err
	}
	return w.Commit(pebble.Sync)
}

// deleteBlocksAboveInto scans the height index above height and queues
// deletion of the block, its by-hash record, and its certificate.
func (s *Store) deleteBlocksAboveInto(w *pebble.Batch, height types.Round) error {
	lower := heightKey(height + 1)
	upper := []byte{prefixBlockByHeight + 1}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return fmt.Errorf("pebble: delete blocks above %d: %w", height, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var hash types.Hash
		copy(hash[:], iter.Value())
		if err := w.Delete(blockKey(hash), nil); err != nil {
			return err
		}
		if err := w.Delete(certKey(hash), nil); err != nil {
			return err
		}
		if err := w.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			return err
		}
	}
	return iter.Error()
}

// deleteKeyRangeInto queues deletion of every key under prefix keyed by
// a round/height greater than height.
func (s *Store) deleteKeyRangeInto(w *pebble.Batch, prefix byte, height types.Round) error {
	var lower [9]byte
	lower[0] = prefix
	binary.BigEndian.PutUint64(lower[1:], uint64(height+1))
	upper := []byte{prefix + 1}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower[:], UpperBound: upper})
	if err != nil {
		return fmt.Errorf("pebble: delete range %c above %d: %w", prefix, height, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := w.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			return err
		}
	}
	return iter.Error()
}

// NewBatch opens a pebble write batch; writes are invisible to readers
// until Commit (spec.md §9).
func (s *Store) NewBatch() storage.Batch {
	return &writeBatch{db: s.db, batch: s.db.NewBatch()}
}

func (s *Store) Close() error {
	return s.db.Close()
}

type writeBatch struct {
	db    *pebble.DB
	batch *pebble.Batch
	err   error
}

func (b *writeBatch) PutBlock(block types.Block) {
	if b.err != nil {
		return
	}
	b.err = putBlockInto(b.batch, block)
}

func (b *writeBatch) PutCertificate(hash types.Hash, cert types.Certificate) {
	if b.err != nil {
		return
	}
	b.err = b.batch.Set(certKey(hash), codec.EncodeCertificate(cert), nil)
}

func (b *writeBatch) PutRegistrySnapshot(height types.Round, snapshot []byte) {
	if b.err != nil {
		return
	}
	b.err = b.batch.Set(registryKey(height), snapshot, nil)
}

func (b *writeBatch) PutFaults(round types.Round, faults []types.Fault) {
	if b.err != nil {
		return
	}
	var buf []byte
	for _, f := range faults {
		buf = append(buf, codec.EncodeBlock(types.Block{Faults: []types.Fault{f}})...)
	}
	b.err = b.batch.Set(faultsKey(round), buf, nil)
}

func (b *writeBatch) Commit() error {
	defer b.batch.Close()
	if b.err != nil {
		return b.err
	}
	return b.batch.Commit(pebble.Sync)
}
