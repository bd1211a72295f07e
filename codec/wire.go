// Package codec implements the fixed-width binary wire format of
// spec.md §6: a 1-byte kind tag, a 16-byte header (round, iteration,
// step, 6 bytes reserved), then a kind-specific payload. Every field is
// fixed-width and little-endian unless stated otherwise; encode/decode
// of every message kind is a lossless inverse (spec.md §8).
//
// No pack library fits this: it is a hand-specified layout, not an SSZ
// container or a protobuf message (see SPEC_FULL.md's DOMAIN STACK note
// and DESIGN.md).
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/duskengine/rusk/types"
)

const headerSize = 16

// EncodeHeader writes the 1-byte kind tag and the 16-byte header.
func EncodeHeader(buf *bytes.Buffer, kind types.MessageKind, h types.Header) {
	buf.WriteByte(byte(kind))
	var raw [headerSize]byte
	binary.LittleEndian.PutUint64(raw[0:8], uint64(h.Round))
	raw[8] = byte(h.Iteration)
	raw[9] = byte(h.Step)
	buf.Write(raw[:])
}

// DecodeHeader reads the kind tag and header, returning the payload
// slice that follows.
func DecodeHeader(data []byte) (types.MessageKind, types.Header, []byte, error) {
	if len(data) < 1+headerSize {
		return 0, types.Header{}, nil, fmt.Errorf("codec: message too short for header: %d bytes", len(data))
	}
	kind := types.MessageKind(data[0])
	h := types.Header{
		Round:     types.Round(binary.LittleEndian.Uint64(data[1:9])),
		Iteration: types.Iteration(data[9]),
		Step:      types.Step(data[10]),
	}
	return kind, h, data[1+headerSize:], nil
}

func writeHash(buf *bytes.Buffer, h types.Hash)           { buf.Write(h[:]) }
func writePubkey(buf *bytes.Buffer, k types.BLSPubkey)    { buf.Write(k[:]) }
func writeSig(buf *bytes.Buffer, s types.BLSSignature)    { buf.Write(s[:]) }
func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readHash(r *bytes.Reader) (types.Hash, error) {
	var h types.Hash
	_, err := io.ReadFull(r, h[:])
	return h, err
}

func readPubkey(r *bytes.Reader) (types.BLSPubkey, error) {
	var k types.BLSPubkey
	_, err := io.ReadFull(r, k[:])
	return k, err
}

func readSig(r *bytes.Reader) (types.BLSSignature, error) {
	var s types.BLSSignature
	_, err := io.ReadFull(r, s[:])
	return s, err
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readVoteKind(r *bytes.Reader) (types.VoteKind, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	return types.VoteKind(b), nil
}

func encodeVote(buf *bytes.Buffer, v types.Vote) {
	buf.WriteByte(byte(v.Kind))
	writeHash(buf, v.BlockHash)
}

func decodeVote(r *bytes.Reader) (types.Vote, error) {
	kind, err := readVoteKind(r)
	if err != nil {
		return types.Vote{}, err
	}
	hash, err := readHash(r)
	if err != nil {
		return types.Vote{}, err
	}
	return types.Vote{Kind: kind, BlockHash: hash}, nil
}

func encodeStepVotes(buf *bytes.Buffer, sv types.StepVotes) {
	writeUint64(buf, sv.Bitset)
	writeSig(buf, sv.Aggregate)
}

func decodeStepVotes(r *bytes.Reader) (types.StepVotes, error) {
	bitset, err := readUint64(r)
	if err != nil {
		return types.StepVotes{}, err
	}
	agg, err := readSig(r)
	if err != nil {
		return types.StepVotes{}, err
	}
	return types.StepVotes{Bitset: bitset, Aggregate: agg}, nil
}
