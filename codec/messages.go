package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/duskengine/rusk/types"
)

// SignableDigest computes the digest a consensus message's signature is
// actually over: it binds (round, iteration, step, payload_hash)
// (spec.md §2 item 4).
func SignableDigest(h types.Header, payloadHash types.Hash) types.Hash {
	var buf [8 + 1 + 1 + 32]byte
	off := 0
	putU64(buf[off:], uint64(h.Round))
	off += 8
	buf[off] = byte(h.Iteration)
	off++
	buf[off] = byte(h.Step)
	off++
	copy(buf[off:], payloadHash[:])
	return types.Hash32(types.DomainStepDigest, buf[:])
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}

// EncodeBlockHeader serializes every field of BlockHeader except the
// derived Hash, which decoders recompute rather than trust off the wire.
func EncodeBlockHeader(buf *bytes.Buffer, h types.BlockHeader) {
	writeUint64(buf, uint64(h.Height))
	writeHash(buf, h.PrevBlockHash)
	writeSig(buf, h.Seed)
	writeHash(buf, h.StateRoot)
	writeHash(buf, h.EventRoot)
	writeUint64(buf, uint64(h.Timestamp))
	writePubkey(buf, h.GeneratorPubkey)
	writeHash(buf, h.TxRoot)
	writeHash(buf, h.FaultRoot)
	writeUint64(buf, h.GasLimit)
	buf.WriteByte(byte(h.Iteration))
	encodeAttestation(buf, h.PrevBlockCert)
	buf.WriteByte(byte(len(h.FailedIterations)))
	for _, att := range h.FailedIterations {
		encodeAttestation(buf, att)
	}
}

func DecodeBlockHeader(r *bytes.Reader) (types.BlockHeader, error) {
	var h types.BlockHeader
	height, err := readUint64(r)
	if err != nil {
		return h, err
	}
	h.Height = types.Round(height)
	if h.PrevBlockHash, err = readHash(r); err != nil {
		return h, err
	}
	if h.Seed, err = readSig(r); err != nil {
		return h, err
	}
	if h.StateRoot, err = readHash(r); err != nil {
		return h, err
	}
	if h.EventRoot, err = readHash(r); err != nil {
		return h, err
	}
	ts, err := readUint64(r)
	if err != nil {
		return h, err
	}
	h.Timestamp = int64(ts)
	if h.GeneratorPubkey, err = readPubkey(r); err != nil {
		return h, err
	}
	if h.TxRoot, err = readHash(r); err != nil {
		return h, err
	}
	if h.FaultRoot, err = readHash(r); err != nil {
		return h, err
	}
	if h.GasLimit, err = readUint64(r); err != nil {
		return h, err
	}
	iter, err := r.ReadByte()
	if err != nil {
		return h, err
	}
	h.Iteration = types.Iteration(iter)
	if h.PrevBlockCert, err = decodeAttestation(r); err != nil {
		return h, err
	}
	count, err := r.ReadByte()
	if err != nil {
		return h, err
	}
	h.FailedIterations = make([]types.Attestation, count)
	for i := range h.FailedIterations {
		if h.FailedIterations[i], err = decodeAttestation(r); err != nil {
			return h, err
		}
	}
	return h, nil
}

func encodeAttestation(buf *bytes.Buffer, a types.Attestation) {
	encodeVote(buf, a.Result)
	encodeStepVotes(buf, a.Validation)
	encodeStepVotes(buf, a.Ratification)
}

func decodeAttestation(r *bytes.Reader) (types.Attestation, error) {
	vote, err := decodeVote(r)
	if err != nil {
		return types.Attestation{}, err
	}
	validation, err := decodeStepVotes(r)
	if err != nil {
		return types.Attestation{}, err
	}
	ratification, err := decodeStepVotes(r)
	if err != nil {
		return types.Attestation{}, err
	}
	return types.Attestation{Result: vote, Validation: validation, Ratification: ratification}, nil
}

func encodeTxs(buf *bytes.Buffer, txs []types.Tx) {
	writeUint32(buf, uint32(len(txs)))
	for _, tx := range txs {
		writeUint32(buf, uint32(len(tx)))
		buf.Write(tx)
	}
}

func decodeTxs(r *bytes.Reader) ([]types.Tx, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	txs := make([]types.Tx, count)
	for i := range txs {
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		tx := make(types.Tx, n)
		if _, err := readExact(r, tx); err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	return txs, nil
}

func encodeFaults(buf *bytes.Buffer, faults []types.Fault) {
	writeUint32(buf, uint32(len(faults)))
	for _, f := range faults {
		writePubkey(buf, f.Offender)
		writeUint64(buf, uint64(f.Round))
		buf.WriteByte(byte(f.Iteration))
		buf.WriteByte(byte(f.Step))
		writeUint32(buf, uint32(len(f.EvidenceA)))
		buf.Write(f.EvidenceA)
		writeUint32(buf, uint32(len(f.EvidenceB)))
		buf.Write(f.EvidenceB)
	}
}

func decodeFaults(r *bytes.Reader) ([]types.Fault, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	faults := make([]types.Fault, count)
	for i := range faults {
		f := &faults[i]
		if f.Offender, err = readPubkey(r); err != nil {
			return nil, err
		}
		round, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		f.Round = types.Round(round)
		iter, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		f.Iteration = types.Iteration(iter)
		step, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		f.Step = types.Step(step)
		lenA, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		f.EvidenceA = make([]byte, lenA)
		if _, err := readExact(r, f.EvidenceA); err != nil {
			return nil, err
		}
		lenB, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		f.EvidenceB = make([]byte, lenB)
		if _, err := readExact(r, f.EvidenceB); err != nil {
			return nil, err
		}
	}
	return faults, nil
}

func readExact(r *bytes.Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}

// EncodeBlock serializes a confirmed block body (header, txs, faults)
// without the wire message envelope, for on-disk storage.
func EncodeBlock(b types.Block) []byte {
	var buf bytes.Buffer
	EncodeBlockHeader(&buf, b.Header)
	encodeTxs(&buf, b.Txs)
	encodeFaults(&buf, b.Faults)
	return buf.Bytes()
}

// DecodeBlock is the inverse of EncodeBlock.
func DecodeBlock(data []byte) (types.Block, error) {
	r := bytes.NewReader(data)
	header, err := DecodeBlockHeader(r)
	if err != nil {
		return types.Block{}, err
	}
	txs, err := decodeTxs(r)
	if err != nil {
		return types.Block{}, err
	}
	faults, err := decodeFaults(r)
	if err != nil {
		return types.Block{}, err
	}
	return types.Block{Header: header, Txs: txs, Faults: faults}, nil
}

// EncodeCertificate serializes an Attestation for on-disk storage.
func EncodeCertificate(a types.Certificate) []byte {
	var buf bytes.Buffer
	encodeAttestation(&buf, a)
	return buf.Bytes()
}

// DecodeCertificate is the inverse of EncodeCertificate.
func DecodeCertificate(data []byte) (types.Certificate, error) {
	return decodeAttestation(bytes.NewReader(data))
}

// HashBlockHeader computes a block header's derived Hash field: the
// domain-separated digest of every other header field (spec.md §4.1,
// §6). Callers recompute this after decoding a header off the wire or
// out of storage, since Hash itself is never transmitted.
func HashBlockHeader(h types.BlockHeader) types.Hash {
	var buf bytes.Buffer
	h.Hash = types.Hash{}
	EncodeBlockHeader(&buf, h)
	return types.Hash32(types.DomainBlockHeader, buf.Bytes())
}

// EncodeCandidate serializes a Candidate message (spec.md §6): the
// block header, transaction list, faults list, then the generator's
// signature over header.Hash.
func EncodeCandidate(h types.Header, c types.Candidate) []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, types.KindCandidate, h)
	EncodeBlockHeader(&buf, c.Block.Header)
	encodeTxs(&buf, c.Block.Txs)
	encodeFaults(&buf, c.Block.Faults)
	writeSig(&buf, c.GeneratorSignature)
	return buf.Bytes()
}

func DecodeCandidate(data []byte) (types.Header, types.Candidate, error) {
	kind, h, payload, err := DecodeHeader(data)
	if err != nil {
		return h, types.Candidate{}, err
	}
	if kind != types.KindCandidate {
		return h, types.Candidate{}, fmt.Errorf("codec: expected Candidate, got kind %d", kind)
	}
	r := bytes.NewReader(payload)
	header, err := DecodeBlockHeader(r)
	if err != nil {
		return h, types.Candidate{}, err
	}
	txs, err := decodeTxs(r)
	if err != nil {
		return h, types.Candidate{}, err
	}
	faults, err := decodeFaults(r)
	if err != nil {
		return h, types.Candidate{}, err
	}
	sig, err := readSig(r)
	if err != nil {
		return h, types.Candidate{}, err
	}
	return h, types.Candidate{
		Block:              types.Block{Header: header, Txs: txs, Faults: faults},
		GeneratorSignature: sig,
	}, nil
}

// EncodeVote serializes a ValidationVote or RatificationVote message.
func EncodeVote(kind types.MessageKind, h types.Header, v types.VoteMessage) []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, kind, h)
	encodeVote(&buf, v.Vote)
	writePubkey(&buf, v.VoterPubkey)
	writeSig(&buf, v.PartialSig)
	return buf.Bytes()
}

func DecodeVote(data []byte) (types.MessageKind, types.Header, types.VoteMessage, error) {
	kind, h, payload, err := DecodeHeader(data)
	if err != nil {
		return 0, h, types.VoteMessage{}, err
	}
	if kind != types.KindValidationVote && kind != types.KindRatificationVote {
		return 0, h, types.VoteMessage{}, fmt.Errorf("codec: expected a vote message, got kind %d", kind)
	}
	r := bytes.NewReader(payload)
	vote, err := decodeVote(r)
	if err != nil {
		return kind, h, types.VoteMessage{}, err
	}
	pk, err := readPubkey(r)
	if err != nil {
		return kind, h, types.VoteMessage{}, err
	}
	sig, err := readSig(r)
	if err != nil {
		return kind, h, types.VoteMessage{}, err
	}
	return kind, h, types.VoteMessage{Header: h, Vote: vote, VoterPubkey: pk, PartialSig: sig}, nil
}

// EncodeQuorum serializes a Quorum (aggregated attestation fan-out) message.
func EncodeQuorum(h types.Header, q types.QuorumMessage) []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, types.KindQuorum, h)
	encodeVote(&buf, q.Vote)
	encodeStepVotes(&buf, q.Validation)
	encodeStepVotes(&buf, q.Ratification)
	return buf.Bytes()
}

func DecodeQuorum(data []byte) (types.Header, types.QuorumMessage, error) {
	kind, h, payload, err := DecodeHeader(data)
	if err != nil {
		return h, types.QuorumMessage{}, err
	}
	if kind != types.KindQuorum {
		return h, types.QuorumMessage{}, fmt.Errorf("codec: expected Quorum, got kind %d", kind)
	}
	r := bytes.NewReader(payload)
	vote, err := decodeVote(r)
	if err != nil {
		return h, types.QuorumMessage{}, err
	}
	validation, err := decodeStepVotes(r)
	if err != nil {
		return h, types.QuorumMessage{}, err
	}
	ratification, err := decodeStepVotes(r)
	if err != nil {
		return h, types.QuorumMessage{}, err
	}
	return h, types.QuorumMessage{Vote: vote, Validation: validation, Ratification: ratification}, nil
}

var zeroHeader = types.Header{}

// EncodeGetBlocks serializes a GetBlocks request. Round/iteration/step of
// the shared header are zero for range-based messages (spec.md §6).
func EncodeGetBlocks(m types.GetBlocksMessage) []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, types.KindGetBlocks, zeroHeader)
	writeUint64(&buf, m.RequestID)
	writeUint64(&buf, uint64(m.From))
	writeUint64(&buf, uint64(m.To))
	return buf.Bytes()
}

func DecodeGetBlocks(data []byte) (types.GetBlocksMessage, error) {
	kind, _, payload, err := DecodeHeader(data)
	if err != nil {
		return types.GetBlocksMessage{}, err
	}
	if kind != types.KindGetBlocks {
		return types.GetBlocksMessage{}, fmt.Errorf("codec: expected GetBlocks, got kind %d", kind)
	}
	r := bytes.NewReader(payload)
	reqID, err := readUint64(r)
	if err != nil {
		return types.GetBlocksMessage{}, err
	}
	from, err := readUint64(r)
	if err != nil {
		return types.GetBlocksMessage{}, err
	}
	to, err := readUint64(r)
	if err != nil {
		return types.GetBlocksMessage{}, err
	}
	return types.GetBlocksMessage{RequestID: reqID, From: types.Round(from), To: types.Round(to)}, nil
}

// EncodeBlocks serializes the response to GetBlocks: each confirmed
// block is a candidate-style header/txs/faults triple plus its certificate.
func EncodeBlocks(m types.BlocksMessage) []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, types.KindBlocks, zeroHeader)
	writeUint64(&buf, m.RequestID)
	writeUint32(&buf, uint32(len(m.Blocks)))
	for _, cb := range m.Blocks {
		EncodeBlockHeader(&buf, cb.Block.Header)
		encodeTxs(&buf, cb.Block.Txs)
		encodeFaults(&buf, cb.Block.Faults)
		encodeAttestation(&buf, cb.Certificate)
	}
	return buf.Bytes()
}

func DecodeBlocks(data []byte) (types.BlocksMessage, error) {
	kind, _, payload, err := DecodeHeader(data)
	if err != nil {
		return types.BlocksMessage{}, err
	}
	if kind != types.KindBlocks {
		return types.BlocksMessage{}, fmt.Errorf("codec: expected Blocks, got kind %d", kind)
	}
	r := bytes.NewReader(payload)
	reqID, err := readUint64(r)
	if err != nil {
		return types.BlocksMessage{}, err
	}
	count, err := readUint32(r)
	if err != nil {
		return types.BlocksMessage{}, err
	}
	out := types.BlocksMessage{RequestID: reqID, Blocks: make([]types.ConfirmedBlock, count)}
	for i := range out.Blocks {
		header, err := DecodeBlockHeader(r)
		if err != nil {
			return types.BlocksMessage{}, err
		}
		txs, err := decodeTxs(r)
		if err != nil {
			return types.BlocksMessage{}, err
		}
		faults, err := decodeFaults(r)
		if err != nil {
			return types.BlocksMessage{}, err
		}
		cert, err := decodeAttestation(r)
		if err != nil {
			return types.BlocksMessage{}, err
		}
		out.Blocks[i] = types.ConfirmedBlock{
			Block:       types.Block{Header: header, Txs: txs, Faults: faults},
			Certificate: cert,
		}
	}
	return out, nil
}

// EncodeGetMempool / DecodeGetMempool, EncodeMempool / DecodeMempool,
// EncodeTx / DecodeTx round out the remaining wire kinds (spec.md §6).

func EncodeGetMempool(m types.GetMempoolMessage) []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, types.KindGetMempool, zeroHeader)
	writeUint64(&buf, m.RequestID)
	writeUint32(&buf, m.Quota)
	return buf.Bytes()
}

func DecodeGetMempool(data []byte) (types.GetMempoolMessage, error) {
	kind, _, payload, err := DecodeHeader(data)
	if err != nil {
		return types.GetMempoolMessage{}, err
	}
	if kind != types.KindGetMempool {
		return types.GetMempoolMessage{}, fmt.Errorf("codec: expected GetMempool, got kind %d", kind)
	}
	r := bytes.NewReader(payload)
	reqID, err := readUint64(r)
	if err != nil {
		return types.GetMempoolMessage{}, err
	}
	quota, err := readUint32(r)
	if err != nil {
		return types.GetMempoolMessage{}, err
	}
	return types.GetMempoolMessage{RequestID: reqID, Quota: quota}, nil
}

func EncodeMempool(m types.MempoolMessage) []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, types.KindMempool, zeroHeader)
	writeUint64(&buf, m.RequestID)
	encodeTxs(&buf, m.Txs)
	return buf.Bytes()
}

func DecodeMempool(data []byte) (types.MempoolMessage, error) {
	kind, _, payload, err := DecodeHeader(data)
	if err != nil {
		return types.MempoolMessage{}, err
	}
	if kind != types.KindMempool {
		return types.MempoolMessage{}, fmt.Errorf("codec: expected Mempool, got kind %d", kind)
	}
	r := bytes.NewReader(payload)
	reqID, err := readUint64(r)
	if err != nil {
		return types.MempoolMessage{}, err
	}
	txs, err := decodeTxs(r)
	if err != nil {
		return types.MempoolMessage{}, err
	}
	return types.MempoolMessage{RequestID: reqID, Txs: txs}, nil
}

func EncodeTx(m types.TxMessage) []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, types.KindTx, zeroHeader)
	writeUint32(&buf, uint32(len(m.Tx)))
	buf.Write(m.Tx)
	return buf.Bytes()
}

func DecodeTx(data []byte) (types.TxMessage, error) {
	kind, _, payload, err := DecodeHeader(data)
	if err != nil {
		return types.TxMessage{}, err
	}
	if kind != types.KindTx {
		return types.TxMessage{}, fmt.Errorf("codec: expected Tx, got kind %d", kind)
	}
	r := bytes.NewReader(payload)
	n, err := readUint32(r)
	if err != nil {
		return types.TxMessage{}, err
	}
	tx := make(types.Tx, n)
	if _, err := readExact(r, tx); err != nil {
		return types.TxMessage{}, err
	}
	return types.TxMessage{Tx: tx}, nil
}
