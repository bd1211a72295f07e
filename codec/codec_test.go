package codec

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/duskengine/rusk/types"
)

func samplePubkey(b byte) types.BLSPubkey {
	var k types.BLSPubkey
	for i := range k {
		k[i] = b
	}
	return k
}

func sampleSig(b byte) types.BLSSignature {
	var s types.BLSSignature
	for i := range s {
		s[i] = b
	}
	return s
}

func sampleHash(b byte) types.Hash {
	var h types.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func sampleAttestation(b byte) types.Attestation {
	return types.Attestation{
		Result:       types.ValidVote(sampleHash(b)),
		Validation:   types.StepVotes{Bitset: 0xABCD, Aggregate: sampleSig(b + 1)},
		Ratification: types.StepVotes{Bitset: 0x1234, Aggregate: sampleSig(b + 2)},
	}
}

func sampleBlockHeader() types.BlockHeader {
	return types.BlockHeader{
		Height:          77,
		PrevBlockHash:   sampleHash(1),
		Seed:            sampleSig(2),
		StateRoot:       sampleHash(3),
		EventRoot:       sampleHash(4),
		Timestamp:       1234567890,
		GeneratorPubkey: samplePubkey(5),
		TxRoot:          sampleHash(6),
		FaultRoot:       sampleHash(7),
		GasLimit:        5_000_000,
		Iteration:       3,
		PrevBlockCert:   sampleAttestation(8),
		FailedIterations: []types.Attestation{
			sampleAttestation(20),
			sampleAttestation(30),
		},
	}
}

func TestBlockHeaderRoundTrip(t *testing.T) {
	want := sampleBlockHeader()
	var buf bytes.Buffer
	EncodeBlockHeader(&buf, want)

	r := bytes.NewReader(buf.Bytes())
	got, err := DecodeBlockHeader(r)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Hash is derived, never transmitted; zero it before comparing.
	want.Hash = types.Hash{}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", want, got)
	}
}

func TestCandidateRoundTrip(t *testing.T) {
	h := types.Header{Round: 10, Iteration: 1, Step: types.StepProposal}
	candidate := types.Candidate{
		Block: types.Block{
			Header: sampleBlockHeader(),
			Txs:    []types.Tx{[]byte("tx-one"), []byte("tx-two"), {}},
			Faults: []types.Fault{
				{
					Offender:  samplePubkey(9),
					Round:     9,
					Iteration: 2,
					Step:      types.StepValidation,
					EvidenceA: []byte("evidence-a"),
					EvidenceB: []byte("evidence-b"),
				},
			},
		},
		GeneratorSignature: sampleSig(42),
	}

	data := EncodeCandidate(h, candidate)
	gotHeader, gotCandidate, err := DecodeCandidate(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotHeader != h {
		t.Fatalf("header mismatch: want %+v got %+v", h, gotHeader)
	}
	candidate.Block.Header.Hash = types.Hash{}
	if !reflect.DeepEqual(candidate, gotCandidate) {
		t.Fatalf("candidate round trip mismatch:\nwant %+v\ngot  %+v", candidate, gotCandidate)
	}
}

func TestVoteMessageRoundTrip(t *testing.T) {
	for _, kind := range []types.MessageKind{types.KindValidationVote, types.KindRatificationVote} {
		h := types.Header{Round: 5, Iteration: 2, Step: types.StepValidation}
		v := types.VoteMessage{
			Vote:        types.ValidVote(sampleHash(11)),
			VoterPubkey: samplePubkey(12),
			PartialSig:  sampleSig(13),
		}
		data := EncodeVote(kind, h, v)
		gotKind, gotHeader, got, err := DecodeVote(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if gotKind != kind {
			t.Fatalf("kind mismatch: want %d got %d", kind, gotKind)
		}
		if gotHeader != h {
			t.Fatalf("header mismatch: want %+v got %+v", h, gotHeader)
		}
		got.Header = types.Header{}
		v.Header = types.Header{}
		if !reflect.DeepEqual(v, got) {
			t.Fatalf("vote round trip mismatch:\nwant %+v\ngot  %+v", v, got)
		}
	}
}

func TestVoteMessageNoCandidateZeroHash(t *testing.T) {
	h := types.Header{Round: 1, Iteration: 0, Step: types.StepRatification}
	v := types.VoteMessage{
		Vote:        types.NoCandidateVote(),
		VoterPubkey: samplePubkey(1),
		PartialSig:  sampleSig(2),
	}
	data := EncodeVote(types.KindRatificationVote, h, v)
	_, _, got, err := DecodeVote(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Vote.Equal(types.NoCandidateVote()) {
		t.Fatalf("expected NoCandidate vote, got %+v", got.Vote)
	}
}

func TestQuorumMessageRoundTrip(t *testing.T) {
	h := types.Header{Round: 3, Iteration: 4, Step: types.StepRatification}
	q := types.QuorumMessage{
		Vote:         types.ValidVote(sampleHash(21)),
		Validation:   types.StepVotes{Bitset: 0xFF, Aggregate: sampleSig(22)},
		Ratification: types.StepVotes{Bitset: 0xAA, Aggregate: sampleSig(23)},
	}
	data := EncodeQuorum(h, q)
	gotHeader, got, err := DecodeQuorum(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotHeader != h {
		t.Fatalf("header mismatch: want %+v got %+v", h, gotHeader)
	}
	if !reflect.DeepEqual(q, got) {
		t.Fatalf("quorum round trip mismatch:\nwant %+v\ngot  %+v", q, got)
	}
}

func TestGetBlocksRoundTrip(t *testing.T) {
	m := types.GetBlocksMessage{RequestID: 99, From: 100, To: 200}
	data := EncodeGetBlocks(m)
	got, err := DecodeGetBlocks(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != m {
		t.Fatalf("round trip mismatch: want %+v got %+v", m, got)
	}
}

func TestBlocksRoundTrip(t *testing.T) {
	m := types.BlocksMessage{
		RequestID: 7,
		Blocks: []types.ConfirmedBlock{
			{Block: types.Block{Header: sampleBlockHeader(), Txs: []types.Tx{[]byte("a")}}, Certificate: sampleAttestation(50)},
			{Block: types.Block{Header: sampleBlockHeader()}, Certificate: sampleAttestation(60)},
		},
	}
	for i := range m.Blocks {
		m.Blocks[i].Block.Header.Hash = types.Hash{}
	}
	data := EncodeBlocks(m)
	got, err := DecodeBlocks(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(m, got) {
		t.Fatalf("blocks round trip mismatch:\nwant %+v\ngot  %+v", m, got)
	}
}

func TestGetMempoolAndMempoolRoundTrip(t *testing.T) {
	req := types.GetMempoolMessage{RequestID: 1, Quota: 64}
	data := EncodeGetMempool(req)
	gotReq, err := DecodeGetMempool(data)
	if err != nil {
		t.Fatalf("decode get mempool: %v", err)
	}
	if gotReq != req {
		t.Fatalf("get mempool mismatch: want %+v got %+v", req, gotReq)
	}

	resp := types.MempoolMessage{RequestID: 1, Txs: []types.Tx{[]byte("x"), []byte("yy"), {}}}
	data = EncodeMempool(resp)
	gotResp, err := DecodeMempool(data)
	if err != nil {
		t.Fatalf("decode mempool: %v", err)
	}
	if !reflect.DeepEqual(resp, gotResp) {
		t.Fatalf("mempool mismatch:\nwant %+v\ngot  %+v", resp, gotResp)
	}
}

func TestTxRoundTrip(t *testing.T) {
	m := types.TxMessage{Tx: []byte("a raw transaction payload")}
	data := EncodeTx(m)
	got, err := DecodeTx(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(m, got) {
		t.Fatalf("tx round trip mismatch:\nwant %+v\ngot  %+v", m, got)
	}
}

func TestHashBlockHeaderDeterministicAndSensitive(t *testing.T) {
	h := sampleBlockHeader()
	a := HashBlockHeader(h)
	b := HashBlockHeader(h)
	if a != b {
		t.Fatal("HashBlockHeader must be deterministic")
	}
	h.GasLimit++
	if HashBlockHeader(h) == a {
		t.Fatal("HashBlockHeader must be sensitive to header fields")
	}
}

func TestBlockRoundTrip(t *testing.T) {
	want := types.Block{
		Header: sampleBlockHeader(),
		Txs:    []types.Tx{[]byte("a"), []byte("b")},
		Faults: []types.Fault{{Offender: samplePubkey(1), Round: 1, EvidenceA: []byte("x"), EvidenceB: []byte("y")}},
	}
	data := EncodeBlock(want)
	got, err := DecodeBlock(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want.Header.Hash = types.Hash{}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("block round trip mismatch:\nwant %+v\ngot  %+v", want, got)
	}
}

func TestCertificateRoundTrip(t *testing.T) {
	want := sampleAttestation(5)
	data := EncodeCertificate(want)
	got, err := DecodeCertificate(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("certificate round trip mismatch:\nwant %+v\ngot  %+v", want, got)
	}
}

func TestSignableDigestDeterministic(t *testing.T) {
	h := types.Header{Round: 1, Iteration: 2, Step: types.StepValidation}
	payloadHash := sampleHash(1)
	a := SignableDigest(h, payloadHash)
	b := SignableDigest(h, payloadHash)
	if a != b {
		t.Fatal("SignableDigest must be deterministic")
	}
	other := SignableDigest(types.Header{Round: 2, Iteration: 2, Step: types.StepValidation}, payloadHash)
	if a == other {
		t.Fatal("SignableDigest must bind the round")
	}
}
