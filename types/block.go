package types

// Tx is an opaque transaction as seen by the consensus engine: it is
// carried, hashed and handed to the STF, never interpreted (spec.md §1,
// mempool policy and VM execution are external collaborators).
type Tx []byte

// Fault is equivocation evidence: two distinct signed messages the same
// provisioner produced for the same (round, iteration, step). It is
// self-validating — anyone replaying the chain can re-verify both
// signatures independently (spec.md §9, SPEC_FULL.md supplement).
type Fault struct {
	Offender  BLSPubkey
	Round     Round
	Iteration Iteration
	Step      Step
	EvidenceA []byte // 32-byte voted block hash ∥ 48-byte signature (faults.Evidence)
	EvidenceB []byte
}

// BlockHeader is the fixed-shape portion of a block (spec.md §3).
type BlockHeader struct {
	Height          Round
	PrevBlockHash   Hash
	Seed            BLSSignature
	StateRoot       Hash
	EventRoot       Hash
	Timestamp       int64
	GeneratorPubkey BLSPubkey
	TxRoot          Hash
	FaultRoot       Hash
	GasLimit        uint64
	Iteration       Iteration
	PrevBlockCert   Certificate
	FailedIterations []Attestation
	Hash            Hash // derived, not signed over
}

// Block is a complete candidate/confirmed block body.
type Block struct {
	Header BlockHeader
	Txs    []Tx
	Faults []Fault
}

// Candidate is the signed wire envelope for a proposed block (spec.md §6).
type Candidate struct {
	Block              Block
	GeneratorSignature BLSSignature // over Block.Header.Hash
}
