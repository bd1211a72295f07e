package types

import "lukechampine.com/blake3"

// DomainTag is the 1-byte prefix that separates hash domains per message
// kind (spec.md §4.1).
type DomainTag byte

const (
	DomainBlockHeader DomainTag = iota + 1
	DomainStepDigest
	DomainTxRoot
	DomainFaultRoot
	DomainStateRoot
)

// Hash32 computes a collision-resistant, domain-separated 32-byte digest
// over data, grounded on lukechampine.com/blake3 (already an indirect
// dependency of the teacher, promoted to direct use here per
// SPEC_FULL.md's DOMAIN STACK).
func Hash32(tag DomainTag, data ...[]byte) Hash {
	h := blake3.New(32, nil)
	h.Write([]byte{byte(tag)})
	for _, d := range data {
		h.Write(d)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// StepDigest is the message every committee member of (round, iteration,
// step) signs: it binds the tuple plus the candidate's block hash
// (spec.md §4.1, "partial signatures are on the step digest, not on
// distinct payloads").
func StepDigest(r Round, i Iteration, s Step, blockHash Hash) Hash {
	var buf [8 + 1 + 1 + 32]byte
	putUint64(buf[0:8], uint64(r))
	buf[8] = byte(i)
	buf[9] = byte(s)
	copy(buf[10:], blockHash[:])
	return Hash32(DomainStepDigest, buf[:])
}

// TxRoot hashes the ordered transaction list a block header commits to
// (spec.md §3 TxRoot, §4.4.1 "computes hash").
func TxRoot(txs []Tx) Hash {
	h := blake3.New(32, nil)
	h.Write([]byte{byte(DomainTxRoot)})
	var lenBuf [8]byte
	for _, tx := range txs {
		putUint64(lenBuf[:], uint64(len(tx)))
		h.Write(lenBuf[:])
		h.Write(tx)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// FaultRoot hashes the ordered equivocation-fault list a block header
// commits to (spec.md §3 FaultRoot).
func FaultRoot(faults []Fault) Hash {
	h := blake3.New(32, nil)
	h.Write([]byte{byte(DomainFaultRoot)})
	var lenBuf [8]byte
	for _, f := range faults {
		h.Write(f.Offender[:])
		putUint64(lenBuf[:], uint64(f.Round))
		h.Write(lenBuf[:])
		h.Write([]byte{byte(f.Iteration), byte(f.Step)})
		putUint64(lenBuf[:], uint64(len(f.EvidenceA)))
		h.Write(lenBuf[:])
		h.Write(f.EvidenceA)
		putUint64(lenBuf[:], uint64(len(f.EvidenceB)))
		h.Write(lenBuf[:])
		h.Write(f.EvidenceB)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * (7 - i)))
	}
}
