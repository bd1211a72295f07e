package types

// MessageKind tags every wire message (spec.md §6).
type MessageKind uint8

const (
	KindCandidate MessageKind = iota
	KindValidationVote
	KindRatificationVote
	KindQuorum
	KindGetBlocks
	KindBlocks
	KindGetMempool
	KindMempool
	KindTx
)

// Header is the fixed 16-byte envelope prefixing every consensus message
// after the 1-byte kind tag (spec.md §6): round(8) + iteration(1) +
// step(1) + reserved(6).
type Header struct {
	Round     Round
	Iteration Iteration
	Step      Step
}

// VoteMessage is the payload shared by ValidationVote and RatificationVote
// (spec.md §6): vote variant, block hash (zero for NoCandidate/NoQuorum),
// voter pubkey, partial signature.
type VoteMessage struct {
	Header       Header
	Vote         Vote
	VoterPubkey  BLSPubkey
	PartialSig   BLSSignature
}

// QuorumMessage fans out an aggregated attestation once a step reaches
// quorum (spec.md §6).
type QuorumMessage struct {
	Header     Header
	Vote       Vote
	Validation StepVotes
	Ratification StepVotes
}

// GetBlocksMessage requests a contiguous range of blocks for recovery
// sync (spec.md §4.9).
type GetBlocksMessage struct {
	RequestID uint64
	From      Round
	To        Round
}

// BlocksMessage is the response to GetBlocksMessage: confirmed blocks
// each carrying their certificate.
type BlocksMessage struct {
	RequestID uint64
	Blocks    []ConfirmedBlock
}

// ConfirmedBlock is a block paired with the certificate that confirmed
// it (spec.md §3).
type ConfirmedBlock struct {
	Block       Block
	Certificate Certificate
}

// GetMempoolMessage requests up to Quota pending transactions.
type GetMempoolMessage struct {
	RequestID uint64
	Quota     uint32
}

// MempoolMessage is the response to GetMempoolMessage.
type MempoolMessage struct {
	RequestID uint64
	Txs       []Tx
}

// TxMessage gossips a single transaction.
type TxMessage struct {
	Tx Tx
}

// FinalityLabel is one of {Accepted, Attested, Confirmed, Final}
// (spec.md §3). Labels are assigned in increasing order and never
// regress except via rollback.
type FinalityLabel uint8

const (
	LabelAccepted FinalityLabel = iota
	LabelAttested
	LabelConfirmed
	LabelFinal
)

func (l FinalityLabel) String() string {
	switch l {
	case LabelAccepted:
		return "accepted"
	case LabelAttested:
		return "attested"
	case LabelConfirmed:
		return "confirmed"
	case LabelFinal:
		return "final"
	default:
		return "unknown"
	}
}
