package consensus

import "errors"

// Sentinel errors classifying round-coordinator failures (spec.md §7).
// TimerExpired is deliberately not among them: a step timeout is
// expected control flow, not an error condition.
var (
	// ErrInvalidMessage marks a message that failed structural or
	// signature validation; the message is dropped, no state changes.
	ErrInvalidMessage = errors.New("consensus: invalid message")

	// ErrTransientUnavailable marks a collaborator (storage, STF,
	// network) that could not serve a request right now; the caller
	// should retry the current step rather than advance it.
	ErrTransientUnavailable = errors.New("consensus: transient unavailable")

	// ErrEquivocation marks two conflicting signed messages observed
	// from the same provisioner for the same (round, iteration, step).
	ErrEquivocation = errors.New("consensus: equivocation detected")

	// ErrStateMismatch marks a locally computed state root diverging
	// from a block's declared state root.
	ErrStateMismatch = errors.New("consensus: state root mismatch")

	// ErrFinalConflict is fatal: accepting a block would make a chain
	// canonical that excludes a block already labeled Final. The process
	// must exit (spec.md §7, exit code 2).
	ErrFinalConflict = errors.New("consensus: conflicting final blocks")

	// ErrStorageFatal is fatal: the storage layer reported corruption or
	// an unrecoverable I/O failure. The process must exit (spec.md §7,
	// exit code 3).
	ErrStorageFatal = errors.New("consensus: fatal storage failure")
)
