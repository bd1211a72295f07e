package forkchoice

import "errors"

// Sentinel errors for fork-choice state transitions (spec.md §4.7, §7).
var (
	ErrUnknownParent   = errors.New("forkchoice: parent block not found")
	ErrAlreadyKnown    = errors.New("forkchoice: block already accepted")
	ErrHeightMismatch  = errors.New("forkchoice: block height does not follow parent")
	// ErrFinalConflict is fatal: a competing chain would roll back a
	// block already labeled Final. The process must exit (spec.md §7,
	// exit code 2).
	ErrFinalConflict = errors.New("forkchoice: conflicting final blocks")
)
