package reqresp

import "errors"

// ErrRangeTooLarge is returned when a GetBlocks request spans more
// blocks than a single response will serve (spec.md §4.9 recovery sync
// must not let one peer force an unbounded response).
var ErrRangeTooLarge = errors.New("reqresp: requested range too large")

// MaxBlocksPerRequest bounds a single GetBlocks response.
const MaxBlocksPerRequest = 512
