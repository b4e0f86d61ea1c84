package domain

import "errors"

// ErrInconsistentHistory marks an issue whose state-change sequence or
// blocked periods cannot be replayed into a valid timeline. The issue is
// excluded from cycle-time statistics and flagged; the run continues.
var (
	ErrInconsistentHistory = errors.New("inconsistent state history")
	ErrInsufficientSample  = errors.New("insufficient historical sample")
	ErrMissingCapacity     = errors.New("missing cycle capacity")
	ErrNoCycles            = errors.New("no cycles available")
)
