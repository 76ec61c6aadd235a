package procset

import "errors"

var (
	// ErrDuplicateKey is returned by Add when the key is already queued,
	// running, or awaiting an error report.
	ErrDuplicateKey = errors.New("key already present in process set")

	// ErrShuttingDown is returned by Add once a shutdown sequence has been
	// requested; no new launches are accepted until the set has drained.
	ErrShuttingDown = errors.New("process set is shutting down")
)
