package domain

import "errors"

// Error taxonomy for the collection pipeline. Everything here is converted
// into a per-region outcome by the orchestrator; none of it aborts a run.
var (
	// ErrTransient marks a retryable network or HTTP failure.
	ErrTransient = errors.New("transient network error")

	// ErrSourceUnavailable means all retries were exhausted or a required
	// capability is missing. It triggers fallback to the other source.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrEmptyBatch means a source responded but produced no records.
	// Treated the same as a failed fetch for fallback purposes.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrInvalidBatch means a batch failed the consistency check. Also
	// triggers fallback.
	ErrInvalidBatch = errors.New("invalid batch")

	// ErrPersistence means the store could not write a batch. The region is
	// marked failed without retrying the other source; a write that failed
	// for one source's batch would fail identically for the other's.
	ErrPersistence = errors.New("persistence failure")

	// ErrCapabilityUnsupported is returned by station API methods the
	// concrete provider does not implement.
	ErrCapabilityUnsupported = errors.New("capability not supported")
)
