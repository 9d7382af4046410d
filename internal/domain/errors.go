package domain

import (
	"errors"
	"fmt"
)

// ErrJobAlreadyRunning rejects a trigger attempt while another job is running.
// It is surfaced directly to whoever requested the trigger; the existing job's
// state is left untouched.
var ErrJobAlreadyRunning = errors.New("an ingestion job is already running")

// ErrJobNotFound is returned when a job ID does not resolve to a known job.
var ErrJobNotFound = errors.New("job not found")

// ErrListingNotFound is returned by listing lookups that miss. It keeps the
// dedup gate's found/not-found decision independent of the storage driver.
var ErrListingNotFound = errors.New("listing not found")

// ErrSnapshotNotFound is returned when no snapshot exists for a window.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrItemNotFound is returned when a tracked item ID is unknown.
var ErrItemNotFound = errors.New("tracked item not found")

// AdapterError is a per-item, recoverable marketplace failure (network error,
// rate limit, parse error). It is counted in the job's error tally and retried
// on the next scheduled run, never immediately within the same run.
type AdapterError struct {
	Marketplace string
	Reason      string
	Err         error
}

// Error implements the error interface.
// Parameters: none.
// Returns:
//   - string: formatted error message.
func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("adapter %s: %s: %v", e.Marketplace, e.Reason, e.Err)
	}
	return fmt.Sprintf("adapter %s: %s", e.Marketplace, e.Reason)
}

// Unwrap exposes the underlying cause for errors.Is/As.
// Parameters: none.
// Returns:
//   - error: wrapped error or nil.
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError wraps a marketplace failure.
// Parameters:
//   - marketplace: source marketplace identifier.
//   - reason: short failure category.
//   - err: underlying cause, may be nil.
// Returns:
//   - *AdapterError: typed adapter error.
func NewAdapterError(marketplace, reason string, err error) *AdapterError {
	return &AdapterError{Marketplace: marketplace, Reason: reason, Err: err}
}

// NormalizationError is a per-listing, recoverable failure: the listing is
// skipped and counted as an error without blocking other listings from the
// same item.
type NormalizationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
// Parameters: none.
// Returns:
//   - string: formatted error message.
func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %s", e.Field, e.Reason)
}

// NewNormalizationError describes a malformed raw listing field.
// Parameters:
//   - field: the offending field name.
//   - reason: why it could not be normalized.
// Returns:
//   - *NormalizationError: typed normalization error.
func NewNormalizationError(field, reason string) *NormalizationError {
	return &NormalizationError{Field: field, Reason: reason}
}

// DedupConflict records a rejected overwrite of a terminal listing. It is a
// data-integrity safeguard, logged but never surfaced as a job failure.
type DedupConflict struct {
	Key    NaturalKey
	Reason string
}

// Error implements the error interface.
// Parameters: none.
// Returns:
//   - string: formatted error message.
func (e *DedupConflict) Error() string {
	return fmt.Sprintf("dedup conflict on %s: %s", e.Key, e.Reason)
}

// PersistenceError marks the storage layer as unreachable. It is unrecoverable
// for the run: the whole job is marked failed and no further items are
// dispatched, distinguishing "can't reach storage" from "one item's scrape
// failed".
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements the error interface.
// Parameters: none.
// Returns:
//   - string: formatted error message.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
// Parameters: none.
// Returns:
//   - error: wrapped error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError wraps a storage failure.
// Parameters:
//   - op: the failed storage operation.
//   - err: underlying cause.
// Returns:
//   - *PersistenceError: typed persistence error.
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistenceError reports whether err carries a PersistenceError anywhere
// in its chain.
// Parameters:
//   - err: error to inspect.
// Returns:
//   - bool: true if the chain contains a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
