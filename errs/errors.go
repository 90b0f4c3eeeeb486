// Package errs defines the sentinel error taxonomy shared by every core
// package: fork choice, the datastore, Narwhal, Shoal and the sync
// protocol all classify failures into one of these kinds so that callers
// can decide retry-vs-abort with errors.Is instead of string matching.
package errs

import "github.com/pkg/errors"

// MaxAttempts is the attempt bound for exponential-backoff retries of
// retryable error kinds (DatastoreError, Timeout). No package in this
// module performs such retries; nothing reads this constant.
const MaxAttempts = 5

var (
	// ErrConfigInvalid marks missing or ill-formed configuration or
	// keypair material. Fatal at startup.
	ErrConfigInvalid = errors.New("config invalid")

	// ErrDatastoreError marks IO or corruption in a KV store. Retryable
	// with backoff; triggers integrity repair on startup.
	ErrDatastoreError = errors.New("datastore error")

	// ErrInvalidBlock marks a hash, data-hash, POW or forced-fork
	// violation. The block is dropped, never retried or relayed.
	ErrInvalidBlock = errors.New("invalid block")

	// ErrOrphanParent marks a block whose parent is unknown or not
	// canonical. Stored nowhere; caller may schedule sync.
	ErrOrphanParent = errors.New("orphan parent")

	// ErrEquivocation marks a duplicate (author, round) certificate
	// rejected at the DAG.
	ErrEquivocation = errors.New("equivocation")

	// ErrInsufficientParents marks a header proposal at round>0 lacking
	// quorum parents.
	ErrInsufficientParents = errors.New("insufficient parents")

	// ErrQuorumNotReached marks a certificate build attempted without
	// enough votes. Recoverable by waiting for more votes.
	ErrQuorumNotReached = errors.New("quorum not reached")

	// ErrTimeout marks a request/response or sync step exceeding its
	// deadline. Retryable with exponential backoff up to MaxAttempts.
	ErrTimeout = errors.New("timeout")

	// ErrCancelled marks an operation abandoned because shutdown was
	// observed. Propagated silently, never logged as a failure.
	ErrCancelled = errors.New("cancelled")

	// ErrFatal marks an unreachable-state assertion failure.
	ErrFatal = errors.New("fatal")
)

// Is reports whether err is in kind's chain, unwrapping pkg/errors and
// stdlib wrapping alike.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}

// Cause returns the innermost wrapped error, matching pkg/errors
// convention used across the codebase for log fields.
func Cause(err error) error {
	return errors.Cause(err)
}

// Wrap annotates err with a message while preserving its kind for
// errors.Is.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, message)
}

// Wrapf annotates err with a formatted message while preserving its kind
// for errors.Is.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}
