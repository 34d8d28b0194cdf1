// Package memerr defines the error taxonomy shared by every component of the
// semantic-memory engine. A [Kind] classifies *why* an operation failed so
// that callers up to the verb boundary (see internal/verbs) can branch on the
// failure without parsing error strings.
package memerr

import (
	"errors"
	"fmt"
)

// Kind classifies the cause of a failure. See spec §7 for the full
// description of each kind's retry/surfacing policy.
type Kind int

const (
	// KindUnknown is the zero value; never constructed deliberately.
	KindUnknown Kind = iota

	// KindInvalidArgument: missing/empty required field, invalid enum,
	// wrong-length vector. Never retried.
	KindInvalidArgument

	// KindProviderUnavailable: embedding/LLM/enhancement transport error or
	// timeout. Retried once with exponential backoff by the caller.
	KindProviderUnavailable

	// KindStoreUnavailable: RDF gateway error.
	KindStoreUnavailable

	// KindConcurrencyConflict: a promotion raced with an eviction.
	KindConcurrencyConflict

	// KindPolicyViolation: retention-score tie, zero-length candidate set,
	// etc. Non-fatal; callers should produce an empty result, not abort.
	KindPolicyViolation

	// KindFatal: memory budget exhausted, wrong embedding dimension at
	// startup. Process-ending.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindConcurrencyConflict:
		return "concurrency_conflict"
	case KindPolicyViolation:
		return "policy_violation"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a [Kind] and the operation name that
// raised it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an [Error] for op with the given kind, wrapping err.
func New(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or anything it wraps) carries kind.
func Is(err error, kind Kind) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind == kind
	}
	return false
}

// KindOf extracts the [Kind] of err, or [KindUnknown] if err does not wrap a
// [*Error].
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindUnknown
}
