package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a referenced post id does not exist in the store.
// Hitting it from the scheduler means a record vanished mid-delivery,
// which is a logic error rather than something to retry.
var ErrNotFound = errors.New("post not found")

// FailureKind classifies a delivery failure for retry purposes.
type FailureKind int

const (
	// FailureTransient is a failure expected to succeed on a later
	// attempt (network error, rate limit, server-side 5xx).
	FailureTransient FailureKind = iota + 1

	// FailurePermanent is a failure that will not succeed on retry
	// without external intervention (rejected content, bad credentials).
	FailurePermanent
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransient:
		return "transient"
	case FailurePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// PublishError is a classified delivery failure returned by a Publisher.
type PublishError struct {
	Kind   FailureKind
	Detail string
	Err    error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s publish failure: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s publish failure: %s", e.Kind, e.Detail)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Transient builds a retryable PublishError. err may be nil.
func Transient(detail string, err error) *PublishError {
	return &PublishError{Kind: FailureTransient, Detail: detail, Err: err}
}

// Permanent builds a non-retryable PublishError. err may be nil.
func Permanent(detail string, err error) *PublishError {
	return &PublishError{Kind: FailurePermanent, Detail: detail, Err: err}
}

// ClassifyPublishError extracts the PublishError from err. Errors a
// Publisher did not classify are treated as transient, since retrying a
// permanent failure wastes one attempt while skipping a transient one
// loses the post.
func ClassifyPublishError(err error) *PublishError {
	var perr *PublishError
	if errors.As(err, &perr) {
		return perr
	}
	return Transient("unclassified publish error", err)
}
