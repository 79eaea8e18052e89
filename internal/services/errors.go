package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMalformedActor    = errors.New("malformed sender or recipient id")
	ErrRecipientOptedOut = errors.New("recipient does not accept these messages")
	ErrNotParticipant    = errors.New("not a participant of this conversation")
	ErrProfileNotFound   = errors.New("profile not found")
)

// ValidationError reports a request field that broke a constraint.
type ValidationError struct {
	Field      string
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Constraint)
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// RetryAfterSeconds is at least one.
func (e *RateLimitedError) RetryAfterSeconds() int {
	s := int(e.RetryAfter / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// TransientStoreError wraps a persistence failure the caller may retry.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

func transient(op string, err error) error {
	return &TransientStoreError{Op: op, Err: err}
}
