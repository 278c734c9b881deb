// internal/types/errors.go
package types

import (
	"errors"
	"fmt"
)

// TransformError reports malformed or unavailable transformer output. The
// orchestrator retries the failing stage once before surfacing it as a
// session-fatal error.
type TransformError struct {
	Kind TransformKind
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Kind, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// PublishError reports a failed publish attempt. Retryable failures
// (network, timeout, rate limit) are re-queued with backoff; terminal
// failures (rejected content, revoked credential) mark the record failed.
type PublishError struct {
	Retryable bool
	Err       error
}

func (e *PublishError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("publish (retryable): %v", e.Err)
	}
	return fmt.Sprintf("publish (terminal): %v", e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// ErrUnchangedDraft is the soft failure raised when a revision returns a
// draft identical to its input.
var ErrUnchangedDraft = errors.New("revision produced an unchanged draft")

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")
