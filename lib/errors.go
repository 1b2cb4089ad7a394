package lib

import "fmt"

// ValidationError is the caller's fault: a bad frequency, an unknown
// city code, a missing field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError is an expected miss (no active digest, no such user);
// schedulers treat it as a skip signal, not a crash.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s found for %s", e.Resource, e.Key)
}

// UpstreamError wraps a mailing-list or content-store call failure.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ConflictError is reserved for concurrent segment-creation races;
// nothing raises it today.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting %s: %s", e.Resource, e.Key)
}
