// Package dsyncerr defines the error taxonomy shared by every dsync
// component: cache lookups, schema validation, queue exhaustion and
// upstream source failures all surface through the typed errors here so
// callers can branch with errors.As/errors.Is instead of string matching.
package dsyncerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the taxonomy's error classes.
type Kind string

const (
	// KindNotAllowed marks an operation rejected by policy before any
	// work was attempted (request caps, disallowed op on a read-only
	// source).
	KindNotAllowed Kind = "not_allowed"
	// KindRecordNotFound marks a cache/schema lookup miss for a record.
	KindRecordNotFound Kind = "record_not_found"
	// KindRelationshipNotFound marks a lookup miss for a relationship
	// descriptor or slot.
	KindRelationshipNotFound Kind = "relationship_not_found"
	// KindServerError marks an upstream rejection; the payload carries
	// whatever the upstream source returned.
	KindServerError Kind = "server_error"
	// KindSchemaError marks an invalid model/relationship definition
	// detected at construction time.
	KindSchemaError Kind = "schema_error"
	// KindQueueError marks exhaustion or cancellation of queued work.
	KindQueueError Kind = "queue_error"
	// KindNotResolved marks a Notifier.Resolve call where every listener
	// ran without producing a non-nil value.
	KindNotResolved Kind = "not_resolved"
)

// Error is the concrete type behind every dsync-raised error. Kind lets
// callers branch without parsing Message; Payload optionally carries a
// parsed upstream error body (KindServerError) for presentation layers
// that want more than the message.
type Error struct {
	Kind    Kind
	Message string
	Payload interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, dsyncerr.NotAllowed) style sentinel checks by
// comparing Kind rather than identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotAllowed builds a KindNotAllowed error, e.g. a fetch that would
// exceed maxRequestsPerFetch.
func NotAllowed(format string, args ...interface{}) *Error {
	return newErr(KindNotAllowed, format, args...)
}

// RecordNotFound builds a KindRecordNotFound error for a (type, id) pair.
func RecordNotFound(recordType, id string) *Error {
	return newErr(KindRecordNotFound, "record not found: %s:%s", recordType, id)
}

// RelationshipNotFound builds a KindRelationshipNotFound error.
func RelationshipNotFound(recordType, relationship string) *Error {
	return newErr(KindRelationshipNotFound, "relationship not found: %s.%s", recordType, relationship)
}

// ServerError wraps an upstream rejection, optionally carrying the parsed
// error payload the upstream returned.
func ServerError(payload interface{}, err error) *Error {
	e := newErr(KindServerError, "upstream rejected request")
	e.Payload = payload
	e.Err = err
	return e
}

// SchemaError builds a KindSchemaError error for invalid model metadata.
func SchemaError(format string, args ...interface{}) *Error {
	return newErr(KindSchemaError, format, args...)
}

// QueueError wraps a queue exhaustion/cancellation failure.
func QueueError(err error) *Error {
	e := newErr(KindQueueError, "action queue error")
	e.Err = err
	return e
}

// NotResolved builds a KindNotResolved error for a Resolve call on event
// where no registered listener produced a value.
func NotResolved(event string) *Error {
	return newErr(KindNotResolved, "resolve: no listener for %q produced a value", event)
}

// Wrap attaches format/args context to err using fmt.Errorf's %w verb,
// the wrapping convention used throughout this codebase.
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether err is (or wraps) a dsync *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
