// Package errors defines the typed error kinds and their recovery policy
// It keeps the teacher's internal/errors pattern — a typed
// struct per kind, a constructor, Error()/Unwrap() — generalized from the
// teacher's indexing/parse/search/file/config kinds to the resident
// process's kinds: Corrupt, IncompatibleVersion, NotReady, InvalidRequest,
// IoTransient, IoFatal, ResourceExhausted, Cancelled.
package errors

import (
	"fmt"
	"time"
)

// Kind identifies one of the eight error categories this module distinguishes.
type Kind string

const (
	KindCorrupt             Kind = "corrupt"
	KindIncompatibleVersion Kind = "incompatible_version"
	KindNotReady            Kind = "not_ready"
	KindInvalidRequest      Kind = "invalid_request"
	KindIoTransient         Kind = "io_transient"
	KindIoFatal             Kind = "io_fatal"
	KindResourceExhausted   Kind = "resource_exhausted"
	KindCancelled           Kind = "cancelled"
)

// Error is the common shape for every kind: what happened, where, and what
// underlying error (if any) caused it.
type Error struct {
	Kind       Kind
	Op         string
	Underlying error
	Timestamp  time.Time
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Underlying: err, Timestamp: time.Now()}
}

// Corrupt wraps a snapshot/journal CRC or length-check failure. Policy:
// delete the corrupt file and trigger a rebuild.
func Corrupt(op string, err error) *Error { return newErr(KindCorrupt, op, err) }

// IncompatibleVersion wraps a snapshot header version mismatch. Policy:
// trigger a rebuild and log a warning.
func IncompatibleVersion(op string, err error) *Error {
	return newErr(KindIncompatibleVersion, op, err)
}

// NotReady signals a request arriving during Loading or early Rebuilding.
// Policy: return to the client; the client may retry.
func NotReady(op string) *Error { return newErr(KindNotReady, op, nil) }

// InvalidRequest wraps malformed JSON or an unrecognized request kind.
// Policy: return to the client; no state change.
func InvalidRequest(op string, err error) *Error { return newErr(KindInvalidRequest, op, err) }

// IoTransient wraps an EAGAIN-class filesystem/socket error. Policy: retry
// with bounded backoff (3 retries, 10/100/500ms — see internal/errors/retry.go).
func IoTransient(op string, err error) *Error { return newErr(KindIoTransient, op, err) }

// IoFatal wraps disk-full or permission-denied on the state directory.
// Policy: surface to the user, enter degraded read-only mode.
func IoFatal(op string, err error) *Error { return newErr(KindIoFatal, op, err) }

// ResourceExhausted wraps a full channel or an allocation failure. Policy:
// reject the newest unit of work, log, do not mutate index state.
func ResourceExhausted(op string, err error) *Error {
	return newErr(KindResourceExhausted, op, err)
}

// Cancelled wraps a client disconnect. Policy: drop in-flight work
// silently.
func Cancelled(op string) *Error { return newErr(KindCancelled, op, nil) }

// Wire reconstructs an *Error on the client side from a kind string and
// message decoded off the wire (internal/wire.ErrorResponse), so a
// caller can still use Is against the kind the server reported even
// though the original Underlying error never crosses the connection.
func Wire(kind, message string) *Error {
	return &Error{Kind: Kind(kind), Op: "wire", Underlying: fmt.Errorf("%s", message), Timestamp: time.Now()}
}

// Is reports whether err is an *Error of the given kind, unwrapping
// through any wrapper chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		e, ok := err.(*Error)
		if ok {
			return e.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
