package remote

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a remote failure. RateLimited drives the in-batch
// backoff; Auth invalidates the whole batch; everything else is recorded
// per-artifact and the batch continues.
type ErrorKind string

const (
	KindTransport      ErrorKind = "TransportError"
	KindSchemaMismatch ErrorKind = "RemoteSchemaMismatch"
	KindAuth           ErrorKind = "AuthError"
	KindRateLimited    ErrorKind = "RateLimited"
	KindNotFound       ErrorKind = "NotFound"
	KindConflict       ErrorKind = "Conflict"
	KindTimeout        ErrorKind = "Timeout"
)

// RemoteError wraps a backend failure with its kind and the operation that
// produced it.
type RemoteError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *RemoteError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// KindOf extracts the error kind, mapping context expiry to Timeout and
// anything unclassified to TransportError.
func KindOf(err error) ErrorKind {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindTransport
}
