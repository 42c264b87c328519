// Package errors provides structured error types for the history sweeper.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes the run controller distinguishes.
var (
	// ErrAuthFailed means the account credentials were rejected. Fatal.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrAuthChallenge means the login requires an interactive step
	// (confirmation code, 2FA password) that was not supplied. Fatal,
	// never retried automatically.
	ErrAuthChallenge = errors.New("interactive authentication required")

	// ErrSessionCorrupt means persisted session or checkpoint data could
	// not be decoded. Fatal; the operator must re-authenticate.
	ErrSessionCorrupt = errors.New("session store corrupt")

	// ErrTransportDown means connectivity to the messaging service was
	// lost. Retried with capped exponential backoff, then fatal.
	ErrTransportDown = errors.New("transport unavailable")

	// ErrDenied means the service refused a deletion permanently
	// (too old to revoke, missing permission). Recorded, never retried.
	ErrDenied = errors.New("deletion permanently denied")
)

// RPCError represents an error returned by the messaging protocol.
type RPCError struct {
	Method  string
	Code    int
	Type    string
	Err     error
}

func (e *RPCError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: rpc error %d %s: %v", e.Method, e.Code, e.Type, e.Err)
	}
	return fmt.Sprintf("%s: rpc error %d %s", e.Method, e.Code, e.Type)
}

func (e *RPCError) Unwrap() error { return e.Err }

// NewRPCError creates an RPCError for the given protocol method.
func NewRPCError(method string, code int, typ string, err error) *RPCError {
	return &RPCError{Method: method, Code: code, Type: typ, Err: err}
}

// IsRetryable reports whether the error is transient and worth retrying.
// Only connectivity-class failures qualify; auth, corruption and denial
// errors must surface immediately, and rate limiting is handled as a
// cool-down by the deletion scheduler, not as an error.
func IsRetryable(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case 500, 503:
			return true
		}
	}
	return errors.Is(err, ErrTransportDown)
}
