package remote

import (
	"errors"
	"fmt"
)

var ErrNotConnected = errors.New("remote session is not connected")

// AuthError means the legacy server rejected the credentials.
type AuthError struct {
	Database string
	User     string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote login failed for %s@%s: %v", e.User, e.Database, e.Err)
	}
	return fmt.Sprintf("remote login failed for %s@%s", e.User, e.Database)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError wraps network failures, timeouts, non-2xx responses and
// undecodable envelopes. It is retryable at chunk level.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote %s: http %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteLogicError is a fault raised by the legacy server itself, typically a
// malformed domain or a missing field.
type RemoteLogicError struct {
	Model   string
	Method  string
	Code    int
	Name    string
	Message string
}

func (e *RemoteLogicError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("remote %s.%s failed: %s (%s)", e.Model, e.Method, e.Message, e.Name)
	}
	return fmt.Sprintf("remote %s failed: %s (%s)", e.Method, e.Message, e.Name)
}

// DecodeError rejects one legacy record that does not fit its typed shape.
type DecodeError struct {
	Model    string
	RemoteId int
	Field    string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode %s(%d).%s: %v", e.Model, e.RemoteId, e.Field, e.Err)
	}
	return fmt.Sprintf("decode %s(%d): %v", e.Model, e.RemoteId, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth retrying the whole chunk for.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
