package remote

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSession indicates an operation that requires an active account session
// was invoked without one. Callers treat this as "skip", not as a failure.
var ErrNoSession = errors.New("no active account session")

// RemoteError wraps a network or backend failure from the hosted database.
type RemoteError struct {
	Op  string // the failing operation, e.g. "fetch vocab"
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// remoteErr is a small constructor helper used throughout the client.
func remoteErr(op string, err error) error {
	return &RemoteError{Op: op, Err: err}
}

// configSignatures are substrings that mark a failure as backend
// misconfiguration (missing tables, access policy) rather than transient
// connectivity trouble. Matching on message text is fragile but deliberate:
// these are the only failures worth interrupting the user for, and the hosted
// backend does not expose a structured error code for them.
var configSignatures = []string{
	"policy",
	"relation",
	"no such table",
	"schema",
	"permission denied",
}

// IsConfigurationError reports whether err looks like a backend
// misconfiguration. Configuration failures are terminal until the external
// setup is fixed and are the one class surfaced to the user.
func IsConfigurationError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range configSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
