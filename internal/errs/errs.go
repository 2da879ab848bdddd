// Package errs holds the relayer error taxonomy. Errors are classified with
// cockroachdb marks so callers can test the class with errors.Is no matter how
// many times the error was wrapped.
package errs

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrConfiguration is fatal for the invocation: nothing is attempted.
	ErrConfiguration = errors.New("configuration error")
	// ErrConnectivity is a transient transport failure on an RPC call.
	ErrConnectivity = errors.New("connectivity error")
	// ErrRPC is a request rejected by the node.
	ErrRPC = errors.New("rpc error")
	// ErrSubmission means a transaction could not be broadcast.
	ErrSubmission = errors.New("submission failure")
	// ErrTimeout means a transaction was not mined within the wait bound.
	ErrTimeout = errors.New("timeout")
)

func Configuration(err error, format string, args ...any) error {
	if err == nil {
		err = errors.Newf(format, args...)
	} else {
		err = errors.Wrapf(err, format, args...)
	}
	return errors.Mark(err, ErrConfiguration)
}

func Connectivity(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrConnectivity)
}

func RPC(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrRPC)
}

func Submission(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrSubmission)
}

// Transient reports whether retrying the same call later may succeed.
func Transient(err error) bool {
	return errors.Is(err, ErrConnectivity) || errors.Is(err, ErrTimeout)
}
