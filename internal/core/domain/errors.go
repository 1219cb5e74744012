package domain

import "errors"

var (
	// ErrDeviceNotFound means the serial device could not be opened or did
	// not answer the identity handshake.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrProtocolError covers malformed or unexpected register responses.
	ErrProtocolError = errors.New("protocol error")
	// ErrTimeout covers request deadline overruns on the serial link.
	ErrTimeout = errors.New("request timed out")
	// ErrConnectionFaulted means the link is considered dead and the handle
	// has been closed. The owner must reopen before issuing further reads.
	ErrConnectionFaulted = errors.New("connection faulted")
	// ErrReadOnlyPath rejects external writes to paths outside the allow-list.
	ErrReadOnlyPath = errors.New("path is read-only")
	// ErrPersistenceFailure means a value was accepted in memory but could
	// not be saved to disk.
	ErrPersistenceFailure = errors.New("persistence failure")
)

// IsTransientReadError reports whether a poll failure should be retried on
// the open handle instead of tearing the connection down. A faulted or
// absent device is never transient, even when the proximate cause in the
// error chain is a timeout.
func IsTransientReadError(err error) bool {
	if errors.Is(err, ErrConnectionFaulted) || errors.Is(err, ErrDeviceNotFound) {
		return false
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrProtocolError)
}
