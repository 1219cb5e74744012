package port

import "time"

// ReconnectPolicy paces the attempts to reopen the charge controller
// serial link after a failure.
type ReconnectPolicy interface {
	// NextDelay returns how long to wait before the next open attempt.
	NextDelay() time.Duration
	// Reset restores the initial delay after a successful open.
	Reset()
}
