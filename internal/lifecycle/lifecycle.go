// Package lifecycle holds process-wide run state shared by the server and
// the health endpoint.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown flips the drain flag. The serve command sets it on
// SIGINT/SIGTERM before closing the listener.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining. /health answers
// 503 shutting-down while it is true.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
