// Package lifecycle holds process-wide drain state.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown marks the process as draining. While set, /health reports
// shutting-down with 503 so load balancers stop routing new dashboards here.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

func IsShuttingDown() bool {
	return shuttingDown.Load()
}
