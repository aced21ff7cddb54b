// Package platform provides OS-specific functionality the daemon needs:
// enforcing a single running instance, detecting network reachability, and
// registering itself to launch at login.
package platform

import (
	"context"
	"time"
)

// NetworkEvent represents a network connectivity change.
type NetworkEvent struct {
	Connected bool      // true = network available, false = offline
	Timestamp time.Time // When the event occurred
}

// NetworkMonitor reports whether the host currently has outbound network
// connectivity. Neither the Reconciler nor cmd/mailsyncd creates one: poll
// ticks run whether or not the host is online.
type NetworkMonitor interface {
	// Start begins monitoring for network connectivity changes.
	Start(ctx context.Context) error

	// Events returns a channel that receives connectivity change events.
	Events() <-chan NetworkEvent

	// IsConnected returns the current connectivity state.
	IsConnected() bool

	// WaitForConnection blocks until network is available or ctx is done.
	// Returns true if connected, false if ctx was cancelled first.
	WaitForConnection(ctx context.Context) bool

	// Stop stops the monitor and releases resources.
	Stop() error
}
