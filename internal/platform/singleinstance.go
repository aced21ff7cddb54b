package platform

// SingleInstanceLock ensures only one mailsyncd process runs per user at a
// time. A daemon has no window to activate, so a second instance that loses
// the race simply learns the running instance's PID and exits.
type SingleInstanceLock interface {
	// TryLock attempts to acquire the single-instance lock.
	// Returns locked=true if this is the first instance.
	// Returns locked=false if another instance is already running.
	TryLock() (locked bool, err error)

	// SetOnShow registers a callback for a "show" request from a second
	// instance. Retained for interface symmetry with the platform this was
	// adapted from; mailsyncd has nothing to show, so callers typically
	// leave it unset.
	SetOnShow(fn func())

	// Unlock releases the lock and cleans up resources.
	Unlock()
}
