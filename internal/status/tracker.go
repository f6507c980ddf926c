// internal/status/tracker.go
package status

import (
	"errors"
	"sync"
)

// Tracker owns one device's health Snapshot.
// Observe is fed by poll results; Tick is fed by a 1Hz clock.
type Tracker struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Health: HealthUnknown}}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Observe records one poll cycle outcome and reports whether anything changed.
// committed means the cycle produced at least one value.
func (t *Tracker) Observe(err error, committed bool) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.snap

	switch {
	case err == nil:
		// Recovery / OK
		next.Health = HealthOK
		next.LastErrorCode = 0
		next.SecondsInError = 0
	case committed:
		next.Health = HealthStale
		next.LastErrorCode = ErrorCode(err)
	default:
		next.Health = HealthError
		next.LastErrorCode = ErrorCode(err)
	}

	// NOTE: seconds_in_error increments on Tick only.

	changed := next != t.snap
	t.snap = next
	return next, changed
}

// Tick advances the error counter while the device is not OK.
func (t *Tracker) Tick() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.snap.Health {
	case HealthOK, HealthUnknown, HealthDisabled:
		return t.snap, false
	}
	if t.snap.SecondsInError >= MaxSecondsInError {
		return t.snap, false
	}
	t.snap.SecondsInError++
	return t.snap, true
}

// Disable marks the device as stopped.
func (t *Tracker) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Health = HealthDisabled
}

// ErrorCode extracts a best-effort uint16 code from an error without assuming concrete types.
// If the error does not expose a code, returns 1 (generic error).
func ErrorCode(err error) uint16 {
	if err == nil {
		return 0
	}

	type coder interface{ Code() uint16 }

	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return 1
}
