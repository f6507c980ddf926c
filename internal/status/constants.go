// internal/status/constants.go
package status

// ---- HEALTH CODES ----

// HealthUnknown represents the boot state before the first cycle.
const HealthUnknown uint16 = 0

// HealthOK represents a device whose last cycle read everything.
const HealthOK uint16 = 1

// HealthError represents a device whose last cycle read nothing.
const HealthError uint16 = 2

// HealthStale represents a partial cycle: some values are older than the last tick.
const HealthStale uint16 = 3

// HealthDisabled represents a device whose runner has been stopped.
const HealthDisabled uint16 = 4

// MaxSecondsInError caps the error counter.
const MaxSecondsInError = 65535

// HealthName returns the label used in logs and metrics.
func HealthName(h uint16) string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthStale:
		return "stale"
	case HealthDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}
