// internal/schedule/schedule.go
package schedule

import (
	"fmt"
	"time"

	cfg "github.com/tamzrod/battery-coordinator/internal/config"
)

// Role is a device's position in the installation.
type Role uint8

const (
	Slave Role = iota
	Master
)

func (r Role) String() string {
	if r == Master {
		return cfg.RoleMaster
	}
	return cfg.RoleSlave
}

// ParseRole maps the config string onto a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case cfg.RoleMaster:
		return Master, nil
	case cfg.RoleSlave:
		return Slave, nil
	}
	return 0, fmt.Errorf("schedule: unknown role %q", s)
}

// Cadence bounds per role.
const (
	MasterMinInterval = 5 * time.Second
	MasterMaxInterval = 10 * time.Second
	SlaveMinInterval  = 30 * time.Second
	SlaveMaxInterval  = 60 * time.Second

	DefaultMasterInterval = 5 * time.Second
	DefaultSlaveInterval  = 30 * time.Second
)

// Bounds returns the allowed poll interval range for the role.
func (r Role) Bounds() (lo, hi time.Duration) {
	if r == Master {
		return MasterMinInterval, MasterMaxInterval
	}
	return SlaveMinInterval, SlaveMaxInterval
}

// Interval picks the cadence: the override when set, else the role default.
func (r Role) Interval(override time.Duration) (time.Duration, error) {
	if override == 0 {
		if r == Master {
			return DefaultMasterInterval, nil
		}
		return DefaultSlaveInterval, nil
	}
	lo, hi := r.Bounds()
	if override < lo || override > hi {
		return 0, fmt.Errorf("schedule: %s interval %s outside %s-%s", r, override, lo, hi)
	}
	return override, nil
}

// Assignment is the schedule for one device.
type Assignment struct {
	DeviceID string
	Role     Role
	Phase    string
	Interval time.Duration

	// Meter is set for the master only; it owns the auxiliary meter read.
	Meter bool
}

// Assign derives one Assignment per device, in config order.
func Assign(devices []cfg.DeviceConfig) ([]Assignment, error) {
	out := make([]Assignment, 0, len(devices))
	masters := 0

	for _, d := range devices {
		role, err := ParseRole(d.Role)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", d.ID, err)
		}
		iv, err := role.Interval(time.Duration(d.PollIntervalMs) * time.Millisecond)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", d.ID, err)
		}
		if role == Master {
			masters++
		}

		out = append(out, Assignment{
			DeviceID: d.ID,
			Role:     role,
			Phase:    d.Phase,
			Interval: iv,
			Meter:    role == Master,
		})
	}

	if masters > 1 {
		return nil, fmt.Errorf("schedule: %d masters assigned, at most one allowed", masters)
	}
	return out, nil
}
