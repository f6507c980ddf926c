// internal/config/validate.go
package config

import (
	"fmt"
	"net"
	"strings"
)

const (
	RoleMaster = "master"
	RoleSlave  = "slave"

	MaxDevices = 3
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// Zero values mean "use default" and are accepted here; Normalize fills them.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	c := cfg.Coordinator

	// ------------------------------------------------------------
	// DEVICES
	// ------------------------------------------------------------

	if len(c.Devices) == 0 {
		return fmt.Errorf("config: at least one device is required")
	}
	if len(c.Devices) > MaxDevices {
		return fmt.Errorf("config: at most %d devices are supported, got %d", MaxDevices, len(c.Devices))
	}

	ids := make(map[string]struct{}, len(c.Devices))
	phases := make(map[string]string, len(c.Devices))
	masters := 0

	for _, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("config: device id is required")
		}
		if strings.Contains(d.ID, "/") {
			return fmt.Errorf("device %q: id must not contain '/'", d.ID)
		}
		if _, dup := ids[d.ID]; dup {
			return fmt.Errorf("device %q: duplicate id", d.ID)
		}
		ids[d.ID] = struct{}{}

		// host must be a literal address; hostnames are not resolved
		if net.ParseIP(d.Host) == nil {
			return fmt.Errorf("device %q: host must be an IPv4 or IPv6 literal", d.ID)
		}
		if d.Port < 0 || d.Port > 65535 {
			return fmt.Errorf("device %q: port must be in 1-65535", d.ID)
		}

		switch d.Role {
		case RoleMaster:
			masters++
		case RoleSlave:
		default:
			return fmt.Errorf("device %q: role must be %q or %q, got %q", d.ID, RoleMaster, RoleSlave, d.Role)
		}

		switch d.Phase {
		case "":
		case "L1", "L2", "L3":
			if prev, taken := phases[d.Phase]; taken {
				return fmt.Errorf("device %q: phase %s already used by device %q", d.ID, d.Phase, prev)
			}
			phases[d.Phase] = d.ID
		default:
			return fmt.Errorf("device %q: phase must be L1, L2 or L3", d.ID)
		}

		if d.PollIntervalMs < 0 {
			return fmt.Errorf("device %q: poll_interval_ms must be >= 0", d.ID)
		}
	}

	if masters != 1 {
		return fmt.Errorf("config: exactly one master device is required, got %d", masters)
	}

	// ------------------------------------------------------------
	// TRANSPORT
	// ------------------------------------------------------------

	if c.TimeoutMs < 0 {
		return fmt.Errorf("config: timeout_ms must be >= 0")
	}
	if c.ReadSlaveID > 247 {
		return fmt.Errorf("config: read_slave_id must be in 1-247")
	}
	if c.WriteSlaveID > 247 {
		return fmt.Errorf("config: write_slave_id must be in 1-247")
	}

	// ------------------------------------------------------------
	// CONTROL LOOP
	// ------------------------------------------------------------

	ctl := c.Control

	if ctl.IntervalS != 0 && (ctl.IntervalS < 5 || ctl.IntervalS > 300) {
		return fmt.Errorf("control: interval_s must be in 5-300, got %d", ctl.IntervalS)
	}
	if ctl.MinSOC != nil && (*ctl.MinSOC < 0 || *ctl.MinSOC > 100) {
		return fmt.Errorf("control: min_soc must be in 0-100, got %d", *ctl.MinSOC)
	}
	if ctl.MaxChargePerBattery < 0 || ctl.MaxDischargePerBattery < 0 {
		return fmt.Errorf("control: per-battery limits must be >= 0")
	}

	if ctl.AutoControl && ctl.PowerSensor == "" {
		return fmt.Errorf("control: auto_control requires power_sensor")
	}

	sensors := append([]string{ctl.PowerSensor, ctl.PFSensor}, ctl.PriorityDevices...)
	for _, s := range sensors {
		if s == "" {
			continue
		}
		dev, _, ok := SplitSensorID(s)
		if !ok {
			return fmt.Errorf("control: sensor %q must have the form <device>/<register>", s)
		}
		if _, known := ids[dev]; !known {
			return fmt.Errorf("control: sensor %q refers to unknown device %q", s, dev)
		}
	}

	return nil
}

// SplitSensorID splits "<device>/<register>".
func SplitSensorID(id string) (device, name string, ok bool) {
	device, name, ok = strings.Cut(id, "/")
	if !ok || device == "" || name == "" {
		return "", "", false
	}
	return device, name, true
}
