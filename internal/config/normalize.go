// internal/config/normalize.go
package config

const (
	DefaultPort         = 502
	DefaultTimeoutMs    = 5000
	DefaultReadSlaveID  = 40
	DefaultWriteSlaveID = 64

	DefaultControlIntervalS       = 10
	DefaultMinSOC                 = 15
	DefaultMaxChargePerBattery    = 3500
	DefaultMaxDischargePerBattery = 4600

	DefaultLogLevel = "info"
)

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
// Poll intervals are left at zero; the scheduler owns role cadence defaults.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	c := &cfg.Coordinator

	for i := range c.Devices {
		if c.Devices[i].Port == 0 {
			c.Devices[i].Port = DefaultPort
		}
	}

	if c.TimeoutMs == 0 {
		c.TimeoutMs = DefaultTimeoutMs
	}
	if c.ReadSlaveID == 0 {
		c.ReadSlaveID = DefaultReadSlaveID
	}
	if c.WriteSlaveID == 0 {
		c.WriteSlaveID = DefaultWriteSlaveID
	}

	ctl := &c.Control
	if ctl.IntervalS == 0 {
		ctl.IntervalS = DefaultControlIntervalS
	}
	if ctl.MinSOC == nil {
		v := DefaultMinSOC
		ctl.MinSOC = &v
	}
	if ctl.MaxChargePerBattery == 0 {
		ctl.MaxChargePerBattery = DefaultMaxChargePerBattery
	}
	if ctl.MaxDischargePerBattery == 0 {
		ctl.MaxDischargePerBattery = DefaultMaxDischargePerBattery
	}

	if cfg.Coordinator.Log.Level == "" {
		cfg.Coordinator.Log.Level = DefaultLogLevel
	}
}
