// internal/config/config.go
package config

type Config struct {
	Coordinator CoordinatorConfig `yaml:"coordinator"`
}

type CoordinatorConfig struct {
	Devices []DeviceConfig `yaml:"devices"`

	TimeoutMs    int   `yaml:"timeout_ms"`
	ReadSlaveID  uint8 `yaml:"read_slave_id"`
	WriteSlaveID uint8 `yaml:"write_slave_id"`

	Control ControlConfig `yaml:"control"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	ID    string `yaml:"id"`
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Role  string `yaml:"role"`
	Phase string `yaml:"phase"`

	// Optional; defaults depend on role.
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

// ---- CONTROL LOOP ----

type ControlConfig struct {
	AutoControl     bool     `yaml:"auto_control"`
	IntervalS       int      `yaml:"interval_s"`
	MinSOC          *int     `yaml:"min_soc"`
	SolarBalancing  bool     `yaml:"solar_balancing"`
	PowerSensor     string   `yaml:"power_sensor"`
	PFSensor        string   `yaml:"pf_sensor"`
	PriorityDevices []string `yaml:"priority_devices"`

	MaxChargePerBattery    int `yaml:"max_charge_per_battery"`
	MaxDischargePerBattery int `yaml:"max_discharge_per_battery"`
}

// ---- AMBIENT ----

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}
