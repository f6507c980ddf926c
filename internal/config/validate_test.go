// internal/config/validate_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper to build a device quickly
func device(id, host, role, phase string) DeviceConfig {
	return DeviceConfig{
		ID:    id,
		Host:  host,
		Role:  role,
		Phase: phase,
	}
}

func config(devs ...DeviceConfig) *Config {
	return &Config{
		Coordinator: CoordinatorConfig{Devices: devs},
	}
}

// ---- validate tests ----

func TestValidate_ThreePhaseInstallation(t *testing.T) {
	cfg := config(
		device("battery_a", "192.168.1.10", RoleMaster, "L1"),
		device("battery_b", "192.168.1.11", RoleSlave, "L2"),
		device("battery_c", "fd00::12", RoleSlave, "L3"),
	)

	require.NoError(t, Validate(cfg))
}

func TestValidate_RejectsHostname(t *testing.T) {
	cfg := config(device("battery_a", "battery.local", RoleMaster, ""))

	err := Validate(cfg)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "battery.local")
}

func TestValidate_PortRange(t *testing.T) {
	d := device("battery_a", "10.0.0.1", RoleMaster, "")
	d.Port = 70000

	assert.Error(t, Validate(config(d)))
}

func TestValidate_ExactlyOneMaster(t *testing.T) {
	none := config(
		device("battery_a", "10.0.0.1", RoleSlave, ""),
		device("battery_b", "10.0.0.2", RoleSlave, ""),
	)
	two := config(
		device("battery_a", "10.0.0.1", RoleMaster, ""),
		device("battery_b", "10.0.0.2", RoleMaster, ""),
	)

	assert.Error(t, Validate(none))
	assert.Error(t, Validate(two))
}

func TestValidate_TooManyDevices(t *testing.T) {
	cfg := config(
		device("a", "10.0.0.1", RoleMaster, ""),
		device("b", "10.0.0.2", RoleSlave, ""),
		device("c", "10.0.0.3", RoleSlave, ""),
		device("d", "10.0.0.4", RoleSlave, ""),
	)

	assert.Error(t, Validate(cfg))
}

func TestValidate_DuplicateIDAndPhase(t *testing.T) {
	dupID := config(
		device("a", "10.0.0.1", RoleMaster, ""),
		device("a", "10.0.0.2", RoleSlave, ""),
	)
	dupPhase := config(
		device("a", "10.0.0.1", RoleMaster, "L1"),
		device("b", "10.0.0.2", RoleSlave, "L1"),
	)

	assert.Error(t, Validate(dupID))
	assert.Error(t, Validate(dupPhase))
}

func TestValidate_UnknownRole(t *testing.T) {
	assert.Error(t, Validate(config(device("a", "10.0.0.1", "primary", ""))))
}

func TestValidate_ControlRanges(t *testing.T) {
	cfg := config(device("a", "10.0.0.1", RoleMaster, ""))
	cfg.Coordinator.Control.IntervalS = 2
	assert.Error(t, Validate(cfg))

	cfg.Coordinator.Control.IntervalS = 30
	soc := 120
	cfg.Coordinator.Control.MinSOC = &soc
	assert.Error(t, Validate(cfg))

	soc = 0
	assert.NoError(t, Validate(cfg))
}

func TestValidate_SensorIDs(t *testing.T) {
	cfg := config(device("a", "10.0.0.1", RoleMaster, ""))
	cfg.Coordinator.Control.AutoControl = true
	assert.Error(t, Validate(cfg), "auto control without power sensor")

	cfg.Coordinator.Control.PowerSensor = "a/smartmeter_total_power"
	assert.NoError(t, Validate(cfg))

	cfg.Coordinator.Control.PriorityDevices = []string{"z/power"}
	assert.Error(t, Validate(cfg), "unknown device")

	cfg.Coordinator.Control.PriorityDevices = []string{"no-slash"}
	assert.Error(t, Validate(cfg))
}

// ---- normalize tests ----

func TestNormalize_Defaults(t *testing.T) {
	cfg := config(device("a", "10.0.0.1", RoleMaster, ""))
	require.NoError(t, Validate(cfg))

	Normalize(cfg)

	c := cfg.Coordinator
	assert.Equal(t, DefaultPort, c.Devices[0].Port)
	assert.Equal(t, DefaultTimeoutMs, c.TimeoutMs)
	assert.Equal(t, uint8(DefaultReadSlaveID), c.ReadSlaveID)
	assert.Equal(t, uint8(DefaultWriteSlaveID), c.WriteSlaveID)
	assert.Equal(t, DefaultControlIntervalS, c.Control.IntervalS)
	require.NotNil(t, c.Control.MinSOC)
	assert.Equal(t, DefaultMinSOC, *c.Control.MinSOC)
	assert.Equal(t, DefaultLogLevel, c.Log.Level)
}

func TestNormalize_KeepsExplicitZeroMinSOC(t *testing.T) {
	cfg := config(device("a", "10.0.0.1", RoleMaster, ""))
	zero := 0
	cfg.Coordinator.Control.MinSOC = &zero

	Normalize(cfg)

	assert.Equal(t, 0, *cfg.Coordinator.Control.MinSOC)
}

// ---- load tests ----

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
coordinator:
  devices:
    - id: battery_a
      host: 192.168.1.10
      role: master
      phase: L1
    - id: battery_b
      host: 192.168.1.11
      port: 1502
      role: slave
      poll_interval_ms: 45000
  control:
    auto_control: true
    power_sensor: battery_a/smartmeter_total_power
    priority_devices: [battery_b/power]
`)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	require.Len(t, cfg.Coordinator.Devices, 2)
	assert.Equal(t, 1502, cfg.Coordinator.Devices[1].Port)
	assert.Equal(t, 45000, cfg.Coordinator.Devices[1].PollIntervalMs)
	assert.True(t, cfg.Coordinator.Control.AutoControl)
	assert.Equal(t, []string{"battery_b/power"}, cfg.Coordinator.Control.PriorityDevices)
}

func TestParse_UnknownKeyRejected(t *testing.T) {
	_, err := Parse([]byte("coordinator:\n  devicez: []\n"))
	assert.Error(t, err)
}

func TestSplitSensorID(t *testing.T) {
	dev, name, ok := SplitSensorID("battery_a/soc")
	assert.True(t, ok)
	assert.Equal(t, "battery_a", dev)
	assert.Equal(t, "soc", name)

	_, _, ok = SplitSensorID("/soc")
	assert.False(t, ok)
}
