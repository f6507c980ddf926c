// internal/catalog/battery.go
package catalog

// BatteryOptions parameterises the default battery register set.
type BatteryOptions struct {
	ReadSlaveID  uint8
	WriteSlaveID uint8

	// Per-battery power limits in W.
	MaxChargePerBattery    float64
	MaxDischargePerBattery float64

	// Number of batteries in the installation.
	BatteryCount int
}

// Register names the rest of the module refers to.
const (
	SOC             = "soc"
	Power           = "power"
	EnergyProduced  = "energy_produced"
	EnergyConsumed  = "energy_consumed"
	MeterTotalPower = "smartmeter_total_power"
	NominalPower    = "nominal_power"
	NominalFactor   = "nominal_power_factor"
	MaxDischarge    = "max_discharge"
	MaxCharge       = "max_charge"
)

type reg struct {
	name   string
	addr   uint16
	kind   Kind
	factor float64
}

var batteryRegs = []reg{
	{EnergyProduced, 13001, Uint32, 0.1},
	{EnergyConsumed, 13003, Uint32, 0.1},
	{"temperature", 13005, Uint16, 0.1},
	{"status", 13006, Uint16, 1},
	{"storage_status", 13007, Bitfield, 1},
	{"voltage_l1", 13011, Uint16, 0.1},
	{"voltage_l2", 13012, Uint16, 0.1},
	{"voltage_l3", 13013, Uint16, 0.1},
	{"current_l1", 13014, Int16, 0.1},
	{"current_l2", 13015, Int16, 0.1},
	{"current_l3", 13016, Int16, 0.1},
	{"grid_frequency", 13017, Uint16, 0.01},
	{"active_power_l1", 13018, Int16, 1},
	{"active_power_l2", 13019, Int16, 1},
	{"active_power_l3", 13020, Int16, 1},
	{Power, 13021, Int32, 1},
	{"ac_power_total", 13023, Int16, 1},
	{"capacity", 13025, Uint32, 0.1},
	{"cycles", 13027, Uint32, 1},
	{"phase_currents_sum", 13029, Int16, 0.1},
	{SOC, 13030, Uint16, 0.1},
	{"apparent_power", 13031, Uint16, 1},
	{"reactive_power", 13032, Int16, 1},
	{"power_factor", 13033, Int16, 0.001},
	{"smartmeter", 13034, Uint16, 1},
}

var meterRegs = []reg{
	{"smartmeter_voltage_l1", 13035, Uint16, 0.1},
	{"smartmeter_voltage_l2", 13036, Uint16, 0.1},
	{"smartmeter_voltage_l3", 13037, Uint16, 0.1},
	{"smartmeter_current_l1", 13038, Int16, 0.1},
	{"smartmeter_current_l2", 13039, Int16, 0.1},
	{"smartmeter_current_l3", 13040, Int16, 0.1},
	{MeterTotalPower, 13041, Int32, 1},
}

// Battery returns the default register set for one battery.
// Masters additionally carry the smart meter and the write-only control registers.
func Battery(deviceID string, master bool, o BatteryOptions) []Definition {
	defs := make([]Definition, 0, len(batteryRegs)+len(meterRegs)+4)

	for _, r := range batteryRegs {
		defs = append(defs, r.definition(deviceID, o.ReadSlaveID))
	}
	if !master {
		return defs
	}

	for _, r := range meterRegs {
		d := r.definition(deviceID, o.ReadSlaveID)
		d.Meter = true
		defs = append(defs, d)
	}

	count := float64(o.BatteryCount)
	if count < 1 {
		count = 1
	}

	// Positive nominal power discharges, negative charges.
	defs = append(defs,
		control(deviceID, NominalPower, 41, Int16, 1, -count*o.MaxChargePerBattery, count*o.MaxDischargePerBattery, o.WriteSlaveID),
		control(deviceID, NominalFactor, 42, Uint16, 0.0001, 0, 1, o.WriteSlaveID),
		control(deviceID, MaxDischarge, 43, Uint16, 1, 0, o.MaxDischargePerBattery, o.WriteSlaveID),
		control(deviceID, MaxCharge, 44, Uint16, 1, 0, o.MaxChargePerBattery, o.WriteSlaveID),
	)
	return defs
}

func (r reg) definition(deviceID string, slaveID uint8) Definition {
	return Definition{
		Name:    r.name,
		Device:  deviceID,
		Address: r.addr,
		Count:   r.kind.Registers(),
		Kind:    r.kind,
		SlaveID: slaveID,
		Factor:  r.factor,
	}
}

func control(deviceID, name string, addr uint16, kind Kind, factor, lo, hi float64, slaveID uint8) Definition {
	return Definition{
		Name:      name,
		Device:    deviceID,
		Address:   addr,
		Count:     kind.Registers(),
		Kind:      kind,
		SlaveID:   slaveID,
		Factor:    factor,
		Writable:  true,
		WriteOnly: true,
		Min:       lo,
		Max:       hi,
	}
}
