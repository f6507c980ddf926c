// internal/catalog/catalog_test.go
package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func def(name string, addr uint16, kind Kind) Definition {
	return Definition{
		Name:    name,
		Device:  "battery_a",
		Address: addr,
		Count:   kind.Registers(),
		Kind:    kind,
		SlaveID: 40,
	}
}

// --- construction tests ---

func TestNew_AcceptsBoundaryValues(t *testing.T) {
	low := def("low", 0, Uint16)
	low.SlaveID = 1

	high := def("high", 65535, Uint16)
	high.SlaveID = 247

	_, err := New([]Definition{low, high})
	require.NoError(t, err)
}

func TestNew_RejectsOutOfRange(t *testing.T) {
	cases := map[string]func(d *Definition){
		"count zero":       func(d *Definition) { d.Count = 0 },
		"count above 100":  func(d *Definition) { d.Count = 101 },
		"slave zero":       func(d *Definition) { d.SlaveID = 0 },
		"slave above 247":  func(d *Definition) { d.SlaveID = 248 },
		"range past 65535": func(d *Definition) { d.Address = 65535; d.Kind = Uint32; d.Count = 2 },
		"count vs kind":    func(d *Definition) { d.Count = 2 },
		"unknown kind":     func(d *Definition) { d.Kind = 0 },
		"min above max":    func(d *Definition) { d.Min, d.Max = 10, 1 },
		"no owner":         func(d *Definition) { d.Device = "" },
		"write-only ro":    func(d *Definition) { d.WriteOnly = true },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := def("x", 100, Uint16)
			mutate(&d)

			_, err := New([]Definition{d})
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

func TestNew_DuplicateNamePerDevice(t *testing.T) {
	_, err := New([]Definition{def("soc", 1, Uint16), def("soc", 2, Uint16)})
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	other := def("soc", 2, Uint16)
	other.Device = "battery_b"
	_, err = New([]Definition{def("soc", 1, Uint16), other})
	assert.NoError(t, err)
}

// --- lookup tests ---

func TestDefinitionsFor_PreservesOrder(t *testing.T) {
	b := def("b", 5, Uint16)
	b.Device = "battery_b"

	c, err := New([]Definition{def("z", 9, Uint16), b, def("a", 1, Uint16)})
	require.NoError(t, err)

	got := c.DefinitionsFor("battery_a")
	require.Len(t, got, 2)
	assert.Equal(t, "z", got[0].Name)
	assert.Equal(t, "a", got[1].Name)

	assert.Empty(t, c.DefinitionsFor("nope"))
	assert.Equal(t, []string{"battery_a", "battery_b"}, c.Devices())
}

func TestDefinition_Lookup(t *testing.T) {
	other := def("soc", 1, Uint16)
	other.Device = "battery_b"

	c, err := New([]Definition{def("soc", 1, Uint16), def("max_charge", 44, Uint16), other})
	require.NoError(t, err)

	d, err := c.Definition("max_charge")
	require.NoError(t, err)
	assert.Equal(t, uint16(44), d.Address)

	d, err = c.Definition("battery_b/soc")
	require.NoError(t, err)
	assert.Equal(t, "battery_b", d.Device)

	_, err = c.Definition("soc")
	assert.ErrorIs(t, err, ErrAmbiguous)

	_, err = c.Definition("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Definition("battery_c/soc")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- codec tests ---

func TestDecode_Kinds(t *testing.T) {
	soc := def("soc", 13030, Uint16)
	soc.Factor = 0.1
	v, err := soc.Decode([]uint16{720})
	require.NoError(t, err)
	assert.InDelta(t, 72.0, v, 1e-9)

	temp := def("temp", 1, Int16)
	v, err = temp.Decode([]uint16{0xFFFE})
	require.NoError(t, err)
	assert.Equal(t, -2.0, v)

	power := def("power", 1, Int32)
	v, err = power.Decode([]uint16{0xFFFF, 0xFC18})
	require.NoError(t, err)
	assert.Equal(t, -1000.0, v)

	capacity := def("capacity", 1, Uint32)
	v, err = capacity.Decode([]uint16{0x0001, 0x0000})
	require.NoError(t, err)
	assert.Equal(t, 65536.0, v)

	_, err = capacity.Decode([]uint16{1})
	assert.Error(t, err)
}

func TestDecode_Offset(t *testing.T) {
	d := def("x", 1, Uint16)
	d.Factor = 2
	d.Offset = 10

	v, err := d.Decode([]uint16{15})
	require.NoError(t, err)
	assert.Equal(t, 10.0, v)
}

func TestEncode_BoundsAndKind(t *testing.T) {
	d := def("max_charge", 44, Uint16)
	d.Writable = true
	d.Min, d.Max = 0, 5000

	words, err := d.Encode(4000)
	require.NoError(t, err)
	assert.Equal(t, []uint16{4000}, words)

	_, err = d.Encode(9999)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = d.Encode(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestEncode_SignedAndScaled(t *testing.T) {
	p := def("nominal_power", 41, Int16)
	words, err := p.Encode(-1500)
	require.NoError(t, err)
	assert.Equal(t, []uint16{uint16(0x10000 - 1500)}, words)

	pf := def("pf", 42, Uint16)
	pf.Factor = 0.0001
	pf.Min, pf.Max = 0, 1
	words, err = pf.Encode(0.95)
	require.NoError(t, err)
	assert.Equal(t, []uint16{9500}, words)

	wide := def("wide", 1, Int32)
	words, err = wide.Encode(-1000)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0xFFFF, 0xFC18}, words)
}

func TestEncode_KindRangeWithoutDeclaredBounds(t *testing.T) {
	d := def("x", 1, Uint16)

	_, err := d.Encode(65536)
	assert.True(t, errors.Is(err, ErrOutOfRange))

	_, err = d.Encode(-0.4)
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

// --- default register set ---

func TestBattery_MasterCarriesMeterAndControl(t *testing.T) {
	opts := BatteryOptions{
		ReadSlaveID:            40,
		WriteSlaveID:           64,
		MaxChargePerBattery:    3500,
		MaxDischargePerBattery: 4600,
		BatteryCount:           2,
	}

	master := Battery("battery_a", true, opts)
	slave := Battery("battery_b", false, opts)

	c, err := New(append(master, slave...))
	require.NoError(t, err)

	d, err := c.Definition(MaxCharge)
	require.NoError(t, err)
	assert.Equal(t, "battery_a", d.Device)
	assert.Equal(t, uint8(64), d.SlaveID)
	assert.False(t, d.Polled())

	np, err := c.Definition(NominalPower)
	require.NoError(t, err)
	lo, hi := np.Bounds()
	assert.Equal(t, -7000.0, lo)
	assert.Equal(t, 9200.0, hi)

	meter, err := c.Definition(MeterTotalPower)
	require.NoError(t, err)
	assert.True(t, meter.Meter)

	for _, d := range c.DefinitionsFor("battery_b") {
		assert.False(t, d.Meter, d.Name)
		assert.False(t, d.Writable, d.Name)
	}
}

func TestBattery_RegisterMap(t *testing.T) {
	c, err := New(Battery("battery_a", true, BatteryOptions{ReadSlaveID: 40, WriteSlaveID: 64, BatteryCount: 1}))
	require.NoError(t, err)

	tests := []struct {
		name   string
		addr   uint16
		kind   Kind
		factor float64
	}{
		{SOC, 13030, Uint16, 0.1},
		{"status", 13006, Uint16, 1},
		{Power, 13021, Int32, 1},
		{"smartmeter", 13034, Uint16, 1},
		{"capacity", 13025, Uint32, 0.1},
		{"cycles", 13027, Uint32, 1},
		{"temperature", 13005, Uint16, 0.1},
		{EnergyProduced, 13001, Uint32, 0.1},
		{EnergyConsumed, 13003, Uint32, 0.1},
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
		{"ac_power_total", 13023, Int16, 1},
		{"phase_currents_sum", 13029, Int16, 0.1},
		{"apparent_power", 13031, Uint16, 1},
		{"reactive_power", 13032, Int16, 1},
		{"power_factor", 13033, Int16, 0.001},
		{"storage_status", 13007, Bitfield, 1},
		{"smartmeter_voltage_l1", 13035, Uint16, 0.1},
		{"smartmeter_voltage_l2", 13036, Uint16, 0.1},
		{"smartmeter_voltage_l3", 13037, Uint16, 0.1},
		{"smartmeter_current_l1", 13038, Int16, 0.1},
		{"smartmeter_current_l2", 13039, Int16, 0.1},
		{"smartmeter_current_l3", 13040, Int16, 0.1},
		{MeterTotalPower, 13041, Int32, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := c.Definition(Key("battery_a", tt.name))
			require.NoError(t, err)
			assert.Equal(t, tt.addr, d.Address)
			assert.Equal(t, tt.kind, d.Kind)
			assert.Equal(t, tt.kind.Registers(), d.Count)
			assert.InDelta(t, tt.factor, d.Factor, 1e-9)
			assert.Equal(t, uint8(40), d.SlaveID)
		})
	}

	temp, err := c.Definition(Key("battery_a", "temperature"))
	require.NoError(t, err)
	v, err := temp.Decode([]uint16{235})
	require.NoError(t, err)
	assert.InDelta(t, 23.5, v, 1e-9)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("int32")
	require.NoError(t, err)
	assert.Equal(t, Int32, k)
	assert.Equal(t, uint16(2), k.Registers())

	_, err = ParseKind("float64")
	assert.Error(t, err)
}
