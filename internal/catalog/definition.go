// internal/catalog/definition.go
package catalog

import (
	"errors"
	"fmt"
	"math"
)

const (
	MaxAddress  = 65535
	MaxCount    = 100
	MinSlaveID  = 1
	MaxSlaveID  = 247
	defaultGain = 1.0
)

var (
	ErrInvalidDefinition = errors.New("invalid register definition")
	ErrNotFound          = errors.New("register not found")
	ErrOutOfRange        = errors.New("value out of range")
)

// Definition describes one register (or register pair) on one device.
// Definitions are immutable once accepted by New.
type Definition struct {
	Name    string
	Device  string
	Address uint16
	Count   uint16
	Kind    Kind
	SlaveID uint8

	// Engineering value = (raw - Offset) * Factor.
	// A zero Factor is treated as 1.
	Factor float64
	Offset float64

	Writable bool

	// WriteOnly registers are writable but never polled.
	WriteOnly bool

	// Meter definitions are read on the master's meter branch.
	Meter bool

	// Bounds in engineering units. Both zero means the kind's full range.
	Min, Max float64
}

// Polled reports whether the register belongs in a poll cycle.
func (d Definition) Polled() bool {
	return !d.WriteOnly
}

func (d Definition) factor() float64 {
	if d.Factor == 0 {
		return defaultGain
	}
	return d.Factor
}

// Bounds returns the effective engineering-unit bounds.
func (d Definition) Bounds() (lo, hi float64) {
	if d.Min != 0 || d.Max != 0 {
		return d.Min, d.Max
	}
	rlo, rhi := d.Kind.rawRange()
	lo = (rlo - d.Offset) * d.factor()
	hi = (rhi - d.Offset) * d.factor()
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}

func (d Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidDefinition)
	}
	if d.Device == "" {
		return fmt.Errorf("%w: %q: owner device required", ErrInvalidDefinition, d.Name)
	}
	if d.Count < 1 || d.Count > MaxCount {
		return fmt.Errorf("%w: %q: register count %d outside 1-%d", ErrInvalidDefinition, d.Name, d.Count, MaxCount)
	}
	if int(d.Address)+int(d.Count)-1 > MaxAddress {
		return fmt.Errorf("%w: %q: address range %d+%d exceeds %d", ErrInvalidDefinition, d.Name, d.Address, d.Count, MaxAddress)
	}
	if d.SlaveID < MinSlaveID || d.SlaveID > MaxSlaveID {
		return fmt.Errorf("%w: %q: slave id %d outside %d-%d", ErrInvalidDefinition, d.Name, d.SlaveID, MinSlaveID, MaxSlaveID)
	}
	if !d.Kind.valid() {
		return fmt.Errorf("%w: %q: unknown kind", ErrInvalidDefinition, d.Name)
	}
	if d.Count != d.Kind.Registers() {
		return fmt.Errorf("%w: %q: %s needs %d registers, got %d", ErrInvalidDefinition, d.Name, d.Kind, d.Kind.Registers(), d.Count)
	}
	if math.IsNaN(d.Factor) || math.IsInf(d.Factor, 0) || math.IsNaN(d.Offset) || math.IsInf(d.Offset, 0) {
		return fmt.Errorf("%w: %q: scale must be finite", ErrInvalidDefinition, d.Name)
	}
	if d.Min > d.Max {
		return fmt.Errorf("%w: %q: min %v above max %v", ErrInvalidDefinition, d.Name, d.Min, d.Max)
	}
	if d.WriteOnly && !d.Writable {
		return fmt.Errorf("%w: %q: write-only register must be writable", ErrInvalidDefinition, d.Name)
	}
	if d.Meter && d.WriteOnly {
		return fmt.Errorf("%w: %q: meter registers are read-only", ErrInvalidDefinition, d.Name)
	}
	return nil
}

// Decode turns wire words into an engineering value.
func (d Definition) Decode(words []uint16) (float64, error) {
	raw, err := d.Kind.decode(words)
	if err != nil {
		return 0, err
	}
	return (float64(raw) - d.Offset) * d.factor(), nil
}

// Encode turns an engineering value into wire words.
// It fails with ErrOutOfRange when the value is outside the declared
// bounds or cannot be carried by the kind.
func (d Definition) Encode(v float64) ([]uint16, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %q: not a finite number", ErrOutOfRange, d.Name)
	}
	lo, hi := d.Bounds()
	if v < lo || v > hi {
		return nil, fmt.Errorf("%w: %q: %v outside [%v, %v]", ErrOutOfRange, d.Name, v, lo, hi)
	}

	raw := math.Round(v/d.factor() + d.Offset)
	rlo, rhi := d.Kind.rawRange()
	if raw < rlo || raw > rhi {
		return nil, fmt.Errorf("%w: %q: raw %v does not fit %s", ErrOutOfRange, d.Name, raw, d.Kind)
	}
	return d.Kind.encode(int64(raw)), nil
}
