// internal/catalog/kind.go
package catalog

import (
	"fmt"
	"math"
)

// Kind is the wire data type of a register definition.
type Kind uint8

const (
	Uint16 Kind = iota + 1
	Int16
	Uint32
	Int32
	Bitfield
)

func (k Kind) String() string {
	switch k {
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Uint32:
		return "uint32"
	case Int32:
		return "int32"
	case Bitfield:
		return "bitfield"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind maps a config string onto a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{Uint16, Int16, Uint32, Int32, Bitfield} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("catalog: unknown kind %q", s)
}

// Registers is the number of 16-bit words the kind occupies.
func (k Kind) Registers() uint16 {
	switch k {
	case Uint32, Int32:
		return 2
	default:
		return 1
	}
}

// rawRange is the inclusive range of raw integers the kind can carry.
func (k Kind) rawRange() (lo, hi float64) {
	switch k {
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Uint32:
		return 0, math.MaxUint32
	case Int32:
		return math.MinInt32, math.MaxInt32
	default:
		return 0, math.MaxUint16
	}
}

func (k Kind) valid() bool {
	return k >= Uint16 && k <= Bitfield
}

// decode converts wire words into a raw integer value.
// 32-bit kinds are high word first.
func (k Kind) decode(words []uint16) (int64, error) {
	if len(words) != int(k.Registers()) {
		return 0, fmt.Errorf("catalog: %s needs %d registers, got %d", k, k.Registers(), len(words))
	}
	switch k {
	case Int16:
		return int64(int16(words[0])), nil
	case Uint32:
		return int64(uint32(words[0])<<16 | uint32(words[1])), nil
	case Int32:
		return int64(int32(uint32(words[0])<<16 | uint32(words[1]))), nil
	default:
		return int64(words[0]), nil
	}
}

// encode converts a raw integer into wire words. The caller range-checks.
func (k Kind) encode(raw int64) []uint16 {
	switch k {
	case Uint32, Int32:
		u := uint32(raw)
		return []uint16{uint16(u >> 16), uint16(u)}
	default:
		return []uint16{uint16(raw)}
	}
}
