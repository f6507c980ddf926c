// internal/catalog/catalog.go
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// ErrAmbiguous is returned when a bare register name is owned by more than one device.
var ErrAmbiguous = errors.New("register name is ambiguous")

// Catalog is the validated, read-only register registry.
// It is safe for concurrent use because nothing mutates it after New.
type Catalog struct {
	defs   []Definition
	byKey  map[string]int   // "<device>/<name>" -> index
	byName map[string][]int // bare name -> indexes
}

// New validates every definition once and builds the lookup tables.
// Definition order is preserved per device.
func New(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		defs:   make([]Definition, 0, len(defs)),
		byKey:  make(map[string]int, len(defs)),
		byName: make(map[string][]int),
	}

	for _, d := range defs {
		if err := d.validate(); err != nil {
			return nil, err
		}
		key := Key(d.Device, d.Name)
		if _, dup := c.byKey[key]; dup {
			return nil, fmt.Errorf("%w: %q: duplicate name on device %q", ErrInvalidDefinition, d.Name, d.Device)
		}
		idx := len(c.defs)
		c.defs = append(c.defs, d)
		c.byKey[key] = idx
		c.byName[d.Name] = append(c.byName[d.Name], idx)
	}
	return c, nil
}

// Key builds the qualified "<device>/<name>" form.
func Key(device, name string) string {
	return device + "/" + name
}

// DefinitionsFor returns every definition owned by the device, in load order.
func (c *Catalog) DefinitionsFor(deviceID string) []Definition {
	return lo.Filter(c.defs, func(d Definition, _ int) bool {
		return d.Device == deviceID
	})
}

// Definition resolves a register by qualified "<device>/<name>" or by bare
// name when exactly one device owns it.
func (c *Catalog) Definition(name string) (Definition, error) {
	if dev, bare, ok := strings.Cut(name, "/"); ok {
		idx, found := c.byKey[Key(dev, bare)]
		if !found {
			return Definition{}, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return c.defs[idx], nil
	}

	idxs := c.byName[name]
	switch len(idxs) {
	case 0:
		return Definition{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	case 1:
		return c.defs[idxs[0]], nil
	default:
		return Definition{}, fmt.Errorf("%w: %q on %d devices", ErrAmbiguous, name, len(idxs))
	}
}

// Devices lists the owning device ids in sorted order.
func (c *Catalog) Devices() []string {
	devs := lo.Uniq(lo.Map(c.defs, func(d Definition, _ int) string { return d.Device }))
	sort.Strings(devs)
	return devs
}

// Len is the total number of definitions.
func (c *Catalog) Len() int {
	return len(c.defs)
}
