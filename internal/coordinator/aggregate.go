// internal/coordinator/aggregate.go
package coordinator

import (
	"github.com/samber/lo"

	"github.com/tamzrod/battery-coordinator/internal/catalog"
)

// Aggregate combines values across every device's latest snapshot.
type Aggregate struct {
	// CombinedSOC is the mean state of charge over devices reporting one.
	CombinedSOC float64
	SOCDevices  int

	// CombinedPower is the summed battery power (positive discharges).
	CombinedPower float64

	EnergyProduced float64
	EnergyConsumed float64
}

// Aggregate reads every snapshot once and combines them.
func (c *Coordinator) Aggregate() Aggregate {
	snaps := lo.Map(c.order, func(id string, _ int) Snapshot {
		return *c.devices[id].snap.Load()
	})

	sum := func(name string) (float64, int) {
		vals := lo.FilterMap(snaps, func(s Snapshot, _ int) (float64, bool) {
			return s.Value(name)
		})
		return lo.Sum(vals), len(vals)
	}

	var a Aggregate
	soc, n := sum(catalog.SOC)
	if n > 0 {
		a.CombinedSOC = soc / float64(n)
		a.SOCDevices = n
	}
	a.CombinedPower, _ = sum(catalog.Power)
	a.EnergyProduced, _ = sum(catalog.EnergyProduced)
	a.EnergyConsumed, _ = sum(catalog.EnergyConsumed)
	return a
}
