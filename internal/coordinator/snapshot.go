// internal/coordinator/snapshot.go
package coordinator

import (
	"maps"
	"sort"
	"time"
)

// Snapshot is the latest committed state of one device.
// It is replaced wholesale on every commit; callers must not modify Values.
type Snapshot struct {
	Values    map[string]float64
	UpdatedAt time.Time
	Partial   bool
}

// Value looks up one register value.
func (s Snapshot) Value(name string) (float64, bool) {
	v, ok := s.Values[name]
	return v, ok
}

// Empty reports whether nothing has been committed yet.
func (s Snapshot) Empty() bool {
	return len(s.Values) == 0 && s.UpdatedAt.IsZero()
}

// Names lists the register names in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Values))
	for k := range s.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// with returns a copy carrying one patched value.
func (s *Snapshot) with(name string, v float64) *Snapshot {
	next := &Snapshot{
		Values:    make(map[string]float64, len(s.Values)+1),
		UpdatedAt: s.UpdatedAt,
		Partial:   s.Partial,
	}
	maps.Copy(next.Values, s.Values)
	next.Values[name] = v
	return next
}

// Update is published to subscribers after every snapshot replacement.
type Update struct {
	DeviceID string
	Snapshot Snapshot
}
