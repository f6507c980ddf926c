// internal/poller/ranges.go
package poller

import (
	"sort"

	"github.com/tamzrod/battery-coordinator/internal/catalog"
)

// DefaultMaxGap is zero: unmapped addresses are never read through.
const (
	DefaultMaxRegisters = 100
	DefaultMaxGap       = 0
)

// BuildRanges groups definitions into contiguous reads per slave id.
// Gaps up to maxGap registers are read through; no range exceeds maxRegs.
// Slave groups keep first-seen order; ranges within a group are address ordered.
func BuildRanges(defs []catalog.Definition, maxRegs, maxGap uint16) []Range {
	if maxRegs == 0 {
		maxRegs = DefaultMaxRegisters
	}

	var order []uint8
	bySlave := make(map[uint8][]catalog.Definition)
	for _, d := range defs {
		if _, seen := bySlave[d.SlaveID]; !seen {
			order = append(order, d.SlaveID)
		}
		bySlave[d.SlaveID] = append(bySlave[d.SlaveID], d)
	}

	var out []Range
	for _, slave := range order {
		group := bySlave[slave]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Address < group[j].Address
		})

		var cur *Range
		for _, d := range group {
			start := int(d.Address)
			end := start + int(d.Count) - 1

			if cur != nil {
				curStart := int(cur.Address)
				curEnd := curStart + int(cur.Count) - 1
				newEnd := max(curEnd, end)

				if start <= curEnd+1+int(maxGap) && newEnd-curStart+1 <= int(maxRegs) {
					cur.Count = uint16(newEnd - curStart + 1)
					cur.Defs = append(cur.Defs, d)
					continue
				}
				out = append(out, *cur)
			}

			cur = &Range{
				SlaveID: slave,
				Address: d.Address,
				Count:   d.Count,
				Defs:    []catalog.Definition{d},
			}
		}
		if cur != nil {
			out = append(out, *cur)
		}
	}
	return out
}
