package wifi

import "sort"

// Rank deduplicates raw scan entries by SSID, keeping the strongest copy of
// each, and orders the result by descending signal strength.
//
// Entries are first grouped by SSID with the strongest copy leading its group,
// so the surviving copy does not depend on the order the radio reported them
// in. Ties in the final order keep the SSID order of the grouping pass.
func Rank(raw []RawNetwork) []Network {
	if len(raw) == 0 {
		return nil
	}

	idx := make([]int, len(raw))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := raw[idx[i]], raw[idx[j]]
		if a.SSID != b.SSID {
			return a.SSID < b.SSID
		}
		return a.RSSI > b.RSSI
	})

	// Keep the first entry of every SSID group.
	dst := 1
	for src := 1; src < len(idx); src++ {
		if raw[idx[src]].SSID != raw[idx[dst-1]].SSID {
			idx[dst] = idx[src]
			dst++
		}
	}
	idx = idx[:dst]

	sort.SliceStable(idx, func(i, j int) bool {
		return raw[idx[i]].RSSI > raw[idx[j]].RSSI
	})

	ranked := make([]Network, len(idx))
	for i, k := range idx {
		r := raw[k]
		ranked[i] = measured(r.SSID, r.Auth == AuthOpen, r.RSSI)
	}
	return ranked
}
