// Package netalloc provides the pure port-scan step of host port
// allocation. This is part of the Functional Core - the caller supplies the
// set of ports already bound; reservation itself happens in the shell under
// the tenant lock.
package netalloc

// FirstFree scans [rangeStart, rangeEnd] in ascending order and returns the
// first port absent from used. ok is false when the range is exhausted or
// inverted.
func FirstFree(used map[int]struct{}, rangeStart, rangeEnd int) (int, bool) {
	if rangeStart < 1 || rangeEnd > 65535 || rangeStart > rangeEnd {
		return 0, false
	}
	for p := rangeStart; p <= rangeEnd; p++ {
		if _, taken := used[p]; !taken {
			return p, true
		}
	}
	return 0, false
}

// UsedSet builds the membership set FirstFree consumes from a list of bound
// host ports.
func UsedSet(ports []int) map[int]struct{} {
	used := make(map[int]struct{}, len(ports))
	for _, p := range ports {
		used[p] = struct{}{}
	}
	return used
}
