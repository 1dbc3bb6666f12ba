package workflows

import "sort"

// SortedMapKeys returns the keys of m in ascending order. Workflow code must
// not range over a map directly: iteration order differs between replays.
func SortedMapKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})
	return keys
}
