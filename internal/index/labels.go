package index

import (
	"sort"
	"strconv"
)

// SortLabels sorts year or hour labels in place. Labels that all parse as
// numbers are ordered numerically, anything else lexically.
func SortLabels(labels []string) {
	numeric := true
	for _, l := range labels {
		if _, err := strconv.ParseFloat(l, 64); err != nil {
			numeric = false
			break
		}
	}
	if !numeric {
		sort.Strings(labels)
		return
	}
	sort.SliceStable(labels, func(i, j int) bool {
		a, _ := strconv.ParseFloat(labels[i], 64)
		b, _ := strconv.ParseFloat(labels[j], 64)
		return a < b
	})
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
