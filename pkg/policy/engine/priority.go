package engine

import "sort"

// SortRulesByPriority sorts rules by priority (highest first). The sort is
// stable: rules of equal priority keep their relative order, which is the
// order they were declared or added in.
func SortRulesByPriority(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
}

// IsSortedByPriority reports whether rules are in scan order.
func IsSortedByPriority(rules []Rule) bool {
	return sort.SliceIsSorted(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
}
