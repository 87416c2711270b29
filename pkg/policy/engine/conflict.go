package engine

import "fmt"

// ConflictType classifies a conflict between two rules.
type ConflictType string

const (
	// ConflictDuplicatePattern: identical tool and argument patterns.
	ConflictDuplicatePattern ConflictType = "duplicate_pattern"

	// ConflictOverlappingPatterns: the patterns overlap and one rule is
	// strictly more specific than the other.
	ConflictOverlappingPatterns ConflictType = "overlapping_patterns"

	// ConflictConflictingActions: the patterns overlap and neither rule is
	// more specific.
	ConflictConflictingActions ConflictType = "conflicting_actions"
)

// Description returns a human readable explanation of the conflict type.
func (t ConflictType) Description() string {
	switch t {
	case ConflictDuplicatePattern:
		return "Rules have identical patterns but different actions"
	case ConflictOverlappingPatterns:
		return "One rule's pattern is more specific than the other's and their actions differ"
	case ConflictConflictingActions:
		return "Rules match the same tool calls but have conflicting actions"
	}
	return string(t)
}

// Conflict is a pair of same-priority rules that both match some tool call
// while prescribing different actions. Which of them wins depends only on
// declaration order.
type Conflict struct {
	Rule1 Rule `json:"rule1"`
	Rule2 Rule `json:"rule2"`

	// Index1 and Index2 are the scan positions of the rules; Index1 < Index2.
	Index1 int `json:"index1"`
	Index2 int `json:"index2"`

	Type ConflictType `json:"type"`

	// ExampleTool and ExampleArgs form a call matched by both rules.
	ExampleTool string   `json:"example_tool"`
	ExampleArgs []string `json:"example_args,omitempty"`
}

// String summarizes the conflict on one line.
func (c Conflict) String() string {
	return fmt.Sprintf("%s: %q (%s) vs %q (%s), e.g. %q",
		c.Type, c.Rule1.Name, c.Rule1.Action, c.Rule2.Name, c.Rule2.Action, c.ExampleTool)
}

// DetectConflicts examines every pair of rules, given in scan order.
//
// Rules of different priority never conflict: the higher one is an
// intentional override. Two argument patterns always overlap when each
// matches some string, because a call with two arguments can satisfy each
// pattern with a different argument, so overlap is decided by the tool
// patterns alone.
func DetectConflicts(rules []Rule) []Conflict {
	var conflicts []Conflict
	for i := 0; i < len(rules); i++ {
		for j := i + 1; j < len(rules); j++ {
			if c, ok := pairConflict(rules[i], rules[j]); ok {
				c.Index1, c.Index2 = i, j
				conflicts = append(conflicts, c)
			}
		}
	}
	return conflicts
}

func pairConflict(r1, r2 Rule) (Conflict, bool) {
	if r1.Priority != r2.Priority || r1.Action == r2.Action {
		return Conflict{}, false
	}
	if ValidatePattern(r1.ToolPattern) != nil || ValidatePattern(r2.ToolPattern) != nil {
		return Conflict{}, false
	}
	for _, r := range []Rule{r1, r2} {
		if r.HasArgPattern() {
			if ValidatePattern(r.ArgPattern) != nil {
				return Conflict{}, false
			}
			if _, ok := Example(r.ArgPattern); !ok {
				return Conflict{}, false
			}
		}
	}

	tool, ok := PatternOverlap(r1.ToolPattern, r2.ToolPattern)
	if !ok {
		return Conflict{}, false
	}

	c := Conflict{
		Rule1:       r1,
		Rule2:       r2,
		ExampleTool: tool,
		ExampleArgs: exampleArgs(r1, r2),
	}

	s1, s2 := RuleSpecificity(r1), RuleSpecificity(r2)
	switch {
	case r1.ToolPattern == r2.ToolPattern && r1.ArgPattern == r2.ArgPattern:
		c.Type = ConflictDuplicatePattern
	case s1.MoreSpecificThan(s2) || s2.MoreSpecificThan(s1):
		c.Type = ConflictOverlappingPatterns
	default:
		c.Type = ConflictConflictingActions
	}
	return c, true
}

// ResolutionStrategy decides which rule of a conflicting pair survives.
type ResolutionStrategy int

const (
	// KeepHighestPriority keeps the higher-priority rule, then the one
	// earlier in scan order.
	KeepHighestPriority ResolutionStrategy = iota

	// KeepFirstDeclared keeps the rule earlier in scan order. Within one
	// priority tier that is declaration order.
	KeepFirstDeclared

	// KeepMostSpecificPattern keeps the rule with the lower RuleSpecificity
	// wildcard count, then the one with more literal characters, then the
	// one earlier in scan order.
	KeepMostSpecificPattern
)

var strategyNames = map[ResolutionStrategy]string{
	KeepHighestPriority:     "keep-highest-priority",
	KeepFirstDeclared:       "keep-first-declared",
	KeepMostSpecificPattern: "keep-most-specific",
}

// String returns the strategy's flag name.
func (s ResolutionStrategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseResolutionStrategy parses a strategy flag name.
func ParseResolutionStrategy(name string) (ResolutionStrategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Prefer reports whether a, at scan position ia, should be kept over b, at
// scan position ib. It is a strict, deterministic order for ia != ib.
func (s ResolutionStrategy) Prefer(a Rule, ia int, b Rule, ib int) bool {
	switch s {
	case KeepHighestPriority:
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
	case KeepMostSpecificPattern:
		sa, sb := RuleSpecificity(a), RuleSpecificity(b)
		if sa.MoreSpecificThan(sb) {
			return true
		}
		if sb.MoreSpecificThan(sa) {
			return false
		}
	}
	return ia < ib
}

func (s ResolutionStrategy) valid() bool {
	_, ok := strategyNames[s]
	return ok
}

// ResolveConflicts picks a loser for each conflict in order, skipping
// conflicts whose rules were already removed, and returns the scan positions
// and names of the removed rules. The surviving rules are pairwise
// conflict-free.
func ResolveConflicts(conflicts []Conflict, s ResolutionStrategy) (map[int]bool, []string) {
	removed := make(map[int]bool)
	var names []string

	for _, c := range conflicts {
		if removed[c.Index1] || removed[c.Index2] {
			continue
		}
		loser, name := c.Index2, c.Rule2.Name
		if !s.Prefer(c.Rule1, c.Index1, c.Rule2, c.Index2) {
			loser, name = c.Index1, c.Rule1.Name
		}
		removed[loser] = true
		names = append(names, name)
	}

	return removed, names
}
