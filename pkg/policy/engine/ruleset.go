package engine

// RuleSet is an immutable, priority-ordered list of compiled rules. Every
// mutation returns a new RuleSet, so a reader holding one never observes a
// partial update.
type RuleSet struct {
	rules []*compiledRule
}

// NewRuleSet sorts and compiles rules. The input slice is not modified.
func NewRuleSet(rules []Rule) *RuleSet {
	sorted := append([]Rule(nil), rules...)
	SortRulesByPriority(sorted)

	rs := &RuleSet{rules: make([]*compiledRule, len(sorted))}
	for i, r := range sorted {
		rs.rules[i] = compileRule(r)
	}
	return rs
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Rules returns a copy of the rules in scan order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	for i, c := range rs.rules {
		out[i] = c.rule
	}
	return out
}

// With returns a new set containing rs plus r. r is placed after every
// existing rule of the same priority.
func (rs *RuleSet) With(r Rule) *RuleSet {
	out := &RuleSet{rules: make([]*compiledRule, 0, len(rs.rules)+1)}

	c := compileRule(r)
	inserted := false
	for _, existing := range rs.rules {
		if !inserted && existing.rule.Priority < r.Priority {
			out.rules = append(out.rules, c)
			inserted = true
		}
		out.rules = append(out.rules, existing)
	}
	if !inserted {
		out.rules = append(out.rules, c)
	}
	return out
}

// Without returns a new set without the rules at the given scan positions.
func (rs *RuleSet) Without(indexes map[int]bool) *RuleSet {
	out := &RuleSet{rules: make([]*compiledRule, 0, len(rs.rules))}
	for i, c := range rs.rules {
		if !indexes[i] {
			out.rules = append(out.rules, c)
		}
	}
	return out
}

// Match returns the first rule, in scan order, that applies to the call.
// A malformed pattern reached before a match aborts the scan.
func (rs *RuleSet) Match(toolName string, args []string) (*Rule, error) {
	for _, c := range rs.rules {
		ok, err := c.matches(toolName, args)
		if err != nil {
			return nil, err
		}
		if ok {
			r := c.rule
			return &r, nil
		}
	}
	return nil, nil
}

// Validate returns the compile errors of all rules.
func (rs *RuleSet) Validate() []error {
	var errs []error
	for _, c := range rs.rules {
		if err := c.err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
