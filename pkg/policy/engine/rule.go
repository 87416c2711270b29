package engine

// Rule maps a tool name pattern, and optionally an argument pattern, to an
// action. Rules are values; the engine replaces them wholesale and never
// edits one in place.
type Rule struct {
	// Name uniquely identifies the rule.
	Name string `toml:"name" json:"name"`

	// ToolPattern is a glob matched against the tool name.
	ToolPattern string `toml:"tool_pattern" json:"tool_pattern"`

	// ArgPattern is an optional glob matched against the arguments. It
	// matches when it matches any single argument or all arguments joined
	// by spaces. Empty means the rule matches on tool name alone.
	ArgPattern string `toml:"arg_pattern,omitempty" json:"arg_pattern,omitempty"`

	Action   Action   `toml:"action" json:"action"`
	Priority Priority `toml:"priority" json:"priority"`

	// Reason is reported in decisions. Defaults to "Matched rule: <name>".
	Reason string `toml:"reason,omitempty" json:"reason,omitempty"`
}

// NewRule creates a user-priority rule.
func NewRule(name, toolPattern string, action Action) Rule {
	return Rule{
		Name:        name,
		ToolPattern: toolPattern,
		Action:      action,
		Priority:    PriorityUser,
	}
}

// WithArgPattern returns a copy of r with the argument pattern set.
func (r Rule) WithArgPattern(pattern string) Rule {
	r.ArgPattern = pattern
	return r
}

// WithPriority returns a copy of r with the priority set.
func (r Rule) WithPriority(p Priority) Rule {
	r.Priority = p
	return r
}

// WithReason returns a copy of r with the reason set.
func (r Rule) WithReason(reason string) Rule {
	r.Reason = reason
	return r
}

// HasArgPattern reports whether the rule constrains arguments.
func (r Rule) HasArgPattern() bool {
	return r.ArgPattern != ""
}

// DecisionReason returns the reason reported when the rule matches.
func (r Rule) DecisionReason() string {
	if r.Reason != "" {
		return r.Reason
	}
	return "Matched rule: " + r.Name
}

// Matches reports whether the rule applies to the tool call. The tool
// pattern is checked first; the argument pattern is only compiled when the
// tool name matches. A malformed pattern yields a *PatternError.
func (r Rule) Matches(toolName string, args []string) (bool, error) {
	m := compileRule(r)
	return m.matches(toolName, args)
}
