package engine

import (
	"strings"

	"github.com/gobwas/glob"
)

// compiledRule caches a rule's compiled globs. Compile failures are kept and
// reported when the rule is reached during a scan, so a bad pattern fails the
// evaluation that needs it rather than the rule set build.
type compiledRule struct {
	rule Rule

	tool    glob.Glob
	toolErr error

	arg    glob.Glob
	argErr error
}

func compileRule(r Rule) *compiledRule {
	c := &compiledRule{rule: r}
	c.tool, c.toolErr = glob.Compile(r.ToolPattern)
	if r.HasArgPattern() {
		c.arg, c.argErr = glob.Compile(r.ArgPattern)
	}
	return c
}

// err returns the first compile error of the rule, if any.
func (c *compiledRule) err() error {
	if c.toolErr != nil {
		return &PatternError{Rule: c.rule.Name, Field: "tool_pattern", Pattern: c.rule.ToolPattern, Cause: c.toolErr}
	}
	if c.argErr != nil {
		return &PatternError{Rule: c.rule.Name, Field: "arg_pattern", Pattern: c.rule.ArgPattern, Cause: c.argErr}
	}
	return nil
}

func (c *compiledRule) matches(toolName string, args []string) (bool, error) {
	if c.toolErr != nil {
		return false, &PatternError{Rule: c.rule.Name, Field: "tool_pattern", Pattern: c.rule.ToolPattern, Cause: c.toolErr}
	}
	if !c.tool.Match(toolName) {
		return false, nil
	}

	if !c.rule.HasArgPattern() {
		return true, nil
	}
	if c.argErr != nil {
		return false, &PatternError{Rule: c.rule.Name, Field: "arg_pattern", Pattern: c.rule.ArgPattern, Cause: c.argErr}
	}

	for _, a := range args {
		if c.arg.Match(a) {
			return true, nil
		}
	}
	return c.arg.Match(strings.Join(args, " ")), nil
}

// ValidatePattern reports whether pattern is a valid glob.
func ValidatePattern(pattern string) error {
	_, err := glob.Compile(pattern)
	return err
}
