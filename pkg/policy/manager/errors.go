package manager

import (
	"fmt"
	"strings"

	"radium-hq/toolgate/pkg/policy/engine"
)

// ReloadError reports a reload that was rejected. The engine keeps the rules
// it had before the attempt.
type ReloadError struct {
	// Path is the policy file that failed to load.
	Path string

	// Cause is the underlying error: an engine LoadError, ParseError or
	// ValidationError, or a *ConflictError.
	Cause error
}

// Error implements the error interface.
func (e *ReloadError) Error() string {
	return fmt.Sprintf("policy reload from %q rejected: %v", e.Path, e.Cause)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *ReloadError) Unwrap() error {
	return e.Cause
}

// ConflictError reports conflicting rules in a policy that was loaded with
// conflict rejection enabled.
type ConflictError struct {
	Conflicts []engine.Conflict
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 1 {
		c := e.Conflicts[0]
		return fmt.Sprintf("rules %q and %q conflict", c.Rule1.Name, c.Rule2.Name)
	}
	pairs := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		pairs = append(pairs, c.Rule1.Name+"/"+c.Rule2.Name)
	}
	return fmt.Sprintf("%d rule conflicts: %s", len(e.Conflicts), strings.Join(pairs, ", "))
}
