package engine

import (
	"errors"
	"fmt"
	"strings"

	"radium-hq/toolgate/pkg/policy/hooks"
)

// Common sentinel errors
var (
	// ErrInvalidConfig indicates invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrUnknownStrategy indicates an unrecognized conflict resolution strategy.
	ErrUnknownStrategy = errors.New("unknown resolution strategy")

	// ErrPolicyLocked indicates another process is writing the policy file.
	ErrPolicyLocked = errors.New("policy file is locked by another writer")
)

// PatternError indicates a malformed glob in a rule. It aborts the whole
// evaluation; no fallback decision is produced.
type PatternError struct {
	Rule    string
	Field   string
	Pattern string
	Cause   error
}

// Error returns the error message.
func (e *PatternError) Error() string {
	return fmt.Sprintf("rule %q: invalid %s %q: %v", e.Rule, e.Field, e.Pattern, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *PatternError) Unwrap() error {
	return e.Cause
}

// LoadError indicates a policy file could not be read.
type LoadError struct {
	Path  string
	Cause error
}

// Error returns the error message.
func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load policy file %q: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// ParseError indicates a policy file is not valid TOML or does not match the
// policy schema.
type ParseError struct {
	Path  string
	Cause error
}

// Error returns the error message.
func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to parse policy: %v", e.Cause)
	}
	return fmt.Sprintf("failed to parse policy file %q: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ValidationError indicates a semantically invalid policy.
type ValidationError struct {
	Errors []string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("policy validation error: %s", e.Errors[0])
	}
	return fmt.Sprintf("%d policy validation errors: %s", len(e.Errors), strings.Join(e.Errors, "; "))
}

// PreviewError indicates the dry-run preview for a matched rule could not be
// generated.
type PreviewError struct {
	Tool  string
	Cause error
}

// Error returns the error message.
func (e *PreviewError) Error() string {
	return fmt.Sprintf("failed to generate dry-run preview for %q: %v", e.Tool, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *PreviewError) Unwrap() error {
	return e.Cause
}

// HookError indicates a hook pipeline failure surfaced to the caller.
type HookError struct {
	Type  hooks.Type
	Cause error
}

// Error returns the error message.
func (e *HookError) Error() string {
	return fmt.Sprintf("%s hooks failed: %v", e.Type, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *HookError) Unwrap() error {
	return e.Cause
}
