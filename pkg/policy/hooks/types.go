package hooks

import (
	"context"
	"fmt"
	"time"
)

// Type identifies the point in the tool lifecycle at which a hook runs.
type Type string

const (
	// BeforeTool hooks run before policy evaluation.
	BeforeTool Type = "before_tool"

	// AfterTool hooks run after the caller executed the tool.
	AfterTool Type = "after_tool"
)

// ExecutionResult describes the outcome of a tool execution.
type ExecutionResult struct {
	// Success reports whether the tool completed without error.
	Success bool `json:"success"`

	// Output is the tool's output, possibly truncated by the caller.
	Output string `json:"output,omitempty"`

	// Error is the failure message when Success is false.
	Error string `json:"error,omitempty"`

	// Duration is how long the tool ran.
	Duration time.Duration `json:"duration,omitempty"`
}

// Context is the request a hook inspects.
type Context struct {
	Type     Type              `json:"type"`
	ToolName string            `json:"tool_name"`
	Args     []string          `json:"args"`
	Result   *ExecutionResult  `json:"result,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the context.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := &Context{
		Type:     c.Type,
		ToolName: c.ToolName,
		Args:     append([]string(nil), c.Args...),
	}
	if c.Result != nil {
		r := *c.Result
		out.Result = &r
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Mutation is a typed rewrite of the request. A nil ToolName or a nil Args
// slice leaves that field unchanged; a non-nil empty Args clears the arguments.
// In JSON, a missing or null "args" leaves the arguments and [] clears them.
type Mutation struct {
	ToolName *string  `json:"tool_name,omitempty"`
	Args     []string `json:"args"`
}

// IsEmpty reports whether the mutation changes nothing.
func (m *Mutation) IsEmpty() bool {
	return m == nil || (m.ToolName == nil && m.Args == nil)
}

// Apply folds the mutation into name and args and returns the new values.
func (m *Mutation) Apply(name string, args []string) (string, []string) {
	if m == nil {
		return name, args
	}
	if m.ToolName != nil {
		name = *m.ToolName
	}
	if m.Args != nil {
		args = append([]string{}, m.Args...)
	}
	return name, args
}

// Result is what a hook returns.
type Result struct {
	// Continue is false when the hook vetoes the request.
	Continue bool `json:"should_continue"`

	// Mutation optionally rewrites the request. Ignored on AfterTool hooks.
	Mutation *Mutation `json:"modified_data,omitempty"`

	// Message is a human readable explanation, used as the denial reason on veto.
	Message string `json:"message,omitempty"`
}

// Continue returns a result that lets the request proceed unchanged.
func Continue() Result {
	return Result{Continue: true}
}

// Veto returns a result that stops the request.
func Veto(message string) Result {
	return Result{Continue: false, Message: message}
}

// Rewrite returns a continuing result that replaces the tool name and/or args.
func Rewrite(toolName *string, args []string) Result {
	return Result{Continue: true, Mutation: &Mutation{ToolName: toolName, Args: args}}
}

// Pipeline executes the hooks registered for a lifecycle point.
type Pipeline interface {
	// Execute runs the hooks of the given type against hc and returns their
	// results in execution order.
	Execute(ctx context.Context, typ Type, hc *Context) ([]Result, error)
}

// Hook is a single interceptor.
type Hook interface {
	Run(ctx context.Context, hc *Context) (Result, error)
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx context.Context, hc *Context) (Result, error)

// Run calls f(ctx, hc).
func (f HookFunc) Run(ctx context.Context, hc *Context) (Result, error) {
	return f(ctx, hc)
}

// Noop is a Pipeline with no hooks.
type Noop struct{}

// Execute returns no results.
func (Noop) Execute(context.Context, Type, *Context) ([]Result, error) {
	return nil, nil
}

// ExecutionError reports a hook that failed to run.
type ExecutionError struct {
	Hook  string
	Type  Type
	Cause error
}

// Error returns the error message.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s hook %q failed: %v", e.Type, e.Hook, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}
