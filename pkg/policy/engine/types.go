package engine

import (
	"fmt"
	"time"

	"radium-hq/toolgate/pkg/policy/dryrun"
)

// Action is the outcome of evaluating a tool request.
type Action string

const (
	// ActionAllow lets the tool run.
	ActionAllow Action = "allow"

	// ActionDeny blocks the tool.
	ActionDeny Action = "deny"

	// ActionAskUser requires human approval before the tool runs.
	ActionAskUser Action = "ask_user"

	// ActionDryRunFirst requires a preview to be shown before the tool runs.
	ActionDryRunFirst Action = "dry_run_first"
)

// ParseAction parses an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionAllow, ActionDeny, ActionAskUser, ActionDryRunFirst:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q (want allow, deny, ask_user or dry_run_first)", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	if _, err := ParseAction(string(a)); err != nil {
		return nil, err
	}
	return []byte(a), nil
}

// Priority orders rules. Higher priorities are scanned first.
type Priority int

const (
	PriorityDefault Priority = iota
	PriorityUser
	PriorityAdmin
)

var priorityNames = map[Priority]string{
	PriorityDefault: "default",
	PriorityUser:    "user",
	PriorityAdmin:   "admin",
}

// String returns the configuration name of the priority.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority parses a priority name.
func ParsePriority(s string) (Priority, error) {
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q (want admin, user or default)", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	name, ok := priorityNames[p]
	if !ok {
		return nil, fmt.Errorf("unknown priority %d", int(p))
	}
	return []byte(name), nil
}

// ApprovalMode is the engine-wide posture used when no rule matches.
type ApprovalMode string

const (
	// ModeYolo allows every unmatched request.
	ModeYolo ApprovalMode = "yolo"

	// ModeAutoEdit allows unmatched file edits and asks for everything else.
	ModeAutoEdit ApprovalMode = "auto_edit"

	// ModeAsk asks for every unmatched request.
	ModeAsk ApprovalMode = "ask"
)

// ParseApprovalMode parses an approval mode name.
func ParseApprovalMode(s string) (ApprovalMode, error) {
	switch m := ApprovalMode(s); m {
	case ModeYolo, ModeAutoEdit, ModeAsk:
		return m, nil
	}
	return "", fmt.Errorf("unknown approval mode %q (want yolo, auto_edit or ask)", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ApprovalMode) UnmarshalText(text []byte) error {
	parsed, err := ParseApprovalMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (m ApprovalMode) MarshalText() ([]byte, error) {
	if _, err := ParseApprovalMode(string(m)); err != nil {
		return nil, err
	}
	return []byte(m), nil
}

// editTools are the tools auto_edit mode allows without a matching rule.
var editTools = map[string]bool{
	"write_file":  true,
	"edit_file":   true,
	"update_file": true,
	"modify_file": true,
	"create_file": true,
}

// IsEditTool reports whether auto_edit mode treats name as a file edit.
func IsEditTool(name string) bool {
	return editTools[name]
}

// DecisionSource records which stage of evaluation produced a decision.
type DecisionSource string

const (
	SourceRule DecisionSource = "rule"
	SourceMode DecisionSource = "mode"
	SourceHook DecisionSource = "hook"
)

// Request is a tool invocation to evaluate.
type Request struct {
	ToolName string            `json:"tool_name"`
	Args     []string          `json:"args"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Decision is the result of evaluating a Request.
type Decision struct {
	// ID uniquely identifies this decision in logs and the audit trail.
	ID string `json:"id"`

	// Action is what the caller must do.
	Action Action `json:"action"`

	// MatchedRule names the rule that produced the decision. Empty when the
	// approval mode or a hook decided.
	MatchedRule string `json:"matched_rule,omitempty"`

	// Reason is a human readable explanation.
	Reason string `json:"reason"`

	// Preview is set when Action is ActionDryRunFirst.
	Preview *dryrun.Preview `json:"preview,omitempty"`

	// ToolName and Args are the effective request after hook rewrites.
	// Callers execute these, not the values they submitted.
	ToolName string   `json:"tool_name"`
	Args     []string `json:"args"`

	// Mode is the approval mode in force during evaluation.
	Mode ApprovalMode `json:"mode"`

	// Source is the evaluation stage that decided.
	Source DecisionSource `json:"source"`

	// HookFailure holds the error of a before-tool hook failure that was
	// tolerated under fail-open.
	HookFailure string `json:"hook_failure,omitempty"`

	// Generation is the rule set generation the decision was made against.
	Generation uint64 `json:"generation"`

	Timestamp      time.Time     `json:"timestamp"`
	EvaluationTime time.Duration `json:"evaluation_time"`
}

// IsAllowed reports whether the tool may run without further interaction.
func (d *Decision) IsAllowed() bool { return d.Action == ActionAllow }

// IsDenied reports whether the tool must not run.
func (d *Decision) IsDenied() bool { return d.Action == ActionDeny }

// RequiresApproval reports whether a human must approve the call.
func (d *Decision) RequiresApproval() bool { return d.Action == ActionAskUser }

// RequiresDryRun reports whether a preview must be shown first.
func (d *Decision) RequiresDryRun() bool { return d.Action == ActionDryRunFirst }
