package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"radium-hq/toolgate/pkg/policy/dryrun"
	"radium-hq/toolgate/pkg/policy/hooks"
)

const tracerName = "radium-hq/toolgate/pkg/policy/engine"

// state is an immutable snapshot of everything a rule scan reads.
type state struct {
	mode       ApprovalMode
	rules      *RuleSet
	generation uint64
}

// Engine evaluates tool requests against a priority-ordered rule set.
//
// Evaluations load the current snapshot once and scan it without locking.
// Mutations (AddRule, UpdateFrom, ResolveConflicts, SetApprovalMode) are
// serialized and publish a new snapshot atomically.
type Engine struct {
	current atomic.Pointer[state]

	// writeMu serializes snapshot replacement
	writeMu sync.Mutex

	hooks     hooks.Pipeline
	alerts    AlertSink
	analytics AnalyticsSink
	previews  dryrun.Generator

	config *EngineConfig
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithHooks sets the hook pipeline. Default: no hooks.
func WithHooks(p hooks.Pipeline) Option {
	return func(e *Engine) {
		if p != nil {
			e.hooks = p
		}
	}
}

// WithAlerts sets the alert sink. Default: discard.
func WithAlerts(s AlertSink) Option {
	return func(e *Engine) {
		if s != nil {
			e.alerts = s
		}
	}
}

// WithAnalytics sets the analytics sinks. Several sinks receive every event
// in order. Default: discard.
func WithAnalytics(sinks ...AnalyticsSink) Option {
	return func(e *Engine) {
		var nonNil MultiAnalytics
		for _, s := range sinks {
			if s != nil {
				nonNil = append(nonNil, s)
			}
		}
		switch len(nonNil) {
		case 0:
		case 1:
			e.analytics = nonNil[0]
		default:
			e.analytics = nonNil
		}
	}
}

// WithPreviewGenerator sets the dry-run preview generator.
// Default: dryrun.NewGenerator().
func WithPreviewGenerator(g dryrun.Generator) Option {
	return func(e *Engine) {
		if g != nil {
			e.previews = g
		}
	}
}

// WithConfig sets the engine configuration. Default: DefaultEngineConfig().
func WithConfig(cfg *EngineConfig) Option {
	return func(e *Engine) {
		if cfg != nil {
			e.config = cfg
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer sets the tracer. Default: the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// New creates an engine from a policy. Rules are sorted once by priority;
// patterns are not validated here and a malformed one fails the evaluations
// that reach it. Use LoadFile or ParseConfig to reject invalid policies up
// front.
func New(policy PolicyConfig, opts ...Option) (*Engine, error) {
	mode := policy.ApprovalMode
	if mode == "" {
		mode = ModeAsk
	}
	if _, err := ParseApprovalMode(string(mode)); err != nil {
		return nil, err
	}

	e := &Engine{
		hooks:     hooks.Noop{},
		alerts:    nopAlerts{},
		analytics: nopAnalytics{},
		previews:  dryrun.NewGenerator(),
		config:    DefaultEngineConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	e.logger = e.logger.With("component", "policy.engine")

	e.current.Store(&state{mode: mode, rules: NewRuleSet(policy.Rules), generation: 1})

	return e, nil
}

// NewFromFile loads and validates a policy file and creates an engine from
// it. No engine is created if the file cannot be read, parsed or validated.
func NewFromFile(path string, opts ...Option) (*Engine, error) {
	policy, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return New(*policy, opts...)
}

// Evaluate decides whether a tool request may run.
//
// An error means the request must not run. Errors are a *PatternError for a
// malformed rule, a *PreviewError for a failed dry-run preview, or the
// context's error on cancellation.
func (e *Engine) Evaluate(ctx context.Context, req Request) (*Decision, error) {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "policy.evaluate_tool",
		trace.WithAttributes(attribute.String("tool.name", req.ToolName)))
	defer span.End()

	fail := func(err error) (*Decision, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	st := e.current.Load()
	d := &Decision{
		ID:         uuid.NewString(),
		ToolName:   req.ToolName,
		Args:       append([]string{}, req.Args...),
		Mode:       st.mode,
		Generation: st.generation,
		Timestamp:  start,
	}

	decided, err := e.runBeforeTool(ctx, req, d)
	if err != nil {
		return fail(err)
	}

	if !decided {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		rule, err := st.rules.Match(d.ToolName, d.Args)
		if err != nil {
			e.logger.Error("rule pattern error", "tool", d.ToolName, "error", err)
			return fail(err)
		}

		if rule != nil {
			d.Action = rule.Action
			d.MatchedRule = rule.Name
			d.Reason = rule.DecisionReason()
			d.Source = SourceRule

			if d.Action == ActionDryRunFirst {
				preview, err := e.preview(ctx, d.ToolName, d.Args)
				if err != nil {
					return fail(err)
				}
				d.Preview = preview
			}
		} else {
			e.applyMode(d, st.mode)
		}
	}

	d.EvaluationTime = time.Since(start)
	span.SetAttributes(
		attribute.String("policy.action", string(d.Action)),
		attribute.String("policy.source", string(d.Source)),
		attribute.String("policy.rule", d.MatchedRule),
	)

	e.dispatch(ctx, d, req.Metadata)

	return d, nil
}

// EvaluateTool evaluates a request without metadata.
func (e *Engine) EvaluateTool(ctx context.Context, toolName string, args []string) (*Decision, error) {
	return e.Evaluate(ctx, Request{ToolName: toolName, Args: args})
}

// runBeforeTool runs the BeforeTool pipeline and folds its results into d.
// It reports true when the pipeline decided the request.
func (e *Engine) runBeforeTool(ctx context.Context, req Request, d *Decision) (bool, error) {
	hctx, cancel := context.WithTimeout(ctx, e.config.HookTimeout)
	defer cancel()

	results, err := e.hooks.Execute(hctx, hooks.BeforeTool, &hooks.Context{
		Type:     hooks.BeforeTool,
		ToolName: req.ToolName,
		Args:     req.Args,
		Metadata: req.Metadata,
	})

	for _, r := range results {
		if !r.Continue {
			d.Action = ActionDeny
			d.Source = SourceHook
			d.Reason = r.Message
			if d.Reason == "" {
				d.Reason = "Blocked by before-tool hook"
			}
			return true, nil
		}
		d.ToolName, d.Args = r.Mutation.Apply(d.ToolName, d.Args)
	}

	if err == nil {
		return false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	d.HookFailure = err.Error()
	if e.config.BeforeToolFailure == FailClosed {
		e.logger.Warn("before-tool hooks failed, denying", "tool", req.ToolName, "error", err)
		d.Action = ActionDeny
		d.Source = SourceHook
		d.Reason = fmt.Sprintf("Before-tool hooks failed: %v", err)
		return true, nil
	}

	e.logger.Warn("before-tool hooks failed, continuing", "tool", req.ToolName, "error", err)
	return false, nil
}

func (e *Engine) applyMode(d *Decision, mode ApprovalMode) {
	d.Source = SourceMode

	switch mode {
	case ModeYolo:
		d.Action = ActionAllow
	case ModeAutoEdit:
		if IsEditTool(d.ToolName) {
			d.Action = ActionAllow
		} else {
			d.Action = ActionAskUser
		}
	default:
		d.Action = ActionAskUser
	}

	outcome := "requires approval"
	if d.Action == ActionAllow {
		outcome = "allowed"
	}
	d.Reason = fmt.Sprintf("Default %s mode: %s", mode, outcome)
}

func (e *Engine) preview(ctx context.Context, toolName string, args []string) (*dryrun.Preview, error) {
	pctx, cancel := context.WithTimeout(ctx, e.config.PreviewTimeout)
	defer cancel()

	p, err := e.previews.Generate(pctx, toolName, args)
	if err != nil {
		return nil, &PreviewError{Tool: toolName, Cause: err}
	}
	return p, nil
}

// dispatch notifies the sinks. It runs detached from ctx cancellation but
// bounded by SinkTimeout, and never fails.
func (e *Engine) dispatch(ctx context.Context, d *Decision, metadata map[string]string) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.SinkTimeout)
	defer cancel()

	if d.Action != ActionAllow {
		if err := e.alerts.SendAlert(sctx, d, d.ToolName, d.Args, metadata); err != nil {
			e.logger.Warn("alert dispatch failed", "decision_id", d.ID, "error", err)
		}
	}
	if err := e.analytics.RecordEvent(sctx, d, d.ToolName, d.Args, metadata); err != nil {
		e.logger.Warn("analytics dispatch failed", "decision_id", d.ID, "error", err)
	}
}

// ExecuteAfterToolHooks runs the AfterTool pipeline with the execution
// result. Unlike BeforeTool failures, pipeline errors are returned as a
// *HookError.
func (e *Engine) ExecuteAfterToolHooks(ctx context.Context, toolName string, args []string, result *hooks.ExecutionResult) ([]hooks.Result, error) {
	ctx, span := e.tracer.Start(ctx, "policy.after_tool",
		trace.WithAttributes(attribute.String("tool.name", toolName)))
	defer span.End()

	hctx, cancel := context.WithTimeout(ctx, e.config.HookTimeout)
	defer cancel()

	results, err := e.hooks.Execute(hctx, hooks.AfterTool, &hooks.Context{
		Type:     hooks.AfterTool,
		ToolName: toolName,
		Args:     args,
		Result:   result,
	})
	if err != nil {
		herr := &HookError{Type: hooks.AfterTool, Cause: err}
		span.RecordError(herr)
		span.SetStatus(codes.Error, herr.Error())
		return nil, herr
	}
	if results == nil {
		results = []hooks.Result{}
	}
	return results, nil
}

// AddRule adds a rule after every existing rule of the same priority.
func (e *Engine) AddRule(r Rule) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	st := e.current.Load()
	e.publish(st.mode, st.rules.With(r))
}

// SetApprovalMode changes the approval mode.
func (e *Engine) SetApprovalMode(mode ApprovalMode) error {
	if _, err := ParseApprovalMode(string(mode)); err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.publish(mode, e.current.Load().rules)
	return nil
}

// UpdateFrom replaces the approval mode and rules with those of other. The
// hook pipeline, sinks, preview generator and configuration of e are kept.
func (e *Engine) UpdateFrom(other *Engine) {
	if other == nil || other == e {
		return
	}
	src := other.current.Load()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.publish(src.mode, src.rules)
	e.logger.Info("policy rules replaced",
		"approval_mode", string(src.mode),
		"rule_count", src.rules.Len(),
		"generation", e.current.Load().generation,
	)
}

// publish stores a new snapshot. Callers hold writeMu.
func (e *Engine) publish(mode ApprovalMode, rules *RuleSet) {
	prev := e.current.Load()
	e.current.Store(&state{mode: mode, rules: rules, generation: prev.generation + 1})
}

// Rules returns the rules in scan order.
func (e *Engine) Rules() []Rule {
	return e.current.Load().rules.Rules()
}

// RuleCount returns the number of rules.
func (e *Engine) RuleCount() int {
	return e.current.Load().rules.Len()
}

// ApprovalMode returns the approval mode.
func (e *Engine) ApprovalMode() ApprovalMode {
	return e.current.Load().mode
}

// Generation returns a counter incremented by every mutation.
func (e *Engine) Generation() uint64 {
	return e.current.Load().generation
}

// PolicyConfig returns the current policy, suitable for MarshalConfig.
func (e *Engine) PolicyConfig() PolicyConfig {
	st := e.current.Load()
	return PolicyConfig{ApprovalMode: st.mode, Rules: st.rules.Rules()}
}

// DetectConflicts reports same-priority rules with overlapping patterns and
// different actions.
func (e *Engine) DetectConflicts() []Conflict {
	return DetectConflicts(e.Rules())
}

// AutoResolveConflicts resolves conflicts with KeepHighestPriority and
// returns the names of the removed rules.
func (e *Engine) AutoResolveConflicts() []string {
	removed, _ := e.ResolveConflicts(KeepHighestPriority)
	return removed
}

// ResolveConflicts removes one rule from every conflict according to s and
// returns the names of the removed rules. Running it again removes nothing.
func (e *Engine) ResolveConflicts(s ResolutionStrategy) ([]string, error) {
	if !s.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, int(s))
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	st := e.current.Load()
	conflicts := DetectConflicts(st.rules.Rules())
	if len(conflicts) == 0 {
		return nil, nil
	}

	indexes, names := ResolveConflicts(conflicts, s)
	e.publish(st.mode, st.rules.Without(indexes))

	e.logger.Info("conflicting rules removed",
		"strategy", s.String(),
		"conflicts", len(conflicts),
		"removed", names,
	)
	return names, nil
}
