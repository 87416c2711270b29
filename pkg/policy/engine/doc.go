// Package engine decides whether an agent's tool invocation may run.
//
// A request (tool name and arguments) passes through the BeforeTool hook
// pipeline, which may veto it or rewrite it. The effective request is then
// matched against a priority-ordered rule set; the first matching rule
// decides. When no rule matches, the engine-wide approval mode decides.
//
// # Evaluation Flow
//
//	Request{ToolName, Args}
//	       ↓
//	BeforeTool hooks (veto → Deny, rewrites folded in order)
//	       ↓
//	Rules in priority order (Admin > User > Default, ties in declaration order)
//	  first match → rule action (+ dry-run preview for dry_run_first)
//	       ↓
//	No match → approval mode (yolo: allow, auto_edit: allow edits, ask: ask)
//	       ↓
//	Alert sink (non-allow) + analytics sink (all) → Decision
//
// # Rule Matching
//
// Tool and argument patterns are globs. A rule without an argument pattern
// matches on tool name alone. An argument pattern matches when it matches
// any single argument or all arguments joined by spaces, so "*rm*" catches
// a flag and "terraform apply *" catches an invocation shape.
//
// A malformed pattern makes Evaluate return a *PatternError. It never
// degrades into a silent allow or deny.
//
// # Basic Usage
//
//	eng, err := engine.NewFromFile("policy.toml",
//	    engine.WithHooks(registry),
//	    engine.WithAlerts(alertManager),
//	    engine.WithAnalytics(recorder, collector),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	d, err := eng.EvaluateTool(ctx, "run_terminal_cmd", []string{"terraform", "apply", "main.tf"})
//	if err != nil {
//	    return err // do not execute
//	}
//	if d.RequiresDryRun() {
//	    fmt.Print(dryrun.Format(d.Preview))
//	}
//
// # Hook Failures
//
// A failing BeforeTool pipeline is handled according to
// EngineConfig.BeforeToolFailure: fail-open (default) evaluates the request
// with the rewrites gathered before the failure, fail-closed denies it.
// AfterTool pipeline failures are always returned to the caller.
//
// # Conflicts
//
// Two rules of the same priority whose patterns overlap but whose actions
// differ are a conflict: which one wins depends only on declaration order.
// DetectConflicts finds them; ResolveConflicts removes one rule of each
// pair according to a ResolutionStrategy.
//
// # Thread Safety
//
// The engine is safe for concurrent use. Evaluations read an immutable
// snapshot; mutations publish a new snapshot atomically.
package engine
