package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"radium-hq/toolgate/pkg/policy/dryrun"
	"radium-hq/toolgate/pkg/policy/hooks"
)

type mockAlerts struct{ mock.Mock }

func (m *mockAlerts) SendAlert(ctx context.Context, d *Decision, toolName string, args []string, metadata map[string]string) error {
	return m.Called(ctx, d, toolName, args, metadata).Error(0)
}

type mockAnalytics struct{ mock.Mock }

func (m *mockAnalytics) RecordEvent(ctx context.Context, d *Decision, toolName string, args []string, metadata map[string]string) error {
	return m.Called(ctx, d, toolName, args, metadata).Error(0)
}

type pipelineFunc func(ctx context.Context, typ hooks.Type, hc *hooks.Context) ([]hooks.Result, error)

func (f pipelineFunc) Execute(ctx context.Context, typ hooks.Type, hc *hooks.Context) ([]hooks.Result, error) {
	return f(ctx, typ, hc)
}

func newEngine(t *testing.T, mode ApprovalMode, rules []Rule, opts ...Option) *Engine {
	t.Helper()
	e, err := New(PolicyConfig{ApprovalMode: mode, Rules: rules}, opts...)
	require.NoError(t, err)
	return e
}

func TestEvaluate_AllowsReadTools(t *testing.T) {
	e := newEngine(t, ModeAsk, []Rule{NewRule("allow-reads", "read_*", ActionAllow)})

	d, err := e.EvaluateTool(context.Background(), "read_file", []string{"config.toml"})
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, d.Action)
	assert.Equal(t, "allow-reads", d.MatchedRule)
	assert.Equal(t, "Matched rule: allow-reads", d.Reason)
	assert.Equal(t, SourceRule, d.Source)
}

func TestEvaluate_AdminRuleOverridesUserRule(t *testing.T) {
	e := newEngine(t, ModeAsk, []Rule{
		NewRule("allow-all-bash", "bash:*", ActionAllow),
		NewRule("deny-rm", "bash:*", ActionDeny).WithArgPattern("*rm*").WithPriority(PriorityAdmin),
	})

	d, err := e.EvaluateTool(context.Background(), "bash:sh", []string{"rm", "-rf"})
	require.NoError(t, err)
	assert.Equal(t, ActionDeny, d.Action)
	assert.Equal(t, "deny-rm", d.MatchedRule)

	d, err = e.EvaluateTool(context.Background(), "bash:ls", []string{"-la"})
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, d.Action)
	assert.Equal(t, "allow-all-bash", d.MatchedRule)
}

func TestEvaluate_ApprovalModeFallback(t *testing.T) {
	tests := []struct {
		mode       ApprovalMode
		tool       string
		wantAction Action
		wantReason string
	}{
		{ModeAutoEdit, "write_file", ActionAllow, "Default auto_edit mode: allowed"},
		{ModeAutoEdit, "create_file", ActionAllow, "Default auto_edit mode: allowed"},
		{ModeAutoEdit, "modify_file", ActionAllow, "Default auto_edit mode: allowed"},
		{ModeAutoEdit, "delete_file", ActionAskUser, "Default auto_edit mode: requires approval"},
		{ModeAutoEdit, "write_files", ActionAskUser, "Default auto_edit mode: requires approval"},
		{ModeYolo, "delete_file", ActionAllow, "Default yolo mode: allowed"},
		{ModeAsk, "write_file", ActionAskUser, "Default ask mode: requires approval"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.mode, tt.tool), func(t *testing.T) {
			e := newEngine(t, tt.mode, nil)

			d, err := e.EvaluateTool(context.Background(), tt.tool, []string{"x.txt"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Empty(t, d.MatchedRule)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, SourceMode, d.Source)
			assert.Equal(t, tt.mode, d.Mode)
		})
	}
}

func TestEvaluate_DryRunAttachesPreview(t *testing.T) {
	e := newEngine(t, ModeAsk, []Rule{
		NewRule("tf-preview", "run_terminal_cmd", ActionDryRunFirst).WithArgPattern("terraform apply *"),
	})

	d, err := e.EvaluateTool(context.Background(), "run_terminal_cmd", []string{"terraform", "apply", "main.tf"})
	require.NoError(t, err)
	assert.Equal(t, ActionDryRunFirst, d.Action)
	require.NotNil(t, d.Preview)
	assert.Equal(t, "run_terminal_cmd", d.Preview.ToolName)
	assert.Contains(t, d.Preview.AffectedResources, "Terraform file: main.tf")
}

func TestEvaluate_HookVetoDenies(t *testing.T) {
	var calls int
	veto := pipelineFunc(func(context.Context, hooks.Type, *hooks.Context) ([]hooks.Result, error) {
		calls++
		return []hooks.Result{hooks.Veto("blocked")}, nil
	})
	analytics := new(mockAnalytics)
	analytics.On("RecordEvent", mock.Anything, mock.MatchedBy(func(d *Decision) bool {
		return d.Action == ActionDeny && d.Source == SourceHook
	}), "read_file", []string{"a"}, mock.Anything).Return(nil).Once()

	e := newEngine(t, ModeYolo, []Rule{NewRule("allow-reads", "read_*", ActionAllow)},
		WithHooks(veto), WithAnalytics(analytics))

	d, err := e.EvaluateTool(context.Background(), "read_file", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, ActionDeny, d.Action)
	assert.Equal(t, "blocked", d.Reason)
	assert.Empty(t, d.MatchedRule)
	assert.Equal(t, 1, calls)
	analytics.AssertExpectations(t)
}

func TestEvaluate_HookVetoWithoutMessage(t *testing.T) {
	veto := pipelineFunc(func(context.Context, hooks.Type, *hooks.Context) ([]hooks.Result, error) {
		return []hooks.Result{{Continue: false}}, nil
	})
	e := newEngine(t, ModeYolo, nil, WithHooks(veto))

	d, err := e.EvaluateTool(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionDeny, d.Action)
	assert.Equal(t, "Blocked by before-tool hook", d.Reason)
}

func TestEvaluate_MalformedPatternFails(t *testing.T) {
	e := newEngine(t, ModeYolo, []Rule{
		NewRule("broken", "bash:[", ActionDeny).WithPriority(PriorityAdmin),
		NewRule("allow-bash", "bash:*", ActionAllow),
	})

	d, err := e.EvaluateTool(context.Background(), "bash:ls", nil)
	require.Error(t, err)
	assert.Nil(t, d)

	var pe *PatternError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "broken", pe.Rule)
	assert.Equal(t, "tool_pattern", pe.Field)
}

func TestEvaluate_MalformedArgPattern(t *testing.T) {
	e := newEngine(t, ModeYolo, []Rule{
		NewRule("broken-args", "bash:*", ActionDeny).WithArgPattern("[oops"),
	})

	// The argument pattern is only compiled for matching tool names.
	_, err := e.EvaluateTool(context.Background(), "read_file", []string{"a"})
	require.NoError(t, err)

	_, err = e.EvaluateTool(context.Background(), "bash:sh", []string{"a"})
	var pe *PatternError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "arg_pattern", pe.Field)
}

func TestEvaluate_HookMutationsFolded(t *testing.T) {
	first := "write_file"
	second := "edit_file"
	var seen []string

	p := pipelineFunc(func(_ context.Context, typ hooks.Type, hc *hooks.Context) ([]hooks.Result, error) {
		require.Equal(t, hooks.BeforeTool, typ)
		seen = append(seen, hc.ToolName)
		return []hooks.Result{
			hooks.Rewrite(&first, []string{"a.txt"}),
			hooks.Rewrite(&second, nil),
			hooks.Continue(),
		}, nil
	})

	e := newEngine(t, ModeAsk, []Rule{NewRule("allow-edits", "edit_*", ActionAllow).WithArgPattern("a.txt")}, WithHooks(p))

	d, err := e.EvaluateTool(context.Background(), "bash:sh", []string{"rm", "-rf"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bash:sh"}, seen)
	assert.Equal(t, "edit_file", d.ToolName)
	assert.Equal(t, []string{"a.txt"}, d.Args)
	assert.Equal(t, ActionAllow, d.Action)
	assert.Equal(t, "allow-edits", d.MatchedRule)
}

func TestEvaluate_BeforeToolFailure(t *testing.T) {
	renamed := "write_file"
	failing := pipelineFunc(func(context.Context, hooks.Type, *hooks.Context) ([]hooks.Result, error) {
		return []hooks.Result{hooks.Rewrite(&renamed, nil)}, errors.New("hook crashed")
	})

	t.Run("fail-open keeps partial rewrites", func(t *testing.T) {
		e := newEngine(t, ModeAutoEdit, nil, WithHooks(failing))

		d, err := e.EvaluateTool(context.Background(), "delete_file", []string{"x"})
		require.NoError(t, err)
		assert.Equal(t, "write_file", d.ToolName)
		assert.Equal(t, ActionAllow, d.Action)
		assert.Contains(t, d.HookFailure, "hook crashed")
	})

	t.Run("fail-closed denies", func(t *testing.T) {
		cfg := DefaultEngineConfig().WithBeforeToolFailure(FailClosed)
		e := newEngine(t, ModeYolo, nil, WithHooks(failing), WithConfig(cfg))

		d, err := e.EvaluateTool(context.Background(), "delete_file", []string{"x"})
		require.NoError(t, err)
		assert.Equal(t, ActionDeny, d.Action)
		assert.Equal(t, SourceHook, d.Source)
		assert.Contains(t, d.Reason, "hook crashed")
	})
}

func TestEvaluate_SinkDispatch(t *testing.T) {
	alerts := new(mockAlerts)
	analytics := new(mockAnalytics)

	alerts.On("SendAlert", mock.Anything, mock.MatchedBy(func(d *Decision) bool {
		return d.Action == ActionDeny
	}), "bash:sh", []string{"rm", "-rf"}, map[string]string{"user": "dev"}).Return(errors.New("webhook down")).Once()
	analytics.On("RecordEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("disk full")).Twice()

	e := newEngine(t, ModeAsk, []Rule{
		NewRule("deny-rm", "bash:*", ActionDeny).WithArgPattern("rm"),
		NewRule("allow-reads", "read_*", ActionAllow),
	}, WithAlerts(alerts), WithAnalytics(analytics))

	d, err := e.Evaluate(context.Background(), Request{
		ToolName: "bash:sh",
		Args:     []string{"rm", "-rf"},
		Metadata: map[string]string{"user": "dev"},
	})
	require.NoError(t, err, "sink failures must not fail evaluation")
	assert.Equal(t, ActionDeny, d.Action)

	d, err = e.EvaluateTool(context.Background(), "read_file", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, d.Action)

	alerts.AssertExpectations(t)
	alerts.AssertNumberOfCalls(t, "SendAlert", 1)
	analytics.AssertExpectations(t)
}

func TestEvaluate_SinkContextIsBounded(t *testing.T) {
	analytics := new(mockAnalytics)
	analytics.On("RecordEvent", mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return hasDeadline && ctx.Err() == nil
	}), mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	e := newEngine(t, ModeYolo, nil, WithAnalytics(analytics))

	_, err := e.EvaluateTool(context.Background(), "x", nil)
	require.NoError(t, err)
	analytics.AssertExpectations(t)
}

func TestEvaluate_PreviewFailure(t *testing.T) {
	gen := dryrun.GeneratorFunc(func(context.Context, string, []string) (*dryrun.Preview, error) {
		return nil, errors.New("no terraform binary")
	})
	e := newEngine(t, ModeYolo, []Rule{NewRule("preview-all", "*", ActionDryRunFirst)}, WithPreviewGenerator(gen))

	_, err := e.EvaluateTool(context.Background(), "run_terminal_cmd", []string{"terraform", "apply"})
	var pe *PreviewError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "run_terminal_cmd", pe.Tool)
}

func TestEvaluate_CancelledContext(t *testing.T) {
	e := newEngine(t, ModeYolo, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.EvaluateTool(ctx, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRuleOrdering_StableByPriority(t *testing.T) {
	e := newEngine(t, ModeAsk, nil)

	additions := []Rule{
		NewRule("u1", "a", ActionAllow),
		NewRule("d1", "b", ActionAllow).WithPriority(PriorityDefault),
		NewRule("a1", "c", ActionAllow).WithPriority(PriorityAdmin),
		NewRule("u2", "d", ActionAllow),
		NewRule("d2", "e", ActionAllow).WithPriority(PriorityDefault),
		NewRule("a2", "f", ActionAllow).WithPriority(PriorityAdmin),
		NewRule("u3", "g", ActionAllow),
	}
	for _, r := range additions {
		e.AddRule(r)
		require.True(t, IsSortedByPriority(e.Rules()))
	}

	var names []string
	for _, r := range e.Rules() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"a1", "a2", "u1", "u2", "u3", "d1", "d2"}, names)
	assert.Equal(t, 7, e.RuleCount())
	assert.Equal(t, uint64(8), e.Generation())
}

func TestFirstMatchWins_LowerPriorityAdditionIgnored(t *testing.T) {
	e := newEngine(t, ModeAsk, []Rule{NewRule("deny-bash", "bash:*", ActionDeny)})

	before, err := e.EvaluateTool(context.Background(), "bash:sh", []string{"ls"})
	require.NoError(t, err)

	e.AddRule(NewRule("allow-bash", "bash:*", ActionAllow).WithPriority(PriorityDefault))
	e.AddRule(NewRule("allow-sh", "bash:sh", ActionAllow))

	after, err := e.EvaluateTool(context.Background(), "bash:sh", []string{"ls"})
	require.NoError(t, err)
	assert.Equal(t, before.Action, after.Action)
	assert.Equal(t, "deny-bash", after.MatchedRule)
}

func TestRuleMatches(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		tool string
		args []string
		want bool
	}{
		{"tool only ignores args", NewRule("r", "read_*", ActionAllow), "read_file", []string{"anything", "at all"}, true},
		{"tool only no args", NewRule("r", "read_*", ActionAllow), "read_file", nil, true},
		{"tool mismatch", NewRule("r", "read_*", ActionAllow).WithArgPattern("*"), "write_file", []string{"x"}, false},
		{"single arg element", NewRule("r", "bash:*", ActionDeny).WithArgPattern("*rm*"), "bash:sh", []string{"ls", "rm"}, true},
		{"joined args", NewRule("r", "run", ActionDeny).WithArgPattern("terraform apply *"), "run", []string{"terraform", "apply", "x.tf"}, true},
		{"joined args no element", NewRule("r", "run", ActionDeny).WithArgPattern("git push*"), "run", []string{"git", "push"}, true},
		{"neither element nor joined", NewRule("r", "run", ActionDeny).WithArgPattern("terraform destroy*"), "run", []string{"terraform", "apply"}, false},
		{"empty args joined is empty", NewRule("r", "run", ActionDeny).WithArgPattern("*"), "run", nil, true},
		{"empty args literal", NewRule("r", "run", ActionDeny).WithArgPattern("x"), "run", nil, false},
		{"question mark", NewRule("r", "bash:??", ActionDeny), "bash:sh", nil, true},
		{"class", NewRule("r", "[rw]*_file", ActionDeny), "write_file", nil, true},
		{"alternatives", NewRule("r", "{read,write}_file", ActionDeny), "edit_file", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.rule.Matches(tt.tool, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecuteAfterToolHooks(t *testing.T) {
	t.Run("no pipeline", func(t *testing.T) {
		e := newEngine(t, ModeAsk, nil)
		results, err := e.ExecuteAfterToolHooks(context.Background(), "bash:sh", []string{"ls"}, &hooks.ExecutionResult{Success: true})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("results and context", func(t *testing.T) {
		p := pipelineFunc(func(_ context.Context, typ hooks.Type, hc *hooks.Context) ([]hooks.Result, error) {
			assert.Equal(t, hooks.AfterTool, typ)
			require.NotNil(t, hc.Result)
			assert.Equal(t, "out", hc.Result.Output)
			return []hooks.Result{{Continue: true, Message: "logged"}}, nil
		})
		e := newEngine(t, ModeAsk, nil, WithHooks(p))

		results, err := e.ExecuteAfterToolHooks(context.Background(), "bash:sh", nil, &hooks.ExecutionResult{Success: true, Output: "out"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "logged", results[0].Message)
	})

	t.Run("failure propagates", func(t *testing.T) {
		boom := errors.New("audit hook failed")
		p := pipelineFunc(func(context.Context, hooks.Type, *hooks.Context) ([]hooks.Result, error) {
			return nil, boom
		})
		e := newEngine(t, ModeAsk, nil, WithHooks(p))

		_, err := e.ExecuteAfterToolHooks(context.Background(), "bash:sh", nil, nil)
		var he *HookError
		require.ErrorAs(t, err, &he)
		assert.Equal(t, hooks.AfterTool, he.Type)
		assert.ErrorIs(t, err, boom)
	})
}

func TestUpdateFrom_PreservesCollaborators(t *testing.T) {
	veto := pipelineFunc(func(_ context.Context, _ hooks.Type, hc *hooks.Context) ([]hooks.Result, error) {
		if hc.ToolName == "forbidden" {
			return []hooks.Result{hooks.Veto("hook says no")}, nil
		}
		return nil, nil
	})
	live := newEngine(t, ModeAsk, []Rule{NewRule("old", "*", ActionDeny)}, WithHooks(veto))
	next := newEngine(t, ModeYolo, []Rule{NewRule("new", "read_*", ActionAllow)})
	genBefore := live.Generation()

	live.UpdateFrom(next)

	assert.Equal(t, ModeYolo, live.ApprovalMode())
	require.Equal(t, 1, live.RuleCount())
	assert.Equal(t, "new", live.Rules()[0].Name)
	assert.Greater(t, live.Generation(), genBefore)

	d, err := live.EvaluateTool(context.Background(), "forbidden", nil)
	require.NoError(t, err)
	assert.Equal(t, "hook says no", d.Reason)

	d, err = live.EvaluateTool(context.Background(), "bash:sh", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, d.Action)
	assert.Equal(t, SourceMode, d.Source)
}

func TestSetApprovalMode(t *testing.T) {
	e := newEngine(t, "", nil)
	assert.Equal(t, ModeAsk, e.ApprovalMode())

	require.NoError(t, e.SetApprovalMode(ModeYolo))
	assert.Equal(t, ModeYolo, e.ApprovalMode())
	assert.Error(t, e.SetApprovalMode("reckless"))
}

func TestNew_InvalidInputs(t *testing.T) {
	_, err := New(PolicyConfig{ApprovalMode: "reckless"})
	assert.Error(t, err)

	_, err = New(PolicyConfig{}, WithConfig(&EngineConfig{BeforeToolFailure: FailOpen}))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEngine_ConcurrentEvaluationAndMutation(t *testing.T) {
	e := newEngine(t, ModeAsk, []Rule{NewRule("deny-bash", "bash:*", ActionDeny).WithPriority(PriorityAdmin)})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				d, err := e.EvaluateTool(context.Background(), "bash:sh", []string{"ls"})
				if err != nil {
					t.Errorf("EvaluateTool() error = %v", err)
					return
				}
				if d.Action != ActionDeny {
					t.Errorf("Action = %s, want deny", d.Action)
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		e.AddRule(NewRule(fmt.Sprintf("allow-%d", i), "bash:*", ActionAllow))
	}
	wg.Wait()

	assert.Equal(t, 51, e.RuleCount())
}
