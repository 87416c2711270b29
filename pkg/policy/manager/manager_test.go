package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radium-hq/toolgate/pkg/policy/engine"
)

const basePolicy = `approval_mode = "ask"

[[rules]]
name = "allow-read"
tool_pattern = "read_*"
action = "allow"
`

const updatedPolicy = `approval_mode = "yolo"

[[rules]]
name = "allow-read"
tool_pattern = "read_*"
action = "allow"

[[rules]]
name = "deny-rm"
tool_pattern = "bash"
arg_pattern = "*rm -rf*"
action = "deny"
priority = "admin"
`

const conflictingPolicy = `approval_mode = "ask"

[[rules]]
name = "allow-shell"
tool_pattern = "bash"
action = "allow"

[[rules]]
name = "deny-shell"
tool_pattern = "bash"
action = "deny"
`

func setup(t *testing.T, content string, cfg Config, opts ...Option) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	eng, err := engine.NewFromFile(path)
	require.NoError(t, err)

	cfg.Path = path
	m, err := New(eng, cfg, opts...)
	require.NoError(t, err)
	return m, path
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{Path: "policy.toml"})
	assert.Error(t, err)

	eng, err := engine.New(engine.PolicyConfig{})
	require.NoError(t, err)
	_, err = New(eng, Config{})
	assert.Error(t, err)
}

func TestReload_InstallsNewRules(t *testing.T) {
	var events []ReloadEvent
	m, path := setup(t, basePolicy, Config{}, WithReloadCallback(func(ev ReloadEvent) {
		events = append(events, ev)
	}))
	eng := m.Engine()
	before := eng.Generation()

	require.NoError(t, os.WriteFile(path, []byte(updatedPolicy), 0o644))
	ev, err := m.Reload(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, eng.RuleCount())
	assert.Equal(t, engine.ModeYolo, eng.ApprovalMode())
	assert.Greater(t, eng.Generation(), before)
	assert.Equal(t, eng.Generation(), ev.Generation)
	assert.Equal(t, 2, ev.RuleCount)
	require.Len(t, events, 1)
	assert.NoError(t, events[0].Err)
	assert.Equal(t, ev, m.LastReload())

	d, err := eng.EvaluateTool(context.Background(), "bash", []string{"rm -rf /"})
	require.NoError(t, err)
	assert.Equal(t, engine.ActionDeny, d.Action)
}

func TestReload_FailureKeepsRules(t *testing.T) {
	tests := []struct {
		name    string
		content string
		remove  bool
		check   func(t *testing.T, err error)
	}{
		{
			name:    "parse error",
			content: "approval_mode = \n",
			check: func(t *testing.T, err error) {
				var pe *engine.ParseError
				assert.True(t, errors.As(err, &pe))
			},
		},
		{
			name:    "validation error",
			content: "[[rules]]\nname = \"no-pattern\"\naction = \"allow\"\n",
			check: func(t *testing.T, err error) {
				var ve *engine.ValidationError
				assert.True(t, errors.As(err, &ve))
			},
		},
		{
			name:   "missing file",
			remove: true,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, os.ErrNotExist)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, path := setup(t, basePolicy, Config{})
			eng := m.Engine()
			gen := eng.Generation()

			if tt.remove {
				require.NoError(t, os.Remove(path))
			} else {
				require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			}

			ev, err := m.Reload(context.Background())
			require.Error(t, err)
			var re *ReloadError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, path, re.Path)
			tt.check(t, err)

			assert.Equal(t, gen, eng.Generation())
			assert.Equal(t, 1, eng.RuleCount())
			assert.Equal(t, engine.ModeAsk, eng.ApprovalMode())
			assert.Equal(t, err, ev.Err)
		})
	}
}

func TestReload_Conflicts(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		m, path := setup(t, basePolicy, Config{RejectConflicts: true})
		require.NoError(t, os.WriteFile(path, []byte(conflictingPolicy), 0o644))

		ev, err := m.Reload(context.Background())
		var ce *ConflictError
		require.True(t, errors.As(err, &ce))
		assert.Len(t, ce.Conflicts, 1)
		assert.Contains(t, ce.Error(), "allow-shell")
		assert.Equal(t, 1, ev.Conflicts)
		assert.Equal(t, 1, m.Engine().RuleCount())
	})

	t.Run("accepted with warning", func(t *testing.T) {
		m, path := setup(t, basePolicy, Config{})
		require.NoError(t, os.WriteFile(path, []byte(conflictingPolicy), 0o644))

		ev, err := m.Reload(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, ev.Conflicts)
		assert.Equal(t, 2, m.Engine().RuleCount())
	})
}

func TestReload_CancelledContext(t *testing.T) {
	m, _ := setup(t, basePolicy, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Reload(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatch_Disabled(t *testing.T) {
	m, _ := setup(t, basePolicy, Config{Watch: false})
	assert.NoError(t, m.Watch(context.Background()))
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	var mu sync.Mutex
	var events []ReloadEvent
	m, path := setup(t, basePolicy, Config{Watch: true, Debounce: 20 * time.Millisecond},
		WithReloadCallback(func(ev ReloadEvent) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(updatedPolicy), 0o644))

	assert.Eventually(t, func() bool {
		return m.Engine().RuleCount() == 2
	}, 5*time.Second, 20*time.Millisecond)

	// A broken save is reported but the rules stay.
	require.NoError(t, os.WriteFile(path, []byte("not toml ["), 0o644))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0 && events[len(events)-1].Err != nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 2, m.Engine().RuleCount())
}
