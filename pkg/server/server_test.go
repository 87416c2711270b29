package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radium-hq/toolgate/pkg/policy/engine"
	"radium-hq/toolgate/pkg/policy/hooks"
	"radium-hq/toolgate/pkg/policy/manager"
	"radium-hq/toolgate/pkg/server/middleware"
	"radium-hq/toolgate/pkg/telemetry/health"
)

type recordingSink struct {
	mu       sync.Mutex
	metadata []map[string]string
}

func (s *recordingSink) RecordEvent(_ context.Context, _ *engine.Decision, _ string, _ []string, md map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = append(s.metadata, md)
	return nil
}

func (s *recordingSink) last() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.metadata) == 0 {
		return nil
	}
	return s.metadata[len(s.metadata)-1]
}

type stubReloader struct {
	ev  manager.ReloadEvent
	err error
}

func (r stubReloader) Reload(context.Context) (manager.ReloadEvent, error) {
	return r.ev, r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, opts ...engine.Option) *engine.Engine {
	t.Helper()
	eng, err := engine.New(engine.PolicyConfig{
		ApprovalMode: engine.ModeAsk,
		Rules: []engine.Rule{
			engine.NewRule("deny-rm", "run_shell_command", engine.ActionDeny).
				WithArgPattern("rm *").
				WithPriority(engine.PriorityAdmin).
				WithReason("destructive command"),
			engine.NewRule("allow-read", "read_*", engine.ActionAllow),
		},
	}, append([]engine.Option{engine.WithLogger(discardLogger())}, opts...)...)
	require.NoError(t, err)
	return eng
}

func post(t *testing.T, h http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestEvaluate(t *testing.T) {
	sink := &recordingSink{}
	h := New(newTestEngine(t, engine.WithAnalytics(sink)), Config{MaxBodyBytes: 1 << 16},
		WithLogger(discardLogger())).Handler()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantAction engine.Action
		wantRule   string
		wantCode   string
	}{
		{
			name:       "matching deny rule",
			body:       `{"tool_name":"run_shell_command","args":["rm -rf /tmp/x"]}`,
			wantStatus: http.StatusOK,
			wantAction: engine.ActionDeny,
			wantRule:   "deny-rm",
		},
		{
			name:       "matching allow rule",
			body:       `{"tool_name":"read_file","args":["main.go"]}`,
			wantStatus: http.StatusOK,
			wantAction: engine.ActionAllow,
			wantRule:   "allow-read",
		},
		{
			name:       "unmatched falls back to mode",
			body:       `{"tool_name":"web_fetch","args":["https://example.com"]}`,
			wantStatus: http.StatusOK,
			wantAction: engine.ActionAskUser,
		},
		{
			name:       "missing tool name",
			body:       `{"args":["x"]}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "malformed json",
			body:       `{"tool_name":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_json",
		},
		{
			name:       "unknown field",
			body:       `{"tool_name":"read_file","command":"x"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, h, "/v1/evaluate", tt.body, nil)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

			if tt.wantCode != "" {
				var resp middleware.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantCode, resp.Error.Code)
				return
			}

			var d engine.Decision
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantRule, d.MatchedRule)
			assert.NotEmpty(t, d.ID)
		})
	}
}

func TestEvaluateIdentityMetadata(t *testing.T) {
	sink := &recordingSink{}
	h := New(newTestEngine(t, engine.WithAnalytics(sink)), Config{}, WithLogger(discardLogger())).Handler()

	w := post(t, h, "/v1/evaluate", `{"tool_name":"read_file","args":["a"]}`, map[string]string{
		middleware.UserHeader:    "alice",
		middleware.SessionHeader: "sess-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", sink.last()["user"])
	assert.Equal(t, "sess-1", sink.last()["session_id"])

	w = post(t, h, "/v1/evaluate", `{"tool_name":"read_file","args":["a"],"metadata":{"user":"bob"}}`, map[string]string{
		middleware.UserHeader: "alice",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", sink.last()["user"], "body metadata wins over headers")
}

func TestEvaluateMethodNotAllowed(t *testing.T) {
	h := New(newTestEngine(t), Config{}, WithLogger(discardLogger())).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/evaluate", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestEvaluateBodyTooLarge(t *testing.T) {
	h := New(newTestEngine(t), Config{MaxBodyBytes: 16}, WithLogger(discardLogger())).Handler()

	w := post(t, h, "/v1/evaluate", `{"tool_name":"read_file","args":["a very long argument"]}`, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestEvaluateInvalidPattern(t *testing.T) {
	eng, err := engine.New(engine.PolicyConfig{
		Rules: []engine.Rule{engine.NewRule("broken", "[", engine.ActionDeny)},
	}, engine.WithLogger(discardLogger()))
	require.NoError(t, err)
	h := New(eng, Config{}, WithLogger(discardLogger())).Handler()

	w := post(t, h, "/v1/evaluate", `{"tool_name":"read_file"}`, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_rule", resp.Error.Code)
}

func TestAfterTool(t *testing.T) {
	reg := hooks.NewRegistry(discardLogger())
	var seen *hooks.ExecutionResult
	require.NoError(t, reg.Register(hooks.AfterTool, "audit", 0, hooks.HookFunc(
		func(_ context.Context, hc *hooks.Context) (hooks.Result, error) {
			seen = hc.Result
			return hooks.Continue(), nil
		})))
	require.NoError(t, reg.Register(hooks.AfterTool, "broken", -1, hooks.HookFunc(
		func(_ context.Context, hc *hooks.Context) (hooks.Result, error) {
			if hc.ToolName == "fail" {
				return hooks.Result{}, errors.New("boom")
			}
			return hooks.Continue(), nil
		})))

	h := New(newTestEngine(t, engine.WithHooks(reg)), Config{}, WithLogger(discardLogger())).Handler()

	t.Run("runs hooks", func(t *testing.T) {
		w := post(t, h, "/v1/after-tool",
			`{"tool_name":"run_shell_command","args":["ls"],"result":{"success":true,"output":"a.go"}}`, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp AfterToolResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Results, 2)
		require.NotNil(t, seen)
		assert.Equal(t, "a.go", seen.Output)
	})

	t.Run("hook failure", func(t *testing.T) {
		w := post(t, h, "/v1/after-tool", `{"tool_name":"fail","result":{"success":false}}`, nil)
		require.Equal(t, http.StatusBadGateway, w.Code)

		var resp middleware.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "hook_failed", resp.Error.Code)
	})
}

func TestRulesAndConflicts(t *testing.T) {
	eng := newTestEngine(t)
	eng.AddRule(engine.NewRule("deny-read", "read_*", engine.ActionDeny))
	h := New(eng, Config{}, WithLogger(discardLogger())).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/rules", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var rules RulesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rules))
	assert.Equal(t, engine.ModeAsk, rules.Mode)
	assert.Len(t, rules.Rules, 3)
	assert.Equal(t, "deny-rm", rules.Rules[0].Name)
	assert.Equal(t, eng.Generation(), rules.Generation)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/conflicts", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var conflicts ConflictsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conflicts))
	require.Len(t, conflicts.Conflicts, 1)
	assert.Equal(t, engine.ConflictDuplicatePattern, conflicts.Conflicts[0].Type)
}

func TestReload(t *testing.T) {
	t.Run("not mounted without reloader", func(t *testing.T) {
		h := New(newTestEngine(t), Config{}, WithLogger(discardLogger())).Handler()
		w := post(t, h, "/v1/reload", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("success", func(t *testing.T) {
		h := New(newTestEngine(t), Config{}, WithLogger(discardLogger()),
			WithReloader(stubReloader{ev: manager.ReloadEvent{Generation: 4, RuleCount: 2}})).Handler()
		w := post(t, h, "/v1/reload", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp ReloadResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, uint64(4), resp.Generation)
		assert.Equal(t, 2, resp.RuleCount)
	})

	t.Run("failure", func(t *testing.T) {
		h := New(newTestEngine(t), Config{}, WithLogger(discardLogger()),
			WithReloader(stubReloader{err: errors.New("parse error")})).Handler()
		w := post(t, h, "/v1/reload", "", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestHealthAndMetricsMounted(t *testing.T) {
	checker := health.New(time.Second)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("toolgate_decisions_total 1\n"))
	})
	h := New(newTestEngine(t), Config{}, WithLogger(discardLogger()),
		WithHealth(checker, "1.0.0", "abc", "today"), WithMetrics(metrics)).Handler()

	for _, path := range []string{"/healthz", "/readyz", "/version", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestStartShutdown(t *testing.T) {
	srv := New(newTestEngine(t), Config{ListenAddress: "127.0.0.1:0", ShutdownTimeout: time.Second},
		WithLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, srv.IsRunning, 2*time.Second, 10*time.Millisecond)

	url := fmt.Sprintf("http://%s/v1/evaluate", srv.Addr().String())
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(`{"tool_name":"read_file"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.False(t, srv.IsRunning())
}

func TestStartTwice(t *testing.T) {
	srv := New(newTestEngine(t), Config{ListenAddress: "127.0.0.1:0"}, WithLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Start(ctx) }()
	require.Eventually(t, srv.IsRunning, 2*time.Second, 10*time.Millisecond)

	err := srv.Start(ctx)
	assert.Error(t, err)
}
