package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		wantStatus string
		wantFailed []string
	}{
		{
			name:       "no checks",
			wantStatus: StatusReady,
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"policy":    func(context.Context) error { return nil },
				"analytics": func(context.Context) error { return nil },
			},
			wantStatus: StatusReady,
		},
		{
			name: "one failing",
			checks: map[string]CheckFunc{
				"policy":    func(context.Context) error { return nil },
				"analytics": func(context.Context) error { return errors.New("database is locked") },
			},
			wantStatus: StatusDegraded,
			wantFailed: []string{"analytics"},
		},
		{
			name: "timeout",
			checks: map[string]CheckFunc{
				"slow": func(ctx context.Context) error {
					<-ctx.Done()
					time.Sleep(50 * time.Millisecond)
					return nil
				},
			},
			wantStatus: StatusDegraded,
			wantFailed: []string{"slow"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(20 * time.Millisecond)
			for name, check := range tt.checks {
				c.Register(name, check)
			}

			status := c.Readiness(context.Background())
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
			for _, name := range tt.wantFailed {
				assert.Equal(t, StatusUnhealthy, status.Checks[name].Status)
				assert.NotEmpty(t, status.Checks[name].Message)
			}
		})
	}
}

func TestChecker_RegisterUnregister(t *testing.T) {
	c := New(0)
	c.Register("b", func(context.Context) error { return nil })
	c.Register("a", func(context.Context) error { return nil })
	assert.Equal(t, []string{"a", "b"}, c.Names())

	c.Unregister("a")
	assert.Equal(t, []string{"b"}, c.Names())
}

func TestChecker_TimeoutMessage(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	status := c.Readiness(context.Background())
	assert.Equal(t, ErrCheckTimeout.Error(), status.Checks["slow"].Message)
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	healthy := true
	c.Register("policy", func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("policy not loaded")
	})

	mux := http.NewServeMux()
	c.Mount(mux, "1.2.3", "abc123", "2026-01-01")

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = get("/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var status Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, StatusDegraded, status.Status)
	assert.Equal(t, "policy not loaded", status.Checks["policy"].Message)

	rec = get("/version")
	var info VersionInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.NotEmpty(t, info.GoVersion)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/version", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())
}
