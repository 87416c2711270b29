package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T, ratio float64) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tr, err := NewWithExporter(&Config{Enabled: true, SampleRatio: ratio}, exp)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })
	return tr, exp
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "nil config", config: nil, wantErr: true},
		{name: "disabled", config: &Config{Enabled: false}},
		{name: "invalid ratio", config: &Config{Enabled: true, SampleRatio: 1.5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.False(t, tr.Enabled())
			assert.NoError(t, tr.Shutdown(context.Background()))
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "toolgate", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Positive(t, cfg.Timeout)
}

func TestTracer_DisabledIsNoop(t *testing.T) {
	tr, err := New(&Config{})
	require.NoError(t, err)

	ctx, span := tr.Start(context.Background(), "noop")
	span.End()

	assert.False(t, span.SpanContext().IsValid())
	assert.Empty(t, TraceID(ctx))
}

func TestTracer_RecordsSpans(t *testing.T) {
	tr, exp := newTestTracer(t, 1)

	ctx, parent := tr.Start(context.Background(), "parent")
	_, child := tr.Start(ctx, "child")
	SetStatus(child, errors.New("boom"))
	child.End()
	SetStatus(parent, nil)
	parent.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "child", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "parent", spans[1].Name)
	assert.Equal(t, codes.Ok, spans[1].Status.Code)
	assert.Equal(t, spans[1].SpanContext.TraceID(), spans[0].Parent.TraceID())
	assert.NotEmpty(t, TraceID(ctx))
}

func TestTracer_NeverSample(t *testing.T) {
	tr, exp := newTestTracer(t, 0)

	_, span := tr.Start(context.Background(), "dropped")
	span.End()

	assert.Empty(t, exp.GetSpans())
}

func TestSetRequestAttributes(t *testing.T) {
	tr, exp := newTestTracer(t, 1)

	_, span := tr.Start(context.Background(), "request")
	SetRequestAttributes(span, "req-1", "alice", "")
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, "req-1", attrs["request.id"])
	assert.Equal(t, "alice", attrs["user.id"])
	assert.NotContains(t, attrs, "session.id")
}

func TestHTTPMiddleware_ContinuesIncomingTrace(t *testing.T) {
	tr, exp := newTestTracer(t, 1)

	var seen string
	h := HTTPMiddleware(tr, "/v1/evaluate", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	}))

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, traceID, seen)
	assert.Equal(t, traceID, rec.Header().Get("X-Trace-ID"))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "http /v1/evaluate", spans[0].Name)
}

func TestInjectExtract(t *testing.T) {
	tr, _ := newTestTracer(t, 1)

	ctx, span := tr.Start(context.Background(), "outbound")
	defer span.End()

	headers := http.Header{}
	Inject(ctx, headers)
	require.NotEmpty(t, headers.Get("traceparent"))

	got := Extract(context.Background(), headers)
	assert.Equal(t, TraceID(ctx), TraceID(got))
}
