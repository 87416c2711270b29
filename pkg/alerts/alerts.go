package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"radium-hq/toolgate/pkg/policy/engine"
	"radium-hq/toolgate/pkg/telemetry/tracing"
)

// Severity ranks alerts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	}
	return 0
}

// ParseSeverity parses a severity name.
func ParseSeverity(s string) (Severity, error) {
	if sev := Severity(s); sev.rank() > 0 {
		return sev, nil
	}
	return "", fmt.Errorf("unknown alert severity %q (want info, warning or critical)", s)
}

// Meets reports whether s is at least min.
func (s Severity) Meets(min Severity) bool {
	return s.rank() >= min.rank()
}

// SeverityFor maps a decision action to an alert severity. Allowed actions
// have no severity.
func SeverityFor(a engine.Action) (Severity, bool) {
	switch a {
	case engine.ActionDeny:
		return SeverityCritical, true
	case engine.ActionAskUser:
		return SeverityWarning, true
	case engine.ActionDryRunFirst:
		return SeverityInfo, true
	}
	return "", false
}

// Webhook is an alert destination.
type Webhook struct {
	URL string

	// Token, if set, is sent as a bearer token.
	Token string

	// MinSeverity filters alerts. Default: warning.
	MinSeverity Severity
}

// Config configures a Manager.
type Config struct {
	Enabled  bool
	Webhooks []Webhook

	// RateLimitPerMinute caps deliveries across all webhooks. Default: 10.
	RateLimitPerMinute int

	// Timeout bounds each webhook request. Default: 5s.
	Timeout time.Duration
}

// Payload is the JSON body posted to webhooks.
type Payload struct {
	Severity    Severity `json:"severity"`
	Timestamp   string   `json:"timestamp"`
	DecisionID  string   `json:"decision_id"`
	ToolName    string   `json:"tool_name"`
	Arguments   []string `json:"arguments"`
	Action      string   `json:"action"`
	MatchedRule string   `json:"matched_rule,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	User        string   `json:"user,omitempty"`
}

// ErrRateLimited is returned when the per-minute budget is exhausted.
var ErrRateLimited = errors.New("alert rate limited")

// Manager sends alerts. It implements engine.AlertSink.
type Manager struct {
	config   Config
	limiter  *rate.Limiter
	client   *http.Client
	logger   *slog.Logger
	observer func(Severity, error)
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the HTTP client used for webhooks.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithObserver registers a callback invoked after every delivery attempt.
func WithObserver(fn func(Severity, error)) Option {
	return func(m *Manager) { m.observer = fn }
}

// New creates a Manager.
func New(cfg Config, opts ...Option) *Manager {
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	for i := range cfg.Webhooks {
		if cfg.Webhooks[i].MinSeverity == "" {
			cfg.Webhooks[i].MinSeverity = SeverityWarning
		}
	}

	m := &Manager{
		config:  cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimitPerMinute)), cfg.RateLimitPerMinute),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "alerts")

	return m
}

// Disabled returns a Manager that never sends.
func Disabled() *Manager {
	return New(Config{})
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.config
}

// SendAlert posts the decision to every webhook whose threshold it meets.
// It returns ErrRateLimited when the budget is exhausted and the joined
// delivery errors otherwise.
func (m *Manager) SendAlert(ctx context.Context, d *engine.Decision, toolName string, args []string, metadata map[string]string) error {
	if !m.config.Enabled || len(m.config.Webhooks) == 0 {
		return nil
	}

	severity, ok := SeverityFor(d.Action)
	if !ok {
		return nil
	}

	if !m.limiter.AllowN(m.now(), 1) {
		m.logger.Warn("alert rate limited", "decision_id", d.ID, "severity", string(severity))
		return ErrRateLimited
	}

	payload := Payload{
		Severity:    severity,
		Timestamp:   m.now().UTC().Format(time.RFC3339),
		DecisionID:  d.ID,
		ToolName:    toolName,
		Arguments:   append([]string{}, args...),
		Action:      string(d.Action),
		MatchedRule: d.MatchedRule,
		Reason:      d.Reason,
		User:        metadata["user"],
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	var errs []error
	for _, wh := range m.config.Webhooks {
		if !severity.Meets(wh.MinSeverity) {
			continue
		}

		err := m.post(ctx, wh, body)
		if m.observer != nil {
			m.observer(severity, err)
		}
		if err != nil {
			m.logger.Error("failed to send alert webhook", "webhook_url", wh.URL, "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m *Manager) post(ctx context.Context, wh Webhook, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook %s: %w", wh.URL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.Inject(ctx, req.Header)
	if wh.Token != "" {
		req.Header.Set("Authorization", "Bearer "+wh.Token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", wh.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s: unexpected status %d", wh.URL, resp.StatusCode)
	}
	return nil
}
