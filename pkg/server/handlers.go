package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"radium-hq/toolgate/pkg/policy/engine"
	"radium-hq/toolgate/pkg/policy/hooks"
	"radium-hq/toolgate/pkg/server/middleware"
	"radium-hq/toolgate/pkg/telemetry/logging"
)

// EvaluateRequest is the body of POST /v1/evaluate.
type EvaluateRequest struct {
	ToolName string            `json:"tool_name"`
	Args     []string          `json:"args"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AfterToolRequest is the body of POST /v1/after-tool.
type AfterToolRequest struct {
	ToolName string                 `json:"tool_name"`
	Args     []string               `json:"args"`
	Result   *hooks.ExecutionResult `json:"result"`
}

// AfterToolResponse lists the after-tool hook results in execution order.
type AfterToolResponse struct {
	Results []hooks.Result `json:"results"`
}

// RulesResponse is the body of GET /v1/rules.
type RulesResponse struct {
	Mode       engine.ApprovalMode `json:"mode"`
	Generation uint64              `json:"generation"`
	Rules      []engine.Rule       `json:"rules"`
}

// ConflictsResponse is the body of GET /v1/conflicts.
type ConflictsResponse struct {
	Conflicts []engine.Conflict `json:"conflicts"`
}

// ReloadResponse is the body of POST /v1/reload.
type ReloadResponse struct {
	Generation uint64 `json:"generation"`
	RuleCount  int    `json:"rule_count"`
	Conflicts  int    `json:"conflicts"`
	DurationMs int64  `json:"duration_ms"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ToolName == "" {
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid_request", "tool_name is required")
		return
	}

	d, err := s.evaluator.Evaluate(r.Context(), engine.Request{
		ToolName: req.ToolName,
		Args:     req.Args,
		Metadata: withIdentity(r, req.Metadata),
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleAfterTool(w http.ResponseWriter, r *http.Request) {
	var req AfterToolRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ToolName == "" {
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid_request", "tool_name is required")
		return
	}

	results, err := s.evaluator.ExecuteAfterToolHooks(r.Context(), req.ToolName, req.Args, req.Result)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AfterToolResponse{Results: results})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RulesResponse{
		Mode:       s.evaluator.ApprovalMode(),
		Generation: s.evaluator.Generation(),
		Rules:      s.evaluator.Rules(),
	})
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts := s.evaluator.DetectConflicts()
	if conflicts == nil {
		conflicts = []engine.Conflict{}
	}
	writeJSON(w, http.StatusOK, ConflictsResponse{Conflicts: conflicts})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	ev, err := s.reloader.Reload(r.Context())
	if err != nil {
		s.logger.WarnContext(r.Context(), "reload rejected", "error", err)
		middleware.WriteError(w, r, http.StatusUnprocessableEntity, "reload_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ReloadResponse{
		Generation: ev.Generation,
		RuleCount:  ev.RuleCount,
		Conflicts:  ev.Conflicts,
		DurationMs: ev.Duration.Milliseconds(),
	})
}

// decode reads a JSON body, rejecting unknown fields and trailing data.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	if dec.More() {
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid_json", "unexpected data after JSON body")
		return false
	}
	return true
}

// writeEngineError maps engine failures to status codes. Pattern errors are
// policy bugs; hook errors come from an integration the operator installed.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		patternErr *engine.PatternError
		hookErr    *engine.HookError
	)
	switch {
	case errors.As(err, &patternErr):
		s.logger.ErrorContext(r.Context(), "invalid rule pattern", "rule", patternErr.Rule, "error", err)
		middleware.WriteError(w, r, http.StatusInternalServerError, "invalid_rule", err.Error())
	case errors.As(err, &hookErr):
		s.logger.ErrorContext(r.Context(), "hook failed", "hook_type", hookErr.Type, "error", err)
		middleware.WriteError(w, r, http.StatusBadGateway, "hook_failed", err.Error())
	case r.Context().Err() != nil && errors.Is(err, r.Context().Err()):
		middleware.WriteError(w, r, http.StatusServiceUnavailable, "cancelled", err.Error())
	default:
		s.logger.ErrorContext(r.Context(), "evaluation failed", "error", err)
		middleware.WriteError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// withIdentity fills user and session metadata from the request headers
// when the body does not carry them.
func withIdentity(r *http.Request, metadata map[string]string) map[string]string {
	user := logging.GetUser(r.Context())
	session := logging.GetSession(r.Context())
	if user == "" && session == "" {
		return metadata
	}

	out := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		out[k] = v
	}
	if _, ok := out["user"]; !ok && user != "" {
		out["user"] = user
	}
	if _, ok := out["session_id"]; !ok && session != "" {
		out["session_id"] = session
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
