package engine

import (
	"fmt"
	"time"
)

// FailSafeMode determines how the engine handles a failing BeforeTool hook
// pipeline.
type FailSafeMode string

const (
	// FailOpen logs the failure and evaluates the request with whatever
	// rewrites the hooks produced before failing. This is the default.
	FailOpen FailSafeMode = "fail-open"

	// FailClosed denies the request.
	FailClosed FailSafeMode = "fail-closed"
)

// ParseFailSafeMode parses a fail-safe mode name.
func ParseFailSafeMode(s string) (FailSafeMode, error) {
	switch m := FailSafeMode(s); m {
	case FailOpen, FailClosed:
		return m, nil
	}
	return "", fmt.Errorf("%w: invalid fail-safe mode %q", ErrInvalidConfig, s)
}

// EngineConfig contains configuration for the policy engine.
type EngineConfig struct {
	// BeforeToolFailure selects what happens when the BeforeTool hook
	// pipeline returns an error.
	// Default: FailOpen.
	BeforeToolFailure FailSafeMode

	// HookTimeout bounds each hook pipeline call.
	// Default: 5s.
	HookTimeout time.Duration

	// SinkTimeout bounds each alert and analytics dispatch. Sinks run on a
	// context that is not cancelled with the caller's.
	// Default: 2s.
	SinkTimeout time.Duration

	// PreviewTimeout bounds dry-run preview generation.
	// Default: 2s.
	PreviewTimeout time.Duration
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		BeforeToolFailure: FailOpen,
		HookTimeout:       5 * time.Second,
		SinkTimeout:       2 * time.Second,
		PreviewTimeout:    2 * time.Second,
	}
}

// Validate validates the engine configuration.
func (c *EngineConfig) Validate() error {
	if _, err := ParseFailSafeMode(string(c.BeforeToolFailure)); err != nil {
		return err
	}

	if c.HookTimeout <= 0 {
		return fmt.Errorf("%w: hook timeout must be positive", ErrInvalidConfig)
	}
	if c.SinkTimeout <= 0 {
		return fmt.Errorf("%w: sink timeout must be positive", ErrInvalidConfig)
	}
	if c.PreviewTimeout <= 0 {
		return fmt.Errorf("%w: preview timeout must be positive", ErrInvalidConfig)
	}

	return nil
}

// WithBeforeToolFailure sets the BeforeTool failure mode.
func (c *EngineConfig) WithBeforeToolFailure(mode FailSafeMode) *EngineConfig {
	c.BeforeToolFailure = mode
	return c
}

// WithHookTimeout sets the hook pipeline timeout.
func (c *EngineConfig) WithHookTimeout(timeout time.Duration) *EngineConfig {
	c.HookTimeout = timeout
	return c
}

// WithSinkTimeout sets the alert and analytics dispatch timeout.
func (c *EngineConfig) WithSinkTimeout(timeout time.Duration) *EngineConfig {
	c.SinkTimeout = timeout
	return c
}

// WithPreviewTimeout sets the dry-run preview timeout.
func (c *EngineConfig) WithPreviewTimeout(timeout time.Duration) *EngineConfig {
	c.PreviewTimeout = timeout
	return c
}
