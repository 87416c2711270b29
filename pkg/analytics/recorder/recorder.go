package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"radium-hq/toolgate/pkg/analytics"
	"radium-hq/toolgate/pkg/policy/engine"
)

// Config contains configuration for the recorder.
type Config struct {
	// Enabled enables recording.
	Enabled bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds each storage write and how long RecordEvent waits
	// for buffer space.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// RedactSecrets hides secret-looking argument values.
	// Default: true
	RedactSecrets bool

	// MaxArgLength truncates long arguments. 0 disables truncation.
	// Default: 500
	MaxArgLength int
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		AsyncBuffer:   1000,
		WriteTimeout:  5 * time.Second,
		RedactSecrets: true,
		MaxArgLength:  500,
	}
}

// Recorder records policy decisions. It implements engine.AnalyticsSink.
type Recorder struct {
	storage   analytics.Storage
	config    *Config
	eventChan chan *analytics.Event
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger

	// OnStored, if set, is called after each successful write.
	OnStored func(*analytics.Event)
}

// NewRecorder creates a recorder and starts its background writer.
func NewRecorder(storage analytics.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		storage:   storage,
		config:    config,
		eventChan: make(chan *analytics.Event, config.AsyncBuffer),
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "analytics.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Debug("analytics recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)

	return r
}

// RecordEvent builds an event from the decision and enqueues it. It returns
// without waiting for storage.
func (r *Recorder) RecordEvent(ctx context.Context, d *engine.Decision, toolName string, args []string, metadata map[string]string) error {
	if !r.config.Enabled {
		return nil
	}

	event := r.NewEvent(d, toolName, args, metadata)

	select {
	case <-r.done:
		return analytics.NewRecorderError(event.ID, context.Canceled)
	default:
	}

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r.eventChan <- event:
		return nil
	case <-ctx.Done():
		r.logger.Warn("analytics event dropped", "event_id", event.ID, "error", ctx.Err())
		return analytics.NewRecorderError(event.ID, ctx.Err())
	case <-timer.C:
		r.logger.Error("analytics channel full, dropping event",
			"event_id", event.ID,
			"channel_capacity", r.config.AsyncBuffer,
		)
		return analytics.NewRecorderError(event.ID, context.DeadlineExceeded)
	case <-r.done:
		return analytics.NewRecorderError(event.ID, context.Canceled)
	}
}

// NewEvent converts a decision into an event without recording it.
func (r *Recorder) NewEvent(d *engine.Decision, toolName string, args []string, metadata map[string]string) *analytics.Event {
	ts := d.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var stored []string
	if r.config.RedactSecrets {
		stored = RedactArgs(args)
	} else {
		stored = append([]string{}, args...)
	}
	for i := range stored {
		stored[i] = TruncateString(stored[i], r.config.MaxArgLength)
	}

	return &analytics.Event{
		ID:             uuid.New().String(),
		DecisionID:     d.ID,
		Timestamp:      ts,
		ToolName:       toolName,
		Arguments:      stored,
		ArgsHash:       HashArgs(args),
		Action:         string(d.Action),
		MatchedRule:    d.MatchedRule,
		Reason:         d.Reason,
		Source:         string(d.Source),
		Mode:           string(d.Mode),
		Generation:     d.Generation,
		HookFailure:    d.HookFailure,
		User:           metadata["user"],
		SessionID:      metadata["session_id"],
		EvaluationTime: d.EvaluationTime,
	}
}

// Close stops accepting events, drains the buffer into storage and waits
// for the writer to finish. It is safe to call more than once.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.logger.Debug("analytics recorder shut down")
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case event := <-r.eventChan:
			r.write(event)

		case <-r.done:
			for {
				select {
				case event := <-r.eventChan:
					r.write(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(event *analytics.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, event); err != nil {
		r.logger.Error("failed to store analytics event",
			"event_id", event.ID,
			"tool_name", event.ToolName,
			"error", err,
		)
		return
	}

	if d := time.Since(start); d > r.config.WriteTimeout/2 {
		r.logger.Warn("slow analytics write",
			"event_id", event.ID,
			"duration_ms", d.Milliseconds(),
		)
	}

	if r.OnStored != nil {
		r.OnStored(event)
	}
}
