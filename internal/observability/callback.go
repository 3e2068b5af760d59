// Package observability provides structured logging, request IDs, tracing,
// and a callback fan-out for generation events. Callbacks follow the sink
// pattern: the broker emits one event per finished request and every
// registered sink receives it; a failing sink is logged and never fails the
// request.
package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventStatus marks how a brokered request ended.
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusFailure EventStatus = "failure"
)

// AttemptRecord is one provider attempt within a brokered request.
type AttemptRecord struct {
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Reason    string `json:"reason,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// GenerationEvent is the unified payload delivered to every callback after a
// brokered generation request finishes.
type GenerationEvent struct {
	RequestID string      `json:"request_id"`
	CallerID  string      `json:"caller_id,omitempty"`
	Status    EventStatus `json:"status"`

	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	ModelHint string `json:"model_hint,omitempty"`

	PromptUnits     int `json:"prompt_units"`
	CompletionUnits int `json:"completion_units"`
	TotalUnits      int `json:"total_units"`
	EstimatedUnits  int `json:"estimated_units"`

	CacheHit bool `json:"cache_hit"`
	Degraded bool `json:"degraded,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	LatencyMs int64     `json:"latency_ms"`

	Attempts []AttemptRecord `json:"attempts,omitempty"`

	ErrorType string `json:"error_type,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Callback receives generation events. Implementations must be safe for
// concurrent use and must not block for long; slow sinks should buffer.
type Callback interface {
	// Name identifies the callback for registration and logs.
	Name() string

	// LogSuccessEvent is called after a request completes successfully,
	// including cache hits.
	LogSuccessEvent(ctx context.Context, event *GenerationEvent) error

	// LogFailureEvent is called after a request fails for good.
	LogFailureEvent(ctx context.Context, event *GenerationEvent, err error) error

	// Shutdown flushes buffered state. Called once at process exit.
	Shutdown(ctx context.Context) error
}

// CallbackManager fans events out to registered callbacks.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks []Callback
	logger    *slog.Logger
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager(logger *slog.Logger) *CallbackManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackManager{logger: logger}
}

// Register adds a callback. Registering a name twice replaces the earlier
// instance.
func (m *CallbackManager) Register(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.callbacks {
		if existing.Name() == cb.Name() {
			m.callbacks[i] = cb
			return
		}
	}
	m.callbacks = append(m.callbacks, cb)
}

// Unregister removes a callback by name.
func (m *CallbackManager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cb := range m.callbacks {
		if cb.Name() == name {
			m.callbacks = append(m.callbacks[:i], m.callbacks[i+1:]...)
			return
		}
	}
}

// Names lists registered callbacks.
func (m *CallbackManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.callbacks))
	for _, cb := range m.callbacks {
		names = append(names, cb.Name())
	}
	return names
}

// LogSuccessEvent delivers a success event to every callback.
func (m *CallbackManager) LogSuccessEvent(ctx context.Context, event *GenerationEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cb := range m.callbacks {
		if err := cb.LogSuccessEvent(ctx, event); err != nil {
			m.logger.Error("callback failed on success event",
				"callback", cb.Name(), "request_id", event.RequestID, "error", err)
		}
	}
}

// LogFailureEvent delivers a failure event to every callback.
func (m *CallbackManager) LogFailureEvent(ctx context.Context, event *GenerationEvent, cause error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cb := range m.callbacks {
		if err := cb.LogFailureEvent(ctx, event, cause); err != nil {
			m.logger.Error("callback failed on failure event",
				"callback", cb.Name(), "request_id", event.RequestID, "error", err)
		}
	}
}

// Shutdown stops every callback, collecting the first error.
func (m *CallbackManager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var first error
	for _, cb := range m.callbacks {
		if err := cb.Shutdown(ctx); err != nil {
			m.logger.Error("callback shutdown failed", "callback", cb.Name(), "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
