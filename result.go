package mealwise

import (
	"fmt"
	"log/slog"
	"time"
)

// AgentResult is the uniform outcome of one stage. It never carries a panic or raw error past the stage boundary.
type AgentResult[T any] struct {
	Success    bool      `json:"success"`
	Value      *T        `json:"value,omitempty"`
	Confidence float64   `json:"confidence"`
	Error      ErrorKind `json:"error,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
}

func Succeeded[T any](v T, confidence float64, latency time.Duration) AgentResult[T] {
	return AgentResult[T]{
		Success:    true,
		Value:      &v,
		Confidence: clamp01(confidence),
		LatencyMs:  latency.Milliseconds(),
	}
}

func Failed[T any](err error, latency time.Duration) AgentResult[T] {
	return AgentResult[T]{
		Error:     KindOf(err),
		Detail:    err.Error(),
		LatencyMs: latency.Milliseconds(),
	}
}

// Get returns the value, or the zero value when the stage failed.
func (r AgentResult[T]) Get() T {
	if r.Value == nil {
		var zero T
		return zero
	}
	return *r.Value
}

// Invoke runs fn as one agent call: it measures latency, recovers panics and
// converts every failure into an unsuccessful result.
func Invoke[T any](op string, fn func() (T, float64, error)) (res AgentResult[T]) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("AGENT: Recovered panic", "op", op, "panic", r)
			res = Failed[T](NewProviderError(op, "agent panicked", fmt.Errorf("%v", r)), time.Since(start))
		}
	}()

	v, conf, err := fn()
	if err != nil {
		return Failed[T](err, time.Since(start))
	}
	return Succeeded(v, conf, time.Since(start))
}

func clamp01(v float64) float64 {
	if v < 0 || v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
