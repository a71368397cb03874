package metrics

import (
	"context"
	"sync"
	"time"
)

// Tracer provides distributed tracing hooks around the connection and
// request lifecycle. The interface keeps the TLS core free of any
// particular tracing backend.
type Tracer interface {
	// StartSpan starts a span. The returned SpanEnder must be called
	// exactly once, with nil for success or the failure error.
	StartSpan(ctx context.Context, name string) (context.Context, SpanEnder)
}

// SpanEnder ends a span. A non-nil error marks the span failed.
type SpanEnder func(err error)

// NoOpTracer is the default when tracing is not configured.
type NoOpTracer struct{}

// StartSpan returns the context unchanged and a no-op end function.
func (NoOpTracer) StartSpan(ctx context.Context, name string) (context.Context, SpanEnder) {
	return ctx, func(err error) {}
}

// RecordedSpan is a completed span captured by SimpleTracer.
type RecordedSpan struct {
	Name     string
	Start    time.Time
	Duration time.Duration
	Err      error
}

// SimpleTracer records spans in memory. Used in tests.
type SimpleTracer struct {
	mu    sync.Mutex
	spans []RecordedSpan
}

// NewSimpleTracer creates an empty in-memory tracer.
func NewSimpleTracer() *SimpleTracer {
	return &SimpleTracer{}
}

// StartSpan records a span on end.
func (t *SimpleTracer) StartSpan(ctx context.Context, name string) (context.Context, SpanEnder) {
	start := time.Now()
	return ctx, func(err error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.spans = append(t.spans, RecordedSpan{
			Name:     name,
			Start:    start,
			Duration: time.Since(start),
			Err:      err,
		})
	}
}

// Spans returns a copy of the recorded spans.
func (t *SimpleTracer) Spans() []RecordedSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RecordedSpan, len(t.spans))
	copy(out, t.spans)
	return out
}
