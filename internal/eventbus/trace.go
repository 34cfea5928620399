package eventbus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TraceContext is carried in context.Context and mirrored into every worker
// message envelope so logs and downstream operations across goroutine and
// process boundaries share the same traceId.
type TraceContext struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	StartTime    time.Time
	Metadata     map[string]string
}

type traceKey struct{}

// NewTrace starts a root trace for an incoming request or scheduled task.
func NewTrace() *TraceContext {
	return &TraceContext{
		TraceID:   uuid.NewString(),
		SpanID:    uuid.NewString(),
		StartTime: time.Now(),
		Metadata:  map[string]string{},
	}
}

// NewChildSpan derives a new span within the same trace, for a sub-operation
// (e.g. a worker picking up a dispatched task).
func (t *TraceContext) NewChildSpan() *TraceContext {
	if t == nil {
		return NewTrace()
	}
	return &TraceContext{
		TraceID:      t.TraceID,
		SpanID:       uuid.NewString(),
		ParentSpanID: t.SpanID,
		StartTime:    time.Now(),
		Metadata:     t.Metadata,
	}
}

// WithTrace stores t in ctx.
func WithTrace(ctx context.Context, t *TraceContext) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// TraceFromContext retrieves the TraceContext stored by WithTrace, creating
// a fresh root trace if none is present so callers never need a nil check.
func TraceFromContext(ctx context.Context) *TraceContext {
	if t, ok := ctx.Value(traceKey{}).(*TraceContext); ok && t != nil {
		return t
	}
	return NewTrace()
}
