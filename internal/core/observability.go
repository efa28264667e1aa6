package core

import (
	"context"
	"time"

	"gravecore/pkg/domain"
)

// Logger is the structured logging contract used by the service. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// AuditRecorder receives one entry per service operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry domain.AuditEntry)
}

// MetricsRecorder observes operation outcomes and latency.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, domain.AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// StoreAuditRecorder appends audit entries to the persistent store so they can
// be served back per record.
type StoreAuditRecorder struct {
	store  domain.PersistentStore
	logger Logger
}

// NewStoreAuditRecorder wraps a store. Failures are logged, never returned.
func NewStoreAuditRecorder(store domain.PersistentStore, logger Logger) *StoreAuditRecorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &StoreAuditRecorder{store: store, logger: logger}
}

// Record implements AuditRecorder.
func (r *StoreAuditRecorder) Record(ctx context.Context, entry domain.AuditEntry) {
	if entry.Entity == "" || entry.EntityID == "" {
		return
	}
	if err := r.store.RecordAudit(ctx, entry); err != nil {
		r.logger.Warn("audit persist failed", "operation", entry.Operation, "error", err)
	}
}

// FanoutAuditRecorder forwards every entry to each recorder in order.
type FanoutAuditRecorder []AuditRecorder

// Record implements AuditRecorder.
func (f FanoutAuditRecorder) Record(ctx context.Context, entry domain.AuditEntry) {
	for _, rec := range f {
		if rec != nil {
			rec.Record(ctx, entry)
		}
	}
}

// ChangePublisher delivers serialized change log entries to a topic.
type ChangePublisher interface {
	Publish(topic string, payload []byte) error
}
