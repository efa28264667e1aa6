package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"gravecore/pkg/domain"
)

type captureAuditRecorder struct {
	entries []domain.AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry domain.AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status domain.AuditStatus, predicate func(domain.AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status && (predicate == nil || predicate(entry)) {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	ended map[string]error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s captureSpan) End(err error) {
	if s.tracer.ended == nil {
		s.tracer.ended = map[string]error{}
	}
	s.tracer.ended[s.op] = err
}

type captureLogger struct {
	noopLogger
	warns  []string
	errors []string
}

func (l *captureLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }

func TestServiceObservabilityWrapsOperations(t *testing.T) {
	ctx := domain.WithActor(context.Background(), "registrar")
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	logger := &captureLogger{}

	svc := NewInMemoryService(nil,
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithLogger(logger),
	)

	grave, _, err := svc.CreateGrave(ctx, newGrave(1))
	if err != nil {
		t.Fatalf("create grave: %v", err)
	}
	if !audit.has("create_grave", domain.AuditStatusSuccess, func(e domain.AuditEntry) bool {
		return e.EntityID == grave.ID && e.Actor == "registrar" && e.Action == domain.ActionCreate
	}) {
		t.Fatalf("expected create_grave audit entry, got %+v", audit.entries)
	}
	if !metrics.has("create_grave", true) {
		t.Fatalf("expected create_grave metrics")
	}
	if err, ok := tracer.ended["create_grave"]; !ok || err != nil {
		t.Fatalf("expected successful create_grave span")
	}

	if _, err := svc.GetBurial(ctx, "missing"); err == nil {
		t.Fatalf("expected not found")
	}
	if !audit.has("get_burial", domain.AuditStatusError, func(e domain.AuditEntry) bool {
		return e.EntityID == "missing" && e.Action == domain.ActionRead && e.Error != ""
	}) {
		t.Fatalf("expected failed read to be audited")
	}
	if !metrics.has("get_burial", false) || tracer.ended["get_burial"] == nil {
		t.Fatalf("expected failed read metrics and span")
	}
	if len(logger.errors) != 1 {
		t.Fatalf("expected one error log, got %v", logger.errors)
	}
}

func TestServiceLogsWarningViolations(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}
	svc := NewInMemoryService(nil, WithLogger(logger))

	expired := time.Now().Add(-48 * time.Hour)
	grave := newGrave(2)
	grave.RightsExpireAt = &expired
	created, _, _ := svc.CreateGrave(ctx, grave)
	burial, _, _ := svc.CreateBurial(ctx, newBurial())

	_, res, err := svc.AddBurialToGrave(ctx, created.ID, burial.ID)
	if err != nil {
		t.Fatalf("warnings must not block: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Rule != "grave_rights_expired" {
		t.Fatalf("expected rights warning, got %+v", res.Violations)
	}
	if len(logger.warns) != 1 {
		t.Fatalf("expected warn log, got %v", logger.warns)
	}
}

func TestFanoutAuditRecorder(t *testing.T) {
	a, b := &captureAuditRecorder{}, &captureAuditRecorder{}
	FanoutAuditRecorder{a, nil, b}.Record(context.Background(), domain.AuditEntry{Operation: "x"})
	if len(a.entries) != 1 || len(b.entries) != 1 {
		t.Fatalf("expected both recorders to receive the entry")
	}
}

type failingAuditStore struct {
	domain.PersistentStore
}

func (failingAuditStore) RecordAudit(context.Context, domain.AuditEntry) error {
	return errors.New("disk full")
}

func TestStoreAuditRecorderSkipsAndLogs(t *testing.T) {
	logger := &captureLogger{}
	rec := NewStoreAuditRecorder(failingAuditStore{}, logger)
	rec.Record(context.Background(), domain.AuditEntry{Operation: "list_graves", Entity: domain.EntityGrave})
	if len(logger.warns) != 0 {
		t.Fatalf("entries without a record id are skipped")
	}
	rec.Record(context.Background(), domain.AuditEntry{Operation: "get_grave", Entity: domain.EntityGrave, EntityID: "g1"})
	if len(logger.warns) != 1 {
		t.Fatalf("expected persist failure to be logged")
	}
}
