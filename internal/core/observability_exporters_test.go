package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gravecore/pkg/domain"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "gravecore_service_metrics_") {
		t.Fatalf("unexpected name %s", rec.Name())
	}
	ctx := context.Background()
	rec.Observe(ctx, "create_grave", true, 2*time.Millisecond)
	rec.Observe(ctx, "create_grave", false, 6*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	snap := rec.Snapshot()
	stats := snap["create_grave"]
	if len(snap) != 1 || stats.Success != 1 || stats.Error != 1 || stats.TotalMS != 8 || stats.MaxMS != 6 {
		t.Fatalf("unexpected stats %+v", snap)
	}
	if v := expvar.Get(rec.Name()); v == nil || !strings.Contains(v.String(), "duration_ms_total") {
		t.Fatalf("expected recorder published via expvar")
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	ticks := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, int(5*time.Millisecond), time.UTC),
	}
	clock := ClockFunc(func() time.Time {
		next := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return next
	})
	tracer := NewJSONTracer(&buf, clock)

	ctx := domain.WithActor(context.Background(), "registrar")
	_, span := tracer.Start(ctx, "delete_grave")
	span.End(errors.New("boom"))

	entries := tracer.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one span, got %d", len(entries))
	}
	got := entries[0]
	if got.Actor != "registrar" || got.Status != "error" || got.Error != "boom" || got.DurationMS != 5 {
		t.Fatalf("unexpected span %+v", got)
	}
	var decoded TraceEntry
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || decoded.Operation != "delete_grave" {
		t.Fatalf("expected JSON line, got %q (%v)", buf.String(), err)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}

	svc := NewInMemoryService(nil, WithMetricsRecorder(rec))
	ctx := context.Background()
	_, _, _ = svc.CreateCover(ctx, domain.Cover{CoverType: "slab"})
	_, _ = svc.GetCover(ctx, "missing")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "gravecore_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := ""
			for _, lp := range m.GetLabel() {
				key += lp.GetName() + "=" + lp.GetValue() + ","
			}
			counts[key] = m.GetCounter().GetValue()
		}
	}
	if counts["operation=create_cover,status=success,"] != 1 || counts["operation=get_cover,status=error,"] != 1 {
		t.Fatalf("unexpected counters %v", counts)
	}
}
