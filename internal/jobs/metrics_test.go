package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTrackerRecordsOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	if err := m.Track("dashboard:warmup").End(nil); err != nil {
		t.Fatalf("End(nil) = %v", err)
	}
	boom := errors.New("boom")
	if err := m.Track("dashboard:warmup").End(boom); !errors.Is(err, boom) {
		t.Fatalf("End must return the error untouched, got %v", err)
	}

	if got := testutil.ToFloat64(m.runs.WithLabelValues("dashboard:warmup", "success")); got != 1 {
		t.Fatalf("success runs = %v", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("dashboard:warmup", "failure")); got != 1 {
		t.Fatalf("failure runs = %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("dashboard:warmup")); got != 1 {
		t.Fatalf("failures = %v", got)
	}
}

func TestNilTrackerIsSafe(t *testing.T) {
	var tracker *Tracker
	if err := tracker.End(nil); err != nil {
		t.Fatalf("nil tracker End = %v", err)
	}

	var m *Metrics
	if err := m.Track("anything").End(nil); err != nil {
		t.Fatalf("nil metrics End = %v", err)
	}
}
