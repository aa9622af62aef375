package convstore

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func newMetrics(t *testing.T, opts MetricsOptions) *Metrics {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	db := OpenMemory(t)
	m := NewMetrics(db, opts)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMetricsRecordAndQuery(t *testing.T) {
	m := newMetrics(t, MetricsOptions{FlushInterval: time.Hour})

	m.RecordConversion("pdf", "success", 12, 1500*time.Millisecond)
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ctx := context.Background()
	durs, err := m.Query(ctx, MetricConversionDurationMs, nil, nil, 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(durs) != 1 {
		t.Fatalf("duration datapoints = %d, want 1", len(durs))
	}
	if durs[0].Value != 1500 {
		t.Errorf("duration value = %v, want 1500", durs[0].Value)
	}
	if durs[0].Labels["format"] != "pdf" || durs[0].Labels["status"] != "success" {
		t.Errorf("labels = %v", durs[0].Labels)
	}
	if durs[0].Unit != "milliseconds" {
		t.Errorf("unit = %q", durs[0].Unit)
	}

	pages, err := m.Query(ctx, MetricConversionPages, nil, nil, 0)
	if err != nil {
		t.Fatalf("Query pages: %v", err)
	}
	if len(pages) != 1 || pages[0].Value != 12 {
		t.Fatalf("pages datapoints = %+v, want one with value 12", pages)
	}
}

func TestMetricsBufferFlush(t *testing.T) {
	// BufferSize 2 forces a synchronous flush on the second Record even
	// though the ticker never fires.
	m := newMetrics(t, MetricsOptions{BufferSize: 2, FlushInterval: time.Hour})

	m.Record(Metric{Name: MetricQueueDepth, Value: 3, Unit: "count"})
	m.Record(Metric{Name: MetricQueueDepth, Value: 4, Unit: "count"})

	got, err := m.Query(context.Background(), MetricQueueDepth, nil, nil, 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("datapoints = %d, want 2 flushed without Close", len(got))
	}
}

func TestMetricsQueryBoundsAndLimit(t *testing.T) {
	m := newMetrics(t, MetricsOptions{FlushInterval: time.Hour})

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		m.Record(Metric{
			Name:      MetricQueueDepth,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Value:     float64(i),
			Unit:      "count",
		})
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	since := base.Add(90 * time.Second)
	got, err := m.Query(context.Background(), MetricQueueDepth, &since, nil, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("datapoints = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].Value != 4 || got[1].Value != 3 {
		t.Errorf("values = %v, %v; want 4, 3", got[0].Value, got[1].Value)
	}
}

func TestMetricsPrune(t *testing.T) {
	m := newMetrics(t, MetricsOptions{FlushInterval: time.Hour})

	m.Record(Metric{Name: MetricQueueDepth, Timestamp: time.Now().Add(-48 * time.Hour), Value: 1})
	m.Record(Metric{Name: MetricQueueDepth, Value: 2})
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	removed, err := m.Prune(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	got, err := m.Query(context.Background(), MetricQueueDepth, nil, nil, 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].Value != 2 {
		t.Fatalf("remaining = %+v, want one with value 2", got)
	}
}
