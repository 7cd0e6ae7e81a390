package observability

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/ocrapi/dbopen"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
}

func TestInit_Idempotent(t *testing.T) {
	db := setupObsDB(t)
	if err := Init(db); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	var count int
	db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='metrics_timeseries'").Scan(&count)
	if count != 1 {
		t.Fatal("metrics_timeseries not found")
	}
}

func TestMetricsManager_RecordAndQuery(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)
	defer mm.Close()

	mm.Record(&Metric{
		Name:   MetricExtractionDurationMs,
		Value:  42.5,
		Unit:   "milliseconds",
		Labels: map[string]string{"format": "pdf"},
	})
	mm.RecordSimple(MetricExtractionPages, 3, "count", "format", "pdf")
	mm.Flush()

	ctx := context.Background()
	metrics, err := mm.Query(ctx, MetricExtractionDurationMs, time.Time{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 1 {
		t.Fatalf("duration count: got %d", len(metrics))
	}
	if metrics[0].Value != 42.5 {
		t.Fatalf("value: got %f", metrics[0].Value)
	}
	if metrics[0].Labels["format"] != "pdf" {
		t.Fatalf("labels: got %v", metrics[0].Labels)
	}

	all, err := mm.Query(ctx, "", time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("all metrics: got %d", len(all))
	}
}

func TestMetricsManager_FlushOnFullBuffer(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 2, time.Hour)
	defer mm.Close()

	mm.RecordSimple("a", 1, "count")
	mm.RecordSimple("a", 2, "count")

	var n int
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&n)
	if n != 2 {
		t.Fatalf("rows after full buffer: got %d, want 2", n)
	}
}

func TestMetricsManager_QuerySince(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)
	defer mm.Close()

	now := time.Now()
	mm.Record(&Metric{Name: "m1", Timestamp: now.Add(-2 * time.Hour), Value: 1, Unit: "x"})
	mm.Record(&Metric{Name: "m1", Timestamp: now, Value: 2, Unit: "x"})
	mm.Flush()

	metrics, err := mm.Query(context.Background(), "m1", now.Add(-time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 1 {
		t.Fatalf("time-filtered count: got %d", len(metrics))
	}
}

func TestMetricsManager_Summarize(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)
	defer mm.Close()

	mm.RecordSimple(MetricExtractionDurationMs, 10, "milliseconds")
	mm.RecordSimple(MetricExtractionDurationMs, 30, "milliseconds")
	mm.RecordSimple(MetricPageFailures, 1, "count")
	mm.Flush()

	sums, err := mm.Summarize(context.Background(), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 2 {
		t.Fatalf("summaries: got %d, want 2", len(sums))
	}
	d := sums[0]
	if d.Name != MetricExtractionDurationMs || d.Count != 2 || d.Sum != 40 || d.Avg != 20 || d.Max != 30 {
		t.Fatalf("duration summary: %+v", d)
	}
	if sums[1].Name != MetricPageFailures || sums[1].Unit != "count" {
		t.Fatalf("failures summary: %+v", sums[1])
	}
}

func TestMetricsManager_Cleanup(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)
	defer mm.Close()

	mm.Record(&Metric{Name: "old_metric", Timestamp: time.Now().Add(-40 * 24 * time.Hour), Value: 1, Unit: "x"})
	mm.Record(&Metric{Name: "new_metric", Timestamp: time.Now(), Value: 2, Unit: "x"})
	mm.Flush()

	deleted, err := mm.Cleanup(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Fatalf("deleted: got %d", deleted)
	}
}

func TestMetricsManager_CloseFlushesAndIsIdempotent(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)
	mm.RecordSimple("x", 1, "count")
	mm.Close()
	mm.Close()

	var n int
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&n)
	if n != 1 {
		t.Fatalf("rows after close: got %d, want 1", n)
	}
}

func TestMetricsManager_NilIsNoop(t *testing.T) {
	var mm *MetricsManager
	mm.RecordSimple("x", 1, "count")
	mm.Flush()
	if got, err := mm.Query(context.Background(), "", time.Time{}, 0); err != nil || got != nil {
		t.Fatalf("nil Query: %v, %v", got, err)
	}
	if err := mm.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestCollectRuntimeMetrics(t *testing.T) {
	m := CollectRuntimeMetrics()
	if m.GoroutinesCount <= 0 {
		t.Fatal("goroutines should be > 0")
	}
	if m.MemoryAllocMB <= 0 {
		t.Fatal("memory alloc should be > 0")
	}
}

func TestSampleRuntime(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)
	defer mm.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	SampleRuntime(ctx, mm, 10*time.Millisecond)
	mm.Flush()

	got, err := mm.Query(context.Background(), MetricGoroutinesCount, time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 {
		t.Fatal("expected at least one goroutine sample")
	}
}
