// Package observability records extraction metrics into SQLite.
//
// Datapoints are buffered in memory and flushed in batches by a background
// goroutine. Persistence never blocks a request: a failing store is logged
// and the batch is dropped. Only counts and durations are stored, never
// document content or recognised text.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/ocrapi/dbopen"
	"github.com/hazyhaar/ocrapi/idgen"
)

// Metric names recorded by the extraction pipeline.
const (
	MetricExtractionDurationMs = "extraction_duration_ms"
	MetricExtractionPages      = "extraction_pages"
	MetricPageFailures         = "extraction_page_failures"
	MetricExtractionErrors     = "extraction_errors"
	MetricOCRPageDurationMs    = "ocr_page_duration_ms"
	MetricOCRBreakerState      = "ocr_breaker_state"
	MetricGoroutinesCount      = "goroutines_count"
	MetricMemoryAllocMB        = "memory_alloc_mb"
)

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Unit      string            `json:"unit"` // "milliseconds", "count", "megabytes"
}

// Summary aggregates every datapoint of one metric name.
type Summary struct {
	Name  string  `json:"name"`
	Unit  string  `json:"unit"`
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
}

// MetricsManager buffers metrics and flushes them to SQLite in batches.
// A nil *MetricsManager is valid and discards everything.
type MetricsManager struct {
	db            *sql.DB
	bufferSize    int
	flushInterval time.Duration
	newID         idgen.Generator

	mu     sync.Mutex
	buffer []*Metric

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMetricsManager creates a manager that flushes metrics in batches.
// Defaults: bufferSize=100, flushInterval=5s.
func NewMetricsManager(db *sql.DB, bufferSize int, flushInterval time.Duration) *MetricsManager {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	mm := &MetricsManager{
		db:            db,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		newID:         idgen.Prefixed("met_", idgen.Default),
		buffer:        make([]*Metric, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go mm.flushLoop()
	return mm
}

// Record queues a metric for async persistence. Non-blocking apart from a
// synchronous flush when the buffer is full.
func (mm *MetricsManager) Record(m *Metric) {
	if mm == nil || m == nil {
		return
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.buffer = append(mm.buffer, m)
	if len(mm.buffer) >= mm.bufferSize {
		mm.flushLocked()
	}
}

// RecordSimple records a datapoint with optional labels given as key/value
// pairs.
func (mm *MetricsManager) RecordSimple(name string, value float64, unit string, kv ...string) {
	if mm == nil {
		return
	}
	var labels map[string]string
	if len(kv) >= 2 {
		labels = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			labels[kv[i]] = kv[i+1]
		}
	}
	mm.Record(&Metric{Name: name, Timestamp: time.Now(), Value: value, Unit: unit, Labels: labels})
}

// Flush writes buffered metrics immediately.
func (mm *MetricsManager) Flush() {
	if mm == nil {
		return
	}
	mm.mu.Lock()
	mm.flushLocked()
	mm.mu.Unlock()
}

// Query retrieves metrics filtered by name and start time, newest first.
// Empty name means all metrics; zero since means unbounded.
func (mm *MetricsManager) Query(ctx context.Context, name string, since time.Time, limit int) ([]*Metric, error) {
	if mm == nil {
		return nil, nil
	}
	q := "SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries WHERE 1=1"
	args := make([]any, 0, 3)
	if name != "" {
		q += " AND metric_name = ?"
		args = append(args, name)
	}
	if !since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, since.Unix())
	}
	q += " ORDER BY timestamp DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := mm.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var (
			n, unit    string
			ts         int64
			value      float64
			labelsJSON sql.NullString
		)
		if err := rows.Scan(&n, &ts, &value, &labelsJSON, &unit); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m := &Metric{Name: n, Timestamp: time.Unix(ts, 0), Value: value, Unit: unit}
		if labelsJSON.Valid {
			var labels map[string]string
			if json.Unmarshal([]byte(labelsJSON.String), &labels) == nil {
				m.Labels = labels
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Summarize aggregates datapoints recorded since the given time, one row per
// metric name, ordered by name.
func (mm *MetricsManager) Summarize(ctx context.Context, since time.Time) ([]Summary, error) {
	if mm == nil {
		return nil, nil
	}
	rows, err := mm.db.QueryContext(ctx, `
		SELECT metric_name, COALESCE(MAX(unit), ''), COUNT(*), SUM(value), AVG(value), MAX(value)
		FROM metrics_timeseries
		WHERE timestamp >= ?
		GROUP BY metric_name
		ORDER BY metric_name`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("summarize metrics: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.Name, &s.Unit, &s.Count, &s.Sum, &s.Avg, &s.Max); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Cleanup deletes metrics older than retention and returns the count removed.
func (mm *MetricsManager) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if mm == nil {
		return 0, nil
	}
	threshold := time.Now().Add(-retention).Unix()
	result, err := mm.db.ExecContext(ctx, "DELETE FROM metrics_timeseries WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup metrics: %w", err)
	}
	return result.RowsAffected()
}

// Close flushes remaining metrics and stops the background goroutine.
// Safe to call more than once.
func (mm *MetricsManager) Close() error {
	if mm == nil {
		return nil
	}
	mm.stopOnce.Do(func() { close(mm.stop) })
	<-mm.done
	return nil
}

func (mm *MetricsManager) flushLoop() {
	defer close(mm.done)
	ticker := time.NewTicker(mm.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-mm.stop:
			mm.Flush()
			return
		case <-ticker.C:
			mm.Flush()
		}
	}
}

func (mm *MetricsManager) flushLocked() {
	if len(mm.buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := dbopen.RunTx(ctx, mm.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO metrics_timeseries (metric_id, metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, m := range mm.buffer {
			var labelsJSON sql.NullString
			if len(m.Labels) > 0 {
				if b, err := json.Marshal(m.Labels); err == nil {
					labelsJSON = sql.NullString{String: string(b), Valid: true}
				}
			}
			if _, err := stmt.ExecContext(ctx, mm.newID(), m.Name, m.Timestamp.Unix(), m.Value, labelsJSON, m.Unit); err != nil {
				return fmt.Errorf("insert %s: %w", m.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("observability metrics: flush", "error", err, "dropped", len(mm.buffer))
	}
	mm.buffer = mm.buffer[:0]
}
