package convstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Standard metric names recorded by the converter and worker.
const (
	MetricConversionDurationMs = "conversion_duration_ms"
	MetricConversionPages      = "conversion_pages"
	MetricQueueDepth           = "queue_depth"
)

// Metric is one conversion telemetry datapoint.
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Labels    map[string]string // e.g. {"format": "pdf", "status": "success"}
	Unit      string            // "milliseconds", "count"
}

// MetricsOptions tunes the buffered recorder. Zero values get defaults.
type MetricsOptions struct {
	BufferSize    int           // flush when this many datapoints queue up (default 100)
	FlushInterval time.Duration // periodic flush cadence (default 5s)
	Logger        *slog.Logger
}

func (o *MetricsOptions) defaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Metrics buffers conversion datapoints and flushes them to the store
// database in batches, on a timer or whenever the buffer fills. The
// recording call that fills the buffer performs that flush itself, so a
// slow database can stall it; size the buffer for the expected burst.
type Metrics struct {
	db      *sql.DB
	opts    MetricsOptions
	mu      sync.Mutex
	buffer  []Metric
	stop    chan struct{}
	done    chan struct{}
	closing sync.Once
}

// NewMetrics starts a buffered recorder over an opened store database.
// Close must be called to flush the tail and stop the background flusher.
func NewMetrics(db *sql.DB, opts MetricsOptions) *Metrics {
	opts.defaults()
	m := &Metrics{
		db:     db,
		opts:   opts,
		buffer: make([]Metric, 0, opts.BufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go m.flushLoop()
	return m
}

// Record queues one datapoint.
func (m *Metrics) Record(dp Metric) {
	if dp.Timestamp.IsZero() {
		dp.Timestamp = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = append(m.buffer, dp)
	if len(m.buffer) >= m.opts.BufferSize {
		m.flushLocked()
	}
}

// RecordConversion emits the duration and page-count datapoints for one
// finished conversion, labelled by format and resolved status.
func (m *Metrics) RecordConversion(format, status string, pages int, took time.Duration) {
	labels := map[string]string{"format": format, "status": status}
	now := time.Now()
	m.Record(Metric{
		Name:      MetricConversionDurationMs,
		Timestamp: now,
		Value:     float64(took.Milliseconds()),
		Labels:    labels,
		Unit:      "milliseconds",
	})
	m.Record(Metric{
		Name:      MetricConversionPages,
		Timestamp: now,
		Value:     float64(pages),
		Labels:    labels,
		Unit:      "count",
	})
}

// Query returns datapoints for one metric name, newest first, within the
// optional time bounds. Nil bounds mean unbounded; limit <= 0 means no cap.
func (m *Metrics) Query(ctx context.Context, name string, since, until *time.Time, limit int) ([]Metric, error) {
	q := `SELECT name, timestamp, value, labels, unit FROM conv_metrics WHERE name = ?`
	args := []any{name}
	if since != nil {
		q += " AND timestamp >= ?"
		args = append(args, since.UnixMilli())
	}
	if until != nil {
		q += " AND timestamp <= ?"
		args = append(args, until.UnixMilli())
	}
	q += " ORDER BY timestamp DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("convstore: query metrics: %w", err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var dp Metric
		var ts int64
		var labels sql.NullString
		if err := rows.Scan(&dp.Name, &ts, &dp.Value, &labels, &dp.Unit); err != nil {
			return nil, fmt.Errorf("convstore: scan metric: %w", err)
		}
		dp.Timestamp = time.UnixMilli(ts)
		if labels.Valid {
			if err := json.Unmarshal([]byte(labels.String), &dp.Labels); err != nil {
				return nil, fmt.Errorf("convstore: decode metric labels: %w", err)
			}
		}
		out = append(out, dp)
	}
	return out, rows.Err()
}

// Prune deletes datapoints older than the retention window and reports
// how many were removed.
func (m *Metrics) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).UnixMilli()
	res, err := m.db.ExecContext(ctx, `DELETE FROM conv_metrics WHERE timestamp < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("convstore: prune metrics: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes buffered datapoints and stops the background flusher.
// Safe to call more than once.
func (m *Metrics) Close() error {
	m.closing.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

func (m *Metrics) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			m.mu.Lock()
			m.flushLocked()
			m.mu.Unlock()
			return
		case <-ticker.C:
			m.mu.Lock()
			m.flushLocked()
			m.mu.Unlock()
		}
	}
}

func (m *Metrics) flushLocked() {
	if len(m.buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		m.opts.Logger.Error("metrics flush: begin", "error", err)
		return
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO conv_metrics (name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		m.opts.Logger.Error("metrics flush: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, dp := range m.buffer {
		var labels sql.NullString
		if len(dp.Labels) > 0 {
			if b, err := json.Marshal(dp.Labels); err == nil {
				labels = sql.NullString{String: string(b), Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx, dp.Name, dp.Timestamp.UnixMilli(), dp.Value, labels, dp.Unit); err != nil {
			m.opts.Logger.Error("metrics flush: insert", "error", err, "metric", dp.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		m.opts.Logger.Error("metrics flush: commit", "error", err)
	}
	m.buffer = m.buffer[:0]
}
