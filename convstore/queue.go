package convstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Job is one queued conversion request. Payload is opaque to the queue;
// the worker decodes it (typically a file path or source reference).
type Job struct {
	ID        string
	Payload   []byte
	VisibleAt time.Time
	CreatedAt time.Time
	Attempts  int
}

// QueueOptions configures queue behaviour.
type QueueOptions struct {
	// Visibility is how long a claimed job stays invisible. If the worker
	// crashes or exceeds it, the job reappears for another claim.
	// Default: 60s — document conversion is slower than typical queue work.
	Visibility time.Duration
	// PollInterval is the delay between claim attempts in the Run loop.
	// Default: 1s.
	PollInterval time.Duration
	// MaxAttempts limits how many times a job can be redelivered before
	// being discarded. 0 means unlimited. Default: 3.
	MaxAttempts int
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *QueueOptions) defaults() {
	if o.Visibility <= 0 {
		o.Visibility = 60 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 3
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Queue is a visibility-timeout queue of pending conversions. Claimed jobs
// are invisible for the configured duration; a worker that finishes acks
// (deletes) the job, a worker that fails nacks it back into visibility.
type Queue struct {
	db   *sql.DB
	opts QueueOptions
}

// NewQueue creates a queue handle over an opened database.
func NewQueue(db *sql.DB, opts QueueOptions) *Queue {
	opts.defaults()
	return &Queue{db: db, opts: opts}
}

// Enqueue inserts a job that is immediately visible.
func (q *Queue) Enqueue(ctx context.Context, id string, payload []byte) error {
	now := time.Now().UnixMilli()
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO conv_jobs (id, payload, visible_at, created_at) VALUES (?,?,?,?)`,
		id, payload, now, now,
	)
	return err
}

// Claim atomically picks the oldest visible job, marks it invisible for the
// configured visibility duration, and returns it. Returns nil, nil if no
// job is available.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	now := time.Now()
	hideUntil := now.Add(q.opts.Visibility).UnixMilli()

	row := q.db.QueryRowContext(ctx, `
		UPDATE conv_jobs
		SET visible_at = ?, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM conv_jobs
			WHERE visible_at <= ?
			ORDER BY visible_at ASC
			LIMIT 1
		)
		RETURNING id, payload, visible_at, created_at, attempts`,
		hideUntil, now.UnixMilli(),
	)

	var j Job
	var visAt, creAt int64
	err := row.Scan(&j.ID, &j.Payload, &visAt, &creAt, &j.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.VisibleAt = time.UnixMilli(visAt)
	j.CreatedAt = time.UnixMilli(creAt)
	return &j, nil
}

// BatchClaim atomically claims up to n visible jobs, oldest first. It
// returns an empty (non-nil) slice when no jobs are available.
func (q *Queue) BatchClaim(ctx context.Context, n int) ([]*Job, error) {
	now := time.Now()
	hideUntil := now.Add(q.opts.Visibility).UnixMilli()

	rows, err := q.db.QueryContext(ctx, `
		UPDATE conv_jobs
		SET visible_at = ?, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM conv_jobs
			WHERE visible_at <= ?
			ORDER BY visible_at ASC
			LIMIT ?
		)
		RETURNING id, payload, visible_at, created_at, attempts`,
		hideUntil, now.UnixMilli(), n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*Job{}
	for rows.Next() {
		var j Job
		var visAt, creAt int64
		if err := rows.Scan(&j.ID, &j.Payload, &visAt, &creAt, &j.Attempts); err != nil {
			return nil, err
		}
		j.VisibleAt = time.UnixMilli(visAt)
		j.CreatedAt = time.UnixMilli(creAt)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// Ack deletes a successfully processed job.
func (q *Queue) Ack(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM conv_jobs WHERE id = ?`, id)
	return err
}

// Nack makes a job immediately visible again so another worker can pick it up.
func (q *Queue) Nack(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE conv_jobs SET visible_at = 0 WHERE id = ?`, id)
	return err
}

// Extend pushes the visibility timeout forward for a job that needs more
// processing time (heartbeat pattern for very large documents).
func (q *Queue) Extend(ctx context.Context, id string, extra time.Duration) error {
	hideUntil := time.Now().Add(extra).UnixMilli()
	_, err := q.db.ExecContext(ctx,
		`UPDATE conv_jobs SET visible_at = ? WHERE id = ?`, hideUntil, id)
	return err
}

// Len returns the total number of jobs (visible + invisible).
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conv_jobs`).Scan(&n)
	return n, err
}

// Handler processes a claimed job. Return nil to ack, non-nil to nack.
type Handler func(ctx context.Context, job *Job) error

// RunBatch polls in batches and processes jobs with bounded concurrency,
// mirroring the converter's document batch shape. It blocks until ctx is
// cancelled, draining in-flight handlers before returning.
func (q *Queue) RunBatch(ctx context.Context, batchSize, maxConcurrency int, handler Handler) {
	log := q.opts.Logger
	log.Info("queue: batch worker started",
		"batch_size", batchSize,
		"max_concurrency", maxConcurrency,
		"visibility", q.opts.Visibility,
		"poll", q.opts.PollInterval,
	)

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("queue: batch worker stopping, draining in-flight handlers")
			wg.Wait()
			log.Info("queue: batch worker stopped")
			return
		case <-ticker.C:
			jobs, err := q.BatchClaim(ctx, batchSize)
			if err != nil {
				if ctx.Err() != nil {
					wg.Wait()
					return
				}
				log.Warn("queue: batch claim failed", "error", err)
				continue
			}

			for _, job := range jobs {
				if q.opts.MaxAttempts > 0 && job.Attempts > q.opts.MaxAttempts {
					log.Warn("queue: job exceeded max attempts, discarding",
						"id", job.ID, "attempts", job.Attempts)
					_ = q.Ack(ctx, job.ID)
					continue
				}

				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					_ = q.Nack(ctx, job.ID)
					wg.Wait()
					return
				}

				wg.Add(1)
				go func(j *Job) {
					defer wg.Done()
					defer func() { <-sem }()

					if err := handler(ctx, j); err != nil {
						log.Warn("queue: handler failed, nacking", "id", j.ID, "error", err)
						_ = q.Nack(context.Background(), j.ID)
					} else {
						_ = q.Ack(context.Background(), j.ID)
					}
				}(job)
			}
		}
	}
}
