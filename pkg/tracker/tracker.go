// Package tracker persists lookup events to SQLite for the history and
// summary surfaces.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/dexcache/pkg/models"
)

// SQLiteTracker stores lookup events in a SQLite database.
type SQLiteTracker struct {
	db        *sql.DB
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	done chan struct{}
	wg   sync.WaitGroup
}

const createTable = `
CREATE TABLE IF NOT EXISTS lookups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	dialect TEXT NOT NULL DEFAULT '',
	translated INTEGER NOT NULL DEFAULT 0,
	fallback INTEGER NOT NULL DEFAULT 0,
	duration_us INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_lookups_name_time ON lookups(name, created_at);
CREATE INDEX IF NOT EXISTS idx_lookups_created ON lookups(created_at);
`

// Option configures a SQLiteTracker.
type Option func(*SQLiteTracker)

// WithRetention sets how long events are kept. Zero keeps them forever.
func WithRetention(d time.Duration) Option {
	return func(t *SQLiteTracker) { t.retention = d }
}

// WithCleanupInterval sets how often the retention loop runs.
func WithCleanupInterval(d time.Duration) Option {
	return func(t *SQLiteTracker) { t.interval = d }
}

// WithLogger sets the tracker's logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *SQLiteTracker) { t.logger = l }
}

// New creates a SQLiteTracker, runs auto-migration and starts the retention
// loop when a retention period is set.
func New(dbPath string, opts ...Option) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	t := &SQLiteTracker{
		db:       db,
		interval: time.Hour,
		logger:   zap.NewNop(),
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.retention > 0 {
		t.wg.Add(1)
		go t.retentionLoop()
	}
	return t, nil
}

// Record stores a lookup event.
func (t *SQLiteTracker) Record(ctx context.Context, ev models.LookupEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = t.now()
	}
	ev.CreatedAt = ev.CreatedAt.UTC()
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO lookups (name, outcome, error_kind, dialect, translated, fallback, duration_us, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Name, ev.Outcome, string(ev.ErrorKind), string(ev.Dialect),
		ev.Translated, ev.Fallback, ev.Duration.Microseconds(), ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record lookup: %w", err)
	}
	return nil
}

// ObserveLookup records ev, logging rather than returning write failures.
func (t *SQLiteTracker) ObserveLookup(ctx context.Context, ev models.LookupEvent) {
	if err := t.Record(context.WithoutCancel(ctx), ev); err != nil {
		t.logger.Warn("lookup history write failed", zap.String("species", ev.Name), zap.Error(err))
	}
}

// Recent returns up to limit events, newest first. A limit <= 0 means 50.
func (t *SQLiteTracker) Recent(ctx context.Context, limit int) ([]models.LookupEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, name, outcome, error_kind, dialect, translated, fallback, duration_us, created_at
		 FROM lookups ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query lookups: %w", err)
	}
	defer rows.Close()

	var events []models.LookupEvent
	for rows.Next() {
		var (
			ev         models.LookupEvent
			kind, dial string
			durationUs int64
		)
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Outcome, &kind, &dial, &ev.Translated, &ev.Fallback, &durationUs, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lookup: %w", err)
		}
		ev.ErrorKind = models.ErrorKind(kind)
		ev.Dialect = models.Dialect(dial)
		ev.Duration = time.Duration(durationUs) * time.Microsecond
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Summary returns aggregated lookups grouped by name.
func (t *SQLiteTracker) Summary(ctx context.Context, name string) ([]models.LookupSummary, error) {
	query := `SELECT name, COUNT(*),
		SUM(CASE WHEN outcome = 'hit' THEN 1 ELSE 0 END),
		SUM(CASE WHEN outcome = 'miss' THEN 1 ELSE 0 END),
		SUM(CASE WHEN outcome = 'error' THEN 1 ELSE 0 END),
		SUM(fallback),
		MAX(created_at)
		FROM lookups`
	var args []any
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` GROUP BY name ORDER BY COUNT(*) DESC, name`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.LookupSummary
	for rows.Next() {
		var (
			s        models.LookupSummary
			lastSeen sql.NullString
		)
		if err := rows.Scan(&s.Name, &s.RequestCount, &s.Hits, &s.Misses, &s.Errors, &s.Fallbacks, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.LastSeen = parseTime(lastSeen.String)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Cleanup deletes events older than the retention period.
func (t *SQLiteTracker) Cleanup(ctx context.Context) (int64, error) {
	if t.retention <= 0 {
		return 0, nil
	}
	cutoff := t.now().UTC().Add(-t.retention)
	res, err := t.db.ExecContext(ctx, `DELETE FROM lookups WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("lookup cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (t *SQLiteTracker) Close() error {
	close(t.done)
	t.wg.Wait()
	return t.db.Close()
}

func (t *SQLiteTracker) retentionLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			n, err := t.Cleanup(context.Background())
			if err != nil {
				t.logger.Warn("lookup history cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				t.logger.Debug("pruned lookup history", zap.Int64("rows", n))
			}
		}
	}
}

// MAX() loses the column's declared type, so the driver hands back text.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
