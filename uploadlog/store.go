package uploadlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/gommon/log"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"
)

// Timestamps are stored as UTC text so strftime and range scans agree.
const tsLayout = "2006-01-02 15:04:05"

// Store provides database operations for the upload log.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the upload log database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open upload log db: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS uploads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			key TEXT NOT NULL,
			source TEXT NOT NULL,
			collection TEXT NOT NULL DEFAULT '',
			trigger_name TEXT NOT NULL DEFAULT '',
			mime TEXT NOT NULL,
			size INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			timestamp TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_uploads_timestamp ON uploads(timestamp);
		CREATE INDEX IF NOT EXISTS idx_uploads_state ON uploads(state);

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

// currentSchemaVersion is the latest schema version. Increment when adding migrations.
const currentSchemaVersion = 1

func (s *Store) migrate() error {
	verStr, err := s.GetSetting("schema_version")
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	version := 0
	if verStr != "" {
		version, err = strconv.Atoi(verStr)
		if err != nil {
			return fmt.Errorf("parse schema version %q: %w", verStr, err)
		}
	}
	if version < currentSchemaVersion {
		version = currentSchemaVersion
	}
	return s.SetSetting("schema_version", strconv.Itoa(version))
}

// GetSetting retrieves a setting value by key. Returns empty string if not found.
func (s *Store) GetSetting(key string) (string, error) {
	var val string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return val, err
}

// SetSetting stores a setting value by key (upsert).
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO settings(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Save stores a finished upload.
func (s *Store) Save(ctx context.Context, r Record) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO uploads
		(task_id, key, source, collection, trigger_name, mime, size, state, error, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TaskID, r.Key, r.Source, r.Collection, r.Trigger, r.MIMEType, r.Size,
		r.State, r.Error, r.DurationMS, r.Timestamp.UTC().Format(tsLayout))
	if err != nil {
		return fmt.Errorf("save upload %s: %w", r.Key, err)
	}
	return nil
}

// Recent returns the latest n uploads, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, task_id, key, source, collection, trigger_name,
		mime, size, state, error, duration_ms, timestamp
		FROM uploads ORDER BY timestamp DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("recent uploads: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r  Record
			ts string
		)
		if err := rows.Scan(&r.ID, &r.TaskID, &r.Key, &r.Source, &r.Collection, &r.Trigger,
			&r.MIMEType, &r.Size, &r.State, &r.Error, &r.DurationMS, &ts); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		r.Timestamp, _ = time.Parse(tsLayout, ts)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats returns aggregated upload statistics for [from, to). The series is
// bucketed by hour, month or (by default) day. Queries run concurrently.
func (s *Store) Stats(ctx context.Context, from, to time.Time, hourly, monthly bool) (*Stats, error) {
	stats := &Stats{
		Period:       from.Format("2006-01-02") + " to " + to.Format("2006-01-02"),
		TopMIMETypes: []DimensionStat{},
		ByCollection: []DimensionStat{},
		Series:       []SeriesPoint{},
	}
	lo, hi := from.UTC().Format(tsLayout), to.UTC().Format(tsLayout)

	g, ctx := errgroup.WithContext(ctx)

	// Totals per state
	g.Go(func() error {
		rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*), COALESCE(SUM(size), 0)
			FROM uploads WHERE timestamp >= ? AND timestamp < ? GROUP BY state`, lo, hi)
		if err != nil {
			return fmt.Errorf("count uploads: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				state string
				count int
				bytes int64
			)
			if err := rows.Scan(&state, &count, &bytes); err != nil {
				return fmt.Errorf("scan state count: %w", err)
			}
			stats.Total += count
			switch state {
			case "succeeded":
				stats.Succeeded = count
				stats.Bytes = bytes
			case "failed":
				stats.Failed = count
			case "cancelled":
				stats.Cancelled = count
			}
		}
		return rows.Err()
	})

	// Average duration of successful uploads
	g.Go(func() error {
		var avg sql.NullFloat64
		err := s.db.QueryRowContext(ctx, `SELECT AVG(duration_ms) FROM uploads
			WHERE state = 'succeeded' AND timestamp >= ? AND timestamp < ?`, lo, hi).Scan(&avg)
		if err != nil {
			return fmt.Errorf("avg duration: %w", err)
		}
		if avg.Valid {
			stats.AvgDurationMS = int(avg.Float64)
		}
		return nil
	})

	g.Go(func() error {
		result, err := s.dimension(ctx, "mime", lo, hi)
		if err != nil {
			return fmt.Errorf("mime stats: %w", err)
		}
		stats.TopMIMETypes = result
		return nil
	})

	g.Go(func() error {
		result, err := s.dimension(ctx, "collection", lo, hi)
		if err != nil {
			return fmt.Errorf("collection stats: %w", err)
		}
		stats.ByCollection = result
		return nil
	})

	// Hourly/daily/monthly series
	g.Go(func() error {
		format := "%Y-%m-%d"
		if hourly {
			format = "%H:00"
		} else if monthly {
			format = "%Y-%m"
		}
		rows, err := s.db.QueryContext(ctx, `SELECT strftime(?, timestamp) AS bucket, COUNT(*)
			FROM uploads WHERE timestamp >= ? AND timestamp < ?
			GROUP BY bucket ORDER BY MIN(timestamp)`, format, lo, hi)
		if err != nil {
			return fmt.Errorf("upload series: %w", err)
		}
		defer rows.Close()
		var series []SeriesPoint
		for rows.Next() {
			var p SeriesPoint
			if err := rows.Scan(&p.Date, &p.Uploads); err != nil {
				return fmt.Errorf("scan series: %w", err)
			}
			series = append(series, p)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if series != nil {
			stats.Series = series
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// dimension counts uploads grouped by column. column is never user input.
func (s *Store) dimension(ctx context.Context, column, lo, hi string) ([]DimensionStat, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) AS n FROM uploads
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY `+column+` ORDER BY n DESC, `+column+` LIMIT 10`, lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []DimensionStat{}
	for rows.Next() {
		var d DimensionStat
		if err := rows.Scan(&d.Name, &d.Count); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// Cleanup removes uploads older than the retention period and reports how
// many rows were deleted.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(tsLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup uploads: %w", err)
	}
	return res.RowsAffected()
}

// StartCleanupScheduler runs periodic cleanup of old records. Returns a stop function.
func (s *Store) StartCleanupScheduler(retentionDays int, interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if n, err := s.Cleanup(context.Background(), retentionDays); err != nil {
					log.Errorf("upload log cleanup: %v", err)
				} else if n > 0 {
					log.Infof("upload log cleanup removed %d records", n)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
