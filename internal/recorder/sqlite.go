package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"marketdata/internal/model"
)

// SQLiteRecorder persists fetch outcomes, streaming points, and fired alerts
// to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while the daemon writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fetch_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			symbol     TEXT NOT NULL,
			source     TEXT,
			bars       INTEGER,
			elapsed_ms INTEGER,
			error      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetch_ts ON fetch_events(timestamp)`,

		`CREATE TABLE IF NOT EXISTS stream_points (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp      INTEGER NOT NULL,
			symbol         TEXT NOT NULL,
			price          REAL,
			volume         REAL,
			change         REAL,
			change_percent REAL,
			source         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_points_ts ON stream_points(timestamp)`,

		`CREATE TABLE IF NOT EXISTS alerts_fired (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			symbol    TEXT NOT NULL,
			price     REAL,
			kind      TEXT,
			threshold REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts_fired(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordFetch(evt *FetchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO fetch_events
		(timestamp, symbol, source, bars, elapsed_ms, error)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), evt.Symbol, evt.Source, evt.Bars,
		evt.Elapsed.Milliseconds(), evt.Error,
	)
	return err
}

func (r *SQLiteRecorder) RecordPoint(pt *model.StreamingPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO stream_points
		(timestamp, symbol, price, volume, change, change_percent, source)
		VALUES (?,?,?,?,?,?,?)`,
		pt.Timestamp.Unix(), pt.Symbol, pt.Price, pt.Volume,
		pt.Change, pt.ChangePercent, pt.Source,
	)
	return err
}

// RecordAlert writes one row per triggered threshold so a single tick that
// fires both kinds produces two rows.
func (r *SQLiteRecorder) RecordAlert(alert *model.FiredAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for kind, threshold := range alert.Triggered {
		if _, err := r.db.Exec(`INSERT INTO alerts_fired
			(timestamp, symbol, price, kind, threshold)
			VALUES (?,?,?,?,?)`,
			alert.Timestamp.Unix(), alert.Symbol, alert.Price, string(kind), threshold,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
