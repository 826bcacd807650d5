// Package storage provides a SQLite-backed audit trail of computed session
// ranges and delivered alerts. The monitor's live state never depends on
// it; a storage failure is logged and the tick goes on.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/sessionwatch/internal/models"
	"github.com/rewired-gh/sessionwatch/internal/session"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all audit operations.
type Storage struct {
	db        *sql.DB
	maxAlerts int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/sessionwatch/data.db.
func New(maxAlerts int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "sessionwatch", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxAlerts: maxAlerts}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session_ranges (
			symbol      TEXT NOT NULL,
			session     TEXT NOT NULL,
			trading_day TEXT NOT NULL,
			high        REAL NOT NULL,
			low         REAL NOT NULL,
			computed_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, session, trading_day)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id             TEXT PRIMARY KEY,
			symbol         TEXT NOT NULL,
			source_session TEXT NOT NULL,
			boundary       TEXT NOT NULL,
			level          REAL NOT NULL,
			price          REAL NOT NULL,
			active_session TEXT NOT NULL,
			sent_at        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_sent_at ON alerts(sent_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordRange stores the range snapshot for one (symbol, session, day).
// First write wins, mirroring the in-memory store's semantics.
func (s *Storage) RecordRange(rng models.SessionRange) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO session_ranges
			(symbol, session, trading_day, high, low, computed_at)
		VALUES (?,?,?,?,?,?)`,
		rng.Symbol, rng.Session.String(), rng.TradingDay,
		rng.High, rng.Low, rng.ComputedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert range: %w", err)
	}
	return nil
}

// RangesForDay returns every recorded range for one trading day.
func (s *Storage) RangesForDay(day string) ([]models.SessionRange, error) {
	rows, err := s.db.Query(`
		SELECT symbol, session, trading_day, high, low, computed_at
		FROM session_ranges WHERE trading_day = ?`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query ranges: %w", err)
	}
	defer rows.Close()

	var ranges []models.SessionRange
	for rows.Next() {
		var rng models.SessionRange
		var sessName string
		var computedAtNano int64
		if err := rows.Scan(&rng.Symbol, &sessName, &rng.TradingDay, &rng.High, &rng.Low, &computedAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan range: %w", err)
		}
		sess, err := session.Parse(sessName)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored session: %w", err)
		}
		rng.Session = sess
		rng.ComputedAt = time.Unix(0, computedAtNano)
		ranges = append(ranges, rng)
	}
	return ranges, rows.Err()
}

// RecordAlert stores a delivered alert and trims the table to the newest
// maxAlerts rows. A missing ID is filled in.
func (s *Storage) RecordAlert(alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("invalid alert: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO alerts
			(id, symbol, source_session, boundary, level, price, active_session, sent_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		alert.ID, alert.Symbol, alert.Source.String(), alert.Boundary.String(),
		alert.Level, alert.Price, alert.Active.String(), alert.SentAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM alerts WHERE id NOT IN (
			SELECT id FROM alerts ORDER BY sent_at DESC LIMIT ?
		)`, s.maxAlerts); err != nil {
		return fmt.Errorf("failed to enforce alert cap: %w", err)
	}

	return tx.Commit()
}

// RecentAlerts returns the newest k delivered alerts.
func (s *Storage) RecentAlerts(k int) ([]models.Alert, error) {
	rows, err := s.db.Query(`
		SELECT id, symbol, source_session, boundary, level, price, active_session, sent_at
		FROM alerts ORDER BY sent_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var srcName, boundaryName, activeName string
		var sentAtNano int64
		if err := rows.Scan(&a.ID, &a.Symbol, &srcName, &boundaryName, &a.Level, &a.Price, &activeName, &sentAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if a.Source, err = session.Parse(srcName); err != nil {
			return nil, fmt.Errorf("failed to parse stored session: %w", err)
		}
		if a.Active, err = session.Parse(activeName); err != nil {
			return nil, fmt.Errorf("failed to parse stored session: %w", err)
		}
		if a.Boundary, err = models.ParseBoundary(boundaryName); err != nil {
			return nil, fmt.Errorf("failed to parse stored boundary: %w", err)
		}
		a.SentAt = time.Unix(0, sentAtNano)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// PruneRanges deletes range snapshots from trading days older than day.
func (s *Storage) PruneRanges(day string) error {
	if _, err := s.db.Exec(`DELETE FROM session_ranges WHERE trading_day < ?`, day); err != nil {
		return fmt.Errorf("failed to prune ranges: %w", err)
	}
	return nil
}
