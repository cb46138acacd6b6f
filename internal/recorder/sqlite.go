package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"DipSentinel/internal/logging"

	"github.com/phuslu/log"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists cycle history to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *log.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *log.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	// WAL lets readers inspect history while a cycle writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id            TEXT NOT NULL UNIQUE,
			timestamp         INTEGER NOT NULL,
			exit_code         INTEGER NOT NULL,
			analyzed          INTEGER NOT NULL,
			failed            INTEGER NOT NULL,
			buy_signals       INTEGER NOT NULL,
			persistence_error TEXT,
			error             TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_ts ON cycles(timestamp)`,

		`CREATE TABLE IF NOT EXISTS analysis_results (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id         TEXT NOT NULL,
			symbol         TEXT NOT NULL,
			price          TEXT NOT NULL,
			ath            TEXT NOT NULL,
			ath_date       TEXT NOT NULL,
			gap            TEXT NOT NULL,
			tier           TEXT NOT NULL,
			recommendation TEXT NOT NULL,
			new_ath        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_run ON analysis_results(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_symbol ON analysis_results(symbol)`,

		`CREATE TABLE IF NOT EXISTS failures (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id  TEXT NOT NULL,
			kind    TEXT NOT NULL,
			subject TEXT NOT NULL,
			reason  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	// Databases created before the error column existed.
	return r.addColumn("cycles", "error", "TEXT")
}

func (r *SQLiteRecorder) addColumn(table, column, typ string) error {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n); err != nil {
		return fmt.Errorf("table info %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typ)); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

// RecordCycle writes the cycle and its per-symbol rows in one transaction.
func (r *SQLiteRecorder) RecordCycle(snap *CycleSnapshot) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	buys := 0
	for _, res := range snap.Results {
		if res.IsBuy() {
			buys++
		}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`INSERT INTO cycles
		(run_id, timestamp, exit_code, analyzed, failed, buy_signals, persistence_error, error)
		VALUES (?,?,?,?,?,?,?,?)`,
		snap.RunID, ts.Unix(), snap.ExitCode, len(snap.Results), len(snap.FetchFailures),
		buys, snap.PersistenceError, snap.Error,
	); err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	for _, res := range snap.Results {
		if _, err = tx.Exec(`INSERT INTO analysis_results
			(run_id, symbol, price, ath, ath_date, gap, tier, recommendation, new_ath)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			snap.RunID, res.Symbol, res.CurrentPrice.String(), res.ATHValue.String(),
			res.ATHDate.String(), res.GapPercent.StringFixed(2), res.Tier.String(),
			string(res.Recommendation), res.IsNewATH(),
		); err != nil {
			return fmt.Errorf("insert result %s: %w", res.Symbol, err)
		}
	}

	for _, f := range snap.FetchFailures {
		if _, err = tx.Exec(`INSERT INTO failures (run_id, kind, subject, reason) VALUES (?,?,?,?)`,
			snap.RunID, KindFetch, f.Symbol, f.Reason); err != nil {
			return fmt.Errorf("insert fetch failure: %w", err)
		}
	}

	sinks := make([]string, 0, len(snap.NotifyFailures))
	for sink := range snap.NotifyFailures {
		sinks = append(sinks, sink)
	}
	sort.Strings(sinks)
	for _, sink := range sinks {
		if _, err = tx.Exec(`INSERT INTO failures (run_id, kind, subject, reason) VALUES (?,?,?,?)`,
			snap.RunID, KindNotify, sink, snap.NotifyFailures[sink]); err != nil {
			return fmt.Errorf("insert notify failure: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecentCycles returns up to limit cycles, newest first.
func (r *SQLiteRecorder) RecentCycles(limit int) ([]CycleSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT run_id, timestamp, exit_code, analyzed, failed, buy_signals,
		COALESCE(persistence_error, ''), COALESCE(error, '')
		FROM cycles ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleSummary
	for rows.Next() {
		var (
			c  CycleSummary
			ts int64
		)
		if err := rows.Scan(&c.RunID, &ts, &c.ExitCode, &c.Analyzed, &c.Failed, &c.BuySignals, &c.PersistenceError, &c.Error); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		c.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
