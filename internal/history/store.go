// Package history records check runs in SQLite so past verdicts can be
// listed and trended across plugin invocations.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // CGO-free SQLite driver

	"github.com/ppiankov/nagcheck/internal/status"
)

const (
	lineExtra = "extra"
	linePerf  = "perf"
)

// Run is one recorded check invocation.
type Run struct {
	At               time.Time     `json:"at"`
	ID               string        `json:"id"`
	Check            string        `json:"check"`
	Target           string        `json:"target"`
	Prefix           string        `json:"prefix"`
	Status           string        `json:"status"`
	Message          string        `json:"message"`
	ExtraInformation []string      `json:"extraInformation,omitempty"`
	PerformanceData  []string      `json:"performanceData,omitempty"`
	Duration         time.Duration `json:"duration"`
	ExitCode         int           `json:"exitCode"`
}

// Result rebuilds the plugin result the run reported.
func (r *Run) Result() status.Result {
	st := statusFromExitCode(r.ExitCode)
	return status.Result{
		Status:           st,
		StatusLabel:      st.String(),
		Prefix:           r.Prefix,
		Message:          r.Message,
		ExtraInformation: r.ExtraInformation,
		PerformanceData:  r.PerformanceData,
	}
}

// TrendPoint represents a single data point for trend analysis.
type TrendPoint struct {
	At       time.Time     `json:"at"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
}

// Store persists check runs to SQLite.
type Store struct {
	db    *sql.DB
	newID func() string
}

// Open creates or opens a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for tests).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one connection: ":memory:" databases are per-connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db, newID: uuid.NewString}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records one check run and returns its id.
func (s *Store) Save(check, target string, res status.Result, at time.Time, elapsed time.Duration) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // commit below; rollback is no-op after commit

	id := s.newID()
	_, err = tx.Exec(
		"INSERT INTO runs (id, at, check_name, target, prefix, status, exit_code, message, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		id, at.UTC(), check, target, res.Prefix, res.Status.String(), res.Status.ExitCode(), res.Message, elapsed.Milliseconds(),
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO run_lines (run_id, kind, position, text) VALUES (?, ?, ?, ?)")
	if err != nil {
		return "", fmt.Errorf("preparing line insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // statement lifetime bounded by tx

	for kind, lines := range map[string][]string{lineExtra: res.ExtraInformation, linePerf: res.PerformanceData} {
		for i, text := range lines {
			if _, err := stmt.Exec(id, kind, i, text); err != nil {
				return "", fmt.Errorf("inserting %s line: %w", kind, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run: %w", err)
	}
	return id, nil
}

// List returns the most recent runs without their output lines, newest
// first. An empty check or target matches everything.
func (s *Store) List(check, target string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, at, check_name, target, prefix, status, exit_code, message, duration_ms
		FROM runs
		WHERE (? = '' OR check_name = ?) AND (? = '' OR target = ?)
		ORDER BY at DESC
		LIMIT ?`,
		check, check, target, target, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Trend returns status data points for one check target over time, newest first.
func (s *Store) Trend(check, target string, limit int) ([]TrendPoint, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT at, status, duration_ms
		FROM runs
		WHERE check_name = ? AND target = ?
		ORDER BY at DESC
		LIMIT ?`,
		check, target, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying trend: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query

	var points []TrendPoint
	for rows.Next() {
		var p TrendPoint
		var ms int64
		if err := rows.Scan(&p.At, &p.Status, &ms); err != nil {
			return nil, fmt.Errorf("scanning trend point: %w", err)
		}
		p.Duration = time.Duration(ms) * time.Millisecond
		points = append(points, p)
	}
	return points, rows.Err()
}

// Latest returns the most recent run for a check target with its output
// lines, or nil if none was recorded.
func (s *Store) Latest(check, target string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, at, check_name, target, prefix, status, exit_code, message, duration_ms
		FROM runs
		WHERE check_name = ? AND target = ?
		ORDER BY at DESC
		LIMIT 1`,
		check, target,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT kind, text FROM run_lines WHERE run_id = ? ORDER BY kind, position", r.ID)
	if err != nil {
		return nil, fmt.Errorf("querying run lines: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query

	for rows.Next() {
		var kind, text string
		if err := rows.Scan(&kind, &text); err != nil {
			return nil, fmt.Errorf("scanning run line: %w", err)
		}
		switch kind {
		case lineExtra:
			r.ExtraInformation = append(r.ExtraInformation, text)
		case linePerf:
			r.PerformanceData = append(r.PerformanceData, text)
		}
	}
	return &r, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var prefix sql.NullString
	var ms int64
	err := sc.Scan(&r.ID, &r.At, &r.Check, &r.Target, &prefix, &r.Status, &r.ExitCode, &r.Message, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return r, err
	}
	if err != nil {
		return r, fmt.Errorf("scanning run: %w", err)
	}
	r.Prefix = prefix.String
	r.Duration = time.Duration(ms) * time.Millisecond
	return r, nil
}

func statusFromExitCode(code int) status.Status {
	switch code {
	case 0:
		return status.OK
	case 1:
		return status.Warning
	case 2:
		return status.Critical
	default:
		return status.Unknown
	}
}
