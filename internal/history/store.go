// Package history persists competency assessments. The competency_history
// table is append-only: there are no update or delete paths.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	// DefaultPath is the sqlite database file used when no DSN is configured.
	DefaultPath = "data/competency_history.sqlite"

	historyTable  = "competency_history"
	messagesTable = "message_history"
)

// Config selects the backend. Driver may be empty, in which case it is
// inferred from DSN. For sqlite, DSN is a file path.
type Config struct {
	Driver string
	DSN    string
	Logger *log.Logger
	// Now overrides the clock used for row timestamps.
	Now func() time.Time
}

// Record is one stored assessment.
type Record struct {
	ID            int64     `json:"id" yaml:"id"`
	Skill         string    `json:"skill" yaml:"skill"`
	Level         int       `json:"level" yaml:"level"`
	Justification string    `json:"justification" yaml:"justification"`
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
}

// Filter narrows List results.
type Filter struct {
	Skill string
	Limit int
}

// PersistenceError reports a failed write. The transaction has been rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ErrNoHistory is returned by OpenReadOnly when nothing has been stored yet.
var ErrNoHistory = errors.New("no assessment history")

// ErrReadOnly is the cause of a PersistenceError from a store opened with
// OpenReadOnly.
var ErrReadOnly = errors.New("history store opened read-only")

// Store is the assessment history backed by database/sql.
type Store struct {
	db       *sql.DB
	dialect  dialect
	logger   *log.Logger
	now      func() time.Time
	readOnly bool
}

// Open connects to the configured backend and runs Setup.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	s, err := open(cfg, true)
	if err != nil {
		return nil, err
	}
	if err := s.Setup(ctx); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	return s, nil
}

// OpenReadOnly connects without creating anything: no sqlite file or
// directory, no tables. A missing database or history table yields
// ErrNoHistory. Writes on the returned store fail with ErrReadOnly.
func OpenReadOnly(ctx context.Context, cfg Config) (*Store, error) {
	s, err := open(cfg, false)
	if err != nil {
		return nil, err
	}
	s.readOnly = true

	exists, err := s.tableExists(ctx, historyTable)
	if err != nil {
		_ = s.db.Close()
		return nil, fmt.Errorf("failed to inspect history store: %w", err)
	}
	if !exists {
		_ = s.db.Close()
		return nil, ErrNoHistory
	}
	return s, nil
}

func open(cfg Config, create bool) (*Store, error) {
	d, ok := dialectFor(cfg.Driver, cfg.DSN)
	if !ok {
		return nil, fmt.Errorf("unsupported history driver %q", cfg.Driver)
	}

	dsn := cfg.DSN
	if d.name == DriverSQLite {
		if dsn == "" {
			dsn = DefaultPath
		}
		if !create && dsn != ":memory:" {
			if _, err := os.Stat(dsn); errors.Is(err, os.ErrNotExist) {
				return nil, ErrNoHistory
			}
		}
		if dir := filepath.Dir(dsn); create && dir != "." && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create history directory: %w", err)
			}
		}
	}

	db, err := sql.Open(d.sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	if d.name == DriverSQLite {
		// one writer at a time; also keeps :memory: on a single connection
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:      db,
		dialect: d,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard, "", 0)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Setup creates the history tables when they are absent. Existing tables are
// never altered.
func (s *Store) Setup(ctx context.Context) error {
	exists, err := s.tableExists(ctx, historyTable)
	if err != nil {
		return fmt.Errorf("failed to inspect history store: %w", err)
	}
	if !exists {
		if _, err := s.db.ExecContext(ctx, s.dialect.createHistory); err != nil {
			return fmt.Errorf("failed to create %s: %w", historyTable, err)
		}
		s.logger.Printf("Database and table %s created.", historyTable)
	}

	if _, err := s.db.ExecContext(ctx, s.dialect.createMessages); err != nil {
		return fmt.Errorf("failed to create %s: %w", messagesTable, err)
	}
	return nil
}

func (s *Store) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(s.dialect.tableExists), name).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Save appends one assessment stamped with the current time. The insert runs
// in its own transaction and is rolled back on any failure.
func (s *Store) Save(ctx context.Context, skill string, level int, justification string) error {
	query := s.dialect.rebind(`INSERT INTO competency_history (skill, level, justification, timestamp) VALUES (?, ?, ?, ?)`)
	return s.inTx(ctx, "save", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, skill, level, justification, s.now())
		return err
	})
}

// Count returns the number of stored assessments.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM competency_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

// List returns stored assessments, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	query := `SELECT id, skill, level, justification, timestamp FROM competency_history`
	var args []any
	if f.Skill != "" {
		query += ` WHERE skill = ?`
		args = append(args, f.Skill)
	}
	query += ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r             Record
			skill, justif sql.NullString
			level         sql.NullInt64
			ts            any
		)
		if err := rows.Scan(&r.ID, &skill, &level, &justif, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		r.Skill = skill.String
		r.Level = int(level.Int64)
		r.Justification = justif.String
		r.Timestamp = parseTimestamp(ts)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return records, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn in a transaction: commit on success, rollback otherwise.
func (s *Store) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	if s.readOnly {
		return &PersistenceError{Op: op, Err: ErrReadOnly}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, rbErr)
		}
		return &PersistenceError{Op: op, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	return nil
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts what the drivers hand back for a datetime column:
// time.Time from pgx (and modernc for declared DATETIME), text otherwise.
func parseTimestamp(v any) time.Time {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
