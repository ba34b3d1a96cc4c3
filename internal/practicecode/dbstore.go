package practicecode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Dialect selects the SQL flavour used by DBStore.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite3"
)

// DialectForDriver maps a database/sql driver name to its Dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite3", "sqlite":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported counter database driver: %s", driver)
	}
}

const counterSchema = `CREATE TABLE IF NOT EXISTS practice_code_counter (
	counter_uid VARCHAR(64) NOT NULL PRIMARY KEY,
	counter BIGINT NOT NULL,
	create_time TIMESTAMP NOT NULL
)`

// We maintain exactly one row per counter_uid (<prefix>_<year>) and atomically increment using
// dialect specific UPSERT:
//
//	Postgres/SQLite: INSERT ... ON CONFLICT(counter_uid) DO UPDATE SET counter = counter + 1 RETURNING counter
//	MySQL: INSERT ... ON DUPLICATE KEY UPDATE counter = LAST_INSERT_ID(counter + 1)
//
// A new year gets a fresh row, which is how rollover resets numbering.
type DBStore struct {
	db      *sql.DB
	dialect Dialect
	prefix  string
}

func NewDBStore(db *sql.DB, dialect Dialect, prefix string) *DBStore {
	return &DBStore{db: db, dialect: dialect, prefix: prefix}
}

// EnsureSchema creates the counter table when missing.
func (s *DBStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, counterSchema); err != nil {
		return fmt.Errorf("create practice_code_counter: %w", err)
	}
	return nil
}

func (s *DBStore) uid(year int) string { return fmt.Sprintf("%s_%04d", s.prefix, year) }

// Advance implements CounterStore.
func (s *DBStore) Advance(ctx context.Context, year int) (State, error) {
	uid := s.uid(year)
	switch s.dialect {
	case DialectPostgres:
		q := `INSERT INTO practice_code_counter (counter_uid, counter, create_time)
              VALUES ($1, 1, NOW())
              ON CONFLICT (counter_uid) DO UPDATE SET counter = practice_code_counter.counter + 1
              RETURNING counter`
		var c int64
		if err := s.db.QueryRowContext(ctx, q, uid).Scan(&c); err != nil {
			return State{}, fmt.Errorf("%w: %w", ErrCounterUpdateFailed, err)
		}
		return State{Year: year, LastNumber: c}, nil
	case DialectSQLite:
		q := `INSERT INTO practice_code_counter (counter_uid, counter, create_time)
              VALUES (?, 1, CURRENT_TIMESTAMP)
              ON CONFLICT (counter_uid) DO UPDATE SET counter = practice_code_counter.counter + 1
              RETURNING counter`
		var c int64
		if err := s.db.QueryRowContext(ctx, q, uid).Scan(&c); err != nil {
			return State{}, fmt.Errorf("%w: %w", ErrCounterUpdateFailed, err)
		}
		return State{Year: year, LastNumber: c}, nil
	case DialectMySQL:
		// Read the value from the Exec result to stay on the same pooled connection.
		q := `INSERT INTO practice_code_counter (counter_uid, counter, create_time)
              VALUES (?, 1, NOW())
              ON DUPLICATE KEY UPDATE counter = LAST_INSERT_ID(counter + 1)`
		res, err := s.db.ExecContext(ctx, q, uid)
		if err != nil {
			return State{}, fmt.Errorf("%w: %w", ErrCounterUpdateFailed, err)
		}
		// One affected row means a fresh insert; LAST_INSERT_ID is only set on update.
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			return State{Year: year, LastNumber: 1}, nil
		}
		c, err := res.LastInsertId()
		if err != nil {
			return State{}, fmt.Errorf("%w: %w", ErrCounterUpdateFailed, err)
		}
		return State{Year: year, LastNumber: c}, nil
	default:
		return State{}, fmt.Errorf("%w: unknown dialect %q", ErrCounterUpdateFailed, s.dialect)
	}
}

// Current implements CounterStore.
func (s *DBStore) Current(ctx context.Context, year int) (State, error) {
	q := `SELECT counter FROM practice_code_counter WHERE counter_uid = ?`
	if s.dialect == DialectPostgres {
		q = `SELECT counter FROM practice_code_counter WHERE counter_uid = $1`
	}
	var c int64
	err := s.db.QueryRowContext(ctx, q, s.uid(year)).Scan(&c)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return State{Year: year}, nil
	case err != nil:
		return State{}, fmt.Errorf("%w: %w", ErrCounterUnreadable, err)
	}
	return State{Year: year, LastNumber: c}, nil
}
