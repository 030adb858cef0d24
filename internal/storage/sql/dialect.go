package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"example.com/remindbot/internal/storage"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// dialect covers the handful of places where SQLite and Postgres disagree.
// Queries are written once with ? placeholders and rebound per dialect.
type dialect interface {
	name() string
	rebind(query string) string
	timeArg(t time.Time) any
	schema() []string
	migrate(ctx context.Context, db *sql.DB) error
	unavailable(err error) bool
}

func dialectFor(driverName string) (dialect, error) {
	switch driverName {
	case DriverSQLite:
		return sqliteDialect{}, nil
	case DriverPostgres, "postgres":
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driverName)
	}
}

// sentColumnDefs lists the reminder flag columns added after the first
// schema version shipped. Existing databases get them on open.
var sentColumnDefs = []string{"sent_3h", "sent_1h", "sent_5m", "sent_0"}

type sqliteDialect struct{}

func (sqliteDialect) name() string { return DriverSQLite }

func (sqliteDialect) rebind(query string) string { return query }

// sqliteTimeLayout is fixed width so that text comparison in ORDER BY
// matches chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func (sqliteDialect) timeArg(t time.Time) any {
	return t.UTC().Format(sqliteTimeLayout)
}

func (sqliteDialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			owner      TEXT    NOT NULL,
			title      TEXT    NOT NULL,
			due_at     TEXT    NOT NULL,
			created_at TEXT    NOT NULL,
			done       INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS tasks_done_due ON tasks (done, due_at)`,
		`CREATE INDEX IF NOT EXISTS tasks_owner_done_due ON tasks (owner, done, due_at)`,
	}
}

func (sqliteDialect) migrate(ctx context.Context, db *sql.DB) error {
	for _, col := range sentColumnDefs {
		ok, err := sqliteHasColumn(ctx, db, "tasks", col)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := db.ExecContext(ctx, "ALTER TABLE tasks ADD COLUMN "+col+" INTEGER NOT NULL DEFAULT 0"); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}

func sqliteHasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, typ string
		var notNull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (sqliteDialect) unavailable(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR:
			return true
		}
	}
	return false
}

type postgresDialect struct{}

func (postgresDialect) name() string { return DriverPostgres }

func (postgresDialect) rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (postgresDialect) timeArg(t time.Time) any { return t.UTC() }

func (postgresDialect) schema() []string {
	return []string{
		`create table if not exists tasks (
			id         bigserial primary key,
			owner      text        not null,
			title      text        not null,
			due_at     timestamptz not null,
			created_at timestamptz not null,
			done       boolean     not null default false
		)`,
		`create index if not exists tasks_done_due on tasks (done, due_at)`,
		`create index if not exists tasks_owner_done_due on tasks (owner, done, due_at)`,
	}
}

func (postgresDialect) migrate(ctx context.Context, db *sql.DB) error {
	for _, col := range sentColumnDefs {
		if _, err := db.ExecContext(ctx, "alter table tasks add column if not exists "+col+" boolean not null default false"); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}

func (postgresDialect) unavailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exception, 57P covers admin/crash shutdown.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

// classify wraps err with storage.ErrUnavailable when it signals that the
// backend itself is unreachable rather than that the query was wrong.
func classify(d dialect, op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if d.unavailable(err) || errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
