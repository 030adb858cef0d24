package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/remindbot/internal/domain"
	"example.com/remindbot/internal/storage"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects using driver ("sqlite" or "pgx"), creates the schema if it
// does not exist and applies pending column migrations.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, errors.New("empty dsn")
	}
	if d.name() == DriverSQLite {
		dsn = withSQLitePragmas(dsn)
	}
	db, err := sql.Open(d.name(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db, dialect: d}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify(s.dialect, "ping", err)
	}
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if err := s.dialect.migrate(ctx, s.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// withSQLitePragmas applies WAL and a busy timeout to every pooled
// connection; a one-off PRAGMA exec would only reach one of them.
func withSQLitePragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return classify(s.dialect, "ping", s.db.PingContext(ctx))
}

const taskColumns = `id, owner, title, due_at, created_at, done, sent_3h, sent_1h, sent_5m, sent_0`

func (s *Store) Insert(ctx context.Context, owner, title string, dueAt, createdAt time.Time) (int64, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		insert into tasks(owner, title, due_at, created_at)
		values (?, ?, ?, ?)
		returning id`),
		owner,
		title,
		s.dialect.timeArg(dueAt),
		s.dialect.timeArg(createdAt),
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, classify(s.dialect, "insert task", err)
	}
	return id, nil
}

func (s *Store) ListOpenFirst(ctx context.Context, owner string, limit int) ([]domain.Task, error) {
	return s.query(ctx, "list tasks", `
		select `+taskColumns+`
		from tasks
		where owner = ?
		order by done asc, due_at asc, id asc
		limit ?`,
		owner, limit,
	)
}

func (s *Store) GetByID(ctx context.Context, id int64) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		select `+taskColumns+`
		from tasks
		where id = ?`),
		id,
	)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, storage.ErrNotFound
		}
		return domain.Task{}, classify(s.dialect, fmt.Sprintf("get task %d", id), err)
	}
	return t, nil
}

func (s *Store) MarkDone(ctx context.Context, owner string, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		update tasks
		set done = true
		where id = ? and owner = ?`),
		id, owner,
	)
	if err != nil {
		return false, classify(s.dialect, fmt.Sprintf("mark done %d", id), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) DueCandidates(ctx context.Context, limit int) ([]domain.Task, error) {
	return s.query(ctx, "due candidates", `
		select `+taskColumns+`
		from tasks
		where done = false
		order by due_at asc, id asc
		limit ?`,
		limit,
	)
}

func (s *Store) MarkThresholdSent(ctx context.Context, id int64, th domain.Threshold) (bool, error) {
	col, err := storage.SentColumn(th)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`update tasks set `+col+` = true where id = ? and `+col+` = false`),
		id,
	)
	if err != nil {
		return false, classify(s.dialect, fmt.Sprintf("mark %s sent for %d", th, id), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}
	// Zero rows means either the flag was already set or the task is gone.
	if _, err := s.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, classify(s.dialect, op, err)
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(s.dialect, op, err)
	}
	return res, nil
}

func scanTask(scanner interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var dueAt, createdAt timeValue
	if err := scanner.Scan(
		&t.ID,
		&t.Owner,
		&t.Title,
		&dueAt,
		&createdAt,
		&t.Done,
		&t.Sent.ThreeHours,
		&t.Sent.OneHour,
		&t.Sent.FiveMinutes,
		&t.Sent.Due,
	); err != nil {
		return domain.Task{}, err
	}
	t.DueAt = dueAt.Time
	t.CreatedAt = createdAt.Time
	return t, nil
}

// timeValue accepts both native timestamps (Postgres) and RFC 3339 text
// (SQLite) and always yields UTC.
type timeValue struct {
	Time time.Time
}

func (v *timeValue) Scan(src any) error {
	switch x := src.(type) {
	case time.Time:
		v.Time = x.UTC()
		return nil
	case string:
		return v.parse(x)
	case []byte:
		return v.parse(string(x))
	case nil:
		return errors.New("null timestamp")
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (v *timeValue) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	v.Time = t.UTC()
	return nil
}
