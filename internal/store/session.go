package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"perftests-app/internal/domain"
)

var errNotInitialized = errors.New("gateway not initialized")

// Session is a checked-out connection valid for the duration of one
// Gateway.Session callback.
type Session struct {
	conn    *sql.Conn
	driver  string
	timeout time.Duration
}

// Exec runs a statement written with ? placeholders and returns the number
// of affected rows.
func (s *Session) Exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.conn.ExecContext(ctx, s.rebind(stmt), args...)
	if err != nil {
		return 0, classify("exec", err, domain.ErrStatement)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("exec", err, domain.ErrStatement)
	}
	return n, nil
}

// Query runs a statement and calls scan once per row. Rows are closed before
// Query returns.
func (s *Session) Query(ctx context.Context, stmt string, args []any, scan func(*sql.Rows) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, s.rebind(stmt), args...)
	if err != nil {
		return classify("query", err, domain.ErrStatement)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return classify("scan", err, domain.ErrStatement)
		}
	}
	if err := rows.Err(); err != nil {
		return classify("query", err, domain.ErrStatement)
	}
	return nil
}

func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (s *Session) rebind(stmt string) string {
	if s.driver != DriverPgx || !strings.Contains(stmt, "?") {
		return stmt
	}
	var b strings.Builder
	b.Grow(len(stmt) + 8)
	n := 0
	for _, r := range stmt {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// classify maps a database/sql error onto the domain error kinds. Caller
// cancellation is passed through untouched so handlers can tell it apart.
// Lock contention counts as a timeout: the statement may succeed on retry.
func classify(op string, err error, fallback error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, context.DeadlineExceeded), isBusy(err):
		return domain.E(domain.ErrTimeout, op, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return domain.E(domain.ErrConnection, op, err)
	default:
		return domain.E(fallback, op, err)
	}
}

// isBusy reports SQLITE_BUSY and SQLITE_LOCKED from either SQLite driver.
func isBusy(err error) bool {
	var cgoErr sqlite3.Error
	if errors.As(err, &cgoErr) {
		return cgoErr.Code == sqlite3.ErrBusy || cgoErr.Code == sqlite3.ErrLocked
	}
	var pureErr *sqlite.Error
	if errors.As(err, &pureErr) {
		switch pureErr.Code() & 0xff {
		case sqlitelib.SQLITE_BUSY, sqlitelib.SQLITE_LOCKED:
			return true
		}
	}
	return false
}
