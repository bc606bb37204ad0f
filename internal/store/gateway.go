package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"perftests-app/internal/domain"

	// Registered drivers: sqlite3 (cgo), sqlite (pure Go), pgx (PostgreSQL).
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite3 = "sqlite3"
	DriverSQLite  = "sqlite"
	DriverPgx     = "pgx"
)

// BusyTimeout is how long, in milliseconds, a SQLite connection waits on a
// locked database when the DSN does not say otherwise.
const BusyTimeout = 5000

var (
	//go:embed schema_sqlite.sql
	sqliteSchema string
	//go:embed schema_postgres.sql
	postgresSchema string
)

type Config struct {
	Driver          string
	DSN             string
	SchemaPath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// QueryTimeout bounds every statement run through a Session. Zero disables it.
	QueryTimeout time.Duration
}

// DataDir returns the directory holding a file backed SQLite database, or ""
// for in-memory databases and Postgres.
func (c Config) DataDir() string {
	if c.Driver == DriverPgx {
		return ""
	}
	path := strings.TrimPrefix(c.DSN, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return filepath.Dir(path)
}

// connString sets a busy timeout on SQLite DSNs so pooled connections wait
// for the write lock instead of failing. mattn reads _busy_timeout; modernc
// only applies _pragma parameters, so _busy_timeout is translated for it.
func connString(driver, dsn string) string {
	path, rawQuery, _ := strings.Cut(dsn, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return dsn
	}

	switch driver {
	case DriverSQLite3:
		if q.Has("_busy_timeout") || q.Has("_timeout") {
			return dsn
		}
		q.Set("_busy_timeout", strconv.Itoa(BusyTimeout))
	case DriverSQLite:
		for _, p := range q["_pragma"] {
			if strings.HasPrefix(strings.ToLower(p), "busy_timeout") {
				return dsn
			}
		}
		ms := BusyTimeout
		if v := q.Get("_busy_timeout"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				ms = n
			}
			q.Del("_busy_timeout")
		}
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", ms))
	default:
		return dsn
	}
	return path + "?" + q.Encode()
}

// Gateway owns the connection pool. It is the only type in the service that
// talks to the database.
type Gateway struct {
	db  *sql.DB
	cfg Config
	log *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite3
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &Gateway{cfg: cfg, log: log}
}

// Init opens the pool and verifies the target is reachable.
func (g *Gateway) Init(ctx context.Context) error {
	switch g.cfg.Driver {
	case DriverSQLite3, DriverSQLite, DriverPgx:
	default:
		return domain.E(domain.ErrConnection, "open", fmt.Errorf("unsupported driver %q", g.cfg.Driver))
	}

	db, err := sql.Open(g.cfg.Driver, connString(g.cfg.Driver, g.cfg.DSN))
	if err != nil {
		return domain.E(domain.ErrConnection, "open", err)
	}

	db.SetMaxOpenConns(g.cfg.MaxOpenConns)
	db.SetMaxIdleConns(g.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(g.cfg.ConnMaxLifetime)

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return domain.E(domain.ErrConnection, "ping", err)
	}

	g.db = db
	g.log.Info("store gateway initialized", zap.String("driver", g.cfg.Driver))
	return nil
}

// Bootstrap runs the schema script. The script comes from Config.SchemaPath
// when set, otherwise the embedded script for the configured driver is used.
func (g *Gateway) Bootstrap(ctx context.Context) error {
	schema, err := g.schema()
	if err != nil {
		return err
	}
	return g.Session(ctx, func(s *Session) error {
		_, err := s.Exec(ctx, schema)
		return err
	})
}

func (g *Gateway) schema() (string, error) {
	if g.cfg.SchemaPath != "" {
		b, err := os.ReadFile(g.cfg.SchemaPath)
		if err != nil {
			return "", fmt.Errorf("reading schema %s: %w", g.cfg.SchemaPath, err)
		}
		return string(b), nil
	}
	if g.cfg.Driver == DriverPgx {
		return postgresSchema, nil
	}
	return sqliteSchema, nil
}

// Session checks out one pooled connection, runs fn on it and hands the
// connection back to the pool on every exit path.
func (g *Gateway) Session(ctx context.Context, fn func(*Session) error) error {
	if g.db == nil {
		return domain.E(domain.ErrConnection, "connect", errNotInitialized)
	}
	conn, err := g.db.Conn(ctx)
	if err != nil {
		return classify("connect", err, domain.ErrConnection)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			g.log.Warn("releasing connection", zap.Error(cerr))
		}
	}()

	return fn(&Session{conn: conn, driver: g.cfg.Driver, timeout: g.cfg.QueryTimeout})
}

func (g *Gateway) Ping(ctx context.Context) error {
	if g.db == nil {
		return domain.E(domain.ErrConnection, "ping", errNotInitialized)
	}
	if err := g.db.PingContext(ctx); err != nil {
		return classify("ping", err, domain.ErrConnection)
	}
	return nil
}

// DB exposes the pool for stats collection only.
func (g *Gateway) DB() *sql.DB {
	return g.db
}

func (g *Gateway) Close() error {
	if g.db != nil {
		return g.db.Close()
	}
	return nil
}
