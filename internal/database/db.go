package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

const sqliteReaders = 4

// DB holds a write pool and a read pool. For postgres both are the same
// pool. SQLite gets a single writer connection plus a separate query-only
// pool, so readers in WAL mode never queue behind an open index transaction.
type DB struct {
	conn   *sql.DB
	reader *sql.DB
	dbType string
	logger *slog.Logger
}

type Config struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
}

func NewDB(ctx context.Context, config Config, logger *slog.Logger) (*DB, error) {
	var conn *sql.DB
	var err error

	switch config.Type {
	case "sqlite":
		dsn := config.SQLitePath + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
		conn, err = sql.Open("sqlite3", dsn)
		if err == nil {
			// One writer keeps the index replace transaction from hitting SQLITE_BUSY.
			conn.SetMaxOpenConns(1)
		}
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			config.Host, config.Port, config.User, config.Password, config.Name)
		conn, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, reader: conn, dbType: config.Type, logger: logger.With("component", "database")}

	// SQLite files are private to the process, so they are migrated on open.
	// Postgres is migrated explicitly through cmd/migrate.
	if config.Type == "sqlite" {
		if err := NewMigrator(db).Run(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}

		reader, err := openSQLiteReader(ctx, config.SQLitePath)
		if err != nil {
			conn.Close()
			return nil, err
		}
		db.reader = reader
	}

	return db, nil
}

func openSQLiteReader(ctx context.Context, path string) (*sql.DB, error) {
	reader, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_query_only=true")
	if err != nil {
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}
	reader.SetMaxOpenConns(sqliteReaders)
	if err := reader.PingContext(ctx); err != nil {
		reader.Close()
		return nil, fmt.Errorf("failed to ping read pool: %w", err)
	}
	return reader, nil
}

func (db *DB) Close() error {
	var err error
	if db.reader != db.conn {
		err = db.reader.Close()
	}
	return errors.Join(db.conn.Close(), err)
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Type() string {
	return db.dbType
}

// rebind rewrites ? placeholders into $n for postgres.
func (db *DB) rebind(query string) string {
	if db.dbType != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
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
