// Package sqlstore persists quotes, currencies and transactions in a local
// SQLite database file.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// Profile selects the durability trade-off of the database file.
type Profile string

const (
	// ProfileLedger fsyncs after every write. For the transaction ledger.
	ProfileLedger Profile = "ledger"
	// ProfileCache skips fsync entirely. For re-fetchable quote data.
	ProfileCache Profile = "cache"
	// ProfileStandard fsyncs at checkpoints.
	ProfileStandard Profile = "standard"
)

// DB wraps a SQLite connection configured for long-running use.
type DB struct {
	conn *sql.DB
	path string
	log  zerolog.Logger
}

// Open opens (creating if needed) the database at path, applies the profile
// pragmas and migrates the schema.
func Open(path string, profile Profile, log zerolog.Logger) (*DB, error) {
	if !strings.HasPrefix(path, "file:") {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		path = abs
	}
	if profile == "" {
		profile = ProfileStandard
	}

	conn, err := sql.Open("sqlite", connString(path, profile))
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database %s: %w", path, err)
	}

	db := &DB{
		conn: conn,
		path: path,
		log:  log.With().Str("component", "sqlstore").Logger(),
	}
	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	db.log.Debug().Str("path", path).Str("profile", string(profile)).Msg("database open")
	return db, nil
}

// connString builds the DSN with profile-specific pragmas.
func connString(path string, profile Profile) string {
	s := path + "?_pragma=journal_mode(WAL)"
	switch profile {
	case ProfileLedger:
		s += "&_pragma=synchronous(FULL)"
		s += "&_pragma=auto_vacuum(NONE)"
	case ProfileCache:
		s += "&_pragma=synchronous(OFF)"
		s += "&_pragma=temp_store(MEMORY)"
	default:
		s += "&_pragma=synchronous(NORMAL)"
		s += "&_pragma=temp_store(MEMORY)"
	}
	s += "&_pragma=foreign_keys(1)"
	s += "&_pragma=busy_timeout(5000)"
	return s
}

const schema = `
CREATE TABLE IF NOT EXISTS currencies (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	code            TEXT    NOT NULL UNIQUE,
	rounding_digits INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS quotes (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	asset_id INTEGER NOT NULL,
	price    REAL    NOT NULL,
	time     INTEGER NOT NULL,
	currency TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quotes_asset_time ON quotes(asset_id, time);

CREATE TABLE IF NOT EXISTS fx_quotes (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	code     TEXT    NOT NULL,
	price    REAL    NOT NULL,
	time     INTEGER NOT NULL,
	currency TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fx_quotes_code_time ON fx_quotes(code, time);

CREATE TABLE IF NOT EXISTS transactions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	kind            TEXT    NOT NULL,
	asset_id        INTEGER,
	position_delta  REAL,
	transaction_ref INTEGER,
	amount          REAL    NOT NULL,
	currency        TEXT    NOT NULL,
	date            TEXT    NOT NULL,
	note            TEXT    NOT NULL DEFAULT ''
);
`

func (db *DB) migrate() error {
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// Conn exposes the raw connection.
func (db *DB) Conn() *sql.DB { return db.conn }

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	err = fn(tx)
	return err
}
