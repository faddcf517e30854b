package data

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DataFileName = "data.db"

	schemaVersion = 1

	timeFormat = "2006-01-02T15:04:05Z"
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")
)

// Init creates the schema if the store behind the DSN does not have one
// yet. The DSN is either a SQLite file path or a postgres:// URL.
func Init(dsn string) error {
	if dsn == "" {
		return errors.New("dsn not specified")
	}

	db, err := GetDB(dsn)
	if err != nil {
		return fmt.Errorf("opening database %s: %w", dsn, err)
	}
	defer db.Close()

	if hasSchema(db) {
		return nil
	}

	slog.Debug("creating db schema")
	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return fmt.Errorf("reading schema file: %w", err)
	}
	if _, err := db.Exec(string(b)); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	now := time.Now().UTC().Format(timeFormat)
	if _, err := db.Exec(rebind(db, `INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`),
		schemaVersion, now); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	slog.Debug("db schema created", "version", schemaVersion)

	return nil
}

// GetDB opens a connection for the given DSN, picking the driver from
// its shape. Callers own the returned handle.
func GetDB(dsn string) (*sql.DB, error) {
	conn, err := sql.Open(driverName(dsn), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", dsn, err)
	}
	return conn, nil
}

func driverName(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

func isPostgres(db *sql.DB) bool {
	_, ok := db.Driver().(*pq.Driver)
	return ok
}

// rebind converts ?-style placeholders to the $N form Postgres
// requires. Queries in this package are written with ? only.
func rebind(db *sql.DB, query string) string {
	if !isPostgres(db) {
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

func hasSchema(db *sql.DB) bool {
	var v int
	err := db.QueryRow(`SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`).Scan(&v)
	return err == nil
}

func rollbackTransaction(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		slog.Error("error rolling back transaction", "error", err)
	}
}

// Contains checks for val in list
func Contains[T comparable](list []T, val T) bool {
	if list == nil {
		return false
	}
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
