// Package schema provides live introspection of the target relational
// database: table lists, column names per table, and a pool of cached
// engines keyed by (normalized) connection string.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// EngineTTL is how long a pooled engine is kept before it is recycled on
// next use.
const EngineTTL = time.Hour

type pooledEngine struct {
	db       *sql.DB
	openedAt time.Time
}

// Inspector introspects a relational database and caches *sql.DB handles
// per connection string. It is safe for concurrent use.
type Inspector struct {
	mu      sync.Mutex
	engines map[string]*pooledEngine

	// open opens a fresh *sql.DB for a normalized connection string. It is
	// swapped out in tests to inject a sqlmock-backed handle without a
	// real network dial.
	open func(connStr string) (*sql.DB, error)
}

// NewInspector returns an empty Inspector. Engines are opened lazily on
// first use of a connection string.
func NewInspector() *Inspector {
	return NewWithOpener(func(connStr string) (*sql.DB, error) {
		return sql.Open("mysql", connStr)
	})
}

// NewWithOpener returns an empty Inspector that uses open to obtain a
// fresh *sql.DB for a connection string, instead of dialing mysql
// directly. Exported so other packages' tests can exercise a full
// Inspector-backed pipeline (e.g. the workflow graph's execute node)
// against a sqlmock-backed handle without a real network dial.
func NewWithOpener(open func(connStr string) (*sql.DB, error)) *Inspector {
	return &Inspector{
		engines: make(map[string]*pooledEngine),
		open:    open,
	}
}

// Engine returns a pooled *sql.DB for connStr, opening and pinging a fresh
// one if none is cached or the cached one has exceeded EngineTTL. The
// connection string is normalized first so async driver name variants
// (e.g. a "mysql+asyncmy://" scheme carried over from configuration shared
// with other services) resolve to the same synchronous entry.
func (i *Inspector) Engine(ctx context.Context, connStr string) (*sql.DB, error) {
	key := NormalizeConnString(connStr)

	i.mu.Lock()
	defer i.mu.Unlock()

	if cached, ok := i.engines[key]; ok {
		if time.Since(cached.openedAt) < EngineTTL {
			return cached.db, nil
		}
		_ = cached.db.Close()
		delete(i.engines, key)
	}

	db, err := i.open(key)
	if err != nil {
		return nil, fmt.Errorf("opening database engine: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database engine: %w", err)
	}

	i.engines[key] = &pooledEngine{db: db, openedAt: time.Now()}
	return db, nil
}

// RecycleStale proactively closes and evicts every pooled engine that has
// exceeded EngineTTL, so the next Engine call for that connection string
// opens a fresh handle instead of waiting for a request to trigger the
// lazy recycle check. Intended to be called from the housekeeping
// scheduler, independent of request traffic.
func (i *Inspector) RecycleStale() {
	i.mu.Lock()
	defer i.mu.Unlock()

	for key, e := range i.engines {
		if time.Since(e.openedAt) >= EngineTTL {
			_ = e.db.Close()
			delete(i.engines, key)
		}
	}
}

// Close releases every pooled engine. Intended for process shutdown.
func (i *Inspector) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	var firstErr error
	for key, e := range i.engines {
		if err := e.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(i.engines, key)
	}
	return firstErr
}

// NormalizeConnString rewrites known async driver scheme prefixes to their
// synchronous equivalent, since introspection always runs over database/sql
// rather than an async driver.
func NormalizeConnString(connStr string) string {
	replacer := strings.NewReplacer(
		"mysql+asyncmy://", "",
		"mysql+aiomysql://", "",
		"mysql+pymysql://", "",
	)
	return replacer.Replace(connStr)
}

// TableNames returns every base table in the database's current schema.
func (i *Inspector) TableNames(ctx context.Context, connStr string) ([]string, error) {
	db, err := i.Engine(ctx, connStr)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ColumnNames returns every column name declared on table, in ordinal
// position order.
func (i *Inspector) ColumnNames(ctx context.Context, connStr, table string) ([]string, error) {
	db, err := i.Engine(ctx, connStr)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("listing columns for %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scanning column name: %w", err)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// LookupUserName fetches first_name/last_name for userID from the "user"
// table and renders them into a single display name, e.g. "Jane Doe". A
// non-numeric userID, a missing row, or any query error all yield ("",
// false) rather than an error; this is a best-effort enrichment, never a
// correctness dependency.
func (i *Inspector) LookupUserName(ctx context.Context, connStr, userID string) (string, bool) {
	if _, err := strconv.Atoi(strings.TrimSpace(userID)); err != nil {
		return "", false
	}

	db, err := i.Engine(ctx, connStr)
	if err != nil {
		return "", false
	}

	var firstName, lastName sql.NullString
	row := db.QueryRowContext(ctx, `SELECT first_name, last_name FROM user WHERE id = ? LIMIT 1`, userID)
	if err := row.Scan(&firstName, &lastName); err != nil {
		return "", false
	}

	name := firstName.String
	if name == "" {
		name = "User"
	}
	if lastName.String != "" {
		name += " " + lastName.String
	}
	return name, true
}

// ColumnMap builds the table -> set(columns) map the SQL Validator uses to
// check qualified column references against, covering every table named in
// tables.
func (i *Inspector) ColumnMap(ctx context.Context, connStr string, tables []string) (map[string]map[string]struct{}, error) {
	out := make(map[string]map[string]struct{}, len(tables))
	for _, table := range tables {
		cols, err := i.ColumnNames(ctx, connStr, table)
		if err != nil {
			return nil, err
		}
		set := make(map[string]struct{}, len(cols))
		for _, c := range cols {
			set[c] = struct{}{}
		}
		out[table] = set
	}
	return out, nil
}
