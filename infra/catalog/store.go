// Package catalog provides SQL-backed implementations of catalog.Catalog.
// SQLite (modernc.org/sqlite) and Postgres (pgx) share one schema and query
// set; only placeholder syntax differs.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	corecatalog "github.com/kilianp07/dspfactory/core/catalog"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

const schema = `CREATE TABLE IF NOT EXISTS factory_catalog (
	sha_key TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	backend TEXT NOT NULL,
	libraries TEXT NOT NULL,
	blob_key TEXT NOT NULL,
	size BIGINT NOT NULL,
	binary_form BOOLEAN NOT NULL,
	small BOOLEAN NOT NULL,
	stored_at BIGINT NOT NULL
)`

const indexName = `CREATE INDEX IF NOT EXISTS factory_catalog_name ON factory_catalog(name, stored_at)`

// SQLStore implements catalog.Catalog on a database/sql handle.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	for _, stmt := range []string{schema, indexName} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure catalog schema: %w", err)
		}
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
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

// Upsert inserts or replaces the entry for e.SHAKey.
func (s *SQLStore) Upsert(ctx context.Context, e corecatalog.Entry) error {
	libs, err := json.Marshal(nonNil(e.Libraries))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO factory_catalog
		(sha_key, name, backend, libraries, blob_key, size, binary_form, small, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sha_key) DO UPDATE SET
			name = excluded.name,
			backend = excluded.backend,
			libraries = excluded.libraries,
			blob_key = excluded.blob_key,
			size = excluded.size,
			binary_form = excluded.binary_form,
			small = excluded.small,
			stored_at = excluded.stored_at`),
		e.SHAKey, e.Name, e.Backend, string(libs), e.Key, e.Size, e.Binary, e.Small, e.StoredAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert %s: %w", e.SHAKey, err)
	}
	return nil
}

const selectColumns = `SELECT sha_key, name, backend, libraries, blob_key, size, binary_form, small, stored_at FROM factory_catalog`

func (s *SQLStore) Get(ctx context.Context, sha string) (corecatalog.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectColumns+` WHERE sha_key = ?`), sha)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return corecatalog.Entry{}, false, nil
	}
	if err != nil {
		return corecatalog.Entry{}, false, fmt.Errorf("get %s: %w", sha, err)
	}
	return e, true, nil
}

// List returns entries newest first, filtered by name and capped by limit.
func (s *SQLStore) List(ctx context.Context, q corecatalog.Query) ([]corecatalog.Entry, error) {
	query := selectColumns
	var args []any
	if q.Name != "" {
		query += ` WHERE name = ?`
		args = append(args, q.Name)
	}
	query += ` ORDER BY stored_at DESC, sha_key ASC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []corecatalog.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) Delete(ctx context.Context, sha string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM factory_catalog WHERE sha_key = ?`), sha)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", sha, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }

// DB exposes the handle for tests.
func (s *SQLStore) DB() *sql.DB { return s.db }

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (corecatalog.Entry, error) {
	var (
		e    corecatalog.Entry
		libs string
		ts   int64
	)
	if err := sc.Scan(&e.SHAKey, &e.Name, &e.Backend, &libs, &e.Key, &e.Size, &e.Binary, &e.Small, &ts); err != nil {
		return corecatalog.Entry{}, err
	}
	if err := json.Unmarshal([]byte(libs), &e.Libraries); err != nil {
		return corecatalog.Entry{}, fmt.Errorf("decode libraries of %s: %w", e.SHAKey, err)
	}
	e.StoredAt = time.Unix(0, ts).UTC()
	return e, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
