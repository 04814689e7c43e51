// Package sqlite implements the company store on a local SQLite file via the
// pure-Go modernc.org/sqlite driver. It exists for offline runs and for
// verifying sync behavior without touching the production D1 database; the
// upsert uses the same INSERT OR REPLACE shape D1 accepts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ogdsync/internal/company"
	"ogdsync/internal/metrics"
	"ogdsync/internal/store"
)

func init() {
	store.Register("sqlite", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return Open(ctx, cfg)
	})
}

// Store writes companies to a SQLite database.
type Store struct {
	db    *sql.DB
	table string
}

// Open opens (or creates) the database at cfg.DSN and ensures the companies
// table exists.
func Open(ctx context.Context, cfg store.Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sqlite: missing DSN")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("sqlite: missing table")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite serializes writers; more connections just contend on the
	// file lock.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, table: cfg.Table}
	if err := s.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		company_name TEXT,
		cin TEXT PRIMARY KEY,
		status TEXT,
		registration_date TEXT,
		company_class TEXT,
		roc TEXT,
		email TEXT,
		state TEXT
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: ensure table: %w", err)
	}
	return nil
}

// UpsertCompanies writes one batch with a multi-row INSERT OR REPLACE using
// bound parameters. Row fields arrive SQL-escaped for literal inlining, so
// they are unescaped before binding.
func (s *Store) UpsertCompanies(ctx context.Context, rows []company.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query, args := buildUpsertSQL(s.table, rows)

	start := time.Now()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		metrics.RecordBatch("failed", time.Since(start))
		return 0, fmt.Errorf("sqlite: upsert: %w", err)
	}
	metrics.RecordBatch("ok", time.Since(start))

	n, err := res.RowsAffected()
	if err != nil {
		return int64(len(rows)), nil
	}
	return n, nil
}

func (s *Store) CountCompanies(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var stats store.Stats
	query := fmt.Sprintf(
		"SELECT COUNT(*), COUNT(CASE WHEN status = 'Active' THEN 1 END) FROM %s",
		s.table,
	)
	err := s.db.QueryRowContext(ctx, query).Scan(&stats.TotalCompanies, &stats.ActiveCompanies)
	if err != nil {
		return store.Stats{}, fmt.Errorf("sqlite: stats: %w", err)
	}
	return stats, nil
}

// buildUpsertSQL renders a multi-row INSERT OR REPLACE with ? placeholders
// and returns the unescaped argument list in column order.
func buildUpsertSQL(table string, rows []company.Row) (string, []any) {
	cols := company.Columns

	var b strings.Builder
	b.WriteString("INSERT OR REPLACE INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")

	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
		for _, v := range row.Values() {
			args = append(args, company.UnescapeLiteral(fmt.Sprintf("%v", v)))
		}
	}
	return b.String(), args
}
