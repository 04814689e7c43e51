// Package postgres implements the company store on Postgres via pgx. Used
// for mirror databases that want real relational semantics; the upsert is
// INSERT ... ON CONFLICT (cin) DO UPDATE so re-syncs converge instead of
// failing on the primary key.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ogdsync/internal/company"
	"ogdsync/internal/metrics"
	"ogdsync/internal/store"
)

func init() {
	store.Register("postgres", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return Open(ctx, cfg)
	})
}

// Store writes companies to a Postgres database through a pgx pool.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// Open connects to cfg.DSN and ensures the companies table exists.
func Open(ctx context.Context, cfg store.Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: missing DSN")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("postgres: missing table")
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	s := &Store{pool: pool, table: cfg.Table}
	if err := s.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		company_name TEXT,
		cin VARCHAR(50) PRIMARY KEY,
		status TEXT,
		registration_date TEXT,
		company_class TEXT,
		roc TEXT,
		email TEXT,
		state TEXT
	)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: ensure table: %w", err)
	}
	return nil
}

// UpsertCompanies writes one batch as a single multi-row statement. Fields
// arrive SQL-escaped for literal inlining, so they are unescaped before
// binding.
func (s *Store) UpsertCompanies(ctx context.Context, rows []company.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query, args := buildUpsertSQL(s.table, rows)

	start := time.Now()
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		metrics.RecordBatch("failed", time.Since(start))
		return 0, fmt.Errorf("postgres: upsert: %w", err)
	}
	metrics.RecordBatch("ok", time.Since(start))

	return tag.RowsAffected(), nil
}

func (s *Store) CountCompanies(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return n, nil
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var stats store.Stats
	query := fmt.Sprintf(
		"SELECT COUNT(*), COUNT(CASE WHEN status = 'Active' THEN 1 END) FROM %s",
		s.table,
	)
	err := s.pool.QueryRow(ctx, query).Scan(&stats.TotalCompanies, &stats.ActiveCompanies)
	if err != nil {
		return store.Stats{}, fmt.Errorf("postgres: stats: %w", err)
	}
	return stats, nil
}

// buildUpsertSQL renders one multi-row INSERT with $n placeholders and an
// ON CONFLICT update on cin, returning the unescaped argument list.
func buildUpsertSQL(table string, rows []company.Row) (string, []any) {
	cols := company.Columns

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, v := range row.Values() {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			p++
			args = append(args, company.UnescapeLiteral(fmt.Sprintf("%v", v)))
		}
		b.WriteByte(')')
	}

	b.WriteString(" ON CONFLICT (cin) DO UPDATE SET ")
	first := true
	for _, col := range cols {
		if col == "cin" {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(col)
		b.WriteString(" = EXCLUDED.")
		b.WriteString(col)
	}
	return b.String(), args
}
