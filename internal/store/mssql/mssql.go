// Package mssql implements the company store on SQL Server via
// github.com/microsoft/go-mssqldb.
//
// SQL Server has no INSERT OR REPLACE; MERGE exists but has enough locking
// and concurrency caveats that we avoid it. The upsert is a delete of the
// incoming CINs followed by a plain insert, both inside one transaction, with
// batches chunked to stay under the driver's 2100-parameter limit.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"ogdsync/internal/company"
	"ogdsync/internal/metrics"
	"ogdsync/internal/store"
)

func init() {
	store.Register("mssql", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return Open(ctx, cfg)
	})
}

// chunkSize keeps each insert statement at chunkSize*len(Columns) parameters,
// well under SQL Server's 2100-parameter cap.
const chunkSize = 250

// Store writes companies to a SQL Server database.
type Store struct {
	db    *sql.DB
	table string
}

// Open connects to cfg.DSN and ensures the companies table exists.
func Open(ctx context.Context, cfg store.Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mssql: missing DSN")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("mssql: missing table")
	}

	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}

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
	ddl := fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
	CREATE TABLE %s (
		company_name NVARCHAR(255),
		cin NVARCHAR(50) PRIMARY KEY,
		status NVARCHAR(100),
		registration_date NVARCHAR(50),
		company_class NVARCHAR(100),
		roc NVARCHAR(100),
		email NVARCHAR(255),
		state NVARCHAR(100)
	)`, s.table, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("mssql: ensure table: %w", err)
	}
	return nil
}

// UpsertCompanies deletes the incoming CINs then inserts the batch, all in
// one transaction so a failed insert never leaves rows missing. Fields arrive
// SQL-escaped for literal inlining, so they are unescaped before binding.
func (s *Store) UpsertCompanies(ctx context.Context, rows []company.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	start := time.Now()
	written, err := s.upsertTx(ctx, rows)
	if err != nil {
		metrics.RecordBatch("failed", time.Since(start))
		return 0, err
	}
	metrics.RecordBatch("ok", time.Since(start))
	return written, nil
}

func (s *Store) upsertTx(ctx context.Context, rows []company.Row) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: begin: %w", err)
	}
	defer tx.Rollback()

	var written int64
	for _, chunk := range chunkRows(rows, chunkSize) {
		delSQL, delArgs := buildDeleteSQL(s.table, chunk)
		if _, err := tx.ExecContext(ctx, delSQL, delArgs...); err != nil {
			return 0, fmt.Errorf("mssql: delete: %w", err)
		}

		insSQL, insArgs := buildInsertSQL(s.table, chunk)
		res, err := tx.ExecContext(ctx, insSQL, insArgs...)
		if err != nil {
			return 0, fmt.Errorf("mssql: insert: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = int64(len(chunk))
		}
		written += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit: %w", err)
	}
	return written, nil
}

func (s *Store) CountCompanies(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("mssql: count: %w", err)
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
		return store.Stats{}, fmt.Errorf("mssql: stats: %w", err)
	}
	return stats, nil
}

func chunkRows(rows []company.Row, size int) [][]company.Row {
	var chunks [][]company.Row
	for len(rows) > size {
		chunks = append(chunks, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		chunks = append(chunks, rows)
	}
	return chunks
}

// buildDeleteSQL renders DELETE ... WHERE cin IN (@p1, ...) for one chunk.
func buildDeleteSQL(table string, rows []company.Row) (string, []any) {
	placeholders := make([]string, len(rows))
	args := make([]any, len(rows))
	for i, row := range rows {
		placeholders[i] = fmt.Sprintf("@p%d", i+1)
		args[i] = company.UnescapeLiteral(row.CIN)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE cin IN (%s)", table, strings.Join(placeholders, ", "))
	return query, args
}

// buildInsertSQL renders one multi-row INSERT with @pN placeholders and
// returns the unescaped argument list.
func buildInsertSQL(table string, rows []company.Row) (string, []any) {
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
			fmt.Fprintf(&b, "@p%d", p)
			p++
			args = append(args, company.UnescapeLiteral(fmt.Sprintf("%v", v)))
		}
		b.WriteByte(')')
	}
	return b.String(), args
}
