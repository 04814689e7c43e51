// Package d1 implements the company store against Cloudflare D1's HTTP query
// API. D1 has no wire protocol of its own; every statement is a POST to
// /accounts/{account}/d1/database/{database}/query with a Bearer token.
package d1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ogdsync/internal/company"
	"ogdsync/internal/metrics"
	"ogdsync/internal/store"
)

func init() {
	store.Register("d1", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return New(cfg)
	})
}

const defaultTimeout = 60 * time.Second

// Store executes statements against one D1 database.
type Store struct {
	endpoint string
	apiToken string
	table    string
	httpc    *http.Client
}

// New validates credentials and builds a Store. It fails fast on missing
// account, database, or token so a misconfigured run dies before the first
// page is fetched rather than on the first write.
func New(cfg store.Config) (*Store, error) {
	switch {
	case cfg.AccountID == "":
		return nil, fmt.Errorf("d1: missing account id")
	case cfg.DatabaseID == "":
		return nil, fmt.Errorf("d1: missing database id")
	case cfg.APIToken == "":
		return nil, fmt.Errorf("d1: missing api token")
	case cfg.Table == "":
		return nil, fmt.Errorf("d1: missing table")
	}

	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = "https://api.cloudflare.com/client/v4"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Store{
		endpoint: fmt.Sprintf("%s/accounts/%s/d1/database/%s/query", base, cfg.AccountID, cfg.DatabaseID),
		apiToken: cfg.APIToken,
		table:    cfg.Table,
		httpc:    &http.Client{Timeout: timeout},
	}, nil
}

// Close is a no-op; the Store holds no connections.
func (s *Store) Close() {}

// queryRequest is the D1 query payload. Params is omitted when empty because
// the API rejects an explicit empty array on some statement kinds.
type queryRequest struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params,omitempty"`
}

// QueryResponse is the Cloudflare envelope around one or more statement
// results.
type QueryResponse struct {
	Success bool              `json:"success"`
	Errors  []APIError        `json:"errors"`
	Result  []StatementResult `json:"result"`
}

// APIError is one error entry in the envelope.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// StatementResult is the outcome of a single statement.
type StatementResult struct {
	Success bool             `json:"success"`
	Meta    Meta             `json:"meta"`
	Results []map[string]any `json:"results"`
}

// Meta carries D1's execution counters. RowsWritten is a pointer because the
// field is absent for read-only statements.
type Meta struct {
	RowsWritten *int64 `json:"rows_written"`
}

// Query executes one SQL statement and returns the decoded envelope. Any
// envelope- or statement-level failure is surfaced as an error.
func (s *Store) Query(ctx context.Context, sql string, params []any) (*QueryResponse, error) {
	payload, err := json.Marshal(queryRequest{SQL: sql, Params: params})
	if err != nil {
		return nil, fmt.Errorf("d1: marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("d1: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpc.Do(req)
	if err != nil {
		metrics.RecordHTTP(0, err, time.Since(start))
		return nil, fmt.Errorf("d1: query: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordHTTP(resp.StatusCode, err, time.Since(start))
		return nil, fmt.Errorf("d1: read response: %w", err)
	}
	metrics.RecordHTTP(resp.StatusCode, nil, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("d1: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var qr QueryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("d1: decode response: %w", err)
	}
	if !qr.Success {
		return nil, fmt.Errorf("d1: query failed: %s", joinErrors(qr.Errors))
	}
	for i, st := range qr.Result {
		if !st.Success {
			return nil, fmt.Errorf("d1: statement %d failed", i)
		}
	}
	return &qr, nil
}

// UpsertCompanies writes one batch with a single multi-row INSERT OR REPLACE.
// Field values are already SQL-escaped by the transform, so they are inlined
// as literals; the statement carries no bound parameters.
func (s *Store) UpsertCompanies(ctx context.Context, rows []company.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	start := time.Now()
	qr, err := s.Query(ctx, buildUpsertSQL(s.table, rows), nil)
	if err != nil {
		metrics.RecordBatch("failed", time.Since(start))
		return 0, err
	}
	metrics.RecordBatch("ok", time.Since(start))

	// D1 omits rows_written on some responses; assume the whole batch
	// landed since the statement reported success.
	if len(qr.Result) > 0 && qr.Result[0].Meta.RowsWritten != nil {
		return *qr.Result[0].Meta.RowsWritten, nil
	}
	return int64(len(rows)), nil
}

// CountCompanies returns the destination row count. Doubles as the
// connectivity check before the first page is fetched.
func (s *Store) CountCompanies(ctx context.Context) (int64, error) {
	qr, err := s.Query(ctx, fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", s.table), nil)
	if err != nil {
		return 0, err
	}
	n, ok := firstValue(qr, "n")
	if !ok {
		return 0, fmt.Errorf("d1: count: empty result")
	}
	return asInt64(n)
}

// Stats returns total and active company counts for the final report.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	sql := fmt.Sprintf(
		"SELECT COUNT(*) AS total, COUNT(CASE WHEN status = 'Active' THEN 1 END) AS active FROM %s",
		s.table,
	)
	qr, err := s.Query(ctx, sql, nil)
	if err != nil {
		return store.Stats{}, err
	}

	total, ok := firstValue(qr, "total")
	if !ok {
		return store.Stats{}, fmt.Errorf("d1: stats: empty result")
	}
	active, _ := firstValue(qr, "active")

	var stats store.Stats
	if stats.TotalCompanies, err = asInt64(total); err != nil {
		return store.Stats{}, fmt.Errorf("d1: stats total: %w", err)
	}
	if stats.ActiveCompanies, err = asInt64(active); err != nil {
		return store.Stats{}, fmt.Errorf("d1: stats active: %w", err)
	}
	return stats, nil
}

// buildUpsertSQL renders one multi-row INSERT OR REPLACE with all values
// inlined as single-quoted literals. Row fields are escaped at transform
// time, so rendering here is pure concatenation.
func buildUpsertSQL(table string, rows []company.Row) string {
	var b strings.Builder
	b.WriteString("INSERT OR REPLACE INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(company.Columns, ", "))
	b.WriteString(") VALUES ")

	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, v := range row.Values() {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('\'')
			b.WriteString(fmt.Sprintf("%v", v))
			b.WriteByte('\'')
		}
		b.WriteByte(')')
	}
	return b.String()
}

// firstValue pulls a named column from the first row of the first statement
// result.
func firstValue(qr *QueryResponse, column string) (any, bool) {
	if len(qr.Result) == 0 || len(qr.Result[0].Results) == 0 {
		return nil, false
	}
	v, ok := qr.Result[0].Results[0][column]
	return v, ok
}

// asInt64 converts a JSON-decoded numeric value. D1 returns numbers as
// float64 through encoding/json.
func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}

func joinErrors(errs []APIError) string {
	if len(errs) == 0 {
		return "no error detail"
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%d: %s", e.Code, e.Message))
	}
	return strings.Join(parts, "; ")
}
