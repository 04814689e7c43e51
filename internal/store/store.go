// Package store defines the destination contract for the company sync and a
// registry of pluggable backends.
//
// The production destination is Cloudflare D1 reached over its HTTP query
// API; the sql-driver backends (sqlite, postgres, mssql) implement the same
// contract against local or mirror databases so the sync routine never knows
// which one it is writing to.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ogdsync/internal/company"
)

// Config is the minimal configuration needed to create a Store.
//
// Kind selects the registered backend. D1 uses the Cloudflare fields; the
// sql-driver backends use DSN. Table names the destination table for all
// backends.
type Config struct {
	Kind  string
	Table string

	// sql-driver backends
	DSN string

	// d1
	AccountID  string
	DatabaseID string
	APIToken   string
	APIBase    string

	Timeout time.Duration
}

// Stats summarizes the destination table after a sync.
type Stats struct {
	TotalCompanies  int64
	ActiveCompanies int64
}

// Store is the backend-agnostic destination interface.
//
// IMPORTANT: This interface is intentionally minimal and focused on what the
// sync loop needs. Each backend implements upsert semantics in its own
// idiomatic way (SQLite INSERT OR REPLACE, Postgres ON CONFLICT, etc).
type Store interface {
	// Close releases any backend resources. Treat as "call once".
	Close()

	// CountCompanies returns the current row count of the destination table.
	// Used as a connectivity check before syncing and for the final report.
	CountCompanies(ctx context.Context) (int64, error)

	// UpsertCompanies writes one batch, replacing rows that share a CIN, and
	// returns the number of rows the backend reports written.
	UpsertCompanies(ctx context.Context, rows []company.Row) (int64, error)

	// Stats returns summary counts for the post-sync report.
	Stats(ctx context.Context) (Stats, error)
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "d1", "sqlite").
//
// Call Register from an init() function in a backend package. Registering the
// same kind more than once panics, to fail fast on ambiguous selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("store: Register called with empty kind")
	}
	if f == nil {
		panic("store: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("store: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Store using the registered backend factory.
//
// Returns an error if cfg.Kind is empty or not registered, or whatever the
// factory returns. Safe for concurrent use with Register.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("store: missing store kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported store kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
