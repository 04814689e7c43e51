// Package config defines the runtime configuration for the company sync.
//
// Everything the sync needs is an explicit value here: credentials come from
// the environment (the deployment supplies them as secrets), while source and
// pacing parameters have defaults matching the production OGD dataset and can
// be overridden per run. Nothing is hardcoded in the sync routine itself —
// in particular the source API key is never embedded in source code.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Production defaults for the OGD company dataset sync.
const (
	DefaultOGDBaseURL   = "https://api.data.gov.in/resource/"
	DefaultResourceID   = "ec58dab7-d891-4abb-936e-d5d274a6ce9b"
	DefaultD1APIBase    = "https://api.cloudflare.com/client/v4"
	DefaultTable        = "companies"
	DefaultBatchSize    = 500
	DefaultMaxRecords   = 2_000_000
	DefaultPoliteness   = 1 * time.Second
	DefaultFetchRetries = 2
	DefaultOGDTimeout   = 30 * time.Second
	DefaultD1Timeout    = 60 * time.Second
)

// Config is the full sync configuration.
type Config struct {
	Cloudflare Cloudflare
	OGD        OGD
	Store      Store
	Sync       Sync
}

// Cloudflare identifies the destination D1 database and its credential.
type Cloudflare struct {
	AccountID  string
	APIToken   string
	DatabaseID string
}

// OGD identifies the paginated source dataset.
type OGD struct {
	BaseURL    string
	APIKey     string
	ResourceID string
	Timeout    time.Duration
}

// Store selects the destination backend.
//
// Kind "d1" (the default) writes through the Cloudflare HTTP query API using
// the Cloudflare block above. The sql-driver mirror backends ("sqlite",
// "postgres", "mssql") use DSN instead and exist for offline runs and local
// verification against the same Store contract.
type Store struct {
	Kind    string
	DSN     string
	Table   string
	APIBase string
	Timeout time.Duration
}

// Sync controls pagination, pacing, and termination.
type Sync struct {
	BatchSize    int
	MaxRecords   int
	Politeness   time.Duration
	FetchRetries int
}

// FromEnv builds a Config from environment variables, applying defaults for
// everything except credentials.
//
// Environment variables:
//
//	CLOUDFLARE_ACCOUNT_ID, CLOUDFLARE_API_TOKEN, D1_DATABASE_ID  (required for d1)
//	OGD_API_KEY                                                  (required)
//	OGD_BASE_URL, OGD_RESOURCE_ID, SYNC_STORE_KIND, SYNC_STORE_DSN,
//	SYNC_TABLE, SYNC_BATCH_SIZE, SYNC_MAX_RECORDS, SYNC_POLITENESS,
//	SYNC_FETCH_RETRIES, D1_API_BASE                              (optional)
func FromEnv() Config {
	cfg := Config{
		Cloudflare: Cloudflare{
			AccountID:  envStr("CLOUDFLARE_ACCOUNT_ID", ""),
			APIToken:   envStr("CLOUDFLARE_API_TOKEN", ""),
			DatabaseID: envStr("D1_DATABASE_ID", ""),
		},
		OGD: OGD{
			BaseURL:    envStr("OGD_BASE_URL", DefaultOGDBaseURL),
			APIKey:     envStr("OGD_API_KEY", ""),
			ResourceID: envStr("OGD_RESOURCE_ID", DefaultResourceID),
			Timeout:    envDuration("OGD_TIMEOUT", DefaultOGDTimeout),
		},
		Store: Store{
			Kind:    envStr("SYNC_STORE_KIND", "d1"),
			DSN:     envStr("SYNC_STORE_DSN", ""),
			Table:   envStr("SYNC_TABLE", DefaultTable),
			APIBase: envStr("D1_API_BASE", DefaultD1APIBase),
			Timeout: envDuration("D1_TIMEOUT", DefaultD1Timeout),
		},
		Sync: Sync{
			BatchSize:    envInt("SYNC_BATCH_SIZE", DefaultBatchSize),
			MaxRecords:   envInt("SYNC_MAX_RECORDS", DefaultMaxRecords),
			Politeness:   envDuration("SYNC_POLITENESS", DefaultPoliteness),
			FetchRetries: envInt("SYNC_FETCH_RETRIES", DefaultFetchRetries),
		},
	}
	return cfg
}

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding, addressed by a dotted config path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// Validate checks a Config and returns all findings. Errors make the config
// unusable; warnings flag values that work but are probably mistakes.
func Validate(cfg Config) []Issue {
	var issues []Issue

	addErr := func(path, msg string) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: msg})
	}
	addWarn := func(path, msg string) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: msg})
	}

	if cfg.OGD.APIKey == "" {
		addErr("ogd.api_key", "missing OGD_API_KEY")
	}
	if cfg.OGD.ResourceID == "" {
		addErr("ogd.resource_id", "missing resource id")
	}
	if cfg.OGD.BaseURL == "" {
		addErr("ogd.base_url", "missing base URL")
	}

	switch cfg.Store.Kind {
	case "d1":
		if cfg.Cloudflare.AccountID == "" {
			addErr("cloudflare.account_id", "missing CLOUDFLARE_ACCOUNT_ID")
		}
		if cfg.Cloudflare.APIToken == "" {
			addErr("cloudflare.api_token", "missing CLOUDFLARE_API_TOKEN")
		}
		if cfg.Cloudflare.DatabaseID == "" {
			addErr("cloudflare.database_id", "missing D1_DATABASE_ID")
		}
	case "sqlite", "postgres", "mssql":
		if cfg.Store.DSN == "" {
			addErr("store.dsn", fmt.Sprintf("store kind %q requires SYNC_STORE_DSN", cfg.Store.Kind))
		}
	case "":
		addErr("store.kind", "missing store kind")
	default:
		addErr("store.kind", fmt.Sprintf("unknown store kind %q", cfg.Store.Kind))
	}

	if cfg.Store.Table == "" {
		addErr("store.table", "missing destination table")
	}

	if cfg.Sync.BatchSize <= 0 {
		addErr("sync.batch_size", "batch size must be > 0")
	} else if cfg.Sync.BatchSize > 1000 {
		// Batched values are inlined as literals; oversized batches risk
		// exceeding the destination's maximum statement length.
		addWarn("sync.batch_size", "batch sizes above 1000 risk overlong statements against D1")
	}
	if cfg.Sync.MaxRecords <= 0 {
		addErr("sync.max_records", "record cap must be > 0")
	}
	if cfg.Sync.Politeness < 0 {
		addErr("sync.politeness", "politeness interval must be >= 0")
	} else if cfg.Sync.Politeness == 0 {
		addWarn("sync.politeness", "no pause between pages; the source API may throttle")
	}
	if cfg.Sync.FetchRetries < 0 {
		addErr("sync.fetch_retries", "fetch retries must be >= 0")
	}

	return issues
}

// HasError reports whether any issue is severity error.
func HasError(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
