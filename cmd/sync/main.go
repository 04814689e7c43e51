// Command sync copies the OGD company dataset into the configured store.
//
// Exit codes:
//   - 0: the dataset was walked to a natural end (done)
//   - 1: the run stopped on a failure (aborted); re-run to converge
//   - 2: usage/config errors
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ogdsync/internal/config"
	"ogdsync/internal/metrics"
	"ogdsync/internal/metrics/datadog"
	"ogdsync/internal/ogd"
	"ogdsync/internal/store"
	"ogdsync/internal/syncer"

	// register all backends with the store factory.
	// config specifies which to use but we build in support for all of them.
	_ "ogdsync/internal/store/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil, nil))
}

// seams for tests; nil means the real constructors.
type storeFactory func(ctx context.Context, cfg store.Config) (store.Store, error)
type sourceFactory func(cfg config.OGD) syncer.Source

func run(
	ctx context.Context,
	args []string,
	stdout io.Writer,
	stderr io.Writer,
	newStore storeFactory,
	newSource sourceFactory,
) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		storeKind         string
		table             string
		batchSize         int
		maxRecords        int
		politeness        time.Duration
		fetchRetries      int
		metricsBackendFlg string
		validate          bool
	)
	fs.StringVar(&storeKind, "store", "", "destination store kind (d1, sqlite, postgres, mssql); overrides SYNC_STORE_KIND")
	fs.StringVar(&table, "table", "", "destination table; overrides SYNC_TABLE")
	fs.IntVar(&batchSize, "batch-size", 0, "records per page/batch; overrides SYNC_BATCH_SIZE")
	fs.IntVar(&maxRecords, "max-records", 0, "stop after this many records; overrides SYNC_MAX_RECORDS")
	fs.DurationVar(&politeness, "politeness", -1, "pause between pages; overrides SYNC_POLITENESS")
	fs.IntVar(&fetchRetries, "fetch-retries", -1, "extra fetch attempts per page; overrides SYNC_FETCH_RETRIES")
	fs.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (datadog, none)")
	fs.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := fs.Bool("v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.FromEnv()
	if storeKind != "" {
		cfg.Store.Kind = storeKind
	}
	if table != "" {
		cfg.Store.Table = table
	}
	if batchSize > 0 {
		cfg.Sync.BatchSize = batchSize
	}
	if maxRecords > 0 {
		cfg.Sync.MaxRecords = maxRecords
	}
	if politeness >= 0 {
		cfg.Sync.Politeness = politeness
	}
	if fetchRetries >= 0 {
		cfg.Sync.FetchRetries = fetchRetries
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasError(issues) {
		fmt.Fprintln(stderr, "configuration is invalid")
		return 2
	}
	if validate {
		fmt.Fprintln(stdout, "configuration is valid")
		return 0
	}

	logger := log.New(stderr, "sync: ", log.LstdFlags)

	// Decide metrics backend: flag → env → default.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		// Buffers and submits periodically, plus one final submit at
		// shutdown via Close().
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: "ogdsync",
			Tags:    extraTags,
		})
		if err != nil {
			logger.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			logger.Printf("metrics: backend=%v tags=%v", backendName, extraTags)
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					logger.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}
	case "", "none":
		// metrics disabled; nop backend remains
		if *verbose {
			logger.Printf("metrics: disabled (backend=%q)", backendName)
		}
	default:
		logger.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	if newStore == nil {
		newStore = store.New
	}
	if newSource == nil {
		newSource = func(cfg config.OGD) syncer.Source {
			return ogd.NewClient(cfg, nil)
		}
	}

	st, err := newStore(ctx, store.Config{
		Kind:       cfg.Store.Kind,
		Table:      cfg.Store.Table,
		DSN:        cfg.Store.DSN,
		AccountID:  cfg.Cloudflare.AccountID,
		DatabaseID: cfg.Cloudflare.DatabaseID,
		APIToken:   cfg.Cloudflare.APIToken,
		APIBase:    cfg.Store.APIBase,
		Timeout:    cfg.Store.Timeout,
	})
	if err != nil {
		fmt.Fprintf(stderr, "open store: %v\n", err)
		return 2
	}
	defer st.Close()

	if *verbose {
		logger.Printf("store=%s table=%s batch=%d cap=%d politeness=%s",
			cfg.Store.Kind, cfg.Store.Table, cfg.Sync.BatchSize, cfg.Sync.MaxRecords, cfg.Sync.Politeness)
	}

	start := time.Now()
	res := syncer.New(newSource(cfg.OGD), st, cfg.Sync, logger).Run(ctx)
	if res.Err != nil {
		logger.Printf("sync aborted: %v", res.Err)
	}

	syncer.WriteReport(stdout, st, res)
	if *verbose {
		logger.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}

	if res.Outcome == syncer.Done {
		return 0
	}
	return 1
}
