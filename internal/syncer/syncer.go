// Package syncer drives the page-by-page copy from the OGD dataset into the
// configured store.
//
// One run walks the dataset in fixed-size pages, normalizes each page, and
// upserts it, until the source is exhausted, the record cap is reached, or
// something breaks. The run always terminates: a safety bound on loop count
// backs up the data-driven exits.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"ogdsync/internal/company"
	"ogdsync/internal/config"
	"ogdsync/internal/metrics"
	"ogdsync/internal/store"
)

// Source is the paginated record reader. *ogd.Client satisfies it.
type Source interface {
	FetchPage(ctx context.Context, offset, limit int) ([]company.Record, error)
}

// Outcome is how a run ended.
type Outcome string

const (
	// Done means the dataset was walked to a natural end: a short or empty
	// page past the start, or the record cap.
	Done Outcome = "done"
	// Aborted means the run stopped on a failure and the destination may be
	// partially updated. A later run converges it; upserts are idempotent.
	Aborted Outcome = "aborted"
)

// extraLoops pads the loop bound past the page count implied by the record
// cap, so slightly short pages don't trip the safety stop.
const extraLoops = 100

// Progress counts what one run did.
type Progress struct {
	PagesFetched   int64
	RecordsFetched int64
	RecordsSkipped int64
	RecordsWritten int64
	Offset         int
}

// Result is the final outcome of a run. Err is set only when Outcome is
// Aborted.
type Result struct {
	Outcome  Outcome
	Progress Progress
	Err      error
}

// Syncer runs the copy loop.
type Syncer struct {
	source Source
	store  store.Store
	opts   config.Sync
	logger *log.Logger

	// test seam; nil means context-aware time.Sleep
	sleep func(ctx context.Context, d time.Duration) bool
}

// New builds a Syncer. logger must be non-nil.
func New(source Source, st store.Store, opts config.Sync, logger *log.Logger) *Syncer {
	return &Syncer{
		source: source,
		store:  st,
		opts:   opts,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Run executes one full sync and reports how it ended. It never returns a
// partial result with a nil error: Aborted always carries Err.
func (s *Syncer) Run(ctx context.Context) Result {
	var p Progress

	// Connectivity check before fetching anything; a dead destination
	// should fail the run in seconds, not after the first page.
	existing, err := s.store.CountCompanies(ctx)
	if err != nil {
		return Result{Outcome: Aborted, Progress: p, Err: fmt.Errorf("destination check: %w", err)}
	}
	s.logger.Printf("destination reachable, %d companies present", existing)

	maxLoops := s.opts.MaxRecords/s.opts.BatchSize + extraLoops
	for loop := 0; loop < maxLoops; loop++ {
		records, err := s.fetchWithRetry(ctx, p.Offset)
		if err != nil {
			return Result{Outcome: Aborted, Progress: p, Err: err}
		}

		if len(records) == 0 {
			metrics.RecordPage("empty")
			if p.Offset == 0 {
				// An empty first page means the source returned nothing at
				// all. That is a dataset or credential problem, not
				// exhaustion.
				return Result{Outcome: Aborted, Progress: p, Err: errors.New("source returned no records at offset 0")}
			}
			s.logger.Printf("empty page at offset %d, dataset exhausted", p.Offset)
			return Result{Outcome: Done, Progress: p}
		}
		metrics.RecordPage("ok")
		p.PagesFetched++
		p.RecordsFetched += int64(len(records))
		metrics.RecordRecords("fetched", int64(len(records)))

		rows, skipped := company.BuildBatch(records)
		p.RecordsSkipped += int64(skipped)
		metrics.RecordRecords("skipped", int64(skipped))
		if skipped > 0 {
			s.logger.Printf("offset %d: skipped %d records without a CIN", p.Offset, skipped)
		}

		written, err := s.store.UpsertCompanies(ctx, rows)
		if err != nil {
			if ctx.Err() != nil {
				return Result{Outcome: Aborted, Progress: p, Err: ctx.Err()}
			}
			// One bad batch does not halt the run. The page contributes
			// nothing to the total; a later run converges it.
			s.logger.Printf("offset %d: write failed, continuing: %v", p.Offset, err)
		} else {
			p.RecordsWritten += written
			metrics.RecordRecords("written", written)
			s.logger.Printf("batch %d (offset %d): fetched %d, wrote %d (total written %d)",
				p.PagesFetched, p.Offset, len(records), written, p.RecordsWritten)
		}

		p.Offset += len(records)

		if len(records) < s.opts.BatchSize {
			s.logger.Printf("short page (%d < %d), dataset exhausted", len(records), s.opts.BatchSize)
			return Result{Outcome: Done, Progress: p}
		}
		if p.RecordsWritten >= int64(s.opts.MaxRecords) {
			s.logger.Printf("record cap %d reached", s.opts.MaxRecords)
			return Result{Outcome: Done, Progress: p}
		}

		if !s.sleep(ctx, s.opts.Politeness) {
			return Result{Outcome: Aborted, Progress: p, Err: ctx.Err()}
		}
	}

	// Loop bound hit without a data-driven exit. Happens when pages keep
	// coming but nothing lands (every write failing); stop rather than
	// walk the source forever for zero progress.
	return Result{Outcome: Aborted, Progress: p, Err: fmt.Errorf("safety bound of %d pages exceeded", maxLoops)}
}

// fetchWithRetry fetches one page, retrying transient failures up to
// opts.FetchRetries extra attempts with a linear backoff.
func (s *Syncer) fetchWithRetry(ctx context.Context, offset int) ([]company.Record, error) {
	var lastErr error
	for attempt := 0; attempt <= s.opts.FetchRetries; attempt++ {
		if attempt > 0 {
			s.logger.Printf("offset %d: retrying fetch (attempt %d of %d): %v",
				offset, attempt+1, s.opts.FetchRetries+1, lastErr)
			if !s.sleep(ctx, time.Duration(attempt)*s.opts.Politeness) {
				return nil, ctx.Err()
			}
		}
		records, err := s.source.FetchPage(ctx, offset, s.opts.BatchSize)
		if err == nil {
			return records, nil
		}
		metrics.RecordPage("error")
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("fetch at offset %d: %w", offset, lastErr)
}

// WriteReport prints the run summary with thousands separators, and appends
// destination stats when the store can still produce them. Stats failures
// are reported but never change the outcome.
func WriteReport(w io.Writer, st store.Store, res Result) {
	pr := message.NewPrinter(language.English)

	pr.Fprintf(w, "sync %s\n", res.Outcome)
	pr.Fprintf(w, "  pages fetched:   %d\n", res.Progress.PagesFetched)
	pr.Fprintf(w, "  records fetched: %d\n", res.Progress.RecordsFetched)
	pr.Fprintf(w, "  records skipped: %d\n", res.Progress.RecordsSkipped)
	pr.Fprintf(w, "  records written: %d\n", res.Progress.RecordsWritten)

	stats, err := st.Stats(context.Background())
	if err != nil {
		pr.Fprintf(w, "  destination stats unavailable: %v\n", err)
		return
	}
	pr.Fprintf(w, "  companies total:  %d\n", stats.TotalCompanies)
	pr.Fprintf(w, "  companies active: %d\n", stats.ActiveCompanies)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
