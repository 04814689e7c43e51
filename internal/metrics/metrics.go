// Package metrics is a tiny facade between the sync code and whatever metrics
// backend is configured. Core code depends only on Backend; the default is a
// nop so unconfigured runs pay nothing.
//
// Metric names are a stable contract with the backends:
//
//	sync_pages_total{status}            counter: source pages (ok|empty|error)
//	sync_records_total{kind}            counter: records (fetched|skipped|written)
//	sync_batches_total{status}          counter: destination batches (ok|failed)
//	sync_http_requests_total{status}    counter: outbound HTTP requests
//	sync_http_errors_total{status}      counter: outbound HTTP failures
//	sync_http_request_duration_seconds{status}  histogram
//	sync_batch_duration_seconds{status}         histogram
package metrics

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Labels attach low-cardinality dimensions to a metric sample.
type Labels map[string]string

// Backend is the minimal sink interface a metrics implementation provides.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

// holder keeps the stored concrete type stable across backend swaps;
// atomic.Value requires it.
type holder struct{ b Backend }

var current atomic.Value // holder

func init() {
	current.Store(holder{nopBackend{}})
}

// SetBackend installs the process-wide backend. Call once during startup; the
// nop backend remains otherwise.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	current.Store(holder{b})
}

func backend() Backend {
	return current.Load().(holder).b
}

// Flush forces buffered metrics out of the active backend.
func Flush() error {
	return backend().Flush()
}

// RecordPage counts one source page fetch outcome (status: ok|empty|error).
func RecordPage(status string) {
	backend().IncCounter("sync_pages_total", 1, Labels{"status": status})
}

// RecordRecords counts records by kind (fetched|skipped|written).
func RecordRecords(kind string, n int64) {
	if n <= 0 {
		return
	}
	backend().IncCounter("sync_records_total", float64(n), Labels{"kind": kind})
}

// RecordBatch counts one destination batch write and observes its duration.
func RecordBatch(status string, d time.Duration) {
	b := backend()
	b.IncCounter("sync_batches_total", 1, Labels{"status": status})
	b.ObserveHistogram("sync_batch_duration_seconds", d.Seconds(), Labels{"status": status})
}

// RecordHTTP records one outbound HTTP attempt: request count, error count
// when err is non-nil or the status is non-2xx, and the request duration.
// statusCode 0 means the request never completed.
func RecordHTTP(statusCode int, err error, d time.Duration) {
	status := "0"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	labels := Labels{"status": status}

	b := backend()
	b.IncCounter("sync_http_requests_total", 1, labels)
	if err != nil || statusCode < 200 || statusCode >= 300 {
		b.IncCounter("sync_http_errors_total", 1, labels)
	}
	b.ObserveHistogram("sync_http_request_duration_seconds", d.Seconds(), labels)
}
