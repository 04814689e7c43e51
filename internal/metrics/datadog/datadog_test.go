package datadog

import (
	"context"
	"net/http"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"ogdsync/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

func newTestBackend(t *testing.T, sub *fakeSubmitter) *Backend {
	t.Helper()

	b, err := NewBackend(context.Background(), Options{
		JobName:    "test",
		FlushEvery: time.Hour, // effectively disables the periodic flush
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		submitter:  sub,
	})
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// TestResolveEnvTag verifies environment-tag precedence and defaults.
//
// Edge cases:
//   - ENV wins over DD_ENV.
//   - Whitespace-only env vars are ignored.
//   - If neither is set, "env:unknown" is returned.
func TestResolveEnvTag(t *testing.T) {
	oldENV := os.Getenv("ENV")
	oldDDENV := os.Getenv("DD_ENV")
	t.Cleanup(func() {
		_ = os.Setenv("ENV", oldENV)
		_ = os.Setenv("DD_ENV", oldDDENV)
	})

	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", env: "", dd: "", want: "env:unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_ = os.Setenv("ENV", tc.env)
			_ = os.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

// TestFlush_EmptySubmitsNothing verifies Flush is a no-op with no buffered data.
func TestFlush_EmptySubmitsNothing(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	if sub.count() != 0 {
		t.Fatalf("submissions=%d, want 0", sub.count())
	}
}

// TestFlush_SubmitsAndResets verifies buffered counters become series exactly
// once; a second Flush has nothing left to submit.
func TestFlush_SubmitsAndResets(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter("sync_pages_total", 3, metrics.Labels{"status": "ok"})
	b.IncCounter("sync_records_total", 500, metrics.Labels{"kind": "written"})
	b.IncCounter("sync_batches_total", 1, metrics.Labels{"status": "failed"})
	b.ObserveHistogram("sync_batch_duration_seconds", 0.25, metrics.Labels{"status": "ok"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("submissions=%d, want 1", sub.count())
	}

	payload, ok := sub.last()
	if !ok {
		t.Fatalf("no payload captured")
	}

	byMetric := map[string]datadogV2.MetricSeries{}
	for _, s := range payload.Series {
		byMetric[s.Metric] = s
	}

	pages, ok := byMetric["ogdsync.pages.total"]
	if !ok {
		t.Fatalf("missing ogdsync.pages.total; series=%v", keysOf(byMetric))
	}
	if got := *pages.Points[0].Value; got != 3 {
		t.Fatalf("pages.total=%v, want 3", got)
	}
	if !containsTag(pages.Tags, "status:ok") {
		t.Fatalf("pages.total tags=%v, want status:ok", pages.Tags)
	}

	records, ok := byMetric["ogdsync.records.total"]
	if !ok {
		t.Fatalf("missing ogdsync.records.total")
	}
	if got := *records.Points[0].Value; got != 500 {
		t.Fatalf("records.total=%v, want 500", got)
	}
	if !containsTag(records.Tags, "kind:written") {
		t.Fatalf("records.total tags=%v, want kind:written", records.Tags)
	}

	if _, ok := byMetric["ogdsync.batch.duration_seconds.p50"]; !ok {
		t.Fatalf("missing batch duration percentile series; have=%v", keysOf(byMetric))
	}

	// Buffers were reset: nothing left to submit.
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush() err=%v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("submissions after second Flush=%d, want 1", sub.count())
	}
}

// TestIncCounter_IgnoresUnknownAndNonPositive protects the buffering contract.
func TestIncCounter_IgnoresUnknownAndNonPositive(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter("totally_unknown_metric", 5, nil)
	b.IncCounter("sync_pages_total", 0, metrics.Labels{"status": "ok"})
	b.IncCounter("sync_pages_total", -2, metrics.Labels{"status": "ok"})
	b.IncCounter("sync_records_total", 4, metrics.Labels{}) // missing kind

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	if sub.count() != 0 {
		t.Fatalf("submissions=%d, want 0", sub.count())
	}
}

// TestWithTags verifies tag concatenation and immutability.
func TestWithTags(t *testing.T) {
	base := []string{"env:test", "job:sync"}
	extras := []string{"status:ok"}
	got := withTags(base, extras...)
	want := []string{"env:test", "job:sync", "status:ok"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("withTags()=%v, want %v", got, want)
	}
	got[0] = "env:mutated"
	if base[0] == "env:mutated" {
		t.Fatalf("withTags output aliases base slice")
	}
}

// TestPercentileNearestRank verifies percentile behavior.
func TestPercentileNearestRank(t *testing.T) {
	tests := []struct {
		name string
		s    []float64
		p    float64
		want float64
	}{
		{name: "empty", s: nil, p: 0.50, want: 0},
		{name: "single", s: []float64{7}, p: 0.95, want: 7},
		{name: "p_le_0", s: []float64{1, 2, 3}, p: -1, want: 1},
		{name: "p_ge_1", s: []float64{1, 2, 3}, p: 2, want: 3},
		{name: "median", s: []float64{1, 2, 3, 4, 5}, p: 0.50, want: 3},
		{name: "p90_small_n", s: []float64{1, 2, 3, 4, 5}, p: 0.90, want: 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := percentileNearestRank(tc.s, tc.p); got != tc.want {
				t.Fatalf("percentileNearestRank(%v,%v)=%v, want %v", tc.s, tc.p, got, tc.want)
			}
		})
	}
}

// TestParseTagsCSV verifies CSV parsing, trimming, and empties.
func TestParseTagsCSV(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "single", in: "env:prod", want: []string{"env:prod"}},
		{name: "trim_and_skip_blank", in: " env:prod ,, service:sync ", want: []string{"env:prod", "service:sync"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseTagsCSV(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseTagsCSV(%q)=%v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func containsTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}

func keysOf(m map[string]datadogV2.MetricSeries) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
