package datadog

import (
	"context"
	"errors"
	"net/http"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"medallion/internal/metrics"
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

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

func newTestBackend(t *testing.T, fs *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:   "dataco",
		submitter: fs,
		now:       func() time.Time { return time.Unix(1700000000, 0) },
		// A day-long tick keeps the loop quiet; tests drive Flush directly.
		newTicker: func(d time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
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

// TestWrapInitErr verifies error wrapping behavior.
func TestWrapInitErr(t *testing.T) {
	if got := wrapInitErr(nil); got != nil {
		t.Fatalf("wrapInitErr(nil)=%v, want nil", got)
	}

	in := errors.New("boom")
	got := wrapInitErr(in)
	if got == nil {
		t.Fatalf("wrapInitErr(err)=nil, want non-nil")
	}
	if !strings.Contains(got.Error(), "datadog metrics init:") {
		t.Fatalf("wrapInitErr prefix missing: %v", got)
	}
	if !errors.Is(got, in) {
		t.Fatalf("wrapInitErr did not wrap original error: got=%v", got)
	}
}

// TestStageStatusKeyRoundTrip verifies key encoding/decoding.
func TestStageStatusKeyRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		stage  string
		status string
	}{
		{name: "normal", stage: "cast", status: "success"},
		{name: "empty_stage", stage: "", status: "success"},
		{name: "empty_status", stage: "standardize", status: ""},
		{name: "both_empty", stage: "", status: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			k := stageStatusKey(tc.stage, tc.status)
			stage, status := splitStageStatusKey(k)
			if stage != tc.stage || status != tc.status {
				t.Fatalf("roundtrip got=(%q,%q), want=(%q,%q)", stage, status, tc.stage, tc.status)
			}
		})
	}

	t.Run("split_without_separator_defaults_unknown_status", func(t *testing.T) {
		stage, status := splitStageStatusKey("no-sep")
		if stage != "no-sep" || status != "unknown" {
			t.Fatalf("splitStageStatusKey()=(%q,%q), want=(%q,%q)", stage, status, "no-sep", "unknown")
		}
	})
}

// TestWithTags verifies tag concatenation and immutability.
func TestWithTags(t *testing.T) {
	base := []string{"env:test", "job:dataco"}
	extras := []string{"stage:cast", "status:success"}
	got := withTags(base, extras...)
	want := []string{"env:test", "job:dataco", "stage:cast", "status:success"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("withTags()=%v, want %v", got, want)
	}
	if !reflect.DeepEqual(base, []string{"env:test", "job:dataco"}) {
		t.Fatalf("withTags mutated base: %v", base)
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

// TestAddPercentiles verifies addPercentiles produces the expected series and
// does not mutate its input.
func TestAddPercentiles(t *testing.T) {
	orig := []float64{5, 1, 3, 2, 4}
	in := append([]float64(nil), orig...)

	var series []datadogV2.MetricSeries
	addPercentiles(&series, "pipeline.stage.duration_seconds", []string{"env:test"}, in, 999)

	// p50, p90, p95, p99, max, samples.
	if len(series) != 6 {
		t.Fatalf("series.len=%d, want 6", len(series))
	}
	if !reflect.DeepEqual(in, orig) {
		t.Fatalf("samples mutated: got %v, want %v", in, orig)
	}

	var foundSamples bool
	for _, s := range series {
		if s.Metric == "pipeline.stage.duration_seconds.samples" {
			foundSamples = true
			if s.Points[0].Value == nil || *s.Points[0].Value != 5 {
				t.Fatalf("samples gauge value=%v, want 5", s.Points[0].Value)
			}
		}
	}
	if !foundSamples {
		t.Fatal("did not find samples gauge series")
	}
}

// TestFlushSubmitsAndResets verifies Flush builds the expected series and
// clears the buffers so a second Flush submits nothing.
func TestFlushSubmitsAndResets(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)
	defer func() { _ = b.Close() }()

	b.IncCounter("pipeline_stage_total", 1, metrics.Labels{"stage": "cast", "status": "success"})
	b.IncCounter("pipeline_rows_total", 180000, metrics.Labels{"kind": "audited"})
	b.IncCounter("pipeline_batches_total", 1, nil)
	b.ObserveHistogram("pipeline_stage_duration_seconds", 1.5, metrics.Labels{"stage": "cast", "status": "success"})
	b.ObserveHistogram("pipeline_table_rows", 180000, metrics.Labels{"table": "bronze_dataco_raw"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submissions=%d, want 1", fs.count())
	}

	payload, ok := fs.last()
	if !ok {
		t.Fatal("no payload captured")
	}

	names := map[string]bool{}
	for _, s := range payload.Series {
		names[s.Metric] = true
	}
	for _, want := range []string{
		"pipeline.stage.total",
		"pipeline.rows.total",
		"pipeline.batches.total",
		"pipeline.stage.duration_seconds.p50",
		"pipeline.table.rows",
	} {
		if !names[want] {
			t.Fatalf("payload missing series %q; got %v", want, names)
		}
	}

	for _, s := range payload.Series {
		if s.Metric == "pipeline.stage.total" {
			if !contains(s.Tags, "stage:cast") || !contains(s.Tags, "status:success") || !contains(s.Tags, "job:dataco") {
				t.Fatalf("stage series tags = %v", s.Tags)
			}
		}
	}

	// Buffers were reset: nothing to submit on the next Flush.
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("empty flush submitted a payload; submissions=%d", fs.count())
	}
}

// TestFlushEmptySubmitsNothing verifies an empty backend never touches the API.
func TestFlushEmptySubmitsNothing(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)
	defer func() { _ = b.Close() }()

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 0 {
		t.Fatalf("submissions=%d, want 0", fs.count())
	}
}

// TestFlushReturnsSubmitterError verifies submission errors surface to callers.
func TestFlushReturnsSubmitterError(t *testing.T) {
	fs := &fakeSubmitter{err: errors.New("intake down")}
	b := newTestBackend(t, fs)
	defer func() { _ = b.Close() }()

	b.IncCounter("pipeline_batches_total", 1, nil)
	if err := b.Flush(); err == nil {
		t.Fatal("Flush swallowed submitter error")
	}
}

// TestIncCounterIgnoresUnknownAndNonPositive exercises the counter filters.
func TestIncCounterIgnoresUnknownAndNonPositive(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)
	defer func() { _ = b.Close() }()

	b.IncCounter("some_other_metric", 5, nil)
	b.IncCounter("pipeline_stage_total", 0, metrics.Labels{"stage": "cast"})
	b.IncCounter("pipeline_stage_total", -2, metrics.Labels{"stage": "cast"})
	b.IncCounter("pipeline_rows_total", 3, nil) // missing kind label

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 0 {
		t.Fatalf("filtered metrics still produced a payload")
	}
}

// TestNewBackendDefaults verifies option defaulting without real HTTP.
func TestNewBackendDefaults(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		Tags:      []string{"service:medallion"},
		submitter: fs,
		newTicker: func(d time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	defer func() { _ = b.Close() }()

	if !contains(b.baseTags, "job:medallion") {
		t.Fatalf("baseTags missing job:medallion: %v", b.baseTags)
	}
	if !contains(b.baseTags, "service:medallion") {
		t.Fatalf("baseTags missing service:medallion: %v", b.baseTags)
	}
	if b.flushEvery != 60*time.Second {
		t.Fatalf("flushEvery=%s, want 60s", b.flushEvery)
	}
}

// TestTickerDrivesFlush verifies the background loop flushes on ticks.
func TestTickerDrivesFlush(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		JobName:    "dataco",
		FlushEvery: time.Hour, // overridden by the test ticker below
		submitter:  fs,
		newTicker:  func(d time.Duration) *time.Ticker { return time.NewTicker(5 * time.Millisecond) },
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	b.IncCounter("pipeline_batches_total", 1, nil)

	deadline := time.Now().Add(2 * time.Second)
	for fs.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fs.count() == 0 {
		t.Fatal("ticker never triggered a flush")
	}
	_ = b.Close()
}

// TestCloseFlushesTail verifies Close performs one final Flush.
func TestCloseFlushesTail(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	b.IncCounter("pipeline_rows_total", 10, metrics.Labels{"kind": "corrected"})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("Close did not flush the tail; submissions=%d", fs.count())
	}
}
