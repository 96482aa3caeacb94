// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the pipeline.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - It mirrors the warehouse abstraction pattern used elsewhere in the
//     project, allowing the rest of the codebase to depend only on this
//     interface while keeping concrete metric systems isolated in subpackages.
//
// The primary use case is instrumentation of pipeline stages (audit, cast,
// standardize, corrections, star build, validate) without coupling the stage
// logic to a specific metrics system.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
// It is intentionally generic so we can plug in Datadog, Prometheus, etc.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// Nop returns the do-nothing backend, useful for restoring the default after
// a test swaps in a recording backend.
func Nop() Backend {
	return nopBackend{}
}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStage is a convenience for the common pattern:
// measure latency + success/failure per pipeline stage.
func RecordStage(job, stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"stage":  stage,
		"status": status,
	}

	backend.IncCounter("pipeline_stage_total", 1, lbls)
	backend.ObserveHistogram("pipeline_stage_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for the given job and kind.
//
// Typical kinds mirror the stage summary fields, e.g.:
//   - "ingested"
//   - "audited"
//   - "null_order_ts"
//   - "null_ship_ts"
//   - "mojibake"
//   - "corrected"
//   - "unmatched_dim"
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("pipeline_rows_total", float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatch increments the batch counter for the given job. Call once per
// completed pipeline run.
func RecordBatch(job string) {
	backend.IncCounter("pipeline_batches_total", 1, Labels{
		"job": job,
	})
}

// RecordTableRows publishes the row count of a freshly written table.
func RecordTableRows(job, table string, rows int64) {
	if rows < 0 {
		return
	}
	backend.ObserveHistogram("pipeline_table_rows", float64(rows), Labels{
		"job":   job,
		"table": table,
	})
}
