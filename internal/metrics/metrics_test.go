package metrics

import (
	"errors"
	"testing"
	"time"
)

type captureBackend struct {
	counters   []capturedMetric
	histograms []capturedMetric
	flushed    int
}

type capturedMetric struct {
	name   string
	value  float64
	labels Labels
}

func (c *captureBackend) IncCounter(name string, delta float64, labels Labels) {
	c.counters = append(c.counters, capturedMetric{name, delta, labels})
}

func (c *captureBackend) ObserveHistogram(name string, value float64, labels Labels) {
	c.histograms = append(c.histograms, capturedMetric{name, value, labels})
}

func (c *captureBackend) Flush() error {
	c.flushed++
	return nil
}

func withCapture(t *testing.T) *captureBackend {
	t.Helper()
	prev := backend
	c := &captureBackend{}
	SetBackend(c)
	t.Cleanup(func() { backend = prev })
	return c
}

func TestRecordStageSuccessAndFailure(t *testing.T) {
	c := withCapture(t)

	RecordStage("dataco", "cast", nil, 2*time.Second)
	RecordStage("dataco", "cast", errors.New("boom"), time.Second)

	if len(c.counters) != 2 || len(c.histograms) != 2 {
		t.Fatalf("got %d counters / %d histograms, want 2 / 2", len(c.counters), len(c.histograms))
	}
	if c.counters[0].labels["status"] != "success" {
		t.Fatalf("first status = %q", c.counters[0].labels["status"])
	}
	if c.counters[1].labels["status"] != "failure" {
		t.Fatalf("second status = %q", c.counters[1].labels["status"])
	}
	if c.histograms[0].value != 2 {
		t.Fatalf("duration = %v, want 2", c.histograms[0].value)
	}
	if c.counters[0].labels["stage"] != "cast" || c.counters[0].labels["job"] != "dataco" {
		t.Fatalf("labels = %v", c.counters[0].labels)
	}
}

func TestRecordRowsSkipsNonPositive(t *testing.T) {
	c := withCapture(t)

	RecordRows("dataco", "corrected", 0)
	RecordRows("dataco", "corrected", -3)
	RecordRows("dataco", "corrected", 5)

	if len(c.counters) != 1 {
		t.Fatalf("got %d counters, want 1", len(c.counters))
	}
	if c.counters[0].value != 5 || c.counters[0].labels["kind"] != "corrected" {
		t.Fatalf("counter = %+v", c.counters[0])
	}
}

func TestSetBackendNilKeepsExisting(t *testing.T) {
	c := withCapture(t)
	SetBackend(nil)

	RecordBatch("dataco")
	if len(c.counters) != 1 {
		t.Fatal("nil SetBackend replaced the backend")
	}
}

func TestFlushDelegates(t *testing.T) {
	c := withCapture(t)
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if c.flushed != 1 {
		t.Fatalf("flushed = %d, want 1", c.flushed)
	}
}
