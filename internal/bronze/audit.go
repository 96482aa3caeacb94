package bronze

import (
	"context"
	"fmt"
	"time"

	"medallion/internal/warehouse"
)

// Provenance column names appended by the auditor. The underscore prefix
// keeps them clear of normalized business columns, which never start with
// punctuation the normalizer would preserve... except the underscore itself,
// so collisions are checked at run time.
const (
	ColIngestTS = "_ingest_ts"
	ColBatchID  = "_batch_id"
)

// Auditor stamps each landed row with ingestion provenance and writes the
// audited bronze table.
type Auditor struct {
	Store  warehouse.Store
	Logger Logger

	// Now is a clock seam for tests; nil means time.Now.
	Now func() time.Time
}

func (a *Auditor) logf(format string, v ...any) {
	if a.Logger != nil {
		a.Logger.Printf(format, v...)
	}
}

func (a *Auditor) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// DefaultBatchID derives the fallback batch id for a run date.
func DefaultBatchID(now time.Time) string {
	return "run_" + now.UTC().Format("20060102")
}

// Run reads source, appends _ingest_ts and _batch_id, and overwrites target.
// Every business column and every row passes through unchanged, in order.
// All rows of one run share a single timestamp. Empty batchID defaults from
// the clock.
func (a *Auditor) Run(ctx context.Context, source, target, batchID string) (int, error) {
	rs, err := a.Store.Read(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("bronze: read %s: %w", source, err)
	}

	for _, c := range rs.Columns {
		if c.Name == ColIngestTS || c.Name == ColBatchID {
			return 0, fmt.Errorf("bronze: source %s already has column %s", source, c.Name)
		}
	}

	now := a.now().UTC()
	if batchID == "" {
		batchID = DefaultBatchID(now)
	}

	cols := append(append([]warehouse.Column{}, rs.Columns...),
		warehouse.Column{Name: ColIngestTS, Type: warehouse.TypeTimestamp},
		warehouse.Column{Name: ColBatchID, Type: warehouse.TypeText},
	)
	out := warehouse.NewRowSet(cols, rs.Len())
	for _, row := range rs.Rows {
		out.Append(append(append(make([]any, 0, len(cols)), row...), now, batchID))
	}

	if err := a.Store.Write(ctx, target, out, warehouse.Overwrite); err != nil {
		return 0, fmt.Errorf("bronze: write %s: %w", target, err)
	}
	a.logf("bronze: audited %d rows into %s batch_id=%s", out.Len(), target, batchID)
	return out.Len(), nil
}
