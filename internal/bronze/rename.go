// Package bronze prepares the landing tier: schema-normalized column names
// and ingestion provenance. No business value is inspected or modified here.
package bronze

import (
	"context"
	"fmt"

	"medallion/internal/schema"
	"medallion/internal/warehouse"
)

// Logger is the minimal logging interface used by the bronze stages.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Renamer rewrites a landed table with normalized, deduplicated column names.
// Values and row order pass through untouched.
type Renamer struct {
	Store  warehouse.Store
	Logger Logger
}

func (r *Renamer) logf(format string, v ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, v...)
	}
}

// Run reads source, renames its columns, and overwrites target. Returns the
// number of column names that changed.
func (r *Renamer) Run(ctx context.Context, source, target string) (int, error) {
	rs, err := r.Store.Read(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("bronze: read %s: %w", source, err)
	}

	names := schema.UniqueNames(rs.Names())
	changed := 0
	for i := range rs.Columns {
		if rs.Columns[i].Name != names[i] {
			changed++
		}
		rs.Columns[i].Name = names[i]
	}

	if err := r.Store.Write(ctx, target, rs, warehouse.Overwrite); err != nil {
		return 0, fmt.Errorf("bronze: write %s: %w", target, err)
	}
	r.logf("bronze: renamed %d of %d columns into %s", changed, len(names), target)
	return changed, nil
}
