package silver

import (
	"context"
	"fmt"

	"medallion/internal/refstore"
	"medallion/internal/textnorm"
	"medallion/internal/warehouse"
)

// cleanField maps one standardized column to a correction-store field.
type cleanField struct {
	Name    string
	Ref     refstore.Field
	Country bool
}

var cleanFields = []cleanField{
	{Name: "order_country", Ref: refstore.FieldCountry, Country: true},
	{Name: "order_city", Ref: refstore.FieldCity},
	{Name: "customer_country", Ref: refstore.FieldCountry, Country: true},
	{Name: "customer_city", Ref: refstore.FieldCity},
}

// ApplyStats summarizes one correction-application run.
type ApplyStats struct {
	Rows int

	// CorrectedRows counts rows whose _clean value came from the
	// correction store rather than from _std, per column.
	CorrectedRows map[string]int
}

// Applier builds clean_v3: clean_v2 plus _clean/_clean_key columns derived
// by looking each _std value up in the reference correction store.
type Applier struct {
	Store  warehouse.Store
	Logger Logger
}

func (a *Applier) logf(format string, v ...any) {
	if a.Logger != nil {
		a.Logger.Printf(format, v...)
	}
}

// Run reads source (clean_v2), applies fixes, and overwrites target. A _std
// value with no matching fix passes through unchanged, so an empty
// correction store still yields a complete clean_v3.
func (a *Applier) Run(ctx context.Context, source, target string, fixes refstore.Corrections) (ApplyStats, error) {
	stats := ApplyStats{CorrectedRows: map[string]int{}}

	rs, err := a.Store.Read(ctx, source)
	if err != nil {
		return stats, fmt.Errorf("silver: read %s: %w", source, err)
	}

	srcIdx := make(map[string]int, len(cleanFields))
	for _, f := range cleanFields {
		srcIdx[f.Name] = rs.ColumnIndex(f.Name + "_std")
		if srcIdx[f.Name] < 0 {
			return stats, fmt.Errorf("silver: %s is missing column %s_std", source, f.Name)
		}
	}

	cols := append([]warehouse.Column{}, rs.Columns...)
	for _, f := range cleanFields {
		cols = append(cols, warehouse.Column{Name: f.Name + "_clean", Type: warehouse.TypeText})
	}
	for _, f := range cleanFields {
		cols = append(cols, warehouse.Column{Name: f.Name + "_clean_key", Type: warehouse.TypeText})
	}

	out := warehouse.NewRowSet(cols, rs.Len())
	for _, row := range rs.Rows {
		rec := append(make([]any, 0, len(cols)), row...)

		cleans := make([]any, len(cleanFields))
		for i, f := range cleanFields {
			std := row[srcIdx[f.Name]]
			if std == nil {
				continue
			}
			s, ok := warehouse.AsString(std)
			if !ok {
				continue
			}
			if good, fixed := fixes.Lookup(f.Ref, s); fixed {
				cleans[i] = good
				stats.CorrectedRows[f.Name]++
			} else {
				cleans[i] = s
			}
		}
		rec = append(rec, cleans...)
		for i, f := range cleanFields {
			rec = append(rec, cleanKey(f, cleans[i]))
		}
		out.Append(rec)
	}
	stats.Rows = out.Len()

	if err := a.Store.Write(ctx, target, out, warehouse.Overwrite); err != nil {
		return stats, fmt.Errorf("silver: write %s: %w", target, err)
	}
	a.logf("silver: applied corrections into %s rows=%d corrected=%v",
		target, stats.Rows, stats.CorrectedRows)
	return stats, nil
}

func cleanKey(f cleanField, clean any) any {
	if clean == nil {
		return nil
	}
	s := clean.(string)
	if f.Country {
		return textnorm.CountryKey(s)
	}
	return textnorm.Key(s)
}
