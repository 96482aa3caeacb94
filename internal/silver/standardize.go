package silver

import (
	"context"
	"fmt"

	"medallion/internal/textnorm"
	"medallion/internal/warehouse"
)

// stdField describes one categorical column that receives _std/_key
// derivations in clean_v2.
type stdField struct {
	Name string

	// Zipcode fields pass through _std untouched (they are already typed
	// text) and their _key coalesces null to the empty string.
	Zipcode bool

	// Country fields get the variant canonicalization in their _key.
	Country bool
}

// stdFields lists the standardized columns. _std columns are emitted in this
// order, then _key columns in keyOrder.
var stdFields = []stdField{
	{Name: "order_region"},
	{Name: "market"},
	{Name: "shipping_mode"},
	{Name: "order_country", Country: true},
	{Name: "order_state"},
	{Name: "order_city"},
	{Name: "order_zipcode", Zipcode: true},
	{Name: "customer_country", Country: true},
	{Name: "customer_state"},
	{Name: "customer_city"},
	{Name: "customer_zipcode", Zipcode: true},
}

// keyOrder preserves the established column order of the clean_v2 table:
// geography keys first, then the plain categorical keys.
var keyOrder = []string{
	"order_country", "order_state", "order_city", "order_zipcode",
	"customer_country", "customer_state", "customer_city", "customer_zipcode",
	"market", "order_region", "shipping_mode",
}

// StandardizeStats summarizes one standardization run.
type StandardizeStats struct {
	Rows int

	// CorrectedRows counts rows where standardization changed the value,
	// per source field.
	CorrectedRows map[string]int

	// MojibakeCountry / MojibakeCity count rows whose standardized order
	// geography still carries encoding damage. These are what motivate the
	// correction store.
	MojibakeCountry int
	MojibakeCity    int

	// NullOrderZip documents the order_zipcode null rate (a data property,
	// not a defect).
	NullOrderZip int
}

// Standardizer builds clean_v2: clean_v1 plus _std and _key derivations.
type Standardizer struct {
	Store  warehouse.Store
	Logger Logger
}

func (s *Standardizer) logf(format string, v ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, v...)
	}
}

// Run reads source (clean_v1), appends the _std/_key columns, and overwrites
// target. Null source values propagate to null _std and _key values, except
// zipcode keys which coalesce to the empty string.
func (s *Standardizer) Run(ctx context.Context, source, target string) (StandardizeStats, error) {
	stats := StandardizeStats{CorrectedRows: map[string]int{}}

	rs, err := s.Store.Read(ctx, source)
	if err != nil {
		return stats, fmt.Errorf("silver: read %s: %w", source, err)
	}

	fieldByName := make(map[string]stdField, len(stdFields))
	srcIdx := make(map[string]int, len(stdFields))
	for _, f := range stdFields {
		fieldByName[f.Name] = f
		srcIdx[f.Name] = rs.ColumnIndex(f.Name)
		if srcIdx[f.Name] < 0 {
			return stats, fmt.Errorf("silver: %s is missing column %s", source, f.Name)
		}
	}

	cols := append([]warehouse.Column{}, rs.Columns...)
	for _, f := range stdFields {
		cols = append(cols, warehouse.Column{Name: f.Name + "_std", Type: warehouse.TypeText})
	}
	for _, name := range keyOrder {
		cols = append(cols, warehouse.Column{Name: name + "_key", Type: warehouse.TypeText})
	}

	out := warehouse.NewRowSet(cols, rs.Len())
	for _, row := range rs.Rows {
		rec := append(make([]any, 0, len(cols)), row...)

		stds := make(map[string]any, len(stdFields))
		for _, f := range stdFields {
			raw := row[srcIdx[f.Name]]
			std := standardizeValue(f, raw)
			stds[f.Name] = std
			rec = append(rec, std)

			if std != nil && raw != nil && std != raw {
				stats.CorrectedRows[f.Name]++
			}
		}
		for _, name := range keyOrder {
			rec = append(rec, keyValue(fieldByName[name], stds[name]))
		}
		out.Append(rec)

		if v, ok := stds["order_country"].(string); ok && textnorm.HasMojibake(v) {
			stats.MojibakeCountry++
		}
		if v, ok := stds["order_city"].(string); ok && textnorm.HasMojibake(v) {
			stats.MojibakeCity++
		}
		if stds["order_zipcode"] == nil {
			stats.NullOrderZip++
		}
	}
	stats.Rows = out.Len()

	if err := s.Store.Write(ctx, target, out, warehouse.Overwrite); err != nil {
		return stats, fmt.Errorf("silver: write %s: %w", target, err)
	}
	s.logf("silver: standardized %d rows into %s mojibake_country=%d mojibake_city=%d",
		stats.Rows, target, stats.MojibakeCountry, stats.MojibakeCity)
	return stats, nil
}

func standardizeValue(f stdField, v any) any {
	if v == nil {
		return nil
	}
	str, ok := warehouse.AsString(v)
	if !ok {
		return nil
	}
	if f.Zipcode {
		return str
	}
	return textnorm.Std(str)
}

// keyValue derives the _key column from the _std value.
func keyValue(f stdField, std any) any {
	if std == nil {
		if f.Zipcode {
			return "" // coalesced, keys must join
		}
		return nil
	}
	s := std.(string)
	if f.Country {
		return textnorm.CountryKey(s)
	}
	return textnorm.Key(s)
}
