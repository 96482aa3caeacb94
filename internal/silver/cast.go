// Package silver turns the audited bronze extract into typed, standardized,
// and corrected clean tables. Each stage is a full-table recomputation: read
// the previous version, derive, overwrite the next.
package silver

import (
	"context"
	"fmt"

	"medallion/internal/warehouse"
)

// Logger is the minimal logging interface used by the silver stages.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// castKind selects the conversion applied to one output column.
type castKind int

const (
	castBigInt castKind = iota
	castInt
	castFloat
	castText
	castRaw       // source string kept verbatim (raw timestamp provenance)
	castTimestamp // ParseTimestamp over the source string
	castDate      // ParseTimestamp truncated to the calendar day
	castPassTime  // already-typed timestamp carried through (_ingest_ts)
)

// castColumn maps one source column to one typed output column.
type castColumn struct {
	Out  string
	Src  string
	Kind castKind
}

// castSpec is the fixed typed schema of clean_v1, in output order. The
// computed is_late_by_days column is appended by the caster after these.
var castSpec = []castColumn{
	{Out: "order_item_id", Src: "order_item_id", Kind: castBigInt},
	{Out: "order_id", Src: "order_id", Kind: castBigInt},
	{Out: "customer_id", Src: "customer_id", Kind: castBigInt},
	{Out: "product_card_id", Src: "product_card_id", Kind: castBigInt},
	{Out: "category_id", Src: "category_id", Kind: castBigInt},
	{Out: "department_id", Src: "department_id", Kind: castBigInt},

	{Out: "order_ts_raw", Src: "order_date_dateorders", Kind: castRaw},
	{Out: "ship_ts_raw", Src: "shipping_date_dateorders", Kind: castRaw},
	{Out: "order_ts", Src: "order_date_dateorders", Kind: castTimestamp},
	{Out: "ship_ts", Src: "shipping_date_dateorders", Kind: castTimestamp},
	{Out: "order_date", Src: "order_date_dateorders", Kind: castDate},
	{Out: "ship_date", Src: "shipping_date_dateorders", Kind: castDate},

	{Out: "gross_sales", Src: "sales", Kind: castFloat},
	{Out: "net_sales", Src: "order_item_total", Kind: castFloat},
	{Out: "discount_amount", Src: "order_item_discount", Kind: castFloat},
	{Out: "discount_rate", Src: "order_item_discount_rate", Kind: castFloat},
	{Out: "profit", Src: "order_profit_per_order", Kind: castFloat},

	{Out: "quantity", Src: "order_item_quantity", Kind: castInt},
	{Out: "unit_price", Src: "order_item_product_price", Kind: castFloat},
	{Out: "catalog_price", Src: "product_price", Kind: castFloat},

	{Out: "days_for_shipping_real", Src: "days_for_shipping_real", Kind: castInt},
	{Out: "days_for_shipment_scheduled", Src: "days_for_shipment_scheduled", Kind: castInt},
	{Out: "late_delivery_risk", Src: "late_delivery_risk", Kind: castInt},

	{Out: "delivery_status", Src: "delivery_status", Kind: castText},
	{Out: "shipping_mode", Src: "shipping_mode", Kind: castText},
	{Out: "order_status", Src: "order_status", Kind: castText},
	{Out: "market", Src: "market", Kind: castText},
	{Out: "order_region", Src: "order_region", Kind: castText},
	{Out: "order_country", Src: "order_country", Kind: castText},
	{Out: "order_state", Src: "order_state", Kind: castText},
	{Out: "order_city", Src: "order_city", Kind: castText},
	{Out: "order_zipcode", Src: "order_zipcode", Kind: castText},

	{Out: "customer_segment", Src: "customer_segment", Kind: castText},
	{Out: "customer_country", Src: "customer_country", Kind: castText},
	{Out: "customer_state", Src: "customer_state", Kind: castText},
	{Out: "customer_city", Src: "customer_city", Kind: castText},
	{Out: "customer_zipcode", Src: "customer_zipcode", Kind: castText},
	{Out: "latitude", Src: "latitude", Kind: castFloat},
	{Out: "longitude", Src: "longitude", Kind: castFloat},

	{Out: "product_name", Src: "product_name", Kind: castText},
	{Out: "product_category_id", Src: "product_category_id", Kind: castBigInt},
	{Out: "product_description", Src: "product_description", Kind: castText},
	{Out: "product_status", Src: "product_status", Kind: castBigInt},

	// Descriptive names carried through so the dimensional layer never has
	// to reach back past the clean table.
	{Out: "category_name", Src: "category_name", Kind: castText},
	{Out: "department_name", Src: "department_name", Kind: castText},
}

const colIsLate = "is_late_by_days"

// provenanceCols are appended after the computed column, preserved from the
// audited table.
var provenanceCols = []castColumn{
	{Out: "_ingest_ts", Src: "_ingest_ts", Kind: castPassTime},
	{Out: "_batch_id", Src: "_batch_id", Kind: castText},
}

func (k castKind) columnType() warehouse.Type {
	switch k {
	case castBigInt:
		return warehouse.TypeBigInt
	case castInt:
		return warehouse.TypeInt
	case castFloat:
		return warehouse.TypeFloat
	case castTimestamp, castPassTime:
		return warehouse.TypeTimestamp
	case castDate:
		return warehouse.TypeDate
	default:
		return warehouse.TypeText
	}
}

// CastStats summarizes one cast run for validation metrics.
type CastStats struct {
	Rows        int
	NullOrderTS int
	NullShipTS  int

	// NullKeys counts null id columns that must never be null in healthy
	// data (order_item_id, order_id, customer_id, product_card_id).
	NullKeys map[string]int
}

// Caster builds the typed clean_v1 table from the audited bronze table.
type Caster struct {
	Store  warehouse.Store
	Logger Logger
}

func (c *Caster) logf(format string, v ...any) {
	if c.Logger != nil {
		c.Logger.Printf(format, v...)
	}
}

var watchedKeyCols = []string{"order_item_id", "order_id", "customer_id", "product_card_id"}

// Run reads source, applies the cast spec, and overwrites target.
//
// Conversion failures null the field and are counted; they never abort the
// batch. Empty source strings are treated as null for every kind, matching
// the upstream extract's CSV semantics. A source column missing entirely
// yields a fully null output column.
func (c *Caster) Run(ctx context.Context, source, target string) (CastStats, error) {
	stats := CastStats{NullKeys: map[string]int{}}

	rs, err := c.Store.Read(ctx, source)
	if err != nil {
		return stats, fmt.Errorf("silver: read %s: %w", source, err)
	}

	spec := append(append([]castColumn{}, castSpec...), provenanceCols...)

	srcIdx := make([]int, len(spec))
	for i, col := range spec {
		srcIdx[i] = rs.ColumnIndex(col.Src)
	}
	realIdx := rs.ColumnIndex("days_for_shipping_real")
	schedIdx := rs.ColumnIndex("days_for_shipment_scheduled")

	cols := make([]warehouse.Column, 0, len(spec)+1)
	for _, col := range castSpec {
		cols = append(cols, warehouse.Column{Name: col.Out, Type: col.Kind.columnType()})
	}
	cols = append(cols, warehouse.Column{Name: colIsLate, Type: warehouse.TypeInt})
	for _, col := range provenanceCols {
		cols = append(cols, warehouse.Column{Name: col.Out, Type: col.Kind.columnType()})
	}

	out := warehouse.NewRowSet(cols, rs.Len())
	for _, row := range rs.Rows {
		rec := make([]any, 0, len(cols))

		for i, col := range castSpec {
			rec = append(rec, castValue(col.Kind, sourceValue(row, srcIdx[i])))
		}
		rec = append(rec, isLate(sourceValue(row, realIdx), sourceValue(row, schedIdx)))
		for i, col := range provenanceCols {
			rec = append(rec, castValue(col.Kind, sourceValue(row, srcIdx[len(castSpec)+i])))
		}

		out.Append(rec)
	}
	stats.Rows = out.Len()

	tsIdx := out.ColumnIndex("order_ts")
	shipIdx := out.ColumnIndex("ship_ts")
	for _, row := range out.Rows {
		if row[tsIdx] == nil {
			stats.NullOrderTS++
		}
		if row[shipIdx] == nil {
			stats.NullShipTS++
		}
		for _, key := range watchedKeyCols {
			if row[out.ColumnIndex(key)] == nil {
				stats.NullKeys[key]++
			}
		}
	}

	if err := c.Store.Write(ctx, target, out, warehouse.Overwrite); err != nil {
		return stats, fmt.Errorf("silver: write %s: %w", target, err)
	}
	c.logf("silver: cast %d rows into %s null_order_ts=%d null_ship_ts=%d",
		stats.Rows, target, stats.NullOrderTS, stats.NullShipTS)
	return stats, nil
}

func sourceValue(row []any, idx int) any {
	if idx < 0 {
		return nil
	}
	return row[idx]
}

// castValue converts one raw value. nil and "" are null for every kind.
func castValue(kind castKind, v any) any {
	if v == nil {
		return nil
	}

	switch kind {
	case castPassTime:
		if ts, ok := warehouse.AsTime(v); ok {
			return ts
		}
		return nil
	}

	s, ok := warehouse.AsString(v)
	if !ok || s == "" {
		return nil
	}

	switch kind {
	case castBigInt, castInt:
		if n, ok := warehouse.AsInt64(s); ok {
			return n
		}
		return nil
	case castFloat:
		if f, ok := warehouse.AsFloat64(s); ok {
			return f
		}
		return nil
	case castTimestamp:
		if ts, ok := ParseTimestamp(s); ok {
			return ts
		}
		return nil
	case castDate:
		if ts, ok := ParseTimestamp(s); ok {
			return warehouse.Midnight(ts)
		}
		return nil
	default:
		// castText, castRaw
		return s
	}
}

// isLate computes the derived lateness flag. A null operand yields 0, the
// same answer the source system's CASE expression gives.
func isLate(real, sched any) int64 {
	r, okR := warehouse.AsInt64(real)
	s, okS := warehouse.AsInt64(sched)
	if okR && okS && r > s {
		return 1
	}
	return 0
}
