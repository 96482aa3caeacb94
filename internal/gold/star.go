// Package gold derives the dimensional model from the corrected silver table:
// a calendar dimension, conformed customer/product/category/department
// dimensions, and the order-item fact at one row per order item.
package gold

import (
	"context"
	"fmt"
	"time"

	"medallion/internal/warehouse"
)

// Logger is the minimal logging interface used by the gold builder.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Tables names the gold tables, fully qualified for the backend.
type Tables struct {
	DimDate       string
	DimCustomer   string
	DimProduct    string
	DimCategory   string
	DimDepartment string
	FactOrderItem string
}

// DefaultTables qualifies the conventional gold table names against a store.
func DefaultTables(wh warehouse.Store) Tables {
	return Tables{
		DimDate:       wh.Table("gold", "dim_date"),
		DimCustomer:   wh.Table("gold", "dim_customer"),
		DimProduct:    wh.Table("gold", "dim_product"),
		DimCategory:   wh.Table("gold", "dim_category"),
		DimDepartment: wh.Table("gold", "dim_department"),
		FactOrderItem: wh.Table("gold", "fact_order_item"),
	}
}

// BuildStats reports the row count of each table written.
type BuildStats struct {
	TableRows map[string]int
}

// Builder materializes the star schema from one read of the clean table.
type Builder struct {
	Store  warehouse.Store
	Logger Logger
}

func (b *Builder) logf(format string, v ...any) {
	if b.Logger != nil {
		b.Logger.Printf(format, v...)
	}
}

// projection maps output columns to source columns for a dimension or fact.
type projection struct {
	Out  string
	Src  string
	Type warehouse.Type
}

var customerProjection = []projection{
	{Out: "customer_id", Src: "customer_id", Type: warehouse.TypeBigInt},
	{Out: "customer_segment", Src: "customer_segment", Type: warehouse.TypeText},
	{Out: "customer_country", Src: "customer_country_clean", Type: warehouse.TypeText},
	{Out: "customer_state", Src: "customer_state", Type: warehouse.TypeText},
	{Out: "customer_city", Src: "customer_city_clean", Type: warehouse.TypeText},
	{Out: "customer_zipcode", Src: "customer_zipcode", Type: warehouse.TypeText},
	{Out: "latitude", Src: "latitude", Type: warehouse.TypeFloat},
	{Out: "longitude", Src: "longitude", Type: warehouse.TypeFloat},
}

var productProjection = []projection{
	{Out: "product_card_id", Src: "product_card_id", Type: warehouse.TypeBigInt},
	{Out: "product_name", Src: "product_name", Type: warehouse.TypeText},
	{Out: "product_category_id", Src: "product_category_id", Type: warehouse.TypeBigInt},
	{Out: "category_id", Src: "category_id", Type: warehouse.TypeBigInt},
	{Out: "department_id", Src: "department_id", Type: warehouse.TypeBigInt},
	{Out: "catalog_price", Src: "catalog_price", Type: warehouse.TypeFloat},
	{Out: "product_description", Src: "product_description", Type: warehouse.TypeText},
	{Out: "product_status", Src: "product_status", Type: warehouse.TypeBigInt},
}

var categoryProjection = []projection{
	{Out: "category_id", Src: "category_id", Type: warehouse.TypeBigInt},
	{Out: "category_name", Src: "category_name", Type: warehouse.TypeText},
}

var departmentProjection = []projection{
	{Out: "department_id", Src: "department_id", Type: warehouse.TypeBigInt},
	{Out: "department_name", Src: "department_name", Type: warehouse.TypeText},
}

// factProjection lists the fact columns copied straight from the clean table.
// The two date keys are computed and spliced in after the id block.
var factProjection = []projection{
	{Out: "order_item_id", Src: "order_item_id", Type: warehouse.TypeBigInt},
	{Out: "order_id", Src: "order_id", Type: warehouse.TypeBigInt},
	{Out: "customer_id", Src: "customer_id", Type: warehouse.TypeBigInt},
	{Out: "product_card_id", Src: "product_card_id", Type: warehouse.TypeBigInt},
	{Out: "category_id", Src: "category_id", Type: warehouse.TypeBigInt},
	{Out: "department_id", Src: "department_id", Type: warehouse.TypeBigInt},

	{Out: "gross_sales", Src: "gross_sales", Type: warehouse.TypeFloat},
	{Out: "net_sales", Src: "net_sales", Type: warehouse.TypeFloat},
	{Out: "discount_amount", Src: "discount_amount", Type: warehouse.TypeFloat},
	{Out: "discount_rate", Src: "discount_rate", Type: warehouse.TypeFloat},
	{Out: "profit", Src: "profit", Type: warehouse.TypeFloat},
	{Out: "quantity", Src: "quantity", Type: warehouse.TypeInt},
	{Out: "unit_price", Src: "unit_price", Type: warehouse.TypeFloat},

	{Out: "days_for_shipping_real", Src: "days_for_shipping_real", Type: warehouse.TypeInt},
	{Out: "days_for_shipment_scheduled", Src: "days_for_shipment_scheduled", Type: warehouse.TypeInt},
	{Out: "late_delivery_risk", Src: "late_delivery_risk", Type: warehouse.TypeInt},
	{Out: "is_late_by_days", Src: "is_late_by_days", Type: warehouse.TypeInt},

	{Out: "delivery_status", Src: "delivery_status", Type: warehouse.TypeText},
	{Out: "shipping_mode", Src: "shipping_mode", Type: warehouse.TypeText},
	{Out: "order_status", Src: "order_status", Type: warehouse.TypeText},
	{Out: "market", Src: "market", Type: warehouse.TypeText},
	{Out: "order_region", Src: "order_region", Type: warehouse.TypeText},
	{Out: "order_country", Src: "order_country_clean", Type: warehouse.TypeText},
	{Out: "order_state", Src: "order_state", Type: warehouse.TypeText},
	{Out: "order_city", Src: "order_city_clean", Type: warehouse.TypeText},
	{Out: "order_zipcode", Src: "order_zipcode", Type: warehouse.TypeText},

	{Out: "_ingest_ts", Src: "_ingest_ts", Type: warehouse.TypeTimestamp},
	{Out: "_batch_id", Src: "_batch_id", Type: warehouse.TypeText},
}

// Run reads the corrected clean table once and overwrites every gold table.
func (b *Builder) Run(ctx context.Context, source string, t Tables) (BuildStats, error) {
	stats := BuildStats{TableRows: map[string]int{}}

	rs, err := b.Store.Read(ctx, source)
	if err != nil {
		return stats, fmt.Errorf("gold: read %s: %w", source, err)
	}

	dims := []struct {
		table string
		proj  []projection
	}{
		{t.DimCustomer, customerProjection},
		{t.DimProduct, productProjection},
		{t.DimCategory, categoryProjection},
		{t.DimDepartment, departmentProjection},
	}

	dimDate, err := b.buildDimDate(rs)
	if err != nil {
		return stats, err
	}
	if err := b.write(ctx, t.DimDate, dimDate, &stats); err != nil {
		return stats, err
	}

	for _, d := range dims {
		out, err := projectDistinct(rs, d.proj, source)
		if err != nil {
			return stats, err
		}
		if err := b.write(ctx, d.table, out, &stats); err != nil {
			return stats, err
		}
	}

	fact, err := buildFact(rs, source)
	if err != nil {
		return stats, err
	}
	if err := b.write(ctx, t.FactOrderItem, fact, &stats); err != nil {
		return stats, err
	}

	return stats, nil
}

func (b *Builder) write(ctx context.Context, table string, rs *warehouse.RowSet, stats *BuildStats) error {
	if err := b.Store.Write(ctx, table, rs, warehouse.CreateOrReplace); err != nil {
		return fmt.Errorf("gold: write %s: %w", table, err)
	}
	stats.TableRows[table] = rs.Len()
	b.logf("gold: wrote %s rows=%d", table, rs.Len())
	return nil
}

// buildDimDate emits a continuous calendar spanning the earliest through the
// latest order or ship date, one row per day. Gaps in the data do not produce
// gaps in the dimension.
func (b *Builder) buildDimDate(rs *warehouse.RowSet) (*warehouse.RowSet, error) {
	orderIdx := rs.ColumnIndex("order_date")
	shipIdx := rs.ColumnIndex("ship_date")
	if orderIdx < 0 || shipIdx < 0 {
		return nil, fmt.Errorf("gold: clean table lacks order_date/ship_date")
	}

	var min, max time.Time
	seen := false
	for _, row := range rs.Rows {
		for _, idx := range []int{orderIdx, shipIdx} {
			d, ok := warehouse.AsDate(row[idx])
			if !ok {
				continue
			}
			if !seen || d.Before(min) {
				min = d
			}
			if !seen || d.After(max) {
				max = d
			}
			seen = true
		}
	}

	out := warehouse.NewRowSet(dimDateColumns, 0)
	if !seen {
		return out, nil
	}
	for _, day := range calendar(min, max) {
		out.Append(dateRow(day))
	}
	return out, nil
}

// projectDistinct applies proj to every row and keeps one copy of each
// distinct tuple, in first-seen order.
func projectDistinct(rs *warehouse.RowSet, proj []projection, source string) (*warehouse.RowSet, error) {
	idx, cols, err := resolve(rs, proj, source)
	if err != nil {
		return nil, err
	}

	out := warehouse.NewRowSet(cols, 0)
	seen := map[string]struct{}{}
	for _, row := range rs.Rows {
		rec := make([]any, len(proj))
		for i, srcIdx := range idx {
			rec[i] = row[srcIdx]
		}
		fp := warehouse.Fingerprint(rec)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out.Append(rec)
	}
	return out, nil
}

func buildFact(rs *warehouse.RowSet, source string) (*warehouse.RowSet, error) {
	idx, cols, err := resolve(rs, factProjection, source)
	if err != nil {
		return nil, err
	}
	orderDateIdx := rs.ColumnIndex("order_date")
	shipDateIdx := rs.ColumnIndex("ship_date")
	if orderDateIdx < 0 || shipDateIdx < 0 {
		return nil, fmt.Errorf("gold: clean table lacks order_date/ship_date")
	}

	// Date keys sit after the id block, before the measures.
	const keyPos = 6
	withKeys := make([]warehouse.Column, 0, len(cols)+2)
	withKeys = append(withKeys, cols[:keyPos]...)
	withKeys = append(withKeys,
		warehouse.Column{Name: "order_date_key", Type: warehouse.TypeBigInt},
		warehouse.Column{Name: "ship_date_key", Type: warehouse.TypeBigInt},
	)
	withKeys = append(withKeys, cols[keyPos:]...)

	out := warehouse.NewRowSet(withKeys, rs.Len())
	for _, row := range rs.Rows {
		rec := make([]any, 0, len(withKeys))
		for i := 0; i < keyPos; i++ {
			rec = append(rec, row[idx[i]])
		}
		rec = append(rec, dateKeyOf(row[orderDateIdx]), dateKeyOf(row[shipDateIdx]))
		for i := keyPos; i < len(idx); i++ {
			rec = append(rec, row[idx[i]])
		}
		out.Append(rec)
	}
	return out, nil
}

func dateKeyOf(v any) any {
	d, ok := warehouse.AsDate(v)
	if !ok {
		return nil
	}
	return DateKey(d)
}

func resolve(rs *warehouse.RowSet, proj []projection, source string) ([]int, []warehouse.Column, error) {
	idx := make([]int, len(proj))
	cols := make([]warehouse.Column, len(proj))
	for i, p := range proj {
		idx[i] = rs.ColumnIndex(p.Src)
		if idx[i] < 0 {
			return nil, nil, fmt.Errorf("gold: %s is missing column %s", source, p.Src)
		}
		cols[i] = warehouse.Column{Name: p.Out, Type: p.Type}
	}
	return idx, cols, nil
}
