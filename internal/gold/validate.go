package gold

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"medallion/internal/warehouse"
)

// ValidationReport carries the structural checks run after a gold build.
// Every field must be consistent for the build to count as sound; a count
// field other than the row totals being non-zero is a structural defect.
type ValidationReport struct {
	SilverRows int64
	FactRows   int64

	// DuplicateGrainRows counts fact rows beyond the first per order_item_id.
	DuplicateGrainRows int64

	// NullGrainRows counts fact rows with a null order_item_id.
	NullGrainRows int64

	// Orphan counts: fact rows whose key finds no dimension row.
	MissingCustomerDim  int64
	MissingProductDim   int64
	MissingOrderDateKey int64
	MissingShipDateKey  int64
}

// Problems lists every failed check in human-readable form. Empty means the
// star schema is structurally sound.
func (r ValidationReport) Problems() []string {
	var ps []string
	if r.FactRows != r.SilverRows {
		ps = append(ps, fmt.Sprintf("fact has %d rows, clean table has %d", r.FactRows, r.SilverRows))
	}
	if r.DuplicateGrainRows > 0 {
		ps = append(ps, fmt.Sprintf("%d duplicate order_item_id rows in fact", r.DuplicateGrainRows))
	}
	if r.NullGrainRows > 0 {
		ps = append(ps, fmt.Sprintf("%d fact rows with null order_item_id", r.NullGrainRows))
	}
	if r.MissingCustomerDim > 0 {
		ps = append(ps, fmt.Sprintf("%d fact rows orphaned from dim_customer", r.MissingCustomerDim))
	}
	if r.MissingProductDim > 0 {
		ps = append(ps, fmt.Sprintf("%d fact rows orphaned from dim_product", r.MissingProductDim))
	}
	if r.MissingOrderDateKey > 0 {
		ps = append(ps, fmt.Sprintf("%d fact rows with an order_date_key absent from dim_date", r.MissingOrderDateKey))
	}
	if r.MissingShipDateKey > 0 {
		ps = append(ps, fmt.Sprintf("%d fact rows with a ship_date_key absent from dim_date", r.MissingShipDateKey))
	}
	return ps
}

// Err folds the report into a single error, nil when every check passed.
func (r ValidationReport) Err() error {
	ps := r.Problems()
	if len(ps) == 0 {
		return nil
	}
	return fmt.Errorf("gold: validation failed: %s", strings.Join(ps, "; "))
}

// Validator runs the structural checks concurrently against the store.
type Validator struct {
	Store  warehouse.Store
	Logger Logger
}

// Validate checks the gold tables against the clean table they were built
// from. The returned report is complete even when checks fail; the error is
// non-nil only when a query itself fails.
func (v *Validator) Validate(ctx context.Context, cleanTable string, t Tables) (ValidationReport, error) {
	var report ValidationReport

	// Each check writes a distinct field, so no lock is needed.
	checks := []struct {
		dst *int64
		sql string
	}{
		{&report.SilverRows, fmt.Sprintf("SELECT COUNT(*) FROM %s", cleanTable)},
		{&report.FactRows, fmt.Sprintf("SELECT COUNT(*) FROM %s", t.FactOrderItem)},
		{&report.DuplicateGrainRows, fmt.Sprintf(
			"SELECT COUNT(order_item_id) - COUNT(DISTINCT order_item_id) FROM %s", t.FactOrderItem)},
		{&report.NullGrainRows, fmt.Sprintf(
			"SELECT SUM(CASE WHEN order_item_id IS NULL THEN 1 ELSE 0 END) FROM %s", t.FactOrderItem)},
		{&report.MissingCustomerDim, fmt.Sprintf(
			"SELECT SUM(CASE WHEN d.customer_id IS NULL THEN 1 ELSE 0 END) FROM %s f LEFT JOIN %s d ON f.customer_id = d.customer_id",
			t.FactOrderItem, t.DimCustomer)},
		{&report.MissingProductDim, fmt.Sprintf(
			"SELECT SUM(CASE WHEN d.product_card_id IS NULL THEN 1 ELSE 0 END) FROM %s f LEFT JOIN %s d ON f.product_card_id = d.product_card_id",
			t.FactOrderItem, t.DimProduct)},
		{&report.MissingOrderDateKey, fmt.Sprintf(
			"SELECT SUM(CASE WHEN f.order_date_key IS NOT NULL AND d.date_key IS NULL THEN 1 ELSE 0 END) FROM %s f LEFT JOIN %s d ON f.order_date_key = d.date_key",
			t.FactOrderItem, t.DimDate)},
		{&report.MissingShipDateKey, fmt.Sprintf(
			"SELECT SUM(CASE WHEN f.ship_date_key IS NOT NULL AND d.date_key IS NULL THEN 1 ELSE 0 END) FROM %s f LEFT JOIN %s d ON f.ship_date_key = d.date_key",
			t.FactOrderItem, t.DimDate)},
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, c := range checks {
		c := c
		g.Go(func() error {
			n, err := v.scalar(ctx, c.sql)
			if err != nil {
				return err
			}
			*c.dst = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	if v.Logger != nil {
		v.Logger.Printf("gold: validated fact_rows=%d silver_rows=%d problems=%d",
			report.FactRows, report.SilverRows, len(report.Problems()))
	}
	return report, nil
}

// scalar runs a single-value query. A null result (e.g. SUM over zero rows)
// counts as zero.
func (v *Validator) scalar(ctx context.Context, sql string) (int64, error) {
	rs, err := v.Store.Query(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("gold: %q: %w", sql, err)
	}
	if rs.Len() == 0 || len(rs.Rows[0]) == 0 || rs.Rows[0][0] == nil {
		return 0, nil
	}
	n, ok := warehouse.AsInt64(rs.Rows[0][0])
	if !ok {
		return 0, fmt.Errorf("gold: %q returned non-numeric %#v", sql, rs.Rows[0][0])
	}
	return n, nil
}
