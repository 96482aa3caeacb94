// Package runner orchestrates the pipeline stages in dependency order:
// ingest, rename, audit, cast, standardize, apply, current, star, validate.
// Every stage is a full recomputation of its output table, so any suffix of
// the chain can be re-run after a correction lands.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"medallion/internal/bronze"
	"medallion/internal/config"
	"medallion/internal/gold"
	"medallion/internal/ingest"
	"medallion/internal/metrics"
	"medallion/internal/refstore"
	"medallion/internal/silver"
	"medallion/internal/warehouse"
)

// Logger is the minimal logging interface used by the runner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// stageNames is the fixed execution order. Group names expand to a
// contiguous run of these.
var stageNames = []string{
	"ingest", "rename", "audit",
	"cast", "standardize", "apply", "current",
	"star", "validate",
}

// stageGroups maps the coarse CLI names to fine-grained stages.
var stageGroups = map[string][]string{
	"all":    stageNames,
	"bronze": {"rename", "audit"},
	"silver": {"cast", "standardize", "apply", "current"},
	"gold":   {"star", "validate"},
}

// ExpandStages resolves a comma-separated stage selection into the fixed
// execution order. Unknown names are an error; duplicates collapse.
func ExpandStages(selection string) ([]string, error) {
	want := map[string]bool{}
	for _, tok := range strings.Split(selection, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if group, ok := stageGroups[tok]; ok {
			for _, s := range group {
				want[s] = true
			}
			continue
		}
		known := false
		for _, s := range stageNames {
			if s == tok {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("runner: unknown stage %q", tok)
		}
		want[tok] = true
	}
	if len(want) == 0 {
		return nil, fmt.Errorf("runner: empty stage selection")
	}

	var out []string
	for _, s := range stageNames {
		if want[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

// Runner executes the pipeline against one warehouse.
type Runner struct {
	Store  warehouse.Store
	Logger Logger
}

func (r *Runner) logf(format string, v ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, v...)
	}
}

// tables resolves the configured table names to backend-qualified ones.
type tables struct {
	source, raw, audited string
	v1, v2, v3, current  string
	fixes                string
	gold                 gold.Tables
}

func (r *Runner) resolve(cfg config.Pipeline) tables {
	return tables{
		source:  r.Store.Table("bronze", cfg.Tables.Source),
		raw:     r.Store.Table("bronze", cfg.Tables.Raw),
		audited: r.Store.Table("bronze", cfg.Tables.Audited),
		v1:      r.Store.Table("silver", cfg.Tables.CleanV1),
		v2:      r.Store.Table("silver", cfg.Tables.CleanV2),
		v3:      r.Store.Table("silver", cfg.Tables.CleanV3),
		current: r.Store.Table("silver", cfg.Tables.Current),
		fixes:   cfg.Tables.Fixes,
		gold:    gold.DefaultTables(r.Store),
	}
}

// Run executes the selected stages in order. The first failing stage aborts
// the run; its error is returned after the stage metric is recorded.
func (r *Runner) Run(ctx context.Context, cfg config.Pipeline, stages []string) error {
	t := r.resolve(cfg)

	for _, tier := range []string{"bronze", "silver", "gold"} {
		if err := r.Store.EnsureTier(ctx, tier); err != nil {
			return fmt.Errorf("runner: ensure tier %s: %w", tier, err)
		}
	}

	for _, stage := range stages {
		if err := r.runStage(ctx, cfg, t, stage); err != nil {
			return err
		}
	}
	metrics.RecordBatch(cfg.Job)
	return nil
}

func (r *Runner) runStage(ctx context.Context, cfg config.Pipeline, t tables, stage string) error {
	start := time.Now()
	err := r.dispatch(ctx, cfg, t, stage)
	d := time.Since(start)

	metrics.RecordStage(cfg.Job, stage, err, d)
	if err != nil {
		return fmt.Errorf("runner: stage %s: %w", stage, err)
	}
	r.logf("stage=%s ok duration=%s", stage, d.Truncate(time.Millisecond))
	return nil
}

func (r *Runner) dispatch(ctx context.Context, cfg config.Pipeline, t tables, stage string) error {
	switch stage {
	case "ingest":
		return r.ingest(ctx, cfg, t)
	case "rename":
		changed, err := (&bronze.Renamer{Store: r.Store, Logger: r.Logger}).Run(ctx, t.source, t.raw)
		if err == nil {
			metrics.RecordRows(cfg.Job, "renamed_columns", int64(changed))
		}
		return err
	case "audit":
		n, err := (&bronze.Auditor{Store: r.Store, Logger: r.Logger}).Run(ctx, t.raw, t.audited, cfg.BatchID)
		if err != nil {
			return err
		}
		metrics.RecordRows(cfg.Job, "audited", int64(n))
		metrics.RecordTableRows(cfg.Job, cfg.Tables.Audited, int64(n))
		return nil
	case "cast":
		return r.cast(ctx, cfg, t)
	case "standardize":
		return r.standardize(ctx, cfg, t)
	case "apply":
		return r.apply(ctx, cfg, t)
	case "current":
		if err := r.Store.CreateView(ctx, t.current, t.v3); err != nil {
			return err
		}
		r.logf("runner: view %s -> %s", t.current, t.v3)
		return nil
	case "star":
		stats, err := (&gold.Builder{Store: r.Store, Logger: r.Logger}).Run(ctx, t.current, t.gold)
		if err != nil {
			return err
		}
		for table, rows := range stats.TableRows {
			metrics.RecordTableRows(cfg.Job, table, int64(rows))
		}
		return nil
	case "validate":
		report, err := (&gold.Validator{Store: r.Store, Logger: r.Logger}).Validate(ctx, t.current, t.gold)
		if err != nil {
			return err
		}
		metrics.RecordRows(cfg.Job, "fact", report.FactRows)
		metrics.RecordRows(cfg.Job, "fact_orphans",
			report.MissingCustomerDim+report.MissingProductDim+
				report.MissingOrderDateKey+report.MissingShipDateKey)
		return report.Err()
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

func (r *Runner) ingest(ctx context.Context, cfg config.Pipeline, t tables) error {
	if cfg.Source.Kind != "csv" {
		r.logf("runner: source kind=%s, ingest skipped", cfg.Source.Kind)
		return nil
	}
	opts := ingest.Options{Encoding: cfg.Source.Encoding, LazyQuotes: true}
	if cfg.Source.Comma != "" {
		opts.Comma = []rune(cfg.Source.Comma)[0]
	}
	n, err := (&ingest.CSVLoader{Store: r.Store, Logger: r.Logger}).Run(ctx, cfg.Source.Path, t.source, opts)
	if err != nil {
		return err
	}
	metrics.RecordRows(cfg.Job, "ingested", int64(n))
	return nil
}

func (r *Runner) cast(ctx context.Context, cfg config.Pipeline, t tables) error {
	stats, err := (&silver.Caster{Store: r.Store, Logger: r.Logger}).Run(ctx, t.audited, t.v1)
	if err != nil {
		return err
	}
	if err := r.requireSameCount(ctx, t.audited, t.v1); err != nil {
		return err
	}
	metrics.RecordTableRows(cfg.Job, cfg.Tables.CleanV1, int64(stats.Rows))
	metrics.RecordRows(cfg.Job, "null_order_ts", int64(stats.NullOrderTS))
	metrics.RecordRows(cfg.Job, "null_ship_ts", int64(stats.NullShipTS))
	for col, n := range stats.NullKeys {
		metrics.RecordRows(cfg.Job, "null_key_"+col, int64(n))
	}
	return nil
}

func (r *Runner) standardize(ctx context.Context, cfg config.Pipeline, t tables) error {
	stats, err := (&silver.Standardizer{Store: r.Store, Logger: r.Logger}).Run(ctx, t.v1, t.v2)
	if err != nil {
		return err
	}
	if err := r.requireSameCount(ctx, t.v1, t.v2); err != nil {
		return err
	}
	metrics.RecordTableRows(cfg.Job, cfg.Tables.CleanV2, int64(stats.Rows))
	for field, n := range stats.CorrectedRows {
		metrics.RecordRows(cfg.Job, "standardized_"+field, int64(n))
	}
	metrics.RecordRows(cfg.Job, "mojibake_country", int64(stats.MojibakeCountry))
	metrics.RecordRows(cfg.Job, "mojibake_city", int64(stats.MojibakeCity))
	return nil
}

func (r *Runner) apply(ctx context.Context, cfg config.Pipeline, t tables) error {
	ref := refstore.New(r.Store, "silver", t.fixes)
	if err := ref.Ensure(ctx); err != nil {
		return err
	}
	fixes, err := ref.Snapshot(ctx)
	if err != nil {
		return err
	}
	r.logf("runner: loaded %d corrections from %s", fixes.Len(), ref.Table())

	stats, err := (&silver.Applier{Store: r.Store, Logger: r.Logger}).Run(ctx, t.v2, t.v3, fixes)
	if err != nil {
		return err
	}
	if err := r.requireSameCount(ctx, t.v2, t.v3); err != nil {
		return err
	}
	if err := r.requireUniqueGrain(ctx, t.v3); err != nil {
		return err
	}
	metrics.RecordTableRows(cfg.Job, cfg.Tables.CleanV3, int64(stats.Rows))
	for field, n := range stats.CorrectedRows {
		metrics.RecordRows(cfg.Job, "corrected_"+field, int64(n))
	}
	return nil
}

// requireSameCount verifies a full-table recomputation dropped no rows.
func (r *Runner) requireSameCount(ctx context.Context, source, target string) error {
	src, err := r.count(ctx, source)
	if err != nil {
		return err
	}
	dst, err := r.count(ctx, target)
	if err != nil {
		return err
	}
	if src != dst {
		return fmt.Errorf("row count changed: %s has %d rows, %s has %d", source, src, target, dst)
	}
	return nil
}

// requireUniqueGrain verifies order_item_id is a non-null unique key of table.
func (r *Runner) requireUniqueGrain(ctx context.Context, table string) error {
	rs, err := r.Store.Query(ctx, fmt.Sprintf(
		"SELECT COUNT(*), COUNT(order_item_id), COUNT(DISTINCT order_item_id) FROM %s", table))
	if err != nil {
		return err
	}
	if rs.Len() == 0 || len(rs.Rows[0]) < 3 {
		return fmt.Errorf("grain query returned no row for %s", table)
	}
	total, _ := warehouse.AsInt64(rs.Rows[0][0])
	nonNull, _ := warehouse.AsInt64(rs.Rows[0][1])
	distinct, _ := warehouse.AsInt64(rs.Rows[0][2])

	if nonNull < total {
		return fmt.Errorf("%s has %d rows with null order_item_id", table, total-nonNull)
	}
	if distinct < nonNull {
		return fmt.Errorf("%s has %d duplicate order_item_id rows", table, nonNull-distinct)
	}
	return nil
}

func (r *Runner) count(ctx context.Context, table string) (int64, error) {
	rs, err := r.Store.Query(ctx, "SELECT COUNT(*) FROM "+table)
	if err != nil {
		return 0, err
	}
	if rs.Len() == 0 || len(rs.Rows[0]) == 0 {
		return 0, fmt.Errorf("count query returned no row for %s", table)
	}
	n, ok := warehouse.AsInt64(rs.Rows[0][0])
	if !ok {
		return 0, fmt.Errorf("count query returned %#v for %s", rs.Rows[0][0], table)
	}
	return n, nil
}
