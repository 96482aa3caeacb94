// Package warehouse defines the pipeline's view of the analytical data store:
// whole-table reads and overwrites across the bronze/silver/gold tiers, a
// keyed upsert for the correction store, view aliasing, and ad hoc validation
// queries. Backends register themselves by kind and are selected via config,
// so the pipeline code never imports a driver.
package warehouse

import (
	"context"
	"fmt"
	"sync"
)

// Config selects and connects a backend.
type Config struct {
	Kind string
	DSN  string
}

// WriteMode controls how Write replaces the destination table.
type WriteMode int

const (
	// Overwrite drops and recreates the table, then inserts the rowset.
	// The destination may or may not exist.
	Overwrite WriteMode = iota

	// CreateOrReplace behaves like Overwrite; it exists as a distinct mode so
	// callers can record intent ("this table is born here" vs "this table is
	// refreshed here"). Backends treat both as drop-and-recreate.
	CreateOrReplace
)

// Store is the backend-agnostic interface for the tiered table layout.
//
// Semantics every backend must honor:
//   - Write is a whole-table replace; partially written tables must not be
//     observable by a Read that starts after Write returns.
//   - Upsert keyed on keyCols must never produce duplicate keys, and a repeat
//     of the same payload must be a no-op (idempotent).
//   - Query accepts portable SQL (aggregates, CASE, LEFT JOIN); table names
//     must come from Table() so each backend's tier qualification is respected.
type Store interface {
	Close()

	// EnsureTier provisions the bronze/silver/gold namespace. Backends with
	// real schemas create them; flat backends may make this a no-op.
	EnsureTier(ctx context.Context, tier string) error

	// Table returns the fully qualified, quoted-if-needed name for the table
	// in a tier, suitable for embedding in Query SQL.
	Table(tier, name string) string

	// Read scans the entire table.
	Read(ctx context.Context, table string) (*RowSet, error)

	// Write replaces the table with the rowset, creating it from the rowset's
	// column specs.
	Write(ctx context.Context, table string, rs *RowSet, mode WriteMode) error

	// EnsureTable creates the table if it does not exist, with an optional
	// composite unique constraint (required for Upsert keys).
	EnsureTable(ctx context.Context, table string, cols []Column, uniqueCols []string) error

	// Upsert inserts rs keyed by keyCols; on key conflict the non-key columns
	// are overwritten. Returns the number of rows affected.
	Upsert(ctx context.Context, table string, keyCols []string, rs *RowSet) (int64, error)

	// CreateView (re)creates view as SELECT * over source.
	CreateView(ctx context.Context, view, source string) error

	// Query executes SQL and returns the full result.
	Query(ctx context.Context, q string) (*RowSet, error)
}

// ---- backend registry (kind -> factory) ----

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	regMu     sync.RWMutex
	factories = map[string]factory{}
)

// Register installs a backend factory under a kind (e.g. "sqlite").
// Call from an init() in the backend package. Registering the same kind twice
// panics: ambiguous backend selection should fail at startup, not at runtime.
func Register(kind string, f factory) {
	regMu.Lock()
	defer regMu.Unlock()

	if kind == "" {
		panic("warehouse: Register called with empty kind")
	}
	if f == nil {
		panic("warehouse: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("warehouse: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open constructs a Store for the configured backend kind.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("warehouse: missing storage kind")
	}

	regMu.RLock()
	f := factories[cfg.Kind]
	regMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("warehouse: unsupported storage kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds (for config validation messages).
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}
