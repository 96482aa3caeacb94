package warehouse

import (
	"context"
	"strings"
	"testing"
)

type stubStore struct{}

func (stubStore) Close()                                    {}
func (stubStore) EnsureTier(context.Context, string) error  { return nil }
func (stubStore) Table(tier, name string) string            { return tier + "_" + name }
func (stubStore) Read(context.Context, string) (*RowSet, error) {
	return nil, nil
}
func (stubStore) Write(context.Context, string, *RowSet, WriteMode) error { return nil }
func (stubStore) EnsureTable(context.Context, string, []Column, []string) error {
	return nil
}
func (stubStore) Upsert(context.Context, string, []string, *RowSet) (int64, error) {
	return 0, nil
}
func (stubStore) CreateView(context.Context, string, string) error { return nil }
func (stubStore) Query(context.Context, string) (*RowSet, error)   { return nil, nil }

func TestRegisterAndOpen(t *testing.T) {
	Register("stub", func(ctx context.Context, cfg Config) (Store, error) {
		return stubStore{}, nil
	})

	st, err := Open(context.Background(), Config{Kind: "stub"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st == nil {
		t.Fatal("Open returned nil store")
	}

	found := false
	for _, k := range Kinds() {
		if k == "stub" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Kinds() = %v, missing stub", Kinds())
	}
}

func TestOpenUnknownKind(t *testing.T) {
	if _, err := Open(context.Background(), Config{Kind: "no-such-backend"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	_, err := Open(context.Background(), Config{})
	if err == nil || !strings.Contains(err.Error(), "missing storage kind") {
		t.Fatalf("Open with empty kind: %v", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate Register")
		}
	}()
	Register("dup", func(ctx context.Context, cfg Config) (Store, error) { return stubStore{}, nil })
	Register("dup", func(ctx context.Context, cfg Config) (Store, error) { return stubStore{}, nil })
}

func TestRowSetAppendWidthMismatchPanics(t *testing.T) {
	rs := NewRowSet([]Column{{Name: "a", Type: TypeText}}, 0)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on width mismatch")
		}
	}()
	rs.Append([]any{"x", "y"})
}

func TestRowSetColumnIndex(t *testing.T) {
	rs := NewRowSet([]Column{
		{Name: "order_id", Type: TypeBigInt},
		{Name: "market", Type: TypeText},
	}, 0)

	if i := rs.ColumnIndex("market"); i != 1 {
		t.Fatalf("ColumnIndex(market) = %d, want 1", i)
	}
	if i := rs.ColumnIndex("absent"); i != -1 {
		t.Fatalf("ColumnIndex(absent) = %d, want -1", i)
	}
}
