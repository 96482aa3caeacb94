package warehouse

import (
	"testing"
	"time"
)

func TestFingerprintDistinguishesNilFromEmpty(t *testing.T) {
	a := Fingerprint([]any{"x", nil})
	b := Fingerprint([]any{"x", ""})
	if a == b {
		t.Fatalf("nil and empty string collide")
	}
}

func TestFingerprintOrderSensitive(t *testing.T) {
	a := Fingerprint([]any{"a", "b"})
	b := Fingerprint([]any{"b", "a"})
	if a == b {
		t.Fatalf("reordered tuple collides")
	}
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// "ab"+"c" must not equal "a"+"bc".
	if Fingerprint([]any{"ab", "c"}) == Fingerprint([]any{"a", "bc"}) {
		t.Fatalf("field boundary lost")
	}
}

func TestFingerprintStableAcrossTypes(t *testing.T) {
	ts := time.Date(2015, 1, 2, 10, 45, 0, 0, time.FixedZone("X", 3600))
	a := Fingerprint([]any{int64(7), 3.25, ts})
	b := Fingerprint([]any{int64(7), 3.25, ts.UTC()})
	if a != b {
		t.Fatalf("same instant in different zones diverges")
	}
	if a != Fingerprint([]any{int64(7), 3.25, ts}) {
		t.Fatalf("fingerprint not deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64 hex chars", len(a))
	}
}
