package warehouse

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fingerprint computes a deterministic SHA-256 key over a row tuple.
//
// It gives callers a stable, always-non-null identity for a projected row,
// usable for dedupe maps regardless of which columns are null (SQL UNIQUE
// treats nulls as distinct, an in-memory map must not).
//
// Canonicalization rules:
//   - values are joined in order with ASCII Unit Separator (0x1f)
//   - nil encodes as a single NUL byte so missing differs from empty string
//   - time.Time encodes as RFC3339Nano in UTC
//   - numeric types convert without fmt for speed
func Fingerprint(row []any) string {
	var b strings.Builder
	for i, v := range row {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		writeCanonical(&b, v)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteByte(0x00)
	case string:
		b.WriteString(t)
	case []byte:
		b.Write(t)
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case int:
		b.WriteString(strconv.Itoa(t))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case time.Time:
		b.WriteString(t.UTC().Format(time.RFC3339Nano))
	default:
		fmt.Fprintf(b, "%v", t)
	}
}
