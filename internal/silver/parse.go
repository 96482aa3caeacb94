package silver

import (
	"strings"
	"time"
)

// tsLayouts is the recognized source timestamp vocabulary, tried in order.
// The extract writes US-style M/d/yyyy with minute or second precision, with
// and without zero padding.
var tsLayouts = []string{
	"1/2/2006 15:4",
	"01/02/2006 15:04",
	"1/2/2006 15:4:5",
	"01/02/2006 15:04:05",
}

// ParseTimestamp resolves a raw source timestamp string. First matching
// layout wins; no match yields (zero, false), which the caster stores as
// null and counts as a quality metric rather than an error.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range tsLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
