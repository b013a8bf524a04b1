package enums

import (
	"fmt"
	"slices"
	"strings"
)

// parseEnum matches raw case-insensitively after trimming so that query
// strings like "?status=Pending" resolve.
func parseEnum[T ~string](known []T, raw, kind string) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(raw)))
	if slices.Contains(known, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
