// Package enums holds the closed string vocabularies stored in order,
// user and outbox rows.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

// closedSet lists every value a column accepts.
type closedSet[T ~string] []T

func (s closedSet[T]) has(v T) bool {
	return slices.Contains(s, v)
}

// parse matches raw exactly, or ignoring case and surrounding space when
// loose is set.
func (s closedSet[T]) parse(kind, raw string, loose bool) (T, error) {
	wanted := raw
	if loose {
		wanted = strings.TrimSpace(raw)
	}
	for _, candidate := range s {
		if string(candidate) == wanted || (loose && strings.EqualFold(string(candidate), wanted)) {
			return candidate, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
