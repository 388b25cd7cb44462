// Package strings provides string helpers shared by normalizers.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element and drops empties and repeats.
// First-seen order is preserved; comparison is case-sensitive because
// person identifiers from legacy records are case-sensitive.
//
//	DedupeAndTrim([]string{"  E1 ", "E2", "E1", ""}) // []string{"E1", "E2"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// FirstNonEmpty returns the first value that is non-blank after trimming.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// HasAnyPrefix reports whether s (trimmed, case-insensitive) starts with any prefix.
func HasAnyPrefix(s string, prefixes ...string) bool {
	lowered := strings.ToLower(strings.TrimSpace(s))
	for _, p := range prefixes {
		if strings.HasPrefix(lowered, p) {
			return true
		}
	}
	return false
}
