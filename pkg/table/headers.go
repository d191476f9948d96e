package table

import (
	"fmt"
	"strings"
)

// CleanColumnName normalizes a header: lower case, separators become
// underscores, other punctuation is dropped.
func CleanColumnName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case r == ' ' || r == '-' || r == '_' || r == '.' || r == '/':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}

// CleanColumnNames cleans every header and resolves blanks and collisions,
// so the result is a list of unique, non-empty names.
func CleanColumnNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	for i, n := range names {
		c := CleanColumnName(n)
		if c == "" {
			c = fmt.Sprintf("column_%d", i+1)
		}
		if k, dup := seen[c]; dup {
			seen[c] = k + 1
			c = fmt.Sprintf("%s_%d", c, k+1)
		} else {
			seen[c] = 1
		}
		out[i] = c
	}
	return out
}
