package cache

import (
	"net/url"
	"sort"
	"strings"
)

// Param is a single named parameter contributing to a cache key.
type Param struct {
	Name  string
	Value string
}

// P is shorthand for constructing a Param.
func P(name, value string) Param {
	return Param{Name: name, Value: value}
}

// Key generates a deterministic cache key string for an operation and its
// parameters. Parameter values are trimmed and lowercased so that identical
// logical requests always produce identical keys; explicit separators keep
// distinct parameter combinations from colliding.
//
// Format: op:name1=value1:name2=value2 (params sorted by name)
//
// Example:
//
//	search:keyword=election:limit=20
func Key(op string, params ...Param) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, strings.ToLower(strings.TrimSpace(op)))

	sorted := make([]Param, len(params))
	copy(sorted, params)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, p := range sorted {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		// Escaping keeps separator characters inside values (e.g. a keyword
		// containing ':' or '=') from colliding with the key structure.
		value := url.QueryEscape(strings.ToLower(strings.TrimSpace(p.Value)))
		parts = append(parts, name+"="+value)
	}

	return strings.Join(parts, ":")
}
