package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// AllScope is the context key used when no context is given
const AllScope = "all"

// NormalizeKey lowercases key, drops everything except letters, digits,
// underscores and whitespace, and collapses whitespace runs to one space.
func NormalizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))

	pendingSpace := false
	for _, r := range strings.ToLower(key) {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ContextKey renders a lookup context as a scope string. Slices are sorted
// so token order does not matter. Values that cannot be rendered otherwise
// are stringified rather than rejected.
func ContextKey(scope any) string {
	switch v := scope.(type) {
	case nil:
		return AllScope
	case string:
		return v
	case []string:
		sorted := append([]string(nil), v...)
		sort.Strings(sorted)
		return strings.Join(sorted, ",")
	case []any:
		parts := make([]string, len(v))
		for i, p := range v {
			parts[i] = fmt.Sprint(p)
		}
		sort.Strings(parts)
		return strings.Join(parts, ",")
	case fmt.Stringer:
		return v.String()
	case map[string]any, map[string]string:
		// encoding/json sorts map keys
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprint(v)
	default:
		return fmt.Sprint(v)
	}
}

// Key builds the storage key for an input key and context
func Key(key string, scope any) string {
	return NormalizeKey(key) + "::" + ContextKey(scope)
}
