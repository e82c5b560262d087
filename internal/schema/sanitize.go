// Package schema normalises client-supplied JSON Schema fragments (tool
// parameter schemas) into the shape the Cloud Code upstream accepts.
package schema

// forbiddenKeys are draft-07 keywords the upstream rejects outright.
var forbiddenKeys = map[string]struct{}{
	"$schema":             {},
	"additionalProperties": {},
	"minLength":           {},
	"maxLength":           {},
	"exclusiveMinimum":    {},
	"exclusiveMaximum":    {},
	"format":              {},
	"default":             {},
	"pattern":             {},
	"examples":            {},
}

// Sanitize normalises a decoded JSON value in place and returns it. It never
// fails: unrecognised shapes are passed through unchanged.
func Sanitize(node any) any {
	switch v := node.(type) {
	case map[string]any:
		return sanitizeObject(v)
	case []any:
		for i, item := range v {
			v[i] = Sanitize(item)
		}
		return v
	default:
		return node
	}
}

func sanitizeObject(obj map[string]any) map[string]any {
	for key := range obj {
		if _, forbidden := forbiddenKeys[key]; forbidden {
			delete(obj, key)
		}
	}

	if t, ok := obj["type"]; ok {
		obj["type"] = sanitizeType(t)
	}

	if props, ok := obj["properties"].(map[string]any); ok {
		for name, sub := range props {
			props[name] = Sanitize(sub)
		}
	}

	if items, ok := obj["items"]; ok {
		obj["items"] = Sanitize(items)
	}

	return obj
}

// sanitizeType collapses a two-entry nullable union (`["string","null"]`)
// into its uppercased non-null scalar, and uppercases any bare string type.
func sanitizeType(t any) any {
	switch v := t.(type) {
	case string:
		return upper(v)
	case []any:
		if len(v) == 2 {
			var nonNull string
			sawNull := false
			ok := true
			for _, entry := range v {
				s, isStr := entry.(string)
				if !isStr {
					ok = false
					break
				}
				if s == "null" {
					sawNull = true
				} else {
					nonNull = s
				}
			}
			if ok && sawNull && nonNull != "" {
				return upper(nonNull)
			}
		}
		return v
	default:
		return t
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
