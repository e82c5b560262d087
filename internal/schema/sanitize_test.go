package schema

import "testing"

func TestSanitizeRemovesForbiddenKeys(t *testing.T) {
	in := map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "string",
		"minLength":  1,
		"maxLength":  10,
		"pattern":    "^a",
		"format":     "email",
		"default":    "x",
		"examples":   []any{"a"},
	}

	out := Sanitize(in).(map[string]any)
	for _, forbidden := range []string{"$schema", "minLength", "maxLength", "pattern", "format", "default", "examples"} {
		if _, ok := out[forbidden]; ok {
			t.Fatalf("expected %q to be removed, got %v", forbidden, out)
		}
	}
	if out["type"] != "STRING" {
		t.Fatalf("expected type to be uppercased, got %v", out["type"])
	}
}

func TestSanitizeCollapsesNullableUnion(t *testing.T) {
	in := map[string]any{"type": []any{"string", "null"}}
	out := Sanitize(in).(map[string]any)
	if out["type"] != "STRING" {
		t.Fatalf("expected collapsed nullable union, got %v", out["type"])
	}
}

func TestSanitizeRecursesIntoPropertiesAndItems(t *testing.T) {
	in := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "minLength": 1},
		},
		"items": map[string]any{"type": []any{"integer", "null"}},
	}
	out := Sanitize(in).(map[string]any)
	props := out["properties"].(map[string]any)
	name := props["name"].(map[string]any)
	if _, ok := name["minLength"]; ok {
		t.Fatalf("expected minLength removed from nested property")
	}
	if name["type"] != "STRING" {
		t.Fatalf("expected nested type uppercased, got %v", name["type"])
	}
	items := out["items"].(map[string]any)
	if items["type"] != "INTEGER" {
		t.Fatalf("expected items nullable union collapsed, got %v", items["type"])
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	in := map[string]any{
		"type": []any{"string", "null"},
		"properties": map[string]any{
			"a": map[string]any{"type": "number", "exclusiveMinimum": 0},
		},
	}
	first := Sanitize(in)
	second := Sanitize(first)
	firstMap := first.(map[string]any)
	secondMap := second.(map[string]any)
	if firstMap["type"] != secondMap["type"] {
		t.Fatalf("sanitize not idempotent on type: %v vs %v", firstMap["type"], secondMap["type"])
	}
}
