package upstream

import (
	"regexp"
	"testing"
)

var requestIDPattern = regexp.MustCompile(`^agent-[0-9a-f-]{36}$`)

func TestBuildEnvelopeShapeAndRequestID(t *testing.T) {
	env := BuildEnvelope("proj-1", "gemini-3-pro", "agent", map[string]any{"contents": []any{}})

	wantKeys := []string{"project", "requestId", "model", "userAgent", "requestType", "request"}
	if len(env) != len(wantKeys) {
		t.Fatalf("expected exactly %d keys, got %d: %v", len(wantKeys), len(env), env)
	}
	for _, k := range wantKeys {
		if _, ok := env[k]; !ok {
			t.Fatalf("missing expected key %q", k)
		}
	}

	id, ok := env["requestId"].(string)
	if !ok || !requestIDPattern.MatchString(id) {
		t.Fatalf("requestId %q does not match invariant", id)
	}
}

func TestUnwrapResponseToleratesBothShapes(t *testing.T) {
	wrapped := map[string]any{"response": map[string]any{"candidates": []any{"x"}}}
	if got := UnwrapResponse(wrapped); got["candidates"] == nil {
		t.Fatalf("expected unwrap to find candidates")
	}

	bare := map[string]any{"candidates": []any{"x"}}
	if got := UnwrapResponse(bare); got["candidates"] == nil {
		t.Fatalf("expected bare shape passthrough")
	}
}
