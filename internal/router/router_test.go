package router

import "testing"

func TestResolveFirstHitWins(t *testing.T) {
	custom := StaticMapping{"my-model": "gemini-3-pro-high"}
	openaiCompat := StaticMapping{"my-model": "should-not-win", "gpt-4o": "gemini-3-pro"}
	r := New(custom, openaiCompat)

	if got := r.Resolve("my-model"); got != "gemini-3-pro-high" {
		t.Fatalf("expected custom mapping to win, got %s", got)
	}
	if got := r.Resolve("gpt-4o"); got != "gemini-3-pro" {
		t.Fatalf("expected openai-compat fallback, got %s", got)
	}
}

func TestResolvePassthroughOnMiss(t *testing.T) {
	r := New(StaticMapping{})
	if got := r.Resolve("unknown-model"); got != "unknown-model" {
		t.Fatalf("expected passthrough, got %s", got)
	}
}

func TestSetMappingsSwapsAtomically(t *testing.T) {
	r := New(StaticMapping{"a": "b"})
	if got := r.Resolve("a"); got != "b" {
		t.Fatalf("expected b, got %s", got)
	}
	r.SetMappings(StaticMapping{"a": "c"})
	if got := r.Resolve("a"); got != "c" {
		t.Fatalf("expected swapped mapping c, got %s", got)
	}
}
