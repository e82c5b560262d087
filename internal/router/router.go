// Package router implements the Model Router (spec.md §4.2): resolving a
// client-facing model name to an upstream model name via three ordered
// mappings.
package router

import "sync"

// Mapping is a read-only model-name lookup, consulted in declared order.
type Mapping interface {
	Lookup(model string) (string, bool)
}

// StaticMapping is a fixed, in-memory alias table (used for the
// OpenAI-compat and Anthropic-compat tiers).
type StaticMapping map[string]string

func (m StaticMapping) Lookup(model string) (string, bool) {
	target, ok := m[model]
	return target, ok
}

// Router consults its mappings in order; first hit wins; on miss it
// returns the original model unchanged.
type Router struct {
	mu       sync.RWMutex
	mappings []Mapping
}

// New builds a Router over mappings in priority order (custom first).
func New(mappings ...Mapping) *Router {
	return &Router{mappings: mappings}
}

// Resolve implements `resolve(original_model, [custom, openai, anthropic])`.
func (r *Router) Resolve(originalModel string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.mappings {
		if target, ok := m.Lookup(originalModel); ok {
			return target
		}
	}
	return originalModel
}

// SetMappings swaps the mapping list atomically (config hot-reload).
func (r *Router) SetMappings(mappings ...Mapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings = mappings
}

// DefaultOpenAICompat is the static OpenAI model-alias tier.
func DefaultOpenAICompat() StaticMapping {
	return StaticMapping{
		"gpt-4o":       "gemini-3-pro",
		"gpt-4o-mini":  "gemini-2.5-flash",
		"gpt-4-turbo":  "gemini-3-pro",
		"gpt-4":        "gemini-3-pro",
		"gpt-3.5-turbo": "gemini-2.5-flash",
		"o1":           "gemini-3-pro",
		"o3-mini":      "gemini-2.5-flash",
	}
}

// DefaultAnthropicCompat is the static Claude model-alias tier.
func DefaultAnthropicCompat() StaticMapping {
	return StaticMapping{
		"claude-3-5-sonnet-latest": "gemini-3-pro",
		"claude-3-5-sonnet":        "gemini-3-pro",
		"claude-3-opus":            "gemini-3-pro",
		"claude-3-haiku":           "gemini-2.5-flash",
		"claude-3-sonnet":          "gemini-3-pro",
	}
}
