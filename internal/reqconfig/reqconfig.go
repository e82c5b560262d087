// Package reqconfig resolves the per-request classification (§4.3) that
// downstream components (account pool, protocol mappers) key their
// behaviour on.
package reqconfig

import "strings"

// RequestType classifies an incoming request for quota/retry bookkeeping.
type RequestType string

const (
	Agent     RequestType = "agent"
	WebSearch RequestType = "web_search"
	ImageGen  RequestType = "image_gen"
)

// ImageConfig carries the parsed aspect ratio / size for image generation.
type ImageConfig struct {
	AspectRatio string
	ImageSize   string
}

// Config is the immutable, per-request decision produced by Resolve.
type Config struct {
	RequestType       RequestType
	InjectGoogleSearch bool
	FinalModel        string
	Image             *ImageConfig
}

var aspectSuffixes = map[string]string{
	"-16x9": "16:9",
	"-9x16": "9:16",
	"-4x3":  "4:3",
	"-3x4":  "3:4",
}

// highQualityAllowlist is the set of model-name prefixes that get
// web-search grounding turned on automatically (spec.md §9 Open Question
// iii — a deliberate, documented product decision, not a bug).
var highQualityAllowlist = []string{
	"gemini-2.5-flash",
	"gemini-1.5-pro",
}

// Resolve implements the §4.3 decision tree top-down.
func Resolve(originalModel, mappedModel string) Config {
	if strings.HasPrefix(mappedModel, "gemini-3-pro-image") {
		return resolveImageGen(originalModel)
	}

	if strings.HasSuffix(originalModel, "-online") {
		return Config{
			RequestType:        WebSearch,
			InjectGoogleSearch: true,
			FinalModel:         strings.TrimSuffix(mappedModel, "-online"),
		}
	}

	if isHighQuality(mappedModel) {
		return Config{
			RequestType:        WebSearch,
			InjectGoogleSearch: true,
			FinalModel:         strings.TrimSuffix(mappedModel, "-online"),
		}
	}

	return Config{
		RequestType:        Agent,
		InjectGoogleSearch: false,
		FinalModel:         mappedModel,
	}
}

func resolveImageGen(originalModel string) Config {
	img := &ImageConfig{AspectRatio: "1:1"}
	for suffix, ratio := range aspectSuffixes {
		if strings.Contains(originalModel, suffix) {
			img.AspectRatio = ratio
			break
		}
	}
	if strings.Contains(originalModel, "-4k") || strings.Contains(originalModel, "-hd") {
		img.ImageSize = "4K"
	}
	return Config{
		RequestType:        ImageGen,
		InjectGoogleSearch: false,
		FinalModel:         "gemini-3-pro-image",
		Image:              img,
	}
}

func isHighQuality(mappedModel string) bool {
	for _, prefix := range highQualityAllowlist {
		if strings.HasPrefix(mappedModel, prefix) {
			return true
		}
	}
	return false
}

// InjectGoogleSearchTool idempotently inserts a {googleSearch:{}} entry
// into a tools array built from upstream-shaped tool maps.
func InjectGoogleSearchTool(tools []any) []any {
	for _, t := range tools {
		if m, ok := t.(map[string]any); ok {
			if _, has := m["googleSearch"]; has {
				return tools
			}
		}
	}
	return append(tools, map[string]any{"googleSearch": map[string]any{}})
}
