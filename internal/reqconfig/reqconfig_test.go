package reqconfig

import "testing"

func TestResolveImageGenParsesAspectAndSize(t *testing.T) {
	cfg := Resolve("gemini-3-pro-image-16x9-4k", "gemini-3-pro-image-16x9-4k")
	if cfg.RequestType != ImageGen {
		t.Fatalf("expected image_gen, got %s", cfg.RequestType)
	}
	if cfg.Image == nil || cfg.Image.AspectRatio != "16:9" || cfg.Image.ImageSize != "4K" {
		t.Fatalf("unexpected image config: %+v", cfg.Image)
	}
	if cfg.FinalModel != "gemini-3-pro-image" {
		t.Fatalf("expected stripped final model, got %s", cfg.FinalModel)
	}
}

func TestResolveImageGenDefaultsSquareAspect(t *testing.T) {
	cfg := Resolve("gemini-3-pro-image", "gemini-3-pro-image")
	if cfg.Image.AspectRatio != "1:1" {
		t.Fatalf("expected default 1:1 aspect, got %s", cfg.Image.AspectRatio)
	}
}

func TestResolveOnlineSuffix(t *testing.T) {
	cfg := Resolve("gpt-4o-online", "gemini-2.0-flash-online")
	if cfg.RequestType != WebSearch || !cfg.InjectGoogleSearch {
		t.Fatalf("expected web_search with google search injection, got %+v", cfg)
	}
	if cfg.FinalModel != "gemini-2.0-flash" {
		t.Fatalf("expected -online suffix trimmed, got %s", cfg.FinalModel)
	}
}

func TestResolveHighQualityAllowlist(t *testing.T) {
	cfg := Resolve("my-model", "gemini-2.5-flash-001")
	if cfg.RequestType != WebSearch || !cfg.InjectGoogleSearch {
		t.Fatalf("expected allowlisted high-quality model to auto-ground, got %+v", cfg)
	}
}

func TestResolveDefault(t *testing.T) {
	cfg := Resolve("claude-3-sonnet", "gemini-3-pro")
	if cfg.RequestType != Agent || cfg.InjectGoogleSearch {
		t.Fatalf("expected default agent classification, got %+v", cfg)
	}
}

func TestInjectGoogleSearchToolIdempotent(t *testing.T) {
	tools := []any{map[string]any{"functionDeclarations": []any{}}}
	tools = InjectGoogleSearchTool(tools)
	tools = InjectGoogleSearchTool(tools)
	count := 0
	for _, tool := range tools {
		if m, ok := tool.(map[string]any); ok {
			if _, has := m["googleSearch"]; has {
				count++
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one googleSearch entry, got %d", count)
	}
}
