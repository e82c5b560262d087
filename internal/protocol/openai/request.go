// Package openai implements the OpenAI Chat Completions and
// Responses/Codex protocol mappers (spec.md §4.4.1), grounded on
// internal/proxy/mappers/openai.go, internal/proxy/handlers/openai.go and
// internal/proxy/handlers/responses.go's ConvertResponsesToChatCompletion
// family.
package openai

import (
	"github.com/ccrelay/nexus/internal/schema"
)

// BuildResult mirrors claude.BuildResult: the upstream request fragment
// plus the tool_call_id→name map recorded while walking tool messages,
// needed to resolve bare `role: tool` replies back to a functionResponse
// name.
type BuildResult struct {
	Request      map[string]any
	ToolIDToName map[string]string
}

// Build translates a decoded OpenAI request body (already reshaped to
// `messages` form by NormalizeToMessages when it arrived in
// Responses/Codex shape) into the upstream request fragment.
func Build(req map[string]any) (*BuildResult, error) {
	messages, _ := req["messages"].([]any)
	if IsResponsesShape(req) {
		messages = NormalizeToMessages(req)
	}

	toolIDToName := make(map[string]string)
	contents, systemInstruction := buildContents(messages, toolIDToName)

	upstream := map[string]any{"contents": contents}
	if systemInstruction != nil {
		upstream["systemInstruction"] = systemInstruction
	}
	if tools := buildTools(req); tools != nil {
		upstream["tools"] = tools
	}
	upstream["generationConfig"] = buildGenerationConfig(req)

	return &BuildResult{Request: upstream, ToolIDToName: toolIDToName}, nil
}

// buildContents walks the Chat-Completions message list. An empty
// assistant message (spec.md §4.4.1's placeholder-injection rule) is
// rendered as a single empty text part rather than dropped, since an
// empty `parts` array is rejected upstream.
func buildContents(messages []any, toolIDToName map[string]string) ([]any, map[string]any) {
	var systemInstruction map[string]any
	contents := make([]any, 0, len(messages))

	for _, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		role, _ := msg["role"].(string)

		if role == "system" || role == "developer" {
			systemInstruction = map[string]any{
				"role":  "user",
				"parts": []any{map[string]any{"text": contentText(msg["content"])}},
			}
			continue
		}

		if role == "tool" {
			callID, _ := msg["tool_call_id"].(string)
			name := toolIDToName[callID]
			if name == "" {
				if n, ok := msg["name"].(string); ok {
					name = n
				} else {
					name = callID
				}
			}
			contents = append(contents, map[string]any{
				"role": "user",
				"parts": []any{map[string]any{"functionResponse": map[string]any{
					"name":     name,
					"response": map[string]any{"result": msg["content"]},
					"id":       callID,
				}}},
			})
			continue
		}

		parts := buildParts(msg, toolIDToName)
		if len(parts) == 0 {
			parts = []any{map[string]any{"text": ""}}
		}
		contents = append(contents, map[string]any{
			"role":  mapRole(role),
			"parts": parts,
		})
	}
	return contents, systemInstruction
}

func mapRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return "user"
}

func contentText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var text string
		for _, raw := range v {
			if part, ok := raw.(map[string]any); ok {
				if t, ok := part["text"].(string); ok {
					text += t
				}
			}
		}
		return text
	default:
		return ""
	}
}

func buildParts(msg map[string]any, toolIDToName map[string]string) []any {
	var parts []any

	switch content := msg["content"].(type) {
	case string:
		if content != "" {
			parts = append(parts, map[string]any{"text": content})
		}
	case []any:
		for _, raw := range content {
			block, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			blockType, _ := block["type"].(string)
			switch blockType {
			case "text":
				parts = append(parts, map[string]any{"text": block["text"]})
			case "image_url":
				if img, ok := block["image_url"].(map[string]any); ok {
					parts = append(parts, imagePartFromURL(img["url"]))
				}
			}
		}
	}

	if toolCalls, ok := msg["tool_calls"].([]any); ok {
		for _, raw := range toolCalls {
			tc, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			fn, _ := tc["function"].(map[string]any)
			id, _ := tc["id"].(string)
			name, _ := fn["name"].(string)
			toolIDToName[id] = name
			parts = append(parts, map[string]any{"functionCall": map[string]any{
				"name": name,
				"args": fn["arguments"],
				"id":   id,
			}})
		}
	}

	return parts
}

// imagePartFromURL handles both `data:` inline images and plain http(s)
// URLs; the upstream envelope only accepts inlineData, so remote URLs are
// passed through as a fileData reference and left for the caller to have
// already resolved (spec.md does not define image fetching inside the
// mapper itself).
func imagePartFromURL(url any) map[string]any {
	u, _ := url.(string)
	return map[string]any{"fileData": map[string]any{"fileUri": u}}
}

func buildTools(req map[string]any) []any {
	tools, _ := req["tools"].([]any)
	if len(tools) == 0 {
		return nil
	}

	declarations := make([]any, 0, len(tools))
	for _, raw := range tools {
		t, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		fn, _ := t["function"].(map[string]any)
		if fn == nil {
			continue
		}
		decl := map[string]any{"name": fn["name"]}
		if desc, ok := fn["description"]; ok {
			decl["description"] = desc
		}
		if params, ok := fn["parameters"].(map[string]any); ok {
			decl["parameters"] = schema.Sanitize(params)
		}
		declarations = append(declarations, decl)
	}
	if len(declarations) == 0 {
		return nil
	}
	return []any{map[string]any{"functionDeclarations": declarations}}
}

func buildGenerationConfig(req map[string]any) map[string]any {
	cfg := map[string]any{"maxOutputTokens": 64000}
	if v, ok := req["temperature"]; ok {
		cfg["temperature"] = v
	}
	if v, ok := req["top_p"]; ok {
		cfg["topP"] = v
	}
	return cfg
}
