// Package claude implements the Claude Messages protocol mapper
// (spec.md §4.4.2), grounded on internal/proxy/handlers/claude.go's raw-
// JSON request builder and internal/proxy/translator/claude.go's two-pass
// tool-id/name resolution.
package claude

import (
	"strings"

	"github.com/ccrelay/nexus/internal/schema"
)

const flashThinkingBudgetCap = 24576

// BuildResult is everything the dispatcher needs after translating one
// Claude request: the upstream `request` body fragment, the tool-id→name
// map built during translation (§3 Tool-ID map), and the session id (if
// any) to copy onto `request.sessionId`.
type BuildResult struct {
	Request     map[string]any
	ToolIDToName map[string]string
	SessionID   string
	WebSearch   bool
}

// Build translates a decoded Claude Messages request body into the
// upstream request fragment.
func Build(claudeReq map[string]any, mappedModel string) (*BuildResult, error) {
	toolIDToName := make(map[string]string)

	contents, err := buildContents(claudeReq, toolIDToName)
	if err != nil {
		return nil, err
	}

	req := map[string]any{"contents": contents}

	if sysInst := buildSystemInstruction(claudeReq); sysInst != nil {
		req["systemInstruction"] = sysInst
	}

	webSearch := toolsContainWebSearch(claudeReq)
	if tools := buildTools(claudeReq, webSearch); tools != nil {
		req["tools"] = tools
	}

	req["generationConfig"] = buildGenerationConfig(claudeReq, mappedModel)

	result := &BuildResult{Request: req, ToolIDToName: toolIDToName, WebSearch: webSearch}

	if meta, ok := claudeReq["metadata"].(map[string]any); ok {
		if userID, ok := meta["user_id"].(string); ok && userID != "" {
			req["sessionId"] = userID
			result.SessionID = userID
		}
	}

	return result, nil
}

func buildSystemInstruction(claudeReq map[string]any) map[string]any {
	system, ok := claudeReq["system"]
	if !ok {
		return nil
	}

	var text string
	switch v := system.(type) {
	case string:
		text = v
	case []any:
		var parts []string
		for _, block := range v {
			if m, ok := block.(map[string]any); ok {
				if t, ok := m["text"].(string); ok {
					parts = append(parts, t)
				}
			}
		}
		text = strings.Join(parts, "\n")
	}
	if text == "" {
		return nil
	}
	return map[string]any{
		"role":  "user",
		"parts": []any{map[string]any{"text": text}},
	}
}

// buildContents translates the message list, recording tool_use ids and
// resolving tool_result names via a two-pass scan: the id→name map is
// populated as tool_use blocks are encountered in document order, which
// for Claude's alternating assistant/user turn structure always precedes
// the tool_result that references it.
func buildContents(claudeReq map[string]any, toolIDToName map[string]string) ([]any, error) {
	messages, _ := claudeReq["messages"].([]any)
	contents := make([]any, 0, len(messages))

	thinkingEnabled := isThinkingEnabled(claudeReq)

	for i, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		role, _ := msg["role"].(string)
		parts, err := buildParts(msg["content"], toolIDToName)
		if err != nil {
			return nil, err
		}

		isLast := i == len(messages)-1
		if thinkingEnabled && isLast && role == "assistant" && !hasThoughtPart(parts) {
			parts = append([]any{map[string]any{"text": "Thinking...", "thought": true}}, parts...)
		}

		contents = append(contents, map[string]any{
			"role":  mapRole(role),
			"parts": parts,
		})
	}
	return contents, nil
}

func mapRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return "user"
}

func hasThoughtPart(parts []any) bool {
	for _, p := range parts {
		if m, ok := p.(map[string]any); ok {
			if thought, ok := m["thought"].(bool); ok && thought {
				return true
			}
		}
	}
	return false
}

func buildParts(content any, toolIDToName map[string]string) ([]any, error) {
	switch v := content.(type) {
	case string:
		return []any{map[string]any{"text": v}}, nil
	case []any:
		parts := make([]any, 0, len(v))
		for _, raw := range v {
			block, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			part, err := buildPart(block, toolIDToName)
			if err != nil {
				return nil, err
			}
			if part != nil {
				parts = append(parts, part)
			}
		}
		return parts, nil
	default:
		return []any{}, nil
	}
}

func buildPart(block map[string]any, toolIDToName map[string]string) (map[string]any, error) {
	blockType, _ := block["type"].(string)
	switch blockType {
	case "text":
		text, _ := block["text"].(string)
		return map[string]any{"text": text}, nil

	case "thinking":
		text, _ := block["thinking"].(string)
		part := map[string]any{"text": text, "thought": true}
		if sig, ok := block["signature"].(string); ok && sig != "" {
			part["thoughtSignature"] = sig
		}
		return part, nil

	case "image":
		source, _ := block["source"].(map[string]any)
		data, _ := source["data"].(string)
		mimeType, _ := source["media_type"].(string)
		return map[string]any{"inlineData": map[string]any{"mimeType": mimeType, "data": data}}, nil

	case "tool_use":
		id, _ := block["id"].(string)
		name, _ := block["name"].(string)
		input, _ := block["input"].(map[string]any)
		toolIDToName[id] = name
		return map[string]any{"functionCall": map[string]any{"name": name, "args": input, "id": id}}, nil

	case "tool_result":
		id, _ := block["tool_use_id"].(string)
		name := toolIDToName[id]
		if name == "" {
			name = id
		}
		return map[string]any{"functionResponse": map[string]any{
			"name":     name,
			"response": map[string]any{"result": block["content"]},
			"id":       id,
		}}, nil

	default:
		return nil, nil
	}
}

func isThinkingEnabled(claudeReq map[string]any) bool {
	thinking, ok := claudeReq["thinking"].(map[string]any)
	if !ok {
		return false
	}
	t, _ := thinking["type"].(string)
	return t == "enabled"
}

func toolsContainWebSearch(claudeReq map[string]any) bool {
	tools, _ := claudeReq["tools"].([]any)
	for _, raw := range tools {
		if t, ok := raw.(map[string]any); ok {
			if name, _ := t["name"].(string); name == "web_search" {
				return true
			}
		}
	}
	return false
}

func buildTools(claudeReq map[string]any, webSearch bool) []any {
	if webSearch {
		return []any{map[string]any{
			"googleSearch": map[string]any{
				"enhancedContent": map[string]any{
					"imageSearch": map[string]any{"maxResultCount": 5},
				},
			},
		}}
	}

	tools, _ := claudeReq["tools"].([]any)
	if len(tools) == 0 {
		return nil
	}

	declarations := make([]any, 0, len(tools))
	for _, raw := range tools {
		t, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := t["name"].(string)
		decl := map[string]any{"name": name}
		if desc, ok := t["description"].(string); ok {
			decl["description"] = desc
		}
		if paramSchema, ok := t["input_schema"].(map[string]any); ok {
			decl["parameters"] = schema.Sanitize(paramSchema)
		}
		declarations = append(declarations, decl)
	}
	return []any{map[string]any{"functionDeclarations": declarations}}
}

func buildGenerationConfig(claudeReq map[string]any, mappedModel string) map[string]any {
	cfg := map[string]any{"maxOutputTokens": 64000}

	if v, ok := claudeReq["temperature"]; ok {
		cfg["temperature"] = v
	}
	if v, ok := claudeReq["top_p"]; ok {
		cfg["topP"] = v
	}
	if v, ok := claudeReq["top_k"]; ok {
		cfg["topK"] = v
	}

	if thinking, ok := claudeReq["thinking"].(map[string]any); ok {
		if budget, ok := thinking["budget_tokens"]; ok {
			cfg["thinkingConfig"] = map[string]any{"budgetTokens": capThinkingBudget(budget, mappedModel)}
		}
	}

	return cfg
}

func capThinkingBudget(budget any, mappedModel string) any {
	n, ok := toInt(budget)
	if !ok {
		return budget
	}
	if strings.Contains(strings.ToLower(mappedModel), "flash") && n > flashThinkingBudgetCap {
		return flashThinkingBudgetCap
	}
	return n
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// EffectiveModel returns the model the request must be routed to,
// honoring the web-search tool-routing override (spec.md §4.4.2).
func EffectiveModel(webSearch bool, mappedModel string) string {
	if webSearch {
		return "gemini-2.5-flash"
	}
	return mappedModel
}
