package openai

import "encoding/json"

// IsResponsesShape auto-detects the Responses/Codex request shape
// (spec.md §4.4.1): it carries `instructions` and/or `input` instead of
// `messages`.
func IsResponsesShape(req map[string]any) bool {
	if _, hasMessages := req["messages"]; hasMessages {
		return false
	}
	_, hasInstructions := req["instructions"]
	_, hasInput := req["input"]
	return hasInstructions || hasInput
}

// NormalizeToMessages reshapes a Responses/Codex-shape body into the
// Chat-Completions `messages` shape, grounded on
// internal/proxy/handlers/responses.go's ConvertResponsesToChatCompletion
// family, extended to the full item-type list the spec names.
func NormalizeToMessages(req map[string]any) []any {
	var messages []any

	if instructions, ok := req["instructions"].(string); ok && instructions != "" {
		messages = append(messages, map[string]any{"role": "system", "content": instructions})
	}

	switch input := req["input"].(type) {
	case string:
		if input != "" {
			messages = append(messages, map[string]any{"role": "user", "content": input})
		}
	case []any:
		messages = append(messages, normalizeInputItems(input)...)
	}

	return messages
}

// normalizeInputItems implements the call_id→name two-pass resolution
// spec.md §4.4.1 requires for function_call_output/custom_tool_call_output.
func normalizeInputItems(items []any) []any {
	callNameByID := make(map[string]string)
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if itemType, _ := item["type"].(string); itemType == "function_call" {
			if id, ok := item["call_id"].(string); ok {
				if name, ok := item["name"].(string); ok {
					callNameByID[id] = name
				}
			}
		}
	}

	messages := make([]any, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		itemType, _ := item["type"].(string)
		switch itemType {
		case "message":
			messages = append(messages, normalizeMessageItem(item))
		case "function_call":
			messages = append(messages, map[string]any{
				"role": "assistant",
				"tool_calls": []any{map[string]any{
					"id":   item["call_id"],
					"type": "function",
					"function": map[string]any{
						"name":      item["name"],
						"arguments": item["arguments"],
					},
				}},
			})
		case "local_shell_call":
			messages = append(messages, map[string]any{
				"role": "assistant",
				"tool_calls": []any{map[string]any{
					"id":   item["call_id"],
					"type": "function",
					"function": map[string]any{
						"name":      "shell",
						"arguments": forceStringArrayCommand(item["action"]),
					},
				}},
			})
		case "web_search_call":
			messages = append(messages, map[string]any{
				"role": "assistant",
				"tool_calls": []any{map[string]any{
					"id":   item["id"],
					"type": "function",
					"function": map[string]any{
						"name":      "google_search",
						"arguments": "{}",
					},
				}},
			})
		case "function_call_output", "custom_tool_call_output":
			callID, _ := item["call_id"].(string)
			messages = append(messages, map[string]any{
				"role":         "tool",
				"tool_call_id": callID,
				"name":         callNameByID[callID],
				"content":      item["output"],
			})
		}
	}
	return messages
}

func normalizeMessageItem(item map[string]any) map[string]any {
	role, _ := item["role"].(string)
	content := item["content"]

	parts, ok := content.([]any)
	if !ok {
		return map[string]any{"role": role, "content": content}
	}

	out := make([]any, 0, len(parts))
	for _, raw := range parts {
		part, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		partType, _ := part["type"].(string)
		switch partType {
		case "input_text", "output_text", "text":
			out = append(out, map[string]any{"type": "text", "text": part["text"]})
		case "input_image":
			out = append(out, map[string]any{"type": "image_url", "image_url": map[string]any{"url": part["image_url"]}})
		case "image_url":
			out = append(out, map[string]any{"type": "image_url", "image_url": part["image_url"]})
		}
	}
	return map[string]any{"role": role, "content": out}
}

func forceStringArrayCommand(action any) string {
	m, ok := action.(map[string]any)
	if !ok {
		return "[]"
	}
	cmd, ok := m["command"].([]any)
	if !ok {
		return "[]"
	}
	out := make([]string, 0, len(cmd))
	for _, c := range cmd {
		if s, ok := c.(string); ok {
			out = append(out, s)
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "[]"
	}
	return string(data)
}
