package openai

import "fmt"

// ToChatCompletion translates one upstream candidate (already unwrapped
// from the `{"response":…}` envelope) into an OpenAI Chat Completions
// reply, grounded on internal/proxy/handlers/openai.go's unary response
// builder.
func ToChatCompletion(id, model string, candidate map[string]any, usage map[string]any) map[string]any {
	message, finishReason := translateCandidate(candidate)

	choice := map[string]any{
		"index":         0,
		"message":       message,
		"finish_reason": finishReason,
	}

	resp := map[string]any{
		"id":      id,
		"object":  "chat.completion",
		"model":   model,
		"choices": []any{choice},
	}
	if usage != nil {
		resp["usage"] = translateUsage(usage)
	}
	return resp
}

func translateCandidate(candidate map[string]any) (map[string]any, string) {
	content, _ := candidate["content"].(map[string]any)
	parts, _ := content["parts"].([]any)

	var text string
	var toolCalls []any
	toolSeq := 0
	for _, raw := range parts {
		part, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if fc, ok := part["functionCall"].(map[string]any); ok {
			toolSeq++
			id, _ := fc["id"].(string)
			if id == "" {
				id = fmt.Sprintf("call_%d", toolSeq)
			}
			toolCalls = append(toolCalls, map[string]any{
				"id":   id,
				"type": "function",
				"function": map[string]any{
					"name":      fc["name"],
					"arguments": fc["args"],
				},
			})
			continue
		}
		if t, ok := part["text"].(string); ok {
			text += t
		}
	}

	message := map[string]any{"role": "assistant"}
	if text != "" {
		message["content"] = text
	} else {
		message["content"] = nil
	}

	finishReason := "stop"
	if len(toolCalls) > 0 {
		message["tool_calls"] = toolCalls
		finishReason = "tool_calls"
	}

	rawFinish, _ := candidate["finishReason"].(string)
	if rawFinish == "MAX_TOKENS" {
		finishReason = "length"
	}

	return message, finishReason
}

func translateUsage(usage map[string]any) map[string]any {
	prompt := usage["promptTokenCount"]
	completion := usage["candidatesTokenCount"]
	return map[string]any{
		"prompt_tokens":     prompt,
		"completion_tokens": completion,
	}
}
