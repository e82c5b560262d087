package claude

import (
	"encoding/json"
	"fmt"
)

// ToUnaryResponse translates one upstream candidate (already unwrapped
// from the `{"response":…}` envelope) into an Anthropic Messages reply.
func ToUnaryResponse(model string, candidate map[string]any, usage map[string]any) map[string]any {
	content, _ := candidate["content"].(map[string]any)
	parts, _ := content["parts"].([]any)

	blocks := make([]any, 0, len(parts))
	toolSeq := 0
	sawToolUse := false
	for _, raw := range parts {
		part, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if fc, ok := part["functionCall"].(map[string]any); ok {
			sawToolUse = true
			toolSeq++
			id, _ := fc["id"].(string)
			if id == "" {
				id = fmt.Sprintf("toolu_%d", toolSeq)
			}
			blocks = append(blocks, map[string]any{
				"type":  "tool_use",
				"id":    id,
				"name":  fc["name"],
				"input": fc["args"],
			})
			continue
		}
		text, _ := part["text"].(string)
		thought, _ := part["thought"].(bool)
		if thought {
			blocks = append(blocks, map[string]any{"type": "thinking", "thinking": text})
			continue
		}
		blocks = append(blocks, map[string]any{"type": "text", "text": text})
	}

	finishReason, _ := candidate["finishReason"].(string)
	stopReason := stopReasonFor(finishReason)
	if sawToolUse {
		stopReason = "tool_use"
	}

	resp := map[string]any{
		"id":          "msg_" + model,
		"type":        "message",
		"role":        "assistant",
		"model":       model,
		"content":     blocks,
		"stop_reason": stopReason,
	}
	if usage != nil {
		resp["usage"] = translateUsage(usage)
	}
	return resp
}

func translateUsage(usage map[string]any) map[string]any {
	in, _ := usage["promptTokenCount"]
	out, _ := usage["candidatesTokenCount"]
	return map[string]any{"input_tokens": in, "output_tokens": out}
}

// MarshalSSEError builds the synthetic error event the dispatcher emits
// when a stream error occurs after the peek phase (spec.md §7).
func MarshalSSEError(message string) []byte {
	payload, _ := json.Marshal(map[string]any{"error": message})
	return payload
}
