package openai

import (
	"bytes"
	"strings"
	"testing"
)

func TestIsResponsesShapeDetectsInputAndInstructions(t *testing.T) {
	if !IsResponsesShape(map[string]any{"input": "hi"}) {
		t.Fatalf("expected input-only body to be detected as Responses shape")
	}
	if IsResponsesShape(map[string]any{"messages": []any{}}) {
		t.Fatalf("expected messages-shape body to not be Responses shape")
	}
}

func TestNormalizeToMessagesResolvesFunctionCallOutputName(t *testing.T) {
	req := map[string]any{
		"instructions": "be terse",
		"input": []any{
			map[string]any{"type": "function_call", "call_id": "c1", "name": "get_weather", "arguments": "{}"},
			map[string]any{"type": "function_call_output", "call_id": "c1", "output": "72F"},
		},
	}
	messages := NormalizeToMessages(req)
	if len(messages) != 3 {
		t.Fatalf("expected system + function_call + function_call_output, got %d", len(messages))
	}
	toolMsg := messages[2].(map[string]any)
	if toolMsg["name"] != "get_weather" {
		t.Fatalf("expected resolved tool name, got %v", toolMsg["name"])
	}
}

func TestBuildEmptyAssistantMessageGetsPlaceholderPart(t *testing.T) {
	req := map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "hi"},
			map[string]any{"role": "assistant", "content": ""},
		},
	}
	result, err := Build(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	contents := result.Request["contents"].([]any)
	last := contents[len(contents)-1].(map[string]any)
	parts := last["parts"].([]any)
	if len(parts) != 1 {
		t.Fatalf("expected placeholder part for empty assistant message, got %v", parts)
	}
}

func TestBuildToolCallsRecordIDToNameMap(t *testing.T) {
	req := map[string]any{
		"messages": []any{
			map[string]any{
				"role": "assistant",
				"tool_calls": []any{map[string]any{
					"id":       "call_1",
					"type":     "function",
					"function": map[string]any{"name": "get_weather", "arguments": `{"city":"SF"}`},
				}},
			},
			map[string]any{"role": "tool", "tool_call_id": "call_1", "content": "72F"},
		},
	}
	result, err := Build(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ToolIDToName["call_1"] != "get_weather" {
		t.Fatalf("expected id-to-name map populated, got %v", result.ToolIDToName)
	}
	contents := result.Request["contents"].([]any)
	toolTurn := contents[1].(map[string]any)
	parts := toolTurn["parts"].([]any)
	fr := parts[0].(map[string]any)["functionResponse"].(map[string]any)
	if fr["name"] != "get_weather" {
		t.Fatalf("expected functionResponse name resolved via id map, got %v", fr["name"])
	}
}

func TestToChatCompletionMapsToolCallFinishReason(t *testing.T) {
	candidate := map[string]any{
		"content": map[string]any{
			"parts": []any{map[string]any{"functionCall": map[string]any{"name": "get_weather", "args": map[string]any{}, "id": "call_1"}}},
		},
		"finishReason": "STOP",
	}
	resp := ToChatCompletion("chatcmpl-1", "gemini-3-pro", candidate, nil)
	choice := resp["choices"].([]any)[0].(map[string]any)
	if choice["finish_reason"] != "tool_calls" {
		t.Fatalf("expected tool_calls finish reason, got %v", choice["finish_reason"])
	}
}

func TestStreamTranslatorEmitsDoneExactlyOnce(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTranslator(&buf, "chatcmpl-1", "gemini-3-pro")
	_ = tr.HandleParts([]any{map[string]any{"text": "hi"}})
	_ = tr.Finish("STOP")
	_ = tr.Finish("STOP")

	out := buf.String()
	if strings.Count(out, "[DONE]") != 1 {
		t.Fatalf("expected exactly one [DONE] marker, got: %s", out)
	}
}
