package claude

import (
	"bytes"
	"strings"
	"testing"
)

func TestBuildToolUseRecordsIDToNameMap(t *testing.T) {
	req := map[string]any{
		"messages": []any{
			map[string]any{
				"role": "assistant",
				"content": []any{
					map[string]any{"type": "tool_use", "id": "call_1", "name": "get_weather", "input": map[string]any{"city": "SF"}},
				},
			},
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "tool_result", "tool_use_id": "call_1", "content": "72F"},
				},
			},
		},
	}

	result, err := Build(req, "gemini-3-pro")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ToolIDToName["call_1"] != "get_weather" {
		t.Fatalf("expected tool id mapped to get_weather, got %v", result.ToolIDToName)
	}

	contents := result.Request["contents"].([]any)
	userTurn := contents[1].(map[string]any)
	parts := userTurn["parts"].([]any)
	fr := parts[0].(map[string]any)["functionResponse"].(map[string]any)
	if fr["name"] != "get_weather" {
		t.Fatalf("expected functionResponse name resolved via id map, got %v", fr["name"])
	}
}

func TestBuildThinkingPrefillOnLastAssistantTurn(t *testing.T) {
	req := map[string]any{
		"thinking": map[string]any{"type": "enabled"},
		"messages": []any{
			map[string]any{"role": "user", "content": "hi"},
			map[string]any{"role": "assistant", "content": "hello"},
		},
	}
	result, err := Build(req, "gemini-3-pro")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	contents := result.Request["contents"].([]any)
	last := contents[len(contents)-1].(map[string]any)
	parts := last["parts"].([]any)
	first := parts[0].(map[string]any)
	if thought, _ := first["thought"].(bool); !thought {
		t.Fatalf("expected synthetic thought prefill on last assistant turn, got %v", parts)
	}
}

func TestBuildWebSearchRoutesToGoogleSearch(t *testing.T) {
	req := map[string]any{
		"messages": []any{map[string]any{"role": "user", "content": "search something"}},
		"tools":    []any{map[string]any{"name": "web_search"}},
	}
	result, err := Build(req, "gemini-3-pro")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.WebSearch {
		t.Fatalf("expected web search detected")
	}
	if EffectiveModel(result.WebSearch, "gemini-3-pro") != "gemini-2.5-flash" {
		t.Fatalf("expected web search model override")
	}
	tools := result.Request["tools"].([]any)
	gs := tools[0].(map[string]any)["googleSearch"]
	if gs == nil {
		t.Fatalf("expected googleSearch tool entry")
	}
}

func TestGenerationConfigMaxOutputTokensAlways64000(t *testing.T) {
	req := map[string]any{"messages": []any{map[string]any{"role": "user", "content": "hi"}}, "max_tokens": 10}
	result, err := Build(req, "gemini-3-pro")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gc := result.Request["generationConfig"].(map[string]any)
	if gc["maxOutputTokens"] != 64000 {
		t.Fatalf("expected pinned maxOutputTokens, got %v", gc["maxOutputTokens"])
	}
}

func extractEventTypes(t *testing.T, raw string) []string {
	t.Helper()
	var events []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
	}
	return events
}

func TestStreamWellFormedSequenceWithTextAndToolUse(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTranslator(&buf)

	if err := tr.Start("gemini-3-pro", 5); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tr.HandleParts([]any{map[string]any{"text": "Let me check."}}); err != nil {
		t.Fatalf("handle text: %v", err)
	}
	if err := tr.HandleParts([]any{map[string]any{"functionCall": map[string]any{"name": "get_weather", "args": map[string]any{"city": "SF"}, "id": "t1"}}}); err != nil {
		t.Fatalf("handle tool call: %v", err)
	}
	if err := tr.Finish("STOP", 12); err != nil {
		t.Fatalf("finish: %v", err)
	}

	events := extractEventTypes(t, buf.String())
	want := []string{"message_start", "content_block_start", "content_block_delta", "content_block_stop", "content_block_start", "content_block_delta", "content_block_stop", "message_delta", "message_stop"}
	if len(events) != len(want) {
		t.Fatalf("expected %v events, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d: expected %s got %s (full: %v)", i, want[i], events[i], events)
		}
	}

	stopCount := 0
	for _, e := range events {
		if e == "message_stop" {
			stopCount++
		}
	}
	if stopCount != 1 {
		t.Fatalf("expected exactly one message_stop, got %d", stopCount)
	}
}

func TestStreamFinishEmitsMessageStopExactlyOnceEvenIfCalledTwice(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTranslator(&buf)
	_ = tr.Start("m", 0)
	_ = tr.Finish("STOP", 0)
	_ = tr.Finish("STOP", 0)

	events := extractEventTypes(t, buf.String())
	count := 0
	for _, e := range events {
		if e == "message_stop" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one message_stop across repeated Finish calls, got %d", count)
	}
}
