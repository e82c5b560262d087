package gemini

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestBuildRequestInjectsEnvelopeFieldsOnly(t *testing.T) {
	body := []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`)
	out, err := BuildRequest(body, "proj-1", "gemini-3-pro", "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gjson.GetBytes(out, "project").String() != "proj-1" {
		t.Fatalf("expected project injected")
	}
	if gjson.GetBytes(out, "model").String() != "gemini-3-pro" {
		t.Fatalf("expected model injected")
	}
	if gjson.GetBytes(out, "requestId").String() != "req-1" {
		t.Fatalf("expected requestId injected")
	}
	if gjson.GetBytes(out, "contents.0.parts.0.text").String() != "hi" {
		t.Fatalf("expected original contents left untouched, got %s", out)
	}
}

func TestUnwrapResponseToleratesBothShapes(t *testing.T) {
	wrapped := []byte(`{"response":{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}}`)
	bare := []byte(`{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}`)

	if got := UnwrapResponse(wrapped); gjson.GetBytes(got, "candidates.0.content.parts.0.text").String() != "hi" {
		t.Fatalf("expected unwrapped candidates, got %s", got)
	}
	if got := UnwrapResponse(bare); string(got) != string(bare) {
		t.Fatalf("expected bare body passed through unchanged")
	}
}

func TestCopyStreamPreservesHeartbeatsAndDone(t *testing.T) {
	input := strings.Join([]string{
		`: heartbeat`,
		`data: {"response":{"candidates":[{"content":{"parts":[{"text":"a"}]}}]}}`,
		`data: [DONE]`,
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := CopyStream(&out, strings.NewReader(input)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := out.String()
	if !strings.Contains(result, ": heartbeat") {
		t.Fatalf("expected heartbeat line passed through, got %s", result)
	}
	if !strings.Contains(result, "data: [DONE]") {
		t.Fatalf("expected [DONE] marker passed through, got %s", result)
	}
	if strings.Contains(result, `"response"`) {
		t.Fatalf("expected response envelope unwrapped, got %s", result)
	}
}

func TestSplitModelFromPathAndStreamingMethodDetection(t *testing.T) {
	if model := SplitModelFromPath("models/gemini-3-pro:generateContent"); model != "gemini-3-pro" {
		t.Fatalf("expected gemini-3-pro, got %s", model)
	}
	if !IsStreamingMethod("models/gemini-3-pro:streamGenerateContent") {
		t.Fatalf("expected streaming method detected")
	}
	if IsStreamingMethod("models/gemini-3-pro:generateContent") {
		t.Fatalf("expected non-streaming method not flagged as streaming")
	}
}
