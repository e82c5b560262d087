package openai

import (
	"encoding/json"
	"fmt"
	"io"
)

// StreamTranslator emits OpenAI Chat Completions SSE chunks
// (`data: {...}\n\n`, terminated by `data: [DONE]\n\n`), grounded on
// internal/proxy/handlers/openai.go's streaming writer.
type StreamTranslator struct {
	w       io.Writer
	id      string
	model   string
	sentRole bool
	toolSeq int
	doneSent bool
}

// NewStreamTranslator builds a translator writing SSE chunks to w.
func NewStreamTranslator(w io.Writer, id, model string) *StreamTranslator {
	return &StreamTranslator{w: w, id: id, model: model}
}

func (s *StreamTranslator) writeChunk(delta map[string]any, finishReason any) error {
	choice := map[string]any{"index": 0, "delta": delta, "finish_reason": finishReason}
	chunk := map[string]any{
		"id":      s.id,
		"object":  "chat.completion.chunk",
		"model":   s.model,
		"choices": []any{choice},
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(s.w, "data: %s\n\n", data)
	return err
}

// HandleParts emits one chunk per upstream candidate part.
func (s *StreamTranslator) HandleParts(parts []any) error {
	for _, raw := range parts {
		part, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if err := s.handlePart(part); err != nil {
			return err
		}
	}
	return nil
}

func (s *StreamTranslator) handlePart(part map[string]any) error {
	delta := map[string]any{}
	if !s.sentRole {
		delta["role"] = "assistant"
		s.sentRole = true
	}

	if fc, ok := part["functionCall"].(map[string]any); ok {
		s.toolSeq++
		args, _ := json.Marshal(fc["args"])
		id, _ := fc["id"].(string)
		if id == "" {
			id = fmt.Sprintf("call_%d", s.toolSeq)
		}
		delta["tool_calls"] = []any{map[string]any{
			"index": s.toolSeq - 1,
			"id":    id,
			"type":  "function",
			"function": map[string]any{
				"name":      fc["name"],
				"arguments": string(args),
			},
		}}
		return s.writeChunk(delta, nil)
	}

	if text, ok := part["text"].(string); ok {
		delta["content"] = text
		return s.writeChunk(delta, nil)
	}
	return nil
}

// Finish emits the terminal finish_reason chunk followed by `[DONE]`,
// idempotently.
func (s *StreamTranslator) Finish(finishReason string) error {
	if s.doneSent {
		return nil
	}
	s.doneSent = true

	reason := "stop"
	switch finishReason {
	case "MAX_TOKENS":
		reason = "length"
	}
	if s.toolSeq > 0 {
		reason = "tool_calls"
	}

	if err := s.writeChunk(map[string]any{}, reason); err != nil {
		return err
	}
	_, err := fmt.Fprint(s.w, "data: [DONE]\n\n")
	return err
}
