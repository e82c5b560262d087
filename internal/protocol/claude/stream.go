package claude

import (
	"encoding/json"
	"fmt"
	"io"
)

type blockKind string

const (
	blockNone     blockKind = "none"
	blockText     blockKind = "text"
	blockThinking blockKind = "thinking"
	blockToolUse  blockKind = "tool_use"
)

// StreamTranslator implements the spec.md §3 StreamingState machine: it
// consumes upstream candidate parts (already unwrapped from the
// `{"response":…}` envelope) and emits the Anthropic SSE event sequence
// `message_start (content_block_start content_block_delta* content_block_stop)* message_delta? message_stop`,
// guaranteeing exactly one terminal message_stop even under upstream
// truncation.
type StreamTranslator struct {
	w io.Writer

	messageStartSent bool
	messageStopSent  bool
	blockIndex       int
	currentKind      blockKind
	toolCallSeq      int
	sawToolUse       bool
}

// NewStreamTranslator builds a translator writing SSE events to w.
func NewStreamTranslator(w io.Writer) *StreamTranslator {
	return &StreamTranslator{w: w, blockIndex: -1, currentKind: blockNone}
}

func (s *StreamTranslator) emit(eventType string, payload map[string]any) error {
	payload["type"] = eventType
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, data)
	return err
}

// Start emits message_start exactly once.
func (s *StreamTranslator) Start(model string, inputTokens int) error {
	if s.messageStartSent {
		return nil
	}
	s.messageStartSent = true
	return s.emit("message_start", map[string]any{
		"message": map[string]any{
			"id":      "msg_" + model,
			"type":    "message",
			"role":    "assistant",
			"content": []any{},
			"model":   model,
			"usage":   map[string]any{"input_tokens": inputTokens, "output_tokens": 0},
		},
	})
}

// HandleParts processes one upstream chunk's candidate parts.
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
	if fc, ok := part["functionCall"].(map[string]any); ok {
		return s.handleFunctionCall(fc)
	}

	text, hasText := part["text"].(string)
	if !hasText {
		return nil
	}
	thought, _ := part["thought"].(bool)
	kind := blockText
	if thought {
		kind = blockThinking
	}

	if err := s.ensureBlock(kind, func() (map[string]any, error) {
		if kind == blockThinking {
			return map[string]any{"type": "thinking", "thinking": ""}, nil
		}
		return map[string]any{"type": "text", "text": ""}, nil
	}); err != nil {
		return err
	}

	deltaType := "text_delta"
	deltaField := "text"
	if kind == blockThinking {
		deltaType = "thinking_delta"
		deltaField = "thinking"
	}
	return s.emit("content_block_delta", map[string]any{
		"index": s.blockIndex,
		"delta": map[string]any{"type": deltaType, deltaField: text},
	})
}

func (s *StreamTranslator) handleFunctionCall(fc map[string]any) error {
	s.sawToolUse = true
	name, _ := fc["name"].(string)
	args := fc["args"]
	id, _ := fc["id"].(string)
	if id == "" {
		s.toolCallSeq++
		id = fmt.Sprintf("toolu_%d", s.toolCallSeq)
	}

	if err := s.ensureBlock(blockToolUse, func() (map[string]any, error) {
		return map[string]any{"type": "tool_use", "id": id, "name": name, "input": map[string]any{}}, nil
	}); err != nil {
		return err
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return s.emit("content_block_delta", map[string]any{
		"index": s.blockIndex,
		"delta": map[string]any{"type": "input_json_delta", "partial_json": string(argsJSON)},
	})
}

// ensureBlock closes the current block (if any) and opens a new one when
// the content kind changes.
func (s *StreamTranslator) ensureBlock(kind blockKind, newBlock func() (map[string]any, error)) error {
	if s.currentKind == kind {
		return nil
	}
	if s.currentKind != blockNone {
		if err := s.emit("content_block_stop", map[string]any{"index": s.blockIndex}); err != nil {
			return err
		}
	}
	s.blockIndex++
	s.currentKind = kind

	block, err := newBlock()
	if err != nil {
		return err
	}
	return s.emit("content_block_start", map[string]any{"index": s.blockIndex, "content_block": block})
}

// Finish closes any open block, emits message_delta with the stop reason
// when known, and emits the terminal message_stop exactly once.
func (s *StreamTranslator) Finish(finishReason string, outputTokens int) error {
	if s.currentKind != blockNone {
		if err := s.emit("content_block_stop", map[string]any{"index": s.blockIndex}); err != nil {
			return err
		}
		s.currentKind = blockNone
	}

	if finishReason != "" {
		stopReason := stopReasonFor(finishReason)
		if s.sawToolUse {
			stopReason = "tool_use"
		}
		if err := s.emit("message_delta", map[string]any{
			"delta": map[string]any{"stop_reason": stopReason},
			"usage": map[string]any{"output_tokens": outputTokens},
		}); err != nil {
			return err
		}
	}

	if s.messageStopSent {
		return nil
	}
	s.messageStopSent = true
	return s.emit("message_stop", map[string]any{})
}

func stopReasonFor(finishReason string) string {
	switch finishReason {
	case "MAX_TOKENS":
		return "max_tokens"
	default:
		return "end_turn"
	}
}
