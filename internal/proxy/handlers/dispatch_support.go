package handlers

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ccrelay/nexus/internal/db/models"
)

func decodeJSON(raw []byte) (map[string]any, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// firstCandidateAndUsage unwraps the upstream `{"response":{candidates,
// usageMetadata}}` envelope (or its bare equivalent) into the first
// candidate map and the usage map, both as returned to protocol mappers.
func firstCandidateAndUsage(body map[string]any) (map[string]any, map[string]any) {
	inner := body
	if response, ok := body["response"].(map[string]any); ok {
		inner = response
	}
	candidates, _ := inner["candidates"].([]any)
	if len(candidates) == 0 {
		return nil, nil
	}
	candidate, _ := candidates[0].(map[string]any)
	usage, _ := inner["usageMetadata"].(map[string]any)
	return candidate, usage
}

// forEachUpstreamChunk scans an SSE byte stream line by line, decoding
// each `data: {...}` payload (skipping heartbeats and `[DONE]`) and
// invoking fn with the parsed JSON object.
func forEachUpstreamChunk(body io.Reader, fn func(map[string]any)) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" || payload == ":" {
			continue
		}
		chunk, err := decodeJSON([]byte(payload))
		if err != nil {
			continue
		}
		fn(chunk)
	}
}

func requestLogFor(r *http.Request, provider, originalModel, mappedModel, email string, status int, duration time.Duration) models.RequestLog {
	return models.RequestLog{
		Timestamp:    time.Now().UnixMilli(),
		Method:       r.Method,
		URL:          r.URL.Path,
		Status:       status,
		Duration:     duration.Milliseconds(),
		Provider:     provider,
		Model:        originalModel,
		MappedModel:  mappedModel,
		AccountEmail: email,
	}
}
