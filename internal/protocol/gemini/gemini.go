// Package gemini implements the Gemini generateContent/streamGenerateContent
// thin-wrap passthrough (spec.md §4.4.3): the client's request body is
// byte-level patched (project/model/requestId injected, nothing else
// reshaped) and the upstream reply is unwrapped/passed through verbatim,
// grounded on internal/upstream/gemini/client_payload.go's sjson-based
// byte-patching style.
package gemini

import (
	"bufio"
	"io"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// BuildRequest patches a client-supplied generateContent body with the
// fields the upstream envelope requires, leaving every other field
// byte-identical to what the client sent.
func BuildRequest(body []byte, project, model, requestID string) ([]byte, error) {
	out := body
	var err error

	if out, err = sjson.SetBytes(out, "project", project); err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "model", model); err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "requestId", requestID); err != nil {
		return nil, err
	}
	return out, nil
}

// UnwrapResponse strips the `{"response": {...}}` envelope if present,
// passing an already-bare body through unchanged.
func UnwrapResponse(body []byte) []byte {
	inner := gjson.GetBytes(body, "response")
	if inner.Exists() && inner.IsObject() {
		return []byte(inner.Raw)
	}
	return body
}

// CopyStream forwards an upstream SSE byte stream to w line by line,
// unwrapping each `data: {"response":...}` line's envelope and passing
// `data: [DONE]` and `:`-prefixed heartbeat/comment lines through
// untouched, per spec.md §4.4.4.
func CopyStream(w io.Writer, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, ":"):
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return err
			}
		case strings.HasPrefix(line, "data: "):
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				if _, err := io.WriteString(w, "data: [DONE]\n"); err != nil {
					return err
				}
				continue
			}
			unwrapped := UnwrapResponse([]byte(payload))
			if _, err := w.Write(append(append([]byte("data: "), unwrapped...), '\n')); err != nil {
				return err
			}
		default:
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

// SplitModelFromPath extracts the model segment from a
// `models/{model}:generateContent`-shaped URL path suffix.
func SplitModelFromPath(pathSuffix string) string {
	name := strings.TrimPrefix(pathSuffix, "models/")
	if idx := strings.Index(name, ":"); idx != -1 {
		name = name[:idx]
	}
	return name
}

// IsStreamingMethod reports whether the trailing `:method` segment of the
// request path selects the streaming variant.
func IsStreamingMethod(pathSuffix string) bool {
	return strings.HasSuffix(pathSuffix, ":streamGenerateContent")
}
