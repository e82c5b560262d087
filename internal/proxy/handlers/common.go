package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// GetOrGenerateRequestID retrieves X-Request-ID from header or generates a
// new one. Format: "agent-{uuid}" if generated.
func GetOrGenerateRequestID(r *http.Request) string {
	if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
		return requestID
	}
	return "agent-" + uuid.New().String()
}

// SetSSEHeaders sets standard headers for Server-Sent Events streaming.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// SessionIDFromHeader extracts the sticky-session key the spec's Token
// Manager keys its sticky table on; falls back to the request id so
// unlabeled requests still get per-request account assignment.
func SessionIDFromHeader(r *http.Request, fallback string) string {
	if sid := r.Header.Get("X-Session-ID"); sid != "" {
		return sid
	}
	return fallback
}

func decodeJSONBody(r *http.Request) (map[string]any, error) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeDispatchError(w http.ResponseWriter, err error) {
	http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusTooManyRequests)
}
