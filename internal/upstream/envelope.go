package upstream

import (
	"github.com/google/uuid"
)

// Envelope carries the fixed-shape payload spec.md §3 defines.
type Envelope struct {
	Project     string         `json:"project"`
	RequestID   string         `json:"requestId"`
	Model       string         `json:"model"`
	UserAgent   string         `json:"userAgent"`
	RequestType string         `json:"requestType"`
	Request     map[string]any `json:"request"`
}

// NewRequestID returns a fresh `agent-<uuid>` id, matching the
// `^agent-[0-9a-f-]{36}$` invariant (spec.md §8).
func NewRequestID() string {
	return "agent-" + uuid.NewString()
}

// BuildEnvelope assembles the outbound body for one upstream attempt.
// Safety settings are always all-categories-OFF, per spec.md §3.
func BuildEnvelope(project, model, requestType string, request map[string]any) map[string]any {
	if request == nil {
		request = map[string]any{}
	}
	request["safetySettings"] = offSafetySettings()

	return map[string]any{
		"project":     project,
		"requestId":   NewRequestID(),
		"model":       model,
		"userAgent":   UserAgent,
		"requestType": requestType,
		"request":     request,
	}
}

var safetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

func offSafetySettings() []map[string]string {
	settings := make([]map[string]string, 0, len(safetyCategories))
	for _, category := range safetyCategories {
		settings = append(settings, map[string]string{"category": category, "threshold": "OFF"})
	}
	return settings
}

// UnwrapResponse tolerates both upstream reply shapes: some responses are
// pre-wrapped in {"response": …}, some are not (spec.md §9).
func UnwrapResponse(body map[string]any) map[string]any {
	if inner, ok := body["response"].(map[string]any); ok {
		return inner
	}
	return body
}
