package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// knownModels is the client-facing catalogue advertised by /v1/models and
// /v1beta/models; it mirrors the router's default static alias tables
// rather than calling upstream fetchAvailableModels on every list request.
var knownModels = []string{
	"gemini-3-pro",
	"gemini-2.5-flash",
	"gemini-1.5-pro",
	"gemini-3-pro-image",
}

// ListModelsHandler implements GET /v1/models (OpenAI shape).
func ListModelsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := make([]any, 0, len(knownModels))
		for _, m := range knownModels {
			data = append(data, map[string]any{
				"id":       m,
				"object":   "model",
				"created":  0,
				"owned_by": "google",
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
	}
}

// ListGeminiModelsHandler implements GET /v1beta/models.
func ListGeminiModelsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models := make([]any, 0, len(knownModels))
		for _, m := range knownModels {
			models = append(models, map[string]any{"name": "models/" + m})
		}
		writeJSON(w, http.StatusOK, map[string]any{"models": models})
	}
}

// GetGeminiModelHandler implements GET /v1beta/models/{model}. It is
// registered on the same wildcard node as the POST dispatch handler, so
// it reads the model name off the catch-all segment rather than a named
// chi param.
func GetGeminiModelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		model := chi.URLParam(r, "*")
		for _, m := range knownModels {
			if m == model {
				writeJSON(w, http.StatusOK, map[string]any{"name": "models/" + m})
				return
			}
		}
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}
}

// CountTokensHandler implements POST /v1beta/models/{model}:countTokens
// with a coarse character-based estimate; the upstream API does not
// expose a tokenizer through the v1internal surface this proxy speaks.
func CountTokensHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqBody, err := decodeJSONBody(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}
		contents, _ := reqBody["contents"].([]any)
		chars := 0
		for _, raw := range contents {
			content, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			parts, _ := content["parts"].([]any)
			for _, rawPart := range parts {
				part, ok := rawPart.(map[string]any)
				if !ok {
					continue
				}
				if text, ok := part["text"].(string); ok {
					chars += len(text)
				}
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"totalTokens": chars / 4})
	}
}
