package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/ccrelay/nexus/internal/dispatcher"
	"github.com/ccrelay/nexus/internal/proxy/monitor"
	"github.com/ccrelay/nexus/internal/protocol/openai"
	"github.com/ccrelay/nexus/internal/reqconfig"
	"github.com/ccrelay/nexus/internal/router"
	"github.com/google/uuid"
)

// OpenAIChatHandler implements POST /v1/chat/completions and POST
// /v1/responses (auto-detected by body shape, spec.md §4.4.1), grounded
// on the teacher's openai.go/responses.go attempt loops, generalized
// through internal/dispatcher.
func OpenAIChatHandler(d *dispatcher.Dispatcher, mr *router.Router, pm *monitor.ProxyMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqBody, err := decodeJSONBody(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}

		originalModel, _ := reqBody["model"].(string)
		mappedModel := mr.Resolve(originalModel)
		cfg := reqconfig.Resolve(originalModel, mappedModel)

		built, err := openai.Build(reqBody)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if cfg.InjectGoogleSearch {
			tools, _ := built.Request["tools"].([]any)
			built.Request["tools"] = reqconfig.InjectGoogleSearchTool(tools)
		}

		streaming, _ := reqBody["stream"].(bool)
		completionID := "chatcmpl-" + uuid.NewString()

		method := "generateContent"
		if streaming {
			method = "streamGenerateContent"
		}

		dreq := dispatcher.Request{
			RequestType:    cfg.RequestType,
			OriginalModel:  originalModel,
			MappedModel:    cfg.FinalModel,
			SessionID:      SessionIDFromHeader(r, completionID),
			Streaming:      streaming,
			UpstreamMethod: method,
			BuildBody: func(project, model string) map[string]any {
				return built.Request
			},
		}

		result, err := d.Dispatch(r.Context(), dreq)
		logDispatch(pm, r, "openai", originalModel, cfg.FinalModel, start, result, err)
		if err != nil {
			writeDispatchError(w, err)
			return
		}

		w.Header().Set("X-Account-Email", result.Email)
		w.Header().Set("X-Mapped-Model", result.MappedModel)

		if streaming {
			SetSSEHeaders(w)
			w.WriteHeader(result.StatusCode)
			relayOpenAIStream(w, result.Body, completionID, cfg.FinalModel)
			return
		}

		defer result.Body.Close()
		serveOpenAIUnary(w, result, completionID, cfg.FinalModel)
	}
}

// LegacyCompletionsHandler implements POST /v1/completions by reshaping
// the `prompt` field into a single user message and delegating to the
// same chat-completions path.
func LegacyCompletionsHandler(d *dispatcher.Dispatcher, mr *router.Router, pm *monitor.ProxyMonitor) http.HandlerFunc {
	chat := OpenAIChatHandler(d, mr, pm)
	return func(w http.ResponseWriter, r *http.Request) {
		reqBody, err := decodeJSONBody(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}
		prompt, _ := reqBody["prompt"].(string)
		reqBody["messages"] = []any{map[string]any{"role": "user", "content": prompt}}
		delete(reqBody, "prompt")
		r.Body = jsonBodyReader(reqBody)
		chat.ServeHTTP(w, r)
	}
}

func serveOpenAIUnary(w http.ResponseWriter, result *dispatcher.Result, id, model string) {
	if result.StatusCode >= 400 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(result.StatusCode)
		io.Copy(w, result.Body)
		return
	}

	body, err := io.ReadAll(result.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	upstreamBody, err := decodeJSON(body)
	if err != nil {
		http.Error(w, "malformed upstream response", http.StatusBadGateway)
		return
	}
	candidate, usage := firstCandidateAndUsage(upstreamBody)
	writeJSON(w, http.StatusOK, openai.ToChatCompletion(id, model, candidate, usage))
}

func relayOpenAIStream(w http.ResponseWriter, body io.ReadCloser, id, model string) {
	defer body.Close()
	flusher, _ := w.(http.Flusher)

	tr := openai.NewStreamTranslator(w, id, model)
	var lastFinish string

	forEachUpstreamChunk(body, func(chunk map[string]any) {
		candidate, _ := firstCandidateAndUsage(chunk)
		if candidate == nil {
			return
		}
		content, _ := candidate["content"].(map[string]any)
		parts, _ := content["parts"].([]any)
		_ = tr.HandleParts(parts)
		if fr, ok := candidate["finishReason"].(string); ok {
			lastFinish = fr
		}
		if flusher != nil {
			flusher.Flush()
		}
	})

	_ = tr.Finish(lastFinish)
	if flusher != nil {
		flusher.Flush()
	}
}

func jsonBodyReader(body map[string]any) io.ReadCloser {
	data, _ := json.Marshal(body)
	return io.NopCloser(bytes.NewReader(data))
}
